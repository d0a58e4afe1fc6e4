package admin

import (
	"context"
	"encoding/json"

	"github.com/nugget/msghub/internal/archive"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/kvstate"
	"github.com/nugget/msghub/internal/notify"
	"github.com/nugget/msghub/internal/rules"
	"github.com/nugget/msghub/internal/store"
)

// Dispatcher wires the core subsystems to the admin command surface.
// It is transport-agnostic — cmd/msghubd exposes Dispatch over a
// reference HTTP surface, but nothing here assumes HTTP.
type Dispatcher struct {
	Store     *store.Store
	Archive   *archive.Archive
	Scheduler *notify.Scheduler
	Constants *hub.Constants
	Presets   *kvstate.Store
	Engine    *rules.Engine
}

// Dispatch routes one admin command by name, decoding payload (raw JSON)
// into the command's request type. Unknown commands return
// CodeUnknownCommand; a payload that fails to decode returns
// CodeBadRequest.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, payload json.RawMessage) Response {
	switch command {
	case "admin.stats.get":
		return d.statsGet()
	case "admin.messages.query":
		return d.messagesQuery(payload)
	case "admin.messages.delete":
		return d.messagesDelete(payload)
	case "admin.constants.get":
		return ok(d.Constants.Snapshot())
	case "admin.archive.status":
		return d.archiveStatus()
	case "admin.archive.retryNative":
		return d.archiveRetryNative(ctx)
	case "admin.archive.forceIobroker":
		return d.archiveForceIobroker()
	case "admin.ingestStates.presets.list":
		return d.presetsList()
	case "admin.ingestStates.presets.get":
		return d.presetsGet(payload)
	case "admin.ingestStates.presets.upsert":
		return d.presetsUpsert(payload)
	case "admin.ingestStates.presets.delete":
		return d.presetsDelete(payload)
	case "admin.ingestStates.bulkApply.preview":
		return d.bulkApply(payload, false)
	case "admin.ingestStates.bulkApply.apply":
		return d.bulkApply(payload, true)
	default:
		return fail(hub.CodeUnknownCommand, "unknown admin command: "+command)
	}
}

func decode(payload json.RawMessage, v any) *hub.Error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return hub.Wrap(hub.CodeBadRequest, "malformed request payload", err)
	}
	return nil
}

// statsDTO is the admin.stats.get response,
// combining every subsystem's own StatsSnapshot rather than inventing a
// parallel shape — each nested field is exactly what that subsystem
// already reports for itself.
type statsDTO struct {
	MessageCount int           `json:"messageCount"`
	Archive      archive.Stats `json:"archive"`
	Notify       notify.Stats  `json:"notify"`
}

func (d *Dispatcher) statsGet() Response {
	return ok(statsDTO{
		MessageCount: len(d.Store.GetMessages()),
		Archive:      d.Archive.StatsSnapshot(),
		Notify:       d.Scheduler.StatsSnapshot(),
	})
}

type messagesQueryRequest struct {
	Query MessageQueryRequest `json:"query"`
}

func (d *Dispatcher) messagesQuery(payload json.RawMessage) Response {
	var req messagesQueryRequest
	if herr := decode(payload, &req); herr != nil {
		return failErr(herr)
	}
	result := d.Store.QueryMessages(req.Query.toStoreQuery())
	return ok(result)
}

type messagesDeleteRequest struct {
	Refs []string `json:"refs"`
}

type messagesDeleteResult struct {
	Removed []string `json:"removed"`
}

func (d *Dispatcher) messagesDelete(payload json.RawMessage) Response {
	var req messagesDeleteRequest
	if herr := decode(payload, &req); herr != nil {
		return failErr(herr)
	}
	removed := make([]string, 0, len(req.Refs))
	for _, ref := range req.Refs {
		if d.Store.RemoveMessage(ref) {
			removed = append(removed, ref)
		}
	}
	return ok(messagesDeleteResult{Removed: removed})
}

type archiveStatusDTO struct {
	ConfiguredStrategyLock archive.StrategyLock `json:"configuredStrategyLock"`
	EffectiveStrategy      archive.StrategyLock `json:"effectiveStrategy"`
}

func (d *Dispatcher) archiveStatus() Response {
	return ok(archiveStatusDTO{
		ConfiguredStrategyLock: d.Archive.ConfiguredStrategy(),
		EffectiveStrategy:      d.Archive.EffectiveStrategy(),
	})
}

type lockChangeDTO struct {
	NextLock        archive.StrategyLock `json:"nextLock"`
	RestartRequired bool                 `json:"restartRequired"`
}

func (d *Dispatcher) archiveRetryNative(ctx context.Context) Response {
	next, restart := d.Archive.RetryNative(ctx)
	return ok(lockChangeDTO{NextLock: next, RestartRequired: restart})
}

func (d *Dispatcher) archiveForceIobroker() Response {
	next, restart := d.Archive.ForceIobroker()
	return ok(lockChangeDTO{NextLock: next, RestartRequired: restart})
}

func (d *Dispatcher) presetsList() Response {
	presets, err := d.Presets.ListPresets()
	if err != nil {
		return failErr(hub.Wrap(hub.CodeInternal, "listing presets failed", err))
	}
	return ok(presets)
}

type presetNameRequest struct {
	Name string `json:"name"`
}

func (d *Dispatcher) presetsGet(payload json.RawMessage) Response {
	var req presetNameRequest
	if herr := decode(payload, &req); herr != nil {
		return failErr(herr)
	}
	preset, found, err := d.Presets.LoadPreset(req.Name)
	if err != nil {
		return failErr(hub.Wrap(hub.CodeInternal, "loading preset failed", err))
	}
	if !found {
		return fail(hub.CodeNotFound, "no such preset: "+req.Name)
	}
	return ok(preset)
}

func (d *Dispatcher) presetsUpsert(payload json.RawMessage) Response {
	var preset kvstate.Preset
	if herr := decode(payload, &preset); herr != nil {
		return failErr(herr)
	}
	if preset.Name == "" {
		return fail(hub.CodeBadRequest, "preset name is required")
	}
	if err := d.Presets.SavePreset(preset); err != nil {
		return failErr(hub.Wrap(hub.CodeInternal, "saving preset failed", err))
	}
	return ok(preset)
}

func (d *Dispatcher) presetsDelete(payload json.RawMessage) Response {
	var req presetNameRequest
	if herr := decode(payload, &req); herr != nil {
		return failErr(herr)
	}
	if err := d.Presets.DeletePreset(req.Name); err != nil {
		return failErr(hub.Wrap(hub.CodeInternal, "deleting preset failed", err))
	}
	return ok(nil)
}

// bulkApplyRequest carries {pattern, custom, replace, limit}.
// Replace is accepted for wire compatibility but unused: BulkApply always
// stamps an id-overridden copy of custom onto every matching candidate,
// there being no partial-merge mode to toggle.
type bulkApplyRequest struct {
	Pattern string       `json:"pattern"`
	Custom  rules.Config `json:"custom"`
	Replace bool         `json:"replace"`
	Limit   int          `json:"limit"`
}

func (d *Dispatcher) bulkApply(payload json.RawMessage, apply bool) Response {
	var req bulkApplyRequest
	if herr := decode(payload, &req); herr != nil {
		return failErr(herr)
	}
	result := d.Engine.BulkApply(req.Pattern, req.Custom, d.Engine.KnownIDs(), apply, req.Limit)
	return ok(result)
}
