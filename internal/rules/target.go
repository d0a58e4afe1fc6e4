package rules

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
)

// TargetMessageWriter owns one message ref per rule/target and is the only
// thing that ever calls Store.AddMessage/UpdateMessage on the rule engine's
// behalf. It enforces the create/patch-only-changed-fields/
// metric-throttling/close/cooldown-reopen/resume contract uniformly across
// all six rule kinds, so the evaluators in evaluate.go stay pure functions
// over a rolling window.
type TargetMessageWriter struct {
	store   *store.Store
	factory *factory.Factory
	resume  kvResume
	logger  *slog.Logger

	mu              sync.Mutex
	lastMetricWrite map[string]int64 // ref -> last throttled write ts
}

// kvResume is the narrow subset of internal/kvstate.Store the writer needs,
// expressed as an interface so rule-engine tests can supply an in-memory
// fake instead of opening a real SQLite database.
type kvResume interface {
	SetResumeInt64(instance, rule, id, field string, value int64) error
	GetResumeInt64(instance, rule, id, field string) (int64, bool, error)
	ClearResumeField(instance, rule, id, field string) error
	List(namespace string) (map[string]string, error)
}

// NewTargetMessageWriter creates a writer. resume may be nil, which disables
// cooldown-reopen and scheduled-close resume (acceptable for tests that
// don't restart the process mid-cooldown).
func NewTargetMessageWriter(st *store.Store, f *factory.Factory, resume kvResume, logger *slog.Logger) *TargetMessageWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TargetMessageWriter{
		store:           st,
		factory:         f,
		resume:          resume,
		logger:          logger,
		lastMetricWrite: make(map[string]int64),
	}
}

// ref deterministically names the one message this rule instance owns.
func ref(cfg Config) string {
	return fmt.Sprintf("ingest:%s.%s.%s", cfg.Instance, cfg.Rule, cfg.ID)
}

// OnCauseActive materializes or updates the open message for cfg's target,
// applying the cooldown-reopen rule if a prior close is still within its
// cooldown window.
func (w *TargetMessageWriter) OnCauseActive(cfg Config, reason string, now int64) {
	r := ref(cfg)
	existing, found := w.store.GetMessageByRef(r)

	if !found {
		if w.tryCooldownReopen(cfg, r, now) {
			return
		}
		w.create(cfg, r, now)
		return
	}

	if existing.Lifecycle.State.Terminal() {
		if w.tryCooldownReopen(cfg, r, now) {
			return
		}
		// Terminal but outside cooldown (or no resume state): treat as a
		// fresh cause, recreating from preset with the same ref.
		w.store.RemoveMessage(r)
		w.create(cfg, r, now)
		return
	}

	w.patchChangedFields(cfg, existing, r, reason, now)
}

// tryCooldownReopen reopens ref if a prior close is still within cfg's
// cooldown window, honoring reminders by setting notifyAt to the cooldown
// deadline. Returns true if it acted.
func (w *TargetMessageWriter) tryCooldownReopen(cfg Config, r string, now int64) bool {
	if w.resume == nil || cfg.Policy.CooldownMs <= 0 {
		return false
	}
	closedAt, ok, err := w.resume.GetResumeInt64(cfg.Instance, cfg.Rule, cfg.ID, "closedAt")
	if err != nil || !ok {
		return false
	}
	if now-closedAt >= cfg.Policy.CooldownMs {
		return false
	}

	notifyAt := closedAt + cfg.Policy.CooldownMs
	patch := store.Patch{
		Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateOpen)},
		Timing:    &store.TimingPatch{NotifyAt: store.Set(notifyAt)},
		Now:       now,
	}
	if ok, _ := w.store.UpdateMessage(r, patch); ok {
		return true
	}

	// The message no longer exists in the store (deleted) — recreate from
	// preset under the same ref rather than failing the reopen.
	w.create(cfg, r, now)
	return true
}

func (w *TargetMessageWriter) create(cfg Config, r string, now int64) {
	msg := cfg.Message
	var remindEvery *int64
	if msg.RemindEveryMs > 0 {
		v := msg.RemindEveryMs
		remindEvery = &v
	}
	nowVal := now
	raw := factory.Raw{
		Ref:      r,
		Kind:     msg.Kind,
		Level:    msg.Level,
		Origin:   msg.Origin,
		Title:    msg.Title,
		Text:     msg.Text,
		Icon:     msg.Icon,
		Details:  msg.Details,
		Actions:  msg.Actions,
		Timing:   hub.Timing{NotifyAt: &nowVal},
		Audience: msg.Audience,
	}
	if remindEvery != nil {
		raw.Timing.RemindEvery = *remindEvery
	}
	created, reason := w.factory.CreateMessage(raw)
	if created == nil {
		w.logger.Warn("rules: target message rejected by factory", "ref", r, "reason", reason)
		return
	}
	if _, err := w.store.AddMessage(*created); err != nil {
		w.logger.Error("rules: failed to create target message", "ref", r, "error", err)
	}
}

// patchChangedFields applies only the fields the rule engine owns:
// title/text/level/icon/timing.remindEvery/timing.cooldown.
// Fields are compared against the current message so an unchanged field
// never generates a no-op patch call.
func (w *TargetMessageWriter) patchChangedFields(cfg Config, existing hub.Message, r, reason string, now int64) {
	msg := cfg.Message
	patch := store.Patch{Now: now}
	changed := false

	if msg.Title != "" && msg.Title != existing.Title {
		patch.Title = &msg.Title
		changed = true
	}
	if msg.Text != "" && msg.Text != existing.Text {
		patch.Text = &msg.Text
		changed = true
	}
	if msg.Level != existing.Level {
		lvl := msg.Level
		patch.Level = &lvl
		changed = true
	}
	if msg.Icon != "" && msg.Icon != existing.Icon {
		patch.Icon = &msg.Icon
		changed = true
	}
	if msg.RemindEveryMs != existing.Timing.RemindEvery {
		v := msg.RemindEveryMs
		patch.Timing = &store.TimingPatch{RemindEvery: &v}
		changed = true
	}
	if cfg.Policy.CooldownMs != existing.Timing.Cooldown {
		v := cfg.Policy.CooldownMs
		if patch.Timing == nil {
			patch.Timing = &store.TimingPatch{}
		}
		patch.Timing.Cooldown = &v
		changed = true
	}

	if !changed {
		return
	}
	if _, err := w.store.UpdateMessage(r, patch); err != nil {
		w.logger.Error("rules: failed to patch target message", "ref", r, "error", err, "reason", reason)
	}
}

// OnCauseNormal applies close semantics: an automatic close
// when the policy allows it, or an idempotent close action plus recovered
// text otherwise. Either way it records resume state so a future reopen
// within the cooldown window can find the prior close.
func (w *TargetMessageWriter) OnCauseNormal(cfg Config, now int64) {
	r := ref(cfg)
	existing, found := w.store.GetMessageByRef(r)
	if !found || existing.Lifecycle.State.Terminal() {
		return
	}

	if cfg.Policy.ResetOnNormal {
		if cfg.Message.TextRecovered != "" {
			w.store.UpdateMessage(r, store.Patch{
				Text: &cfg.Message.TextRecovered,
				Now:  now,
			})
		}
		if _, err := w.store.CompleteAfterCauseEliminated(r, "rules", now); err != nil {
			w.logger.Error("rules: failed to close target message", "ref", r, "error", err)
		}
	} else {
		existing.UpsertAction(hub.Action{ID: "close", Type: hub.ActionClose})
		patch := store.Patch{
			Timing:  &store.TimingPatch{NotifyAt: store.Clear()},
			Actions: existing.Actions,
			Now:     now,
		}
		if cfg.Message.TextRecovered != "" {
			patch.Text = &cfg.Message.TextRecovered
		}
		if _, err := w.store.UpdateMessage(r, patch); err != nil {
			w.logger.Error("rules: failed to patch recovered text and close action", "ref", r, "error", err)
			return
		}
	}

	w.recordClose(cfg, now)
}

// recordClose persists closedAt/resetAt resume state so a cooldown reopen
// or TryCloseScheduled can recover it even across a restart.
func (w *TargetMessageWriter) recordClose(cfg Config, now int64) {
	if w.resume == nil {
		return
	}
	if err := w.resume.SetResumeInt64(cfg.Instance, cfg.Rule, cfg.ID, "closedAt", now); err != nil {
		w.logger.Error("rules: failed to persist closedAt", "error", err)
	}
	resetAt := now + cfg.Policy.CooldownMs
	if err := w.resume.SetResumeInt64(cfg.Instance, cfg.Rule, cfg.ID, "resetAt", resetAt); err != nil {
		w.logger.Error("rules: failed to persist resetAt", "error", err)
	}
}

// TryCloseScheduled finalizes any cooldown windows whose resetAt deadline
// has passed, clearing resume state so a subsequent cause no longer
// qualifies for cooldown reopen. There is no timer: Engine.Tick calls it
// for every rule instance on each tick, and the deadlines are read from
// persisted resume state, so ones that passed across a restart are
// cleared on the first tick after it.
func (w *TargetMessageWriter) TryCloseScheduled(instance, rule string, now int64) {
	if w.resume == nil {
		return
	}
	entries, err := w.resume.List(kvResumeNamespace(instance, rule))
	if err != nil {
		w.logger.Error("rules: failed to list resume state", "error", err)
		return
	}
	for key, val := range entries {
		if !strings.HasSuffix(key, ".resetAt") {
			continue
		}
		resetAt, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr != nil || resetAt > now {
			continue
		}
		id := strings.TrimSuffix(key, ".resetAt")
		w.resume.ClearResumeField(instance, rule, id, "resetAt")
		w.resume.ClearResumeField(instance, rule, id, "closedAt")
	}
}

// PatchMetrics coalesces metric updates for ref's target message: a
// changed value is written only if at least StatsMinIntervalMs has passed
// since the last write (or force is set), and a call made once
// StatsMaxIntervalMs has passed since the last write writes every given
// value, changed or not. There is no timer: nothing is written between
// calls.
func (w *TargetMessageWriter) PatchMetrics(cfg Config, set map[string]store.MetricValue, del []string, force bool, now int64) {
	r := ref(cfg)
	existing, found := w.store.GetMessageByRef(r)
	if !found {
		return
	}

	w.mu.Lock()
	last, everWritten := w.lastMetricWrite[r]
	w.mu.Unlock()

	sinceLastWrite := now - last
	pastMinInterval := !everWritten || cfg.StatsMinIntervalMs <= 0 || sinceLastWrite >= cfg.StatsMinIntervalMs
	pastMaxInterval := everWritten && cfg.StatsMaxIntervalMs > 0 && sinceLastWrite >= cfg.StatsMaxIntervalMs

	changed := make(map[string]store.MetricValue)
	for k, v := range set {
		if cur, ok := existing.Metrics.Get(k); ok {
			if m, isMap := cur.(map[string]any); isMap {
				if val, _ := m["val"].(float64); val == v.Val {
					continue // unchanged
				}
			}
		}
		changed[k] = v
	}

	var toSet map[string]store.MetricValue
	switch {
	case force || pastMaxInterval:
		// Force, or the max interval has passed: write everything so the
		// journal shows progress even if nothing actually changed.
		toSet = set
	case len(changed) > 0 && pastMinInterval:
		toSet = changed
	}

	if len(toSet) == 0 && len(del) == 0 {
		return
	}

	patch := store.Patch{
		Metrics: &store.MetricsPatch{Set: toSet, Delete: del},
		Now:     now,
	}
	if _, err := w.store.UpdateMessage(r, patch); err != nil {
		w.logger.Error("rules: failed to patch metrics", "ref", r, "error", err)
		return
	}

	w.mu.Lock()
	w.lastMetricWrite[r] = now
	w.mu.Unlock()
}

func kvResumeNamespace(instance, rule string) string {
	return "IngestStates." + instance + "." + rule
}
