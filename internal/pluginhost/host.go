package pluginhost

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nugget/msghub/internal/action"
	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hostapi"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/rules"
)

// entry tracks one registered plugin alongside its health (a plugin that
// errors in Start is still registered but marked unhealthy).
type entry[T any] struct {
	plugin  T
	healthy bool
}

// Host owns the Ingest and Notify registries and mediates every callback
// through fault isolation. It implements notify.Sink so the
// scheduler can dispatch through it without knowing about individual
// plugins, and feeds ingest state changes into the rule engine.
type Host struct {
	ingestAPI API // Action populated
	notifyAPI API // Action left nil

	logger *slog.Logger
	engine *rules.Engine // optional: nil if the rule engine isn't wired

	mu      sync.Mutex
	ingests map[string]*entry[Ingest]
	notifs  map[string]*entry[Notify]
	baseMeta Meta
}

// Deps bundles the capability façades Host assembles into every plugin's
// Ctx.
type Deps struct {
	Store     StoreView
	Factory   *factory.Factory
	Constants *hub.Constants
	Stats     hostapi.Stats
	AI        *hostapi.AI
	I18n      *hostapi.I18n
	IOBroker  hostapi.IO
	Action    *action.Executor
	Logger    *slog.Logger
	Engine    *rules.Engine // optional, routes ingest state changes
}

// New creates a Host. Action is included in the ingest-plugin API and
// omitted from the notify-plugin API: sinks never mutate workflow
// state.
func New(d Deps) *Host {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	common := API{
		Constants: d.Constants,
		Factory:   d.Factory,
		Store:     d.Store,
		Stats:     d.Stats,
		AI:        d.AI,
		I18n:      d.I18n,
		IOBroker:  d.IOBroker,
		Log:       d.Logger,
	}
	ingestAPI := common
	ingestAPI.Action = d.Action
	notifyAPI := common

	return &Host{
		ingestAPI: ingestAPI,
		notifyAPI: notifyAPI,
		logger:    d.Logger,
		engine:    d.Engine,
		ingests:   make(map[string]*entry[Ingest]),
		notifs:    make(map[string]*entry[Notify]),
	}
}

// safeCall recovers a panic from a plugin callback, logging it with the
// plugin id rather than letting it propagate, so one broken plugin never
// prevents the rest of a dispatch round.
func (h *Host) safeCall(pluginID, action string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("pluginhost: plugin panicked, recovered",
				"plugin", pluginID, "action", action, "panic", r)
		}
	}()
	fn()
}

// RegisterIngest installs p under id, stopping any previously registered
// plugin at that id first (best-effort).
// Start is called if p implements Starter; a Start error
// leaves the plugin registered but marked unhealthy.
func (h *Host) RegisterIngest(id string, p Ingest) {
	h.mu.Lock()
	prev := h.ingests[id]
	h.mu.Unlock()

	if prev != nil {
		h.stopIngest(id, prev.plugin)
	}

	e := &entry[Ingest]{plugin: p, healthy: true}
	if starter, ok := p.(Starter); ok {
		ctx := Ctx{API: h.ingestAPI, Meta: h.metaFor(id, "register")}
		h.safeCall(id, "Start", func() {
			if err := starter.Start(ctx); err != nil {
				h.logger.Error("pluginhost: ingest plugin Start failed", "plugin", id, "error", err)
				e.healthy = false
			}
		})
	}

	h.mu.Lock()
	h.ingests[id] = e
	h.mu.Unlock()
}

// UnregisterIngest stops and removes the plugin at id, if any.
func (h *Host) UnregisterIngest(id string) {
	h.mu.Lock()
	e := h.ingests[id]
	delete(h.ingests, id)
	h.mu.Unlock()
	if e != nil {
		h.stopIngest(id, e.plugin)
	}
}

func (h *Host) stopIngest(id string, p Ingest) {
	if stopper, ok := p.(Stopper); ok {
		ctx := Ctx{API: h.ingestAPI, Meta: h.metaFor(id, "reregister")}
		h.safeCall(id, "Stop", func() {
			if err := stopper.Stop(ctx); err != nil {
				h.logger.Warn("pluginhost: ingest plugin Stop failed", "plugin", id, "error", err)
			}
		})
	}
}

// RegisterNotify installs p under id with the same re-register/Start
// semantics as RegisterIngest.
func (h *Host) RegisterNotify(id string, p Notify) {
	h.mu.Lock()
	prev := h.notifs[id]
	h.mu.Unlock()

	if prev != nil {
		h.stopNotify(id, prev.plugin)
	}

	e := &entry[Notify]{plugin: p, healthy: true}
	if starter, ok := p.(Starter); ok {
		ctx := Ctx{API: h.notifyAPI, Meta: h.metaFor(id, "register")}
		h.safeCall(id, "Start", func() {
			if err := starter.Start(ctx); err != nil {
				h.logger.Error("pluginhost: notify plugin Start failed", "plugin", id, "error", err)
				e.healthy = false
			}
		})
	}

	h.mu.Lock()
	h.notifs[id] = e
	h.mu.Unlock()
}

// UnregisterNotify stops and removes the plugin at id, if any.
func (h *Host) UnregisterNotify(id string) {
	h.mu.Lock()
	e := h.notifs[id]
	delete(h.notifs, id)
	h.mu.Unlock()
	if e != nil {
		h.stopNotify(id, e.plugin)
	}
}

func (h *Host) stopNotify(id string, p Notify) {
	if stopper, ok := p.(Stopper); ok {
		ctx := Ctx{API: h.notifyAPI, Meta: h.metaFor(id, "reregister")}
		h.safeCall(id, "Stop", func() {
			if err := stopper.Stop(ctx); err != nil {
				h.logger.Warn("pluginhost: notify plugin Stop failed", "plugin", id, "error", err)
			}
		})
	}
}

func (h *Host) metaFor(pluginID, reason string) Meta {
	m := h.baseMeta
	m.PluginID = pluginID
	m.Reason = reason
	m.Running = true
	return m
}

// Status reports one registered plugin's id and health.
type Status struct {
	ID      string
	Healthy bool
}

// IngestStatuses returns the health of every registered ingest plugin.
func (h *Host) IngestStatuses() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Status, 0, len(h.ingests))
	for id, e := range h.ingests {
		out = append(out, Status{ID: id, Healthy: e.healthy})
	}
	return out
}

// NotifyStatuses returns the health of every registered notify plugin.
func (h *Host) NotifyStatuses() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Status, 0, len(h.notifs))
	for id, e := range h.notifs {
		out = append(out, Status{ID: id, Healthy: e.healthy})
	}
	return out
}

// DispatchState feeds one (id, val, ts) state observation to every
// registered ingest plugin implementing StateChangeHandler, then (if an
// Engine is wired) to the rule engine. Each plugin callback is isolated:
// one plugin's panic never prevents the rest, or the rule engine, from
// seeing the observation.
func (h *Host) DispatchState(id string, val any, ts int64) {
	h.mu.Lock()
	entries := make([]*entry[Ingest], 0, len(h.ingests))
	for _, e := range h.ingests {
		entries = append(entries, e)
	}
	h.mu.Unlock()

	for _, e := range entries {
		handler, ok := e.plugin.(StateChangeHandler)
		if !ok {
			continue
		}
		pluginID := e.plugin.PluginID()
		ctx := Ctx{API: h.ingestAPI, Meta: h.metaFor(pluginID, "stateChange")}
		h.safeCall(pluginID, "OnStateChange", func() {
			handler.OnStateChange(ctx, id, val, ts)
		})
	}

	if h.engine != nil {
		if f, ok := val.(float64); ok {
			h.engine.Ingest(id, ts, &f)
		}
	}
}

// DispatchObject feeds one object-change event to every registered ingest
// plugin implementing ObjectChangeHandler.
func (h *Host) DispatchObject(id string, obj *hostapi.ForeignObject) {
	h.mu.Lock()
	entries := make([]*entry[Ingest], 0, len(h.ingests))
	for _, e := range h.ingests {
		entries = append(entries, e)
	}
	h.mu.Unlock()

	for _, e := range entries {
		handler, ok := e.plugin.(ObjectChangeHandler)
		if !ok {
			continue
		}
		pluginID := e.plugin.PluginID()
		ctx := Ctx{API: h.ingestAPI, Meta: h.metaFor(pluginID, "objectChange")}
		h.safeCall(pluginID, "OnObjectChange", func() {
			handler.OnObjectChange(ctx, id, obj)
		})
	}
}

// Notify implements notify.Sink, dispatching event/messages to every
// registered notify plugin implementing Notifier, with the same fault
// isolation as ingest dispatch. The scheduler calls this synchronously
// from its own fire-and-forget goroutine, so a slow plugin delays only
// that dispatch, never the tick loop itself.
func (h *Host) Notify(_ context.Context, event hub.NotifyEvent, messages []hub.Message) {
	h.mu.Lock()
	entries := make([]*entry[Notify], 0, len(h.notifs))
	for _, e := range h.notifs {
		entries = append(entries, e)
	}
	h.mu.Unlock()

	for _, e := range entries {
		notifier, ok := e.plugin.(Notifier)
		if !ok {
			continue
		}
		pluginID := e.plugin.PluginID()
		ctx := Ctx{API: h.notifyAPI, Meta: h.metaFor(pluginID, string(event))}
		h.safeCall(pluginID, "OnNotifications", func() {
			notifier.OnNotifications(ctx, event, messages)
		})
	}
}
