// Package pluginhost implements the two plugin registries (Ingest
// producers, Notify sinks) the hub dispatches events through. Capabilities
// are narrow, swappable interfaces assembled into one struct passed by
// value to callers, and every callback runs under catch-log-continue
// fault isolation — a plugin must never be allowed to take down the
// dispatch loop or a sibling plugin.
package pluginhost

import (
	"log/slog"

	"github.com/nugget/msghub/internal/action"
	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hostapi"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
)

// StoreView is the narrow store surface plugins get:
// add/update/remove/query, no internal emitters. *store.Store satisfies
// this structurally.
type StoreView interface {
	AddMessage(m hub.Message) (bool, error)
	AddOrUpdateMessage(m hub.Message) (bool, error)
	UpdateMessage(ref string, patch store.Patch) (bool, error)
	RemoveMessage(ref string) bool
	GetMessageByRef(ref string) (hub.Message, bool)
	GetMessages() []hub.Message
}

// API is the frozen set of capability façades handed to every plugin.
// It is built once per Host and passed by value into each plugin's
// Ctx, so no plugin can mutate another's view of it. Action is nil for
// notify plugins: sinks never get workflow-mutation capability.
type API struct {
	Constants *hub.Constants
	Factory   *factory.Factory
	Store     StoreView
	Stats     hostapi.Stats
	AI        *hostapi.AI // nil if no AI backend is configured
	I18n      *hostapi.I18n
	IOBroker  hostapi.IO
	Log       *slog.Logger
	Action    *action.Executor // nil for notify plugins
}

// Meta is per-call metadata merged from host-provided base meta and
// per-call fields.
type Meta struct {
	PluginID string
	Reason   string
	Running  bool
}

// Ctx is the context object passed to every plugin callback: ctx = {api,
// meta}. Built fresh per dispatch so Meta always reflects the
// current call; API is copied by value so a plugin's local mutation of its
// own Ctx (e.g. reassigning a field) can never be observed by another
// plugin.
type Ctx struct {
	API  API
	Meta Meta
}
