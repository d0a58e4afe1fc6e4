package pluginhost

import "github.com/nugget/msghub/internal/hostapi"

// Ingest is the marker interface every ingest plugin must satisfy; the
// capabilities it actually exercises are detected by type assertion
// against the optional interfaces below, so handler shapes can vary per
// plugin. A plugin with none of the optional interfaces is registered
// but never dispatched to — useful for a plugin that only needs Start/Stop
// side effects (e.g. opening a persistent connection that pushes via
// ctx.api.store directly from its own goroutine).
type Ingest interface {
	// PluginID names this plugin instance for logging and re-register
	// dedup; distinct from the registry key only in that a plugin may
	// report a different id than the one it was registered under (the
	// registry key always wins for lifecycle purposes).
	PluginID() string
}

// StateChangeHandler is the optional ingest capability for state updates:
// ctx=(id, value) pairs as they arrive from the host or a built-in
// producer's own polling loop.
type StateChangeHandler interface {
	OnStateChange(ctx Ctx, id string, val any, ts int64)
}

// ObjectChangeHandler is the optional ingest capability for host object
// metadata changes (new/changed/deleted managed objects).
type ObjectChangeHandler interface {
	OnObjectChange(ctx Ctx, id string, obj *hostapi.ForeignObject)
}

// Starter is the optional lifecycle-start capability shared by ingest and
// notify plugins.
type Starter interface {
	Start(ctx Ctx) error
}

// Stopper is the optional lifecycle-stop capability shared by ingest and
// notify plugins.
type Stopper interface {
	Stop(ctx Ctx) error
}
