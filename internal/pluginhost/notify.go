package pluginhost

import "github.com/nugget/msghub/internal/hub"

// Notify is the marker interface every notify plugin must satisfy; actual
// dispatch happens through the optional Notifier capability, matching the
// same optional-interface pattern as Ingest.
type Notify interface {
	PluginID() string
}

// Notifier is the optional notify capability: one callback per dispatch
// batch of messages sharing one notification event.
type Notifier interface {
	OnNotifications(ctx Ctx, event hub.NotifyEvent, messages []hub.Message)
}
