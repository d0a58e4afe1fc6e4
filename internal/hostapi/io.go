// Package hostapi defines the narrow capability surfaces the message hub
// consumes from its embedding host, and provides a frozen,
// plugin-facing façade over them. Each surface is a thin interface the
// core depends on, with a real client and a test fake both satisfying
// it; façade values must never be mutated once handed to a plugin.
package hostapi

import "context"

// ForeignObject is an opaque host-managed object descriptor, handed back
// verbatim from IO.GetForeignObject(s); the hub does not interpret its
// shape.
type ForeignObject struct {
	ID      string
	Type    string
	Common  map[string]any
	Native  map[string]any
}

// ForeignState is a host-managed state value with metadata, mirroring
// the ioBroker state shape (val/ack/ts/from).
type ForeignState struct {
	Val  any
	Ack  bool
	Ts   int64
	From string
}

// StateHandler receives subscribed state changes: id, the new state (nil if
// deleted), and the previous state (nil if none).
type StateHandler func(id string, state *ForeignState, prev *ForeignState)

// IO is the host integration surface (the "iobroker" façade): object
// lookup, foreign state access and subscription, cross-adapter messaging,
// and a small file surface for plugins that need scratch storage on the
// host filesystem. Production implementations live in the embedding host;
// FakeIO is the in-memory test double used throughout this module's tests.
type IO interface {
	GetForeignObject(ctx context.Context, id string) (*ForeignObject, error)
	GetForeignObjects(ctx context.Context, pattern string) ([]ForeignObject, error)
	GetForeignState(ctx context.Context, id string) (*ForeignState, error)
	SubscribeForeignStates(ctx context.Context, pattern string, h StateHandler) (unsubscribe func(), err error)
	SendTo(ctx context.Context, instance, command string, payload any) error
	Mkdir(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, data []byte) error
}
