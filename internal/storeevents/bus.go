// Package storeevents carries Store change notifications to their
// consumers over channels: a non-blocking multi-subscriber broadcast bus.
// Archive and Scheduler subscribe here instead of holding back-pointers
// into the Store, which keeps the ownership graph acyclic.
package storeevents

import (
	"sync"
	"time"

	"github.com/nugget/msghub/internal/hub"
)

// Change describes a single Store mutation. Before is nil for Create.
type Change struct {
	Ref    string
	Kind   hub.ChangeKind
	Before *hub.Message
	After  *hub.Message
	Ts     time.Time
}

// Bus is a non-blocking broadcast bus for Store change events. Subscribers
// (Archive, Scheduler) receive events on buffered channels; a slow
// subscriber misses events rather than blocking the Store's mutation path —
// subscribers must not mutate Store state synchronously from the callback
// side of this channel.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Change]struct{}
	recvToSend map[<-chan Change]chan Change
}

// New creates a new change-event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Change]struct{}),
		recvToSend: make(map[<-chan Change]chan Change),
	}
}

// Publish sends a change to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that subscriber.
// Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			// Subscriber is full — drop rather than block the Store.
		}
	}
}

// Subscribe returns a channel that receives published changes. The caller
// must eventually call Unsubscribe to avoid leaking the channel.
func (b *Bus) Subscribe(bufSize int) <-chan Change {
	ch := make(chan Change, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
