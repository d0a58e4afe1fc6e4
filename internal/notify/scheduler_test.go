package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
	done   chan struct{}
}

type recordedEvent struct {
	event hub.NotifyEvent
	refs  []string
}

func newRecordingSink(expect int) *recordingSink {
	return &recordingSink{done: make(chan struct{}, expect)}
}

func (r *recordingSink) Notify(_ context.Context, event hub.NotifyEvent, messages []hub.Message) {
	r.mu.Lock()
	refs := make([]string, len(messages))
	for i, m := range messages {
		refs[i] = m.Ref
	}
	r.events = append(r.events, recordedEvent{event: event, refs: refs})
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingSink) waitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-deadline:
			return false
		}
	}
	return true
}

func msgWithNotifyAt(ref string, level hub.Level, notifyAt int64) hub.Message {
	v := notifyAt
	return hub.Message{
		Ref: ref, Kind: hub.KindStatus, Level: level,
		Lifecycle: hub.Lifecycle{State: hub.StateOpen},
		Timing:    hub.Timing{NotifyAt: &v},
	}
}

func TestTick_DispatchesDueMessage(t *testing.T) {
	s := store.New(nil)
	s.AddMessage(msgWithNotifyAt("a", hub.LevelWarning, 1000))

	sink := newRecordingSink(1)
	sched := New(s, sink, Config{TickInterval: time.Second}, nil)

	sched.Tick(time.UnixMilli(2000))
	if !sink.waitFor(1, time.Second) {
		t.Fatal("expected one due dispatch")
	}
	if sink.events[0].event != hub.EventDue || sink.events[0].refs[0] != "a" {
		t.Errorf("events = %+v", sink.events)
	}

	got, _ := s.GetMessageByRef("a")
	if got.Timing.NotifyAt != nil {
		t.Errorf("expected notifyAt cleared for one-shot message, got %v", got.Timing.NotifyAt)
	}
}

func TestTick_RemindEveryReschedules(t *testing.T) {
	s := store.New(nil)
	m := msgWithNotifyAt("a", hub.LevelWarning, 1000)
	m.Timing.RemindEvery = 5000
	s.AddMessage(m)

	sink := newRecordingSink(1)
	sched := New(s, sink, Config{TickInterval: time.Second}, nil)
	sched.Tick(time.UnixMilli(2000))
	sink.waitFor(1, time.Second)

	got, _ := s.GetMessageByRef("a")
	if got.Timing.NotifyAt == nil || *got.Timing.NotifyAt != 7000 {
		t.Errorf("notifyAt = %v, want 7000", got.Timing.NotifyAt)
	}
}

func TestTick_ExpiresPastExpiresAt(t *testing.T) {
	s := store.New(nil)
	expiresAt := int64(500)
	m := msgWithNotifyAt("a", hub.LevelWarning, 1000)
	m.Timing.ExpiresAt = &expiresAt
	s.AddMessage(m)

	sink := newRecordingSink(1)
	sched := New(s, sink, Config{TickInterval: time.Second}, nil)
	sched.Tick(time.UnixMilli(2000))
	if !sink.waitFor(1, time.Second) {
		t.Fatal("expected expired dispatch")
	}
	if sink.events[0].event != hub.EventExpired {
		t.Errorf("event = %v, want expired", sink.events[0].event)
	}

	got, _ := s.GetMessageByRef("a")
	if got.Lifecycle.State != hub.StateExpired {
		t.Errorf("state = %v, want expired", got.Lifecycle.State)
	}
}

func TestTick_QuietHoursDefersLowLevelNotHighLevel(t *testing.T) {
	s := store.New(nil)
	s.AddMessage(msgWithNotifyAt("low", hub.LevelWarning, 1000))
	s.AddMessage(msgWithNotifyAt("high", hub.LevelError, 1000))

	qh := &QuietHours{StartMin: 22 * 60, EndMin: 6 * 60, MaxLevel: int(hub.LevelWarning), SpreadMs: 0}
	sink := newRecordingSink(1)
	sched := New(s, sink, Config{TickInterval: time.Second, QuietHours: qh}, nil)

	now := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	sched.Tick(now)
	if !sink.waitFor(1, time.Second) {
		t.Fatal("expected exactly one dispatch (the high-level message)")
	}
	if sink.events[0].refs[0] != "high" {
		t.Errorf("dispatched ref = %v, want high", sink.events[0].refs)
	}

	low, _ := s.GetMessageByRef("low")
	wantEnd := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC).UnixMilli()
	if low.Timing.NotifyAt == nil || *low.Timing.NotifyAt != wantEnd {
		t.Errorf("low notifyAt = %v, want %v", low.Timing.NotifyAt, wantEnd)
	}
}

func TestTick_OrdersExpiredBeforeDueAndByLevelDesc(t *testing.T) {
	s := store.New(nil)
	s.AddMessage(msgWithNotifyAt("b-low", hub.LevelInfo, 1000))
	s.AddMessage(msgWithNotifyAt("a-high", hub.LevelCritical, 1000))
	expiresAt := int64(500)
	expiring := msgWithNotifyAt("z-expired", hub.LevelWarning, 1000)
	expiring.Timing.ExpiresAt = &expiresAt
	s.AddMessage(expiring)

	sink := newRecordingSink(2)
	sched := New(s, sink, Config{TickInterval: time.Second}, nil)
	sched.Tick(time.UnixMilli(2000))
	if !sink.waitFor(2, 2*time.Second) {
		t.Fatal("expected two dispatches: one expired batch, one due batch")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.events[0].event != hub.EventExpired {
		t.Fatalf("first event = %v, want expired first", sink.events[0].event)
	}
	dueEvent := sink.events[1]
	if dueEvent.event != hub.EventDue || dueEvent.refs[0] != "a-high" || dueEvent.refs[1] != "b-low" {
		t.Errorf("due event = %+v, want [a-high, b-low]", dueEvent)
	}
}
