package pluginhost

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/nugget/msghub/internal/hub"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHost() *Host {
	return New(Deps{Logger: testLogger()})
}

// --- fake plugins -----------------------------------------------------

type fakeIngest struct {
	id          string
	states      []struct {
		id  string
		val any
		ts  int64
	}
	startErr  error
	startedN  int
	stoppedN  int
	panicOn   bool
}

func (f *fakeIngest) PluginID() string { return f.id }

func (f *fakeIngest) Start(ctx Ctx) error {
	f.startedN++
	return f.startErr
}

func (f *fakeIngest) Stop(ctx Ctx) error {
	f.stoppedN++
	return nil
}

func (f *fakeIngest) OnStateChange(ctx Ctx, id string, val any, ts int64) {
	if f.panicOn {
		panic("boom")
	}
	f.states = append(f.states, struct {
		id  string
		val any
		ts  int64
	}{id, val, ts})
}

type fakeNotify struct {
	id       string
	events   []hub.NotifyEvent
	stoppedN int
	panicOn  bool
}

func (f *fakeNotify) PluginID() string { return f.id }

func (f *fakeNotify) Stop(ctx Ctx) error {
	f.stoppedN++
	return nil
}

func (f *fakeNotify) OnNotifications(ctx Ctx, event hub.NotifyEvent, messages []hub.Message) {
	if f.panicOn {
		panic("boom")
	}
	f.events = append(f.events, event)
}

// plain marker-only plugins (no optional capabilities) to confirm they're
// registered but never dispatched to.
type bareIngest struct{ id string }

func (b *bareIngest) PluginID() string { return b.id }

// --- tests --------------------------------------------------------------

func TestHost_RegisterIngest_StartCalledAndDispatchWorks(t *testing.T) {
	h := newTestHost()
	p := &fakeIngest{id: "sensor1"}

	h.RegisterIngest(p.id, p)
	if p.startedN != 1 {
		t.Fatalf("expected Start called once, got %d", p.startedN)
	}

	h.DispatchState("temp.kitchen", 21.5, 1000)
	if len(p.states) != 1 || p.states[0].val != 21.5 {
		t.Fatalf("expected dispatched state, got %+v", p.states)
	}

	statuses := h.IngestStatuses()
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatalf("expected healthy status, got %+v", statuses)
	}
}

func TestHost_RegisterIngest_StartErrorMarksUnhealthyButStaysRegistered(t *testing.T) {
	h := newTestHost()
	p := &fakeIngest{id: "flaky", startErr: fmt.Errorf("connect failed")}

	h.RegisterIngest(p.id, p)

	statuses := h.IngestStatuses()
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("expected unhealthy status, got %+v", statuses)
	}

	// still dispatched to despite Start failure
	h.DispatchState("x", 1.0, 1000)
	if len(p.states) != 1 {
		t.Fatalf("expected dispatch to still reach unhealthy plugin, got %d states", len(p.states))
	}
}

func TestHost_RegisterIngest_ReregisterStopsPrevious(t *testing.T) {
	h := newTestHost()
	first := &fakeIngest{id: "dup"}
	second := &fakeIngest{id: "dup"}

	h.RegisterIngest("dup", first)
	h.RegisterIngest("dup", second)

	if first.stoppedN != 1 {
		t.Fatalf("expected previous plugin Stop called once, got %d", first.stoppedN)
	}
	if second.startedN != 1 {
		t.Fatalf("expected new plugin Start called once, got %d", second.startedN)
	}

	h.DispatchState("x", 1.0, 1000)
	if len(first.states) != 0 {
		t.Fatalf("expected previous plugin to receive no further dispatches")
	}
	if len(second.states) != 1 {
		t.Fatalf("expected new plugin to receive dispatch, got %d", len(second.states))
	}
}

func TestHost_UnregisterIngest_StopsAndRemoves(t *testing.T) {
	h := newTestHost()
	p := &fakeIngest{id: "gone"}
	h.RegisterIngest(p.id, p)
	h.UnregisterIngest(p.id)

	if p.stoppedN != 1 {
		t.Fatalf("expected Stop called on unregister, got %d", p.stoppedN)
	}
	if len(h.IngestStatuses()) != 0 {
		t.Fatalf("expected no registered ingest plugins after unregister")
	}
}

func TestHost_DispatchState_PanicIsolatedFromSiblings(t *testing.T) {
	h := newTestHost()
	bad := &fakeIngest{id: "bad", panicOn: true}
	good := &fakeIngest{id: "good"}

	h.RegisterIngest(bad.id, bad)
	h.RegisterIngest(good.id, good)

	h.DispatchState("x", 1.0, 1000)

	if len(good.states) != 1 {
		t.Fatalf("expected sibling plugin to still receive dispatch after panic, got %d", len(good.states))
	}
}

func TestHost_DispatchState_SkipsPluginsWithoutStateChangeCapability(t *testing.T) {
	h := newTestHost()
	bare := &bareIngest{id: "bare"}
	h.RegisterIngest(bare.id, bare)

	// must not panic or error: bareIngest has no OnStateChange
	h.DispatchState("x", 1.0, 1000)
}

func TestHost_Notify_DispatchesToRegisteredSinksAndIsolatesPanics(t *testing.T) {
	h := newTestHost()
	bad := &fakeNotify{id: "bad", panicOn: true}
	good := &fakeNotify{id: "good"}

	h.RegisterNotify(bad.id, bad)
	h.RegisterNotify(good.id, good)

	msgs := []hub.Message{{Ref: "m1"}}
	h.Notify(context.Background(), hub.EventDue, msgs)

	if len(good.events) != 1 || good.events[0] != hub.EventDue {
		t.Fatalf("expected notify sink to receive EventDue, got %+v", good.events)
	}
}

func TestHost_RegisterNotify_ReregisterStopsPrevious(t *testing.T) {
	h := newTestHost()
	first := &fakeNotify{id: "dup"}
	second := &fakeNotify{id: "dup"}

	h.RegisterNotify("dup", first)
	h.RegisterNotify("dup", second)

	if first.stoppedN != 1 {
		t.Fatalf("expected previous sink Stop called once, got %d", first.stoppedN)
	}

	h.Notify(context.Background(), hub.EventUpdated, nil)

	if len(first.events) != 0 {
		t.Fatalf("expected previous sink to receive no events after reregister")
	}
	if len(second.events) != 1 {
		t.Fatalf("expected new sink to receive the event, got %d", len(second.events))
	}
}

func TestHost_UnregisterNotify_StopsAndRemoves(t *testing.T) {
	h := newTestHost()
	p := &fakeNotify{id: "gone"}
	h.RegisterNotify(p.id, p)
	h.UnregisterNotify(p.id)

	if p.stoppedN != 1 {
		t.Fatalf("expected Stop called on unregister, got %d", p.stoppedN)
	}
	if len(h.NotifyStatuses()) != 0 {
		t.Fatalf("expected no registered notify plugins after unregister")
	}
}
