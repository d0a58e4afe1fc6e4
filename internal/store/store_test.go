package store

import (
	"testing"
	"time"

	"github.com/nugget/msghub/internal/hub"
)

func newMsg(ref string) hub.Message {
	return hub.Message{
		Ref:   ref,
		Kind:  hub.KindStatus,
		Level: hub.LevelWarning,
		Lifecycle: hub.Lifecycle{
			State: hub.StateOpen,
		},
	}
}

func TestAddMessage_RejectsDuplicateRef(t *testing.T) {
	s := New(nil)
	ok, err := s.AddMessage(newMsg("a"))
	if !ok || err != nil {
		t.Fatalf("first add failed: ok=%v err=%v", ok, err)
	}
	ok, err = s.AddMessage(newMsg("a"))
	if ok || err != nil {
		t.Fatalf("duplicate add should return (false, nil), got ok=%v err=%v", ok, err)
	}
}

func TestAddMessage_RejectsBadInvariant(t *testing.T) {
	s := New(nil)
	bad := newMsg("a")
	bad.Level = hub.Level(999)
	ok, err := s.AddMessage(bad)
	if ok || err == nil {
		t.Fatalf("expected invariant rejection, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateMessage_UnknownRefReturnsFalse(t *testing.T) {
	s := New(nil)
	ok, err := s.UpdateMessage("nope", Patch{})
	if ok || err != nil {
		t.Fatalf("expected (false, nil) for unknown ref, got ok=%v err=%v", ok, err)
	}
}

func TestSnoozeRoundTrip(t *testing.T) {
	s := New(nil)
	m := newMsg("a")
	m.Level = hub.LevelWarning
	notifyAt := int64(1000)
	m.Timing.NotifyAt = &notifyAt
	m.Actions = []hub.Action{{ID: "s1", Type: hub.ActionSnooze}}
	if ok, err := s.AddMessage(m); !ok || err != nil {
		t.Fatalf("add failed: %v %v", ok, err)
	}

	forMs := int64(5000)
	newNotifyAt := int64(2000) + forMs
	ok, err := s.UpdateMessage("a", Patch{
		Lifecycle: &LifecyclePatch{State: SetState(hub.StateSnoozed)},
		Timing:    &TimingPatch{NotifyAt: Set(newNotifyAt)},
		Now:       2000,
	})
	if !ok || err != nil {
		t.Fatalf("update failed: %v %v", ok, err)
	}

	got, _ := s.GetMessageByRef("a")
	if got.Lifecycle.State != hub.StateSnoozed {
		t.Errorf("state = %v, want snoozed", got.Lifecycle.State)
	}
	if got.Timing.NotifyAt == nil || *got.Timing.NotifyAt != 7000 {
		t.Errorf("notifyAt = %v, want 7000", got.Timing.NotifyAt)
	}
}

func TestMetricsPatchSetAndDelete(t *testing.T) {
	s := New(nil)
	m := newMsg("a")
	s.AddMessage(m)

	s.UpdateMessage("a", Patch{Metrics: &MetricsPatch{Set: map[string]MetricValue{"temp": {Val: 21.5, Unit: "C"}}}})
	got, _ := s.GetMessageByRef("a")
	if v, ok := got.Metrics.Get("temp"); !ok {
		t.Fatal("expected temp metric to be set")
	} else if entry, ok := v.(map[string]any); !ok || entry["val"] != 21.5 {
		t.Errorf("unexpected metric entry: %#v", v)
	}

	s.UpdateMessage("a", Patch{Metrics: &MetricsPatch{Delete: []string{"temp"}}})
	got, _ = s.GetMessageByRef("a")
	if _, ok := got.Metrics.Get("temp"); ok {
		t.Fatal("expected temp metric to be deleted")
	}
}

func TestCompleteAfterCauseEliminated(t *testing.T) {
	s := New(nil)
	m := newMsg("a")
	notifyAt := int64(500)
	m.Timing.NotifyAt = &notifyAt
	s.AddMessage(m)

	ok, err := s.CompleteAfterCauseEliminated("a", "rule-engine", 9999)
	if !ok || err != nil {
		t.Fatalf("complete failed: %v %v", ok, err)
	}
	got, _ := s.GetMessageByRef("a")
	if got.Lifecycle.State != hub.StateClosed {
		t.Errorf("state = %v, want closed", got.Lifecycle.State)
	}
	if got.Timing.NotifyAt != nil {
		t.Errorf("notifyAt should be cleared, got %v", got.Timing.NotifyAt)
	}
	if got.Progress.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", got.Progress.Percentage)
	}
	if got.Progress.FinishedAt == nil || *got.Progress.FinishedAt != 9999 {
		t.Errorf("finishedAt = %v, want 9999", got.Progress.FinishedAt)
	}
}

func TestRemoveMessage(t *testing.T) {
	s := New(nil)
	s.AddMessage(newMsg("a"))
	if !s.RemoveMessage("a") {
		t.Fatal("expected remove to succeed")
	}
	if s.RemoveMessage("a") {
		t.Fatal("expected second remove to return false")
	}
}

func TestChangeEventsEmittedOncePerMutation(t *testing.T) {
	s := New(nil)
	ch := s.Subscribe(16)
	defer s.Unsubscribe(ch)

	s.AddMessage(newMsg("a"))
	s.UpdateMessage("a", Patch{Title: strPtr("hi")})
	s.RemoveMessage("a")

	var kinds []hub.ChangeKind
	timeout := time.After(time.Second)
	for len(kinds) < 3 {
		select {
		case c := <-ch:
			kinds = append(kinds, c.Kind)
		case <-timeout:
			t.Fatalf("timed out waiting for change events, got %v", kinds)
		}
	}
	want := []hub.ChangeKind{hub.ChangeCreate, hub.ChangePatch, hub.ChangeRemove}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("event[%d] = %v, want %v", i, kinds[i], k)
		}
	}
}

func TestQueryMessages_FilterAndPaginate(t *testing.T) {
	s := New(nil)
	for i := 0; i < 5; i++ {
		m := newMsg(string(rune('a' + i)))
		start := int64(100 - i)
		m.Timing.StartAt = &start
		s.AddMessage(m)
	}

	res := s.QueryMessages(Query{Page: 1, PageSize: 2})
	if res.Total != 5 {
		t.Fatalf("total = %d, want 5", res.Total)
	}
	if len(res.Items) != 2 {
		t.Fatalf("page size not respected: got %d items", len(res.Items))
	}
	if res.Pages != 3 {
		t.Fatalf("pages = %d, want 3", res.Pages)
	}
	// startAt desc means ref "a" (start=100) comes first.
	if res.Items[0].Ref != "a" {
		t.Errorf("expected highest startAt first, got ref %q", res.Items[0].Ref)
	}
}

func strPtr(s string) *string { return &s }
