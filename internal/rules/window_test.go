package rules

import "testing"

func TestWindow_AppendAndLast(t *testing.T) {
	w := NewWindow(4)
	w.Append(Observation{Ts: 1, Val: 10})
	w.Append(Observation{Ts: 2, Val: 20})

	last, ok := w.Last()
	if !ok || last.Val != 20 {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
	if w.Len() != 2 {
		t.Errorf("Len = %d, want 2", w.Len())
	}
}

func TestWindow_EvictsOldestWhenFull(t *testing.T) {
	w := NewWindow(3)
	for i := int64(1); i <= 5; i++ {
		w.Append(Observation{Ts: i, Val: float64(i)})
	}
	obs := w.Observations()
	if len(obs) != 3 {
		t.Fatalf("len = %d, want 3", len(obs))
	}
	if obs[0].Ts != 3 || obs[2].Ts != 5 {
		t.Errorf("observations = %+v, want ts 3,4,5", obs)
	}
}

func TestWindow_Since(t *testing.T) {
	w := NewWindow(10)
	for i := int64(1); i <= 5; i++ {
		w.Append(Observation{Ts: i * 1000, Val: float64(i)})
	}
	got := w.Since(3000)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Ts != 3000 {
		t.Errorf("first ts = %d, want 3000", got[0].Ts)
	}
}

func TestWindow_ContinuousSince(t *testing.T) {
	w := NewWindow(10)
	w.Append(Observation{Ts: 1000, Val: 5})
	w.Append(Observation{Ts: 2000, Val: 50})
	w.Append(Observation{Ts: 3000, Val: 60})
	w.Append(Observation{Ts: 4000, Val: 70})

	enteredAt, ok := w.ContinuousSince(func(v float64) bool { return v > 10 })
	if !ok || enteredAt != 2000 {
		t.Errorf("enteredAt = %d, %v, want 2000, true", enteredAt, ok)
	}
}

func TestWindow_ContinuousSince_NotCurrentlyMatching(t *testing.T) {
	w := NewWindow(10)
	w.Append(Observation{Ts: 1000, Val: 50})
	w.Append(Observation{Ts: 2000, Val: 5})

	_, ok := w.ContinuousSince(func(v float64) bool { return v > 10 })
	if ok {
		t.Error("expected ok=false when latest value doesn't match")
	}
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(4)
	w.Append(Observation{Ts: 1, Val: 1})
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", w.Len())
	}
	if _, ok := w.Last(); ok {
		t.Error("expected no Last after reset")
	}
}
