package notify

import (
	"testing"
	"time"
)

func TestInWindow_NoWrap(t *testing.T) {
	if !inWindow(10*60, 9*60, 17*60) {
		t.Error("10:00 should be in [09:00,17:00)")
	}
	if inWindow(8*60, 9*60, 17*60) {
		t.Error("08:00 should not be in [09:00,17:00)")
	}
}

func TestInWindow_Wrap(t *testing.T) {
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60}
	if !inWindow(22*60+30, q.StartMin, q.EndMin) {
		t.Error("22:30 should be in overnight window")
	}
	if !inWindow(3*60, q.StartMin, q.EndMin) {
		t.Error("03:00 should be in overnight window")
	}
	if inWindow(12*60, q.StartMin, q.EndMin) {
		t.Error("12:00 should not be in overnight window")
	}
}

func TestEnabled_DisabledWhenStartEqualsEnd(t *testing.T) {
	q := QuietHours{StartMin: 600, EndMin: 600}
	if q.enabled(2000) {
		t.Error("expected disabled when start==end")
	}
}

func TestEnabled_DisabledWhenFreeWindowUnder4Hours(t *testing.T) {
	// quiet window 21h, free window 3h < 4h
	q := QuietHours{StartMin: 0, EndMin: 21 * 60}
	if q.enabled(2000) {
		t.Error("expected disabled when free window < 4h")
	}
}

func TestEnabled_DisabledWhenSpreadExceedsFreeWindow(t *testing.T) {
	// quiet 22:00-06:00 (8h), free 16h = 57_600_000ms
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60, SpreadMs: 60_000_000}
	if q.enabled(2000) {
		t.Error("expected disabled when spread exceeds free window")
	}
}

func TestEnabled_DisabledWhenTickIntervalNonPositive(t *testing.T) {
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60}
	if q.enabled(0) {
		t.Error("expected disabled when tick interval is non-positive")
	}
}

func TestShouldDefer_QuietHoursDeferScenario(t *testing.T) {
	loc := time.UTC
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60, MaxLevel: 20, SpreadMs: 0}
	now := time.Date(2026, 3, 1, 22, 30, 0, 0, loc)

	if !q.shouldDefer(now, 20, 2000) {
		t.Error("level=20 at 22:30 should defer")
	}
	if q.shouldDefer(now, 30, 2000) {
		t.Error("level=30 at 22:30 should not defer")
	}
}

func TestNextWindowEnd_SameDay(t *testing.T) {
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60}
	now := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	end := q.nextWindowEnd(now)
	want := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Errorf("nextWindowEnd = %v, want %v", end, want)
	}
}

func TestDeferTarget_NoJitterWhenSpreadZero(t *testing.T) {
	q := QuietHours{StartMin: 22 * 60, EndMin: 6 * 60, SpreadMs: 0}
	now := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	target := q.deferTarget(now, 999)
	want := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Errorf("deferTarget = %v, want %v", target, want)
	}
}
