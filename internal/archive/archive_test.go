package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/msghub/internal/action"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/storeevents"
)

func newTestArchive(t *testing.T, cfg Config) *Archive {
	t.Helper()
	if cfg.BaseDir == "" {
		cfg.BaseDir = t.TempDir()
	}
	if cfg.StrategyLock == "" {
		cfg.StrategyLock = LockNative
	}
	a, err := New(cfg, NewMemHostStorage(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNew_SelectsNativeByDefault(t *testing.T) {
	a := newTestArchive(t, Config{})
	if a.EffectiveStrategy() != LockNative {
		t.Errorf("effective = %v, want native", a.EffectiveStrategy())
	}
}

func TestAppendAndReadBack(t *testing.T) {
	a := newTestArchive(t, Config{})
	ctx := context.Background()

	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).UnixMilli()
	e := Entry{Event: "create", Ref: "ref-1", Ts: ts}
	if err := a.Append(ctx, "rules", "ref-1", e); err != nil {
		t.Fatalf("append: %v", err)
	}

	lines, err := a.ReadLines(ctx, "rules", "ref-1", "20260115")
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1", lines)
	}
	if !strings.Contains(lines[0], `"event":"create"`) {
		t.Errorf("line = %q, missing event field", lines[0])
	}
}

func TestAppendTwiceProducesTwoLines(t *testing.T) {
	a := newTestArchive(t, Config{})
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).UnixMilli()

	a.Append(ctx, "rules", "ref-1", Entry{Event: "create", Ref: "ref-1", Ts: ts})
	a.Append(ctx, "rules", "ref-1", Entry{Event: "patch", Ref: "ref-1", Ts: ts + 1000})

	lines, err := a.ReadLines(ctx, "rules", "ref-1", "20260115")
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2", lines)
	}
}

func TestRecordAudit(t *testing.T) {
	a := newTestArchive(t, Config{})
	a.RecordAudit(action.AuditEntry{
		Ref: "ref-1", ActionID: "a1", Actor: "user", Ts: time.Now().UnixMilli(),
		Ok: true, Noop: false, Reason: "ok",
	})

	date := time.Now().UTC().Format("20060102")
	lines, err := a.ReadLines(context.Background(), "action", "ref-1", date)
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], `"event":"action"`) {
		t.Fatalf("lines = %v", lines)
	}
}

func TestHandleChangeViaBus(t *testing.T) {
	a := newTestArchive(t, Config{})
	bus := storeevents.New()
	a.Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(cancel)

	msg := &hub.Message{Ref: "ref-2", Origin: "mqttingest"}
	bus.Publish(storeevents.Change{Ref: "ref-2", Kind: hub.ChangeCreate, After: msg, Ts: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lines, _ := a.ReadLines(ctx, "mqttingest", "ref-2", time.Now().UTC().Format("20060102"))
		if len(lines) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected change event to be archived within deadline")
}

func TestRetryNativeReportsRestartRequired(t *testing.T) {
	a := newTestArchive(t, Config{})
	next, restart := a.RetryNative(context.Background())
	if next != LockNative || restart {
		t.Errorf("retryNative = %v, %v, want native, false (already native)", next, restart)
	}
}

func TestForceIobrokerReportsRestartRequired(t *testing.T) {
	a := newTestArchive(t, Config{})
	next, restart := a.ForceIobroker()
	if next != LockIobroker || !restart {
		t.Errorf("forceIobroker = %v, %v, want iobroker, true", next, restart)
	}
}

func TestFallsBackToHostStorageWhenNativeUnwritable(t *testing.T) {
	// A regular file in place of the base directory makes MkdirAll fail
	// with ENOTDIR regardless of the test process's privileges.
	blocked := filepath.Join(t.TempDir(), "blocked-file")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg := Config{BaseDir: filepath.Join(blocked, "archive"), StrategyLock: LockNative}
	mem := NewMemHostStorage()
	a, err := New(cfg, mem, nil)
	if err != nil {
		t.Fatalf("New: %v (expected fallback, not error)", err)
	}
	t.Cleanup(a.Close)
	if a.EffectiveStrategy() != LockIobroker {
		t.Errorf("effective = %v, want iobroker fallback", a.EffectiveStrategy())
	}
}

func TestRunRetentionDedupesOldFiles(t *testing.T) {
	a := newTestArchive(t, Config{KeepPreviousWeeks: 4})
	ctx := context.Background()

	oldTs := time.Now().UTC().AddDate(0, 0, -60).UnixMilli()
	e := Entry{Event: "patch", Ref: "ref-3", Ts: oldTs}
	a.Append(ctx, "rules", "ref-3", e)
	a.Append(ctx, "rules", "ref-3", e) // duplicate content

	report := a.RunRetention(ctx)
	if report.FilesDeduped != 1 || report.DuplicateLines != 1 {
		t.Fatalf("report = %+v, want 1 file deduped with 1 duplicate", report)
	}

	date := time.UnixMilli(oldTs).UTC().Format("20060102")
	lines, err := a.ReadLines(ctx, "rules", "ref-3", date)
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines after dedup = %v, want 1", lines)
	}
}

func TestStatsSnapshot(t *testing.T) {
	a := newTestArchive(t, Config{})
	stats := a.StatsSnapshot()
	if stats.EffectiveStrategy != LockNative {
		t.Errorf("stats.EffectiveStrategy = %v, want native", stats.EffectiveStrategy)
	}
}
