package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nugget/msghub/internal/action"
	"github.com/nugget/msghub/internal/opqueue"
	"github.com/nugget/msghub/internal/storeevents"
)

// StrategyLock mirrors config.ArchiveConfig.StrategyLock: which backend
// the operator has pinned the archive to.
type StrategyLock string

const (
	LockNative   StrategyLock = "native"
	LockIobroker StrategyLock = "iobroker"
)

// Config configures one Archive instance.
type Config struct {
	BaseDir           string
	FileExtension     string // default "jsonl"
	StrategyLock      StrategyLock
	KeepPreviousWeeks int
	MaxIdleWorkers    int // opqueue LRU cap, default 64
}

// Entry is one JSONL line. Event, Ref, and Ts are always present; the
// remaining fields appear only on the entry kinds that carry them.
type Entry struct {
	Event  string `json:"event"`
	Ref    string `json:"ref"`
	Ts     int64  `json:"ts"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`

	AuditID  string `json:"auditId,omitempty"`
	ActionID string `json:"actionId,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Ok       *bool  `json:"ok,omitempty"`
	Noop     *bool  `json:"noop,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Archive is the append-only durable journal. It subscribes
// to Store change events, implements action.Auditor for workflow action
// audits, and serializes all writes for a given file through a per-path
// FIFO queue.
type Archive struct {
	cfg    Config
	logger *slog.Logger

	queue *opqueue.Queue

	mu        sync.RWMutex
	native    *nativeBackend
	host      *hostBackend
	effective StrategyLock

	changes <-chan storeevents.Change
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates an Archive and selects its initial backend per cfg's
// StrategyLock, probing native and falling back to host storage on
// failure. hostStorage may be nil if StrategyLock is native
// and the caller never expects a fallback to be exercised; it must be
// non-nil if StrategyLock starts as iobroker or a native probe failure
// is possible.
func New(cfg Config, hostStorage HostStorage, logger *slog.Logger) (*Archive, error) {
	if cfg.FileExtension == "" {
		cfg.FileExtension = "jsonl"
	}
	if cfg.MaxIdleWorkers <= 0 {
		cfg.MaxIdleWorkers = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Archive{
		cfg:    cfg,
		logger: logger,
		queue:  opqueue.New(cfg.MaxIdleWorkers),
		native: newNativeBackend(),
		stop:   make(chan struct{}),
	}
	if hostStorage != nil {
		a.host = newHostBackend(hostStorage)
	}

	if err := a.selectBackend(context.Background()); err != nil {
		return nil, err
	}

	return a, nil
}

// selectBackend probes per cfg.StrategyLock and pins a.effective.
func (a *Archive) selectBackend(ctx context.Context) error {
	probeDir := filepath.Join(a.cfg.BaseDir, ".probe-dir")

	switch a.cfg.StrategyLock {
	case LockIobroker:
		if a.host == nil {
			return fmt.Errorf("archive: strategy lock is iobroker but no host storage was provided")
		}
		a.setEffective(LockIobroker)
		return nil
	default: // native, or unset
		if err := probe(ctx, a.native, probeDir); err != nil {
			a.logger.Warn("archive: native backend probe failed, falling back to host storage",
				"error", err)
			if a.host == nil {
				return fmt.Errorf("archive: native probe failed and no host storage fallback available: %w", err)
			}
			a.setEffective(LockIobroker)
			return nil
		}
		a.setEffective(LockNative)
		return nil
	}
}

func (a *Archive) setEffective(s StrategyLock) {
	a.mu.Lock()
	a.effective = s
	a.mu.Unlock()
}

// EffectiveStrategy returns the currently pinned backend.
func (a *Archive) EffectiveStrategy() StrategyLock {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.effective
}

// ConfiguredStrategy returns the operator-configured lock (admin.archive.status),
// as distinct from EffectiveStrategy which reflects what probing actually
// selected.
func (a *Archive) ConfiguredStrategy() StrategyLock {
	return a.cfg.StrategyLock
}

// RetryNative re-probes the native backend on demand (admin.archive.retryNative).
// A strategy change only takes effect on next startup; this re-probes and
// reports what the next startup would select without switching the live
// backend.
func (a *Archive) RetryNative(ctx context.Context) (nextLock StrategyLock, restartRequired bool) {
	probeDir := filepath.Join(a.cfg.BaseDir, ".probe-dir")
	if err := probe(ctx, a.native, probeDir); err != nil {
		a.logger.Warn("archive: retryNative probe failed", "error", err)
		return a.EffectiveStrategy(), false
	}
	return LockNative, a.EffectiveStrategy() != LockNative
}

// ForceIobroker reports that the next startup should pin the host-storage
// backend regardless of probe outcome.
func (a *Archive) ForceIobroker() (nextLock StrategyLock, restartRequired bool) {
	return LockIobroker, a.EffectiveStrategy() != LockIobroker
}

func (a *Archive) backend() Backend {
	if a.EffectiveStrategy() == LockIobroker {
		return a.host
	}
	return a.native
}

// Subscribe attaches the archive to a Store's change bus. Call once
// during wiring; Run must be called afterward to start consuming.
func (a *Archive) Subscribe(bus *storeevents.Bus) {
	a.changes = bus.Subscribe(256)
}

// Run consumes change events until ctx is canceled. It is meant to be
// called in its own goroutine from wiring code.
func (a *Archive) Run(ctx context.Context) {
	a.wg.Add(1)
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case c, ok := <-a.changes:
			if !ok {
				return
			}
			a.handleChange(ctx, c)
		}
	}
}

// Close stops Run and waits for in-flight appends to finish enqueueing.
func (a *Archive) Close() {
	close(a.stop)
	a.wg.Wait()
}

func (a *Archive) handleChange(ctx context.Context, c storeevents.Change) {
	origin := "unknown"
	if c.After != nil {
		origin = orDefault(c.After.Origin, origin)
	} else if c.Before != nil {
		origin = orDefault(c.Before.Origin, origin)
	}

	e := Entry{Event: string(c.Kind), Ref: c.Ref, Ts: c.Ts.UnixMilli(), Before: c.Before, After: c.After}
	if err := a.Append(ctx, origin, c.Ref, e); err != nil {
		a.logger.Error("archive: append failed", "ref", c.Ref, "error", err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// RecordAudit implements action.Auditor: every workflow action outcome,
// success or failure, is appended to the journal under the "action"
// source.
func (a *Archive) RecordAudit(entry action.AuditEntry) {
	ok, noop := entry.Ok, entry.Noop
	e := Entry{
		Event: "action", Ref: entry.Ref, Ts: entry.Ts,
		AuditID: entry.AuditID, ActionID: entry.ActionID, Actor: entry.Actor,
		Ok: &ok, Noop: &noop, Reason: entry.Reason,
	}
	if err := a.Append(context.Background(), "action", entry.Ref, e); err != nil {
		a.logger.Error("archive: audit append failed", "ref", entry.Ref, "error", err)
	}
}

var _ action.Auditor = (*Archive)(nil)

// Append serializes e to JSON and appends it, with a trailing newline,
// to the file for (source, ref, today), via the per-path operation
// queue so concurrent appenders to the same file never interleave
// mid-line.
func (a *Archive) Append(ctx context.Context, source, ref string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}
	data = append(data, '\n')

	date := time.UnixMilli(e.Ts).UTC().Format("20060102")
	path := messagePath(a.cfg.BaseDir, source, ref, date, a.cfg.FileExtension)
	dir := filepath.Dir(path)

	return a.queue.Enqueue(ctx, path, func(ctx context.Context) error {
		b := a.backend()
		if err := b.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		return b.AppendFile(ctx, path, data)
	})
}

// ReadLines returns the raw JSONL lines for (source, ref, date); parsing
// is the caller's responsibility.
func (a *Archive) ReadLines(ctx context.Context, source, ref, dateYYYYMMDD string) ([]string, error) {
	path := messagePath(a.cfg.BaseDir, source, ref, dateYYYYMMDD, a.cfg.FileExtension)
	data, err := a.backend().ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Stats is the archive-relevant slice of admin.stats.get.
type Stats struct {
	EffectiveStrategy StrategyLock `json:"effectiveStrategy"`
	PendingFlushes    int          `json:"pendingFlushes"`
}

// StatsSnapshot reports the archive's contribution to admin.stats.get.
func (a *Archive) StatsSnapshot() Stats {
	return Stats{
		EffectiveStrategy: a.EffectiveStrategy(),
		PendingFlushes:    a.queue.Len(),
	}
}
