// Package notify implements the tick-driven notification scheduler:
// due/reminder/expiry evaluation with quiet-hours gating and jitter,
// dispatched to registered sinks. A single ticker sweeps the whole
// message set each interval rather than arming one timer per message,
// since every message (not just a handful of scheduled tasks) is a
// tick candidate.
package notify

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
	"github.com/nugget/msghub/internal/storeevents"
)

// Sink is the notify-plugin dispatch surface the scheduler calls into.
// pluginhost.Host is the single Sink; it implements this interface by
// fanning out to its registry of notify plugins with fault isolation, so
// the scheduler itself never needs to know about individual plugins.
type Sink interface {
	Notify(ctx context.Context, event hub.NotifyEvent, messages []hub.Message)
}

// Config configures a Scheduler.
type Config struct {
	TickInterval time.Duration
	QuietHours   *QuietHours
}

// Scheduler runs the due/reminder/expiry tick loop.
type Scheduler struct {
	store        *store.Store
	sink         Sink
	logger       *slog.Logger
	tickInterval time.Duration
	quietHours   *QuietHours

	randMu sync.Mutex
	rand   *rand.Rand

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	changes <-chan storeevents.Change
}

// New creates a Scheduler. sink may be nil during early wiring; Tick
// is then a no-op dispatch (messages are still expired/rescheduled,
// just never delivered).
func New(st *store.Store, sink Sink, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	return &Scheduler{
		store:        st,
		sink:         sink,
		logger:       logger,
		tickInterval: cfg.TickInterval,
		quietHours:   cfg.QuietHours,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:       make(chan struct{}),
	}
}

// SubscribeUpdates attaches the scheduler to a Store's change bus so
// lifecycle transitions made outside the tick loop (action execution,
// the rule engine) are surfaced to notify plugins as "updated" events.
// Call before Start.
func (s *Scheduler) SubscribeUpdates(bus *storeevents.Bus) {
	s.changes = bus.Subscribe(256)
}

// Start runs the tick loop (and, if SubscribeUpdates was called, the
// update-forwarding loop) in their own goroutines until ctx is canceled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx)

	if s.changes != nil {
		s.wg.Add(1)
		go s.updateLoop(ctx)
	}
}

// Stop halts both loops and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(time.Now())
		}
	}
}

func (s *Scheduler) updateLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case c, ok := <-s.changes:
			if !ok {
				return
			}
			if (c.Kind == hub.ChangePatch || c.Kind == hub.ChangeClose) && c.After != nil {
				s.dispatch([]dispatchBatch{{event: hub.EventUpdated, messages: []hub.Message{*c.After}}})
			}
		}
	}
}

// Tick runs one evaluation pass (exported so tests and admin commands
// can force a deterministic tick instead of waiting on the ticker).
func (s *Scheduler) Tick(now time.Time) {
	nowMs := now.UnixMilli()
	msgs := s.store.GetMessages()

	var expired []hub.Message
	var due []hub.Message

	for _, m := range msgs {
		if m.Lifecycle.State.Terminal() {
			continue
		}
		if m.Timing.ExpiresAt != nil && *m.Timing.ExpiresAt <= nowMs {
			expired = append(expired, m)
			continue
		}
		if m.Lifecycle.State != hub.StateOpen && m.Lifecycle.State != hub.StateSnoozed {
			continue
		}
		if m.Timing.NotifyAt == nil || *m.Timing.NotifyAt > nowMs {
			continue
		}
		due = append(due, m)
	}

	// Ordering guarantee: expired precedes due within a tick. Both batches
	// are collected into one ordered dispatch list rather than dispatched
	// independently, so the fire-and-forget goroutine below delivers them
	// to the sink in the guaranteed order instead of racing.
	sortByLevelDescNotifyAtAscRefAsc(expired)
	var batch []dispatchBatch
	for _, m := range expired {
		if s.expireMessage(m, nowMs) {
			batch = append(batch, dispatchBatch{event: hub.EventExpired, messages: []hub.Message{m}})
		}
	}

	var dispatchable []hub.Message
	for _, m := range due {
		if s.quietHours != nil && s.quietHours.shouldDefer(now, int(m.Level), s.tickInterval.Milliseconds()) {
			s.deferMessage(m, now, nowMs)
			continue
		}
		dispatchable = append(dispatchable, m)
	}

	sortByLevelDescNotifyAtAscRefAsc(dispatchable)
	if len(dispatchable) > 0 {
		batch = append(batch, dispatchBatch{event: hub.EventDue, messages: dispatchable})
		s.rescheduleAfterDue(dispatchable, nowMs)
	}

	s.dispatch(batch)
}

// dispatchBatch is one (event, messages) group emitted during a tick, in
// emission order.
type dispatchBatch struct {
	event    hub.NotifyEvent
	messages []hub.Message
}

// expireMessage transitions m to expired and reports whether the patch
// was applied (and so should be included in this tick's dispatch batch).
func (s *Scheduler) expireMessage(m hub.Message, nowMs int64) bool {
	_, err := s.store.UpdateMessage(m.Ref, store.Patch{
		Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateExpired)},
		Timing:    &store.TimingPatch{NotifyAt: store.Clear()},
		Now:       nowMs,
	})
	if err != nil {
		s.logger.Error("notify: expire patch rejected", "ref", m.Ref, "error", err)
		return false
	}
	return true
}

// deferMessage pushes a quiet-hours-gated message's notifyAt to the end
// of the quiet window plus jitter, without dispatch.
func (s *Scheduler) deferMessage(m hub.Message, now time.Time, nowMs int64) {
	target := s.quietHours.deferTarget(now, s.jitterMs())
	_, err := s.store.UpdateMessage(m.Ref, store.Patch{
		Timing: &store.TimingPatch{NotifyAt: store.Set(target.UnixMilli())},
		Now:    nowMs,
	})
	if err != nil {
		s.logger.Error("notify: quiet-hours defer patch rejected", "ref", m.Ref, "error", err)
	}
}

func (s *Scheduler) jitterMs() int64 {
	if s.quietHours == nil || s.quietHours.SpreadMs <= 0 {
		return 0
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Int63n(s.quietHours.SpreadMs)
}

// dispatch fans the batch out to the registered sink without blocking
// the tick loop (fire-and-forget; a slow sink never delays a tick). Batches
// within one call are delivered to the sink in order on a single
// goroutine, preserving the expired-before-due ordering guarantee
// without making the tick loop wait on a slow sink. Per-plugin fault
// isolation itself lives in pluginhost; this recover is defense in
// depth against a Sink that panics directly.
func (s *Scheduler) dispatch(batch []dispatchBatch) {
	if s.sink == nil || len(batch) == 0 {
		return
	}
	go func() {
		for _, b := range batch {
			s.dispatchOne(b.event, b.messages)
		}
	}()
}

func (s *Scheduler) dispatchOne(event hub.NotifyEvent, messages []hub.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notify: sink panicked", "event", event, "panic", r)
		}
	}()
	s.sink.Notify(context.Background(), event, messages)
}

// rescheduleAfterDue applies the post-dispatch reschedule rule:
// repeat via remindEvery, or clear notifyAt for a one-shot message.
func (s *Scheduler) rescheduleAfterDue(messages []hub.Message, nowMs int64) {
	for _, m := range messages {
		var timing store.TimingPatch
		if m.Timing.RemindEvery > 0 {
			timing.NotifyAt = store.Set(nowMs + m.Timing.RemindEvery)
		} else {
			timing.NotifyAt = store.Clear()
		}
		if _, err := s.store.UpdateMessage(m.Ref, store.Patch{Timing: &timing, Now: nowMs}); err != nil {
			s.logger.Error("notify: reschedule patch rejected", "ref", m.Ref, "error", err)
		}
	}
}

func sortByLevelDescNotifyAtAscRefAsc(msgs []hub.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Level != msgs[j].Level {
			return msgs[i].Level > msgs[j].Level
		}
		ni, nj := notifyAtOrMax(msgs[i]), notifyAtOrMax(msgs[j])
		if ni != nj {
			return ni < nj
		}
		return msgs[i].Ref < msgs[j].Ref
	})
}

func notifyAtOrMax(m hub.Message) int64 {
	if m.Timing.NotifyAt == nil {
		return int64(^uint64(0) >> 1)
	}
	return *m.Timing.NotifyAt
}

// Stats is the scheduler's contribution to admin.stats.get.
type Stats struct {
	TickIntervalMs    int64 `json:"tickIntervalMs"`
	QuietHoursEnabled bool  `json:"quietHoursEnabled"`
}

// StatsSnapshot reports the scheduler's current configuration.
func (s *Scheduler) StatsSnapshot() Stats {
	enabled := s.quietHours != nil && s.quietHours.enabled(s.tickInterval.Milliseconds())
	return Stats{TickIntervalMs: s.tickInterval.Milliseconds(), QuietHoursEnabled: enabled}
}
