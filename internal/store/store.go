// Package store implements the message hub's single write path for all
// message state: a mutex-guarded map with upsert semantics plus deep-merge
// patches, invariant enforcement, and change-event emission to subscribers
// via internal/storeevents.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/storeevents"
)

// Store holds every message by ref and is the sole mutator of message
// state. Reads return copies; subscribers receive change events
// asynchronously and must not call back into Store synchronously.
type Store struct {
	mu       sync.RWMutex
	messages map[string]hub.Message
	bus      *storeevents.Bus
	logger   *slog.Logger
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		messages: make(map[string]hub.Message),
		bus:      storeevents.New(),
		logger:   logger,
	}
}

// Subscribe returns a channel of change events. Callers (Archive,
// Scheduler) must eventually Unsubscribe.
func (s *Store) Subscribe(bufSize int) <-chan storeevents.Change {
	return s.bus.Subscribe(bufSize)
}

// Bus exposes the underlying change bus for subsystems whose subscribe
// calls take a *storeevents.Bus directly (Archive.Subscribe,
// Scheduler.SubscribeUpdates) rather than a bufSize.
func (s *Store) Bus() *storeevents.Bus {
	return s.bus
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(ch <-chan storeevents.Change) {
	s.bus.Unsubscribe(ch)
}

// AddMessage inserts m, failing if m.Ref already exists. Returns an
// invariant-violation error if m fails ValidateInvariants; returns
// (false, nil) if the ref already exists (unknown/dup refs return false,
// not an error).
func (s *Store) AddMessage(m hub.Message) (bool, error) {
	if err := hub.ValidateInvariants(&m); err != nil {
		return false, hub.Wrap(hub.CodeBadRequest, "invariant violation", err)
	}

	s.mu.Lock()
	if _, exists := s.messages[m.Ref]; exists {
		s.mu.Unlock()
		return false, nil
	}
	now := nowMs()
	if m.Lifecycle.StateChangedAt == 0 {
		m.Lifecycle.StateChangedAt = now
	}
	s.messages[m.Ref] = m
	after := m.Clone()
	s.mu.Unlock()

	s.bus.Publish(storeevents.Change{Ref: m.Ref, Kind: hub.ChangeCreate, After: &after, Ts: time.UnixMilli(now)})
	return true, nil
}

// AddOrUpdateMessage inserts m if absent, else fully replaces the existing
// message with m (an upsert, not a field-level merge).
func (s *Store) AddOrUpdateMessage(m hub.Message) (bool, error) {
	if err := hub.ValidateInvariants(&m); err != nil {
		return false, hub.Wrap(hub.CodeBadRequest, "invariant violation", err)
	}

	s.mu.Lock()
	existing, had := s.messages[m.Ref]
	var before *hub.Message
	if had {
		b := existing.Clone()
		before = &b
	}
	now := nowMs()
	if m.Lifecycle.StateChangedAt == 0 {
		m.Lifecycle.StateChangedAt = now
	}
	s.messages[m.Ref] = m
	after := m.Clone()
	s.mu.Unlock()

	kind := hub.ChangeCreate
	if had {
		kind = hub.ChangePatch
	}
	s.bus.Publish(storeevents.Change{Ref: m.Ref, Kind: kind, Before: before, After: &after, Ts: time.UnixMilli(now)})
	return true, nil
}

// UpdateMessage deep-merges patch into the message identified by ref.
// Returns false if ref is unknown; returns an error only on an invariant
// violation caused by applying the patch (the mutation is rejected in that
// case and the stored message is left unchanged).
func (s *Store) UpdateMessage(ref string, patch Patch) (bool, error) {
	now := patch.Now
	if now == 0 {
		now = nowMs()
	}

	s.mu.Lock()
	existing, ok := s.messages[ref]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	before := existing.Clone()
	updated := applyPatch(existing, patch, now)
	if err := hub.ValidateInvariants(&updated); err != nil {
		s.mu.Unlock()
		return false, hub.Wrap(hub.CodeBadRequest, "invariant violation applying patch", err)
	}
	s.messages[ref] = updated
	after := updated.Clone()
	s.mu.Unlock()

	s.bus.Publish(storeevents.Change{Ref: ref, Kind: hub.ChangePatch, Before: &before, After: &after, Ts: time.UnixMilli(now)})
	return true, nil
}

// applyPatch performs the deep-merge: scalars
// replace, nested objects merge field-by-field, metrics/progress use their
// dedicated set/delete forms, arrays replace wholesale.
func applyPatch(m hub.Message, p Patch, now int64) hub.Message {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.TextRecovered != nil {
		m.TextRecovered = *p.TextRecovered
	}
	if p.Icon != nil {
		m.Icon = *p.Icon
	}
	if p.Level != nil {
		m.Level = *p.Level
	}
	if p.Actions != nil {
		m.Actions = p.Actions
	}

	if lc := p.Lifecycle; lc != nil {
		if lc.State.Present {
			m.Lifecycle.State = lc.State.Value
			m.Lifecycle.StateChangedAt = now
			if p.Actor != "" {
				m.Lifecycle.StateChangedBy = p.Actor
			}
		}
	}

	if t := p.Timing; t != nil {
		applyInt64Field(&m.Timing.StartAt, t.StartAt)
		applyInt64Field(&m.Timing.NotifyAt, t.NotifyAt)
		applyInt64Field(&m.Timing.TimeBudget, t.TimeBudget)
		applyInt64Field(&m.Timing.DueAt, t.DueAt)
		applyInt64Field(&m.Timing.ExpiresAt, t.ExpiresAt)
		if t.RemindEvery != nil {
			m.Timing.RemindEvery = *t.RemindEvery
		}
		if t.Cooldown != nil {
			m.Timing.Cooldown = *t.Cooldown
		}
	}

	if mp := p.Metrics; mp != nil {
		for k, v := range mp.Set {
			m.Metrics.Set(k, map[string]any{"val": v.Val, "unit": v.Unit, "ts": now})
		}
		for _, k := range mp.Delete {
			m.Metrics.Delete(k)
		}
	}

	if pp := p.Progress; pp != nil {
		if pp.Percentage != nil {
			m.Progress.Percentage = *pp.Percentage
		}
		applyInt64Field(&m.Progress.StartedAt, pp.StartedAt)
		applyInt64Field(&m.Progress.FinishedAt, pp.FinishedAt)
	}

	return m
}

// CompleteAfterCauseEliminated closes ref: sets state=closed, clears
// notifyAt, sets progress to 100%/finishedAt.
func (s *Store) CompleteAfterCauseEliminated(ref string, actor string, finishedAt int64) (bool, error) {
	hundred := 100
	patch := Patch{
		Lifecycle: &LifecyclePatch{State: SetState(hub.StateClosed)},
		Timing:    &TimingPatch{NotifyAt: Clear()},
		Progress:  &ProgressPatch{Percentage: &hundred, FinishedAt: Set(finishedAt)},
		Actor:     actor,
		Now:       finishedAt,
	}
	ok, err := s.UpdateMessage(ref, patch)
	if !ok || err != nil {
		return ok, err
	}

	s.mu.Lock()
	m, exists := s.messages[ref]
	if !exists {
		s.mu.Unlock()
		return true, nil
	}
	after := m.Clone()
	s.mu.Unlock()
	s.bus.Publish(storeevents.Change{Ref: ref, Kind: hub.ChangeClose, After: &after, Ts: time.UnixMilli(finishedAt)})
	return true, nil
}

// RemoveMessage deletes ref from the store. Returns false if ref was unknown.
func (s *Store) RemoveMessage(ref string) bool {
	s.mu.Lock()
	existing, ok := s.messages[ref]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.messages, ref)
	before := existing.Clone()
	s.mu.Unlock()

	s.bus.Publish(storeevents.Change{Ref: ref, Kind: hub.ChangeRemove, Before: &before, Ts: time.Now()})
	return true
}

// GetMessageByRef returns a copy of the message, and whether it was found.
func (s *Store) GetMessageByRef(ref string) (hub.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[ref]
	if !ok {
		return hub.Message{}, false
	}
	return m.Clone(), true
}

// GetMessages returns a copy of every message, in no particular order.
func (s *Store) GetMessages() []hub.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hub.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	return out
}

func nowMs() int64 { return time.Now().UnixMilli() }

// sortByStartAtDescRefAsc gives queryMessages its stable order:
// by timing.startAt desc, tie-break by ref.
func sortByStartAtDescRefAsc(msgs []hub.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ai, aj := msgs[i].Timing.StartAt, msgs[j].Timing.StartAt
		vi, vj := int64(0), int64(0)
		if ai != nil {
			vi = *ai
		}
		if aj != nil {
			vj = *aj
		}
		if vi != vj {
			return vi > vj
		}
		return msgs[i].Ref < msgs[j].Ref
	})
}
