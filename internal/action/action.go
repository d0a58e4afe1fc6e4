// Package action executes whitelisted workflow actions against messages:
// ack, close, delete, snooze, gated by the policy matrix, plus
// non-core types (open/link/custom) accepted as audited no-ops.
package action

import (
	"log/slog"
	"time"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/store"
)

// Auditor receives one audit entry per Execute call. The archive package
// implements this; action depends only on the interface to avoid an
// import cycle (archive also audits Store changes it observes directly).
type Auditor interface {
	RecordAudit(entry AuditEntry)
}

// AuditEntry is the audit record appended to the archive for every
// Execute call, whether it succeeded, was blocked, or no-opped. AuditID
// identifies this record itself, so two audits for the same ref at the
// same millisecond stay distinguishable in the journal.
type AuditEntry struct {
	AuditID  string
	Ref      string
	ActionID string
	Actor    string
	Ts       int64
	Ok       bool
	Noop     bool
	Reason   string
}

// Input is the Execute contract.
type Input struct {
	Ref         string
	ActionID    string
	Actor       string
	Payload     map[string]any
	SnoozeForMs int64
	Now         int64 // epoch ms; defaults to time.Now() if zero
}

// policyMatrix encodes which (state, type) pairs are permitted.
var policyMatrix = map[hub.LifecycleState]map[hub.ActionType]bool{
	hub.StateOpen: {
		hub.ActionAck: true, hub.ActionClose: true, hub.ActionDelete: true, hub.ActionSnooze: true,
	},
	hub.StateAcked: {
		hub.ActionAck: false, hub.ActionClose: true, hub.ActionDelete: true, hub.ActionSnooze: false,
	},
	hub.StateSnoozed: {
		hub.ActionAck: true, hub.ActionClose: true, hub.ActionDelete: true, hub.ActionSnooze: false,
	},
}

// Executor applies workflow actions to Store-resident messages.
type Executor struct {
	store   *store.Store
	auditor Auditor
	logger  *slog.Logger
}

// New creates an Executor. auditor may be nil (audit entries are dropped,
// useful in tests that don't need the archive).
func New(st *store.Store, auditor Auditor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: st, auditor: auditor, logger: logger}
}

// Execute runs one workflow action. It never panics; every outcome is
// reported via the bool return plus an audit entry.
func (e *Executor) Execute(in Input) bool {
	now := in.Now
	if now == 0 {
		now = time.Now().UnixMilli()
	}

	msg, ok := e.store.GetMessageByRef(in.Ref)
	if !ok {
		e.audit(in, now, false, false, "message_not_found")
		return false
	}

	act := msg.FindAction(in.ActionID)
	if act == nil {
		e.audit(in, now, false, false, "not_allowed")
		return false
	}

	if !act.Type.Valid() {
		e.audit(in, now, false, false, "not_allowed")
		return false
	}

	if !act.Type.IsCore() {
		e.audit(in, now, true, false, "non_core")
		return true
	}

	if ok, noop := e.idempotentShortCircuit(msg, act.Type); ok {
		e.audit(in, now, true, noop, "noop")
		return true
	}

	allowed := policyMatrix[msg.Lifecycle.State][act.Type]
	if !allowed {
		e.audit(in, now, false, false, "blocked_by_policy")
		return false
	}

	patch, err := e.buildPatch(in, act.Type, now)
	if err != nil {
		e.audit(in, now, false, false, err.Error())
		return false
	}

	applied, updateErr := e.store.UpdateMessage(in.Ref, *patch)
	if updateErr != nil || !applied {
		reason := "store_rejected"
		if updateErr != nil {
			reason = updateErr.Error()
		}
		e.audit(in, now, false, false, reason)
		return false
	}

	e.audit(in, now, true, false, "ok")
	return true
}

// idempotentShortCircuit reports whether act would be a no-op given msg's
// current state (acking an already-acked message with no pending notify
// short-circuits).
func (e *Executor) idempotentShortCircuit(msg hub.Message, t hub.ActionType) (shortCircuit bool, noop bool) {
	if t == hub.ActionAck && msg.Lifecycle.State == hub.StateAcked && msg.Timing.NotifyAt == nil {
		return true, true
	}
	return false, false
}

func (e *Executor) buildPatch(in Input, t hub.ActionType, now int64) (*store.Patch, error) {
	switch t {
	case hub.ActionAck:
		return &store.Patch{
			Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateAcked)},
			Timing:    &store.TimingPatch{NotifyAt: store.Clear()},
			Actor:     in.Actor,
			Now:       now,
		}, nil
	case hub.ActionClose:
		return &store.Patch{
			Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateClosed)},
			Timing:    &store.TimingPatch{NotifyAt: store.Clear()},
			Actor:     in.Actor,
			Now:       now,
		}, nil
	case hub.ActionDelete:
		return &store.Patch{
			Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateDeleted)},
			Timing:    &store.TimingPatch{NotifyAt: store.Clear()},
			Actor:     in.Actor,
			Now:       now,
		}, nil
	case hub.ActionSnooze:
		forMs := in.SnoozeForMs
		if forMs == 0 {
			if v, ok := in.Payload["forMs"]; ok {
				if f, ok := toInt64(v); ok {
					forMs = f
				}
			}
		}
		if forMs <= 0 {
			return nil, errInvalidSnooze
		}
		return &store.Patch{
			Lifecycle: &store.LifecyclePatch{State: store.SetState(hub.StateSnoozed)},
			Timing:    &store.TimingPatch{NotifyAt: store.Set(now + forMs)},
			Actor:     in.Actor,
			Now:       now,
		}, nil
	default:
		return nil, errUnsupportedAction
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (e *Executor) audit(in Input, now int64, ok, noop bool, reason string) {
	if e.auditor == nil {
		return
	}
	e.auditor.RecordAudit(AuditEntry{
		AuditID: hub.NewID(),
		Ref: in.Ref, ActionID: in.ActionID, Actor: in.Actor,
		Ts: now, Ok: ok, Noop: noop, Reason: reason,
	})
}
