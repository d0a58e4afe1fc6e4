package store

import "github.com/nugget/msghub/internal/hub"

// Int64Field is a tri-state patch field for a nullable int64: Present=false
// means "leave untouched"; Present=true with Value==nil means "clear to
// null"; Present=true with Value!=nil means "set". Go has no first-class
// optional-int, so patch fields track presence explicitly rather than
// overloading zero, since Timing's fields are individually nullable.
type Int64Field struct {
	Present bool
	Value   *int64
}

// Set returns an Int64Field that sets the field to v.
func Set(v int64) Int64Field { return Int64Field{Present: true, Value: &v} }

// Clear returns an Int64Field that clears the field to null.
func Clear() Int64Field { return Int64Field{Present: true, Value: nil} }

// MetricValue is one entry written via Patch.Metrics.Set.
type MetricValue struct {
	Val  float64
	Unit string
}

// MetricsPatch is the `metrics{set, delete}` patch form.
type MetricsPatch struct {
	Set    map[string]MetricValue
	Delete []string
}

// ProgressPatch patches Message.Progress.
type ProgressPatch struct {
	Percentage *int
	StartedAt  Int64Field
	FinishedAt Int64Field
}

// LifecyclePatch patches Message.Lifecycle.
type LifecyclePatch struct {
	State LifecycleStateField
}

// LifecycleStateField is present/absent for the lifecycle.state field.
type LifecycleStateField struct {
	Present bool
	Value   hub.LifecycleState
}

// SetState returns a LifecycleStateField that sets the state to s.
func SetState(s hub.LifecycleState) LifecycleStateField {
	return LifecycleStateField{Present: true, Value: s}
}

// TimingPatch patches Message.Timing field-by-field.
type TimingPatch struct {
	StartAt     Int64Field
	NotifyAt    Int64Field
	RemindEvery *int64
	Cooldown    *int64
	TimeBudget  Int64Field
	DueAt       Int64Field
	ExpiresAt   Int64Field
}

// Patch is the deep-merge patch submitted to UpdateMessage.
// Scalar fields replace; Lifecycle/Timing merge per-field; Metrics/Progress
// use their dedicated set/delete forms. Actor/now are supplied separately
// by the caller so the Store can stamp stateChangedAt/stateChangedBy and
// metric timestamps consistently.
type Patch struct {
	Title         *string
	Text          *string
	TextRecovered *string
	Icon          *string
	Level         *hub.Level
	// Actions, when non-nil, wholesale-replaces Message.Actions (arrays
	// replace rather than merge). Callers that want an idempotent
	// upsert of a single action build the new slice themselves first.
	Actions []hub.Action

	Lifecycle *LifecyclePatch
	Timing    *TimingPatch
	Metrics   *MetricsPatch
	Progress  *ProgressPatch

	Actor string
	Now   int64
}

func applyInt64Field(dst **int64, f Int64Field) {
	if !f.Present {
		return
	}
	if f.Value == nil {
		*dst = nil
		return
	}
	v := *f.Value
	*dst = &v
}
