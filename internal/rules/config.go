package rules

import "github.com/nugget/msghub/internal/hub"

// Kind identifies one of the six rule detection algorithms.
type Kind string

const (
	KindThreshold   Kind = "threshold"
	KindFreshness   Kind = "freshness"
	KindCycle       Kind = "cycle"
	KindTriggered   Kind = "triggered"
	KindNonSettling Kind = "nonSettling"
	KindSession     Kind = "session"
)

// Policy controls how a target message closes when its cause goes
// normal.
type Policy struct {
	ResetOnNormal bool  `json:"resetOnNormal"`
	CooldownMs    int64 `json:"cooldownMs"`
}

// Message is the fully-specified message template a preset resolves to;
// the TargetMessageWriter materializes new messages from it and patches
// only the rule-engine-owned fields afterwards.
type Message struct {
	Kind          hub.Kind     `json:"kind"`
	Level         hub.Level    `json:"level"`
	Origin        string       `json:"origin"`
	Title         string       `json:"title"`
	Text          string       `json:"text"`
	TextRecovered string       `json:"textRecovered,omitempty"`
	Icon          string       `json:"icon,omitempty"`
	Details       hub.Details  `json:"details"`
	Actions       []hub.Action `json:"actions,omitempty"`
	Audience      hub.Audience `json:"audience"`
	RemindEveryMs int64        `json:"remindEveryMs,omitempty"`
}

// ThresholdParams configures the threshold rule kind: val enters a
// forbidden region (lt/gt/outside/eq) for at least MinDurationMs before
// the cause is considered active; HysteresisMargin widens the boundary
// the value must cross back over before the cause is considered normal
// again, preventing rapid open/close flapping at the edge.
type ThresholdParams struct {
	Lt               *float64 `json:"lt,omitempty"`
	Gt               *float64 `json:"gt,omitempty"`
	OutsideLo        *float64 `json:"outsideLo,omitempty"`
	OutsideHi        *float64 `json:"outsideHi,omitempty"`
	Eq               *float64 `json:"eq,omitempty"`
	MinDurationMs    int64    `json:"minDurationMs"`
	HysteresisMargin float64  `json:"hysteresisMargin,omitempty"`
}

// FreshnessParams configures the freshness rule kind: the cause is active
// whenever the time since the last observation exceeds the threshold.
type FreshnessParams struct {
	ThresholdMs int64 `json:"thresholdMs"`
}

// CycleParams configures the cycle rule kind: a monotonically-advancing
// counter must either advance by Period within TimeMs of its last reset
// mark, or the cause becomes active. A decrease in value is treated as a
// reset event (the counter wrapped or was cleared).
type CycleParams struct {
	Period float64 `json:"period"`
	TimeMs int64   `json:"timeMs"`
}

// TriggeredExpectKind names how a triggered rule's own target id is
// expected to respond once its dependency fires.
type TriggeredExpectKind string

const (
	ExpectChanged   TriggeredExpectKind = "changed"
	ExpectDelta     TriggeredExpectKind = "delta"
	ExpectThreshold TriggeredExpectKind = "threshold"
)

// TriggeredParams configures the triggered rule kind: DependsOn is another
// monitored id whose value must satisfy Operator(Compare) to arm the rule;
// once armed, the rule's own id must satisfy the Expect condition within
// WindowMs or the cause becomes active.
type TriggeredParams struct {
	DependsOn       string              `json:"dependsOn"`
	Operator        string              `json:"operator"` // lt, gt, eq, changed
	Compare         float64             `json:"compare,omitempty"`
	WindowMs        int64               `json:"windowMs"`
	Expect          TriggeredExpectKind `json:"expect"`
	ExpectDelta     float64             `json:"expectDelta,omitempty"`
	ExpectThreshold float64             `json:"expectThreshold,omitempty"`
}

// NonSettlingParams configures the nonSettling rule kind: the cause is
// active while the value keeps changing by at least MinDelta per step for
// longer than MaxContinuousMs, with gaps between changes shorter than
// QuietGapMs. TrendDirection/MinTotalDelta implement the trend variant:
// the cause is also active if the net change across the window exceeds
// MinTotalDelta in the named direction ("up" or "down").
type NonSettlingParams struct {
	MinDelta       float64 `json:"minDelta"`
	MaxContinuous  int64   `json:"maxContinuousMs"`
	QuietGapMs     int64   `json:"quietGapMs"`
	TrendDirection string  `json:"trendDirection,omitempty"`
	MinTotalDelta  float64 `json:"minTotalDelta,omitempty"`
}

// SessionParams configures the session rule kind: the cause becomes
// active once val crosses StartThreshold and holds for StartMinHoldMs,
// optionally gated by a companion on/off id (GateID); it returns to
// normal once val drops below StopThreshold for StopDelayMs.
type SessionParams struct {
	StartThreshold float64 `json:"startThreshold"`
	StartMinHoldMs int64   `json:"startMinHoldMs"`
	StopThreshold  float64 `json:"stopThreshold"`
	StopDelayMs    int64   `json:"stopDelayMs"`
	GateID         string  `json:"gateId,omitempty"`
}

// Config fully specifies one rule instance: which id it watches, under
// which rule kind, materializing which preset, with which close policy.
// Config values are what admin.ingestStates.presets.upsert persists (via
// internal/kvstate) and what bulkApply stamps out across a glob of ids.
type Config struct {
	Instance string `json:"instance"`
	Rule     string `json:"rule"`
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	PresetID string `json:"presetId"`

	WindowSize int `json:"windowSize,omitempty"`

	Policy  Policy  `json:"policy"`
	Message Message `json:"message"`

	// StatsMinIntervalMs/StatsMaxIntervalMs govern PatchMetrics throttling:
	// a changed metric is written no more often than every
	// StatsMinIntervalMs, and a PatchMetrics call made once
	// StatsMaxIntervalMs has passed since the last write writes every value
	// even if unchanged, so a stalled target still shows progress in the
	// journal. No write happens between calls.
	StatsMinIntervalMs int64 `json:"statsMinIntervalMs,omitempty"`
	StatsMaxIntervalMs int64 `json:"statsMaxIntervalMs,omitempty"`

	Threshold   *ThresholdParams   `json:"threshold,omitempty"`
	Freshness   *FreshnessParams   `json:"freshness,omitempty"`
	Cycle       *CycleParams       `json:"cycle,omitempty"`
	Triggered   *TriggeredParams   `json:"triggered,omitempty"`
	NonSettling *NonSettlingParams `json:"nonSettling,omitempty"`
	Session     *SessionParams     `json:"session,omitempty"`
}

// key returns the composite identity of the target this config governs:
// one rule instance per (instance, rule, id), matching the resume-state
// key pattern IngestStates.<instance>.<rule>.<id>.
func (c Config) key() string {
	return c.Instance + "." + c.Rule + "." + c.ID
}
