package rules

import (
	"log/slog"
	"path"
	"sort"
	"sync"
)

// ruleInstance is one configured rule instance: its config, the cause's
// current open/closed verdict, and whatever small amount of state its
// evaluator needs to carry between ticks (evalState).
type ruleInstance struct {
	cfg         Config
	causeActive bool
	state       evalState
}

// Engine runs every configured rule instance against the observation
// streams fed to Ingest, and against the wall clock via Tick, dispatching
// cause transitions to a TargetMessageWriter. There is one rule
// instance per (instance, rule, id) key and one window per monitored id,
// shared by every rule instance that watches or depends on that id.
type Engine struct {
	writer *TargetMessageWriter
	logger *slog.Logger

	mu         sync.Mutex
	instances  map[string]*ruleInstance // cfg.key() -> instance
	windows    map[string]*Window       // monitored id -> rolling window
	dependents map[string][]string      // dependency id -> dependent instance keys (triggered rules)
	gateValues map[string]bool          // session gate id -> current on/off value
}

// NewEngine creates an Engine dispatching to writer.
func NewEngine(writer *TargetMessageWriter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		writer:     writer,
		logger:     logger,
		instances:  make(map[string]*ruleInstance),
		windows:    make(map[string]*Window),
		dependents: make(map[string][]string),
		gateValues: make(map[string]bool),
	}
}

// AddRule registers (or replaces) a rule instance. A configuration change
// for an already-registered key resets that target's rule history,
// since the window's observations may no longer be
// meaningful under the new parameters.
func (e *Engine) AddRule(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cfg.key()
	e.instances[key] = &ruleInstance{cfg: cfg}
	e.windowFor(cfg.ID, cfg.WindowSize).Reset()

	if cfg.Kind == KindTriggered && cfg.Triggered != nil && cfg.Triggered.DependsOn != "" {
		dep := cfg.Triggered.DependsOn
		e.windowFor(dep, cfg.WindowSize)
		e.dependents[dep] = appendUnique(e.dependents[dep], key)
	}
}

// RemoveRule drops a rule instance. Shared windows (referenced by other
// instances, e.g. a triggered rule's dependency) are left in place.
func (e *Engine) RemoveRule(instance, rule, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := Config{Instance: instance, Rule: rule, ID: id}.key()
	delete(e.instances, key)
}

// windowFor returns (creating if necessary) the rolling window for id.
// Must be called with e.mu held.
func (e *Engine) windowFor(id string, size int) *Window {
	w, ok := e.windows[id]
	if !ok {
		w = NewWindow(size)
		e.windows[id] = w
	}
	return w
}

// Ingest feeds one (ts, val) observation for id into every rule instance
// that watches it, plus any triggered rules that depend on it. A nil val
// or non-positive ts drops the observation.
func (e *Engine) Ingest(id string, ts int64, val *float64) {
	if val == nil || ts <= 0 {
		return
	}

	e.mu.Lock()
	win, tracked := e.windows[id]
	if !tracked {
		e.mu.Unlock()
		return
	}
	win.Append(Observation{Ts: ts, Val: *val})

	var toEvaluate []*ruleInstance
	for _, inst := range e.instances {
		if inst.cfg.ID == id {
			toEvaluate = append(toEvaluate, inst)
		}
	}
	for _, key := range e.dependents[id] {
		if inst, ok := e.instances[key]; ok {
			toEvaluate = append(toEvaluate, inst)
		}
	}
	e.mu.Unlock()

	for _, inst := range toEvaluate {
		e.evaluateAndDispatch(inst, ts)
	}
}

// SetGate records the current value of a session rule's optional on/off
// gate id.
func (e *Engine) SetGate(gateID string, on bool) {
	e.mu.Lock()
	e.gateValues[gateID] = on
	for _, inst := range e.instances {
		if inst.cfg.Kind == KindSession && inst.cfg.Session != nil && inst.cfg.Session.GateID == gateID {
			inst.state.gateOpen = on
		}
	}
	e.mu.Unlock()
}

// Tick re-evaluates every rule instance against the wall clock, driving
// the time-based rule kinds (freshness, cycle, session stop-delay) whose
// causes can become active or normal without a new observation arriving.
func (e *Engine) Tick(now int64) {
	e.mu.Lock()
	instances := make([]*ruleInstance, 0, len(e.instances))
	for _, inst := range e.instances {
		instances = append(instances, inst)
	}
	e.mu.Unlock()

	for _, inst := range instances {
		e.evaluateAndDispatch(inst, now)
	}

	seen := make(map[string]bool)
	for _, inst := range instances {
		pair := inst.cfg.Instance + "/" + inst.cfg.Rule
		if seen[pair] {
			continue
		}
		seen[pair] = true
		e.writer.TryCloseScheduled(inst.cfg.Instance, inst.cfg.Rule, now)
	}
}

func (e *Engine) evaluateAndDispatch(inst *ruleInstance, now int64) {
	e.mu.Lock()
	win := e.windows[inst.cfg.ID]
	var dep *Window
	if inst.cfg.Kind == KindTriggered && inst.cfg.Triggered != nil {
		dep = e.windows[inst.cfg.Triggered.DependsOn]
	}
	e.mu.Unlock()
	if win == nil {
		return
	}

	active, newState := evaluate(inst.cfg, win, dep, now, inst.causeActive, inst.state)

	wasActive := inst.causeActive
	inst.state = newState
	inst.causeActive = active

	switch {
	case active:
		e.writer.OnCauseActive(inst.cfg, "", now)
	case wasActive && !active:
		e.writer.OnCauseNormal(inst.cfg, now)
	}
}

// BulkApplyResult reports the outcome of BulkApply (admin.ingestStates.
// bulkApply.{preview,apply}).
type BulkApplyResult struct {
	Matched []string
	Applied int
	Errors  []string
}

// BulkApply stamps out custom (with ID overridden per match) across every
// id in candidates matching pattern (path.Match glob syntax).
// If apply is false this only reports what
// would match (preview); limit, if positive, caps how many are applied.
func (e *Engine) BulkApply(pattern string, custom Config, candidates []string, apply bool, limit int) BulkApplyResult {
	var result BulkApplyResult
	for _, id := range candidates {
		matched, err := path.Match(pattern, id)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if !matched {
			continue
		}
		result.Matched = append(result.Matched, id)
		if !apply {
			continue
		}
		if limit > 0 && result.Applied >= limit {
			continue
		}
		cfg := custom
		cfg.ID = id
		e.AddRule(cfg)
		result.Applied++
	}
	return result
}

// KnownIDs returns every monitored id the engine currently has a window
// for, letting callers (admin.ingestStates.bulkApply) source a candidate
// list without tracking ids themselves.
func (e *Engine) KnownIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.windows))
	for id := range e.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
