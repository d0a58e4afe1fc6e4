package rules

// evalState is the small amount of cross-tick memory each rule kind needs
// beyond the rolling window itself. Not every field applies to every kind.
type evalState struct {
	cycleMarked  bool // cycle: whether lastMarkTs/lastMarkVal have been set yet
	lastMarkTs   int64
	lastMarkVal  float64
	triggeredAt  int64 // triggered: ts the dependency condition first armed
	armed        bool
	running      bool  // nonSettling: whether a flapping run is currently open
	lastChangeTs int64 // nonSettling: ts of the last step change >= MinDelta
	runStartTs   int64 // nonSettling: ts the current flapping run began
	gateOpen     bool  // session: current value of the optional gate id
}

// evaluate reports whether cfg's cause should be considered active at now,
// given win (the target id's own rolling window), dep (the dependency
// window for triggered rules, nil otherwise), and the previous tick's
// causeActive/evalState. It returns the possibly-updated state alongside
// the new active verdict; callers persist the returned state for the next
// tick.
func evaluate(cfg Config, win *Window, dep *Window, now int64, currentlyActive bool, st evalState) (active bool, next evalState) {
	switch cfg.Kind {
	case KindThreshold:
		return evaluateThreshold(cfg.Threshold, win, now, currentlyActive), st
	case KindFreshness:
		return evaluateFreshness(cfg.Freshness, win, now), st
	case KindCycle:
		return evaluateCycle(cfg.Cycle, win, now, st)
	case KindTriggered:
		return evaluateTriggered(cfg.Triggered, win, dep, now, st)
	case KindNonSettling:
		return evaluateNonSettling(cfg.NonSettling, win, now, st)
	case KindSession:
		return evaluateSession(cfg.Session, win, now, currentlyActive, st)
	default:
		return currentlyActive, st
	}
}

func evaluateThreshold(p *ThresholdParams, win *Window, now int64, currentlyActive bool) bool {
	if p == nil {
		return false
	}
	last, ok := win.Last()
	if !ok {
		return currentlyActive
	}

	if currentlyActive {
		return !thresholdNormal(p, last.Val)
	}

	if !thresholdForbidden(p, last.Val) {
		return false
	}
	enteredAt, ok := win.ContinuousSince(func(v float64) bool { return thresholdForbidden(p, v) })
	if !ok {
		return false
	}
	return now-enteredAt >= p.MinDurationMs
}

func thresholdForbidden(p *ThresholdParams, v float64) bool {
	switch {
	case p.Lt != nil:
		return v < *p.Lt
	case p.Gt != nil:
		return v > *p.Gt
	case p.OutsideLo != nil && p.OutsideHi != nil:
		return v < *p.OutsideLo || v > *p.OutsideHi
	case p.Eq != nil:
		return v == *p.Eq
	default:
		return false
	}
}

// thresholdNormal applies HysteresisMargin on top of thresholdForbidden's
// boundary so a value hovering at the edge doesn't flap the cause closed
// and open again every tick.
func thresholdNormal(p *ThresholdParams, v float64) bool {
	m := p.HysteresisMargin
	switch {
	case p.Lt != nil:
		return v >= *p.Lt+m
	case p.Gt != nil:
		return v <= *p.Gt-m
	case p.OutsideLo != nil && p.OutsideHi != nil:
		return v >= *p.OutsideLo+m && v <= *p.OutsideHi-m
	case p.Eq != nil:
		return v != *p.Eq
	default:
		return true
	}
}

func evaluateFreshness(p *FreshnessParams, win *Window, now int64) bool {
	if p == nil {
		return false
	}
	last, ok := win.Last()
	if !ok {
		return false
	}
	return now-last.Ts >= p.ThresholdMs
}

func evaluateCycle(p *CycleParams, win *Window, now int64, st evalState) (bool, evalState) {
	if p == nil {
		return false, st
	}
	last, ok := win.Last()
	if !ok {
		return false, st
	}
	if !st.cycleMarked {
		st.cycleMarked = true
		st.lastMarkTs = last.Ts
		st.lastMarkVal = last.Val
	}
	if last.Val < st.lastMarkVal {
		// Counter decreased: treat as a reset event.
		st.lastMarkTs = last.Ts
		st.lastMarkVal = last.Val
		return false, st
	}
	advanced := last.Val - st.lastMarkVal
	if advanced >= p.Period {
		st.lastMarkTs = last.Ts
		st.lastMarkVal = last.Val
		return false, st
	}
	elapsed := now - st.lastMarkTs
	return elapsed >= p.TimeMs, st
}

func evaluateTriggered(p *TriggeredParams, win, dep *Window, now int64, st evalState) (bool, evalState) {
	if p == nil || dep == nil {
		return false, st
	}

	if !st.armed {
		depLast, ok := dep.Last()
		if ok && triggeredOperator(p, depLast.Val) {
			st.armed = true
			st.triggeredAt = depLast.Ts
		}
		return false, st
	}

	if expectationMet(p, win, st.triggeredAt) {
		st.armed = false
		return false, st
	}

	if now-st.triggeredAt >= p.WindowMs {
		return true, st
	}
	return false, st
}

func triggeredOperator(p *TriggeredParams, v float64) bool {
	switch p.Operator {
	case "lt":
		return v < p.Compare
	case "gt":
		return v > p.Compare
	case "eq":
		return v == p.Compare
	default:
		return false
	}
}

func expectationMet(p *TriggeredParams, win *Window, since int64) bool {
	obs := win.Since(since)
	if len(obs) == 0 {
		return false
	}
	first := obs[0]
	last := obs[len(obs)-1]
	switch p.Expect {
	case ExpectChanged:
		return last.Val != first.Val
	case ExpectDelta:
		return absFloat(last.Val-first.Val) >= p.ExpectDelta
	case ExpectThreshold:
		return last.Val >= p.ExpectThreshold
	default:
		return false
	}
}

func evaluateNonSettling(p *NonSettlingParams, win *Window, now int64, st evalState) (bool, evalState) {
	if p == nil {
		return false, st
	}
	obs := win.Observations()
	if len(obs) < 2 {
		return false, st
	}

	prev := obs[len(obs)-2]
	last := obs[len(obs)-1]
	if absFloat(last.Val-prev.Val) >= p.MinDelta {
		if !st.running {
			st.running = true
			st.runStartTs = prev.Ts
		}
		st.lastChangeTs = last.Ts
	} else if st.running && now-st.lastChangeTs >= p.QuietGapMs {
		st.running = false
	}

	if p.TrendDirection != "" && p.MinTotalDelta > 0 {
		first := obs[0]
		delta := last.Val - first.Val
		if p.TrendDirection == "up" && delta >= p.MinTotalDelta {
			return true, st
		}
		if p.TrendDirection == "down" && -delta >= p.MinTotalDelta {
			return true, st
		}
	}

	if !st.running {
		return false, st
	}
	return now-st.runStartTs > p.MaxContinuous, st
}

func evaluateSession(p *SessionParams, win *Window, now int64, currentlyActive bool, st evalState) (bool, evalState) {
	if p == nil {
		return false, st
	}
	if p.GateID != "" && !st.gateOpen {
		return false, st
	}

	if currentlyActive {
		stoppedAt, ok := win.ContinuousSince(func(v float64) bool { return v < p.StopThreshold })
		if !ok {
			return true, st
		}
		return !(now-stoppedAt >= p.StopDelayMs), st
	}

	startedAt, ok := win.ContinuousSince(func(v float64) bool { return v >= p.StartThreshold })
	if !ok {
		return false, st
	}
	return now-startedAt >= p.StartMinHoldMs, st
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
