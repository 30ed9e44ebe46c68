// Package diag implements C7 algorithm diagnostics: period-drift and
// dropped-sample monitoring over the same tick that drives C4's
// pipeline, escalating through three severity levels into C6's error
// timer (§4.7).
package diag

import (
	"time"

	"waterpump-fw/errcode"
)

const (
	TickPeriod           = 50 * time.Millisecond
	driftThreshold       = TickPeriod + TickPeriod/10 // 50ms * 1.1
	droppedThreshold     = 100 * time.Millisecond
	LateRunThreshold     = 20
	MissedSampleWindow   = 3 * time.Second
	MissedSampleThreshold = 6
)

// Monitor tracks the two §4.7 rules across ticks. Re-initialisation of
// C4's algorithm state and escalation into C6's error timer are
// injected hooks, keeping this package free of a direct dependency on
// either.
type Monitor struct {
	now func() time.Time

	first    bool
	lastTick time.Time

	lateRunCount int

	missedSamples int
	windowStart   time.Time

	DayBits errcode.AlgoBits // this day's non-critical diagnostic bits

	driftLevel2  bool
	missedLevel2 bool

	ResetAlgo func()
	Escalate  func(errcode.Bits)
}

func NewMonitor(now func() time.Time, resetAlgo func(), escalate func(errcode.Bits)) *Monitor {
	return &Monitor{now: now, first: true, ResetAlgo: resetAlgo, Escalate: escalate}
}

// Tick folds one algorithm-tick observation into the two diagnostic
// rules. Call it once per C4 pipeline tick.
func (m *Monitor) Tick() {
	now := m.now()

	if m.first {
		m.first = false
		m.lastTick = now
		m.windowStart = now
		return
	}

	elapsed := now.Sub(m.lastTick)
	m.lastTick = now

	if elapsed > driftThreshold {
		m.lateRunCount++
		if elapsed > droppedThreshold {
			m.missedSamples += int(elapsed/TickPeriod) - 1
		}
	} else if m.lateRunCount > 0 {
		m.lateRunCount--
	}

	if m.lateRunCount >= LateRunThreshold {
		m.escalatePeriodDrift()
		m.lateRunCount = 0
	}

	if now.Sub(m.windowStart) >= MissedSampleWindow {
		if m.missedSamples >= MissedSampleThreshold {
			m.escalateMissedSample()
		}
		m.windowStart = now
		m.missedSamples = 0
	}
}

// escalatePeriodDrift runs the three-level action for rule 1 (§4.7
// "Rule 1 — period drift").
func (m *Monitor) escalatePeriodDrift() {
	switch {
	case !m.DayBits.Has(errcode.AvgSamplePeriodDrift):
		m.DayBits = m.DayBits.Set(errcode.AvgSamplePeriodDrift)
		m.driftLevel2 = false
	case !m.driftLevel2:
		if m.ResetAlgo != nil {
			m.ResetAlgo()
		}
		m.driftLevel2 = true
	default:
		if m.Escalate != nil {
			m.Escalate(errcode.Bits(0).Escalate(errcode.AvgSamplePeriodDrift))
		}
	}
}

// escalateMissedSample runs the three-level action for rule 2 (§4.7
// "Rule 2 — dropped samples").
func (m *Monitor) escalateMissedSample() {
	switch {
	case !m.DayBits.Has(errcode.MissedSampleThresh):
		m.DayBits = m.DayBits.Set(errcode.MissedSampleThresh)
		m.missedLevel2 = false
	case !m.missedLevel2:
		if m.ResetAlgo != nil {
			m.ResetAlgo()
		}
		m.missedLevel2 = true
	default:
		if m.Escalate != nil {
			m.Escalate(errcode.Bits(0).Escalate(errcode.MissedSampleThresh))
		}
	}
}

// ResetDaily clears the diagnostic bits and level-2 latches at
// midnight (§4.7 "Both accumulators reset at midnight").
func (m *Monitor) ResetDaily() {
	m.DayBits = 0
	m.driftLevel2 = false
	m.missedLevel2 = false
}
