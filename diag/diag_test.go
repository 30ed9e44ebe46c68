package diag

import (
	"testing"
	"time"

	"waterpump-fw/errcode"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time     { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPeriodDriftSetsDayBitAfterThreshold(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	m := NewMonitor(c.now, nil, nil)
	m.Tick() // first call is a no-op baseline

	for i := 0; i < LateRunThreshold; i++ {
		c.advance(60 * time.Millisecond) // > 55ms drift threshold
		m.Tick()
	}

	if !m.DayBits.Has(errcode.AvgSamplePeriodDrift) {
		t.Fatal("expected AvgSamplePeriodDrift bit set after 20 late runs")
	}
}

func TestPeriodDriftSecondOccurrenceResetsAlgo(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	var resetCount int
	m := NewMonitor(c.now, func() { resetCount++ }, nil)
	m.Tick()

	triggerLateRuns := func() {
		for i := 0; i < LateRunThreshold; i++ {
			c.advance(60 * time.Millisecond)
			m.Tick()
		}
	}
	triggerLateRuns() // first occurrence: just sets the bit
	triggerLateRuns() // second occurrence: re-init

	if resetCount != 1 {
		t.Fatalf("got %d resets, want 1 after second occurrence", resetCount)
	}
}

func TestPeriodDriftThirdOccurrenceEscalates(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	var escalated errcode.Bits
	m := NewMonitor(c.now, func() {}, func(b errcode.Bits) { escalated = b })
	m.Tick()

	triggerLateRuns := func() {
		for i := 0; i < LateRunThreshold; i++ {
			c.advance(60 * time.Millisecond)
			m.Tick()
		}
	}
	triggerLateRuns()
	triggerLateRuns()
	triggerLateRuns()

	want := errcode.Bits(0).Escalate(errcode.AvgSamplePeriodDrift)
	if escalated != want {
		t.Fatalf("got %v, want %v", escalated, want)
	}
}

func TestMissedSampleCountsDroppedTicksInWindow(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	m := NewMonitor(c.now, nil, nil)
	m.Tick()

	// Each 250ms gap drops (250/50)-1 = 4 samples, well past the >=6
	// threshold by the time the 3-second window closes.
	for i := 0; i < 2; i++ {
		c.advance(250 * time.Millisecond)
		m.Tick()
	}
	c.advance(MissedSampleWindow)
	m.Tick()

	if !m.DayBits.Has(errcode.MissedSampleThresh) {
		t.Fatal("expected MissedSampleThresh bit set")
	}
}

func TestResetDailyClearsBitsAndLatches(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	m := NewMonitor(c.now, nil, nil)
	m.DayBits = m.DayBits.Set(errcode.AvgSamplePeriodDrift)
	m.driftLevel2 = true

	m.ResetDaily()

	if m.DayBits != 0 || m.driftLevel2 {
		t.Fatal("expected ResetDaily to clear bits and latches")
	}
}
