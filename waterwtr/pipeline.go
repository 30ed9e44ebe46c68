package waterwtr

import "waterpump-fw/types"

// drainThresholds are the per-pad draining-state counter thresholds
// passed to detectWaterChange (§4.4 "Measuring").
var drainThresholds = [types.NumPads]uint8{20, 30, 40, 50, 60, 70, 80, 90}

// defaultOpenAirBaseline is the fallback used when the opportunistic
// relearn in WaitForWater can't read a valid look-back sample.
const defaultOpenAirBaseline = 800

// openAirRelearnTicks is how long the algorithm must have sat in
// WaitForWater before it opportunistically relearns the open-air
// baseline on the next water-on transition (§4.4 "WaitForWater").
const openAirRelearnTicks = 300

// Pipeline is one pump's water-volume algorithm instance: window
// ingest, per-pad delta/presence tracking, calibration and session
// integration.
type Pipeline struct {
	window PadWindow

	pads         [types.NumPads]types.PadState
	deltaFilters [types.NumPads]types.DeltaFilter
	calib        types.Calibration
	calibMismatchStreak int

	state           types.AlgoState
	openAirBaseline [types.NumPads]int16
	openAirCounter  int

	session sessionState

	tickIndex int // monotonic count of ticks processed, used for window look-back addressing

	WaterVolumeSum int64 // cumulative output across all completed sessions
}

// NewPipeline returns a Pipeline with every pad's open-air baseline at
// its default value.
func NewPipeline() *Pipeline {
	p := &Pipeline{state: types.WaitForWater}
	for i := range p.openAirBaseline {
		p.openAirBaseline[i] = defaultOpenAirBaseline
	}
	return p
}

// PadSnapshot returns each pad's current presence classification, the
// "read pad values" debug peek named in commandLineDriver.c. It's a
// copy; callers can't perturb pipeline state through it.
func (p *Pipeline) PadSnapshot() [types.NumPads]types.PadState {
	return p.pads
}

// Ingest deposits one tick's 8-pad snapshot. Every processBlockSize
// ticks this triggers a processing pass over the newly-arrived
// samples (§4.4 "Sample ingest" / "Windowed process trigger").
func (p *Pipeline) Ingest(s Sample) {
	p.window.Ingest(s)
	if !p.window.Processable() {
		return
	}
	p.window.ClearProcessable()

	// The newly-arrived block is the most recent processBlockSize
	// ticks of the 120-sample window.
	for i := windowSize - processBlockSize + 1; i <= windowSize; i++ {
		sample, ok := p.window.ReadSample(i)
		if !ok {
			continue
		}
		p.processTick(sample, i)
	}
}

// processTick runs one tick's worth of algorithm state through the
// delta filters and the WaitForWater/Measuring state machine.
func (p *Pipeline) processTick(sample Sample, windowIndex int) {
	p.tickIndex++

	var deltas [types.NumPads]int16
	for k := 0; k < types.NumPads; k++ {
		deltas[k] = p.deltaFilters[k].Add(sample[k])
	}

	switch p.state {
	case types.WaitForWater:
		p.runWaitForWater(deltas, windowIndex)
	case types.Measuring:
		p.runMeasuring(sample, deltas)
	}
}

// runWaitForWater watches pads 6-8 for the front of an incoming
// stroke (§4.4 "WaitForWater").
func (p *Pipeline) runWaitForWater(deltas [types.NumPads]int16, windowIndex int) {
	sum678 := deltas[5] + deltas[6] + deltas[7]
	waterOn := sum678 <= -13 ||
		deltas[7] <= -7 || deltas[6] <= -7 || deltas[5] <= -7 || deltas[4] <= -7

	if !waterOn {
		p.openAirCounter++
		return
	}

	p.state = types.Measuring
	p.session.reset()
	p.session.startIndex = p.tickIndex

	if p.openAirCounter > openAirRelearnTicks {
		if baseline, ok := p.window.ReadSample(windowIndex - 40); ok {
			for k := range p.openAirBaseline {
				p.openAirBaseline[k] = baseline[k]
			}
		} else {
			p.resetCalibration()
			for k := range p.openAirBaseline {
				p.openAirBaseline[k] = defaultOpenAirBaseline
			}
		}
	}
	p.openAirCounter = 0
}

// runMeasuring advances per-pad presence, calibration and height
// tracking for one tick while a session is in progress (§4.4
// "Measuring").
func (p *Pipeline) runMeasuring(sample Sample, deltas [types.NumPads]int16) {
	for k := 0; k < types.NumPads; k++ {
		detectWaterChange(deltas[k], &p.pads[k], drainThresholds[k])
	}
	p.promotePadStates()

	if p.tickIndex%20 == 0 {
		p.checkCalibration([types.NumPads]int16(sample))
	}
	for k := 0; k < types.NumPads; k++ {
		p.updateCalibration(k, sample[k])
	}

	height := p.waterHeight([types.NumPads]int16(sample))
	p.session.waterIntValue += int64(height)
	p.session.sessionSamples++

	if p.session.sessionEnd(height, deltas) {
		vol := sessionVolume(p.session.waterIntValue, p.session.noChangeCount, p.session.sessionSamples)
		p.WaterVolumeSum += vol
		p.session.reset()
		p.state = types.WaitForWater
		p.openAirCounter = 0
	}
}

// detectWaterChange is the per-pad presence state machine (§4.4
// "Measuring"): a sharp negative diff means water arrived; otherwise
// the pad drains out after counter_thresh ticks or a moderate
// positive diff.
func detectWaterChange(diff int16, state *types.PadState, counterThresh uint8) {
	if diff <= -5 {
		state.Presence = types.Present
		state.DrainingCount = 0
		return
	}
	if state.Presence == types.Present || state.Presence == types.Draining {
		state.Presence = types.Draining
		if state.DrainingCount < 255 {
			state.DrainingCount++
		}
		if state.DrainingCount > counterThresh || diff >= 4 {
			state.Presence = types.NotPresent
			state.DrainingCount = 0
		}
	}
}
