package types

// PadCalibration is one pad's running open-air/current-delta mean (§3).
// A pad's calibration is complete once SampleCount reaches CalibSampleTarget.
type PadCalibration struct {
	MeanDelta   int16
	SampleCount int16
	Done        bool
}

// CalibSampleTarget is the sample count at which a pad's calibration is
// considered complete (§3, §8 "Calibration count reaches 30" boundary note:
// the mean itself caps its *contribution* at 30 samples — completion is
// signalled separately at 50 per §3's data model).
const CalibSampleTarget = 50

// CalibMeanCap is where addToAverage stops changing the running mean
// (§4.4.d: "for n > 30, hold the value").
const CalibMeanCap = 30

// CalibMinMean is the per-pad mean floor; falling below it resets all
// calibration (§4.4 "per-pad mean below 7").
const CalibMinMean = 7

// Calibration holds the per-pad calibration state for all eight pads.
type Calibration struct {
	Pads [NumPads]PadCalibration
}

// Reset zeroes every pad's calibration (§4.4: "Calibration resets to
// all-zero on certain failure modes").
func (c *Calibration) Reset() {
	*c = Calibration{}
}

// DeltaFilter is the 5-sample ring delta filter described in §3/§8.
// After 5 samples it emits a delta from the 5-window min/max, averaged
// with the previous delta via arithmetic-shift halving and signed by the
// polarity of (current - oldest).
type DeltaFilter struct {
	samples [5]int16
	count   int
	next    int
	prev    int16
}

// Add deposits a new raw sample and returns the emitted delta. While the
// ring has fewer than 5 samples, the emitted delta is always zero.
func (f *DeltaFilter) Add(sample int16) int16 {
	f.samples[f.next] = sample
	oldestIdx := (f.next + 1) % 5
	f.next = (f.next + 1) % 5
	if f.count < 5 {
		f.count++
		return 0
	}

	min, max := f.samples[0], f.samples[0]
	for _, s := range f.samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	oldest := f.samples[oldestIdx]
	span := max - min
	sign := int16(1)
	if sample < oldest {
		sign = -1
	} else if sample == oldest {
		sign = 0
	}
	delta := sign * span
	avg := (delta + f.prev) >> 1 // arithmetic-shift halving per spec §3
	f.prev = avg
	return avg
}
