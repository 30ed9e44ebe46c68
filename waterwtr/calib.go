package waterwtr

import "waterpump-fw/types"

// addToAverage folds one more (open_air, current) delta observation
// into a pad's running calibration mean (§4.4.d). A bad sample (the
// electrode barely moved from open-air) is flagged and leaves the
// mean untouched; the mean is held once n exceeds types.CalibMeanCap.
func addToAverage(n, oldMean, current, openAir int16) (newMean, newN int16, bad bool) {
	numerator := openAir - current
	if numerator <= 10 {
		return oldMean, n, true
	}
	if n == 1 {
		return numerator, 1, false
	}
	if n > 1 && n <= types.CalibMeanCap {
		quot := numerator / n
		if numerator-n*quot > 0 {
			quot++
		}
		return (n-1)*oldMean/n + quot, n, false
	}
	// n > types.CalibMeanCap: hold the value.
	return oldMean, types.CalibMeanCap, false
}

// calibMismatchLimit is how many consecutive every-20th-sample
// mismatches reset all pad calibration (§4.4.d "Calibration checks").
const calibMismatchLimit = 3

// updateCalibration advances the calibration for pad k given the
// current reading and the open-air baseline, completing it at
// types.CalibSampleTarget samples.
func (p *Pipeline) updateCalibration(k int, current int16) {
	c := &p.calib.Pads[k]
	if c.Done {
		return
	}
	newMean, _, bad := addToAverage(c.SampleCount+1, c.MeanDelta, current, p.openAirBaseline[k])
	if bad {
		return
	}
	c.MeanDelta = newMean
	c.SampleCount++
	if c.SampleCount >= types.CalibSampleTarget {
		c.Done = true
		if c.MeanDelta < types.CalibMinMean {
			p.resetCalibration()
		}
	}
}

// checkCalibration runs every 20th processed tick: adjacent
// both-Present pads whose downstream calibration is done are compared
// against their mean ± 6; three consecutive mismatches reset all
// calibration.
func (p *Pipeline) checkCalibration(samples [8]int16) {
	mismatch := false
	for k := 0; k < 7; k++ {
		if p.pads[k].Presence != types.Present || p.pads[k+1].Presence != types.Present {
			continue
		}
		c := p.calib.Pads[k]
		if !c.Done {
			continue
		}
		diff := p.openAirBaseline[k] - samples[k]
		if diff < c.MeanDelta-6 || diff > c.MeanDelta+6 {
			mismatch = true
		}
	}
	if mismatch {
		p.calibMismatchStreak++
		if p.calibMismatchStreak >= calibMismatchLimit {
			p.resetCalibration()
		}
	} else {
		p.calibMismatchStreak = 0
	}
}

func (p *Pipeline) resetCalibration() {
	p.calib.Reset()
	p.calibMismatchStreak = 0
}
