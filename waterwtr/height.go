package waterwtr

import "waterpump-fw/types"

// promotePadStates propagates a confidently-Present upper pad's state
// down to lower, more sensitive pads that haven't caught up yet
// (§4.4.a): prevents a lower pad from reporting "draining" while the
// pad above it still clearly sees water.
func (p *Pipeline) promotePadStates() {
	for k := 0; k < types.NumPads-1; k++ {
		if p.pads[k].Presence != types.Present || p.pads[k+1].Presence == types.NotPresent {
			continue
		}
		for j := k + 1; j < types.NumPads; j++ {
			if p.pads[j].Presence < p.pads[k].Presence {
				p.pads[j].Presence = p.pads[k].Presence
				p.pads[j].DrainingCount = 0
			}
		}
	}
}

// waterHeight selects the current water height by descending pad
// pairs, preferring a calibration-backed reading over a raw presence
// reading (§4.4.b). samples holds this tick's raw pad values.
func (p *Pipeline) waterHeight(samples [8]int16) int16 {
	for k := 0; k < types.NumPads-1; k++ {
		calibHeight := int16(0)
		c := p.calib.Pads[k]
		if c.Done && (p.openAirBaseline[k]-samples[k]) > c.MeanDelta-5 {
			calibHeight = types.PadHeights[k]
		}
		if calibHeight > 0 {
			return calibHeight
		}

		diffHeight := int16(0)
		if p.pads[k].Presence != types.NotPresent && p.pads[k+1].Presence != types.NotPresent {
			diffHeight = types.PadHeights[k]
		}
		if diffHeight > 0 {
			p.promotePadStates()
			return diffHeight
		}
	}
	return 0
}
