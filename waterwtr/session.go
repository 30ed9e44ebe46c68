package waterwtr

// sessionState holds the per-session accumulators that reset whenever
// a water session starts or ends (§4.4, §4.4.c).
type sessionState struct {
	startIndex       int
	waterIntValue    int64
	sessionSamples   int
	noChangeCount    int
	notPresentCount  int
	constHeightCount int
	lastHeight       int16
	waterStopped     bool
	secondaryLatch   bool
}

func (s *sessionState) reset() { *s = sessionState{} }

// sessionEnd folds one tick's height/deltas into the session end-
// condition tracking and reports whether the session should end now
// (§4.4.c).
func (s *sessionState) sessionEnd(height int16, deltas [8]int16) bool {
	if deltas[6] < 3 && deltas[7] < 3 && height == 0 {
		s.notPresentCount++
	} else {
		s.notPresentCount = 0
	}

	if height == s.lastHeight {
		s.constHeightCount++
		s.noChangeCount++
	} else {
		s.constHeightCount = 0
		s.lastHeight = height
	}

	sum678 := deltas[5] + deltas[6] + deltas[7]
	if sum678 >= 15 {
		s.waterStopped = true
	}
	if sum678 < 0 {
		s.waterStopped = false
	}
	if s.waterStopped && deltas[7] >= 6 {
		s.secondaryLatch = true
	}
	waterStoppedEnd := s.waterStopped && s.secondaryLatch && sum678 < 4

	switch {
	case s.notPresentCount > 60:
		return true
	case s.constHeightCount >= 600 && height <= 229:
		return true
	case s.constHeightCount >= 2400 && height > 229:
		return true
	case waterStoppedEnd:
		return true
	}
	return false
}

// sessionVolume converts the session's integrated height accumulator
// into a liter-scale volume using the empirically-derived fixed-point
// scaler (§4.4 "Session integration"). no_change_percent is the share
// of ticks in the session where height did not move, clipped to 100.
func sessionVolume(waterIntValue int64, noChangeCount, sessionSamples int) int64 {
	if sessionSamples == 0 {
		return 0
	}
	noChangePercent := int64(noChangeCount) * 100 / int64(sessionSamples)
	if noChangePercent > 100 {
		noChangePercent = 100
	}
	const scalerBase = 11811160064
	scaler := (scalerBase - 3506*noChangePercent*(1<<15)) >> 15
	return (waterIntValue * scaler) >> 30
}
