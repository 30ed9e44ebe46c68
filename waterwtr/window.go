// Package waterwtr implements the water-volume pipeline (C4): the
// windowed capacitive sample ingest, the per-pad delta/presence state
// machine, calibration maintenance, water-height selection and
// session-volume integration.
package waterwtr

import "waterpump-fw/types"

// Sample is one tick's 8-pad capacitance snapshot.
type Sample [types.NumPads]int16

// windowSize is how many ticks of history Process can see: a 20-sample
// non-overlap block plus 50 samples each of look-back/look-ahead
// overlap (§4.4 "access indices 51..120"). The original firmware
// carries this as four separately indexed A/B/OA/OB blocks; here it is
// a single 120-sample ring exposing the same contiguous, index-1
// addressing — behaviourally equivalent without the extra bookkeeping.
const windowSize = 120

// processBlockSize is how many new ticks must land before a window
// becomes processable (§4.4 "Sample ingest").
const processBlockSize = 20

// processSamples is how many samples one Process call consumes
// (§4.4 "process exactly 70 samples").
const processSamples = 70

// PadWindow is the 120-sample ring of ticks: Ingest deposits one
// tick at a time; every processBlockSize ticks it flags a window as
// ready for Process.
type PadWindow struct {
	history    [windowSize]Sample
	writePos   int // next slot to write, wraps mod windowSize
	filled     int // total ticks ever ingested, saturates at windowSize
	sinceFlip  int
	processable bool
}

// Ingest deposits one tick's snapshot. When processBlockSize new
// samples have accumulated it marks the window processable.
func (w *PadWindow) Ingest(s Sample) {
	w.history[w.writePos] = s
	w.writePos = (w.writePos + 1) % windowSize
	if w.filled < windowSize {
		w.filled++
	}
	w.sinceFlip++
	if w.sinceFlip >= processBlockSize {
		w.sinceFlip = 0
		w.processable = true
	}
}

// Processable reports whether a full block has landed since the last
// Process call.
func (w *PadWindow) Processable() bool { return w.processable }

// ClearProcessable marks the current block as consumed.
func (w *PadWindow) ClearProcessable() { w.processable = false }

// ReadSample returns the tick at 1-indexed position i within the
// current 120-sample window (i==120 is the most recently ingested
// tick). ok is false if the window does not yet hold i ticks of
// history (§4.4.3 "read_sample").
func (w *PadWindow) ReadSample(i int) (Sample, bool) {
	if i < 1 || i > windowSize || i > w.filled {
		return Sample{}, false
	}
	// Most recent tick lives at writePos-1; position i counts back
	// (windowSize-i) ticks from there.
	offset := windowSize - i
	idx := (w.writePos - 1 - offset + 2*windowSize) % windowSize
	return w.history[idx], true
}
