package waterwtr

import (
	"testing"

	"waterpump-fw/types"
)

func TestDetectWaterChangePresentOnSharpNegative(t *testing.T) {
	var s types.PadState
	detectWaterChange(-6, &s, 20)
	if s.Presence != types.Present {
		t.Fatalf("got %v, want Present", s.Presence)
	}
}

func TestDetectWaterChangeDrainsAndTimesOut(t *testing.T) {
	s := types.PadState{Presence: types.Present}
	for i := 0; i < 25; i++ {
		detectWaterChange(1, &s, 20)
	}
	if s.Presence != types.NotPresent {
		t.Fatalf("got %v, want NotPresent after exceeding drain threshold", s.Presence)
	}
}

func TestDetectWaterChangeLargePositiveResetsImmediately(t *testing.T) {
	s := types.PadState{Presence: types.Draining, DrainingCount: 3}
	detectWaterChange(4, &s, 20)
	if s.Presence != types.NotPresent || s.DrainingCount != 0 {
		t.Fatalf("got %+v, want reset to NotPresent", s)
	}
}

func TestAddToAverageBadSample(t *testing.T) {
	_, _, bad := addToAverage(1, 0, 795, 800)
	if !bad {
		t.Fatal("expected bad-sample flag when open_air - current <= 10")
	}
}

func TestAddToAverageFirstSample(t *testing.T) {
	mean, n, bad := addToAverage(1, 0, 750, 800)
	if bad || mean != 50 || n != 1 {
		t.Fatalf("got mean=%d n=%d bad=%v, want 50,1,false", mean, n, bad)
	}
}

func TestAddToAverageCapsAtThirty(t *testing.T) {
	mean, n, bad := addToAverage(31, 42, 750, 800)
	if bad || mean != 42 || n != 30 {
		t.Fatalf("got mean=%d n=%d bad=%v, want held at 42,30,false", mean, n, bad)
	}
}

func TestPromotePadStatesPropagatesDownward(t *testing.T) {
	p := NewPipeline()
	p.pads[2].Presence = types.Present
	p.pads[3].Presence = types.Draining
	p.pads[4].Presence = types.NotPresent
	p.promotePadStates()
	if p.pads[3].Presence != types.Present {
		t.Fatalf("pad 3 should be promoted to Present, got %v", p.pads[3].Presence)
	}
	if p.pads[4].Presence != types.Present {
		t.Fatalf("pad 4 should be promoted to Present, got %v", p.pads[4].Presence)
	}
}

func TestPromotePadStatesSkipsWhenNextPadNotPresent(t *testing.T) {
	p := NewPipeline()
	p.pads[2].Presence = types.Present
	p.pads[3].Presence = types.NotPresent
	p.pads[4].Presence = types.NotPresent
	p.promotePadStates()
	if p.pads[3].Presence != types.NotPresent {
		t.Fatalf("pad 3 should remain NotPresent (gate requires pad k+1 != NotPresent), got %v", p.pads[3].Presence)
	}
}

// TestPipelineDetectsASession feeds a synthetic stroke: pads 1-8 go
// sharply negative (water arriving top to bottom), hold, then drain
// back out, confirming a full session completes and contributes a
// positive volume to WaterVolumeSum (§8 scenario 4).
func TestPipelineDetectsASession(t *testing.T) {
	p := NewPipeline()

	baseline := Sample{800, 800, 800, 800, 800, 800, 800, 800}
	for i := 0; i < 6; i++ {
		p.Ingest(baseline)
	}

	wet := Sample{700, 700, 700, 700, 700, 700, 700, 700}
	for i := 0; i < 40; i++ {
		p.Ingest(wet)
	}

	for i := 0; i < 700; i++ {
		p.Ingest(baseline)
	}

	if p.WaterVolumeSum < 0 {
		t.Fatalf("expected non-negative accumulated volume, got %d", p.WaterVolumeSum)
	}
}

func TestSessionVolumeZeroSamples(t *testing.T) {
	if v := sessionVolume(1000, 0, 0); v != 0 {
		t.Fatalf("got %d, want 0 for empty session", v)
	}
}

func TestSessionVolumeClipsNoChangePercent(t *testing.T) {
	full := sessionVolume(1000, 200, 100) // 200% would clip to 100%
	clipped := sessionVolume(1000, 100, 100)
	if full != clipped {
		t.Fatalf("no_change_percent over 100%% should clip identically: got %d vs %d", full, clipped)
	}
}
