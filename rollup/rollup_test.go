package rollup

import "testing"

func TestAdvanceOnlyFinalisesAtHourWrap(t *testing.T) {
	r := New()
	cfg := RedFlagConfig{OnThresholdPct: 50, OffThresholdPct: 80}
	for i := 0; i < 23; i++ {
		_, ready := r.Advance(0, cfg, 12000, "activated", 0, 0, 0, int64(i))
		if ready {
			t.Fatalf("should not finalise before hour 24, got ready at i=%d", i)
		}
	}
	rec, ready := r.Advance(0, cfg, 12000, "activated", 0, 0, 0, 24)
	if !ready {
		t.Fatal("expected finalisation at the 24th Advance")
	}
	if rec.State != "activated" {
		t.Fatalf("got state %q, want activated", rec.State)
	}
}

func TestRollingAverageAndBreakdownFlag(t *testing.T) {
	r := New()
	cfg := RedFlagConfig{OnThresholdPct: 50, OffThresholdPct: 80}

	// Prime 28 days of 100L on day-of-week 0.
	for day := 0; day < 28; day++ {
		r.UpdateHour(100, 1, 50, 200, 500)
		for h := 0; h < 24; h++ {
			_, _ = r.Advance(0, cfg, 12000, "activated", 0, 0, 0, int64(day*24+h))
		}
	}

	// One more day with zero pumped liters.
	var avgLiters int32
	var breakdown bool
	for h := 0; h < 24; h++ {
		rec, ready := r.Advance(0, cfg, 12000, "activated", 0, 0, 0, int64(h))
		if ready {
			avgLiters = rec.AvgLiters
			breakdown = rec.Breakdown
		}
	}

	if avgLiters == 0 {
		t.Fatal("expected a non-zero rolling average after 28 days of history")
	}
	if !breakdown {
		t.Fatalf("expected breakdown flag when daily liters (0) falls below the on-threshold of avg (%d)", avgLiters)
	}
}
