// Package rollup implements the hourly/daily aggregation pipeline
// (C5): per-hour slot updates, daily finalisation and red-flag
// breakdown detection, driven by hour-boundary ticks from the control
// loop.
package rollup

import "waterpump-fw/types"

// RedFlagConfig carries the two red-flag thresholds (percent of the
// rolling daily average) from the Config message (§4.5, §6).
type RedFlagConfig struct {
	OnThresholdPct  int32
	OffThresholdPct int32
}

// Roller tracks one day's in-progress record plus the trailing
// 28-day-by-weekday history needed for the rolling average.
type Roller struct {
	current  types.DailyRecord
	hourIdx  int
	history  [7][28]int32 // liters by day-of-week, most recent 28 occurrences
	histLen  [7]int
	histNext [7]int
}

func New() *Roller {
	return &Roller{}
}

// UpdateHour folds one hour's algorithm output into the current hour
// slot (§4.5 "otherwise update the hour slot").
func (r *Roller) UpdateHour(liters, strokes, strokeHeight int32, tempDeciC, humidityDeciPct int16) {
	h := r.hourIdx
	r.current.Hourly.Liters[h] = liters
	r.current.Hourly.Strokes[h] = strokes
	r.current.Hourly.StrokeHeight[h] = strokeHeight
	r.current.Hourly.TemperatureC[h] = tempDeciC
	r.current.Hourly.HumidityPct[h] = humidityDeciPct
}

// Advance moves to the next hour slot. If it wraps back to 0 it
// finalises the current day and returns the finished record ready for
// persistence, along with ready=true. Singleton fields (battery,
// state, error bits, etc.) are supplied by the caller since C5 doesn't
// own them (§4.5 "fill in singletons").
func (r *Roller) Advance(dayOfWeek int, cfg RedFlagConfig, battery int32, state string, errBits uint32, resetCounter uint32, activationDate int64, timestamp int64) (types.DailyRecord, bool) {
	r.hourIdx = (r.hourIdx + 1) % types.HoursPerDay
	if r.hourIdx != 0 {
		return types.DailyRecord{}, false
	}

	rec := r.current
	var dailyLiters int32
	for _, l := range rec.Hourly.Liters {
		dailyLiters += l
	}
	rec.DailyLiters = dailyLiters
	rec.AvgLiters = r.rollingAverage(dayOfWeek)
	rec.PumpCapacity = 0
	rec.PumpUsage = 0
	rec.BatteryMilliV = battery
	rec.State = state
	rec.ErrorBits = errBits
	rec.ResetCounter = resetCounter
	rec.ActivationDate = activationDate
	rec.TimestampUnix = timestamp

	rec.Breakdown = r.current.Breakdown
	if rec.AvgLiters > 0 {
		if int64(dailyLiters)*100 < int64(rec.AvgLiters)*int64(cfg.OnThresholdPct) {
			rec.Breakdown = true
		} else if int64(dailyLiters)*100 > int64(rec.AvgLiters)*int64(cfg.OffThresholdPct) {
			rec.Breakdown = false
		}
	}

	r.pushHistory(dayOfWeek, dailyLiters)
	r.current = types.DailyRecord{}
	return rec, true
}

// rollingAverage is the mean of up to the last 28 occurrences of
// dayOfWeek (§4.5 "rolling mean over the last 28 days for the same
// day-of-week").
func (r *Roller) rollingAverage(dayOfWeek int) int32 {
	n := r.histLen[dayOfWeek]
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		sum += int64(r.history[dayOfWeek][i])
	}
	return int32(sum / int64(n))
}

func (r *Roller) pushHistory(dayOfWeek int, liters int32) {
	idx := r.histNext[dayOfWeek]
	r.history[dayOfWeek][idx] = liters
	r.histNext[dayOfWeek] = (idx + 1) % 28
	if r.histLen[dayOfWeek] < 28 {
		r.histLen[dayOfWeek]++
	}
}
