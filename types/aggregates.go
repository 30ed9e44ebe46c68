package types

// HoursPerDay is the per-hour slot count C5 rolls up into.
const HoursPerDay = 24

// HourlySlots holds the 24-slot-per-quantity aggregates described in §3.
type HourlySlots struct {
	Liters       [HoursPerDay]int32
	TemperatureC [HoursPerDay]int16 // deci-Celsius
	HumidityPct  [HoursPerDay]int16 // deci-percent
	Strokes      [HoursPerDay]int32
	StrokeHeight [HoursPerDay]int32
}

// DailyRecord is one day's rollup: the 24 hourly slots plus the daily
// singleton fields finalised at hour-wrap (§3, §4.5).
type DailyRecord struct {
	Hourly HourlySlots

	DailyLiters    int32
	AvgLiters      int32 // 28-day rolling mean for this day-of-week
	PumpCapacity   int32
	PumpUsage      int32
	DryStrokeCount int32
	DryStrokeHeight int32
	Breakdown      bool

	TimestampUnix  int64
	BatteryMilliV  int32
	State          string // mirrors control.State.String(), avoids an import cycle
	ErrorBits      uint32
	ResetCounter   uint32
	ActivationDate int64
}

// RedFlagOnDefaultPct and RedFlagOffDefaultPct are the §6 Config defaults;
// callers validate against [0,100] and RedFlagOff > RedFlagOn.
const (
	RedFlagOnDefaultPct  = 50
	RedFlagOffDefaultPct = 80
)
