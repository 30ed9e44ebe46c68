package control

import (
	"time"

	"waterpump-fw/asp"
	"waterpump-fw/errcode"
	"waterpump-fw/types"
)

// Config mirrors the ASP Config (0x10) message fields (§4.6, §6).
type Config struct {
	WakeIntervalDays   uint16
	StrokeAlgOn        bool
	RedFlagOnPct       uint16
	RedFlagOffPct      uint16
}

// Hooks are the platform actions the loop drives but doesn't itself
// implement, injected the way the teacher injects bridge.UARTDial for
// platform-specific behaviour.
type Hooks struct {
	AssertWakeAM         func()
	ClearWakeAM          func()
	MeasureBatteryVoltage func()
	PowerCycleSystem     func()
	// JumpToBootloader flushes persistent state and jumps to the
	// bootloader entry point; it never returns (original firmware's
	// 0x1000 entry boundary).
	JumpToBootloader func()
}

// HandleJumpToBootloaderCmd runs the bootloader-jump hook. Callers
// must treat this as terminal: JumpToBootloader never returns control.
func (l *Loop) HandleJumpToBootloaderCmd() {
	if l.hooks.JumpToBootloader != nil {
		l.hooks.JumpToBootloader()
	}
}

// HandlePowerCycleCmd runs the hard power-cycle hook on an explicit
// HwReset command, the same action the error-timer escalation in Tick
// drives after a Fault status send.
func (l *Loop) HandlePowerCycleCmd() {
	if l.hooks.PowerCycleSystem != nil {
		l.hooks.PowerCycleSystem()
	}
}

// Loop is the C6 application control loop: one instance per MCU side
// that owns activation state, the AM attention list and the runtime
// error timer (§4.6).
type Loop struct {
	now   func() time.Time
	hooks Hooks

	State            State
	ResetState       types.ResetState
	ValidTimestamp   bool
	UnexpectedResets uint32
	ActivationDate   int64
	DeactivationDate int64

	cfg                  Config
	transmissionRateDays uint16

	lastWakeupTime      time.Time
	lastTimeSync        time.Time
	lastDailyAdjust     time.Time
	lastRtcEpoch        time.Time
	needTimeSync        bool

	bootTime            time.Time
	waitingOnTimeSync   bool
	lastTimestampRetry  time.Time

	Errors          errcode.Bits
	errorStart      time.Time
	faultStatusSentAt time.Time

	Attn        asp.AttnBit
	waitingOnAM bool
	amWaitStart time.Time

	powerMeasurePending bool
	powerMeasureAt      time.Time
}

// NewLoop builds a Loop from values read at boot: the persisted reset
// reason, whether the RTC reports a valid time, the unexpected-reset
// counter read from device-info, and the persisted Config (§4.6, §7
// "unexpected-reset counter incremented on boot").
func NewLoop(now func() time.Time, hooks Hooks, cfg Config, resetState types.ResetState, validTimestamp bool, unexpectedResets uint32) *Loop {
	l := &Loop{
		now:                  now,
		hooks:                hooks,
		cfg:                  cfg,
		ResetState:           resetState,
		ValidTimestamp:       validTimestamp,
		UnexpectedResets:     unexpectedResets,
		State:                Deactivated,
		transmissionRateDays: cfg.WakeIntervalDays,
		bootTime:             now(),
		lastWakeupTime:       now(),
		lastTimeSync:         now(),
		lastDailyAdjust:      now(),
		lastTimestampRetry:   now(),
	}
	if !resetState.Intentional() {
		l.UnexpectedResets++
	}
	if validTimestamp {
		l.lastRtcEpoch = now()
	} else {
		l.IndicateError(errcode.NoRtcTime)
		l.waitingOnTimeSync = true
	}
	return l
}

// IndicateError raises an error bit, arming the error timer the first
// time a critical bit becomes set (§4.6 "Error aggregation").
func (l *Loop) IndicateError(bit errcode.Bits) {
	if bit&^errcode.NonCriticalMask != 0 {
		if l.Errors == 0 || l.Errors&^errcode.NonCriticalMask == 0 {
			l.errorStart = l.now()
		}
	}
	l.Errors = l.Errors.Set(bit)
}

// IndicateErrorResolved clears an error bit.
func (l *Loop) IndicateErrorResolved(bit errcode.Bits) {
	l.Errors = l.Errors.Clear(bit)
}

// wakeAM asserts the wake line, starts the 5-minute response timer and
// arms the 15-second post-wake battery-voltage sample (§4.6 "AM
// attention protocol", "Post-wake power measurement").
func (l *Loop) wakeAM() {
	l.waitingOnAM = true
	l.amWaitStart = l.now()
	l.schedulePowerMeasure()
	if l.hooks.AssertWakeAM != nil {
		l.hooks.AssertWakeAM()
	}
}

// IndicateActivation raises the Activate attention bit and wakes the
// AM. The global state itself only moves to Activated once the AM
// sends back the Activate command (HandleActivateCmd).
func (l *Loop) IndicateActivation() {
	l.Attn |= asp.AttnActivate
	l.wakeAM()
}

// IndicateNeedTime raises RequestTime, and while we have no time at
// all also raises CheckInDeactivated so the cloud sees a status even
// without timestamped sensor data (§4.6 "No-time startup path").
func (l *Loop) IndicateNeedTime() {
	l.Attn |= asp.AttnRequestTime
	if l.Errors.Has(errcode.NoRtcTime) {
		l.Attn |= asp.AttnCheckInDeactivated
		l.wakeAM()
	}
}

// IndicateCheckIn raises the state-appropriate check-in bit, piggy-backs
// a time-sync request if one is outstanding, and wakes the AM.
func (l *Loop) IndicateCheckIn() {
	if l.State == Activated {
		l.Attn |= asp.AttnCheckInActivated
	} else {
		l.Attn |= asp.AttnCheckInDeactivated
	}
	if l.needTimeSync {
		l.IndicateNeedTime()
	}
	l.wakeAM()
}

// HandleAttnAck clears acked bits from the pending attention list and
// deasserts the wake line once none remain (§4.6 "AM attention
// protocol").
func (l *Loop) HandleAttnAck(acked asp.AttnBit) {
	l.Attn &^= acked
	if l.Attn == 0 {
		if l.hooks.ClearWakeAM != nil {
			l.hooks.ClearWakeAM()
		}
		l.waitingOnAM = false
		if l.Errors.Has(errcode.AmNotResponsive) {
			l.IndicateErrorResolved(errcode.AmNotResponsive)
		}
	}
}

// HandleActivateCmd moves to Activated and records the activation
// timestamp, a no-op if already activated.
func (l *Loop) HandleActivateCmd(unixTime int64) {
	if l.State == Activated {
		return
	}
	l.State = Activated
	l.ActivationDate = unixTime
	l.lastWakeupTime = l.now()
	l.transmissionRateDays = l.cfg.WakeIntervalDays
}

// HandleDeactivateCmd moves to Deactivated, wipes the activation date
// and resets the wake cadence to the unconfigured default.
func (l *Loop) HandleDeactivateCmd(unixTime int64) {
	if l.State == Deactivated {
		return
	}
	l.State = Deactivated
	l.DeactivationDate = unixTime
	l.ActivationDate = 0
	l.transmissionRateDays = WakeRateDeactivatedDays
}

// ApplyConfig installs a newly-validated Config (§6 "Config message").
func (l *Loop) ApplyConfig(cfg Config) {
	l.cfg = cfg
	l.transmissionRateDays = cfg.WakeIntervalDays
}

// schedulePowerMeasure arms the post-wake battery-voltage sample delay
// (§4.6 "Post-wake power measurement").
func (l *Loop) schedulePowerMeasure() {
	l.powerMeasurePending = true
	l.powerMeasureAt = l.now()
}

// HourBoundary is called by the caller once C5's rollup finalises a
// day: it decides whether the accumulated entry count (or a fresh
// red-flag) should wake the AM (§4.5, §4.6 "Activated periodic").
func (l *Loop) HourBoundary(entryCount int, newRedFlag bool) {
	if l.State != Activated {
		return
	}
	if entryCount < int(l.transmissionRateDays) && !newRedFlag {
		return
	}
	if l.now().Sub(l.lastTimeSync) >= TimeSyncRateDays*24*time.Hour {
		l.lastTimeSync = l.now()
		l.needTimeSync = true
	}
	l.IndicateCheckIn()
}

// Tick runs one pass of the main loop's periodic checks (§4.6 "Polled
// at the main loop's cadence"). totalLiters is the algorithm's running
// total since last reset to zero (monitored for the activation
// threshold).
func (l *Loop) Tick(totalLiters int32) {
	now := l.now()

	if !l.ValidTimestamp && now.Sub(l.lastTimestampRetry) >= TimeSyncRetryInterval {
		l.lastTimestampRetry = now
		l.IndicateError(errcode.NoRtcTime)
		l.IndicateNeedTime()
	}

	if !l.ValidTimestamp && l.waitingOnTimeSync && now.Sub(l.bootTime) >= NoRtcTimeBootWait {
		l.waitingOnTimeSync = false
		l.IndicateNeedTime()
	}

	if l.State == Deactivated && now.Sub(l.lastWakeupTime) >= time.Duration(l.transmissionRateDays)*24*time.Hour {
		l.lastWakeupTime = now
		l.needTimeSync = true
		l.IndicateCheckIn()
	}

	if l.State != Activated && totalLiters >= LitersToActivate {
		l.IndicateActivation()
	}

	if l.waitingOnAM && now.Sub(l.amWaitStart) >= AttnResponseTimeout {
		l.IndicateError(errcode.AmNotResponsive)
		if l.hooks.ClearWakeAM != nil {
			l.hooks.ClearWakeAM()
		}
		l.wakeAM()
	}

	if l.powerMeasurePending && now.Sub(l.powerMeasureAt) >= PowerMeasureDelay {
		l.powerMeasurePending = false
		if l.hooks.MeasureBatteryVoltage != nil {
			l.hooks.MeasureBatteryVoltage()
		}
	}

	if l.Errors.Critical() {
		if now.Sub(l.errorStart) >= ErrorTimerDuration {
			if l.State != Fault {
				l.State = Fault
				l.faultStatusSentAt = now
				l.IndicateCheckIn()
			} else if now.Sub(l.faultStatusSentAt) >= FaultStatusWaitDuration {
				if l.hooks.PowerCycleSystem != nil {
					l.hooks.PowerCycleSystem()
				}
			}
		}
	}

	if l.ValidTimestamp && now.Sub(l.lastDailyAdjust) >= 24*time.Hour {
		l.lastDailyAdjust = now
		drift := 24*time.Hour - now.Sub(l.lastRtcEpoch)
		l.lastWakeupTime = l.lastWakeupTime.Add(-drift)
		l.lastRtcEpoch = now
		l.Errors = l.Errors.Clear(errcode.Bits(errcode.AvgSamplePeriodDrift|errcode.MissedSampleThresh) << errcode.AlgoShift)
	}
}
