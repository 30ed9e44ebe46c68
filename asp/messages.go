package asp

import "waterpump-fw/types"

// AttnBit is one bit of the SSM->AM attention source bitset (§3 "Attention
// list"). The hardware attention GPIO is asserted iff any bit is set.
type AttnBit uint8

const (
	AttnActivate AttnBit = 1 << iota
	AttnRequestTime
	AttnCheckInActivated
	AttnCheckInDeactivated
	AttnSsmError
)

// ConfigPayload is the AM->SSM Config (0x10) message.
type ConfigPayload struct {
	WakeIntervalDays   uint16
	StrokeAlgIsOn      bool
	RedFlagOnThreshold uint16
	RedFlagOffThreshold uint16
}

// CommandPayload is the AM->SSM Command (0x11) message.
type CommandPayload struct {
	Cmd Command
}

// SetRtcPayload is the AM->SSM SetRtc (0x12) message: seconds since epoch.
type SetRtcPayload struct {
	UnixTime uint32
}

// GetSensorDataPayload is the AM->SSM GetSensorData (0x13) message,
// requesting the entry at the given ring index.
type GetSensorDataPayload struct {
	EntryIndex uint16
}

// AttnAckPayload is the AM->SSM AttnAck (0x25) message: echoes the
// attention bits the AM has now handled, so the SSM can clear them.
type AttnAckPayload struct {
	Bits AttnBit
}

// StatusPayload is the SSM->AM Status (0x20) message.
type StatusPayload struct {
	ResetState           types.ResetState
	ActivatedState        uint8 // mirrors control.State; avoids an import cycle
	FwVersion             types.Firmware
	ErrorBits             uint32
	Timestamp             uint32
	VoltageMv             uint32
	PowerRemainingPercent uint32
	MagnetDetected        bool
	Breakdown             bool
	ActivatedDate         uint32
	UnexpectedResetCount  uint32
	TimeLastReset         uint32
}

// SensorDataPayload is the SSM->AM SensorData (0x21) message: one full
// persisted entry.
type SensorDataPayload struct {
	Entry types.SensorDataEntry
}

// AttnSrcPayload is the SSM->AM AttnSrc (0x23) message.
type AttnSrcPayload struct {
	Bits AttnBit
}

// NumDataEntriesPayload is the SSM->AM NumDataEntries (0x24) message.
type NumDataEntriesPayload struct {
	NumEntries uint16
}

// AckPayload is the SSM->AM Ack (0x91) message: echoes the command byte
// that was accepted.
type AckPayload struct {
	ID uint8
}

// NackPayload is the SSM->AM Nack (0x92) message; always empty.
type NackPayload struct{}
