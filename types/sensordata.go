package types

// SensorDataKind selects which on-wire shape a SensorDataEntry carries.
// SPEC_FULL.md resolves the §9 Open Question ("two sensor-data record
// shapes exist... which is definitive is not clear") by keeping both as
// explicit variants rather than guessing.
type SensorDataKind uint8

const (
	SensorDataNormal SensorDataKind = iota
	SensorDataEngineering
)

// Firmware is a major.minor.build version triple, reused for both the
// sensor-data header and the image registry.
type Firmware struct {
	Major uint8
	Minor uint8
	Build uint16
}

// SensorDataHeader precedes a DailyRecord payload in a persisted entry
// (§3 "Sensor data entry").
type SensorDataHeader struct {
	ProductID uint16
	Timestamp int64
	// Sequence is a monotonic per-message counter that wraps from
	// 2^32-1 back to 1 (0 is never a valid sequence number, per §3).
	Sequence uint32
	FwVersion Firmware
	LogString string // optional; empty when absent
}

// SensorDataEntry is the full persisted/transmitted record: header, the
// rolled-up daily aggregates, and a kind selector for the wire-shape
// variant. The trailing checksum byte is computed by nvm/ring on
// serialization, not stored redundantly here.
type SensorDataEntry struct {
	Header SensorDataHeader
	Kind   SensorDataKind
	Data   DailyRecord
	// Engineering carries the raw diagnostic counters the ENGINEERING_DATA
	// wire variant adds; nil unless Kind == SensorDataEngineering.
	Engineering *EngineeringData
}

// EngineeringData is the supplemented ENGINEERING_DATA variant (SPEC_FULL
// §3): extra raw counters useful for field debugging that the normal
// per-hour record omits.
type EngineeringData struct {
	RawAccumProcessedSamples int64
	RawAccumWaterSamples     int64
	MissedSampleCount        uint32
	LateRunCounter           uint16
}

// NextSequence advances a wrapping sequence counter: 2^32-1 wraps to 1,
// never to 0 (§3).
func NextSequence(cur uint32) uint32 {
	if cur == 0xFFFFFFFF {
		return 1
	}
	return cur + 1
}
