// Package types holds the domain value types shared across the sensor/state
// and application microcontroller packages: pad presence, per-hour and daily
// aggregates, sensor-data record shapes, image-registry entries and reset
// state. Protocol framing and section-store layout live in their own
// packages (asp, nvm); this package is the data they carry.
package types

// NumPads is the number of capacitive water-level pads in the column.
const NumPads = 8

// PresenceType is a pad's water-presence classification. Ordered
// NotPresent < Draining < Present so promotion (§4.4.a) can compare them.
type PresenceType uint8

const (
	NotPresent PresenceType = iota
	Draining
	Present
)

func (p PresenceType) String() string {
	switch p {
	case NotPresent:
		return "not_present"
	case Draining:
		return "draining"
	case Present:
		return "present"
	default:
		return "unknown"
	}
}

// PadState is one pad's presence classification plus its draining countdown.
type PadState struct {
	Presence     PresenceType
	DrainingCount uint8
}

// PadHeights are the fixed per-pad contribution to water height (§4.4.b),
// indexed pad1..pad8 (index 0..7). Units are not specified by the source;
// the integration scaler in the pipeline is calibrated against these
// magic constants and must not be rescaled independently (see Open
// Questions in SPEC_FULL.md).
var PadHeights = [NumPads]int16{262, 229, 197, 164, 131, 98, 66, 33}

// AlgoState is the top-level water-volume algorithm state (§3).
type AlgoState uint8

const (
	WaitForWater AlgoState = iota
	Measuring
)

func (s AlgoState) String() string {
	if s == Measuring {
		return "measuring"
	}
	return "wait_for_water"
}
