package asp

import (
	"bytes"
	"encoding/binary"

	"waterpump-fw/errcode"
	"waterpump-fw/types"
)

// This file packs/unpacks payload structs to the little-endian byte
// layout carried on the wire. The ASP link has no library analogue
// among the example repos (it is fixed-format binary framing, not
// JSON), so encoding/binary is used directly rather than through a
// third-party codec.

var byteOrder = binary.LittleEndian

func MarshalCommand(p CommandPayload) []byte {
	return []byte{byte(p.Cmd)}
}

func UnmarshalCommand(b []byte) (CommandPayload, error) {
	if len(b) != 1 {
		return CommandPayload{}, errcode.InvalidPayload
	}
	return CommandPayload{Cmd: Command(b[0])}, nil
}

func MarshalConfig(p ConfigPayload) []byte {
	buf := make([]byte, 9)
	byteOrder.PutUint16(buf[0:2], p.WakeIntervalDays)
	if p.StrokeAlgIsOn {
		buf[2] = 1
	}
	byteOrder.PutUint16(buf[3:5], p.RedFlagOnThreshold)
	byteOrder.PutUint16(buf[5:7], p.RedFlagOffThreshold)
	// buf[7:9] reserved, left zero.
	return buf
}

func UnmarshalConfig(b []byte) (ConfigPayload, error) {
	if len(b) != 9 {
		return ConfigPayload{}, errcode.InvalidPayload
	}
	return ConfigPayload{
		WakeIntervalDays:    byteOrder.Uint16(b[0:2]),
		StrokeAlgIsOn:       b[2] != 0,
		RedFlagOnThreshold:  byteOrder.Uint16(b[3:5]),
		RedFlagOffThreshold: byteOrder.Uint16(b[5:7]),
	}, nil
}

func MarshalSetRtc(p SetRtcPayload) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, p.UnixTime)
	return buf
}

func UnmarshalSetRtc(b []byte) (SetRtcPayload, error) {
	if len(b) != 4 {
		return SetRtcPayload{}, errcode.InvalidPayload
	}
	return SetRtcPayload{UnixTime: byteOrder.Uint32(b)}, nil
}

func MarshalGetSensorData(p GetSensorDataPayload) []byte {
	buf := make([]byte, 2)
	byteOrder.PutUint16(buf, p.EntryIndex)
	return buf
}

func UnmarshalGetSensorData(b []byte) (GetSensorDataPayload, error) {
	if len(b) != 2 {
		return GetSensorDataPayload{}, errcode.InvalidPayload
	}
	return GetSensorDataPayload{EntryIndex: byteOrder.Uint16(b)}, nil
}

func MarshalAttnAck(p AttnAckPayload) []byte { return []byte{byte(p.Bits)} }

func UnmarshalAttnAck(b []byte) (AttnAckPayload, error) {
	if len(b) != 1 {
		return AttnAckPayload{}, errcode.InvalidPayload
	}
	return AttnAckPayload{Bits: AttnBit(b[0])}, nil
}

func MarshalAttnSrc(p AttnSrcPayload) []byte { return []byte{byte(p.Bits)} }

func UnmarshalAttnSrc(b []byte) (AttnSrcPayload, error) {
	if len(b) != 1 {
		return AttnSrcPayload{}, errcode.InvalidPayload
	}
	return AttnSrcPayload{Bits: AttnBit(b[0])}, nil
}

func MarshalNumDataEntries(p NumDataEntriesPayload) []byte {
	buf := make([]byte, 2)
	byteOrder.PutUint16(buf, p.NumEntries)
	return buf
}

func UnmarshalNumDataEntries(b []byte) (NumDataEntriesPayload, error) {
	if len(b) != 2 {
		return NumDataEntriesPayload{}, errcode.InvalidPayload
	}
	return NumDataEntriesPayload{NumEntries: byteOrder.Uint16(b)}, nil
}

func MarshalAck(p AckPayload) []byte { return []byte{p.ID} }

func UnmarshalAck(b []byte) (AckPayload, error) {
	if len(b) != 1 {
		return AckPayload{}, errcode.InvalidPayload
	}
	return AckPayload{ID: b[0]}, nil
}

func MarshalNack(NackPayload) []byte { return nil }

const statusPayloadLen = 1 + 1 + 4 + 4 + 4 + 4 + 4 + 1 + 1 + 4 + 4 + 4

func MarshalStatus(p StatusPayload) []byte {
	buf := make([]byte, statusPayloadLen)
	i := 0
	buf[i] = byte(p.ResetState)
	i++
	buf[i] = p.ActivatedState
	i++
	buf[i] = p.FwVersion.Major
	i++
	buf[i] = p.FwVersion.Minor
	i++
	byteOrder.PutUint16(buf[i:i+2], p.FwVersion.Build)
	i += 2
	byteOrder.PutUint32(buf[i:i+4], p.ErrorBits)
	i += 4
	byteOrder.PutUint32(buf[i:i+4], p.Timestamp)
	i += 4
	byteOrder.PutUint32(buf[i:i+4], p.VoltageMv)
	i += 4
	byteOrder.PutUint32(buf[i:i+4], p.PowerRemainingPercent)
	i += 4
	if p.MagnetDetected {
		buf[i] = 1
	}
	i++
	if p.Breakdown {
		buf[i] = 1
	}
	i++
	byteOrder.PutUint32(buf[i:i+4], p.ActivatedDate)
	i += 4
	byteOrder.PutUint32(buf[i:i+4], p.UnexpectedResetCount)
	i += 4
	byteOrder.PutUint32(buf[i:i+4], p.TimeLastReset)
	return buf
}

func UnmarshalStatus(b []byte) (StatusPayload, error) {
	if len(b) != statusPayloadLen {
		return StatusPayload{}, errcode.InvalidPayload
	}
	var p StatusPayload
	i := 0
	p.ResetState = types.ResetState(b[i])
	i++
	p.ActivatedState = b[i]
	i++
	p.FwVersion.Major = b[i]
	i++
	p.FwVersion.Minor = b[i]
	i++
	p.FwVersion.Build = byteOrder.Uint16(b[i : i+2])
	i += 2
	p.ErrorBits = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.Timestamp = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.VoltageMv = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.PowerRemainingPercent = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.MagnetDetected = b[i] != 0
	i++
	p.Breakdown = b[i] != 0
	i++
	p.ActivatedDate = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.UnexpectedResetCount = byteOrder.Uint32(b[i : i+4])
	i += 4
	p.TimeLastReset = byteOrder.Uint32(b[i : i+4])
	return p, nil
}

// MarshalSensorData packs a full entry: header, kind byte, the 24-slot
// hourly arrays and daily scalars, and the optional engineering block.
func MarshalSensorData(p SensorDataPayload) []byte {
	var buf bytes.Buffer
	e := p.Entry

	var hdr [2 + 8 + 4 + 1 + 1 + 2]byte
	byteOrder.PutUint16(hdr[0:2], e.Header.ProductID)
	byteOrder.PutUint64(hdr[2:10], uint64(e.Header.Timestamp))
	byteOrder.PutUint32(hdr[10:14], e.Header.Sequence)
	hdr[14] = e.Header.FwVersion.Major
	hdr[15] = e.Header.FwVersion.Minor
	byteOrder.PutUint16(hdr[16:18], e.Header.FwVersion.Build)
	buf.Write(hdr[:])

	logBytes := []byte(e.Header.LogString)
	var logLen [2]byte
	byteOrder.PutUint16(logLen[:], uint16(len(logBytes)))
	buf.Write(logLen[:])
	buf.Write(logBytes)

	buf.WriteByte(byte(e.Kind))

	writeInt32Slots(&buf, e.Data.Hourly.Liters)
	writeInt16Slots(&buf, e.Data.Hourly.TemperatureC)
	writeInt16Slots(&buf, e.Data.Hourly.HumidityPct)
	writeInt32Slots(&buf, e.Data.Hourly.Strokes)
	writeInt32Slots(&buf, e.Data.Hourly.StrokeHeight)

	var scalars [4 * 8]byte
	byteOrder.PutUint32(scalars[0:4], uint32(e.Data.DailyLiters))
	byteOrder.PutUint32(scalars[4:8], uint32(e.Data.AvgLiters))
	byteOrder.PutUint32(scalars[8:12], uint32(e.Data.PumpCapacity))
	byteOrder.PutUint32(scalars[12:16], uint32(e.Data.PumpUsage))
	byteOrder.PutUint32(scalars[16:20], uint32(e.Data.DryStrokeCount))
	byteOrder.PutUint32(scalars[20:24], uint32(e.Data.DryStrokeHeight))
	byteOrder.PutUint32(scalars[28:32], uint32(e.Data.BatteryMilliV))
	buf.Write(scalars[:])
	if e.Data.Breakdown {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var tail [8 + 4 + 4 + 8]byte
	byteOrder.PutUint64(tail[0:8], uint64(e.Data.TimestampUnix))
	byteOrder.PutUint32(tail[8:12], e.Data.ErrorBits)
	byteOrder.PutUint32(tail[12:16], e.Data.ResetCounter)
	byteOrder.PutUint64(tail[16:24], uint64(e.Data.ActivationDate))
	buf.Write(tail[:])

	if e.Engineering != nil {
		buf.WriteByte(1)
		var eng [8 + 8 + 4 + 2]byte
		byteOrder.PutUint64(eng[0:8], uint64(e.Engineering.RawAccumProcessedSamples))
		byteOrder.PutUint64(eng[8:16], uint64(e.Engineering.RawAccumWaterSamples))
		byteOrder.PutUint32(eng[16:20], e.Engineering.MissedSampleCount)
		byteOrder.PutUint16(eng[20:22], e.Engineering.LateRunCounter)
		buf.Write(eng[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// UnmarshalSensorData reverses MarshalSensorData. It is the AM side's
// counterpart, used when decoding an incoming SensorData (0x21) frame.
func UnmarshalSensorData(b []byte) (SensorDataPayload, error) {
	const hdrLen = 2 + 8 + 4 + 1 + 1 + 2
	if len(b) < hdrLen+2 {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	r := bytes.NewReader(b)
	hdr := make([]byte, hdrLen)
	if _, err := r.Read(hdr); err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}

	var e types.SensorDataEntry
	e.Header.ProductID = byteOrder.Uint16(hdr[0:2])
	e.Header.Timestamp = int64(byteOrder.Uint64(hdr[2:10]))
	e.Header.Sequence = byteOrder.Uint32(hdr[10:14])
	e.Header.FwVersion.Major = hdr[14]
	e.Header.FwVersion.Minor = hdr[15]
	e.Header.FwVersion.Build = byteOrder.Uint16(hdr[16:18])

	var logLen [2]byte
	if _, err := r.Read(logLen[:]); err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	n := byteOrder.Uint16(logLen[:])
	logBytes := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(logBytes); err != nil {
			return SensorDataPayload{}, errcode.InvalidPayload
		}
	}
	e.Header.LogString = string(logBytes)

	kind, err := r.ReadByte()
	if err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	e.Kind = types.SensorDataKind(kind)

	readInt32Slots(r, &e.Data.Hourly.Liters)
	readInt16Slots(r, &e.Data.Hourly.TemperatureC)
	readInt16Slots(r, &e.Data.Hourly.HumidityPct)
	readInt32Slots(r, &e.Data.Hourly.Strokes)
	readInt32Slots(r, &e.Data.Hourly.StrokeHeight)

	scalars := make([]byte, 4*8)
	if _, err := r.Read(scalars); err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	e.Data.DailyLiters = int32(byteOrder.Uint32(scalars[0:4]))
	e.Data.AvgLiters = int32(byteOrder.Uint32(scalars[4:8]))
	e.Data.PumpCapacity = int32(byteOrder.Uint32(scalars[8:12]))
	e.Data.PumpUsage = int32(byteOrder.Uint32(scalars[12:16]))
	e.Data.DryStrokeCount = int32(byteOrder.Uint32(scalars[16:20]))
	e.Data.DryStrokeHeight = int32(byteOrder.Uint32(scalars[20:24]))
	e.Data.BatteryMilliV = int32(byteOrder.Uint32(scalars[28:32]))

	breakdown, err := r.ReadByte()
	if err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	e.Data.Breakdown = breakdown != 0

	tail := make([]byte, 8+4+4+8)
	if _, err := r.Read(tail); err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	e.Data.TimestampUnix = int64(byteOrder.Uint64(tail[0:8]))
	e.Data.ErrorBits = byteOrder.Uint32(tail[8:12])
	e.Data.ResetCounter = byteOrder.Uint32(tail[12:16])
	e.Data.ActivationDate = int64(byteOrder.Uint64(tail[16:24]))

	hasEng, err := r.ReadByte()
	if err != nil {
		return SensorDataPayload{}, errcode.InvalidPayload
	}
	if hasEng != 0 {
		eng := make([]byte, 8+8+4+2)
		if _, err := r.Read(eng); err != nil {
			return SensorDataPayload{}, errcode.InvalidPayload
		}
		e.Engineering = &types.EngineeringData{
			RawAccumProcessedSamples: int64(byteOrder.Uint64(eng[0:8])),
			RawAccumWaterSamples:     int64(byteOrder.Uint64(eng[8:16])),
			MissedSampleCount:        byteOrder.Uint32(eng[16:20]),
			LateRunCounter:           byteOrder.Uint16(eng[20:22]),
		}
	}

	return SensorDataPayload{Entry: e}, nil
}

func readInt32Slots(r *bytes.Reader, slots *[types.HoursPerDay]int32) {
	var b [4]byte
	for i := range slots {
		r.Read(b[:])
		slots[i] = int32(byteOrder.Uint32(b[:]))
	}
}

func readInt16Slots(r *bytes.Reader, slots *[types.HoursPerDay]int16) {
	var b [2]byte
	for i := range slots {
		r.Read(b[:])
		slots[i] = int16(byteOrder.Uint16(b[:]))
	}
}

func writeInt32Slots(buf *bytes.Buffer, slots [types.HoursPerDay]int32) {
	var b [4]byte
	for _, v := range slots {
		byteOrder.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	}
}

func writeInt16Slots(buf *bytes.Buffer, slots [types.HoursPerDay]int16) {
	var b [2]byte
	for _, v := range slots {
		byteOrder.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	}
}
