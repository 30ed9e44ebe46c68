package asp

import "waterpump-fw/errcode"

// Direction selects which end of the link a Decoder is receiving for,
// and therefore which message IDs are legal (§4.1 "Allowed IDs").
type Direction uint8

const (
	// AMToSSM decodes frames sent from AM to SSM (the SSM's receiver).
	AMToSSM Direction = iota
	// SSMToAM decodes frames sent from SSM to AM (the AM's receiver).
	SSMToAM
)

var amToSSMIDs = map[MsgID]bool{
	IDConfig:        true,
	IDCommand:       true,
	IDSetRtc:        true,
	IDGetSensorData: true,
	IDAttnAck:       true,
}

var ssmToAMIDs = map[MsgID]bool{
	IDStatus:         true,
	IDSensorData:     true,
	IDAttnSrc:        true,
	IDNumDataEntries: true,
	IDAck:            true,
	IDNack:           true,
}

func (d Direction) allows(id MsgID) bool {
	if d == AMToSSM {
		return amToSSMIDs[id]
	}
	return ssmToAMIDs[id]
}

type rxState uint8

const (
	lookForStart rxState = iota
	recvLen
	recvID
	recvPayload
	recvChecksum
)

// Decoder is a single receive-direction instance of the framed codec's
// byte state machine (§4.1). It tolerates arbitrary resynchronisation
// after line noise: any framing failure returns to LookForStart rather
// than needing an escape sequence.
type Decoder struct {
	dir     Direction
	state   rxState
	length  byte
	id      MsgID
	payload []byte
	rxCount byte
}

// NewDecoder returns a Decoder that only accepts IDs legal for dir.
func NewDecoder(dir Direction) *Decoder {
	return &Decoder{dir: dir, payload: make([]byte, 0, MaxPayload)}
}

// Feed advances the state machine by one received byte. It returns a
// decoded Frame once a complete, checksum-valid frame has arrived. A
// non-nil error means a framing failure occurred (bad length, unknown
// ID, or bad checksum); the decoder has already returned to
// LookForStart, and the caller is expected to transmit a Nack.
func (d *Decoder) Feed(b byte) (*Frame, error) {
	switch d.state {
	case lookForStart:
		if b == startByte {
			d.state = recvLen
		}
		return nil, nil

	case recvLen:
		if b > MaxPayload {
			d.reset()
			return nil, errcode.InvalidLen
		}
		d.length = b
		d.payload = d.payload[:0]
		d.rxCount = 0
		d.state = recvID
		return nil, nil

	case recvID:
		id := MsgID(b)
		if !d.dir.allows(id) {
			d.reset()
			return nil, errcode.InvalidMsgID
		}
		d.id = id
		if d.length > 0 {
			d.state = recvPayload
		} else {
			d.state = recvChecksum
		}
		return nil, nil

	case recvPayload:
		d.payload = append(d.payload, b)
		d.rxCount++
		if d.rxCount == d.length {
			d.state = recvChecksum
		}
		return nil, nil

	case recvChecksum:
		want := checksum(d.length, byte(d.id), d.payload)
		id, payload := d.id, append([]byte(nil), d.payload...)
		d.reset()
		if b != want {
			return nil, errcode.InvalidChksum
		}
		return &Frame{ID: id, Payload: payload}, nil

	default:
		d.reset()
		return nil, nil
	}
}

func (d *Decoder) reset() {
	d.state = lookForStart
	d.length = 0
	d.id = 0
	d.payload = d.payload[:0]
	d.rxCount = 0
}
