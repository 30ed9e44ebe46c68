package asp

import "waterpump-fw/x/shmring"

// Driver is the byte-queue boundary between an interrupt-context byte
// producer (the SPI/UART receive ISR) and the main loop's Decoder
// consumer (§5 "single-threaded cooperative main loop + event
// flags"). PushByte is safe to call from interrupt context; Poll runs
// on the main loop.
type Driver struct {
	ring    *shmring.Ring
	dec     *Decoder
	pending []byte // bytes already drained from ring but not yet fed to dec
}

// NewDriver allocates a ringSize-byte queue and a Decoder for dir.
func NewDriver(dir Direction, ringSize int) *Driver {
	return &Driver{ring: shmring.New(ringSize), dec: NewDecoder(dir)}
}

// PushByte enqueues one received byte. It never blocks; a full ring
// drops the byte; the decoder's resync-on-noise behaviour (§4.1) means
// a dropped byte surfaces as a checksum or framing failure rather than
// silent corruption.
func (d *Driver) PushByte(b byte) {
	d.ring.TryWriteFrom([]byte{b})
}

// Poll drains whatever bytes are queued and feeds them through the
// Decoder, returning at most one decoded Frame per call. A non-nil
// error is a single framing failure the decoder already resynced
// past; the caller is expected to Nack and keep polling.
func (d *Driver) Poll() (*Frame, error) {
	for {
		if len(d.pending) == 0 {
			var buf [64]byte
			n := d.ring.TryReadInto(buf[:])
			if n == 0 {
				return nil, nil
			}
			d.pending = append(d.pending[:0], buf[:n]...)
		}
		b := d.pending[0]
		d.pending = d.pending[1:]
		f, err := d.dec.Feed(b)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

// Readable exposes the ring's data-available signal so the main loop
// can select on it instead of busy-polling.
func (d *Driver) Readable() <-chan struct{} { return d.ring.Readable() }
