package nvm

import (
	"time"

	"waterpump-fw/errcode"
)

// RawEEPROM is the low-level device the SSM's EEPROM backend drives:
// byte-addressable reads, and writes that may take time to commit
// (EEPROM page-write cycle).
type RawEEPROM interface {
	ReadByte(addr uint32) (byte, error)
	WriteByte(addr uint32, b byte) error
}

// eepromRetries is how many times a failed op is retried before the
// failure is escalated (§4.2 "every EEPROM op retries up to 2 times").
const eepromRetries = 2

// eepromWriteDeadline bounds how long a write-complete poll waits
// before giving up (§4.2 "deadline of 2s").
const eepromWriteDeadline = 2 * time.Second

// eepromPollInterval is how often the dummy-selective-read poll runs
// while waiting for a write cycle to finish.
const eepromPollInterval = 2 * time.Millisecond

// EEPROMBackend adapts a RawEEPROM to the Backend interface, applying
// the retry and write-poll policy the SSM's section store depends on.
type EEPROMBackend struct {
	dev   RawEEPROM
	sleep func(time.Duration)
	now   func() time.Time
}

// NewEEPROMBackend wraps dev. sleep/now default to time.Sleep/time.Now
// and are overridable for tests.
func NewEEPROMBackend(dev RawEEPROM) *EEPROMBackend {
	return &EEPROMBackend{dev: dev, sleep: time.Sleep, now: time.Now}
}

func (e *EEPROMBackend) ReadBytes(addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := e.readByteRetried(addr + uint32(i))
		if err != nil {
			return nil, errcode.EepromRead
		}
		out[i] = b
	}
	return out, nil
}

func (e *EEPROMBackend) WriteBytes(addr uint32, data []byte) error {
	for i, b := range data {
		if err := e.writeByteRetried(addr+uint32(i), b); err != nil {
			return errcode.EepromWrite
		}
	}
	return nil
}

func (e *EEPROMBackend) readByteRetried(addr uint32) (b byte, err error) {
	for attempt := 0; attempt <= eepromRetries; attempt++ {
		b, err = e.dev.ReadByte(addr)
		if err == nil {
			return b, nil
		}
	}
	return 0, err
}

func (e *EEPROMBackend) writeByteRetried(addr uint32, b byte) error {
	var err error
	for attempt := 0; attempt <= eepromRetries; attempt++ {
		if err = e.dev.WriteByte(addr, b); err != nil {
			continue
		}
		if err = e.pollWriteComplete(addr, b); err == nil {
			return nil
		}
	}
	return err
}

// pollWriteComplete dummy-selective-read polls until the byte just
// written reads back, or the deadline expires.
func (e *EEPROMBackend) pollWriteComplete(addr uint32, want byte) error {
	deadline := e.now().Add(eepromWriteDeadline)
	for {
		got, err := e.dev.ReadByte(addr)
		if err == nil && got == want {
			return nil
		}
		if e.now().After(deadline) {
			return errcode.Timeout
		}
		e.sleep(eepromPollInterval)
	}
}
