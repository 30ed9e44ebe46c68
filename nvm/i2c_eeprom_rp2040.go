//go:build rp2040

package nvm

import (
	"tinygo.org/x/drivers"

	"waterpump-fw/errcode"
)

// I2CEEPROM adapts a standard 24-series-style I2C EEPROM to RawEEPROM,
// the same drivers.I2C collaborator aht20.New and ltc4015.New already
// take, so the SSM's real EEPROM part rides the bus infrastructure the
// pack already depends on instead of a bespoke register protocol.
type I2CEEPROM struct {
	bus  drivers.I2C
	addr uint16
}

// NewI2CEEPROM wraps bus at the 7-bit device address addr.
func NewI2CEEPROM(bus drivers.I2C, addr uint16) *I2CEEPROM {
	return &I2CEEPROM{bus: bus, addr: addr}
}

func (e *I2CEEPROM) ReadByte(addr uint32) (byte, error) {
	w := []byte{byte(addr >> 8), byte(addr)}
	var r [1]byte
	if err := e.bus.Tx(e.addr, w, r[:]); err != nil {
		return 0, errcode.EepromRead
	}
	return r[0], nil
}

func (e *I2CEEPROM) WriteByte(addr uint32, b byte) error {
	w := []byte{byte(addr >> 8), byte(addr), b}
	if err := e.bus.Tx(e.addr, w, nil); err != nil {
		return errcode.EepromWrite
	}
	return nil
}
