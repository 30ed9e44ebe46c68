package nvm

import "waterpump-fw/errcode"

// NANDBlockSize is the erase granularity the AM's NAND backend buffers
// a full block through (§4.2 "132 KB buffer").
const NANDBlockSize = 132 * 1024

// RawNAND is the low-level device the AM's NAND backend drives: whole
// blocks only, erase-before-write.
type RawNAND interface {
	ReadBlock(blockAddr uint32, buf []byte) error
	EraseBlock(blockAddr uint32) error
	WriteBlock(blockAddr uint32, buf []byte) error
}

// NANDBackend adapts a RawNAND to the Backend interface. Every write,
// however small, is satisfied by reading the enclosing block into a
// buffer, patching it, erasing, and rewriting the whole block — NAND
// has no in-place byte write (§4.2 "NAND writes proceed at the block
// level... full read-modify-erase-write of the enclosing block").
type NANDBackend struct {
	dev       RawNAND
	blockSize uint32
}

func NewNANDBackend(dev RawNAND) *NANDBackend {
	return &NANDBackend{dev: dev, blockSize: NANDBlockSize}
}

func (n *NANDBackend) blockOf(addr uint32) uint32 {
	return (addr / n.blockSize) * n.blockSize
}

func (n *NANDBackend) ReadBytes(addr uint32, size int) ([]byte, error) {
	blockAddr := n.blockOf(addr)
	buf := make([]byte, n.blockSize)
	if err := n.dev.ReadBlock(blockAddr, buf); err != nil {
		return nil, errcode.EepromRead
	}
	off := addr - blockAddr
	if int(off)+size > len(buf) {
		// Spans into the next block; not expected for section layout,
		// but handled by reading both blocks rather than corrupting data.
		next := make([]byte, n.blockSize)
		if err := n.dev.ReadBlock(blockAddr+n.blockSize, next); err != nil {
			return nil, errcode.EepromRead
		}
		buf = append(buf, next...)
	}
	out := make([]byte, size)
	copy(out, buf[off:int(off)+size])
	return out, nil
}

func (n *NANDBackend) WriteBytes(addr uint32, data []byte) error {
	blockAddr := n.blockOf(addr)
	buf := make([]byte, n.blockSize)
	if err := n.dev.ReadBlock(blockAddr, buf); err != nil {
		return errcode.EepromWrite
	}
	off := addr - blockAddr
	if int(off)+len(data) > len(buf) {
		return errcode.InvalidParams
	}
	copy(buf[off:], data)
	if err := n.dev.EraseBlock(blockAddr); err != nil {
		return errcode.EepromWrite
	}
	if err := n.dev.WriteBlock(blockAddr, buf); err != nil {
		return errcode.EepromWrite
	}
	return nil
}
