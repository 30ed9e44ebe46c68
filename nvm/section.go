package nvm

// SectionID names one of the store's declared sections.
type SectionID uint8

// SectionDescriptor is the compile-time layout for one section (§3
// "Section descriptor"): start < end, sections never overlap, and the
// last section's end must precede the magic-value address.
type SectionDescriptor struct {
	TypeTag      uint8
	StartAddr    uint32
	EndAddr      uint32
	IsArray      bool
	EntryLen     uint16 // includes the trailing checksum byte
	DefaultCount uint16
	DefaultBlob  []byte // one entry's worth of default payload (entry_len-1 bytes)
}

// headerSize is the on-disk size of SectionHeader: type(1) + head(2) +
// countOrTail(2) + entryLen(2) + currentAddr(4) + checksum(1).
const headerSize = 12

// SectionHeader is the on-disk header preceding a section's entries
// (§3 "Section header on disk").
type SectionHeader struct {
	TypeTag     uint8
	Head        uint16
	CountOrTail uint16
	EntryLen    uint16
	CurrentAddr uint32
	Checksum    uint8
}

func encodeHeader(h SectionHeader) []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.TypeTag
	byteOrder.PutUint16(buf[1:3], h.Head)
	byteOrder.PutUint16(buf[3:5], h.CountOrTail)
	byteOrder.PutUint16(buf[5:7], h.EntryLen)
	byteOrder.PutUint32(buf[7:11], h.CurrentAddr)
	buf[11] = computeChecksum(buf[:11])
	return buf
}

func decodeHeader(buf []byte) SectionHeader {
	return SectionHeader{
		TypeTag:     buf[0],
		Head:        byteOrder.Uint16(buf[1:3]),
		CountOrTail: byteOrder.Uint16(buf[3:5]),
		EntryLen:    byteOrder.Uint16(buf[5:7]),
		CurrentAddr: byteOrder.Uint32(buf[7:11]),
		Checksum:    buf[11],
	}
}

// computeChecksum is the 2's-complement 8-bit sum used for both
// section headers and entry trailers (§3: "checksum is 2's-complement
// of preceding bytes").
func computeChecksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return -sum
}

func verifyChecksum(data []byte, want uint8) bool {
	return computeChecksum(data) == want
}
