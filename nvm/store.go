package nvm

import (
	"bytes"
	"encoding/binary"

	"waterpump-fw/errcode"
)

var byteOrder = binary.LittleEndian

// MagicValue marks an initialised store; it lives at the top of the
// address space, immediately after the last section (§4.2 "Layout
// discipline").
var MagicValue = [4]byte{0xA5, 0x5A, 0xFE, 0x00}

// Store presents section_id -> (header, entries) over a Backend.
type Store struct {
	backend   Backend
	sections  map[SectionID]SectionDescriptor
	order     []SectionID // address-ordered, for magic-address derivation
	magicAddr uint32
}

// NewStore builds a Store from an address-ordered section table. The
// magic marker is placed immediately after the last section's end.
func NewStore(backend Backend, sections []struct {
	ID   SectionID
	Desc SectionDescriptor
}) *Store {
	s := &Store{
		backend:  backend,
		sections: make(map[SectionID]SectionDescriptor, len(sections)),
	}
	var lastEnd uint32
	for _, e := range sections {
		s.sections[e.ID] = e.Desc
		s.order = append(s.order, e.ID)
		if e.Desc.EndAddr > lastEnd {
			lastEnd = e.Desc.EndAddr
		}
	}
	s.magicAddr = lastEnd
	return s
}

// Init scans for the magic marker; on absence it defaults every
// section and writes the marker. It then always re-reads every
// header, validating its checksum, defaulting any section that fails
// (§4.2 "init").
func (s *Store) Init() error {
	ok, err := s.hasMagic()
	if err != nil {
		return err
	}
	if !ok {
		for _, id := range s.order {
			if err := s.DefaultSection(id); err != nil {
				return err
			}
		}
		if err := s.writeMagic(); err != nil {
			return err
		}
	}

	for _, id := range s.order {
		hdr, err := s.readHeaderChecked(id)
		if err != nil || hdr.TypeTag != s.sections[id].TypeTag {
			if err := s.DefaultSection(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) hasMagic() (bool, error) {
	got, err := s.backend.ReadBytes(s.magicAddr, len(MagicValue))
	if err != nil {
		return false, err
	}
	return bytes.Equal(got, MagicValue[:]), nil
}

func (s *Store) writeMagic() error {
	return s.backend.WriteBytes(s.magicAddr, MagicValue[:])
}

func (s *Store) readHeaderChecked(id SectionID) (SectionHeader, error) {
	desc, ok := s.sections[id]
	if !ok {
		return SectionHeader{}, errcode.InvalidParams
	}
	raw, err := s.backend.ReadBytes(desc.StartAddr, headerSize)
	if err != nil {
		return SectionHeader{}, err
	}
	if !verifyChecksum(raw[:headerSize-1], raw[headerSize-1]) {
		return SectionHeader{}, errcode.CorruptEntry
	}
	return decodeHeader(raw), nil
}

// ReadHeader returns the section's current on-disk header.
func (s *Store) ReadHeader(id SectionID) (SectionHeader, error) {
	return s.readHeaderChecked(id)
}

// SetTail persists a new tail (count_or_tail) value for an array
// section, used by the ring's increment-tail acknowledgement (§4.3).
func (s *Store) SetTail(id SectionID, tail uint16) error {
	if _, ok := s.sections[id]; !ok {
		return errcode.InvalidParams
	}
	hdr, err := s.readHeaderChecked(id)
	if err != nil {
		return err
	}
	hdr.CountOrTail = tail
	return s.writeHeader(id, hdr)
}

// ReadCurrentEntry reads the entry at header.current_addr and verifies
// its trailing checksum (§4.2 "read_current_entry").
func (s *Store) ReadCurrentEntry(id SectionID) ([]byte, error) {
	desc, ok := s.sections[id]
	if !ok {
		return nil, errcode.InvalidParams
	}
	hdr, err := s.readHeaderChecked(id)
	if err != nil {
		return nil, err
	}
	raw, err := s.backend.ReadBytes(hdr.CurrentAddr, int(desc.EntryLen))
	if err != nil {
		return nil, err
	}
	body, cs := raw[:len(raw)-1], raw[len(raw)-1]
	if !verifyChecksum(body, cs) {
		return nil, errcode.CorruptEntry
	}
	return body, nil
}

// UpdateCurrentEntry writes entry at the current address, recomputing
// its trailing checksum. If bump is set and the section is an array,
// head is advanced modulo capacity first and current_addr is
// recomputed. wasFull tells Store whether the buffer was already full
// going into this call — head==tail is ambiguous between empty and
// full, so (per the ring's own full-flag discipline, C3) the caller
// tracks that state and passes it in rather than Store inferring it
// from the header alone. The returned full reports the state after
// this bump (§4.2 "update_current_entry").
func (s *Store) UpdateCurrentEntry(id SectionID, entry []byte, bump, wasFull bool) (full bool, err error) {
	desc, ok := s.sections[id]
	if !ok {
		return false, errcode.InvalidParams
	}
	if len(entry) != int(desc.EntryLen)-1 {
		return false, errcode.InvalidParams
	}
	hdr, err := s.readHeaderChecked(id)
	if err != nil {
		return false, err
	}

	full = wasFull
	if bump && desc.IsArray {
		capacity := desc.DefaultCount
		if capacity == 0 {
			capacity = uint16((desc.EndAddr - desc.StartAddr - headerSize) / uint32(desc.EntryLen))
		}
		if wasFull {
			// Buffer already full before this write: the tail moves with
			// the head so the oldest entry is discarded.
			hdr.CountOrTail = (hdr.CountOrTail + 1) % capacity
		}
		hdr.Head = (hdr.Head + 1) % capacity
		hdr.CurrentAddr = desc.StartAddr + headerSize + uint32(hdr.Head)*uint32(desc.EntryLen)
		if err := s.writeHeader(id, hdr); err != nil {
			return false, err
		}
		full = hdr.Head == hdr.CountOrTail
	}

	cs := computeChecksum(entry)
	out := make([]byte, 0, int(desc.EntryLen))
	out = append(out, entry...)
	out = append(out, cs)
	if err := s.backend.WriteBytes(hdr.CurrentAddr, out); err != nil {
		return full, err
	}
	return full, nil
}

func (s *Store) writeHeader(id SectionID, hdr SectionHeader) error {
	desc := s.sections[id]
	return s.backend.WriteBytes(desc.StartAddr, encodeHeader(hdr))
}

// DumpSection returns a section's header plus every entry's raw body
// (checksum byte stripped), for the read-only "dump sections" debug
// peek named in commandLineDriver.c. It never mutates the store.
func (s *Store) DumpSection(id SectionID) (SectionHeader, [][]byte, error) {
	desc, ok := s.sections[id]
	if !ok {
		return SectionHeader{}, nil, errcode.InvalidParams
	}
	hdr, err := s.readHeaderChecked(id)
	if err != nil {
		return SectionHeader{}, nil, err
	}
	count := desc.DefaultCount
	if count == 0 {
		count = uint16((desc.EndAddr - desc.StartAddr - headerSize) / uint32(desc.EntryLen))
	}
	entries := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		addr := desc.StartAddr + headerSize + uint32(i)*uint32(desc.EntryLen)
		raw, err := s.backend.ReadBytes(addr, int(desc.EntryLen))
		if err != nil {
			return hdr, entries, err
		}
		entries = append(entries, raw[:len(raw)-1])
	}
	return hdr, entries, nil
}

// DefaultSection writes default_count copies of the default blob and
// a freshly computed header (§4.2 "default_section").
func (s *Store) DefaultSection(id SectionID) error {
	desc, ok := s.sections[id]
	if !ok {
		return errcode.InvalidParams
	}
	entryBody := int(desc.EntryLen) - 1
	for i := 0; i < int(desc.DefaultCount); i++ {
		addr := desc.StartAddr + headerSize + uint32(i)*uint32(desc.EntryLen)
		body := desc.DefaultBlob
		if len(body) != entryBody {
			body = make([]byte, entryBody)
		}
		cs := computeChecksum(body)
		out := append(append([]byte(nil), body...), cs)
		if err := s.backend.WriteBytes(addr, out); err != nil {
			return err
		}
	}

	hdr := SectionHeader{
		TypeTag:     desc.TypeTag,
		Head:        desc.DefaultCount,
		CountOrTail: desc.DefaultCount,
		EntryLen:    desc.EntryLen,
		CurrentAddr: desc.StartAddr + headerSize,
	}
	if desc.IsArray {
		hdr.CurrentAddr += uint32(desc.DefaultCount) * uint32(desc.EntryLen)
	}
	return s.writeHeader(id, hdr)
}
