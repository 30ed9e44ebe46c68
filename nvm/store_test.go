package nvm

import (
	"bytes"
	"testing"
)

type sectionEntry = struct {
	ID   SectionID
	Desc SectionDescriptor
}

const (
	secScalar SectionID = iota
	secArray
)

func testStore(t *testing.T) *Store {
	t.Helper()
	backend := NewMemBackend(4096)
	sections := []sectionEntry{
		{
			ID: secScalar,
			Desc: SectionDescriptor{
				TypeTag:      1,
				StartAddr:    0,
				EndAddr:      0 + headerSize + 16,
				IsArray:      false,
				EntryLen:     16,
				DefaultCount: 1,
				DefaultBlob:  bytes.Repeat([]byte{0xAA}, 15),
			},
		},
		{
			ID: secArray,
			Desc: SectionDescriptor{
				TypeTag:      2,
				StartAddr:    headerSize + 16,
				EndAddr:      headerSize + 16 + headerSize + 4*8,
				IsArray:      true,
				EntryLen:     8,
				DefaultCount: 0,
			},
		},
	}
	s := NewStore(backend, sections)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestStoreInitWritesMagicAndDefaults(t *testing.T) {
	s := testStore(t)
	ok, err := s.hasMagic()
	if err != nil || !ok {
		t.Fatalf("expected magic marker after Init, ok=%v err=%v", ok, err)
	}
	hdr, err := s.ReadHeader(secScalar)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.TypeTag != 1 {
		t.Fatalf("got type tag %d, want 1", hdr.TypeTag)
	}
}

func TestStoreReadCurrentEntryRoundTrip(t *testing.T) {
	s := testStore(t)
	entry, err := s.ReadCurrentEntry(secScalar)
	if err != nil {
		t.Fatalf("ReadCurrentEntry: %v", err)
	}
	want := bytes.Repeat([]byte{0xAA}, 15)
	if !bytes.Equal(entry, want) {
		t.Fatalf("got %x, want %x", entry, want)
	}
}

func TestStoreUpdateCurrentEntryArrayBump(t *testing.T) {
	s := testStore(t)
	full := false
	for i := 0; i < 4; i++ {
		entry := bytes.Repeat([]byte{byte(i)}, 7)
		var err error
		full, err = s.UpdateCurrentEntry(secArray, entry, true, full)
		if err != nil {
			t.Fatalf("UpdateCurrentEntry[%d]: %v", i, err)
		}
		if i < 3 && full {
			t.Fatalf("buffer reported full too early at i=%d", i)
		}
		if i == 3 && !full {
			t.Fatalf("buffer should be full after filling all 4 slots")
		}
	}

	got, err := s.ReadCurrentEntry(secArray)
	if err != nil {
		t.Fatalf("ReadCurrentEntry: %v", err)
	}
	want := bytes.Repeat([]byte{3}, 7)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}

	// One more bump should overwrite the oldest entry and keep reporting full.
	entry := bytes.Repeat([]byte{9}, 7)
	full, err = s.UpdateCurrentEntry(secArray, entry, true, full)
	if err != nil {
		t.Fatalf("UpdateCurrentEntry overwrite: %v", err)
	}
	if !full {
		t.Fatal("buffer should remain full after overwrite-bump")
	}
}

func TestStoreDefaultSectionOnCorruptHeader(t *testing.T) {
	backend := NewMemBackend(4096)
	sections := []sectionEntry{
		{
			ID: secScalar,
			Desc: SectionDescriptor{
				TypeTag:      1,
				StartAddr:    0,
				EndAddr:      headerSize + 16,
				IsArray:      false,
				EntryLen:     16,
				DefaultCount: 1,
				DefaultBlob:  bytes.Repeat([]byte{0xAA}, 15),
			},
		},
	}
	s := NewStore(backend, sections)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Corrupt the header's checksum byte directly in the backend.
	raw, _ := backend.ReadBytes(0, headerSize)
	raw[headerSize-1] ^= 0xFF
	backend.WriteBytes(0, raw)

	if err := s.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	hdr, err := s.ReadHeader(secScalar)
	if err != nil {
		t.Fatalf("ReadHeader after recovery: %v", err)
	}
	if hdr.TypeTag != 1 {
		t.Fatalf("section was not re-defaulted correctly: %+v", hdr)
	}
}
