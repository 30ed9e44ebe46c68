package imagereg

import (
	"testing"

	"waterpump-fw/nvm"
	"waterpump-fw/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	backend := nvm.NewMemBackend(1024)
	sections := []struct {
		ID   nvm.SectionID
		Desc nvm.SectionDescriptor
	}{
		{
			ID: 0,
			Desc: nvm.SectionDescriptor{
				TypeTag:      3,
				StartAddr:    0,
				EndAddr:      12 + entryLen + 1,
				IsArray:      false,
				EntryLen:     entryLen + 1,
				DefaultCount: 1,
				DefaultBlob:  encode(defaultRegistry()),
			},
		},
	}
	store := nvm.NewStore(backend, sections)
	if err := store.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return New(store, 0)
}

func TestRegistrySaveLoadRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	reg := types.ImageRegistry{
		Slots: [2]types.ImageSlot{
			{State: types.Full, Version: types.Firmware{Major: 1, Minor: 2, Build: 300}},
			{State: types.Partial, Version: types.Firmware{Major: 1, Minor: 3, Build: 10}},
		},
		LoadedSlot:  types.SlotA,
		PrimarySlot: types.SlotB,
	}
	if err := r.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := r.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != reg {
		t.Fatalf("got %+v, want %+v", got, reg)
	}
}

func TestAlternateSlot(t *testing.T) {
	if AlternateSlot(types.SlotA) != types.SlotB {
		t.Fatal("alternate of A should be B")
	}
	if AlternateSlot(types.SlotB) != types.SlotA {
		t.Fatal("alternate of B should be A")
	}
	if AlternateSlot(types.SlotUnknown) != types.SlotUnknown {
		t.Fatal("alternate of Unknown should be Unknown")
	}
}

func TestLookupByVersion(t *testing.T) {
	reg := types.ImageRegistry{
		Slots: [2]types.ImageSlot{
			{Version: types.Firmware{Major: 1, Minor: 0, Build: 1}},
			{Version: types.Firmware{Major: 2, Minor: 0, Build: 5}},
		},
	}
	if got := LookupByVersion(reg, types.Firmware{Major: 2, Minor: 0, Build: 5}); got != types.SlotB {
		t.Fatalf("got %v, want SlotB", got)
	}
	if got := LookupByVersion(reg, types.Firmware{Major: 9, Minor: 9, Build: 9}); got != types.SlotUnknown {
		t.Fatalf("got %v, want SlotUnknown", got)
	}
}
