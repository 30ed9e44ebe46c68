// Package imagereg implements the AM's two-slot A/B firmware image
// registry (C8): per-slot operational state and version, a loaded
// slot and a primary slot, persisted via nvm.Store.
package imagereg

import (
	"encoding/binary"

	"waterpump-fw/errcode"
	"waterpump-fw/nvm"
	"waterpump-fw/types"
)

var byteOrder = binary.LittleEndian

// Registry wraps a persisted types.ImageRegistry behind the single
// section nvm.Store exposes it through.
type Registry struct {
	store   *nvm.Store
	section nvm.SectionID
}

func New(store *nvm.Store, section nvm.SectionID) *Registry {
	return &Registry{store: store, section: section}
}

// entryLen is the fixed on-disk layout: 2 slots * (state:1 + major:1 +
// minor:1 + build:2) + loadedSlot:1 + primarySlot:1 = 12 bytes.
const entryLen = 2*(1+1+1+2) + 1 + 1

func encode(r types.ImageRegistry) []byte {
	buf := make([]byte, entryLen)
	for i, slot := range r.Slots {
		off := i * 5
		buf[off] = byte(slot.State)
		buf[off+1] = slot.Version.Major
		buf[off+2] = slot.Version.Minor
		byteOrder.PutUint16(buf[off+3:off+5], slot.Version.Build)
	}
	buf[10] = byte(r.LoadedSlot)
	buf[11] = byte(r.PrimarySlot)
	return buf
}

func decode(buf []byte) (types.ImageRegistry, error) {
	if len(buf) != entryLen {
		return types.ImageRegistry{}, errcode.InvalidPayload
	}
	var r types.ImageRegistry
	for i := range r.Slots {
		off := i * 5
		r.Slots[i] = types.ImageSlot{
			State: types.OpState(buf[off]),
			Version: types.Firmware{
				Major: buf[off+1],
				Minor: buf[off+2],
				Build: byteOrder.Uint16(buf[off+3 : off+5]),
			},
		}
	}
	r.LoadedSlot = types.Slot(buf[10])
	r.PrimarySlot = types.Slot(buf[11])
	return r, validate(r)
}

// validate applies the §4.8 load-time invariant: loaded_slot and
// primary_slot must each be one of {A, B, Unknown}; a future slot
// value is grounds for defaulting.
func validate(r types.ImageRegistry) error {
	if r.LoadedSlot > types.SlotUnknown || r.PrimarySlot > types.SlotUnknown {
		return errcode.CorruptEntry
	}
	return nil
}

// Load reads the persisted registry, defaulting to an all-Unknown
// registry with both slots Unknown on any validation failure.
func (r *Registry) Load() (types.ImageRegistry, error) {
	raw, err := r.store.ReadCurrentEntry(r.section)
	if err != nil {
		return defaultRegistry(), err
	}
	reg, err := decode(raw)
	if err != nil {
		return defaultRegistry(), err
	}
	return reg, nil
}

func defaultRegistry() types.ImageRegistry {
	return types.ImageRegistry{
		Slots:       [2]types.ImageSlot{{State: types.Unknown}, {State: types.Unknown}},
		LoadedSlot:  types.SlotUnknown,
		PrimarySlot: types.SlotUnknown,
	}
}

// Save persists reg as the current entry.
func (r *Registry) Save(reg types.ImageRegistry) error {
	_, err := r.store.UpdateCurrentEntry(r.section, encode(reg), false, false)
	return err
}

// AlternateSlot returns the other of {A, B}.
func AlternateSlot(s types.Slot) types.Slot { return s.Alternate() }

// LookupByVersion returns the slot whose version matches v, or
// SlotUnknown if neither does (§4.8 "Lookup by version").
func LookupByVersion(reg types.ImageRegistry, v types.Firmware) types.Slot {
	for i, slot := range reg.Slots {
		if slot.Version == v {
			return types.Slot(i)
		}
	}
	return types.SlotUnknown
}

// MarkLoaded sets the loaded slot, used after a successful boot from
// that slot.
func (r *Registry) MarkLoaded(reg *types.ImageRegistry, s types.Slot) {
	reg.LoadedSlot = s
}

// Promote sets s as the primary (preferred boot) slot.
func (r *Registry) Promote(reg *types.ImageRegistry, s types.Slot) {
	reg.PrimarySlot = s
}
