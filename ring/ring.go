// Package ring implements the bounded circular buffer of fixed-size
// sensor-data records (C3): LIFO read of the newest entry for
// transmission, FIFO overwrite-oldest on fill, backed by an nvm.Store
// array section.
package ring

import (
	"waterpump-fw/errcode"
	"waterpump-fw/nvm"
)

// Ring is a capacity-bounded circular buffer over a single nvm.Store
// array section. The "full" flag is tracked here (not inferred from
// head==tail, which is ambiguous between empty and full — §4.3) and
// mirrored by the caller into persisted device-info so it survives a
// cold boot.
type Ring struct {
	store    *nvm.Store
	section  nvm.SectionID
	capacity int
	full     bool
}

// New wraps an initialised store/section as a ring of the given
// capacity. full should be restored from persisted device-info.
func New(store *nvm.Store, section nvm.SectionID, capacity int, full bool) *Ring {
	return &Ring{store: store, section: section, capacity: capacity, full: full}
}

// Full reports whether the ring is at capacity.
func (r *Ring) Full() bool { return r.full }

// Count returns the number of valid entries.
func (r *Ring) Count() (int, error) {
	hdr, err := r.store.ReadHeader(r.section)
	if err != nil {
		return 0, err
	}
	if r.full {
		return r.capacity, nil
	}
	head, tail := int(hdr.Head), int(hdr.CountOrTail)
	if head >= tail {
		return head - tail, nil
	}
	return r.capacity - tail + head, nil
}

// Push advances head and writes entry into the slot head now indexes,
// overwriting the oldest entry if the ring is already full (§4.3 "On
// write when full").
func (r *Ring) Push(entry []byte) error {
	full, err := r.store.UpdateCurrentEntry(r.section, entry, true, r.full)
	if err != nil {
		return err
	}
	r.full = full
	return nil
}

// ReadLatest returns the entry most recently pushed, i.e. the one in
// the head slot — exactly what nvm.Store's current_addr already points
// to after a Push.
func (r *Ring) ReadLatest() ([]byte, error) {
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errcode.RingEmpty
	}
	return r.store.ReadCurrentEntry(r.section)
}

// IncrementTail acknowledges that the oldest-visible entry has been
// consumed (transmitted and acked by the AM): tail advances and count
// decrements. If the ring was full, it is cleared (§4.3
// "Acknowledgement protocol").
func (r *Ring) IncrementTail() error {
	hdr, err := r.store.ReadHeader(r.section)
	if err != nil {
		return err
	}
	count, err := r.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return errcode.RingEmpty
	}
	newTail := (int(hdr.CountOrTail) + 1) % r.capacity
	if err := r.store.SetTail(r.section, uint16(newTail)); err != nil {
		return err
	}
	r.full = false
	return nil
}
