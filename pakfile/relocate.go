// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"fmt"

	"github.com/bpowers/rpak/internal/bitset"
)

// arena holds the pages of one pak. Pages arrive in load order: first,
// first+1, ..., count-1, 0, ..., first-1.
type arena struct {
	pages    [][]byte
	first    int
	loaded   int
	resident *bitset.Bitset
}

func newArena(count, first int) *arena {
	return &arena{
		pages:    make([][]byte, count),
		first:    first,
		resident: bitset.New(count),
	}
}

func (a *arena) count() int { return len(a.pages) }

// next is the index of the page expected to arrive next.
func (a *arena) next() int {
	return (a.first + a.loaded) % a.count()
}

func (a *arena) complete() bool { return a.loaded == a.count() }

func (a *arena) arrive(idx int, data []byte) {
	if a.complete() || idx != a.next() {
		panic(fmt.Errorf("invariant broken: page %d arrived, expected %d", idx, a.next()))
	}
	a.pages[idx] = data
	a.resident.Set(idx)
	a.loaded++
}

// isLoaded reports whether page idx is among the pages loaded so far, by
// its position in load order.
func (a *arena) isLoaded(idx uint32) bool {
	n := a.count()
	if int64(idx) >= int64(n) {
		return false
	}
	pos := (int(idx) - a.first + n) % n
	return pos < a.loaded
}

func (a *arena) ref(p PagePtr) (Ref, error) {
	if p.IsNull() || int64(p.Index) >= int64(a.count()) {
		return Ref{}, fmt.Errorf("%s of %d pages: %w", p, a.count(), ErrCorruptPointer)
	}
	if !a.isLoaded(p.Index) || !a.resident.IsSet(int(p.Index)) {
		return Ref{}, fmt.Errorf("%s: page not loaded: %w", p, ErrUnresolved)
	}
	page := a.pages[p.Index]
	if int64(p.Offset) > int64(len(page)) {
		return Ref{}, fmt.Errorf("%s past end of %d byte page: %w", p, len(page), ErrCorruptPointer)
	}
	return Ref{loc: p, data: page[p.Offset:]}, nil
}

// relocator converts the pointer table into Refs as pages arrive. The
// cursor only moves forward; each call picks up where the last stopped.
type relocator struct {
	slots   []PagePtr
	targets []Ref
	bySlot  map[uint64]int
	cursor  int
}

func newRelocator(slots []PagePtr) *relocator {
	r := &relocator{
		slots:   slots,
		targets: make([]Ref, len(slots)),
		bySlot:  make(map[uint64]int, len(slots)),
	}
	for i, s := range slots {
		r.bySlot[s.key()] = i
	}
	return r
}

// resolve advances the cursor over every pointer whose slot page and target
// page are both loaded, stopping at the first that is not yet eligible.
func (r *relocator) resolve(a *arena) error {
	for r.cursor < len(r.slots) {
		slot := r.slots[r.cursor]
		if !a.isLoaded(slot.Index) {
			if int64(slot.Index) >= int64(a.count()) {
				return fmt.Errorf("pointer %d slot %s: %w", r.cursor, slot, ErrCorruptPointer)
			}
			return nil
		}
		slotRef, err := a.ref(slot)
		if err != nil {
			return fmt.Errorf("pointer %d slot: %w", r.cursor, err)
		}
		raw, err := slotRef.PagePtr()
		if err != nil {
			return fmt.Errorf("pointer %d slot %s: %w", r.cursor, slot, ErrCorruptPointer)
		}
		if int64(raw.Index) >= int64(a.count()) {
			return fmt.Errorf("pointer %d at %s targets %s: %w", r.cursor, slot, raw, ErrCorruptPointer)
		}
		if !a.isLoaded(raw.Index) {
			return nil
		}
		target, err := a.ref(raw)
		if err != nil {
			return fmt.Errorf("pointer %d at %s: %w", r.cursor, slot, err)
		}
		r.targets[r.cursor] = target
		r.cursor++
	}
	return nil
}

func (r *relocator) done() bool { return r.cursor == len(r.slots) }

// lookup returns the resolved target of the pointer stored at slot.
func (r *relocator) lookup(slot PagePtr) (Ref, error) {
	i, ok := r.bySlot[slot.key()]
	if !ok {
		return Ref{}, fmt.Errorf("%s: %w", slot, ErrNotPointer)
	}
	if i >= r.cursor {
		return Ref{}, fmt.Errorf("pointer %d at %s: %w", i, slot, ErrUnresolved)
	}
	return r.targets[i], nil
}
