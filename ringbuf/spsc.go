// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringbuf

import (
	"code.hybscloud.com/ada"
)

// Ring is the single-producer single-consumer bounded queue of spec §4.2:
// a header followed by a contiguous slot array, write/read positions that
// advance monotonically (never modulo), and a non-blocking contract on
// both sides.
//
// Based on the same Lamport ring buffer the teacher's SPSC[T] uses,
// generalized from an in-process Go slice of T to a byte slot inside
// memory that may be backed by a shared-memory segment and read by a
// different process. Capacity is a power of two; index computation is
// masking, exactly as in spsc.go.
//
// Invariant (write − read) ≤ capacity holds at all times; Write publishes
// the slot store before the write-position release store, so a reader
// that observes a new write position via acquire is guaranteed to observe
// the slot contents that go with it (§9 Open Question 2).
type Ring struct {
	mem      []byte
	slotSize int
	capacity uint64
	mask     uint64

	cachedHead uint64 // producer's cached view of read position
	cachedTail uint64 // consumer's cached view of write position
}

func slotsOffset() int { return HeaderSize }

func requiredBytes(capacity, slotSize int) int {
	return HeaderSize + capacity*slotSize
}

// Create initializes a new ring header and slot array inside mem and
// returns a handle to it. totalBytes must fit a header plus a power-of-two
// count of slots of slotBytes each; capacity is derived from the space
// remaining after the header, rounded down to a power of two.
func Create(mem []byte, totalBytes, slotBytes int) (*Ring, error) {
	if slotBytes <= 0 || totalBytes < HeaderSize+2*slotBytes {
		return nil, ada.ErrInvalidLayout
	}
	if len(mem) < totalBytes {
		return nil, ada.ErrInvalidLayout
	}

	maxSlots := (totalBytes - HeaderSize) / slotBytes
	capacity := roundToPow2(maxSlots)
	if capacity > maxSlots {
		capacity >>= 1
	}
	if capacity < 2 {
		return nil, ada.ErrInvalidLayout
	}

	writeLEHeader(mem, capacity, slotBytes, kindSPSC)
	atField(mem, offWritePos).StoreRelaxed(0)
	atField(mem, offReadPos).StoreRelaxed(0)
	atField(mem, offOverflow).StoreRelaxed(0)

	return &Ring{
		mem:      mem,
		slotSize: slotBytes,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
	}, nil
}

// Attach validates an existing ring's header and returns a handle usable
// cross-process. Fails ErrInvalidMagic, ErrVersionMismatch, or
// ErrSizeMismatch.
func Attach(mem []byte, totalBytes, slotBytes int) (*Ring, error) {
	if len(mem) < HeaderSize || len(mem) < totalBytes {
		return nil, ada.ErrSizeMismatch
	}
	if readLEUint64(mem, offMagic) != Magic {
		return nil, ada.ErrInvalidMagic
	}
	if readLEUint64(mem, offVersion) != Version {
		return nil, ada.ErrVersionMismatch
	}
	capacity := readLEUint64(mem, offCapacity)
	slotSize := readLEUint64(mem, offSlotSize)
	if int(slotSize) != slotBytes {
		return nil, ada.ErrSizeMismatch
	}
	if requiredBytes(int(capacity), int(slotSize)) > totalBytes {
		return nil, ada.ErrSizeMismatch
	}

	return &Ring{
		mem:      mem,
		slotSize: int(slotSize),
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

func (r *Ring) slot(index uint64) []byte {
	off := slotsOffset() + int(index&r.mask)*r.slotSize
	return r.mem[off : off+r.slotSize]
}

// Write copies slot (which must be exactly SlotSize() bytes) into the
// ring, single-producer, non-blocking. Returns false and increments
// OverflowCount if the ring is full.
func (r *Ring) Write(slot []byte) bool {
	writePos := atField(r.mem, offWritePos)
	readPos := atField(r.mem, offReadPos)

	tail := writePos.LoadRelaxed()
	if tail-r.cachedHead >= r.capacity {
		r.cachedHead = readPos.LoadAcquire()
		if tail-r.cachedHead >= r.capacity {
			atField(r.mem, offOverflow).AddAcqRel(1)
			return false
		}
	}

	copy(r.slot(tail), slot)
	writePos.StoreRelease(tail + 1)
	return true
}

// Read removes the oldest committed slot into dst (len(dst) must equal the
// ring's slot size), single-consumer, non-blocking. Returns false if the
// ring is empty.
func (r *Ring) Read(dst []byte) bool {
	writePos := atField(r.mem, offWritePos)
	readPos := atField(r.mem, offReadPos)

	head := readPos.LoadRelaxed()
	if head >= r.cachedTail {
		r.cachedTail = writePos.LoadAcquire()
		if head >= r.cachedTail {
			return false
		}
	}

	copy(dst, r.slot(head))
	readPos.StoreRelease(head + 1)
	return true
}

// ReadBatch reads up to len(dsts) committed slots (each exactly the ring's
// slot size) and returns the number actually read.
func (r *Ring) ReadBatch(dsts [][]byte) int {
	n := 0
	for n < len(dsts) {
		if !r.Read(dsts[n]) {
			break
		}
		n++
	}
	return n
}

// Peek reads the slot at the given logical read-relative offset without
// advancing the read position. The drain does not use it (it drains active
// rings with Read). Returns false if offset is beyond what has been
// committed.
func (r *Ring) Peek(offset uint64, dst []byte) bool {
	writePos := atField(r.mem, offWritePos)
	readPos := atField(r.mem, offReadPos)

	head := readPos.LoadAcquire()
	tail := writePos.LoadAcquire()
	pos := head + offset
	if pos >= tail {
		return false
	}
	copy(dst, r.slot(pos))
	return true
}

// Cap returns the ring's capacity in slots.
func (r *Ring) Cap() int { return int(r.capacity) }

// SlotSize returns the fixed slot size in bytes.
func (r *Ring) SlotSize() int { return r.slotSize }

// AvailableRead returns the number of committed, unread slots.
func (r *Ring) AvailableRead() int {
	w := atField(r.mem, offWritePos).LoadAcquire()
	rd := atField(r.mem, offReadPos).LoadAcquire()
	return int(w - rd)
}

// AvailableWrite returns the number of free slots.
func (r *Ring) AvailableWrite() int {
	return r.Cap() - r.AvailableRead()
}

// IsEmpty reports whether the ring currently has no committed slots.
func (r *Ring) IsEmpty() bool { return r.AvailableRead() == 0 }

// IsFull reports whether the ring currently has no free slots.
func (r *Ring) IsFull() bool { return r.AvailableWrite() == 0 }

// OverflowCount returns the number of Write calls that found the ring full.
func (r *Ring) OverflowCount() uint64 {
	return atField(r.mem, offOverflow).LoadAcquire()
}

// Reset zeroes the write/read/overflow positions. Only safe when both the
// producer and the consumer are quiesced (§4.2).
func (r *Ring) Reset() {
	atField(r.mem, offWritePos).StoreRelaxed(0)
	atField(r.mem, offReadPos).StoreRelaxed(0)
	atField(r.mem, offOverflow).StoreRelaxed(0)
	r.cachedHead = 0
	r.cachedTail = 0
}

// WritePosition and ReadPosition expose the raw monotonic counters, used by
// the drain to sample drop totals and by tests asserting ring monotonicity
// (spec §8 property 1).
func (r *Ring) WritePosition() uint64 { return atField(r.mem, offWritePos).LoadAcquire() }
func (r *Ring) ReadPosition() uint64  { return atField(r.mem, offReadPos).LoadAcquire() }
