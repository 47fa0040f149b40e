// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ringbuf

import (
	"code.hybscloud.com/ada"
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// ClaimRing is the global fallback ring of spec §3/§9 Open Question 1: a
// ring that, unlike Ring, is legal to write from multiple producer threads
// at once. The specification resolves this as option (a) — "demote global
// rings to a bounded MPSC claim (CAS on write position) with explicit drop
// on contention" — implemented here with the same per-slot cycle technique
// the teacher's MPSC[T] uses (cycle = position / capacity + 1, so 0 marks a
// never-written slot), so a producer
// that wins the CAS on the write position can safely publish into its slot
// without racing a concurrent reader that might otherwise see the
// just-advanced write position before the slot is stored.
//
// Physical layout differs from Ring only in the per-slot header: each
// physical slot is [cycle:8 bytes][payload:slotSize bytes] instead of a
// bare payload, exactly mirroring mpscSlot[T]{cycle atomix.Uint64; data T}.
type ClaimRing struct {
	mem      []byte
	slotSize int // payload size only
	stride   int // 8 + slotSize
	capacity uint64
	mask     uint64
}

const claimCycleBytes = 8

// CreateClaim initializes a new multi-writer claim ring.
func CreateClaim(mem []byte, totalBytes, slotBytes int) (*ClaimRing, error) {
	stride := claimCycleBytes + slotBytes
	if slotBytes <= 0 || totalBytes < HeaderSize+2*stride {
		return nil, ada.ErrInvalidLayout
	}
	if len(mem) < totalBytes {
		return nil, ada.ErrInvalidLayout
	}

	maxSlots := (totalBytes - HeaderSize) / stride
	capacity := roundToPow2(maxSlots)
	if capacity > maxSlots {
		capacity >>= 1
	}
	if capacity < 2 {
		return nil, ada.ErrInvalidLayout
	}

	writeLEHeader(mem, capacity, slotBytes, kindClaim)
	atField(mem, offWritePos).StoreRelaxed(0)
	atField(mem, offReadPos).StoreRelaxed(0)
	atField(mem, offOverflow).StoreRelaxed(0)

	r := &ClaimRing{
		mem:      mem,
		slotSize: slotBytes,
		stride:   stride,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
	}
	for i := uint64(0); i < uint64(capacity); i++ {
		r.cycleField(i).StoreRelaxed(0)
	}
	return r, nil
}

// AttachClaim validates and attaches an existing claim ring.
func AttachClaim(mem []byte, totalBytes, slotBytes int) (*ClaimRing, error) {
	if len(mem) < HeaderSize || len(mem) < totalBytes {
		return nil, ada.ErrSizeMismatch
	}
	if readLEUint64(mem, offMagic) != Magic {
		return nil, ada.ErrInvalidMagic
	}
	if readLEUint64(mem, offVersion) != Version {
		return nil, ada.ErrVersionMismatch
	}
	if readLEUint64(mem, offKind) != kindClaim {
		return nil, ada.ErrInvalidLayout
	}
	capacity := readLEUint64(mem, offCapacity)
	slotSize := readLEUint64(mem, offSlotSize)
	if int(slotSize) != slotBytes {
		return nil, ada.ErrSizeMismatch
	}
	stride := claimCycleBytes + int(slotSize)
	if HeaderSize+int(capacity)*stride > totalBytes {
		return nil, ada.ErrSizeMismatch
	}

	return &ClaimRing{
		mem:      mem,
		slotSize: int(slotSize),
		stride:   stride,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

func (r *ClaimRing) slotOffset(index uint64) int {
	return HeaderSize + int(index&r.mask)*r.stride
}

func (r *ClaimRing) cycleField(index uint64) *atomix.Uint64 {
	return atField(r.mem, r.slotOffset(index))
}

func (r *ClaimRing) payload(index uint64) []byte {
	off := r.slotOffset(index) + claimCycleBytes
	return r.mem[off : off+r.slotSize]
}

// Enqueue claims the next write position via FAA-free bounded CAS and
// stores slot into it. Returns false (and bumps OverflowCount) if the ring
// appears full, or if maxSpins bounded retries are exhausted by contention
// — producers never block, so persistent contention degrades to a drop
// rather than an unbounded spin.
func (r *ClaimRing) Enqueue(slot []byte, maxSpins int) bool {
	writePos := atField(r.mem, offWritePos)
	readPos := atField(r.mem, offReadPos)
	sw := spin.Wait{}

	for attempt := 0; attempt < maxSpins; attempt++ {
		tail := writePos.LoadAcquire()
		head := readPos.LoadAcquire()
		if tail-head >= r.capacity {
			atField(r.mem, offOverflow).AddAcqRel(1)
			return false
		}

		if !writePos.CompareAndSwapAcqRel(tail, tail+1) {
			sw.Once()
			continue
		}

		// Claimed position `tail`. Every producer that ever claims this
		// position publishes into the cycle-tagged slot exactly once, so
		// writes from different producers never collide even though the
		// write position already advanced past this slot for other
		// claimants.
		idx := tail & r.mask
		copy(r.payload(tail), slot)
		r.cycleField(idx).StoreRelease(tail/r.capacity + 1)
		return true
	}

	atField(r.mem, offOverflow).AddAcqRel(1)
	return false
}

// Dequeue is single-consumer: it reads the oldest logically-committed
// slot. Because producers can claim a position before storing its payload,
// Dequeue checks the slot's own cycle marker rather than trusting the
// write position alone, exactly like mpsc.go's Dequeue.
func (r *ClaimRing) Dequeue(dst []byte) bool {
	readPos := atField(r.mem, offReadPos)
	head := readPos.LoadRelaxed()
	idx := head & r.mask
	expectedCycle := head/r.capacity + 1

	if r.cycleField(idx).LoadAcquire() != expectedCycle {
		return false
	}

	copy(dst, r.payload(head))
	readPos.StoreRelease(head + 1)
	return true
}

// DequeueBatch reads up to len(dsts) slots, stopping at the first gap.
func (r *ClaimRing) DequeueBatch(dsts [][]byte) int {
	n := 0
	for n < len(dsts) {
		if !r.Dequeue(dsts[n]) {
			break
		}
		n++
	}
	return n
}

// Cap returns the ring's capacity in slots.
func (r *ClaimRing) Cap() int { return int(r.capacity) }

// OverflowCount returns the number of Enqueue calls that dropped an event.
func (r *ClaimRing) OverflowCount() uint64 {
	return atField(r.mem, offOverflow).LoadAcquire()
}
