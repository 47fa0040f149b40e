// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"encoding/binary"

	"code.hybscloud.com/ada"
	"code.hybscloud.com/ada/ringbuf"
	"code.hybscloud.com/atomix"
)

// Lane is one logical event stream (Index or Detail) for one registered
// thread: a pool of rings, the index of the currently active
// write-target ring, and the free/submit SPSC queues that hand ring
// ownership back and forth between the owning producer and the drain
// (spec §3 "Lane").
type Lane struct {
	rings  []*ringbuf.Ring
	free   *ringbuf.Ring // drain -> producer: indices of rings the drain has finished with
	submit *ringbuf.Ring // producer -> drain: indices of rings the producer filled and swapped out

	activeIdxField *atomix.Uint64
}

// ActiveRing returns the ring currently targeted by Write (spec §4.3
// get_active_ring).
func (l *Lane) ActiveRing() *ringbuf.Ring {
	return l.rings[l.activeIdxField.LoadAcquire()]
}

// ActiveIndex returns the pool index of the currently active ring.
func (l *Lane) ActiveIndex() uint64 { return l.activeIdxField.LoadAcquire() }

// Ring returns the pool ring at the given index, used by the drain to
// resolve a popped submit-queue index back to a ring handle.
func (l *Lane) Ring(index uint64) *ringbuf.Ring { return l.rings[index] }

// RingCount returns how many rings this lane's pool holds.
func (l *Lane) RingCount() int { return len(l.rings) }

// SwapActiveRing pops one index from the free queue, atomically exchanges
// it with the current active index, and enqueues the previous index on
// the submit queue. Returns false if the free queue is empty — the caller
// drops the event and bumps its own counters (spec §4.5).
func (l *Lane) SwapActiveRing() bool {
	var idxBytes [8]byte
	if !l.free.Read(idxBytes[:]) {
		return false
	}
	newIdx := binary.LittleEndian.Uint64(idxBytes[:])

	prevIdx := l.activeIdxField.LoadRelaxed()
	l.activeIdxField.StoreRelease(newIdx)

	binary.LittleEndian.PutUint64(idxBytes[:], prevIdx)
	l.submit.Write(idxBytes[:]) // sized to hold RingCount-1 outstanding at once; see initLane
	return true
}

// TakeSubmittedRing pops the next submitted ring index for the drain,
// or (0, false) if none is pending.
func (l *Lane) TakeSubmittedRing() (uint64, bool) {
	var idxBytes [8]byte
	if !l.submit.Read(idxBytes[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(idxBytes[:]), true
}

// ReturnFreeRing pushes a drained ring's index back onto the free queue.
func (l *Lane) ReturnFreeRing(index uint64) bool {
	var idxBytes [8]byte
	binary.LittleEndian.PutUint64(idxBytes[:], index)
	return l.free.Write(idxBytes[:])
}

// ThreadLaneSet is the pair (IndexLane, DetailLane) belonging to one
// registered producer thread, plus its stable registry slot index (spec
// §3 "ThreadLaneSet").
type ThreadLaneSet struct {
	Slot     int
	ThreadID uint64
	Index    *Lane
	Detail   *Lane

	indexBlockOff  int
	detailBlockOff int
}

// newLaneSet bump-allocates fresh blocks for both lanes of a newly
// registered thread and initializes their ring pools and queues.
func (r *Registry) newLaneSet(slot int, threadID uint64) (*ThreadLaneSet, error) {
	indexBlockOff, err := r.bumpAlloc(laneBlockSize(r.cfg.Index))
	if err != nil {
		return nil, err
	}
	detailBlockOff, err := r.bumpAlloc(laneBlockSize(r.cfg.Detail))
	if err != nil {
		return nil, err
	}

	indexLane, err := initLane(r.mem, indexBlockOff, r.cfg.Index)
	if err != nil {
		return nil, err
	}
	detailLane, err := initLane(r.mem, detailBlockOff, r.cfg.Detail)
	if err != nil {
		return nil, err
	}

	return &ThreadLaneSet{
		Slot:           slot,
		ThreadID:       threadID,
		Index:          indexLane,
		Detail:         detailLane,
		indexBlockOff:  indexBlockOff,
		detailBlockOff: detailBlockOff,
	}, nil
}

// attachLaneSet resolves an existing registration's lane blocks without
// re-initializing them, used by a second process attaching to an
// already-populated registry.
func attachLaneSet(mem []byte, slot int, threadID uint64, indexBlockOff, detailBlockOff int, cfg Config) (*ThreadLaneSet, error) {
	indexLane, err := attachLane(mem, indexBlockOff, cfg.Index)
	if err != nil {
		return nil, err
	}
	detailLane, err := attachLane(mem, detailBlockOff, cfg.Detail)
	if err != nil {
		return nil, err
	}
	return &ThreadLaneSet{
		Slot:           slot,
		ThreadID:       threadID,
		Index:          indexLane,
		Detail:         detailLane,
		indexBlockOff:  indexBlockOff,
		detailBlockOff: detailBlockOff,
	}, nil
}

func laneRegions(mem []byte, blockOff int, lc LaneConfig) (activeOff int, ringOffs []int, freeOff, submitOff int) {
	activeOff = blockOff
	ringBytes := ringbufHeaderSize + lc.RingSlots*lc.SlotSize
	off := blockOff + 64
	ringOffs = make([]int, lc.RingCount)
	for i := range ringOffs {
		ringOffs[i] = off
		off += ringBytes
	}
	queueBytes := ringbufHeaderSize + roundUpPow2(lc.RingCount)*8
	freeOff = off
	submitOff = off + queueBytes
	return
}

func initLane(mem []byte, blockOff int, lc LaneConfig) (*Lane, error) {
	activeOff, ringOffs, freeOff, submitOff := laneRegions(mem, blockOff, lc)

	rings := make([]*ringbuf.Ring, lc.RingCount)
	ringBytes := ringbufHeaderSize + lc.RingSlots*lc.SlotSize
	for i, off := range ringOffs {
		ring, err := ringbuf.Create(mem[off:off+ringBytes], ringBytes, lc.SlotSize)
		if err != nil {
			return nil, err
		}
		rings[i] = ring
	}

	queueSlots := roundUpPow2(lc.RingCount)
	queueBytes := ringbufHeaderSize + queueSlots*8
	free, err := ringbuf.Create(mem[freeOff:freeOff+queueBytes], queueBytes, 8)
	if err != nil {
		return nil, err
	}
	submit, err := ringbuf.Create(mem[submitOff:submitOff+queueBytes], queueBytes, 8)
	if err != nil {
		return nil, err
	}

	// Ring 0 starts active; every other ring index goes on the free
	// queue, matching spec §4.3's "initializes submit/free SPSC queues
	// with all non-active rings enqueued as free."
	field(mem, activeOff).StoreRelease(0)
	var idxBytes [8]byte
	for i := 1; i < lc.RingCount; i++ {
		binary.LittleEndian.PutUint64(idxBytes[:], uint64(i))
		if !free.Write(idxBytes[:]) {
			return nil, ada.ErrInvalidLayout
		}
	}

	return &Lane{
		rings:          rings,
		free:           free,
		submit:         submit,
		activeIdxField: field(mem, activeOff),
	}, nil
}

func attachLane(mem []byte, blockOff int, lc LaneConfig) (*Lane, error) {
	activeOff, ringOffs, freeOff, submitOff := laneRegions(mem, blockOff, lc)

	rings := make([]*ringbuf.Ring, lc.RingCount)
	ringBytes := ringbufHeaderSize + lc.RingSlots*lc.SlotSize
	for i, off := range ringOffs {
		ring, err := ringbuf.Attach(mem[off:off+ringBytes], ringBytes, lc.SlotSize)
		if err != nil {
			return nil, err
		}
		rings[i] = ring
	}

	queueSlots := roundUpPow2(lc.RingCount)
	queueBytes := ringbufHeaderSize + queueSlots*8
	free, err := ringbuf.Attach(mem[freeOff:freeOff+queueBytes], queueBytes, 8)
	if err != nil {
		return nil, err
	}
	submit, err := ringbuf.Attach(mem[submitOff:submitOff+queueBytes], queueBytes, 8)
	if err != nil {
		return nil, err
	}

	return &Lane{
		rings:          rings,
		free:           free,
		submit:         submit,
		activeIdxField: field(mem, activeOff),
	}, nil
}
