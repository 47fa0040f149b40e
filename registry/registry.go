// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"code.hybscloud.com/ada"
)

// LaneConfig sizes one lane's ring pool: how many rings it owns and how
// many slots of slotSize bytes each ring holds.
type LaneConfig struct {
	RingCount int
	RingSlots int
	SlotSize  int
}

// Config sizes a registry at creation time (spec §4.3's "ring count per
// lane is fixed at build time").
type Config struct {
	Capacity int
	Index    LaneConfig
	Detail   LaneConfig
}

// Registry is a handle onto a registry segment's bytes, usable from either
// the process that created it or one that attached to it.
type Registry struct {
	mem      []byte
	capacity int
	layout   layout
	cfg      Config

	// slots caches already-materialized ThreadLaneSet handles so repeat
	// register() calls for the same thread (idempotence, property 9)
	// don't re-walk the descriptor table.
	slots []*ThreadLaneSet
}

// RequiredBytes returns the minimum backing size for a registry created
// with cfg, covering the header, descriptor table, active mask, and a
// pool sized for every slot's index and detail lane metadata plus ring
// bytes (spec §4.3's "Allocation layout").
func RequiredBytes(cfg Config) int {
	lay := computeLayout(cfg.Capacity)
	perThread := laneBlockSize(cfg.Index) + laneBlockSize(cfg.Detail)
	return lay.poolOff + cfg.Capacity*perThread
}

func laneBlockSize(lc LaneConfig) int {
	ringBytes := ringbufHeaderSize + lc.RingSlots*lc.SlotSize
	queueBytes := ringbufHeaderSize + roundUpPow2(lc.RingCount)*8 // index queues hold uint64 ring indices
	// 64-byte active-index header, the ring pool itself, and a free and a
	// submit queue of ring indices.
	return 64 + lc.RingCount*ringBytes + 2*queueBytes
}

// ringbufHeaderSize is a local copy of ringbuf.HeaderSize used in the lane
// layout arithmetic; the two values must stay equal. No test checks this.
const ringbufHeaderSize = 256

func roundUpPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// Create initializes a new registry inside mem and returns a handle to it.
// mem must be at least RequiredBytes(cfg) bytes.
func Create(mem []byte, cfg Config) (*Registry, error) {
	if cfg.Capacity <= 0 {
		return nil, ada.ErrInvalidLayout
	}
	need := RequiredBytes(cfg)
	if len(mem) < need {
		return nil, ada.ErrInvalidLayout
	}

	writeLE(mem, offMagic, Magic)
	writeLE(mem, offVersion, Version)
	writeLE(mem, offCapacity, uint64(cfg.Capacity))

	field(mem, offThreadCount).StoreRelaxed(0)
	field(mem, offEpoch).StoreRelaxed(0)
	field(mem, offAccepting).StoreRelease(1)
	field(mem, offShutdown).StoreRelaxed(0)

	lay := computeLayout(cfg.Capacity)
	field(mem, offPoolCursor).StoreRelaxed(0)

	for i := 0; i < maskWords(cfg.Capacity); i++ {
		field(mem, lay.maskOff+i*8).StoreRelaxed(0)
	}
	for i := 0; i < cfg.Capacity; i++ {
		off := lay.descTableOff + i*descriptorSize
		writeLE(mem, off+descOffThreadID, 0)
		writeLE(mem, off+descOffActive, 0)
		writeLE(mem, off+descOffIndexBlock, 0)
		writeLE(mem, off+descOffDetailBlock, 0)
	}

	return &Registry{
		mem:      mem,
		capacity: cfg.Capacity,
		layout:   lay,
		cfg:      cfg,
		slots:    make([]*ThreadLaneSet, cfg.Capacity),
	}, nil
}

// Attach validates and attaches an existing registry segment. The caller
// must supply the same cfg used at Create time: the registry does not
// persist lane ring counts/sizes in its header, since those are a build
// time constant shared by every process in the session (spec §4.3).
func Attach(mem []byte, cfg Config) (*Registry, error) {
	if len(mem) < HeaderSize {
		return nil, ada.ErrSizeMismatch
	}
	if readLE(mem, offMagic) != Magic {
		return nil, ada.ErrInvalidMagic
	}
	if readLE(mem, offVersion) != Version {
		return nil, ada.ErrVersionMismatch
	}
	capacity := int(readLE(mem, offCapacity))
	if capacity != cfg.Capacity {
		return nil, ada.ErrSizeMismatch
	}
	need := RequiredBytes(cfg)
	if len(mem) < need {
		return nil, ada.ErrSizeMismatch
	}
	return &Registry{
		mem:      mem,
		capacity: capacity,
		layout:   computeLayout(capacity),
		cfg:      cfg,
		slots:    make([]*ThreadLaneSet, capacity),
	}, nil
}

// Epoch returns the registry's incarnation counter (spec §3: "registry_epoch
// increments signal a new consumer incarnation").
func (r *Registry) Epoch() uint64 { return field(r.mem, offEpoch).LoadAcquire() }

// BumpEpoch is called by the controller on every new incarnation.
func (r *Registry) BumpEpoch() uint64 { return field(r.mem, offEpoch).AddAcqRel(1) }

// StopAccepting clears accepting_registrations so no new thread can claim a
// slot; already-registered threads are unaffected.
func (r *Registry) StopAccepting() { field(r.mem, offAccepting).StoreRelease(0) }

func (r *Registry) accepting() bool { return field(r.mem, offAccepting).LoadAcquire() != 0 }

// RequestShutdown sets the sole cancellation flag the drain and producers
// both observe (spec §5).
func (r *Registry) RequestShutdown() { field(r.mem, offShutdown).StoreRelease(1) }

func (r *Registry) IsShutdownRequested() bool {
	return field(r.mem, offShutdown).LoadAcquire() != 0
}

// GetActiveCount returns how many slots currently have their active bit
// set.
func (r *Registry) GetActiveCount() int {
	n := 0
	for i := 0; i < maskWords(r.capacity); i++ {
		w := field(r.mem, r.layout.maskOff+i*8).LoadAcquire()
		n += popcount64(w)
	}
	return n
}

func popcount64(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// ActiveMaskWord returns the raw mask word at index i, used by the drain's
// fair rotation over active slots (spec §4.7).
func (r *Registry) ActiveMaskWord(i int) uint64 {
	return field(r.mem, r.layout.maskOff+i*8).LoadAcquire()
}

// MaskWordCount returns how many mask words this registry's capacity
// needs.
func (r *Registry) MaskWordCount() int { return maskWords(r.capacity) }

func (r *Registry) setActive(slot int, active bool) {
	wordOff := r.layout.maskOff + (slot/64)*8
	bit := uint64(1) << uint(slot%64)
	w := field(r.mem, wordOff)
	for {
		old := w.LoadAcquire()
		var next uint64
		if active {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if next == old || w.CompareAndSwapAcqRel(old, next) {
			return
		}
	}
}

// descOffset returns the byte offset of slot i's descriptor record.
func (r *Registry) descOffset(i int) int {
	return r.layout.descTableOff + i*descriptorSize
}

// bumpAlloc claims n bytes from the pool region with a CAS retry loop,
// rolling back (not advancing the cursor) on a failed race and returning
// ada.ErrPoolExhausted if the pool is out of room — exactly the "bump
// allocator with CAS, rolls back on failure" of spec §5.
func (r *Registry) bumpAlloc(n int) (int, error) {
	cursor := field(r.mem, offPoolCursor)
	poolSize := len(r.mem) - r.layout.poolOff
	for {
		old := cursor.LoadAcquire()
		next := old + uint64(n)
		if int(next) > poolSize {
			return 0, ada.ErrPoolExhausted
		}
		if cursor.CompareAndSwapAcqRel(old, next) {
			return r.layout.poolOff + int(old), nil
		}
	}
}

// findSlotByThreadID linearly scans the descriptor table for an
// already-registered thread. Capacity is small (a few hundred at most) so
// a linear scan is cheap relative to the syscalls registration otherwise
// involves; a hash index would add complexity no session-scale workload
// needs.
func (r *Registry) findSlotByThreadID(threadID uint64) (int, bool) {
	count := int(field(r.mem, offThreadCount).LoadAcquire())
	for i := 0; i < count && i < r.capacity; i++ {
		off := r.descOffset(i)
		if readLE(r.mem, off+descOffThreadID) == threadID {
			return i, true
		}
	}
	return 0, false
}

// Register claims a slot for threadID, allocating its lane metadata and
// ring pools from the bump pool on first registration. A second call for
// the same threadID returns the same ThreadLaneSet without consuming a new
// slot (spec §8 property 9). Returns ada.ErrRegistryFull if
// accepting_registrations is false or capacity is exhausted, or
// ada.ErrPoolExhausted if the pool cannot back a new slot's rings.
func (r *Registry) Register(threadID uint64) (*ThreadLaneSet, error) {
	if existing, ok := r.findSlotByThreadID(threadID); ok {
		if r.slots[existing] != nil {
			return r.slots[existing], nil
		}
		return r.materializeSlot(existing)
	}
	if !r.accepting() {
		return nil, ada.ErrRegistryFull
	}

	threadCount := field(r.mem, offThreadCount)
	var slot int
	for {
		old := threadCount.LoadAcquire()
		if int(old) >= r.capacity {
			return nil, ada.ErrRegistryFull
		}
		if threadCount.CompareAndSwapAcqRel(old, old+1) {
			slot = int(old)
			break
		}
	}

	off := r.descOffset(slot)
	writeLE(r.mem, off+descOffThreadID, threadID)

	lanes, err := r.newLaneSet(slot, threadID)
	if err != nil {
		// Roll back is not possible on thread_count (another registrant
		// may already have observed the new count), matching the spec's
		// note that pool exhaustion after a successful slot claim is
		// still a visible failure, not a silently retried one; the slot
		// is simply left inactive and never handed out again for this
		// threadID.
		return nil, err
	}

	writeLE(r.mem, off+descOffIndexBlock, uint64(lanes.indexBlockOff))
	writeLE(r.mem, off+descOffDetailBlock, uint64(lanes.detailBlockOff))
	writeLE(r.mem, off+descOffActive, 1)
	r.setActive(slot, true)
	r.slots[slot] = lanes
	return lanes, nil
}

func (r *Registry) materializeSlot(slot int) (*ThreadLaneSet, error) {
	off := r.descOffset(slot)
	threadID := readLE(r.mem, off+descOffThreadID)
	indexBlock := int(readLE(r.mem, off+descOffIndexBlock))
	detailBlock := int(readLE(r.mem, off+descOffDetailBlock))
	lanes, err := attachLaneSet(r.mem, slot, threadID, indexBlock, detailBlock, r.cfg)
	if err != nil {
		return nil, err
	}
	r.slots[slot] = lanes
	return lanes, nil
}

// UnregisterByID clears the active flag and the slot's active-mask bit.
// The slot's storage is never reused within the session (spec §4.3).
func (r *Registry) UnregisterByID(threadID uint64) {
	slot, ok := r.findSlotByThreadID(threadID)
	if !ok {
		return
	}
	off := r.descOffset(slot)
	writeLE(r.mem, off+descOffActive, 0)
	r.setActive(slot, false)
}

// GetThreadAt returns the ThreadLaneSet registered at slot index i, or nil
// if no thread has ever claimed that slot.
func (r *Registry) GetThreadAt(i int) *ThreadLaneSet {
	if i < 0 || i >= r.capacity {
		return nil
	}
	if r.slots[i] != nil {
		return r.slots[i]
	}
	off := r.descOffset(i)
	if readLE(r.mem, off+descOffThreadID) == 0 && readLE(r.mem, off+descOffIndexBlock) == 0 {
		return nil
	}
	lanes, err := r.materializeSlot(i)
	if err != nil {
		return nil
	}
	return lanes
}

// Capacity returns the registry's fixed slot capacity.
func (r *Registry) Capacity() int { return r.capacity }
