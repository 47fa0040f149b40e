// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package control is the cross-process ControlBlock of spec §3/§6: process
// and recorder state, per-lane enable flags, readiness/epoch/heartbeat,
// the registry mode, and the transition/fallback counters the mode state
// machine (ModeState, in modestate.go) reads and writes.
//
// Like ringbuf, the block is addressed by explicit byte offset rather than
// an unsafe-cast Go struct, and every concurrently-touched field is a
// Uint64 (see the module's notes on atomix's available atomic widths).
// The controller is the sole writer of process/recorder state and the
// registry readiness/epoch/heartbeat fields; producers are the sole
// writers of registry_mode, mode_transitions, and fallback_events.
package control

import (
	"encoding/binary"
	"unsafe"

	"code.hybscloud.com/ada"
	"code.hybscloud.com/atomix"
)

// ProcessState values (spec §3 ControlBlock).
const (
	ProcessInitialized uint64 = iota
	ProcessSpawning
	ProcessSuspended
	ProcessRunning
	ProcessDetaching
	ProcessFailed
)

// FlightState values (spec §3 ControlBlock "recorder state").
const (
	FlightIdle uint64 = iota
	FlightArmed
	FlightRecording
	FlightDraining
)

// Mode values for registry_mode (spec §4.6).
const (
	ModeGlobalOnly uint64 = iota
	ModeDualWrite
	ModePerThreadOnly
)

// Field byte offsets. Each offset is 8-byte aligned; offsets that are
// mutated independently and frequently by different owners (producer mode
// cache vs. controller heartbeat, say) are spread across distinct
// cache lines to avoid false sharing the way ringbuf's header does for its
// write/read positions.
const (
	offMagic   = 0 * 8
	offVersion = 1 * 8

	offProcessState         = 64 + 0*8
	offFlightState          = 64 + 1*8
	offIndexLaneEnabled     = 64 + 2*8
	offDetailLaneEnabled    = 64 + 3*8
	offPreRollMs            = 64 + 4*8
	offPostRollMs           = 64 + 5*8
	offCaptureStackSnapshot = 64 + 6*8
	offHooksReady           = 64 + 7*8

	offRegistryReady     = 128 + 0*8
	offRegistryEpoch     = 128 + 1*8
	offDrainHeartbeatNs  = 128 + 2*8
	offShutdownRequested = 128 + 3*8

	offRegistryMode    = 192 + 0*8
	offModeTransitions = 192 + 1*8
	offFallbackEvents  = 192 + 2*8

	// Size is the total reserved control-segment size: spec §6 calls for
	// 4 KiB so the segment has headroom for future fields without a
	// layout version bump.
	Size = 4096
)

// Magic identifies a control segment: ASCII "ADAC" read little-endian.
const Magic uint64 = 0x4341_4441
const Version uint64 = 1

// Block is a handle onto a control segment's bytes, usable from either the
// process that created it or one that attached to it.
type Block struct {
	mem []byte
}

func field(mem []byte, offset int) *atomix.Uint64 {
	return (*atomix.Uint64)(unsafe.Pointer(&mem[offset]))
}

// Create initializes a new control block inside mem, which must be at
// least Size bytes, and returns a handle to it. Only the controller calls
// Create; everyone else calls Attach.
func Create(mem []byte) (*Block, error) {
	if len(mem) < Size {
		return nil, ada.ErrInvalidLayout
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], Magic)
	copy(mem[offMagic:], b[:])
	binary.LittleEndian.PutUint64(b[:], Version)
	copy(mem[offVersion:], b[:])

	blk := &Block{mem: mem}
	field(mem, offProcessState).StoreRelease(ProcessInitialized)
	field(mem, offFlightState).StoreRelease(FlightIdle)
	field(mem, offIndexLaneEnabled).StoreRelaxed(0)
	field(mem, offDetailLaneEnabled).StoreRelaxed(0)
	field(mem, offPreRollMs).StoreRelaxed(0)
	field(mem, offPostRollMs).StoreRelaxed(0)
	field(mem, offCaptureStackSnapshot).StoreRelaxed(0)
	field(mem, offHooksReady).StoreRelaxed(0)
	field(mem, offRegistryReady).StoreRelease(0)
	field(mem, offRegistryEpoch).StoreRelaxed(0)
	field(mem, offDrainHeartbeatNs).StoreRelaxed(0)
	field(mem, offShutdownRequested).StoreRelaxed(0)
	field(mem, offRegistryMode).StoreRelease(ModeGlobalOnly)
	field(mem, offModeTransitions).StoreRelaxed(0)
	field(mem, offFallbackEvents).StoreRelaxed(0)
	return blk, nil
}

// Attach validates and attaches an existing control block.
func Attach(mem []byte) (*Block, error) {
	if len(mem) < Size {
		return nil, ada.ErrSizeMismatch
	}
	if binary.LittleEndian.Uint64(mem[offMagic:offMagic+8]) != Magic {
		return nil, ada.ErrInvalidMagic
	}
	if binary.LittleEndian.Uint64(mem[offVersion:offVersion+8]) != Version {
		return nil, ada.ErrVersionMismatch
	}
	return &Block{mem: mem}, nil
}

// Controller-owned fields.

func (b *Block) ProcessState() uint64         { return field(b.mem, offProcessState).LoadAcquire() }
func (b *Block) SetProcessState(v uint64)     { field(b.mem, offProcessState).StoreRelease(v) }
func (b *Block) FlightState() uint64          { return field(b.mem, offFlightState).LoadAcquire() }
func (b *Block) SetFlightState(v uint64)      { field(b.mem, offFlightState).StoreRelease(v) }
func (b *Block) IndexLaneEnabled() bool       { return field(b.mem, offIndexLaneEnabled).LoadAcquire() != 0 }
func (b *Block) SetIndexLaneEnabled(v bool)   { field(b.mem, offIndexLaneEnabled).StoreRelease(boolU64(v)) }
func (b *Block) DetailLaneEnabled() bool      { return field(b.mem, offDetailLaneEnabled).LoadAcquire() != 0 }
func (b *Block) SetDetailLaneEnabled(v bool)  { field(b.mem, offDetailLaneEnabled).StoreRelease(boolU64(v)) }
func (b *Block) PreRollMs() uint64            { return field(b.mem, offPreRollMs).LoadRelaxed() }
func (b *Block) SetPreRollMs(v uint64)        { field(b.mem, offPreRollMs).StoreRelaxed(v) }
func (b *Block) PostRollMs() uint64           { return field(b.mem, offPostRollMs).LoadRelaxed() }
func (b *Block) SetPostRollMs(v uint64)       { field(b.mem, offPostRollMs).StoreRelaxed(v) }
func (b *Block) CaptureStackSnapshot() bool {
	return field(b.mem, offCaptureStackSnapshot).LoadAcquire() != 0
}
func (b *Block) SetCaptureStackSnapshot(v bool) {
	field(b.mem, offCaptureStackSnapshot).StoreRelease(boolU64(v))
}
func (b *Block) HooksReady() bool     { return field(b.mem, offHooksReady).LoadAcquire() != 0 }
func (b *Block) SetHooksReady(v bool) { field(b.mem, offHooksReady).StoreRelease(boolU64(v)) }

func (b *Block) RegistryReady() bool { return field(b.mem, offRegistryReady).LoadAcquire() != 0 }
func (b *Block) SetRegistryReady(v bool) {
	field(b.mem, offRegistryReady).StoreRelease(boolU64(v))
}
func (b *Block) RegistryEpoch() uint64     { return field(b.mem, offRegistryEpoch).LoadAcquire() }
func (b *Block) BumpRegistryEpoch() uint64 { return field(b.mem, offRegistryEpoch).AddAcqRel(1) }
func (b *Block) DrainHeartbeatNs() int64 {
	return int64(field(b.mem, offDrainHeartbeatNs).LoadAcquire())
}
func (b *Block) StampHeartbeat(nowNanos int64) {
	field(b.mem, offDrainHeartbeatNs).StoreRelease(uint64(nowNanos))
}
func (b *Block) ShutdownRequested() bool {
	return field(b.mem, offShutdownRequested).LoadAcquire() != 0
}
func (b *Block) RequestShutdown() { field(b.mem, offShutdownRequested).StoreRelease(1) }

// Producer-owned fields (registry_mode and its counters).

func (b *Block) RegistryMode() uint64 { return field(b.mem, offRegistryMode).LoadAcquire() }
func (b *Block) SetRegistryMode(v uint64) {
	field(b.mem, offRegistryMode).StoreRelease(v)
}
func (b *Block) ModeTransitions() uint64    { return field(b.mem, offModeTransitions).LoadAcquire() }
func (b *Block) BumpModeTransitions()       { field(b.mem, offModeTransitions).AddAcqRel(1) }
func (b *Block) FallbackEvents() uint64     { return field(b.mem, offFallbackEvents).LoadAcquire() }
func (b *Block) BumpFallbackEvents()        { field(b.mem, offFallbackEvents).AddAcqRel(1) }

func boolU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
