// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry is the cross-process ThreadRegistry of spec §3/§4.3: a
// fixed-capacity array of ThreadLaneSets, a bump-allocated pool backing
// their ring bytes, and an atomic active mask/count. Like ringbuf and
// control, the registry addresses its header by explicit byte offset; the
// per-thread descriptor table and pool that follow the header are also
// carved out of the same backing []byte so the whole structure can live
// inside one shared-memory segment and be resolved identically by every
// attaching process.
package registry

import (
	"encoding/binary"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Magic identifies a registry segment, matching spec §6 exactly.
const Magic uint64 = 0x41544152
const Version uint64 = 1

// Header field offsets (each own cache line where concurrently touched).
const (
	offMagic   = 0 * 8
	offVersion = 1 * 8
	offCapacity = 2 * 8

	offThreadCount = 64 + 0*8 // bump counter claimed by CAS; never rolled back
	offEpoch       = 64 + 1*8
	offAccepting   = 64 + 2*8
	offShutdown    = 64 + 3*8

	offPoolCursor = 128 + 0*8 // bump allocator cursor into the pool region

	// HeaderSize is the fixed header region; the descriptor table and
	// active-mask words follow immediately after it.
	HeaderSize = 192
)

// descriptorSize is the fixed per-slot record in the lane-set descriptor
// table: threadID, active flag, and byte offsets (relative to the start of
// the registry segment) of that slot's index-lane and detail-lane metadata
// blocks, bump-allocated on first registration.
const descriptorSize = 32

const (
	descOffThreadID   = 0
	descOffActive     = 8
	descOffIndexBlock = 16
	descOffDetailBlock = 24
)

func field(mem []byte, offset int) *atomix.Uint64 {
	return (*atomix.Uint64)(unsafe.Pointer(&mem[offset]))
}

func readLE(mem []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(mem[offset : offset+8])
}

func writeLE(mem []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(mem[offset:offset+8], v)
}

// maskWords returns how many atomix.Uint64 words are needed for a
// capacity-bit active mask. Spec §3 calls for "an atomic active mask and
// active count"; a single u64 only covers 64 threads, so this module
// widens the mask to ceil(capacity/64) words, one bit per slot, laid out
// right after the descriptor table.
func maskWords(capacity int) int {
	return (capacity + 63) / 64
}

// layout computes the byte offsets of each region within a registry
// segment of the given capacity.
type layout struct {
	descTableOff int
	maskOff      int
	poolOff      int
}

func computeLayout(capacity int) layout {
	descTableOff := HeaderSize
	maskOff := descTableOff + capacity*descriptorSize
	poolOff := maskOff + maskWords(capacity)*8
	// Pool region starts on a 64-byte boundary to keep bump-allocated
	// ring pools cache-aligned.
	if rem := poolOff % 64; rem != 0 {
		poolOff += 64 - rem
	}
	return layout{descTableOff: descTableOff, maskOff: maskOff, poolOff: poolOff}
}
