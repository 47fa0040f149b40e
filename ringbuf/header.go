// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ringbuf is the lock-free SPSC ring buffer described in spec §4.2,
// plus the bounded-CAS multi-writer claim used by the global fallback rings
// (§3, §9 Open Question 1). Both variants share a header shape but, like
// the teacher's spsc.go/mpsc.go, are otherwise separate files: a single
// engine abstracting over both access patterns would hide the very
// distinction (wait-free vs bounded-CAS) the specification cares about.
//
// Headers live at byte offset 0 of whatever memory the caller supplies
// (typically a shmseg.Segment's bytes) and are addressed by explicit
// offsets rather than an unsafe-cast Go struct: the header is an ABI, not
// a Go memory layout, per the specification's Design Notes.
package ringbuf

import (
	"encoding/binary"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Magic and Version identify a ring header. Magic matches §6's
// "magic = 0xADA0, version = 1" exactly.
const (
	Magic   uint64 = 0xADA0
	Version uint64 = 1
)

// Header field offsets, each on its own cache line once the field is
// mutated concurrently with reads of a neighboring field (write position
// and read position must never share a line: one is hammered by the
// producer, the other by the drain).
const (
	offMagic    = 0 * 8
	offVersion  = 1 * 8
	offCapacity = 2 * 8
	offSlotSize = 3 * 8
	offKind     = 4 * 8 // 0 = plain SPSC, 1 = claimed multi-writer

	offWritePos = 64 // own cache line
	offReadPos  = 128
	offOverflow = 192

	// HeaderSize is the fixed header region preceding the slot array.
	HeaderSize = 256
)

const (
	kindSPSC   uint64 = 0
	kindClaim  uint64 = 1
)

// atField reinterprets 8 bytes of mem at offset as an atomix.Uint64. mem
// must be at least offset+8 bytes and the offset must be 8-byte aligned;
// both are guaranteed by the fixed header layout above.
func atField(mem []byte, offset int) *atomix.Uint64 {
	return (*atomix.Uint64)(unsafe.Pointer(&mem[offset]))
}

// roundToPow2 rounds n up to the next power of two, minimum 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// writeLEHeader stamps the static (write-once) header fields. Callers must
// hold exclusive access (this only happens during Create, before any other
// goroutine/process has attached).
func writeLEHeader(mem []byte, capacity, slotSize int, kind uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], Magic)
	copy(mem[offMagic:], b[:])
	binary.LittleEndian.PutUint64(b[:], Version)
	copy(mem[offVersion:], b[:])
	binary.LittleEndian.PutUint64(b[:], uint64(capacity))
	copy(mem[offCapacity:], b[:])
	binary.LittleEndian.PutUint64(b[:], uint64(slotSize))
	copy(mem[offSlotSize:], b[:])
	binary.LittleEndian.PutUint64(b[:], kind)
	copy(mem[offKind:], b[:])
}

func readLEUint64(mem []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(mem[offset : offset+8])
}
