// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package event defines the two wire-format records the data plane moves
// through rings: IndexEvent (always captured when the index lane is
// enabled) and DetailEvent (captured only while recording, with an
// ABI-register snapshot and an optional stack-window copy). Both are fixed
// size so ringbuf never has to deal with variable-length payloads;
// IndexEvent's 32-byte slot is a power of two, DetailEvent's 384-byte slot
// is not.
package event

import "encoding/binary"

// Kind identifies what happened at the hook site.
type Kind uint8

const (
	Call Kind = iota
	Return
	Exception
)

// IndexSize is IndexEvent's encoded size, chosen as the next power of two
// above the natural field width (8+8+8 bytes, a 1-byte kind, and a 4-byte
// depth: 29 bytes, padded) so a lane's
// index ring can size its slots directly off this constant.
const IndexSize = 32

// IndexEvent is the small, always-on record of spec §3: timestamp,
// function id, thread id, kind, and the producer's call depth at capture
// time.
type IndexEvent struct {
	TimestampNanos int64
	FunctionID     uint64
	ThreadID       uint64
	Kind           Kind
	Depth          uint32
}

// Encode writes e into dst, which must be at least IndexSize bytes.
func (e IndexEvent) Encode(dst []byte) {
	_ = dst[IndexSize-1]
	binary.LittleEndian.PutUint64(dst[0:8], uint64(e.TimestampNanos))
	binary.LittleEndian.PutUint64(dst[8:16], e.FunctionID)
	binary.LittleEndian.PutUint64(dst[16:24], e.ThreadID)
	dst[24] = byte(e.Kind)
	binary.LittleEndian.PutUint32(dst[28:32], e.Depth)
}

// DecodeIndexEvent reads an IndexEvent back out of src (at least IndexSize
// bytes).
func DecodeIndexEvent(src []byte) IndexEvent {
	_ = src[IndexSize-1]
	return IndexEvent{
		TimestampNanos: int64(binary.LittleEndian.Uint64(src[0:8])),
		FunctionID:     binary.LittleEndian.Uint64(src[8:16]),
		ThreadID:       binary.LittleEndian.Uint64(src[16:24]),
		Kind:           Kind(src[24]),
		Depth:          binary.LittleEndian.Uint32(src[28:32]),
	}
}

// RegisterCount bounds the ABI-register snapshot to a fixed slot count
// (argument registers on CALL, return register on RETURN — comfortably
// covers every mainstream calling convention the hook planner is expected
// to target). Frame, stack, and link register are stored in separate
// DetailEvent fields, not in these slots.
const RegisterCount = 8

// StackWindowCap is the fixed cap on the bounded stack-window byte copy
// (spec §3, §4.4 step 5). Larger windows are truncated, never expanded:
// the detail lane's slot size is sized off this constant so capture never
// needs a variable-length write.
const StackWindowCap = 256

// DetailSize is DetailEvent's encoded size: the index fields, the register
// bank, a frame/stack/link-register triple, a stack-window length prefix,
// and the stack-window bytes themselves.
const DetailSize = IndexSize + RegisterCount*8 + 3*8 + 8 + StackWindowCap

// DetailEvent extends IndexEvent with the register snapshot and optional
// stack-window copy described in spec §3.
type DetailEvent struct {
	Index IndexEvent

	Registers [RegisterCount]uint64
	FramePtr  uint64
	StackPtr  uint64
	LinkPtr   uint64

	// StackWindow holds up to StackWindowCap bytes copied from the stack
	// pointer at capture time. Len(StackWindow) may be less than
	// StackWindowCap if capture_stack_snapshot found fewer accessible
	// bytes before the fault-safe reader stopped.
	StackWindow []byte
}

// Encode writes e into dst, which must be at least DetailSize bytes.
func (e DetailEvent) Encode(dst []byte) {
	_ = dst[DetailSize-1]
	e.Index.Encode(dst[:IndexSize])
	off := IndexSize
	for _, r := range e.Registers {
		binary.LittleEndian.PutUint64(dst[off:off+8], r)
		off += 8
	}
	binary.LittleEndian.PutUint64(dst[off:off+8], e.FramePtr)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:off+8], e.StackPtr)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:off+8], e.LinkPtr)
	off += 8

	n := len(e.StackWindow)
	if n > StackWindowCap {
		n = StackWindowCap
	}
	binary.LittleEndian.PutUint64(dst[off:off+8], uint64(n))
	off += 8
	copy(dst[off:off+StackWindowCap], e.StackWindow[:n])
}

// DecodeDetailEvent reads a DetailEvent back out of src (at least
// DetailSize bytes). The returned StackWindow aliases src and must be
// copied by the caller before src is reused or returned to a ring pool.
func DecodeDetailEvent(src []byte) DetailEvent {
	_ = src[DetailSize-1]
	var e DetailEvent
	e.Index = DecodeIndexEvent(src[:IndexSize])
	off := IndexSize
	for i := range e.Registers {
		e.Registers[i] = binary.LittleEndian.Uint64(src[off : off+8])
		off += 8
	}
	e.FramePtr = binary.LittleEndian.Uint64(src[off : off+8])
	off += 8
	e.StackPtr = binary.LittleEndian.Uint64(src[off : off+8])
	off += 8
	e.LinkPtr = binary.LittleEndian.Uint64(src[off : off+8])
	off += 8

	n := binary.LittleEndian.Uint64(src[off : off+8])
	off += 8
	if n > StackWindowCap {
		n = StackWindowCap
	}
	e.StackWindow = src[off : off+int(n)]
	return e
}
