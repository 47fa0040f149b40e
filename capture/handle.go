// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capture implements the producer-side protocol of spec §4.4/§4.5:
// the reentrancy guard, mode tick, depth tracking, and index/detail event
// writes dispatched according to the current agent↔controller mode.
//
// Go has no portable, directly addressable OS-thread-local storage the way
// the hook installer's native runtime would; rather than fake one, this
// package models per-thread producer state as an explicit Handle object.
// The external instrumentation engine obtains exactly one Handle per OS
// thread (at thread start, or lazily on first hook) and threads it through
// every on_call/on_return invocation itself — the same shape as a
// goroutine-local variable the caller is responsible for not sharing
// across threads.
package capture

import (
	"code.hybscloud.com/ada/control"
	"code.hybscloud.com/ada/event"
	"code.hybscloud.com/ada/registry"
	"code.hybscloud.com/ada/ringbuf"
)

// GlobalRings is the pair of multi-writer fallback rings shared by every
// producer that is not (yet, or no longer) using per-thread lanes (spec §3
// "Global rings").
type GlobalRings struct {
	Index  *ringbuf.ClaimRing
	Detail *ringbuf.ClaimRing
}

// Handle is the per-OS-thread producer state: reentrancy guard, call
// depth, the thread's registered lane set (nil until registration
// succeeds), and its cached mode state.
type Handle struct {
	threadID uint64
	lanes    *registry.ThreadLaneSet
	block    *control.Block
	global   GlobalRings
	mode     *control.ModeState

	nested bool
	depth  uint32

	// indexBuf, detailBuf, and stackBuf are scratch buffers reused across
	// calls to keep OnCall/OnReturn allocation-free (spec §5's "no producer
	// operation may block" companion goal of not forcing GC pressure onto
	// the hooked program). Safe to keep unsynchronized: a Handle is owned
	// by exactly one OS thread and never called reentrantly (enter/leave's
	// nested guard rules that out).
	indexBuf  [event.IndexSize]byte
	detailBuf [event.DetailSize]byte
	stackBuf  [event.StackWindowCap]byte

	// Producer-local metrics (spec §4.4/§4.5); cheap counters the drain
	// never needs cross-process visibility into, unlike the shared
	// control-block counters.
	ReentrancyBlocked uint64
	RingFull          uint64
}

// NewHandle constructs a Handle for one OS thread. lanes may be nil if
// registration has not yet succeeded (or was skipped) — capture then
// writes only to the global rings, exactly as GLOBAL_ONLY mode does for a
// registered thread.
func NewHandle(threadID uint64, lanes *registry.ThreadLaneSet, block *control.Block, global GlobalRings, hbTimeoutNs int64) *Handle {
	return &Handle{
		threadID: threadID,
		lanes:    lanes,
		block:    block,
		global:   global,
		mode:     control.NewModeState(hbTimeoutNs),
	}
}

// BindLanes attaches a ThreadLaneSet obtained after the Handle was
// constructed (registration can race hook installation).
func (h *Handle) BindLanes(lanes *registry.ThreadLaneSet) { h.lanes = lanes }

// enter runs steps 1-2 of spec §4.4 and reports whether capture should
// proceed (false means a reentrant call was blocked).
func (h *Handle) enter(nowNanos int64) bool {
	if h.nested {
		h.ReentrancyBlocked++
		return false
	}
	h.nested = true
	h.mode.Tick(h.block, nowNanos)
	return true
}

func (h *Handle) leave() { h.nested = false }

// OnCall is invoked by the hook installer at a hooked function's entry
// (spec §6 "on_call(ctx, function_id)"). nowNanos is the caller's
// monotonic clock reading.
func (h *Handle) OnCall(ctx event.CPUContext, functionID uint64, nowNanos int64) {
	if !h.enter(nowNanos) {
		return
	}
	defer h.leave()

	h.depth++
	idx := event.IndexEvent{
		TimestampNanos: nowNanos,
		FunctionID:     functionID,
		ThreadID:       h.threadID,
		Kind:           event.Call,
		Depth:          h.depth,
	}
	h.captureIndex(idx)
	h.captureDetail(ctx, idx)
}

// OnReturn is invoked at a hooked function's return (spec §6
// "on_return(ctx, function_id)").
func (h *Handle) OnReturn(ctx event.CPUContext, functionID uint64, nowNanos int64) {
	if !h.enter(nowNanos) {
		return
	}
	defer h.leave()

	depth := h.depth
	if h.depth > 0 {
		h.depth--
	}
	idx := event.IndexEvent{
		TimestampNanos: nowNanos,
		FunctionID:     functionID,
		ThreadID:       h.threadID,
		Kind:           event.Return,
		Depth:          depth,
	}
	h.captureIndex(idx)
	h.captureDetail(ctx, idx)
}

func (h *Handle) captureIndex(idx event.IndexEvent) {
	if !h.block.IndexLaneEnabled() {
		return
	}
	idx.Encode(h.indexBuf[:])
	h.write(h.indexBuf[:], laneKindIndex)
}

func (h *Handle) captureDetail(ctx event.CPUContext, idx event.IndexEvent) {
	if !h.block.DetailLaneEnabled() || h.block.FlightState() != control.FlightRecording {
		return
	}
	det := event.DetailEvent{
		Index:     idx,
		Registers: ctx.Registers(),
		FramePtr:  ctx.FramePointer(),
		StackPtr:  ctx.StackPointer(),
		LinkPtr:   ctx.LinkRegister(),
	}
	if h.block.CaptureStackSnapshot() {
		det.StackWindow = event.CopyStackWindow(ctx, h.stackBuf[:])
	}
	det.Encode(h.detailBuf[:])
	h.write(h.detailBuf[:], laneKindDetail)
}

type laneKind int

const (
	laneKindIndex laneKind = iota
	laneKindDetail
)

// write dispatches buf to the correct ring(s) for the current mode,
// following the write path and overflow policy of spec §4.5. Every drop
// bumps a counter — there is no silent path.
func (h *Handle) write(buf []byte, kind laneKind) {
	if h.lanes == nil {
		// No registered lanes: the global ring is the only sink, whatever
		// the mode.
		h.writeGlobal(buf, kind)
		return
	}
	mode := h.mode.Mode()

	switch mode {
	case control.ModePerThreadOnly:
		h.writePerThread(buf, kind)
	case control.ModeDualWrite:
		h.writePerThread(buf, kind)
		h.writeGlobal(buf, kind)
	case control.ModeGlobalOnly:
		h.writeGlobal(buf, kind)
	}
}

func (h *Handle) writePerThread(buf []byte, kind laneKind) {
	if h.lanes == nil {
		h.RingFull++
		h.block.BumpFallbackEvents()
		return
	}
	lane := h.laneFor(kind)
	ring := lane.ActiveRing()
	if ring.Write(buf) {
		return
	}
	if lane.SwapActiveRing() {
		if lane.ActiveRing().Write(buf) {
			return
		}
	}
	h.RingFull++
	h.block.BumpFallbackEvents()
}

func (h *Handle) writeGlobal(buf []byte, kind laneKind) {
	ring := h.global.Index
	if kind == laneKindDetail {
		ring = h.global.Detail
	}
	if ring == nil {
		return
	}
	ring.Enqueue(buf, globalClaimMaxSpins)
}

// globalClaimMaxSpins bounds the bounded-CAS retry loop on the global
// claim rings so a producer under heavy contention still returns in O(1)
// rather than spinning indefinitely (spec §5 "no producer operation may
// block").
const globalClaimMaxSpins = 32

func (h *Handle) laneFor(kind laneKind) *registry.Lane {
	if kind == laneKindDetail {
		return h.lanes.Detail
	}
	return h.lanes.Index
}
