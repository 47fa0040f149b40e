// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package drain

import (
	"code.hybscloud.com/ada/capture"
	"code.hybscloud.com/ada/control"
	"code.hybscloud.com/ada/event"
	"code.hybscloud.com/ada/registry"
)

// perLaneSubmitCap bounds how many submitted-ring indices a single Tick
// pops per lane (spec §4.7 step 3a: "a bounded number"), so one very busy
// thread cannot starve the fairness rotation across the rest of the
// active mask within a tick.
const perLaneSubmitCap = 4

// globalBatchCap bounds how many events a single Tick drains from each
// global ring (step 2's "fixed per-tick cap").
const globalBatchCap = 256

// Counters accumulates the drain's visible metrics (spec §4.7 step 4).
type Counters struct {
	EventsDrained  uint64
	BytesWritten   uint64
	RingsReturned  uint64
	WriterErrors   uint64
	OverflowSample uint64 // last-sampled sum of the two global rings' overflow counters
}

// Scheduler is the consumer-side drain of spec §4.7: a single drain
// goroutine per session, cooperative within its own process, that never
// calls into the target program and never blocks on a producer.
type Scheduler struct {
	registry *registry.Registry
	block    *control.Block
	global   capture.GlobalRings
	writer   Writer
	now      func() int64

	rotateStart int
	Counters    Counters
}

// New constructs a Scheduler. now supplies the monotonic clock used to
// stamp the heartbeat (spec §6 "a monotonic nanosecond clock").
func New(reg *registry.Registry, block *control.Block, global capture.GlobalRings, w Writer, now func() int64) *Scheduler {
	return &Scheduler{registry: reg, block: block, global: global, writer: w, now: now}
}

// Tick runs one full pass of spec §4.7's loop body (steps 1-4). The
// caller is responsible for the tick cadence (target 50-100ms, tunable —
// Config.DrainTickInterval).
func (s *Scheduler) Tick() {
	s.block.StampHeartbeat(s.now())

	s.drainGlobal(s.global.Index, LaneIndex, event.IndexSize)
	s.drainGlobal(s.global.Detail, LaneDetail, event.DetailSize)

	s.drainActiveMask()

	s.sampleOverflow()
}

// Shutdown runs spec §4.7 step 5: stop accepting new registrations, run
// one final full pass so every already-committed event (including
// whatever sits in currently-active rings) is drained, then return.
func (s *Scheduler) Shutdown() {
	s.registry.StopAccepting()
	s.registry.RequestShutdown()
	s.Tick()
}

func (s *Scheduler) drainGlobal(ring interface {
	Dequeue([]byte) bool
}, kind LaneKind, slotSize int) {
	if ring == nil {
		return
	}
	buf := make([]byte, slotSize)
	for i := 0; i < globalBatchCap; i++ {
		if !ring.Dequeue(buf) {
			return
		}
		s.emit(kind, buf)
	}
}

func (s *Scheduler) drainActiveMask() {
	cap := s.registry.Capacity()
	if cap == 0 {
		return
	}
	// Rotate the starting slot every tick so a busy low-index thread never
	// starves higher-index threads (spec §4.7 "iteration ... is fair").
	start := s.rotateStart % cap
	s.rotateStart = (s.rotateStart + 1) % cap

	for offset := 0; offset < cap; offset++ {
		slot := (start + offset) % cap
		if !s.slotActive(slot) {
			continue
		}
		lanes := s.registry.GetThreadAt(slot)
		if lanes == nil {
			continue
		}
		s.drainLane(lanes.Index, LaneIndex, event.IndexSize)
		s.drainLane(lanes.Detail, LaneDetail, event.DetailSize)
	}
}

func (s *Scheduler) slotActive(slot int) bool {
	word := s.registry.ActiveMaskWord(slot / 64)
	return word&(uint64(1)<<uint(slot%64)) != 0
}

func (s *Scheduler) drainLane(lane *registry.Lane, kind LaneKind, slotSize int) {
	buf := make([]byte, slotSize)

	for i := 0; i < perLaneSubmitCap; i++ {
		idx, ok := lane.TakeSubmittedRing()
		if !ok {
			break
		}
		ring := lane.Ring(idx)
		for ring.Read(buf) {
			s.emit(kind, buf)
		}
		if lane.ReturnFreeRing(idx) {
			s.Counters.RingsReturned++
		}
	}

	// The active ring's read side is drain-owned even while the producer
	// concurrently writes to it (spec §9 Open Question 2's resolution
	// lives in ringbuf.Ring.Write's happens-before guarantee), so it is
	// drained the same way as a submitted ring, just never returned to
	// the free queue since the producer still owns its write side.
	active := lane.ActiveRing()
	for active.Read(buf) {
		s.emit(kind, buf)
	}
}

func (s *Scheduler) emit(kind LaneKind, payload []byte) {
	if err := writeFrame(s.writer, kind, payload); err != nil {
		s.Counters.WriterErrors++
		return
	}
	s.Counters.EventsDrained++
	s.Counters.BytesWritten += uint64(frameHeaderSize + len(payload))
}

func (s *Scheduler) sampleOverflow() {
	var sum uint64
	if s.global.Index != nil {
		sum += s.global.Index.OverflowCount()
	}
	if s.global.Detail != nil {
		sum += s.global.Detail.OverflowCount()
	}
	s.Counters.OverflowSample = sum
}
