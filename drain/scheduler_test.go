// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package drain_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"code.hybscloud.com/ada/capture"
	"code.hybscloud.com/ada/control"
	"code.hybscloud.com/ada/drain"
	"code.hybscloud.com/ada/event"
	"code.hybscloud.com/ada/registry"
	"code.hybscloud.com/ada/ringbuf"
)

type memWriter struct {
	buf bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

// decodeFrames splits a memWriter's accumulated bytes back into
// (kind, payload) pairs using the same length-prefixed layout writeFrame
// produces, so tests can assert on what actually reached the sink.
func decodeFrames(t *testing.T, raw []byte) []struct {
	kind    drain.LaneKind
	payload []byte
} {
	t.Helper()
	var out []struct {
		kind    drain.LaneKind
		payload []byte
	}
	for len(raw) > 0 {
		if len(raw) < 5 {
			t.Fatalf("truncated frame header: %d bytes left", len(raw))
		}
		kind := drain.LaneKind(raw[0])
		n := binary.LittleEndian.Uint32(raw[1:5])
		raw = raw[5:]
		if uint32(len(raw)) < n {
			t.Fatalf("truncated frame payload: want %d, have %d", n, len(raw))
		}
		out = append(out, struct {
			kind    drain.LaneKind
			payload []byte
		}{kind, append([]byte(nil), raw[:n]...)})
		raw = raw[n:]
	}
	return out
}

func newGlobalRings(t *testing.T) capture.GlobalRings {
	t.Helper()
	idxMem := make([]byte, ringbuf.HeaderSize+64*(8+event.IndexSize))
	idx, err := ringbuf.CreateClaim(idxMem, len(idxMem), event.IndexSize)
	if err != nil {
		t.Fatalf("CreateClaim index: %v", err)
	}
	detMem := make([]byte, ringbuf.HeaderSize+64*(8+event.DetailSize))
	det, err := ringbuf.CreateClaim(detMem, len(detMem), event.DetailSize)
	if err != nil {
		t.Fatalf("CreateClaim detail: %v", err)
	}
	return capture.GlobalRings{Index: idx, Detail: det}
}

func newTestRegistry(t *testing.T, capacity int) *registry.Registry {
	t.Helper()
	cfg := registry.Config{
		Capacity: capacity,
		Index:    registry.LaneConfig{RingCount: 2, RingSlots: 8, SlotSize: event.IndexSize},
		Detail:   registry.LaneConfig{RingCount: 2, RingSlots: 8, SlotSize: event.DetailSize},
	}
	mem := make([]byte, registry.RequiredBytes(cfg))
	r, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	return r
}

func newTestBlock(t *testing.T) *control.Block {
	t.Helper()
	mem := make([]byte, control.Size)
	b, err := control.Create(mem)
	if err != nil {
		t.Fatalf("control.Create: %v", err)
	}
	return b
}

func fixedClock(n int64) func() int64 { return func() int64 { return n } }

func TestTickStampsHeartbeat(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(12345))

	s.Tick()

	if got := block.DrainHeartbeatNs(); got != 12345 {
		t.Fatalf("DrainHeartbeatNs: got %d, want 12345", got)
	}
}

func TestTickDrainsGlobalRings(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(1))

	idx := event.IndexEvent{TimestampNanos: 1, FunctionID: 7, ThreadID: 1, Kind: event.Call, Depth: 1}
	buf := make([]byte, event.IndexSize)
	idx.Encode(buf)
	if !global.Index.Enqueue(buf, 8) {
		t.Fatalf("Enqueue index event: failed")
	}

	s.Tick()

	frames := decodeFrames(t, w.buf.Bytes())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].kind != drain.LaneIndex {
		t.Fatalf("frame kind: got %d, want LaneIndex", frames[0].kind)
	}
	got := event.DecodeIndexEvent(frames[0].payload)
	if got.FunctionID != 7 {
		t.Fatalf("decoded FunctionID: got %d, want 7", got.FunctionID)
	}
	if s.Counters.EventsDrained != 1 {
		t.Fatalf("EventsDrained: got %d, want 1", s.Counters.EventsDrained)
	}
}

func TestTickDrainsActiveLaneWithoutReturningIt(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	lanes, err := reg.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(1))

	idx := event.IndexEvent{TimestampNanos: 1, FunctionID: 9, ThreadID: 1, Kind: event.Call, Depth: 1}
	buf := make([]byte, event.IndexSize)
	idx.Encode(buf)
	if !lanes.Index.ActiveRing().Write(buf) {
		t.Fatalf("Write to active ring: failed")
	}

	s.Tick()

	frames := decodeFrames(t, w.buf.Bytes())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := event.DecodeIndexEvent(frames[0].payload)
	if got.FunctionID != 9 {
		t.Fatalf("decoded FunctionID: got %d, want 9", got.FunctionID)
	}

	// A second tick with nothing new written must drain nothing further.
	w.buf.Reset()
	s.Tick()
	if w.buf.Len() != 0 {
		t.Fatalf("second tick wrote %d bytes, want 0", w.buf.Len())
	}
}

func TestTickDrainsSubmittedRingAndReturnsItToFreeQueue(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	lanes, err := reg.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(1))

	buf := make([]byte, event.IndexSize)
	for i := 0; i < 8; i++ {
		idx := event.IndexEvent{TimestampNanos: int64(i), FunctionID: uint64(i), ThreadID: 1, Kind: event.Call, Depth: 1}
		idx.Encode(buf)
		if !lanes.Index.ActiveRing().Write(buf) {
			t.Fatalf("fill active ring: write %d failed", i)
		}
	}
	if !lanes.Index.SwapActiveRing() {
		t.Fatalf("SwapActiveRing: failed")
	}

	s.Tick()

	frames := decodeFrames(t, w.buf.Bytes())
	if len(frames) != 8 {
		t.Fatalf("got %d frames, want 8", len(frames))
	}
	if s.Counters.RingsReturned != 1 {
		t.Fatalf("RingsReturned: got %d, want 1", s.Counters.RingsReturned)
	}

	// The returned ring must now be usable again via a second swap.
	if !lanes.Index.SwapActiveRing() {
		t.Fatalf("second SwapActiveRing after drain should succeed once the ring was returned")
	}
}

func TestShutdownStopsAcceptingAndDoesFinalPass(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(1))

	idx := event.IndexEvent{TimestampNanos: 1, FunctionID: 1, ThreadID: 1, Kind: event.Call, Depth: 1}
	buf := make([]byte, event.IndexSize)
	idx.Encode(buf)
	if !global.Index.Enqueue(buf, 8) {
		t.Fatalf("Enqueue: failed")
	}

	s.Shutdown()

	if !reg.IsShutdownRequested() {
		t.Fatalf("IsShutdownRequested: got false, want true after Shutdown")
	}
	if _, err := reg.Register(99); err == nil {
		t.Fatalf("Register after Shutdown: got nil error, want a rejection")
	}
	if s.Counters.EventsDrained != 1 {
		t.Fatalf("EventsDrained after Shutdown: got %d, want 1", s.Counters.EventsDrained)
	}
}

func TestTickDrainsEveryActiveThread(t *testing.T) {
	block := newTestBlock(t)
	reg := newTestRegistry(t, 4)
	global := newGlobalRings(t)
	w := &memWriter{}
	s := drain.New(reg, block, global, w, fixedClock(1))

	laneA, err := reg.Register(1)
	if err != nil {
		t.Fatalf("Register 1: %v", err)
	}
	laneB, err := reg.Register(2)
	if err != nil {
		t.Fatalf("Register 2: %v", err)
	}

	buf := make([]byte, event.IndexSize)
	idxA := event.IndexEvent{FunctionID: 100, ThreadID: 1, Kind: event.Call, Depth: 1}
	idxA.Encode(buf)
	laneA.Index.ActiveRing().Write(buf)
	idxB := event.IndexEvent{FunctionID: 200, ThreadID: 2, Kind: event.Call, Depth: 1}
	idxB.Encode(buf)
	laneB.Index.ActiveRing().Write(buf)

	s.Tick()

	frames := decodeFrames(t, w.buf.Bytes())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}
