// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry_test

import (
	"encoding/binary"
	"testing"

	"code.hybscloud.com/ada"
	"code.hybscloud.com/ada/registry"
)

func testConfig() registry.Config {
	return registry.Config{
		Capacity: 8,
		Index:    registry.LaneConfig{RingCount: 2, RingSlots: 16, SlotSize: 8},
		Detail:   registry.LaneConfig{RingCount: 2, RingSlots: 8, SlotSize: 32},
	}
}

func TestCreateAttachRoundTrip(t *testing.T) {
	cfg := testConfig()
	mem := make([]byte, registry.RequiredBytes(cfg))
	creator, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	lanes, err := creator.Register(100)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if lanes.Slot != 0 {
		t.Fatalf("Slot: got %d, want 0", lanes.Slot)
	}

	attacher, err := registry.Attach(mem, cfg)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if attacher.GetActiveCount() != 1 {
		t.Fatalf("GetActiveCount: got %d, want 1", attacher.GetActiveCount())
	}
	got := attacher.GetThreadAt(0)
	if got == nil || got.ThreadID != 100 {
		t.Fatalf("GetThreadAt(0): got %+v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	cfg := testConfig()
	mem := make([]byte, registry.RequiredBytes(cfg))
	r, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := r.Register(7)
	if err != nil {
		t.Fatalf("Register first: %v", err)
	}
	second, err := r.Register(7)
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}
	if first.Slot != second.Slot {
		t.Fatalf("Register not idempotent: got slots %d and %d", first.Slot, second.Slot)
	}
	if r.GetActiveCount() != 1 {
		t.Fatalf("GetActiveCount after duplicate register: got %d, want 1", r.GetActiveCount())
	}
}

func TestRegisterSlotStability(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 4
	mem := make([]byte, registry.RequiredBytes(cfg))
	r, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	seen := make(map[int]uint64)
	for tid := uint64(1); tid <= 4; tid++ {
		lanes, err := r.Register(tid)
		if err != nil {
			t.Fatalf("Register(%d): %v", tid, err)
		}
		if other, ok := seen[lanes.Slot]; ok {
			t.Fatalf("slot %d assigned to both thread %d and %d", lanes.Slot, other, tid)
		}
		seen[lanes.Slot] = tid
	}

	if _, err := r.Register(5); err != ada.ErrRegistryFull {
		t.Fatalf("Register beyond capacity: got %v, want ErrRegistryFull", err)
	}
}

func TestUnregisterClearsActiveBit(t *testing.T) {
	cfg := testConfig()
	mem := make([]byte, registry.RequiredBytes(cfg))
	r, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Register(42); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.GetActiveCount() != 1 {
		t.Fatalf("GetActiveCount: got %d, want 1", r.GetActiveCount())
	}
	r.UnregisterByID(42)
	if r.GetActiveCount() != 0 {
		t.Fatalf("GetActiveCount after unregister: got %d, want 0", r.GetActiveCount())
	}
}

func TestSwapActiveRingAndDrainRoundTrip(t *testing.T) {
	cfg := registry.Config{
		Capacity: 2,
		Index:    registry.LaneConfig{RingCount: 2, RingSlots: 4, SlotSize: 8},
		Detail:   registry.LaneConfig{RingCount: 2, RingSlots: 4, SlotSize: 8},
	}
	mem := make([]byte, registry.RequiredBytes(cfg))
	r, err := registry.Create(mem, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	lanes, err := r.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	lane := lanes.Index
	active := lane.ActiveRing()
	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, 0xAAAA)
	for i := 0; i < 4; i++ {
		if !active.Write(val) {
			t.Fatalf("Write(%d): unexpected false", i)
		}
	}
	if active.Write(val) {
		t.Fatalf("Write on full ring: expected true->false transition")
	}

	prevIdx := lane.ActiveIndex()
	if !lane.SwapActiveRing() {
		t.Fatalf("SwapActiveRing: expected true (one free ring available)")
	}
	if lane.ActiveIndex() == prevIdx {
		t.Fatalf("SwapActiveRing: active index unchanged")
	}
	if lane.SwapActiveRing() {
		t.Fatalf("second SwapActiveRing: expected false (free queue empty)")
	}

	idx, ok := lane.TakeSubmittedRing()
	if !ok || idx != prevIdx {
		t.Fatalf("TakeSubmittedRing: got (%d, %v), want (%d, true)", idx, ok, prevIdx)
	}

	submitted := lane.Ring(idx)
	dst := make([]byte, 8)
	drained := 0
	for submitted.Read(dst) {
		drained++
	}
	if drained != 4 {
		t.Fatalf("drained %d events from submitted ring, want 4", drained)
	}
	if !lane.ReturnFreeRing(idx) {
		t.Fatalf("ReturnFreeRing: unexpected false")
	}
}
