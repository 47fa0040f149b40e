// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control_test

import (
	"testing"

	"code.hybscloud.com/ada/control"
)

func newHealthyBlock(t *testing.T) (*control.Block, int64) {
	t.Helper()
	mem := make([]byte, control.Size)
	b, err := control.Create(mem)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b.SetRegistryReady(true)
	b.BumpRegistryEpoch()
	b.StampHeartbeat(1000)
	return b, 1000
}

func TestModeStatePromotesOnHealthySignal(t *testing.T) {
	b, now := newHealthyBlock(t)
	ms := control.NewModeState(500)

	if got := ms.Tick(b, now); got != control.ModeDualWrite {
		t.Fatalf("first healthy tick: got %d, want ModeDualWrite", got)
	}
	if b.ModeTransitions() != 1 {
		t.Fatalf("ModeTransitions: got %d, want 1", b.ModeTransitions())
	}
	if got := ms.Tick(b, now); got != control.ModePerThreadOnly {
		t.Fatalf("second healthy tick: got %d, want ModePerThreadOnly", got)
	}
	if b.ModeTransitions() != 2 {
		t.Fatalf("ModeTransitions: got %d, want 2", b.ModeTransitions())
	}
	// Self-loop: already at the top, stays there, no further counter bump.
	if got := ms.Tick(b, now); got != control.ModePerThreadOnly {
		t.Fatalf("third healthy tick: got %d, want ModePerThreadOnly", got)
	}
	if b.ModeTransitions() != 2 {
		t.Fatalf("ModeTransitions after self-loop: got %d, want 2", b.ModeTransitions())
	}
}

func TestModeStateDemotesOnStaleHeartbeat(t *testing.T) {
	b, now := newHealthyBlock(t)
	ms := control.NewModeState(500)
	ms.Tick(b, now)
	ms.Tick(b, now) // now at PER_THREAD_ONLY

	// Heartbeat goes stale: advance now_ns far past hb_timeout_ns.
	staleNow := now + 10_000
	if got := ms.Tick(b, staleNow); got != control.ModeDualWrite {
		t.Fatalf("demotion tick: got %d, want ModeDualWrite", got)
	}
	if b.FallbackEvents() != 1 {
		t.Fatalf("FallbackEvents: got %d, want 1", b.FallbackEvents())
	}

	if got := ms.Tick(b, staleNow); got != control.ModeGlobalOnly {
		t.Fatalf("second demotion tick: got %d, want ModeGlobalOnly", got)
	}
	if b.FallbackEvents() != 2 {
		t.Fatalf("FallbackEvents: got %d, want 2", b.FallbackEvents())
	}

	// Self-loop at the bottom: no further counter bump.
	if got := ms.Tick(b, staleNow); got != control.ModeGlobalOnly {
		t.Fatalf("self-loop at bottom: got %d, want ModeGlobalOnly", got)
	}
	if b.FallbackEvents() != 2 {
		t.Fatalf("FallbackEvents after self-loop: got %d, want 2", b.FallbackEvents())
	}
}

func TestModeStateInitiallyGlobalOnly(t *testing.T) {
	ms := control.NewModeState(500)
	if ms.Mode() != control.ModeGlobalOnly {
		t.Fatalf("initial mode: got %d, want ModeGlobalOnly", ms.Mode())
	}
}
