// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

// ModeState is the producer-local cache of the agent↔controller mode
// machine (spec §4.6). Every producer thread ticks its own ModeState
// against the same shared Block; the cache exists so a thread only writes
// to the shared registry_mode field (and bumps a counter) on an actual
// transition, not on every tick.
type ModeState struct {
	cached      uint64
	hbTimeoutNs int64
}

// NewModeState returns a ModeState seeded at the initial mode, GLOBAL_ONLY,
// per spec §4.6.
func NewModeState(hbTimeoutNs int64) *ModeState {
	return &ModeState{cached: ModeGlobalOnly, hbTimeoutNs: hbTimeoutNs}
}

// Mode returns the producer's last-ticked cached mode without touching the
// shared block.
func (m *ModeState) Mode() uint64 { return m.cached }

// Tick reads the shared block's health signals and advances the cached
// mode along the table in spec §4.6. When the result differs from the
// previously cached mode, it publishes the new mode to the block (release)
// and bumps mode_transitions; demotions triggered by a stale heartbeat
// instead bump fallback_events, matching the split the spec draws between
// "transitions" (promotions) and "fallbacks" (demotions). The
// PER_THREAD_ONLY and GLOBAL_ONLY self-loops change nothing and bump
// neither counter.
//
// Tick never blocks and never allocates: it is called from the producer's
// hot path at every hook entry/exit (§4.4 step 2).
func (m *ModeState) Tick(b *Block, nowNanos int64) uint64 {
	healthy := b.RegistryReady() &&
		b.RegistryEpoch() > 0 &&
		b.DrainHeartbeatNs() != 0 &&
		nowNanos-b.DrainHeartbeatNs() <= m.hbTimeoutNs

	next := m.cached
	promoted := false
	demoted := false

	switch m.cached {
	case ModeGlobalOnly:
		if healthy {
			next = ModeDualWrite
			promoted = true
		}
	case ModeDualWrite:
		if healthy {
			next = ModePerThreadOnly
			promoted = true
		} else {
			next = ModeGlobalOnly
			demoted = true
		}
	case ModePerThreadOnly:
		if !healthy {
			next = ModeDualWrite
			demoted = true
		}
	}

	if next != m.cached {
		m.cached = next
		b.SetRegistryMode(next)
		if promoted {
			b.BumpModeTransitions()
		}
		if demoted {
			b.BumpFallbackEvents()
		}
	}
	return m.cached
}
