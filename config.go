// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ada

import (
	"time"

	"code.hybscloud.com/ada/event"
)

// Config is the set of build-time tunables the specification's §9 Design
// Notes call out as hard-coded in the source and asks this reimplementation
// to surface instead: ring sizes, MAX_THREADS, and the heartbeat timeout.
// Free/submit queue capacities are not separate fields; they are derived
// from the per-lane ring counts. See [DefaultConfig] for the defaults.
//
// Config is a plain value type; use [DefaultConfig] to get one populated
// with defaults and [Config.With...] fluent setters to adjust it, mirroring
// the teacher's Options/Builder split (lfq.Options / lfq.Builder) but
// collapsed into one type since, unlike queue-algorithm selection, nothing
// here changes which code path is compiled in — only sizes.
type Config struct {
	// MaxThreads bounds the registry's fixed-capacity thread-lane-set
	// array. Once reached, Register returns ErrRegistryFull.
	MaxThreads int

	// IndexRingsPerLane and DetailRingsPerLane are the number of physical
	// rings in each per-thread lane's pool (one active, the rest free or
	// in flight to the drain).
	IndexRingsPerLane  int
	DetailRingsPerLane int

	// IndexRingSlots and DetailRingSlots are the per-ring capacity (rounded
	// down to a power of two by ringbuf.Create).
	IndexRingSlots  int
	DetailRingSlots int

	// GlobalIndexRingSlots and GlobalDetailRingSlots size the two
	// multi-writer fallback rings shared by producers not using per-thread
	// lanes.
	GlobalIndexRingSlots  int
	GlobalDetailRingSlots int

	// ControlSegmentSize is the fixed size of the control block segment.
	ControlSegmentSize int

	// StackSnapshotCap records the size of the optional stack-window byte
	// copy in a DetailEvent. Nothing reads it: the copy is bounded by the
	// constant event.StackWindowCap (256), which this field does not change.
	StackSnapshotCap int

	// HeartbeatTimeout is hb_timeout_ns from §4.6: how stale
	// drain_heartbeat_ns may be before the mode state machine considers
	// the registry unhealthy.
	HeartbeatTimeout time.Duration

	// DrainTickInterval is the consumer's target polling cadence (§4.7:
	// 50-100ms, tunable).
	DrainTickInterval time.Duration
}

// DefaultConfig returns a Config populated with the defaults: a 4 KiB
// control segment, index/detail globals sized generously (2^19 and 2^17
// slots), modest per-thread pools (four 32 KiB index rings and two 384 KiB
// detail rings per thread), and a drain cadence in the middle of the
// 50-100ms band.
func DefaultConfig() Config {
	return Config{
		MaxThreads:            256,
		IndexRingsPerLane:     4,
		DetailRingsPerLane:    2,
		IndexRingSlots:        1024,  // 32 KiB lane rings at a 32-byte IndexEvent slot
		DetailRingSlots:       1024,  // 384 KiB lane rings at a 384-byte DetailEvent slot
		GlobalIndexRingSlots:  1 << 19,
		GlobalDetailRingSlots: 1 << 17,
		ControlSegmentSize:    4096,
		StackSnapshotCap:      256,
		HeartbeatTimeout:      500 * time.Millisecond,
		DrainTickInterval:     75 * time.Millisecond,
	}
}

// WithMaxThreads returns a copy of c with MaxThreads set.
func (c Config) WithMaxThreads(n int) Config { c.MaxThreads = n; return c }

// WithDrainTickInterval returns a copy of c with DrainTickInterval set.
func (c Config) WithDrainTickInterval(d time.Duration) Config { c.DrainTickInterval = d; return c }

// WithHeartbeatTimeout returns a copy of c with HeartbeatTimeout set.
func (c Config) WithHeartbeatTimeout(d time.Duration) Config { c.HeartbeatTimeout = d; return c }

// ringbufHeaderSize and claimSlotOverhead mirror ringbuf.HeaderSize and the
// 8-byte per-slot cycle field ringbuf.ClaimRing uses, without importing
// ringbuf here (ringbuf already imports this package for its error
// sentinels, so the reverse import would cycle). Both packages that build
// global segments — agent and controller — must size them with the exact
// same arithmetic as ringbuf.CreateClaim/AttachClaim for shmseg's byte-exact
// size check to pass across processes, so that arithmetic lives once, here.
const ringbufHeaderSize = 256
const claimSlotOverhead = 8

// GlobalIndexSegmentBytes returns the exact byte size the index global
// claim ring segment must be created and opened with.
func (c Config) GlobalIndexSegmentBytes() int {
	return ringbufHeaderSize + c.GlobalIndexRingSlots*(claimSlotOverhead+event.IndexSize)
}

// GlobalDetailSegmentBytes returns the exact byte size the detail global
// claim ring segment must be created and opened with.
func (c Config) GlobalDetailSegmentBytes() int {
	return ringbufHeaderSize + c.GlobalDetailRingSlots*(claimSlotOverhead+event.DetailSize)
}
