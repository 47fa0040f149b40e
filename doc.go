// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ada is the core data plane of a dual-lane flight-recorder tracing
// backend: the in-process runtime that captures function-entry/exit events
// from a hooked target program and delivers them, across a process
// boundary, to a controller that persists them as a structured trace.
//
// The package is a thin composition root over several independent
// sub-packages:
//
//   - [code.hybscloud.com/ada/shmseg]  named, sized, validated shared memory
//   - [code.hybscloud.com/ada/ringbuf] the lock-free SPSC/claimed-MPSC ring
//   - [code.hybscloud.com/ada/event]   IndexEvent/DetailEvent wire layout
//   - [code.hybscloud.com/ada/control] the shared control block and mode machine
//   - [code.hybscloud.com/ada/registry] the thread registry and per-thread lanes
//   - [code.hybscloud.com/ada/capture]  the producer-side on_enter/on_leave protocol
//   - [code.hybscloud.com/ada/drain]    the consumer-side drain scheduler
//   - [code.hybscloud.com/ada/agent]    producer-process wiring (global state, init payload)
//   - [code.hybscloud.com/ada/controller] consumer-process wiring (segment ownership)
//
// None of this package's code may block a producer: every write-side
// operation in the call graph reachable from [code.hybscloud.com/ada/capture]
// is wait-free or bounded-CAS, and returns rather than waits when it cannot
// proceed immediately. Drops are preferred to blocking throughout, and every
// drop increments a counter (see [code.hybscloud.com/ada/control]).
//
// # Race detector caveat
//
// Like the lock-free queues this module builds on, several packages
// synchronize plain memory through acquire/release ordering on a handful of
// atomic positions rather than through mutexes or channels. Go's race
// detector tracks explicit synchronization primitives and has no model for
// that pattern, so running the concurrent tests (such as the multi-producer
// claim-ring test) under -race can report false positives.
// internal/racedetect.Enabled reports whether the detector is active; no
// test consults it, and no test is skipped under -race.
package ada
