// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package agent

import (
	"sync"

	"code.hybscloud.com/ada"
	"code.hybscloud.com/ada/capture"
	"code.hybscloud.com/ada/control"
	"code.hybscloud.com/ada/event"
	"code.hybscloud.com/ada/internal/obslog"
	"code.hybscloud.com/ada/registry"
	"code.hybscloud.com/ada/ringbuf"
	"code.hybscloud.com/ada/shmseg"
)

// Agent is the process-wide producer-side state: the attached control
// block, global rings, and (unless disabled) the thread registry, plus the
// resolved initialization params. One Agent exists per instrumented
// process; construct it once via Attach and share the pointer across every
// OS thread's Handle.
type Agent struct {
	Params  Params
	Control *control.Block
	Global  capture.GlobalRings
	Reg     *registry.Registry // nil if ADA_DISABLE_REGISTRY or registry segment unavailable

	segments    []*shmseg.Segment
	hbTimeoutNs int64

	// Log receives the attach lifecycle event (Close logs nothing);
	// defaults to obslog.Noop.
	// Like controller.Controller.Log, nothing on the capture hot path ever
	// touches this.
	Log obslog.Logger

	mu      sync.Mutex
	handles map[uint64]*capture.Handle
}

// Attach resolves params from payload and the environment, then opens the
// control block, global index/detail rings, and (unless disabled) the
// registry segment the controller created for this session. The agent
// never creates segments — it is always the attaching side (spec §4.1:
// "open(...) does not unlink on destroy").
func Attach(payload string, cfg ada.Config) (*Agent, error) {
	params, err := ParsePayload(payload)
	if err != nil {
		return nil, err
	}

	var segs []*shmseg.Segment
	cleanup := func() {
		for _, s := range segs {
			_ = s.Close()
		}
	}

	controlSeg, err := shmseg.Open("control", params.HostPID, params.SessionID, cfg.ControlSegmentSize)
	if err != nil {
		cleanup()
		return nil, err
	}
	segs = append(segs, controlSeg)
	block, err := control.Attach(controlSeg.Address())
	if err != nil {
		cleanup()
		return nil, err
	}

	indexSeg, err := shmseg.Open("index", params.HostPID, params.SessionID, cfg.GlobalIndexSegmentBytes())
	if err != nil {
		cleanup()
		return nil, err
	}
	segs = append(segs, indexSeg)
	indexRing, err := ringbuf.AttachClaim(indexSeg.Address(), indexSeg.Size(), event.IndexSize)
	if err != nil {
		cleanup()
		return nil, err
	}

	detailSeg, err := shmseg.Open("detail", params.HostPID, params.SessionID, cfg.GlobalDetailSegmentBytes())
	if err != nil {
		cleanup()
		return nil, err
	}
	segs = append(segs, detailSeg)
	detailRing, err := ringbuf.AttachClaim(detailSeg.Address(), detailSeg.Size(), event.DetailSize)
	if err != nil {
		cleanup()
		return nil, err
	}

	a := &Agent{
		Params:      params,
		Control:     block,
		Global:      capture.GlobalRings{Index: indexRing, Detail: detailRing},
		hbTimeoutNs: cfg.HeartbeatTimeout.Nanoseconds(),
		Log:         obslog.Noop,
		handles:     make(map[uint64]*capture.Handle),
	}
	a.segments = segs

	if !params.DisableRegistry {
		regCfg := registryConfig(cfg)
		regSeg, err := shmseg.Open("registry", params.HostPID, params.SessionID, registry.RequiredBytes(regCfg))
		if err == nil {
			segs = append(segs, regSeg)
			a.segments = segs
			if reg, err := registry.Attach(regSeg.Address(), regCfg); err == nil {
				a.Reg = reg
			}
			// A registry attach failure degrades silently to global-ring
			// capture: with Reg nil every Handle has no lanes and writes
			// only to the global rings, whatever the mode (spec §7 "Setup
			// errors ... the producer degrades to local-only").
		}
	}

	a.Log.Info("agent attached")
	return a, nil
}

// SetLogger replaces the default no-op logger.
func (a *Agent) SetLogger(l obslog.Logger) {
	if l == nil {
		l = obslog.Noop
	}
	a.Log = l
}

func registryConfig(cfg ada.Config) registry.Config {
	return registry.Config{
		Capacity: cfg.MaxThreads,
		Index: registry.LaneConfig{
			RingCount: cfg.IndexRingsPerLane,
			RingSlots: cfg.IndexRingSlots,
			SlotSize:  event.IndexSize,
		},
		Detail: registry.LaneConfig{
			RingCount: cfg.DetailRingsPerLane,
			RingSlots: cfg.DetailRingSlots,
			SlotSize:  event.DetailSize,
		},
	}
}

// HandleForThread returns the capture.Handle for threadID, registering the
// thread with the registry on first use (if a registry is attached) and
// caching the result so later calls on the same thread are a map lookup.
// Per spec §4.4, the caller owns threading this Handle through every
// on_call/on_return invocation for that one OS thread itself — this method
// is a one-time-per-thread setup call, not something to invoke on the hot
// path.
func (a *Agent) HandleForThread(threadID uint64) *capture.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.handles[threadID]; ok {
		return h
	}

	var lanes *registry.ThreadLaneSet
	if a.Reg != nil {
		if l, err := a.Reg.Register(threadID); err == nil {
			lanes = l
		}
		// Registration failure (registry full, pool exhausted) leaves
		// lanes nil; the Handle then writes only to the global rings,
		// exactly as it would for GLOBAL_ONLY mode.
	}

	h := capture.NewHandle(threadID, lanes, a.Control, a.Global, a.hbTimeoutNs)
	a.handles[threadID] = h
	return h
}

// Close detaches (but does not destroy) every segment this agent opened.
func (a *Agent) Close() error {
	var firstErr error
	for _, s := range a.segments {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
