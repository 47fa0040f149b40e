// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package controller is the consumer-process wiring layer: it owns and
// creates the control block, registry, and global ring segments a producer
// process attaches to (package agent), drives the drain scheduler, and
// orchestrates the process/flight-recorder state transitions and the
// registry epoch bump a new incarnation of the consumer must perform
// before setting registry_ready (spec §4.6's mode machine reads exactly
// those three signals).
package controller

import (
	"code.hybscloud.com/ada"
	"code.hybscloud.com/ada/capture"
	"code.hybscloud.com/ada/control"
	"code.hybscloud.com/ada/drain"
	"code.hybscloud.com/ada/event"
	"code.hybscloud.com/ada/internal/clock"
	"code.hybscloud.com/ada/internal/obslog"
	"code.hybscloud.com/ada/registry"
	"code.hybscloud.com/ada/ringbuf"
	"code.hybscloud.com/ada/shmseg"
)

// Controller is the consumer-process owner of every shared segment for one
// session: it creates them (so it, not any producer, is responsible for
// eventual Destroy), wires a drain.Scheduler over them, and exposes the
// control-block operations a session orchestrator needs (resume, arm,
// request shutdown).
type Controller struct {
	HostPID   int
	SessionID uint32

	controlSeg  *shmseg.Segment
	indexSeg    *shmseg.Segment
	detailSeg   *shmseg.Segment
	registrySeg *shmseg.Segment

	Control  *control.Block
	Registry *registry.Registry
	Drain    *drain.Scheduler

	// Log receives session lifecycle events (spec §7 "in normal operation
	// nothing is logged at steady state"): creation, resume, and shutdown.
	// Defaults to obslog.Noop; nothing on the capture hot path ever touches
	// this field.
	Log obslog.Logger
}

// Create allocates and owns every segment for (hostPID, sessionID),
// initializes the control block and registry headers, and wires a drain
// scheduler writing framed events to w. now supplies the monotonic clock
// the scheduler stamps drain_heartbeat_ns with.
func Create(hostPID int, sessionID uint32, cfg ada.Config, w drain.Writer, now func() int64) (*Controller, error) {
	c := &Controller{HostPID: hostPID, SessionID: sessionID, Log: obslog.Noop}

	controlSeg, err := shmseg.Create("control", hostPID, sessionID, cfg.ControlSegmentSize)
	if err != nil {
		return nil, err
	}
	c.controlSeg = controlSeg
	block, err := control.Create(controlSeg.Address())
	if err != nil {
		c.destroyPartial()
		return nil, err
	}
	c.Control = block

	indexSeg, err := shmseg.Create("index", hostPID, sessionID, cfg.GlobalIndexSegmentBytes())
	if err != nil {
		c.destroyPartial()
		return nil, err
	}
	c.indexSeg = indexSeg
	indexRing, err := ringbuf.CreateClaim(indexSeg.Address(), indexSeg.Size(), event.IndexSize)
	if err != nil {
		c.destroyPartial()
		return nil, err
	}

	detailSeg, err := shmseg.Create("detail", hostPID, sessionID, cfg.GlobalDetailSegmentBytes())
	if err != nil {
		c.destroyPartial()
		return nil, err
	}
	c.detailSeg = detailSeg
	detailRing, err := ringbuf.CreateClaim(detailSeg.Address(), detailSeg.Size(), event.DetailSize)
	if err != nil {
		c.destroyPartial()
		return nil, err
	}

	regCfg := registryConfig(cfg)
	registrySeg, err := shmseg.Create("registry", hostPID, sessionID, registry.RequiredBytes(regCfg))
	if err != nil {
		c.destroyPartial()
		return nil, err
	}
	c.registrySeg = registrySeg
	reg, err := registry.Create(registrySeg.Address(), regCfg)
	if err != nil {
		c.destroyPartial()
		return nil, err
	}
	c.Registry = reg

	// New incarnation: bump both epochs and flip registry_ready only after
	// every structure is in place, so a producer's mode tick never observes
	// registry_ready true against a registry that is still being built
	// (spec: "registry_epoch increments signal a new consumer incarnation").
	reg.BumpEpoch()
	block.BumpRegistryEpoch()
	block.SetRegistryReady(true)
	block.SetProcessState(control.ProcessInitialized)

	global := capture.GlobalRings{Index: indexRing, Detail: detailRing}
	c.Drain = drain.New(reg, block, global, w, now)

	c.Log.Info("session created")
	return c, nil
}

// SetLogger replaces the default no-op logger with one that writes session
// lifecycle events somewhere observable (spec §7's user-visible-behavior
// section: transitions and shutdown, never steady-state capture).
func (c *Controller) SetLogger(l obslog.Logger) {
	if l == nil {
		l = obslog.Noop
	}
	c.Log = l
}

// CreateWithSystemClock is Create with now bound to clock.NowNanos, the
// cached monotonic clock (spec §6 "a monotonic nanosecond clock"); real
// deployments should use this unless they have their own clock source to
// thread through for testing.
func CreateWithSystemClock(hostPID int, sessionID uint32, cfg ada.Config, w drain.Writer) (*Controller, error) {
	return Create(hostPID, sessionID, cfg, w, clock.NowNanos)
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

// Resume transitions the target program out of its initial suspension
// (spec §6 "After hook installation completes ... the controller may
// resume the target"); the controller only does this once hooks_ready is
// observed set.
func (c *Controller) Resume() bool {
	if !c.Control.HooksReady() {
		return false
	}
	c.Control.SetProcessState(control.ProcessRunning)
	c.Log.Info("target resumed")
	return true
}

// Arm moves the flight recorder from idle into armed, ready to start
// recording on the next trigger (spec §4.2's flight-state machine is owned
// entirely by the controller; the producer only reads flight_state).
func (c *Controller) Arm() {
	c.Control.SetFlightState(control.FlightArmed)
}

// StartRecording moves the flight recorder into its recording state.
func (c *Controller) StartRecording() {
	c.Control.SetFlightState(control.FlightRecording)
}

// Shutdown requests cancellation, runs the drain's final pass, and
// destroys every owned segment. It is the only path that unlinks the
// backing files — a producer's Close only unmaps (spec §4.1: "owned by the
// creator and is unlinked when the creator destroys it").
func (c *Controller) Shutdown() error {
	c.Control.RequestShutdown()
	c.Control.SetFlightState(control.FlightDraining)
	c.Drain.Shutdown()
	c.Control.SetProcessState(control.ProcessDetaching)
	c.Log.Info("session shutting down")
	return c.destroyAll()
}

func (c *Controller) destroyPartial() { _ = c.destroyAll() }

func (c *Controller) destroyAll() error {
	var firstErr error
	for _, seg := range []*shmseg.Segment{c.controlSeg, c.indexSeg, c.detailSeg, c.registrySeg} {
		if seg == nil {
			continue
		}
		if err := seg.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
