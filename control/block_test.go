// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/ada"
	"code.hybscloud.com/ada/control"
)

func TestCreateAttachRoundTrip(t *testing.T) {
	mem := make([]byte, control.Size)
	creator, err := control.Create(mem)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	creator.SetIndexLaneEnabled(true)
	creator.SetFlightState(control.FlightRecording)

	attacher, err := control.Attach(mem)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !attacher.IndexLaneEnabled() {
		t.Fatalf("IndexLaneEnabled: want true")
	}
	if attacher.FlightState() != control.FlightRecording {
		t.Fatalf("FlightState: got %d, want FlightRecording", attacher.FlightState())
	}
}

func TestCreateRejectsUndersizedLayout(t *testing.T) {
	mem := make([]byte, 16)
	if _, err := control.Create(mem); !errors.Is(err, ada.ErrInvalidLayout) {
		t.Fatalf("Create: got %v, want ErrInvalidLayout", err)
	}
}

func TestAttachRejectsBadMagic(t *testing.T) {
	mem := make([]byte, control.Size)
	if _, err := control.Attach(mem); !errors.Is(err, ada.ErrInvalidMagic) {
		t.Fatalf("Attach on zeroed memory: got %v, want ErrInvalidMagic", err)
	}
}

func TestInitialState(t *testing.T) {
	mem := make([]byte, control.Size)
	b, err := control.Create(mem)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ProcessState() != control.ProcessInitialized {
		t.Fatalf("ProcessState: got %d, want ProcessInitialized", b.ProcessState())
	}
	if b.RegistryMode() != control.ModeGlobalOnly {
		t.Fatalf("RegistryMode: got %d, want ModeGlobalOnly", b.RegistryMode())
	}
	if b.RegistryReady() {
		t.Fatalf("RegistryReady: want false initially")
	}
	if b.ShutdownRequested() {
		t.Fatalf("ShutdownRequested: want false initially")
	}
}

func TestHeartbeatAndEpoch(t *testing.T) {
	mem := make([]byte, control.Size)
	b, _ := control.Create(mem)

	b.StampHeartbeat(1000)
	if b.DrainHeartbeatNs() != 1000 {
		t.Fatalf("DrainHeartbeatNs: got %d, want 1000", b.DrainHeartbeatNs())
	}

	if got := b.BumpRegistryEpoch(); got != 0 {
		t.Fatalf("BumpRegistryEpoch first call: got %d, want old value 0", got)
	}
	if b.RegistryEpoch() != 1 {
		t.Fatalf("RegistryEpoch: got %d, want 1", b.RegistryEpoch())
	}
}

func TestShutdownRequestLatches(t *testing.T) {
	mem := make([]byte, control.Size)
	b, _ := control.Create(mem)
	b.RequestShutdown()
	if !b.ShutdownRequested() {
		t.Fatalf("ShutdownRequested: want true after RequestShutdown")
	}
}
