// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package event_test

import (
	"bytes"
	"testing"

	"code.hybscloud.com/ada/event"
)

func TestIndexEventRoundTrip(t *testing.T) {
	in := event.IndexEvent{
		TimestampNanos: 1234567890,
		FunctionID:     0xdeadbeef,
		ThreadID:       42,
		Kind:           event.Return,
		Depth:          7,
	}
	buf := make([]byte, event.IndexSize)
	in.Encode(buf)

	got := event.DecodeIndexEvent(buf)
	if got != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestDetailEventRoundTrip(t *testing.T) {
	in := event.DetailEvent{
		Index: event.IndexEvent{
			TimestampNanos: 99,
			FunctionID:     7,
			ThreadID:       3,
			Kind:           event.Call,
			Depth:          1,
		},
		Registers:   [event.RegisterCount]uint64{1, 2, 3, 4, 5, 6, 7, 8},
		FramePtr:    0x1000,
		StackPtr:    0x2000,
		LinkPtr:     0x3000,
		StackWindow: []byte("hello stack bytes"),
	}
	buf := make([]byte, event.DetailSize)
	in.Encode(buf)

	got := event.DecodeDetailEvent(buf)
	if got.Index != in.Index {
		t.Fatalf("index mismatch: got %+v, want %+v", got.Index, in.Index)
	}
	if got.Registers != in.Registers {
		t.Fatalf("registers mismatch: got %v, want %v", got.Registers, in.Registers)
	}
	if got.FramePtr != in.FramePtr || got.StackPtr != in.StackPtr || got.LinkPtr != in.LinkPtr {
		t.Fatalf("frame/stack/link mismatch: got %#x/%#x/%#x", got.FramePtr, got.StackPtr, got.LinkPtr)
	}
	if !bytes.Equal(got.StackWindow, in.StackWindow) {
		t.Fatalf("stack window mismatch: got %q, want %q", got.StackWindow, in.StackWindow)
	}
}

func TestDetailEventStackWindowTruncation(t *testing.T) {
	oversized := bytes.Repeat([]byte{0xAB}, event.StackWindowCap+64)
	in := event.DetailEvent{StackWindow: oversized}
	buf := make([]byte, event.DetailSize)
	in.Encode(buf)

	got := event.DecodeDetailEvent(buf)
	if len(got.StackWindow) != event.StackWindowCap {
		t.Fatalf("StackWindow length: got %d, want %d", len(got.StackWindow), event.StackWindowCap)
	}
}

type fakeCPUContext struct {
	regs         [event.RegisterCount]uint64
	fp, sp, lr   uint64
	available    []byte // bytes actually "accessible" on this fake stack
}

func (c fakeCPUContext) Registers() [event.RegisterCount]uint64 { return c.regs }
func (c fakeCPUContext) FramePointer() uint64                    { return c.fp }
func (c fakeCPUContext) StackPointer() uint64                    { return c.sp }
func (c fakeCPUContext) LinkRegister() uint64                    { return c.lr }
func (c fakeCPUContext) ReadStack(dst []byte) int {
	return copy(dst, c.available)
}

func TestCopyStackWindowRespectsAccessibleBytes(t *testing.T) {
	ctx := fakeCPUContext{available: []byte("only-these-bytes-are-mapped")}
	buf := make([]byte, event.StackWindowCap)
	got := event.CopyStackWindow(ctx, buf)
	if !bytes.Equal(got, ctx.available) {
		t.Fatalf("CopyStackWindow: got %q, want %q", got, ctx.available)
	}
}

func TestCopyStackWindowEnforcesCap(t *testing.T) {
	ctx := fakeCPUContext{available: bytes.Repeat([]byte{1}, event.StackWindowCap+100)}
	buf := make([]byte, event.StackWindowCap+100)
	got := event.CopyStackWindow(ctx, buf)
	if len(got) != event.StackWindowCap {
		t.Fatalf("CopyStackWindow: got len %d, want %d", len(got), event.StackWindowCap)
	}
}
