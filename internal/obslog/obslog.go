// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package obslog is the structured-logging seam for everything outside the
// producer hot path. Its callers are the controller (session create,
// resume, shutdown) and the agent (attach); mode transitions and the drain
// log nothing. It wraps github.com/agilira/iris, the
// zero-allocation ring-buffered logger retrieved alongside this pack.
//
// Nothing in capture, ringbuf, or registry's write side imports this
// package: per spec §7, steady-state operation logs nothing, and a logger
// call on the hot path would itself be a source of allocation and latency
// the specification forbids.
package obslog

import (
	"io"
	"os"

	"github.com/agilira/iris"
)

// Logger is the subset of *iris.Logger this module calls. Declaring it as
// an interface keeps controller/agent testable without starting a
// real iris ring buffer in unit tests.
type Logger interface {
	Info(message string, fields ...iris.Field)
	Warn(message string, fields ...iris.Field)
	Error(message string, fields ...iris.Field)
	Close()
}

// New builds an iris.Logger writing to w at the given level. Callers that
// don't care about output (tests, or an agent embedded in a host process
// that hasn't wired a sink yet) should pass io.Discard.
func New(w io.Writer, level iris.Level) (Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	return iris.New(iris.Config{
		Level:  level,
		Output: iris.WrapWriter(w),
	})
}

// Noop is a Logger that discards everything, used as a safe zero value
// before a real sink is wired (mirrors the teacher's "never panic on an
// unconfigured dependency" posture).
type noop struct{}

func (noop) Info(string, ...iris.Field)  {}
func (noop) Warn(string, ...iris.Field)  {}
func (noop) Error(string, ...iris.Field) {}
func (noop) Close()                      {}

// Noop is the zero-configuration Logger.
var Noop Logger = noop{}
