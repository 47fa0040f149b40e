// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ada

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock is re-exported from iox for ecosystem consistency, the same
// way the teacher's lfq package aliases it. No operation in this module
// returns it: a full ring or an empty free-ring pool is reported as a false
// return, and a full registry as ErrRegistryFull.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }

// Setup errors (§7 "Setup errors"): fatal at segment-creation time for the
// controller, and a trigger for local-only degradation in the agent. These
// are plain sentinels rather than an iox classification because they are
// not control-flow signals — they are real, unrecoverable-at-this-layer
// failures that the caller must decide how to handle.
var (
	// ErrNameTooLong is returned by shmseg.Create/Open when the computed
	// segment name exceeds the platform's shared-memory name limit, even
	// after the hashed-role fallback.
	ErrNameTooLong = errors.New("ada: segment name too long")

	// ErrNoSpace is returned by shmseg.Create when the backing store cannot
	// allocate the requested size, and also when a segment with the same
	// name already exists.
	ErrNoSpace = errors.New("ada: insufficient space for segment")

	// ErrPermission is returned by shmseg.Create/Open on an access-control
	// failure from the backing store.
	ErrPermission = errors.New("ada: permission denied")

	// ErrNotFound is returned by shmseg.Open when no segment with the given
	// name exists.
	ErrNotFound = errors.New("ada: segment not found")

	// ErrSizeMismatch is returned by shmseg.Open (expected size doesn't
	// match the existing segment) and by ringbuf.Attach/registry.Attach
	// when the caller's total_bytes disagrees with the header.
	ErrSizeMismatch = errors.New("ada: size mismatch")

	// ErrInvalidLayout is returned by ringbuf.Create when total_bytes
	// cannot fit a header plus a power-of-two count of slots.
	ErrInvalidLayout = errors.New("ada: invalid ring layout")

	// ErrInvalidMagic is returned by an Attach-style call when the header's
	// magic number does not match the expected constant.
	ErrInvalidMagic = errors.New("ada: invalid magic")

	// ErrVersionMismatch is returned by an Attach-style call when the
	// header's version field does not match the version this build knows
	// how to interpret.
	ErrVersionMismatch = errors.New("ada: version mismatch")

	// ErrRegistryFull is returned by registry.Register when every thread
	// slot is already claimed.
	ErrRegistryFull = errors.New("ada: registry full")

	// ErrPoolExhausted is returned by registry.Register when the bump pool
	// backing per-thread lane metadata and ring bytes has no room left for
	// a new registrant.
	ErrPoolExhausted = errors.New("ada: ring memory pool exhausted")
)
