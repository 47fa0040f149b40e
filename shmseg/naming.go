// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmseg creates and opens the named, sized byte regions shared
// across the producer and controller processes (spec §4.1). Segments are
// backed by a real file under a shared-memory-backed directory and mapped
// with syscall.Mmap, following the same open/fstat/mmap sequence the
// slotcache package uses for its memory-mapped cache file —
// generalized here from one fixed cache file to the four named roles
// (control, index, detail, registry) the data plane needs.
package shmseg

import (
	"fmt"
	"hash/fnv"
	"os"

	"code.hybscloud.com/ada"
)

const maxNameLen = 255 // typical tmpfs filename limit

// Name computes the segment name for (role, hostPID, sessionID), following
// spec §4.1's "ada_{role}_{host_pid:dec}_{session_id:08x}" rule. If the
// platform's name-length limit would be exceeded, or ADA_SHM_DISABLE_UNIQUE
// is set (test environments only, per spec §6), Name falls back to a
// disable-unique or hashed-role form.
func Name(role string, hostPID int, sessionID uint32) string {
	if os.Getenv("ADA_SHM_DISABLE_UNIQUE") != "" {
		return "ada_" + role
	}
	name := fmt.Sprintf("ada_%s_%d_%08x", role, hostPID, sessionID)
	if len(name) <= maxNameLen {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(role))
	return fmt.Sprintf("ada_h%08x_%d_%08x", h.Sum32(), hostPID, sessionID)
}

// BaseDir returns the directory segments are created in. Linux's tmpfs
// mount at /dev/shm gives true shared memory semantics; other platforms
// fall back to the OS temp directory, which is still adequate for the
// single-host producer/controller pairing this module targets.
func BaseDir() string {
	if _, err := os.Stat("/dev/shm"); err == nil {
		return "/dev/shm"
	}
	return os.TempDir()
}

func pathFor(name string) string {
	return BaseDir() + "/" + name
}

func nameTooLong(name string) error {
	if len(name) > maxNameLen {
		return ada.ErrNameTooLong
	}
	return nil
}
