// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmseg

import (
	"errors"
	"os"
	"syscall"

	"code.hybscloud.com/ada"
)

// Segment is a named, sized byte region shared across processes (spec
// §4.1). Create's caller owns it and unlinks it on Destroy; Open's caller
// does not.
type Segment struct {
	name  string
	path  string
	fd    int
	data  []byte
	size  int
	owner bool
}

// Create makes a new segment of size bytes for (role, hostPID, sessionID)
// and maps it. Fails with ada.ErrNameTooLong, ada.ErrNoSpace, or
// ada.ErrPermission.
func Create(role string, hostPID int, sessionID uint32, size int) (*Segment, error) {
	name := Name(role, hostPID, sessionID)
	if err := nameTooLong(name); err != nil {
		return nil, err
	}
	path := pathFor(name)

	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_CREAT|syscall.O_EXCL, 0o600)
	if err != nil {
		return nil, classifyOpenErr(err)
	}

	if err := syscall.Ftruncate(fd, int64(size)); err != nil {
		_ = syscall.Close(fd)
		_ = syscall.Unlink(path)
		return nil, classifyOpenErr(err)
	}

	data, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = syscall.Close(fd)
		_ = syscall.Unlink(path)
		return nil, classifyOpenErr(err)
	}

	return &Segment{name: name, path: path, fd: fd, data: data, size: size, owner: true}, nil
}

// Open attaches to an existing segment created for (role, hostPID,
// sessionID), validating it is exactly expectedSize bytes. Fails with
// ada.ErrNotFound, ada.ErrSizeMismatch, or ada.ErrPermission.
func Open(role string, hostPID int, sessionID uint32, expectedSize int) (*Segment, error) {
	name := Name(role, hostPID, sessionID)
	path := pathFor(name)

	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil, ada.ErrNotFound
		}
		return nil, classifyOpenErr(err)
	}

	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err != nil {
		_ = syscall.Close(fd)
		return nil, classifyOpenErr(err)
	}
	if int(stat.Size) != expectedSize {
		_ = syscall.Close(fd)
		return nil, ada.ErrSizeMismatch
	}

	data, err := syscall.Mmap(fd, 0, expectedSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = syscall.Close(fd)
		return nil, classifyOpenErr(err)
	}

	return &Segment{name: name, path: path, fd: fd, data: data, size: expectedSize, owner: false}, nil
}

func classifyOpenErr(err error) error {
	switch {
	case errors.Is(err, syscall.EEXIST):
		return ada.ErrNoSpace
	case errors.Is(err, syscall.ENOSPC):
		return ada.ErrNoSpace
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return ada.ErrPermission
	default:
		return err
	}
}

// Address returns the mapped bytes. Valid until Close.
func (s *Segment) Address() []byte { return s.data }

// Size returns the segment's byte size.
func (s *Segment) Size() int { return s.size }

// Name returns the segment's platform name (post any hashed-role
// fallback).
func (s *Segment) Name() string { return s.name }

// Close unmaps and closes the segment's file descriptor without removing
// the backing file.
func (s *Segment) Close() error {
	if s.data != nil {
		if err := syscall.Munmap(s.data); err != nil {
			return err
		}
		s.data = nil
	}
	if s.fd >= 0 {
		err := syscall.Close(s.fd)
		s.fd = -1
		return err
	}
	return nil
}

// Destroy closes the segment and, if this process created it, unlinks the
// backing file (spec §4.1: "owned by the creator and is unlinked when the
// creator destroys it").
func (s *Segment) Destroy() error {
	closeErr := s.Close()
	if s.owner {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if closeErr == nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
