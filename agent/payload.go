// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agent is the producer-process wiring layer: it resolves the
// injection-time initialization payload and environment toggles into a
// concrete set of segment identifiers, attaches the shared control block,
// registry, and global rings the controller already created, and hands out
// a capture.Handle per OS thread on request.
package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Params is the resolved result of parsing the producer initialization
// payload together with the recognized environment toggles (spec §6
// "Producer initialization payload" / "Recognized environment toggles").
type Params struct {
	HostPID         int
	SessionID       uint32
	Exclude         []string
	DisableRegistry bool
}

// payloadSeparators is the set of bytes the payload parser accepts between
// key=value pairs.
const payloadSeparators = ";,\n\r\t"

// ParsePayload resolves host_pid and session_id from payload, falling back
// to ADA_SHM_HOST_PID / ADA_SHM_SESSION_ID when the payload omits either
// field, and folds in exclude entries from both payload and ADA_EXCLUDE.
// ADA_DISABLE_REGISTRY is read purely from the environment; there is no
// payload equivalent.
func ParsePayload(payload string) (Params, error) {
	fields := splitPayload(payload)

	var p Params
	var hostPIDSet, sessionIDSet bool
	var exclude []string
	var lastKey string

	for _, kv := range fields {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			// A bare token with no "=" is a continuation of the previous
			// key's comma-separated value, split apart from it because
			// "," doubles as both a pair separator and the exclude list's
			// own CSV delimiter (spec §6 "exclude=<csv>"). Only "exclude"
			// has a value shaped like a list, so it's the only key this
			// applies to.
			if lastKey == "exclude" {
				exclude = append(exclude, splitCSV(strings.TrimSpace(kv))...)
			}
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		lastKey = key
		switch key {
		case "host_pid":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Params{}, fmt.Errorf("agent: invalid host_pid %q: %w", value, err)
			}
			p.HostPID = n
			hostPIDSet = true
		case "session_id":
			n, err := strconv.ParseUint(value, 16, 32)
			if err != nil {
				return Params{}, fmt.Errorf("agent: invalid session_id %q: %w", value, err)
			}
			p.SessionID = uint32(n)
			sessionIDSet = true
		case "exclude":
			exclude = append(exclude, splitCSV(value)...)
		}
	}

	if !hostPIDSet {
		if v := os.Getenv("ADA_SHM_HOST_PID"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("agent: invalid ADA_SHM_HOST_PID %q: %w", v, err)
			}
			p.HostPID = n
			hostPIDSet = true
		}
	}
	if !sessionIDSet {
		if v := os.Getenv("ADA_SHM_SESSION_ID"); v != "" {
			n, err := strconv.ParseUint(v, 16, 32)
			if err != nil {
				return Params{}, fmt.Errorf("agent: invalid ADA_SHM_SESSION_ID %q: %w", v, err)
			}
			p.SessionID = uint32(n)
			sessionIDSet = true
		}
	}
	if !hostPIDSet {
		return Params{}, fmt.Errorf("agent: host_pid not provided in payload or ADA_SHM_HOST_PID")
	}
	if !sessionIDSet {
		return Params{}, fmt.Errorf("agent: session_id not provided in payload or ADA_SHM_SESSION_ID")
	}

	if v := os.Getenv("ADA_EXCLUDE"); v != "" {
		exclude = append(exclude, splitCSV(v)...)
	}
	p.Exclude = exclude

	p.DisableRegistry = os.Getenv("ADA_DISABLE_REGISTRY") != ""

	return p, nil
}

func splitPayload(payload string) []string {
	return strings.FieldsFunc(payload, func(r rune) bool {
		return strings.ContainsRune(payloadSeparators, r)
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Excluded reports whether name appears in p.Exclude, verbatim (the
// exclude list is opaque module/symbol names the hook installer consults
// before ever handing the core a function_id — the core itself never
// inspects the string form).
func (p Params) Excluded(name string) bool {
	for _, e := range p.Exclude {
		if e == name {
			return true
		}
	}
	return false
}
