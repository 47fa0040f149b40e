// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package drain is the consumer-side scheduler of spec §4.7: it moves
// committed events out of the global rings and every registered thread's
// lanes into an external byte-oriented writer, replenishes free queues,
// and stamps the liveness heartbeat the producer-side mode machine in
// package control watches.
package drain

import "encoding/binary"

// Writer is the external byte-oriented sink the drain hands framed event
// bytes to (spec §6 "Writer sink"). Framing, buffering, and persistence
// are the writer's responsibility; the drain only ever calls Write.
type Writer interface {
	Write(p []byte) (int, error)
}

// LaneKind distinguishes an Index frame from a Detail frame in the
// length-prefixed wire format handed to Writer (spec §6: "lane kind +
// event size + event bytes").
type LaneKind uint8

const (
	LaneIndex LaneKind = iota
	LaneDetail
)

// frameHeaderSize is the fixed prefix: 1 byte lane kind, 4 bytes length.
const frameHeaderSize = 5

// writeFrame hands one length-prefixed event to w. Writer errors are
// never fatal to the drain (spec §7 "Writer errors"); callers record them
// in a counter and continue.
func writeFrame(w Writer, kind LaneKind, payload []byte) error {
	var hdr [frameHeaderSize]byte
	hdr[0] = byte(kind)
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
