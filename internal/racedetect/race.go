// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package racedetect

// Enabled is true when the race detector is active.
//
// The data plane synchronizes non-atomic fields (slot contents) purely
// through acquire/release ordering on separate atomic positions; the race
// detector cannot observe that ordering and can report false positives on
// the concurrent producer/consumer tests. No test in this module reads
// this flag.
const Enabled = true
