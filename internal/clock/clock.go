// Copyright (c) 2026 The Ada Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clock is the monotonic nanosecond clock the external interfaces
// section (spec §6) requires the core to consume. It wraps
// github.com/agilira/go-timecache, the same cached-clock dependency
// github.com/agilira/iris uses to avoid a syscall per log line — here it
// avoids one per captured event, which is the actual per-call hot path.
package clock

import "github.com/agilira/go-timecache"

// NowNanos returns the current time as nanoseconds, read from a
// periodically-refreshed cache rather than a fresh time.Now() call on every
// invocation. Precision is bounded by the cache's refresh interval, which
// is acceptable here: the specification only requires timestamps to be
// monotonic within a thread and approximately synchronized across threads
// (§5), not wall-clock-accurate to the nanosecond.
func NowNanos() int64 {
	return timecache.CachedTime().UnixNano()
}
