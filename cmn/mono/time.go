//go:build !mono

// Package mono provides a monotonic clock source; nlog uses it to time its
// flushes.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package mono

import "time"

var startTime = time.Now()

// NanoTime returns a monotonically increasing nanosecond counter. The
// default build adds the monotonic time elapsed since process start
// (time.Since reads time.Now's monotonic reading) to the wall-clock start
// time; build with `-tags mono` to link directly against runtime.nanotime
// (see fast_nanotime.go) and shave the time.Time allocation off hot loops.
func NanoTime() int64 { return startTime.UnixNano() + int64(time.Since(startTime)) }
