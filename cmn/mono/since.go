// Package mono provides a monotonic clock source; nlog uses it to time its
// flushes.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package mono

import "time"

// Since returns the duration elapsed since a NanoTime() reading.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
