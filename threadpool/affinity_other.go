//go:build !linux

/*
 * Copyright (c) 2024, flowrt authors.
 */
package threadpool

// setAffinity/setPriority are no-ops on platforms without a Linux-style
// sched_setaffinity/setpriority surface (spec §4.J: "unsupported platforms
// fall back to nominal priority").
func setAffinity(int) error         { return nil }
func setPriority(float64) error { return nil }
