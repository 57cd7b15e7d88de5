//go:build linux

/*
 * Copyright (c) 2024, flowrt authors.
 */
package threadpool

import "golang.org/x/sys/unix"

// setAffinity pins the calling OS thread to cpu (spec §4.J affinityMask);
// the caller must have already called runtime.LockOSThread.
func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// setPriority maps priority in [-1,+1] onto the nice value -priority*20:
// +1 gives -20 (most favored), -1 gives 20, which the kernel clamps to the
// top of its [-20,19] range.
func setPriority(priority float64) error {
	nice := int(-priority * 20)
	return unix.Setpriority(unix.PRIO_PROCESS, 0, nice)
}
