//go:build debug

// Package debug provides assertions that compile out entirely unless the
// binary is built with `-tags debug`. Release builds pay nothing for them;
// debug builds turn every failed assertion into a hard panic.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package debug

import (
	"fmt"
	"sync"
	"unsafe"
)

func ON() bool { return true }

func Assert(cond bool, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprint(args...))
	}
}

func AssertFunc(f func() bool, args ...any) {
	if !f() {
		panic("assertion failed: " + fmt.Sprint(args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// mutexLocked reports whether m's internal state word has the locked bit
// set. sync.Mutex's first field is the state int32 on every supported Go
// release; this is the same trick used by x/sync/semaphore's tests and by
// the teacher's own internal debug builds.
func mutexLocked(state int32) bool { return state&1 == 1 }

func AssertMutexLocked(m *sync.Mutex) {
	state := (*int32)(unsafe.Pointer(m))
	Assert(mutexLocked(*state), "mutex not locked")
}

func AssertRWMutexLocked(rw *sync.RWMutex) {
	// sync.RWMutex embeds a sync.Mutex (w) as its second field on all
	// supported layouts; reach into it the same way AssertMutexLocked does.
	w := (*sync.Mutex)(unsafe.Add(unsafe.Pointer(rw), unsafe.Sizeof(int32(0))))
	AssertMutexLocked(w)
}

func AssertRWMutexRLocked(rw *sync.RWMutex) {
	readerCount := (*int32)(unsafe.Add(unsafe.Pointer(rw), unsafe.Sizeof(int32(0))+unsafe.Sizeof(sync.Mutex{})))
	Assert(*readerCount > 0 || *readerCount < 0, "rwmutex not rlocked")
}
