/*
 * Copyright (c) 2024, flowrt authors.
 */
package threadpool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmesh/flowrt/threadpool"
)

type countingRunnable struct {
	remaining int32
	ran       int32
	done      chan struct{}
}

func (r *countingRunnable) Step() bool {
	atomic.AddInt32(&r.ran, 1)
	if atomic.AddInt32(&r.remaining, -1) > 0 {
		return true
	}
	close(r.done)
	return false
}

func TestPoolDrivesRunnableToCompletion(t *testing.T) {
	p := threadpool.New(threadpool.Args{Name: "test", NumThreads: 2})
	defer p.Close()

	r := &countingRunnable{remaining: 5, done: make(chan struct{})}
	p.Signal(r)

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runnable never completed")
	}
	if atomic.LoadInt32(&r.ran) != 5 {
		t.Fatalf("ran = %d, want 5", r.ran)
	}
}

func TestPoolSignalDedupesWhileQueued(t *testing.T) {
	p := threadpool.New(threadpool.Args{Name: "test", NumThreads: 1})
	defer p.Close()

	r := &countingRunnable{remaining: 1, done: make(chan struct{})}
	p.Signal(r)
	p.Signal(r) // a no-op while r is still queued (a popped r is not deduped)

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runnable never completed")
	}
}

func TestYieldModes(t *testing.T) {
	for _, ym := range []threadpool.YieldMode{threadpool.Condition, threadpool.Hybrid, threadpool.Spin} {
		p := threadpool.New(threadpool.Args{Name: "test", NumThreads: 1, YieldMode: ym})
		r := &countingRunnable{remaining: 3, done: make(chan struct{})}
		p.Signal(r)
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("yield mode %v: runnable never completed", ym)
		}
		p.Close()
	}
}
