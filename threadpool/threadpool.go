// Package threadpool implements the worker-thread pool BlockActors are
// assigned to (spec §4.J): a fixed set of OS-backed goroutine workers plus
// a policy (priority, yield mode, CPU affinity). Grounded on the affinity-
// pinning pattern in ehrlich-b-go-ublk's internal/queue.Runner (pin to an
// OS thread with runtime.LockOSThread, then unix.SchedSetaffinity onto one
// CPU per worker) and sized using klauspost/cpuid/v2's physical-core count
// instead of runtime.NumCPU() alone, since hyperthread siblings make poor
// default worker counts for a CPU-bound scheduler loop.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package threadpool

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"

	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/cmn/nlog"
)

// YieldMode controls how an idle worker waits for new work.
type YieldMode int

const (
	// Condition blocks on a condition variable; lowest CPU cost, highest
	// wake latency. Default.
	Condition YieldMode = iota
	// Hybrid busy-polls briefly, then falls back to Condition; trades a
	// little CPU for lower wake latency on bursty workloads.
	Hybrid
	// Spin never blocks - intended only for workers pinned to dedicated
	// cores via Affinity, where the core has nothing better to do anyway.
	Spin
)

const hybridSpinIters = 4000

// Args configures a Pool (spec §4.J / §6 ThreadPoolArgs JSON).
type Args struct {
	Name string
	// NumThreads <= 0 means "one per physical core" (cpuid.CPU.PhysicalCores).
	NumThreads int
	// Priority in [-1, +1]; mapped to the OS scheduling class in an
	// implementation-defined way. Unsupported platforms fall back to
	// nominal priority (see affinity_linux.go / affinity_other.go).
	Priority float64
	// AffinityMask, if non-empty, is the set of logical CPU indices workers
	// are pinned to round-robin (worker i -> AffinityMask[i%len]).
	AffinityMask []int
	YieldMode    YieldMode
}

func (a Args) numThreads() int {
	if a.NumThreads > 0 {
		return a.NumThreads
	}
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Runnable is anything a Pool can drive: one Step call does a bounded unit
// of work (for a BlockActor: drain its control mailbox, check readiness,
// call Block.Work at most once) and reports whether it has more to do right
// now (re-enqueue immediately) versus should wait for the next Signal.
type Runnable interface {
	Step() (more bool)
}

// Pool is a fixed set of worker goroutines repeatedly draining a queue of
// Runnables and invoking Step on each (spec §4.J, §5 "Scheduling model").
// There is no global dataflow lock: coordination is entirely through this
// queue plus whatever each Runnable's own Step does internally.
type Pool struct {
	args Args

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Runnable
	queued  map[Runnable]bool
	closed  bool
	wg      sync.WaitGroup
}

// New starts args.numThreads() workers and returns the running Pool.
func New(args Args) *Pool {
	p := &Pool{args: args, queued: map[Runnable]bool{}}
	p.cond = sync.NewCond(&p.mu)
	n := args.numThreads()
	cpus := args.AffinityMask
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		idx := i
		var cpu int
		hasAffinity := len(cpus) > 0
		if hasAffinity {
			cpu = cpus[idx%len(cpus)]
		}
		go p.workerLoop(idx, hasAffinity, cpu)
	}
	nlog.Infof("threadpool %q: started %d workers (yield=%v, priority=%.2f)", args.Name, n, args.YieldMode, args.Priority)
	return p
}

// Signal enqueues r for execution if it isn't already queued. Called both
// to assign a Runnable to the pool for the first time and to re-evaluate it
// after a port state change (new data, new reserve, a downstream release) -
// spec §4.H step 5.
func (p *Pool) Signal(r Runnable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.queued[r] {
		return
	}
	p.queued[r] = true
	p.queue = append(p.queue, r)
	p.cond.Signal()
}

// Close stops accepting new work and waits for the workers to exit. The
// workers first drain the queue: every Runnable already queued gets one
// more Step call, and a Signal after Close (including the re-signal of a
// Step that reports more work) is ignored.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) pop() (Runnable, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		switch p.args.YieldMode {
		case Spin:
			p.mu.Unlock()
			runtime.Gosched()
			p.mu.Lock()
			continue
		case Hybrid:
			p.mu.Unlock()
			for i := 0; i < hybridSpinIters; i++ {
				runtime.Gosched()
			}
			p.mu.Lock()
			if len(p.queue) == 0 && !p.closed {
				p.cond.Wait()
			}
		default: // Condition
			p.cond.Wait()
		}
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	r := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.queued, r)
	return r, true
}

func (p *Pool) workerLoop(idx int, pin bool, cpu int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if pin {
		if err := setAffinity(cpu); err != nil {
			nlog.Warningf("threadpool %q worker %d: affinity to CPU %d failed: %v", p.args.Name, idx, cpu, err)
		}
	}
	if err := setPriority(clampPriority(p.args.Priority)); err != nil {
		nlog.Warningf("threadpool %q worker %d: priority %.2f failed: %v", p.args.Name, idx, p.args.Priority, err)
	}
	for {
		r, ok := p.pop()
		if !ok {
			return
		}
		if r.Step() {
			p.Signal(r)
		}
	}
}

func clampPriority(pr float64) float64 {
	if pr < -1 {
		return -1
	}
	if pr > 1 {
		return 1
	}
	return pr
}

func init() {
	cos.Assert(hybridSpinIters > 0)
}
