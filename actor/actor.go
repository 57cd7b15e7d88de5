// Package actor implements BlockActor, the concurrency unit of the runtime
// (spec §4.H): one per Block, owning port subscriber state, a totally
// ordered control mailbox, and the work loop a threadpool.Pool drives. At
// most one Work() call per actor is ever in flight (spec §5 "Scheduling
// model"); coordination across actors happens only through port state and
// the control mailbox, never a global lock.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package actor

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowmesh/flowrt/block"
	"github.com/flowmesh/flowrt/cmn/atomic"
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/cmn/nlog"
	"github.com/flowmesh/flowrt/memsys"
	"github.com/flowmesh/flowrt/threadpool"
)

// State is the actor lifecycle (spec §4.H "State machine").
type State int32

const (
	Constructed State = iota
	Inactive
	Active
	Faulted // sub-state of Active: Work() raised, actor stops calling it
	Destroyed
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Faulted:
		return "faulted"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// FlowEndpoint identifies one half of a subscription the actor is tracking,
// purely for introspection/invariant-checking (spec §8 invariant 5) - the
// actual byte/label/message delivery happens through port.OutputPort's own
// subscriber list, installed directly by Subscribe below.
type FlowEndpoint struct {
	PeerUID  string
	PeerPort string
	LocalIdx int
}

// edgeKey identifies a subscription the actor has already applied, so a
// repeated {subscribe} control message (idempotent commit, spec §8
// round-trip property) is a safe no-op rather than a double-subscribe.
type edgeKey struct {
	localIdx int
	peerUID  string
	peerPort string
	asSource bool
}

type ctrlKind int

const (
	ctrlSubscribeSrc ctrlKind = iota // this actor is the flow's source
	ctrlSubscribeDst                 // this actor is the flow's destination
	ctrlUnsubscribeSrc
	ctrlUnsubscribeDst
	ctrlSetBufferManager
	ctrlActivate
	ctrlDeactivate
	ctrlSetPool
)

type ctrlMsg struct {
	kind ctrlKind

	localIdx int

	peer    *BlockActor
	peerIdx int

	mgr  memsys.BufferManager
	pool *threadpool.Pool

	done chan error
}

// FaultEvent is surfaced on Topology's status channel when a Work() call
// panics (spec §7 "Fatal (work())"): the actor quarantines itself (Faulted)
// without poisoning any peer.
type FaultEvent struct {
	BlockUID string
	Err      error
}

// BlockActor drives exactly one Block.
type BlockActor struct {
	blk  block.Block
	pool *threadpool.Pool

	mu      sync.Mutex
	mailbox []ctrlMsg
	state   State
	applied map[edgeKey]bool

	faults chan<- FaultEvent

	workCalls atomic.Uint64

	// counters points at the process-wide metrics, which the first New call
	// creates and registers (lazy init, spec §9 "global state" discipline:
	// confined, explicit init-on-first-use).
	counters *metrics
}

type metrics struct {
	workCalls     *prometheus.CounterVec
	elemsProduced *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	globalMetrics *metrics
)

func initMetrics() *metrics {
	metricsOnce.Do(func() {
		globalMetrics = &metrics{
			workCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flowrt",
				Subsystem: "actor",
				Name:      "work_calls_total",
				Help:      "Number of Block.Work invocations per actor.",
			}, []string{"block_uid"}),
			elemsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flowrt",
				Subsystem: "actor",
				Name:      "elements_produced_total",
				Help:      "Number of elements produced per actor output port.",
			}, []string{"block_uid", "port"}),
		}
		_ = prometheus.Register(globalMetrics.workCalls)
		_ = prometheus.Register(globalMetrics.elemsProduced)
	})
	return globalMetrics
}

// New constructs a BlockActor in the Constructed state, not yet assigned to
// any pool. faults, if non-nil, receives a FaultEvent whenever Work panics.
func New(blk block.Block, faults chan<- FaultEvent) *BlockActor {
	return &BlockActor{
		blk:     blk,
		state:   Constructed,
		applied: map[edgeKey]bool{},
		faults:  faults,
		counters: initMetrics(),
	}
}

func (a *BlockActor) UID() string   { return a.blk.UID() }
func (a *BlockActor) Block() block.Block { return a.blk }

func (a *BlockActor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// send enqueues a control message and wakes the pool so it gets drained
// promptly; all control messages are processed in the order they were sent
// (spec §4.H step 1 "totally ordered per actor").
func (a *BlockActor) send(m ctrlMsg) error {
	a.mu.Lock()
	a.mailbox = append(a.mailbox, m)
	pool := a.pool
	a.mu.Unlock()
	if pool != nil {
		pool.Signal(a)
	} else {
		// Not yet assigned to a pool: drain synchronously so callers (tests,
		// or a topology commit before SetPool) still observe the effect.
		a.drainMailbox()
	}
	if m.done != nil {
		return <-m.done
	}
	return nil
}

func reply(m *ctrlMsg, err error) {
	if m.done != nil {
		m.done <- err
	}
}

// wake re-signals this actor's pool, if it has one - installed as the
// notify callback on every input this actor subscribes downstream of it
// (spec §4.H step 5), so production on one actor promptly wakes the
// actor(s) waiting on it instead of relying on hasMoreWork's self-requeue,
// which only re-steps the producer, never a drained consumer.
func (a *BlockActor) wake() {
	a.mu.Lock()
	pool := a.pool
	a.mu.Unlock()
	if pool != nil {
		pool.Signal(a)
	}
}

// SetPool assigns the actor to pool (spec §4.J "Actors are assigned to
// exactly one pool at a time; reassignment is a control message").
func (a *BlockActor) SetPool(p *threadpool.Pool) {
	_ = a.send(ctrlMsg{kind: ctrlSetPool, pool: p, done: make(chan error, 1)})
	// The message may have been drained synchronously (actor had no pool
	// yet) or by the old pool's worker; either way a.pool is now p, so wake
	// the new pool in case there's already work queued.
	p.Signal(a)
}

// SubscribeAsSource installs a flow where this actor is the source: peer's
// input port peerInput becomes a subscriber of this actor's output
// localOutput.
func (a *BlockActor) SubscribeAsSource(localOutput int, peer *BlockActor, peerInput int) error {
	return a.send(ctrlMsg{kind: ctrlSubscribeSrc, localIdx: localOutput, peer: peer, peerIdx: peerInput, done: make(chan error, 1)})
}

func (a *BlockActor) SubscribeAsDest(localInput int, peer *BlockActor, peerOutput int) error {
	return a.send(ctrlMsg{kind: ctrlSubscribeDst, localIdx: localInput, peer: peer, peerIdx: peerOutput, done: make(chan error, 1)})
}

func (a *BlockActor) UnsubscribeAsSource(localOutput int, peer *BlockActor, peerInput int) error {
	return a.send(ctrlMsg{kind: ctrlUnsubscribeSrc, localIdx: localOutput, peer: peer, peerIdx: peerInput, done: make(chan error, 1)})
}

func (a *BlockActor) UnsubscribeAsDest(localInput int, peer *BlockActor, peerOutput int) error {
	return a.send(ctrlMsg{kind: ctrlUnsubscribeDst, localIdx: localInput, peer: peer, peerIdx: peerOutput, done: make(chan error, 1)})
}

// SetOutputBufferManager installs mgr on output localOutput (spec §4.D
// "switching managers happens only at a commit boundary with the actor
// quiesced" - enforced by routing this through the same serialized mailbox
// as Work()).
func (a *BlockActor) SetOutputBufferManager(localOutput int, mgr memsys.BufferManager) error {
	return a.send(ctrlMsg{kind: ctrlSetBufferManager, localIdx: localOutput, mgr: mgr, done: make(chan error, 1)})
}

func (a *BlockActor) Activate() error {
	return a.send(ctrlMsg{kind: ctrlActivate, done: make(chan error, 1)})
}

func (a *BlockActor) Deactivate() error {
	return a.send(ctrlMsg{kind: ctrlDeactivate, done: make(chan error, 1)})
}

// drainMailbox applies every pending control message, in order. Must be
// called with no lock held; it takes/releases a.mu internally per message.
func (a *BlockActor) drainMailbox() {
	for {
		a.mu.Lock()
		if len(a.mailbox) == 0 {
			a.mu.Unlock()
			return
		}
		m := a.mailbox[0]
		a.mailbox = a.mailbox[1:]
		a.mu.Unlock()
		a.apply(m)
	}
}

func (a *BlockActor) apply(m ctrlMsg) {
	switch m.kind {
	case ctrlSubscribeSrc:
		key := edgeKey{localIdx: m.localIdx, peerUID: m.peer.UID(), peerPort: m.peer.blk.Input(m.peerIdx).Name(), asSource: true}
		a.mu.Lock()
		already := a.applied[key]
		if !already {
			a.applied[key] = true
		}
		a.mu.Unlock()
		if !already {
			peer := m.peer
			peerIn := peer.blk.Input(m.peerIdx)
			a.blk.Output(m.localIdx).Subscribe(peerIn)
			// Re-signal the peer's pool whenever new data lands on its
			// input, rather than waiting for its next unrelated Signal
			// (spec §4.H step 5).
			peerIn.SetNotify(peer.wake)
		}
		reply(&m, nil)
	case ctrlSubscribeDst:
		key := edgeKey{localIdx: m.localIdx, peerUID: m.peer.UID(), peerPort: m.peer.blk.Output(m.peerIdx).Name(), asSource: false}
		a.mu.Lock()
		a.applied[key] = true
		a.mu.Unlock()
		reply(&m, nil)
	case ctrlUnsubscribeSrc:
		key := edgeKey{localIdx: m.localIdx, peerUID: m.peer.UID(), peerPort: m.peer.blk.Input(m.peerIdx).Name(), asSource: true}
		a.mu.Lock()
		delete(a.applied, key)
		a.mu.Unlock()
		peerIn := m.peer.blk.Input(m.peerIdx)
		a.blk.Output(m.localIdx).Unsubscribe(peerIn)
		peerIn.SetNotify(nil)
		reply(&m, nil)
	case ctrlUnsubscribeDst:
		key := edgeKey{localIdx: m.localIdx, peerUID: m.peer.UID(), peerPort: m.peer.blk.Output(m.peerIdx).Name(), asSource: false}
		a.mu.Lock()
		delete(a.applied, key)
		a.mu.Unlock()
		reply(&m, nil)
	case ctrlSetBufferManager:
		a.blk.Output(m.localIdx).SetBufferManager(m.mgr)
		reply(&m, nil)
	case ctrlActivate:
		a.mu.Lock()
		if a.state == Active {
			a.mu.Unlock()
			reply(&m, nil)
			return
		}
		a.mu.Unlock()
		err := a.safeCall(a.blk.Activate)
		a.mu.Lock()
		if err == nil {
			a.state = Active
		}
		a.mu.Unlock()
		reply(&m, err)
	case ctrlDeactivate:
		a.mu.Lock()
		if a.state != Active && a.state != Faulted {
			a.mu.Unlock()
			reply(&m, nil)
			return
		}
		a.mu.Unlock()
		err := a.safeCall(a.blk.Deactivate)
		a.mu.Lock()
		a.state = Inactive
		a.mu.Unlock()
		reply(&m, err)
	case ctrlSetPool:
		a.mu.Lock()
		a.pool = m.pool
		a.mu.Unlock()
		reply(&m, nil)
	}
}

func (a *BlockActor) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cos.NewErrInvalidArgument("BlockActor", fmt.Sprintf("panic: %v", r))
		}
	}()
	return fn()
}

// Step implements threadpool.Runnable: drain the mailbox, check readiness,
// call Work() at most once, and propagate its effects (spec §4.H).
func (a *BlockActor) Step() (more bool) {
	a.drainMailbox()

	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	if state != Active {
		return false
	}

	if !a.ready() {
		return false
	}

	if err := a.runWork(); err != nil {
		a.mu.Lock()
		a.state = Faulted
		a.mu.Unlock()
		if a.faults != nil {
			a.faults <- FaultEvent{BlockUID: a.UID(), Err: err}
		}
		nlog.Errorf("actor %s: work() faulted: %v", a.UID(), err)
		return false
	}

	for i := 0; i < a.blk.NumInputs(); i++ {
		a.blk.PropagateLabels(a.blk.Input(i))
	}

	return a.hasMoreWork()
}

// ready computes work-readiness per spec §4.H step 2: every input with data
// below its reserve blocks Work(); every output whose installed manager
// reports no front capacity blocks Work() (back-pressure, spec §5).
func (a *BlockActor) ready() bool {
	for i := 0; i < a.blk.NumInputs(); i++ {
		in := a.blk.Input(i)
		if in.Elements() < in.Reserve() {
			return false
		}
	}
	for i := 0; i < a.blk.NumOutputs(); i++ {
		out := a.blk.Output(i)
		chunk, err := out.Buffer()
		if err != nil {
			// No manager installed yet (unconnected output): don't gate.
			continue
		}
		if !chunk.IsValid() || chunk.Length() == 0 {
			return false
		}
	}
	return true
}

// hasMoreWork reports whether the actor should be immediately re-stepped
// rather than waiting for the next external Signal - true when an input
// already has enough buffered data for another Work() call.
func (a *BlockActor) hasMoreWork() bool {
	for i := 0; i < a.blk.NumInputs(); i++ {
		in := a.blk.Input(i)
		if in.Elements() >= in.Reserve() && in.Elements() > 0 {
			return true
		}
	}
	return false
}

func (a *BlockActor) runWork() error {
	a.workCalls.Inc()
	a.counters.workCalls.WithLabelValues(a.UID()).Inc()
	before := make([]uint64, a.blk.NumOutputs())
	for i := range before {
		before[i] = a.blk.Output(i).TotalElements()
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = cos.NewErrInvalidArgument("Block.Work", fmt.Sprintf("panic: %v", r))
			}
		}()
		err = a.blk.Work()
	}()
	if err == nil {
		for i := range before {
			delta := a.blk.Output(i).TotalElements() - before[i]
			if delta > 0 {
				a.counters.elemsProduced.WithLabelValues(a.UID(), a.blk.Output(i).Name()).Add(float64(delta))
			}
		}
	}
	return err
}

// SourceEdges/DestEdges return a snapshot of every applied edge where this
// actor is, respectively, the flow's source or destination - used by
// topology.commit() to verify invariant §8.5 (post-commit subscription
// symmetry) and by dumpJSON to render connections.
func (a *BlockActor) SourceEdges() []FlowEndpoint { return a.edgesWhere(true) }
func (a *BlockActor) DestEdges() []FlowEndpoint   { return a.edgesWhere(false) }

func (a *BlockActor) edgesWhere(wantSource bool) []FlowEndpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]FlowEndpoint, 0, len(a.applied))
	for k := range a.applied {
		if k.asSource == wantSource {
			out = append(out, FlowEndpoint{PeerUID: k.peerUID, PeerPort: k.peerPort, LocalIdx: k.localIdx})
		}
	}
	return out
}

// HasSourceEdge/HasDestEdge report whether this actor currently has an
// applied subscription on the given local port index to the named peer
// port - the primitive invariant §8.5 checks build on.
func (a *BlockActor) HasSourceEdge(localOutput int, peerUID, peerInputName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied[edgeKey{localIdx: localOutput, peerUID: peerUID, peerPort: peerInputName, asSource: true}]
}

func (a *BlockActor) HasDestEdge(localInput int, peerUID, peerOutputName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied[edgeKey{localIdx: localInput, peerUID: peerUID, peerPort: peerOutputName, asSource: false}]
}

// WorkCalls returns the cumulative number of Work() invocations, for stats
// JSON (spec §6 "numWorkCalls").
func (a *BlockActor) WorkCalls() uint64 { return a.workCalls.Load() }

// InputStats / OutputStats back stats.JSON's inputStats[]/outputStats[].
type PortStat struct {
	Name          string
	TotalElements uint64
}

func (a *BlockActor) InputStats() []PortStat {
	out := make([]PortStat, a.blk.NumInputs())
	for i := range out {
		out[i] = PortStat{Name: a.blk.Input(i).Name(), TotalElements: a.blk.Input(i).TotalElements()}
	}
	return out
}

func (a *BlockActor) OutputStats() []PortStat {
	out := make([]PortStat, a.blk.NumOutputs())
	for i := range out {
		out[i] = PortStat{Name: a.blk.Output(i).Name(), TotalElements: a.blk.Output(i).TotalElements()}
	}
	return out
}
