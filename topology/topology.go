// Package topology implements Topology, the user-facing declaration of
// Flows between Blocks and the commit() algorithm that flattens, bridges,
// and materializes them as actor subscriptions (spec §4.I).
/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology

import (
	"fmt"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/flowrt/actor"
	"github.com/flowmesh/flowrt/block"
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/memsys"
	"github.com/flowmesh/flowrt/threadpool"
)

// HasEnvironment is implemented by a block that lives in a non-default
// buffer/process domain (spec §4.I step 3 "different environments"); a
// block that doesn't implement it is assumed "local", the default domain
// every in-process block shares.
type HasEnvironment interface {
	Environment() string
}

func envOf(blk block.Block) string {
	if e, ok := blk.(HasEnvironment); ok {
		return e.Environment()
	}
	return "local"
}

const (
	defaultSlabSize = 64 << 10
	defaultNumSlabs = 4
)

// Topology holds the user-declared Flows, the currently materialized
// ("rendered") flattened set, a cache of bridge blocks keyed by
// (src_env, dst_env, src_port), and the ThreadPool actors run on.
type Topology struct {
	mu sync.Mutex

	blocks   map[string]*actor.BlockActor // uid -> actor
	children map[string]*Topology         // child "block uid" -> sub-topology
	flows    map[Flow]bool                // user-declared (top view)

	flatPrev map[Flow]bool // materialized (rendered) set after the last commit
	bridges  map[uint64]*bridgePair

	pool   *threadpool.Pool
	faults chan actor.FaultEvent
}

func New(pool *threadpool.Pool) *Topology {
	return &Topology{
		blocks:   map[string]*actor.BlockActor{},
		children: map[string]*Topology{},
		flows:    map[Flow]bool{},
		flatPrev: map[Flow]bool{},
		bridges:  map[uint64]*bridgePair{},
		pool:     pool,
		faults:   make(chan actor.FaultEvent, 64),
	}
}

// Faults is the topology's status channel (spec §4.H "surfaces the
// exception on the topology's status channel").
func (t *Topology) Faults() <-chan actor.FaultEvent { return t.faults }

// Add registers blk, lazily creating its BlockActor (spec §3 "BlockActor:
// created lazily on first commit that references the block" - relaxed here
// to registration time, which is simpler and equally safe since an
// unreferenced actor never leaves Constructed/Inactive).
func (t *Topology) Add(blk block.Block) *actor.BlockActor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.blocks[blk.UID()]; ok {
		return a
	}
	a := actor.New(blk, t.faults)
	a.SetPool(t.pool)
	t.blocks[blk.UID()] = a
	return a
}

// AddChild registers a sub-topology as a "block" named uid in this
// topology's flow graph; flows referencing Endpoint{BlockUID: uid} that
// target the child's own boundary ("self") endpoints are completed by
// commit()'s pass-through step (spec §4.I step 2).
func (t *Topology) AddChild(uid string, child *Topology) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[uid] = child
}

func (t *Topology) actorFor(uid string) *actor.BlockActor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocks[uid]
}

// Connect declares a Flow; it is materialized only on the next commit().
func (t *Topology) Connect(src, dst Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows[Flow{Src: src, Dst: dst}] = true
}

func (t *Topology) Disconnect(src, dst Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flows, Flow{Src: src, Dst: dst})
}

func (t *Topology) DisconnectAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = map[Flow]bool{}
}

// flatten implements commit() steps 1-2: recursively inline every child
// topology's internal flows, completing outer_src -> boundary -> outer_dst
// pass-throughs and dropping the boundary halves.
func (t *Topology) flatten() map[Flow]bool {
	t.mu.Lock()
	own := make(map[Flow]bool, len(t.flows))
	for f := range t.flows {
		own[f] = true
	}
	children := make(map[string]*Topology, len(t.children))
	for uid, c := range t.children {
		children[uid] = c
	}
	t.mu.Unlock()

	out := map[Flow]bool{}
	// A flow touching a child uid on either end is purely a routing
	// instruction for the pass-through pairing below; only flows between
	// two real (non-child) blocks pass straight through to out.
	for f := range own {
		if _, ok := children[f.Src.BlockUID]; ok {
			continue
		}
		if _, ok := children[f.Dst.BlockUID]; ok {
			continue
		}
		out[f] = true
	}

	for uid, child := range children {
		inner := child.flatten()
		for f := range inner {
			if f.Src.isBoundary() {
				// inner boundary input: find the parent flow feeding this
				// child's input port uid/f.Src.Port.
				for pf := range own {
					if pf.Dst.BlockUID == uid && pf.Dst.Port == f.Src.Port {
						out[Flow{Src: pf.Src, Dst: f.Dst}] = true
					}
				}
				continue
			}
			if f.Dst.isBoundary() {
				for pf := range own {
					if pf.Src.BlockUID == uid && pf.Src.Port == f.Dst.Port {
						out[Flow{Src: f.Src, Dst: pf.Dst}] = true
					}
				}
				continue
			}
			out[f] = true
		}
	}
	return out
}

func portIndex(blk block.Block, name string, input bool) int {
	if input {
		for i := 0; i < blk.NumInputs(); i++ {
			if blk.Input(i).Name() == name {
				return i
			}
		}
		return -1
	}
	for i := 0; i < blk.NumOutputs(); i++ {
		if blk.Output(i).Name() == name {
			return i
		}
	}
	return -1
}

// Commit runs the full commit() algorithm (spec §4.I): squash, pass-through,
// bridge-insert, diff, (un)subscribe, install buffer managers, activate /
// deactivate. It is idempotent when flows haven't changed since the last
// commit (spec §8 "round-trip" property).
func (t *Topology) Commit() error {
	flat := t.flatten()
	rendered := t.renderBridges(flat)

	t.mu.Lock()
	prev := t.flatPrev
	t.mu.Unlock()

	removed := diff(prev, rendered)
	added := diff(rendered, prev)

	errs := &cos.Errs{}
	var wg errgroup.Group
	for f := range removed {
		f := f
		wg.Go(func() error { return t.applyEdge(f, false) })
	}
	if err := wg.Wait(); err != nil {
		errs.Add(err)
	}

	var wg2 errgroup.Group
	for f := range added {
		f := f
		wg2.Go(func() error { return t.applyEdge(f, true) })
	}
	if err := wg2.Wait(); err != nil {
		errs.Add(err)
	}

	if errs.Cnt() > 0 {
		return cos.NewErrTopologyConnect(errs)
	}

	if err := t.installBufferManagers(rendered, added); err != nil {
		return err
	}

	referencedBy := func(flows map[Flow]bool) map[string]bool {
		refs := map[string]bool{}
		for f := range flows {
			if !f.Src.isBoundary() {
				refs[f.Src.BlockUID] = true
			}
			if !f.Dst.isBoundary() {
				refs[f.Dst.BlockUID] = true
			}
		}
		return refs
	}
	newRefs, oldRefs := referencedBy(rendered), referencedBy(prev)

	var actErrs cos.Errs
	for uid := range newRefs {
		if oldRefs[uid] {
			continue
		}
		if a := t.actorFor(uid); a != nil {
			if err := a.Activate(); err != nil {
				actErrs.Add(err)
			}
		}
	}
	for uid := range oldRefs {
		if newRefs[uid] {
			continue
		}
		if a := t.actorFor(uid); a != nil {
			if err := a.Deactivate(); err != nil {
				actErrs.Add(err)
			}
		}
	}
	if actErrs.Cnt() > 0 {
		return cos.NewErrTopologyConnect(&actErrs)
	}

	t.mu.Lock()
	t.flatPrev = rendered
	t.mu.Unlock()
	return nil
}

func diff(a, b map[Flow]bool) map[Flow]bool {
	out := map[Flow]bool{}
	for f := range a {
		if !b[f] {
			out[f] = true
		}
	}
	return out
}

// applyEdge sends the (un)subscribe control messages to both endpoints of
// f (spec §4.I steps 5-6); boundary endpoints never reach here since
// flatten/renderBridges only emit flows between real blocks.
func (t *Topology) applyEdge(f Flow, subscribe bool) error {
	srcActor := t.actorFor(f.Src.BlockUID)
	dstActor := t.actorFor(f.Dst.BlockUID)
	if srcActor == nil || dstActor == nil {
		return cos.NewErrInvalidArgument("topology.Commit", fmt.Sprintf("flow %+v references an unregistered block", f))
	}
	srcIdx := portIndex(srcActor.Block(), f.Src.Port, false)
	dstIdx := portIndex(dstActor.Block(), f.Dst.Port, true)
	if srcIdx < 0 || dstIdx < 0 {
		return cos.NewErrInvalidArgument("topology.Commit", fmt.Sprintf("flow %+v names an unknown port", f))
	}
	if subscribe {
		if err := srcActor.SubscribeAsSource(srcIdx, dstActor, dstIdx); err != nil {
			return err
		}
		return dstActor.SubscribeAsDest(dstIdx, srcActor, srcIdx)
	}
	if err := srcActor.UnsubscribeAsSource(srcIdx, dstActor, dstIdx); err != nil {
		return err
	}
	return dstActor.UnsubscribeAsDest(dstIdx, srcActor, srcIdx)
}

type providerAdapter struct {
	mode memsys.Mode
	mgr  memsys.BufferManager
}

func (p providerAdapter) Mode() memsys.Mode           { return p.mode }
func (p providerAdapter) Manager() memsys.BufferManager { return p.mgr }

// installBufferManagers runs the per-output-edge negotiation (spec §4.D) for
// every source port that gained at least one new subscriber this commit.
func (t *Topology) installBufferManagers(rendered, added map[Flow]bool) error {
	bySource := map[Endpoint][]Endpoint{}
	for f := range added {
		bySource[f.Src] = append(bySource[f.Src], f.Dst)
	}
	for src, dsts := range bySource {
		srcActor := t.actorFor(src.BlockUID)
		if srcActor == nil {
			continue
		}
		srcIdx := portIndex(srcActor.Block(), src.Port, false)
		if srcIdx < 0 {
			continue
		}
		domain := srcActor.Block().OutputDomain(srcIdx)
		srcMode, srcMgr := srcActor.Block().OutputBufferMode(srcIdx, domain)

		var destProviders []memsys.Provider
		for _, d := range dsts {
			dstActor := t.actorFor(d.BlockUID)
			if dstActor == nil {
				continue
			}
			dstIdx := portIndex(dstActor.Block(), d.Port, true)
			if dstIdx < 0 {
				continue
			}
			mode, mgr := dstActor.Block().InputBufferMode(dstIdx, domain)
			destProviders = append(destProviders, providerAdapter{mode: mode, mgr: mgr})
		}

		// A freshly negotiated Generic manager has no producer-declared
		// dtype to work from yet (that's only known once the block writes
		// its first chunk), so it's sized in raw bytes; a block needing a
		// typed view reinterprets via memsys.As[T] on its own output.
		mgr, err := memsys.Negotiate(src.Port, providerAdapter{mode: srcMode, mgr: srcMgr}, destProviders,
			dtype.DType{}, defaultSlabSize, defaultNumSlabs)
		if err != nil {
			return err
		}
		if err := srcActor.SetOutputBufferManager(srcIdx, mgr); err != nil {
			return err
		}
	}
	return nil
}

// WaitInactive polls every actor's output totals and returns true once none
// has moved for at least idleDuration, or false when timeout elapses first
// (spec §4.I).
func (t *Topology) WaitInactive(idleDuration, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	var lastTotals map[string]uint64
	quietSince := time.Time{}
	for {
		totals := t.snapshotTotals()
		if lastTotals != nil && sameTotals(lastTotals, totals) {
			if quietSince.IsZero() {
				quietSince = time.Now()
			}
			if time.Since(quietSince) >= idleDuration {
				return true
			}
		} else {
			quietSince = time.Time{}
		}
		lastTotals = totals
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(idleDuration / 10)
	}
}

func (t *Topology) snapshotTotals() map[string]uint64 {
	t.mu.Lock()
	blocks := make([]*actor.BlockActor, 0, len(t.blocks))
	for _, a := range t.blocks {
		blocks = append(blocks, a)
	}
	t.mu.Unlock()

	out := map[string]uint64{}
	for _, a := range blocks {
		for _, s := range a.OutputStats() {
			out[a.UID()+"/"+s.Name] = s.TotalElements
		}
	}
	return out
}

func sameTotals(a, b map[string]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// bridgeKey hashes (src_env, dst_env, src_port) with xxhash so the bridge
// cache lookup (spec §4.I step 3) is a single uint64 comparison rather than
// a string-keyed map probe on every commit.
func bridgeKey(srcEnv, dstEnv, srcPort string) uint64 {
	h := xxhash.New64()
	_, _ = h.WriteString(srcEnv)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(dstEnv)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(srcPort)
	return h.Sum64()
}
