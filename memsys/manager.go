/*
 * Copyright (c) 2024, flowrt authors.
 */
package memsys

import (
	"sync"

	"github.com/flowmesh/flowrt/buffer"
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
)

// BufferManager is a per-output-port policy object: it vends buffers for a
// block to write into (front/produced) and reclaims them once every
// subscriber has consumed past their end (pop). At any moment an output
// port has exactly one installed manager; switching happens only at a
// commit boundary with the actor quiesced.
type BufferManager interface {
	// Front returns the next buffer the producer may write into.
	Front() (BufferChunk, error)
	// Produced advances the producer cursor by lengthUsed bytes; the
	// front chunk (or the prefix of it actually used) becomes in-flight.
	Produced(chunk BufferChunk, lengthUsed int)
	// Pop signals that lengthReleased bytes at the front of the
	// in-flight region have been fully consumed by every subscriber.
	Pop(lengthReleased int)
	// Empty reports whether there is no in-flight data outstanding.
	Empty() bool
}

// --- Generic pool manager: a ring of fixed-size heap slabs -----------------

type genericSlab struct {
	mb   ManagedBuffer
	used int
}

// Generic is the default BufferManager: a small pool of fixed-size heap
// slabs recycled round-robin as producers finish with them.
type Generic struct {
	mu       sync.Mutex
	dt       dtype.DType
	slabSize int
	slabs    []*genericSlab
	cur      int
	produced int // bytes produced but not yet all consumed (in-flight)
}

func NewGeneric(dt dtype.DType, slabSize, numSlabs int) (*Generic, error) {
	if numSlabs < 2 {
		return nil, cos.NewErrInvalidArgument("memsys.NewGeneric", "numSlabs must be >= 2")
	}
	g := &Generic{dt: dt, slabSize: slabSize}
	g.slabs = make([]*genericSlab, numSlabs)
	for i := range g.slabs {
		sb, err := buffer.Make(slabSize)
		if err != nil {
			return nil, err
		}
		mb := newManagedBuffer(sb, g)
		g.slabs[i] = &genericSlab{mb: mb}
	}
	return g, nil
}

func (g *Generic) Front() (BufferChunk, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.slabs[g.cur]
	if s.mb.UseCount() > 1 {
		// still referenced downstream; producer must wait (back-pressure)
		return Null(), nil
	}
	return FromManagedBuffer(s.mb, g.dt), nil
}

// Produced records how much of the front slab was used and advances the
// round-robin cursor. It takes no extra reference of its own: the slab's
// refcount is carried entirely by OutputPort.Produce's per-subscriber Dup
// (spec §8 invariant 7 - a slab is referenced iff a subscriber still holds
// a copy), so Front's back-pressure check (s.mb.UseCount() > 1) returns to
// "free" the moment every subscriber has released or consumed past it,
// with no separate producer-side reference to ever release in turn.
func (g *Generic) Produced(chunk BufferChunk, lengthUsed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.slabs[g.cur]
	s.used = lengthUsed
	g.produced += lengthUsed
	g.cur = (g.cur + 1) % len(g.slabs)
}

// Pop is wired from InputPort.Consume (spec §4.H step 4): it tracks bytes
// produced-but-not-yet-reported for Empty(), and is the mechanism a
// Circular manager actually depends on to advance its read cursor; for a
// Generic pool, reclamation itself is already complete via subscriber
// refcounts by the time Pop is called, so this is bookkeeping only.
func (g *Generic) Pop(lengthReleased int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lengthReleased > g.produced {
		lengthReleased = g.produced
	}
	g.produced -= lengthReleased
}

func (g *Generic) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.produced == 0
}

// release implements releaser: called when a slab's last reference drops
// to zero. In normal operation this never fires for a Generic slab - the
// pool's own construction reference is never released, only cycled - so
// there is nothing to return here; a call would mean a double-release bug
// upstream.
func (g *Generic) release(*slab) {}

// --- Circular manager: one circular SharedBuffer treated as an infinite ring

// Circular owns one circular SharedBuffer and hands out sub-range chunks
// that may be addressed past the logical end of the ring, because the
// mirror mapping makes the bytes past the end alias the bytes at the
// beginning - a consumer reading a wrapped run sees one contiguous slice.
type Circular struct {
	mu       sync.Mutex
	dt       dtype.DType
	mb       ManagedBuffer
	capacity int
	writeOff int // producer cursor, monotonically increasing, mod capacity
	readOff  int // oldest byte not yet released
}

func NewCircular(dt dtype.DType, capacity int) (*Circular, error) {
	sb, err := buffer.MakeCirc(capacity)
	if err != nil {
		return nil, err
	}
	return &Circular{dt: dt, mb: FromSharedBuffer(sb), capacity: sb.Length()}, nil
}

func (c *Circular) Front() (BufferChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	avail := c.capacity - (c.writeOff - c.readOff)
	if avail <= 0 {
		return Null(), nil
	}
	sb := c.mb.Buffer()
	addr := sb.Address() + uintptr(c.writeOff%c.capacity)
	sub, err := buffer.SubRange(addr, avail, sb)
	if err != nil {
		return Null(), err
	}
	return fromManaged(c.mb.Ref(), sub.Address(), avail, c.dt), nil
}

func (c *Circular) Produced(_ BufferChunk, lengthUsed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeOff += lengthUsed
}

func (c *Circular) Pop(lengthReleased int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOff += lengthReleased
	if c.readOff > c.writeOff {
		c.readOff = c.writeOff
	}
}

func (c *Circular) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOff == c.writeOff
}

// --- Custom: a domain-provided manager wired in verbatim --------------------

// Custom wraps a BufferManager implementation supplied by a block's
// getInputBufferManager/getOutputBufferManager override (CUSTOM mode,
// spec §4.F); the negotiation algorithm treats this the same as Generic
// and Circular but never substitutes its own policy for it.
type Custom struct {
	BufferManager
}

func NewCustom(bm BufferManager) *Custom { return &Custom{BufferManager: bm} }
