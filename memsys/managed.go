// Package memsys implements the slab layer above buffer.SharedBuffer:
// ManagedBuffer (a SharedBuffer bound to a pool slot), BufferChunk (a typed
// view into one), and the BufferManager policies that hand BufferChunks to
// producers and reclaim them once every subscriber has consumed past their
// end. Grounded on original_source's BufferChunk.hpp plus the pool-release
// discipline the aistore teacher uses throughout memsys/a_test.go (MMSA
// slabs handed out and returned by refcount, not by an explicit free call).
/*
 * Copyright (c) 2024, flowrt authors.
 */
package memsys

import (
	"github.com/flowmesh/flowrt/buffer"
	ratomic "sync/atomic"
)

// releaser is implemented by the owning pool; Release is called exactly
// once, when a ManagedBuffer's last reference is dropped.
type releaser interface {
	release(slot *slab)
}

// slab is the thing a pool keeps: the backing SharedBuffer plus a refcount
// shared by every ManagedBuffer/BufferChunk copy that points at it. Unlike
// the original's shared_ptr, Go has no destructor hook, so callers must
// call ManagedBuffer.Release (or BufferChunk.Release) explicitly once a
// reference is no longer needed - the pool never reclaims a slab it wasn't
// told about.
type slab struct {
	buf   buffer.SharedBuffer
	refs  int32
	owner releaser
}

func (s *slab) incr() { ratomic.AddInt32(&s.refs, 1) }

// decr drops one reference and returns the slab to its pool when the count
// reaches zero - the "unique() / useCount()" contract from BufferChunk.hpp.
func (s *slab) decr() {
	if ratomic.AddInt32(&s.refs, -1) == 0 && s.owner != nil {
		s.owner.release(s)
	}
}

func (s *slab) useCount() int { return int(ratomic.LoadInt32(&s.refs)) }

// ManagedBuffer is a SharedBuffer bound to exactly one pool slot at a time;
// invariant: the pool reclaims the slot iff the last ManagedBuffer/
// BufferChunk reference to it is dropped.
type ManagedBuffer struct {
	slot *slab
}

func newManagedBuffer(buf buffer.SharedBuffer, owner releaser) ManagedBuffer {
	return ManagedBuffer{slot: &slab{buf: buf, refs: 1, owner: owner}}
}

// FromSharedBuffer wraps a standalone SharedBuffer (not pool-owned) as a
// ManagedBuffer with no release hook - BufferChunk(numBytes)'s constructor
// in the original.
func FromSharedBuffer(buf buffer.SharedBuffer) ManagedBuffer {
	return ManagedBuffer{slot: &slab{buf: buf, refs: 1}}
}

func (m ManagedBuffer) IsNull() bool { return m.slot == nil }

func (m ManagedBuffer) Buffer() buffer.SharedBuffer {
	if m.slot == nil {
		return buffer.Null()
	}
	return m.slot.buf
}

func (m ManagedBuffer) Unique() bool    { return m.slot != nil && m.slot.useCount() == 1 }
func (m ManagedBuffer) UseCount() int {
	if m.slot == nil {
		return 0
	}
	return m.slot.useCount()
}

// Ref returns a new ManagedBuffer referencing the same slot, incrementing
// its refcount (the copy-constructor in the original).
func (m ManagedBuffer) Ref() ManagedBuffer {
	if m.slot == nil {
		return ManagedBuffer{}
	}
	m.slot.incr()
	return m
}

// Release drops this reference; once every outstanding reference has been
// released the slot returns to its pool (or, for a non-pooled buffer, is
// simply left for the GC).
func (m ManagedBuffer) Release() {
	if m.slot != nil {
		m.slot.decr()
	}
}
