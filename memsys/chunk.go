/*
 * Copyright (c) 2024, flowrt authors.
 */
package memsys

import (
	"unsafe"

	"github.com/flowmesh/flowrt/buffer"
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
)

// BufferChunk is a typed, possibly sub-range view into a ManagedBuffer:
// address, length in bytes, a dtype, and a parent-of-sub-range counter.
// Release does not consult the counter: every chunk, sub-range or not,
// drops its own reference on the slab (SubRange takes one with Ref).
type BufferChunk struct {
	address     uintptr
	length      int // bytes
	dtype       dtype.DType
	managed     ManagedBuffer
	nextBuffers int32 // child sub-range counter; no method reads or updates it
}

// Null returns an empty BufferChunk - no memory, zero length.
func Null() BufferChunk { return BufferChunk{} }

// New allocates numBytes from the standard allocator (buffer.Make), with no
// associated pool.
func New(numBytes int) (BufferChunk, error) {
	sb, err := buffer.Make(numBytes)
	if err != nil {
		return Null(), err
	}
	return fromManaged(FromSharedBuffer(sb), sb.Address(), numBytes, dtype.DType{}), nil
}

// NewTyped allocates room for numElems of dt.
func NewTyped(dt dtype.DType, numElems int) (BufferChunk, error) {
	bc, err := New(dt.Size() * numElems)
	if err != nil {
		return Null(), err
	}
	bc.dtype = dt
	return bc, nil
}

// SubRange returns a chunk over the sub-range of c starting at elemOffset
// elements and spanning numElems, sharing c's underlying slab (the
// ManagedBuffer's refcount is incremented; the caller must Release both the
// sub-range and, eventually, c). Used by InputPort.Consume to trim a
// buffer's front without copying.
func SubRange(c BufferChunk, elemOffset, numElems int) (BufferChunk, error) {
	sz := c.dtype.Size()
	if sz == 0 {
		sz = 1
	}
	addr := c.address + uintptr(elemOffset*sz)
	sb := c.Buffer()
	if _, err := buffer.SubRange(addr, numElems*sz, sb); err != nil {
		return Null(), err
	}
	return fromManaged(c.managed.Ref(), addr, numElems*sz, c.dtype), nil
}

// FromManagedBuffer builds a BufferChunk that spans the whole of mb.
func FromManagedBuffer(mb ManagedBuffer, dt dtype.DType) BufferChunk {
	sb := mb.Buffer()
	return fromManaged(mb, sb.Address(), sb.Length(), dt)
}

func fromManaged(mb ManagedBuffer, address uintptr, length int, dt dtype.DType) BufferChunk {
	return BufferChunk{address: address, length: length, dtype: dt, managed: mb}
}

func (c BufferChunk) Address() uintptr         { return c.address }
func (c BufferChunk) Length() int              { return c.length }
func (c BufferChunk) DType() dtype.DType       { return c.dtype }
func (c BufferChunk) ManagedBuffer() ManagedBuffer { return c.managed }
func (c BufferChunk) Buffer() buffer.SharedBuffer  { return c.managed.Buffer() }

func (c BufferChunk) IsValid() bool { return !c.managed.IsNull() && c.length > 0 }

// Elements returns length/dtype.size, the element count.
func (c BufferChunk) Elements() int {
	sz := c.dtype.Size()
	if sz == 0 {
		return 0
	}
	return c.length / sz
}

// SetElements resizes the logical view to hold numElements of c's dtype.
func (c BufferChunk) SetElements(numElements int) BufferChunk {
	c.length = numElements * c.dtype.Size()
	return c
}

// Alias mirrors BufferChunk::getAlias: only meaningful when the underlying
// SharedBuffer is circular, returns 0 otherwise.
func (c BufferChunk) Alias() uintptr {
	sb := c.Buffer()
	if sb.Alias() == 0 {
		return 0
	}
	if c.address > sb.Alias() {
		return c.address - uintptr(sb.Length())
	}
	return c.address + uintptr(sb.Length())
}

func (c BufferChunk) End() uintptr { return c.address + uintptr(c.length) }

// Bytes returns the raw bytes backing this chunk's [address, address+length)
// view (a re-slice of the underlying SharedBuffer).
func (c BufferChunk) Bytes() []byte {
	full := c.Buffer().Bytes()
	off := int(c.address - c.Buffer().Address())
	if off < 0 || off+c.length > len(full) {
		return nil
	}
	return full[off : off+c.length]
}

func (c BufferChunk) Unique() bool { return c.managed.Unique() }
func (c BufferChunk) UseCount() int { return c.managed.UseCount() }

// Dup returns a copy of c holding its own incremented reference on the
// backing slab - used when the same produced chunk is fanned out to
// multiple subscribers (spec §4.F OutputPort fan-out), so each subscriber's
// eventual Release/Consume drops exactly the reference it was given.
func (c BufferChunk) Dup() BufferChunk {
	c.managed = c.managed.Ref()
	return c
}

// Release drops this chunk's reference to its backing slab.
func (c BufferChunk) Release() { c.managed.Release() }

// Clear returns a null chunk (the original's in-place clear(); Go values
// are immutable copies so callers reassign: bc = bc.Clear()).
func (BufferChunk) Clear() BufferChunk { return Null() }

// Append concatenates other onto the back of c. Appending to an empty chunk
// is a reference copy (no allocation); appending to a non-empty chunk
// allocates a new slab sized to the sum and copies both contents in.
func (c BufferChunk) Append(other BufferChunk) (BufferChunk, error) {
	if !c.IsValid() {
		return other, nil
	}
	if !other.IsValid() {
		return c, nil
	}
	out, err := New(c.length + other.length)
	if err != nil {
		return Null(), err
	}
	copy(out.Bytes(), c.Bytes())
	copy(out.Bytes()[c.length:], other.Bytes())
	out.dtype = c.dtype
	return out, nil
}

// As reinterprets the front of the chunk as a slice of T - the Go analogue
// of BufferChunk::as<ElementType>()/operator ElementType(), used by block
// implementations that know their own element type at compile time.
func As[T any](c BufferChunk) []T {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	if sz == 0 {
		return nil
	}
	n := c.length / sz
	if n == 0 {
		return nil
	}
	b := c.Bytes()
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
