// Package buffer implements SharedBuffer: a reference-counted view onto a
// span of memory, optionally backed by a circular (mirror-mapped) mapping
// so a producer can write past the end of a ring and have the bytes land,
// via a second virtual mapping of the same physical pages, back at the
// beginning - letting consumers read a wrapped run as one contiguous slice.
// Grounded on original_source's SharedBuffer.cpp / MemoryMappedBufferContainer.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package buffer

import (
	"os"
	"unsafe"

	"github.com/flowmesh/flowrt/cmn/cos"
)

// SharedBuffer is address/length/container, exactly like the original: the
// container keeps whatever backing allocation alive (a []byte, an mmap
// handle, an *os.File) for as long as any SharedBuffer referencing it
// exists, via ordinary Go GC rather than the original's shared_ptr.
type SharedBuffer struct {
	address uintptr
	length  int
	alias   uintptr // for circular buffers: address of the mirror mapping
	slice   []byte  // the bytes from address on: length bytes, or 2*length (primary plus mirror) when circular
	container any
}

func Null() SharedBuffer { return SharedBuffer{} }

func (b SharedBuffer) Address() uintptr { return b.address }
func (b SharedBuffer) Length() int      { return b.length }
func (b SharedBuffer) Alias() uintptr   { return b.alias }
func (b SharedBuffer) Bytes() []byte    { return b.slice }
func (b SharedBuffer) IsNull() bool     { return b.slice == nil && b.length == 0 }

// New wraps an existing allocation - a plain heap buffer, the result of
// mmap, whatever - under the SharedBuffer accounting discipline.
func New(slice []byte, container any) SharedBuffer {
	var addr uintptr
	if len(slice) > 0 {
		addr = uintptr(unsafe.Pointer(&slice[0]))
	}
	return SharedBuffer{address: addr, length: len(slice), slice: slice, container: container}
}

// Make allocates numBytes of plain (non-circular) heap memory.
func Make(numBytes int) (SharedBuffer, error) {
	if numBytes <= 0 {
		return Null(), cos.NewErrInvalidArgument("buffer.Make", "numBytes must be positive")
	}
	return New(make([]byte, numBytes), nil), nil
}

// SubRange builds a view into an existing buffer, address-checked against
// parent's range (and its alias range, for a circular parent - a sub-range
// starting in the mirror region is legal). A full-capacity circular parent
// has alias == address+length exactly (the mirror begins right where the
// primary mapping ends), so the forward-mirror check must accept equality,
// not just strictly-after.
func SubRange(address uintptr, length int, parent SharedBuffer) (SharedBuffer, error) {
	end := parent.address + uintptr(parent.length)
	if parent.alias != 0 && parent.alias >= end {
		end = parent.alias + uintptr(parent.length)
	}
	beginInRange := address >= parent.address
	endInRange := address+uintptr(length) <= end
	if !beginInRange || !endInRange {
		return Null(), &cos.ErrNotASubset{
			Addr: address, Length: uintptr(length),
			ParentAddr: parent.address, ParentLength: uintptr(parent.length),
		}
	}
	off := address - parent.address
	alias := parent.alias
	if alias != 0 {
		alias += off
	}
	return SharedBuffer{
		address:   address,
		length:    length,
		alias:     alias,
		slice:     parent.slice[off : off+uintptr(length)],
		container: parent.container,
	}, nil
}

// MakeFromFileMMap memory-maps filepath and wraps the mapping as a
// SharedBuffer; the file stays open (and the mapping alive) for as long as
// the returned buffer, or any sub-range/container alias of it, is reachable.
func MakeFromFileMMap(filepath string, readable, writable bool) (SharedBuffer, error) {
	flag := os.O_RDONLY
	switch {
	case readable && writable:
		flag = os.O_RDWR
	case writable:
		flag = os.O_WRONLY
	}
	f, err := os.OpenFile(filepath, flag, 0o644)
	if err != nil {
		return Null(), cos.NewErrDataFormat(filepath, err.Error())
	}
	return mmapFile(f, readable, writable)
}
