//go:build linux

/*
 * Copyright (c) 2024, flowrt authors.
 */
package buffer

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/flowmesh/flowrt/cmn/cos"
)

func unsafeAddr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func unsafeSlice(ptr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
}

// minCircularRetries mirrors the original's makeCirc retry bound: the
// double-mmap dance (map once, then map the same pages again immediately
// after) is a race against the kernel handing the second mapping a
// different address range, so failures are retried this many times before
// giving up.
const minCircularRetries = 7

var circMu sync.Mutex

type circContainer struct {
	mapping  []byte
	mirror   []byte
	fd       int
}

// MakeCirc allocates a circular buffer of at least numBytes, rounded up to
// the system page size, mapped twice back to back so that writes spilling
// past the end of the first mapping land, via the second mapping of the
// same physical pages, at its beginning again. A consumer can then read any
// wrapped run of up to numBytes as one contiguous slice starting anywhere
// in the first mapping.
func MakeCirc(numBytes int) (SharedBuffer, error) {
	if numBytes <= 0 {
		return Null(), cos.NewErrInvalidArgument("buffer.MakeCirc", "numBytes must be positive")
	}
	pageSize := os.Getpagesize()
	size := ((numBytes + pageSize - 1) / pageSize) * pageSize

	for i := 0; i < minCircularRetries; i++ {
		circMu.Lock()
		buf, err := makeCircUnprotected(size)
		circMu.Unlock()
		if err == nil {
			return buf, nil
		}
	}
	return Null(), &cos.ErrSharedBufferAllocFailed{Bytes: size, Circular: true, Retries: minCircularRetries}
}

func makeCircUnprotected(size int) (SharedBuffer, error) {
	fd, err := unix.MemfdCreate("flowrt-circ", 0)
	if err != nil {
		return Null(), err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return Null(), err
	}

	// reserve a contiguous region of 2*size so the kernel won't hand either
	// half-mapping an address anywhere else, then replace each half with a
	// MAP_FIXED mapping of the same fd.
	base, err := unix.Mmap(-1, 0, 2*size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		return Null(), err
	}
	baseAddr := uintptr(unsafeAddr(base))

	first, err := mmapFixed(fd, baseAddr, size)
	if err != nil {
		unix.Munmap(base)
		unix.Close(fd)
		return Null(), err
	}
	second, err := mmapFixed(fd, baseAddr+uintptr(size), size)
	if err != nil {
		unix.Munmap(first)
		unix.Close(fd)
		return Null(), err
	}

	c := &circContainer{mapping: first, mirror: second, fd: fd}
	// The two mappings sit at consecutive virtual addresses (both MAP_FIXED
	// against the same fd), so the 2*size span is genuinely one contiguous
	// slice - a SubRange reaching past size bytes into the mirror is just an
	// ordinary Go slice of the second half, not a special case. Keep the
	// logical length at size; only the backing slice needs to span both
	// halves so a wrapped read never gets sliced out of bounds.
	full := unsafeSlice(baseAddr, 2*size)
	return SharedBuffer{
		address:   baseAddr,
		length:    size,
		alias:     baseAddr + uintptr(size),
		slice:     full,
		container: c,
	}, nil
}

// mmapFixed maps length bytes of fd at the fixed virtual address addr,
// overwriting whatever reservation already lives there (PROT_READ|WRITE,
// MAP_SHARED|MAP_FIXED).
func mmapFixed(fd int, addr uintptr, length int) ([]byte, error) {
	ptr, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP, addr, uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd), 0)
	if errno != 0 {
		return nil, errno
	}
	return unsafeSlice(ptr, length), nil
}

func mmapFile(f *os.File, readable, writable bool) (SharedBuffer, error) {
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return Null(), err
	}
	length := int(fi.Size())
	if length <= 0 {
		f.Close()
		return Null(), cos.NewErrInvalidArgument("buffer.MakeFromFileMMap", "empty file")
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, length, prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return Null(), fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return New(data, &fileContainer{file: f, data: data}), nil
}

type fileContainer struct {
	file *os.File
	data []byte
}
