//go:build !linux

/*
 * Copyright (c) 2024, flowrt authors.
 */
package buffer

import (
	"io"
	"os"

	"github.com/flowmesh/flowrt/cmn/cos"
)

// minCircularRetries is kept for parity with the linux build; this fallback
// never retries and nothing in this build reads it.
const minCircularRetries = 7

// MakeCirc on platforms without a mirror-mapping primitive falls back to a
// plain (non-aliased) allocation: callers still get a SharedBuffer of the
// requested size, but wraparound reads will not appear contiguous and must
// go through BufferChunk.append instead of relying on the alias.
func MakeCirc(numBytes int) (SharedBuffer, error) {
	if numBytes <= 0 {
		return Null(), cos.NewErrInvalidArgument("buffer.MakeCirc", "numBytes must be positive")
	}
	return Make(numBytes)
}

func mmapFile(f *os.File, _, writable bool) (SharedBuffer, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return Null(), err
	}
	if len(data) == 0 {
		f.Close()
		return Null(), cos.NewErrInvalidArgument("buffer.MakeFromFileMMap", "empty file")
	}
	return New(data, &fileContainer{file: f, data: data}), nil
}

type fileContainer struct {
	file *os.File
	data []byte
}
