/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v3"

	"github.com/flowmesh/flowrt/cmn/cos"
)

// Compression selects a bridge connection's frame-payload codec (spec §6
// Extra.Compression): either is a legitimate choice per edge, traded off
// between ratio (Zstd) and speed (LZ4).
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

// Compress/Decompress operate on whole frame payloads (cheap enough at the
// per-produce granularity a bridge operates at; a streaming codec per
// connection would save CPU at the cost of holding compressor state across
// frames, which isn't needed at this scale).
func Compress(c Compression, b []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return b, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(b, nil), nil
	default:
		return nil, cos.NewErrInvalidArgument("wire.Compress", "unknown compression")
	}
}

func Decompress(c Compression, b []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return b, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(b))
		return io.ReadAll(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(b, nil)
	default:
		return nil, cos.NewErrInvalidArgument("wire.Decompress", "unknown compression")
	}
}
