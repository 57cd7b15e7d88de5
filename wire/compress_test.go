/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/flowmesh/flowrt/wire"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 64))

	for _, c := range []wire.Compression{wire.CompressionNone, wire.CompressionLZ4, wire.CompressionZstd} {
		compressed, err := wire.Compress(c, payload)
		if err != nil {
			t.Fatalf("Compress(%v): %v", c, err)
		}
		got, err := wire.Decompress(c, compressed)
		if err != nil {
			t.Fatalf("Decompress(%v): %v", c, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("Decompress(%v) round trip mismatch", c)
		}
	}
}

func TestCompressUnknownMode(t *testing.T) {
	if _, err := wire.Compress(wire.Compression(99), []byte("x")); err == nil {
		t.Fatal("expected an error for an unknown compression mode")
	}
}
