/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire_test

import (
	"bytes"
	"testing"

	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := wire.Frame{Tag: wire.TagBuffer, Index: 42, Payload: []byte("hello")}
	if err := wire.WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Tag != want.Tag || got.Index != want.Index || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	want := wire.Frame{Tag: wire.TagMessage, Index: 0}
	if err := wire.WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Tag != want.Tag || len(got.Payload) != 0 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix claiming more than maxFrameSize must be rejected before
	// any allocation is attempted.
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff})
	if _, err := wire.ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}

func TestMultipleFramesConcatenate(t *testing.T) {
	var buf bytes.Buffer
	frames := []wire.Frame{
		{Tag: wire.TagLabel, Index: 1, Payload: []byte("a")},
		{Tag: wire.TagMessage, Index: 2, Payload: []byte("bb")},
		{Tag: wire.TagBuffer, Index: 3, Payload: []byte("ccc")},
	}
	for _, f := range frames {
		if err := wire.WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range frames {
		got, err := wire.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Tag != want.Tag || got.Index != want.Index || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("frame mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestEncodeDecodeDType(t *testing.T) {
	dt := dtype.MustNew("float32")
	got, err := wire.DecodeDType(wire.EncodeDType(dt))
	if err != nil {
		t.Fatalf("DecodeDType: %v", err)
	}
	if !got.Equals(dt) {
		t.Fatalf("DecodeDType = %v, want %v", got, dt)
	}
}

func TestEncodeDecodeLabel(t *testing.T) {
	l := label.New("burst-start", map[string]any{"freq": 2400.0}, 17, 4)
	enc, err := wire.EncodeLabel(l)
	if err != nil {
		t.Fatalf("EncodeLabel: %v", err)
	}
	got, err := wire.DecodeLabel(enc)
	if err != nil {
		t.Fatalf("DecodeLabel: %v", err)
	}
	if got.ID != l.ID || got.Index != l.Index || got.Width != l.Width {
		t.Fatalf("DecodeLabel fixed fields = %+v, want %+v", got, l)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["freq"] != 2400.0 {
		t.Fatalf("DecodeLabel.Data = %v, want freq=2400.0", got.Data)
	}
}

func TestEncodeDecodeMessage(t *testing.T) {
	m := label.NewMessage([]any{"a", 1.0, true})
	enc, err := wire.EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := wire.DecodeMessage(enc)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	gv, ok := got.Value.([]any)
	if !ok || len(gv) != 3 || gv[0] != "a" {
		t.Fatalf("DecodeMessage.Value = %v, want [a 1 true]", got.Value)
	}
}

func TestEncodeDecodePacketHeader(t *testing.T) {
	h := wire.PacketHeader{DTypeMarkup: "int16", NumElements: 128, NumLabels: 3}
	got, err := wire.DecodePacketHeader(wire.EncodePacketHeader(h))
	if err != nil {
		t.Fatalf("DecodePacketHeader: %v", err)
	}
	if got != h {
		t.Fatalf("DecodePacketHeader = %+v, want %+v", got, h)
	}
}
