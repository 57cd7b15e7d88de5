/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/tinylib/msgp/msgp"

	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/label"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeDType/DecodeDType carry a port's dtype across the wire as its
// canonical markup string (spec §4.A ToMarkup/fromMarkup round-trip).
func EncodeDType(dt dtype.DType) []byte {
	return msgp.AppendString(nil, dt.ToMarkup())
}

func DecodeDType(b []byte) (dtype.DType, error) {
	s, _, err := msgp.ReadStringBytes(b)
	if err != nil {
		return dtype.DType{}, err
	}
	return dtype.New(s)
}

// EncodeLabel/DecodeLabel serialize a Label's fixed fields with msgp and its
// opaque Data payload with jsoniter - msgp has no generic encoding for `any`
// without per-type codegen, and Data is, by spec §3, an arbitrary typed
// value, so the JSON fallback is the pragmatic boundary (documented in
// DESIGN.md).
func EncodeLabel(l label.Label) ([]byte, error) {
	jsonData, err := json.Marshal(l.Data)
	if err != nil {
		return nil, err
	}
	b := msgp.AppendString(nil, l.ID)
	b = msgp.AppendUint64(b, l.Index)
	b = msgp.AppendUint32(b, l.Width)
	b = msgp.AppendBytes(b, jsonData)
	return b, nil
}

func DecodeLabel(b []byte) (label.Label, error) {
	id, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return label.Label{}, err
	}
	idx, b, err := msgp.ReadUint64Bytes(b)
	if err != nil {
		return label.Label{}, err
	}
	width, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return label.Label{}, err
	}
	jsonData, _, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return label.Label{}, err
	}
	var data any
	if len(jsonData) > 0 {
		if err := json.Unmarshal(jsonData, &data); err != nil {
			return label.Label{}, err
		}
	}
	return label.New(id, data, idx, width), nil
}

// EncodeMessage/DecodeMessage serialize a Message's opaque Value via
// jsoniter, for the same reason as Label.Data above.
func EncodeMessage(m label.Message) ([]byte, error) { return json.Marshal(m.Value) }

func DecodeMessage(b []byte) (label.Message, error) {
	var v any
	if len(b) > 0 {
		if err := json.Unmarshal(b, &v); err != nil {
			return label.Message{}, err
		}
	}
	return label.NewMessage(v), nil
}

// PacketHeader is the fixed-size preface of a Packet frame pair: a
// TagPacketHeader frame carrying the dtype markup, element count, and label
// count, followed by that many label frames and one TagPacketPayload frame
// with the raw bytes.
type PacketHeader struct {
	DTypeMarkup string
	NumElements int
	NumLabels   int
}

func EncodePacketHeader(h PacketHeader) []byte {
	b := msgp.AppendString(nil, h.DTypeMarkup)
	b = msgp.AppendInt(b, h.NumElements)
	b = msgp.AppendInt(b, h.NumLabels)
	return b
}

func DecodePacketHeader(b []byte) (PacketHeader, error) {
	markup, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return PacketHeader{}, err
	}
	n, b, err := msgp.ReadIntBytes(b)
	if err != nil {
		return PacketHeader{}, err
	}
	nl, _, err := msgp.ReadIntBytes(b)
	if err != nil {
		return PacketHeader{}, err
	}
	return PacketHeader{DTypeMarkup: markup, NumElements: n, NumLabels: nl}, nil
}
