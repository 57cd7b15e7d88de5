// Package wire implements the length-prefixed frame protocol cross-process
// bridges use to replay buffers, labels, messages and dtypes on a remote
// topology's downstream port (spec §6 "Wire protocol for cross-process
// bridges"). Grounded on PothosCore's NetworkSink/NetworkSource framing
// (original_source/pothos-blocks/network/SocketEndpoint.hpp) restored per
// SPEC_FULL §12, but without that source's node-discovery/registry-announce
// handshake, which belongs to the excluded remote/RPC layer.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package wire

import (
	"encoding/binary"
	"io"

	"github.com/flowmesh/flowrt/cmn/cos"
)

// Tag identifies a frame's payload kind (spec §6).
type Tag uint16

const (
	TagBuffer        Tag = 'B'
	TagLabel         Tag = 'L'
	TagMessage       Tag = 'M'
	TagDType         Tag = 'D'
	TagPacketHeader  Tag = 'H'
	TagPacketPayload Tag = 'P'
)

func (t Tag) String() string {
	if t < 256 {
		return string(rune(t))
	}
	return "?"
}

// Frame is one wire unit: a tag, a 64-bit absolute element index, and a
// tag-specific payload.
type Frame struct {
	Tag     Tag
	Index   uint64
	Payload []byte
}

const headerSize = 2 + 8 // tag + index

// maxFrameSize bounds a single frame so a corrupt length prefix can't make
// ReadFrame allocate unboundedly.
const maxFrameSize = 256 << 20

// WriteFrame writes f as a 4-byte big-endian length (covering tag + index +
// payload) followed by that many bytes.
func WriteFrame(w io.Writer, f Frame) error {
	buf := make([]byte, 4+headerSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(headerSize+len(f.Payload)))
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.Tag))
	binary.BigEndian.PutUint64(buf[6:14], f.Index)
	copy(buf[14:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n < headerSize || n > maxFrameSize {
		return Frame{}, cos.NewErrDataFormat("wire.Frame.length", "frame length out of range")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return Frame{
		Tag:     Tag(binary.BigEndian.Uint16(body[0:2])),
		Index:   binary.BigEndian.Uint64(body[2:10]),
		Payload: body[10:],
	}, nil
}
