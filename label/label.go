// Package label implements the out-of-band annotations carried alongside a
// stream: Label (indexed, relative on input / absolute on output), Message
// (a typed opaque value), and Packet (a Message whose payload is a
// BufferChunk with labels attached).
/*
 * Copyright (c) 2024, flowrt authors.
 */
package label

import "github.com/flowmesh/flowrt/memsys"

// Label is an indexed annotation: index is absolute (elements produced by
// the source since activation) as stored by a sink's output-side queue,
// and relative (offset into the current input buffer) once a work() call
// sees it via InputPort.Labels().
type Label struct {
	ID    string
	Data  any
	Index uint64
	Width uint32
}

func New(id string, data any, index uint64, width uint32) Label {
	return Label{ID: id, Data: data, Index: index, Width: width}
}

// ToRelative converts an absolute label index into one relative to
// bufferStart (the absolute index of element 0 of the current input
// buffer).
func (l Label) ToRelative(bufferStart uint64) Label {
	l.Index -= bufferStart
	return l
}

func (l Label) ToAbsolute(bufferStart uint64) Label {
	l.Index += bufferStart
	return l
}

// ToAdjusted rescales a label's index and width for a resampling block
// that interpolates by L and decimates by M (e.g. an FIR resampler): the
// new index is index*L/M, rounded down, and width scales the same way,
// with a floor of 1 so a non-empty span never adjusts away to zero.
func (l Label) ToAdjusted(interpolation, decimation uint64) Label {
	if interpolation == 0 {
		interpolation = 1
	}
	if decimation == 0 {
		decimation = 1
	}
	l.Index = (l.Index * interpolation) / decimation
	w := (uint64(l.Width) * interpolation) / decimation
	if w == 0 {
		w = 1
	}
	l.Width = uint32(w)
	return l
}

// ShiftForInsertion adjusts a label's index to account for extra elements
// spliced into the stream before it (a preamble/frame-sync inserter's
// semantics): a "frameStart" label exactly at insertAt stays there, on the
// first inserted element; every other label at or past insertAt moves
// forward by insertedWidth elements.
func (l Label) ShiftForInsertion(insertAt uint64, insertedWidth uint64) Label {
	if l.Index > insertAt || (l.Index == insertAt && l.ID != "frameStart") {
		l.Index += insertedWidth
	}
	return l
}

// Message is a typed opaque value enqueued to an input port (signal/slot
// payloads, registered-call arguments and results, and Packet.Payload).
type Message struct {
	Value any
}

func NewMessage(v any) Message { return Message{Value: v} }

// Packet is a Message whose value is a BufferChunk payload plus the labels
// that fall within it - used to hand a self-contained chunk of stream
// (with its annotations) across a boundary that doesn't share an
// InputPort/OutputPort pair, e.g. a cross-process bridge.
type Packet struct {
	Payload memsys.BufferChunk
	Labels  []Label
}

func NewPacket(payload memsys.BufferChunk, labels []Label) Packet {
	return Packet{Payload: payload, Labels: labels}
}
