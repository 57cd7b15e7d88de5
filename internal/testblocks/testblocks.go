// Package testblocks provides the minimal source/sink pair every round-trip
// test in this repo drives buffers, labels, and messages through and
// collects them back out of (spec §8 "Concrete scenarios"). Grounded on
// PothosCore's blocks/testers/FeederSource.cpp and CollectorSink.cpp
// (restored per SPEC_FULL §12); these are test harness, not catalog DSP
// blocks, which is why they live under internal/ rather than a public
// blocks package (spec §1 Non-goals: no concrete DSP block catalog).
/*
 * Copyright (c) 2024, flowrt authors.
 */
package testblocks

import (
	"sync"

	"github.com/flowmesh/flowrt/block"
	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/memsys"
)

// FeederSource has a single output and no inputs. On its first Work() call
// it replays every configured buffer, label, and message onto the output in
// one shot via PostBuffer (spec §4.F "bypass the pool ... out-of-band or
// reference-forwarded data"), since a feeder has nothing upstream to
// negotiate a BufferManager with.
type FeederSource[T any] struct {
	*block.Base

	dt       dtype.DType
	buffers  [][]T
	labels   []label.Label
	messages []label.Message
	fed      bool
}

func NewFeederSource[T any](dt dtype.DType, buffers [][]T, labels []label.Label, messages []label.Message) *FeederSource[T] {
	return &FeederSource[T]{
		Base:     block.NewBase(nil, []string{"out"}),
		dt:       dt,
		buffers:  buffers,
		labels:   labels,
		messages: messages,
	}
}

func (f *FeederSource[T]) Activate() error {
	f.fed = false
	return nil
}

func (f *FeederSource[T]) Deactivate() error { return nil }

func (f *FeederSource[T]) Work() error {
	if f.fed {
		return nil
	}
	f.fed = true
	out := f.Output(0)

	for _, l := range f.labels {
		out.PostLabel(l)
	}
	for _, m := range f.messages {
		out.PostMessage(m)
	}
	for _, buf := range f.buffers {
		chunk, err := memsys.NewTyped(f.dt, len(buf))
		if err != nil {
			return err
		}
		copy(memsys.As[T](chunk), buf)
		if err := out.PostBuffer(chunk); err != nil {
			return err
		}
	}
	return nil
}

// CollectorSink has a single input and no outputs. It consumes everything
// posted to it and accumulates a flat record a test can assert against.
type CollectorSink[T any] struct {
	*block.Base

	mu       sync.Mutex
	buffer   []T
	labels   []label.Label
	messages []label.Message
}

func NewCollectorSink[T any]() *CollectorSink[T] {
	return &CollectorSink[T]{Base: block.NewBase([]string{"in"}, nil)}
}

func (c *CollectorSink[T]) Activate() error { return nil }

func (c *CollectorSink[T]) Deactivate() error { return nil }

func (c *CollectorSink[T]) Work() error {
	in := c.Input(0)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		m, ok := in.PopMessage()
		if !ok {
			break
		}
		c.messages = append(c.messages, m)
	}

	buf := in.Buffer()
	n := buf.Elements()
	if n == 0 {
		return nil
	}
	before := len(c.buffer)
	c.buffer = append(c.buffer, memsys.As[T](buf)...)
	for _, l := range in.Labels() {
		l.Index += uint64(before)
		c.labels = append(c.labels, l)
	}
	return in.Consume(n)
}

func (c *CollectorSink[T]) CollectedBuffer() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.buffer...)
}

func (c *CollectorSink[T]) CollectedLabels() []label.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]label.Label(nil), c.labels...)
}

func (c *CollectorSink[T]) CollectedMessages() []label.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]label.Message(nil), c.messages...)
}
