// Package port implements InputPort and OutputPort: the per-edge endpoints
// a Block's work() call reads from and writes into. An InputPort
// accumulates buffers, labels, and messages posted by its upstream
// OutputPort; an OutputPort vends writable buffers from its installed
// memsys.BufferManager and fans labels/messages out to every subscriber.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package port

import (
	"sync"

	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/memsys"
)

// InputPort accumulates a prefix of the stream (as a BufferChunk), the
// labels posted for it (kept with absolute indices), and a FIFO of
// messages - all posted by the upstream OutputPort this port is subscribed
// to.
type InputPort struct {
	mu sync.Mutex

	name string

	buf      memsys.BufferChunk
	bufStart uint64 // absolute index of buf's element 0
	labels   *ringDeque[label.Label]
	messages *ringDeque[label.Message]
	total    uint64 // cumulative elements consumed
	reserve  int

	// sourceMgr is the BufferManager installed on the upstream OutputPort
	// this port is subscribed to, set via SetSourceManager when the
	// subscription is applied (actor.BlockActor) or the manager is
	// (re)installed (OutputPort.SetBufferManager) - Consume reports
	// consumed bytes back to it (spec §4.H step 4).
	sourceMgr memsys.BufferManager

	// notify is called after every Post/PostLabel/PostMessage so the
	// actor owning this port can re-signal its ThreadPool (spec §4.H step
	// 5 "re-signal the subscribing actors"); nil until a subscription is
	// applied.
	notify func()
}

func NewInputPort(name string) *InputPort {
	return &InputPort{
		name:     name,
		labels:   newRingDeque[label.Label](4),
		messages: newRingDeque[label.Message](4),
	}
}

func (p *InputPort) Name() string { return p.name }

// Post appends chunk onto the accumulated buffer (a reference append when
// the accumulator is empty, a copying append otherwise - memsys.Append's
// own rule). Labels are not touched here: PostLabel stores them with
// absolute indices and Labels() translates them to relative on read.
func (p *InputPort) Post(chunk memsys.BufferChunk) error {
	p.mu.Lock()
	if !p.buf.IsValid() {
		p.bufStart = p.total + uint64(p.buf.Elements())
	}
	out, err := p.buf.Append(chunk)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.buf = out
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
	return nil
}

func (p *InputPort) PostLabel(l label.Label) {
	p.mu.Lock()
	p.labels.PushBack(l)
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (p *InputPort) PostMessage(m label.Message) {
	p.mu.Lock()
	p.messages.PushBack(m)
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// SetNotify installs fn to be called after every Post/PostLabel/PostMessage -
// actor.BlockActor wires this to wake the downstream actor's ThreadPool the
// moment new data lands on its input, rather than relying on the pool's next
// unrelated signal (spec §4.H step 5).
func (p *InputPort) SetNotify(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

// SetSourceManager installs mgr as the BufferManager that Consume reports
// consumed bytes back to (spec §4.H step 4 "release the consumed prefix
// back to its source's manager").
func (p *InputPort) SetSourceManager(mgr memsys.BufferManager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceMgr = mgr
}

// Buffer returns the accumulated, not-yet-consumed prefix of the stream.
func (p *InputPort) Buffer() memsys.BufferChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf
}

func (p *InputPort) Elements() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Elements()
}

// Labels returns the labels whose absolute index falls inside the current
// buffer, with indices translated to be relative to it (index == 0 is the
// buffer's first element) - spec §4.F / invariant §8.3.
func (p *InputPort) Labels() []label.Label {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]label.Label, 0, p.labels.Len())
	bufEnd := p.bufStart + uint64(p.buf.Elements())
	p.labels.Each(func(_ int, l label.Label) {
		if l.Index >= p.bufStart && l.Index < bufEnd {
			out = append(out, l.ToRelative(p.bufStart))
		}
	})
	return out
}

// RemoveLabel deletes the first stored label matching l (compared by ID and
// absolute index) - used by a block that consumes a label (e.g. a frame
// sync marker) and doesn't want it to reappear on the next work() call.
func (p *InputPort) RemoveLabel(l label.Label) {
	p.mu.Lock()
	defer p.mu.Unlock()
	abs := l.ToAbsolute(p.bufStart)
	found := -1
	p.labels.Each(func(i int, cand label.Label) {
		if found < 0 && cand.ID == abs.ID && cand.Index == abs.Index {
			found = i
		}
	})
	if found >= 0 {
		p.labels.RemoveAt(found)
	}
}

func (p *InputPort) HasMessage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages.Len() > 0
}

func (p *InputPort) PopMessage() (label.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages.Len() == 0 {
		return label.Message{}, false
	}
	m := p.messages.Front()
	p.messages.PopFront()
	return m, true
}

// Consume drops n elements from the front of the accumulated buffer and
// advances the cumulative counter; also drops (and discards) any stored
// label whose index is now behind the new buffer start. The consumed span is
// reported, in bytes, to the upstream manager via sourceMgr.Pop (spec
// §4.H step 4) - essential for a Circular manager's ring to ever reclaim
// space, and harmless bookkeeping for a Generic pool, whose own
// back-pressure is driven purely by subscriber refcounts.
func (p *InputPort) Consume(n int) error {
	p.mu.Lock()
	if n > p.buf.Elements() {
		p.mu.Unlock()
		return cos.NewErrInvalidArgument("InputPort.Consume", "n exceeds buffered elements")
	}
	old := p.buf
	rest := old.Elements() - n
	if rest == 0 {
		p.buf = memsys.Null()
	} else {
		sub, err := memsys.SubRange(old, n, rest)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.buf = sub
	}
	p.bufStart += uint64(n)
	p.total += uint64(n)
	for i := 0; i < p.labels.Len(); {
		if p.labels.At(i).Index < p.bufStart {
			p.labels.RemoveAt(i)
			continue
		}
		i++
	}
	sourceMgr := p.sourceMgr
	elemSize := old.DType().Size()
	p.mu.Unlock()

	old.Release()
	if sourceMgr != nil {
		if elemSize == 0 {
			elemSize = 1
		}
		sourceMgr.Pop(n * elemSize)
	}
	return nil
}

func (p *InputPort) TotalElements() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// SetReserve tells the scheduler not to invoke work() on this port's owner
// until at least n elements are available.
func (p *InputPort) SetReserve(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserve = n
}

func (p *InputPort) Reserve() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve
}

func (p *InputPort) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Elements() >= p.reserve
}

// Subscriber is what an OutputPort fans production out to: normally an
// InputPort, but a signal's subscribers are slots that only ever receive
// messages.
type Subscriber interface {
	Post(chunk memsys.BufferChunk) error
	PostLabel(l label.Label)
	PostMessage(m label.Message)
}

// sourceAware is implemented by subscribers that need to know which
// BufferManager backs the output they're subscribed to (*InputPort, via
// SetSourceManager) - checked with a type assertion rather than added to
// Subscriber so a message-only slot doesn't have to implement it.
type sourceAware interface {
	SetSourceManager(mgr memsys.BufferManager)
}

// OutputPort vends writable buffers from its installed BufferManager and
// fans production out to every subscribed InputPort (or slot). Signals are
// OutputPorts used exclusively for PostMessage.
type OutputPort struct {
	mu sync.Mutex

	name    string
	mgr     memsys.BufferManager
	subs    []Subscriber
	total   uint64
	current memsys.BufferChunk
}

func NewOutputPort(name string, mgr memsys.BufferManager) *OutputPort {
	return &OutputPort{name: name, mgr: mgr}
}

func (p *OutputPort) Name() string { return p.name }

func (p *OutputPort) SetBufferManager(mgr memsys.BufferManager) {
	p.mu.Lock()
	p.mgr = mgr
	subs := append([]Subscriber(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		if sa, ok := s.(sourceAware); ok {
			sa.SetSourceManager(mgr)
		}
	}
}

// Manager returns the currently installed BufferManager, or nil if none has
// been installed yet.
func (p *OutputPort) Manager() memsys.BufferManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mgr
}

func (p *OutputPort) Subscribe(s Subscriber) {
	p.mu.Lock()
	p.subs = append(p.subs, s)
	mgr := p.mgr
	p.mu.Unlock()
	if sa, ok := s.(sourceAware); ok {
		sa.SetSourceManager(mgr)
	}
}

func (p *OutputPort) Unsubscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cand := range p.subs {
		if cand == s {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return
		}
	}
}

// Buffer returns the writable region the producer should write into.
func (p *OutputPort) Buffer() (memsys.BufferChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mgr == nil {
		return memsys.Null(), cos.NewErrInvalidArgument("OutputPort.Buffer", p.name+" has no installed BufferManager")
	}
	if !p.current.IsValid() {
		chunk, err := p.mgr.Front()
		if err != nil {
			return memsys.Null(), err
		}
		p.current = chunk
	}
	return p.current, nil
}

func (p *OutputPort) Elements() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Elements()
}

// Produce advances the manager's producer cursor by n elements and fans
// the produced prefix out to every subscriber (absolute-indexed).
func (p *OutputPort) Produce(n int) error {
	p.mu.Lock()
	chunk := p.current
	mgr := p.mgr
	subs := append([]Subscriber(nil), p.subs...)
	p.mu.Unlock()

	if !chunk.IsValid() {
		return cos.NewErrInvalidArgument("OutputPort.Produce", p.name+" has no front buffer")
	}
	produced := chunk.SetElements(n)
	if mgr != nil {
		mgr.Produced(chunk, produced.Length())
	}
	// Each subscriber gets its own reference on the backing slab (Dup), so
	// N subscribers independently releasing/consuming their copy drops the
	// refcount exactly N times, matching the N increments taken here.
	for _, s := range subs {
		if err := s.Post(produced.Dup()); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.total += uint64(n)
	p.current = memsys.Null()
	p.mu.Unlock()
	return nil
}

// PostBuffer bypasses the pool and forwards an arbitrary chunk directly to
// every subscriber - used for out-of-band or reference-forwarded data.
func (p *OutputPort) PostBuffer(chunk memsys.BufferChunk) error {
	p.mu.Lock()
	subs := append([]Subscriber(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		if err := s.Post(chunk.Dup()); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.total += uint64(chunk.Elements())
	p.mu.Unlock()
	return nil
}

func (p *OutputPort) PostLabel(l label.Label) {
	p.mu.Lock()
	l = l.ToAbsolute(p.total)
	subs := append([]Subscriber(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		s.PostLabel(l)
	}
}

func (p *OutputPort) PostMessage(m label.Message) {
	p.mu.Lock()
	subs := append([]Subscriber(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		s.PostMessage(m)
	}
}

func (p *OutputPort) TotalElements() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
