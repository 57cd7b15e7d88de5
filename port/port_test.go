/*
 * Copyright (c) 2024, flowrt authors.
 */
package port_test

import (
	"testing"

	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/memsys"
	"github.com/flowmesh/flowrt/port"
)

func mustChunk(t *testing.T, n int) memsys.BufferChunk {
	t.Helper()
	c, err := memsys.NewTyped(dtype.MustNew("uint8"), n)
	if err != nil {
		t.Fatalf("NewTyped: %v", err)
	}
	return c
}

func TestInputPortPostConsumeLabels(t *testing.T) {
	in := port.NewInputPort("in")
	if err := in.Post(mustChunk(t, 4)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	in.PostLabel(label.New("a", nil, 2, 1))

	if in.Elements() != 4 {
		t.Fatalf("Elements() = %d, want 4", in.Elements())
	}
	got := in.Labels()
	if len(got) != 1 || got[0].Index != 2 {
		t.Fatalf("Labels() = %v, want one label at relative index 2", got)
	}

	if err := in.Consume(2); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if in.Elements() != 2 {
		t.Fatalf("Elements() after Consume(2) = %d, want 2", in.Elements())
	}
	// The consumed label's absolute index (2) is now behind the new buffer
	// start (2), so it's no longer visible as a relative label.
	if got := in.Labels(); len(got) != 0 {
		t.Fatalf("Labels() after Consume = %v, want none", got)
	}
	if in.TotalElements() != 2 {
		t.Fatalf("TotalElements() = %d, want 2", in.TotalElements())
	}
}

// TestInputPortNotifiesOnEveryPost checks the spec §4.H step 5 wakeup hook:
// SetNotify's callback fires once per Post/PostLabel/PostMessage, which is
// what actor.BlockActor relies on to re-signal a drained downstream actor's
// pool instead of waiting for an unrelated signal.
func TestInputPortNotifiesOnEveryPost(t *testing.T) {
	in := port.NewInputPort("in")
	calls := 0
	in.SetNotify(func() { calls++ })

	if err := in.Post(mustChunk(t, 2)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	in.PostLabel(label.New("a", nil, 0, 1))
	in.PostMessage(label.NewMessage(1))

	if calls != 3 {
		t.Fatalf("notify called %d times, want 3", calls)
	}

	in.SetNotify(nil)
	if err := in.Post(mustChunk(t, 2)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if calls != 3 {
		t.Fatalf("notify called after SetNotify(nil): %d, want 3", calls)
	}
}

// TestConsumeReportsToSourceManager checks spec §4.H step 4: Consume reports
// the consumed byte span back to the upstream OutputPort's BufferManager via
// SetSourceManager, which is how a Circular manager's read cursor ever
// advances.
func TestConsumeReportsToSourceManager(t *testing.T) {
	mgr, err := memsys.NewGeneric(dtype.MustNew("uint8"), 64, 2)
	if err != nil {
		t.Fatalf("NewGeneric: %v", err)
	}
	out := port.NewOutputPort("out", mgr)
	in := port.NewInputPort("in")
	out.Subscribe(in)

	if _, err := out.Buffer(); err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if err := out.Produce(8); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if mgr.Empty() {
		t.Fatal("expected manager to report in-flight data after Produce")
	}
	if err := in.Consume(8); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !mgr.Empty() {
		t.Fatal("expected manager to report empty after Consume reported the full span back")
	}
}

func TestInputPortReserveGatesReady(t *testing.T) {
	in := port.NewInputPort("in")
	in.SetReserve(4)
	if in.Ready() {
		t.Fatal("expected Ready() to be false with no buffered data")
	}
	if err := in.Post(mustChunk(t, 4)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !in.Ready() {
		t.Fatal("expected Ready() to be true once reserve is met")
	}
}

func TestInputPortMessageFIFO(t *testing.T) {
	in := port.NewInputPort("in")
	if in.HasMessage() {
		t.Fatal("expected no messages initially")
	}
	in.PostMessage(label.NewMessage(1))
	in.PostMessage(label.NewMessage(2))

	m1, ok := in.PopMessage()
	if !ok || m1.Value != 1 {
		t.Fatalf("first PopMessage = %v, %v, want 1, true", m1, ok)
	}
	m2, ok := in.PopMessage()
	if !ok || m2.Value != 2 {
		t.Fatalf("second PopMessage = %v, %v, want 2, true", m2, ok)
	}
	if _, ok := in.PopMessage(); ok {
		t.Fatal("expected no third message")
	}
}

// recordingSubscriber keeps the last chunk posted to it so fan-out reference
// counting can be checked directly.
type recordingSubscriber struct {
	got memsys.BufferChunk
}

func (r *recordingSubscriber) Post(c memsys.BufferChunk) error {
	r.got = c
	return nil
}
func (r *recordingSubscriber) PostLabel(label.Label)     {}
func (r *recordingSubscriber) PostMessage(label.Message) {}

// TestProduceFanOutGivesEachSubscriberItsOwnReference checks that N
// subscribers each get an independently-refcounted Dup of a produced chunk,
// so each subscriber's own Release drops the count exactly once rather than
// the shared chunk being released N times over.
func TestProduceFanOutGivesEachSubscriberItsOwnReference(t *testing.T) {
	mgr, err := memsys.NewGeneric(dtype.MustNew("uint8"), 16, 2)
	if err != nil {
		t.Fatalf("NewGeneric: %v", err)
	}
	out := port.NewOutputPort("out", mgr)

	var subs []*recordingSubscriber
	for i := 0; i < 3; i++ {
		s := &recordingSubscriber{}
		subs = append(subs, s)
		out.Subscribe(s)
	}

	front, err := out.Buffer()
	if err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if !front.IsValid() {
		t.Fatal("expected a valid front buffer")
	}
	if err := out.Produce(4); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if out.TotalElements() != 4 {
		t.Fatalf("TotalElements() = %d, want 4", out.TotalElements())
	}

	for i, s := range subs {
		if !s.got.IsValid() {
			t.Fatalf("subscriber %d got no chunk", i)
		}
		if s.got.Elements() != 4 {
			t.Fatalf("subscriber %d chunk elements = %d, want 4", i, s.got.Elements())
		}
	}
	// The slab's refcount starts at 1 (construction) and each subscriber
	// gets its own Dup on top of that - so each subscriber's own Release
	// drops exactly the reference it was given, and the slab is free again
	// (UseCount back to 1) only once every subscriber has released.
	want := len(subs) + 1
	if subs[0].got.UseCount() != want {
		t.Fatalf("UseCount() = %d, want %d (pool + one ref per subscriber)", subs[0].got.UseCount(), want)
	}
	subs[0].got.Release()
	if subs[1].got.UseCount() != want-1 {
		t.Fatalf("UseCount() after one Release = %d, want %d", subs[1].got.UseCount(), want-1)
	}
}

func TestOutputPortUnsubscribeStopsDelivery(t *testing.T) {
	out := port.NewOutputPort("out", nil)
	s := &recordingSubscriber{}
	out.Subscribe(s)
	out.Unsubscribe(s)

	chunk := mustChunk(t, 2)
	if err := out.PostBuffer(chunk); err != nil {
		t.Fatalf("PostBuffer: %v", err)
	}
	if s.got.IsValid() {
		t.Fatal("expected no delivery after Unsubscribe")
	}
}

func TestOutputPortPostLabelTranslatesToAbsolute(t *testing.T) {
	out := port.NewOutputPort("out", nil)
	in := port.NewInputPort("in")
	out.Subscribe(in)

	if err := out.PostBuffer(mustChunk(t, 5)); err != nil {
		t.Fatalf("PostBuffer: %v", err)
	}
	// out.total is now 5; a label posted with relative index 1 becomes
	// absolute index 6 on the subscriber side.
	out.PostLabel(label.New("x", nil, 1, 1))

	if err := in.Post(mustChunk(t, 2)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	// The label (absolute index 6) falls outside in's current buffer window
	// ([0, 7) after the two posts) only if bufStart tracking is wrong; here
	// bufStart is 0 (first Post set it), so index 6 is within [0, 7).
	got := in.Labels()
	if len(got) != 1 || got[0].Index != 6 {
		t.Fatalf("Labels() = %v, want one label at relative index 6", got)
	}
}
