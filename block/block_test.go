/*
 * Copyright (c) 2024, flowrt authors.
 */
package block_test

import (
	"testing"

	"github.com/flowmesh/flowrt/block"
	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/memsys"
)

type passThrough struct {
	*block.Base
}

func newPassThrough() *passThrough {
	return &passThrough{Base: block.NewBase([]string{"in"}, []string{"out"})}
}

func (p *passThrough) Work() error { return nil }
func (p *passThrough) Activate() error { return nil }
func (p *passThrough) Deactivate() error { return nil }

func TestBaseAssignsUniqueUIDs(t *testing.T) {
	a := newPassThrough()
	b := newPassThrough()
	if a.UID() == "" {
		t.Fatal("UID() is empty")
	}
	if a.UID() == b.UID() {
		t.Fatal("two blocks share a UID")
	}
}

func TestBasePortAccessors(t *testing.T) {
	p := newPassThrough()
	if p.NumInputs() != 1 || p.NumOutputs() != 1 {
		t.Fatalf("NumInputs/NumOutputs = %d/%d, want 1/1", p.NumInputs(), p.NumOutputs())
	}
	if p.Input(0).Name() != "in" || p.Output(0).Name() != "out" {
		t.Fatal("port names not threaded through from NewBase")
	}
}

func TestDefaultOutputDomainIsUID(t *testing.T) {
	p := newPassThrough()
	if p.OutputDomain(0) != p.UID() {
		t.Fatalf("OutputDomain(0) = %q, want block uid %q", p.OutputDomain(0), p.UID())
	}
	p.SetOutputDomain(0, "shared")
	if p.OutputDomain(0) != "shared" {
		t.Fatal("SetOutputDomain did not take effect")
	}
}

func TestPropagateLabelsRescalesByRatio(t *testing.T) {
	p := newPassThrough()
	p.SetResampleRatio(0, 2, 1) // interpolate by 2

	sub := newPassThrough()
	p.Output(0).Subscribe(sub.Input(0))

	// sub's input needs a buffer in range for Labels() to surface anything
	// (a label is only visible once its absolute index falls inside the
	// accumulated buffer's [bufStart, bufStart+len) window).
	chunk, err := memsys.NewTyped(dtype.MustNew("uint8"), 10)
	if err != nil {
		t.Fatalf("NewTyped: %v", err)
	}
	if err := sub.Input(0).Post(chunk); err != nil {
		t.Fatalf("Post: %v", err)
	}
	// p's own input needs one too: PropagateLabels forwards only the labels
	// that p.Input(0).Labels() surfaces.
	inChunk, err := memsys.NewTyped(dtype.MustNew("uint8"), 10)
	if err != nil {
		t.Fatalf("NewTyped: %v", err)
	}
	if err := p.Input(0).Post(inChunk); err != nil {
		t.Fatalf("Post: %v", err)
	}

	p.Input(0).PostLabel(label.New("y", nil, 3, 1))
	p.PropagateLabels(p.Input(0))

	got := sub.Input(0).Labels()
	if len(got) != 1 {
		t.Fatalf("expected exactly one propagated label, got %d", len(got))
	}
	if got[0].Index != 6 {
		t.Fatalf("propagated label index = %d, want 6 (3 * 2/1)", got[0].Index)
	}
}

func TestCallRegistryInvoke(t *testing.T) {
	p := newPassThrough()
	p.Calls().Register("add", func(a, b int) int { return a + b })

	out, err := p.Calls().Invoke("add", 2, 3)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(out) != 1 || out[0].(int) != 5 {
		t.Fatalf("Invoke result = %v, want [5]", out)
	}

	if _, err := p.Calls().Invoke("missing"); err == nil {
		t.Fatal("expected error invoking unregistered call")
	}
}

func TestSignalTableEmitReachesSlot(t *testing.T) {
	src := newPassThrough()
	sub := newPassThrough()

	sigs := block.NewSignalTable()
	sigs.RegisterSignal("done", src.Output(0))
	sigs.RegisterSlot("onDone", sub.Input(0))
	src.Output(0).Subscribe(sub.Input(0))

	sigs.Emit("done", "finished")

	m, ok := sub.Input(0).PopMessage()
	if !ok {
		t.Fatal("expected a message delivered via signal emit")
	}
	if m.Value != "finished" {
		t.Fatalf("message value = %v, want \"finished\"", m.Value)
	}
	if sigs.Slot("onDone") != sub.Input(0) {
		t.Fatal("Slot(\"onDone\") did not return the registered input port")
	}
}
