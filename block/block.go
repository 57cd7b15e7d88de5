// Package block defines the Block contract (spec §4.G): a process-unique
// computational unit that declares input/output ports and dtypes, may
// register named calls and signals/slots, and implements the work/activate/
// deactivate/propagateLabels capability set. Concrete DSP blocks (FIR,
// framers, sources, sinks) are out of scope per spec §1 - this package is
// the interface they implement plus the embeddable Base that gives a
// concrete block its port/call/signal bookkeeping for free, the way the
// teacher's core.LOM gives every object-metadata caller a common base
// rather than forcing a deep type hierarchy (spec §9 "polymorphic blocks").
/*
 * Copyright (c) 2024, flowrt authors.
 */
package block

import (
	"sync"

	"github.com/teris-io/shortid"

	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
	"github.com/flowmesh/flowrt/memsys"
	"github.com/flowmesh/flowrt/port"
)

// Block is the trait every computational node implements. The runtime
// (actor.BlockActor) drives it uniformly through this interface - there is
// no deeper class hierarchy (spec §9).
type Block interface {
	UID() string

	Input(i int) *port.InputPort
	Output(i int) *port.OutputPort
	NumInputs() int
	NumOutputs() int

	// Work is invoked by the actor when the scheduler deems inputs and
	// outputs ready. It must not block on external I/O; a block that needs
	// more input calls Input(i).SetReserve and returns.
	Work() error

	// Activate/Deactivate bracket the running period (spec §4.G); resetting
	// internal DSP state belongs in Activate.
	Activate() error
	Deactivate() error

	// PropagateLabels is called by the actor around Work to forward labels
	// the block didn't consume manually. The default (Base.PropagateLabels)
	// forwards every pending label on in to every output, rescaled by the
	// port's resampling ratio if one was set.
	PropagateLabels(in *port.InputPort)

	// InputBufferMode/OutputBufferMode let a block declare CUSTOM buffer
	// provisioning for one of its ports (spec §4.D negotiation); the
	// default (Base) always returns Abdicate.
	InputBufferMode(portIndex int, domain string) (memsys.Mode, memsys.BufferManager)
	OutputBufferMode(portIndex int, domain string) (memsys.Mode, memsys.BufferManager)

	// OutputDomain names the domain of output i; unshared (buffer-private)
	// unless overridden, default = UID() (spec §3 Block).
	OutputDomain(i int) string
}

// Base is embedded by concrete blocks to get UID generation, port
// bookkeeping, default label propagation, default Abdicate buffer
// provisioning, and the registered-call/signal-slot tables for free.
type Base struct {
	mu sync.Mutex

	uid     string
	inputs  []*port.InputPort
	outputs []*port.OutputPort

	// inputRatio[i] = (L, M) resampling ratio applied by the default
	// PropagateLabels when forwarding labels from input i (spec §4.E).
	inputRatio map[int][2]uint64

	outputDomain map[int]string

	calls  *CallRegistry
	sigs   *SignalTable
}

// NewBase constructs a Base with a process-unique uid (teris-io/shortid,
// same generator family the teacher uses for xaction/flow identifiers) and
// the given input/output port names.
func NewBase(inputNames, outputNames []string) *Base {
	b := &Base{
		uid:          mustUID(),
		inputRatio:   map[int][2]uint64{},
		outputDomain: map[int]string{},
		calls:        NewCallRegistry(),
		sigs:         NewSignalTable(),
	}
	for _, n := range inputNames {
		b.inputs = append(b.inputs, port.NewInputPort(n))
	}
	for i, n := range outputNames {
		b.outputs = append(b.outputs, port.NewOutputPort(n, nil))
		b.outputDomain[i] = b.uid
	}
	return b
}

func mustUID() string {
	id, err := shortid.Generate()
	cos.AssertNoErr(err)
	return id
}

func (b *Base) UID() string { return b.uid }

func (b *Base) NumInputs() int  { return len(b.inputs) }
func (b *Base) NumOutputs() int { return len(b.outputs) }

func (b *Base) Input(i int) *port.InputPort   { return b.inputs[i] }
func (b *Base) Output(i int) *port.OutputPort { return b.outputs[i] }

// SetResampleRatio records the (interpolation, decimation) ratio the default
// PropagateLabels uses to rescale labels arriving on input i (spec §4.E);
// blocks that don't resample never call this and ratio defaults to 1/1.
func (b *Base) SetResampleRatio(inputIndex int, interpolation, decimation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputRatio[inputIndex] = [2]uint64{interpolation, decimation}
}

// SetOutputDomain overrides output i's domain away from the uid default,
// marking its buffers as shared with other blocks in the same domain.
func (b *Base) SetOutputDomain(i int, domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputDomain[i] = domain
}

func (b *Base) OutputDomain(i int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.outputDomain[i]; ok {
		return d
	}
	return b.uid
}

// PropagateLabels is the default policy (spec §4.E): for each pending label
// on in, rescale by in's resample ratio (1/1 if none was set) and post it on
// every output port. A block with custom framing (a preamble inserter, a
// burst-boundary-aware filter) overrides this on its embedding type.
func (b *Base) PropagateLabels(in *port.InputPort) {
	idx := b.indexOfInput(in)
	ratio := [2]uint64{1, 1}
	if idx >= 0 {
		b.mu.Lock()
		if r, ok := b.inputRatio[idx]; ok {
			ratio = r
		}
		b.mu.Unlock()
	}
	for _, l := range in.Labels() {
		adj := l.ToAdjusted(ratio[0], ratio[1])
		for _, out := range b.outputs {
			out.PostLabel(adj)
		}
	}
}

func (b *Base) indexOfInput(in *port.InputPort) int {
	for i, p := range b.inputs {
		if p == in {
			return i
		}
	}
	return -1
}

// InputBufferMode/OutputBufferMode default to Abdicate: let the negotiation
// in memsys.Negotiate install a generic pool or the peer's CUSTOM manager.
func (*Base) InputBufferMode(int, string) (memsys.Mode, memsys.BufferManager) {
	return memsys.Abdicate, nil
}

func (*Base) OutputBufferMode(int, string) (memsys.Mode, memsys.BufferManager) {
	return memsys.Abdicate, nil
}

// Calls returns the block's registered-call table (spec §4.G).
func (b *Base) Calls() *CallRegistry { return b.calls }

// Signals returns the block's signal/slot table (spec §4.G).
func (b *Base) Signals() *SignalTable { return b.sigs }

// DTypeOf is a convenience used by concrete blocks to validate a configured
// dtype string at construction time (fails fast with ErrUnknownType rather
// than at first work() call).
func DTypeOf(markup string) (dtype.DType, error) { return dtype.New(markup) }
