/*
 * Copyright (c) 2024, flowrt authors.
 */
package block

import (
	"sync"

	"github.com/flowmesh/flowrt/label"
	"github.com/flowmesh/flowrt/port"
)

// SignalTable name-keys a block's signals (outbound events, realized as
// dedicated output ports carrying only messages) and slots (inbound events,
// realized as messages arriving on a dedicated input port) - spec §4.G.
type SignalTable struct {
	mu     sync.RWMutex
	sigs   map[string]*port.OutputPort
	slots  map[string]*port.InputPort
}

func NewSignalTable() *SignalTable {
	return &SignalTable{sigs: map[string]*port.OutputPort{}, slots: map[string]*port.InputPort{}}
}

// RegisterSignal wires name to a dedicated output port that only ever
// carries PostMessage traffic.
func (t *SignalTable) RegisterSignal(name string, out *port.OutputPort) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sigs[name] = out
}

// RegisterSlot wires name to a dedicated input port that only ever receives
// messages (a slot's "call" arrives as label.Message on this port).
func (t *SignalTable) RegisterSlot(name string, in *port.InputPort) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[name] = in
}

// Emit posts v as a message on the named signal's output port; a no-op if
// name isn't registered (emitting to an unconnected signal is not an error -
// it behaves exactly like an output port with zero subscribers).
func (t *SignalTable) Emit(name string, v any) {
	t.mu.RLock()
	out, ok := t.sigs[name]
	t.mu.RUnlock()
	if ok {
		out.PostMessage(label.NewMessage(v))
	}
}

// Slot returns the input port backing the named slot, or nil.
func (t *SignalTable) Slot(name string) *port.InputPort {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[name]
}

func (t *SignalTable) SignalNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.sigs))
	for n := range t.sigs {
		out = append(out, n)
	}
	return out
}

func (t *SignalTable) SlotNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.slots))
	for n := range t.slots {
		out = append(out, n)
	}
	return out
}
