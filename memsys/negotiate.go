/*
 * Copyright (c) 2024, flowrt authors.
 */
package memsys

import (
	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
)

// Mode is a port's declared buffer-provisioning stance for one edge.
type Mode int

const (
	Abdicate Mode = iota // let the other side (or a generic pool) provide
	CustomMode
)

// Provider is implemented by whichever side of an edge wants to supply its
// own BufferManager instead of taking the generic default.
type Provider interface {
	Mode() Mode
	Manager() BufferManager
}

// Negotiate runs the per-output-edge provider negotiation (spec §4.D): the
// source's own stance wins outright; failing that, exactly one CUSTOM
// destination (with every other destination ABDICATE) wins; failing that,
// a generic pool is installed; more than one CUSTOM destination on the same
// source is a topology bug (the bridge-insertion pass should have split
// them apart) and fails with ErrDomainError.
func Negotiate(portName string, source Provider, destinations []Provider, dt dtype.DType, slabSize, numSlabs int) (BufferManager, error) {
	if source.Mode() == CustomMode {
		return source.Manager(), nil
	}

	customCount, customMgr := 0, BufferManager(nil)
	for _, d := range destinations {
		if d.Mode() == CustomMode {
			customCount++
			customMgr = d.Manager()
		}
	}
	switch {
	case customCount > 1:
		return nil, cos.NewErrDomain(portName)
	case customCount == 1:
		return customMgr, nil
	default:
		g, err := NewGeneric(dt, slabSize, numSlabs)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}
