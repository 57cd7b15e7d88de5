/*
 * Copyright (c) 2024, flowrt authors.
 */
package block

import (
	"reflect"
	"sync"

	"github.com/flowmesh/flowrt/cmn/cos"
)

// CallRegistry is a string-keyed table of typed function pointers invocable
// opaquely by name with typed arguments (spec §4.G), grounded on
// PothosCore's CallRegistry.hpp/Managed::Class.cpp reflection-backed
// invoker: a topology JSON `calls: [[name, arg...]]` entry resolves a block
// method without the block package needing to know about JSON or the
// expression evaluator.
type CallRegistry struct {
	mu    sync.RWMutex
	funcs map[string]reflect.Value
}

func NewCallRegistry() *CallRegistry { return &CallRegistry{funcs: map[string]reflect.Value{}} }

// Register stores fn (any func value) under name. Re-registering the same
// name overwrites the previous entry.
func (r *CallRegistry) Register(name string, fn any) {
	v := reflect.ValueOf(fn)
	cos.Assert(v.Kind() == reflect.Func, "block.Register: not a func:", name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = v
}

// Names lists every registered call name.
func (r *CallRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		out = append(out, n)
	}
	return out
}

// Invoke calls the named registered function with args, marshalling each
// arg to the function's declared parameter type where a direct assignment
// isn't already possible (the typed-Object marshalling spec §4.G refers
// to), and returns its results as a slice.
func (r *CallRegistry) Invoke(name string, args ...any) ([]any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, cos.NewErrInvalidArgument("CallRegistry.Invoke", "no such registered call: "+name)
	}
	t := fn.Type()
	if t.IsVariadic() {
		if len(args) < t.NumIn()-1 {
			return nil, cos.NewErrInvalidArgument("CallRegistry.Invoke", name+": too few arguments")
		}
	} else if len(args) != t.NumIn() {
		return nil, cos.NewErrInvalidArgument("CallRegistry.Invoke", name+": argument count mismatch")
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := t.In(i)
		if t.IsVariadic() && i >= t.NumIn()-1 {
			pt = t.In(t.NumIn() - 1).Elem()
		}
		in[i] = coerce(a, pt)
	}
	out := fn.Call(in)
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

// coerce converts a loosely-typed argument (as it would arrive from a JSON
// topology's expression evaluator, spec §6/§9) to the function's declared
// parameter type, handling the common numeric-widening cases so callers
// needn't hand-cast every int/float literal.
func coerce(a any, target reflect.Type) reflect.Value {
	v := reflect.ValueOf(a)
	if !v.IsValid() {
		return reflect.Zero(target)
	}
	if v.Type() == target {
		return v
	}
	if v.Type().ConvertibleTo(target) &&
		(v.Kind() >= reflect.Int && v.Kind() <= reflect.Float64 ||
			target.Kind() >= reflect.Int && target.Kind() <= reflect.Float64) {
		return v.Convert(target)
	}
	return v
}
