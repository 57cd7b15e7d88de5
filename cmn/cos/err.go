// Package cos provides common low-level types, errors and utilities shared
// across every flowrt package.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"

	"github.com/flowmesh/flowrt/cmn/debug"
	"github.com/flowmesh/flowrt/cmn/nlog"
)

// Error taxonomy, spec §7. Each kind is its own type so a caller can
// discriminate with errors.As; none carry a stack trace.
type (
	// ErrUnknownType: DType constructed from an unrecognized alias.
	ErrUnknownType struct{ Alias string }

	// ErrInvalidArgument: a block setter rejected a value (empty taps,
	// zero decimation, ...); state is left unchanged.
	ErrInvalidArgument struct{ What, Reason string }

	// ErrSharedBufferAllocFailed: circular allocator exhausted its
	// retries, or a plain heap allocation failed.
	ErrSharedBufferAllocFailed struct {
		Bytes    int
		Circular bool
		Retries  int
	}

	// ErrBufferConvertError: unsupported dtype conversion pair, or an
	// undersized destination buffer.
	ErrBufferConvertError struct{ From, To, Reason string }

	// ErrNotASubset: sub-range SharedBuffer construction fell outside its
	// parent's bounds.
	ErrNotASubset struct{ Addr, Length, ParentAddr, ParentLength uintptr }

	// ErrDataFormatError: malformed Topology JSON; Path is a JSON-pointer-
	// like locator of the offending field.
	ErrDataFormatError struct{ Path, Reason string }

	// ErrDomainError: more than one CUSTOM-mode destination negotiated on
	// a single source output.
	ErrDomainError struct{ Port string }

	// ErrTopologyConnect aggregates every per-block, per-action failure
	// observed during a single commit() so the caller sees all of them.
	ErrTopologyConnect struct{ Errs *Errs }

	// ErrAssertionViolation: test-harness invariant mismatch.
	ErrAssertionViolation struct{ Msg string }
)

func NewErrUnknownType(alias string) *ErrUnknownType { return &ErrUnknownType{Alias: alias} }
func (e *ErrUnknownType) Error() string              { return fmt.Sprintf("unknown dtype alias %q", e.Alias) }

func NewErrInvalidArgument(what, reason string) *ErrInvalidArgument {
	return &ErrInvalidArgument{What: what, Reason: reason}
}
func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument for %s: %s", e.What, e.Reason)
}

func (e *ErrSharedBufferAllocFailed) Error() string {
	kind := "linear"
	if e.Circular {
		kind = "circular"
	}
	return fmt.Sprintf("%s alloc of %d bytes failed after %d retries", kind, e.Bytes, e.Retries)
}

func NewErrBufferConvert(from, to, reason string) *ErrBufferConvertError {
	return &ErrBufferConvertError{From: from, To: to, Reason: reason}
}
func (e *ErrBufferConvertError) Error() string {
	return fmt.Sprintf("cannot convert %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *ErrNotASubset) Error() string {
	return fmt.Sprintf("sub-range [%d,+%d) not contained in parent [%d,+%d)",
		e.Addr, e.Length, e.ParentAddr, e.ParentLength)
}

func NewErrDataFormat(path, reason string) *ErrDataFormatError {
	return &ErrDataFormatError{Path: path, Reason: reason}
}
func (e *ErrDataFormatError) Error() string {
	return fmt.Sprintf("malformed topology json at %q: %s", e.Path, e.Reason)
}

func NewErrDomain(port string) *ErrDomainError { return &ErrDomainError{Port: port} }
func (e *ErrDomainError) Error() string {
	return fmt.Sprintf("port %s: multiple CUSTOM destinations on one source (missing bridge)", e.Port)
}

func NewErrTopologyConnect(errs *Errs) *ErrTopologyConnect { return &ErrTopologyConnect{Errs: errs} }
func (e *ErrTopologyConnect) Error() string {
	cnt, err := e.Errs.JoinErr()
	if cnt == 0 {
		return "topology connect failed"
	}
	return fmt.Sprintf("topology connect (%d failure%s): %v", cnt, Plural(cnt), err)
}

func (e *ErrAssertionViolation) Error() string { return "assertion violation: " + e.Msg }

func IsErrUnknownType(err error) bool {
	var e *ErrUnknownType
	return errors.As(err, &e)
}
func IsErrDomain(err error) bool {
	var e *ErrDomainError
	return errors.As(err, &e)
}
func IsErrBufferConvert(err error) bool {
	var e *ErrBufferConvertError
	return errors.As(err, &e)
}
func IsErrNotASubset(err error) bool {
	var e *ErrNotASubset
	return errors.As(err, &e)
}
func IsErrAllocFailed(err error) bool {
	var e *ErrSharedBufferAllocFailed
	return errors.As(err, &e)
}

//
// Errs - bounded error accumulator; used by topology.commit() to gather
// every per-actor failure before raising one ErrTopologyConnect (teacher's
// exact "collect, don't short-circuit" pattern from cmn/cos).
//

type Errs struct {
	errs []error
	cnt  int64
	mu   sync.Mutex
}

const maxErrs = 16

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() (s string) {
	cnt, err := e.JoinErr()
	if cnt == 0 || err == nil {
		return
	}
	return err.Error()
}

//
// hard, always-on assertions for programmer errors (distinct from
// cmn/debug, which compiles out of release builds)
//

func Assert(cond bool, args ...any) {
	if !cond {
		panic(&ErrAssertionViolation{Msg: fmt.Sprint(args...)})
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(&ErrAssertionViolation{Msg: err.Error()})
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(&ErrAssertionViolation{Msg: fmt.Sprintf(format, args...)})
	}
}

//
// Abnormal termination - mirrors the teacher's Exitf/ExitLogf pair.
//

const fatalPrefix = "FATAL ERROR: "

func Exitf(f string, a ...any) {
	_exit(fmt.Sprintf(fatalPrefix+f, a...))
}

func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	_exit(msg)
}

func _exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
