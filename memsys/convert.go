/*
 * Copyright (c) 2024, flowrt authors.
 */
package memsys

import (
	"math"

	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
)

// scalarCodec reads/writes a single real scalar as float64 at a byte offset of a
// given dtype - not the fastest possible conversion path, but it collapses
// the Nx N conversion matrix the original hand-unrolls in C++ templates
// into one dispatch table keyed by dtype name, which is the idiomatic Go
// way to write this (cf. encoding/binary's uniform get/put over widths).
type scalarCodec struct {
	read  func(b []byte) float64
	write func(b []byte, v float64)
}

var codecs = map[string]scalarCodec{
	"int8":    {func(b []byte) float64 { return float64(int8(b[0])) }, func(b []byte, v float64) { b[0] = byte(int8(v)) }},
	"uint8":   {func(b []byte) float64 { return float64(b[0]) }, func(b []byte, v float64) { b[0] = byte(uint8(v)) }},
	"int16":   {func(b []byte) float64 { return float64(int16(le16(b))) }, func(b []byte, v float64) { putLE16(b, uint16(int16(v))) }},
	"uint16":  {func(b []byte) float64 { return float64(le16(b)) }, func(b []byte, v float64) { putLE16(b, uint16(v)) }},
	"int32":   {func(b []byte) float64 { return float64(int32(le32(b))) }, func(b []byte, v float64) { putLE32(b, uint32(int32(v))) }},
	"uint32":  {func(b []byte) float64 { return float64(le32(b)) }, func(b []byte, v float64) { putLE32(b, uint32(v)) }},
	"int64":   {func(b []byte) float64 { return float64(int64(le64(b))) }, func(b []byte, v float64) { putLE64(b, uint64(int64(v))) }},
	"uint64":  {func(b []byte) float64 { return float64(le64(b)) }, func(b []byte, v float64) { putLE64(b, uint64(v)) }},
	"float32": {func(b []byte) float64 { return float64(math.Float32frombits(le32(b))) }, func(b []byte, v float64) { putLE32(b, math.Float32bits(float32(v))) }},
	"float64": {func(b []byte) float64 { return math.Float64frombits(le64(b)) }, func(b []byte, v float64) { putLE64(b, math.Float64bits(v)) }},
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func realName(d dtype.DType) string {
	n := d.Name()
	const prefix = "complex_"
	if len(n) > len(prefix) && n[:len(prefix)] == prefix {
		return n[len(prefix):]
	}
	return n
}

// Convert produces a new BufferChunk whose contents are the element-wise
// conversion of c's elements to target, converting numElems elements (or
// all of them, when numElems is 0). Integer narrowing wraps (two's
// complement truncation, matching a plain Go numeric conversion);
// float-to-integer rounds to nearest, ties to even; complex-to-real takes
// the real part; real-to-complex sets the imaginary part to zero.
func (c BufferChunk) Convert(target dtype.DType, numElems int) (BufferChunk, error) {
	if numElems == 0 {
		numElems = c.Elements()
	}
	if numElems > c.Elements() {
		return Null(), cos.NewErrBufferConvert(c.dtype.Name(), target.Name(), "not enough input elements")
	}
	out, err := NewTyped(target, numElems)
	if err != nil {
		return Null(), err
	}
	if _, err := c.convertInto(out, numElems); err != nil {
		return Null(), err
	}
	return out, nil
}

// ConvertInto converts into a caller-provided, pre-sized output chunk
// (BufferChunk::convert(outBuff, numElems) in the original) and returns the
// number of elements actually written.
func (c BufferChunk) ConvertInto(out BufferChunk, numElems int) (int, error) {
	if numElems == 0 {
		numElems = c.Elements()
	}
	return c.convertInto(out, numElems)
}

func (c BufferChunk) convertInto(out BufferChunk, numElems int) (int, error) {
	if c.dtype.IsComplex() && out.dtype.IsComplex() {
		return 0, cos.NewErrBufferConvert(c.dtype.Name(), out.dtype.Name(),
			"use ConvertComplex for complex-to-complex conversion")
	}
	srcCodec, ok := codecs[realName(c.dtype)]
	if !ok {
		return 0, cos.NewErrBufferConvert(c.dtype.Name(), out.dtype.Name(), "unsupported source dtype")
	}
	dstCodec, ok := codecs[realName(out.dtype)]
	if !ok {
		return 0, cos.NewErrBufferConvert(c.dtype.Name(), out.dtype.Name(), "unsupported destination dtype")
	}
	if out.Elements() < numElems {
		return 0, cos.NewErrBufferConvert(c.dtype.Name(), out.dtype.Name(), "output buffer too small")
	}

	// A complex endpoint's element is two scalars back to back; a real
	// endpoint's is one. convert reads/writes only the real component -
	// complex-to-real takes the real part, real-to-complex sets imag=0
	// (see ConvertComplexInto for splitting both components out at once).
	srcStride := c.dtype.Size()
	if c.dtype.IsComplex() {
		srcStride = c.dtype.ElemSize()
	}
	dstScalarSz, dstStride := out.dtype.Size(), out.dtype.Size()
	if out.dtype.IsComplex() {
		dstScalarSz = out.dtype.ElemSize() / 2
		dstStride = out.dtype.ElemSize()
	}
	src, dst := c.Bytes(), out.Bytes()
	for i := 0; i < numElems; i++ {
		v := srcCodec.read(src[i*srcStride:])
		if out.dtype.IsInteger() && c.dtype.IsFloat() {
			v = math.RoundToEven(v)
		}
		dstCodec.write(dst[i*dstStride:], v)
		if out.dtype.IsComplex() {
			dstCodec.write(dst[i*dstStride+dstScalarSz:], 0)
		}
	}
	return numElems, nil
}

// ConvertComplex splits a complex-typed chunk into two real chunks (one per
// component). When c is already real, the imaginary output is filled with
// zeros.
func (c BufferChunk) ConvertComplex(target dtype.DType, numElems int) (re, im BufferChunk, err error) {
	if numElems == 0 {
		numElems = c.Elements()
	}
	re, err = NewTyped(target, numElems)
	if err != nil {
		return Null(), Null(), err
	}
	im, err = NewTyped(target, numElems)
	if err != nil {
		return Null(), Null(), err
	}
	if _, _, err := c.ConvertComplexInto(re, im, numElems); err != nil {
		return Null(), Null(), err
	}
	return re, im, nil
}

// ConvertComplexInto is the caller-supplied-output variant of ConvertComplex.
func (c BufferChunk) ConvertComplexInto(outRe, outIm BufferChunk, numElems int) (int, int, error) {
	if numElems == 0 {
		numElems = c.Elements()
	}
	scalarName := realName(c.dtype)
	srcCodec, ok := codecs[scalarName]
	if !ok {
		return 0, 0, cos.NewErrBufferConvert(c.dtype.Name(), outRe.dtype.Name(), "unsupported source dtype")
	}
	reCodec, ok := codecs[outRe.dtype.Name()]
	if !ok {
		return 0, 0, cos.NewErrBufferConvert(c.dtype.Name(), outRe.dtype.Name(), "unsupported real output dtype")
	}
	imCodec, ok := codecs[outIm.dtype.Name()]
	if !ok {
		return 0, 0, cos.NewErrBufferConvert(c.dtype.Name(), outIm.dtype.Name(), "unsupported imag output dtype")
	}
	if outRe.Elements() < numElems || outIm.Elements() < numElems {
		return 0, 0, cos.NewErrBufferConvert(c.dtype.Name(), outRe.dtype.Name(), "output buffer too small")
	}

	scalarSz := c.dtype.ElemSize() / 2
	if !c.dtype.IsComplex() {
		scalarSz = c.dtype.ElemSize()
	}
	src := c.Bytes()
	dstRe, dstIm := outRe.Bytes(), outIm.Bytes()
	reSz, imSz := outRe.dtype.Size(), outIm.dtype.Size()

	for i := 0; i < numElems; i++ {
		if c.dtype.IsComplex() {
			base := i * scalarSz * 2
			reCodec.write(dstRe[i*reSz:], srcCodec.read(src[base:]))
			imCodec.write(dstIm[i*imSz:], srcCodec.read(src[base+scalarSz:]))
		} else {
			base := i * scalarSz
			reCodec.write(dstRe[i*reSz:], srcCodec.read(src[base:]))
			imCodec.write(dstIm[i*imSz:], 0)
		}
	}
	return numElems, numElems, nil
}
