// Package dtype identifies the scalar element carried by a buffer: its
// signedness, whether it's floating point or complex, its width in bytes,
// and (for vector/custom element types) a dimension count. Grounded on
// Pothos::DType's alias table and bitfield element-type encoding.
/*
 * Copyright (c) 2024, flowrt authors.
 */
package dtype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/flowmesh/flowrt/cmn/cos"
)

// elemType bitfields, mirroring the element-type encoding grounded on
// original_source's DType.cpp: category bits (custom/signed/integer/float/
// complex) packed with a width code in the high bits.
type elemType uint32

const (
	bitCustom  elemType = 1 << 0
	bitSigned  elemType = 1 << 1
	bitInteger elemType = 1 << 2
	bitFloat   elemType = 1 << 3
	bitComplex elemType = 1 << 4

	bytes1 elemType = 0 << 5
	bytes2 elemType = 1 << 5
	bytes4 elemType = 2 << 5
	bytes8 elemType = 3 << 5
)

const (
	Empty  elemType = 0
	Custom          = bitCustom

	Int8  = bitSigned | bitInteger | bytes1
	UInt8 = bitInteger | bytes1

	Int16  = bitSigned | bitInteger | bytes2
	UInt16 = bitInteger | bytes2

	Int32  = bitSigned | bitInteger | bytes4
	UInt32 = bitInteger | bytes4

	Int64  = bitSigned | bitInteger | bytes8
	UInt64 = bitInteger | bytes8

	Float32 = bitFloat | bytes4
	Float64 = bitFloat | bytes8

	ComplexInt8  = bitComplex | bitSigned | bitInteger | bytes1
	ComplexUInt8 = bitComplex | bitInteger | bytes1

	ComplexInt16  = bitComplex | bitSigned | bitInteger | bytes2
	ComplexUInt16 = bitComplex | bitInteger | bytes2

	ComplexInt32  = bitComplex | bitSigned | bitInteger | bytes4
	ComplexUInt32 = bitComplex | bitInteger | bytes4

	ComplexInt64  = bitComplex | bitSigned | bitInteger | bytes8
	ComplexUInt64 = bitComplex | bitInteger | bytes8

	ComplexFloat32 = bitComplex | bitFloat | bytes4
	ComplexFloat64 = bitComplex | bitFloat | bytes8
)

var elemSize = map[elemType]int{
	Empty:  1,
	Custom: 1,

	Int8: 1, UInt8: 1,
	Int16: 2, UInt16: 2,
	Int32: 4, UInt32: 4,
	Int64: 8, UInt64: 8,

	ComplexInt8: 2, ComplexUInt8: 2,
	ComplexInt16: 4, ComplexUInt16: 4,
	ComplexInt32: 8, ComplexUInt32: 8,
	ComplexInt64: 16, ComplexUInt64: 16,

	Float32: 4, Float64: 8,
	ComplexFloat32: 8, ComplexFloat64: 16,
}

var elemName = map[elemType]string{
	Empty:  "unspecified",
	Custom: "custom",

	Int8: "int8", UInt8: "uint8",
	Int16: "int16", UInt16: "uint16",
	Int32: "int32", UInt32: "uint32",
	Int64: "int64", UInt64: "uint64",

	ComplexInt8: "complex_int8", ComplexUInt8: "complex_uint8",
	ComplexInt16: "complex_int16", ComplexUInt16: "complex_uint16",
	ComplexInt32: "complex_int32", ComplexUInt32: "complex_uint32",
	ComplexInt64: "complex_int64", ComplexUInt64: "complex_uint64",

	Float32: "float32", Float64: "float64",
	ComplexFloat32: "complex_float32", ComplexFloat64: "complex_float64",
}

// alias -> elemType, lower-cased at lookup time; built once at init from
// the canonical names plus the hand-picked aliases the original carries
// (byte/octet/float/double/complex64/complex128, s-/u-prefixed widths, and
// native C names kept here only as documentation of lineage - char/short/
// int/long have no place in a Go alias table and are intentionally dropped).
var aliasToElem = map[string]elemType{}

func init() {
	for et, name := range elemName {
		aliasToElem[name] = et
	}
	aliasToElem[""] = Empty
	aliasToElem["unspecified"] = Empty
	aliasToElem["custom"] = Custom
	aliasToElem["byte"] = Int8
	aliasToElem["octet"] = Int8
	aliasToElem["float"] = Float32
	aliasToElem["double"] = Float64
	aliasToElem["complex64"] = ComplexFloat32
	aliasToElem["complex128"] = ComplexFloat64

	for _, w := range []struct {
		bits int
		sig  elemType
		uns  elemType
	}{
		{8, Int8, UInt8}, {16, Int16, UInt16}, {32, Int32, UInt32}, {64, Int64, UInt64},
	} {
		base := fmt.Sprintf("int%d", w.bits)
		aliasToElem["s"+base] = w.sig
		aliasToElem["u"+base] = w.uns
	}
}

// DType is the element-type tag carried by every SharedBuffer and
// BufferChunk: what a raw byte run means, and how many scalars make up one
// logical element.
type DType struct {
	elem      elemType
	dimension int
}

// New parses a markup string of the form "alias" or "alias,dimension" -
// e.g. "float32", "int16,2" for a complex-as-pair-of-int16 stream.
func New(markup string) (DType, error) {
	alias, dim := markup, 1
	if idx := strings.IndexByte(markup, ','); idx >= 0 {
		alias = strings.TrimSpace(markup[:idx])
		dimStr := strings.TrimSpace(markup[idx+1:])
		n, err := strconv.Atoi(dimStr)
		if err != nil {
			return DType{}, cos.NewErrUnknownType(markup)
		}
		dim = n
	}
	et, ok := aliasToElem[strings.ToLower(alias)]
	if !ok {
		return DType{}, cos.NewErrUnknownType(markup)
	}
	return DType{elem: et, dimension: dim}, nil
}

// MustNew is New but panics on an unknown alias; used for compile-time-known
// constants (test harnesses, internal plumbing) where an error return would
// only ever be a programmer mistake.
func MustNew(markup string) DType {
	dt, err := New(markup)
	cos.AssertNoErr(err)
	return dt
}

// WithDimension returns a copy of dt with its dimension replaced.
func (dt DType) WithDimension(dimension int) DType {
	dt.dimension = dimension
	return dt
}

func (dt DType) Name() string      { return elemName[dt.elem] }
func (dt DType) Dimension() int    { return dt.dimension }
func (dt DType) ElemSize() int     { return elemSize[dt.elem] }
func (dt DType) Size() int         { return dt.ElemSize() * dt.dimension }
func (dt DType) IsCustom() bool    { return dt.elem&bitCustom != 0 }
func (dt DType) IsFloat() bool     { return dt.elem&bitFloat != 0 }
func (dt DType) IsInteger() bool   { return dt.elem&bitInteger != 0 }
func (dt DType) IsSigned() bool    { return dt.elem&bitSigned != 0 }
func (dt DType) IsComplex() bool   { return dt.elem&bitComplex != 0 }
func (dt DType) IsEmpty() bool     { return dt.elem == Empty }

func (dt DType) String() string {
	if dt.dimension != 1 || dt.IsCustom() {
		return fmt.Sprintf("%s[%d]", dt.Name(), dt.dimension)
	}
	return dt.Name()
}

func (dt DType) ToMarkup() string {
	if dt.dimension != 1 || dt.IsCustom() {
		return fmt.Sprintf("%s, %d", dt.Name(), dt.dimension)
	}
	return dt.Name()
}

func (dt DType) Equals(other DType) bool {
	return dt.elem == other.elem && dt.dimension == other.dimension
}

// Hash returns a fast, markup-stable hash used to key the bridge-insertion
// cache in topology.commit() (keyed on (srcEnv, dstEnv, srcPort) plus the
// port's dtype, so two otherwise-identical edges with different dtypes
// never collide into the same bridge).
func (dt DType) Hash() uint64 {
	h := xxhash.New64()
	h.WriteString(dt.ToMarkup())
	return h.Sum64()
}
