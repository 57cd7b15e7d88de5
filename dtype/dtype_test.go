/*
 * Copyright (c) 2024, flowrt authors.
 */
package dtype_test

import (
	"testing"

	"github.com/flowmesh/flowrt/cmn/cos"
	"github.com/flowmesh/flowrt/dtype"
)

func TestAliases(t *testing.T) {
	cases := []struct {
		markup string
		name   string
		size   int
	}{
		{"byte", "int8", 1},
		{"octet", "int8", 1},
		{"float", "float32", 4},
		{"double", "float64", 8},
		{"complex64", "complex_float32", 8},
		{"complex128", "complex_float64", 16},
		{"sint16", "int16", 2},
		{"uint16", "uint16", 2},
		{"", "unspecified", 1},
		{"custom", "custom", 1},
	}
	for _, c := range cases {
		dt, err := dtype.New(c.markup)
		if err != nil {
			t.Fatalf("New(%q): %v", c.markup, err)
		}
		if dt.Name() != c.name {
			t.Errorf("New(%q).Name() = %q, want %q", c.markup, dt.Name(), c.name)
		}
		if dt.ElemSize() != c.size {
			t.Errorf("New(%q).ElemSize() = %d, want %d", c.markup, dt.ElemSize(), c.size)
		}
	}
}

func TestUnknownAlias(t *testing.T) {
	_, err := dtype.New("nonsense")
	if !cos.IsErrUnknownType(err) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDimensionMarkup(t *testing.T) {
	dt, err := dtype.New("float32, 4")
	if err != nil {
		t.Fatal(err)
	}
	if dt.Dimension() != 4 || dt.Size() != 16 {
		t.Fatalf("got dimension=%d size=%d", dt.Dimension(), dt.Size())
	}
	if dt.ToMarkup() != "float32, 4" {
		t.Fatalf("ToMarkup() = %q", dt.ToMarkup())
	}
}

func TestPredicates(t *testing.T) {
	f := dtype.MustNew("float32")
	if !f.IsFloat() || f.IsInteger() || f.IsComplex() || f.IsSigned() {
		t.Fatalf("float32 predicates wrong: %+v", f)
	}
	c := dtype.MustNew("complex128")
	if !c.IsComplex() || !c.IsFloat() {
		t.Fatalf("complex128 predicates wrong: %+v", c)
	}
	u := dtype.MustNew("uint32")
	if u.IsSigned() || !u.IsInteger() {
		t.Fatalf("uint32 predicates wrong: %+v", u)
	}
}

func TestEqualsAndHash(t *testing.T) {
	a := dtype.MustNew("float32")
	b := dtype.MustNew("float32")
	if !a.Equals(b) || a.Hash() != b.Hash() {
		t.Fatalf("equal dtypes must hash equal")
	}
	c := dtype.MustNew("float64")
	if a.Equals(c) || a.Hash() == c.Hash() {
		t.Fatalf("distinct dtypes should not hash equal (in practice)")
	}
}
