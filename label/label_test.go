/*
 * Copyright (c) 2024, flowrt authors.
 */
package label_test

import (
	"testing"

	"github.com/flowmesh/flowrt/label"
)

func TestToAdjustedInterpolateDecimate(t *testing.T) {
	// L=2, M=1: an interpolator doubles indices/widths.
	l := label.New("sync", nil, 10, 4)
	got := l.ToAdjusted(2, 1)
	if got.Index != 20 || got.Width != 8 {
		t.Fatalf("got index=%d width=%d, want 20/8", got.Index, got.Width)
	}
}

func TestToAdjustedNeverZeroWidth(t *testing.T) {
	l := label.New("x", nil, 10, 1)
	got := l.ToAdjusted(1, 4) // decimate by 4: width would floor to 0
	if got.Width != 1 {
		t.Fatalf("width = %d, want floor of 1", got.Width)
	}
}

func TestShiftForInsertion(t *testing.T) {
	before := label.New("a", nil, 5, 1)
	after := label.New("b", nil, 15, 1)

	gotBefore := before.ShiftForInsertion(10, 4)
	gotAfter := after.ShiftForInsertion(10, 4)

	if gotBefore.Index != 5 {
		t.Fatalf("label before insertion point should not shift, got %d", gotBefore.Index)
	}
	if gotAfter.Index != 19 {
		t.Fatalf("label at/after insertion point should shift by insertedWidth, got %d", gotAfter.Index)
	}
}

func TestRelativeAbsoluteRoundTrip(t *testing.T) {
	l := label.New("x", nil, 100, 1)
	rel := l.ToRelative(40)
	if rel.Index != 60 {
		t.Fatalf("ToRelative: got %d, want 60", rel.Index)
	}
	abs := rel.ToAbsolute(40)
	if abs.Index != 100 {
		t.Fatalf("round trip failed: got %d, want 100", abs.Index)
	}
}
