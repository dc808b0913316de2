package a2l_test

import "testing"

import "github.com/pine2k/pine2k/a2l"

func TestRecordSkipsDuplicateLine(t *testing.T) {
	tbl := a2l.New(16)
	tbl.Record(0, 5)
	tbl.Record(1, 5) // same line as last, should not overwrite distinctly
	tbl.Record(2, 6)

	if line, ok := tbl.LineFor(4); !ok || line != 6 {
		t.Fatalf("LineFor(4) = (%d, %v), want (6, true)", line, ok)
	}
}

func TestLineForScansBackwardToNearestEntry(t *testing.T) {
	tbl := a2l.New(16)
	tbl.Record(0, 1)
	tbl.Record(5, 2)

	// Address between offset 5 and the next record should resolve to
	// line 2, the nearest non-zero entry at or before it.
	if line, ok := tbl.LineFor(11); !ok || line != 2 {
		t.Fatalf("LineFor(11) = (%d, %v), want (2, true)", line, ok)
	}
}

func TestLineForMissingReturnsFalse(t *testing.T) {
	tbl := a2l.New(16)
	if _, ok := tbl.LineFor(0); ok {
		t.Fatalf("expected no record at address 0 of a fresh table")
	}
}

func TestResetClearsTable(t *testing.T) {
	tbl := a2l.New(16)
	tbl.Record(0, 3)
	tbl.Reset()
	if _, ok := tbl.LineFor(0); ok {
		t.Fatalf("expected no record after Reset")
	}
}

func TestGrowsBeyondInitialSize(t *testing.T) {
	tbl := a2l.New(2)
	tbl.Record(10, 9)
	if line, ok := tbl.LineFor(20); !ok || line != 9 {
		t.Fatalf("LineFor after growth = (%d, %v), want (9, true)", line, ok)
	}
}
