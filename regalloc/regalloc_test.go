package regalloc_test

import (
	"testing"

	"github.com/pine2k/pine2k/regalloc"
)

type fakeSpiller struct {
	spilled []regalloc.SymbolID
}

func (f *fakeSpiller) Spill(sym regalloc.SymbolID, reg int) {
	f.spilled = append(f.spilled, sym)
}

func TestAllocateReusesAssignedRegister(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	r1 := a.Allocate(5)
	r2 := a.Allocate(5)
	if r1 != r2 {
		t.Fatalf("re-allocating same symbol gave different registers: %d vs %d", r1, r2)
	}
	if len(sp.spilled) != 0 {
		t.Fatalf("unexpected spill on first allocation")
	}
}

func TestAllocateEvictsLeastRecentlyUsed(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	// Fill R0-R6 (7 allocable slots, R7 reserved).
	for i := regalloc.SymbolID(0); i < regalloc.ScratchReg; i++ {
		a.Allocate(i)
	}
	// Touch symbol 0 so it's not the LRU victim.
	a.Allocate(0)

	// One more distinct symbol forces an eviction.
	a.Allocate(100)

	if len(sp.spilled) != 1 {
		t.Fatalf("expected exactly one spill, got %d", len(sp.spilled))
	}
	if sp.spilled[0] == 0 {
		t.Fatalf("evicted most-recently-touched symbol instead of LRU victim")
	}
}

func TestHoldPreventsEviction(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	for i := regalloc.SymbolID(0); i < regalloc.ScratchReg; i++ {
		a.Allocate(i)
	}
	heldReg := a.RegOf(0)
	a.Hold(heldReg)

	a.Allocate(200)

	if len(sp.spilled) != 1 {
		t.Fatalf("expected one spill, got %d", len(sp.spilled))
	}
	if sp.spilled[0] == 0 {
		t.Fatalf("held register was evicted")
	}
}

func TestAssignForciblyRoutesSymbol(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	a.Allocate(1)
	a.Assign(1, 3)

	if a.RegOf(1) != 3 {
		t.Fatalf("RegOf(1) = %d, want 3", a.RegOf(1))
	}
}

func TestInvalidateDropsAssignmentSilently(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	r := a.Allocate(7)
	a.Invalidate(r)

	if a.RegOf(7) != -1 {
		t.Fatalf("symbol still resident after Invalidate")
	}
	if len(sp.spilled) != 0 {
		t.Fatalf("Invalidate must not call Spill")
	}
}

func TestSpillAllClearsResidentSymbols(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	a.Allocate(1)
	a.Allocate(2)
	a.SpillAll(false)

	if a.RegOf(1) != -1 || a.RegOf(2) != -1 {
		t.Fatalf("symbols still resident after SpillAll")
	}
	if len(sp.spilled) != 2 {
		t.Fatalf("expected 2 spills, got %d", len(sp.spilled))
	}
}

func TestUseMapTracksTouchedRegisters(t *testing.T) {
	sp := &fakeSpiller{}
	a := regalloc.New(sp)

	r := a.Allocate(1)
	if a.UseMap()&(1<<uint(r)) == 0 {
		t.Fatalf("UseMap did not record touched register %d", r)
	}

	a.Reset()
	if a.UseMap() != 0 {
		t.Fatalf("UseMap not cleared after Reset")
	}
}
