package asm_test

import (
	"testing"

	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
)

func newAsm() (*asm.Assembler, *perr.List) {
	errs := &perr.List{}
	w := asm.NewWriter(errs)
	return asm.New(w, errs), errs
}

func TestForwardBranchResolvesToCorrectDelta(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 1}

	hash := uint32(0xBEEF)
	a.Bcc(asm.EQ, hash, pos) // forward reference
	a.NOP(pos)
	a.NOP(pos)
	a.Define(hash, pos)
	a.Link(pos)

	if errs.HasError() {
		t.Fatalf("unexpected error: %v", errs.First)
	}
}

func TestBackwardBranchResolvesImmediately(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 1}

	hash := uint32(0x1234)
	a.Define(hash, pos)
	a.NOP(pos)
	a.B(hash, pos)
	a.Link(pos)

	if errs.HasError() {
		t.Fatalf("unexpected error: %v", errs.First)
	}
}

func TestUnresolvedLabelIsCodegenError(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 5}
	a.B(0x9999, pos) // never defined
	a.Link(pos)

	if !errs.HasError() {
		t.Fatal("expected unresolved-label codegen error")
	}
	if errs.First.Kind != perr.KindCodegen {
		t.Errorf("kind = %v, want KindCodegen", errs.First.Kind)
	}
}

func TestKnownImmediateCacheElidesRedundantLoad(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 1}

	a.LoadConst(asm.R0, 0x12345678, pos)
	before := a.Offset()
	a.LoadConst(asm.R0, 0x12345678, pos) // should be elided
	after := a.Offset()

	if before != after {
		t.Fatalf("redundant LoadConst emitted %d half-words, want 0", after-before)
	}
	if errs.HasError() {
		t.Fatalf("unexpected error: %v", errs.First)
	}
}

func TestLoadConstSmallUsesMOVS(t *testing.T) {
	a, _ := newAsm()
	pos := perr.Position{Line: 1}
	a.LoadConst(asm.R1, 42, pos)
	if a.Offset() != 1 {
		t.Fatalf("small constant should fit in one MOVS, offset=%d", a.Offset())
	}
}

func TestConstantPoolDeduplicates(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 1}

	a.LoadConst(asm.R0, 0xDEADBEEF, pos)
	a.LoadConst(asm.R1, 0xDEADBEEF, pos) // same large constant, different register
	a.Link(pos)

	if errs.HasError() {
		t.Fatalf("unexpected error: %v", errs.First)
	}
	// Two LDR placeholders (1 half-word each) + one pool entry (2 half-words).
	if a.Offset() != 4 {
		t.Fatalf("offset = %d, want 4 (dedup pool entry)", a.Offset())
	}
}

func TestImmediateOutOfRangeIsCodegenError(t *testing.T) {
	a, errs := newAsm()
	pos := perr.Position{Line: 9}
	a.MOVS(asm.R0, 999, pos) // > 8 bits
	if !errs.HasError() {
		t.Fatal("expected out-of-range codegen error")
	}
	if errs.First.Kind != perr.KindCodegen {
		t.Errorf("kind = %v, want KindCodegen", errs.First.Kind)
	}
}

func TestBufferOverflowIsCodegenError(t *testing.T) {
	errs := &perr.List{}
	w := asm.NewWriter(errs)
	a := asm.New(w, errs)
	pos := perr.Position{Line: 1}
	for i := 0; i < asm.BufferSize/2+1; i++ {
		a.NOP(pos)
	}
	if !errs.HasError() {
		t.Fatal("expected code buffer overflow error")
	}
}

func TestDisassembleRoundTripsNOP(t *testing.T) {
	if got := asm.Disassemble(0x46C0); got != "NOP" {
		t.Fatalf("Disassemble(NOP) = %q, want NOP", got)
	}
}
