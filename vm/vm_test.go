package vm

import (
	"testing"

	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/internal/thumb"
)

func le(hws ...uint16) []byte {
	buf := make([]byte, 0, len(hws)*2)
	for _, h := range hws {
		buf = append(buf, byte(h), byte(h>>8))
	}
	return buf
}

func newTestVM(code []byte, reserved uint32) *VM {
	mem := NewMemory(code, heap.NewWithReserved(reserved))
	return New(mem)
}

func TestArithmeticAndReturn(t *testing.T) {
	code := le(
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 5),    // MOVS R0, #5
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 3),    // MOVS R1, #3
		thumb.EncodeAddSub3(false, false, 1, 0, 2), // ADDS R2, R0, R1
		thumb.EncodeHi(thumb.HiBX, false, 14, 0), // BX LR
	)
	v := newTestVM(code, 8)
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.CPU.R[2] != 8 {
		t.Fatalf("R2 = %d, want 8", v.CPU.R[2])
	}
	if !v.Halted {
		t.Fatal("expected VM to halt on BX LR")
	}
}

func TestSubtractionSetsFlags(t *testing.T) {
	code := le(
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 3),
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 5),
		thumb.EncodeAddSub3(false, true, 1, 0, 2), // SUBS R2, R0, R1 -> 3-5 = -2
		thumb.EncodeHi(thumb.HiBX, false, 14, 0),
	)
	v := newTestVM(code, 8)
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(v.CPU.R[2]) != -2 {
		t.Fatalf("R2 = %#x, want -2", v.CPU.R[2])
	}
	if v.CPU.N != true || v.CPU.C != false {
		t.Fatalf("flags N=%v C=%v, want N=true C=false (borrow occurred)", v.CPU.N, v.CPU.C)
	}
}

func TestConditionalBranchSkipsFalseArm(t *testing.T) {
	// MOVS R0, #1
	// MOVS R1, #1
	// CMP  R0, R1     (format4 AluCMP)
	// BEQ  +1         (skip the next instruction)
	// MOVS R2, #99    (should be skipped)
	// MOVS R2, #7     (landing pad)
	// BX LR
	code := le(
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 1),
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 1),
		thumb.EncodeAlu(thumb.AluCMP, 1, 0),
		thumb.EncodeBcc(thumb.CondEQ, 1), // delta of 1 half-word skips the MOVS R2,#99
		thumb.EncodeImm8(thumb.Imm8MOV, 2, 99),
		thumb.EncodeImm8(thumb.Imm8MOV, 2, 7),
		thumb.EncodeHi(thumb.HiBX, false, 14, 0),
	)
	v := newTestVM(code, 8)
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.CPU.R[2] != 7 {
		t.Fatalf("R2 = %d, want 7 (the MOVS #99 arm should have been skipped)", v.CPU.R[2])
	}
}

func TestLoadStoreWord(t *testing.T) {
	// MOVS R0, #0      (base address, the reserved global-data prefix)
	// MOVS R1, #42
	// STR  R1, [R0, #0]
	// LDR  R2, [R0, #0]
	// BX LR
	code := le(
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 0),
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 42),
		thumb.EncodeImmOffset(false, false, 0, 0, 1), // STR R1, [R0, #0]
		thumb.EncodeImmOffset(false, true, 0, 0, 2),  // LDR R2, [R0, #0]
		thumb.EncodeHi(thumb.HiBX, false, 14, 0),
	)
	v := newTestVM(code, 16)
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.CPU.R[2] != 42 {
		t.Fatalf("R2 = %d, want 42", v.CPU.R[2])
	}
}

func TestBranchAndLinkCallsAndReturns(t *testing.T) {
	// main:   PUSH {LR}
	//         BL   add5
	//         POP  {PC}
	// add5:   MOVS R0, #5
	//         BX   LR
	//
	// main saves its incoming LR (HaltAddress) on the stack before the
	// call, since BL clobbers LR with add5's own return address; POP
	// {PC} restores it afterward so the halt sentinel survives the
	// nested call instead of being overwritten forever.
	//
	// Half-word offsets: 0 PUSH, 1-2 BL pair, 3 POP, 4-5 add5.
	// BL's ref offset is 1, add5's target offset is 4: delta=3, d=1.
	high := int32(1) >> 11
	low := int32(1) & 0x7FF
	code := le(
		thumb.EncodePushPop(false, true, 0), // PUSH {LR}
		thumb.EncodeBLHigh(high),
		thumb.EncodeBLLow(low),
		thumb.EncodePushPop(true, true, 0), // POP {PC}
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 5), // add5: MOVS R0, #5
		thumb.EncodeHi(thumb.HiBX, false, 14, 0), // add5: BX LR
	)
	v := newTestVM(code, 8)
	v.CPU.SP = heap.Size
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.CPU.R[0] != 5 {
		t.Fatalf("R0 = %d, want 5 (add5 should have run via BL/BX LR)", v.CPU.R[0])
	}
	if !v.Halted {
		t.Fatal("expected VM to halt after main's POP {PC} restored the caller's return address")
	}
	if v.CPU.SP != heap.Size {
		t.Fatalf("SP = %d, want %d (balanced push/pop)", v.CPU.SP, heap.Size)
	}
}

func TestPushPopRoundTrips(t *testing.T) {
	// MOVS R0, #11
	// MOVS R1, #22
	// PUSH {R0, R1}
	// MOVS R0, #0
	// MOVS R1, #0
	// POP  {R0, R1}
	// BX LR
	code := le(
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 11),
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 22),
		thumb.EncodePushPop(false, false, 0b0000_0011),
		thumb.EncodeImm8(thumb.Imm8MOV, 0, 0),
		thumb.EncodeImm8(thumb.Imm8MOV, 1, 0),
		thumb.EncodePushPop(true, false, 0b0000_0011),
		thumb.EncodeHi(thumb.HiBX, false, 14, 0),
	)
	v := newTestVM(code, 8)
	v.CPU.SP = heap.Size // stack grows down from the top of the data region
	if err := v.Call(0, 100); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.CPU.R[0] != 11 || v.CPU.R[1] != 22 {
		t.Fatalf("R0,R1 = %d,%d, want 11,22", v.CPU.R[0], v.CPU.R[1])
	}
	if v.CPU.SP != heap.Size {
		t.Fatalf("SP = %d, want %d (balanced push/pop)", v.CPU.SP, heap.Size)
	}
}

func TestWatchdogStopsRunawayLoop(t *testing.T) {
	// an infinite loop: B .-0 (branch to itself)
	code := le(thumb.EncodeB(-1))
	v := newTestVM(code, 8)
	err := v.Call(0, 50)
	if err == nil {
		t.Fatal("expected watchdog error for a runaway loop")
	}
}
