package asm

import "github.com/pine2k/pine2k/internal/thumb"

// nopHalfWord is the canonical Thumb-1 NOP encoding (MOV R8, R8),
// matching spec.md §4.6's prologue placeholder.
const nopHalfWord = thumb.OpcodeNOP

func encodeLdrPCHalfWord(rd, imm8 uint16) uint16 { return thumb.EncodeLdrPC(rd, imm8) }
func encodeBccHalfWord(cond thumb.Cond, simm8 int16) uint16 {
	return thumb.EncodeBcc(cond, simm8)
}
func encodeBHalfWord(simm11 int16) uint16            { return thumb.EncodeB(simm11) }
func encodeBLHighHalfWord(offsetHigh11 int32) uint16 { return thumb.EncodeBLHigh(offsetHigh11) }
func encodeBLLowHalfWord(offsetLow11 int32) uint16   { return thumb.EncodeBLLow(offsetLow11) }

// Reg is a Thumb-1 low register number, R0-R7; R7 is reserved scratch
// per spec.md §4.5.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	SP Reg = 13
	LR Reg = 14
	PC Reg = 15
)

// Cond re-exports thumb.Cond so callers of asm need not import the
// internal package directly.
type Cond = thumb.Cond

const (
	EQ = thumb.CondEQ
	NE = thumb.CondNE
	CS = thumb.CondCS
	CC = thumb.CondCC
	MI = thumb.CondMI
	PL = thumb.CondPL
	VS = thumb.CondVS
	VC = thumb.CondVC
	HI = thumb.CondHI
	LS = thumb.CondLS
	GE = thumb.CondGE
	LT = thumb.CondLT
	GT = thumb.CondGT
	LE = thumb.CondLE
	AL = thumb.CondAL
)
