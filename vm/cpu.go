// Package vm implements a Thumb-1-subset interpreter (spec.md §4.9,
// component C9's execution half): enough of the instruction set for
// the assembler (asm, component C4) to emit and have it actually run.
// Grounded on the teacher's vm package (vm/cpu.go, vm/executor.go,
// vm/flags.go): a register file plus condition flags, a segmented
// Memory, and a fetch-decode-execute loop, narrowed from the teacher's
// full ARM32 instruction set down to the Thumb-1 formats this
// toolchain's assembler actually produces.
package vm

import "github.com/pine2k/pine2k/internal/thumb"

// CPU holds the Thumb-1 register file and condition flags. R0-R7 are
// the general-purpose low registers; SP, LR and PC are tracked
// separately since Thumb-1's high-register formats (format 5) address
// them by the same 4-bit number space but most formats never touch
// them.
type CPU struct {
	R  [8]uint32
	Hi [5]uint32 // R8-R12: format 5 can address these, nothing else does
	SP uint32
	LR uint32
	PC uint32

	N, Z, C, V bool
}

// Get reads a register by its full 4-bit number (0-7 low, 8-12 high,
// 13 SP, 14 LR, 15 PC), the numbering format 5's h1/h2 bits extend
// into.
func (c *CPU) Get(n uint16) uint32 {
	switch {
	case n <= 7:
		return c.R[n]
	case n == 13:
		return c.SP
	case n == 14:
		return c.LR
	case n == 15:
		// Step has already advanced PC past the current instruction, so
		// +2 makes a read of PC see the current instruction address + 4.
		return c.PC + 2
	default:
		return c.Hi[n-8]
	}
}

// Set writes a register by its full 4-bit number.
func (c *CPU) Set(n uint16, v uint32) {
	switch {
	case n <= 7:
		c.R[n] = v
	case n == 13:
		c.SP = v
	case n == 14:
		c.LR = v
	case n == 15:
		c.PC = v &^ 1 // BX/MOV pc, rm: Thumb bit is not a real address bit here
	default:
		c.Hi[n-8] = v
	}
}

// setNZ updates N and Z from a result value, the flag pair every
// S-suffixed Thumb-1 data-processing instruction touches.
func (c *CPU) setNZ(result uint32) {
	c.N = result&0x80000000 != 0
	c.Z = result == 0
}

// addWithFlags computes a+b+carryIn and sets NZCV, used by both ADD
// forms and ADC.
func (c *CPU) addWithFlags(a, b uint32, carryIn bool) uint32 {
	var carry uint64
	if carryIn {
		carry = 1
	}
	wide := uint64(a) + uint64(b) + carry
	result := uint32(wide)
	c.setNZ(result)
	c.C = wide > 0xFFFFFFFF
	sa, sb, sr := int32(a) >= 0, int32(b) >= 0, int32(result) >= 0
	c.V = sa == sb && sa != sr
	return result
}

// subWithFlags computes a-b-borrowIn and sets NZCV, used by SUB, CMP
// and SBC; Thumb-1's carry convention for subtraction is "carry set
// means no borrow occurred".
func (c *CPU) subWithFlags(a, b uint32, borrowIn bool) uint32 {
	bw := uint64(0)
	if !borrowIn {
		bw = 1
	}
	wide := uint64(a) - uint64(b) - bw
	result := uint32(wide)
	c.setNZ(result)
	c.C = uint64(a) >= uint64(b)+bw
	sa, sb, sr := int32(a) >= 0, int32(b) >= 0, int32(result) >= 0
	c.V = sa != sb && sr != sa
	return result
}

// shiftLSLImm, shiftLSRImm and shiftASRImm implement format 1's
// immediate shifts. shiftLSRReg/shiftASRReg/shiftLSLReg/shiftRORReg
// implement format 4's register shifts, which read rd's own current
// value as the operand and use a full 8-bit shift amount rather than
// imm5's 0-31 range; callers are responsible for the one semantic
// difference between the two forms (imm5==0 means "shift by 32" for
// LSR/ASR, a rule that only applies to the immediate encoding).
func (c *CPU) shiftLSLImm(rd uint16, val, shift uint32) { c.applyLSL(rd, val, shift) }
func (c *CPU) shiftLSRImm(rd uint16, val, shift uint32) { c.applyLSR(rd, val, shift) }
func (c *CPU) shiftASRImm(rd uint16, val, shift uint32) { c.applyASR(rd, val, shift) }

func (c *CPU) shiftLSLReg(rd uint16, shift uint32) { c.applyLSL(rd, c.R[rd], shift) }
func (c *CPU) shiftLSRReg(rd uint16, shift uint32) { c.applyLSR(rd, c.R[rd], shift) }
func (c *CPU) shiftASRReg(rd uint16, shift uint32) { c.applyASR(rd, c.R[rd], shift) }
func (c *CPU) shiftRORReg(rd uint16, shift uint32) { c.applyROR(rd, c.R[rd], shift) }

func (c *CPU) applyLSL(rd uint16, val, shift uint32) {
	switch {
	case shift == 0:
		c.R[rd] = val
	case shift < 32:
		c.C = (val>>(32-shift))&1 != 0
		c.R[rd] = val << shift
	case shift == 32:
		c.C = val&1 != 0
		c.R[rd] = 0
	default:
		c.C = false
		c.R[rd] = 0
	}
	c.setNZ(c.R[rd])
}

func (c *CPU) applyLSR(rd uint16, val, shift uint32) {
	switch {
	case shift == 0:
		c.R[rd] = val
	case shift < 32:
		c.C = (val>>(shift-1))&1 != 0
		c.R[rd] = val >> shift
	case shift == 32:
		c.C = val&0x80000000 != 0
		c.R[rd] = 0
	default:
		c.C = false
		c.R[rd] = 0
	}
	c.setNZ(c.R[rd])
}

func (c *CPU) applyASR(rd uint16, val, shift uint32) {
	sval := int32(val)
	switch {
	case shift == 0:
		c.R[rd] = val
	case shift < 32:
		c.C = (val>>(shift-1))&1 != 0
		c.R[rd] = uint32(sval >> shift)
	default:
		c.C = sval < 0
		if sval < 0 {
			c.R[rd] = 0xFFFFFFFF
		} else {
			c.R[rd] = 0
		}
	}
	c.setNZ(c.R[rd])
}

// applyROR implements the register-shift form's rotate; format 1 has
// no rotate-by-immediate (RORS only exists as a format-4 ALU op, never
// emitted by this toolchain either, but decoded here for completeness).
func (c *CPU) applyROR(rd uint16, val, shift uint32) {
	if shift == 0 {
		c.R[rd] = val
		c.setNZ(val)
		return
	}
	amt := shift & 31
	if amt == 0 {
		c.C = val&0x80000000 != 0
		c.R[rd] = val
	} else {
		c.C = (val>>(amt-1))&1 != 0
		c.R[rd] = (val >> amt) | (val << (32 - amt))
	}
	c.setNZ(c.R[rd])
}

// ConditionPassed evaluates one of Thumb's 14 encodable branch
// conditions against the current flags (format 16, Bcc).
func (c *CPU) ConditionPassed(cond thumb.Cond) bool {
	switch cond {
	case thumb.CondEQ:
		return c.Z
	case thumb.CondNE:
		return !c.Z
	case thumb.CondCS:
		return c.C
	case thumb.CondCC:
		return !c.C
	case thumb.CondMI:
		return c.N
	case thumb.CondPL:
		return !c.N
	case thumb.CondVS:
		return c.V
	case thumb.CondVC:
		return !c.V
	case thumb.CondHI:
		return c.C && !c.Z
	case thumb.CondLS:
		return !c.C || c.Z
	case thumb.CondGE:
		return c.N == c.V
	case thumb.CondLT:
		return c.N != c.V
	case thumb.CondGT:
		return !c.Z && c.N == c.V
	case thumb.CondLE:
		return c.Z || c.N != c.V
	default: // CondAL
		return true
	}
}
