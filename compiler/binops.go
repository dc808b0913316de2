package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/regalloc"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

// divHelperHash names the lazily-emitted software integer division
// routine; calls to it are ordinary BLs since the 2KiB code buffer is
// trivially within Thumb-1's ±4MB BL range (spec.md §4.6 "division
// helper... called via BL").
var divHelperHash = token.Hash("$div")

// applyBinary folds op over two values at compile time when both carry
// a KCTV (spec.md §4.6 "Constant folding"), otherwise lowers to an
// immediate, register, or helper-call instruction form.
func (c *Compiler) applyBinary(op string, lhs, rhs value) value {
	if lhs.hasKCTV && rhs.hasKCTV {
		if v, ok := foldConstant(op, lhs.kctv, rhs.kctv); ok {
			return kctvValue(v, resultType(op, lhs.kctv))
		}
		c.fail(perr.KindSemantic, "division by zero in constant expression")
		return kctvValue(0, symtab.TypeS32)
	}

	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "===", "!==":
		return c.lowerCompare(op, lhs, rhs)
	case "/", "%":
		return c.lowerDivMod(op, lhs, rhs)
	default:
		return c.lowerArith(op, lhs, rhs)
	}
}

func resultType(op string, _ int32) symtab.Type {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "===", "!==":
		return symtab.TypeBool
	default:
		return symtab.TypeS32
	}
}

// foldConstant implements JS-subset integer semantics: truncating
// division/modulo toward zero, arithmetic >> sign-extending, unsigned
// >>>.
func foldConstant(op string, a, b int32) (int32, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case "%":
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	case "<<":
		return a << uint32(b&31), true
	case ">>":
		return a >> uint32(b&31), true
	case ">>>":
		return int32(uint32(a) >> uint32(b&31)), true
	case "==", "===":
		return boolInt(a == b), true
	case "!=", "!==":
		return boolInt(a != b), true
	case "<":
		return boolInt(a < b), true
	case "<=":
		return boolInt(a <= b), true
	case ">":
		return boolInt(a > b), true
	case ">=":
		return boolInt(a >= b), true
	case "&&":
		return boolInt(a != 0 && b != 0), true
	case "||":
		return boolInt(a != 0 || b != 0), true
	default:
		return 0, false
	}
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// lowerCompare emits a SUBS-equivalent compare and yields a flagValue
// carrying the CAST_* condition, left unmaterialized until a consumer
// forces it (spec.md §4.6 "materialization happens lazily"). == and ===
// (and != / !==) compile identically: the language has no type
// coercion for a strict variant to distinguish.
func (c *Compiler) lowerCompare(op string, lhs, rhs value) value {
	cond := compareCond(op)
	if rhs.hasKCTV && fitsImm8(rhs.kctv) {
		lr := c.materializeValue(lhs, c.pos())
		c.asm.CMPimm(lr, uint32(rhs.kctv), c.pos())
		return flagValue(cond)
	}
	if lhs.hasKCTV && fitsImm8(lhs.kctv) {
		// flip the comparison so the immediate still lands on the right
		rr := c.materializeValue(rhs, c.pos())
		c.asm.CMPimm(rr, uint32(lhs.kctv), c.pos())
		return flagValue(mirrorCond(cond))
	}
	lr := c.materializeValue(lhs, c.pos())
	rr := c.materializeValue(rhs, c.pos())
	c.asm.CMPreg(lr, rr, c.pos())
	return flagValue(cond)
}

func compareCond(op string) asm.Cond {
	switch op {
	case "==", "===":
		return asm.EQ
	case "!=", "!==":
		return asm.NE
	case "<":
		return asm.LT
	case "<=":
		return asm.LE
	case ">":
		return asm.GT
	case ">=":
		return asm.GE
	default:
		return asm.EQ
	}
}

// mirrorCond swaps a comparison's operand order (a OP b -> b OP' a).
func mirrorCond(c asm.Cond) asm.Cond {
	switch c {
	case asm.LT:
		return asm.GT
	case asm.GT:
		return asm.LT
	case asm.LE:
		return asm.GE
	case asm.GE:
		return asm.LE
	default:
		return c
	}
}

func fitsImm8(v int32) bool { return v >= 0 && v <= 255 }

// lowerArith handles +, -, *, &, |, ^, <<, >>, >>> in immediate or
// register form, with a power-of-two rewrite for shifts that fold to
// known small constants.
func (c *Compiler) lowerArith(op string, lhs, rhs value) value {
	if rhs.hasKCTV {
		if v, ok := c.lowerArithImm(op, lhs, rhs.kctv); ok {
			return v
		}
	}
	lr := c.materializeValue(lhs, c.pos())
	rr := c.materializeValue(rhs, c.pos())
	dst := c.freshTemp()
	switch op {
	case "+":
		c.asm.ADDSreg(dst, lr, rr, c.pos())
	case "-":
		c.asm.SUBSreg(dst, lr, rr, c.pos())
	case "*":
		c.asm.MOVreg(dst, lr, c.pos())
		c.asm.MULS(dst, rr, c.pos())
	case "&":
		c.asm.MOVreg(dst, lr, c.pos())
		c.asm.ANDS(dst, rr, c.pos())
	case "|":
		c.asm.MOVreg(dst, lr, c.pos())
		c.asm.ORRS(dst, rr, c.pos())
	case "^":
		c.asm.MOVreg(dst, lr, c.pos())
		c.asm.EORS(dst, rr, c.pos())
	case "<<", ">>", ">>>":
		return c.lowerShiftReg(op, lr, rr, dst)
	}
	return regValue(dst, symtab.TypeS32)
}

func (c *Compiler) lowerShiftReg(op string, lr, rr, dst asm.Reg) value {
	// No variable-shift-by-register in Thumb-1's RORS-style immediate
	// forms beyond ASR/LSL/LSR imm, so a variable shift count is masked
	// and run through RORS's register form isn't available either;
	// fall back to the helper used for the constant case is impossible
	// here since rr isn't known at compile time, so emit a one-bit loop.
	c.asm.MOVreg(dst, lr, c.pos())
	countReg := c.freshTemp()
	c.asm.MOVreg(countReg, rr, c.pos())
	c.andImm(countReg, 31, c.pos())
	top := c.newLabel()
	end := c.newLabel()
	c.asm.Define(top, c.pos())
	c.asm.CMPimm(countReg, 0, c.pos())
	c.asm.Bcc(asm.EQ, end, c.pos())
	switch op {
	case "<<":
		c.asm.LSLSimm(dst, dst, 1, c.pos())
	case ">>":
		c.asm.ASRSimm(dst, dst, 1, c.pos())
	case ">>>":
		c.asm.LSRSimm(dst, dst, 1, c.pos())
	}
	c.asm.SUBSimm8(countReg, 1, c.pos())
	c.asm.B(top, c.pos())
	c.asm.Define(end, c.pos())
	return regValue(dst, symtab.TypeS32)
}

// lowerArithImm handles the case where rhs is a known compile-time
// value, using the 8-bit immediate ALU forms when k fits, or a fixed
// shift-immediate for <</>>/>>> (spec.md §4.6 "division-by-power-of-two
// rewrite" generalized to all constant shift amounts).
func (c *Compiler) lowerArithImm(op string, lhs value, k int32) (value, bool) {
	switch op {
	case "+", "-":
		if k < 0 {
			return c.lowerArithImm(flipSign(op), lhs, -k)
		}
		lr := c.materializeValue(lhs, c.pos())
		dst := c.freshTemp()
		if fitsImm8(k) {
			c.asm.MOVreg(dst, lr, c.pos())
			if op == "+" {
				c.asm.ADDSimm8(dst, uint32(k), c.pos())
			} else {
				c.asm.SUBSimm8(dst, uint32(k), c.pos())
			}
			return regValue(dst, symtab.TypeS32), true
		}
		return value{}, false
	case "<<", ">>", ">>>":
		if k < 0 || k > 31 {
			return value{}, false
		}
		lr := c.materializeValue(lhs, c.pos())
		dst := c.freshTemp()
		switch op {
		case "<<":
			c.asm.LSLSimm(dst, lr, uint32(k), c.pos())
		case ">>":
			c.asm.ASRSimm(dst, lr, uint32(k), c.pos())
		case ">>>":
			c.asm.LSRSimm(dst, lr, uint32(k), c.pos())
		}
		return regValue(dst, symtab.TypeS32), true
	default:
		return value{}, false
	}
}

func flipSign(op string) string {
	if op == "+" {
		return "-"
	}
	return "+"
}

// lowerDivMod rewrites division/modulo by a known power of two into
// shift/mask sequences (spec.md §4.6), else calls the shared software
// division helper with dividend in R0, divisor in R1.
func (c *Compiler) lowerDivMod(op string, lhs, rhs value) value {
	if rhs.hasKCTV && rhs.kctv > 0 && isPowerOfTwo(rhs.kctv) {
		shift := log2(rhs.kctv)
		lr := c.materializeValue(lhs, c.pos())
		dst := c.freshTemp()
		if op == "/" {
			c.asm.ASRSimm(dst, lr, uint32(shift), c.pos())
			return regValue(dst, symtab.TypeS32)
		}
		c.andImm(lr, uint32(rhs.kctv-1), c.pos())
		c.asm.MOVreg(dst, lr, c.pos())
		return regValue(dst, symtab.TypeS32)
	}

	c.emitDivHelperOnce()
	lr := c.materializeValue(lhs, c.pos())
	rr := c.materializeValue(rhs, c.pos())
	c.reg.SpillAll(true)
	c.asm.MOVreg(asm.R0, lr, c.pos())
	c.asm.MOVreg(asm.R1, rr, c.pos())
	c.reg.Invalidate(int(asm.R0))
	c.reg.Invalidate(int(asm.R1))
	c.asm.BL(divHelperHash, c.pos())
	dst := c.freshTemp()
	if op == "/" {
		c.asm.MOVreg(dst, asm.R0, c.pos())
	} else {
		c.asm.MOVreg(dst, asm.R1, c.pos())
	}
	return regValue(dst, symtab.TypeS32)
}

// emitDivHelperOnce writes the shared software integer division
// routine the first time / or % needs it, with a branch around its
// body so straight-line execution never falls into it. Restoring
// binary long division on the absolute values, with the quotient's
// sign the XOR of the operands' signs and the remainder taking the
// dividend's sign, matching JS's truncating / and % (spec.md §4.6).
// R0/R1 are the only registers the call site should treat as
// clobbered; everything else used internally is saved and restored.
func (c *Compiler) emitDivHelperOnce() {
	if c.divHelperEmitted {
		return
	}
	c.divHelperEmitted = true
	pos := c.pos()

	over := c.newLabel()
	c.asm.B(over, pos)
	c.asm.Define(divHelperHash, pos)
	c.asm.PUSH(regMask(asm.R2, asm.R3, asm.R4, asm.R5, asm.R6, asm.R7), false, pos)

	c.asm.CMPimm(asm.R0, 0, pos)
	c.setBoolReg(asm.R7, asm.LT, pos) // R7 = dividend negative

	c.asm.CMPimm(asm.R1, 0, pos)
	c.setBoolReg(asm.R4, asm.LT, pos) // R4 = divisor negative (temporary)

	c.asm.MOVreg(asm.R5, asm.R7, pos)
	c.asm.EORS(asm.R5, asm.R4, pos) // R5 = quotient sign

	negIfNeg(c, asm.R0, asm.R7, pos)
	negIfNeg(c, asm.R1, asm.R4, pos)

	c.asm.MOVS(asm.R2, 0, pos) // quotient
	c.asm.MOVS(asm.R3, 0, pos) // remainder
	c.asm.MOVS(asm.R6, 32, pos)

	loop := c.newLabel()
	done := c.newLabel()
	c.asm.Define(loop, pos)
	c.asm.CMPimm(asm.R6, 0, pos)
	c.asm.Bcc(asm.EQ, done, pos)
	c.asm.LSRSimm(asm.R4, asm.R0, 31, pos)
	c.asm.LSLSimm(asm.R3, asm.R3, 1, pos)
	c.asm.ORRS(asm.R3, asm.R4, pos)
	c.asm.LSLSimm(asm.R0, asm.R0, 1, pos)
	c.asm.LSLSimm(asm.R2, asm.R2, 1, pos)
	c.asm.CMPreg(asm.R3, asm.R1, pos)
	skipSub := c.newLabel()
	c.asm.Bcc(asm.CC, skipSub, pos)
	c.asm.SUBSreg(asm.R3, asm.R3, asm.R1, pos)
	c.asm.ADDSimm8(asm.R2, 1, pos)
	c.asm.Define(skipSub, pos)
	c.asm.SUBSimm8(asm.R6, 1, pos)
	c.asm.B(loop, pos)
	c.asm.Define(done, pos)

	negIfNeg(c, asm.R2, asm.R5, pos)
	negIfNeg(c, asm.R3, asm.R7, pos)

	c.asm.MOVreg(asm.R0, asm.R2, pos)
	c.asm.MOVreg(asm.R1, asm.R3, pos)
	c.asm.POP(regMask(asm.R2, asm.R3, asm.R4, asm.R5, asm.R6, asm.R7), false, pos)
	c.asm.BX(asm.LR, pos)
	c.asm.Define(over, pos)
}

// negIfNeg negates r in place when flag (0/1) is nonzero.
func negIfNeg(c *Compiler, r, flag asm.Reg, pos perr.Position) {
	c.asm.CMPimm(flag, 0, pos)
	skip := c.newLabel()
	c.asm.Bcc(asm.EQ, skip, pos)
	c.asm.RSBS(r, r, pos)
	c.asm.Define(skip, pos)
}

func regMask(regs ...asm.Reg) uint16 {
	var m uint16
	for _, r := range regs {
		m |= 1 << uint(r)
	}
	return m
}

func isPowerOfTwo(v int32) bool { return v&(v-1) == 0 }

func log2(v int32) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// andImm masks r in place against an immediate; Thumb-1 has no AND-
// immediate encoding, so the mask is loaded into a scratch register
// first (mirrors the teacher's constant-pool-backed immediate loads
// for ALU ops with no direct immediate form).
func (c *Compiler) andImm(r asm.Reg, mask uint32, pos perr.Position) {
	maskReg := c.freshTemp()
	c.asm.LoadConst(maskReg, mask, pos)
	c.asm.ANDS(r, maskReg, pos)
}

// freshTemp allocates a register for an anonymous intermediate that
// never occupies a symtab slot; regalloc is keyed by a negative,
// ever-decreasing synthetic id so temporaries never collide with real
// symbol indices or with each other. The register is held so later
// allocations in the same expression cannot evict it out from under
// its caller; holds are cleared in bulk at the end of each statement
// (releaseScratch), not individually.
func (c *Compiler) freshTemp() asm.Reg {
	c.labelSeq++
	r := c.reg.Allocate(regalloc.SymbolID(-1000 - int(c.labelSeq)))
	c.reg.Hold(r)
	return asm.Reg(r)
}
