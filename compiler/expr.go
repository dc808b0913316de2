package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/regalloc"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

var assignOps = map[string]string{
	"=": "", "+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%",
	"<<=": "<<", ">>=": ">>", ">>>=": ">>>", "&=": "&", "|=": "|", "^=": "^",
	"&&=": "&&", "||=": "||",
}

// parseExpr parses a full expression, assignment included (spec.md
// §4.6 "Assignment commits").
func (c *Compiler) parseExpr() value {
	left := c.parseLogic()
	op, isAssign := assignOps[c.cur.Text]
	if c.cur.Class != token.Operator || !isAssign {
		return left
	}
	c.next()
	rhs := c.parseExpr()
	return c.assign(left, op, rhs)
}

func (c *Compiler) assign(lhs value, compoundOp string, rhs value) value {
	if lhs.sym < 0 && !lhs.deref {
		c.fail(perr.KindParse, "invalid assignment target")
		return lhs
	}
	if lhs.sym >= 0 {
		s := c.syms.Get(lhs.sym)
		if s.Flags.Has(symtab.FlagConstant) {
			c.fail(perr.KindSemantic, "cannot assign to const")
			return lhs
		}
	}

	result := rhs
	if compoundOp != "" {
		result = c.applyBinary(compoundOp, lhs, rhs)
	}

	if lhs.deref {
		r := c.materializeValue(result, c.pos())
		c.asm.STR(r, lhs.reg, 0, c.pos())
		return result
	}

	idx := lhs.sym
	s := c.syms.Get(idx)
	if result.hasKCTV {
		s.KCTV = result.kctv
		s.Flags |= symtab.FlagHasKCTV
		if s.HasReg() {
			c.asm.LoadConst(asm.Reg(s.Reg), uint32(result.kctv), c.pos())
			s.Flags |= symtab.FlagDirty
		}
		c.syms.Set(idx, s)
		return kctvValue(result.kctv, result.typ)
	}

	r := c.materializeValue(result, c.pos())
	reg := c.reg.Allocate(regalloc.SymbolID(idx))
	c.reg.Hold(reg)
	if asm.Reg(reg) != r {
		c.asm.MOVreg(asm.Reg(reg), r, c.pos())
	}
	s = c.syms.Get(idx)
	s.Reg = uint32(reg)
	s.Flags |= symtab.FlagDirty
	s.Flags &^= symtab.FlagHasKCTV
	c.syms.Set(idx, s)
	return regValue(asm.Reg(reg), result.typ)
}

// materializeValue forces v into a concrete register, resolving KCTV
// loads and CAST_* boolCasts as needed (spec.md §4.6 "boolCast").
func (c *Compiler) materializeValue(v value, pos perr.Position) asm.Reg {
	switch {
	case v.hasReg:
		if v.deref {
			r := v.reg
			c.asm.LDR(r, r, 0, pos)
			return r
		}
		return v.reg
	case v.isFlag:
		return c.boolCast(v.cond, pos)
	default:
		r := c.freshTemp()
		c.asm.LoadConst(r, uint32(v.kctv), pos)
		return r
	}
}

// boolCast converts a CPU-flag comparison result into a 0/1 integer
// (spec.md §4.6). A generic branch-based sequence (setBoolReg) is used
// uniformly instead of the teacher's flag-only bit tricks.
func (c *Compiler) boolCast(cond asm.Cond, pos perr.Position) asm.Reg {
	r := c.freshTemp()
	c.setBoolReg(r, cond, pos)
	return r
}

// setBoolReg writes 0 or 1 into r according to cond, the uniform
// branch-based boolCast sequence also used by the hand-emitted division
// helper's sign extraction.
func (c *Compiler) setBoolReg(r asm.Reg, cond asm.Cond, pos perr.Position) {
	c.asm.MOVS(r, 0, pos)
	skip := c.newLabel()
	c.asm.Bcc(invertCond(cond), skip, pos)
	c.asm.MOVS(r, 1, pos)
	c.asm.Define(skip, pos)
}

// parseLogic handles && and || with short-circuit evaluation.
func (c *Compiler) parseLogic() value {
	left := c.parseBitOr()
	for c.cur.Class == token.Operator && (c.cur.Text == "&&" || c.cur.Text == "||") {
		isAnd := c.cur.Text == "&&"
		c.next()

		if left.hasKCTV {
			truthy := left.kctv != 0
			if (isAnd && !truthy) || (!isAnd && truthy) {
				// short-circuits without evaluating the right side
				c.skipExprConstant()
				left = kctvValue(left.kctv, symtab.TypeBool)
				continue
			}
			right := c.parseBitOr()
			left = right
			continue
		}

		lr := c.materializeValue(left, c.pos())
		end := c.newLabel()
		c.asm.CMPimm(lr, 0, c.pos())
		if isAnd {
			c.asm.Bcc(asm.EQ, end, c.pos())
		} else {
			c.asm.Bcc(asm.NE, end, c.pos())
		}
		right := c.parseBitOr()
		rr := c.materializeValue(right, c.pos())
		if rr != lr {
			c.asm.MOVreg(lr, rr, c.pos())
		}
		c.asm.Define(end, c.pos())
		left = regValue(lr, symtab.TypeBool)
	}
	return left
}

// skipExprConstant parses (and discards) an operand purely to advance
// the token stream past a short-circuited operand; KCTV folding means
// no code was emitted for it, but side-effect-free constant operands
// are harmless to still walk.
func (c *Compiler) skipExprConstant() { c.parseBitOr() }

func (c *Compiler) parseBitOr() value  { return c.binLevel([]string{"|"}, c.parseBitXor) }
func (c *Compiler) parseBitXor() value { return c.binLevel([]string{"^"}, c.parseBitAnd) }
func (c *Compiler) parseBitAnd() value { return c.binLevel([]string{"&"}, c.parseCompare) }
func (c *Compiler) parseCompare() value {
	return c.binLevel([]string{"==", "!=", "===", "!==", "<", "<=", ">", ">="}, c.parseShift)
}
func (c *Compiler) parseShift() value { return c.binLevel([]string{"<<", ">>", ">>>"}, c.parseSum) }
func (c *Compiler) parseSum() value   { return c.binLevel([]string{"+", "-"}, c.parseMul) }
func (c *Compiler) parseMul() value   { return c.binLevel([]string{"*", "/", "%"}, c.parseUnary) }

func (c *Compiler) binLevel(ops []string, next func() value) value {
	left := next()
	for c.cur.Class == token.Operator && containsOp(ops, c.cur.Text) {
		op := c.cur.Text
		c.next()
		right := next()
		left = c.applyBinary(op, left, right)
	}
	return left
}

func containsOp(ops []string, s string) bool {
	for _, o := range ops {
		if o == s {
			return true
		}
	}
	return false
}

func (c *Compiler) parseUnary() value {
	switch {
	case c.cur.Is("!"):
		c.next()
		v := c.parseUnary()
		if v.hasKCTV {
			b := int32(0)
			if v.kctv == 0 {
				b = 1
			}
			return kctvValue(b, symtab.TypeBool)
		}
		r := c.materializeValue(v, c.pos())
		c.asm.CMPimm(r, 0, c.pos())
		return flagValue(asm.EQ)
	case c.cur.Is("~"):
		c.next()
		v := c.parseUnary()
		if v.hasKCTV {
			return kctvValue(^v.kctv, symtab.TypeS32)
		}
		r := c.materializeValue(v, c.pos())
		c.asm.MVNS(r, r, c.pos())
		return regValue(r, symtab.TypeS32)
	case c.cur.Is("-"):
		c.next()
		v := c.parseUnary()
		if v.hasKCTV {
			return kctvValue(-v.kctv, symtab.TypeS32)
		}
		r := c.materializeValue(v, c.pos())
		c.asm.RSBS(r, r, c.pos())
		return regValue(r, symtab.TypeS32)
	case c.cur.Is("+"):
		c.next()
		return c.parseUnary()
	case c.cur.Is("++") || c.cur.Is("--"):
		inc := c.cur.Is("++")
		c.next()
		v := c.parseUnary()
		return c.incDec(v, inc, true)
	default:
		return c.parsePostfix()
	}
}

// incDec implements pre-/post-increment on an lvalue; deref'd targets
// use R7 as the address scratch (spec.md §4.6 lvalue/deref model).
func (c *Compiler) incDec(v value, inc bool, prefix bool) value {
	var r asm.Reg
	if v.deref {
		r = v.reg
		c.asm.LDR(asm.R7, r, 0, c.pos())
		old := asm.R7
		if inc {
			c.asm.ADDSimm8(old, 1, c.pos())
		} else {
			c.asm.SUBSimm8(old, 1, c.pos())
		}
		c.asm.STR(old, r, 0, c.pos())
		if prefix {
			return regValue(old, symtab.TypeS32)
		}
		// post: caller wants the pre-update value; recompute it cheaply.
		pre := asm.R7
		if inc {
			c.asm.SUBSimm8(pre, 1, c.pos())
		} else {
			c.asm.ADDSimm8(pre, 1, c.pos())
		}
		return regValue(pre, symtab.TypeS32)
	}

	if v.sym < 0 {
		c.fail(perr.KindParse, "invalid increment/decrement target")
		return v
	}
	r = c.materialize(v.sym, c.pos())
	s := c.syms.Get(v.sym)
	if s.Flags.Has(symtab.FlagConstant) {
		c.fail(perr.KindSemantic, "cannot modify const")
		return v
	}
	pre := regValue(r, symtab.TypeS32)
	if !prefix {
		// stash the old value in a fresh register before mutating r.
		saved := c.freshTemp()
		c.asm.MOVreg(saved, r, c.pos())
		pre = regValue(saved, symtab.TypeS32)
	}
	if inc {
		c.asm.ADDSimm8(r, 1, c.pos())
	} else {
		c.asm.SUBSimm8(r, 1, c.pos())
	}
	s = c.syms.Get(v.sym)
	s.Flags |= symtab.FlagDirty
	s.Flags &^= symtab.FlagHasKCTV
	c.syms.Set(v.sym, s)
	if prefix {
		return regValue(r, symtab.TypeS32)
	}
	return pre
}

func (c *Compiler) parsePostfix() value {
	v := c.parseValue()
	for {
		switch {
		case c.cur.Is("["):
			v = c.parseIndex(v)
		case c.cur.Is("("):
			v = c.parseCall(v)
		case c.cur.Is("++") || c.cur.Is("--"):
			inc := c.cur.Is("++")
			c.next()
			v = c.incDec(v, inc, false)
		default:
			return v
		}
	}
}
