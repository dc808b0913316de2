package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

// parseValue is the grammar's innermost tier: literals, identifiers,
// parenthesized subexpressions, and array literals (spec.md §4.6).
func (c *Compiler) parseValue() value {
	switch {
	case c.cur.Class == token.Number:
		n := int32(c.cur.Num)
		c.next()
		return kctvValue(n, symtab.TypeS32)

	case c.cur.Class == token.String:
		return c.parseStringLiteral()

	case c.cur.IsKeyword("true"):
		c.next()
		return kctvValue(1, symtab.TypeBool)
	case c.cur.IsKeyword("false"):
		c.next()
		return kctvValue(0, symtab.TypeBool)
	case c.cur.IsKeyword("null"), c.cur.IsKeyword("undefined"):
		c.next()
		return kctvValue(0, symtab.TypeU32)

	case c.cur.Is("("):
		c.next()
		v := c.parseExpr()
		c.expect(")")
		return v

	case c.cur.Is("["):
		return c.parseArrayLiteral()

	case c.cur.Class == token.Word:
		return c.parseIdentifier()

	default:
		c.fail(perr.KindParse, "unexpected token %q", c.cur.Text)
		c.next()
		return kctvValue(0, symtab.TypeS32)
	}
}

func (c *Compiler) parseStringLiteral() value {
	hash := c.cur.Hash
	text := c.cur.Text
	c.next()

	off := c.res.Find(hash)
	if off == 0 && text != "" {
		written, err := c.res.Write(hash, []byte(text))
		if err != nil {
			// duplicate content under a colliding fingerprint is
			// treated as a re-use of the existing entry (spec.md §8
			// "Fingerprint determinism" relies on DJB collisions being
			// rare enough in practice to ignore here).
			off = c.res.Find(hash)
		} else {
			off = written
		}
	}
	return kctvValue(int32(off), symtab.TypeU32)
}

// parseIdentifier resolves an identifier reference: a known symbol, or
// one of the intrinsic names (spec.md §4.6 "Intrinsics").
func (c *Compiler) parseIdentifier() value {
	hash := c.cur.Hash
	name := c.cur.Text
	pos := c.pos()
	c.next()

	if isIntrinsic(name) {
		return c.callIntrinsic(name, pos)
	}

	idx, ok := c.lookup(hash)
	if !ok {
		c.fail(perr.KindSemantic, "undeclared identifier %q", name)
		return kctvValue(0, symtab.TypeS32)
	}

	s := c.syms.Get(idx)
	if s.Type == symtab.TypeUncompiled || s.Type == symtab.TypeFunction {
		// bare function reference without a call: yields its entry
		// fingerprint as a KCTV, lets it be passed around as a value
		// (spec.md §4.6 "constexpr detection for compile-time function
		// evaluation" needs a way to name a function without calling it).
		return kctvValue(int32(hash), symtab.TypeFunction)
	}

	if s.Flags.Has(symtab.FlagHasKCTV) && !s.HasReg() {
		v := kctvValue(s.KCTV, s.Type)
		v.sym = idx // still a valid assignment/increment target, just not reg-resident yet
		return v
	}
	r := c.materialize(idx, pos)
	v := regValue(r, s.Type)
	v.sym = idx
	return v
}

func isIntrinsic(name string) bool {
	switch name {
	case "abs", "min", "max", "peek", "poke", "length", "pressed":
		return true
	default:
		return false
	}
}

// parseIndex lowers a[i] into an address computation, yielding a
// deref'd value whose reg holds the element's byte address (spec.md
// §4.6 "Lvalue/deref model for array indexing").
func (c *Compiler) parseIndex(base value) value {
	c.expect("[")
	idxExpr := c.parseExpr()
	c.expect("]")

	baseReg := c.materializeValue(base, c.pos())
	addr := c.freshTemp()
	c.asm.MOVreg(addr, baseReg, c.pos())
	c.asm.ADDSimm8(addr, 8, c.pos()) // skip header + flags words to the payload

	if idxExpr.hasKCTV {
		byteOff := idxExpr.kctv * 4
		if fitsImm8(byteOff) {
			c.asm.ADDSimm8(addr, uint32(byteOff), c.pos())
		} else {
			off := c.freshTemp()
			c.asm.LoadConst(off, uint32(byteOff), c.pos())
			c.asm.ADDSreg(addr, addr, off, c.pos())
		}
	} else {
		ir := c.materializeValue(idxExpr, c.pos())
		scaled := c.freshTemp()
		c.asm.LSLSimm(scaled, ir, 2, c.pos())
		c.asm.ADDSreg(addr, addr, scaled, c.pos())
	}

	v := regValue(addr, symtab.TypeS32)
	v.deref = true
	return v
}

// parseArrayLiteral allocates a fixed-size array directly into the
// shared script heap at compile time: the address is always a KCTV
// (spec.md §4.7 component C7), even when some elements are computed at
// runtime, mirroring the global-variable addressing model in
// symbols.go. The heap's reentrant lock brackets construction so a
// collection mid-literal never observes a partially-filled block with
// stale pointer-looking garbage in not-yet-written slots (spec.md §4.7
// "gcLock").
func (c *Compiler) parseArrayLiteral() value {
	pos := c.pos()
	c.expect("[")

	var elems []value
	for !c.cur.Is("]") {
		if len(elems) >= maxArrayElems {
			c.fail(perr.KindSemantic, "too many array elements (max %d)", maxArrayElems)
		}
		elems = append(elems, c.parseExpr())
		if !c.accept(",") {
			break
		}
	}
	c.expect("]")

	c.hp.Lock()
	defer c.hp.Unlock()

	arr, err := c.hp.Alloc(uint16(len(elems)), false)
	if err != nil {
		c.fail(perr.KindSemantic, "array literal: %v", err)
		return kctvValue(0, symtab.TypeU32)
	}
	for i, e := range elems {
		if e.hasKCTV {
			arr.Set(i, uint32(e.kctv))
		}
	}

	addr := asm.Reg(0)
	reserved := false
	for i, e := range elems {
		if e.hasKCTV {
			continue
		}
		if !reserved {
			addr = c.freshTemp()
			c.asm.LoadConst(addr, arr.Offset, pos)
			reserved = true
		}
		r := c.materializeValue(e, pos)
		elemAddr := c.freshTemp()
		c.asm.MOVreg(elemAddr, addr, pos)
		c.asm.ADDSimm8(elemAddr, uint32(8+4*i), pos)
		c.asm.STR(r, elemAddr, 0, pos)
	}

	return kctvValue(int32(arr.Offset), symtab.TypeU32)
}

// parseCall emits argument marshaling and a BL/BLX per spec.md §4.6
// "Call emission": user functions are always in-buffer and reached
// directly by BL (the 2 KiB buffer trivially fits Thumb-1's BL range).
// A callee bound by runtime.Host.Register instead carries its host
// index in KCTV with Type still TypeFunction on the real symtab entry
// (script functions move off TypeUncompiled only once compiled, never
// to TypeFunction, so the two never collide); that case loads the
// sentinel host address into R7 and BLXes through it rather than
// branching to an in-buffer label (spec.md §4.9 "getCall").
func (c *Compiler) parseCall(callee value) value {
	pos := c.pos()
	c.expect("(")
	var args []value
	for !c.cur.Is(")") {
		if len(args) >= maxParams {
			c.fail(perr.KindSemantic, "too many arguments (max %d)", maxParams)
		}
		args = append(args, c.parseExpr())
		if !c.accept(",") {
			break
		}
	}
	c.expect(")")

	if !callee.hasKCTV || callee.typ != symtab.TypeFunction {
		c.fail(perr.KindSemantic, "callee is not a function")
		return kctvValue(0, symtab.TypeS32)
	}
	fnHash := uint32(callee.kctv)

	isHost := false
	var hostPtr uint32
	if idx, ok := c.lookup(fnHash); ok {
		s := c.syms.Get(idx)
		if s.Type == symtab.TypeFunction {
			isHost = true
			hostPtr = uint32(s.KCTV)
		}
	}

	c.reg.SpillAll(true)
	argRegs := make([]asm.Reg, len(args))
	for i, a := range args {
		argRegs[i] = c.materializeValue(a, pos)
	}
	for i, r := range argRegs {
		dst := asm.Reg(i)
		if dst != r {
			c.asm.MOVreg(dst, r, pos)
		}
		c.reg.Invalidate(int(dst))
	}

	if isHost {
		// r7 is the one register the allocator never hands out
		// (regalloc.ScratchReg), so it is always free here regardless
		// of how many argument registers maxParams just filled.
		c.asm.LoadConst(asm.R7, hostPtr, pos)
		c.asm.BLX(asm.R7, pos)
	} else {
		c.asm.BL(fnHash, pos)
	}
	// the callee may have written to any global through its own body;
	// a global this scope still believes is a folded constant can no
	// longer be trusted once an opaque call has run.
	c.invalidateConstants(pos, func(scopeID int32) bool { return scopeID == 0 })
	return regValue(asm.R0, symtab.TypeS32)
}

// callIntrinsic dispatches one of the built-in operations (spec.md
// §4.6 "Intrinsics") directly into Thumb-1 sequences; none of these
// need a host callback since they only touch CPU registers, the
// shared heap's header words, or raw memory.
func (c *Compiler) callIntrinsic(name string, pos perr.Position) value {
	if name == "pressed" {
		return c.intrinsicPressed(pos)
	}

	c.expect("(")
	var args []value
	for !c.cur.Is(")") {
		args = append(args, c.parseExpr())
		if !c.accept(",") {
			break
		}
	}
	c.expect(")")

	switch name {
	case "abs":
		return c.intrinsicAbs(arg(args, 0), pos)
	case "min":
		return c.intrinsicMinMax(arg(args, 0), arg(args, 1), asm.LE, pos)
	case "max":
		return c.intrinsicMinMax(arg(args, 0), arg(args, 1), asm.GE, pos)
	case "peek":
		r := c.materializeValue(arg(args, 0), pos)
		dst := c.freshTemp()
		c.asm.LDR(dst, r, 0, pos)
		return regValue(dst, symtab.TypeU32)
	case "poke":
		addr := c.materializeValue(arg(args, 0), pos)
		val := c.materializeValue(arg(args, 1), pos)
		c.asm.STR(val, addr, 0, pos)
		return kctvValue(0, symtab.TypeU32)
	case "length":
		r := c.materializeValue(arg(args, 0), pos)
		return regValue(c.loadArrayLength(r, pos), symtab.TypeU32)
	default:
		c.fail(perr.KindSemantic, "unknown intrinsic %q", name)
		return kctvValue(0, symtab.TypeS32)
	}
}

// loadArrayLength reads the element count out of an array's header
// word (heap.go's "bits 0-15 length" layout) given its address already
// resident in addrReg.
func (c *Compiler) loadArrayLength(addrReg asm.Reg, pos perr.Position) asm.Reg {
	dst := c.freshTemp()
	c.asm.LDR(dst, addrReg, 0, pos)
	c.andImm(dst, 0xFFFF, pos)
	return dst
}

func arg(args []value, i int) value {
	if i < len(args) {
		return args[i]
	}
	return kctvValue(0, symtab.TypeS32)
}

func (c *Compiler) intrinsicAbs(v value, pos perr.Position) value {
	if v.hasKCTV {
		n := v.kctv
		if n < 0 {
			n = -n
		}
		return kctvValue(n, symtab.TypeS32)
	}
	src := c.materializeValue(v, pos)
	dst := c.freshTemp()
	c.asm.MOVreg(dst, src, pos)
	negIfNeg(c, dst, negFlag(c, src, pos), pos)
	return regValue(dst, symtab.TypeS32)
}

// negFlag materializes "r < 0" as a plain 0/1 register for use with
// negIfNeg's conditional-negate pattern.
func negFlag(c *Compiler, r asm.Reg, pos perr.Position) asm.Reg {
	c.asm.CMPimm(r, 0, pos)
	flag := c.freshTemp()
	c.setBoolReg(flag, asm.LT, pos)
	return flag
}

func (c *Compiler) intrinsicMinMax(a, b value, keepCond asm.Cond, pos perr.Position) value {
	if a.hasKCTV && b.hasKCTV {
		keep := a.kctv
		switch {
		case keepCond == asm.LE && a.kctv > b.kctv:
			keep = b.kctv
		case keepCond == asm.GE && a.kctv < b.kctv:
			keep = b.kctv
		}
		return kctvValue(keep, symtab.TypeS32)
	}
	la := c.materializeValue(a, pos)
	lb := c.materializeValue(b, pos)
	dst := c.freshTemp()
	c.asm.MOVreg(dst, la, pos)
	c.asm.CMPreg(la, lb, pos)
	skip := c.newLabel()
	c.asm.Bcc(keepCond, skip, pos)
	c.asm.MOVreg(dst, lb, pos)
	c.asm.Define(skip, pos)
	return regValue(dst, symtab.TypeS32)
}

// intrinsicPressed reads a button's debounced state from the fixed
// input port word (spec.md §4.6 intrinsics table; offsets named in
// token.ButtonOffsets). The button name is consumed as a bare word
// token, e.g. pressed(A), matched directly against the offsets table
// rather than going through general expression parsing, since it
// names a button and is never a value. The port's real address is
// resolved by the runtime glue, same simplification as globalBase in
// symbols.go.
const inputPortAddr = 4

func (c *Compiler) intrinsicPressed(pos perr.Position) value {
	c.expect("(")
	bit, ok := token.ButtonOffsets[c.cur.Text]
	if c.cur.Class != token.Word || !ok {
		c.fail(perr.KindSemantic, "pressed() expects a button name (A, B, C, UP, DOWN, LEFT, RIGHT)")
		bit = 0
	} else {
		c.next()
	}
	c.expect(")")

	addr := c.freshTemp()
	c.asm.LoadConst(addr, inputPortAddr, pos)
	word := c.freshTemp()
	c.asm.LDR(word, addr, 0, pos)
	c.asm.LSRSimm(word, word, bit, pos)
	c.andImm(word, 1, pos)
	return regValue(word, symtab.TypeBool)
}
