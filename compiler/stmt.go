package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

// parseStatement dispatches one statement (spec.md §4.6 control-flow
// forms). Declarations, blocks, and control structures recurse here;
// everything else falls through to an expression statement.
func (c *Compiler) parseStatement() {
	switch {
	case c.cur.Is("{"):
		c.parseBlock()
	case c.cur.IsKeyword("var"), c.cur.IsKeyword("let"), c.cur.IsKeyword("const"):
		c.parseVarDecl()
	case c.cur.IsKeyword("if"):
		c.parseIf()
	case c.cur.IsKeyword("while"):
		c.parseWhile()
	case c.cur.IsKeyword("do"):
		c.parseDoWhile()
	case c.cur.IsKeyword("for"):
		c.parseFor()
	case c.cur.IsKeyword("return"):
		c.parseReturn()
	case c.cur.IsKeyword("break"):
		c.parseBreak()
	case c.cur.IsKeyword("continue"):
		c.parseContinue()
	case c.cur.IsKeyword("debugger"):
		c.next()
		c.asm.BKPT(0, c.pos())
		c.accept(";")
	case c.cur.Is(";"):
		c.next()
	default:
		c.parseExpr()
		c.accept(";")
	}
	c.releaseScratch()
}

// releaseScratch drops every hold taken out during the statement just
// compiled (freshTemp, materialize, assign): holds exist only to keep
// a value alive across the sub-expressions of a single statement, so
// nothing should still need one once the statement ends.
func (c *Compiler) releaseScratch() {
	for r := 0; r <= int(asm.R6); r++ {
		c.reg.Release(r)
	}
}

func (c *Compiler) parseBlock() {
	c.expect("{")
	for !c.cur.Is("}") && c.cur.Class != token.Eof {
		c.parseStatement()
	}
	c.expect("}")
}

// parseVarDecl implements var/let/const bindings. const requires a
// compile-time-constant initializer (spec.md §7 "undeclared constant
// reference needing KCTV" implies const values are always KCTV-backed)
// and is flagged read-only only after its initializing assignment, so
// that assignment path doesn't have to special-case the first write.
func (c *Compiler) parseVarDecl() {
	isConst := c.cur.IsKeyword("const")
	c.next()

	for {
		if c.cur.Class != token.Word {
			c.fail(perr.KindParse, "expected identifier in declaration")
			break
		}
		hash, name := c.cur.Hash, c.cur.Text
		c.next()

		if _, exists := c.lookupOwnScope(hash); exists {
			c.fail(perr.KindSemantic, "%q redeclared in this scope", name)
		}
		idx := c.declare(hash)

		if c.accept("=") {
			rhs := c.parseExpr()
			if isConst && !rhs.hasKCTV {
				c.fail(perr.KindSemantic, "const %q needs a compile-time-constant initializer", name)
			}
			c.assign(value{sym: idx, typ: symtab.TypeS32}, "", rhs)
		} else if isConst {
			c.fail(perr.KindSemantic, "const %q requires an initializer", name)
		}

		if isConst {
			s := c.syms.Get(idx)
			s.Flags |= symtab.FlagConstant
			c.syms.Set(idx, s)
		}

		if !c.accept(",") {
			break
		}
	}
	c.accept(";")
}

// lookupOwnScope checks only the current scope, for redeclaration
// diagnostics where lookup()'s global fallback would be wrong.
func (c *Compiler) lookupOwnScope(hash uint32) (int, bool) {
	for _, idx := range c.index[hash] {
		if c.syms.Get(idx).ScopeID == c.scopeID {
			return idx, true
		}
	}
	return 0, false
}

// branchOnFalsy materializes cond and emits a conditional branch to
// target taken when cond is falsy (zero). When cond is already KCTV no
// test is emitted: an always-false cond becomes an unconditional branch
// to target and an always-true cond emits nothing.
func (c *Compiler) branchOnFalsy(cond value, target uint32) {
	if cond.hasKCTV {
		if cond.kctv == 0 {
			c.asm.B(target, c.pos())
		}
		return
	}
	if cond.isFlag {
		c.asm.Bcc(invertCond(cond.cond), target, c.pos())
		return
	}
	r := c.materializeValue(cond, c.pos())
	c.asm.CMPimm(r, 0, c.pos())
	c.asm.Bcc(asm.EQ, target, c.pos())
}

func (c *Compiler) parseIf() {
	c.next()
	c.expect("(")
	cond := c.parseExpr()
	c.expect(")")

	// force any symbol either branch might reassign into a concrete
	// register before the branch splits: both arms then write the same
	// register, so whichever one actually runs at runtime leaves the
	// right value behind, and the arm that doesn't run can't poison a
	// later fold with an assignment that never executed.
	c.invalidateConstants(c.pos(), c.inCurrentFrame)

	elseLabel := c.newLabel()
	c.branchOnFalsy(cond, elseLabel)
	c.parseStatement()

	if c.cur.IsKeyword("else") {
		end := c.newLabel()
		c.asm.B(end, c.pos())
		c.asm.Define(elseLabel, c.pos())
		c.next()
		c.parseStatement()
		c.asm.Define(end, c.pos())
	} else {
		c.asm.Define(elseLabel, c.pos())
	}
}

func (c *Compiler) pushLoop(brk, cont uint32) { c.loop = append(c.loop, loopContext{brk, cont}) }
func (c *Compiler) popLoop()                  { c.loop = c.loop[:len(c.loop)-1] }

// inCurrentFrame keeps a symbol live across a loop boundary when it
// belongs to the active function's frame or to globals; every other
// scope is a different, already-compiled function's dead frame.
func (c *Compiler) inCurrentFrame(scopeID int32) bool {
	return scopeID == 0 || scopeID == c.scopeID
}

func (c *Compiler) parseWhile() {
	c.next()
	c.expect("(")
	top := c.newLabel()
	end := c.newLabel()
	c.asm.Define(top, c.pos())
	c.invalidateConstants(c.pos(), c.inCurrentFrame)
	cond := c.parseExpr()
	c.expect(")")
	c.branchOnFalsy(cond, end)

	c.pushLoop(end, top)
	c.parseStatement()
	c.popLoop()

	c.asm.B(top, c.pos())
	c.asm.Define(end, c.pos())
}

func (c *Compiler) parseDoWhile() {
	c.next()
	top := c.newLabel()
	end := c.newLabel()
	continueLabel := c.newLabel()
	c.asm.Define(top, c.pos())
	c.invalidateConstants(c.pos(), c.inCurrentFrame)

	c.pushLoop(end, continueLabel)
	c.parseStatement()
	c.popLoop()

	if !c.cur.IsKeyword("while") {
		c.fail(perr.KindParse, "expected 'while' after do-block")
		return
	}
	c.next()
	c.expect("(")
	c.asm.Define(continueLabel, c.pos())
	cond := c.parseExpr()
	c.expect(")")
	c.accept(";")

	if cond.hasKCTV {
		if cond.kctv != 0 {
			c.asm.B(top, c.pos())
		}
	} else if cond.isFlag {
		c.asm.Bcc(cond.cond, top, c.pos())
	} else {
		r := c.materializeValue(cond, c.pos())
		c.asm.CMPimm(r, 0, c.pos())
		c.asm.Bcc(asm.NE, top, c.pos())
	}
	c.asm.Define(end, c.pos())
}

// parseFor handles the classic three-clause form as well as for-of and
// for-in (spec.md §4.6): the latter two are distinguished by the
// keyword following the loop variable's declaration.
func (c *Compiler) parseFor() {
	c.next()
	c.expect("(")

	if c.looksLikeForEach() {
		c.parseForEach()
		return
	}

	if !c.cur.Is(";") {
		if c.cur.IsKeyword("var") || c.cur.IsKeyword("let") || c.cur.IsKeyword("const") {
			c.parseVarDecl()
		} else {
			c.parseExpr()
			c.accept(";")
		}
	} else {
		c.next()
	}

	top := c.newLabel()
	end := c.newLabel()
	continueLabel := c.newLabel()
	c.asm.Define(top, c.pos())
	c.invalidateConstants(c.pos(), c.inCurrentFrame)

	if !c.cur.Is(";") {
		cond := c.parseExpr()
		c.branchOnFalsy(cond, end)
	}
	c.expect(";")

	if !c.cur.Is(")") {
		// the post-clause is parsed now but must run after the body, so
		// it is compiled into its own block, skipped over on the way in.
		skipPost := c.newLabel()
		c.asm.B(skipPost, c.pos())
		c.asm.Define(continueLabel, c.pos())
		c.parseExpr()
		c.asm.B(top, c.pos())
		c.asm.Define(skipPost, c.pos())
	} else {
		// no post-clause: continuing just re-checks the condition. The
		// jump back to top is skipped over on the way in, as above.
		skipCont := c.newLabel()
		c.asm.B(skipCont, c.pos())
		c.asm.Define(continueLabel, c.pos())
		c.asm.B(top, c.pos())
		c.asm.Define(skipCont, c.pos())
	}
	c.expect(")")

	c.pushLoop(end, continueLabel)
	c.parseStatement()
	c.popLoop()

	c.asm.B(continueLabel, c.pos())
	c.asm.Define(end, c.pos())
}

// looksLikeForEach peeks past an optional var/let/const and an
// identifier to see whether "of" or "in" follows, without consuming
// anything — a one-token lookahead beyond what cur/peek alone offer is
// unnecessary because the grammar only needs to distinguish at the
// token right after the bound name, which peek already exposes once
// the declaration keyword (if any) is consumed speculatively onto a
// saved lexer location.
func (c *Compiler) looksLikeForEach() bool {
	if c.cur.IsKeyword("var") || c.cur.IsKeyword("let") || c.cur.IsKeyword("const") {
		return c.peek.Class == token.Word && (c.peekOfIn())
	}
	return c.cur.Class == token.Word && c.peek.IsKeyword("of", "in")
}

// peekOfIn reports whether the token after the loop variable's name is
// 'of' or 'in', by speculatively saving and restoring lexer state.
func (c *Compiler) peekOfIn() bool {
	savedOffset, savedLine := c.lex.Offset(), c.lex.Line()
	savedCur, savedPeek := c.cur, c.peek
	// cur is the declaration keyword, peek is the bound name; the token
	// after that is two Next() calls past peek.
	thirdHash := c.lex.Next()
	result := thirdHash.IsKeyword("of", "in")
	c.lex.SetLocation(savedOffset, savedLine)
	c.cur, c.peek = savedCur, savedPeek
	return result
}

func (c *Compiler) parseForEach() {
	if c.cur.IsKeyword("var") || c.cur.IsKeyword("let") || c.cur.IsKeyword("const") {
		c.next()
	}
	if c.cur.Class != token.Word {
		c.fail(perr.KindParse, "expected loop variable name")
		return
	}
	hash := c.cur.Hash
	c.next()

	isOf := c.cur.IsKeyword("of")
	if !isOf && !c.cur.IsKeyword("in") {
		c.fail(perr.KindParse, "expected 'of' or 'in'")
		return
	}
	c.next()

	arr := c.parseExpr()
	c.expect(")")

	loopVarIdx, exists := c.lookupOwnScope(hash)
	if !exists {
		loopVarIdx = c.declare(hash)
	}

	addr := c.materializeValue(arr, c.pos())
	lenReg := c.loadArrayLength(addr, c.pos())
	iReg := c.freshTemp()
	c.asm.MOVS(iReg, 0, c.pos())

	top := c.newLabel()
	end := c.newLabel()
	continueLabel := c.newLabel()
	c.asm.Define(top, c.pos())
	c.asm.CMPreg(iReg, lenReg, c.pos())
	c.asm.Bcc(asm.GE, end, c.pos())
	c.invalidateConstants(c.pos(), c.inCurrentFrame)

	loopVarReg := c.materialize(loopVarIdx, c.pos())
	if isOf {
		elemAddr := c.freshTemp()
		c.asm.MOVreg(elemAddr, addr, c.pos())
		c.asm.ADDSimm8(elemAddr, 8, c.pos())
		idxBytes := c.freshTemp()
		c.asm.LSLSimm(idxBytes, iReg, 2, c.pos())
		c.asm.ADDSreg(elemAddr, elemAddr, idxBytes, c.pos())
		c.asm.LDR(loopVarReg, elemAddr, 0, c.pos())
	} else {
		c.asm.MOVreg(loopVarReg, iReg, c.pos())
	}
	c.commitLoopVar(loopVarIdx)

	c.pushLoop(end, continueLabel)
	c.parseStatement()
	c.popLoop()

	c.asm.Define(continueLabel, c.pos())
	c.asm.ADDSimm8(iReg, 1, c.pos())
	c.asm.B(top, c.pos())
	c.asm.Define(end, c.pos())
}

func (c *Compiler) commitLoopVar(idx int) {
	s := c.syms.Get(idx)
	s.Flags |= symtab.FlagDirty
	s.Flags &^= symtab.FlagHasKCTV
	c.syms.Set(idx, s)
}

func (c *Compiler) parseReturn() {
	pos := c.pos()
	c.next()
	if !c.inFunction {
		c.fail(perr.KindSemantic, "'return' outside function")
	}
	if c.cur.Is(";") || c.cur.Is("}") {
		c.asm.MOVS(asm.R0, 0, pos)
	} else {
		v := c.parseExpr()
		r := c.materializeValue(v, pos)
		if r != asm.R0 {
			c.asm.MOVreg(asm.R0, r, pos)
		}
	}
	c.accept(";")
	c.asm.B(c.returnLabel, pos)
}

func (c *Compiler) parseBreak() {
	pos := c.pos()
	c.next()
	c.accept(";")
	if len(c.loop) == 0 {
		c.fail(perr.KindSemantic, "'break' outside loop")
		return
	}
	c.asm.B(c.loop[len(c.loop)-1].breakLabel, pos)
}

func (c *Compiler) parseContinue() {
	pos := c.pos()
	c.next()
	c.accept(";")
	if len(c.loop) == 0 {
		c.fail(perr.KindSemantic, "'continue' outside loop")
		return
	}
	c.asm.B(c.loop[len(c.loop)-1].continueLabel, pos)
}
