package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/regalloc"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

// initHash names the global-initialization routine: every top-level
// statement outside a function declaration compiles into its body, and
// the runtime glue (C9) calls it once at boot before dispatching to any
// named script function (spec.md §4.6 "top-level statements are
// emitted into an implicit main function", generalized here to an
// explicit boot routine since functions are looked up and called by
// name, not by a single hardcoded entry point).
var initHash = token.Hash("$init")

// calleeSaved is the fixed register set every function preserves
// across a call. The teacher's optimal variant only pushes registers
// actually clobbered, discovered by a second look at the compiled
// body; this compiler always pushes the full low/callee-saved range
// instead, trading that optimization for a single-pass prologue that
// never needs to be patched after the fact.
const calleeSaved = 1<<asm.R4 | 1<<asm.R5 | 1<<asm.R6 | 1<<asm.R7

// parseGlobalPhase runs phase 1 of the two-phase function compiler
// (spec.md §4.6): every function declaration is recorded as an
// UNCOMPILED symbol and its body skipped as a balanced bracket span;
// every other top-level statement compiles immediately into the boot
// routine.
func (c *Compiler) parseGlobalPhase() {
	pos := c.pos()
	c.asm.Define(initHash, pos)
	for c.cur.Class != token.Eof {
		if c.cur.IsKeyword("function") {
			c.registerUncompiledFunction()
			continue
		}
		c.parseStatement()
	}
	c.asm.BX(asm.LR, c.pos())
}

// registerUncompiledFunction consumes `function name(...) { ... }`
// without compiling it, recording enough to resume later: the symbol's
// Init field holds the byte offset of the parameter list's opening
// paren, and KCTV (otherwise unused for an UNCOMPILED symbol) holds the
// source line, matching what token.Lexer.SetLocation needs to resume
// scanning at phase 2 (spec.md §4.6 "rewinds the tokenizer").
func (c *Compiler) registerUncompiledFunction() {
	c.next() // consume "function"
	if c.cur.Class != token.Word {
		c.fail(perr.KindParse, "expected function name after 'function'")
		return
	}
	hash := c.cur.Hash
	name := c.cur.Text
	c.next()

	if _, exists := c.lookupGlobal(hash); exists {
		c.fail(perr.KindSemantic, "function %q already defined", name)
	}

	bodyOffset := c.cur.Offset
	bodyLine := c.cur.Line

	idx := c.declare(hash)
	s := c.syms.Get(idx)
	s.Type = symtab.TypeUncompiled
	s.Init = int32(bodyOffset)
	s.KCTV = int32(bodyLine)
	c.syms.Set(idx, s)

	c.skipBalanced() // consumes "(params)"
	c.skipBalanced() // consumes "{ body }"
}

// lookupGlobal checks only scope 0, used for top-level redeclaration
// checks where the general scope-falling-back lookup() would be wrong.
func (c *Compiler) lookupGlobal(hash uint32) (int, bool) {
	for _, idx := range c.index[hash] {
		if c.syms.Get(idx).ScopeID == 0 {
			return idx, true
		}
	}
	return 0, false
}

// skipBalanced consumes tokens starting at an opening bracket/paren/
// brace until its match closes, tracking all three kinds in one
// counter since Pine2K source never nests them in a way that would
// make that ambiguous (spec.md §4.6 "skipping the body as a balanced
// brace block").
func (c *Compiler) skipBalanced() {
	depth := 0
	for {
		if c.cur.Class == token.Eof {
			c.fail(perr.KindParse, "unexpected end of file")
			return
		}
		opens := c.cur.Is("(") || c.cur.Is("{") || c.cur.Is("[")
		closes := c.cur.Is(")") || c.cur.Is("}") || c.cur.Is("]")
		if opens {
			depth++
		} else if closes {
			depth--
		}
		c.next()
		if depth == 0 {
			return
		}
	}
}

// compileUncompiledFunctions runs phase 2 (spec.md §4.6): every
// UNCOMPILED symbol from phase 1 is compiled in declaration order.
func (c *Compiler) compileUncompiledFunctions() {
	var pending []int
	c.syms.Iterate(func(idx int, s symtab.Symbol) symtab.Symbol {
		if s.Type == symtab.TypeUncompiled {
			pending = append(pending, idx)
		}
		return s
	})
	for _, idx := range pending {
		c.compileFunction(idx)
		if c.errs.HasError() {
			return
		}
	}
}

// compileFunction rewinds the tokenizer to a recorded UNCOMPILED
// function's body and emits its parameter binding, prologue, body, and
// shared-epilogue return path (spec.md §4.6 "Prologue/epilogue
// management").
func (c *Compiler) compileFunction(idx int) {
	s := c.syms.Get(idx)
	hash := s.Hash

	c.lex.SetLocation(int(s.Init), int(s.KCTV))
	c.next()
	c.next()

	prevScope, prevInFunc, prevReturn, prevFuncHash := c.scopeID, c.inFunction, c.returnLabel, c.funcHash
	c.scopeID = c.nextScopeID
	c.nextScopeID++
	c.inFunction = true
	c.funcHash = hash
	c.reg.Reset()
	defer func() {
		c.scopeID, c.inFunction, c.returnLabel, c.funcHash = prevScope, prevInFunc, prevReturn, prevFuncHash
	}()

	pos := c.pos()
	c.asm.Define(hash, pos)
	c.asm.PUSH(calleeSaved, true, pos)

	c.expect("(")
	var params []int
	for !c.cur.Is(")") {
		if len(params) >= maxParams {
			c.fail(perr.KindSemantic, "too many parameters (max %d)", maxParams)
		}
		if c.cur.Class != token.Word {
			c.fail(perr.KindParse, "expected parameter name")
			break
		}
		pidx := c.declare(c.cur.Hash)
		params = append(params, pidx)
		c.next()
		if !c.accept(",") {
			break
		}
	}
	c.expect(")")

	for i, pidx := range params {
		ps := c.syms.Get(pidx)
		ps.Reg = uint32(i)
		ps.Flags |= symtab.FlagDirty
		c.syms.Set(pidx, ps)
		c.reg.Assign(regalloc.SymbolID(pidx), i)
	}

	c.returnLabel = c.newLabel()

	c.expect("{")
	for !c.cur.Is("}") && c.cur.Class != token.Eof {
		c.parseStatement()
	}
	c.expect("}")

	endPos := c.pos()
	c.asm.Define(c.returnLabel, endPos)
	c.asm.POP(calleeSaved, true, endPos)
}
