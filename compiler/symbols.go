package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/regalloc"
	"github.com/pine2k/pine2k/symtab"
)

// lookup resolves hash against the current scope, falling back to the
// global scope (spec.md §8 "Scope isolation": a symbol declared in
// scope S is invisible from scope S'≠0 unless S'=0; globals are
// visible everywhere).
func (c *Compiler) lookup(hash uint32) (int, bool) {
	var globalIdx int
	haveGlobal := false
	for _, idx := range c.index[hash] {
		s := c.syms.Get(idx)
		if s.ScopeID == c.scopeID {
			return idx, true
		}
		if s.ScopeID == 0 {
			globalIdx, haveGlobal = idx, true
		}
	}
	if haveGlobal {
		return globalIdx, true
	}
	return 0, false
}

// declare registers a brand-new symbol in the current scope.
func (c *Compiler) declare(hash uint32) int {
	idx := c.syms.Alloc()
	s := c.syms.Get(idx)
	s.Hash = hash
	s.ScopeID = c.scopeID
	c.syms.Set(idx, s)
	c.index[hash] = append(c.index[hash], idx)
	return idx
}

// allocAddress assigns a memory slot to a symbol that needs to be
// spilled or that a later-phase function reference must commit: a
// word index into the global data section for scope 0, or a word
// index into the current function's stack frame otherwise (spec.md §3
// Symbol.address).
func (c *Compiler) allocAddress(idx int) uint32 {
	s := c.syms.Get(idx)
	if s.HasAddress() {
		return s.Address
	}
	var addr uint32
	if s.ScopeID == 0 {
		addr = uint32(c.globalCount)
		c.globalCount++
	} else {
		addr = uint32(c.localCount[s.ScopeID])
		c.localCount[s.ScopeID]++
	}
	s.Address = addr
	c.syms.Set(idx, s)
	return addr
}

// Spill implements regalloc.Spillable: the allocator calls back here
// when it evicts a register occupant, per spec.md §9's explicit
// "model this as a trait/interface Spillable" instruction.
func (c *Compiler) Spill(sym regalloc.SymbolID, reg int) {
	idx := int(sym)
	if idx < 0 {
		// a synthetic temporary (freshTemp), never backed by a symtab
		// entry; Hold() in freshTemp keeps these from being evicted
		// under normal use, but the allocator's bookkeeping still
		// calls back here on Reset/forced eviction, so just drop it.
		return
	}
	s := c.syms.Get(idx)
	if s.Flags.Has(symtab.FlagDirty) {
		addr := c.allocAddress(idx)
		c.storeSlot(asm.Reg(reg), s.ScopeID, addr, c.pos())
		s.Flags &^= symtab.FlagDirty
	}
	s.ClearReg()
	c.syms.Set(idx, s)
}

// materialize ensures idx's value is resident in a register and
// returns it, loading from KCTV or from its memory slot as needed.
func (c *Compiler) materialize(idx int, pos perr.Position) asm.Reg {
	s := c.syms.Get(idx)
	if s.HasReg() {
		r := c.reg.Allocate(regalloc.SymbolID(idx))
		c.reg.Hold(r)
		return asm.Reg(r)
	}

	r := asm.Reg(c.reg.Allocate(regalloc.SymbolID(idx)))
	c.reg.Hold(int(r))
	s = c.syms.Get(idx) // Allocate may have spilled another symbol; re-read ours
	switch {
	case s.Flags.Has(symtab.FlagHasKCTV):
		c.asm.LoadConst(r, uint32(s.KCTV), pos)
	case s.HasAddress():
		c.loadSlot(r, s.ScopeID, s.Address, pos)
	default:
		c.asm.MOVS(r, 0, pos)
	}
	s.Reg = uint32(r)
	s.Flags &^= symtab.FlagDirty
	c.syms.Set(idx, s)
	return r
}

// invalidateConstants forces every currently-unregistered, non-const
// symbol whose scope matches keep into a register. Called before a
// loop's condition/body is compiled and after a call returns: in both
// cases, code compiled from this point may run after the symbol's
// value changes in a way this single compile pass has already walked
// past once (a loop back-edge re-running the same generated code, or a
// callee writing to a global), so continuing to fold reads of it from
// its pre-loop/pre-call KCTV would miscompile the condition or any
// expression depending on it.
func (c *Compiler) invalidateConstants(pos perr.Position, keep func(scopeID int32) bool) {
	for _, indices := range c.index {
		for _, idx := range indices {
			s := c.syms.Get(idx)
			if !keep(s.ScopeID) {
				continue
			}
			if s.Flags.Has(symtab.FlagHasKCTV) && !s.HasReg() && !s.Flags.Has(symtab.FlagConstant) {
				c.materialize(idx, pos)
			}
		}
	}
}

// globalBase is the conceptual base address of the global data
// section; the runtime glue (C9) maps this region at registration
// time. A fixed constant is sufficient at compile time since every
// access goes through R7 rather than a linker-resolved symbol.
const globalBase = 0

func (c *Compiler) loadSlot(rd asm.Reg, scopeID int32, addr uint32, pos perr.Position) {
	if scopeID == 0 {
		c.asm.LoadConst(asm.R7, globalBase+4*addr, pos)
		c.asm.LDR(rd, asm.R7, 0, pos)
		return
	}
	c.asm.LDRSP(rd, addr, pos)
}

func (c *Compiler) storeSlot(rs asm.Reg, scopeID int32, addr uint32, pos perr.Position) {
	if scopeID == 0 {
		c.asm.LoadConst(asm.R7, globalBase+4*addr, pos)
		c.asm.STR(rs, asm.R7, 0, pos)
		return
	}
	c.asm.STRSP(rs, addr, pos)
}

// commitDirty writes idx's register value back to its memory slot
// immediately when idx is dirty and register-resident, clearing only
// the dirty flag and not its register/KCTV state — for assignment
// targets that must be durable across a call (spec.md §4.6 "Call
// emission ... every currently-dirty scratch-range symbol is
// committed first").
func (c *Compiler) commitDirty(idx int, pos perr.Position) {
	s := c.syms.Get(idx)
	if !s.Flags.Has(symtab.FlagDirty) || !s.HasReg() {
		return
	}
	addr := c.allocAddress(idx)
	c.storeSlot(asm.Reg(s.Reg), s.ScopeID, addr, pos)
	s.Flags &^= symtab.FlagDirty
	c.syms.Set(idx, s)
}
