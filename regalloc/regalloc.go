// Package regalloc implements the register allocator (spec.md §4.5,
// component C5): 8 low registers, R7 reserved as scratch, LRU eviction
// with a hold discipline for call-argument staging. Grounded on the
// teacher's page-cache/LRU shape (used for its debugger history ring
// and symbol paging) generalized here to register slots, with a
// Spillable callback interface per spec.md §9's explicit recommendation
// ("model this as a trait/interface Spillable... avoid raw function
// pointers with untyped user-data").
package regalloc

// NumRegs is the number of low registers (R0-R7); R7 is reserved.
const NumRegs = 8

// ScratchReg is the reserved temp/scratch register (spec.md §4.5).
const ScratchReg = 7

// SymbolID identifies a symbol by its symtab index.
type SymbolID int

const unassigned SymbolID = -1

// Spillable is implemented by the parser/codegen driver so the
// allocator can commit an evicted symbol to memory without holding a
// raw function pointer (spec.md §9).
type Spillable interface {
	Spill(sym SymbolID, reg int)
}

type slot struct {
	sym  SymbolID
	age  uint64
	hold bool
}

// Allocator maps symbols to registers with LRU spill and a hold
// discipline (spec.md §4.5).
type Allocator struct {
	slots   [NumRegs]slot
	clock   uint64
	useMap  uint16 // bitmask of registers ever touched, for PUSH/POP masks
	spiller Spillable
}

// New creates an Allocator that calls back into spiller on eviction.
func New(spiller Spillable) *Allocator {
	a := &Allocator{spiller: spiller}
	for i := range a.slots {
		a.slots[i].sym = unassigned
	}
	return a
}

// UseMap returns the bitmask of registers touched since the last
// Reset, consulted at function epilogue for the PUSH/POP mask.
func (a *Allocator) UseMap() uint16 { return a.useMap }

// Reset clears all assignments and the use map for a new function.
func (a *Allocator) Reset() {
	for i := range a.slots {
		a.slots[i] = slot{sym: unassigned}
	}
	a.useMap = 0
	a.clock = 0
}

func (a *Allocator) findReg(sym SymbolID) int {
	for r, s := range a.slots {
		if s.sym == sym {
			return r
		}
	}
	return -1
}

func (a *Allocator) touch(r int) {
	a.clock++
	a.slots[r].age = a.clock
	a.useMap |= 1 << uint(r)
}

// Allocate returns a register holding sym, assigning and possibly
// spilling a victim if sym is not already resident (spec.md §4.5 steps
// 1-2). R7 is never chosen by the generic allocator — use Assign to
// route a symbol there explicitly for scratch use.
func (a *Allocator) Allocate(sym SymbolID) int {
	if r := a.findReg(sym); r >= 0 {
		a.touch(r)
		return r
	}

	victim := -1
	for r := 0; r < ScratchReg; r++ {
		if a.slots[r].hold {
			continue
		}
		if a.slots[r].sym == unassigned {
			victim = r
			break
		}
		if victim < 0 || a.slots[r].age < a.slots[victim].age {
			victim = r
		}
	}
	if victim < 0 {
		// Every allocable register is held; fall back to the least
		// recently touched held register rather than deadlock.
		for r := 0; r < ScratchReg; r++ {
			if victim < 0 || a.slots[r].age < a.slots[victim].age {
				victim = r
			}
		}
	}

	if a.slots[victim].sym != unassigned {
		a.spiller.Spill(a.slots[victim].sym, victim)
	}
	a.slots[victim] = slot{sym: sym}
	a.touch(victim)
	return victim
}

// Assign forcibly routes sym into register r, dropping whatever sym r
// (if any) held and any other register's copy of sym, all without a
// spill callback — the caller already committed or discarded
// them (spec.md §4.5 "assign(sym, r) forcibly routes a symbol into a
// specific register, invalidating any prior holder").
func (a *Allocator) Assign(sym SymbolID, r int) {
	if old := a.findReg(sym); old >= 0 && old != r {
		a.slots[old] = slot{sym: unassigned}
	}
	a.slots[r] = slot{sym: sym}
	a.touch(r)
}

// Invalidate drops the assignment in r without emitting code (spec.md
// §4.5 "invalidate(r) drops the assignment without emitting code").
func (a *Allocator) Invalidate(r int) {
	a.slots[r] = slot{sym: unassigned}
}

// Hold marks r as temporarily non-evictable (call-argument staging).
func (a *Allocator) Hold(r int) { a.slots[r].hold = true }

// Release clears a register's hold flag.
func (a *Allocator) Release(r int) { a.slots[r].hold = false }

// RegOf returns the register currently holding sym, or -1.
func (a *Allocator) RegOf(sym SymbolID) int { return a.findReg(sym) }

// SpillAll commits every assigned, non-held register's symbol to
// memory — used before a call clobbers R0-R3 (spec.md §4.6).
func (a *Allocator) SpillAll(exceptHeld bool) {
	for r := 0; r < ScratchReg; r++ {
		if a.slots[r].sym == unassigned {
			continue
		}
		if exceptHeld && a.slots[r].hold {
			continue
		}
		a.spiller.Spill(a.slots[r].sym, r)
		a.slots[r] = slot{sym: unassigned}
	}
}
