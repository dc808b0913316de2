package asm

import (
	"github.com/pine2k/pine2k/internal/thumb"
	"github.com/pine2k/pine2k/perr"
)

// patchKind selects which of spec.md §4.4's resolution formats a
// forward reference needs once its label resolves.
type patchKind int

const (
	patchBcc patchKind = iota // 8-bit conditional branch
	patchB                    // 11-bit unconditional branch
	patchBL                   // long BL: offset is the high half-word; low follows at offset+1
)

type forwardRef struct {
	offset int // half-word offset of the placeholder instruction
	kind   patchKind
	cond   thumb.Cond // only meaningful for patchBcc
	pos    perr.Position
}

// label is one forward-or-backward branch target, identified by the
// DJB fingerprint of its name (spec.md §4.4 "Labels are identified by
// 32-bit fingerprints").
type label struct {
	resolved bool
	address  int // half-word offset
	refs     []forwardRef
}

// Label returns (creating if necessary) the label identified by hash.
func (a *Assembler) label(hash uint32) *label {
	if l, ok := a.labels[hash]; ok {
		return l
	}
	l := &label{}
	a.labels[hash] = l
	return l
}

// Define resolves hash to the current write position. If it already had
// forward references, every one is patched immediately. A label is a
// control-flow merge point, so the known-immediate register cache is
// invalidated here: a register's statically-known value before a
// branch does not necessarily hold once two paths converge.
func (a *Assembler) Define(hash uint32, pos perr.Position) {
	l := a.label(hash)
	l.resolved = true
	l.address = a.w.Offset()
	for _, ref := range l.refs {
		a.patchRef(ref, l.address)
	}
	l.refs = nil
	a.regConst = [8]*uint32{}
}

// refAddress emits placeholder() (a zero-offset branch) and records a
// forward reference for Define to patch, unless the label is already
// resolved, in which case the placeholder is patched with the real
// branch at once.
func (a *Assembler) refAddress(hash uint32, pos perr.Position, kind patchKind, cond thumb.Cond, placeholder func() uint16, real func(delta int) uint16) int {
	l := a.label(hash)
	off := a.w.Emit(placeholder(), pos)
	if l.resolved {
		a.w.PatchAt(off, real(l.address-off))
		return off
	}
	l.refs = append(l.refs, forwardRef{offset: off, kind: kind, cond: cond, pos: pos})
	return off
}

func (a *Assembler) patchRef(ref forwardRef, targetOff int) {
	delta := targetOff - ref.offset
	switch ref.kind {
	case patchBcc:
		simm8 := delta - 1 // PC = instr offset + 2 half-words = +1 from here
		if simm8 < -128 || simm8 > 127 {
			a.errs.Fail(perr.New(ref.pos, perr.KindCodegen, "forward label unresolved: branch out of 8-bit range"))
			return
		}
		a.w.PatchAt(ref.offset, encodeBccHalfWord(ref.cond, int16(simm8)))
	case patchB:
		simm11 := delta - 1
		if simm11 < -1024 || simm11 > 1023 {
			a.errs.Fail(perr.New(ref.pos, perr.KindCodegen, "forward label unresolved: branch out of 11-bit range"))
			return
		}
		a.w.PatchAt(ref.offset, encodeBHalfWord(int16(simm11)))
	case patchBL:
		// PC for a BL pair is 2 half-words past the high half-word.
		d := int32(delta - 2)
		high := d >> 11
		low := d & 0x7FF
		a.w.PatchAt(ref.offset, encodeBLHighHalfWord(high))
		a.w.PatchAt(ref.offset+1, encodeBLLowHalfWord(low))
	}
}

// ResolvedOffset returns a Define'd label's half-word offset. Only
// meaningful before Link resets the table at the end of a compile —
// used by the runtime glue to locate a named function's entry point.
func (a *Assembler) ResolvedOffset(hash uint32) (int, bool) {
	l, ok := a.labels[hash]
	if !ok || !l.resolved {
		return 0, false
	}
	return l.address, true
}

// link scans every label table entry and reports any label that never
// resolved (spec.md §7 "forward label unresolved at link time"), then
// resets the table for the next function (spec.md §4.4 "link... resets
// the symbol table and pool for the next function").
func (a *Assembler) link(pos perr.Position) {
	a.Flush(pos)
	for hash, l := range a.labels {
		if !l.resolved && len(l.refs) > 0 {
			a.errs.Fail(perr.Newf(pos, perr.KindCodegen, "unresolved forward label %#x", hash))
		}
	}
	a.labels = make(map[uint32]*label)
	a.pool = newPool()
}
