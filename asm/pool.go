package asm

import "github.com/pine2k/pine2k/perr"

// poolEntry is one deduplicated 32-bit constant awaiting a Flush, with
// every LDR-literal half-word offset that needs patching once it lands
// (spec.md §4.4 "Constant pool").
type poolEntry struct {
	value uint32
	refs  []int // half-word offsets of LDR Rd,[PC,#imm8] placeholders
}

// Pool buffers LDR Rd,=imm32 constants in first-use order, deduplicated
// by value, until Flush lays them into the code stream.
type Pool struct {
	entries []poolEntry
	index   map[uint32]int // value -> index into entries
}

func newPool() *Pool {
	return &Pool{index: make(map[uint32]int)}
}

// request records a use of value, returning the entry index so the
// caller can append the instruction offset once it is emitted.
func (p *Pool) request(value uint32) int {
	if idx, ok := p.index[value]; ok {
		return idx
	}
	idx := len(p.entries)
	p.entries = append(p.entries, poolEntry{value: value})
	p.index[value] = idx
	return idx
}

func (p *Pool) addRef(idx, offset int) {
	p.entries[idx].refs = append(p.entries[idx].refs, offset)
}

func (p *Pool) empty() bool { return len(p.entries) == 0 }

// Flush lays out every pending pool entry at the current write
// position (after a 4-byte alignment NOP if needed) and patches every
// referencing LDR instruction's 8-bit PC-relative immediate.
func (a *Assembler) Flush(pos perr.Position) {
	if a.pool.empty() {
		return
	}
	a.w.AlignPool(pos)
	for _, e := range a.pool.entries {
		addrOff := a.w.Offset()
		lo := uint16(e.value)
		hi := uint16(e.value >> 16)
		a.w.Emit(lo, pos)
		a.w.Emit(hi, pos)
		for _, refOff := range e.refs {
			a.patchLdrPC(refOff, addrOff, pos)
		}
	}
	a.pool = newPool()
}

// patchLdrPC computes the 8-bit word-granular PC-relative displacement
// from instruction refOff to the literal at addrOff and rewrites the
// placeholder (spec.md §4.4 "8-bit PC-relative loads").
func (a *Assembler) patchLdrPC(refOff, addrOff int, pos perr.Position) {
	instrPCByte := (refOff + 2) * 2
	instrPCByte &^= 3 // Thumb PC-relative loads round PC down to a word
	litByte := addrOff * 2
	deltaByte := litByte - instrPCByte
	if deltaByte < 0 || deltaByte%4 != 0 || deltaByte/4 > 0xFF {
		a.errs.Fail(perr.New(pos, perr.KindCodegen, "constant pool entry out of PC-relative-load range"))
		return
	}
	hw := a.w.At(refOff)
	rd := (hw >> 8) & 7
	a.w.PatchAt(refOff, encodeLdrPCHalfWord(rd, uint16(deltaByte/4)))
}
