package asm

import (
	"github.com/pine2k/pine2k/internal/thumb"
	"github.com/pine2k/pine2k/perr"
)

// A2LRecorder is implemented by the address-to-line table (component
// C8). The assembler notifies it only when a half-word written through
// emit starts a new source line; the half-words after it on the same
// line get no entry of their own, and neither do branch placeholders,
// BL pairs, PC-relative loads and pool words, which are written to the
// Writer directly. The table's backward scan maps those offsets to the
// nearest earlier entry.
type A2LRecorder interface {
	Record(offset int, line int)
}

// Assembler emits Thumb-1 machine code into a Writer, managing labels,
// a constant pool, and a known-immediate register cache (spec.md §4.4).
type Assembler struct {
	w      *Writer
	errs   *perr.List
	labels map[uint32]*label
	pool   *Pool

	// regConst[r] holds the 32-bit value register r is known to contain,
	// or nil if unknown — the "known-immediate register cache" of
	// spec.md §4.4. Any write to a register clears its entry.
	regConst [8]*uint32

	a2l      A2LRecorder
	lastLine int
}

// New creates an Assembler writing into w.
func New(w *Writer, errs *perr.List) *Assembler {
	return &Assembler{w: w, errs: errs, labels: make(map[uint32]*label), pool: newPool()}
}

// SetA2L attaches the address-to-line recorder.
func (a *Assembler) SetA2L(rec A2LRecorder) { a.a2l = rec }

func (a *Assembler) emit(hw uint16, pos perr.Position) int {
	off := a.w.Emit(hw, pos)
	if a.a2l != nil && pos.Line != a.lastLine {
		a.a2l.Record(off, pos.Line)
		a.lastLine = pos.Line
	}
	return off
}

// Offset returns the assembler's current write position.
func (a *Assembler) Offset() int { return a.w.Offset() }

// InvalidateConst clears the known-immediate cache entry for r, called
// whenever the register allocator repurposes r for something else.
func (a *Assembler) InvalidateConst(r Reg) {
	if int(r) < len(a.regConst) {
		a.regConst[r] = nil
	}
}

func (a *Assembler) setConst(r Reg, v uint32) {
	if int(r) < len(a.regConst) {
		val := v
		a.regConst[r] = &val
	}
}

func fitsU(v uint32, bits int) bool { return v < (1 << bits) }

func rangeErr(errs *perr.List, pos perr.Position, what string) {
	errs.Fail(perr.New(pos, perr.KindCodegen, "immediate out of range: "+what))
}

// --- Data processing -------------------------------------------------

// MOVS loads an 8-bit immediate (format 3) or copies a register
// (format 4 MVN-free copy is via ALU/hi-reg forms depending on width).
// LoadImm8 below is the general "set a register to a known small
// constant" entry point honoring the known-immediate cache.
func (a *Assembler) MOVS(rd Reg, imm uint32, pos perr.Position) {
	if old := a.regConst[rd]; old != nil && *old == imm {
		return // elide redundant load (spec.md §4.4 known-immediate cache)
	}
	if !fitsU(imm, 8) {
		rangeErr(a.errs, pos, "MOVS #imm8")
		return
	}
	a.emit(thumb.EncodeImm8(thumb.Imm8MOV, uint16(rd), uint16(imm)), pos)
	a.setConst(rd, imm)
}

func (a *Assembler) MOVreg(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	if rd > 7 || rm > 7 {
		a.emit(thumb.EncodeHi(thumb.HiMOV, false, uint16(rm), uint16(rd)), pos)
		return
	}
	// Low-register MOV is ADD Rd, Rm, #0 idiom isn't used; use format4
	// MVN-free path via ALU OR with self would be wasteful, so mirror
	// the common toolchain choice of the hi-register MOV encoding
	// (valid even for two low registers).
	a.emit(thumb.EncodeHi(thumb.HiMOV, false, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) MVNS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluMVN, uint16(rm), uint16(rd)), pos)
}

// ADDSimm3 / SUBSimm3: ADD/SUB Rd, Rn, #imm3 (0-7).
func (a *Assembler) ADDSimm3(rd, rn Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm, 3) {
		rangeErr(a.errs, pos, "ADDS #imm3")
		return
	}
	a.emit(thumb.EncodeAddSub3(true, false, uint16(imm), uint16(rn), uint16(rd)), pos)
}

func (a *Assembler) SUBSimm3(rd, rn Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm, 3) {
		rangeErr(a.errs, pos, "SUBS #imm3")
		return
	}
	a.emit(thumb.EncodeAddSub3(true, true, uint16(imm), uint16(rn), uint16(rd)), pos)
}

// ADDSreg / SUBSreg: ADD/SUB Rd, Rn, Rm (three-address register form).
func (a *Assembler) ADDSreg(rd, rn, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAddSub3(false, false, uint16(rm), uint16(rn), uint16(rd)), pos)
}

func (a *Assembler) SUBSreg(rd, rn, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAddSub3(false, true, uint16(rm), uint16(rn), uint16(rd)), pos)
}

// ADDSimm8 / SUBSimm8: two-address Rdn += #imm8 (0-255), the immediate
// form chosen by spec.md §4.6 when the right operand is a small KCTV.
func (a *Assembler) ADDSimm8(rdn Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rdn)
	if !fitsU(imm, 8) {
		rangeErr(a.errs, pos, "ADDS #imm8")
		return
	}
	a.emit(thumb.EncodeImm8(thumb.Imm8ADD, uint16(rdn), uint16(imm)), pos)
}

func (a *Assembler) SUBSimm8(rdn Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rdn)
	if !fitsU(imm, 8) {
		rangeErr(a.errs, pos, "SUBS #imm8")
		return
	}
	a.emit(thumb.EncodeImm8(thumb.Imm8SUB, uint16(rdn), uint16(imm)), pos)
}

func (a *Assembler) RSBS(rd, rn Reg, pos perr.Position) {
	// RSBS Rd, Rn, #0 (two's-complement negate); Rn must equal the ALU
	// source register in format 4, Rd the destination.
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluNEG, uint16(rn), uint16(rd)), pos)
}

func (a *Assembler) ADCS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluADC, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) SBCS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluSBC, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) ANDS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluAND, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) ORRS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluORR, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) EORS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluEOR, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) BIC(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluBIC, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) MULS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluMUL, uint16(rm), uint16(rd)), pos)
}

// --- Shifts (spec.md §4.6 "Division-by-power-of-two rewrite") -------

func (a *Assembler) LSLSimm(rd, rm Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm, 5) {
		rangeErr(a.errs, pos, "LSLS #imm5")
		return
	}
	a.emit(thumb.EncodeShiftImm(thumb.ShiftLSL, uint16(imm), uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) LSRSimm(rd, rm Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm, 5) {
		rangeErr(a.errs, pos, "LSRS #imm5")
		return
	}
	a.emit(thumb.EncodeShiftImm(thumb.ShiftLSR, uint16(imm), uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) ASRSimm(rd, rm Reg, imm uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm, 5) {
		rangeErr(a.errs, pos, "ASRS #imm5")
		return
	}
	a.emit(thumb.EncodeShiftImm(thumb.ShiftASR, uint16(imm), uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) RORS(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeAlu(thumb.AluROR, uint16(rm), uint16(rd)), pos)
}

// --- Comparisons (spec.md §4.6 CAST_* results) -----------------------

func (a *Assembler) CMPimm(rn Reg, imm uint32, pos perr.Position) {
	if !fitsU(imm, 8) {
		rangeErr(a.errs, pos, "CMP #imm8")
		return
	}
	a.emit(thumb.EncodeImm8(thumb.Imm8CMP, uint16(rn), uint16(imm)), pos)
}

func (a *Assembler) CMPreg(rn, rm Reg, pos perr.Position) {
	a.emit(thumb.EncodeAlu(thumb.AluCMP, uint16(rm), uint16(rn)), pos)
}

func (a *Assembler) CMN(rn, rm Reg, pos perr.Position) {
	a.emit(thumb.EncodeAlu(thumb.AluCMN, uint16(rm), uint16(rn)), pos)
}

func (a *Assembler) TST(rn, rm Reg, pos perr.Position) {
	a.emit(thumb.EncodeAlu(thumb.AluTST, uint16(rm), uint16(rn)), pos)
}

// --- Memory -----------------------------------------------------------

func (a *Assembler) LDR(rd, rb Reg, imm5 uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "LDR #imm5*4")
		return
	}
	a.emit(thumb.EncodeImmOffset(false, true, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

func (a *Assembler) STR(rd, rb Reg, imm5 uint32, pos perr.Position) {
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "STR #imm5*4")
		return
	}
	a.emit(thumb.EncodeImmOffset(false, false, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

func (a *Assembler) LDRB(rd, rb Reg, imm5 uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "LDRB #imm5")
		return
	}
	a.emit(thumb.EncodeImmOffset(true, true, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

func (a *Assembler) STRB(rd, rb Reg, imm5 uint32, pos perr.Position) {
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "STRB #imm5")
		return
	}
	a.emit(thumb.EncodeImmOffset(true, false, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

func (a *Assembler) LDRH(rd, rb Reg, imm5 uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "LDRH #imm5*2")
		return
	}
	a.emit(thumb.EncodeHalfwordOffset(true, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

func (a *Assembler) STRH(rd, rb Reg, imm5 uint32, pos perr.Position) {
	if !fitsU(imm5, 5) {
		rangeErr(a.errs, pos, "STRH #imm5*2")
		return
	}
	a.emit(thumb.EncodeHalfwordOffset(false, uint16(imm5), uint16(rb), uint16(rd)), pos)
}

// LDM / STMIA: regList is a bitmask over R0-R7.
func (a *Assembler) LDM(rb Reg, regList uint16, pos perr.Position) {
	for r := Reg(0); r < 8; r++ {
		if regList&(1<<r) != 0 {
			a.InvalidateConst(r)
		}
	}
	a.emit(thumb.EncodeLdmStm(true, uint16(rb), regList), pos)
}

func (a *Assembler) STMIA(rb Reg, regList uint16, pos perr.Position) {
	a.emit(thumb.EncodeLdmStm(false, uint16(rb), regList), pos)
}

// PUSH/POP: regList is a bitmask over R0-R7; extra stores/loads LR/PC.
func (a *Assembler) PUSH(regList uint16, includeLR bool, pos perr.Position) {
	a.emit(thumb.EncodePushPop(false, includeLR, regList), pos)
}

func (a *Assembler) POP(regList uint16, includePC bool, pos perr.Position) {
	for r := Reg(0); r < 8; r++ {
		if regList&(1<<r) != 0 {
			a.InvalidateConst(r)
		}
	}
	a.emit(thumb.EncodePushPop(true, includePC, regList), pos)
}

// LDRSP / STRSP: Rd, [SP, #imm8*4] — the frame-slot addressing mode
// used for stack-resident locals (spec.md §3 Symbol.address "slot
// index ... in the stack frame").
func (a *Assembler) LDRSP(rd Reg, imm8 uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm8, 8) {
		rangeErr(a.errs, pos, "LDR #imm8*4 [SP]")
		return
	}
	a.emit(thumb.EncodeSPOffset(true, uint16(rd), uint16(imm8)), pos)
}

func (a *Assembler) STRSP(rd Reg, imm8 uint32, pos perr.Position) {
	if !fitsU(imm8, 8) {
		rangeErr(a.errs, pos, "STR #imm8*4 [SP]")
		return
	}
	a.emit(thumb.EncodeSPOffset(false, uint16(rd), uint16(imm8)), pos)
}

// ADR loads rd with the byte address of a pool-style anonymous
// constant via PC-relative arithmetic (imm8*4).
func (a *Assembler) ADR(rd Reg, imm8 uint32, pos perr.Position) {
	a.InvalidateConst(rd)
	if !fitsU(imm8, 8) {
		rangeErr(a.errs, pos, "ADR #imm8*4")
		return
	}
	a.emit(thumb.EncodeAdr(false, uint16(rd), uint16(imm8)), pos)
}

// --- Branches ----------------------------------------------------------

// Bcc emits a conditional branch to the label identified by hash.
func (a *Assembler) Bcc(cond Cond, hash uint32, pos perr.Position) {
	a.refAddress(hash, pos, patchBcc, cond,
		func() uint16 { return thumb.EncodeBcc(cond, 0) },
		func(delta int) uint16 { return thumb.EncodeBcc(cond, int16(delta-1)) },
	)
}

// B emits an unconditional branch to the label identified by hash.
func (a *Assembler) B(hash uint32, pos perr.Position) {
	a.refAddress(hash, pos, patchB, thumb.CondAL,
		func() uint16 { return thumb.EncodeB(0) },
		func(delta int) uint16 { return thumb.EncodeB(int16(delta - 1)) },
	)
}

// BL emits a long branch-with-link to the label identified by hash.
func (a *Assembler) BL(hash uint32, pos perr.Position) {
	l := a.label(hash)
	hi := a.w.Emit(thumb.EncodeBLHigh(0), pos)
	lo := a.w.Emit(thumb.EncodeBLLow(0), pos)
	if l.resolved {
		a.w.PatchAt(hi, thumb.EncodeBLHigh(int32(l.address-hi-2)>>11))
		a.w.PatchAt(lo, thumb.EncodeBLLow(int32(l.address-hi-2)&0x7FF))
		return
	}
	l.refs = append(l.refs, forwardRef{offset: hi, kind: patchBL, pos: pos})
	_ = lo
}

// BLX calls through a register (spec.md §4.6: target loaded via the
// constant pool into R7 when out of BL reach).
func (a *Assembler) BLX(rm Reg, pos perr.Position) {
	a.emit(thumb.EncodeHi(thumb.HiBX, true, uint16(rm), 0), pos)
}

func (a *Assembler) BX(rm Reg, pos perr.Position) {
	a.emit(thumb.EncodeHi(thumb.HiBX, false, uint16(rm), 0), pos)
}

// --- Misc --------------------------------------------------------------

func (a *Assembler) NOP(pos perr.Position) { a.emit(nopHalfWord, pos) }

func (a *Assembler) BKPT(imm8 uint32, pos perr.Position) {
	a.emit(thumb.EncodeBKPT(uint16(imm8)), pos)
}

func (a *Assembler) UDF(imm8 uint32, pos perr.Position) {
	a.emit(thumb.EncodeUDF(uint16(imm8)), pos)
}

func (a *Assembler) REV(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscREV, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) REV16(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscREV16, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) REVSH(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscREVSH, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) SXTB(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscSXTB, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) SXTH(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscSXTH, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) UXTB(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscUXTB, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) UXTH(rd, rm Reg, pos perr.Position) {
	a.InvalidateConst(rd)
	a.emit(thumb.EncodeMisc(thumb.MiscUXTH, uint16(rm), uint16(rd)), pos)
}

func (a *Assembler) MRS(rd Reg, sysReg uint16, pos perr.Position) {
	a.InvalidateConst(rd)
	hi, lo := thumb.EncodeMRS(uint16(rd), sysReg)
	a.emit(hi, pos)
	a.emit(lo, pos)
}

func (a *Assembler) MSR(sysReg uint16, rn Reg, pos perr.Position) {
	hi, lo := thumb.EncodeMSR(sysReg, uint16(rn))
	a.emit(hi, pos)
	a.emit(lo, pos)
}

func (a *Assembler) SVC(imm8 uint32, pos perr.Position) {
	a.emit(thumb.EncodeSVC(uint16(imm8)), pos)
}

// --- Constant loading --------------------------------------------------

// LoadConst materializes a 32-bit constant into rd, eliding the load if
// rd is already known to hold it, using MOVS when it fits 8 bits, and
// otherwise routing through the deduplicated constant pool (spec.md
// §4.4 "LDR Rn,=imm32 ... deduplicated ... known-immediate cache").
func (a *Assembler) LoadConst(rd Reg, value uint32, pos perr.Position) {
	if old := a.regConst[rd]; old != nil && *old == value {
		return
	}
	if fitsU(value, 8) {
		a.MOVS(rd, value, pos)
		return
	}
	idx := a.pool.request(value)
	off := a.w.Emit(thumb.EncodeLdrPC(uint16(rd), 0), pos)
	a.pool.addRef(idx, off)
	a.setConst(rd, value)
}

// Link finalizes the current function: flushes the pool, patches every
// label, and resets both tables for the next function (spec.md §4.4).
func (a *Assembler) Link(pos perr.Position) {
	a.link(pos)
	a.regConst = [8]*uint32{}
}
