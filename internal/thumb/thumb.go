// Package thumb holds the bit-level Thumb-1 instruction formats shared
// by the assembler (asm, component C4) and the interpreter (vm,
// component C9) — the same split the teacher uses between its encoder
// package (which only encodes) and its vm package (which only
// executes), both built against the same condition-code and format
// constants. Keeping the formats here avoids re-deriving the bit
// layouts twice while still letting asm and vm own their own
// responsibilities, exactly as the teacher's encoder imports vm's
// condition constants rather than redefining them.
package thumb

// Cond is a 3-bit Thumb branch condition code (spec.md §4.4 Bcc).
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL // not encodable in a conditional branch; used for "always"
)

// --- Format 1: shift by immediate (LSLS/LSRS/ASRS Rd, Rm, #imm5) ---

type ShiftOp uint8

const (
	ShiftLSL ShiftOp = 0
	ShiftLSR ShiftOp = 1
	ShiftASR ShiftOp = 2
)

func EncodeShiftImm(op ShiftOp, imm5, rm, rd uint16) uint16 {
	return 0x0000 | (uint16(op) << 11) | ((imm5 & 0x1F) << 6) | ((rm & 7) << 3) | (rd & 7)
}

func DecodeShiftImm(hw uint16) (op ShiftOp, imm5, rm, rd uint16) {
	return ShiftOp((hw >> 11) & 3), (hw >> 6) & 0x1F, (hw >> 3) & 7, hw & 7
}

// --- Format 2: add/subtract register or 3-bit immediate ---

func EncodeAddSub3(isImm, isSub bool, rnOrImm3, rs, rd uint16) uint16 {
	hw := uint16(0x1800)
	if isImm {
		hw |= 1 << 10
	}
	if isSub {
		hw |= 1 << 9
	}
	hw |= (rnOrImm3 & 7) << 6
	hw |= (rs & 7) << 3
	hw |= rd & 7
	return hw
}

func DecodeAddSub3(hw uint16) (isImm, isSub bool, rnOrImm3, rs, rd uint16) {
	return (hw>>10)&1 != 0, (hw>>9)&1 != 0, (hw >> 6) & 7, (hw >> 3) & 7, hw & 7
}

// --- Format 3: MOV/CMP/ADD/SUB Rd, #imm8 ---

type Imm8Op uint8

const (
	Imm8MOV Imm8Op = 0
	Imm8CMP Imm8Op = 1
	Imm8ADD Imm8Op = 2
	Imm8SUB Imm8Op = 3
)

func EncodeImm8(op Imm8Op, rd, imm8 uint16) uint16 {
	return 0x2000 | (uint16(op) << 11) | ((rd & 7) << 8) | (imm8 & 0xFF)
}

func DecodeImm8(hw uint16) (op Imm8Op, rd, imm8 uint16) {
	return Imm8Op((hw >> 11) & 3), (hw >> 8) & 7, hw & 0xFF
}

// --- Format 4: ALU register operations ---

type AluOp uint8

const (
	AluAND AluOp = iota
	AluEOR
	AluLSL
	AluLSR
	AluASR
	AluADC
	AluSBC
	AluROR
	AluTST
	AluNEG
	AluCMP
	AluCMN
	AluORR
	AluMUL
	AluBIC
	AluMVN
)

func EncodeAlu(op AluOp, rs, rd uint16) uint16 {
	return 0x4000 | (uint16(op) << 6) | ((rs & 7) << 3) | (rd & 7)
}

func DecodeAlu(hw uint16) (op AluOp, rs, rd uint16) {
	return AluOp((hw >> 6) & 0xF), (hw >> 3) & 7, hw & 7
}

// --- Format 5: hi-register operations / BX / BLX ---

type HiOp uint8

const (
	HiADD HiOp = 0
	HiCMP HiOp = 1
	HiMOV HiOp = 2
	HiBX  HiOp = 3 // also encodes BLX register via the Link bit below
)

func EncodeHi(op HiOp, link bool, rs, rd uint16) uint16 {
	hw := uint16(0x4400) | (uint16(op) << 8)
	if rd > 7 {
		hw |= 1 << 7
	}
	if rs > 7 {
		hw |= 1 << 6
	}
	if link {
		hw |= 1 << 7 // bit7 doubles as the BLX/BX discriminator when op==HiBX and rd==0
	}
	hw |= (rs & 7) << 3
	hw |= rd & 7
	return hw
}

func DecodeHi(hw uint16) (op HiOp, h1, h2 bool, rs, rd uint16) {
	return HiOp((hw >> 8) & 3), (hw>>7)&1 != 0, (hw>>6)&1 != 0, (hw >> 3) & 0xF, hw & 7
}

// --- Format 6: PC-relative load (LDR Rd, =imm / literal pool) ---

func EncodeLdrPC(rd, imm8 uint16) uint16 {
	return 0x4800 | ((rd & 7) << 8) | (imm8 & 0xFF)
}

func DecodeLdrPC(hw uint16) (rd, imm8 uint16) {
	return (hw >> 8) & 7, hw & 0xFF
}

// --- Format 7/8: load/store with register offset ---

type RegOffsetOp uint8

const (
	RegOffSTR RegOffsetOp = iota
	RegOffSTRB
	RegOffLDR
	RegOffLDRB
	RegOffSTRH
	RegOffLDRSB
	RegOffLDRH
	RegOffLDRSH
)

func EncodeRegOffset(op RegOffsetOp, ro, rb, rd uint16) uint16 {
	hw := uint16(0x5000) | (uint16(op) << 9)
	hw |= (ro & 7) << 6
	hw |= (rb & 7) << 3
	hw |= rd & 7
	return hw
}

func DecodeRegOffset(hw uint16) (op RegOffsetOp, ro, rb, rd uint16) {
	return RegOffsetOp((hw >> 9) & 7), (hw >> 6) & 7, (hw >> 3) & 7, hw & 7
}

// --- Format 9: load/store word/byte with 5-bit immediate offset ---

func EncodeImmOffset(isByte, isLoad bool, imm5, rb, rd uint16) uint16 {
	hw := uint16(0x6000)
	if isByte {
		hw |= 1 << 12
	}
	if isLoad {
		hw |= 1 << 11
	}
	hw |= (imm5 & 0x1F) << 6
	hw |= (rb & 7) << 3
	hw |= rd & 7
	return hw
}

func DecodeImmOffset(hw uint16) (isByte, isLoad bool, imm5, rb, rd uint16) {
	return (hw>>12)&1 != 0, (hw>>11)&1 != 0, (hw >> 6) & 0x1F, (hw >> 3) & 7, hw & 7
}

// --- Format 10: load/store halfword with 5-bit immediate offset ---

func EncodeHalfwordOffset(isLoad bool, imm5, rb, rd uint16) uint16 {
	hw := uint16(0x8000)
	if isLoad {
		hw |= 1 << 11
	}
	hw |= (imm5 & 0x1F) << 6
	hw |= (rb & 7) << 3
	hw |= rd & 7
	return hw
}

func DecodeHalfwordOffset(hw uint16) (isLoad bool, imm5, rb, rd uint16) {
	return (hw>>11)&1 != 0, (hw >> 6) & 0x1F, (hw >> 3) & 7, hw & 7
}

// --- Format 12: ADR / ADD Rd, SP, #imm8*4 ---

func EncodeAdr(fromSP bool, rd, imm8 uint16) uint16 {
	hw := uint16(0xA000)
	if fromSP {
		hw |= 1 << 11
	}
	hw |= (rd & 7) << 8
	hw |= imm8 & 0xFF
	return hw
}

func DecodeAdr(hw uint16) (fromSP bool, rd, imm8 uint16) {
	return (hw>>11)&1 != 0, (hw >> 8) & 7, hw & 0xFF
}

// --- Format 11: SP-relative LDR/STR Rd, [SP, #imm8*4] ---

func EncodeSPOffset(isLoad bool, rd, imm8 uint16) uint16 {
	hw := uint16(0x9000)
	if isLoad {
		hw |= 1 << 11
	}
	hw |= (rd & 7) << 8
	hw |= imm8 & 0xFF
	return hw
}

func DecodeSPOffset(hw uint16) (isLoad bool, rd, imm8 uint16) {
	return (hw>>11)&1 != 0, (hw >> 8) & 7, hw & 0xFF
}

// --- Format 13: ADD/SUB SP, #imm7*4 ---

func EncodeAddSubSP(isSub bool, imm7 uint16) uint16 {
	hw := uint16(0xB000)
	if isSub {
		hw |= 1 << 7
	}
	hw |= imm7 & 0x7F
	return hw
}

func DecodeAddSubSP(hw uint16) (isSub bool, imm7 uint16) {
	return (hw>>7)&1 != 0, hw & 0x7F
}

// --- Format 14: PUSH / POP ---

func EncodePushPop(isPop, storeExtra bool, regList uint16) uint16 {
	hw := uint16(0xB400)
	if isPop {
		hw |= 1 << 11
	}
	if storeExtra {
		hw |= 1 << 8
	}
	hw |= regList & 0xFF
	return hw
}

func DecodePushPop(hw uint16) (isPop, extra bool, regList uint16) {
	return (hw>>11)&1 != 0, (hw>>8)&1 != 0, hw & 0xFF
}

// --- Format 15: LDMIA / STMIA ---

func EncodeLdmStm(isLoad bool, rb uint16, regList uint16) uint16 {
	hw := uint16(0xC000)
	if isLoad {
		hw |= 1 << 11
	}
	hw |= (rb & 7) << 8
	hw |= regList & 0xFF
	return hw
}

func DecodeLdmStm(hw uint16) (isLoad bool, rb uint16, regList uint16) {
	return (hw>>11)&1 != 0, (hw >> 8) & 7, hw & 0xFF
}

// --- Format 16: conditional branch ---

func EncodeBcc(cond Cond, simm8 int16) uint16 {
	return 0xD000 | (uint16(cond) << 8) | (uint16(simm8) & 0xFF)
}

func DecodeBcc(hw uint16) (cond Cond, simm8 int16) {
	cond = Cond((hw >> 8) & 0xF)
	raw := hw & 0xFF
	if raw&0x80 != 0 {
		simm8 = int16(raw) - 256
	} else {
		simm8 = int16(raw)
	}
	return
}

// --- Format 17: SVC (software interrupt) ---

func EncodeSVC(imm8 uint16) uint16 {
	return 0xDF00 | (imm8 & 0xFF)
}

func DecodeSVC(hw uint16) uint16 { return hw & 0xFF }

// --- Format 18: unconditional branch ---

func EncodeB(simm11 int16) uint16 {
	return 0xE000 | (uint16(simm11) & 0x7FF)
}

func DecodeB(hw uint16) int16 {
	raw := hw & 0x7FF
	if raw&0x400 != 0 {
		return int16(raw) - 2048
	}
	return int16(raw)
}

// --- Format 19: BL, two half-words (J1/J2 / high-low encoding) ---

func EncodeBLHigh(offsetHigh11 int32) uint16 {
	return 0xF000 | (uint16(offsetHigh11) & 0x7FF)
}

func EncodeBLLow(offsetLow11 int32) uint16 {
	return 0xF800 | (uint16(offsetLow11) & 0x7FF)
}

func DecodeBLHigh(hw uint16) int32 {
	raw := int32(hw & 0x7FF)
	if raw&0x400 != 0 {
		raw -= 2048
	}
	return raw
}

func DecodeBLLow(hw uint16) int32 {
	return int32(hw & 0x7FF)
}

// --- misc single-opcode instructions ---

const (
	OpcodeNOP  uint16 = 0x46C0 // MOV R8, R8
	OpcodeBKPT uint16 = 0xBE00
)

func EncodeBKPT(imm8 uint16) uint16 { return OpcodeBKPT | (imm8 & 0xFF) }
func DecodeBKPT(hw uint16) uint16   { return hw & 0xFF }

// EncodeUDF encodes the permanently undefined UDF #imm8 instruction.
// Label placeholders are zero-offset branches, not UDF (asm/labels.go).
func EncodeUDF(imm8 uint16) uint16 { return 0xDE00 | (imm8 & 0xFF) }

// --- Format: REV/REV16/REVSH/SXTB/SXTH/UXTB/UXTH (6.5.6-style, 010000 0000 is ALU;
// these live at 1011 1010 xx / 1011 0010 xx, "special data" encodings) ---

type MiscOp uint8

const (
	MiscSXTH  MiscOp = 0
	MiscSXTB  MiscOp = 1
	MiscUXTH  MiscOp = 2
	MiscUXTB  MiscOp = 3
	MiscREV   MiscOp = 6
	MiscREV16 MiscOp = 7
	MiscREVSH MiscOp = 9
)

func EncodeMisc(op MiscOp, rm, rd uint16) uint16 {
	return 0xB000 | (uint16(op) << 6) | ((rm & 7) << 3) | (rd & 7)
}

func DecodeMisc(hw uint16) (op MiscOp, rm, rd uint16) {
	return MiscOp((hw >> 6) & 0xF), (hw >> 3) & 7, hw & 7
}

// --- MRS/MSR: ARMv6-M 32-bit system-register access (Cortex-M0+ adds
// these two Thumb-2 encodings to an otherwise pure Thumb-1 core so the
// compiler can read/write APSR for intrinsic flag tricks). ---

func EncodeMRS(rd, sysReg uint16) (hi, lo uint16) {
	hi = 0xF3EF
	lo = 0x8000 | ((rd & 0xF) << 8) | (sysReg & 0xFF)
	return
}

func DecodeMRS(hi, lo uint16) (rd, sysReg uint16) {
	_ = hi
	return (lo >> 8) & 0xF, lo & 0xFF
}

func EncodeMSR(sysReg, rn uint16) (hi, lo uint16) {
	hi = 0xF380 | (rn & 0xF)
	lo = 0x8800 | (sysReg & 0xFF)
	return
}

func DecodeMSR(hi, lo uint16) (rn, sysReg uint16) {
	return hi & 0xF, lo & 0xFF
}
