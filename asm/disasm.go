package asm

import (
	"fmt"

	"github.com/pine2k/pine2k/internal/thumb"
)

// Disassemble renders a single half-word as Thumb-1 assembly text, for
// the terminal inspector and `pinec -disasm` (spec.md's "in-device
// source editor" is out of scope per spec.md §1; this is the host-side
// development-tool stand-in described in SPEC_FULL.md).
func Disassemble(hw uint16) string {
	switch {
	case hw&0xF800 == 0x0000, hw&0xF800 == 0x0800, hw&0xF800 == 0x1000:
		op, imm5, rm, rd := thumb.DecodeShiftImm(hw)
		names := []string{"LSLS", "LSRS", "ASRS"}
		return fmt.Sprintf("%s R%d, R%d, #%d", names[op], rd, rm, imm5)

	case hw&0xF800 == 0x1800:
		isImm, isSub, rnOrImm3, rs, rd := thumb.DecodeAddSub3(hw)
		name := "ADDS"
		if isSub {
			name = "SUBS"
		}
		if isImm {
			return fmt.Sprintf("%s R%d, R%d, #%d", name, rd, rs, rnOrImm3)
		}
		return fmt.Sprintf("%s R%d, R%d, R%d", name, rd, rs, rnOrImm3)

	case hw&0xE000 == 0x2000:
		op, rd, imm8 := thumb.DecodeImm8(hw)
		names := []string{"MOVS", "CMP", "ADDS", "SUBS"}
		return fmt.Sprintf("%s R%d, #%d", names[op], rd, imm8)

	case hw&0xFC00 == 0x4000:
		op, rs, rd := thumb.DecodeAlu(hw)
		names := []string{"ANDS", "EORS", "LSLS", "LSRS", "ASRS", "ADCS", "SBCS", "RORS",
			"TST", "RSBS", "CMP", "CMN", "ORRS", "MULS", "BICS", "MVNS"}
		return fmt.Sprintf("%s R%d, R%d", names[op], rd, rs)

	case hw == thumb.OpcodeNOP:
		return "NOP"

	case hw&0xFC00 == 0x4400:
		op, h1, _, rs, rd := thumb.DecodeHi(hw)
		// rs is already the full 4-bit register number (h2 included).
		rdFull, rsFull := rd, rs
		if h1 {
			rdFull += 8
		}
		switch op {
		case thumb.HiBX:
			if h1 {
				return fmt.Sprintf("BLX R%d", rsFull)
			}
			return fmt.Sprintf("BX R%d", rsFull)
		case thumb.HiMOV:
			return fmt.Sprintf("MOV R%d, R%d", rdFull, rsFull)
		case thumb.HiCMP:
			return fmt.Sprintf("CMP R%d, R%d", rdFull, rsFull)
		default:
			return fmt.Sprintf("ADD R%d, R%d", rdFull, rsFull)
		}

	case hw&0xF800 == 0x4800:
		rd, imm8 := thumb.DecodeLdrPC(hw)
		return fmt.Sprintf("LDR R%d, [PC, #%d]", rd, imm8*4)

	case hw&0xF000 == 0x5000 && hw&0x0200 == 0:
		op, ro, rb, rd := thumb.DecodeRegOffset(hw)
		names := []string{"STR", "STRB", "LDR", "LDRB", "STRH", "LDSB", "LDRH", "LDSH"}
		return fmt.Sprintf("%s R%d, [R%d, R%d]", names[op], rd, rb, ro)

	case hw&0xE000 == 0x6000:
		isByte, isLoad, imm5, rb, rd := thumb.DecodeImmOffset(hw)
		name := map[bool]map[bool]string{
			false: {false: "STR", true: "LDR"},
			true:  {false: "STRB", true: "LDRB"},
		}[isByte][isLoad]
		scale := 4
		if isByte {
			scale = 1
		}
		return fmt.Sprintf("%s R%d, [R%d, #%d]", name, rd, rb, int(imm5)*scale)

	case hw&0xF000 == 0x8000:
		isLoad, imm5, rb, rd := thumb.DecodeHalfwordOffset(hw)
		name := "STRH"
		if isLoad {
			name = "LDRH"
		}
		return fmt.Sprintf("%s R%d, [R%d, #%d]", name, rd, rb, imm5*2)

	case hw&0xF000 == 0x9000:
		isLoad, rd, imm8 := thumb.DecodeSPOffset(hw)
		name := "STR"
		if isLoad {
			name = "LDR"
		}
		return fmt.Sprintf("%s R%d, [SP, #%d]", name, rd, imm8*4)

	case hw&0xF000 == 0xA000:
		fromSP, rd, imm8 := thumb.DecodeAdr(hw)
		base := "PC"
		if fromSP {
			base = "SP"
		}
		return fmt.Sprintf("ADR R%d, [%s, #%d]", rd, base, imm8*4)

	case hw&0xFF00 == 0xB000:
		isSub, imm7 := thumb.DecodeAddSubSP(hw)
		name := "ADD"
		if isSub {
			name = "SUB"
		}
		return fmt.Sprintf("%s SP, #%d", name, imm7*4)

	case hw&0xF600 == 0xB400:
		isPop, extra, regList := thumb.DecodePushPop(hw)
		name := "PUSH"
		if isPop {
			name = "POP"
		}
		return fmt.Sprintf("%s {%s}", name, regListString(regList, extra, isPop))

	case hw&0xF000 == 0xC000:
		isLoad, rb, regList := thumb.DecodeLdmStm(hw)
		name := "STMIA"
		if isLoad {
			name = "LDMIA"
		}
		return fmt.Sprintf("%s R%d!, {%s}", name, rb, regListString(regList, false, false))

	case hw == thumb.OpcodeBKPT:
		return "BKPT #0"
	case hw&0xFF00 == 0xBE00:
		return fmt.Sprintf("BKPT #%d", thumb.DecodeBKPT(hw))
	case hw&0xFF00 == 0xDE00:
		return fmt.Sprintf("UDF #%d", hw&0xFF)
	case hw&0xFF00 == 0xDF00:
		return fmt.Sprintf("SVC #%d", thumb.DecodeSVC(hw))

	case hw&0xF000 == 0xD000:
		cond, simm8 := thumb.DecodeBcc(hw)
		return fmt.Sprintf("B%s #%d", condName(cond), simm8*2)

	case hw&0xF800 == 0xE000:
		return fmt.Sprintf("B #%d", thumb.DecodeB(hw)*2)

	case hw&0xF800 == 0xF000:
		return fmt.Sprintf("BL.hi #%d", thumb.DecodeBLHigh(hw))
	case hw&0xF800 == 0xF800:
		return fmt.Sprintf("BL.lo #%d", thumb.DecodeBLLow(hw))

	default:
		return fmt.Sprintf(".word 0x%04X", hw)
	}
}

func regListString(mask uint16, extra, isPop bool) string {
	s := ""
	for i := 0; i < 8; i++ {
		if mask&(1<<i) != 0 {
			if s != "" {
				s += ", "
			}
			s += fmt.Sprintf("R%d", i)
		}
	}
	if extra {
		if s != "" {
			s += ", "
		}
		if isPop {
			s += "PC"
		} else {
			s += "LR"
		}
	}
	return s
}

func condName(c thumb.Cond) string {
	names := []string{"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC", "HI", "LS", "GE", "LT", "GT", "LE"}
	if int(c) < len(names) {
		return names[c]
	}
	return "AL"
}
