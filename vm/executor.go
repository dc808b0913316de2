package vm

import (
	"fmt"

	"github.com/pine2k/pine2k/internal/thumb"
)

// HaltAddress is the return address a top-level call is seeded with:
// LR is set to this sentinel before invoking $init or a script
// function directly, so a BX LR back out of it signals completion
// rather than an attempt to fetch past the end of the code buffer.
const HaltAddress = 0xFFFFFFFE

// HostCallBase marks the start of the synthetic address range used for
// host-bound native functions (runtime.Host). A host symbol's KCTV is
// never a real code offset, so it is tagged with an address no script
// function can ever occupy (the code buffer is capped at asm.BufferSize
// bytes, far below this); BLX-ing to one of these traps into HostCall
// instead of fetching, the same way PC landing on HaltAddress traps
// into a halt instead of a fetch.
const HostCallBase = 0xE0000000

// VM couples a register file to a memory image and runs the
// fetch-decode-execute loop over it.
type VM struct {
	CPU *CPU
	Mem *Memory

	// OnBreakpoint fires on every BKPT trap (the `debugger` statement
	// lowers to BKPT #0). A nil hook makes BKPT inert, so a headless
	// run needs nothing installed.
	OnBreakpoint func(v *VM, imm8 uint16)

	// HostCall dispatches a BLX into the HostCallBase range to a native
	// Go function, identified by the index encoded in the low bits of
	// the target address (runtime.Host.Dispatch). A nil hook makes a
	// host call an undecodable-instruction error instead of a silent
	// no-op, since a program compiled against host bindings cannot run
	// correctly without them wired in.
	HostCall func(v *VM, id uint32) uint32

	Halted bool
	Steps  uint64
}

// New returns a VM over mem with LR pre-seeded to HaltAddress.
func New(mem *Memory) *VM {
	return &VM{Mem: mem, CPU: &CPU{LR: HaltAddress}}
}

// Call sets up a direct invocation of a function at a given code
// offset (half-words), as produced by compiler.Compiler.FunctionOffset
// or EntryPoint, and runs until it returns.
func (v *VM) Call(offsetHalfWords int, maxSteps uint64) error {
	v.CPU.PC = uint32(offsetHalfWords) * 2
	v.CPU.LR = HaltAddress
	v.Halted = false
	return v.Run(maxSteps)
}

// Run steps until a BX lands on HaltAddress or maxSteps instructions
// have executed without halting (a watchdog against runaway scripts;
// 0 means unbounded). Exceeding maxSteps is reported as an error since
// real hardware has no such ceiling to fall back on.
func (v *VM) Run(maxSteps uint64) error {
	for maxSteps == 0 || v.Steps < maxSteps {
		if v.Halted {
			return nil
		}
		if err := v.Step(); err != nil {
			return err
		}
	}
	return fmt.Errorf("vm: exceeded %d instructions without halting", maxSteps)
}

// Step fetches, decodes and executes one instruction. A PC equal to
// HaltAddress means a BX LR unwound past the call Run started from,
// so execution stops here rather than fetching past the code buffer.
func (v *VM) Step() error {
	if v.Halted {
		return nil
	}
	if v.CPU.PC == HaltAddress {
		v.Halted = true
		return nil
	}
	if v.CPU.PC >= HostCallBase {
		return v.stepHostCall()
	}
	pc := v.CPU.PC
	hw := v.Mem.FetchHalfWord(pc)
	v.CPU.PC = pc + 2
	v.Steps++
	return v.execute(hw, pc)
}

// stepHostCall simulates the BLX-then-immediate-return a host-bound
// native function performs: the real call already happened in Go when
// BLX loaded this sentinel into PC (execHi set LR to the instruction
// after the BLX), so all that is left is to run the native function,
// land its result in R0 per the Thumb-1 calling convention, and unwind
// PC back to LR as if the callee had executed BX LR.
func (v *VM) stepHostCall() error {
	if v.HostCall == nil {
		return fmt.Errorf("vm: host call to id %d with no HostCall hook installed", v.CPU.PC-HostCallBase)
	}
	id := v.CPU.PC - HostCallBase
	v.Steps++
	v.CPU.R[0] = v.HostCall(v, id)
	v.CPU.PC = v.CPU.LR &^ 1
	return nil
}

// execute dispatches one half-word. pc is the address the half-word
// was fetched from (CPU.PC has already been advanced past it).
func (v *VM) execute(hw uint16, pc uint32) error {
	c := v.CPU

	switch {
	case hw&0xF800 == 0xF800: // format 19 low half-word: never fetched as a lead instruction
		return fmt.Errorf("vm: fetched BL low half-word as an instruction at %#x", pc)

	case hw&0xF800 == 0xF000: // format 19 high: BL, a two-half-word instruction
		lo := v.Mem.FetchHalfWord(pc + 2)
		hi11 := thumb.DecodeBLHigh(hw)
		lo11 := thumb.DecodeBLLow(lo)
		d := (hi11 << 11) | lo11
		delta := d + 2
		targetHalf := int64(pc/2) + int64(delta)
		c.LR = pc + 4
		c.PC = uint32(targetHalf) * 2
		return nil

	case hw&0xF800 == 0xE000: // format 18: B
		simm11 := thumb.DecodeB(hw)
		targetHalf := int64(pc/2) + int64(simm11) + 1
		c.PC = uint32(targetHalf) * 2
		return nil

	case hw&0xF000 == 0xD000: // format 16/17: Bcc / SVC / UDF
		cond := thumb.Cond((hw >> 8) & 0xF)
		switch cond {
		case 0xF: // SVC: never emitted by this toolchain
			return nil
		case 0xE: // UDF: permanently undefined, so executing one is an error
			return fmt.Errorf("vm: executed UDF at %#x", pc)
		default:
			_, simm8 := thumb.DecodeBcc(hw)
			if c.ConditionPassed(cond) {
				targetHalf := int64(pc/2) + int64(simm8) + 1
				c.PC = uint32(targetHalf) * 2
			}
			return nil
		}

	case hw&0xFF00 == 0xBE00: // BKPT
		imm8 := thumb.DecodeBKPT(hw)
		if v.OnBreakpoint != nil {
			v.OnBreakpoint(v, imm8)
		}
		return nil

	case hw&0xFF00 == 0xB000: // format 13: ADD/SUB SP, #imm7*4
		isSub, imm7 := thumb.DecodeAddSubSP(hw)
		amount := uint32(imm7) * 4
		if isSub {
			c.SP -= amount
		} else {
			c.SP += amount
		}
		return nil

	case hw&0xF600 == 0xB400: // format 14: PUSH/POP
		isPop, extra, regList := thumb.DecodePushPop(hw)
		v.execPushPop(isPop, extra, regList)
		return nil

	case hw&0xF000 == 0xC000: // format 15: LDMIA/STMIA
		isLoad, rb, regList := thumb.DecodeLdmStm(hw)
		v.execLdmStm(isLoad, rb, regList)
		return nil

	case hw == thumb.OpcodeNOP:
		return nil

	case hw&0xFC00 == 0x4000: // format 4: ALU register op
		op, rs, rd := thumb.DecodeAlu(hw)
		v.execAlu(op, rs, rd)
		return nil

	case hw&0xFC00 == 0x4400: // format 5: hi-register op / BX / BLX
		return v.execHi(hw, pc)

	case hw&0xF800 == 0x4800: // format 6: PC-relative literal load
		rd, imm8 := thumb.DecodeLdrPC(hw)
		base := (pc + 4) &^ 3
		addr := base + uint32(imm8)*4
		c.R[rd] = v.Mem.ReadLiteral(addr)
		return nil

	case hw&0xF000 == 0x5000: // format 7/8: load/store register offset
		op, ro, rb, rd := thumb.DecodeRegOffset(hw)
		v.execRegOffset(op, ro, rb, rd)
		return nil

	case hw&0xE000 == 0x6000: // format 9: load/store word/byte, immediate offset
		isByte, isLoad, imm5, rb, rd := thumb.DecodeImmOffset(hw)
		addr := c.R[rb]
		if isByte {
			addr += uint32(imm5)
		} else {
			addr += uint32(imm5) * 4
		}
		if isLoad {
			if isByte {
				c.R[rd] = uint32(v.Mem.ReadByte(addr))
			} else {
				c.R[rd] = v.Mem.ReadWord(addr)
			}
		} else {
			if isByte {
				v.Mem.WriteByte(addr, byte(c.R[rd]))
			} else {
				v.Mem.WriteWord(addr, c.R[rd])
			}
		}
		return nil

	case hw&0xF000 == 0x8000: // format 10: load/store halfword, immediate offset
		isLoad, imm5, rb, rd := thumb.DecodeHalfwordOffset(hw)
		addr := c.R[rb] + uint32(imm5)*2
		if isLoad {
			c.R[rd] = uint32(v.Mem.ReadHalf(addr))
		} else {
			v.Mem.WriteHalf(addr, uint16(c.R[rd]))
		}
		return nil

	case hw&0xF000 == 0x9000: // format 11: SP-relative load/store
		isLoad, rd, imm8 := thumb.DecodeSPOffset(hw)
		addr := c.SP + uint32(imm8)*4
		if isLoad {
			c.R[rd] = v.Mem.ReadWord(addr)
		} else {
			v.Mem.WriteWord(addr, c.R[rd])
		}
		return nil

	case hw&0xF000 == 0xA000: // format 12: ADR / ADD Rd, SP, #imm8*4
		fromSP, rd, imm8 := thumb.DecodeAdr(hw)
		if fromSP {
			c.R[rd] = c.SP + uint32(imm8)*4
		} else {
			c.R[rd] = ((pc + 4) &^ 3) + uint32(imm8)*4
		}
		return nil

	case hw&0xE000 == 0x2000: // format 3: MOV/CMP/ADD/SUB Rd, #imm8
		op, rd, imm8 := thumb.DecodeImm8(hw)
		v.execImm8(op, rd, imm8)
		return nil

	case hw&0xE000 == 0x0000:
		if hw&0x1800 == 0x1800 { // format 2: add/subtract register or 3-bit immediate
			isImm, isSub, rnImm, rs, rd := thumb.DecodeAddSub3(hw)
			var operand2 uint32
			if isImm {
				operand2 = uint32(rnImm)
			} else {
				operand2 = c.R[rnImm]
			}
			if isSub {
				c.R[rd] = c.subWithFlags(c.R[rs], operand2, true)
			} else {
				c.R[rd] = c.addWithFlags(c.R[rs], operand2, false)
			}
			return nil
		}
		// format 1: shift by immediate
		op, imm5, rm, rd := thumb.DecodeShiftImm(hw)
		v.execShiftImm(op, imm5, rm, rd)
		return nil
	}

	return fmt.Errorf("vm: undecodable instruction %#04x at %#x", hw, pc)
}

func (v *VM) execImm8(op thumb.Imm8Op, rd, imm8 uint16) {
	c := v.CPU
	switch op {
	case thumb.Imm8MOV:
		c.R[rd] = uint32(imm8)
		c.setNZ(c.R[rd])
	case thumb.Imm8CMP:
		c.subWithFlags(c.R[rd], uint32(imm8), true)
	case thumb.Imm8ADD:
		c.R[rd] = c.addWithFlags(c.R[rd], uint32(imm8), false)
	case thumb.Imm8SUB:
		c.R[rd] = c.subWithFlags(c.R[rd], uint32(imm8), true)
	}
}

func (v *VM) execAlu(op thumb.AluOp, rs, rd uint16) {
	c := v.CPU
	switch op {
	case thumb.AluAND:
		c.R[rd] &= c.R[rs]
		c.setNZ(c.R[rd])
	case thumb.AluEOR:
		c.R[rd] ^= c.R[rs]
		c.setNZ(c.R[rd])
	case thumb.AluLSL:
		c.shiftLSLReg(rd, c.R[rs]&0xFF)
	case thumb.AluLSR:
		c.shiftLSRReg(rd, c.R[rs]&0xFF)
	case thumb.AluASR:
		c.shiftASRReg(rd, c.R[rs]&0xFF)
	case thumb.AluADC:
		c.R[rd] = c.addWithFlags(c.R[rd], c.R[rs], c.C)
	case thumb.AluSBC:
		c.R[rd] = c.subWithFlags(c.R[rd], c.R[rs], c.C)
	case thumb.AluROR:
		c.shiftRORReg(rd, c.R[rs]&0xFF)
	case thumb.AluTST:
		c.setNZ(c.R[rd] & c.R[rs])
	case thumb.AluNEG:
		c.R[rd] = c.subWithFlags(0, c.R[rs], true)
	case thumb.AluCMP:
		c.subWithFlags(c.R[rd], c.R[rs], true)
	case thumb.AluCMN:
		c.addWithFlags(c.R[rd], c.R[rs], false)
	case thumb.AluORR:
		c.R[rd] |= c.R[rs]
		c.setNZ(c.R[rd])
	case thumb.AluMUL:
		c.R[rd] = c.R[rd] * c.R[rs]
		c.setNZ(c.R[rd])
	case thumb.AluBIC:
		c.R[rd] &^= c.R[rs]
		c.setNZ(c.R[rd])
	case thumb.AluMVN:
		c.R[rd] = ^c.R[rs]
		c.setNZ(c.R[rd])
	}
}

// execShiftImm applies format 1's immediate shift, including the ARM
// convention that an imm5 of 0 means "shift by 32" for LSR/ASR (LSL's
// zero case is a genuine no-shift, the only one of the three where 0
// is meaningful on its own).
func (v *VM) execShiftImm(op thumb.ShiftOp, imm5, rm, rd uint16) {
	c := v.CPU
	v2 := c.R[rm]
	switch op {
	case thumb.ShiftLSL:
		c.shiftLSLImm(rd, v2, uint32(imm5))
	case thumb.ShiftLSR:
		shift := uint32(imm5)
		if shift == 0 {
			shift = 32
		}
		c.shiftLSRImm(rd, v2, shift)
	case thumb.ShiftASR:
		shift := uint32(imm5)
		if shift == 0 {
			shift = 32
		}
		c.shiftASRImm(rd, v2, shift)
	}
}

func (v *VM) execHi(hw uint16, pc uint32) error {
	c := v.CPU
	op, h1, _, rs, rdLow := thumb.DecodeHi(hw)

	if op == thumb.HiBX {
		target := c.Get(rs)
		if h1 { // BLX
			c.LR = (pc + 2) | 1
		}
		c.PC = target &^ 1
		return nil
	}

	rd := rdLow
	if h1 {
		rd |= 8
	}
	switch op {
	case thumb.HiADD:
		c.Set(rd, c.Get(rd)+c.Get(rs))
	case thumb.HiCMP:
		a, b := c.Get(rd), c.Get(rs)
		c.subWithFlags(a, b, true)
	case thumb.HiMOV:
		c.Set(rd, c.Get(rs))
	}
	return nil
}

func (v *VM) execRegOffset(op thumb.RegOffsetOp, ro, rb, rd uint16) {
	c := v.CPU
	addr := c.R[rb] + c.R[ro]
	switch op {
	case thumb.RegOffSTR:
		v.Mem.WriteWord(addr, c.R[rd])
	case thumb.RegOffSTRB:
		v.Mem.WriteByte(addr, byte(c.R[rd]))
	case thumb.RegOffLDR:
		c.R[rd] = v.Mem.ReadWord(addr)
	case thumb.RegOffLDRB:
		c.R[rd] = uint32(v.Mem.ReadByte(addr))
	case thumb.RegOffSTRH:
		v.Mem.WriteHalf(addr, uint16(c.R[rd]))
	case thumb.RegOffLDRSB:
		b := v.Mem.ReadByte(addr)
		c.R[rd] = uint32(int32(int8(b)))
	case thumb.RegOffLDRH:
		c.R[rd] = uint32(v.Mem.ReadHalf(addr))
	case thumb.RegOffLDRSH:
		h := v.Mem.ReadHalf(addr)
		c.R[rd] = uint32(int32(int16(h)))
	}
}

func (v *VM) execPushPop(isPop, extra bool, regList uint16) {
	c := v.CPU
	if isPop {
		addr := c.SP
		for r := uint16(0); r < 8; r++ {
			if regList&(1<<r) != 0 {
				c.R[r] = v.Mem.ReadWord(addr)
				addr += 4
			}
		}
		if extra {
			c.PC = v.Mem.ReadWord(addr) &^ 1
			addr += 4
		}
		c.SP = addr
		return
	}

	count := 0
	for r := uint16(0); r < 8; r++ {
		if regList&(1<<r) != 0 {
			count++
		}
	}
	if extra {
		count++
	}
	addr := c.SP - uint32(count)*4
	c.SP = addr
	for r := uint16(0); r < 8; r++ {
		if regList&(1<<r) != 0 {
			v.Mem.WriteWord(addr, c.R[r])
			addr += 4
		}
	}
	if extra {
		v.Mem.WriteWord(addr, c.LR)
	}
}

func (v *VM) execLdmStm(isLoad bool, rb uint16, regList uint16) {
	c := v.CPU
	addr := c.R[rb]
	for r := uint16(0); r < 8; r++ {
		if regList&(1<<r) == 0 {
			continue
		}
		if isLoad {
			c.R[r] = v.Mem.ReadWord(addr)
		} else {
			v.Mem.WriteWord(addr, c.R[r])
		}
		addr += 4
	}
	c.R[rb] = addr
}
