package vm

import (
	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/internal/thumb"
)

// Memory splits instruction fetch from data access, mirroring the
// Harvard split real Cortex-M0+ hardware has between flash (code) and
// SRAM (data): the compiler's globalBase/inputPortAddr placeholders
// (compiler/symbols.go, compiler/primary.go) assume data addresses
// start at 0 regardless of where code lives, which only holds if the
// two are addressed independently. Data is backed directly by the
// heap package's own byte array (heap.Heap.PeekWord/PokeWord and
// friends) so that global slots, the input port, and heap-allocated
// arrays all share one flat address space exactly as the compiler's
// codegen assumes, with the heap's own arena simply starting partway
// into it (heap.NewWithReserved).
type Memory struct {
	Code []byte
	Data *heap.Heap
}

// NewMemory wraps an assembled code image and a heap whose reserved
// prefix has already been sized to the compilation's global data
// section.
func NewMemory(code []byte, data *heap.Heap) *Memory {
	return &Memory{Code: code, Data: data}
}

// FetchHalfWord reads one Thumb-1 instruction half-word from the code
// segment at a byte address.
func (m *Memory) FetchHalfWord(addr uint32) uint16 {
	if int(addr)+1 >= len(m.Code) {
		return thumb.OpcodeNOP
	}
	return uint16(m.Code[addr]) | uint16(m.Code[addr+1])<<8
}

// ReadLiteral reads a 32-bit constant-pool entry out of the code
// segment, used by format-6 PC-relative loads (LDR Rd,=imm).
func (m *Memory) ReadLiteral(addr uint32) uint32 {
	lo := uint32(m.FetchHalfWord(addr))
	hi := uint32(m.FetchHalfWord(addr + 2))
	return lo | hi<<16
}

func (m *Memory) ReadWord(addr uint32) uint32    { return m.Data.PeekWord(addr) }
func (m *Memory) WriteWord(addr uint32, v uint32) { m.Data.PokeWord(addr, v) }
func (m *Memory) ReadHalf(addr uint32) uint16     { return m.Data.PeekHalf(addr) }
func (m *Memory) WriteHalf(addr uint32, v uint16) { m.Data.PokeHalf(addr, v) }
func (m *Memory) ReadByte(addr uint32) byte       { return m.Data.PeekByte(addr) }
func (m *Memory) WriteByte(addr uint32, v byte)   { m.Data.PokeByte(addr, v) }
