// Package heap implements the precise mark-sweep garbage collector and
// the script-visible array heap (spec.md §4.7, component C7). The
// byte-backed region with little-endian word accessors is grounded on
// the teacher's vm.Memory segment model (lookbusy1344-arm_emulator
// vm/memory.go); the mark/sweep walk and the conservative stack/global
// scan are original to this component, since the teacher has no
// garbage collector.
package heap

import "fmt"

// Size is the fixed script-heap region size (spec.md's "32 KiB script
// heap region").
const Size = 32 * 1024

// wordSize is the header/payload element width; offsets into the heap
// are always word-aligned per spec.md's Array type.
const wordSize = 4

// header bit layout within the leading word of each array block:
// bits 0-15  length (element count)
// bits 16-29 offset to next array in the allocation list (0 = end)
// bit 30     mark
// bit 31 unused here; has-ptrs/is-root live in a second control word
// to keep the encode/decode simple and auditable.
const (
	lengthMask = 0x0000FFFF
	nextShift  = 16
	nextMask   = 0x3FFF
	markBit    = 1 << 30
)

const (
	flagHasPtrs = 1 << 0
	flagIsRoot  = 1 << 1
)

// Array is a view onto one heap-resident allocation: a header word
// (length, next-offset, mark) immediately followed by a flags word and
// then the payload, matching spec.md's "header word preceding the
// data" description generalized to two control words for clarity.
type Array struct {
	h      *Heap
	Offset uint32 // offset of the header word, in bytes from heap base
}

// Heap is the 32 KiB script-heap region plus the process-wide
// allocation-list head and GC lock depth (spec.md §4.7, §5 "Shared
// resources").
type Heap struct {
	data     [Size]byte
	listHead uint32 // offset of most-recently-allocated array, 0 = empty
	gcLock   int
	free     uint32 // bump offset of first unused byte

	// StackWords and GlobalWords hold the conservative scan
	// roots (spec.md §4.7 Mark phase 1). The embedding runtime sets
	// these before each collection.
	StackWords  []uint32
	GlobalWords []uint32
}

// New returns an empty heap with a zeroed allocation list.
func New() *Heap {
	return &Heap{free: wordSize} // reserve offset 0 as the "null" sentinel
}

// NewWithReserved returns a heap whose arena bump-allocator starts
// after a reserved byte prefix, rounded up to a word. The runtime glue
// uses the reserved prefix as the global data section and the
// memory-mapped input port, so that script-visible addresses (which
// never distinguish "global slot" from "heap pointer", spec.md §4.6's
// globalBase/inputPortAddr placeholders) all resolve into one flat
// byte space instead of colliding with arena allocations at offset 0.
func NewWithReserved(reservedBytes uint32) *Heap {
	return &Heap{free: (reservedBytes + 3) &^ 3}
}

// PeekWord, PokeWord and the byte/half variants give the runtime glue
// raw little-endian access to the full heap-backed address space: the
// reserved prefix below the arena's bump pointer, and array payloads
// above it, addressed uniformly (spec.md §4.6 "every access goes
// through R7 rather than a linker-resolved symbol").
func (h *Heap) PeekWord(addr uint32) uint32    { return h.readWord(addr) }
func (h *Heap) PokeWord(addr uint32, v uint32) { h.writeWord(addr, v) }

func (h *Heap) PeekByte(addr uint32) byte       { return h.data[addr] }
func (h *Heap) PokeByte(addr uint32, v byte)    { h.data[addr] = v }
func (h *Heap) PeekHalf(addr uint32) uint16 {
	return uint16(h.data[addr]) | uint16(h.data[addr+1])<<8
}
func (h *Heap) PokeHalf(addr uint32, v uint16) {
	h.data[addr] = byte(v)
	h.data[addr+1] = byte(v >> 8)
}

// Lock increments the reentrant GC-lock depth, suppressing collection
// during array-literal construction while raw pointers are transiently
// held in scratch registers invisible to the GC (spec.md §4.7).
func (h *Heap) Lock() { h.gcLock++ }

// Unlock decrements the GC-lock depth.
func (h *Heap) Unlock() {
	if h.gcLock > 0 {
		h.gcLock--
	}
}

func (h *Heap) readWord(off uint32) uint32 {
	return uint32(h.data[off]) | uint32(h.data[off+1])<<8 |
		uint32(h.data[off+2])<<16 | uint32(h.data[off+3])<<24
}

func (h *Heap) writeWord(off uint32, v uint32) {
	h.data[off] = byte(v)
	h.data[off+1] = byte(v >> 8)
	h.data[off+2] = byte(v >> 16)
	h.data[off+3] = byte(v >> 24)
}

func headerOf(off uint32) uint32   { return off }
func flagsOff(off uint32) uint32   { return off + wordSize }
func payloadOff(off uint32) uint32 { return off + 2*wordSize }

func (h *Heap) length(off uint32) uint16 {
	return uint16(h.readWord(headerOf(off)) & lengthMask)
}

// next and setNext store the successor as a word index (byte offset /
// 4) so a 14-bit field reaches the full 32 KiB region, matching the
// Array type's "offsets use a 4-byte-aligned encoding" description.
func (h *Heap) next(off uint32) uint32 {
	idx := (h.readWord(headerOf(off)) >> nextShift) & nextMask
	if idx == 0 {
		return 0
	}
	return idx * wordSize
}

func (h *Heap) setNext(off, next uint32) {
	hdr := h.readWord(headerOf(off))
	idx := next / wordSize
	hdr = hdr&^(nextMask<<nextShift) | (idx&nextMask)<<nextShift
	h.writeWord(headerOf(off), hdr)
}

func (h *Heap) marked(off uint32) bool {
	return h.readWord(headerOf(off))&markBit != 0
}

func (h *Heap) setMark(off uint32, m bool) {
	hdr := h.readWord(headerOf(off))
	if m {
		hdr |= markBit
	} else {
		hdr &^= markBit
	}
	h.writeWord(headerOf(off), hdr)
}

func (h *Heap) isRoot(off uint32) bool {
	return h.readWord(flagsOff(off))&flagIsRoot != 0
}

func (h *Heap) hasPtrs(off uint32) bool {
	return h.readWord(flagsOff(off))&flagHasPtrs != 0
}

func (h *Heap) setHasPtrs(off uint32, v bool) {
	flags := h.readWord(flagsOff(off))
	if v {
		flags |= flagHasPtrs
	} else {
		flags &^= flagHasPtrs
	}
	h.writeWord(flagsOff(off), flags)
}

// Alloc allocates a contiguous block of words+2 words (header, flags,
// and payload), prepends it to the allocation list, zeroes the
// payload, and returns an Array view over it. When the GC lock is
// unheld, a collection runs first (spec.md §4.7).
func (h *Heap) Alloc(words uint16, isRoot bool) (Array, error) {
	if h.gcLock == 0 {
		h.Collect()
	}

	need := uint32(2+words) * wordSize
	if h.free+need > Size {
		h.Collect()
		if h.free+need > Size {
			return Array{}, fmt.Errorf("heap: out of space allocating %d words", words)
		}
	}

	off := h.free
	h.free += need

	hdr := uint32(words) & lengthMask
	h.writeWord(headerOf(off), hdr)
	h.setNext(off, h.listHead)

	flags := uint32(0)
	if isRoot {
		flags |= flagIsRoot
	}
	h.writeWord(flagsOff(off), flags)

	for i := uint32(0); i < uint32(words); i++ {
		h.writeWord(payloadOff(off)+i*wordSize, 0)
	}

	h.listHead = off
	return Array{h: h, Offset: off}, nil
}

// Len returns the array's element count.
func (a Array) Len() int { return int(a.h.length(a.Offset)) }

// Get reads payload word i.
func (a Array) Get(i int) uint32 {
	return a.h.readWord(payloadOff(a.Offset) + uint32(i)*wordSize)
}

// Set writes payload word i.
func (a Array) Set(i int, v uint32) {
	a.h.writeWord(payloadOff(a.Offset)+uint32(i)*wordSize, v)
}

// payloadRange returns the [start, end) byte range of a's payload,
// used by the GC's conservative pointer test.
func (a Array) payloadRange() (uint32, uint32) {
	start := payloadOff(a.Offset)
	return start, start + uint32(a.h.length(a.Offset))*wordSize
}

// looksLikePointer reports whether v names a byte inside some array's
// payload range, the GC's definition of "looks like a heap pointer"
// (spec.md §4.7 Mark phase 1).
func (h *Heap) looksLikePointer(v uint32) (uint32, bool) {
	for off := h.listHead; off != 0; off = h.next(off) {
		start, end := (Array{h: h, Offset: off}).payloadRange()
		if v >= start && v < end {
			return off, true
		}
	}
	return 0, false
}

// Collect runs one mark-sweep cycle. A no-op while the GC lock is held
// (spec.md §4.7, "GC stability under lock").
func (h *Heap) Collect() {
	if h.gcLock > 0 {
		return
	}

	// Mark phase 1: roots and has-ptrs precomputation.
	for off := h.listHead; off != 0; off = h.next(off) {
		h.setMark(off, h.isRoot(off))
		hasPtrs := false
		start, end := (Array{h: h, Offset: off}).payloadRange()
		for p := start; p < end; p += wordSize {
			if v := h.readWord(p); v >= start && v < end {
				// A word pointing inside its own array is not a
				// cross-array reference; still counts for has-ptrs
				// since it still looks like a heap pointer to a
				// conservative scanner.
				hasPtrs = true
			} else if _, ok := h.looksLikePointer(v); ok {
				hasPtrs = true
			}
		}
		h.setHasPtrs(off, hasPtrs)
	}

	mark := func(v uint32) {
		if target, ok := h.looksLikePointer(v); ok && !h.marked(target) {
			h.setMark(target, true)
		}
	}
	for _, w := range h.StackWords {
		mark(w)
	}
	for _, w := range h.GlobalWords {
		mark(w)
	}

	// Mark phase 2: transitive closure to fixpoint.
	for changed := true; changed; {
		changed = false
		for off := h.listHead; off != 0; off = h.next(off) {
			if !h.marked(off) || !h.hasPtrs(off) {
				continue
			}
			start, end := (Array{h: h, Offset: off}).payloadRange()
			for p := start; p < end; p += wordSize {
				v := h.readWord(p)
				if target, ok := h.looksLikePointer(v); ok && !h.marked(target) {
					h.setMark(target, true)
					changed = true
				}
			}
		}
	}

	// Sweep: walk the list, unlinking unmarked arrays. The list-head's
	// low bits carry no flags in this implementation (it is a bare
	// offset), so no preservation step beyond the offset itself is
	// needed.
	prev := uint32(0)
	off := h.listHead
	for off != 0 {
		next := h.next(off)
		if h.marked(off) {
			prev = off
		} else {
			if prev == 0 {
				h.listHead = next
			} else {
				h.setNext(prev, next)
			}
		}
		off = next
	}
}

// ListHead exposes the allocation-list head offset for tests and the
// debugger's heap view.
func (h *Heap) ListHead() uint32 { return h.listHead }

// Walk calls fn for every live array in allocation order
// (most-recent first, per spec.md §5 "Ordering").
func (h *Heap) Walk(fn func(a Array)) {
	for off := h.listHead; off != 0; off = h.next(off) {
		fn(Array{h: h, Offset: off})
	}
}
