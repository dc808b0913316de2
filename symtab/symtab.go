// Package symtab implements the paged symbol store (spec.md §4.3,
// component C3): an array of fixed-size Symbol records addressed by
// index, too large to keep pinned in RAM, backed by an 8-way LRU page
// cache over symbols.tmp. Grounded on the teacher's parser.SymbolTable
// (parser/symbols.go) for the record shape, generalized here to a
// paged on-disk array since the spec requires random-access persistence
// rather than an in-memory map.
package symtab

import (
	"encoding/binary"
	"os"
)

// Type is the compile-time type tag of a symbol's current value
// (spec.md §3). CAST_* values mean the symbol's value is a branch
// condition currently encoded in CPU flags.
type Type byte

const (
	TypeU32 Type = iota
	TypeS32
	TypeBool
	TypeUncompiled
	TypeFunction
	TypeCastEQ
	TypeCastNE
	TypeCastLT
	TypeCastLE
	TypeCastGT
	TypeCastGE
)

// IsCast reports whether t is one of the CAST_* flag-carrying types.
func (t Type) IsCast() bool { return t >= TypeCastEQ && t <= TypeCastGE }

// Flags holds the boolean attributes of a Symbol (spec.md §3).
type Flags uint16

const (
	FlagCalled Flags = 1 << iota
	FlagDeref
	FlagTempHit
	FlagDirty
	FlagHasKCTV
	FlagConstant
	FlagConstexpr
	FlagMemInit
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

const unallocated = ^uint32(0) // "infinity" sentinel for Address/Reg

// Symbol is a single named or temporary value (spec.md §3).
type Symbol struct {
	Hash    uint32 // 0 for anonymous temporaries
	ScopeID int32  // 0 = global, >0 = function-local
	KCTV    int32
	Init    int32
	Address uint32 // data-section slot or stack slot; unallocated if unset
	Reg     uint32 // assigned register; unallocated if unset
	Type    Type
	Flags   Flags
}

// HasAddress reports whether Address has been allocated.
func (s *Symbol) HasAddress() bool { return s.Address != unallocated }

// HasReg reports whether a register is currently assigned.
func (s *Symbol) HasReg() bool { return s.Reg != unallocated }

// ClearAddress marks the symbol as having no data-section/stack slot.
func (s *Symbol) ClearAddress() { s.Address = unallocated }

// ClearReg marks the symbol as not currently register-resident.
func (s *Symbol) ClearReg() { s.Reg = unallocated }

// recordSize is the fixed on-disk width of one Symbol, used to compute
// file offsets for the paged store.
const recordSize = 4 + 4 + 4 + 4 + 4 + 4 + 1 + 2 // = 27, padded to 28
const recordPadded = 28

const pageWays = 8

type page struct {
	index int
	valid bool
	dirty bool
	age   uint64
	data  Symbol
}

// Store is the paged symbol array backed by a file, with an 8-way LRU
// page cache (spec.md §4.3).
type Store struct {
	f       *os.File
	pages   [pageWays]page
	clock   uint64
	count   int // number of symbols ever declared, i.e. len() semantics
	// order preserves declaration order for the linear iterator
	// (spec.md §5 "Ordering": declaration order is source order).
	declOrder []int
}

// Open opens (creating if absent) the symbol store at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Store{f: f}
	for i := range s.pages {
		s.pages[i].index = -1
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.count = int(info.Size() / recordPadded)
	for i := 0; i < s.count; i++ {
		s.declOrder = append(s.declOrder, i)
	}
	return s, nil
}

// Len returns the number of symbols ever allocated.
func (s *Store) Len() int { return s.count }

// Alloc appends a new zero-valued symbol and returns its index.
func (s *Store) Alloc() int {
	idx := s.count
	s.count++
	s.declOrder = append(s.declOrder, idx)
	sym := Symbol{Address: unallocated, Reg: unallocated}
	s.evictAndLoad(idx, true)
	s.setCached(idx, sym, true)
	return idx
}

func (s *Store) findSlot(idx int) int {
	for i := range s.pages {
		if s.pages[i].valid && s.pages[i].index == idx {
			return i
		}
	}
	return -1
}

func (s *Store) lruSlot() int {
	oldest := 0
	for i := range s.pages {
		if !s.pages[i].valid {
			return i
		}
		if s.pages[i].age < s.pages[oldest].age {
			oldest = i
		}
	}
	return oldest
}

// evictAndLoad ensures idx has a cache slot, flushing a dirty victim
// first and optionally skipping the disk read when skipRead (a brand
// new symbol has nothing on disk yet).
func (s *Store) evictAndLoad(idx int, skipRead bool) int {
	if slot := s.findSlot(idx); slot >= 0 {
		s.clock++
		s.pages[slot].age = s.clock
		return slot
	}
	slot := s.lruSlot()
	if s.pages[slot].valid && s.pages[slot].dirty {
		s.flushSlot(slot)
	}
	s.clock++
	s.pages[slot] = page{index: idx, valid: true, age: s.clock}
	if !skipRead {
		s.readSlot(slot, idx)
	}
	return slot
}

func (s *Store) setCached(idx int, sym Symbol, dirty bool) {
	slot := s.findSlot(idx)
	if slot < 0 {
		slot = s.evictAndLoad(idx, true)
	}
	s.pages[slot].data = sym
	s.pages[slot].dirty = s.pages[slot].dirty || dirty
}

func (s *Store) readSlot(slot, idx int) {
	buf := make([]byte, recordPadded)
	if _, err := s.f.ReadAt(buf, int64(idx*recordPadded)); err != nil {
		return // brand new record; zero value stands
	}
	s.pages[slot].data = decode(buf)
}

func (s *Store) flushSlot(slot int) {
	if !s.pages[slot].valid {
		return
	}
	buf := encode(s.pages[slot].data)
	s.f.WriteAt(buf, int64(s.pages[slot].index*recordPadded))
	s.pages[slot].dirty = false
}

func encode(sym Symbol) []byte {
	buf := make([]byte, recordPadded)
	binary.LittleEndian.PutUint32(buf[0:4], sym.Hash)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(sym.ScopeID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(sym.KCTV))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(sym.Init))
	binary.LittleEndian.PutUint32(buf[16:20], sym.Address)
	binary.LittleEndian.PutUint32(buf[20:24], sym.Reg)
	buf[24] = byte(sym.Type)
	binary.LittleEndian.PutUint16(buf[25:27], uint16(sym.Flags))
	return buf
}

func decode(buf []byte) Symbol {
	return Symbol{
		Hash:    binary.LittleEndian.Uint32(buf[0:4]),
		ScopeID: int32(binary.LittleEndian.Uint32(buf[4:8])),
		KCTV:    int32(binary.LittleEndian.Uint32(buf[8:12])),
		Init:    int32(binary.LittleEndian.Uint32(buf[12:16])),
		Address: binary.LittleEndian.Uint32(buf[16:20]),
		Reg:     binary.LittleEndian.Uint32(buf[20:24]),
		Type:    Type(buf[24]),
		Flags:   Flags(binary.LittleEndian.Uint16(buf[25:27])),
	}
}

// Get returns a copy of the symbol at idx, paging it in if necessary.
func (s *Store) Get(idx int) Symbol {
	slot := s.evictAndLoad(idx, false)
	return s.pages[slot].data
}

// Set writes back idx's symbol, marking its page dirty. The dirty page
// is flushed to disk lazily, on eviction (spec.md §4.3).
func (s *Store) Set(idx int, sym Symbol) {
	slot := s.evictAndLoad(idx, false)
	s.pages[slot].data = sym
	s.pages[slot].dirty = true
}

// Iterate visits every declared symbol index in declaration order,
// flushing any page mutated mid-iteration before advancing (spec.md
// §4.3: "mutations during iteration are flushed on advance if dirty").
func (s *Store) Iterate(fn func(idx int, sym Symbol) Symbol) {
	for _, idx := range s.declOrder {
		slot := s.evictAndLoad(idx, false)
		updated := fn(idx, s.pages[slot].data)
		slot = s.findSlot(idx)
		s.pages[slot].data = updated
		s.pages[slot].dirty = true
		s.flushSlot(slot)
	}
}

// Flush writes every dirty page back to disk.
func (s *Store) Flush() {
	for i := range s.pages {
		s.flushSlot(i)
	}
}

// Close flushes and releases the backing file.
func (s *Store) Close() error {
	s.Flush()
	return s.f.Close()
}
