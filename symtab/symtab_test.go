package symtab_test

import (
	"path/filepath"
	"testing"

	"github.com/pine2k/pine2k/symtab"
)

func TestAllocGetSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.tmp")
	st, err := symtab.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	idx := st.Alloc()
	sym := st.Get(idx)
	if sym.HasAddress() || sym.HasReg() {
		t.Fatalf("fresh symbol should be unallocated, got %+v", sym)
	}

	sym.Hash = 0xCAFE
	sym.Address = 4
	sym.Type = symtab.TypeU32
	st.Set(idx, sym)

	got := st.Get(idx)
	if got.Hash != 0xCAFE || got.Address != 4 {
		t.Fatalf("Get after Set = %+v, want Hash=0xCAFE Address=4", got)
	}
}

func TestLRUEvictionSurvivesOverCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.tmp")
	st, err := symtab.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	const n = 40 // > 8-way cache, forces eviction+reload
	idxs := make([]int, n)
	for i := 0; i < n; i++ {
		idxs[i] = st.Alloc()
		sym := st.Get(idxs[i])
		sym.Hash = uint32(i)
		st.Set(idxs[i], sym)
	}

	for i := 0; i < n; i++ {
		sym := st.Get(idxs[i])
		if sym.Hash != uint32(i) {
			t.Fatalf("symbol %d: Hash = %d, want %d", i, sym.Hash, i)
		}
	}
}

func TestIterateDeclarationOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.tmp")
	st, err := symtab.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	for i := 0; i < 5; i++ {
		idx := st.Alloc()
		sym := st.Get(idx)
		sym.Hash = uint32(i)
		st.Set(idx, sym)
	}

	var order []uint32
	st.Iterate(func(idx int, sym symtab.Symbol) symtab.Symbol {
		order = append(order, sym.Hash)
		return sym
	})
	for i, h := range order {
		if h != uint32(i) {
			t.Fatalf("iterate order[%d] = %d, want %d", i, h, i)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.tmp")
	st, err := symtab.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx := st.Alloc()
	sym := st.Get(idx)
	sym.Hash = 0x1234
	st.Set(idx, sym)
	st.Close()

	st2, err := symtab.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if st2.Len() != 1 {
		t.Fatalf("Len = %d, want 1", st2.Len())
	}
	got := st2.Get(idx)
	if got.Hash != 0x1234 {
		t.Fatalf("Hash after reopen = %#x, want 0x1234", got.Hash)
	}
}
