package compiler_test

import (
	"path/filepath"
	"testing"

	"github.com/pine2k/pine2k/a2l"
	"github.com/pine2k/pine2k/compiler"
	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/resource"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
)

// fixture bundles a Compiler with the subordinate stores it was built
// over, so a test can inspect symbol/heap/resource state after Compile
// runs in addition to checking for errors.
type fixture struct {
	c   *compiler.Compiler
	errs *perr.List
	syms *symtab.Store
	res  *resource.Table
	hp   *heap.Heap
}

func newFixture(t *testing.T, src string) *fixture {
	t.Helper()
	dir := t.TempDir()

	syms, err := symtab.Open(filepath.Join(dir, "symbols.tmp"))
	if err != nil {
		t.Fatalf("symtab.Open: %v", err)
	}
	t.Cleanup(func() { syms.Close() })

	res, err := resource.Open(filepath.Join(dir, "resources.tmp"), 16)
	if err != nil {
		t.Fatalf("resource.Open: %v", err)
	}
	t.Cleanup(func() { res.Close() })

	hp := heap.New()
	tbl := a2l.New(1024)
	errs := &perr.List{}

	c := compiler.New(src, "test.p2k", errs, syms, res, hp, tbl)
	return &fixture{c: c, errs: errs, syms: syms, res: res, hp: hp}
}

// findSymbol scans declaration order for the first symbol whose hash
// matches name, mirroring how the compiler itself resolves identifiers.
func (f *fixture) findSymbol(t *testing.T, name string) (int, symtab.Symbol) {
	t.Helper()
	want := token.Hash(name)
	var idx int
	var sym symtab.Symbol
	found := false
	f.syms.Iterate(func(i int, s symtab.Symbol) symtab.Symbol {
		if s.Hash == want && !found {
			idx, sym, found = i, s, true
		}
		return s
	})
	if !found {
		t.Fatalf("symbol %q not found", name)
	}
	return idx, sym
}

// countUnconditionalBranches counts Thumb format-18 B instructions in
// the emitted buffer (top 5 bits 0b11100), used to pin down branch
// counts in control-flow regression tests without depending on exact
// target-address arithmetic.
func countUnconditionalBranches(words []uint16) int {
	n := 0
	for _, hw := range words {
		if hw&0xF800 == 0xE000 {
			n++
		}
	}
	return n
}
