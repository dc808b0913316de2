package runtime

import (
	"fmt"

	"github.com/pine2k/pine2k/a2l"
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/compiler"
	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/resource"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/vm"
)

// Paths names the on-disk files a compilation's paged stores live in
// (spec.md §6 "External interfaces": symbols.tmp / resources.tmp), the
// same two artifacts compiler.compiler_test.go's fixture helper opens
// under a t.TempDir.
type Paths struct {
	Symbols   string
	Resources string
}

// Program is a compiled Pine2K source image wired to a runnable VM: the
// glue spec.md §4.9 calls "the runtime" binding C6's output to C9's
// execution engine.
type Program struct {
	Compiler *compiler.Compiler
	Syms     *symtab.Store
	Res      *resource.Table
	A2L      *a2l.Table
	VM       *vm.VM
	Host     *Host

	errs *perr.List
}

// reservedWords is how many global-data words the heap carves off
// before compilation starts (spec.md §4.6 globalBase placeholder): a
// generous ceiling well past what any 2 KiB-program's global section
// will use, chosen up front because parseArrayLiteral bakes constant
// array literals directly into this same heap as it compiles
// (compiler/primary.go), so the heap handed to compiler.New must
// already be the one the program runs against — sizing it only after
// Compile returns (from compiler.GlobalWords) would mean recomputing
// array offsets a second time against a different heap. GlobalWords is
// checked against this ceiling afterward as a sanity bound, not used to
// resize anything.
const reservedWords = 512

func (p *Program) globalsFit() bool { return p.Compiler.GlobalWords() <= reservedWords }

// Compile opens the paged stores at paths, registers host's bindings
// into the fresh symbol store, compiles src, and wires the result into
// a VM ready to Call into. registerHost may be nil for a program with
// no native bindings.
func Compile(src, filename string, paths Paths, registerHost func(*Host) error) (*Program, error) {
	syms, err := symtab.Open(paths.Symbols)
	if err != nil {
		return nil, fmt.Errorf("runtime: opening symbol store: %w", err)
	}
	res, err := resource.Open(paths.Resources, 256, resource.WithCache(8))
	if err != nil {
		syms.Close()
		return nil, fmt.Errorf("runtime: opening resource table: %w", err)
	}

	var host *Host
	if registerHost != nil {
		host = NewHost(syms)
		if err := registerHost(host); err != nil {
			syms.Close()
			res.Close()
			return nil, fmt.Errorf("runtime: registering host bindings: %w", err)
		}
	}

	errs := &perr.List{}
	tbl := a2l.New(asm.BufferSize / 2)
	hp := heap.NewWithReserved(reservedWords * 4)
	c := compiler.New(src, filename, errs, syms, res, hp, tbl)
	if err := c.Compile(); err != nil {
		syms.Close()
		res.Close()
		return nil, err
	}

	mem := vm.NewMemory(c.Writer().Bytes(), hp)
	machine := vm.New(mem)
	machine.CPU.SP = heap.Size // stack grows down from the top of the data region
	if host != nil {
		host.Attach(machine)
	}

	p := &Program{
		Compiler: c,
		Syms:     syms,
		Res:      res,
		A2L:      tbl,
		VM:       machine,
		Host:     host,
		errs:     errs,
	}
	if !p.globalsFit() {
		return p, fmt.Errorf("runtime: program declares %d global words, exceeding the %d-word reserved prefix", c.GlobalWords(), reservedWords)
	}
	return p, nil
}

// Call invokes a top-level function by name and returns R0 on return
// (spec.md §8 "calling main returns 14"). maxSteps bounds runaway
// scripts the same way vm.VM.Run's watchdog does; 0 means unbounded.
func (p *Program) Call(name string, maxSteps uint64) (uint32, error) {
	off, ok := p.Compiler.FunctionOffset(name)
	if !ok {
		return 0, fmt.Errorf("runtime: no function named %q", name)
	}
	if err := p.VM.Call(off, maxSteps); err != nil {
		return 0, err
	}
	return p.VM.CPU.R[0], nil
}

// Close releases the program's paged store files.
func (p *Program) Close() error {
	err1 := p.Syms.Close()
	err2 := p.Res.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
