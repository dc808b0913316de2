// Package tui implements the terminal inspector (SPEC_FULL.md "New
// component: terminal inspector"): a tcell/tview front end over a
// compiled Program, standing in for the in-device source editor
// spec.md §1 explicitly places out of scope as a *device* feature.
// Grounded on the teacher's debugger package: tui.go's widget wiring,
// commands.go's command-table dispatch, and breakpoints.go's
// ID-keyed breakpoint list, narrowed from ARM32 register/memory/
// breakpoint inspection down to this toolchain's Thumb-1 VM, heap and
// A2L table.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/runtime"
	"github.com/pine2k/pine2k/vm"
)

// StepMode mirrors the teacher's debugger.StepMode enum, narrowed to
// the handful of run modes this inspector's command set drives.
type StepMode int

const (
	StepNone StepMode = iota
	StepSingle
	StepContinue
)

// Inspector drives a compiled Program under interactive control,
// analogous to the teacher's Debugger wrapping a *vm.VM.
type Inspector struct {
	Program     *runtime.Program
	Breakpoints *Breakpoints
	Running     bool
	StepMode    StepMode
	History     []string

	output strings.Builder
}

// NewInspector wraps prog for interactive stepping. It installs an
// OnBreakpoint hook so the `debugger` statement (lowered to BKPT #0,
// SPEC_FULL.md supplemented feature 1) pauses the same run loop a
// -break command does.
func NewInspector(prog *runtime.Program) *Inspector {
	insp := &Inspector{Program: prog, Breakpoints: NewBreakpoints()}
	prog.VM.OnBreakpoint = func(_ *vm.VM, _ uint16) {
		insp.Running = false
	}
	return insp
}

// Printf appends formatted text to the inspector's output buffer,
// drained by the TUI's output panel after each command.
func (insp *Inspector) Printf(format string, args ...any) {
	fmt.Fprintf(&insp.output, format, args...)
}

func (insp *Inspector) Println(s string) { insp.Printf("%s\n", s) }

// DrainOutput returns and clears everything written since the last
// drain.
func (insp *Inspector) DrainOutput() string {
	s := insp.output.String()
	insp.output.Reset()
	return s
}

// ExecuteCommand parses and runs one command line, per the teacher's
// ExecuteCommand/command-table dispatch in debugger/commands.go,
// narrowed to the commands this domain needs.
func (insp *Inspector) ExecuteCommand(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	insp.History = append(insp.History, line)

	switch cmd {
	case "help", "h":
		insp.cmdHelp()
	case "run", "r":
		return insp.cmdRun(args)
	case "continue", "c":
		return insp.cmdContinue()
	case "step", "s":
		return insp.cmdStep()
	case "break", "b":
		return insp.cmdBreak(args)
	case "delete", "d":
		return insp.cmdDelete(args)
	case "registers", "regs":
		insp.cmdRegisters()
	case "heap":
		insp.cmdHeap()
	case "symbols", "sym":
		insp.cmdSymbols()
	default:
		return fmt.Errorf("unknown command %q (try \"help\")", cmd)
	}
	return nil
}

func (insp *Inspector) cmdHelp() {
	insp.Println("commands: run <fn>, continue, step, break <offset>, delete <id>, registers, heap, symbols")
}

func (insp *Inspector) cmdRun(args []string) error {
	name := "main"
	if len(args) > 0 {
		name = args[0]
	}
	off, ok := insp.Program.Compiler.FunctionOffset(name)
	if !ok {
		return fmt.Errorf("no function named %q", name)
	}
	v := insp.Program.VM
	v.CPU.PC = uint32(off) * 2
	v.Halted = false
	insp.Running = true
	insp.StepMode = StepNone
	insp.Printf("running %s\n", name)
	return insp.cmdContinue()
}

func (insp *Inspector) cmdContinue() error {
	v := insp.Program.VM
	insp.Running = true
	for insp.Running && !v.Halted {
		off := int(v.CPU.PC / 2)
		if bp := insp.Breakpoints.At(off); bp != nil {
			insp.Printf("breakpoint %d hit at offset %d\n", bp.ID, off)
			insp.Running = false
			break
		}
		if err := v.Step(); err != nil {
			insp.Running = false
			return err
		}
	}
	if v.Halted {
		insp.Printf("halted, R0=%d\n", v.CPU.R[0])
	}
	return nil
}

func (insp *Inspector) cmdStep() error {
	v := insp.Program.VM
	if v.Halted {
		return fmt.Errorf("program is not running")
	}
	if err := v.Step(); err != nil {
		return err
	}
	if v.Halted {
		insp.Printf("halted, R0=%d\n", v.CPU.R[0])
	}
	return nil
}

func (insp *Inspector) cmdBreak(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: break <offset>")
	}
	off, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[0], err)
	}
	bp := insp.Breakpoints.Add(off)
	insp.Printf("breakpoint %d at offset %d\n", bp.ID, off)
	return nil
}

func (insp *Inspector) cmdDelete(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: delete <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	if !insp.Breakpoints.Remove(id) {
		return fmt.Errorf("no breakpoint %d", id)
	}
	insp.Printf("deleted breakpoint %d\n", id)
	return nil
}

func (insp *Inspector) cmdRegisters() {
	c := insp.Program.VM.CPU
	for i := 0; i < 8; i++ {
		insp.Printf("R%-2d: 0x%08X\n", i, c.R[i])
	}
	insp.Printf("SP: 0x%08X  LR: 0x%08X  PC: 0x%08X\n", c.SP, c.LR, c.PC)
	insp.Printf("N=%v Z=%v C=%v V=%v\n", c.N, c.Z, c.C, c.V)
}

func (insp *Inspector) cmdHeap() {
	insp.Program.VM.Mem.Data.Walk(func(a heap.Array) {
		insp.Printf("array @%d len=%d\n", a.Offset, a.Len())
	})
}

func (insp *Inspector) cmdSymbols() {
	insp.Printf("(see -dump-symbols for the full table)\n")
}
