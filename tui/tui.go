package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/runtime"
)

// TUI is the tview application wiring one Inspector to a screen.
// Grounded on the teacher's debugger.TUI: the same panel set
// (disassembly, registers, a scrolling state view, breakpoints,
// output, command input) reassembled around this toolchain's own
// state instead of ARM32 memory segments.
type TUI struct {
	Inspector *Inspector
	App       *tview.Application
	Pages     *tview.Pages

	DisassemblyView *tview.TextView
	RegisterView    *tview.TextView
	HeapView        *tview.TextView
	BreakpointsView *tview.TextView
	OutputView      *tview.TextView
	CommandInput    *tview.InputField
}

// Run compiles prog's inspector and blocks until the user quits. This
// is cmd/pinec's -tui entry point.
func Run(prog *runtime.Program) error {
	t := New(NewInspector(prog))
	return t.App.Run()
}

// New builds the widget tree over insp but does not start the event
// loop; callers that want to drive it manually (tests) can call
// RefreshAll directly instead of App.Run.
func New(insp *Inspector) *TUI {
	t := &TUI{Inspector: insp, App: tview.NewApplication()}
	t.initializeViews()
	t.buildLayout()
	t.setupKeyBindings()
	t.RefreshAll()
	return t
}

func (t *TUI) initializeViews() {
	t.DisassemblyView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.DisassemblyView.SetBorder(true).SetTitle(" Disassembly ")

	t.RegisterView = tview.NewTextView().SetDynamicColors(true)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.HeapView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.HeapView.SetBorder(true).SetTitle(" Heap ")

	t.BreakpointsView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.BreakpointsView.SetBorder(true).SetTitle(" Breakpoints ")

	t.OutputView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")

	t.CommandInput = tview.NewInputField().SetLabel("> ").SetFieldWidth(0)
	t.CommandInput.SetBorder(true).SetTitle(" Command ")
	t.CommandInput.SetDoneFunc(t.handleCommand)
}

func (t *TUI) buildLayout() {
	rightTop := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.RegisterView, 10, 0, false).
		AddItem(t.HeapView, 0, 1, false)

	rightPanel := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(rightTop, 0, 3, false).
		AddItem(t.BreakpointsView, 8, 0, false)

	mainContent := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(t.DisassemblyView, 0, 2, false).
		AddItem(rightPanel, 0, 1, false)

	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(mainContent, 0, 4, false).
		AddItem(t.OutputView, 8, 0, false).
		AddItem(t.CommandInput, 3, 0, true)

	t.Pages = tview.NewPages().AddPage("main", mainLayout, true, true)
	t.App.SetRoot(t.Pages, true).SetFocus(t.CommandInput)
}

func (t *TUI) setupKeyBindings() {
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF5:
			t.executeCommand("continue")
			return nil
		case tcell.KeyF10, tcell.KeyF11:
			t.executeCommand("step")
			return nil
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		case tcell.KeyCtrlL:
			t.RefreshAll()
			return nil
		}
		return event
	})
}

func (t *TUI) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := t.CommandInput.GetText()
	if cmd != "" {
		t.executeCommand(cmd)
		t.CommandInput.SetText("")
	}
}

func (t *TUI) executeCommand(cmd string) {
	if err := t.Inspector.ExecuteCommand(cmd); err != nil {
		t.WriteOutput(fmt.Sprintf("[red]error:[white] %v\n", err))
	}
	if out := t.Inspector.DrainOutput(); out != "" {
		t.WriteOutput(out)
	}
	t.RefreshAll()
}

func (t *TUI) WriteOutput(text string) {
	_, _ = t.OutputView.Write([]byte(text))
	t.OutputView.ScrollToEnd()
}

func (t *TUI) RefreshAll() {
	t.updateDisassembly()
	t.updateRegisters()
	t.updateHeap()
	t.updateBreakpoints()
	t.App.Draw()
}

func (t *TUI) updateDisassembly() {
	v := t.Inspector.Program.VM
	words := t.Inspector.Program.Compiler.Writer().HalfWords()
	pc := int(v.CPU.PC / 2)

	var lines []string
	for i, hw := range words {
		marker := "  "
		color := "white"
		if i == pc {
			marker, color = "->", "yellow"
		}
		if bp := t.Inspector.Breakpoints.At(i); bp != nil {
			marker = "* "
		}
		line, ok := t.Inspector.Program.A2L.LineFor(uint32(i * 2))
		lineText := ""
		if ok {
			lineText = fmt.Sprintf(" ; line %d", line)
		}
		lines = append(lines, fmt.Sprintf("[%s]%s%4d: %s%s[white]", color, marker, i, asm.Disassemble(hw), lineText))
	}
	t.DisassemblyView.SetText(strings.Join(lines, "\n"))
}

func (t *TUI) updateRegisters() {
	c := t.Inspector.Program.VM.CPU
	var lines []string
	for i := 0; i < 8; i += 4 {
		lines = append(lines, fmt.Sprintf("R%-2d: 0x%08X  R%-2d: 0x%08X  R%-2d: 0x%08X  R%-2d: 0x%08X",
			i, c.R[i], i+1, c.R[i+1], i+2, c.R[i+2], i+3, c.R[i+3]))
	}
	lines = append(lines, fmt.Sprintf("SP: 0x%08X  LR: 0x%08X  PC: 0x%08X", c.SP, c.LR, c.PC))
	lines = append(lines, fmt.Sprintf("N=%v Z=%v C=%v V=%v", c.N, c.Z, c.C, c.V))
	t.RegisterView.SetText(strings.Join(lines, "\n"))
}

func (t *TUI) updateHeap() {
	var lines []string
	t.Inspector.Program.VM.Mem.Data.Walk(func(a heap.Array) {
		lines = append(lines, fmt.Sprintf("array @%d len=%d", a.Offset, a.Len()))
	})
	t.HeapView.SetText(strings.Join(lines, "\n"))
}

func (t *TUI) updateBreakpoints() {
	var lines []string
	for _, bp := range t.Inspector.Breakpoints.All() {
		lines = append(lines, fmt.Sprintf("#%d offset=%d", bp.ID, bp.Offset))
	}
	t.BreakpointsView.SetText(strings.Join(lines, "\n"))
}
