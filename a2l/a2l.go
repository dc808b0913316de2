// Package a2l implements the address-to-line table (spec.md §4.8,
// component C8): a sparse record of which source line produced each
// emitted code-buffer offset, scanned backward to recover a line
// number after a crash. Grounded on the teacher's debugger breakpoint
// table (lookbusy1344-arm_emulator debugger package keys breakpoints
// by address and looks them up on trap), generalized here to a dense
// backing array scanned for the nearest prior entry.
package a2l

import "github.com/pine2k/pine2k/asm"

// Table records source line numbers at code-buffer half-word offsets.
// It implements asm.A2LRecorder.
type Table struct {
	lines    []int // lines[offset] = line number, 0 = "no record here"
	lastOff  int
	lastLine int
	haveLast bool
}

var _ asm.A2LRecorder = (*Table)(nil)

// New returns an empty table sized for codeHalfWords emitted offsets.
func New(codeHalfWords int) *Table {
	return &Table{lines: make([]int, codeHalfWords)}
}

// Record writes line at offset when it differs from the last recorded
// (offset, line) pair, per spec.md §4.8 ("whose code-buffer position
// differs from the last recorded one").
func (t *Table) Record(offset, line int) {
	if t.haveLast && offset == t.lastOff && line == t.lastLine {
		return
	}
	if offset >= len(t.lines) {
		grown := make([]int, offset+1)
		copy(grown, t.lines)
		t.lines = grown
	}
	t.lines[offset] = line
	t.lastOff, t.lastLine, t.haveLast = offset, line, true
}

// Reset truncates the table at the start of a new compilation.
func (t *Table) Reset() {
	for i := range t.lines {
		t.lines[i] = 0
	}
	t.haveLast = false
}

// LineFor rounds a faulting code address to a half-word offset and
// scans backward to the nearest non-zero entry (spec.md §4.8).
func (t *Table) LineFor(byteAddr uint32) (line int, ok bool) {
	offset := int(byteAddr / 2)
	if offset >= len(t.lines) {
		offset = len(t.lines) - 1
	}
	for i := offset; i >= 0; i-- {
		if t.lines[i] != 0 {
			return t.lines[i], true
		}
	}
	return 0, false
}
