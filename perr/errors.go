// Package perr provides the position-carrying error type shared by every
// compiler stage: the tokenizer, parser/codegen driver, assembler, and
// allocator all report failures through *Error so the CLI and the
// terminal inspector can point at a single source line.
package perr

import (
	"fmt"
	"strings"
)

// Position identifies a location in the compiled source file.
type Position struct {
	Filename string
	Line     int
	Column   int
	Offset   int // byte offset, used to recover lines from the A2L table
}

func (p Position) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// Kind categorizes a compile-time failure per spec.md §7.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindSemantic
	KindCodegen
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex error"
	case KindParse:
		return "parse error"
	case KindSemantic:
		return "semantic error"
	case KindCodegen:
		return "codegen error"
	case KindRuntime:
		return "runtime error"
	default:
		return "error"
	}
}

// Error is a single compiler diagnostic.
type Error struct {
	Pos     Position
	Kind    Kind
	Message string
	Context string // the source line text, if available
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s: %s", e.Pos, e.Kind, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&sb, "\n    %s", e.Context)
	}
	return sb.String()
}

// New creates an Error without source context.
func New(pos Position, kind Kind, message string) *Error {
	return &Error{Pos: pos, Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(pos Position, kind Kind, format string, args ...any) *Error {
	return New(pos, kind, fmt.Sprintf(format, args...))
}

// WithContext attaches the offending source line text.
func (e *Error) WithContext(line string) *Error {
	e.Context = line
	return e
}

// List accumulates diagnostics. The compiler stores only the first fatal
// error (spec.md §7: "the compiler stores the first error encountered and
// refuses to emit further instructions") but keeps every warning.
type List struct {
	First    *Error
	Warnings []*Error
}

// Fail records the first error seen; subsequent calls are no-ops so the
// original failure (and its line) is always what gets reported.
func (l *List) Fail(err *Error) {
	if l.First == nil {
		l.First = err
	}
}

// Warn records a non-fatal diagnostic.
func (l *List) Warn(err *Error) {
	l.Warnings = append(l.Warnings, err)
}

// HasError reports whether a fatal error has been recorded.
func (l *List) HasError() bool {
	return l.First != nil
}

// Error implements the error interface, returning the first fatal error's
// text, or empty if none was recorded.
func (l *List) Error() string {
	if l.First == nil {
		return ""
	}
	return l.First.Error()
}
