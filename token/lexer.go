package token

import (
	"strings"
	"unicode"

	"github.com/pine2k/pine2k/perr"
)

// Lexer tokenizes Pine2K source held entirely in memory. The teacher
// (parser/lexer.go) reads a file handle directly; here the source is
// small script text so it is loaded once and scanned by index, exactly
// as the spec's "byte-addressable random-access file abstraction"
// permits — SetLocation repositions the scan without re-reading.
type Lexer struct {
	src      string
	filename string
	pos      int
	line     int
	column   int
	errs     *perr.List
}

// New creates a Lexer over src.
func New(src, filename string, errs *perr.List) *Lexer {
	return &Lexer{src: src, filename: filename, pos: 0, line: 1, column: 1, errs: errs}
}

// SetLocation rewinds the scan to offset/line, used by the two-phase
// function compiler (spec.md §4.6) to re-scan a skipped function body.
func (l *Lexer) SetLocation(offset, line int) {
	l.pos = offset
	l.line = line
	l.column = 1
}

// Offset returns the current byte offset, for recording UNCOMPILED
// function bodies (spec.md §4.6).
func (l *Lexer) Offset() int { return l.pos }

// Line returns the current source line.
func (l *Lexer) Line() int { return l.line }

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.peekByte()
	l.pos++
	if b == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return b
}

func (l *Lexer) pos2() perr.Position {
	return perr.Position{Filename: l.filename, Line: l.line, Column: l.column, Offset: l.pos}
}

func isIdentStart(b byte) bool {
	return unicode.IsLetter(rune(b)) || b == '_' || b == '$'
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// skipWhitespaceAndComments consumes whitespace, `//` line comments and
// `/* */` block comments transparently (spec.md §4.1). A bare `/` that
// is not a comment opener is left for the operator scanner.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.peekByte() == ' ' || l.peekByte() == '\t' || l.peekByte() == '\r' || l.peekByte() == '\n':
			l.advance()
		case l.peekByte() == '/' && l.peekByteAt(1) == '/':
			for l.peekByte() != 0 && l.peekByte() != '\n' {
				l.advance()
			}
		case l.peekByte() == '/' && l.peekByteAt(1) == '*':
			l.advance()
			l.advance()
			for l.peekByte() != 0 && !(l.peekByte() == '*' && l.peekByteAt(1) == '/') {
				l.advance()
			}
			if l.peekByte() != 0 {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

// Next returns the next classified token.
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()
	start := l.pos2()

	if l.peekByte() == 0 {
		return Token{Class: Eof, Line: start.Line, Column: start.Column, Offset: start.Offset}
	}

	b := l.peekByte()

	switch {
	case isDigit(b):
		return l.scanNumber(start)
	case isIdentStart(b):
		return l.scanWord(start)
	case b == '"' || b == '\'' || b == '`':
		return l.scanString(start, b)
	case isOperatorByte(b):
		return l.scanOperator(start)
	case strings.IndexByte("(){}[],;:", rune2byte(b)) >= 0:
		l.advance()
		return Token{Class: Special, Text: string(b), Hash: Hash(string(b)), Line: start.Line, Column: start.Column, Offset: start.Offset}
	default:
		l.advance()
		l.errs.Fail(perr.Newf(start, perr.KindLex, "unexpected character %q", b))
		return Token{Class: Unknown, Text: string(b), Line: start.Line, Column: start.Column, Offset: start.Offset}
	}
}

func rune2byte(b byte) byte { return b }

func (l *Lexer) scanNumber(start perr.Position) Token {
	var sb strings.Builder
	base := 10
	if l.peekByte() == '0' && (l.peekByteAt(1) == 'x' || l.peekByteAt(1) == 'X') {
		sb.WriteByte(l.advance())
		sb.WriteByte(l.advance())
		base = 16
	} else if l.peekByte() == '0' && (l.peekByteAt(1) == 'b' || l.peekByteAt(1) == 'B') {
		sb.WriteByte(l.advance())
		sb.WriteByte(l.advance())
		base = 2
	}
	for isDigit(l.peekByte()) || (base == 16 && isHexDigit(l.peekByte())) || l.peekByte() == '_' {
		if l.peekByte() == '_' {
			l.advance()
			continue
		}
		sb.WriteByte(l.advance())
	}
	text := sb.String()
	val, err := parseInt(text, base)
	if err != nil {
		l.errs.Fail(perr.Newf(start, perr.KindLex, "malformed number %q", text))
	}
	if len(text) > maxTokenLen {
		l.errs.Fail(perr.Newf(start, perr.KindLex, "number literal exceeds %d bytes", maxTokenLen))
	}
	// Spec.md §4.1: numbers hash the literal '#' byte, not their digits.
	return Token{Class: Number, Text: text, Hash: Hash("#"), Num: val, Line: start.Line, Column: start.Column, Offset: start.Offset}
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func parseInt(text string, base int) (int64, error) {
	switch base {
	case 16:
		return parseBase(text[2:], 16)
	case 2:
		return parseBase(text[2:], 2)
	default:
		return parseBase(text, 10)
	}
}

func parseBase(digits string, base int) (int64, error) {
	var v int64
	if digits == "" {
		return 0, errEmptyNumber
	}
	for i := 0; i < len(digits); i++ {
		d := digitValue(digits[i])
		if d < 0 || d >= base {
			return v, errEmptyNumber
		}
		v = v*int64(base) + int64(d)
	}
	return v, nil
}

func digitValue(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	default:
		return -1
	}
}

type lexError string

func (e lexError) Error() string { return string(e) }

const errEmptyNumber = lexError("invalid digits in numeric literal")

func (l *Lexer) scanWord(start perr.Position) Token {
	var sb strings.Builder
	for isIdentPart(l.peekByte()) {
		sb.WriteByte(l.advance())
	}
	text := sb.String()
	if len(text) > maxTokenLen {
		l.errs.Fail(perr.Newf(start, perr.KindLex, "identifier %q exceeds %d bytes", text, maxTokenLen))
	}
	return Token{Class: Word, Text: text, Hash: Hash(text), Line: start.Line, Column: start.Column, Offset: start.Offset}
}

// scanString delivers a quoted string literal, accumulating its
// fingerprint one character at a time after the opening delimiter,
// per spec.md §4.1 ("the string's fingerprint begins with
// 5381*31+'\"' and then accumulates each character"); the seed uses
// '"' whichever of the three delimiters opened the literal.
func (l *Lexer) scanString(start perr.Position, quote byte) Token {
	l.advance() // opening quote
	h := HashByte(5381, '"')
	var sb strings.Builder
	for l.peekByte() != quote {
		if l.peekByte() == 0 {
			l.errs.Fail(perr.New(start, perr.KindLex, "unterminated string literal"))
			break
		}
		c := l.advance()
		if c == '\\' && l.peekByte() != 0 {
			c = unescape(l.advance())
		}
		h = HashByte(h, c)
		sb.WriteByte(c)
		if sb.Len() > maxTokenLen {
			l.errs.Fail(perr.Newf(start, perr.KindLex, "string literal exceeds %d bytes", maxTokenLen))
			break
		}
	}
	if l.peekByte() == quote {
		l.advance()
	}
	return Token{Class: String, Text: sb.String(), Hash: h, Line: start.Line, Column: start.Column, Offset: start.Offset}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c
	}
}

// compoundOperators lists multi-character operators, longest first so
// the scanner greedily matches `>>>=` before `>>=` before `>>`.
var compoundOperators = []string{
	">>>=", "===", "!==", "<<=", ">>=", "&&=", "||=",
	"==", "!=", "<=", ">=", "&&", "||", "<<", ">>>", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"++", "--", "=>",
}

func isOperatorByte(b byte) bool {
	return strings.IndexByte("+-*/%<>=!&|^~?.", rune2byte(b)) >= 0
}

func (l *Lexer) scanOperator(start perr.Position) Token {
	rest := l.src[l.pos:]
	for _, op := range compoundOperators {
		if strings.HasPrefix(rest, op) {
			for range op {
				l.advance()
			}
			return Token{Class: Operator, Text: op, Hash: Hash(op), Line: start.Line, Column: start.Column, Offset: start.Offset}
		}
	}
	c := l.advance()
	text := string(c)
	return Token{Class: Operator, Text: text, Hash: Hash(text), Line: start.Line, Column: start.Column, Offset: start.Offset}
}
