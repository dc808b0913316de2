// Package token implements the tokenizer (spec.md §4.1, component C1):
// a byte-stream lexer for the Pine2K scripting language that classifies
// tokens and computes a DJB-style 32-bit fingerprint for each one.
package token

import "fmt"

// Class is the lexical category of a token.
type Class int

const (
	Eof Class = iota
	Number
	String
	Word     // identifiers and keywords
	Operator // +, -, ==, <<=, ...
	Special  // punctuation: ( ) { } [ ] , ; :
	Unknown
)

var className = map[Class]string{
	Eof:      "EOF",
	Number:   "NUMBER",
	String:   "STRING",
	Word:     "WORD",
	Operator: "OPERATOR",
	Special:  "SPECIAL",
	Unknown:  "UNKNOWN",
}

func (c Class) String() string {
	if s, ok := className[c]; ok {
		return s
	}
	return fmt.Sprintf("Class(%d)", c)
}

// maxTokenLen bounds the text buffer per spec.md §7 ("token longer than
// the buffer" is a lex error).
const maxTokenLen = 32

// Token is a single classified lexeme.
type Token struct {
	Class  Class
	Text   string // up to maxTokenLen bytes
	Hash   uint32 // DJB fingerprint, spec.md §4.1
	Num    int64  // populated for Class == Number
	Line   int
	Column int
	Offset int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Class, t.Text, t.Line, t.Column)
}

// Is reports whether the token is an Operator or Special token with the
// given exact text — the common "expect punctuator" check.
func (t Token) Is(text string) bool {
	return (t.Class == Operator || t.Class == Special) && t.Text == text
}

// IsKeyword reports whether the token is a Word matching one of kws.
func (t Token) IsKeyword(kws ...string) bool {
	if t.Class != Word {
		return false
	}
	for _, k := range kws {
		if t.Text == k {
			return true
		}
	}
	return false
}

// Hash computes the DJB-style fingerprint used throughout the compiler
// as the sole identifier key (spec.md §4.1, §8 "Fingerprint determinism"):
// seed 5381, multiplier 31, 32-bit wraparound.
func Hash(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// HashByte folds a single byte into an existing running hash — used to
// build a string literal's fingerprint incrementally as characters are
// delivered one at a time (spec.md §4.1).
func HashByte(h uint32, b byte) uint32 {
	return h*31 + uint32(b)
}

// pressed-button bit offsets keyed by button name (spec.md §4.6
// intrinsics table). Kept as a fixed table, mirroring the
// teacher's condition-code constant tables (parser/constants.go).
var ButtonOffsets = map[string]uint32{
	"A":     9,
	"B":     4,
	"C":     10,
	"UP":    13,
	"DOWN":  3,
	"LEFT":  25,
	"RIGHT": 7,
}
