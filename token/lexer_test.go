package token_test

import (
	"testing"

	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/token"
)

func TestHashDeterminism(t *testing.T) {
	// spec.md §8: hash("\"A") = ((5381*31)+'"')*31 + 'A'
	want := uint32((uint32(5381)*31+'"')*31 + 'A')
	got := token.Hash("\"A")
	if got != want {
		t.Fatalf("Hash(%q) = %d, want %d", "\"A", got, want)
	}
}

func TestLexKeywordsAndOperators(t *testing.T) {
	src := `var x = 2 + 3 * 4; x <<= 1;`
	errs := &perr.List{}
	lex := token.New(src, "test.js", errs)

	var got []token.Token
	for {
		tok := lex.Next()
		got = append(got, tok)
		if tok.Class == token.Eof {
			break
		}
	}
	if errs.HasError() {
		t.Fatalf("unexpected lex error: %v", errs.First)
	}

	wantText := []string{"var", "x", "=", "2", "+", "3", "*", "4", ";", "x", "<<=", "1", ";", ""}
	if len(got) != len(wantText) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(wantText), got)
	}
	for i, w := range wantText[:len(wantText)-1] {
		if got[i].Text != w {
			t.Errorf("token[%d].Text = %q, want %q", i, got[i].Text, w)
		}
	}

	shiftEq := got[10]
	if shiftEq.Text != "<<=" {
		t.Fatalf("expected <<= token, got %q", shiftEq.Text)
	}
	want := uint32((((uint32(5381)*31+'<')*31+'<')*31 + '='))
	if shiftEq.Hash != want {
		t.Errorf("<<= hash = %d, want %d", shiftEq.Hash, want)
	}
}

func TestLexNumbers(t *testing.T) {
	cases := []struct {
		src  string
		want int64
	}{
		{"123", 123},
		{"0x1F", 31},
		{"0b101", 5},
	}
	for _, c := range cases {
		errs := &perr.List{}
		lex := token.New(c.src, "t", errs)
		tok := lex.Next()
		if tok.Num != c.want {
			t.Errorf("lex(%q).Num = %d, want %d", c.src, tok.Num, c.want)
		}
		if errs.HasError() {
			t.Errorf("lex(%q): unexpected error %v", c.src, errs.First)
		}
	}
}

func TestLexStringFingerprint(t *testing.T) {
	errs := &perr.List{}
	lex := token.New(`"AB"`, "t", errs)
	tok := lex.Next()
	if tok.Class != token.String {
		t.Fatalf("class = %v, want String", tok.Class)
	}
	h := token.HashByte(uint32(5381), '"')
	h = token.HashByte(h, 'A')
	h = token.HashByte(h, 'B')
	if tok.Hash != h {
		t.Errorf("string hash = %d, want %d", tok.Hash, h)
	}
}

func TestSetLocationRewinds(t *testing.T) {
	src := "var a = 1; function f() { return 2; }"
	errs := &perr.List{}
	lex := token.New(src, "t", errs)

	// consume up to the function body offset
	var fnBodyOffset, fnBodyLine int
	for {
		tok := lex.Next()
		if tok.Text == "{" {
			fnBodyOffset = tok.Offset + 1
			fnBodyLine = tok.Line
			break
		}
		if tok.Class == token.Eof {
			t.Fatal("did not find function body")
		}
	}

	lex.SetLocation(fnBodyOffset, fnBodyLine)
	tok := lex.Next()
	if tok.Text != "return" {
		t.Fatalf("after rewind, got %q, want %q", tok.Text, "return")
	}
}

func TestUnterminatedStringIsLexError(t *testing.T) {
	errs := &perr.List{}
	lex := token.New(`"abc`, "t", errs)
	lex.Next()
	if !errs.HasError() {
		t.Fatal("expected lex error for unterminated string")
	}
	if errs.First.Kind != perr.KindLex {
		t.Errorf("kind = %v, want KindLex", errs.First.Kind)
	}
}
