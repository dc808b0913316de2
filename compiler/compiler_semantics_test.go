package compiler_test

import (
	"testing"

	"github.com/pine2k/pine2k/perr"
	"github.com/pine2k/pine2k/symtab"
)

func TestConstantExpressionFoldsToKCTV(t *testing.T) {
	f := newFixture(t, `const x = 2 + 3 * 4;`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	_, sym := f.findSymbol(t, "x")
	if !sym.Flags.Has(symtab.FlagHasKCTV) {
		t.Fatalf("x should carry a KCTV after folding, got %+v", sym)
	}
	if sym.KCTV != 14 {
		t.Fatalf("x = %d, want 14", sym.KCTV)
	}
	if !sym.Flags.Has(symtab.FlagConstant) {
		t.Fatalf("x should be flagged constant")
	}
}

func TestDivisionByZeroConstantIsSemanticError(t *testing.T) {
	f := newFixture(t, `var x = 1 / 0;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected a compile error for division by zero")
	}
	if !f.errs.HasError() || f.errs.First.Kind != perr.KindSemantic {
		t.Fatalf("expected a semantic error, got %+v", f.errs.First)
	}
}

func TestUndeclaredIdentifierIsSemanticError(t *testing.T) {
	f := newFixture(t, `x = 1;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for an undeclared identifier")
	}
}

func TestConstReassignmentIsRejected(t *testing.T) {
	f := newFixture(t, `const x = 1; x = 2;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error assigning to a const")
	}
}

func TestConstWithoutInitializerIsRejected(t *testing.T) {
	f := newFixture(t, `const x;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for a const with no initializer")
	}
}

func TestBreakOutsideLoopIsRejected(t *testing.T) {
	f := newFixture(t, `break;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for break outside a loop")
	}
}

func TestContinueOutsideLoopIsRejected(t *testing.T) {
	f := newFixture(t, `continue;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for continue outside a loop")
	}
}

func TestReturnOutsideFunctionIsRejected(t *testing.T) {
	f := newFixture(t, `return 1;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for return outside a function")
	}
}

func TestRedeclarationInSameScopeIsRejected(t *testing.T) {
	f := newFixture(t, `var x = 1; var x = 2;`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error redeclaring a variable in the same scope")
	}
}

func TestTooManyFunctionParametersIsRejected(t *testing.T) {
	f := newFixture(t, `function f(a,b,c,d,e,f2,g,h) { return a; }`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for more than 7 parameters")
	}
}

func TestPressedRejectsUnknownButtonName(t *testing.T) {
	f := newFixture(t, `var p = pressed(ZZZ);`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for an unrecognized button name")
	}
}

func TestPressedAcceptsKnownButtonName(t *testing.T) {
	f := newFixture(t, `var p = pressed(A);`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestCallToUndeclaredNameIsSemanticError(t *testing.T) {
	f := newFixture(t, `var r = doesNotExist(1);`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error calling an undeclared name")
	}
}
