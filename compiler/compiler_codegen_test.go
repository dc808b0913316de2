package compiler_test

import "testing"

func TestFunctionCallRoundTrip(t *testing.T) {
	f := newFixture(t, `
		function add(a, b) {
			return a + b;
		}
		var r = add(2, 3);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(f.c.Writer().Bytes()) == 0 {
		t.Fatal("expected emitted code")
	}
}

func TestForwardCallToLaterDeclaredFunction(t *testing.T) {
	// phase 1 records every function before phase 2 compiles any body,
	// so a call appearing textually before its callee's definition must
	// still resolve.
	f := newFixture(t, `
		function caller() {
			return callee();
		}
		function callee() {
			return 42;
		}
		var r = caller();
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestRecursiveFunctionCompiles(t *testing.T) {
	f := newFixture(t, `
		function fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		var r = fact(5);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestDuplicateFunctionNameIsRejected(t *testing.T) {
	f := newFixture(t, `
		function f() { return 1; }
		function f() { return 2; }
	`)
	if err := f.c.Compile(); err == nil {
		t.Fatal("expected an error for a duplicate function declaration")
	}
}

func TestForLoopWithoutPostClauseReEntersCondition(t *testing.T) {
	// regression test: a for(;;) loop missing its post-clause must still
	// branch back to the condition check on every continuing iteration,
	// not fall straight back into the body unconditionally.
	f := newFixture(t, `
		for (var i = 0; i < 3;) {
			i = i + 1;
		}
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	words := f.c.Writer().HalfWords()
	got := countUnconditionalBranches(words)
	// one B from the no-post-clause branch (continueLabel -> top) and
	// one from the always-emitted end-of-body branch (-> continueLabel).
	if got < 2 {
		t.Fatalf("expected at least 2 unconditional branches in a post-less for loop, got %d", got)
	}
}

func TestClassicForLoopWithPostClauseCompiles(t *testing.T) {
	f := newFixture(t, `
		var sum = 0;
		for (var i = 0; i < 10; i = i + 1) {
			sum = sum + i;
		}
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	f := newFixture(t, `
		var i = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 5) { continue; }
			if (i == 8) { break; }
		}
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestForOfIteratesArrayLiteral(t *testing.T) {
	f := newFixture(t, `
		var total = 0;
		for (var v of [1, 2, 3]) {
			total = total + v;
		}
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if f.hp.ListHead() == 0 {
		t.Fatal("expected the array literal to be allocated on the heap")
	}
}

func TestForInIteratesIndices(t *testing.T) {
	f := newFixture(t, `
		var total = 0;
		for (var i in [10, 20, 30]) {
			total = total + i;
		}
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestArrayLiteralWithRuntimeElementAllocates(t *testing.T) {
	f := newFixture(t, `
		var n = 7;
		var a = [1, n, 3];
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if f.hp.ListHead() == 0 {
		t.Fatal("expected the array literal to be allocated on the heap")
	}
}

func TestArrayIndexAssignment(t *testing.T) {
	f := newFixture(t, `
		var a = [1, 2, 3];
		a[1] = 99;
		var x = a[1];
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestRuntimeDivisionAndModuloShareOneHelper(t *testing.T) {
	// both operands are parameters, so neither carries a KCTV and the
	// division must lower to the shared software division helper
	// instead of folding at compile time.
	f := newFixture(t, `
		function divmod(a, b) {
			var q = a / b;
			var r = a % b;
			return q + r;
		}
		var z = divmod(17, 5);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestDivisionByPowerOfTwoConstantUsesShift(t *testing.T) {
	// the dividend is a parameter (not a KCTV) so the division cannot
	// fold away, but the divisor is a known power of two and should
	// lower to a shift/mask sequence rather than the division helper.
	f := newFixture(t, `
		function halve(a) {
			var q = a / 8;
			var r = a % 8;
			return q + r;
		}
		var z = halve(40);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestLengthIntrinsicOnArrayLiteral(t *testing.T) {
	f := newFixture(t, `
		var n = length([1, 2, 3, 4]);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestAbsMinMaxIntrinsicsFoldAtCompileTime(t *testing.T) {
	f := newFixture(t, `
		const a = abs(-5);
		const b = min(3, 7);
		const c = max(3, 7);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, sa := f.findSymbol(t, "a")
	if sa.KCTV != 5 {
		t.Fatalf("abs(-5) = %d, want 5", sa.KCTV)
	}
	_, sb := f.findSymbol(t, "b")
	if sb.KCTV != 3 {
		t.Fatalf("min(3,7) = %d, want 3", sb.KCTV)
	}
	_, sc := f.findSymbol(t, "c")
	if sc.KCTV != 7 {
		t.Fatalf("max(3,7) = %d, want 7", sc.KCTV)
	}
}

func TestLogicalOperatorsFoldAtCompileTime(t *testing.T) {
	f := newFixture(t, `
		const x = false && (1 > 0);
		const y = true || (1 > 0);
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, sx := f.findSymbol(t, "x")
	if sx.KCTV != 0 {
		t.Fatalf("x = %d, want 0", sx.KCTV)
	}
	_, sy := f.findSymbol(t, "y")
	if sy.KCTV != 1 {
		t.Fatalf("y = %d, want 1", sy.KCTV)
	}
}

func TestPrePostIncrementDecrement(t *testing.T) {
	f := newFixture(t, `
		var i = 0;
		var a = i++;
		var b = ++i;
		var c = i--;
		var d = --i;
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestCompoundAssignmentOperators(t *testing.T) {
	f := newFixture(t, `
		var x = 10;
		x += 5;
		x -= 2;
		x *= 3;
		x /= 2;
		x %= 4;
	`)
	if err := f.c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}
