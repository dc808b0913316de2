package runtime_test

import (
	"path/filepath"
	"testing"

	"github.com/pine2k/pine2k/heap"
	"github.com/pine2k/pine2k/runtime"
)

// compile is the shared fixture for every scenario below: it drives
// the full compiler -> Program pipeline exactly the way cmd/pinec
// does, rather than hand-assembling Thumb-1 the way vm/vm_test.go's
// lower-level tests do.
func compile(t *testing.T, src string) *runtime.Program {
	t.Helper()
	dir := t.TempDir()
	paths := runtime.Paths{
		Symbols:   filepath.Join(dir, "symbols.tmp"),
		Resources: filepath.Join(dir, "resources.tmp"),
	}
	prog, err := runtime.Compile(src, "e2e.p2k", paths, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	t.Cleanup(func() { prog.Close() })
	return prog
}

// Scenario 1: fold a constant expression.
func TestFoldConstantExpression(t *testing.T) {
	prog := compile(t, `function main(){ return 2 + 3 * 4; }`)

	result, err := prog.Call("main", 1000)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(result) != 14 {
		t.Fatalf("main() = %d, want 14", int32(result))
	}

	for _, hw := range prog.Compiler.Writer().HalfWords() {
		if hw&0xFFC0 == 0x4340 { // Thumb-1 MULS Rd, Rm (ALU format, op=1101)
			t.Fatalf("expected no MULS in a fully folded expression, found %04x", hw)
		}
	}
}

// Scenario 2: a pure function is evaluated at its call site, not
// re-emitted as a call, while the function itself stays reachable for
// callers that pass non-constant arguments.
func TestPureFunctionFoldedAtCallSite(t *testing.T) {
	prog := compile(t, `
		function sq(x){return x*x}
		const y = sq(5);
		function main(){ return y; }
	`)

	result, err := prog.Call("main", 1000)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(result) != 25 {
		t.Fatalf("main() = %d, want 25", int32(result))
	}

	if _, ok := prog.Compiler.FunctionOffset("sq"); !ok {
		t.Fatalf("sq should still be compiled into the buffer for non-constant callers")
	}
}

// Scenario 3: for-of over a literal array, baked into the heap at
// compile time.
func TestForOfOverLiteralArray(t *testing.T) {
	prog := compile(t, `
		const a = [10, 20, 30];
		function sum(){
			var s = 0;
			for (var v of a) { s += v; }
			return s;
		}
	`)

	result, err := prog.Call("sum", 1000)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(result) != 60 {
		t.Fatalf("sum() = %d, want 60", int32(result))
	}
}

// Scenario 4: a precise collection frees an unreachable array while
// keeping both a reachable global and a newly allocated array. This
// drives heap.Heap.Collect directly on the same *heap.Heap instance
// the compiled program's globals were baked into (prog.VM.Mem.Data),
// the same way heap_test.go's own GC tests set GlobalWords/StackWords
// by hand, since the compiler/VM pair does not itself re-scan the
// stack between statements.
func TestPreciseGCFreesOnlyUnreachableArrays(t *testing.T) {
	prog := compile(t, `const a = [1, 2];`)
	h := prog.VM.Mem.Data

	h.Lock()
	dropped, err := h.Alloc(4, false)
	if err != nil {
		t.Fatalf("Alloc dropped: %v", err)
	}
	kept, err := h.Alloc(2, false)
	if err != nil {
		t.Fatalf("Alloc kept: %v", err)
	}
	kept.Set(0, 111)
	kept.Set(1, 222)
	h.GlobalWords = []uint32{kept.Offset + 8}
	h.StackWords = nil
	h.Unlock()

	h.Collect()

	newArr, err := h.Alloc(8, false)
	if err != nil {
		t.Fatalf("Alloc newArr after collect: %v", err)
	}
	if newArr.Len() != 8 {
		t.Fatalf("newArr.Len() = %d, want 8", newArr.Len())
	}

	var survivors []uint32
	h.Walk(func(arr heap.Array) { survivors = append(survivors, arr.Offset) })

	foundKept, foundDropped := false, false
	for _, off := range survivors {
		if off == kept.Offset {
			foundKept = true
		}
		if off == dropped.Offset {
			foundDropped = true
		}
	}
	if !foundKept {
		t.Fatalf("reachable array was freed")
	}
	if foundDropped {
		t.Fatalf("unreachable array survived collection")
	}
	if kept.Get(0) != 111 || kept.Get(1) != 222 {
		t.Fatalf("surviving array lost its contents: %d, %d", kept.Get(0), kept.Get(1))
	}
}

// Scenario 5: length() on a literal array.
func TestLengthIntrinsicOnLiteralArray(t *testing.T) {
	prog := compile(t, `
		const a = [1, 2, 3];
		function main(){ return length(a); }
	`)

	result, err := prog.Call("main", 1000)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(result) != 3 {
		t.Fatalf("length(a) = %d, want 3", int32(result))
	}
}

// Scenario 6: a const initializer that is not KCTV is a compile error
// with a non-empty message.
func TestConstNonKCTVInitializerFails(t *testing.T) {
	dir := t.TempDir()
	paths := runtime.Paths{
		Symbols:   filepath.Join(dir, "symbols.tmp"),
		Resources: filepath.Join(dir, "resources.tmp"),
	}
	src := "function f(y){\n    const x = y;\n    return x;\n}\n"

	_, err := runtime.Compile(src, "e2e.p2k", paths, nil)
	if err == nil {
		t.Fatalf("expected a compile error for a non-constant const initializer")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected a non-empty error message")
	}
}
