// Package runtime implements the host-binding half of component C9
// (spec.md §4.9, "Runtime glue"): registering native Go functions as
// callable globals before compilation, and dispatching the VM's BLX
// traps back into them at execution time. The execution half (the
// fetch-decode-execute loop itself) lives in vm; this package is the
// seam between a compiled program and the host process embedding it,
// grounded on the teacher's debugger/evaluator binding of named symbols
// to live values (lookbusy1344-arm_emulator debugger/evaluator.go binds
// identifiers to registers and memory at evaluation time the same way
// Host binds names to native functions at compile time).
package runtime

import (
	"fmt"

	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/token"
	"github.com/pine2k/pine2k/vm"
)

// NativeFunc is a host-bound function's signature: it receives the
// live VM so it can read argument registers R0-R6 and the heap
// directly, and returns the value R0 is set to on return (spec.md §4.9
// "the host's specified signature").
type NativeFunc func(v *vm.VM) uint32

// binding pairs a registered name's native function with whether it
// was declared constexpr at registration time (spec.md §4.9
// "optionally flags it constexpr, for pure functions like trig or
// builtin"). The compiler never folds a host call at compile time
// (doing so would need runtime to import compiler, and compiler
// already has to be constructed before a Host's bindings exist), so
// Constexpr is carried through to the symbol table as a forward-looking
// attribute only; see DESIGN.md.
type binding struct {
	name      string
	fn        NativeFunc
	constexpr bool
}

// Host is a registry of native functions a script can call by name.
// Registration must happen before compiler.New is constructed over the
// same *symtab.Store: New scans pre-existing entries into its symbol
// index, so a name registered afterward would be invisible to lookup.
type Host struct {
	syms     *symtab.Store
	bindings []binding
}

// NewHost returns an empty registry bound to syms.
func NewHost(syms *symtab.Store) *Host {
	return &Host{syms: syms}
}

// HostCallBase re-exports vm.HostCallBase so callers that only import
// runtime don't also need to import vm for this one constant.
const HostCallBase = vm.HostCallBase

// Register binds name to fn, seeding a global symbol whose KCTV holds
// the synthetic address compiler.parseCall will BLX through and whose
// Type is symtab.TypeFunction — the same tag a bare function reference
// carries, but one a script-defined function's symbol never actually
// holds (spec.md §4.6 two-phase compilation leaves user functions at
// TypeUncompiled even after they are compiled), making TypeFunction an
// unambiguous "this call is a host call" marker at the parseCall site.
//
// constexpr records that fn is pure (spec.md §4.9 "for pure functions
// like trig or builtin") for documentation and future compile-time
// folding; it is not acted on today.
func (h *Host) Register(name string, fn NativeFunc, constexpr bool) error {
	hash := token.Hash(name)
	id := uint32(len(h.bindings))
	idx := h.syms.Alloc()
	s := h.syms.Get(idx)
	s.Hash = hash
	s.ScopeID = 0
	s.Type = symtab.TypeFunction
	s.KCTV = int32(HostCallBase + id)
	s.Flags |= symtab.FlagHasKCTV
	if constexpr {
		s.Flags |= symtab.FlagConstexpr
	}
	h.syms.Set(idx, s)
	h.bindings = append(h.bindings, binding{name: name, fn: fn, constexpr: constexpr})
	return nil
}

// GetCall looks up a registered name by fingerprint and returns its
// native function, per spec.md §4.9 "getCall(name) looks up a symbol by
// fingerprint and returns its KCTV reinterpreted as a function pointer".
func (h *Host) GetCall(name string) (NativeFunc, bool) {
	hash := token.Hash(name)
	for _, b := range h.bindings {
		if token.Hash(b.name) == hash {
			return b.fn, true
		}
	}
	return nil, false
}

// Dispatch resolves a HostCallBase-relative id to its bound native
// function and runs it, or reports an error for an id no Register call
// ever produced (a corrupt KCTV, or a VM whose Host wasn't the one the
// program was compiled against).
func (h *Host) Dispatch(v *vm.VM, id uint32) uint32 {
	if int(id) >= len(h.bindings) {
		panic(fmt.Sprintf("runtime: host call id %d out of range (%d bound)", id, len(h.bindings)))
	}
	return h.bindings[id].fn(v)
}

// Attach installs h as v's HostCall hook, so BLX traps into the
// HostCallBase range dispatch through this registry.
func (h *Host) Attach(v *vm.VM) {
	v.HostCall = h.Dispatch
}
