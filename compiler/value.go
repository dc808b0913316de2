package compiler

import (
	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/symtab"
)

// value is the tagged union described in spec.md §9: {KCTV, InReg,
// Flag(cc)}, plus a deref bit for lvalue addresses. Materialization
// into a concrete register happens lazily, only when a consumer needs
// one (spec.md §4.6 "materialization happens lazily").
type value struct {
	hasKCTV bool
	kctv    int32
	typ     symtab.Type

	hasReg bool
	reg    asm.Reg

	isFlag bool
	cond   asm.Cond

	deref bool // reg holds a byte address; load to read, store to write
	sym   int  // backing symtab index, or -1 for an anonymous temporary
}

func kctvValue(v int32, typ symtab.Type) value {
	return value{hasKCTV: true, kctv: v, typ: typ, sym: -1}
}

func regValue(r asm.Reg, typ symtab.Type) value {
	return value{hasReg: true, reg: r, typ: typ, sym: -1}
}

func flagValue(cond asm.Cond) value {
	return value{isFlag: true, cond: cond, typ: castTypeFor(cond), sym: -1}
}

func castTypeFor(cond asm.Cond) symtab.Type {
	switch cond {
	case asm.EQ:
		return symtab.TypeCastEQ
	case asm.NE:
		return symtab.TypeCastNE
	case asm.LT:
		return symtab.TypeCastLT
	case asm.LE:
		return symtab.TypeCastLE
	case asm.GT:
		return symtab.TypeCastGT
	case asm.GE:
		return symtab.TypeCastGE
	default:
		return symtab.TypeBool
	}
}

func condForCastType(t symtab.Type) asm.Cond {
	switch t {
	case symtab.TypeCastEQ:
		return asm.EQ
	case symtab.TypeCastNE:
		return asm.NE
	case symtab.TypeCastLT:
		return asm.LT
	case symtab.TypeCastLE:
		return asm.LE
	case symtab.TypeCastGT:
		return asm.GT
	case symtab.TypeCastGE:
		return asm.GE
	default:
		return asm.EQ
	}
}

func invertCond(c asm.Cond) asm.Cond {
	switch c {
	case asm.EQ:
		return asm.NE
	case asm.NE:
		return asm.EQ
	case asm.LT:
		return asm.GE
	case asm.GE:
		return asm.LT
	case asm.LE:
		return asm.GT
	case asm.GT:
		return asm.LE
	case asm.CS:
		return asm.CC
	case asm.CC:
		return asm.CS
	default:
		return c
	}
}
