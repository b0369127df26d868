package types

import (
	"fmt"
	"sort"
	"strings"
)

// Types carried by IR values. Every value starts as Dynamic (unknown) and is
// monotonically refined toward a concrete type by inference; Dynamic survives
// only where no refinement is possible.

// MaxUnionMembers bounds how many distinct concrete types a union may hold
// before it collapses to Dynamic.
const MaxUnionMembers = 4

type Type interface {
	String() string
	Equal(other Type) bool
}

// DynamicType is the unknown-type marker
type DynamicType struct{}

// VoidType is the absence of a value (void returns)
type VoidType struct{}

type BoolType struct{}

type IntType struct {
	Bits int
}

type FloatType struct {
	Bits int
}

type StringType struct{}

// ClassType is a named reference type (struct, class, or enum), resolved by
// name against the owning module's definitions
type ClassType struct {
	Name string
}

type ArrayType struct {
	Elem Type
}

type FuncType struct {
	Params []Type
	Ret    Type
}

// UnionType holds the distinct concrete types observed for a multi-typed
// value. Always constructed through Union so it stays normalized.
type UnionType struct {
	Members []Type
}

var (
	Dynamic = &DynamicType{}
	Void    = &VoidType{}
	Bool    = &BoolType{}
	I8      = &IntType{Bits: 8}
	I16     = &IntType{Bits: 16}
	I32     = &IntType{Bits: 32}
	I64     = &IntType{Bits: 64}
	F32     = &FloatType{Bits: 32}
	F64     = &FloatType{Bits: 64}
	String  = &StringType{}
)

func (t *DynamicType) String() string { return "dyn" }
func (t *VoidType) String() string    { return "void" }
func (t *BoolType) String() string    { return "bool" }
func (t *IntType) String() string     { return fmt.Sprintf("i%d", t.Bits) }
func (t *FloatType) String() string   { return fmt.Sprintf("f%d", t.Bits) }
func (t *StringType) String() string  { return "string" }
func (t *ClassType) String() string   { return fmt.Sprintf("class(%s)", t.Name) }
func (t *ArrayType) String() string   { return fmt.Sprintf("array<%s>", t.Elem) }

func (t *FuncType) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("func(%s) -> %s", strings.Join(params, ", "), t.Ret)
}

func (t *UnionType) String() string {
	members := make([]string, len(t.Members))
	for i, m := range t.Members {
		members[i] = m.String()
	}
	return fmt.Sprintf("union<%s>", strings.Join(members, " | "))
}

func (t *DynamicType) Equal(other Type) bool {
	_, ok := other.(*DynamicType)
	return ok
}

func (t *VoidType) Equal(other Type) bool {
	_, ok := other.(*VoidType)
	return ok
}

func (t *BoolType) Equal(other Type) bool {
	_, ok := other.(*BoolType)
	return ok
}

func (t *IntType) Equal(other Type) bool {
	o, ok := other.(*IntType)
	return ok && o.Bits == t.Bits
}

func (t *FloatType) Equal(other Type) bool {
	o, ok := other.(*FloatType)
	return ok && o.Bits == t.Bits
}

func (t *StringType) Equal(other Type) bool {
	_, ok := other.(*StringType)
	return ok
}

func (t *ClassType) Equal(other Type) bool {
	o, ok := other.(*ClassType)
	return ok && o.Name == t.Name
}

func (t *ArrayType) Equal(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && o.Elem.Equal(t.Elem)
}

func (t *FuncType) Equal(other Type) bool {
	o, ok := other.(*FuncType)
	if !ok || len(o.Params) != len(t.Params) || !o.Ret.Equal(t.Ret) {
		return false
	}
	for i, p := range t.Params {
		if !p.Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

func (t *UnionType) Equal(other Type) bool {
	o, ok := other.(*UnionType)
	if !ok || len(o.Members) != len(t.Members) {
		return false
	}
	for i, m := range t.Members {
		if !m.Equal(o.Members[i]) {
			return false
		}
	}
	return true
}

// IsDynamic reports whether t is the unknown-type marker
func IsDynamic(t Type) bool {
	_, ok := t.(*DynamicType)
	return ok
}

// IsVoid reports whether t is the void marker
func IsVoid(t Type) bool {
	_, ok := t.(*VoidType)
	return ok
}

// IsConcrete reports whether t carries real type information (not Dynamic)
func IsConcrete(t Type) bool {
	return t != nil && !IsDynamic(t)
}

// Class returns the named reference type
func Class(name string) *ClassType {
	return &ClassType{Name: name}
}

// Array returns array-of-elem
func Array(elem Type) *ArrayType {
	return &ArrayType{Elem: elem}
}

// Func returns a function type
func Func(params []Type, ret Type) *FuncType {
	return &FuncType{Params: params, Ret: ret}
}

// Union builds a normalized union of the given types: nested unions are
// flattened, duplicates removed, members sorted by their printed form so a
// union has one canonical shape. A union containing Dynamic, or one with more
// than MaxUnionMembers distinct members, collapses to Dynamic; a single
// member is returned as itself.
func Union(members ...Type) Type {
	var flat []Type
	for _, m := range members {
		if u, ok := m.(*UnionType); ok {
			flat = append(flat, u.Members...)
		} else {
			flat = append(flat, m)
		}
	}

	var distinct []Type
	for _, m := range flat {
		if IsDynamic(m) {
			return Dynamic
		}
		seen := false
		for _, d := range distinct {
			if d.Equal(m) {
				seen = true
				break
			}
		}
		if !seen {
			distinct = append(distinct, m)
		}
	}

	switch {
	case len(distinct) == 0:
		return Dynamic
	case len(distinct) == 1:
		return distinct[0]
	case len(distinct) > MaxUnionMembers:
		return Dynamic
	}

	sort.Slice(distinct, func(i, j int) bool {
		return distinct[i].String() < distinct[j].String()
	})
	return &UnionType{Members: distinct}
}

// Merge joins two inference facts about the same value: Dynamic yields to the
// other side, equal types stay, disagreeing concrete types widen to a union.
func Merge(a, b Type) Type {
	if a == nil || IsDynamic(a) {
		return b
	}
	if b == nil || IsDynamic(b) {
		return a
	}
	if a.Equal(b) {
		return a
	}
	return Union(a, b)
}
