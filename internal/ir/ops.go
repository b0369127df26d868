package ir

import (
	"fmt"
	"strconv"

	"reforge/internal/types"
)

// The closed operation vocabulary. Host/engine-library boundaries all go
// through the string-keyed SystemCall so the set stays finite and
// exhaustively matchable; the IR core never interprets its system/method
// strings, they are resolved only at the emission boundary.

type Op interface {
	// Mnemonic is the operation tag used in the textual dump
	Mnemonic() string
	// Operands lists every value the operation reads, branch arguments included
	Operands() []ValueID
	// ReplaceOperands rewrites each operand in place through f
	ReplaceOperands(f func(ValueID) ValueID)
}

// ConstKind discriminates literal constants
type ConstKind string

const (
	ConstInt    ConstKind = "int"
	ConstFloat  ConstKind = "float"
	ConstString ConstKind = "string"
	ConstBool   ConstKind = "bool"
	ConstNil    ConstKind = "nil"
)

// Constant is a literal value carried by Const instructions, switch cases,
// and global initializers
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func IntConst(v int64) Constant      { return Constant{Kind: ConstInt, Int: v} }
func FloatConst(v float64) Constant  { return Constant{Kind: ConstFloat, Float: v} }
func StringConst(v string) Constant  { return Constant{Kind: ConstString, Str: v} }
func BoolConst(v bool) Constant      { return Constant{Kind: ConstBool, Bool: v} }
func NilConst() Constant             { return Constant{Kind: ConstNil} }

// Type returns the literal's type
func (c Constant) Type() types.Type {
	switch c.Kind {
	case ConstInt:
		return types.I64
	case ConstFloat:
		return types.F64
	case ConstString:
		return types.String
	case ConstBool:
		return types.Bool
	default:
		return types.Dynamic
	}
}

// Equal reports structural equality of two constants
func (c Constant) Equal(other Constant) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.Int == other.Int
	case ConstFloat:
		return c.Float == other.Float
	case ConstString:
		return c.Str == other.Str
	case ConstBool:
		return c.Bool == other.Bool
	default:
		return true
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		s := strconv.FormatFloat(c.Float, 'g', -1, 64)
		// keep a decimal point so floats stay distinguishable from ints
		hasDot := false
		for _, r := range s {
			if r == '.' || r == 'e' || r == 'E' || r == 'n' || r == 'i' {
				hasDot = true
				break
			}
		}
		if !hasDot {
			s += ".0"
		}
		return s
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	default:
		return "nil"
	}
}

// BinOp tags arithmetic, bitwise, and logical binary operations
type BinOp string

const (
	BinAdd    BinOp = "add"
	BinSub    BinOp = "sub"
	BinMul    BinOp = "mul"
	BinDiv    BinOp = "div"
	BinRem    BinOp = "rem"
	BinAnd    BinOp = "and" // logical
	BinOr     BinOp = "or"  // logical
	BinBitAnd BinOp = "band"
	BinBitOr  BinOp = "bor"
	BinBitXor BinOp = "bxor"
	BinShl    BinOp = "shl"
	BinShr    BinOp = "shr"
)

// CmpKind tags comparison operations
type CmpKind string

const (
	CmpEq CmpKind = "eq"
	CmpNe CmpKind = "ne"
	CmpLt CmpKind = "lt"
	CmpLe CmpKind = "le"
	CmpGt CmpKind = "gt"
	CmpGe CmpKind = "ge"
)

// Negate returns the comparison testing the opposite outcome
func (k CmpKind) Negate() CmpKind {
	switch k {
	case CmpEq:
		return CmpNe
	case CmpNe:
		return CmpEq
	case CmpLt:
		return CmpGe
	case CmpLe:
		return CmpGt
	case CmpGt:
		return CmpLe
	default:
		return CmpLt
	}
}

// UnOp tags unary operations
type UnOp string

const (
	UnNeg    UnOp = "neg"
	UnNot    UnOp = "not"
	UnBitNot UnOp = "bnot"
)

// SwitchCase is one arm of a multi-way branch
type SwitchCase struct {
	Value  Constant
	Target BlockID
	Args   []ValueID
}

// FieldInit pairs a field name with its value in a struct literal
type FieldInit struct {
	Name  string
	Value ValueID
}

// Constants

type Const struct {
	Value Constant
}

// Arithmetic and logic

type Binary struct {
	Op  BinOp
	Lhs ValueID
	Rhs ValueID
}

type Cmp struct {
	Kind CmpKind
	Lhs  ValueID
	Rhs  ValueID
}

type Unary struct {
	Op      UnOp
	Operand ValueID
}

// Control flow

type Br struct {
	Target BlockID
	Args   []ValueID
}

type BrIf struct {
	Cond     ValueID
	Then     BlockID
	ThenArgs []ValueID
	Else     BlockID
	ElseArgs []ValueID
}

type Switch struct {
	Value       ValueID
	Cases       []SwitchCase
	Default     BlockID
	DefaultArgs []ValueID
}

type Return struct {
	Value ValueID // NoValue for void returns
}

// Memory

type Alloc struct {
	Ty types.Type // type of the stored content
}

type Load struct {
	Addr ValueID
}

type Store struct {
	Addr  ValueID
	Value ValueID
}

type FieldGet struct {
	Object ValueID
	Field  string
}

type FieldSet struct {
	Object ValueID
	Field  string
	Value  ValueID
}

type Index struct {
	Object ValueID
	Key    ValueID
}

type IndexSet struct {
	Object ValueID
	Key    ValueID
	Value  ValueID
}

// Calls

type Call struct {
	Callee string
	Args   []ValueID
}

type CallIndirect struct {
	Callee ValueID
	Args   []ValueID
}

// SystemCall is the single open-ended boundary to host/engine libraries
type SystemCall struct {
	System string
	Method string
	Args   []ValueID
}

type New struct {
	Class string
	Args  []ValueID
}

// Casts and type tests

type Cast struct {
	Value ValueID
	Ty    types.Type
}

type TypeCheck struct {
	Value ValueID
	Ty    types.Type
}

// Coroutine primitives, lowered to a state machine by a dedicated pass

type Yield struct {
	Value ValueID
}

type CoroCreate struct {
	Func string
	Args []ValueID
}

type CoroResume struct {
	Coro ValueID
	Arg  ValueID // NoValue when resumed without input
}

// Aggregates

type ArrayInit struct {
	Elems []ValueID
}

type TupleInit struct {
	Elems []ValueID
}

type StructInit struct {
	Name   string
	Fields []FieldInit
}

// Globals and scope

type GlobalRef struct {
	Name string
}

type GlobalSet struct {
	Name  string
	Value ValueID
}

type Copy struct {
	Value ValueID
}

func (o *Const) Mnemonic() string        { return "const" }
func (o *Binary) Mnemonic() string       { return "bin." + string(o.Op) }
func (o *Cmp) Mnemonic() string          { return "cmp." + string(o.Kind) }
func (o *Unary) Mnemonic() string        { return "un." + string(o.Op) }
func (o *Br) Mnemonic() string           { return "br" }
func (o *BrIf) Mnemonic() string         { return "br_if" }
func (o *Switch) Mnemonic() string       { return "switch" }
func (o *Return) Mnemonic() string       { return "return" }
func (o *Alloc) Mnemonic() string        { return "alloc" }
func (o *Load) Mnemonic() string         { return "load" }
func (o *Store) Mnemonic() string        { return "store" }
func (o *FieldGet) Mnemonic() string     { return "field.get" }
func (o *FieldSet) Mnemonic() string     { return "field.set" }
func (o *Index) Mnemonic() string        { return "index" }
func (o *IndexSet) Mnemonic() string     { return "index.set" }
func (o *Call) Mnemonic() string         { return "call" }
func (o *CallIndirect) Mnemonic() string { return "call.indirect" }
func (o *SystemCall) Mnemonic() string   { return "syscall" }
func (o *New) Mnemonic() string          { return "new" }
func (o *Cast) Mnemonic() string         { return "cast" }
func (o *TypeCheck) Mnemonic() string    { return "typecheck" }
func (o *Yield) Mnemonic() string        { return "yield" }
func (o *CoroCreate) Mnemonic() string   { return "coro.create" }
func (o *CoroResume) Mnemonic() string   { return "coro.resume" }
func (o *ArrayInit) Mnemonic() string    { return "array" }
func (o *TupleInit) Mnemonic() string    { return "tuple" }
func (o *StructInit) Mnemonic() string   { return "struct" }
func (o *GlobalRef) Mnemonic() string    { return "global.ref" }
func (o *GlobalSet) Mnemonic() string    { return "global.set" }
func (o *Copy) Mnemonic() string         { return "copy" }

func (o *Const) Operands() []ValueID  { return nil }
func (o *Binary) Operands() []ValueID { return []ValueID{o.Lhs, o.Rhs} }
func (o *Cmp) Operands() []ValueID    { return []ValueID{o.Lhs, o.Rhs} }
func (o *Unary) Operands() []ValueID  { return []ValueID{o.Operand} }
func (o *Br) Operands() []ValueID     { return append([]ValueID(nil), o.Args...) }

func (o *BrIf) Operands() []ValueID {
	ops := []ValueID{o.Cond}
	ops = append(ops, o.ThenArgs...)
	ops = append(ops, o.ElseArgs...)
	return ops
}

func (o *Switch) Operands() []ValueID {
	ops := []ValueID{o.Value}
	for _, c := range o.Cases {
		ops = append(ops, c.Args...)
	}
	ops = append(ops, o.DefaultArgs...)
	return ops
}

func (o *Return) Operands() []ValueID {
	if o.Value == NoValue {
		return nil
	}
	return []ValueID{o.Value}
}

func (o *Alloc) Operands() []ValueID    { return nil }
func (o *Load) Operands() []ValueID     { return []ValueID{o.Addr} }
func (o *Store) Operands() []ValueID    { return []ValueID{o.Addr, o.Value} }
func (o *FieldGet) Operands() []ValueID { return []ValueID{o.Object} }
func (o *FieldSet) Operands() []ValueID { return []ValueID{o.Object, o.Value} }
func (o *Index) Operands() []ValueID    { return []ValueID{o.Object, o.Key} }
func (o *IndexSet) Operands() []ValueID { return []ValueID{o.Object, o.Key, o.Value} }
func (o *Call) Operands() []ValueID     { return append([]ValueID(nil), o.Args...) }

func (o *CallIndirect) Operands() []ValueID {
	return append([]ValueID{o.Callee}, o.Args...)
}

func (o *SystemCall) Operands() []ValueID { return append([]ValueID(nil), o.Args...) }
func (o *New) Operands() []ValueID        { return append([]ValueID(nil), o.Args...) }
func (o *Cast) Operands() []ValueID       { return []ValueID{o.Value} }
func (o *TypeCheck) Operands() []ValueID  { return []ValueID{o.Value} }
func (o *Yield) Operands() []ValueID      { return []ValueID{o.Value} }
func (o *CoroCreate) Operands() []ValueID { return append([]ValueID(nil), o.Args...) }

func (o *CoroResume) Operands() []ValueID {
	if o.Arg == NoValue {
		return []ValueID{o.Coro}
	}
	return []ValueID{o.Coro, o.Arg}
}

func (o *ArrayInit) Operands() []ValueID { return append([]ValueID(nil), o.Elems...) }
func (o *TupleInit) Operands() []ValueID { return append([]ValueID(nil), o.Elems...) }

func (o *StructInit) Operands() []ValueID {
	ops := make([]ValueID, len(o.Fields))
	for i, f := range o.Fields {
		ops[i] = f.Value
	}
	return ops
}

func (o *GlobalRef) Operands() []ValueID { return nil }
func (o *GlobalSet) Operands() []ValueID { return []ValueID{o.Value} }
func (o *Copy) Operands() []ValueID      { return []ValueID{o.Value} }

func replaceAll(vs []ValueID, f func(ValueID) ValueID) {
	for i, v := range vs {
		vs[i] = f(v)
	}
}

func (o *Const) ReplaceOperands(f func(ValueID) ValueID) {}

func (o *Binary) ReplaceOperands(f func(ValueID) ValueID) {
	o.Lhs, o.Rhs = f(o.Lhs), f(o.Rhs)
}

func (o *Cmp) ReplaceOperands(f func(ValueID) ValueID) {
	o.Lhs, o.Rhs = f(o.Lhs), f(o.Rhs)
}

func (o *Unary) ReplaceOperands(f func(ValueID) ValueID) { o.Operand = f(o.Operand) }
func (o *Br) ReplaceOperands(f func(ValueID) ValueID)    { replaceAll(o.Args, f) }

func (o *BrIf) ReplaceOperands(f func(ValueID) ValueID) {
	o.Cond = f(o.Cond)
	replaceAll(o.ThenArgs, f)
	replaceAll(o.ElseArgs, f)
}

func (o *Switch) ReplaceOperands(f func(ValueID) ValueID) {
	o.Value = f(o.Value)
	for i := range o.Cases {
		replaceAll(o.Cases[i].Args, f)
	}
	replaceAll(o.DefaultArgs, f)
}

func (o *Return) ReplaceOperands(f func(ValueID) ValueID) {
	if o.Value != NoValue {
		o.Value = f(o.Value)
	}
}

func (o *Alloc) ReplaceOperands(f func(ValueID) ValueID) {}
func (o *Load) ReplaceOperands(f func(ValueID) ValueID)  { o.Addr = f(o.Addr) }

func (o *Store) ReplaceOperands(f func(ValueID) ValueID) {
	o.Addr, o.Value = f(o.Addr), f(o.Value)
}

func (o *FieldGet) ReplaceOperands(f func(ValueID) ValueID) { o.Object = f(o.Object) }

func (o *FieldSet) ReplaceOperands(f func(ValueID) ValueID) {
	o.Object, o.Value = f(o.Object), f(o.Value)
}

func (o *Index) ReplaceOperands(f func(ValueID) ValueID) {
	o.Object, o.Key = f(o.Object), f(o.Key)
}

func (o *IndexSet) ReplaceOperands(f func(ValueID) ValueID) {
	o.Object, o.Key, o.Value = f(o.Object), f(o.Key), f(o.Value)
}

func (o *Call) ReplaceOperands(f func(ValueID) ValueID) { replaceAll(o.Args, f) }

func (o *CallIndirect) ReplaceOperands(f func(ValueID) ValueID) {
	o.Callee = f(o.Callee)
	replaceAll(o.Args, f)
}

func (o *SystemCall) ReplaceOperands(f func(ValueID) ValueID) { replaceAll(o.Args, f) }
func (o *New) ReplaceOperands(f func(ValueID) ValueID)        { replaceAll(o.Args, f) }
func (o *Cast) ReplaceOperands(f func(ValueID) ValueID)       { o.Value = f(o.Value) }
func (o *TypeCheck) ReplaceOperands(f func(ValueID) ValueID)  { o.Value = f(o.Value) }
func (o *Yield) ReplaceOperands(f func(ValueID) ValueID)      { o.Value = f(o.Value) }
func (o *CoroCreate) ReplaceOperands(f func(ValueID) ValueID) { replaceAll(o.Args, f) }

func (o *CoroResume) ReplaceOperands(f func(ValueID) ValueID) {
	o.Coro = f(o.Coro)
	if o.Arg != NoValue {
		o.Arg = f(o.Arg)
	}
}

func (o *ArrayInit) ReplaceOperands(f func(ValueID) ValueID) { replaceAll(o.Elems, f) }
func (o *TupleInit) ReplaceOperands(f func(ValueID) ValueID) { replaceAll(o.Elems, f) }

func (o *StructInit) ReplaceOperands(f func(ValueID) ValueID) {
	for i := range o.Fields {
		o.Fields[i].Value = f(o.Fields[i].Value)
	}
}

func (o *GlobalRef) ReplaceOperands(f func(ValueID) ValueID) {}
func (o *GlobalSet) ReplaceOperands(f func(ValueID) ValueID) { o.Value = f(o.Value) }
func (o *Copy) ReplaceOperands(f func(ValueID) ValueID)      { o.Value = f(o.Value) }

// Successors lists branch targets for terminators, nil for ordinary ops
func Successors(op Op) []BlockID {
	switch o := op.(type) {
	case *Br:
		return []BlockID{o.Target}
	case *BrIf:
		return []BlockID{o.Then, o.Else}
	case *Switch:
		targets := make([]BlockID, 0, len(o.Cases)+1)
		for _, c := range o.Cases {
			targets = append(targets, c.Target)
		}
		return append(targets, o.Default)
	default:
		return nil
	}
}

// BranchArgs returns the arguments a terminator passes to one of its target
// blocks; panics when the op does not branch to the target.
func BranchArgs(op Op, target BlockID) []ValueID {
	switch o := op.(type) {
	case *Br:
		if o.Target == target {
			return o.Args
		}
	case *BrIf:
		if o.Then == target {
			return o.ThenArgs
		}
		if o.Else == target {
			return o.ElseArgs
		}
	case *Switch:
		for i := range o.Cases {
			if o.Cases[i].Target == target {
				return o.Cases[i].Args
			}
		}
		if o.Default == target {
			return o.DefaultArgs
		}
	}
	panic(fmt.Sprintf("ir: %s does not branch to block%d", op.Mnemonic(), target))
}

// IsTerminator reports whether the op ends a block
func IsTerminator(op Op) bool {
	switch op.(type) {
	case *Br, *BrIf, *Switch, *Return:
		return true
	default:
		return false
	}
}

// HasResult reports whether the op defines a value
func HasResult(op Op) bool {
	switch op.(type) {
	case *Br, *BrIf, *Switch, *Return, *Store, *FieldSet, *IndexSet, *GlobalSet:
		return false
	default:
		return true
	}
}
