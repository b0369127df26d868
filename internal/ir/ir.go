package ir

import (
	"reforge/internal/types"
)

// Arena-based IR with block arguments instead of phi nodes. Entities are
// referenced by small integer handles scoped to their owning function or
// module; a handle from one module is meaningless in another, cross-module
// references are resolved by name during linking.

type FuncID int
type BlockID int
type InstID int
type ValueID int

const (
	NoFunc  FuncID  = -1
	NoBlock BlockID = -1
	NoInst  InstID  = -1
	NoValue ValueID = -1
)

// Visibility of a function or global within the module set
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Module is a compilation unit. It owns the arenas for every entity below it.
type Module struct {
	Name      string
	Functions []*Function
	Structs   []*StructDef
	Enums     []*EnumDef
	Globals   []*Global
	Imports   []*Import
	Classes   []*ClassDef
}

// StructDef is a named record shape with ordered typed fields
type StructDef struct {
	Name   string
	Fields []FieldDef
}

type FieldDef struct {
	Name string
	Type types.Type
}

// EnumDef is a named set of integer-valued variants
type EnumDef struct {
	Name     string
	Variants []EnumVariant
}

type EnumVariant struct {
	Name  string
	Value int64
}

// Global is a module-level variable
type Global struct {
	Name       string
	Type       types.Type
	Visibility Visibility
	Init       *Constant // nil when zero-initialized
}

// Import is a string-keyed reference to a symbol exported by another module,
// resolved during cross-module linking
type Import struct {
	Name string // local name
	From string // exporting module
}

// ClassDef describes a class shape for field-type lookup during inference
type ClassDef struct {
	Name    string
	Parent  string // "" when no superclass
	Fields  []FieldDef
	Methods []string // function names in this module
}

// Function owns three arenas: blocks, instructions, and value types. Values
// are the SSA-like results of instructions or block parameters; each value is
// defined exactly once.
type Function struct {
	Name       string
	Namespace  string
	Class      string // owning class name, "" for free functions
	Visibility Visibility
	Params     []types.Type
	Ret        types.Type
	Coroutine  bool

	Entry      BlockID
	Blocks     []*Block
	Insts      []Inst
	ValueTypes []types.Type
	ValueNames map[ValueID]string // frontend-provided names, sparse
}

// Block is an ordered instruction list plus typed block parameters. Every
// block except the entry is reached only through explicit branches that
// supply arguments matching the parameter list.
type Block struct {
	Params []ValueID
	Insts  []InstID
}

// Inst pairs an operation with its zero-or-one result value. Instructions are
// immutable once created; passes replace them by rewriting the owning block's
// instruction list.
type Inst struct {
	Op     Op
	Result ValueID
}

// NewModule creates an empty module
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Function looks up a function by name, nil when absent
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Struct looks up a struct definition by name, nil when absent
func (m *Module) Struct(name string) *StructDef {
	for _, s := range m.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Class looks up a class definition by name, nil when absent
func (m *Module) Class(name string) *ClassDef {
	for _, c := range m.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Global looks up a global by name, nil when absent
func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// FieldType resolves a field's declared type through struct and class
// definitions, walking class parents. Dynamic when the shape is unknown.
func (m *Module) FieldType(typeName, field string) types.Type {
	if s := m.Struct(typeName); s != nil {
		for _, f := range s.Fields {
			if f.Name == field {
				return f.Type
			}
		}
	}
	for name := typeName; name != ""; {
		c := m.Class(name)
		if c == nil {
			break
		}
		for _, f := range c.Fields {
			if f.Name == field {
				return f.Type
			}
		}
		name = c.Parent
	}
	return types.Dynamic
}

// InstCount sums live instructions across all functions. It is the
// strictly-decreasing metric that bounds pipeline fixpoint iteration.
func (m *Module) InstCount() int {
	total := 0
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			total += len(b.Insts)
		}
	}
	return total
}

// NewFunction creates a function with an empty entry block
func NewFunction(name string, params []types.Type, ret types.Type) *Function {
	fn := &Function{
		Name:       name,
		Visibility: Private,
		Params:     params,
		Ret:        ret,
		ValueNames: make(map[ValueID]string),
	}
	fn.Entry = fn.AddBlockWithParams(params)
	return fn
}

// NewValue allocates a fresh value with the given type
func (fn *Function) NewValue(t types.Type) ValueID {
	if t == nil {
		t = types.Dynamic
	}
	fn.ValueTypes = append(fn.ValueTypes, t)
	return ValueID(len(fn.ValueTypes) - 1)
}

// AddBlock appends an empty parameterless block
func (fn *Function) AddBlock() BlockID {
	fn.Blocks = append(fn.Blocks, &Block{})
	return BlockID(len(fn.Blocks) - 1)
}

// AddBlockWithParams appends a block with one fresh parameter value per type
func (fn *Function) AddBlockWithParams(paramTypes []types.Type) BlockID {
	b := &Block{}
	for _, t := range paramTypes {
		b.Params = append(b.Params, fn.NewValue(t))
	}
	fn.Blocks = append(fn.Blocks, b)
	return BlockID(len(fn.Blocks) - 1)
}

// Block returns the block for a handle
func (fn *Function) Block(id BlockID) *Block {
	return fn.Blocks[id]
}

// Inst returns the instruction for a handle
func (fn *Function) Inst(id InstID) *Inst {
	return &fn.Insts[id]
}

// TypeOf returns a value's current inferred type
func (fn *Function) TypeOf(v ValueID) types.Type {
	if v == NoValue {
		return types.Void
	}
	return fn.ValueTypes[v]
}

// SetType records a refined type for a value
func (fn *Function) SetType(v ValueID, t types.Type) {
	fn.ValueTypes[v] = t
}

// NameOf returns the frontend-provided name for a value, "" when unnamed
func (fn *Function) NameOf(v ValueID) string {
	return fn.ValueNames[v]
}

// SetName records a frontend-provided name for a value
func (fn *Function) SetName(v ValueID, name string) {
	fn.ValueNames[v] = name
}

// Append creates an instruction at the end of a block and returns its result
// value, NoValue for resultless operations
func (fn *Function) Append(b BlockID, op Op, resultType types.Type) ValueID {
	result := NoValue
	if HasResult(op) {
		result = fn.NewValue(resultType)
	}
	fn.Insts = append(fn.Insts, Inst{Op: op, Result: result})
	id := InstID(len(fn.Insts) - 1)
	fn.Blocks[b].Insts = append(fn.Blocks[b].Insts, id)
	return result
}

// ReplaceOp swaps the operation at a block position for a new instruction
// that keeps the original result value. The old instruction becomes garbage
// in the arena until CompactInsts runs.
func (fn *Function) ReplaceOp(b BlockID, pos int, op Op) {
	old := fn.Blocks[b].Insts[pos]
	fn.Insts = append(fn.Insts, Inst{Op: op, Result: fn.Insts[old].Result})
	fn.Blocks[b].Insts[pos] = InstID(len(fn.Insts) - 1)
}

// Terminator returns the block's final operation, nil for an empty block
func (fn *Function) Terminator(b BlockID) Op {
	blk := fn.Blocks[b]
	if len(blk.Insts) == 0 {
		return nil
	}
	return fn.Insts[blk.Insts[len(blk.Insts)-1]].Op
}

// DefOf finds the instruction defining a value, NoInst for block parameters
func (fn *Function) DefOf(v ValueID) InstID {
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			if fn.Insts[id].Result == v {
				return id
			}
		}
	}
	return NoInst
}

// ReplaceUses rewrites every operand occurrence of old to new across the
// whole function, including branch arguments
func (fn *Function) ReplaceUses(old, new ValueID) {
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			fn.Insts[id].Op.ReplaceOperands(func(v ValueID) ValueID {
				if v == old {
					return new
				}
				return v
			})
		}
	}
}

// UseCounts tallies operand occurrences per value, branch arguments included
func (fn *Function) UseCounts() map[ValueID]int {
	uses := make(map[ValueID]int)
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			for _, v := range fn.Insts[id].Op.Operands() {
				uses[v]++
			}
		}
	}
	return uses
}

// CompactInsts rebuilds the instruction arena keeping only instructions still
// referenced from block lists. Run at pass boundaries; handles held across a
// compaction are invalidated.
func (fn *Function) CompactInsts() {
	remap := make(map[InstID]InstID)
	var compacted []Inst
	for _, b := range fn.Blocks {
		for _, id := range b.Insts {
			if _, ok := remap[id]; !ok {
				compacted = append(compacted, fn.Insts[id])
				remap[id] = InstID(len(compacted) - 1)
			}
		}
	}
	for _, b := range fn.Blocks {
		for i, id := range b.Insts {
			b.Insts[i] = remap[id]
		}
	}
	fn.Insts = compacted
}
