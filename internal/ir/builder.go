package ir

import (
	"reforge/internal/errors"
	"reforge/internal/types"
)

// FunctionBuilder constructs a function one instruction at a time. Branches
// are checked against their target's parameter list at construction: an arity
// mismatch panics immediately, because it is a frontend or pass bug that must
// not reach the pipeline.
type FunctionBuilder struct {
	fn  *Function
	cur BlockID
}

// NewFunctionBuilder starts a function whose entry block carries one
// parameter per signature parameter
func NewFunctionBuilder(name string, params []types.Type, ret types.Type) *FunctionBuilder {
	fn := NewFunction(name, params, ret)
	return &FunctionBuilder{fn: fn, cur: fn.Entry}
}

// Func exposes the function under construction
func (b *FunctionBuilder) Func() *Function {
	return b.fn
}

// Build finishes construction and returns the function
func (b *FunctionBuilder) Build() *Function {
	return b.fn
}

// Param returns the i-th entry block parameter value
func (b *FunctionBuilder) Param(i int) ValueID {
	return b.fn.Blocks[b.fn.Entry].Params[i]
}

// CreateBlock adds an empty parameterless block
func (b *FunctionBuilder) CreateBlock() BlockID {
	return b.fn.AddBlock()
}

// CreateBlockWithParams adds a block with one fresh value per parameter type
// and returns the block plus its parameter values
func (b *FunctionBuilder) CreateBlockWithParams(paramTypes ...types.Type) (BlockID, []ValueID) {
	blk := b.fn.AddBlockWithParams(paramTypes)
	return blk, b.fn.Blocks[blk].Params
}

// SwitchToBlock makes a block the insertion point for subsequent ops
func (b *FunctionBuilder) SwitchToBlock(blk BlockID) {
	b.cur = blk
}

// CurrentBlock returns the insertion point
func (b *FunctionBuilder) CurrentBlock() BlockID {
	return b.cur
}

// Name attaches a frontend-provided name to a value
func (b *FunctionBuilder) Name(v ValueID, name string) ValueID {
	b.fn.SetName(v, name)
	return v
}

func (b *FunctionBuilder) emit(op Op, resultType types.Type) ValueID {
	return b.fn.Append(b.cur, op, resultType)
}

func (b *FunctionBuilder) checkArity(target BlockID, args []ValueID) {
	if int(target) < 0 || int(target) >= len(b.fn.Blocks) {
		panic(errors.NewInvariantAt(errors.ErrorUnknownBlock, b.fn.Name, int(b.cur), -1,
			"branch targets unknown block%d", target))
	}
	want := len(b.fn.Blocks[target].Params)
	if len(args) != want {
		panic(errors.NewInvariantAt(errors.ErrorBranchArity, b.fn.Name, int(b.cur), -1,
			"branch to block%d has %d args, expected %d", target, len(args), want))
	}
}

// Constants

func (b *FunctionBuilder) ConstInt(v int64) ValueID {
	return b.emit(&Const{Value: IntConst(v)}, types.I64)
}

func (b *FunctionBuilder) ConstFloat(v float64) ValueID {
	return b.emit(&Const{Value: FloatConst(v)}, types.F64)
}

func (b *FunctionBuilder) ConstString(v string) ValueID {
	return b.emit(&Const{Value: StringConst(v)}, types.String)
}

func (b *FunctionBuilder) ConstBool(v bool) ValueID {
	return b.emit(&Const{Value: BoolConst(v)}, types.Bool)
}

func (b *FunctionBuilder) ConstNil() ValueID {
	return b.emit(&Const{Value: NilConst()}, types.Dynamic)
}

// Arithmetic and logic; result types start Dynamic and are refined by
// inference, except comparisons which are always bool

func (b *FunctionBuilder) Binary(op BinOp, lhs, rhs ValueID) ValueID {
	return b.emit(&Binary{Op: op, Lhs: lhs, Rhs: rhs}, types.Dynamic)
}

func (b *FunctionBuilder) Add(lhs, rhs ValueID) ValueID { return b.Binary(BinAdd, lhs, rhs) }
func (b *FunctionBuilder) Sub(lhs, rhs ValueID) ValueID { return b.Binary(BinSub, lhs, rhs) }
func (b *FunctionBuilder) Mul(lhs, rhs ValueID) ValueID { return b.Binary(BinMul, lhs, rhs) }
func (b *FunctionBuilder) Div(lhs, rhs ValueID) ValueID { return b.Binary(BinDiv, lhs, rhs) }

func (b *FunctionBuilder) Cmp(kind CmpKind, lhs, rhs ValueID) ValueID {
	return b.emit(&Cmp{Kind: kind, Lhs: lhs, Rhs: rhs}, types.Bool)
}

func (b *FunctionBuilder) Unary(op UnOp, operand ValueID) ValueID {
	var t types.Type = types.Dynamic
	if op == UnNot {
		t = types.Bool
	}
	return b.emit(&Unary{Op: op, Operand: operand}, t)
}

// Control flow

func (b *FunctionBuilder) Br(target BlockID, args ...ValueID) {
	b.checkArity(target, args)
	b.emit(&Br{Target: target, Args: args}, nil)
}

func (b *FunctionBuilder) BrIf(cond ValueID, then BlockID, thenArgs []ValueID, els BlockID, elseArgs []ValueID) {
	b.checkArity(then, thenArgs)
	b.checkArity(els, elseArgs)
	b.emit(&BrIf{Cond: cond, Then: then, ThenArgs: thenArgs, Else: els, ElseArgs: elseArgs}, nil)
}

func (b *FunctionBuilder) Switch(value ValueID, cases []SwitchCase, def BlockID, defArgs []ValueID) {
	for _, c := range cases {
		b.checkArity(c.Target, c.Args)
	}
	b.checkArity(def, defArgs)
	b.emit(&Switch{Value: value, Cases: cases, Default: def, DefaultArgs: defArgs}, nil)
}

func (b *FunctionBuilder) Ret(value ValueID) {
	b.emit(&Return{Value: value}, nil)
}

func (b *FunctionBuilder) RetVoid() {
	b.emit(&Return{Value: NoValue}, nil)
}

// Memory

func (b *FunctionBuilder) Alloc(ty types.Type) ValueID {
	return b.emit(&Alloc{Ty: ty}, ty)
}

func (b *FunctionBuilder) Load(addr ValueID) ValueID {
	return b.emit(&Load{Addr: addr}, types.Dynamic)
}

func (b *FunctionBuilder) Store(addr, value ValueID) {
	b.emit(&Store{Addr: addr, Value: value}, nil)
}

func (b *FunctionBuilder) FieldGet(object ValueID, field string) ValueID {
	return b.emit(&FieldGet{Object: object, Field: field}, types.Dynamic)
}

func (b *FunctionBuilder) FieldSet(object ValueID, field string, value ValueID) {
	b.emit(&FieldSet{Object: object, Field: field, Value: value}, nil)
}

func (b *FunctionBuilder) Index(object, key ValueID) ValueID {
	return b.emit(&Index{Object: object, Key: key}, types.Dynamic)
}

func (b *FunctionBuilder) IndexSet(object, key, value ValueID) {
	b.emit(&IndexSet{Object: object, Key: key, Value: value}, nil)
}

// Calls

func (b *FunctionBuilder) Call(callee string, args ...ValueID) ValueID {
	return b.emit(&Call{Callee: callee, Args: args}, types.Dynamic)
}

func (b *FunctionBuilder) CallIndirect(callee ValueID, args ...ValueID) ValueID {
	return b.emit(&CallIndirect{Callee: callee, Args: args}, types.Dynamic)
}

func (b *FunctionBuilder) SystemCall(system, method string, args ...ValueID) ValueID {
	return b.emit(&SystemCall{System: system, Method: method, Args: args}, types.Dynamic)
}

func (b *FunctionBuilder) New(class string, args ...ValueID) ValueID {
	return b.emit(&New{Class: class, Args: args}, types.Class(class))
}

// Casts and coroutines

func (b *FunctionBuilder) Cast(value ValueID, ty types.Type) ValueID {
	return b.emit(&Cast{Value: value, Ty: ty}, ty)
}

func (b *FunctionBuilder) TypeCheck(value ValueID, ty types.Type) ValueID {
	return b.emit(&TypeCheck{Value: value, Ty: ty}, types.Bool)
}

func (b *FunctionBuilder) Yield(value ValueID) ValueID {
	b.fn.Coroutine = true
	return b.emit(&Yield{Value: value}, types.Dynamic)
}

func (b *FunctionBuilder) CoroCreate(fn string, args ...ValueID) ValueID {
	return b.emit(&CoroCreate{Func: fn, Args: args}, types.Dynamic)
}

func (b *FunctionBuilder) CoroResume(coro, arg ValueID) ValueID {
	return b.emit(&CoroResume{Coro: coro, Arg: arg}, types.Dynamic)
}

// Aggregates, globals

func (b *FunctionBuilder) ArrayInit(elems ...ValueID) ValueID {
	return b.emit(&ArrayInit{Elems: elems}, types.Array(types.Dynamic))
}

func (b *FunctionBuilder) TupleInit(elems ...ValueID) ValueID {
	return b.emit(&TupleInit{Elems: elems}, types.Dynamic)
}

func (b *FunctionBuilder) StructInit(name string, fields ...FieldInit) ValueID {
	return b.emit(&StructInit{Name: name, Fields: fields}, types.Class(name))
}

func (b *FunctionBuilder) GlobalRef(name string) ValueID {
	return b.emit(&GlobalRef{Name: name}, types.Dynamic)
}

func (b *FunctionBuilder) GlobalSet(name string, value ValueID) {
	b.emit(&GlobalSet{Name: name, Value: value}, nil)
}

func (b *FunctionBuilder) Copy(value ValueID) ValueID {
	return b.emit(&Copy{Value: value}, b.fn.TypeOf(value))
}

// ModuleBuilder assembles a module from functions and definitions
type ModuleBuilder struct {
	mod *Module
}

func NewModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{mod: NewModule(name)}
}

func (b *ModuleBuilder) AddFunction(fn *Function) *ModuleBuilder {
	b.mod.Functions = append(b.mod.Functions, fn)
	return b
}

func (b *ModuleBuilder) DefineStruct(def *StructDef) *ModuleBuilder {
	b.mod.Structs = append(b.mod.Structs, def)
	return b
}

func (b *ModuleBuilder) DefineEnum(def *EnumDef) *ModuleBuilder {
	b.mod.Enums = append(b.mod.Enums, def)
	return b
}

func (b *ModuleBuilder) DefineGlobal(g *Global) *ModuleBuilder {
	b.mod.Globals = append(b.mod.Globals, g)
	return b
}

func (b *ModuleBuilder) DefineClass(def *ClassDef) *ModuleBuilder {
	b.mod.Classes = append(b.mod.Classes, def)
	return b
}

func (b *ModuleBuilder) AddImport(name, from string) *ModuleBuilder {
	b.mod.Imports = append(b.mod.Imports, &Import{Name: name, From: from})
	return b
}

func (b *ModuleBuilder) Build() *Module {
	return b.mod
}
