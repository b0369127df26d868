package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reforge/internal/ir"
	"reforge/internal/types"
)

func singleFunctionModule(fn *ir.Function) *ir.Module {
	return ir.NewModuleBuilder("test").AddFunction(fn).Build()
}

func TestForwardInfersArithmetic(t *testing.T) {
	b := ir.NewFunctionBuilder("calc", nil, types.Dynamic)
	a := b.ConstInt(2)
	c := b.ConstInt(3)
	sum := b.Add(a, c)
	b.Ret(sum)
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.I64, fn.TypeOf(sum))
	assert.Equal(t, types.I64, fn.Ret, "return type follows the returned value")
}

func TestForwardPromotesIntToFloat(t *testing.T) {
	b := ir.NewFunctionBuilder("mix", nil, types.Dynamic)
	i := b.ConstInt(2)
	f := b.ConstFloat(0.5)
	sum := b.Add(i, f)
	b.Ret(sum)
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.F64, fn.TypeOf(sum))
}

func TestStringConcatOnAdd(t *testing.T) {
	b := ir.NewFunctionBuilder("greet", []types.Type{types.String}, types.Dynamic)
	s := b.ConstString("hi ")
	out := b.Add(s, b.Param(0))
	b.Ret(out)
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.String, fn.TypeOf(out))
}

func TestBlockParamRefinedWhenEdgesAgree(t *testing.T) {
	b := ir.NewFunctionBuilder("join", []types.Type{types.Bool}, types.Dynamic)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	merge, mergeParams := b.CreateBlockWithParams(types.Dynamic)

	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Br(merge, b.ConstInt(1))
	b.SwitchToBlock(elseBlk)
	b.Br(merge, b.ConstInt(2))
	b.SwitchToBlock(merge)
	b.Ret(mergeParams[0])
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.I64, fn.TypeOf(mergeParams[0]))
}

func TestBlockParamWidensToUnionWhenEdgesDisagree(t *testing.T) {
	b := ir.NewFunctionBuilder("either", []types.Type{types.Bool}, types.Dynamic)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	merge, mergeParams := b.CreateBlockWithParams(types.Dynamic)

	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Br(merge, b.ConstInt(1))
	b.SwitchToBlock(elseBlk)
	b.Br(merge, b.ConstString("fallback"))
	b.SwitchToBlock(merge)
	b.Ret(mergeParams[0])
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	got := fn.TypeOf(mergeParams[0])
	un, ok := got.(*types.UnionType)
	require.True(t, ok, "expected a union, got %s", got)
	assert.Len(t, un.Members, 2)
}

func TestAllocRefinedWhenStoresAgree(t *testing.T) {
	// the mandatory agreement check: two int stores on different paths
	// refine the cell, and loads follow
	b := ir.NewFunctionBuilder("cell", []types.Type{types.Bool}, types.Dynamic)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	merge := b.CreateBlock()

	slot := b.Alloc(types.Dynamic)
	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Store(slot, b.ConstInt(1))
	b.Br(merge)
	b.SwitchToBlock(elseBlk)
	b.Store(slot, b.ConstInt(2))
	b.Br(merge)
	b.SwitchToBlock(merge)
	loaded := b.Load(slot)
	b.Ret(loaded)
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.I64, fn.TypeOf(slot))
	assert.Equal(t, types.I64, fn.TypeOf(loaded))
}

func TestAllocWidensToUnionWhenStoresDisagree(t *testing.T) {
	b := ir.NewFunctionBuilder("cell", []types.Type{types.Bool}, types.Void)
	slot := b.Alloc(types.Dynamic)
	b.Store(slot, b.ConstInt(1))
	b.Store(slot, b.ConstString("sentinel"))
	b.RetVoid()
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	_, ok := fn.TypeOf(slot).(*types.UnionType)
	assert.True(t, ok, "disagreeing stores widen to a union, got %s", fn.TypeOf(slot))
}

func TestFrontendTypesArePreserved(t *testing.T) {
	b := ir.NewFunctionBuilder("typed", []types.Type{types.F32}, types.F32)
	b.Ret(b.Param(0))
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.F32, fn.TypeOf(b.Param(0)), "concrete frontend types stay authoritative")
	assert.Equal(t, types.F32, fn.Ret)
}

func TestUnificationNarrowsCallerThroughCalleeSignature(t *testing.T) {
	// callee declares i64; the caller's locally-Dynamic value unifies with
	// the parameter, which forward inference alone cannot see
	cb := ir.NewFunctionBuilder("consume", []types.Type{types.I64}, types.Void)
	cb.RetVoid()
	callee := cb.Build()

	fb := ir.NewFunctionBuilder("produce", []types.Type{types.Dynamic}, types.Void)
	arg := fb.Param(0)
	fb.Call("consume", arg)
	fb.RetVoid()
	caller := fb.Build()

	mod := ir.NewModuleBuilder("test").AddFunction(callee).AddFunction(caller).Build()
	New(mod).Run()

	assert.Equal(t, types.I64, caller.TypeOf(arg))
}

func TestCallReturnTypePropagates(t *testing.T) {
	cb := ir.NewFunctionBuilder("answer", nil, types.I64)
	cb.Ret(cb.ConstInt(42))
	callee := cb.Build()

	fb := ir.NewFunctionBuilder("use", nil, types.Dynamic)
	got := fb.Call("answer")
	fb.Ret(got)
	caller := fb.Build()

	mod := ir.NewModuleBuilder("test").AddFunction(callee).AddFunction(caller).Build()
	New(mod).Run()

	assert.Equal(t, types.I64, caller.TypeOf(got))
	assert.Equal(t, types.I64, caller.Ret)
}

func TestCallSiteFlowNarrowsAgreeingCallers(t *testing.T) {
	cb := ir.NewFunctionBuilder("sink", []types.Type{types.Dynamic}, types.Void)
	cb.RetVoid()
	callee := cb.Build()

	f1 := ir.NewFunctionBuilder("a", nil, types.Void)
	f1.Call("sink", f1.ConstInt(1))
	f1.RetVoid()
	f2 := ir.NewFunctionBuilder("b", nil, types.Void)
	f2.Call("sink", f2.ConstInt(2))
	f2.RetVoid()

	mod := ir.NewModuleBuilder("test").
		AddFunction(callee).AddFunction(f1.Build()).AddFunction(f2.Build()).Build()
	changed := CallSiteFlow(mod)

	assert.True(t, changed)
	assert.Equal(t, types.I64, callee.Params[0])
}

func TestCallSiteWidenRestoresDynamicOnConflict(t *testing.T) {
	cb := ir.NewFunctionBuilder("sink", []types.Type{types.I64}, types.Void)
	cb.RetVoid()
	callee := cb.Build()

	f1 := ir.NewFunctionBuilder("a", nil, types.Void)
	f1.Call("sink", f1.ConstString("oops"))
	f1.RetVoid()

	mod := ir.NewModuleBuilder("test").
		AddFunction(callee).AddFunction(f1.Build()).Build()
	changed := CallSiteWiden(mod)

	assert.True(t, changed)
	assert.True(t, types.IsDynamic(callee.Params[0]))
}

func TestInferenceTerminates(t *testing.T) {
	// a loop-carried value must not keep the engine iterating
	b := ir.NewFunctionBuilder("loop", []types.Type{types.I64}, types.Dynamic)
	header, hp := b.CreateBlockWithParams(types.Dynamic)
	body := b.CreateBlock()
	exit := b.CreateBlock()

	b.Br(header, b.ConstInt(0))
	b.SwitchToBlock(header)
	cond := b.Cmp(ir.CmpLt, hp[0], b.Param(0))
	b.BrIf(cond, body, nil, exit, nil)
	b.SwitchToBlock(body)
	next := b.Add(hp[0], b.ConstInt(1))
	b.Br(header, next)
	b.SwitchToBlock(exit)
	b.Ret(hp[0])
	fn := b.Build()

	New(singleFunctionModule(fn)).Run()

	assert.Equal(t, types.I64, fn.TypeOf(hp[0]))
	assert.Equal(t, types.I64, fn.Ret)
}
