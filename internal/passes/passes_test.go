package passes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "reforge/internal/errors"
	"reforge/internal/ir"
	"reforge/internal/types"
)

func moduleOf(fns ...*ir.Function) *ir.Module {
	mb := ir.NewModuleBuilder("test")
	for _, fn := range fns {
		mb.AddFunction(fn)
	}
	return mb.Build()
}

func opsOf(fn *ir.Function) []ir.Op {
	var ops []ir.Op
	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			ops = append(ops, fn.Inst(id).Op)
		}
	}
	return ops
}

func countOps(fn *ir.Function, match func(ir.Op) bool) int {
	n := 0
	for _, op := range opsOf(fn) {
		if match(op) {
			n++
		}
	}
	return n
}

func TestConstantFoldingArithmetic(t *testing.T) {
	b := ir.NewFunctionBuilder("calc", nil, types.I64)
	sum := b.Add(b.ConstInt(2), b.ConstInt(3))
	prod := b.Mul(sum, b.ConstInt(4))
	b.Ret(prod)
	fn := b.Build()
	mod := moduleOf(fn)

	changed, err := ConstantFolding{}.Apply(mod)
	require.NoError(t, err)
	assert.True(t, changed)

	def := fn.Inst(fn.DefOf(prod))
	c, ok := def.Op.(*ir.Const)
	require.True(t, ok, "product should fold to a constant")
	assert.Equal(t, int64(20), c.Value.Int)
}

func TestConstantFoldingLeavesDivisionByZero(t *testing.T) {
	b := ir.NewFunctionBuilder("trap", nil, types.I64)
	q := b.Div(b.ConstInt(1), b.ConstInt(0))
	b.Ret(q)
	fn := b.Build()

	_, err := ConstantFolding{}.Apply(moduleOf(fn))
	require.NoError(t, err)

	_, stillBinary := fn.Inst(fn.DefOf(q)).Op.(*ir.Binary)
	assert.True(t, stillBinary, "division by zero must reach the runtime")
}

func TestConstantFoldingCollapsesConstantBranch(t *testing.T) {
	b := ir.NewFunctionBuilder("pick", nil, types.I64)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	b.BrIf(b.ConstBool(true), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Ret(b.ConstInt(1))
	b.SwitchToBlock(elseBlk)
	b.Ret(b.ConstInt(2))
	fn := b.Build()

	changed, err := ConstantFolding{}.Apply(moduleOf(fn))
	require.NoError(t, err)
	assert.True(t, changed)

	br, ok := fn.Terminator(fn.Entry).(*ir.Br)
	require.True(t, ok)
	assert.Equal(t, thenBlk, br.Target)
}

func TestDeadCodeEliminationRemovesUnusedPureChain(t *testing.T) {
	b := ir.NewFunctionBuilder("busy", []types.Type{types.I64}, types.I64)
	// dead chain: removing the add frees its operand constant too
	dead := b.Add(b.ConstInt(10), b.Param(0))
	_ = dead
	b.Ret(b.Param(0))
	fn := b.Build()
	mod := moduleOf(fn)

	changed, err := DeadCodeElimination{}.Apply(mod)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, mod.InstCount(), "only the return survives")
}

func TestDeadCodeEliminationKeepsStores(t *testing.T) {
	b := ir.NewFunctionBuilder("keep", []types.Type{types.I64}, types.Void)
	cell := b.Alloc(types.I64)
	b.Store(cell, b.Param(0))
	b.RetVoid()
	fn := b.Build()

	_, err := DeadCodeElimination{}.Apply(moduleOf(fn))
	require.NoError(t, err)

	stores := countOps(fn, func(op ir.Op) bool { _, ok := op.(*ir.Store); return ok })
	assert.Equal(t, 1, stores, "stores are never removed as dead")
}

func TestCFGSimplifyThreadsAndPrunes(t *testing.T) {
	b := ir.NewFunctionBuilder("walk", nil, types.I64)
	forward := b.CreateBlock()
	final := b.CreateBlock()
	orphan := b.CreateBlock()

	b.Br(forward)
	b.SwitchToBlock(forward)
	b.Br(final)
	b.SwitchToBlock(final)
	b.Ret(b.ConstInt(7))
	b.SwitchToBlock(orphan)
	b.Ret(b.ConstInt(9))
	fn := b.Build()

	changed, err := CFGSimplify{}.Apply(moduleOf(fn))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, fn.Blocks, 1, "chain collapses and the orphan goes away")
	_, isRet := fn.Terminator(fn.Entry).(*ir.Return)
	assert.True(t, isRet)
}

func TestMem2RegForwardsSingleBlockStore(t *testing.T) {
	b := ir.NewFunctionBuilder("local", []types.Type{types.I64}, types.I64)
	cell := b.Alloc(types.I64)
	b.Store(cell, b.Param(0))
	loaded := b.Load(cell)
	b.Ret(loaded)
	fn := b.Build()

	changed, err := Mem2Reg{}.Apply(moduleOf(fn))
	require.NoError(t, err)
	assert.True(t, changed)

	for _, op := range opsOf(fn) {
		switch op.(type) {
		case *ir.Alloc, *ir.Load, *ir.Store:
			t.Fatalf("memory op %s survived promotion", op.Mnemonic())
		}
	}
	ret := fn.Terminator(fn.Entry).(*ir.Return)
	assert.Equal(t, b.Param(0), ret.Value)
}

func TestMem2RegInsertsMergeParam(t *testing.T) {
	b := ir.NewFunctionBuilder("branchy", []types.Type{types.Bool}, types.I64)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	merge := b.CreateBlock()

	cell := b.Alloc(types.I64)
	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Store(cell, b.ConstInt(1))
	b.Br(merge)
	b.SwitchToBlock(elseBlk)
	b.Store(cell, b.ConstInt(2))
	b.Br(merge)
	b.SwitchToBlock(merge)
	loaded := b.Load(cell)
	b.Ret(loaded)
	fn := b.Build()

	changed, err := Mem2Reg{}.Apply(moduleOf(fn))
	require.NoError(t, err)
	assert.True(t, changed)

	mergeBlk := fn.Blocks[merge]
	require.Len(t, mergeBlk.Params, 1, "merge receives the promoted value as a parameter")

	thenBr := fn.Terminator(thenBlk).(*ir.Br)
	elseBr := fn.Terminator(elseBlk).(*ir.Br)
	assert.Len(t, thenBr.Args, 1)
	assert.Len(t, elseBr.Args, 1)
	assert.NotEqual(t, thenBr.Args[0], elseBr.Args[0])

	ret := fn.Terminator(merge).(*ir.Return)
	assert.Equal(t, mergeBlk.Params[0], ret.Value)
}

func TestMem2RegSkipsEscapingCell(t *testing.T) {
	b := ir.NewFunctionBuilder("escape", nil, types.Void)
	cell := b.Alloc(types.I64)
	b.Call("record", cell)
	b.RetVoid()
	fn := b.Build()

	changed, err := Mem2Reg{}.Apply(moduleOf(fn))
	require.NoError(t, err)
	assert.False(t, changed, "a cell whose address escapes stays in memory")
}

func TestRedundantCastElimination(t *testing.T) {
	b := ir.NewFunctionBuilder("widen", []types.Type{types.I64}, types.I64)
	casted := b.Cast(b.Param(0), types.I64)
	b.Ret(casted)
	fn := b.Build()
	mod := moduleOf(fn)

	changed, err := RedundantCastElimination{}.Apply(mod)
	require.NoError(t, err)
	assert.True(t, changed)

	ret := fn.Terminator(fn.Entry).(*ir.Return)
	assert.Equal(t, b.Param(0), ret.Value)
}

func TestPipelineIsIdempotent(t *testing.T) {
	build := func() *ir.Module {
		b := ir.NewFunctionBuilder("main", []types.Type{types.I64}, types.I64)
		cell := b.Alloc(types.Dynamic)
		b.Store(cell, b.Add(b.ConstInt(1), b.ConstInt(2)))
		loaded := b.Load(cell)
		out := b.Add(loaded, b.Param(0))
		dead := b.Mul(out, b.ConstInt(0))
		_ = dead
		b.Ret(out)
		return moduleOf(b.Build())
	}

	mod := build()
	p := NewPipeline(nil)
	require.NoError(t, p.Run(mod))
	first := ir.Print(mod)

	require.NoError(t, p.Run(mod))
	assert.Equal(t, first, ir.Print(mod), "a second pipeline run changes nothing")
}

func TestPipelineShrinksInstructionCount(t *testing.T) {
	b := ir.NewFunctionBuilder("main", nil, types.I64)
	x := b.Add(b.ConstInt(2), b.ConstInt(3))
	y := b.Mul(x, b.ConstInt(10))
	b.Ret(y)
	mod := moduleOf(b.Build())

	before := mod.InstCount()
	require.NoError(t, NewPipeline(nil).Run(mod))
	assert.Less(t, mod.InstCount(), before)
}

// A promoted cell written on both sides of a diamond and carried through a
// loop header forces mem2reg to thread block arguments through every branch,
// and simplification then rewires those branches. The rewritten function must
// still satisfy the structural checks, branch arity against block parameters
// included.
func TestPipelineOutputPassesVerification(t *testing.T) {
	b := ir.NewFunctionBuilder("accumulate", []types.Type{types.Bool, types.I64}, types.I64)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	header := b.CreateBlock()
	body := b.CreateBlock()
	exit := b.CreateBlock()

	cell := b.Alloc(types.I64)
	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Store(cell, b.ConstInt(1))
	b.Br(header)
	b.SwitchToBlock(elseBlk)
	b.Store(cell, b.ConstInt(2))
	b.Br(header)
	b.SwitchToBlock(header)
	cur := b.Load(cell)
	cond := b.Cmp(ir.CmpLt, cur, b.Param(1))
	b.BrIf(cond, body, nil, exit, nil)
	b.SwitchToBlock(body)
	b.Store(cell, b.Add(cur, b.ConstInt(1)))
	b.Br(header)
	b.SwitchToBlock(exit)
	b.Ret(b.Load(cell))
	mod := moduleOf(b.Build())

	require.NoError(t, NewPipeline(nil).Run(mod))

	for _, fn := range mod.Functions {
		require.NoError(t, ir.Verify(fn), "function %s after pipeline", fn.Name)
	}
	assert.Zero(t, countOps(mod.Functions[0], func(op ir.Op) bool {
		_, isAlloc := op.(*ir.Alloc)
		return isAlloc
	}), "the loop-carried cell is promoted")
}

func buildCounterCoroutine() *ir.Function {
	b := ir.NewFunctionBuilder("counter", []types.Type{types.I64}, types.Dynamic)
	start := b.Param(0)
	one := b.ConstInt(1)
	b.Yield(start)
	next := b.Add(start, one)
	b.Yield(next)
	b.Ret(b.ConstInt(0))
	return b.Build()
}

func TestCoroutineLoweringBuildsStateMachine(t *testing.T) {
	fn := buildCounterCoroutine()
	mod := moduleOf(fn)

	changed, err := CoroutineLowering{}.Apply(mod)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.False(t, fn.Coroutine)
	require.Len(t, fn.Params, 2, "lowered signature is (frame, resume input)")
	assert.Equal(t, types.Class("CounterFrame").String(), fn.Params[0].String())

	require.Len(t, mod.Classes, 1)
	frame := mod.Classes[0]
	assert.Equal(t, "CounterFrame", frame.Name)
	assert.Equal(t, "state", frame.Fields[0].Name)

	sw, ok := fn.Terminator(fn.Entry).(*ir.Switch)
	require.True(t, ok, "entry dispatches on the state counter")
	assert.Len(t, sw.Cases, 3, "initial entry plus one case per yield")

	yields := countOps(fn, func(op ir.Op) bool { _, ok := op.(*ir.Yield); return ok })
	assert.Zero(t, yields)

	returns := countOps(fn, func(op ir.Op) bool { _, ok := op.(*ir.Return); return ok })
	assert.Equal(t, 4, returns, "two suspensions, the final return, and the done block")
}

func TestCoroutineSitesAreRewritten(t *testing.T) {
	coro := buildCounterCoroutine()

	b := ir.NewFunctionBuilder("driver", nil, types.Dynamic)
	frame := b.CoroCreate("counter", b.ConstInt(5))
	first := b.CoroResume(frame, b.ConstNil())
	second := b.CoroResume(frame, b.ConstNil())
	_ = first
	b.Ret(second)
	driver := b.Build()
	mod := moduleOf(coro, driver)

	_, err := CoroutineLowering{}.Apply(mod)
	require.NoError(t, err)

	creates := countOps(driver, func(op ir.Op) bool { _, ok := op.(*ir.CoroCreate); return ok })
	resumes := countOps(driver, func(op ir.Op) bool { _, ok := op.(*ir.CoroResume); return ok })
	assert.Zero(t, creates)
	assert.Zero(t, resumes)

	inits := countOps(driver, func(op ir.Op) bool { _, ok := op.(*ir.StructInit); return ok })
	assert.Equal(t, 1, inits, "creation becomes a frame literal")

	calls := 0
	for _, op := range opsOf(driver) {
		if call, ok := op.(*ir.Call); ok && call.Callee == "counter" {
			calls++
			assert.Len(t, call.Args, 2)
		}
	}
	assert.Equal(t, 2, calls, "each resume becomes a plain call")
}

func TestLoadConfigAndSkip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passes.yaml")
	content := `preset: optimized
skip:
  - mem2reg
debug:
  dump_ir_after:
    - constant-folding
  functions:
    - main
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, PresetOptimized, cfg.Preset)
	assert.Equal(t, []string{"mem2reg"}, cfg.Skip)

	mainFn := ir.NewFunction("main", nil, types.Void)
	otherFn := ir.NewFunction("helper", nil, types.Void)
	assert.True(t, cfg.Debug.ShouldDump("constant-folding", mainFn))
	assert.False(t, cfg.Debug.ShouldDump("constant-folding", otherFn))
	assert.False(t, cfg.Debug.ShouldDump("dead-code-elimination", mainFn))
}

func TestLoadConfigRejectsUnknownPass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skip: [no-such-pass]\n"), 0o644))

	_, err := LoadConfig(path)
	var inv *rerrors.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, rerrors.ErrorUnknownPass, inv.Code)
}

func TestLinkModulesResolvesImports(t *testing.T) {
	util := ir.NewFunction("clamp", []types.Type{types.I64}, types.I64)
	util.Visibility = ir.Public
	lib := ir.NewModuleBuilder("mathlib").AddFunction(util).Build()

	app := ir.NewModuleBuilder("app").AddImport("clamp", "mathlib").Build()

	table, err := LinkModules([]*ir.Module{lib, app})
	require.NoError(t, err)
	assert.Same(t, util, table.Functions["clamp"])
	assert.Equal(t, []string{"clamp"}, table.Symbols())
}

// Linking runs after the per-module pipeline, so it must still resolve
// imports against modules the optimizer has already rewritten.
func TestLinkModulesResolvesOptimizedModules(t *testing.T) {
	lb := ir.NewFunctionBuilder("clamp", []types.Type{types.I64}, types.I64)
	folded := lb.Add(lb.ConstInt(2), lb.ConstInt(3))
	lb.Ret(lb.Add(lb.Param(0), folded))
	clamp := lb.Build()
	clamp.Visibility = ir.Public
	lib := ir.NewModuleBuilder("mathlib").AddFunction(clamp).Build()

	ab := ir.NewFunctionBuilder("main", nil, types.I64)
	ab.Ret(ab.Call("clamp", ab.ConstInt(7)))
	app := ir.NewModuleBuilder("app").
		AddImport("clamp", "mathlib").
		AddFunction(ab.Build()).
		Build()

	require.NoError(t, NewPipeline(nil).Run(lib))
	require.NoError(t, NewPipeline(nil).Run(app))

	table, err := LinkModules([]*ir.Module{lib, app})
	require.NoError(t, err)
	assert.Same(t, clamp, table.Functions["clamp"])
	assert.Same(t, lib, table.Owner["clamp"])
}

func TestLinkModulesRejectsDuplicateExport(t *testing.T) {
	a := ir.NewFunction("init", nil, types.Void)
	a.Visibility = ir.Public
	b := ir.NewFunction("init", nil, types.Void)
	b.Visibility = ir.Public

	_, err := LinkModules([]*ir.Module{
		ir.NewModuleBuilder("first").AddFunction(a).Build(),
		ir.NewModuleBuilder("second").AddFunction(b).Build(),
	})
	var inv *rerrors.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, rerrors.ErrorDuplicateSymbol, inv.Code)
}

func TestLinkModulesRejectsUnresolvedImport(t *testing.T) {
	app := ir.NewModuleBuilder("app").AddImport("missing", "nowhere").Build()

	_, err := LinkModules([]*ir.Module{app})
	var inv *rerrors.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, rerrors.ErrorUnresolvedImport, inv.Code)
}

func TestLookupUnknownPass(t *testing.T) {
	_, err := Lookup("frobnicate")
	var inv *rerrors.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, rerrors.ErrorUnknownPass, inv.Code)
}
