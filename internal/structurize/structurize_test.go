package structurize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reforge/internal/ir"
	"reforge/internal/types"
)

// buildDiamond makes entry->(then|else)->join where both arms pass a
// constant into join's parameter.
func buildDiamond(sameValue bool) *ir.Function {
	b := ir.NewFunctionBuilder("pick", []types.Type{types.Bool}, types.I64)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join, joinParams := b.CreateBlockWithParams(types.I64)

	shared := ir.NoValue
	if sameValue {
		shared = b.ConstInt(7)
	}
	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)

	b.SwitchToBlock(thenBlk)
	if sameValue {
		b.Br(join, shared)
	} else {
		b.Br(join, b.ConstInt(1))
	}

	b.SwitchToBlock(elseBlk)
	if sameValue {
		b.Br(join, shared)
	} else {
		b.Br(join, b.ConstInt(2))
	}

	b.SwitchToBlock(join)
	b.Ret(joinParams[0])
	return b.Build()
}

// buildCountLoop makes a while-style counter loop:
//
//	entry: br header(0)
//	header(i): c = i < n; br_if c, body, exit
//	body: i2 = i + 1; br header(i2)
//	exit: return i
func buildCountLoop() *ir.Function {
	b := ir.NewFunctionBuilder("count", []types.Type{types.I64}, types.I64)
	header, headerParams := b.CreateBlockWithParams(types.I64)
	body := b.CreateBlock()
	exit := b.CreateBlock()

	zero := b.ConstInt(0)
	b.Br(header, zero)

	b.SwitchToBlock(header)
	cond := b.Cmp(ir.CmpLt, headerParams[0], b.Param(0))
	b.BrIf(cond, body, nil, exit, nil)

	b.SwitchToBlock(body)
	one := b.ConstInt(1)
	next := b.Add(headerParams[0], one)
	b.Br(header, next)

	b.SwitchToBlock(exit)
	b.Ret(headerParams[0])
	return b.Build()
}

// find walks a shape tree collecting nodes matching pred
func find(s Shape, pred func(Shape) bool) []Shape {
	var out []Shape
	var walk func(Shape)
	walk = func(s Shape) {
		if s == nil {
			return
		}
		if pred(s) {
			out = append(out, s)
		}
		switch v := s.(type) {
		case *Seq:
			for _, c := range v.Shapes {
				walk(c)
			}
		case *IfElse:
			walk(v.Then)
			walk(v.Else)
		case *WhileShape:
			walk(v.Body)
		case *LoopShape:
			walk(v.Body)
		case *SwitchShape:
			for _, arm := range v.Cases {
				walk(arm.Body)
			}
			walk(v.Default)
		}
	}
	walk(s)
	return out
}

func TestDominatorsDiamond(t *testing.T) {
	fn := buildDiamond(false)
	cfg := NewCFG(fn)
	dom := Dominators(cfg)

	// entry dominates everything; arms dominate nothing but themselves
	assert.Equal(t, ir.BlockID(0), dom.Idom[1])
	assert.Equal(t, ir.BlockID(0), dom.Idom[2])
	assert.Equal(t, ir.BlockID(0), dom.Idom[3])
	assert.True(t, dom.Dominates(0, 3))
	assert.False(t, dom.Dominates(1, 3))
}

func TestPostDominatorsDiamond(t *testing.T) {
	fn := buildDiamond(false)
	cfg := NewCFG(fn)
	pdom := PostDominators(cfg)

	// the join post-dominates the branch and both arms
	assert.Equal(t, ir.BlockID(3), pdom.Idom[0])
	assert.Equal(t, ir.BlockID(3), pdom.Idom[1])
	assert.Equal(t, ir.BlockID(3), pdom.Idom[2])
}

func TestNaturalLoopDetection(t *testing.T) {
	fn := buildCountLoop()
	cfg := NewCFG(fn)
	loops := FindLoops(cfg, Dominators(cfg))

	require.Len(t, loops, 1)
	lp := loops[ir.BlockID(1)]
	require.NotNil(t, lp)
	assert.True(t, lp.Body[1], "header in body")
	assert.True(t, lp.Body[2], "latch in body")
	assert.False(t, lp.Body[3], "exit outside body")
	assert.Equal(t, []ir.BlockID{3}, lp.Exits(cfg))
}

func TestDiamondStructurizesToIfElse(t *testing.T) {
	shape := Structurize(buildDiamond(false))

	ifs := find(shape, func(s Shape) bool { _, ok := s.(*IfElse); return ok })
	require.Len(t, ifs, 1)
	ifShape := ifs[0].(*IfElse)

	// each arm carries its own assignment into the join parameter
	thenAssigns := find(ifShape.Then, func(s Shape) bool { _, ok := s.(*Assigns); return ok })
	elseAssigns := find(ifShape.Else, func(s Shape) bool { _, ok := s.(*Assigns); return ok })
	require.Len(t, thenAssigns, 1)
	require.Len(t, elseAssigns, 1)
	assert.NotEqual(t,
		thenAssigns[0].(*Assigns).List[0].Src,
		elseAssigns[0].(*Assigns).List[0].Src)

	// the join block runs exactly once, after the if
	rets := find(shape, func(s Shape) bool { _, ok := s.(*ReturnShape); return ok })
	assert.Len(t, rets, 1)
}

func TestDuplicateEdgeAssignsCollapse(t *testing.T) {
	// both arms pass the same value: the assignment must be hoisted out of
	// the if, not duplicated per arm
	shape := Structurize(buildDiamond(true))

	ifs := find(shape, func(s Shape) bool { _, ok := s.(*IfElse); return ok })
	require.Len(t, ifs, 1)
	ifShape := ifs[0].(*IfElse)

	inArms := len(find(ifShape.Then, func(s Shape) bool { _, ok := s.(*Assigns); return ok })) +
		len(find(ifShape.Else, func(s Shape) bool { _, ok := s.(*Assigns); return ok }))
	assert.Zero(t, inArms, "no duplicate assigns inside the arms")

	all := find(shape, func(s Shape) bool { _, ok := s.(*Assigns); return ok })
	require.Len(t, all, 1, "single hoisted assign after the if")
}

func TestCountLoopBecomesWhile(t *testing.T) {
	shape := Structurize(buildCountLoop())

	whiles := find(shape, func(s Shape) bool { _, ok := s.(*WhileShape); return ok })
	require.Len(t, whiles, 1)
	w := whiles[0].(*WhileShape)
	assert.Equal(t, ir.BlockID(1), w.Header)
	assert.False(t, w.Negated)

	// the latch's back edge shows up as param update assigns, not a
	// trailing jump
	conts := find(w.Body, func(s Shape) bool { _, ok := s.(*ContinueShape); return ok })
	assert.Len(t, conts, 1)
}

func TestLoopWithEarlyBreak(t *testing.T) {
	// while (c1) { if (c2) break; }
	b := ir.NewFunctionBuilder("scan", []types.Type{types.Bool, types.Bool}, types.Void)
	header := b.CreateBlock()
	body := b.CreateBlock()
	cont := b.CreateBlock()
	exit := b.CreateBlock()

	b.Br(header)
	b.SwitchToBlock(header)
	b.BrIf(b.Param(0), body, nil, exit, nil)
	b.SwitchToBlock(body)
	b.BrIf(b.Param(1), exit, nil, cont, nil)
	b.SwitchToBlock(cont)
	b.Br(header)
	b.SwitchToBlock(exit)
	b.RetVoid()

	shape := Structurize(b.Build())

	ifs := find(shape, func(s Shape) bool { _, ok := s.(*IfElse); return ok })
	require.Len(t, ifs, 1)
	thenBreaks := find(ifs[0].(*IfElse).Then, func(s Shape) bool { _, ok := s.(*BreakShape); return ok })
	require.Len(t, thenBreaks, 1, "the early exit arm carries its own break")
	assert.Equal(t, 0, thenBreaks[0].(*BreakShape).Depth)

	dispatches := find(shape, func(s Shape) bool { _, ok := s.(*DispatchShape); return ok })
	assert.Empty(t, dispatches)
}

func TestInfiniteSelfLoop(t *testing.T) {
	b := ir.NewFunctionBuilder("spin", nil, types.Void)
	lp := b.CreateBlock()
	b.Br(lp)
	b.SwitchToBlock(lp)
	b.Br(lp)

	shape := Structurize(b.Build())

	loops := find(shape, func(s Shape) bool { _, ok := s.(*LoopShape); return ok })
	require.Len(t, loops, 1)
	conts := find(shape, func(s Shape) bool { _, ok := s.(*ContinueShape); return ok })
	assert.Len(t, conts, 1)
}

func TestSwitchStructurizes(t *testing.T) {
	b := ir.NewFunctionBuilder("dispatch", []types.Type{types.I64}, types.I64)
	c1 := b.CreateBlock()
	c2 := b.CreateBlock()
	merge, mergeParams := b.CreateBlockWithParams(types.I64)

	b.Switch(b.Param(0), []ir.SwitchCase{
		{Value: ir.IntConst(0), Target: c1},
		{Value: ir.IntConst(1), Target: c2},
	}, merge, []ir.ValueID{b.Param(0)})

	b.SwitchToBlock(c1)
	b.Br(merge, b.ConstInt(10))
	b.SwitchToBlock(c2)
	b.Br(merge, b.ConstInt(20))
	b.SwitchToBlock(merge)
	b.Ret(mergeParams[0])

	shape := Structurize(b.Build())

	switches := find(shape, func(s Shape) bool { _, ok := s.(*SwitchShape); return ok })
	require.Len(t, switches, 1)
	sw := switches[0].(*SwitchShape)
	assert.Len(t, sw.Cases, 2)
	require.NotNil(t, sw.Default, "default edge carries an assign into the merge param")
}

func TestIrreducibleGraphFallsBackToDispatch(t *testing.T) {
	// entry branches into the middle of two mutually-branching blocks:
	// a multiple-entry loop no if/while nest can express
	b := ir.NewFunctionBuilder("tangle", []types.Type{types.Bool}, types.Void)
	b1 := b.CreateBlock()
	b2 := b.CreateBlock()

	b.BrIf(b.Param(0), b1, nil, b2, nil)
	b.SwitchToBlock(b1)
	b.Br(b2)
	b.SwitchToBlock(b2)
	b.Br(b1)

	shape := Structurize(b.Build())

	dispatches := find(shape, func(s Shape) bool { _, ok := s.(*DispatchShape); return ok })
	require.Len(t, dispatches, 1)
	d := dispatches[0].(*DispatchShape)
	assert.Equal(t, ir.BlockID(0), d.Entry)
	assert.Len(t, d.Blocks, 3)
}

func TestStructurizeNeverFails(t *testing.T) {
	// every test graph must produce some shape, dispatch included
	fns := []*ir.Function{buildDiamond(false), buildDiamond(true), buildCountLoop()}
	for _, fn := range fns {
		assert.NotNil(t, Structurize(fn))
	}
}
