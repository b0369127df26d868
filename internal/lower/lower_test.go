package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reforge/internal/ir"
	"reforge/internal/types"
)

func varE(name string) Expr            { return &VarRef{Name: name} }
func litI(v int64) Expr                { return &Lit{Value: ir.IntConst(v)} }
func assignS(name string, v Expr) Stmt { return &AssignStmt{Target: varE(name), Value: v} }

// --- end to end ---

func TestDiamondLowersToTernaryReturn(t *testing.T) {
	b := ir.NewFunctionBuilder("pick", []types.Type{types.Bool}, types.I64)
	b.Name(b.Param(0), "c")
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join, joinParams := b.CreateBlockWithParams(types.I64)

	b.BrIf(b.Param(0), thenBlk, nil, elseBlk, nil)
	b.SwitchToBlock(thenBlk)
	b.Br(join, b.ConstInt(1))
	b.SwitchToBlock(elseBlk)
	b.Br(join, b.ConstInt(2))
	b.SwitchToBlock(join)
	b.Ret(joinParams[0])

	low := Lower(b.Build())

	assert.Equal(t, "return (c ? 1 : 2)\n", PrintStmts(low.Body))
	require.Len(t, low.Params, 1)
	assert.Equal(t, "c", low.Params[0].Name)
}

func TestCountLoopRecoversWhileAndIncrement(t *testing.T) {
	b := ir.NewFunctionBuilder("count", []types.Type{types.I64}, types.I64)
	b.Name(b.Param(0), "n")
	header, headerParams := b.CreateBlockWithParams(types.I64)
	b.Name(headerParams[0], "i")
	body := b.CreateBlock()
	exit := b.CreateBlock()

	b.Br(header, b.ConstInt(0))
	b.SwitchToBlock(header)
	cond := b.Cmp(ir.CmpLt, headerParams[0], b.Param(0))
	b.BrIf(cond, body, nil, exit, nil)
	b.SwitchToBlock(body)
	b.Br(header, b.Add(headerParams[0], b.ConstInt(1)))
	b.SwitchToBlock(exit)
	b.Ret(headerParams[0])

	low := Lower(b.Build())

	want := "var i: i64 = 0\n" +
		"while (i < n) {\n" +
		"    i++\n" +
		"}\n" +
		"return i\n"
	assert.Equal(t, want, PrintStmts(low.Body))
}

func TestEarlyBreakSurvivesLowering(t *testing.T) {
	b := ir.NewFunctionBuilder("scan", []types.Type{types.Bool, types.Bool}, types.Void)
	b.Name(b.Param(0), "more")
	b.Name(b.Param(1), "stop")
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

	out := PrintStmts(Lower(b.Build()).Body)

	assert.Contains(t, out, "while more {")
	assert.Contains(t, out, "break")
}

func TestAllocCellFoldsToValue(t *testing.T) {
	b := ir.NewFunctionBuilder("pass", []types.Type{types.I64}, types.I64)
	b.Name(b.Param(0), "p")
	cell := b.Alloc(types.I64)
	b.Store(cell, b.Param(0))
	b.Ret(b.Load(cell))

	out := PrintStmts(Lower(b.Build()).Body)

	assert.Equal(t, "return p\n", out)
}

func TestIrreducibleLowersToStateMachine(t *testing.T) {
	b := ir.NewFunctionBuilder("tangle", []types.Type{types.Bool}, types.Void)
	b1 := b.CreateBlock()
	b2 := b.CreateBlock()

	b.BrIf(b.Param(0), b1, nil, b2, nil)
	b.SwitchToBlock(b1)
	b.Br(b2)
	b.SwitchToBlock(b2)
	b.Br(b1)

	low := Lower(b.Build())
	require.NotEmpty(t, low.Body)

	decl, ok := low.Body[0].(*DeclStmt)
	require.True(t, ok, "state variable first")
	assert.Equal(t, "state", decl.Name)

	out := PrintStmts(low.Body)
	assert.Contains(t, out, "switch state {")
	assert.Contains(t, out, "state = ")
	assert.Contains(t, out, "continue")
}

func TestLoweredPrintRendersSignature(t *testing.T) {
	b := ir.NewFunctionBuilder("pick", []types.Type{types.Bool}, types.I64)
	b.Name(b.Param(0), "c")
	b.Ret(b.ConstInt(4))

	got := Lower(b.Build()).Print()

	assert.Equal(t, "fn pick(c: bool) -> i64 {\n  return 4\n}\n", got)
}

// --- normalization passes ---

func TestTernaryAssignMergesBranches(t *testing.T) {
	stmts := []Stmt{
		&IfStmt{
			Cond: varE("c"),
			Then: []Stmt{assignS("x", varE("a"))},
			Else: []Stmt{assignS("x", varE("b"))},
		},
	}

	out, changed := ternaryAssign(stmts)

	assert.True(t, changed)
	require.Len(t, out, 1)
	a, ok := out[0].(*AssignStmt)
	require.True(t, ok)
	assert.Equal(t, "(c ? a : b)", ExprString(a.Value))
}

func TestTernaryChainCollapses(t *testing.T) {
	stmts := []Stmt{
		&IfStmt{
			Cond: varE("c1"),
			Then: []Stmt{assignS("x", varE("a"))},
			Else: []Stmt{&IfStmt{
				Cond: varE("c2"),
				Then: []Stmt{assignS("x", varE("b"))},
				Else: []Stmt{assignS("x", varE("d"))},
			}},
		},
	}

	out := Normalize(stmts)

	require.Len(t, out, 1)
	a, ok := out[0].(*AssignStmt)
	require.True(t, ok)
	assert.Equal(t, "(c1 ? a : (c2 ? b : d))", ExprString(a.Value))
}

func TestMinMaxRecognized(t *testing.T) {
	stmts := []Stmt{
		&ReturnStmt{Value: &TernaryExpr{
			Cond: &CmpExpr{Kind: ir.CmpLt, Lhs: varE("a"), Rhs: varE("b")},
			Then: varE("a"),
			Else: varE("b"),
		}},
	}

	_, changed := recognizeMinMax(stmts)

	assert.True(t, changed)
	assert.Equal(t, "return min(a, b)\n", PrintStmts(stmts))
}

func TestMaxRecognizedFromGreaterThan(t *testing.T) {
	stmts := []Stmt{
		&ReturnStmt{Value: &TernaryExpr{
			Cond: &CmpExpr{Kind: ir.CmpGt, Lhs: varE("a"), Rhs: varE("b")},
			Then: varE("a"),
			Else: varE("b"),
		}},
	}

	recognizeMinMax(stmts)

	assert.Equal(t, "return max(a, b)\n", PrintStmts(stmts))
}

func TestCondTernaryBecomesBoolOp(t *testing.T) {
	stmts := []Stmt{
		assignS("r", &TernaryExpr{Cond: varE("c"), Then: varE("x"), Else: varE("c")}),
		assignS("s", &TernaryExpr{Cond: varE("c"), Then: varE("c"), Else: varE("y")}),
	}

	_, changed := condTernaryToBool(stmts)

	assert.True(t, changed)
	assert.Equal(t, "r = (c && x)\ns = (c || y)\n", PrintStmts(stmts))
}

func TestBoolTernaryMerges(t *testing.T) {
	stmts := []Stmt{
		assignS("r", &TernaryExpr{Cond: varE("c"), Then: &Lit{Value: ir.BoolConst(true)}, Else: &Lit{Value: ir.BoolConst(false)}}),
		assignS("s", &TernaryExpr{Cond: varE("c"), Then: &Lit{Value: ir.BoolConst(false)}, Else: &Lit{Value: ir.BoolConst(true)}}),
	}

	_, changed := boolTernaryMerge(stmts)

	assert.True(t, changed)
	assert.Equal(t, "r = c\ns = !c\n", PrintStmts(stmts))
}

func TestEmptyThenInverts(t *testing.T) {
	stmts := []Stmt{
		&IfStmt{
			Cond: &CmpExpr{Kind: ir.CmpEq, Lhs: varE("a"), Rhs: litI(0)},
			Else: []Stmt{&ReturnStmt{Value: varE("a")}},
		},
	}

	out, changed := invertEmptyThen(stmts)

	assert.True(t, changed)
	f := out[0].(*IfStmt)
	assert.Equal(t, "(a != 0)", ExprString(f.Cond))
	require.Len(t, f.Then, 1)
	assert.Empty(t, f.Else)
}

func TestUnreachableTailTruncated(t *testing.T) {
	stmts := []Stmt{
		&ReturnStmt{Value: litI(1)},
		assignS("x", litI(2)),
	}

	out, changed := truncateUnreachable(stmts)

	assert.True(t, changed)
	require.Len(t, out, 1)
}

func TestImpureInitKeepsEffect(t *testing.T) {
	stmts := []Stmt{
		&DeclStmt{Name: "tmp", Type: types.Dynamic, Init: &CallExpr{Callee: "foo"}},
		&ReturnStmt{Value: litI(0)},
	}

	out, changed := impureInitToStmt(stmts)

	assert.True(t, changed)
	_, ok := out[0].(*ExprStmt)
	assert.True(t, ok, "the call survives as an expression statement")
}

func TestDeadDeclRemoved(t *testing.T) {
	stmts := []Stmt{
		&DeclStmt{Name: "a", Type: types.I64, Init: litI(1)},
		&ReturnStmt{Value: litI(2)},
	}

	out, changed := removeDeadDecls(stmts)

	assert.True(t, changed)
	require.Len(t, out, 1)
	_, ok := out[0].(*ReturnStmt)
	assert.True(t, ok)
}

func TestDeclScopeNarrowsIntoBranch(t *testing.T) {
	stmts := []Stmt{
		&DeclStmt{Name: "t", Type: types.I64, Mutable: true},
		&IfStmt{
			Cond: varE("c"),
			Then: []Stmt{
				assignS("t", litI(1)),
				&ExprStmt{Expr: &CallExpr{Callee: "use", Args: []Expr{varE("t")}}},
			},
		},
	}

	out, changed := narrowDeclScope(stmts)

	assert.True(t, changed)
	require.Len(t, out, 1)
	f := out[0].(*IfStmt)
	require.Len(t, f.Then, 3)
	d, ok := f.Then[0].(*DeclStmt)
	require.True(t, ok)
	assert.Equal(t, "t", d.Name)
}

func TestCompoundAssignForms(t *testing.T) {
	stmts := []Stmt{
		assignS("x", &BinaryExpr{Op: ir.BinAdd, Lhs: varE("x"), Rhs: varE("y")}),
		assignS("x", &BinaryExpr{Op: ir.BinSub, Lhs: varE("x"), Rhs: litI(1)}),
		assignS("x", &BinaryExpr{Op: ir.BinMul, Lhs: varE("y"), Rhs: varE("x")}),
	}

	_, changed := compoundAssign(stmts)

	assert.True(t, changed)
	assert.Equal(t, "x += y\nx--\nx *= y\n", PrintStmts(stmts))
}

func TestDeclAssignMergeAndInline(t *testing.T) {
	stmts := []Stmt{
		&DeclStmt{Name: "x", Type: types.I64, Mutable: true},
		assignS("x", litI(1)),
		&ReturnStmt{Value: varE("x")},
	}

	out := Normalize(stmts)

	require.Len(t, out, 1)
	r, ok := out[0].(*ReturnStmt)
	require.True(t, ok)
	assert.Equal(t, "1", ExprString(r.Value))
}

func TestForwardSubstituteNeedsLocalTarget(t *testing.T) {
	// the target is declared in an outer scope: dropping the assignment
	// would lose the value for readers after the loop
	inner := []Stmt{
		assignS("x", &BinaryExpr{Op: ir.BinAdd, Lhs: varE("a"), Rhs: varE("b")}),
		&ExprStmt{Expr: &CallExpr{Callee: "use", Args: []Expr{varE("x")}}},
	}
	stmts := []Stmt{&WhileStmt{Cond: varE("c"), Body: inner}}

	_, changed := forwardSubstitute(stmts)

	assert.False(t, changed)
}

func eqCond(name string, v int64) Expr {
	return &CmpExpr{Kind: ir.CmpEq, Lhs: varE(name), Rhs: litI(v)}
}

func TestSwitchRecoveredFromElseIfChain(t *testing.T) {
	chain := &IfStmt{
		Cond: eqCond("k", 1),
		Then: []Stmt{assignS("r", litI(10))},
		Else: []Stmt{&IfStmt{
			Cond: eqCond("k", 2),
			Then: []Stmt{assignS("r", litI(20))},
			Else: []Stmt{assignS("r", litI(30))},
		}},
	}

	out, changed := switchRecovery([]Stmt{chain})

	require.True(t, changed)
	want := "switch k {\n" +
		"case 1:\n    r = 10\n" +
		"case 2:\n    r = 20\n" +
		"default:\n    r = 30\n" +
		"}\n"
	assert.Equal(t, want, PrintStmts(out))
}

func TestGuardRunBecomesSwitchWithoutDefault(t *testing.T) {
	list := []Stmt{
		&IfStmt{Cond: eqCond("k", 1), Then: []Stmt{&ReturnStmt{Value: litI(10)}}},
		&IfStmt{Cond: eqCond("k", 2), Then: []Stmt{&ReturnStmt{Value: litI(20)}}},
		&ReturnStmt{Value: litI(0)},
	}

	out, changed := switchRecovery(list)

	require.True(t, changed)
	want := "switch k {\n" +
		"case 1:\n    return 10\n" +
		"case 2:\n    return 20\n" +
		"}\n" +
		"return 0\n"
	assert.Equal(t, want, PrintStmts(out))
}

func TestSwitchNotRecoveredFromRepeatedConstant(t *testing.T) {
	chain := &IfStmt{
		Cond: eqCond("k", 1),
		Then: []Stmt{assignS("r", litI(10))},
		Else: []Stmt{&IfStmt{
			Cond: eqCond("k", 1),
			Then: []Stmt{assignS("r", litI(20))},
		}},
	}

	_, changed := switchRecovery([]Stmt{chain})

	assert.False(t, changed)
}

func TestBothArmsTerminatingTruncatesTail(t *testing.T) {
	list := []Stmt{
		&IfStmt{
			Cond: varE("c"),
			Then: []Stmt{&ReturnStmt{Value: litI(1)}},
			Else: []Stmt{&ReturnStmt{Value: litI(2)}},
		},
		assignS("x", litI(3)),
	}

	out, changed := truncateUnreachable(list)

	require.True(t, changed)
	require.Len(t, out, 1)
}

func TestForLoopRecovered(t *testing.T) {
	list := []Stmt{
		&DeclStmt{Name: "i", Type: types.I64, Init: litI(0), Mutable: true},
		&WhileStmt{
			Cond: &CmpExpr{Kind: ir.CmpLt, Lhs: varE("i"), Rhs: varE("n")},
			Body: []Stmt{
				&ExprStmt{Expr: &CallExpr{Callee: "emit", Args: []Expr{varE("i")}}},
				&IncDecStmt{Target: &VarRef{Name: "i"}},
			},
		},
		&ReturnStmt{},
	}

	out, changed := forRecovery(list)

	require.True(t, changed)
	want := "for var i = 0; (i < n); i++ {\n" +
		"    emit(i)\n" +
		"}\n" +
		"return\n"
	assert.Equal(t, want, PrintStmts(out))
}

func TestForNotRecoveredPastContinue(t *testing.T) {
	// continue would skip a hoisted update in for form but not in while form
	list := []Stmt{
		&DeclStmt{Name: "i", Type: types.I64, Init: litI(0), Mutable: true},
		&WhileStmt{
			Cond: &CmpExpr{Kind: ir.CmpLt, Lhs: varE("i"), Rhs: varE("n")},
			Body: []Stmt{
				&IfStmt{Cond: varE("skip"), Then: []Stmt{&ContinueStmt{}}},
				&IncDecStmt{Target: &VarRef{Name: "i"}},
			},
		},
	}

	_, changed := forRecovery(list)

	assert.False(t, changed)
}

func messyTree() []Stmt {
	return []Stmt{
		&DeclStmt{Name: "x", Type: types.I64, Mutable: true},
		assignS("x", litI(0)),
		&IfStmt{
			Cond: varE("c"),
			Then: []Stmt{assignS("x", varE("a"))},
			Else: []Stmt{assignS("x", varE("b"))},
		},
		assignS("x", &BinaryExpr{Op: ir.BinAdd, Lhs: varE("x"), Rhs: litI(1)}),
		&ReturnStmt{Value: varE("x")},
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize(messyTree())
	printed := PrintStmts(once)

	twice := Normalize(once)

	assert.Equal(t, printed, PrintStmts(twice))
}
