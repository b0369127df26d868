package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reforge/internal/errors"
	"reforge/internal/types"
)

// buildMax constructs max(a, b) as a two-armed diamond joining at a block
// with one parameter.
func buildMax(t *testing.T) *Function {
	t.Helper()

	b := NewFunctionBuilder("max", []types.Type{types.I64, types.I64}, types.I64)
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join, joinParams := b.CreateBlockWithParams(types.I64)

	cond := b.Cmp(CmpGe, b.Param(0), b.Param(1))
	b.BrIf(cond, thenBlk, nil, elseBlk, nil)

	b.SwitchToBlock(thenBlk)
	b.Br(join, b.Param(0))

	b.SwitchToBlock(elseBlk)
	b.Br(join, b.Param(1))

	b.SwitchToBlock(join)
	b.Ret(joinParams[0])

	return b.Build()
}

func TestBuilderProducesValidFunction(t *testing.T) {
	fn := buildMax(t)

	require.NoError(t, Verify(fn))
	assert.Len(t, fn.Blocks, 4)
	assert.Equal(t, BlockID(0), fn.Entry)
	assert.Len(t, fn.Blocks[fn.Entry].Params, 2)
}

func TestBranchArityMismatchPanics(t *testing.T) {
	b := NewFunctionBuilder("bad", nil, types.Void)
	join, _ := b.CreateBlockWithParams(types.I64)

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a construction-time panic")
		inv, ok := r.(*errors.InvariantError)
		require.True(t, ok, "panic payload should be an InvariantError")
		assert.Equal(t, errors.ErrorBranchArity, inv.Code)
	}()

	b.Br(join) // join wants one argument
}

func TestBranchToUnknownBlockPanics(t *testing.T) {
	b := NewFunctionBuilder("bad", nil, types.Void)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		inv, ok := r.(*errors.InvariantError)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorUnknownBlock, inv.Code)
	}()

	b.Br(BlockID(7))
}

func TestVerifyCatchesMissingTerminator(t *testing.T) {
	b := NewFunctionBuilder("open", nil, types.Void)
	b.ConstInt(1)
	fn := b.Build()

	err := Verify(fn)
	require.Error(t, err)
	inv := err.(*errors.InvariantError)
	assert.Equal(t, errors.ErrorBadTerminator, inv.Code)
}

func TestVerifyCatchesDanglingValue(t *testing.T) {
	b := NewFunctionBuilder("dangle", nil, types.Void)
	fn := b.Build()
	// bypass the builder to fabricate a reference to a value that was
	// never defined
	bogus := fn.NewValue(types.I64)
	fn.Insts = append(fn.Insts, Inst{Op: &Return{Value: bogus + 1}, Result: NoValue})
	fn.Blocks[fn.Entry].Insts = append(fn.Blocks[fn.Entry].Insts, InstID(len(fn.Insts)-1))

	err := Verify(fn)
	require.Error(t, err)
	inv := err.(*errors.InvariantError)
	assert.Equal(t, errors.ErrorDanglingValue, inv.Code)
}

func TestUseCountsIncludeBranchArgs(t *testing.T) {
	fn := buildMax(t)

	uses := fn.UseCounts()
	// each entry param is used once by the compare and once as a branch arg
	entry := fn.Blocks[fn.Entry]
	assert.Equal(t, 2, uses[entry.Params[0]])
	assert.Equal(t, 2, uses[entry.Params[1]])
}

func TestReplaceUsesRewritesBranchArgs(t *testing.T) {
	fn := buildMax(t)
	entry := fn.Blocks[fn.Entry]

	fn.ReplaceUses(entry.Params[0], entry.Params[1])

	uses := fn.UseCounts()
	assert.Equal(t, 0, uses[entry.Params[0]])
	assert.Equal(t, 4, uses[entry.Params[1]])
	require.NoError(t, Verify(fn))
}

func TestCompactInstsDropsReplacedInstructions(t *testing.T) {
	fn := buildMax(t)
	before := len(fn.Insts)

	// replace the compare with a constant true, stranding the old
	// instruction in the arena
	fn.ReplaceOp(fn.Entry, 0, &Const{Value: BoolConst(true)})
	assert.Equal(t, before+1, len(fn.Insts))

	fn.CompactInsts()
	assert.Equal(t, before, len(fn.Insts))
	require.NoError(t, Verify(fn))
}

func TestConstantEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Constant
		want bool
	}{
		{"equal ints", IntConst(5), IntConst(5), true},
		{"different ints", IntConst(5), IntConst(6), false},
		{"int vs float", IntConst(5), FloatConst(5), false},
		{"equal strings", StringConst("x"), StringConst("x"), true},
		{"equal bools", BoolConst(true), BoolConst(true), true},
		{"nil vs nil", NilConst(), NilConst(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestPrinterShowsBlockParamsAndTypes(t *testing.T) {
	fn := buildMax(t)
	out := PrintFunction(fn)

	assert.Contains(t, out, "func @max(i64, i64) -> i64 {")
	assert.Contains(t, out, "block0(v0: i64, v1: i64):")
	assert.Contains(t, out, "cmp.ge v0, v1")
	assert.Contains(t, out, "br_if")
	assert.Contains(t, out, "block3(")
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "}"))
}

func TestPrinterShowsValueNames(t *testing.T) {
	b := NewFunctionBuilder("named", nil, types.I64)
	v := b.Name(b.ConstInt(3), "count")
	b.Ret(v)
	out := PrintFunction(b.Build())

	assert.Contains(t, out, `v0 "count": i64 = const 3`)
}

func TestQualifiedName(t *testing.T) {
	fn := NewFunction("update", nil, types.Void)
	fn.Namespace = "game"
	fn.Class = "Sprite"

	assert.Equal(t, "game::Sprite.update", QualifiedName(fn))
}

func TestFieldTypeWalksClassParents(t *testing.T) {
	m := NewModuleBuilder("demo").
		DefineClass(&ClassDef{Name: "Node", Fields: []FieldDef{{Name: "x", Type: types.F64}}}).
		DefineClass(&ClassDef{Name: "Sprite", Parent: "Node"}).
		Build()

	assert.Equal(t, types.F64, m.FieldType("Sprite", "x"))
	assert.True(t, types.IsDynamic(m.FieldType("Sprite", "missing")))
}

func TestEffectClassification(t *testing.T) {
	assert.True(t, Pure(&Binary{Op: BinAdd}))
	assert.True(t, Pure(&Load{}))
	assert.False(t, Pure(&Store{}))
	assert.False(t, Pure(&Call{}))
	assert.False(t, Pure(&SystemCall{}))
	assert.False(t, Pure(&Yield{}))

	assert.True(t, Contextual(&GlobalRef{}))
	assert.True(t, Contextual(&Load{}))
	assert.False(t, Contextual(&Const{}))
}
