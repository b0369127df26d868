package irtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reforge/internal/errors"
	"reforge/internal/ir"
	"reforge/internal/types"
)

func classifyFunc() *ir.Function {
	b := ir.NewFunctionBuilder("classify", []types.Type{types.I64}, types.String)
	b.Name(b.Param(0), "n")
	merge, mergeVals := b.CreateBlockWithParams(types.String)
	lo := b.CreateBlock()
	hi := b.CreateBlock()

	ten := b.ConstInt(10)
	cond := b.Cmp(ir.CmpLt, b.Param(0), ten)
	b.BrIf(cond, lo, nil, hi, nil)

	b.SwitchToBlock(lo)
	b.Br(merge, b.ConstString("small"))

	b.SwitchToBlock(hi)
	b.Br(merge, b.ConstString("large"))

	b.SwitchToBlock(merge)
	b.SystemCall("io", "print", mergeVals[0])
	b.Ret(mergeVals[0])

	fn := b.Build()
	fn.Namespace = "util"
	fn.Visibility = ir.Public
	return fn
}

func tickFunc() *ir.Function {
	b := ir.NewFunctionBuilder("tick", []types.Type{types.I64}, types.I64)
	cell := b.Alloc(types.I64)
	b.Store(cell, b.Param(0))
	next := b.Add(b.Load(cell), b.ConstInt(1))
	b.Yield(next)
	b.GlobalSet("ticks", next)
	b.Ret(next)

	fn := b.Build()
	fn.Namespace = "util"
	fn.Coroutine = true
	return fn
}

func scaleMethod() *ir.Function {
	b := ir.NewFunctionBuilder("scale", []types.Type{types.Dynamic}, types.Dynamic)
	caseBlk := b.CreateBlock()
	defBlk := b.CreateBlock()

	obj := b.New("Point", b.ConstInt(1), b.ConstInt(2))
	x := b.FieldGet(obj, "x")
	neg := b.Unary(ir.UnNeg, x)
	arr := b.ArrayInit(x, neg)
	idx := b.Index(arr, b.ConstInt(0))
	b.StructInit("Pair", ir.FieldInit{Name: "a", Value: idx})
	tup := b.TupleInit(x, neg)
	b.TypeCheck(b.GlobalRef("origin"), types.Class("Point"))
	b.ConstFloat(2.5)
	b.ConstBool(true)
	b.ConstNil()
	co := b.CoroCreate("util::tick", x)
	resumed := b.CoroResume(co, ir.NoValue)
	cp := b.Copy(resumed)
	b.Cast(idx, types.F64)
	b.Switch(b.ConstInt(2), []ir.SwitchCase{
		{Value: ir.IntConst(2), Target: caseBlk},
	}, defBlk, nil)

	b.SwitchToBlock(caseBlk)
	b.IndexSet(arr, b.ConstInt(0), neg)
	b.FieldSet(obj, "y", neg)
	b.Call("Point.scale", obj)
	b.Ret(b.CallIndirect(cp, x))

	b.SwitchToBlock(defBlk)
	b.Ret(tup)

	fn := b.Build()
	fn.Class = "Point"
	return fn
}

func sampleModule() *ir.Module {
	ticksInit := ir.IntConst(0)
	return ir.NewModuleBuilder("geometry").
		AddImport("tick", "clock").
		DefineGlobal(&ir.Global{Name: "origin", Type: types.Class("Point"), Visibility: ir.Private}).
		DefineGlobal(&ir.Global{Name: "ticks", Type: types.I64, Visibility: ir.Public, Init: &ticksInit}).
		DefineStruct(&ir.StructDef{Name: "Pair", Fields: []ir.FieldDef{
			{Name: "a", Type: types.Dynamic},
			{Name: "b", Type: types.Union(types.I64, types.String)},
			{Name: "c", Type: types.Array(types.F64)},
			{Name: "d", Type: types.Func([]types.Type{types.Bool}, types.Void)},
		}}).
		DefineEnum(&ir.EnumDef{Name: "Axis", Variants: []ir.EnumVariant{
			{Name: "X", Value: 0},
			{Name: "Y", Value: 1},
		}}).
		DefineClass(&ir.ClassDef{
			Name:    "Point",
			Parent:  "Shape",
			Fields:  []ir.FieldDef{{Name: "x", Type: types.I64}},
			Methods: []string{"scale"},
		}).
		AddFunction(classifyFunc()).
		AddFunction(tickFunc()).
		AddFunction(scaleMethod()).
		Build()
}

func TestPrintParseRoundTrip(t *testing.T) {
	mod := sampleModule()
	dump := ir.Print(mod)

	parsed, err := Parse("geometry.rir", dump)
	require.NoError(t, err)
	require.Equal(t, dump, ir.Print(parsed))

	require.Len(t, parsed.Functions, 3)
	require.Equal(t, "util", parsed.Functions[0].Namespace)
	require.Equal(t, ir.Public, parsed.Functions[0].Visibility)
	require.Equal(t, "n", parsed.Functions[0].NameOf(0))
	require.True(t, parsed.Functions[1].Coroutine)
	require.Equal(t, "Point", parsed.Functions[2].Class)
	require.NotNil(t, parsed.Globals[1].Init)
	require.Equal(t, "Shape", parsed.Classes[0].Parent)
	require.Equal(t, "clock", parsed.Imports[0].From)
}

func TestEntryMarkerRoundTrip(t *testing.T) {
	src := `module m

func @spin() -> void {
entry block1
block0:
  br block1
block1:
  return
}
`
	parsed, err := Parse("spin.rir", src)
	require.NoError(t, err)
	require.Equal(t, ir.BlockID(1), parsed.Functions[0].Entry)
	require.Contains(t, ir.Print(parsed), "entry block1")
}

func TestCommentsAndSpacingIgnored(t *testing.T) {
	src := "module m // title\n" +
		"// identity over i64\n" +
		"func @id( i64 ) -> i64 {\n" +
		"block0( v0 : i64 ):\n" +
		"\treturn   v0\n" +
		"}\n"
	parsed, err := Parse("id.rir", src)
	require.NoError(t, err)

	canonical := ir.Print(parsed)
	reparsed, err := Parse("id.rir", canonical)
	require.NoError(t, err)
	require.Equal(t, canonical, ir.Print(reparsed))
}

func TestParseErrorCarriesPosition(t *testing.T) {
	src := "module m\n\nfunc @f( -> void {\n}\n"
	_, err := Parse("bad.rir", src)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "bad.rir", perr.Filename)
	require.Equal(t, 3, perr.Line)
	require.NotEmpty(t, perr.Pretty())
	require.Contains(t, perr.Error(), errors.ErrorParse)
}

func TestUnknownTypeRejected(t *testing.T) {
	src := "module m\n\nglobal g: i128\n"
	_, err := Parse("g.rir", src)

	var ierr *errors.InvariantError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, errors.ErrorUnknownType, ierr.Code)
	require.Contains(t, ierr.Message, "i128")
}

func TestBlockLabelsMustBeSequential(t *testing.T) {
	src := `module m

func @f() -> void {
block1:
  return
}
`
	_, err := Parse("f.rir", src)

	var ierr *errors.InvariantError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, errors.ErrorParse, ierr.Code)
	require.Contains(t, ierr.Message, "out of order")
}

func TestParsedModuleIsVerified(t *testing.T) {
	src := `module m

func @f() -> i64 {
block0:
  return v7
}
`
	_, err := Parse("f.rir", src)

	var ierr *errors.InvariantError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, errors.ErrorDanglingValue, ierr.Code)
}

func TestQualifiedCalleesRoundTrip(t *testing.T) {
	src := `module m

func @caller() -> dyn {
block0:
  v0: dyn = call @util::Point.scale(v0)
  return v0
}
`
	// v0 as its own argument keeps the value defined; only the callee
	// spelling matters here.
	parsed, err := Parse("c.rir", src)
	require.NoError(t, err)

	inst := parsed.Functions[0].Inst(0)
	call, ok := inst.Op.(*ir.Call)
	require.True(t, ok)
	require.Equal(t, "util::Point.scale", call.Callee)
	require.True(t, strings.Contains(ir.Print(parsed), "call @util::Point.scale(v0)"))
}
