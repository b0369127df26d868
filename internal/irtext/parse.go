// Package irtext parses the canonical textual dump emitted by ir.Print back
// into a module. The dump is the debug boundary between pipeline stages;
// Parse accepts exactly what the printer produces, so a print/parse cycle is
// the identity on well-formed modules.
package irtext

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"reforge/internal/errors"
	"reforge/internal/ir"
	"reforge/internal/types"
)

// ParseError is a positioned syntax error in textual IR input.
type ParseError struct {
	Filename string
	Line     int
	Column   int
	Message  string
	rendered string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s:%d:%d: %s", errors.ErrorParse, e.Filename, e.Line, e.Column, e.Message)
}

// Pretty returns the caret-annotated diagnostic for terminal display.
func (e *ParseError) Pretty() string {
	return e.rendered
}

// Parse reads a textual module dump and rebuilds the module. The result is
// verified before it is returned, so dangling values, bad branch arities, and
// misplaced terminators are rejected here rather than inside a later pass.
func Parse(filename, source string) (*ir.Module, error) {
	file, err := irParser.ParseString(filename, source)
	if err != nil {
		return nil, wrapParseError(filename, source, err)
	}
	m, err := buildModule(file)
	if err != nil {
		return nil, err
	}
	if err := ir.VerifyModule(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseFile reads and parses a dump from disk.
func ParseFile(path string) (*ir.Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, string(source))
}

func wrapParseError(filename, source string, err error) error {
	pe, ok := err.(participle.Error)
	if !ok {
		return err
	}
	pos := pe.Position()
	reporter := errors.NewSourceReporter(filename, source)
	return &ParseError{
		Filename: filename,
		Line:     pos.Line,
		Column:   pos.Column,
		Message:  pe.Message(),
		rendered: reporter.FormatParseError(pos.Line, pos.Column, pe.Message()),
	}
}

func buildModule(file *fileNode) (*ir.Module, error) {
	m := ir.NewModule(file.Name)
	for _, d := range file.Decls {
		switch {
		case d.Import != nil:
			m.Imports = append(m.Imports, &ir.Import{Name: d.Import.Name, From: d.Import.From})
		case d.Struct != nil:
			def := &ir.StructDef{Name: d.Struct.Name}
			for _, f := range d.Struct.Fields {
				ty, err := buildType("", f.Type)
				if err != nil {
					return nil, err
				}
				def.Fields = append(def.Fields, ir.FieldDef{Name: f.Name, Type: ty})
			}
			m.Structs = append(m.Structs, def)
		case d.Enum != nil:
			def := &ir.EnumDef{Name: d.Enum.Name}
			for _, v := range d.Enum.Variants {
				def.Variants = append(def.Variants, ir.EnumVariant{Name: v.Name, Value: v.Value})
			}
			m.Enums = append(m.Enums, def)
		case d.Class != nil:
			def := &ir.ClassDef{Name: d.Class.Name, Parent: d.Class.Parent}
			for _, member := range d.Class.Members {
				if member.Field != nil {
					ty, err := buildType("", member.Field.Type)
					if err != nil {
						return nil, err
					}
					def.Fields = append(def.Fields, ir.FieldDef{Name: member.Field.Name, Type: ty})
				} else {
					def.Methods = append(def.Methods, member.Method)
				}
			}
			m.Classes = append(m.Classes, def)
		case d.Global != nil:
			g := &ir.Global{Name: d.Global.Name, Visibility: ir.Private}
			if d.Global.Public {
				g.Visibility = ir.Public
			}
			ty, err := buildType("", d.Global.Type)
			if err != nil {
				return nil, err
			}
			g.Type = ty
			if d.Global.Init != nil {
				c := buildConst(d.Global.Init)
				g.Init = &c
			}
			m.Globals = append(m.Globals, g)
		case d.Func != nil:
			fn, err := buildFunction(d.Func)
			if err != nil {
				return nil, err
			}
			m.Functions = append(m.Functions, fn)
		}
	}
	return m, nil
}

func buildFunction(n *funcNode) (*ir.Function, error) {
	fn := &ir.Function{
		Coroutine:  n.Coro,
		Visibility: ir.Private,
		ValueNames: make(map[ir.ValueID]string),
	}
	if n.Public {
		fn.Visibility = ir.Public
	}
	last := n.Name[len(n.Name)-1]
	if len(n.Name) == 2 {
		fn.Namespace = n.Name[0]
	}
	if class, method, found := strings.Cut(last, "."); found {
		fn.Class, fn.Name = class, method
	} else {
		fn.Name = last
	}
	qualified := ir.QualifiedName(fn)

	for _, p := range n.Params {
		ty, err := buildType(qualified, p)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, ty)
	}
	ret, err := buildType(qualified, n.Ret)
	if err != nil {
		return nil, err
	}
	fn.Ret = ret

	// Block labels are arena indices, so the dump must list them in order.
	for i, bn := range n.Blocks {
		if label := blockNum(bn.Label); label != i {
			return nil, errors.NewInvariant(errors.ErrorParse, qualified,
				"%d:%d: block label %s out of order, expected block%d",
				bn.Pos.Line, bn.Pos.Column, bn.Label, i)
		}
	}
	if n.Entry != "" {
		entry := blockNum(n.Entry)
		if entry >= len(n.Blocks) {
			return nil, errors.NewInvariant(errors.ErrorParse, qualified,
				"%d:%d: entry marker references unknown %s", n.Pos.Line, n.Pos.Column, n.Entry)
		}
		fn.Entry = ir.BlockID(entry)
	}

	// First pass materializes blocks and their params so branch targets and
	// block arguments resolve while instructions are built.
	for _, bn := range n.Blocks {
		blk := &ir.Block{}
		for _, p := range bn.Params {
			v := ir.ValueID(valueNum(p.Value))
			ty, err := buildType(qualified, p.Type)
			if err != nil {
				return nil, err
			}
			defineValue(fn, v, ty)
			if p.Name != nil {
				fn.ValueNames[v] = *p.Name
			}
			blk.Params = append(blk.Params, v)
		}
		fn.Blocks = append(fn.Blocks, blk)
	}

	for bi, bn := range n.Blocks {
		for _, in := range bn.Insts {
			op, err := buildOp(qualified, in.Op)
			if err != nil {
				return nil, err
			}
			result := ir.NoValue
			if in.Result != nil {
				v := ir.ValueID(valueNum(in.Result.Value))
				ty, err := buildType(qualified, in.Result.Type)
				if err != nil {
					return nil, err
				}
				defineValue(fn, v, ty)
				if in.Result.Name != nil {
					fn.ValueNames[v] = *in.Result.Name
				}
				result = v
			}
			fn.Insts = append(fn.Insts, ir.Inst{Op: op, Result: result})
			fn.Blocks[bi].Insts = append(fn.Blocks[bi].Insts, ir.InstID(len(fn.Insts)-1))
		}
	}
	return fn, nil
}

// defineValue grows the value arena to cover an explicit handle from the
// dump. Handles skipped by the dump keep a dynamic placeholder type; the
// verifier still rejects reads of them since no instruction defines them.
func defineValue(fn *ir.Function, v ir.ValueID, t types.Type) {
	for len(fn.ValueTypes) <= int(v) {
		fn.ValueTypes = append(fn.ValueTypes, types.Dynamic)
	}
	fn.ValueTypes[v] = t
}

func buildOp(fnName string, n *opNode) (ir.Op, error) {
	switch {
	case n.Const != nil:
		return &ir.Const{Value: buildConst(n.Const.Value)}, nil
	case n.Binary != nil:
		return &ir.Binary{
			Op:  ir.BinOp(strings.TrimPrefix(n.Binary.Op, "bin.")),
			Lhs: valueID(n.Binary.Lhs),
			Rhs: valueID(n.Binary.Rhs),
		}, nil
	case n.Cmp != nil:
		return &ir.Cmp{
			Kind: ir.CmpKind(strings.TrimPrefix(n.Cmp.Kind, "cmp.")),
			Lhs:  valueID(n.Cmp.Lhs),
			Rhs:  valueID(n.Cmp.Rhs),
		}, nil
	case n.Unary != nil:
		return &ir.Unary{
			Op:      ir.UnOp(strings.TrimPrefix(n.Unary.Op, "un.")),
			Operand: valueID(n.Unary.Operand),
		}, nil
	case n.Br != nil:
		target, args := buildBlockRef(n.Br.Target)
		return &ir.Br{Target: target, Args: args}, nil
	case n.BrIf != nil:
		then, thenArgs := buildBlockRef(n.BrIf.Then)
		els, elseArgs := buildBlockRef(n.BrIf.Else)
		return &ir.BrIf{
			Cond: valueID(n.BrIf.Cond),
			Then: then, ThenArgs: thenArgs,
			Else: els, ElseArgs: elseArgs,
		}, nil
	case n.Switch != nil:
		op := &ir.Switch{Value: valueID(n.Switch.Value)}
		for _, c := range n.Switch.Cases {
			target, args := buildBlockRef(c.Target)
			op.Cases = append(op.Cases, ir.SwitchCase{
				Value:  buildConst(c.Value),
				Target: target,
				Args:   args,
			})
		}
		op.Default, op.DefaultArgs = buildBlockRef(n.Switch.Default)
		return op, nil
	case n.Return != nil:
		if n.Return.Value == nil {
			return &ir.Return{Value: ir.NoValue}, nil
		}
		return &ir.Return{Value: valueID(*n.Return.Value)}, nil
	case n.Alloc != nil:
		ty, err := buildType(fnName, n.Alloc.Ty)
		if err != nil {
			return nil, err
		}
		return &ir.Alloc{Ty: ty}, nil
	case n.Load != nil:
		return &ir.Load{Addr: valueID(n.Load.Addr)}, nil
	case n.Store != nil:
		return &ir.Store{Addr: valueID(n.Store.Addr), Value: valueID(n.Store.Value)}, nil
	case n.FieldGet != nil:
		return &ir.FieldGet{Object: valueID(n.FieldGet.Object), Field: n.FieldGet.Field}, nil
	case n.FieldSet != nil:
		return &ir.FieldSet{
			Object: valueID(n.FieldSet.Object),
			Field:  n.FieldSet.Field,
			Value:  valueID(n.FieldSet.Value),
		}, nil
	case n.IndexGet != nil:
		return &ir.Index{Object: valueID(n.IndexGet.Object), Key: valueID(n.IndexGet.Key)}, nil
	case n.IndexSet != nil:
		return &ir.IndexSet{
			Object: valueID(n.IndexSet.Object),
			Key:    valueID(n.IndexSet.Key),
			Value:  valueID(n.IndexSet.Value),
		}, nil
	case n.Call != nil:
		return &ir.Call{Callee: strings.Join(n.Call.Callee, "::"), Args: valueIDs(n.Call.Args)}, nil
	case n.CallInd != nil:
		return &ir.CallIndirect{Callee: valueID(n.CallInd.Callee), Args: valueIDs(n.CallInd.Args)}, nil
	case n.Syscall != nil:
		return &ir.SystemCall{
			System: n.Syscall.System,
			Method: n.Syscall.Method,
			Args:   valueIDs(n.Syscall.Args),
		}, nil
	case n.New != nil:
		return &ir.New{Class: n.New.Class, Args: valueIDs(n.New.Args)}, nil
	case n.Cast != nil:
		ty, err := buildType(fnName, n.Cast.Ty)
		if err != nil {
			return nil, err
		}
		return &ir.Cast{Value: valueID(n.Cast.Value), Ty: ty}, nil
	case n.TypeCheck != nil:
		ty, err := buildType(fnName, n.TypeCheck.Ty)
		if err != nil {
			return nil, err
		}
		return &ir.TypeCheck{Value: valueID(n.TypeCheck.Value), Ty: ty}, nil
	case n.Yield != nil:
		return &ir.Yield{Value: valueID(n.Yield.Value)}, nil
	case n.CoroCreate != nil:
		return &ir.CoroCreate{
			Func: strings.Join(n.CoroCreate.Func, "::"),
			Args: valueIDs(n.CoroCreate.Args),
		}, nil
	case n.CoroResume != nil:
		op := &ir.CoroResume{Coro: valueID(n.CoroResume.Coro), Arg: ir.NoValue}
		if n.CoroResume.Arg != nil {
			op.Arg = valueID(*n.CoroResume.Arg)
		}
		return op, nil
	case n.Array != nil:
		return &ir.ArrayInit{Elems: valueIDs(n.Array.Elems)}, nil
	case n.Tuple != nil:
		return &ir.TupleInit{Elems: valueIDs(n.Tuple.Elems)}, nil
	case n.Struct != nil:
		op := &ir.StructInit{Name: n.Struct.Name}
		for _, f := range n.Struct.Fields {
			op.Fields = append(op.Fields, ir.FieldInit{Name: f.Name, Value: valueID(f.Value)})
		}
		return op, nil
	case n.GlobalRef != nil:
		return &ir.GlobalRef{Name: n.GlobalRef.Name}, nil
	case n.GlobalSet != nil:
		return &ir.GlobalSet{Name: n.GlobalSet.Name, Value: valueID(n.GlobalSet.Value)}, nil
	case n.Copy != nil:
		return &ir.Copy{Value: valueID(n.Copy.Value)}, nil
	}
	return nil, errors.NewInvariant(errors.ErrorParse, fnName, "unrecognized operation")
}

func buildType(fnName string, n *typeNode) (types.Type, error) {
	switch {
	case n.Class != nil:
		return types.Class(*n.Class), nil
	case n.Array != nil:
		elem, err := buildType(fnName, n.Array)
		if err != nil {
			return nil, err
		}
		return types.Array(elem), nil
	case n.Union != nil:
		members := make([]types.Type, len(n.Union))
		for i, m := range n.Union {
			ty, err := buildType(fnName, m)
			if err != nil {
				return nil, err
			}
			members[i] = ty
		}
		return types.Union(members...), nil
	case n.Func != nil:
		params := make([]types.Type, len(n.Func.Params))
		for i, p := range n.Func.Params {
			ty, err := buildType(fnName, p)
			if err != nil {
				return nil, err
			}
			params[i] = ty
		}
		ret, err := buildType(fnName, n.Func.Ret)
		if err != nil {
			return nil, err
		}
		return types.Func(params, ret), nil
	}
	switch *n.Name {
	case "dyn":
		return types.Dynamic, nil
	case "void":
		return types.Void, nil
	case "bool":
		return types.Bool, nil
	case "i8":
		return types.I8, nil
	case "i16":
		return types.I16, nil
	case "i32":
		return types.I32, nil
	case "i64":
		return types.I64, nil
	case "f32":
		return types.F32, nil
	case "f64":
		return types.F64, nil
	case "string":
		return types.String, nil
	}
	return nil, errors.NewInvariant(errors.ErrorUnknownType, fnName,
		"%d:%d: unknown type %q", n.Pos.Line, n.Pos.Column, *n.Name)
}

func buildConst(n *constNode) ir.Constant {
	switch {
	case n.Float != nil:
		return ir.FloatConst(*n.Float)
	case n.Int != nil:
		return ir.IntConst(*n.Int)
	case n.Str != nil:
		return ir.StringConst(*n.Str)
	case n.Bool != nil:
		return ir.BoolConst(*n.Bool == "true")
	}
	return ir.NilConst()
}

func buildBlockRef(n *blockRefNode) (ir.BlockID, []ir.ValueID) {
	return ir.BlockID(blockNum(n.Label)), valueIDs(n.Args)
}

func valueID(token string) ir.ValueID {
	return ir.ValueID(valueNum(token))
}

func valueIDs(tokens []string) []ir.ValueID {
	if len(tokens) == 0 {
		return nil
	}
	ids := make([]ir.ValueID, len(tokens))
	for i, t := range tokens {
		ids[i] = valueID(t)
	}
	return ids
}

func valueNum(token string) int {
	n, _ := strconv.Atoi(token[1:])
	return n
}

func blockNum(token string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(token, "block"))
	return n
}
