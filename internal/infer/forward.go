package infer

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// Forward dataflow: each instruction's result type is a pure function of its
// operands' current types and the operation. Types only move from Dynamic to
// concrete, never back, so the fixpoint terminates within the value count.

// forwardFunction runs one forward sweep over a function, refining result
// types and block parameters. Frontend-provided concrete types are
// authoritative and never re-derived.
func (e *Engine) forwardFunction(fn *ir.Function) bool {
	changed := false
	refine := func(v ir.ValueID, t types.Type) {
		if v == ir.NoValue || !types.IsConcrete(t) {
			return
		}
		if types.IsDynamic(fn.TypeOf(v)) {
			fn.SetType(v, t)
			changed = true
		}
	}

	incoming := make(map[ir.ValueID][]types.Type)
	for _, blk := range fn.Blocks {
		for _, instID := range blk.Insts {
			inst := fn.Inst(instID)
			refine(inst.Result, e.resultType(fn, inst.Op))

			for _, target := range ir.Successors(inst.Op) {
				params := fn.Blocks[target].Params
				args := ir.BranchArgs(inst.Op, target)
				for i, arg := range args {
					incoming[params[i]] = append(incoming[params[i]], fn.TypeOf(arg))
				}
			}
		}
	}

	// block parameters refine only once every incoming edge is concrete;
	// disagreeing edges widen to a documented union rather than Dynamic
	for param, ts := range incoming {
		var merged types.Type = types.Dynamic
		allConcrete := true
		for _, t := range ts {
			if !types.IsConcrete(t) {
				allConcrete = false
				break
			}
			merged = types.Merge(merged, t)
		}
		if allConcrete {
			refine(param, merged)
		}
	}
	return changed
}

// resultType computes the type an operation produces from its operands
func (e *Engine) resultType(fn *ir.Function, op ir.Op) types.Type {
	switch o := op.(type) {
	case *ir.Const:
		return o.Value.Type()

	case *ir.Binary:
		return binaryResult(o.Op, fn.TypeOf(o.Lhs), fn.TypeOf(o.Rhs))

	case *ir.Cmp:
		return types.Bool

	case *ir.Unary:
		switch o.Op {
		case ir.UnNot:
			return types.Bool
		default:
			return fn.TypeOf(o.Operand)
		}

	case *ir.Alloc:
		return o.Ty

	case *ir.Load:
		// the allocation value carries the cell's content type
		return fn.TypeOf(o.Addr)

	case *ir.FieldGet:
		if cls, ok := fn.TypeOf(o.Object).(*types.ClassType); ok {
			return e.mod.FieldType(cls.Name, o.Field)
		}
		return types.Dynamic

	case *ir.Index:
		if arr, ok := fn.TypeOf(o.Object).(*types.ArrayType); ok {
			return arr.Elem
		}
		return types.Dynamic

	case *ir.Call:
		return e.idx.ReturnType(o.Callee)

	case *ir.CallIndirect:
		if ft, ok := fn.TypeOf(o.Callee).(*types.FuncType); ok {
			return ft.Ret
		}
		return types.Dynamic

	case *ir.SystemCall:
		// host/engine boundary: opaque until emission
		return types.Dynamic

	case *ir.New:
		return types.Class(o.Class)

	case *ir.Cast:
		return o.Ty

	case *ir.TypeCheck:
		return types.Bool

	case *ir.ArrayInit:
		var elem types.Type = types.Dynamic
		for _, v := range o.Elems {
			elem = types.Merge(elem, fn.TypeOf(v))
		}
		if types.IsConcrete(elem) {
			return types.Array(elem)
		}
		return types.Array(types.Dynamic)

	case *ir.StructInit:
		return types.Class(o.Name)

	case *ir.GlobalRef:
		if g := e.mod.Global(o.Name); g != nil && g.Type != nil {
			return g.Type
		}
		return types.Dynamic

	case *ir.Copy:
		return fn.TypeOf(o.Value)

	default:
		// yield, coroutine ops, tuples: nothing to conclude locally
		return types.Dynamic
	}
}

func binaryResult(op ir.BinOp, lhs, rhs types.Type) types.Type {
	switch op {
	case ir.BinAnd, ir.BinOr:
		return types.Bool
	case ir.BinBitAnd, ir.BinBitOr, ir.BinBitXor, ir.BinShl, ir.BinShr:
		if _, ok := lhs.(*types.IntType); ok {
			return lhs
		}
		return types.Dynamic
	}

	// arithmetic: string concatenation wins on add, otherwise numeric
	// promotion int -> float
	if op == ir.BinAdd {
		if _, ok := lhs.(*types.StringType); ok {
			return types.String
		}
		if _, ok := rhs.(*types.StringType); ok {
			return types.String
		}
	}
	_, lInt := lhs.(*types.IntType)
	_, rInt := rhs.(*types.IntType)
	_, lFloat := lhs.(*types.FloatType)
	_, rFloat := rhs.(*types.FloatType)
	switch {
	case lInt && rInt:
		return lhs
	case lFloat && rFloat:
		return lhs
	case lFloat && rInt:
		return lhs
	case lInt && rFloat:
		return rhs
	}
	return types.Dynamic
}
