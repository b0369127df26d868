package passes

import (
	"reforge/internal/ir"
)

// ConstantFolding evaluates arithmetic, comparisons and unary operations
// over constant operands, and collapses conditional branches on constant
// conditions. Integer arithmetic wraps at 64 bits; floats follow IEEE 754
// including the division-by-zero infinities. Integer division or remainder
// by zero is left in place for the runtime to trap.
type ConstantFolding struct{}

func (ConstantFolding) Name() string { return "constant-folding" }

func (ConstantFolding) Apply(mod *ir.Module) (bool, error) {
	changed := false
	for _, fn := range mod.Functions {
		if foldFunction(fn) {
			changed = true
		}
	}
	return changed, nil
}

func foldFunction(fn *ir.Function) bool {
	consts := constantsOf(fn)
	changed := false

	for bi, blk := range fn.Blocks {
		for pos := range blk.Insts {
			inst := fn.Inst(blk.Insts[pos])
			switch o := inst.Op.(type) {
			case *ir.Binary:
				lhs, lok := consts[o.Lhs]
				rhs, rok := consts[o.Rhs]
				if !lok || !rok {
					continue
				}
				if folded, ok := foldBinary(o.Op, lhs, rhs); ok {
					fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Const{Value: folded})
					consts[inst.Result] = folded
					changed = true
				}

			case *ir.Cmp:
				lhs, lok := consts[o.Lhs]
				rhs, rok := consts[o.Rhs]
				if !lok || !rok {
					continue
				}
				if folded, ok := foldCmp(o.Kind, lhs, rhs); ok {
					fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Const{Value: folded})
					consts[inst.Result] = folded
					changed = true
				}

			case *ir.Unary:
				operand, ok := consts[o.Operand]
				if !ok {
					continue
				}
				if folded, ok := foldUnary(o.Op, operand); ok {
					fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Const{Value: folded})
					consts[inst.Result] = folded
					changed = true
				}

			case *ir.BrIf:
				cond, ok := consts[o.Cond]
				if !ok || cond.Kind != ir.ConstBool {
					continue
				}
				target, args := o.Then, o.ThenArgs
				if !cond.Bool {
					target, args = o.Else, o.ElseArgs
				}
				fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Br{Target: target, Args: args})
				changed = true

			case *ir.Switch:
				value, ok := consts[o.Value]
				if !ok {
					continue
				}
				target, args := o.Default, o.DefaultArgs
				for _, c := range o.Cases {
					if c.Value.Equal(value) {
						target, args = c.Target, c.Args
						break
					}
				}
				fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Br{Target: target, Args: args})
				changed = true
			}
		}
	}
	return changed
}

// constantsOf maps every value defined by a const instruction to its
// constant
func constantsOf(fn *ir.Function) map[ir.ValueID]ir.Constant {
	consts := make(map[ir.ValueID]ir.Constant)
	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			if c, ok := inst.Op.(*ir.Const); ok {
				consts[inst.Result] = c.Value
			}
		}
	}
	return consts
}

func foldBinary(op ir.BinOp, lhs, rhs ir.Constant) (ir.Constant, bool) {
	// string concatenation is the only non-numeric fold
	if op == ir.BinAdd && lhs.Kind == ir.ConstString && rhs.Kind == ir.ConstString {
		return ir.StringConst(lhs.Str + rhs.Str), true
	}
	if op == ir.BinAnd || op == ir.BinOr {
		if lhs.Kind != ir.ConstBool || rhs.Kind != ir.ConstBool {
			return ir.Constant{}, false
		}
		if op == ir.BinAnd {
			return ir.BoolConst(lhs.Bool && rhs.Bool), true
		}
		return ir.BoolConst(lhs.Bool || rhs.Bool), true
	}

	if lhs.Kind == ir.ConstInt && rhs.Kind == ir.ConstInt {
		return foldIntBinary(op, lhs.Int, rhs.Int)
	}
	if isNumeric(lhs) && isNumeric(rhs) {
		return foldFloatBinary(op, asFloat(lhs), asFloat(rhs))
	}
	return ir.Constant{}, false
}

func foldIntBinary(op ir.BinOp, a, b int64) (ir.Constant, bool) {
	switch op {
	case ir.BinAdd:
		return ir.IntConst(a + b), true
	case ir.BinSub:
		return ir.IntConst(a - b), true
	case ir.BinMul:
		return ir.IntConst(a * b), true
	case ir.BinDiv:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.IntConst(a / b), true
	case ir.BinRem:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.IntConst(a % b), true
	case ir.BinBitAnd:
		return ir.IntConst(a & b), true
	case ir.BinBitOr:
		return ir.IntConst(a | b), true
	case ir.BinBitXor:
		return ir.IntConst(a ^ b), true
	case ir.BinShl:
		return ir.IntConst(a << (uint64(b) & 63)), true
	case ir.BinShr:
		return ir.IntConst(a >> (uint64(b) & 63)), true
	}
	return ir.Constant{}, false
}

func foldFloatBinary(op ir.BinOp, a, b float64) (ir.Constant, bool) {
	switch op {
	case ir.BinAdd:
		return ir.FloatConst(a + b), true
	case ir.BinSub:
		return ir.FloatConst(a - b), true
	case ir.BinMul:
		return ir.FloatConst(a * b), true
	case ir.BinDiv:
		return ir.FloatConst(a / b), true
	}
	return ir.Constant{}, false
}

func foldCmp(kind ir.CmpKind, lhs, rhs ir.Constant) (ir.Constant, bool) {
	if lhs.Kind == ir.ConstString && rhs.Kind == ir.ConstString {
		switch kind {
		case ir.CmpEq:
			return ir.BoolConst(lhs.Str == rhs.Str), true
		case ir.CmpNe:
			return ir.BoolConst(lhs.Str != rhs.Str), true
		}
		return ir.Constant{}, false
	}
	if lhs.Kind == ir.ConstBool && rhs.Kind == ir.ConstBool {
		switch kind {
		case ir.CmpEq:
			return ir.BoolConst(lhs.Bool == rhs.Bool), true
		case ir.CmpNe:
			return ir.BoolConst(lhs.Bool != rhs.Bool), true
		}
		return ir.Constant{}, false
	}
	if !isNumeric(lhs) || !isNumeric(rhs) {
		return ir.Constant{}, false
	}
	a, b := asFloat(lhs), asFloat(rhs)
	if lhs.Kind == ir.ConstInt && rhs.Kind == ir.ConstInt {
		switch kind {
		case ir.CmpEq:
			return ir.BoolConst(lhs.Int == rhs.Int), true
		case ir.CmpNe:
			return ir.BoolConst(lhs.Int != rhs.Int), true
		case ir.CmpLt:
			return ir.BoolConst(lhs.Int < rhs.Int), true
		case ir.CmpLe:
			return ir.BoolConst(lhs.Int <= rhs.Int), true
		case ir.CmpGt:
			return ir.BoolConst(lhs.Int > rhs.Int), true
		case ir.CmpGe:
			return ir.BoolConst(lhs.Int >= rhs.Int), true
		}
	}
	switch kind {
	case ir.CmpEq:
		return ir.BoolConst(a == b), true
	case ir.CmpNe:
		return ir.BoolConst(a != b), true
	case ir.CmpLt:
		return ir.BoolConst(a < b), true
	case ir.CmpLe:
		return ir.BoolConst(a <= b), true
	case ir.CmpGt:
		return ir.BoolConst(a > b), true
	case ir.CmpGe:
		return ir.BoolConst(a >= b), true
	}
	return ir.Constant{}, false
}

func foldUnary(op ir.UnOp, c ir.Constant) (ir.Constant, bool) {
	switch op {
	case ir.UnNeg:
		switch c.Kind {
		case ir.ConstInt:
			return ir.IntConst(-c.Int), true
		case ir.ConstFloat:
			return ir.FloatConst(-c.Float), true
		}
	case ir.UnNot:
		if c.Kind == ir.ConstBool {
			return ir.BoolConst(!c.Bool), true
		}
	case ir.UnBitNot:
		if c.Kind == ir.ConstInt {
			return ir.IntConst(^c.Int), true
		}
	}
	return ir.Constant{}, false
}

func isNumeric(c ir.Constant) bool {
	return c.Kind == ir.ConstInt || c.Kind == ir.ConstFloat
}

func asFloat(c ir.Constant) float64 {
	if c.Kind == ir.ConstInt {
		return float64(c.Int)
	}
	return c.Float
}
