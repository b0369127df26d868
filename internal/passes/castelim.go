package passes

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// RedundantCastElimination drops casts whose operand already has the target
// type. Type inference runs first, so a cast inserted defensively by the
// frontend often becomes provably redundant. The cast is rewritten to a
// copy and its result forwarded; dead-code elimination collects the rest.
type RedundantCastElimination struct{}

func (RedundantCastElimination) Name() string { return "redundant-cast-elimination" }

func (RedundantCastElimination) Apply(mod *ir.Module) (bool, error) {
	changed := false
	for _, fn := range mod.Functions {
		for bi, blk := range fn.Blocks {
			for pos := range blk.Insts {
				inst := fn.Inst(blk.Insts[pos])
				cast, ok := inst.Op.(*ir.Cast)
				if !ok {
					continue
				}
				from := fn.TypeOf(cast.Value)
				if !types.IsConcrete(from) || !from.Equal(cast.Ty) {
					continue
				}
				fn.ReplaceUses(inst.Result, cast.Value)
				fn.ReplaceOp(ir.BlockID(bi), pos, &ir.Copy{Value: cast.Value})
				changed = true
			}
		}
	}
	return changed, nil
}
