package passes

import (
	"reforge/internal/ir"
)

// DeadCodeElimination removes pure instructions whose results are never
// used. Removal can free up operands of other dead instructions, so it
// iterates within one Apply until nothing else dies.
type DeadCodeElimination struct{}

func (DeadCodeElimination) Name() string { return "dead-code-elimination" }

func (DeadCodeElimination) Apply(mod *ir.Module) (bool, error) {
	changed := false
	for _, fn := range mod.Functions {
		for removeDeadInsts(fn) {
			changed = true
		}
	}
	return changed, nil
}

func removeDeadInsts(fn *ir.Function) bool {
	uses := fn.UseCounts()
	changed := false

	for _, blk := range fn.Blocks {
		kept := blk.Insts[:0]
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			if inst.Result != ir.NoValue && uses[inst.Result] == 0 && ir.Pure(inst.Op) {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		blk.Insts = kept
	}
	return changed
}
