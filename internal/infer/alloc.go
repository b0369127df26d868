package infer

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// Allocation refinement: a stack allocation that receives stores of one
// agreed concrete type takes that type, even when each individual load/store
// chain could not prove it. This is the single largest source of avoidable
// Dynamic fallout, so it runs on every engine iteration. Stores that
// genuinely disagree widen the cell to a bounded union (collapsing to
// Dynamic past the union size limit).
func refineAllocs(fn *ir.Function) bool {
	stored := make(map[ir.ValueID][]types.Type)
	allocs := make(map[ir.ValueID]bool)

	for _, blk := range fn.Blocks {
		for _, instID := range blk.Insts {
			inst := fn.Inst(instID)
			switch o := inst.Op.(type) {
			case *ir.Alloc:
				allocs[inst.Result] = true
			case *ir.Store:
				stored[o.Addr] = append(stored[o.Addr], fn.TypeOf(o.Value))
			}
		}
	}

	changed := false
	for a := range allocs {
		if !types.IsDynamic(fn.TypeOf(a)) {
			continue
		}
		ts := stored[a]
		if len(ts) == 0 {
			continue
		}
		allConcrete := true
		var merged types.Type = types.Dynamic
		for _, t := range ts {
			if !types.IsConcrete(t) {
				allConcrete = false
				break
			}
			merged = types.Merge(merged, t)
		}
		if allConcrete && types.IsConcrete(merged) {
			fn.SetType(a, merged)
			changed = true
		}
	}
	return changed
}
