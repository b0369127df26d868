package passes

import (
	"reforge/internal/ir"
)

// CFGSimplify cleans the control-flow graph: forwarder blocks are threaded
// through, straight-line block pairs are merged, and unreachable blocks are
// removed. Block handles are invalidated by the removal step, so this pass
// never runs concurrently with anything holding BlockIDs.
type CFGSimplify struct{}

func (CFGSimplify) Name() string { return "cfg-simplify" }

func (CFGSimplify) Apply(mod *ir.Module) (bool, error) {
	changed := false
	for _, fn := range mod.Functions {
		// each step opens opportunities for the others, and all three only
		// shrink the graph, so looping terminates
		for {
			round := threadJumps(fn)
			if mergeLinearBlocks(fn) {
				round = true
			}
			if removeUnreachable(fn) {
				round = true
			}
			if !round {
				break
			}
			changed = true
		}
	}
	return changed, nil
}

// threadJumps redirects branches through blocks that only forward to
// another block
func threadJumps(fn *ir.Function) bool {
	changed := false
	for bi := range fn.Blocks {
		b := ir.BlockID(bi)
		for _, succ := range successorsOf(fn, b) {
			fwd, ok := forwarder(fn, succ)
			if !ok || fwd.Target == succ || fwd.Target == b {
				continue
			}
			if retargetThrough(fn, b, succ, fwd) {
				changed = true
			}
		}
	}
	return changed
}

// forwarder reports whether a block consists of nothing but an
// unconditional branch
func forwarder(fn *ir.Function, b ir.BlockID) (*ir.Br, bool) {
	blk := fn.Blocks[b]
	if len(blk.Insts) != 1 {
		return nil, false
	}
	br, ok := fn.Inst(blk.Insts[0]).Op.(*ir.Br)
	return br, ok
}

// retargetThrough rewrites b's terminator edges into mid so they jump
// straight to mid's target, substituting mid's parameters with the edge's
// arguments
func retargetThrough(fn *ir.Function, b, mid ir.BlockID, fwd *ir.Br) bool {
	params := fn.Blocks[mid].Params

	through := func(target *ir.BlockID, args *[]ir.ValueID) bool {
		if *target != mid {
			return false
		}
		sub := make(map[ir.ValueID]ir.ValueID, len(params))
		for i, p := range params {
			sub[p] = (*args)[i]
		}
		newArgs := make([]ir.ValueID, len(fwd.Args))
		for i, a := range fwd.Args {
			if r, ok := sub[a]; ok {
				newArgs[i] = r
			} else {
				newArgs[i] = a
			}
		}
		*target = fwd.Target
		*args = newArgs
		return true
	}

	switch o := fn.Terminator(b).(type) {
	case *ir.Br:
		return through(&o.Target, &o.Args)
	case *ir.BrIf:
		// keep the edge when both arms would collapse onto the same target:
		// a degenerate br_if is handled by later folding
		a := through(&o.Then, &o.ThenArgs)
		c := through(&o.Else, &o.ElseArgs)
		return a || c
	case *ir.Switch:
		changed := false
		for i := range o.Cases {
			if through(&o.Cases[i].Target, &o.Cases[i].Args) {
				changed = true
			}
		}
		if through(&o.Default, &o.DefaultArgs) {
			changed = true
		}
		return changed
	}
	return false
}

// mergeLinearBlocks splices a block into its unique predecessor when the
// predecessor ends in an unconditional branch to it
func mergeLinearBlocks(fn *ir.Function) bool {
	preds := predecessorCounts(fn)
	changed := false

	for bi := range fn.Blocks {
		b := ir.BlockID(bi)
		br, ok := fn.Terminator(b).(*ir.Br)
		if !ok || br.Target == b || br.Target == fn.Entry {
			continue
		}
		t := br.Target
		if preds[t] != 1 {
			continue
		}
		target := fn.Blocks[t]
		for i, p := range target.Params {
			fn.ReplaceUses(p, br.Args[i])
		}
		blk := fn.Blocks[b]
		blk.Insts = append(blk.Insts[:len(blk.Insts)-1], target.Insts...)
		target.Insts = nil
		target.Params = nil
		preds[t] = 0
		changed = true
	}
	return changed
}

func predecessorCounts(fn *ir.Function) map[ir.BlockID]int {
	preds := make(map[ir.BlockID]int)
	for bi := range fn.Blocks {
		seen := make(map[ir.BlockID]bool)
		for _, succ := range successorsOf(fn, ir.BlockID(bi)) {
			if !seen[succ] {
				seen[succ] = true
				preds[succ]++
			}
		}
	}
	return preds
}

func successorsOf(fn *ir.Function, b ir.BlockID) []ir.BlockID {
	term := fn.Terminator(b)
	if term == nil {
		return nil
	}
	return ir.Successors(term)
}

// removeUnreachable drops blocks no path from the entry reaches, remapping
// every surviving block handle
func removeUnreachable(fn *ir.Function) bool {
	reachable := make(map[ir.BlockID]bool)
	work := []ir.BlockID{fn.Entry}
	reachable[fn.Entry] = true
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		for _, succ := range successorsOf(fn, b) {
			if !reachable[succ] {
				reachable[succ] = true
				work = append(work, succ)
			}
		}
	}
	if len(reachable) == len(fn.Blocks) {
		return false
	}

	remap := make(map[ir.BlockID]ir.BlockID, len(reachable))
	var kept []*ir.Block
	for bi, blk := range fn.Blocks {
		b := ir.BlockID(bi)
		if reachable[b] {
			remap[b] = ir.BlockID(len(kept))
			kept = append(kept, blk)
		}
	}
	fn.Blocks = kept
	fn.Entry = remap[fn.Entry]
	for bi := range fn.Blocks {
		retarget(fn.Terminator(ir.BlockID(bi)), remap)
	}
	return true
}

func retarget(term ir.Op, remap map[ir.BlockID]ir.BlockID) {
	switch o := term.(type) {
	case *ir.Br:
		o.Target = remap[o.Target]
	case *ir.BrIf:
		o.Then = remap[o.Then]
		o.Else = remap[o.Else]
	case *ir.Switch:
		for i := range o.Cases {
			o.Cases[i].Target = remap[o.Cases[i].Target]
		}
		o.Default = remap[o.Default]
	}
}
