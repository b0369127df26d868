package structurize

import (
	"reforge/internal/ir"
)

// Dominator computation via the iterative reverse-postorder intersection
// algorithm (Cooper-Harvey-Kennedy). The same routine derives both dominators
// and, run on the reversed graph from a virtual exit, post-dominators.

// DomTree maps each reachable block to its immediate dominator; the entry
// maps to itself.
type DomTree struct {
	Idom  map[ir.BlockID]ir.BlockID
	order []ir.BlockID // reverse postorder
}

// Dominators computes the dominator tree rooted at the function entry
func Dominators(cfg *CFG) *DomTree {
	succs := func(b ir.BlockID) []ir.BlockID { return cfg.Succs[b] }
	return computeIdoms(cfg.fn.Entry, succs)
}

// PostDominators computes immediate post-dominators against a virtual exit
// joined to every return block. Blocks that cannot reach the exit (infinite
// loops) have no entry.
func PostDominators(cfg *CFG) *DomTree {
	returns := cfg.ReturnBlocks()
	succs := func(b ir.BlockID) []ir.BlockID {
		if b == VirtualExit {
			return returns
		}
		return cfg.Preds[b]
	}
	return computeIdoms(VirtualExit, succs)
}

func computeIdoms(entry ir.BlockID, succs func(ir.BlockID) []ir.BlockID) *DomTree {
	// depth-first postorder from the entry, iterative
	var order []ir.BlockID
	state := make(map[ir.BlockID]int) // 0 unseen, 1 open, 2 done
	type frame struct {
		block ir.BlockID
		next  int
	}
	stack := []frame{{block: entry}}
	state[entry] = 1
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := succs(top.block)
		if top.next < len(kids) {
			kid := kids[top.next]
			top.next++
			if state[kid] == 0 {
				state[kid] = 1
				stack = append(stack, frame{block: kid})
			}
			continue
		}
		state[top.block] = 2
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}

	// reverse postorder and position index
	rpo := make([]ir.BlockID, len(order))
	pos := make(map[ir.BlockID]int, len(order))
	for i := range order {
		rpo[i] = order[len(order)-1-i]
	}
	for i, b := range rpo {
		pos[b] = i
	}

	// predecessors restricted to reachable nodes
	preds := make(map[ir.BlockID][]ir.BlockID)
	for _, b := range rpo {
		for _, s := range succs(b) {
			preds[s] = append(preds[s], b)
		}
	}

	idom := make(map[ir.BlockID]ir.BlockID, len(rpo))
	idom[entry] = entry

	intersect := func(a, b ir.BlockID) ir.BlockID {
		for a != b {
			for pos[a] > pos[b] {
				a = idom[a]
			}
			for pos[b] > pos[a] {
				b = idom[b]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom ir.BlockID = -1
			first := true
			for _, p := range preds[b] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if first {
				continue
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	return &DomTree{Idom: idom, order: rpo}
}

// Dominates reports whether a dominates b (reflexively)
func (d *DomTree) Dominates(a, b ir.BlockID) bool {
	cur := b
	for {
		if cur == a {
			return true
		}
		next, ok := d.Idom[cur]
		if !ok || next == cur {
			return false
		}
		cur = next
	}
}

// ImmediateDominator returns b's idom, or -1 when b is the root or
// unreachable
func (d *DomTree) ImmediateDominator(b ir.BlockID) ir.BlockID {
	id, ok := d.Idom[b]
	if !ok || id == b {
		return -1
	}
	return id
}

// ReversePostorder exposes the traversal order used during computation
func (d *DomTree) ReversePostorder() []ir.BlockID {
	return d.order
}
