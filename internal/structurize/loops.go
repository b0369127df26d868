package structurize

import (
	"reforge/internal/ir"
)

// Loop is a natural loop: the set of blocks dominated by the header that
// reach a back edge to it
type Loop struct {
	Header  ir.BlockID
	Body    map[ir.BlockID]bool // includes the header
	Latches []ir.BlockID        // sources of back edges
}

// FindLoops detects natural loops via back edges on the dominator tree,
// keyed by header. Two back edges to one header share a loop.
func FindLoops(cfg *CFG, dom *DomTree) map[ir.BlockID]*Loop {
	loops := make(map[ir.BlockID]*Loop)
	for b, succs := range cfg.Succs {
		for _, h := range succs {
			if !dom.Dominates(h, b) {
				continue
			}
			lp := loops[h]
			if lp == nil {
				lp = &Loop{Header: h, Body: map[ir.BlockID]bool{h: true}}
				loops[h] = lp
			}
			lp.Latches = append(lp.Latches, b)
			// backward walk from the latch, stopping at the header
			work := []ir.BlockID{b}
			for len(work) > 0 {
				n := work[len(work)-1]
				work = work[:len(work)-1]
				if lp.Body[n] {
					continue
				}
				lp.Body[n] = true
				work = append(work, cfg.Preds[n]...)
			}
		}
	}
	return loops
}

// Exits lists blocks outside the loop that body blocks branch to, in block
// order without duplicates
func (lp *Loop) Exits(cfg *CFG) []ir.BlockID {
	seen := make(map[ir.BlockID]bool)
	var exits []ir.BlockID
	for b := range lp.Body {
		for _, s := range cfg.Succs[b] {
			if !lp.Body[s] && !seen[s] {
				seen[s] = true
				exits = append(exits, s)
			}
		}
	}
	// deterministic order
	for i := 0; i < len(exits); i++ {
		for j := i + 1; j < len(exits); j++ {
			if exits[j] < exits[i] {
				exits[i], exits[j] = exits[j], exits[i]
			}
		}
	}
	return exits
}
