package structurize

import (
	"reforge/internal/ir"
)

// VirtualExit is the synthetic sink joined to every return block when
// computing post-dominators
const VirtualExit ir.BlockID = -2

// CFG holds the predecessor/successor maps of one function's block graph
type CFG struct {
	fn    *ir.Function
	Preds map[ir.BlockID][]ir.BlockID
	Succs map[ir.BlockID][]ir.BlockID
}

// NewCFG builds the edge maps from block terminators
func NewCFG(fn *ir.Function) *CFG {
	cfg := &CFG{
		fn:    fn,
		Preds: make(map[ir.BlockID][]ir.BlockID),
		Succs: make(map[ir.BlockID][]ir.BlockID),
	}
	for id := range fn.Blocks {
		b := ir.BlockID(id)
		term := fn.Terminator(b)
		if term == nil {
			continue
		}
		seen := make(map[ir.BlockID]bool)
		for _, succ := range ir.Successors(term) {
			cfg.Succs[b] = append(cfg.Succs[b], succ)
			if !seen[succ] {
				cfg.Preds[succ] = append(cfg.Preds[succ], b)
				seen[succ] = true
			}
		}
	}
	return cfg
}

// ReturnBlocks lists blocks ending in a return
func (c *CFG) ReturnBlocks() []ir.BlockID {
	var out []ir.BlockID
	for id := range c.fn.Blocks {
		b := ir.BlockID(id)
		if _, ok := c.fn.Terminator(b).(*ir.Return); ok {
			out = append(out, b)
		}
	}
	return out
}

// Reachable collects every block reachable from the entry
func (c *CFG) Reachable() map[ir.BlockID]bool {
	seen := make(map[ir.BlockID]bool)
	work := []ir.BlockID{c.fn.Entry}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[b] {
			continue
		}
		seen[b] = true
		work = append(work, c.Succs[b]...)
	}
	return seen
}
