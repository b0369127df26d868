package passes

import (
	"reforge/internal/ir"
)

// Mem2Reg promotes stack cells to plain values. A cell is promotable when
// its address never escapes: every use of the alloc result is the address
// operand of a load or store. Loads become the last stored value; where
// control flow merges, the promoted value travels as a fresh block
// parameter with matching branch arguments.
type Mem2Reg struct{}

func (Mem2Reg) Name() string { return "mem2reg" }

func (Mem2Reg) Apply(mod *ir.Module) (bool, error) {
	changed := false
	for _, fn := range mod.Functions {
		if promoteFunction(fn) {
			changed = true
		}
	}
	return changed, nil
}

func promoteFunction(fn *ir.Function) bool {
	changed := false
	for _, a := range promotableAllocs(fn) {
		p := &promoter{
			fn:         fn,
			alloc:      a,
			preds:      predecessorsOf(fn),
			lastStore:  make(map[ir.BlockID]ir.ValueID),
			begin:      make(map[ir.BlockID]ir.ValueID),
			inProgress: make(map[ir.BlockID]bool),
		}
		p.run()
		changed = true
	}
	return changed
}

// promotableAllocs finds allocs whose result is only ever a load or store
// address
func promotableAllocs(fn *ir.Function) []ir.ValueID {
	candidates := make(map[ir.ValueID]bool)
	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			if _, ok := inst.Op.(*ir.Alloc); ok {
				candidates[inst.Result] = true
			}
		}
	}

	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			switch o := inst.Op.(type) {
			case *ir.Alloc:
			case *ir.Load:
				// address position is fine
			case *ir.Store:
				if candidates[o.Value] {
					delete(candidates, o.Value)
				}
			default:
				for _, v := range inst.Op.Operands() {
					if candidates[v] {
						delete(candidates, v)
					}
				}
			}
		}
	}

	// deterministic order: allocs in program order
	var ordered []ir.ValueID
	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			if _, ok := inst.Op.(*ir.Alloc); ok && candidates[inst.Result] {
				ordered = append(ordered, inst.Result)
			}
		}
	}
	return ordered
}

func predecessorsOf(fn *ir.Function) map[ir.BlockID][]ir.BlockID {
	preds := make(map[ir.BlockID][]ir.BlockID)
	for bi := range fn.Blocks {
		b := ir.BlockID(bi)
		seen := make(map[ir.BlockID]bool)
		for _, succ := range successorsOf(fn, b) {
			if !seen[succ] {
				seen[succ] = true
				preds[succ] = append(preds[succ], b)
			}
		}
	}
	return preds
}

type promoter struct {
	fn    *ir.Function
	alloc ir.ValueID
	preds map[ir.BlockID][]ir.BlockID

	lastStore  map[ir.BlockID]ir.ValueID // value live at block end, from stores only
	begin      map[ir.BlockID]ir.ValueID // value live at block start
	inProgress map[ir.BlockID]bool

	// params inserted for this cell, per block, in insertion order
	inserted []insertedParam
}

type insertedParam struct {
	block ir.BlockID
	param ir.ValueID
}

func (p *promoter) run() {
	// record per-block last stores first so begin-of-block resolution can
	// read any block's end state
	for bi, blk := range p.fn.Blocks {
		for _, id := range blk.Insts {
			if st, ok := p.fn.Inst(id).Op.(*ir.Store); ok && st.Addr == p.alloc {
				p.lastStore[ir.BlockID(bi)] = st.Value
			}
		}
	}

	// rewrite loads, tracking the running value within each block
	for bi, blk := range p.fn.Blocks {
		b := ir.BlockID(bi)
		cur := ir.NoValue
		for _, id := range blk.Insts {
			inst := p.fn.Inst(id)
			switch o := inst.Op.(type) {
			case *ir.Store:
				if o.Addr == p.alloc {
					cur = o.Value
				}
			case *ir.Load:
				if o.Addr != p.alloc {
					continue
				}
				if cur == ir.NoValue {
					cur = p.beginValue(b)
				}
				p.fn.ReplaceUses(inst.Result, cur)
			}
		}
	}

	// drop the cell's alloc, stores and loads
	for _, blk := range p.fn.Blocks {
		kept := blk.Insts[:0]
		for _, id := range blk.Insts {
			inst := p.fn.Inst(id)
			switch o := inst.Op.(type) {
			case *ir.Alloc:
				if inst.Result == p.alloc {
					continue
				}
			case *ir.Store:
				if o.Addr == p.alloc {
					continue
				}
			case *ir.Load:
				if o.Addr == p.alloc {
					continue
				}
			}
			kept = append(kept, id)
		}
		blk.Insts = kept
	}

	p.pruneTrivialParams()
}

// beginValue resolves the cell's value at the start of a block, inserting
// block parameters at merges
func (p *promoter) beginValue(b ir.BlockID) ir.ValueID {
	if v, ok := p.begin[b]; ok {
		return v
	}
	preds := p.preds[b]

	if len(preds) == 0 || p.inProgress[b] {
		// read before any store on this path; the cell starts out nil
		v := p.insertNilAtTop(b)
		p.begin[b] = v
		return v
	}

	if len(preds) == 1 {
		p.inProgress[b] = true
		v := p.endValue(preds[0])
		delete(p.inProgress, b)
		p.begin[b] = v
		return v
	}

	// merge point: the value arrives as a block parameter. Registering the
	// parameter before walking predecessors breaks loop cycles.
	blk := p.fn.Blocks[b]
	param := p.fn.NewValue(p.fn.TypeOf(p.alloc))
	blk.Params = append(blk.Params, param)
	p.begin[b] = param
	p.inserted = append(p.inserted, insertedParam{block: b, param: param})

	for _, pred := range preds {
		arg := p.endValue(pred)
		p.appendEdgeArg(pred, b, arg)
	}
	return param
}

func (p *promoter) endValue(b ir.BlockID) ir.ValueID {
	if v, ok := p.lastStore[b]; ok {
		return v
	}
	return p.beginValue(b)
}

func (p *promoter) insertNilAtTop(b ir.BlockID) ir.ValueID {
	fn := p.fn
	result := fn.NewValue(fn.TypeOf(p.alloc))
	fn.Insts = append(fn.Insts, ir.Inst{Op: &ir.Const{Value: ir.NilConst()}, Result: result})
	id := ir.InstID(len(fn.Insts) - 1)
	blk := fn.Blocks[b]
	blk.Insts = append([]ir.InstID{id}, blk.Insts...)
	return result
}

// appendEdgeArg adds the promoted value to every edge from pred into b
func (p *promoter) appendEdgeArg(pred, b ir.BlockID, arg ir.ValueID) {
	switch o := p.fn.Terminator(pred).(type) {
	case *ir.Br:
		if o.Target == b {
			o.Args = append(o.Args, arg)
		}
	case *ir.BrIf:
		if o.Then == b {
			o.ThenArgs = append(o.ThenArgs, arg)
		}
		if o.Else == b {
			o.ElseArgs = append(o.ElseArgs, arg)
		}
	case *ir.Switch:
		for i := range o.Cases {
			if o.Cases[i].Target == b {
				o.Cases[i].Args = append(o.Cases[i].Args, arg)
			}
		}
		if o.Default == b {
			o.DefaultArgs = append(o.DefaultArgs, arg)
		}
	}
}

// pruneTrivialParams removes inserted parameters whose incoming arguments
// all carry the same value. Removing one can make another trivial, so it
// loops to a fixpoint.
func (p *promoter) pruneTrivialParams() {
	for {
		removed := false
		for i, ins := range p.inserted {
			if ins.param == ir.NoValue {
				continue
			}
			idx := paramIndex(p.fn.Blocks[ins.block], ins.param)
			if idx < 0 {
				continue
			}
			same := ir.NoValue
			trivial := true
			for _, pred := range p.preds[ins.block] {
				for _, arg := range p.edgeArgs(pred, ins.block, idx) {
					if arg == ins.param {
						continue
					}
					if same == ir.NoValue {
						same = arg
					} else if same != arg {
						trivial = false
					}
				}
			}
			if !trivial || same == ir.NoValue {
				continue
			}
			p.removeParam(ins.block, idx)
			p.fn.ReplaceUses(ins.param, same)
			p.inserted[i].param = ir.NoValue
			removed = true
		}
		if !removed {
			return
		}
	}
}

func paramIndex(blk *ir.Block, param ir.ValueID) int {
	for i, v := range blk.Params {
		if v == param {
			return i
		}
	}
	return -1
}

func (p *promoter) edgeArgs(pred, b ir.BlockID, idx int) []ir.ValueID {
	var args []ir.ValueID
	switch o := p.fn.Terminator(pred).(type) {
	case *ir.Br:
		if o.Target == b {
			args = append(args, o.Args[idx])
		}
	case *ir.BrIf:
		if o.Then == b {
			args = append(args, o.ThenArgs[idx])
		}
		if o.Else == b {
			args = append(args, o.ElseArgs[idx])
		}
	case *ir.Switch:
		for i := range o.Cases {
			if o.Cases[i].Target == b {
				args = append(args, o.Cases[i].Args[idx])
			}
		}
		if o.Default == b {
			args = append(args, o.DefaultArgs[idx])
		}
	}
	return args
}

// removeParam deletes a block parameter and the matching argument on every
// incoming edge
func (p *promoter) removeParam(b ir.BlockID, idx int) {
	blk := p.fn.Blocks[b]
	blk.Params = append(blk.Params[:idx], blk.Params[idx+1:]...)

	cut := func(args []ir.ValueID) []ir.ValueID {
		return append(args[:idx], args[idx+1:]...)
	}
	for _, pred := range p.preds[b] {
		switch o := p.fn.Terminator(pred).(type) {
		case *ir.Br:
			if o.Target == b {
				o.Args = cut(o.Args)
			}
		case *ir.BrIf:
			if o.Then == b {
				o.ThenArgs = cut(o.ThenArgs)
			}
			if o.Else == b {
				o.ElseArgs = cut(o.ElseArgs)
			}
		case *ir.Switch:
			for i := range o.Cases {
				if o.Cases[i].Target == b {
					o.Cases[i].Args = cut(o.Cases[i].Args)
				}
			}
			if o.Default == b {
				o.DefaultArgs = cut(o.DefaultArgs)
			}
		}
	}
}
