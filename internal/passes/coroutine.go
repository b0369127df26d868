package passes

import (
	"fmt"

	"github.com/iancoleman/strcase"

	"reforge/internal/ir"
	"reforge/internal/types"
)

// CoroutineLowering rewrites each coroutine into a resumable state machine.
//
// Every coroutine gets a frame class holding a state counter, the original
// parameters, and every value live across a yield. The lowered function
// takes the frame and a resume input; its entry dispatches on the state
// counter to the original entry or to a per-yield resume block. A yield
// becomes "record state, return the yielded value"; resuming re-enters the
// function, which jumps past the yield with the resume input bound to the
// yield's result.
//
// coro.create becomes a frame literal at state zero, coro.resume becomes a
// plain call of the lowered function.
type CoroutineLowering struct{}

func (CoroutineLowering) Name() string { return "coroutine-lowering" }

// doneState marks a finished coroutine; resuming it returns nil
const doneState int64 = -1

func (CoroutineLowering) Apply(mod *ir.Module) (bool, error) {
	lowered := make(map[string]*frameInfo)
	for _, fn := range mod.Functions {
		if !fn.Coroutine {
			continue
		}
		info, err := lowerCoroutine(mod, fn)
		if err != nil {
			return false, err
		}
		lowered[fn.Name] = info
	}
	if len(lowered) == 0 {
		return false, nil
	}
	rewriteCoroSites(mod, lowered)
	return true, nil
}

// frameInfo records how a lowered coroutine's frame is laid out, for
// rewriting its creation sites
type frameInfo struct {
	class       string
	paramFields []string
}

type yieldSite struct {
	block ir.BlockID
	inst  ir.InstID
}

func lowerCoroutine(mod *ir.Module, fn *ir.Function) (*frameInfo, error) {
	l := &lowerer{mod: mod, fn: fn, fields: make(map[ir.ValueID]string)}
	l.findYields()
	l.collectSpills()
	l.buildFrameClass()
	l.createDispatchEntry()
	l.spillValues()
	l.markFinalReturns()
	resumeBlocks := l.splitAtYields()
	l.emitDispatch(resumeBlocks)

	fn.Coroutine = false
	fn.Params = []types.Type{types.Class(l.frame.Name), types.Dynamic}
	fn.Ret = types.Dynamic
	fn.Entry = l.newEntry

	return &frameInfo{class: l.frame.Name, paramFields: l.paramFields}, nil
}

type lowerer struct {
	mod *ir.Module
	fn  *ir.Function

	yields      []yieldSite
	spills      map[ir.ValueID]bool
	fields      map[ir.ValueID]string
	paramFields []string
	frame       *ir.ClassDef

	oldEntry ir.BlockID
	newEntry ir.BlockID
	co       ir.ValueID
	input    ir.ValueID
}

func (l *lowerer) findYields() {
	for bi, blk := range l.fn.Blocks {
		for _, id := range blk.Insts {
			if _, ok := l.fn.Inst(id).Op.(*ir.Yield); ok {
				l.yields = append(l.yields, yieldSite{block: ir.BlockID(bi), inst: id})
			}
		}
	}
}

// collectSpills decides which values live in the frame: every original
// parameter, plus everything live across at least one yield
func (l *lowerer) collectSpills() {
	l.spills = make(map[ir.ValueID]bool)
	for _, p := range l.fn.Blocks[l.fn.Entry].Params {
		l.spills[p] = true
	}

	liveOut := blockLiveness(l.fn)
	for _, y := range l.yields {
		for v := range liveAt(l.fn, y, liveOut) {
			l.spills[v] = true
		}
	}
}

// blockLiveness computes live-out sets with a standard backward fixpoint
func blockLiveness(fn *ir.Function) map[ir.BlockID]map[ir.ValueID]bool {
	use := make(map[ir.BlockID]map[ir.ValueID]bool)
	def := make(map[ir.BlockID]map[ir.ValueID]bool)
	for bi, blk := range fn.Blocks {
		b := ir.BlockID(bi)
		use[b] = make(map[ir.ValueID]bool)
		def[b] = make(map[ir.ValueID]bool)
		for _, p := range blk.Params {
			def[b][p] = true
		}
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			for _, v := range inst.Op.Operands() {
				if !def[b][v] {
					use[b][v] = true
				}
			}
			if inst.Result != ir.NoValue {
				def[b][inst.Result] = true
			}
		}
	}

	liveOut := make(map[ir.BlockID]map[ir.ValueID]bool)
	for bi := range fn.Blocks {
		liveOut[ir.BlockID(bi)] = make(map[ir.ValueID]bool)
	}
	for changed := true; changed; {
		changed = false
		for bi := range fn.Blocks {
			b := ir.BlockID(bi)
			for _, succ := range successorsOf(fn, b) {
				for v := range use[succ] {
					if !liveOut[b][v] {
						liveOut[b][v] = true
						changed = true
					}
				}
				for v := range liveOut[succ] {
					if !def[succ][v] && !liveOut[b][v] {
						liveOut[b][v] = true
						changed = true
					}
				}
			}
		}
	}
	return liveOut
}

// liveAt walks one block backward to the yield, refining the block's
// live-out to the live set just after the yield. The yield's own result is
// excluded: it is rematerialized from the resume input, not the frame.
func liveAt(fn *ir.Function, y yieldSite, liveOut map[ir.BlockID]map[ir.ValueID]bool) map[ir.ValueID]bool {
	live := make(map[ir.ValueID]bool)
	for v := range liveOut[y.block] {
		live[v] = true
	}
	insts := fn.Blocks[y.block].Insts
	for i := len(insts) - 1; i >= 0 && insts[i] != y.inst; i-- {
		inst := fn.Inst(insts[i])
		if inst.Result != ir.NoValue {
			delete(live, inst.Result)
		}
		for _, v := range inst.Op.Operands() {
			live[v] = true
		}
	}
	delete(live, fn.Inst(y.inst).Result)
	return live
}

func (l *lowerer) buildFrameClass() {
	fn := l.fn
	frame := &ir.ClassDef{Name: frameClassName(fn)}
	frame.Fields = append(frame.Fields, ir.FieldDef{Name: "state", Type: types.I64})

	for i, p := range fn.Blocks[fn.Entry].Params {
		name := fn.NameOf(p)
		if name == "" {
			name = fmt.Sprintf("p%d", i)
		}
		name = strcase.ToSnake(name)
		l.fields[p] = name
		l.paramFields = append(l.paramFields, name)
		frame.Fields = append(frame.Fields, ir.FieldDef{Name: name, Type: fn.TypeOf(p)})
	}
	for v := range l.spills {
		if _, done := l.fields[v]; done {
			continue
		}
		name := fmt.Sprintf("s%d", v)
		l.fields[v] = name
		frame.Fields = append(frame.Fields, ir.FieldDef{Name: name, Type: fn.TypeOf(v)})
	}

	l.frame = frame
	l.mod.Classes = append(l.mod.Classes, frame)
}

func frameClassName(fn *ir.Function) string {
	base := fn.Name
	if fn.Class != "" {
		base = fn.Class + "_" + base
	}
	return strcase.ToCamel(base) + "Frame"
}

func (l *lowerer) createDispatchEntry() {
	l.oldEntry = l.fn.Entry
	l.newEntry = l.fn.AddBlockWithParams([]types.Type{types.Class(l.frame.Name), types.Dynamic})
	params := l.fn.Blocks[l.newEntry].Params
	l.co, l.input = params[0], params[1]
	l.fn.SetName(l.co, "co")
	l.fn.SetName(l.input, "resumed")
}

// newInst appends an instruction to the arena without attaching it to a
// block; the caller owns placement
func (l *lowerer) newInst(op ir.Op, resultType types.Type) (ir.InstID, ir.ValueID) {
	result := ir.NoValue
	if ir.HasResult(op) {
		result = l.fn.NewValue(resultType)
	}
	l.fn.Insts = append(l.fn.Insts, ir.Inst{Op: op, Result: result})
	return ir.InstID(len(l.fn.Insts) - 1), result
}

// spillValues routes every frame-resident value through the frame: each
// definition is followed by a field store, each use reads the field just
// before the user. Original parameters are stored by the creation site, so
// they only get the read half; afterwards the old entry loses its
// parameter list.
func (l *lowerer) spillValues() {
	fn := l.fn
	entryParams := make(map[ir.ValueID]bool)
	for _, p := range fn.Blocks[l.oldEntry].Params {
		entryParams[p] = true
	}

	for bi, blk := range fn.Blocks {
		if ir.BlockID(bi) == l.newEntry {
			continue
		}
		var rebuilt []ir.InstID

		// spilled block parameters are saved on block entry
		for _, p := range blk.Params {
			if l.spills[p] && !entryParams[p] {
				id, _ := l.newInst(&ir.FieldSet{Object: l.co, Field: l.fields[p], Value: p}, nil)
				rebuilt = append(rebuilt, id)
			}
		}

		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			rebuilt = append(rebuilt, l.readSpilledOperands(inst, &rebuilt, id))
			if inst.Result != ir.NoValue && l.spills[inst.Result] && !entryParams[inst.Result] {
				set, _ := l.newInst(&ir.FieldSet{Object: l.co, Field: l.fields[inst.Result], Value: inst.Result}, nil)
				rebuilt = append(rebuilt, set)
			}
		}
		blk.Insts = rebuilt
	}

	fn.Blocks[l.oldEntry].Params = nil
}

// readSpilledOperands inserts field reads for an instruction's spilled
// operands and rewrites the operands to the read results. Returns the
// instruction id to append after the inserted reads.
func (l *lowerer) readSpilledOperands(inst *ir.Inst, rebuilt *[]ir.InstID, id ir.InstID) ir.InstID {
	reads := make(map[ir.ValueID]ir.ValueID)
	for _, v := range inst.Op.Operands() {
		field, spilled := l.fields[v]
		if !spilled || !l.spills[v] {
			continue
		}
		if _, done := reads[v]; done {
			continue
		}
		get, result := l.newInst(&ir.FieldGet{Object: l.co, Field: field}, l.fn.TypeOf(v))
		*rebuilt = append(*rebuilt, get)
		reads[v] = result
	}
	if len(reads) > 0 {
		inst.Op.ReplaceOperands(func(v ir.ValueID) ir.ValueID {
			if r, ok := reads[v]; ok {
				return r
			}
			return v
		})
	}
	return id
}

// markFinalReturns stamps the done state before every return so a finished
// coroutine cannot be re-entered mid-body
func (l *lowerer) markFinalReturns() {
	fn := l.fn
	for bi, blk := range fn.Blocks {
		if ir.BlockID(bi) == l.newEntry || len(blk.Insts) == 0 {
			continue
		}
		if _, ok := fn.Terminator(ir.BlockID(bi)).(*ir.Return); !ok {
			continue
		}
		cst, cv := l.newInst(&ir.Const{Value: ir.IntConst(doneState)}, types.I64)
		set, _ := l.newInst(&ir.FieldSet{Object: l.co, Field: "state", Value: cv}, nil)
		last := len(blk.Insts) - 1
		blk.Insts = append(blk.Insts[:last], cst, set, blk.Insts[last])
	}
}

// splitAtYields cuts each block at its yields. The code before a yield
// records the resume state and returns the yielded value; the code after
// moves to a fresh resume block whose single parameter is the yield's
// former result.
func (l *lowerer) splitAtYields() []ir.BlockID {
	fn := l.fn
	var resumeBlocks []ir.BlockID
	state := int64(0)

	yieldInsts := make(map[ir.InstID]bool)
	for _, y := range l.yields {
		yieldInsts[y.inst] = true
	}

	for bi := range fn.Blocks {
		blk := fn.Blocks[ir.BlockID(bi)]
		hasYield := false
		for _, id := range blk.Insts {
			if yieldInsts[id] {
				hasYield = true
				break
			}
		}
		if !hasYield {
			continue
		}

		cur := blk
		var rebuilt []ir.InstID
		for _, id := range cur.Insts {
			if !yieldInsts[id] {
				rebuilt = append(rebuilt, id)
				continue
			}
			inst := fn.Inst(id)
			yield := inst.Op.(*ir.Yield)
			state++

			cst, cv := l.newInst(&ir.Const{Value: ir.IntConst(state)}, types.I64)
			set, _ := l.newInst(&ir.FieldSet{Object: l.co, Field: "state", Value: cv}, nil)
			ret, _ := l.newInst(&ir.Return{Value: yield.Value}, nil)
			rebuilt = append(rebuilt, cst, set, ret)
			cur.Insts = rebuilt

			// the yield's result value becomes the resume block's parameter
			rb := fn.AddBlock()
			fn.Blocks[rb].Params = []ir.ValueID{inst.Result}
			resumeBlocks = append(resumeBlocks, rb)
			cur = fn.Blocks[rb]
			rebuilt = nil
		}
		cur.Insts = rebuilt
	}
	return resumeBlocks
}

// emitDispatch fills the new entry with the state switch
func (l *lowerer) emitDispatch(resumeBlocks []ir.BlockID) {
	fn := l.fn

	done := fn.AddBlock()
	nilID, nilVal := l.newInst(&ir.Const{Value: ir.NilConst()}, types.Dynamic)
	retID, _ := l.newInst(&ir.Return{Value: nilVal}, nil)
	fn.Blocks[done].Insts = []ir.InstID{nilID, retID}

	st := fn.Append(l.newEntry, &ir.FieldGet{Object: l.co, Field: "state"}, types.I64)
	cases := []ir.SwitchCase{{Value: ir.IntConst(0), Target: l.oldEntry}}
	for i, rb := range resumeBlocks {
		cases = append(cases, ir.SwitchCase{
			Value:  ir.IntConst(int64(i + 1)),
			Target: rb,
			Args:   []ir.ValueID{l.input},
		})
	}
	fn.Append(l.newEntry, &ir.Switch{Value: st, Cases: cases, Default: done}, nil)
}

// rewriteCoroSites replaces creation and resume primitives across the
// module with frame literals and plain calls
func rewriteCoroSites(mod *ir.Module, lowered map[string]*frameInfo) {
	for _, fn := range mod.Functions {
		origins := coroOrigins(fn)
		for _, blk := range fn.Blocks {
			var rebuilt []ir.InstID
			for _, id := range blk.Insts {
				inst := fn.Inst(id)
				switch o := inst.Op.(type) {
				case *ir.CoroCreate:
					info, ok := lowered[o.Func]
					if !ok {
						break
					}
					zero := fn.NewValue(types.I64)
					fn.Insts = append(fn.Insts, ir.Inst{Op: &ir.Const{Value: ir.IntConst(0)}, Result: zero})
					rebuilt = append(rebuilt, ir.InstID(len(fn.Insts)-1))

					fields := []ir.FieldInit{{Name: "state", Value: zero}}
					for i, arg := range o.Args {
						if i < len(info.paramFields) {
							fields = append(fields, ir.FieldInit{Name: info.paramFields[i], Value: arg})
						}
					}
					fn.Insts = append(fn.Insts, ir.Inst{
						Op:     &ir.StructInit{Name: info.class, Fields: fields},
						Result: inst.Result,
					})
					rebuilt = append(rebuilt, ir.InstID(len(fn.Insts)-1))
					fn.SetType(inst.Result, types.Class(info.class))
					continue

				case *ir.CoroResume:
					target := origins[o.Coro]
					if _, ok := lowered[target]; !ok {
						break
					}
					arg := o.Arg
					if arg == ir.NoValue {
						arg = fn.NewValue(types.Dynamic)
						fn.Insts = append(fn.Insts, ir.Inst{Op: &ir.Const{Value: ir.NilConst()}, Result: arg})
						rebuilt = append(rebuilt, ir.InstID(len(fn.Insts)-1))
					}
					fn.Insts = append(fn.Insts, ir.Inst{
						Op:     &ir.Call{Callee: target, Args: []ir.ValueID{o.Coro, arg}},
						Result: inst.Result,
					})
					rebuilt = append(rebuilt, ir.InstID(len(fn.Insts)-1))
					continue
				}
				rebuilt = append(rebuilt, id)
			}
			blk.Insts = rebuilt
		}
	}
}

// coroOrigins maps each frame value to the coroutine it was created from,
// following copies. Computed up front so resume rewriting stays correct
// after the creation site itself has been rewritten.
func coroOrigins(fn *ir.Function) map[ir.ValueID]string {
	origins := make(map[ir.ValueID]string)
	for _, blk := range fn.Blocks {
		for _, id := range blk.Insts {
			inst := fn.Inst(id)
			switch o := inst.Op.(type) {
			case *ir.CoroCreate:
				origins[inst.Result] = o.Func
			case *ir.Copy:
				if from, ok := origins[o.Value]; ok {
					origins[inst.Result] = from
				}
			}
		}
	}
	return origins
}
