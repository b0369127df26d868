package structurize

import (
	goerrors "errors"
	"fmt"
	"sort"

	"reforge/internal/ir"
)

// MaxDepth caps structuring recursion; regions nested deeper fall back to
// the dispatch shape.
const MaxDepth = 200

var (
	errIrreducible = goerrors.New("irreducible control flow")
	errTooDeep     = goerrors.New("region nesting exceeds depth limit")
)

type loopFrame struct {
	header ir.BlockID
	exit   ir.BlockID
}

type structurizer struct {
	fn         *ir.Function
	cfg        *CFG
	dom        *DomTree
	pdom       *DomTree
	loops      map[ir.BlockID]*Loop
	frames     []loopFrame
	inProgress map[ir.BlockID]bool
	visited    map[ir.BlockID]bool
	depth      int
}

// Structurize converts a function's block graph into a structured shape
// tree. It never fails: graphs that cannot be expressed with nested
// if/while/switch (multiple-entry loops, over-deep nesting) come back as a
// DispatchShape covering the reachable blocks.
func Structurize(fn *ir.Function) Shape {
	if len(fn.Blocks) == 0 {
		return &Seq{}
	}
	cfg := NewCFG(fn)
	dom := Dominators(cfg)
	s := &structurizer{
		fn:         fn,
		cfg:        cfg,
		dom:        dom,
		pdom:       PostDominators(cfg),
		loops:      FindLoops(cfg, dom),
		inProgress: make(map[ir.BlockID]bool),
		visited:    make(map[ir.BlockID]bool),
	}
	shape, err := s.region(fn.Entry, ir.NoBlock)
	if err != nil {
		return s.dispatch()
	}
	return shape
}

// dispatch renders the whole reachable graph as an explicit state machine
func (s *structurizer) dispatch() Shape {
	reach := s.cfg.Reachable()
	blocks := make([]ir.BlockID, 0, len(reach))
	for b := range reach {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return &DispatchShape{Entry: s.fn.Entry, Blocks: blocks}
}

// region structures the blocks from b up to (exclusive) stop
func (s *structurizer) region(b, stop ir.BlockID) (Shape, error) {
	s.depth++
	defer func() { s.depth-- }()
	if s.depth > MaxDepth {
		return nil, errTooDeep
	}

	var out []Shape
	cur := b
	for cur != stop && cur != ir.NoBlock && cur != VirtualExit {
		if lp, ok := s.loops[cur]; ok && !s.inProgress[cur] {
			shape, next, err := s.loop(lp)
			if err != nil {
				return nil, err
			}
			out = flatten(out, shape)
			cur = next
			continue
		}
		if s.visited[cur] {
			return nil, errIrreducible
		}
		s.visited[cur] = true
		out = flatten(out, &BlockShape{ID: cur})

		switch o := s.fn.Terminator(cur).(type) {
		case *ir.Return:
			out = append(out, &ReturnShape{Value: o.Value})
			return seqOf(out...), nil

		case *ir.Br:
			out = flatten(out, s.edgeAssigns(o.Target, o.Args))
			if esc := s.loopEdgeShape(o.Target); esc != nil {
				out = append(out, esc)
				return seqOf(out...), nil
			}
			cur = o.Target

		case *ir.BrIf:
			merge := s.mergeOf(cur)
			// without a local merge (an arm returns or breaks) the arms
			// run on to the enclosing region's stop block
			armStop := merge
			if armStop == ir.NoBlock {
				armStop = stop
			}
			thenShape, err := s.arm(o.Then, o.ThenArgs, armStop)
			if err != nil {
				return nil, err
			}
			elseShape, err := s.arm(o.Else, o.ElseArgs, armStop)
			if err != nil {
				return nil, err
			}
			thenShape, elseShape, common := collapseCommonAssigns(thenShape, elseShape)
			out = append(out, &IfElse{Cond: o.Cond, Then: thenShape, Else: elseShape})
			if common != nil {
				out = append(out, common)
			}
			if merge == ir.NoBlock {
				return seqOf(out...), nil
			}
			if esc := s.loopEdgeShape(merge); esc != nil {
				out = append(out, esc)
				return seqOf(out...), nil
			}
			cur = merge

		case *ir.Switch:
			merge := s.mergeOf(cur)
			armStop := merge
			if armStop == ir.NoBlock {
				armStop = stop
			}
			shape, err := s.switchShape(o, armStop)
			if err != nil {
				return nil, err
			}
			out = append(out, shape)
			if merge == ir.NoBlock {
				return seqOf(out...), nil
			}
			if esc := s.loopEdgeShape(merge); esc != nil {
				out = append(out, esc)
				return seqOf(out...), nil
			}
			cur = merge

		default:
			return seqOf(out...), nil
		}
	}
	return seqOf(out...), nil
}

// mergeOf finds the join point of a branch: the branching block's immediate
// post-dominator. NoBlock when control only rejoins at function exit.
func (s *structurizer) mergeOf(b ir.BlockID) ir.BlockID {
	m, ok := s.pdom.Idom[b]
	if !ok || m == b || m == VirtualExit {
		return ir.NoBlock
	}
	return m
}

// arm structures one conditional arm ending at the merge block
func (s *structurizer) arm(target ir.BlockID, args []ir.ValueID, merge ir.BlockID) (Shape, error) {
	assigns := s.edgeAssigns(target, args)
	if esc := s.loopEdgeShape(target); esc != nil {
		return seqOf(assigns, esc), nil
	}
	if target == merge {
		return assigns, nil
	}
	body, err := s.region(target, merge)
	if err != nil {
		return nil, err
	}
	return seqOf(assigns, body), nil
}

// loop structures a natural loop and returns the shape plus the block where
// control resumes after it
func (s *structurizer) loop(lp *Loop) (Shape, ir.BlockID, error) {
	exit := s.loopExit(lp)
	s.inProgress[lp.Header] = true
	s.frames = append(s.frames, loopFrame{header: lp.Header, exit: exit})
	defer func() { s.frames = s.frames[:len(s.frames)-1] }()

	header := lp.Header
	if brif, ok := s.fn.Terminator(header).(*ir.BrIf); ok && exit != ir.NoBlock {
		var bodyEntry ir.BlockID
		var bodyArgs, exitArgs []ir.ValueID
		negated := false
		matched := false
		switch {
		case lp.Body[brif.Then] && brif.Else == exit:
			bodyEntry, bodyArgs, exitArgs = brif.Then, brif.ThenArgs, brif.ElseArgs
			matched = true
		case lp.Body[brif.Else] && brif.Then == exit:
			bodyEntry, bodyArgs, exitArgs = brif.Else, brif.ElseArgs, brif.ThenArgs
			negated = true
			matched = true
		}
		if matched {
			s.visited[header] = true
			bodyAssigns := s.edgeAssigns(bodyEntry, bodyArgs)
			var bodyShape Shape
			if bodyEntry == header {
				bodyShape = &ContinueShape{}
			} else {
				var err error
				bodyShape, err = s.region(bodyEntry, ir.NoBlock)
				if err != nil {
					return nil, 0, err
				}
			}
			w := &WhileShape{Header: header, Cond: brif.Cond, Negated: negated,
				Body: seqOf(bodyAssigns, bodyShape)}
			return seqOf(w, s.edgeAssigns(exit, exitArgs)), exit, nil
		}
	}

	body, err := s.region(header, ir.NoBlock)
	if err != nil {
		return nil, 0, err
	}
	return &LoopShape{Body: body}, exit, nil
}

// loopExit picks the block where control resumes after the loop: the unique
// exit when there is one, otherwise the header's post-dominator when it lies
// outside the body, otherwise the lowest-numbered exit. The remaining exits
// become labeled breaks.
func (s *structurizer) loopExit(lp *Loop) ir.BlockID {
	exits := lp.Exits(s.cfg)
	switch {
	case len(exits) == 0:
		return ir.NoBlock
	case len(exits) == 1:
		return exits[0]
	}
	if m, ok := s.pdom.Idom[lp.Header]; ok && m != VirtualExit && !lp.Body[m] {
		for _, e := range exits {
			if e == m {
				return m
			}
		}
	}
	return exits[0]
}

// loopEdgeShape maps a branch target onto the loop stack: back to an active
// header is a continue, out to an active exit is a (possibly labeled) break
func (s *structurizer) loopEdgeShape(target ir.BlockID) Shape {
	for i := len(s.frames) - 1; i >= 0; i-- {
		depth := len(s.frames) - 1 - i
		if target == s.frames[i].header {
			if depth == 0 {
				return &ContinueShape{}
			}
			// continue to an outer loop cannot be expressed directly;
			// let the region walk hit the visited check and fall back
			return nil
		}
		if s.frames[i].exit != ir.NoBlock && target == s.frames[i].exit {
			return &BreakShape{Depth: depth}
		}
	}
	return nil
}

// edgeAssigns materializes block-argument passing as explicit assignments to
// the target's parameters, dropping self-assignments
func (s *structurizer) edgeAssigns(target ir.BlockID, args []ir.ValueID) *Assigns {
	if target == ir.NoBlock || len(args) == 0 {
		return &Assigns{}
	}
	params := s.fn.Blocks[target].Params
	if len(params) != len(args) {
		panic(fmt.Sprintf("structurize: edge into block%d has %d args for %d params",
			target, len(args), len(params)))
	}
	var list []Assign
	for i, src := range args {
		if params[i] == src {
			continue
		}
		list = append(list, Assign{Target: params[i], Src: src})
	}
	return &Assigns{List: list}
}

func (s *structurizer) switchShape(o *ir.Switch, merge ir.BlockID) (Shape, error) {
	type groupKey struct {
		target ir.BlockID
		args   string
	}
	argsKey := func(args []ir.ValueID) string {
		return fmt.Sprint(args)
	}

	var arms []SwitchArm
	index := make(map[groupKey]int)
	for _, c := range o.Cases {
		key := groupKey{target: c.Target, args: argsKey(c.Args)}
		if i, ok := index[key]; ok {
			arms[i].Consts = append(arms[i].Consts, c.Value)
			continue
		}
		body, err := s.arm(c.Target, c.Args, merge)
		if err != nil {
			return nil, err
		}
		index[key] = len(arms)
		arms = append(arms, SwitchArm{Consts: []ir.Constant{c.Value}, Body: body})
	}

	var def Shape
	defAssigns := s.edgeAssigns(o.Default, o.DefaultArgs)
	if o.Default != merge || len(defAssigns.List) > 0 {
		var err error
		def, err = s.arm(o.Default, o.DefaultArgs, merge)
		if err != nil {
			return nil, err
		}
	}
	return &SwitchShape{Value: o.Value, Cases: arms, Default: def}, nil
}

// collapseCommonAssigns hoists identical trailing edge assignments out of
// both arms of a conditional, so a diamond passing the same value on both
// edges yields one assignment after the if instead of a duplicate per arm
func collapseCommonAssigns(then, els Shape) (Shape, Shape, Shape) {
	thenRest, thenAssigns := splitTrailingAssigns(then)
	elseRest, elseAssigns := splitTrailingAssigns(els)
	if len(thenAssigns) == 0 || len(elseAssigns) == 0 {
		return then, els, nil
	}

	var common, thenOnly, elseOnly []Assign
	inElse := func(a Assign) bool {
		for _, b := range elseAssigns {
			if a == b {
				return true
			}
		}
		return false
	}
	for _, a := range thenAssigns {
		if inElse(a) {
			common = append(common, a)
		} else {
			thenOnly = append(thenOnly, a)
		}
	}
	if len(common) == 0 {
		return then, els, nil
	}
	for _, a := range elseAssigns {
		skip := false
		for _, c := range common {
			if a == c {
				skip = true
				break
			}
		}
		if !skip {
			elseOnly = append(elseOnly, a)
		}
	}

	newThen := seqOf(append(append([]Shape{}, thenRest...), &Assigns{List: thenOnly})...)
	newElse := seqOf(append(append([]Shape{}, elseRest...), &Assigns{List: elseOnly})...)
	return newThen, newElse, &Assigns{List: common}
}

// splitTrailingAssigns peels a trailing Assigns group off a shape
func splitTrailingAssigns(s Shape) ([]Shape, []Assign) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case *Assigns:
		return nil, v.List
	case *Seq:
		if n := len(v.Shapes); n > 0 {
			if a, ok := v.Shapes[n-1].(*Assigns); ok {
				return v.Shapes[:n-1], a.List
			}
		}
		return v.Shapes, nil
	default:
		return []Shape{s}, nil
	}
}
