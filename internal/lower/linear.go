package lower

import (
	"reforge/internal/ir"
	"reforge/internal/structurize"
)

// Phase one: the shape tree is flattened into linear records. Instructions
// become defs or effects, control shapes become nested record lists, and
// edge assignments stay explicit. No inlining or naming happens here; the
// separation keeps inlining decisions out of control-flow lowering.

type linearStmt interface {
	isLinear()
}

// defRec is one instruction producing a value
type defRec struct {
	value ir.ValueID
	op    ir.Op
}

// effectRec is one instruction evaluated only for its effect
type effectRec struct {
	op ir.Op
}

// assignRec is a block-argument binding made explicit
type assignRec struct {
	target ir.ValueID
	src    ir.ValueID
}

type ifRec struct {
	cond    ir.ValueID
	negated bool
	then    []linearStmt
	els     []linearStmt
}

// whileRec keeps the loop header's instructions as an explicit condition
// prelude; emission decides whether the prelude folds into the condition
type whileRec struct {
	prelude []linearStmt
	cond    ir.ValueID
	negated bool // loop continues on the false edge
	body    []linearStmt
}

type loopRec struct {
	body []linearStmt
}

type switchRec struct {
	value ir.ValueID
	cases []switchRecCase
	def   []linearStmt // nil when the switch has no default
}

type switchRecCase struct {
	consts []ir.Constant
	body   []linearStmt
}

type returnRec struct {
	value ir.ValueID
}

type breakRec struct {
	depth int
}

type continueRec struct{}

// gotoRec transfers control inside a dispatch state machine
type gotoRec struct {
	target ir.BlockID
}

// dispatchRec is the label/goto fallback rendering: a state variable
// driving a loop over the raw blocks
type dispatchRec struct {
	entry ir.BlockID
	arms  []dispatchArm
}

type dispatchArm struct {
	block ir.BlockID
	body  []linearStmt
}

func (*defRec) isLinear()      {}
func (*effectRec) isLinear()   {}
func (*assignRec) isLinear()   {}
func (*ifRec) isLinear()       {}
func (*whileRec) isLinear()    {}
func (*loopRec) isLinear()     {}
func (*switchRec) isLinear()   {}
func (*returnRec) isLinear()   {}
func (*breakRec) isLinear()    {}
func (*continueRec) isLinear() {}
func (*gotoRec) isLinear()     {}
func (*dispatchRec) isLinear() {}

// linearize flattens a shape into records
func linearize(fn *ir.Function, shape structurize.Shape) []linearStmt {
	return appendShape(fn, nil, shape)
}

func appendShape(fn *ir.Function, dst []linearStmt, shape structurize.Shape) []linearStmt {
	switch s := shape.(type) {
	case nil:
		return dst

	case *structurize.Seq:
		for _, child := range s.Shapes {
			dst = appendShape(fn, dst, child)
		}
		return dst

	case *structurize.BlockShape:
		return appendBlockInsts(fn, dst, s.ID)

	case *structurize.Assigns:
		for _, a := range s.List {
			dst = append(dst, &assignRec{target: a.Target, src: a.Src})
		}
		return dst

	case *structurize.IfElse:
		return append(dst, &ifRec{
			cond:    s.Cond,
			negated: s.Negated,
			then:    appendShape(fn, nil, s.Then),
			els:     appendShape(fn, nil, s.Else),
		})

	case *structurize.WhileShape:
		body := dropTrailingContinue(appendShape(fn, nil, s.Body))
		return append(dst, &whileRec{
			prelude: appendBlockInsts(fn, nil, s.Header),
			cond:    s.Cond,
			negated: s.Negated,
			body:    body,
		})

	case *structurize.LoopShape:
		body := dropTrailingContinue(appendShape(fn, nil, s.Body))
		return append(dst, &loopRec{body: body})

	case *structurize.BreakShape:
		return append(dst, &breakRec{depth: s.Depth})

	case *structurize.ContinueShape:
		return append(dst, &continueRec{})

	case *structurize.ReturnShape:
		return append(dst, &returnRec{value: s.Value})

	case *structurize.SwitchShape:
		rec := &switchRec{value: s.Value}
		for _, arm := range s.Cases {
			rec.cases = append(rec.cases, switchRecCase{
				consts: arm.Consts,
				body:   appendShape(fn, nil, arm.Body),
			})
		}
		if s.Default != nil {
			rec.def = appendShape(fn, nil, s.Default)
			if rec.def == nil {
				rec.def = []linearStmt{}
			}
		}
		return append(dst, rec)

	case *structurize.DispatchShape:
		return append(dst, linearizeDispatch(fn, s))
	}
	return dst
}

func appendBlockInsts(fn *ir.Function, dst []linearStmt, b ir.BlockID) []linearStmt {
	for _, id := range fn.Blocks[b].Insts {
		inst := fn.Inst(id)
		if ir.IsTerminator(inst.Op) {
			continue
		}
		if inst.Result != ir.NoValue {
			dst = append(dst, &defRec{value: inst.Result, op: inst.Op})
		} else {
			dst = append(dst, &effectRec{op: inst.Op})
		}
	}
	return dst
}

// dropTrailingContinue removes a redundant continue at the end of a loop
// body
func dropTrailingContinue(body []linearStmt) []linearStmt {
	if n := len(body); n > 0 {
		if _, ok := body[n-1].(*continueRec); ok {
			return body[:n-1]
		}
	}
	return body
}

// linearizeDispatch renders every block of the fallback shape as one state
// machine arm; terminators become state transitions
func linearizeDispatch(fn *ir.Function, s *structurize.DispatchShape) *dispatchRec {
	rec := &dispatchRec{entry: s.Entry}
	for _, b := range s.Blocks {
		body := appendBlockInsts(fn, nil, b)
		body = appendTransition(fn, body, fn.Terminator(b))
		rec.arms = append(rec.arms, dispatchArm{block: b, body: body})
	}
	return rec
}

func appendTransition(fn *ir.Function, dst []linearStmt, term ir.Op) []linearStmt {
	switch o := term.(type) {
	case *ir.Br:
		return appendEdge(fn, dst, o.Target, o.Args)

	case *ir.BrIf:
		return append(dst, &ifRec{
			cond: o.Cond,
			then: appendEdge(fn, nil, o.Then, o.ThenArgs),
			els:  appendEdge(fn, nil, o.Else, o.ElseArgs),
		})

	case *ir.Switch:
		rec := &switchRec{value: o.Value}
		for _, c := range o.Cases {
			rec.cases = append(rec.cases, switchRecCase{
				consts: []ir.Constant{c.Value},
				body:   appendEdge(fn, nil, c.Target, c.Args),
			})
		}
		rec.def = appendEdge(fn, nil, o.Default, o.DefaultArgs)
		return append(dst, rec)

	case *ir.Return:
		return append(dst, &returnRec{value: o.Value})
	}
	return dst
}

// appendEdge materializes one state transition: parameter assignments, then
// the jump
func appendEdge(fn *ir.Function, dst []linearStmt, target ir.BlockID, args []ir.ValueID) []linearStmt {
	for i, p := range fn.Blocks[target].Params {
		if p != args[i] {
			dst = append(dst, &assignRec{target: p, src: args[i]})
		}
	}
	return append(dst, &gotoRec{target: target})
}
