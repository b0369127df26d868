package lower

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// Phase three: the linear form becomes a statement tree. Values marked for
// inlining dissolve into their consumer's expression; the rest become
// declarations. Impure single-use definitions inline only into the
// immediately following statement, a structural check that conservatively
// rejects safe reorderings rather than reasoning about aliasing.

type emitter struct {
	fn       *ir.Function
	res      *resolution
	declared map[ir.ValueID]bool
}

func emit(fn *ir.Function, res *resolution, recs []linearStmt) []Stmt {
	e := &emitter{fn: fn, res: res, declared: make(map[ir.ValueID]bool)}
	for _, p := range fn.Blocks[fn.Entry].Params {
		e.declared[p] = true
	}
	return e.emitList(recs)
}

func (e *emitter) emitList(recs []linearStmt) []Stmt {
	var out []Stmt
	for i, rec := range recs {
		if def, ok := rec.(*defRec); ok && e.markAdjacentInline(def, recs, i) {
			continue
		}
		out = e.emitStmt(out, rec)
	}
	return out
}

// markAdjacentInline handles the impure single-use case: the definition
// folds into the next statement when that statement is its consumer, so no
// side effect can intervene
func (e *emitter) markAdjacentInline(def *defRec, recs []linearStmt, i int) bool {
	r := e.res
	if r.inline[def.value] || r.uses[def.value] != 1 {
		return false
	}
	if ir.Pure(def.op) && !ir.Contextual(def.op) {
		return false // pure inlining was already decided in resolution
	}
	if i+1 >= len(recs) {
		return false
	}
	for _, v := range directRefs(recs[i+1]) {
		if v == def.value {
			r.inline[def.value] = true
			return true
		}
	}
	return false
}

// directRefs lists the values a record reads exactly once before any of its
// nested statements run. Loop conditions are excluded: they re-evaluate
// every iteration.
func directRefs(rec linearStmt) []ir.ValueID {
	switch v := rec.(type) {
	case *defRec:
		return v.op.Operands()
	case *effectRec:
		return v.op.Operands()
	case *assignRec:
		return []ir.ValueID{v.src}
	case *ifRec:
		return []ir.ValueID{v.cond}
	case *switchRec:
		return []ir.ValueID{v.value}
	case *returnRec:
		if v.value != ir.NoValue {
			return []ir.ValueID{v.value}
		}
	}
	return nil
}

func (e *emitter) emitStmt(out []Stmt, rec linearStmt) []Stmt {
	r := e.res
	switch v := rec.(type) {
	case *defRec:
		if r.inline[v.value] {
			return out
		}
		if r.uses[v.value] == 0 && ir.Pure(v.op) {
			return out // dead and effect-free
		}
		e.declared[v.value] = true
		if _, isAlloc := v.op.(*ir.Alloc); isAlloc {
			return append(out, &DeclStmt{
				Name:    r.nameOf(v.value),
				Type:    e.fn.TypeOf(v.value),
				Mutable: true,
			})
		}
		return append(out, &DeclStmt{
			Name: r.nameOf(v.value),
			Type: e.fn.TypeOf(v.value),
			Init: e.exprFromOp(v.op),
		})

	case *effectRec:
		return append(out, e.effectStmt(v.op))

	case *assignRec:
		if v.target == v.src {
			return out
		}
		out = e.hoistTarget(out, v.target)
		src := e.exprOf(v.src)
		if ref, ok := src.(*VarRef); ok && ref.Name == r.nameOf(v.target) {
			return out
		}
		return append(out, &AssignStmt{Target: &VarRef{Name: r.nameOf(v.target)}, Value: src})

	case *ifRec:
		out = e.hoistAssignTargets(out, v.then, v.els)
		cond := e.exprOf(v.cond)
		if v.negated {
			cond = notExpr(cond)
		}
		return append(out, &IfStmt{
			Cond: cond,
			Then: e.emitList(v.then),
			Else: e.emitList(v.els),
		})

	case *whileRec:
		return e.emitWhile(out, v)

	case *loopRec:
		out = e.hoistAssignTargets(out, v.body)
		return append(out, &WhileStmt{Cond: trueLit(), Body: e.emitList(v.body)})

	case *switchRec:
		bodies := [][]linearStmt{v.def}
		for _, c := range v.cases {
			bodies = append(bodies, c.body)
		}
		out = e.hoistAssignTargets(out, bodies...)

		stmt := &SwitchStmt{Value: e.exprOf(v.value)}
		for _, c := range v.cases {
			stmt.Cases = append(stmt.Cases, SwitchStmtCase{Consts: c.consts, Body: e.emitList(c.body)})
		}
		if v.def != nil {
			stmt.Default = e.emitList(v.def)
			if stmt.Default == nil {
				stmt.Default = []Stmt{}
			}
		}
		return append(out, stmt)

	case *returnRec:
		if v.value == ir.NoValue {
			return append(out, &ReturnStmt{})
		}
		return append(out, &ReturnStmt{Value: e.exprOf(v.value)})

	case *breakRec:
		return append(out, &BreakStmt{Depth: v.depth})

	case *continueRec:
		return append(out, &ContinueStmt{})

	case *gotoRec:
		out = append(out, &AssignStmt{
			Target: &VarRef{Name: "state"},
			Value:  &Lit{Value: ir.IntConst(int64(v.target))},
		})
		return append(out, &ContinueStmt{})

	case *dispatchRec:
		return e.emitDispatch(out, v)
	}
	return out
}

// emitWhile folds the header prelude into the condition when every header
// instruction inlines away; otherwise the loop becomes while-true with an
// explicit exit test
func (e *emitter) emitWhile(out []Stmt, v *whileRec) []Stmt {
	out = e.hoistAssignTargets(out, v.prelude, v.body)

	e.foldPrelude(v)
	prelude := e.emitList(v.prelude)
	cond := e.exprOf(v.cond)
	if v.negated {
		cond = notExpr(cond)
	}

	if len(prelude) == 0 {
		return append(out, &WhileStmt{Cond: cond, Body: e.emitList(v.body)})
	}

	body := prelude
	body = append(body, &IfStmt{Cond: notExpr(cond), Then: []Stmt{&BreakStmt{}}})
	body = append(body, e.emitList(v.body)...)
	return append(out, &WhileStmt{Cond: trueLit(), Body: body})
}

// foldPrelude marks every header instruction for inlining when the whole
// header folds into the loop condition. The header and the condition
// evaluate contiguously each iteration, so effect-free definitions consumed
// only inside that window can dissolve even when they read loop-carried
// bindings.
func (e *emitter) foldPrelude(v *whileRec) {
	internal := make(map[ir.ValueID]int)
	for _, rec := range v.prelude {
		d, ok := rec.(*defRec)
		if !ok {
			return
		}
		for _, o := range d.op.Operands() {
			internal[o]++
		}
	}
	internal[v.cond]++

	for _, rec := range v.prelude {
		d := rec.(*defRec)
		if e.res.inline[d.value] {
			continue
		}
		if !ir.Pure(d.op) || e.res.uses[d.value] != 1 || internal[d.value] != 1 {
			return
		}
	}
	for _, rec := range v.prelude {
		e.res.inline[rec.(*defRec).value] = true
	}
}

// emitDispatch renders the fallback shape: a mutable state variable, the
// raw blocks as switch arms, transitions as state assignments
func (e *emitter) emitDispatch(out []Stmt, v *dispatchRec) []Stmt {
	out = append(out, &DeclStmt{
		Name:    "state",
		Type:    types.I64,
		Init:    &Lit{Value: ir.IntConst(int64(v.entry))},
		Mutable: true,
	})

	for _, arm := range v.arms {
		for _, p := range e.fn.Blocks[arm.block].Params {
			out = e.hoistTarget(out, p)
		}
		out = e.hoistAssignTargets(out, arm.body)
	}

	sw := &SwitchStmt{Value: &VarRef{Name: "state"}}
	for _, arm := range v.arms {
		sw.Cases = append(sw.Cases, SwitchStmtCase{
			Consts: []ir.Constant{ir.IntConst(int64(arm.block))},
			Body:   e.emitList(arm.body),
		})
	}
	return append(out, &WhileStmt{Cond: trueLit(), Body: []Stmt{sw}})
}

// hoistAssignTargets declares, ahead of a control construct, every binding
// the construct assigns that has no declaration yet
func (e *emitter) hoistAssignTargets(out []Stmt, bodies ...[]linearStmt) []Stmt {
	var targets []ir.ValueID
	seen := make(map[ir.ValueID]bool)
	for _, body := range bodies {
		collectAssignTargets(body, &targets, seen)
	}
	for _, t := range targets {
		out = e.hoistTarget(out, t)
	}
	return out
}

func (e *emitter) hoistTarget(out []Stmt, target ir.ValueID) []Stmt {
	if e.declared[target] {
		return out
	}
	e.declared[target] = true
	return append(out, &DeclStmt{
		Name:    e.res.nameOf(target),
		Type:    e.fn.TypeOf(target),
		Mutable: true,
	})
}

func collectAssignTargets(recs []linearStmt, targets *[]ir.ValueID, seen map[ir.ValueID]bool) {
	for _, rec := range recs {
		switch v := rec.(type) {
		case *assignRec:
			if !seen[v.target] {
				seen[v.target] = true
				*targets = append(*targets, v.target)
			}
		case *ifRec:
			collectAssignTargets(v.then, targets, seen)
			collectAssignTargets(v.els, targets, seen)
		case *whileRec:
			collectAssignTargets(v.prelude, targets, seen)
			collectAssignTargets(v.body, targets, seen)
		case *loopRec:
			collectAssignTargets(v.body, targets, seen)
		case *switchRec:
			for _, c := range v.cases {
				collectAssignTargets(c.body, targets, seen)
			}
			collectAssignTargets(v.def, targets, seen)
		case *dispatchRec:
			for _, arm := range v.arms {
				collectAssignTargets(arm.body, targets, seen)
			}
		}
	}
}

// exprOf resolves a value reference: an inlined expression or a binding
// read
func (e *emitter) exprOf(v ir.ValueID) Expr {
	if e.res.inline[v] {
		return e.exprFromOp(e.res.defs[v])
	}
	return &VarRef{Name: e.res.nameOf(v)}
}

func (e *emitter) exprList(vs []ir.ValueID) []Expr {
	out := make([]Expr, len(vs))
	for i, v := range vs {
		out[i] = e.exprOf(v)
	}
	return out
}

func (e *emitter) exprFromOp(op ir.Op) Expr {
	switch o := op.(type) {
	case *ir.Const:
		return &Lit{Value: o.Value}
	case *ir.Binary:
		return &BinaryExpr{Op: o.Op, Lhs: e.exprOf(o.Lhs), Rhs: e.exprOf(o.Rhs)}
	case *ir.Cmp:
		return &CmpExpr{Kind: o.Kind, Lhs: e.exprOf(o.Lhs), Rhs: e.exprOf(o.Rhs)}
	case *ir.Unary:
		return &UnaryExpr{Op: o.Op, Operand: e.exprOf(o.Operand)}
	case *ir.Load:
		if e.res.alloc[o.Addr] {
			return &VarRef{Name: e.res.nameOf(o.Addr)}
		}
		return &CallExpr{Callee: "load", Args: []Expr{e.exprOf(o.Addr)}}
	case *ir.FieldGet:
		return &FieldExpr{Object: e.exprOf(o.Object), Field: o.Field}
	case *ir.Index:
		return &IndexExpr{Object: e.exprOf(o.Object), Key: e.exprOf(o.Key)}
	case *ir.Call:
		return &CallExpr{Callee: o.Callee, Args: e.exprList(o.Args)}
	case *ir.CallIndirect:
		return &IndirectCallExpr{Callee: e.exprOf(o.Callee), Args: e.exprList(o.Args)}
	case *ir.SystemCall:
		return &SysCallExpr{System: o.System, Method: o.Method, Args: e.exprList(o.Args)}
	case *ir.New:
		return &NewExpr{Class: o.Class, Args: e.exprList(o.Args)}
	case *ir.Cast:
		return &CastExpr{Value: e.exprOf(o.Value), Ty: o.Ty}
	case *ir.TypeCheck:
		return &TypeCheckExpr{Value: e.exprOf(o.Value), Ty: o.Ty}
	case *ir.Yield:
		return &SysCallExpr{System: "coro", Method: "yield", Args: []Expr{e.exprOf(o.Value)}}
	case *ir.CoroCreate:
		return &SysCallExpr{System: "coro", Method: "create",
			Args: append([]Expr{&Lit{Value: ir.StringConst(o.Func)}}, e.exprList(o.Args)...)}
	case *ir.CoroResume:
		args := []Expr{e.exprOf(o.Coro)}
		if o.Arg != ir.NoValue {
			args = append(args, e.exprOf(o.Arg))
		}
		return &SysCallExpr{System: "coro", Method: "resume", Args: args}
	case *ir.ArrayInit:
		return &ArrayExpr{Elems: e.exprList(o.Elems)}
	case *ir.TupleInit:
		return &TupleExpr{Elems: e.exprList(o.Elems)}
	case *ir.StructInit:
		s := &StructExpr{Name: o.Name}
		for _, f := range o.Fields {
			s.Fields = append(s.Fields, StructExprField{Name: f.Name, Value: e.exprOf(f.Value)})
		}
		return s
	case *ir.GlobalRef:
		return &GlobalExpr{Name: o.Name}
	case *ir.Copy:
		return e.exprOf(o.Value)
	}
	return &VarRef{Name: "unsupported"}
}

func (e *emitter) effectStmt(op ir.Op) Stmt {
	switch o := op.(type) {
	case *ir.Store:
		if e.res.alloc[o.Addr] {
			return &AssignStmt{Target: &VarRef{Name: e.res.nameOf(o.Addr)}, Value: e.exprOf(o.Value)}
		}
		return &ExprStmt{Expr: &CallExpr{Callee: "store", Args: []Expr{e.exprOf(o.Addr), e.exprOf(o.Value)}}}
	case *ir.FieldSet:
		return &AssignStmt{
			Target: &FieldExpr{Object: e.exprOf(o.Object), Field: o.Field},
			Value:  e.exprOf(o.Value),
		}
	case *ir.IndexSet:
		return &AssignStmt{
			Target: &IndexExpr{Object: e.exprOf(o.Object), Key: e.exprOf(o.Key)},
			Value:  e.exprOf(o.Value),
		}
	case *ir.GlobalSet:
		return &AssignStmt{Target: &GlobalExpr{Name: o.Name}, Value: e.exprOf(o.Value)}
	}
	return &ExprStmt{Expr: e.exprFromOp(op)}
}

func trueLit() Expr {
	return &Lit{Value: ir.BoolConst(true)}
}

// notExpr negates a condition, folding double negation and flipping
// comparisons
func notExpr(e Expr) Expr {
	switch v := e.(type) {
	case *UnaryExpr:
		if v.Op == ir.UnNot {
			return v.Operand
		}
	case *CmpExpr:
		return &CmpExpr{Kind: v.Kind.Negate(), Lhs: v.Lhs, Rhs: v.Rhs}
	case *Lit:
		if v.Value.Kind == ir.ConstBool {
			return &Lit{Value: ir.BoolConst(!v.Value.Bool)}
		}
	}
	return &UnaryExpr{Op: ir.UnNot, Operand: e}
}
