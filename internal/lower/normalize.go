package lower

import "reforge/internal/ir"

// The normalization passes clean up the raw statement tree into something a
// person would have written: dead bindings go away, branch assignments fold
// into ternaries, adjacent declarations and assignments merge. Every pass is
// idempotent; the runner cycles the catalog until a full round changes
// nothing.

const maxNormalizeRounds = 50

type normalizePass struct {
	name string
	run  func([]Stmt) ([]Stmt, bool)
}

func normalizePasses() []normalizePass {
	return []normalizePass{
		{"remove-dead-decls", removeDeadDecls},
		{"impure-init-to-stmt", impureInitToStmt},
		{"invert-empty-then", invertEmptyThen},
		{"truncate-unreachable", truncateUnreachable},
		{"switch-recovery", switchRecovery},
		{"ternary-assign", ternaryAssign},
		{"min-max", recognizeMinMax},
		{"forward-substitute", forwardSubstitute},
		{"cond-ternary-to-bool", condTernaryToBool},
		{"bool-ternary-merge", boolTernaryMerge},
		{"narrow-decl-scope", narrowDeclScope},
		{"merge-decl-assign", mergeDeclAssign},
		{"inline-single-use-decl", inlineSingleUseDecl},
		{"compound-assign", compoundAssign},
		{"for-recovery", forRecovery},
	}
}

// Normalize runs the cleanup catalog to a fixpoint
func Normalize(stmts []Stmt) []Stmt {
	passes := normalizePasses()
	for round := 0; round < maxNormalizeRounds; round++ {
		changed := false
		for _, p := range passes {
			var c bool
			stmts, c = p.run(stmts)
			changed = changed || c
		}
		if !changed {
			break
		}
	}
	return stmts
}

// eachList applies f to every statement list in the tree, innermost first
func eachList(stmts []Stmt, f func([]Stmt) ([]Stmt, bool)) ([]Stmt, bool) {
	changed := false
	for _, s := range stmts {
		switch v := s.(type) {
		case *IfStmt:
			v.Then, changed = applyList(v.Then, f, changed)
			v.Else, changed = applyList(v.Else, f, changed)
		case *WhileStmt:
			v.Body, changed = applyList(v.Body, f, changed)
		case *ForStmt:
			v.Body, changed = applyList(v.Body, f, changed)
		case *SwitchStmt:
			for i := range v.Cases {
				v.Cases[i].Body, changed = applyList(v.Cases[i].Body, f, changed)
			}
			if v.Default != nil {
				v.Default, changed = applyList(v.Default, f, changed)
			}
		}
	}
	out, c := f(stmts)
	return out, changed || c
}

func applyList(stmts []Stmt, f func([]Stmt) ([]Stmt, bool), prior bool) ([]Stmt, bool) {
	out, c := eachList(stmts, f)
	return out, prior || c
}

// --- pass 1: drop declarations nothing reads or writes ---

func removeDeadDecls(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i, s := range list {
			if d, ok := s.(*DeclStmt); ok && (d.Init == nil || pureExpr(d.Init)) {
				if countRefs(list[i+1:], d.Name) == 0 {
					changed = true
					continue
				}
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// --- pass 2: unused bindings with effectful initializers keep the effect ---

func impureInitToStmt(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		for i, s := range list {
			d, ok := s.(*DeclStmt)
			if !ok || d.Init == nil || pureExpr(d.Init) {
				continue
			}
			if countRefs(list[i+1:], d.Name) == 0 {
				list[i] = &ExprStmt{Expr: d.Init}
				changed = true
			}
		}
		return list, changed
	})
}

// --- pass 3: if with an empty then-arm flips its condition ---

func invertEmptyThen(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for _, s := range list {
			if f, ok := s.(*IfStmt); ok && len(f.Then) == 0 {
				if len(f.Else) == 0 {
					if pureExpr(f.Cond) {
						changed = true
						continue
					}
				} else {
					f.Cond = notExpr(f.Cond)
					f.Then, f.Else = f.Else, nil
					changed = true
				}
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// --- pass 4: statements after a jump never run ---

func truncateUnreachable(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		for i, s := range list {
			if terminates(s) && i+1 < len(list) {
				return list[:i+1], true
			}
		}
		return list, false
	})
}

// terminates reports whether control never reaches the statement after s.
// An if/else terminates when both arms do.
func terminates(s Stmt) bool {
	switch v := s.(type) {
	case *ReturnStmt, *BreakStmt, *ContinueStmt:
		return true
	case *IfStmt:
		return listTerminates(v.Then) && listTerminates(v.Else)
	}
	return false
}

func listTerminates(list []Stmt) bool {
	return len(list) > 0 && terminates(list[len(list)-1])
}

// --- pass 5: equality chains over one discriminant become switches ---

func switchRecovery(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i := 0; i < len(list); i++ {
			if sw, consumed := guardRunToSwitch(list[i:]); sw != nil {
				out = append(out, sw)
				i += consumed - 1
				changed = true
				continue
			}
			if sw := chainToSwitch(list[i]); sw != nil {
				out = append(out, sw)
				changed = true
				continue
			}
			out = append(out, list[i])
		}
		return out, changed
	})
}

// chainToSwitch folds an else-if chain testing one discriminant against
// distinct constants into a switch; the trailing else becomes the default.
func chainToSwitch(s Stmt) *SwitchStmt {
	f, ok := s.(*IfStmt)
	if !ok {
		return nil
	}
	disc, c, ok := eqCase(f.Cond)
	if !ok {
		return nil
	}
	cases := []SwitchStmtCase{{Consts: []ir.Constant{c}, Body: f.Then}}
	rest := f.Else
	for len(rest) == 1 {
		next, ok := rest[0].(*IfStmt)
		if !ok {
			break
		}
		d, c, ok := eqCase(next.Cond)
		if !ok || !exprEqual(disc, d) {
			break
		}
		cases = append(cases, SwitchStmtCase{Consts: []ir.Constant{c}, Body: next.Then})
		rest = next.Else
	}
	if !switchWorthwhile(cases) {
		return nil
	}
	return &SwitchStmt{Value: disc, Cases: cases, Default: rest}
}

// guardRunToSwitch folds adjacent guard-style ifs (no else, terminating
// bodies) over one discriminant into a switch with no default. Control falls
// through to the following statements exactly as the guards did.
func guardRunToSwitch(list []Stmt) (*SwitchStmt, int) {
	var disc Expr
	var cases []SwitchStmtCase
	n := 0
	for _, s := range list {
		f, ok := s.(*IfStmt)
		if !ok || len(f.Else) != 0 || !listTerminates(f.Then) {
			break
		}
		d, c, ok := eqCase(f.Cond)
		if !ok {
			break
		}
		if disc == nil {
			disc = d
		} else if !exprEqual(disc, d) {
			break
		}
		cases = append(cases, SwitchStmtCase{Consts: []ir.Constant{c}, Body: f.Then})
		n++
	}
	if !switchWorthwhile(cases) {
		return nil, 0
	}
	return &SwitchStmt{Value: disc, Cases: cases}, n
}

// eqCase matches "disc == lit" (either operand order) with a pure,
// context-free discriminant
func eqCase(cond Expr) (Expr, ir.Constant, bool) {
	cmp, ok := cond.(*CmpExpr)
	if !ok || cmp.Kind != ir.CmpEq {
		return nil, ir.Constant{}, false
	}
	if lit, ok := cmp.Rhs.(*Lit); ok && stableDiscriminant(cmp.Lhs) {
		return cmp.Lhs, lit.Value, true
	}
	if lit, ok := cmp.Lhs.(*Lit); ok && stableDiscriminant(cmp.Rhs) {
		return cmp.Rhs, lit.Value, true
	}
	return nil, ir.Constant{}, false
}

func stableDiscriminant(e Expr) bool {
	return pureExpr(e) && !hasContextualRead(e)
}

// switchWorthwhile wants at least two arms over pairwise-distinct constants
func switchWorthwhile(cases []SwitchStmtCase) bool {
	if len(cases) < 2 {
		return false
	}
	for i, a := range cases {
		for _, b := range cases[i+1:] {
			if a.Consts[0].Equal(b.Consts[0]) {
				return false
			}
		}
	}
	return true
}

// --- pass 6: both-arms assignments and returns collapse to ternaries ---

func ternaryAssign(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		for i, s := range list {
			f, ok := s.(*IfStmt)
			if !ok || len(f.Then) != 1 || len(f.Else) != 1 {
				continue
			}
			if merged := mergeArms(f.Cond, f.Then[0], f.Else[0]); merged != nil {
				list[i] = merged
				changed = true
			}
		}
		return list, changed
	})
}

func mergeArms(cond Expr, then, els Stmt) Stmt {
	switch t := then.(type) {
	case *AssignStmt:
		e, ok := els.(*AssignStmt)
		if !ok || t.Op != "" || e.Op != "" || !exprEqual(t.Target, e.Target) {
			return nil
		}
		return &AssignStmt{
			Target: t.Target,
			Value:  &TernaryExpr{Cond: cond, Then: t.Value, Else: e.Value},
		}
	case *ReturnStmt:
		e, ok := els.(*ReturnStmt)
		if !ok || t.Value == nil || e.Value == nil {
			return nil
		}
		return &ReturnStmt{Value: &TernaryExpr{Cond: cond, Then: t.Value, Else: e.Value}}
	}
	return nil
}

// --- pass 7: comparison-guarded ternaries over the compared operands are
// min/max ---

func recognizeMinMax(stmts []Stmt) ([]Stmt, bool) {
	changed := rewriteExprs(stmts, func(e Expr) (Expr, bool) {
		t, ok := e.(*TernaryExpr)
		if !ok {
			return e, false
		}
		cmp, ok := t.Cond.(*CmpExpr)
		if !ok {
			return e, false
		}
		var lo, hi Expr
		switch cmp.Kind {
		case ir.CmpLt, ir.CmpLe:
			lo, hi = cmp.Lhs, cmp.Rhs
		case ir.CmpGt, ir.CmpGe:
			lo, hi = cmp.Rhs, cmp.Lhs
		default:
			return e, false
		}
		switch {
		case exprEqual(t.Then, lo) && exprEqual(t.Else, hi):
			return &CallExpr{Callee: "min", Args: []Expr{cmp.Lhs, cmp.Rhs}}, true
		case exprEqual(t.Then, hi) && exprEqual(t.Else, lo):
			return &CallExpr{Callee: "max", Args: []Expr{cmp.Lhs, cmp.Rhs}}, true
		}
		return e, false
	})
	return stmts, changed
}

// --- pass 8: an assignment read once by the very next statement dissolves
// into it ---

func forwardSubstitute(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		local := make(map[string]bool) // only locally-scoped targets may dissolve
		out := list[:0]
		for i := 0; i < len(list); i++ {
			s := list[i]
			if d, isDecl := s.(*DeclStmt); isDecl {
				local[d.Name] = true
			}
			a, ok := s.(*AssignStmt)
			if ok && a.Op == "" && i+1 < len(list) {
				if ref, isVar := a.Target.(*VarRef); isVar && local[ref.Name] &&
					substitutable(a.Value, ref.Name, list[i+1:], true) {
					substituteVar(list[i+1], ref.Name, a.Value)
					changed = true
					continue
				}
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// --- pass 9: a ternary repeating its own condition in an arm is && or || ---

func condTernaryToBool(stmts []Stmt) ([]Stmt, bool) {
	changed := rewriteExprs(stmts, func(e Expr) (Expr, bool) {
		t, ok := e.(*TernaryExpr)
		if !ok || !pureExpr(t.Cond) {
			return e, false
		}
		if exprEqual(t.Cond, t.Else) {
			return &BinaryExpr{Op: ir.BinAnd, Lhs: t.Cond, Rhs: t.Then}, true
		}
		if exprEqual(t.Cond, t.Then) {
			return &BinaryExpr{Op: ir.BinOr, Lhs: t.Cond, Rhs: t.Else}, true
		}
		return e, false
	})
	return stmts, changed
}

// --- pass 10: ternaries that pick boolean literals are the condition
// itself ---

func boolTernaryMerge(stmts []Stmt) ([]Stmt, bool) {
	changed := rewriteExprs(stmts, func(e Expr) (Expr, bool) {
		t, ok := e.(*TernaryExpr)
		if !ok {
			return e, false
		}
		tv, tok := boolLit(t.Then)
		ev, eok := boolLit(t.Else)
		if !tok || !eok || tv == ev {
			return e, false
		}
		if tv {
			return t.Cond, true
		}
		return notExpr(t.Cond), true
	})
	return stmts, changed
}

func boolLit(e Expr) (bool, bool) {
	l, ok := e.(*Lit)
	if !ok || l.Value.Kind != ir.ConstBool {
		return false, false
	}
	return l.Value.Bool, true
}

// --- pass 11: an uninitialized declaration used by a single branch moves
// into that branch ---

func narrowDeclScope(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i, s := range list {
			d, ok := s.(*DeclStmt)
			if ok && d.Init == nil && narrowInto(list[i+1:], d) {
				changed = true
				continue
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// narrowInto moves d into the one branch that references it; false when the
// name is used more widely than a single if or switch arm
func narrowInto(rest []Stmt, d *DeclStmt) bool {
	owner := -1
	for i, s := range rest {
		if stmtRefs(s, d.Name) {
			if owner >= 0 {
				return false
			}
			owner = i
		}
	}
	if owner < 0 {
		return false
	}
	switch v := rest[owner].(type) {
	case *IfStmt:
		if exprRefs(v.Cond, d.Name) {
			return false
		}
		inThen, inElse := countRefs(v.Then, d.Name) > 0, countRefs(v.Else, d.Name) > 0
		if inThen && !inElse {
			v.Then = append([]Stmt{d}, v.Then...)
			return true
		}
		if inElse && !inThen {
			v.Else = append([]Stmt{d}, v.Else...)
			return true
		}
	case *SwitchStmt:
		if exprRefs(v.Value, d.Name) {
			return false
		}
		used := -1
		for i := range v.Cases {
			if countRefs(v.Cases[i].Body, d.Name) > 0 {
				if used >= 0 {
					return false
				}
				used = i
			}
		}
		if countRefs(v.Default, d.Name) > 0 {
			if used >= 0 {
				return false
			}
			v.Default = append([]Stmt{d}, v.Default...)
			return true
		}
		if used >= 0 {
			v.Cases[used].Body = append([]Stmt{d}, v.Cases[used].Body...)
			return true
		}
	}
	return false
}

// --- pass 12: an uninitialized declaration followed by its first
// assignment becomes an initialized one ---

func mergeDeclAssign(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i := 0; i < len(list); i++ {
			s := list[i]
			d, ok := s.(*DeclStmt)
			if ok && d.Init == nil && i+1 < len(list) {
				if a, isAssign := list[i+1].(*AssignStmt); isAssign && a.Op == "" {
					if ref, isVar := a.Target.(*VarRef); isVar && ref.Name == d.Name && !exprRefs(a.Value, d.Name) {
						out = append(out, &DeclStmt{Name: d.Name, Type: d.Type, Init: a.Value, Mutable: true})
						i++
						changed = true
						continue
					}
				}
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// --- pass 13: a binding with a pure initializer and a single read inlines
// into it ---

func inlineSingleUseDecl(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i, s := range list {
			d, ok := s.(*DeclStmt)
			if ok && d.Init != nil && substitutable(d.Init, d.Name, list[i+1:], false) {
				for _, rest := range list[i+1:] {
					if substituteVar(rest, d.Name, d.Init) {
						break
					}
				}
				changed = true
				continue
			}
			out = append(out, s)
		}
		return out, changed
	})
}

// --- pass 14: self-referencing assignments become compound assignments and
// increments ---

func compoundAssign(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		for i, s := range list {
			a, ok := s.(*AssignStmt)
			if !ok || a.Op != "" {
				continue
			}
			ref, isVar := a.Target.(*VarRef)
			if !isVar {
				continue
			}
			bin, isBin := a.Value.(*BinaryExpr)
			if !isBin {
				continue
			}
			var operand Expr
			if l, lok := bin.Lhs.(*VarRef); lok && l.Name == ref.Name {
				operand = bin.Rhs
			} else if r, rok := bin.Rhs.(*VarRef); rok && r.Name == ref.Name &&
				(bin.Op == ir.BinAdd || bin.Op == ir.BinMul) {
				operand = bin.Lhs
			} else {
				continue
			}
			if exprRefs(operand, ref.Name) {
				continue
			}
			if one, isOne := operand.(*Lit); isOne && one.Value.Kind == ir.ConstInt && one.Value.Int == 1 {
				switch bin.Op {
				case ir.BinAdd:
					list[i] = &IncDecStmt{Target: ref}
					changed = true
					continue
				case ir.BinSub:
					list[i] = &IncDecStmt{Target: ref, Dec: true}
					changed = true
					continue
				}
			}
			a.Op = bin.Op
			a.Value = operand
			changed = true
		}
		return list, changed
	})
}

// --- pass 15: a counter declaration, its while loop, and the trailing
// update fuse into a for ---

func forRecovery(stmts []Stmt) ([]Stmt, bool) {
	return eachList(stmts, func(list []Stmt) ([]Stmt, bool) {
		changed := false
		out := list[:0]
		for i := 0; i < len(list); i++ {
			d, isDecl := list[i].(*DeclStmt)
			if isDecl && d.Init != nil && d.Mutable && i+1 < len(list) {
				if w, isWhile := list[i+1].(*WhileStmt); isWhile {
					if post, body, ok := forParts(w, d.Name); ok && countRefs(list[i+2:], d.Name) == 0 {
						out = append(out, &ForStmt{Init: d, Cond: w.Cond, Post: post, Body: body})
						i++
						changed = true
						continue
					}
				}
			}
			out = append(out, list[i])
		}
		return out, changed
	})
}

// forParts peels the trailing update of name off a while body. A continue in
// the body would skip a hoisted update, so those loops stay whiles.
func forParts(w *WhileStmt, name string) (Stmt, []Stmt, bool) {
	if !exprRefs(w.Cond, name) || len(w.Body) == 0 {
		return nil, nil, false
	}
	last := w.Body[len(w.Body)-1]
	switch v := last.(type) {
	case *IncDecStmt:
		if ref, ok := v.Target.(*VarRef); !ok || ref.Name != name {
			return nil, nil, false
		}
	case *AssignStmt:
		if ref, ok := v.Target.(*VarRef); !ok || ref.Name != name {
			return nil, nil, false
		}
	default:
		return nil, nil, false
	}
	body := w.Body[:len(w.Body)-1]
	if containsLoopContinue(body) {
		return nil, nil, false
	}
	return last, body, true
}

// containsLoopContinue finds a continue binding to the enclosing loop,
// looking through ifs and switches but not into nested loops
func containsLoopContinue(stmts []Stmt) bool {
	for _, s := range stmts {
		switch v := s.(type) {
		case *ContinueStmt:
			return true
		case *IfStmt:
			if containsLoopContinue(v.Then) || containsLoopContinue(v.Else) {
				return true
			}
		case *SwitchStmt:
			for _, c := range v.Cases {
				if containsLoopContinue(c.Body) {
					return true
				}
			}
			if containsLoopContinue(v.Default) {
				return true
			}
		}
	}
	return false
}

// --- shared analysis helpers ---

// substitutable reports whether an expression bound to name can replace the
// name's single remaining read. adjacentOnly restricts the read to the very
// next statement. The expression's free variables must not be written
// between the binding and the read; a write by the reading statement itself
// is fine, its right-hand side evaluates first.
func substitutable(e Expr, name string, rest []Stmt, adjacentOnly bool) bool {
	if !pureExpr(e) || hasContextualRead(e) {
		return false
	}
	if countRefs(rest, name) != 1 || countWrites(rest, name) != 0 {
		return false
	}
	reader := -1
	for i, s := range rest {
		if stmtRefs(s, name) {
			reader = i
			break
		}
	}
	if reader < 0 || (adjacentOnly && reader != 0) {
		return false
	}
	simpleReader := false
	switch rest[reader].(type) {
	case *DeclStmt, *AssignStmt, *IncDecStmt, *ExprStmt, *ReturnStmt:
		simpleReader = true
	}
	safe := true
	exprVars(e, func(v string) {
		if countWrites(rest[:reader], v) > 0 {
			safe = false
		}
		if !simpleReader && countWrites(rest[reader:reader+1], v) > 0 {
			safe = false
		}
	})
	return safe
}

func pureExpr(e Expr) bool {
	switch v := e.(type) {
	case *Lit, *VarRef, *GlobalExpr:
		return true
	case *BinaryExpr:
		return pureExpr(v.Lhs) && pureExpr(v.Rhs)
	case *CmpExpr:
		return pureExpr(v.Lhs) && pureExpr(v.Rhs)
	case *UnaryExpr:
		return pureExpr(v.Operand)
	case *TernaryExpr:
		return pureExpr(v.Cond) && pureExpr(v.Then) && pureExpr(v.Else)
	case *FieldExpr:
		return pureExpr(v.Object)
	case *IndexExpr:
		return pureExpr(v.Object) && pureExpr(v.Key)
	case *CastExpr:
		return pureExpr(v.Value)
	case *TypeCheckExpr:
		return pureExpr(v.Value)
	case *ArrayExpr:
		return allPure(v.Elems)
	case *TupleExpr:
		return allPure(v.Elems)
	case *StructExpr:
		for _, f := range v.Fields {
			if !pureExpr(f.Value) {
				return false
			}
		}
		return true
	}
	return false
}

func allPure(es []Expr) bool {
	for _, e := range es {
		if !pureExpr(e) {
			return false
		}
	}
	return true
}

// hasContextualRead reports reads of mutable state a statement in between
// could change
func hasContextualRead(e Expr) bool {
	found := false
	walkExpr(e, func(sub Expr) {
		switch sub.(type) {
		case *GlobalExpr, *FieldExpr, *IndexExpr:
			found = true
		}
	})
	return found
}

func exprVars(e Expr, f func(string)) {
	walkExpr(e, func(sub Expr) {
		if ref, ok := sub.(*VarRef); ok {
			f(ref.Name)
		}
	})
}

func exprRefs(e Expr, name string) bool {
	if e == nil {
		return false
	}
	found := false
	exprVars(e, func(v string) {
		if v == name {
			found = true
		}
	})
	return found
}

// countRefs counts every occurrence of name in a statement list, reads and
// write targets alike
func countRefs(stmts []Stmt, name string) int {
	n := 0
	for _, s := range stmts {
		walkStmtExprs(s, func(e Expr) {
			if ref, ok := e.(*VarRef); ok && ref.Name == name {
				n++
			}
		})
	}
	return n
}

func stmtRefs(s Stmt, name string) bool {
	found := false
	walkStmtExprs(s, func(e Expr) {
		if ref, ok := e.(*VarRef); ok && ref.Name == name {
			found = true
		}
	})
	return found
}

func countWrites(stmts []Stmt, name string) int {
	n := 0
	var walk func([]Stmt)
	walk = func(list []Stmt) {
		for _, s := range list {
			switch v := s.(type) {
			case *AssignStmt:
				if ref, ok := v.Target.(*VarRef); ok && ref.Name == name {
					n++
				}
			case *IncDecStmt:
				if ref, ok := v.Target.(*VarRef); ok && ref.Name == name {
					n++
				}
			case *IfStmt:
				walk(v.Then)
				walk(v.Else)
			case *WhileStmt:
				walk(v.Body)
			case *ForStmt:
				if v.Init != nil {
					walk([]Stmt{v.Init})
				}
				if v.Post != nil {
					walk([]Stmt{v.Post})
				}
				walk(v.Body)
			case *SwitchStmt:
				for _, c := range v.Cases {
					walk(c.Body)
				}
				walk(v.Default)
			}
		}
	}
	walk(stmts)
	return n
}

// --- expression walking and rewriting ---

func walkExpr(e Expr, f func(Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch v := e.(type) {
	case *BinaryExpr:
		walkExpr(v.Lhs, f)
		walkExpr(v.Rhs, f)
	case *CmpExpr:
		walkExpr(v.Lhs, f)
		walkExpr(v.Rhs, f)
	case *UnaryExpr:
		walkExpr(v.Operand, f)
	case *TernaryExpr:
		walkExpr(v.Cond, f)
		walkExpr(v.Then, f)
		walkExpr(v.Else, f)
	case *CallExpr:
		for _, a := range v.Args {
			walkExpr(a, f)
		}
	case *IndirectCallExpr:
		walkExpr(v.Callee, f)
		for _, a := range v.Args {
			walkExpr(a, f)
		}
	case *SysCallExpr:
		for _, a := range v.Args {
			walkExpr(a, f)
		}
	case *NewExpr:
		for _, a := range v.Args {
			walkExpr(a, f)
		}
	case *CastExpr:
		walkExpr(v.Value, f)
	case *TypeCheckExpr:
		walkExpr(v.Value, f)
	case *FieldExpr:
		walkExpr(v.Object, f)
	case *IndexExpr:
		walkExpr(v.Object, f)
		walkExpr(v.Key, f)
	case *ArrayExpr:
		for _, el := range v.Elems {
			walkExpr(el, f)
		}
	case *TupleExpr:
		for _, el := range v.Elems {
			walkExpr(el, f)
		}
	case *StructExpr:
		for _, fl := range v.Fields {
			walkExpr(fl.Value, f)
		}
	}
}

// walkStmtExprs visits every expression of a statement and its nested
// bodies
func walkStmtExprs(s Stmt, f func(Expr)) {
	switch v := s.(type) {
	case *DeclStmt:
		walkExpr(v.Init, f)
	case *AssignStmt:
		walkExpr(v.Target, f)
		walkExpr(v.Value, f)
	case *IncDecStmt:
		walkExpr(v.Target, f)
	case *ExprStmt:
		walkExpr(v.Expr, f)
	case *IfStmt:
		walkExpr(v.Cond, f)
		for _, t := range v.Then {
			walkStmtExprs(t, f)
		}
		for _, t := range v.Else {
			walkStmtExprs(t, f)
		}
	case *WhileStmt:
		walkExpr(v.Cond, f)
		for _, t := range v.Body {
			walkStmtExprs(t, f)
		}
	case *ForStmt:
		if v.Init != nil {
			walkStmtExprs(v.Init, f)
		}
		walkExpr(v.Cond, f)
		if v.Post != nil {
			walkStmtExprs(v.Post, f)
		}
		for _, t := range v.Body {
			walkStmtExprs(t, f)
		}
	case *ReturnStmt:
		walkExpr(v.Value, f)
	case *SwitchStmt:
		walkExpr(v.Value, f)
		for _, c := range v.Cases {
			for _, t := range c.Body {
				walkStmtExprs(t, f)
			}
		}
		for _, t := range v.Default {
			walkStmtExprs(t, f)
		}
	}
}

// rewriteExprs rewrites every expression position in the tree bottom-up
func rewriteExprs(stmts []Stmt, f func(Expr) (Expr, bool)) bool {
	changed := false
	for _, s := range stmts {
		if rewriteStmtExprs(s, f) {
			changed = true
		}
	}
	return changed
}

func rewriteStmtExprs(s Stmt, f func(Expr) (Expr, bool)) bool {
	changed := false
	re := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		out, c := rewriteExpr(e, f)
		changed = changed || c
		return out
	}
	switch v := s.(type) {
	case *DeclStmt:
		v.Init = re(v.Init)
	case *AssignStmt:
		v.Target = re(v.Target)
		v.Value = re(v.Value)
	case *IncDecStmt:
		v.Target = re(v.Target)
	case *ExprStmt:
		v.Expr = re(v.Expr)
	case *IfStmt:
		v.Cond = re(v.Cond)
		changed = rewriteExprs(v.Then, f) || changed
		changed = rewriteExprs(v.Else, f) || changed
	case *WhileStmt:
		v.Cond = re(v.Cond)
		changed = rewriteExprs(v.Body, f) || changed
	case *ForStmt:
		if v.Init != nil {
			changed = rewriteStmtExprs(v.Init, f) || changed
		}
		v.Cond = re(v.Cond)
		if v.Post != nil {
			changed = rewriteStmtExprs(v.Post, f) || changed
		}
		changed = rewriteExprs(v.Body, f) || changed
	case *ReturnStmt:
		v.Value = re(v.Value)
	case *SwitchStmt:
		v.Value = re(v.Value)
		for _, c := range v.Cases {
			changed = rewriteExprs(c.Body, f) || changed
		}
		changed = rewriteExprs(v.Default, f) || changed
	}
	return changed
}

func rewriteExpr(e Expr, f func(Expr) (Expr, bool)) (Expr, bool) {
	changed := false
	child := func(sub Expr) Expr {
		out, c := rewriteExpr(sub, f)
		changed = changed || c
		return out
	}
	switch v := e.(type) {
	case *BinaryExpr:
		v.Lhs, v.Rhs = child(v.Lhs), child(v.Rhs)
	case *CmpExpr:
		v.Lhs, v.Rhs = child(v.Lhs), child(v.Rhs)
	case *UnaryExpr:
		v.Operand = child(v.Operand)
	case *TernaryExpr:
		v.Cond, v.Then, v.Else = child(v.Cond), child(v.Then), child(v.Else)
	case *CallExpr:
		for i := range v.Args {
			v.Args[i] = child(v.Args[i])
		}
	case *IndirectCallExpr:
		v.Callee = child(v.Callee)
		for i := range v.Args {
			v.Args[i] = child(v.Args[i])
		}
	case *SysCallExpr:
		for i := range v.Args {
			v.Args[i] = child(v.Args[i])
		}
	case *NewExpr:
		for i := range v.Args {
			v.Args[i] = child(v.Args[i])
		}
	case *CastExpr:
		v.Value = child(v.Value)
	case *TypeCheckExpr:
		v.Value = child(v.Value)
	case *FieldExpr:
		v.Object = child(v.Object)
	case *IndexExpr:
		v.Object, v.Key = child(v.Object), child(v.Key)
	case *ArrayExpr:
		for i := range v.Elems {
			v.Elems[i] = child(v.Elems[i])
		}
	case *TupleExpr:
		for i := range v.Elems {
			v.Elems[i] = child(v.Elems[i])
		}
	case *StructExpr:
		for i := range v.Fields {
			v.Fields[i].Value = child(v.Fields[i].Value)
		}
	}
	out, c := f(e)
	return out, changed || c
}

// substituteVar replaces the single read of name inside one statement
func substituteVar(s Stmt, name string, repl Expr) bool {
	done := false
	rewriteStmtExprs(s, func(e Expr) (Expr, bool) {
		if done {
			return e, false
		}
		if ref, ok := e.(*VarRef); ok && ref.Name == name {
			done = true
			return repl, true
		}
		return e, false
	})
	return done
}

// exprEqual compares simple expressions structurally; complex or effectful
// forms compare unequal
func exprEqual(a, b Expr) bool {
	switch x := a.(type) {
	case *Lit:
		y, ok := b.(*Lit)
		return ok && x.Value.Equal(y.Value)
	case *VarRef:
		y, ok := b.(*VarRef)
		return ok && x.Name == y.Name
	case *GlobalExpr:
		y, ok := b.(*GlobalExpr)
		return ok && x.Name == y.Name
	case *FieldExpr:
		y, ok := b.(*FieldExpr)
		return ok && x.Field == y.Field && exprEqual(x.Object, y.Object)
	case *UnaryExpr:
		y, ok := b.(*UnaryExpr)
		return ok && x.Op == y.Op && exprEqual(x.Operand, y.Operand)
	}
	return false
}
