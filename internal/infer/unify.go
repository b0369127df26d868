package infer

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// Constraint-based unification recovers what the forward pass cannot see:
// equality constraints between branch arguments and block parameters, call
// arguments and callee parameters, and return values and call results are
// solved with union-find across the whole module, then resolved class types
// are written back into still-Dynamic values.

// retValue is the pseudo-value standing for a function's return type in the
// union-find key space
const retValue ir.ValueID = -9

type termKey struct {
	fn *ir.Function
	v  ir.ValueID
}

type unifier struct {
	parent map[termKey]termKey
	rank   map[termKey]int
	typeOf map[termKey]types.Type
}

func newUnifier() *unifier {
	return &unifier{
		parent: make(map[termKey]termKey),
		rank:   make(map[termKey]int),
		typeOf: make(map[termKey]types.Type),
	}
}

func (u *unifier) find(k termKey) termKey {
	p, ok := u.parent[k]
	if !ok {
		u.parent[k] = k
		return k
	}
	if p == k {
		return k
	}
	root := u.find(p)
	u.parent[k] = root // path compression
	return root
}

func (u *unifier) observe(k termKey, t types.Type) {
	if !types.IsConcrete(t) {
		return
	}
	root := u.find(k)
	u.typeOf[root] = types.Merge(u.typeOf[root], t)
}

func (u *unifier) union(a, b termKey) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	u.typeOf[ra] = types.Merge(u.typeOf[ra], u.typeOf[rb])
	delete(u.typeOf, rb)
}

func (u *unifier) resolved(k termKey) types.Type {
	t := u.typeOf[u.find(k)]
	if t == nil {
		return types.Dynamic
	}
	return t
}

// solve generates and solves the constraint system, then writes resolved
// types back. Reports whether anything changed.
func (e *Engine) solve() bool {
	u := newUnifier()

	for _, fn := range e.mod.Functions {
		// seed with known concrete types
		for v, t := range fn.ValueTypes {
			u.observe(termKey{fn, ir.ValueID(v)}, t)
		}
		if types.IsConcrete(fn.Ret) {
			u.observe(termKey{fn, retValue}, fn.Ret)
		}

		for _, blk := range fn.Blocks {
			for _, instID := range blk.Insts {
				inst := fn.Inst(instID)
				e.constrain(u, fn, inst)
			}
		}
	}

	// write back: refine still-Dynamic values with resolved class types
	changed := false
	for _, fn := range e.mod.Functions {
		for v := range fn.ValueTypes {
			id := ir.ValueID(v)
			if !types.IsDynamic(fn.TypeOf(id)) {
				continue
			}
			if t := u.resolved(termKey{fn, id}); types.IsConcrete(t) {
				fn.SetType(id, t)
				changed = true
			}
		}
		// signature follows entry block parameters
		entry := fn.Blocks[fn.Entry]
		for i, p := range entry.Params {
			if i < len(fn.Params) && types.IsDynamic(fn.Params[i]) && types.IsConcrete(fn.TypeOf(p)) {
				fn.Params[i] = fn.TypeOf(p)
				changed = true
			}
		}
		if types.IsDynamic(fn.Ret) {
			if t := u.resolved(termKey{fn, retValue}); types.IsConcrete(t) {
				fn.Ret = t
				changed = true
			}
		}
	}
	return changed
}

func (e *Engine) constrain(u *unifier, fn *ir.Function, inst *ir.Inst) {
	switch o := inst.Op.(type) {
	case *ir.Br, *ir.BrIf, *ir.Switch:
		// branch-argument sources unify with target block parameters
		for _, target := range ir.Successors(inst.Op) {
			params := fn.Blocks[target].Params
			for i, arg := range ir.BranchArgs(inst.Op, target) {
				u.union(termKey{fn, arg}, termKey{fn, params[i]})
			}
		}

	case *ir.Return:
		if o.Value != ir.NoValue {
			u.union(termKey{fn, o.Value}, termKey{fn, retValue})
		}

	case *ir.Call:
		callee := e.idx.Lookup(o.Callee)
		if callee == nil {
			return
		}
		calleeParams := callee.Blocks[callee.Entry].Params
		for i, arg := range o.Args {
			if i < len(calleeParams) {
				u.union(termKey{fn, arg}, termKey{callee, calleeParams[i]})
			}
		}
		if inst.Result != ir.NoValue {
			u.union(termKey{fn, inst.Result}, termKey{callee, retValue})
		}

	case *ir.Copy:
		u.union(termKey{fn, inst.Result}, termKey{fn, o.Value})

	case *ir.Store:
		// a stored value constrains the allocation's cell type
		if def := fn.DefOf(o.Addr); def != ir.NoInst {
			if _, isAlloc := fn.Inst(def).Op.(*ir.Alloc); isAlloc {
				u.union(termKey{fn, o.Addr}, termKey{fn, o.Value})
			}
		}

	case *ir.Load:
		if def := fn.DefOf(o.Addr); def != ir.NoInst {
			if _, isAlloc := fn.Inst(def).Op.(*ir.Alloc); isAlloc {
				u.union(termKey{fn, inst.Result}, termKey{fn, o.Addr})
			}
		}
	}
}
