package lower

import (
	"fmt"

	"github.com/iancoleman/strcase"

	"reforge/internal/ir"
)

// Phase two: decide, per value, whether it inlines into its one consumer or
// becomes a named binding. The decisions are recorded here and consumed by
// phase three; keeping them out of the emission walk is what makes the
// inlining rules testable in isolation.

type resolution struct {
	fn *ir.Function

	uses    map[ir.ValueID]int
	defs    map[ir.ValueID]ir.Op
	inline  map[ir.ValueID]bool
	mutable map[ir.ValueID]bool // assigned through edge assignments
	alloc   map[ir.ValueID]bool // unpromoted stack cells, rendered as variables
	names   map[ir.ValueID]string
}

func resolve(fn *ir.Function, recs []linearStmt) *resolution {
	r := &resolution{
		fn:      fn,
		uses:    make(map[ir.ValueID]int),
		defs:    make(map[ir.ValueID]ir.Op),
		inline:  make(map[ir.ValueID]bool),
		mutable: make(map[ir.ValueID]bool),
		alloc:   make(map[ir.ValueID]bool),
		names:   make(map[ir.ValueID]string),
	}
	r.scan(recs)
	r.decide()
	r.assignNames(recs)
	return r
}

func (r *resolution) scan(recs []linearStmt) {
	for _, rec := range recs {
		switch v := rec.(type) {
		case *defRec:
			r.defs[v.value] = v.op
			if _, ok := v.op.(*ir.Alloc); ok {
				r.alloc[v.value] = true
				r.mutable[v.value] = true
			}
			r.countOperands(v.op)
		case *effectRec:
			r.countOperands(v.op)
		case *assignRec:
			r.mutable[v.target] = true
			r.uses[v.src]++
		case *ifRec:
			r.uses[v.cond]++
			r.scan(v.then)
			r.scan(v.els)
		case *whileRec:
			r.scan(v.prelude)
			if v.cond != ir.NoValue {
				r.uses[v.cond]++
			}
			r.scan(v.body)
		case *loopRec:
			r.scan(v.body)
		case *switchRec:
			r.uses[v.value]++
			for _, c := range v.cases {
				r.scan(c.body)
			}
			r.scan(v.def)
		case *returnRec:
			if v.value != ir.NoValue {
				r.uses[v.value]++
			}
		case *dispatchRec:
			for _, arm := range v.arms {
				r.scan(arm.body)
			}
		}
	}
}

func (r *resolution) countOperands(op ir.Op) {
	for _, v := range op.Operands() {
		r.uses[v]++
	}
}

// decide marks which definitions substitute into their consumer. Constants
// always inline; a pure single-use definition inlines unless it could
// observe later mutation, either through a contextual operation or by
// reading a mutable binding.
func (r *resolution) decide() {
	for v, op := range r.defs {
		if _, ok := op.(*ir.Const); ok {
			r.inline[v] = true
			continue
		}
		if r.uses[v] != 1 {
			continue
		}
		if !ir.Pure(op) || ir.Contextual(op) {
			continue
		}
		if r.readsMutableState(op) {
			continue
		}
		r.inline[v] = true
	}
}

// readsMutableState reports whether any transitive operand of an inlined
// expression would read a binding that can change between definition and
// use
func (r *resolution) readsMutableState(op ir.Op) bool {
	for _, v := range op.Operands() {
		if r.mutable[v] || r.alloc[v] {
			return true
		}
		if def, ok := r.defs[v]; ok && r.wouldInline(v) && r.readsMutableState(def) {
			return true
		}
	}
	return false
}

func (r *resolution) wouldInline(v ir.ValueID) bool {
	op, ok := r.defs[v]
	if !ok {
		return false
	}
	if _, isConst := op.(*ir.Const); isConst {
		return true
	}
	return r.uses[v] == 1 && ir.Pure(op) && !ir.Contextual(op)
}

// assignNames gives every surviving binding a stable readable name.
// Frontend names win, converted to lowerCamel; everything else falls back
// to its value number.
func (r *resolution) assignNames(recs []linearStmt) {
	taken := make(map[string]bool)

	name := func(v ir.ValueID) {
		if _, done := r.names[v]; done {
			return
		}
		base := r.fn.NameOf(v)
		if base != "" {
			base = strcase.ToLowerCamel(base)
		} else {
			base = fmt.Sprintf("v%d", v)
		}
		candidate := base
		for n := 2; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s%d", base, n)
		}
		taken[candidate] = true
		r.names[v] = candidate
	}

	// parameters first so their names are never stolen by locals
	for _, p := range r.fn.Blocks[r.fn.Entry].Params {
		name(p)
	}
	r.nameWalk(recs, name)
}

func (r *resolution) nameWalk(recs []linearStmt, name func(ir.ValueID)) {
	for _, rec := range recs {
		switch v := rec.(type) {
		case *defRec:
			if !r.inline[v.value] {
				name(v.value)
			}
		case *assignRec:
			name(v.target)
		case *ifRec:
			r.nameWalk(v.then, name)
			r.nameWalk(v.els, name)
		case *whileRec:
			r.nameWalk(v.prelude, name)
			r.nameWalk(v.body, name)
		case *loopRec:
			r.nameWalk(v.body, name)
		case *switchRec:
			for _, c := range v.cases {
				r.nameWalk(c.body, name)
			}
			r.nameWalk(v.def, name)
		case *dispatchRec:
			for _, arm := range v.arms {
				for _, p := range r.fn.Blocks[arm.block].Params {
					name(p)
				}
				r.nameWalk(arm.body, name)
			}
		}
	}
}

// nameOf returns the binding name for a value, minting one on demand for
// values named late (dispatch parameters, loop carriers)
func (r *resolution) nameOf(v ir.ValueID) string {
	if n, ok := r.names[v]; ok {
		return n
	}
	n := fmt.Sprintf("v%d", v)
	r.names[v] = n
	return n
}
