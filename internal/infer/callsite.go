package infer

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// Interprocedural call-site passes. Flow narrows callee parameters when
// every caller agrees; widen undoes a narrowing that the callers contradict.
// Widening deliberately runs once: re-running it after later passes narrow
// again would oscillate forever.

// callSites collects, per callee name, the argument types used at each call
func callSites(mod *ir.Module) map[string][][]types.Type {
	sites := make(map[string][][]types.Type)
	for _, fn := range mod.Functions {
		for _, blk := range fn.Blocks {
			for _, instID := range blk.Insts {
				call, ok := fn.Inst(instID).Op.(*ir.Call)
				if !ok {
					continue
				}
				args := make([]types.Type, len(call.Args))
				for i, a := range call.Args {
					args[i] = fn.TypeOf(a)
				}
				sites[call.Callee] = append(sites[call.Callee], args)
			}
		}
	}
	return sites
}

// CallSiteFlow refines a callee's still-Dynamic parameters when every call
// site passes the same concrete type
func CallSiteFlow(mod *ir.Module) bool {
	sites := callSites(mod)
	changed := false

	for _, fn := range mod.Functions {
		calls := sites[fn.Name]
		if len(calls) == 0 {
			continue
		}
		entry := fn.Blocks[fn.Entry]
		for i := range fn.Params {
			if !types.IsDynamic(fn.Params[i]) {
				continue
			}
			var agreed types.Type = types.Dynamic
			ok := true
			for _, args := range calls {
				if i >= len(args) || !types.IsConcrete(args[i]) {
					ok = false
					break
				}
				if types.IsDynamic(agreed) {
					agreed = args[i]
				} else if !agreed.Equal(args[i]) {
					ok = false
					break
				}
			}
			if ok && types.IsConcrete(agreed) {
				fn.Params[i] = agreed
				if i < len(entry.Params) {
					fn.SetType(entry.Params[i], agreed)
				}
				changed = true
			}
		}
	}
	return changed
}

// CallSiteWiden restores a parameter to Dynamic when a caller passes a
// concrete type conflicting with the narrowed signature. Constraint solving
// can over-narrow a parameter from one call path; a conflicting second path
// proves the narrowing wrong, and Dynamic is the honest fallback.
func CallSiteWiden(mod *ir.Module) bool {
	sites := callSites(mod)
	changed := false

	for _, fn := range mod.Functions {
		calls := sites[fn.Name]
		if len(calls) == 0 {
			continue
		}
		entry := fn.Blocks[fn.Entry]
		for i := range fn.Params {
			declared := fn.Params[i]
			if !types.IsConcrete(declared) {
				continue
			}
			conflict := false
			for _, args := range calls {
				if i < len(args) && types.IsConcrete(args[i]) && !compatible(declared, args[i]) {
					conflict = true
					break
				}
			}
			if conflict {
				fn.Params[i] = types.Dynamic
				if i < len(entry.Params) {
					fn.SetType(entry.Params[i], types.Dynamic)
				}
				changed = true
			}
		}
	}
	return changed
}

// compatible reports whether an argument type fits a declared parameter
// type: equality, or membership in a declared union
func compatible(declared, arg types.Type) bool {
	if declared.Equal(arg) {
		return true
	}
	if un, ok := declared.(*types.UnionType); ok {
		for _, m := range un.Members {
			if m.Equal(arg) {
				return true
			}
		}
	}
	return false
}
