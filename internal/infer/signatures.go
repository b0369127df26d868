package infer

import (
	"reforge/internal/ir"
	"reforge/internal/types"
)

// SignatureIndex is the module-wide function signature table used for
// call-return-type propagation, so cross-function calls never require
// inlining. It is built fresh for each engine run rather than cached.
type SignatureIndex struct {
	fns map[string]*ir.Function
}

// NewSignatureIndex indexes every function across the given modules
func NewSignatureIndex(mods ...*ir.Module) *SignatureIndex {
	idx := &SignatureIndex{fns: make(map[string]*ir.Function)}
	for _, m := range mods {
		for _, fn := range m.Functions {
			idx.fns[fn.Name] = fn
			if q := ir.QualifiedName(fn); q != fn.Name {
				idx.fns[q] = fn
			}
		}
	}
	return idx
}

// Lookup returns the function registered under name, nil when unknown
func (idx *SignatureIndex) Lookup(name string) *ir.Function {
	return idx.fns[name]
}

// ReturnType returns the callee's declared or inferred return type, Dynamic
// for unknown callees
func (idx *SignatureIndex) ReturnType(name string) types.Type {
	if fn := idx.fns[name]; fn != nil && fn.Ret != nil {
		return fn.Ret
	}
	return types.Dynamic
}

// ParamTypes returns the callee's parameter types, nil for unknown callees
func (idx *SignatureIndex) ParamTypes(name string) []types.Type {
	if fn := idx.fns[name]; fn != nil {
		return fn.Params
	}
	return nil
}
