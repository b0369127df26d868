package passes

import (
	"reforge/internal/infer"
	"reforge/internal/ir"
)

// Thin pass wrappers around the inference engine so type recovery slots
// into the same pipeline as the rewriting passes.

// TypeInference runs forward dataflow, allocation refinement and constraint
// solving to a joint fixpoint.
type TypeInference struct{}

func (TypeInference) Name() string { return "type-inference" }

func (TypeInference) Apply(mod *ir.Module) (bool, error) {
	return infer.New(mod).Run(), nil
}

// CallSiteTypeFlow narrows still-Dynamic callee parameters when every call
// site passes the same concrete type.
type CallSiteTypeFlow struct{}

func (CallSiteTypeFlow) Name() string { return "call-site-type-flow" }

func (CallSiteTypeFlow) Apply(mod *ir.Module) (bool, error) {
	return infer.CallSiteFlow(mod), nil
}

// ConstraintSolve runs one round of unification on its own. Useful after
// passes that rewired values without re-running the full engine.
type ConstraintSolve struct{}

func (ConstraintSolve) Name() string { return "constraint-solve" }

func (ConstraintSolve) Apply(mod *ir.Module) (bool, error) {
	return infer.New(mod).Solve(), nil
}

// CallSiteTypeWiden restores over-narrowed parameters to Dynamic when a
// caller contradicts the narrowed signature. Scheduled exactly once per
// pipeline; alternating with the narrowing passes would oscillate.
type CallSiteTypeWiden struct{}

func (CallSiteTypeWiden) Name() string { return "call-site-type-widen" }

func (CallSiteTypeWiden) Apply(mod *ir.Module) (bool, error) {
	return infer.CallSiteWiden(mod), nil
}
