package passes

import (
	"fmt"

	"github.com/tliron/commonlog"

	"reforge/internal/errors"
	"reforge/internal/ir"
)

// MaxFixpointIterations caps a fixpoint group. Cleanup passes only shrink
// the module, so the cap should never bind on valid input; hitting it means
// two passes are undoing each other.
const MaxFixpointIterations = 100

var log = commonlog.GetLogger("reforge.passes")

// Transform is a single rewrite over a whole module. Apply reports whether
// it changed anything; an error aborts the pipeline.
type Transform interface {
	Name() string
	Apply(mod *ir.Module) (bool, error)
}

// stage is one pipeline step: either a run-once sequence or a group iterated
// together to a fixpoint
type stage struct {
	fixpoint   bool
	transforms []Transform
}

// Pipeline runs an ordered sequence of transform stages over a module.
type Pipeline struct {
	stages []stage
	debug  DebugConfig
}

// Add appends transforms that run exactly once, in order
func (p *Pipeline) Add(ts ...Transform) *Pipeline {
	p.stages = append(p.stages, stage{transforms: ts})
	return p
}

// AddFixpoint appends a group of transforms iterated together until a full
// round changes nothing
func (p *Pipeline) AddFixpoint(ts ...Transform) *Pipeline {
	p.stages = append(p.stages, stage{fixpoint: true, transforms: ts})
	return p
}

// SetDebug installs the IR-dump hooks from a pipeline config
func (p *Pipeline) SetDebug(dc DebugConfig) *Pipeline {
	p.debug = dc
	return p
}

// Run executes every stage. Instruction arenas are compacted after each
// transform that changed the module, so transforms never see another pass's
// garbage slots.
func (p *Pipeline) Run(mod *ir.Module) error {
	for _, st := range p.stages {
		if st.fixpoint {
			if err := p.runFixpoint(mod, st.transforms); err != nil {
				return err
			}
			continue
		}
		for _, t := range st.transforms {
			if _, err := p.apply(mod, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) runFixpoint(mod *ir.Module, ts []Transform) error {
	before := mod.InstCount()
	for i := 0; i < MaxFixpointIterations; i++ {
		changed := false
		for _, t := range ts {
			c, err := p.apply(mod, t)
			if err != nil {
				return err
			}
			changed = changed || c
		}
		if !changed {
			log.Debugf("fixpoint group stable after %d rounds (%d -> %d instructions)",
				i+1, before, mod.InstCount())
			return nil
		}
	}
	log.Warningf("fixpoint group hit the iteration cap on module %s", mod.Name)
	return nil
}

func (p *Pipeline) apply(mod *ir.Module, t Transform) (bool, error) {
	changed, err := t.Apply(mod)
	if err != nil {
		return false, fmt.Errorf("pass %s: %w", t.Name(), err)
	}
	if changed {
		for _, fn := range mod.Functions {
			fn.CompactInsts()
		}
	}
	p.debug.dumpAfter(t.Name(), mod)
	return changed, nil
}

// registry maps pass names to constructors so configs can reference passes
// by name
var registry = map[string]func() Transform{
	"type-inference":             func() Transform { return TypeInference{} },
	"call-site-type-flow":        func() Transform { return CallSiteTypeFlow{} },
	"constraint-solve":           func() Transform { return ConstraintSolve{} },
	"call-site-type-widen":       func() Transform { return CallSiteTypeWiden{} },
	"constant-folding":           func() Transform { return ConstantFolding{} },
	"cfg-simplify":               func() Transform { return CFGSimplify{} },
	"mem2reg":                    func() Transform { return Mem2Reg{} },
	"redundant-cast-elimination": func() Transform { return RedundantCastElimination{} },
	"dead-code-elimination":      func() Transform { return DeadCodeElimination{} },
	"coroutine-lowering":         func() Transform { return CoroutineLowering{} },
}

// Lookup resolves a pass name from the registry
func Lookup(name string) (Transform, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.NewInvariant(errors.ErrorUnknownPass, "", "unknown pass %q", name)
	}
	return ctor(), nil
}

// PassNames lists every registered pass name
func PassNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
