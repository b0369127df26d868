package infer

import (
	"github.com/tliron/commonlog"

	"reforge/internal/ir"
)

// MaxIterations caps the joint forward/unification fixpoint. Monotone
// refinement bounds the real iteration count by the value count; the cap is
// a backstop against a pass-design defect.
const MaxIterations = 100

var log = commonlog.GetLogger("reforge.infer")

// Engine runs forward dataflow and constraint unification to a joint
// fixpoint over one module.
type Engine struct {
	mod *ir.Module
	idx *SignatureIndex
}

// New creates an inference engine; the signature index is built fresh, never
// cached across runs.
func New(mod *ir.Module) *Engine {
	return &Engine{mod: mod, idx: NewSignatureIndex(mod)}
}

// Solve runs constraint unification once without the forward stage.
func (e *Engine) Solve() bool {
	return e.solve()
}

// Run iterates the two stages until neither changes anything. Reports
// whether any value type was refined.
func (e *Engine) Run() bool {
	any := false
	for i := 0; i < MaxIterations; i++ {
		changed := false
		for _, fn := range e.mod.Functions {
			for e.forwardFunction(fn) {
				changed = true
			}
			if refineAllocs(fn) {
				changed = true
			}
		}
		if e.solve() {
			changed = true
		}
		if !changed {
			log.Debugf("fixpoint after %d iterations", i+1)
			return any
		}
		any = true
	}
	log.Warningf("inference hit the iteration cap for module %s", e.mod.Name)
	return any
}
