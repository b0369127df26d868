package structurize

import (
	"reforge/internal/ir"
)

// Shapes are the structured control-flow tree produced from the block graph.
// They own no entities; they reference block and value handles from the
// owning function. Only statement lowering consumes them.

type Shape interface {
	isShape()
}

// Seq runs its children in order
type Seq struct {
	Shapes []Shape
}

// BlockShape stands for the non-terminator instructions of one block; the
// terminator is expressed by the surrounding structure
type BlockShape struct {
	ID ir.BlockID
}

// Assign carries one block-argument binding on a control-flow edge: the
// target block parameter receives the source value
type Assign struct {
	Target ir.ValueID
	Src    ir.ValueID
}

// Assigns is a group of edge assignments
type Assigns struct {
	List []Assign
}

// IfElse is a two-armed conditional joined at a merge point. Else may be nil.
type IfElse struct {
	Cond    ir.ValueID
	Negated bool // condition is tested inverted
	Then    Shape
	Else    Shape
}

// WhileShape is a loop whose header re-evaluates a condition each iteration.
// The header block's instructions are the condition prelude.
type WhileShape struct {
	Header  ir.BlockID
	Cond    ir.ValueID
	Negated bool // loop continues on the false edge
	Body    Shape
}

// LoopShape is an unconditional loop exited only through explicit breaks
type LoopShape struct {
	Body Shape
}

// BreakShape exits the loop Depth levels up (0 = innermost)
type BreakShape struct {
	Depth int
}

// ContinueShape restarts the innermost loop
type ContinueShape struct{}

// ReturnShape leaves the function; Value is NoValue for void returns
type ReturnShape struct {
	Value ir.ValueID
}

// SwitchArm is one structured switch arm; Consts lists every case constant
// that funnels into this body
type SwitchArm struct {
	Consts []ir.Constant
	Body   Shape
}

// SwitchShape is a structured multi-way branch; Default may be nil
type SwitchShape struct {
	Value   ir.ValueID
	Cases   []SwitchArm
	Default Shape
}

// DispatchShape is the label/goto-equivalent fallback for irreducible or
// over-deep graphs: a state variable driving a loop over raw blocks. It is
// always a valid rendering of any graph.
type DispatchShape struct {
	Entry  ir.BlockID
	Blocks []ir.BlockID
}

func (*Seq) isShape()           {}
func (*BlockShape) isShape()    {}
func (*Assigns) isShape()       {}
func (*IfElse) isShape()        {}
func (*WhileShape) isShape()    {}
func (*LoopShape) isShape()     {}
func (*BreakShape) isShape()    {}
func (*ContinueShape) isShape() {}
func (*ReturnShape) isShape()   {}
func (*SwitchShape) isShape()   {}
func (*DispatchShape) isShape() {}

// flatten appends a shape to a sequence, splicing nested Seqs and dropping
// nils and empty groups
func flatten(dst []Shape, s Shape) []Shape {
	switch v := s.(type) {
	case nil:
		return dst
	case *Seq:
		for _, child := range v.Shapes {
			dst = flatten(dst, child)
		}
		return dst
	case *Assigns:
		if len(v.List) == 0 {
			return dst
		}
		return append(dst, v)
	default:
		return append(dst, s)
	}
}

func seqOf(shapes ...Shape) Shape {
	var flat []Shape
	for _, s := range shapes {
		flat = flatten(flat, s)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Seq{Shapes: flat}
}
