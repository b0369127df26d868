package ir

// Effect classification drives dead code elimination and the lowering
// phase's inlining decisions. Pure ops can be deleted when their result is
// unused; contextual ops are pure in isolation but observe mutable state, so
// they are never substituted past other statements.

// Pure reports whether the op has no observable side effects. Removing an
// unused pure instruction cannot change program behavior.
func Pure(op Op) bool {
	switch op.(type) {
	case *Const, *Binary, *Cmp, *Unary, *Copy, *Cast, *TypeCheck:
		return true
	case *Alloc, *Load, *FieldGet, *Index, *GlobalRef:
		// reads and allocations are removable, just not reorderable
		return true
	case *ArrayInit, *TupleInit, *StructInit:
		return true
	default:
		return false
	}
}

// Contextual reports whether the op reads state that later statements may
// mutate. Contextual ops must not be substituted into later expressions even
// though they are pure in isolation.
func Contextual(op Op) bool {
	switch op.(type) {
	case *Load, *FieldGet, *Index, *GlobalRef:
		return true
	default:
		return false
	}
}
