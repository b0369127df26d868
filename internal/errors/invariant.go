package errors

import (
	"fmt"
	"strings"
)

// InvariantError reports a construction-time IR invariant violation with the
// identity of the offending function, block, and instruction. These always
// indicate a frontend or pass bug, never a property of valid input programs.
type InvariantError struct {
	Code     string
	Message  string
	Function string
	Block    int // block index, -1 when not applicable
	Inst     int // instruction index, -1 when not applicable
}

func (e *InvariantError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if e.Function != "" {
		fmt.Fprintf(&sb, " (in %s", e.Function)
		if e.Block >= 0 {
			fmt.Fprintf(&sb, ", block%d", e.Block)
		}
		if e.Inst >= 0 {
			fmt.Fprintf(&sb, ", inst %d", e.Inst)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// NewInvariant creates an invariant violation scoped to a whole function.
func NewInvariant(code, function, format string, args ...interface{}) *InvariantError {
	return &InvariantError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Function: function,
		Block:    -1,
		Inst:     -1,
	}
}

// NewInvariantAt creates an invariant violation pinned to a block and
// instruction. Pass -1 for either when it is not applicable.
func NewInvariantAt(code, function string, block, inst int, format string, args ...interface{}) *InvariantError {
	return &InvariantError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Function: function,
		Block:    block,
		Inst:     inst,
	}
}
