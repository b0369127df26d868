package ir

import (
	"reforge/internal/errors"
)

// Verify checks the structural invariants of a function: every non-empty
// block ends with exactly one terminator, branches target existing blocks
// with matching argument arity, every operand references a defined value, and
// no value is defined twice. Violations are frontend or pass bugs.
func Verify(fn *Function) error {
	defined := make(map[ValueID]bool)
	for _, blk := range fn.Blocks {
		for _, v := range blk.Params {
			if defined[v] {
				return errors.NewInvariant(errors.ErrorRedefinedValue, fn.Name,
					"value v%d defined more than once", v)
			}
			defined[v] = true
		}
	}
	for bi, blk := range fn.Blocks {
		for _, instID := range blk.Insts {
			result := fn.Insts[instID].Result
			if result == NoValue {
				continue
			}
			if defined[result] {
				return errors.NewInvariantAt(errors.ErrorRedefinedValue, fn.Name, bi, int(instID),
					"value v%d defined more than once", result)
			}
			defined[result] = true
		}
	}

	for bi, blk := range fn.Blocks {
		for pos, instID := range blk.Insts {
			op := fn.Insts[instID].Op
			last := pos == len(blk.Insts)-1
			if IsTerminator(op) && !last {
				return errors.NewInvariantAt(errors.ErrorBadTerminator, fn.Name, bi, int(instID),
					"%s before the end of block%d", op.Mnemonic(), bi)
			}
			if last && !IsTerminator(op) {
				return errors.NewInvariantAt(errors.ErrorBadTerminator, fn.Name, bi, int(instID),
					"block%d does not end with a terminator", bi)
			}

			for _, v := range op.Operands() {
				if int(v) < 0 || int(v) >= len(fn.ValueTypes) || !defined[v] {
					return errors.NewInvariantAt(errors.ErrorDanglingValue, fn.Name, bi, int(instID),
						"%s references undefined value v%d", op.Mnemonic(), v)
				}
			}

			for _, target := range Successors(op) {
				if int(target) < 0 || int(target) >= len(fn.Blocks) {
					return errors.NewInvariantAt(errors.ErrorUnknownBlock, fn.Name, bi, int(instID),
						"branch targets unknown block%d", target)
				}
				args := BranchArgs(op, target)
				want := len(fn.Blocks[target].Params)
				if len(args) != want {
					return errors.NewInvariantAt(errors.ErrorBranchArity, fn.Name, bi, int(instID),
						"branch to block%d has %d args, expected %d", target, len(args), want)
				}
			}
		}
	}
	return nil
}

// VerifyModule verifies every function in the module
func VerifyModule(m *Module) error {
	for _, fn := range m.Functions {
		if err := Verify(fn); err != nil {
			return err
		}
	}
	return nil
}
