package errors

// Error codes for the reforge pipeline.
// These codes identify construction-time invariant violations and boundary
// failures consistently across the toolchain.
//
// Error code ranges:
// R0001-R0099: IR invariant violations (fatal, indicate a frontend or pass bug)
// R0100-R0199: Textual IR parse errors
// R0200-R0299: Linker errors
// R0300-R0399: Pipeline configuration errors

const (
	// R0001: Branch argument count does not match target block parameter count
	ErrorBranchArity = "R0001"

	// R0002: Instruction operand references a value that is never defined
	ErrorDanglingValue = "R0002"

	// R0003: Block has no terminator, or a terminator before the last position
	ErrorBadTerminator = "R0003"

	// R0004: Branch target is not a block of the owning function
	ErrorUnknownBlock = "R0004"

	// R0005: Value defined more than once
	ErrorRedefinedValue = "R0005"

	// R0006: Use of a value not dominated by its definition
	ErrorUseBeforeDef = "R0006"

	// Textual IR errors (R0100-R0199)

	// R0100: Malformed textual IR input
	ErrorParse = "R0100"

	// R0101: Textual IR references an unknown type name
	ErrorUnknownType = "R0101"

	// Linker errors (R0200-R0299)

	// R0200: Import does not resolve to any function or global
	ErrorUnresolvedImport = "R0200"

	// R0201: Two modules export the same symbol
	ErrorDuplicateSymbol = "R0201"

	// Configuration errors (R0300-R0399)

	// R0300: Pipeline config names a pass that does not exist
	ErrorUnknownPass = "R0300"

	// R0301: Malformed pipeline config file
	ErrorBadConfig = "R0301"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorBranchArity:
		return "Branch argument count does not match the target block's parameter count"
	case ErrorDanglingValue:
		return "Instruction operand references a value that is never defined"
	case ErrorBadTerminator:
		return "Block has no terminator or a terminator before its last instruction"
	case ErrorUnknownBlock:
		return "Branch targets a block that does not belong to the function"
	case ErrorRedefinedValue:
		return "Value is defined more than once"
	case ErrorUseBeforeDef:
		return "Value is used before its definition"
	case ErrorParse:
		return "Malformed textual IR input"
	case ErrorUnknownType:
		return "Unknown type name in textual IR"
	case ErrorUnresolvedImport:
		return "Import does not resolve to any exported function or global"
	case ErrorDuplicateSymbol:
		return "Symbol is exported by more than one module"
	case ErrorUnknownPass:
		return "Pipeline configuration names a pass that does not exist"
	case ErrorBadConfig:
		return "Malformed pipeline configuration file"
	default:
		return "Unknown error code"
	}
}

// GetErrorCategory returns the category of the error based on its code
func GetErrorCategory(code string) string {
	switch {
	case code >= "R0001" && code < "R0100":
		return "IR Invariant"
	case code >= "R0100" && code < "R0200":
		return "Textual IR"
	case code >= "R0200" && code < "R0300":
		return "Linker"
	case code >= "R0300" && code < "R0400":
		return "Configuration"
	default:
		return "Unknown"
	}
}

// IsFatal reports whether errors with this code must abort the pipeline.
// IR invariant violations always do; they indicate a frontend or pass bug,
// never a property of valid input programs.
func IsFatal(code string) bool {
	return code >= "R0001" && code < "R0100"
}
