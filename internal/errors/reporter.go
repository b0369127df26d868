package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a diagnostic
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
)

// FormatInvariant formats an invariant violation with Rust-like styling:
//
//	error[R0001]: branch to block2 has 1 args, expected 2
//	  --> demo.rir, function max, block0, inst 3
func FormatInvariant(err *InvariantError, source string) string {
	var result strings.Builder

	levelColor := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	result.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor("error"), err.Code, err.Message))

	loc := []string{}
	if source != "" {
		loc = append(loc, source)
	}
	if err.Function != "" {
		loc = append(loc, "function "+err.Function)
	}
	if err.Block >= 0 {
		loc = append(loc, fmt.Sprintf("block%d", err.Block))
	}
	if err.Inst >= 0 {
		loc = append(loc, fmt.Sprintf("inst %d", err.Inst))
	}
	if len(loc) > 0 {
		result.WriteString(fmt.Sprintf("  %s %s\n", dim("-->"), strings.Join(loc, ", ")))
	}

	desc := GetErrorDescription(err.Code)
	if desc != "Unknown error code" {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("  %s %s\n", noteColor("note:"), desc))
	}

	return result.String()
}

// SourceReporter formats diagnostics against a textual IR source file,
// showing the offending line with a caret marker.
type SourceReporter struct {
	filename string
	lines    []string
}

// NewSourceReporter creates a reporter for a textual IR file
func NewSourceReporter(filename, source string) *SourceReporter {
	return &SourceReporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// FormatParseError formats a parse error at a line/column with context
func (sr *SourceReporter) FormatParseError(line, column int, message string) string {
	var result strings.Builder

	levelColor := color.New(color.FgRed, color.Bold).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	result.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor("error"), ErrorParse, message))

	width := lineNumberWidth(line)
	indent := strings.Repeat(" ", width)
	result.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), sr.filename, line, column))
	result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if line > 0 && line <= len(sr.lines) {
		result.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, line)), dim("│"), sr.lines[line-1]))

		marker := strings.Repeat(" ", maxInt(0, column-1)) + levelColor("^")
		result.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), marker))
	}

	result.WriteString("\n")
	return result.String()
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
