// Package lower converts structured control-flow shapes into source-level
// statement trees. Lowering runs in three phases: the shape tree flattens
// into linear records, a resolution pass decides which values inline into
// their consumers and names the rest, and emission builds the statement
// tree. A normalization catalog then cleans the result up to a fixpoint.
package lower

import (
	"strings"

	"reforge/internal/ir"
	"reforge/internal/structurize"
	"reforge/internal/types"
)

type Param struct {
	Name string
	Type types.Type
}

// Lowered is a function rendered as structured source
type Lowered struct {
	Name   string
	Params []Param
	Ret    types.Type
	Body   []Stmt
}

// Lower reconstructs a function body as statements
func Lower(fn *ir.Function) *Lowered {
	shape := structurize.Structurize(fn)
	recs := linearize(fn, shape)
	res := resolve(fn, recs)
	body := Normalize(emit(fn, res, recs))

	out := &Lowered{Name: ir.QualifiedName(fn), Ret: fn.Ret, Body: body}
	for i, p := range fn.Blocks[fn.Entry].Params {
		ty := types.Type(types.Dynamic)
		if i < len(fn.Params) {
			ty = fn.Params[i]
		}
		out.Params = append(out.Params, Param{Name: res.nameOf(p), Type: ty})
	}
	return out
}

// Print renders the function with its signature
func (l *Lowered) Print() string {
	var b strings.Builder
	params := make([]string, len(l.Params))
	for i, p := range l.Params {
		params[i] = p.Name + ": " + p.Type.String()
	}
	b.WriteString("fn " + l.Name + "(" + strings.Join(params, ", ") + ")")
	if !types.IsVoid(l.Ret) {
		b.WriteString(" -> " + l.Ret.String())
	}
	b.WriteString(" {\n")
	b.WriteString(indentBlock(PrintStmts(l.Body)))
	b.WriteString("}\n")
	return b.String()
}

// PrintModule renders every function of a module, globals first
func PrintModule(mod *ir.Module) string {
	var b strings.Builder
	for _, g := range mod.Globals {
		b.WriteString("var " + g.Name + ": " + g.Type.String())
		if g.Init != nil {
			b.WriteString(" = " + g.Init.String())
		}
		b.WriteString("\n")
	}
	if len(mod.Globals) > 0 && len(mod.Functions) > 0 {
		b.WriteString("\n")
	}
	for i, fn := range mod.Functions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Lower(fn).Print())
	}
	return b.String()
}

func indentBlock(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}
