package lower

import (
	"fmt"
	"strings"

	"reforge/internal/ir"
	"reforge/internal/types"
)

// Statement and expression trees, the pipeline's final form. Handles are
// gone: every operand is either a nested expression or a named binding
// reference, ready for an emission backend.

type Expr interface {
	isExpr()
}

// Lit is a literal constant
type Lit struct {
	Value ir.Constant
}

// VarRef reads a named binding
type VarRef struct {
	Name string
}

// GlobalExpr reads a module-level variable
type GlobalExpr struct {
	Name string
}

type BinaryExpr struct {
	Op  ir.BinOp
	Lhs Expr
	Rhs Expr
}

type CmpExpr struct {
	Kind ir.CmpKind
	Lhs  Expr
	Rhs  Expr
}

type UnaryExpr struct {
	Op      ir.UnOp
	Operand Expr
}

type CallExpr struct {
	Callee string
	Args   []Expr
}

type IndirectCallExpr struct {
	Callee Expr
	Args   []Expr
}

type SysCallExpr struct {
	System string
	Method string
	Args   []Expr
}

type NewExpr struct {
	Class string
	Args  []Expr
}

type CastExpr struct {
	Value Expr
	Ty    types.Type
}

type TypeCheckExpr struct {
	Value Expr
	Ty    types.Type
}

type FieldExpr struct {
	Object Expr
	Field  string
}

type IndexExpr struct {
	Object Expr
	Key    Expr
}

type ArrayExpr struct {
	Elems []Expr
}

type TupleExpr struct {
	Elems []Expr
}

type StructExpr struct {
	Name   string
	Fields []StructExprField
}

type StructExprField struct {
	Name  string
	Value Expr
}

// TernaryExpr is a two-armed conditional expression
type TernaryExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*Lit) isExpr()              {}
func (*VarRef) isExpr()           {}
func (*GlobalExpr) isExpr()       {}
func (*BinaryExpr) isExpr()       {}
func (*CmpExpr) isExpr()          {}
func (*UnaryExpr) isExpr()        {}
func (*CallExpr) isExpr()         {}
func (*IndirectCallExpr) isExpr() {}
func (*SysCallExpr) isExpr()      {}
func (*NewExpr) isExpr()          {}
func (*CastExpr) isExpr()         {}
func (*TypeCheckExpr) isExpr()    {}
func (*FieldExpr) isExpr()        {}
func (*IndexExpr) isExpr()        {}
func (*ArrayExpr) isExpr()        {}
func (*TupleExpr) isExpr()        {}
func (*StructExpr) isExpr()       {}
func (*TernaryExpr) isExpr()      {}

type Stmt interface {
	isStmt()
}

// DeclStmt introduces a binding. Init may be nil for a declaration whose
// first value arrives by assignment; Mutable marks bindings written more
// than once.
type DeclStmt struct {
	Name    string
	Type    types.Type
	Init    Expr
	Mutable bool
}

// AssignStmt writes a target place. Op is the compound-assignment operator,
// empty for a plain assignment.
type AssignStmt struct {
	Target Expr // VarRef, FieldExpr, IndexExpr or GlobalExpr
	Op     ir.BinOp
	Value  Expr
}

// IncDecStmt is x++ or x--
type IncDecStmt struct {
	Target Expr
	Dec    bool
}

// ExprStmt evaluates an expression for its effect
type ExprStmt struct {
	Expr Expr
}

type IfStmt struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// WhileStmt loops while Cond holds; a literal true condition renders an
// unconditional loop
type WhileStmt struct {
	Cond Expr
	Body []Stmt
}

// ForStmt is the classic three-clause loop, recovered from while patterns
type ForStmt struct {
	Init Stmt // nil when absent
	Cond Expr
	Post Stmt // nil when absent
	Body []Stmt
}

type ReturnStmt struct {
	Value Expr // nil for void
}

// BreakStmt exits the loop Depth levels up (0 = innermost)
type BreakStmt struct {
	Depth int
}

type ContinueStmt struct{}

type SwitchStmt struct {
	Value   Expr
	Cases   []SwitchStmtCase
	Default []Stmt
}

type SwitchStmtCase struct {
	Consts []ir.Constant
	Body   []Stmt
}

func (*DeclStmt) isStmt()     {}
func (*AssignStmt) isStmt()   {}
func (*IncDecStmt) isStmt()   {}
func (*ExprStmt) isStmt()     {}
func (*IfStmt) isStmt()       {}
func (*WhileStmt) isStmt()    {}
func (*ForStmt) isStmt()      {}
func (*ReturnStmt) isStmt()   {}
func (*BreakStmt) isStmt()    {}
func (*ContinueStmt) isStmt() {}
func (*SwitchStmt) isStmt()   {}

// StmtPrinter renders a statement tree as pseudo-source, the human-readable
// face of the pipeline's output
type StmtPrinter struct {
	sb     strings.Builder
	indent int
}

func NewStmtPrinter() *StmtPrinter {
	return &StmtPrinter{}
}

// PrintStmts renders a statement list
func PrintStmts(stmts []Stmt) string {
	p := NewStmtPrinter()
	p.printStmts(stmts)
	return p.sb.String()
}

func (p *StmtPrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.sb.WriteString("    ")
	}
}

func (p *StmtPrinter) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteString("\n")
}

func (p *StmtPrinter) printStmts(stmts []Stmt) {
	for _, s := range stmts {
		p.printStmt(s)
	}
}

func (p *StmtPrinter) printBlock(stmts []Stmt) {
	p.indent++
	p.printStmts(stmts)
	p.indent--
}

func (p *StmtPrinter) printStmt(s Stmt) {
	switch v := s.(type) {
	case *DeclStmt:
		kw := "let"
		if v.Mutable {
			kw = "var"
		}
		if v.Init == nil {
			p.writeLine("%s %s: %s", kw, v.Name, v.Type)
		} else {
			p.writeLine("%s %s: %s = %s", kw, v.Name, v.Type, ExprString(v.Init))
		}
	case *AssignStmt:
		if v.Op != "" {
			p.writeLine("%s %s= %s", ExprString(v.Target), binOpSymbol(v.Op), ExprString(v.Value))
		} else {
			p.writeLine("%s = %s", ExprString(v.Target), ExprString(v.Value))
		}
	case *IncDecStmt:
		if v.Dec {
			p.writeLine("%s--", ExprString(v.Target))
		} else {
			p.writeLine("%s++", ExprString(v.Target))
		}
	case *ExprStmt:
		p.writeLine("%s", ExprString(v.Expr))
	case *IfStmt:
		p.writeLine("if %s {", ExprString(v.Cond))
		p.printBlock(v.Then)
		if len(v.Else) > 0 {
			p.writeLine("} else {")
			p.printBlock(v.Else)
		}
		p.writeLine("}")
	case *WhileStmt:
		p.writeLine("while %s {", ExprString(v.Cond))
		p.printBlock(v.Body)
		p.writeLine("}")
	case *ForStmt:
		p.writeLine("for %s; %s; %s {", clauseString(v.Init), ExprString(v.Cond), clauseString(v.Post))
		p.printBlock(v.Body)
		p.writeLine("}")
	case *ReturnStmt:
		if v.Value == nil {
			p.writeLine("return")
		} else {
			p.writeLine("return %s", ExprString(v.Value))
		}
	case *BreakStmt:
		if v.Depth > 0 {
			p.writeLine("break %d", v.Depth)
		} else {
			p.writeLine("break")
		}
	case *ContinueStmt:
		p.writeLine("continue")
	case *SwitchStmt:
		p.writeLine("switch %s {", ExprString(v.Value))
		for _, c := range v.Cases {
			labels := make([]string, len(c.Consts))
			for i, k := range c.Consts {
				labels[i] = k.String()
			}
			p.writeLine("case %s:", strings.Join(labels, ", "))
			p.printBlock(c.Body)
		}
		if v.Default != nil {
			p.writeLine("default:")
			p.printBlock(v.Default)
		}
		p.writeLine("}")
	}
}

// clauseString renders a for-clause statement on one line
func clauseString(s Stmt) string {
	if s == nil {
		return ""
	}
	switch v := s.(type) {
	case *DeclStmt:
		return fmt.Sprintf("var %s = %s", v.Name, ExprString(v.Init))
	case *AssignStmt:
		if v.Op != "" {
			return fmt.Sprintf("%s %s= %s", ExprString(v.Target), binOpSymbol(v.Op), ExprString(v.Value))
		}
		return fmt.Sprintf("%s = %s", ExprString(v.Target), ExprString(v.Value))
	case *IncDecStmt:
		if v.Dec {
			return ExprString(v.Target) + "--"
		}
		return ExprString(v.Target) + "++"
	}
	return ""
}

// ExprString renders an expression
func ExprString(e Expr) string {
	switch v := e.(type) {
	case *Lit:
		return v.Value.String()
	case *VarRef:
		return v.Name
	case *GlobalExpr:
		return v.Name
	case *BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", ExprString(v.Lhs), binOpSymbol(v.Op), ExprString(v.Rhs))
	case *CmpExpr:
		return fmt.Sprintf("(%s %s %s)", ExprString(v.Lhs), cmpSymbol(v.Kind), ExprString(v.Rhs))
	case *UnaryExpr:
		return unOpSymbol(v.Op) + ExprString(v.Operand)
	case *CallExpr:
		return v.Callee + "(" + exprList(v.Args) + ")"
	case *IndirectCallExpr:
		return ExprString(v.Callee) + "(" + exprList(v.Args) + ")"
	case *SysCallExpr:
		return v.System + "." + v.Method + "(" + exprList(v.Args) + ")"
	case *NewExpr:
		return "new " + v.Class + "(" + exprList(v.Args) + ")"
	case *CastExpr:
		return fmt.Sprintf("(%s as %s)", ExprString(v.Value), v.Ty)
	case *TypeCheckExpr:
		return fmt.Sprintf("(%s is %s)", ExprString(v.Value), v.Ty)
	case *FieldExpr:
		return ExprString(v.Object) + "." + v.Field
	case *IndexExpr:
		return ExprString(v.Object) + "[" + ExprString(v.Key) + "]"
	case *ArrayExpr:
		return "[" + exprList(v.Elems) + "]"
	case *TupleExpr:
		return "(" + exprList(v.Elems) + ")"
	case *StructExpr:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.Name + ": " + ExprString(f.Value)
		}
		return v.Name + "{" + strings.Join(parts, ", ") + "}"
	case *TernaryExpr:
		return fmt.Sprintf("(%s ? %s : %s)", ExprString(v.Cond), ExprString(v.Then), ExprString(v.Else))
	}
	return "<expr>"
}

func exprList(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = ExprString(e)
	}
	return strings.Join(parts, ", ")
}

func binOpSymbol(op ir.BinOp) string {
	switch op {
	case ir.BinAdd:
		return "+"
	case ir.BinSub:
		return "-"
	case ir.BinMul:
		return "*"
	case ir.BinDiv:
		return "/"
	case ir.BinRem:
		return "%"
	case ir.BinAnd:
		return "&&"
	case ir.BinOr:
		return "||"
	case ir.BinBitAnd:
		return "&"
	case ir.BinBitOr:
		return "|"
	case ir.BinBitXor:
		return "^"
	case ir.BinShl:
		return "<<"
	case ir.BinShr:
		return ">>"
	}
	return string(op)
}

func cmpSymbol(kind ir.CmpKind) string {
	switch kind {
	case ir.CmpEq:
		return "=="
	case ir.CmpNe:
		return "!="
	case ir.CmpLt:
		return "<"
	case ir.CmpLe:
		return "<="
	case ir.CmpGt:
		return ">"
	case ir.CmpGe:
		return ">="
	}
	return string(kind)
}

func unOpSymbol(op ir.UnOp) string {
	switch op {
	case ir.UnNeg:
		return "-"
	case ir.UnNot:
		return "!"
	case ir.UnBitNot:
		return "~"
	}
	return string(op)
}
