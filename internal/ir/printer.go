package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders the canonical textual dump of a module. The dump is the
// debug interface between pipeline stages and is re-parseable by the irtext
// package, so every construct printed here has a grammar rule there.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the textual dump of a module
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintFunction returns the textual dump of a single function
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("module %s", m.Name)
	p.writeLine("")

	for _, imp := range m.Imports {
		p.writeLine("import %s from %s", imp.Name, imp.From)
	}
	if len(m.Imports) > 0 {
		p.writeLine("")
	}

	for _, g := range m.Globals {
		vis := ""
		if g.Visibility == Public {
			vis = "public "
		}
		if g.Init != nil {
			p.writeLine("%sglobal %s: %s = %s", vis, g.Name, g.Type, g.Init)
		} else {
			p.writeLine("%sglobal %s: %s", vis, g.Name, g.Type)
		}
	}
	if len(m.Globals) > 0 {
		p.writeLine("")
	}

	for _, s := range m.Structs {
		p.writeLine("struct %s {", s.Name)
		p.indent++
		for _, f := range s.Fields {
			p.writeLine("%s: %s", f.Name, f.Type)
		}
		p.indent--
		p.writeLine("}")
		p.writeLine("")
	}

	for _, e := range m.Enums {
		p.writeLine("enum %s {", e.Name)
		p.indent++
		for _, v := range e.Variants {
			p.writeLine("%s = %d", v.Name, v.Value)
		}
		p.indent--
		p.writeLine("}")
		p.writeLine("")
	}

	for _, c := range m.Classes {
		if c.Parent != "" {
			p.writeLine("class %s extends %s {", c.Name, c.Parent)
		} else {
			p.writeLine("class %s {", c.Name)
		}
		p.indent++
		for _, f := range c.Fields {
			p.writeLine("%s: %s", f.Name, f.Type)
		}
		for _, meth := range c.Methods {
			p.writeLine("method %s", meth)
		}
		p.indent--
		p.writeLine("}")
		p.writeLine("")
	}

	for _, fn := range m.Functions {
		p.printFunction(fn)
		p.writeLine("")
	}
}

// QualifiedName renders a function's name with namespace and class
// qualifiers: ns::Class.name
func QualifiedName(fn *Function) string {
	name := fn.Name
	if fn.Class != "" {
		name = fn.Class + "." + name
	}
	if fn.Namespace != "" {
		name = fn.Namespace + "::" + name
	}
	return name
}

func (p *Printer) printFunction(fn *Function) {
	params := make([]string, len(fn.Params))
	for i, t := range fn.Params {
		params[i] = t.String()
	}
	prefix := ""
	if fn.Visibility == Public {
		prefix += "public "
	}
	if fn.Coroutine {
		prefix += "coro "
	}
	p.writeLine("%sfunc @%s(%s) -> %s {", prefix, QualifiedName(fn), strings.Join(params, ", "), fn.Ret)
	if fn.Entry != 0 {
		p.writeLine("entry block%d", fn.Entry)
	}

	for id, blk := range fn.Blocks {
		p.printBlock(fn, BlockID(id), blk)
	}
	p.writeLine("}")
}

func (p *Printer) printBlock(fn *Function, id BlockID, blk *Block) {
	if len(blk.Params) > 0 {
		params := make([]string, len(blk.Params))
		for i, v := range blk.Params {
			params[i] = fmt.Sprintf("%s: %s", p.valueString(fn, v), fn.TypeOf(v))
		}
		p.writeLine("block%d(%s):", id, strings.Join(params, ", "))
	} else {
		p.writeLine("block%d:", id)
	}

	p.indent++
	for _, instID := range blk.Insts {
		inst := fn.Inst(instID)
		if inst.Result != NoValue {
			p.writeLine("%s: %s = %s", p.valueString(fn, inst.Result), fn.TypeOf(inst.Result), p.opString(fn, inst.Op))
		} else {
			p.writeLine("%s", p.opString(fn, inst.Op))
		}
	}
	p.indent--
}

// valueString renders a value handle, with its frontend name when one exists:
// v3 or v3 "count"
func (p *Printer) valueString(fn *Function, v ValueID) string {
	if name := fn.NameOf(v); name != "" {
		return fmt.Sprintf("v%d %s", v, strconv.Quote(name))
	}
	return fmt.Sprintf("v%d", v)
}

func vstr(v ValueID) string {
	return fmt.Sprintf("v%d", v)
}

func vlist(vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = vstr(v)
	}
	return strings.Join(parts, ", ")
}

func blockRef(target BlockID, args []ValueID) string {
	if len(args) == 0 {
		return fmt.Sprintf("block%d", target)
	}
	return fmt.Sprintf("block%d(%s)", target, vlist(args))
}

func (p *Printer) opString(fn *Function, op Op) string {
	switch o := op.(type) {
	case *Const:
		return fmt.Sprintf("const %s", o.Value)
	case *Binary:
		return fmt.Sprintf("%s %s, %s", o.Mnemonic(), vstr(o.Lhs), vstr(o.Rhs))
	case *Cmp:
		return fmt.Sprintf("%s %s, %s", o.Mnemonic(), vstr(o.Lhs), vstr(o.Rhs))
	case *Unary:
		return fmt.Sprintf("%s %s", o.Mnemonic(), vstr(o.Operand))
	case *Br:
		return fmt.Sprintf("br %s", blockRef(o.Target, o.Args))
	case *BrIf:
		return fmt.Sprintf("br_if %s, %s, %s", vstr(o.Cond),
			blockRef(o.Then, o.ThenArgs), blockRef(o.Else, o.ElseArgs))
	case *Switch:
		cases := make([]string, len(o.Cases))
		for i, c := range o.Cases {
			cases[i] = fmt.Sprintf("%s: %s", c.Value, blockRef(c.Target, c.Args))
		}
		return fmt.Sprintf("switch %s, [%s], default %s", vstr(o.Value),
			strings.Join(cases, ", "), blockRef(o.Default, o.DefaultArgs))
	case *Return:
		if o.Value == NoValue {
			return "return"
		}
		return fmt.Sprintf("return %s", vstr(o.Value))
	case *Alloc:
		return fmt.Sprintf("alloc %s", o.Ty)
	case *Load:
		return fmt.Sprintf("load %s", vstr(o.Addr))
	case *Store:
		return fmt.Sprintf("store %s, %s", vstr(o.Addr), vstr(o.Value))
	case *FieldGet:
		return fmt.Sprintf("field.get %s, %s", vstr(o.Object), o.Field)
	case *FieldSet:
		return fmt.Sprintf("field.set %s, %s, %s", vstr(o.Object), o.Field, vstr(o.Value))
	case *Index:
		return fmt.Sprintf("index %s, %s", vstr(o.Object), vstr(o.Key))
	case *IndexSet:
		return fmt.Sprintf("index.set %s, %s, %s", vstr(o.Object), vstr(o.Key), vstr(o.Value))
	case *Call:
		return fmt.Sprintf("call @%s(%s)", o.Callee, vlist(o.Args))
	case *CallIndirect:
		return fmt.Sprintf("call.indirect %s(%s)", vstr(o.Callee), vlist(o.Args))
	case *SystemCall:
		return fmt.Sprintf("syscall %s.%s(%s)", strconv.Quote(o.System), strconv.Quote(o.Method), vlist(o.Args))
	case *New:
		return fmt.Sprintf("new %s(%s)", o.Class, vlist(o.Args))
	case *Cast:
		return fmt.Sprintf("cast %s, %s", vstr(o.Value), o.Ty)
	case *TypeCheck:
		return fmt.Sprintf("typecheck %s, %s", vstr(o.Value), o.Ty)
	case *Yield:
		return fmt.Sprintf("yield %s", vstr(o.Value))
	case *CoroCreate:
		return fmt.Sprintf("coro.create @%s(%s)", o.Func, vlist(o.Args))
	case *CoroResume:
		if o.Arg == NoValue {
			return fmt.Sprintf("coro.resume %s", vstr(o.Coro))
		}
		return fmt.Sprintf("coro.resume %s, %s", vstr(o.Coro), vstr(o.Arg))
	case *ArrayInit:
		return fmt.Sprintf("array [%s]", vlist(o.Elems))
	case *TupleInit:
		return fmt.Sprintf("tuple [%s]", vlist(o.Elems))
	case *StructInit:
		fields := make([]string, len(o.Fields))
		for i, f := range o.Fields {
			fields[i] = fmt.Sprintf("%s: %s", f.Name, vstr(f.Value))
		}
		return fmt.Sprintf("struct %s {%s}", o.Name, strings.Join(fields, ", "))
	case *GlobalRef:
		return fmt.Sprintf("global.ref %s", o.Name)
	case *GlobalSet:
		return fmt.Sprintf("global.set %s, %s", o.Name, vstr(o.Value))
	case *Copy:
		return fmt.Sprintf("copy %s", vstr(o.Value))
	default:
		return op.Mnemonic()
	}
}
