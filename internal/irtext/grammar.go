package irtext

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar node types mirror the printer's output one construct at a time:
// every line the printer can emit has exactly one rule here.

type fileNode struct {
	Name  string      `"module" @Ident`
	Decls []*declNode `@@*`
}

type declNode struct {
	Import *importNode `  @@`
	Struct *structNode `| @@`
	Enum   *enumNode   `| @@`
	Class  *classNode  `| @@`
	Global *globalNode `| @@`
	Func   *funcNode   `| @@`
}

type importNode struct {
	Name string `"import" @Ident`
	From string `"from" @Ident`
}

type globalNode struct {
	Public bool       `@"public"?`
	Name   string     `"global" @Ident`
	Type   *typeNode  `":" @@`
	Init   *constNode `( "=" @@ )?`
}

type structNode struct {
	Name   string       `"struct" @Ident "{"`
	Fields []*fieldNode `@@* "}"`
}

type fieldNode struct {
	Name string    `@Ident ":"`
	Type *typeNode `@@`
}

type enumNode struct {
	Name     string         `"enum" @Ident "{"`
	Variants []*variantNode `@@* "}"`
}

type variantNode struct {
	Name  string `@Ident "="`
	Value int64  `@Integer`
}

type classNode struct {
	Name    string             `"class" @Ident`
	Parent  string             `( "extends" @Ident )? "{"`
	Members []*classMemberNode `@@* "}"`
}

type classMemberNode struct {
	Method string     `  "method" @Ident`
	Field  *fieldNode `| @@`
}

// funcNode captures the full header: qualified name, parameter types, return
// type, and an optional entry marker before the block list. A one-part name
// is "name" or "Class.name"; a two-part name adds the namespace.
type funcNode struct {
	Pos    lexer.Position
	Public bool         `@"public"?`
	Coro   bool         `@"coro"?`
	Name   []string     `"func" "@" @Ident ( "::" @Ident )?`
	Params []*typeNode  `"(" ( @@ ( "," @@ )* )? ")"`
	Ret    *typeNode    `"->" @@ "{"`
	Entry  string       `( "entry" @Block )?`
	Blocks []*blockNode `@@* "}"`
}

type blockNode struct {
	Pos    lexer.Position
	Label  string            `@Block`
	Params []*blockParamNode `( "(" @@ ( "," @@ )* ")" )? ":"`
	Insts  []*instNode       `@@*`
}

type blockParamNode struct {
	Value string    `@Value`
	Name  *string   `( @String )?`
	Type  *typeNode `":" @@`
}

type instNode struct {
	Pos    lexer.Position
	Result *resultNode `( @@ )?`
	Op     *opNode     `@@`
}

type resultNode struct {
	Value string    `@Value`
	Name  *string   `( @String )?`
	Type  *typeNode `":" @@ "="`
}

type opNode struct {
	Const      *constOp      `  @@`
	Binary     *binaryOp     `| @@`
	Cmp        *cmpOp        `| @@`
	Unary      *unaryOp      `| @@`
	Br         *brOp         `| @@`
	BrIf       *brIfOp       `| @@`
	Switch     *switchOp     `| @@`
	Return     *returnOp     `| @@`
	Alloc      *allocOp      `| @@`
	Load       *loadOp       `| @@`
	Store      *storeOp      `| @@`
	FieldGet   *fieldGetOp   `| @@`
	FieldSet   *fieldSetOp   `| @@`
	IndexGet   *indexOp      `| @@`
	IndexSet   *indexSetOp   `| @@`
	Call       *callOp       `| @@`
	CallInd    *callIndOp    `| @@`
	Syscall    *syscallOp    `| @@`
	New        *newOp        `| @@`
	Cast       *castOp       `| @@`
	TypeCheck  *typeCheckOp  `| @@`
	Yield      *yieldOp      `| @@`
	CoroCreate *coroCreateOp `| @@`
	CoroResume *coroResumeOp `| @@`
	Array      *arrayOp      `| @@`
	Tuple      *tupleOp      `| @@`
	Struct     *structOp     `| @@`
	GlobalRef  *globalRefOp  `| @@`
	GlobalSet  *globalSetOp  `| @@`
	Copy       *copyOp       `| @@`
}

type blockRefNode struct {
	Label string   `@Block`
	Args  []string `( "(" @Value ( "," @Value )* ")" )?`
}

type constOp struct {
	Value *constNode `"const" @@`
}

type binaryOp struct {
	Op  string `@("bin.add" | "bin.sub" | "bin.mul" | "bin.div" | "bin.rem" | "bin.and" | "bin.or" | "bin.band" | "bin.bor" | "bin.bxor" | "bin.shl" | "bin.shr")`
	Lhs string `@Value ","`
	Rhs string `@Value`
}

type cmpOp struct {
	Kind string `@("cmp.eq" | "cmp.ne" | "cmp.lt" | "cmp.le" | "cmp.gt" | "cmp.ge")`
	Lhs  string `@Value ","`
	Rhs  string `@Value`
}

type unaryOp struct {
	Op      string `@("un.neg" | "un.not" | "un.bnot")`
	Operand string `@Value`
}

type brOp struct {
	Target *blockRefNode `"br" @@`
}

type brIfOp struct {
	Cond string        `"br_if" @Value ","`
	Then *blockRefNode `@@ ","`
	Else *blockRefNode `@@`
}

type switchOp struct {
	Value   string            `"switch" @Value "," "["`
	Cases   []*switchCaseNode `( @@ ( "," @@ )* )? "]" ","`
	Default *blockRefNode     `"default" @@`
}

type switchCaseNode struct {
	Value  *constNode    `@@ ":"`
	Target *blockRefNode `@@`
}

type returnOp struct {
	Value *string `"return" ( @Value )?`
}

type allocOp struct {
	Ty *typeNode `"alloc" @@`
}

type loadOp struct {
	Addr string `"load" @Value`
}

type storeOp struct {
	Addr  string `"store" @Value ","`
	Value string `@Value`
}

type fieldGetOp struct {
	Object string `"field.get" @Value ","`
	Field  string `@Ident`
}

type fieldSetOp struct {
	Object string `"field.set" @Value ","`
	Field  string `@Ident ","`
	Value  string `@Value`
}

type indexOp struct {
	Object string `"index" @Value ","`
	Key    string `@Value`
}

type indexSetOp struct {
	Object string `"index.set" @Value ","`
	Key    string `@Value ","`
	Value  string `@Value`
}

type callOp struct {
	Callee []string `"call" "@" @Ident ( "::" @Ident )?`
	Args   []string `"(" ( @Value ( "," @Value )* )? ")"`
}

type callIndOp struct {
	Callee string   `"call.indirect" @Value`
	Args   []string `"(" ( @Value ( "," @Value )* )? ")"`
}

type syscallOp struct {
	System string   `"syscall" @String "."`
	Method string   `@String`
	Args   []string `"(" ( @Value ( "," @Value )* )? ")"`
}

type newOp struct {
	Class string   `"new" @Ident`
	Args  []string `"(" ( @Value ( "," @Value )* )? ")"`
}

type castOp struct {
	Value string    `"cast" @Value ","`
	Ty    *typeNode `@@`
}

type typeCheckOp struct {
	Value string    `"typecheck" @Value ","`
	Ty    *typeNode `@@`
}

type yieldOp struct {
	Value string `"yield" @Value`
}

type coroCreateOp struct {
	Func []string `"coro.create" "@" @Ident ( "::" @Ident )?`
	Args []string `"(" ( @Value ( "," @Value )* )? ")"`
}

type coroResumeOp struct {
	Coro string  `"coro.resume" @Value`
	Arg  *string `( "," @Value )?`
}

type arrayOp struct {
	Elems []string `"array" "[" ( @Value ( "," @Value )* )? "]"`
}

type tupleOp struct {
	Elems []string `"tuple" "[" ( @Value ( "," @Value )* )? "]"`
}

type structOp struct {
	Name   string             `"struct" @Ident "{"`
	Fields []*structFieldNode `( @@ ( "," @@ )* )? "}"`
}

type structFieldNode struct {
	Name  string `@Ident ":"`
	Value string `@Value`
}

type globalRefOp struct {
	Name string `"global.ref" @Ident`
}

type globalSetOp struct {
	Name  string `"global.set" @Ident ","`
	Value string `@Value`
}

type copyOp struct {
	Value string `"copy" @Value`
}

type typeNode struct {
	Pos   lexer.Position
	Class *string       `  "class" "(" @Ident ")"`
	Array *typeNode     `| "array" "<" @@ ">"`
	Union []*typeNode   `| "union" "<" @@ ( "|" @@ )* ">"`
	Func  *funcTypeNode `| @@`
	Name  *string       `| @Ident`
}

type funcTypeNode struct {
	Params []*typeNode `"func" "(" ( @@ ( "," @@ )* )? ")"`
	Ret    *typeNode   `"->" @@`
}

type constNode struct {
	Float *float64 `  @Float`
	Int   *int64   `| @Integer`
	Str   *string  `| @String`
	Bool  *string  `| @("true" | "false")`
	Nil   bool     `| @"nil"`
}
