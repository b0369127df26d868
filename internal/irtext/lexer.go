package irtext

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// irLexer tokenizes the canonical module dump. Idents may contain interior
// dots so dotted mnemonics (bin.add, field.get) and method-qualified function
// names (Point.scale) arrive as single tokens.
var irLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},

		// Multi-char punctuation (order matters)
		{"Arrow", `->`, nil},
		{"ColonColon", `::`, nil},

		// Float needs a fraction or exponent, otherwise the token is an Integer
		{"Float", `-?[0-9]+(\.[0-9]+([eE][+-]?[0-9]+)?|[eE][+-]?[0-9]+)`, nil},
		{"Integer", `-?[0-9]+`, nil},

		// Handles before general identifiers
		{"Block", `block[0-9]+\b`, nil},
		{"Value", `v[0-9]+\b`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},

		{"Punct", `[{}()\[\]<>@:,=|.]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

var irParser = participle.MustBuild[fileNode](
	participle.Lexer(irLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)
