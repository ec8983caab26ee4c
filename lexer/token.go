// Package lexer tokenizes template source code.
//
// Templates mix raw text with three kinds of tags: expressions ({{ ... }}),
// statements ({% ... %}) and comments ({# ... #}). Comments never reach the
// token stream and the contents of raw blocks are emitted as plain template
// data. A minus directly inside a tag delimiter trims adjacent whitespace.
package lexer

import "fmt"

// Span represents a location range in source code. Lines and columns are
// 1-indexed and 0-indexed respectively, matching how editors show them.
type Span struct {
	StartLine   uint16
	StartCol    uint16
	StartOffset uint32
	EndLine     uint16
	EndCol      uint16
	EndOffset   uint32
}

// TokenType represents the type of a token.
type TokenType int

const (
	// Template data (raw text between tags)
	TokenTemplateData TokenType = iota

	// Delimiters
	TokenVariableStart // {{
	TokenVariableEnd   // }}
	TokenBlockStart    // {%
	TokenBlockEnd      // %}

	// Literals
	TokenIdent   // identifier or keyword
	TokenString  // "string", 'string' or `string`
	TokenInteger // 123
	TokenFloat   // 123.45

	// Operators
	TokenPlus  // +
	TokenMinus // -
	TokenMul   // *
	TokenDiv   // /
	TokenMod   // %
	TokenTilde // ~

	// Comparison
	TokenEq // ==
	TokenNe // !=
	TokenLt // <
	TokenLe // <=
	TokenGt // >
	TokenGe // >=

	// Assignment
	TokenAssign // =

	// Punctuation
	TokenDot          // .
	TokenComma        // ,
	TokenPipe         // |
	TokenColonColon   // ::
	TokenParenOpen    // (
	TokenParenClose   // )
	TokenBracketOpen  // [
	TokenBracketClose // ]
)

// Token represents a single token from the lexer.
type Token struct {
	Type  TokenType
	Value string // The token value (for idents, strings, numbers, template data)
	Span  Span   // Source location
}

// String returns a debug representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

var tokenTypeNames = map[TokenType]string{
	TokenTemplateData:  "TemplateData",
	TokenVariableStart: "VariableStart",
	TokenVariableEnd:   "VariableEnd",
	TokenBlockStart:    "BlockStart",
	TokenBlockEnd:      "BlockEnd",
	TokenIdent:         "Ident",
	TokenString:        "String",
	TokenInteger:       "Int",
	TokenFloat:         "Float",
	TokenPlus:          "Plus",
	TokenMinus:         "Minus",
	TokenMul:           "Mul",
	TokenDiv:           "Div",
	TokenMod:           "Mod",
	TokenTilde:         "Tilde",
	TokenEq:            "Eq",
	TokenNe:            "Ne",
	TokenLt:            "Lt",
	TokenLe:            "Le",
	TokenGt:            "Gt",
	TokenGe:            "Ge",
	TokenAssign:        "Assign",
	TokenDot:           "Dot",
	TokenComma:         "Comma",
	TokenPipe:          "Pipe",
	TokenColonColon:    "ColonColon",
	TokenParenOpen:     "ParenOpen",
	TokenParenClose:    "ParenClose",
	TokenBracketOpen:   "BracketOpen",
	TokenBracketClose:  "BracketClose",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}
