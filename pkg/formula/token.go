// Package formula implements the calc-sheet formula language: a lexer,
// a recursive descent parser, and a tree-walking evaluator over float64.
// Formulas are arithmetic expressions with comparisons, a `?:` conditional,
// `^` for powers, a fixed set of constants, and a fixed set of math
// functions.
package formula

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenNumber   TokenType = iota // numeric literal
	TokenIdent                     // identifier (variable, constant or function name)
	TokenOperator                  // + - * / ^ < <= > >= == !=
	TokenLParen                    // (
	TokenRParen                    // )
	TokenComma                     // ,
	TokenQuestion                  // ?
	TokenColon                     // :
	TokenEOF                       // end of formula
)

// Position locates a token in the source. Column counts characters, not
// bytes, so multi-byte characters do not shift reported columns.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 1-based, in runes
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a single lexical token.
type Token struct {
	Type  TokenType
	Value string  // raw source text
	Num   float64 // parsed value (for TokenNumber)
	Pos   Position
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "NUMBER"
	case TokenIdent:
		return "IDENT"
	case TokenOperator:
		return "OPERATOR"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenComma:
		return "COMMA"
	case TokenQuestion:
		return "QUESTION"
	case TokenColon:
		return "COLON"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// describe renders a token for diagnostics.
func (t Token) describe() string {
	if t.Type == TokenEOF {
		return "end of formula"
	}
	return fmt.Sprintf("%q", t.Value)
}
