package formula

import (
	"errors"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes a formula string.
type Lexer struct {
	input  string
	pos    int // byte offset of the next rune
	line   int
	col    int // rune column of the next rune
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize scans the whole input. The returned slice always ends with a
// TokenEOF token.
func Tokenize(input string) ([]Token, error) {
	return NewLexer(input).Tokenize()
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// peekRune returns the rune at byte offset off and its width.
func (l *Lexer) peekRune(off int) (rune, int) {
	if off >= len(l.input) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.input[off:])
}

// advance consumes one rune, keeping line and column current.
func (l *Lexer) advance() {
	r, w := l.peekRune(l.pos)
	if w == 0 {
		return
	}
	l.pos += w
	if r == '\n' {
		l.line++
		l.col = 1
		return
	}
	l.col++
}

// next returns the next token from the input.
func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()

	start := l.position()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	ch, _ := l.peekRune(l.pos)

	if isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(rune(l.input[l.pos+1]))) {
		return l.readNumber()
	}

	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	// Two-character operators
	if l.pos+1 < len(l.input) {
		switch two := l.input[l.pos : l.pos+2]; two {
		case "==", "!=", "<=", ">=":
			l.advance()
			l.advance()
			return Token{Type: TokenOperator, Value: two, Pos: start}, nil
		}
	}

	var tt TokenType
	switch ch {
	case '+', '-', '*', '/', '^', '<', '>':
		tt = TokenOperator
	case '(':
		tt = TokenLParen
	case ')':
		tt = TokenRParen
	case ',':
		tt = TokenComma
	case '?':
		tt = TokenQuestion
	case ':':
		tt = TokenColon
	default:
		return Token{}, newSyntaxError(start, "invalid character %q", ch)
	}
	l.advance()
	return Token{Type: tt, Value: string(ch), Pos: start}, nil
}

// readNumber reads an integer, fractional or exponent literal.
func (l *Lexer) readNumber() (Token, error) {
	start := l.position()

	for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
		l.advance()
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.advance()
		for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
			l.advance()
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		// Only an exponent if digits follow, optionally after a sign.
		digits := l.pos + 1
		if digits < len(l.input) && (l.input[digits] == '+' || l.input[digits] == '-') {
			digits++
		}
		if digits < len(l.input) && isDigit(rune(l.input[digits])) {
			for l.pos < digits {
				l.advance()
			}
			for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
				l.advance()
			}
		}
	}

	if r, _ := l.peekRune(l.pos); isIdentPart(r) || r == '.' {
		return Token{}, newSyntaxError(start, "invalid number literal")
	}

	raw := l.input[start.Offset:l.pos]
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Token{}, newSyntaxError(start, "invalid number literal %q", raw)
	}
	// Out-of-range literals keep ParseFloat's ±Inf or 0; the evaluator
	// decides whether that is an error.
	return Token{Type: TokenNumber, Value: raw, Num: f, Pos: start}, nil
}

// readIdentifier reads an identifier.
func (l *Lexer) readIdentifier() Token {
	start := l.position()
	for l.pos < len(l.input) {
		r, _ := l.peekRune(l.pos)
		if !isIdentPart(r) {
			break
		}
		l.advance()
	}
	return Token{Type: TokenIdent, Value: l.input[start.Offset:l.pos], Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, _ := l.peekRune(l.pos)
		if !unicode.IsSpace(r) {
			return
		}
		l.advance()
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}
