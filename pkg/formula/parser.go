package formula

import (
	"strings"
	"unicode/utf8"
)

// MaxFormulaLength is the maximum allowed length of a formula, in characters.
const MaxFormulaLength = 255

// MaxDepth bounds how deeply sub-expressions may nest. It is enforced with
// an explicit counter so pathological input fails with a SyntaxError
// independent of the goroutine stack.
const MaxDepth = 64

// Parser is a recursive descent parser for formulas.
type Parser struct {
	tokens []Token
	pos    int
	depth  int
}

// Parse validates and parses a formula into an AST.
//
// Before lexing, a formula is rejected if it is longer than
// MaxFormulaLength characters, if it contains the text "if" or "else"
// anywhere (conditionals are written cond ? a : b), or if it contains "**"
// (powers are written a ^ b).
func Parse(formula string) (Node, error) {
	if err := precheck(formula); err != nil {
		return nil, err
	}

	tokens, err := Tokenize(formula)
	if err != nil {
		return nil, err
	}

	p := &Parser{tokens: tokens}
	node, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if tok := p.current(); tok.Type != TokenEOF {
		return nil, newSyntaxError(tok.Pos, "unexpected %s after end of expression", tok.describe())
	}

	return node, nil
}

// precheck runs the textual checks that happen before tokenizing.
func precheck(formula string) error {
	if utf8.RuneCountInString(formula) > MaxFormulaLength {
		return &SyntaxError{
			Message: "the formula is too long: " + formula,
			Line:    1,
			Column:  1,
		}
	}

	// The keyword check matches inside identifiers too ("life", "elsewhere").
	// Existing templates were validated against this rule, so it stays.
	if i := firstIndex(formula, "if", "else"); i >= 0 {
		return newSyntaxError(positionAt(formula, i),
			"invalid ternary expression: %s. Use the notation 'condition ? expr_if_true : expr_if_false'", formula)
	}

	if i := strings.Index(formula, "**"); i >= 0 {
		return newSyntaxError(positionAt(formula, i),
			"invalid power expression: %s. Use '^' for the power notation", formula)
	}

	return nil
}

// firstIndex returns the smallest byte index at which any of subs occurs
// in s, or -1.
func firstIndex(s string, subs ...string) int {
	first := -1
	for _, sub := range subs {
		if i := strings.Index(s, sub); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}

// current returns the current token.
func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes a token of the expected type or returns an error.
func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, newSyntaxError(tok.Pos, "expected %s, found %s", what, tok.describe())
	}
	return p.advance(), nil
}

// atOperator reports whether the current token is one of the given operators.
func (p *Parser) atOperator(ops ...string) bool {
	tok := p.current()
	if tok.Type != TokenOperator {
		return false
	}
	for _, op := range ops {
		if tok.Value == op {
			return true
		}
	}
	return false
}

// enter records one more level of nesting.
func (p *Parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return newSyntaxError(p.current().Pos, "formula is nested too deeply (max %d levels)", MaxDepth)
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

// parseExpression parses a nested sub-expression (parenthesized or a call
// argument or a conditional branch), counting one level of nesting. The top
// level starts at parseTernary and does not count.
// Precedence (low to high):
//
//	? :
//	==, !=, <, <=, >, >=  (chained)
//	+, -
//	*, /
//	^                     (right associative)
//	unary -
//	literals, names, calls, parentheses
func (p *Parser) parseExpression() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Node, error) {
	cond, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenQuestion {
		return cond, nil
	}
	p.advance()

	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "':' in conditional"); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ConditionalNode{Pos: cond.Position(), Cond: cond, Then: then, Else: els}, nil
}

var compareOps = map[string]CompareOp{
	"==": OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	var chain []Comparison
	for p.atOperator("==", "!=", "<", "<=", ">", ">=") {
		op := compareOps[p.advance().Value]
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		chain = append(chain, Comparison{Op: op, Operand: right})
	}
	if len(chain) == 0 {
		return left, nil
	}
	return &CompareNode{Pos: left.Position(), Left: left, Comparisons: chain}, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for p.atOperator("+", "-") {
		op := OpAdd
		if p.advance().Value == "-" {
			op = OpSub
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for p.atOperator("*", "/") {
		op := OpMul
		if p.advance().Value == "/" {
			op = OpDiv
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePower() (Node, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if !p.atOperator("^") {
		return base, nil
	}
	p.advance()

	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	exp, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &BinaryNode{Pos: base.Position(), Op: OpPow, Left: base, Right: exp}, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if !p.atOperator("-") {
		return p.parsePrimary()
	}
	tok := p.advance()

	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryNode{Pos: tok.Pos, Op: OpNeg, Operand: operand}, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		return &LiteralNode{Pos: tok.Pos, Text: tok.Value, Value: tok.Num}, nil
	case TokenIdent:
		p.advance()
		if p.current().Type == TokenLParen {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &CallNode{Pos: tok.Pos, Name: tok.Value, Args: args}, nil
		}
		return &VariableNode{Pos: tok.Pos, Name: tok.Value}, nil
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, newSyntaxError(tok.Pos, "unexpected %s", tok.describe())
	}
}

// parseArgList parses (expr, expr, ...).
func (p *Parser) parseArgList() ([]Node, error) {
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}

	var args []Node
	for p.current().Type != TokenRParen {
		if len(args) > 0 {
			if _, err := p.expect(TokenComma, "',' or ')' in arguments"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance()

	return args, nil
}
