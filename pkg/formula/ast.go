package formula

import (
	"strconv"
	"strings"
)

// Node is the interface for all formula AST nodes. The set of node types is
// closed: the evaluator handles exactly the types declared in this file.
type Node interface {
	Position() Position
	nodeType() string
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
)

func (op UnaryOp) String() string {
	return "-"
}

// BinaryOp is an arithmetic infix operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
)

var binaryOpText = [...]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpPow: "^"}

func (op BinaryOp) String() string {
	return binaryOpText[op]
}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var compareOpText = [...]string{OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}

func (op CompareOp) String() string {
	return compareOpText[op]
}

// LiteralNode represents a numeric literal.
type LiteralNode struct {
	Pos   Position
	Text  string // source text, e.g. "2e-1"
	Value float64
}

func (n *LiteralNode) Position() Position { return n.Pos }
func (n *LiteralNode) nodeType() string   { return "Literal" }

// isInteger reports whether the literal was written without a fraction or
// exponent.
func (n *LiteralNode) isInteger() bool {
	return !strings.ContainsAny(n.Text, ".eE")
}

// VariableNode represents a name resolved against the constant table and
// then the scope.
type VariableNode struct {
	Pos  Position
	Name string
}

func (n *VariableNode) Position() Position { return n.Pos }
func (n *VariableNode) nodeType() string   { return "Variable" }

// UnaryNode represents a prefix operation (e.g., -x).
type UnaryNode struct {
	Pos     Position
	Op      UnaryOp
	Operand Node
}

func (n *UnaryNode) Position() Position { return n.Pos }
func (n *UnaryNode) nodeType() string   { return "Unary" }

// BinaryNode represents an arithmetic operation (e.g., a + b, x ^ 2).
type BinaryNode struct {
	Pos   Position
	Op    BinaryOp
	Left  Node
	Right Node
}

func (n *BinaryNode) Position() Position { return n.Pos }
func (n *BinaryNode) nodeType() string   { return "Binary" }

// Comparison is one (operator, operand) link of a comparison chain.
type Comparison struct {
	Op      CompareOp
	Operand Node
}

// CompareNode represents a chain of comparisons: Left op1 x1 op2 x2 ...
// It is evaluated as a left fold in which the running left operand is
// replaced by the previous comparison's 0/1 result.
type CompareNode struct {
	Pos         Position
	Left        Node
	Comparisons []Comparison
}

func (n *CompareNode) Position() Position { return n.Pos }
func (n *CompareNode) nodeType() string   { return "Compare" }

// CallNode represents a function call (e.g., min(a, b)).
type CallNode struct {
	Pos  Position
	Name string
	Args []Node
}

func (n *CallNode) Position() Position { return n.Pos }
func (n *CallNode) nodeType() string   { return "Call" }

// ConditionalNode represents cond ? then : else.
type ConditionalNode struct {
	Pos  Position
	Cond Node
	Then Node
	Else Node
}

func (n *ConditionalNode) Position() Position { return n.Pos }
func (n *ConditionalNode) nodeType() string   { return "Conditional" }

// Format renders a node fully parenthesized, which makes precedence and
// associativity visible. Literals keep their source text.
func Format(node Node) string {
	var sb strings.Builder
	format(&sb, node)
	return sb.String()
}

func format(sb *strings.Builder, node Node) {
	switch n := node.(type) {
	case *LiteralNode:
		if n.Text != "" {
			sb.WriteString(n.Text)
		} else {
			sb.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
		}
	case *VariableNode:
		sb.WriteString(n.Name)
	case *UnaryNode:
		sb.WriteString("(")
		sb.WriteString(n.Op.String())
		format(sb, n.Operand)
		sb.WriteString(")")
	case *BinaryNode:
		sb.WriteString("(")
		format(sb, n.Left)
		sb.WriteString(" " + n.Op.String() + " ")
		format(sb, n.Right)
		sb.WriteString(")")
	case *CompareNode:
		sb.WriteString("(")
		format(sb, n.Left)
		for _, c := range n.Comparisons {
			sb.WriteString(" " + c.Op.String() + " ")
			format(sb, c.Operand)
		}
		sb.WriteString(")")
	case *CallNode:
		sb.WriteString(n.Name)
		sb.WriteString("(")
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, arg)
		}
		sb.WriteString(")")
	case *ConditionalNode:
		sb.WriteString("(")
		format(sb, n.Cond)
		sb.WriteString(" ? ")
		format(sb, n.Then)
		sb.WriteString(" : ")
		format(sb, n.Else)
		sb.WriteString(")")
	}
}
