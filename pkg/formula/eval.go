package formula

import (
	"math"
)

// Evaluate parses formula and evaluates it against scope. A nil scope is
// treated as empty. The returned error is a *SyntaxError or a *RuntimeError.
//
// Evaluate is safe for concurrent use: it touches no shared mutable state,
// and it only reads scope.
func Evaluate(formula string, scope Scope) (float64, error) {
	node, err := Parse(formula)
	if err != nil {
		return 0, err
	}
	return Eval(node, scope)
}

// Eval evaluates a parsed formula against scope.
func Eval(node Node, scope Scope) (float64, error) {
	if scope == nil {
		scope = emptyScope{}
	}
	return eval(node, scope)
}

func eval(node Node, scope Scope) (float64, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return evalLiteral(n)
	case *VariableNode:
		return evalVariable(n, scope)
	case *UnaryNode:
		return evalUnary(n, scope)
	case *BinaryNode:
		return evalBinary(n, scope)
	case *CompareNode:
		return evalCompare(n, scope)
	case *CallNode:
		return evalCall(n, scope)
	case *ConditionalNode:
		return evalConditional(n, scope)
	default:
		return 0, newSyntaxError(node.Position(), "this syntax is not supported")
	}
}

func evalLiteral(n *LiteralNode) (float64, error) {
	// Integer literals past the float64 range cannot be represented; float
	// literals saturate to infinity.
	if math.IsInf(n.Value, 0) && n.isInteger() {
		return 0, newRuntimeError("integer literal %s too large to convert to float", n.Text)
	}
	return n.Value, nil
}

func evalVariable(n *VariableNode, scope Scope) (float64, error) {
	if v, ok := constants[n.Name]; ok {
		return v, nil
	}
	v, ok, err := scope.Lookup(n.Name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newSyntaxError(n.Pos, "undefined variable: %s", n.Name)
	}
	return v, nil
}

func evalUnary(n *UnaryNode, scope Scope) (float64, error) {
	operand, err := eval(n.Operand, scope)
	if err != nil {
		return 0, err
	}
	return -operand, nil
}

func evalBinary(n *BinaryNode, scope Scope) (float64, error) {
	left, err := eval(n.Left, scope)
	if err != nil {
		return 0, err
	}
	right, err := eval(n.Right, scope)
	if err != nil {
		return 0, err
	}

	switch n.Op {
	case OpAdd:
		return left + right, nil
	case OpSub:
		return left - right, nil
	case OpMul:
		return left * right, nil
	case OpDiv:
		if right == 0 {
			return 0, newZeroDivisionError()
		}
		return left / right, nil
	case OpPow:
		return evalPow(left, right)
	default:
		return 0, newSyntaxError(n.Pos, "operator %s is not supported", n.Op)
	}
}

func evalPow(base, exp float64) (float64, error) {
	if base == 0 && exp < 0 {
		return 0, newRuntimeError("0.0 cannot be raised to a negative power")
	}
	if base < 0 && !math.IsInf(base, 0) && exp != math.Trunc(exp) && !math.IsInf(exp, 0) && !math.IsNaN(exp) {
		return 0, newRuntimeError("negative number cannot be raised to a fractional power")
	}
	r := math.Pow(base, exp)
	if math.IsInf(r, 0) && !math.IsInf(base, 0) && !math.IsInf(exp, 0) && !math.IsNaN(base) && !math.IsNaN(exp) {
		return 0, newRuntimeError("numerical result out of range")
	}
	return r, nil
}

// evalCompare folds the chain left to right, replacing the running left
// operand with each comparison's 0/1 result: a < b < c compares (a < b)
// against c. All operands are evaluated before folding.
func evalCompare(n *CompareNode, scope Scope) (float64, error) {
	left, err := eval(n.Left, scope)
	if err != nil {
		return 0, err
	}

	operands := make([]float64, len(n.Comparisons))
	for i, c := range n.Comparisons {
		v, err := eval(c.Operand, scope)
		if err != nil {
			return 0, err
		}
		operands[i] = v
	}

	result := left
	for i, c := range n.Comparisons {
		result = boolToFloat(compare(c.Op, result, operands[i]))
	}
	return result, nil
}

func compare(op CompareOp, a, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	default:
		return false
	}
}

func evalCall(n *CallNode, scope Scope) (float64, error) {
	args := make([]float64, len(n.Args))
	for i, arg := range n.Args {
		v, err := eval(arg, scope)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	fn, ok := functions[n.Name]
	if !ok {
		return 0, newSyntaxError(n.Pos, "unsupported function: %s", n.Name)
	}
	return fn.call(args)
}

func evalConditional(n *ConditionalNode, scope Scope) (float64, error) {
	cond, err := eval(n.Cond, scope)
	if err != nil {
		return 0, err
	}
	// NaN is truthy: only an exact zero selects the else branch.
	if cond != 0 {
		return eval(n.Then, scope)
	}
	return eval(n.Else, scope)
}
