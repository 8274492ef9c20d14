package formula

import (
	"math"
	"strings"
	"sync"
	"testing"
)

func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-12*math.Max(math.Abs(a), math.Abs(b))
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		vars    Variables
		want    float64
	}{
		{"literal", "42", nil, 42},
		{"fraction", "2e-1", nil, 0.2},
		{"product and quotient", "a * b / c", Variables{"a": 1, "b": 3, "c": 91}, 3.0 / 91},
		{"points per game", "(points - 100 * bans) / gamesPlayed", Variables{"points": 1000, "bans": 1, "gamesPlayed": 23}, 900.0 / 23},
		{"precedence", "1 + 2 * 3", nil, 7},
		{"parentheses", "(1 + 2) * 3", nil, 9},
		{"left associative", "10 - 4 - 3", nil, 3},
		{"power right associative", "2^3^2", nil, 512},
		{"negated base", "-2^2", nil, 4},
		{"negative exponent", "2^-1", nil, 0.5},
		{"square root power", "4^0.5", nil, 2},
		{"double negation", "--3", nil, 3},
		{"constant pi", "pi", nil, math.Pi},
		{"constant tau", "tau / 2", nil, math.Pi},
		{"constant shadows variable", "pi", Variables{"pi": 3}, math.Pi},
		{"equal", "1 == 1", nil, 1},
		{"not equal", "1 != 1", nil, 0},
		{"chain ascending", "1 < 2 < 3", nil, 1},
		{"chain folds result", "3 > 2 > 1", nil, 0},
		{"chain of equals", "2 == 2 == 2", nil, 0},
		{"chain of ones", "1 == 1 == 1", nil, 1},
		{"ternary true", "f_cm != 35 ? 1 : 0", Variables{"f_cm": 30}, 1},
		{"ternary false", "f_cm != 35 ? 1 : 0", Variables{"f_cm": 35}, 0},
		{"ternary at least", "f_cm <= 35 ? 1 : 0", Variables{"f_cm": 35}, 1},
		{"ternary picks pi", "a ? pi : tau", Variables{"a": 1}, math.Pi},
		{"ternary picks tau", "a ? pi : tau", Variables{"a": 0}, 2 * math.Pi},
		{"less at equality", "2 < 2", nil, 0},
		{"less or equal at equality", "2 <= 2", nil, 1},
		{"greater at equality", "2 > 2", nil, 0},
		{"greater or equal at equality", "2 >= 2", nil, 1},
		{"greater or equal below", "1 >= 2", nil, 0},
		{"less or equal above", "3 <= 2", nil, 0},
		{"nested ternary", "x < 0 ? -1 : x == 0 ? 0 : 1", Variables{"x": 7}, 1},
		{"else branch not evaluated", "0 ? missing : 3", nil, 3},
		{"then branch guards division", "1 ? 2 : 1/0", nil, 2},
		{"mixed precedence", "1 + 2 * (3.0 / 4.0)", nil, 2.5},
		{"min of variables", "min(a, b)", Variables{"a": 2, "b": 3}, 2},
		{"sine of right angle", "sin(radians(a))", Variables{"a": 90}, 1},
		{"function", "min(a, 2) + max(a, 2)", Variables{"a": 5}, 7},
		{"nested calls", "degrees(atan2(1, 1))", nil, 45},
		{"multiline", "a +\n  b", Variables{"a": 1, "b": 2}, 3},
		{"float literal saturates", "1e400 > 1", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.formula, tt.vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateNilScope(t *testing.T) {
	got, err := Evaluate("1 + 1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Errorf("got %v, want 2", got)
	}
}

func TestEvaluateNaNIsTruthy(t *testing.T) {
	got, err := Evaluate("x ? 1 : 2", Values{"x": "nan"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestEvaluateSyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		vars    Variables
		line    int
		column  int
		message string
	}{
		{"undefined variable", "missing + 1", nil, 1, 1, "undefined variable: missing"},
		{"undefined after operator", "1 + missing", nil, 1, 5, "undefined variable: missing"},
		{"undefined after wide space", "x +　y", Variables{"x": 1}, 1, 5, "undefined variable: y"},
		{"undefined on second line", "x +\n  y", Variables{"x": 1}, 2, 3, "undefined variable: y"},
		{"unknown function", "1 + foo(1)", nil, 1, 5, "unsupported function: foo"},
		{"comparison operand evaluated", "1 < 2 < missing", nil, 1, 9, "undefined variable: missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.formula, tt.vars)
			se, ok := err.(*SyntaxError)
			if !ok {
				t.Fatalf("got %T (%v), want *SyntaxError", err, err)
			}
			if se.Line != tt.line || se.Column != tt.column {
				t.Errorf("got %d:%d, want %d:%d", se.Line, se.Column, tt.line, tt.column)
			}
			if se.Message != tt.message {
				t.Errorf("got message %q, want %q", se.Message, tt.message)
			}
		})
	}
}

func TestEvaluateRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		scope   Scope
		message string
	}{
		{"division by zero", "1 / 0", nil, "float division by zero"},
		{"division by zero variable", "a / (b - 2)", Variables{"a": 1, "b": 2}, "float division by zero"},
		{"zero to negative power", "0 ^ -1", nil, "0.0 cannot be raised to a negative power"},
		{"fractional power of negative", "(-8) ^ (1 / 3)", nil, "negative number cannot be raised to a fractional power"},
		{"power overflow", "10 ^ 400", nil, "numerical result out of range"},
		{"domain", "sqrt(-1)", nil, "math domain error"},
		{"arity", "sin()", nil, "sin expects 1 argument(s), got 0"},
		{"non-numeric variable", "a + 1", Values{"a": "abc"}, `variable a: could not convert string to float: "abc"`},
		{"null variable", "a + 1", Values{"a": nil}, "variable a: value is null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.formula, tt.scope)
			re, ok := err.(*RuntimeError)
			if !ok {
				t.Fatalf("got %T (%v), want *RuntimeError", err, err)
			}
			if re.Message != tt.message {
				t.Errorf("got message %q, want %q", re.Message, tt.message)
			}
		})
	}
}

func TestEvaluateErrorText(t *testing.T) {
	_, err := Evaluate("1 / 0", nil)
	if got := err.Error(); got != "evaluation failed: float division by zero" {
		t.Errorf("runtime error text = %q", got)
	}

	_, err = Evaluate("1 + y", nil)
	if got := err.Error(); got != "1:5: undefined variable: y" {
		t.Errorf("syntax error text = %q", got)
	}
}

func TestEvalIntegerLiteralOverflow(t *testing.T) {
	node := &LiteralNode{Pos: Position{Line: 1, Column: 1}, Text: "1" + strings.Repeat("0", 400), Value: math.Inf(1)}
	_, err := Eval(node, nil)
	if !IsRuntimeError(err) {
		t.Fatalf("got %v, want runtime error", err)
	}
}

func TestValuesScope(t *testing.T) {
	scope := Values{
		"f":    2.5,
		"i":    3,
		"b":    true,
		"s":    " 4 ",
		"list": []interface{}{1},
	}

	got, err := Evaluate("f + i + b + s", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10.5 {
		t.Errorf("got %v, want 10.5", got)
	}

	if _, err := Evaluate("list", scope); !IsRuntimeError(err) {
		t.Errorf("list value: got %v, want runtime error", err)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	vars := Variables{"a": 1.1, "b": 2.2}
	first, err := Evaluate("sin(a) * b ^ 2 / 3", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		got, err := Evaluate("sin(a) * b ^ 2 / 3", vars)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != first {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	node, err := Parse("x * 2 + max(x, 10)")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			got, err := Eval(node, Variables{"x": x})
			want := x*2 + math.Max(x, 10)
			if err != nil || got != want {
				errs <- "unexpected result"
			}
		}(float64(i))
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
