package formula

import (
	"strings"
	"testing"
)

func TestParseStructure(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"8 / 4 / 2", "((8 / 4) / 2)"},
		{"2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"-2 ^ 2", "((-2) ^ 2)"},
		{"2 ^ -1", "(2 ^ (-1))"},
		{"--a", "(-(-a))"},
		{"a * b ^ c", "(a * (b ^ c))"},
		{"a < b < c", "(a < b < c)"},
		{"a + 1 >= b * 2", "((a + 1) >= (b * 2))"},
		{"a ? b : c", "(a ? b : c)"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"a ? b ? c : d : e", "(a ? (b ? c : d) : e)"},
		{"x <= 35 ? 1 : 0", "((x <= 35) ? 1 : 0)"},
		{"min(1, 2 + 3)", "min(1, (2 + 3))"},
		{"pi()", "pi()"},
		{"sin(radians(a))", "sin(radians(a))"},
		{"2e-1", "2e-1"},
		{"  ( ( a ) )  ", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if got := Format(node); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseCompareChain(t *testing.T) {
	node, err := Parse("a == b != c < d")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cmp, ok := node.(*CompareNode)
	if !ok {
		t.Fatalf("got %T, want *CompareNode", node)
	}
	if len(cmp.Comparisons) != 3 {
		t.Fatalf("got %d comparisons, want 3", len(cmp.Comparisons))
	}
	wantOps := []CompareOp{OpEq, OpNe, OpLt}
	for i, c := range cmp.Comparisons {
		if c.Op != wantOps[i] {
			t.Errorf("comparison %d: got %s, want %s", i, c.Op, wantOps[i])
		}
	}
}

func TestParseNodePositions(t *testing.T) {
	node, err := Parse("1 + foo(x)")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	bin := node.(*BinaryNode)
	if got := bin.Position(); got.Column != 1 {
		t.Errorf("binary node column = %d, want 1", got.Column)
	}
	call := bin.Right.(*CallNode)
	if got := call.Position(); got.Column != 5 {
		t.Errorf("call node column = %d, want 5", got.Column)
	}
	arg := call.Args[0].(*VariableNode)
	if got := arg.Position(); got.Column != 9 {
		t.Errorf("argument column = %d, want 9", got.Column)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		column int
	}{
		{"empty", "", 1, 1},
		{"blank", "   ", 1, 4},
		{"python power", "1 ** 2", 1, 3},
		{"python conditional", "1 if 1 else 0", 1, 3},
		{"else only", "a ? 1 : else_wise", 1, 9},
		{"keyword inside identifier", "life * 2", 1, 2},
		{"floor division", "1 // 2", 1, 4},
		{"string literal", "''", 1, 1},
		{"not keyword", "not 2", 1, 5},
		{"and and", "and and", 1, 5},
		{"unary plus", "+1", 1, 1},
		{"dangling operator", "1 +", 1, 4},
		{"missing close paren", "(1 + 2", 1, 7},
		{"extra close paren", "1 + 2)", 1, 6},
		{"missing colon", "a ? 1", 1, 6},
		{"missing then", "a ? : 1", 1, 5},
		{"trailing comma", "min(1,)", 1, 7},
		{"missing comma", "min(1 2)", 1, 7},
		{"empty parens", "()", 1, 2},
		{"lambda", strings.Repeat("lambda a:", 28), 1, 8},
		{"too long", strings.Repeat("0", 256), 1, 1},
		{"keyword after multibyte", "é if", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			se, ok := err.(*SyntaxError)
			if !ok {
				t.Fatalf("got %T (%v), want *SyntaxError", err, err)
			}
			if se.Line != tt.line || se.Column != tt.column {
				t.Errorf("got %d:%d, want %d:%d (%v)", se.Line, se.Column, tt.line, tt.column, se)
			}
		})
	}
}

func TestParseLengthBound(t *testing.T) {
	// 127 "1+" pairs and a final "1" is exactly 255 characters.
	ok := strings.Repeat("1+", 127) + "1"
	if len(ok) != MaxFormulaLength {
		t.Fatalf("test formula has %d characters", len(ok))
	}
	if _, err := Parse(ok); err != nil {
		t.Errorf("255-character formula: %v", err)
	}

	if _, err := Parse(ok + "0"); !IsSyntaxError(err) {
		t.Errorf("256-character formula: got %v, want syntax error", err)
	}

	// Length is counted in characters, not bytes.
	wide := strings.Repeat("　", 250) + "1"
	if _, err := Parse(wide); err != nil {
		t.Errorf("251 characters of wide whitespace: %v", err)
	}
}

func TestParseNestingDepth(t *testing.T) {
	shallow := strings.Repeat("(", 20) + "1" + strings.Repeat(")", 20)
	if _, err := Parse(shallow); err != nil {
		t.Errorf("20 levels: %v", err)
	}

	limit := strings.Repeat("(", MaxDepth) + "1" + strings.Repeat(")", MaxDepth)
	if _, err := Parse(limit); err != nil {
		t.Errorf("%d levels: %v", MaxDepth, err)
	}
	over := strings.Repeat("(", MaxDepth+1) + "1" + strings.Repeat(")", MaxDepth+1)
	if _, err := Parse(over); !IsSyntaxError(err) {
		t.Errorf("%d levels: got %v, want syntax error", MaxDepth+1, err)
	}
	if _, err := Parse(strings.Repeat("-", MaxDepth) + "1"); err != nil {
		t.Errorf("%d negations: %v", MaxDepth, err)
	}

	deep := strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100)
	_, err := Parse(deep)
	if !IsSyntaxError(err) {
		t.Fatalf("100 levels: got %v, want syntax error", err)
	}
	if !strings.Contains(err.Error(), "nested too deeply") {
		t.Errorf("unexpected message: %v", err)
	}

	negs := strings.Repeat("-", 100) + "1"
	if _, err := Parse(negs); !IsSyntaxError(err) {
		t.Errorf("100 negations: got %v, want syntax error", err)
	}

	pows := strings.Repeat("2^", 100) + "1"
	if _, err := Parse(pows); !IsSyntaxError(err) {
		t.Errorf("100 powers: got %v, want syntax error", err)
	}
}
