package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/enjicalc/calc-engine/pkg/formula"
)

// SolveError reports the component whose constant-formula failed.
type SolveError struct {
	Index   int
	Alias   string
	Formula string
	Err     error // *formula.SyntaxError or *formula.RuntimeError
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("component %d (%s = %s): %v", e.Index, e.Alias, e.Formula, e.Err)
}

func (e *SolveError) Unwrap() error {
	return e.Err
}

// Symbol is one solved component.
type Symbol struct {
	Alias string  `json:"alias"`
	Value float64 `json:"value"`
}

// SymbolTable maps aliases to values and keeps the order in which aliases
// were first bound. It implements formula.Scope.
type SymbolTable struct {
	keys   []string
	values map[string]float64
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{values: make(map[string]float64)}
}

// Set binds alias to v. Rebinding keeps the alias's original position.
func (s *SymbolTable) Set(alias string, v float64) {
	if _, exists := s.values[alias]; !exists {
		s.keys = append(s.keys, alias)
	}
	s.values[alias] = v
}

// Get returns the value bound to alias.
func (s *SymbolTable) Get(alias string) (float64, bool) {
	v, ok := s.values[alias]
	return v, ok
}

// Lookup implements formula.Scope.
func (s *SymbolTable) Lookup(name string) (float64, bool, error) {
	v, ok := s.values[name]
	return v, ok, nil
}

// Delete removes alias.
func (s *SymbolTable) Delete(alias string) {
	if _, exists := s.values[alias]; !exists {
		return
	}
	delete(s.values, alias)
	for i, k := range s.keys {
		if k == alias {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the aliases in binding order.
func (s *SymbolTable) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of bound aliases.
func (s *SymbolTable) Len() int {
	return len(s.keys)
}

// Symbols returns the bindings in order.
func (s *SymbolTable) Symbols() []Symbol {
	out := make([]Symbol, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Symbol{Alias: k, Value: s.values[k]})
	}
	return out
}

// Clone returns an independent copy.
func (s *SymbolTable) Clone() *SymbolTable {
	c := NewSymbolTable()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// MarshalJSON writes the table as a JSON object in binding order.
// Non-finite values have no JSON form and are rejected.
func (s *SymbolTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		v := s.values[k]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("symbol %s: value %v cannot be written as JSON", k, v)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(formatNumber(v))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// formatNumber renders v the way JSON writers do: shortest round-trip
// digits, a fractional part on whole numbers ("30.0"), and exponent form
// below 1e-4 and from 1e16 up ("1e-05", "1e+16").
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	i := strings.IndexByte(s, 'e')
	if i < 0 {
		return s // Inf, NaN
	}
	exp, _ := strconv.Atoi(s[i+1:])
	if exp < -4 || exp >= 16 {
		return s
	}
	s = strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Solve evaluates the components in order. A numeric constant-formula, or
// text that reads as an integer, is stored as is; anything else is
// evaluated as a formula over the aliases solved so far. On failure the
// aliases solved before the failing component are returned with the error.
func Solve(t *Template) (*SymbolTable, error) {
	symbols := NewSymbolTable()
	for i, c := range t.Components {
		v, err := resolve(c.ConstantFormula, symbols)
		if err != nil {
			return symbols, &SolveError{Index: i, Alias: c.Alias, Formula: c.ConstantFormula.Text, Err: err}
		}
		symbols.Set(c.Alias, v)
	}
	return symbols, nil
}

func resolve(f Formula, scope formula.Scope) (float64, error) {
	if f.Number {
		return f.Value, nil
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(f.Text), 10, 64); err == nil {
		return float64(n), nil
	}
	return formula.Evaluate(f.Text, scope)
}

// EvaluatedPath returns the path solved values are written to: the
// template path with its extension replaced by "_evaluated.json".
func EvaluatedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_evaluated.json"
}

// WriteEvaluated writes symbols as indented JSON to path.
func WriteEvaluated(path string, symbols *SymbolTable) error {
	data, err := json.MarshalIndent(symbols, "", "  ")
	if err != nil {
		return fmt.Errorf("encode solution: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write solution: %w", err)
	}
	return nil
}
