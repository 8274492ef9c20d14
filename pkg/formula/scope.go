package formula

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Scope provides variable lookup for formula evaluation. Lookup reports
// ok=false for names the scope does not define; a non-nil error means the
// name is defined but its value is not usable as a number.
type Scope interface {
	Lookup(name string) (value float64, ok bool, err error)
}

// Variables is a scope of plain numeric values.
type Variables map[string]float64

// Lookup implements Scope.
func (v Variables) Lookup(name string) (float64, bool, error) {
	f, ok := v[name]
	return f, ok, nil
}

// Values is a scope of loosely typed values, as decoded from JSON or YAML.
// Numbers and booleans convert directly and strings are parsed; any other
// value is a RuntimeError when a formula reads it.
type Values map[string]interface{}

// Lookup implements Scope.
func (v Values) Lookup(name string) (float64, bool, error) {
	raw, ok := v[name]
	if !ok {
		return 0, false, nil
	}
	f, err := ToNumber(raw)
	if err != nil {
		return 0, true, newRuntimeError("variable %s: %v", name, err)
	}
	return f, true, nil
}

// ToNumber converts a loosely typed value to float64.
func ToNumber(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("value of type %T is not a number", v)
	}
}

// emptyScope is used when Evaluate is called with a nil scope.
type emptyScope struct{}

func (emptyScope) Lookup(string) (float64, bool, error) { return 0, false, nil }
