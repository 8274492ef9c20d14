// Package template reads calculation templates: a titled, ordered list of
// components, each a constant or a formula over the components before it,
// grouped into sections for display.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MaxSourceSize is the maximum template source size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// Template is a parsed calculation template.
type Template struct {
	Title      string      `json:"title" yaml:"title"`
	Components []Component `json:"calc-components" yaml:"calc-components"`
	Sections   []Section   `json:"sections" yaml:"sections"`
}

// Component is one named quantity of a template.
type Component struct {
	VariableName    string  `json:"variable-name" yaml:"variable-name"`
	Alias           string  `json:"alias" yaml:"alias"`
	ConstantFormula Formula `json:"constant-formula" yaml:"constant-formula"`
	Unit            string  `json:"unit" yaml:"unit"`
	Description     string  `json:"description" yaml:"description"`
	Comment         string  `json:"comment" yaml:"comment"`
}

// Section groups component aliases under a heading.
type Section struct {
	Name      string   `json:"section-name" yaml:"section-name"`
	Variables []string `json:"variables" yaml:"variables"`
}

// Component returns the last component bound to alias.
func (t *Template) Component(alias string) (Component, bool) {
	for i := len(t.Components) - 1; i >= 0; i-- {
		if t.Components[i].Alias == alias {
			return t.Components[i], true
		}
	}
	return Component{}, false
}

// Formula is the constant-formula of a component: either a number literal
// or formula text.
type Formula struct {
	Text   string  // source text as written
	Number bool    // written as a number rather than a string
	Value  float64 // the number, when Number is set
}

// NumberFormula returns a Formula holding a constant.
func NumberFormula(v float64) Formula {
	return Formula{Text: formatNumber(v), Number: true, Value: v}
}

// TextFormula returns a Formula holding formula text.
func TextFormula(s string) Formula {
	return Formula{Text: s}
}

func (f Formula) String() string {
	return f.Text
}

// Literal returns the formula as text with numbers in canonical form:
// integer literals as integers ("1000"), other numbers with a fraction or
// exponent ("1000.0", "1e-05").
func (f Formula) Literal() string {
	if !f.Number {
		return f.Text
	}
	if n, err := strconv.ParseInt(f.Text, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return formatNumber(f.Value)
}

// UnmarshalYAML implements yaml.Unmarshaler. JSON documents decode through
// the same path.
func (f *Formula) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: constant-formula must be a number or a string", value.Line)
	}
	switch value.ShortTag() {
	case "!!int", "!!float":
		var v float64
		if err := value.Decode(&v); err != nil {
			return err
		}
		*f = Formula{Text: value.Value, Number: true, Value: v}
	case "!!str":
		*f = Formula{Text: value.Value}
	default:
		return fmt.Errorf("line %d: constant-formula must be a number or a string, got %s", value.Line, value.ShortTag())
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f Formula) MarshalYAML() (interface{}, error) {
	if f.Number {
		return f.Value, nil
	}
	return f.Text, nil
}

// MarshalJSON implements json.Marshaler.
func (f Formula) MarshalJSON() ([]byte, error) {
	if f.Number {
		return json.Marshal(f.Value)
	}
	return json.Marshal(f.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Formula) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*f = Formula{Text: string(data), Number: true, Value: x}
	case string:
		*f = Formula{Text: x}
	default:
		return fmt.Errorf("constant-formula must be a number or a string, got %s", data)
	}
	return nil
}

// Parse decodes a JSON or YAML template and verifies its structure.
func Parse(source []byte) (*Template, error) {
	if len(source) > MaxSourceSize {
		return nil, &StructureError{Message: fmt.Sprintf("template source size %d exceeds maximum %d bytes", len(source), MaxSourceSize)}
	}

	root, err := decodeDocument(source)
	if err != nil {
		return nil, err
	}

	if err := Verify(root); err != nil {
		return nil, err
	}

	var t Template
	if err := root.Decode(&t); err != nil {
		return nil, &StructureError{Message: fmt.Sprintf("invalid template document: %v", err)}
	}
	return &t, nil
}

// decodeDocument returns the root node of a JSON or YAML template. JSON goes
// through encoding/json since YAML does not accept every JSON escape.
func decodeDocument(source []byte) (*yaml.Node, error) {
	if isJSON(source) {
		root, err := decodeJSON(source)
		if err != nil {
			return nil, &StructureError{Message: fmt.Sprintf("invalid template document: %v", err)}
		}
		return root, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &StructureError{Message: fmt.Sprintf("invalid template document: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &StructureError{Message: "empty template document"}
	}
	return doc.Content[0], nil
}
