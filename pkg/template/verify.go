package template

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// StructureError reports a template whose shape does not follow the
// standard template.
type StructureError struct {
	Message string
}

func (e *StructureError) Error() string {
	return "template structure error: " + e.Message
}

//go:embed standard_template.json
var standardTemplate []byte

// StandardTemplate returns a copy of the standard template document.
func StandardTemplate() []byte {
	out := make([]byte, len(standardTemplate))
	copy(out, standardTemplate)
	return out
}

// layout is the shape every template must share with the standard
// template: its top-level keys in order, and the keys each component must
// carry.
type layout struct {
	keys          []string
	components    string
	sections      string
	requiredInRow []string
}

var standard = mustLayout(standardTemplate)

func mustLayout(src []byte) layout {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		panic(fmt.Sprintf("template: invalid standard template: %v", err))
	}
	root := doc.Content[0]
	keys := mappingKeys(root)
	if len(keys) != 3 {
		panic("template: standard template must have three top-level keys")
	}

	rows := mappingValue(root, keys[1])
	if rows == nil || rows.Kind != yaml.SequenceNode || len(rows.Content) == 0 {
		panic("template: standard template has no sample component")
	}
	rowKeys := mappingKeys(rows.Content[0])
	if len(rowKeys) < 4 {
		panic("template: standard template component has too few keys")
	}

	// The first component key is the display name; the next three are
	// required.
	return layout{
		keys:          keys,
		components:    keys[1],
		sections:      keys[2],
		requiredInRow: rowKeys[1:4],
	}
}

// Verify checks the structure of a decoded template document:
//   - its top-level keys are exactly those of the standard template;
//   - the components entry is a list whose items each carry the alias,
//     constant-formula and unit keys;
//   - the sections entry is a list.
func Verify(root *yaml.Node) error {
	if root == nil || root.Kind != yaml.MappingNode || !sameKeys(mappingKeys(root), standard.keys) {
		return &StructureError{Message: "the main structure is not aligned with the standard template organisation"}
	}

	rows := mappingValue(root, standard.components)
	if rows.Kind != yaml.SequenceNode {
		return &StructureError{Message: "components need to be organized in a list data structure []"}
	}
	for i, row := range rows.Content {
		if missing := missingKeys(row, standard.requiredInRow); len(missing) > 0 {
			return &StructureError{Message: fmt.Sprintf("invalid structure of the component %d %s: missing %s",
				i, render(row), strings.Join(missing, ", "))}
		}
	}

	if mappingValue(root, standard.sections).Kind != yaml.SequenceNode {
		return &StructureError{Message: "sections need to be organized in a list data structure []"}
	}
	return nil
}

// mappingKeys returns the keys of a mapping node in document order.
func mappingKeys(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// sameKeys compares key sets, ignoring order.
func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func missingKeys(row *yaml.Node, required []string) []string {
	if row.Kind != yaml.MappingNode {
		return required
	}
	have := make(map[string]bool)
	for _, k := range mappingKeys(row) {
		have[k] = true
	}
	var missing []string
	for _, k := range required {
		if !have[k] {
			missing = append(missing, k)
		}
	}
	return missing
}

// render formats a node compactly for error messages.
func render(n *yaml.Node) string {
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
