package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// isJSON reports whether source is a JSON document. YAML flow mappings also
// start with '{', so the document must be valid JSON as well.
func isJSON(source []byte) bool {
	trimmed := bytes.TrimLeft(source, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(source)
}

// decodeJSON reads a JSON document into a yaml.Node tree so JSON and YAML
// templates share verification and decoding. Object keys keep their order;
// a repeated key keeps its first position and takes the last value.
func decodeJSON(source []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()
	r := &jsonReader{dec: dec, source: source}

	root, err := r.value()
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level value")
	}
	return root, nil
}

type jsonReader struct {
	dec    *json.Decoder
	source []byte
}

func (r *jsonReader) value() (*yaml.Node, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return nil, err
	}
	return r.node(tok)
}

func (r *jsonReader) node(tok json.Token) (*yaml.Node, error) {
	line, column := r.position()
	n := &yaml.Node{Kind: yaml.ScalarNode, Line: line, Column: column}

	switch v := tok.(type) {
	case json.Delim:
		if v == '[' {
			n.Kind, n.Tag = yaml.SequenceNode, "!!seq"
			for r.dec.More() {
				item, err := r.value()
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, item)
			}
		} else {
			n.Kind, n.Tag = yaml.MappingNode, "!!map"
			seen := make(map[string]int)
			for r.dec.More() {
				key, err := r.value()
				if err != nil {
					return nil, err
				}
				val, err := r.value()
				if err != nil {
					return nil, err
				}
				if i, ok := seen[key.Value]; ok {
					n.Content[i+1] = val
					continue
				}
				seen[key.Value] = len(n.Content)
				n.Content = append(n.Content, key, val)
			}
		}
		// closing delimiter
		if _, err := r.dec.Token(); err != nil {
			return nil, err
		}
	case string:
		n.Tag, n.Value, n.Style = "!!str", v, yaml.DoubleQuotedStyle
	case json.Number:
		n.Tag, n.Value = "!!int", v.String()
		if strings.ContainsAny(n.Value, ".eE") {
			n.Tag = "!!float"
		}
	case bool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v)
	case nil:
		n.Tag, n.Value = "!!null", "null"
	default:
		return nil, fmt.Errorf("unexpected JSON token %v", tok)
	}
	return n, nil
}

// position returns the line and column where the last token read ends.
func (r *jsonReader) position() (int, int) {
	consumed := r.source[:r.dec.InputOffset()]
	line := bytes.Count(consumed, []byte{'\n'}) + 1
	start := bytes.LastIndexByte(consumed, '\n') + 1
	return line, utf8.RuneCount(consumed[start:])
}
