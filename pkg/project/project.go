// Package project converts templates into project import documents and
// pushes them to a project service over GraphQL.
package project

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/enjicalc/calc-engine/pkg/template"
)

// Symbol is a component as the project service models it.
type Symbol struct {
	Varname     string   `json:"varname"`
	Glyph       string   `json:"glyph"`
	Aliases     []string `json:"aliases"`
	Value       string   `json:"value"`
	Unit        string   `json:"unit"`
	Description string   `json:"description"`
	Comment     string   `json:"comment"`
}

// Section is a titled group of symbol names.
type Section struct {
	Title   string   `json:"title"`
	Symbols []string `json:"symbols"`
}

// Document is the project import document.
type Document struct {
	Title    string    `json:"title"`
	Symbols  []Symbol  `json:"symbols"`
	Sections []Section `json:"sections"`
}

// Project is a template ready for export.
type Project struct {
	Title      string
	Components []template.Component
	Sections   []template.Section
}

// FromTemplate builds a project from a parsed template.
func FromTemplate(t *template.Template) *Project {
	return &Project{
		Title:      t.Title,
		Components: t.Components,
		Sections:   t.Sections,
	}
}

// ImportDocument builds the import document. Every symbol value is the
// constant-formula as text; numbers are written in canonical form.
func (p *Project) ImportDocument() *Document {
	doc := &Document{
		Title:    p.Title,
		Symbols:  make([]Symbol, 0, len(p.Components)),
		Sections: make([]Section, 0, len(p.Sections)),
	}
	for _, c := range p.Components {
		doc.Symbols = append(doc.Symbols, Symbol{
			Varname:     c.Alias,
			Glyph:       c.VariableName,
			Aliases:     []string{c.Alias},
			Value:       c.ConstantFormula.Literal(),
			Unit:        c.Unit,
			Description: c.Description,
			Comment:     c.Comment,
		})
	}
	for _, s := range p.Sections {
		symbols := s.Variables
		if symbols == nil {
			symbols = []string{}
		}
		doc.Sections = append(doc.Sections, Section{Title: s.Name, Symbols: symbols})
	}
	return doc
}

// MarshalImportFile renders the import file contents: the document under
// a "project" key, indented by two spaces.
func (p *Project) MarshalImportFile() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]*Document{"project": p.ImportDocument()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode import document: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteImportFile writes the import file to path.
func (p *Project) WriteImportFile(path string) error {
	data, err := p.MarshalImportFile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write import document: %w", err)
	}
	return nil
}
