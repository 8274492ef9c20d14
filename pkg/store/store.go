// Package store provides in-memory storage for templates and their solutions.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enjicalc/calc-engine/pkg/formula"
	"github.com/enjicalc/calc-engine/pkg/template"
)

var (
	// ErrNotFound is wrapped by errors for missing templates and solutions.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is wrapped when a template ID is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotActive is wrapped when finishing a solution twice.
	ErrNotActive = errors.New("is not active")
)

// TemplateState represents the state of a stored template.
type TemplateState string

const (
	TemplateActive TemplateState = "ACTIVE"
)

// SolutionState represents the state of a solution.
type SolutionState string

const (
	SolutionActive    SolutionState = "ACTIVE"
	SolutionSucceeded SolutionState = "SUCCEEDED"
	SolutionFailed    SolutionState = "FAILED"
)

// Template is a stored calculation template.
type Template struct {
	Name        string             `json:"name"`
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	State       TemplateState      `json:"state"`
	RevisionID  string             `json:"revisionId"`
	CreateTime  time.Time          `json:"createTime"`
	UpdateTime  time.Time          `json:"updateTime"`
	SourceCode  string             `json:"sourceContents"`
	Parsed      *template.Template `json:"-"`
}

// Solution is one solve of a template revision.
type Solution struct {
	Name               string                `json:"name"`
	ID                 string                `json:"id"`
	TemplateID         string                `json:"templateId"`
	State              SolutionState         `json:"state"`
	Symbols            *template.SymbolTable `json:"symbols,omitempty"`
	Error              *SolutionError        `json:"error,omitempty"`
	StartTime          time.Time             `json:"startTime"`
	EndTime            time.Time             `json:"endTime,omitempty"`
	TemplateRevisionID string                `json:"templateRevisionId"`
}

// SolutionError describes why a solution failed.
type SolutionError struct {
	Payload string `json:"payload"`
	Kind    string `json:"kind,omitempty"` // "syntax" or "runtime"
	Alias   string `json:"alias,omitempty"`
	Formula string `json:"formula,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewSolutionError describes err, picking out the failing component and the
// formula error position when err carries them.
func NewSolutionError(err error) *SolutionError {
	se := &SolutionError{Payload: err.Error()}

	var solveErr *template.SolveError
	if errors.As(err, &solveErr) {
		se.Alias = solveErr.Alias
		se.Formula = solveErr.Formula
	}

	var syntaxErr *formula.SyntaxError
	var runtimeErr *formula.RuntimeError
	switch {
	case errors.As(err, &syntaxErr):
		se.Kind = "syntax"
		se.Line = syntaxErr.Line
		se.Column = syntaxErr.Column
	case errors.As(err, &runtimeErr):
		se.Kind = "runtime"
	}
	return se
}

// Store is a thread-safe in-memory storage for templates and solutions.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Template
	solutions map[string]*Solution

	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		templates: make(map[string]*Template),
		solutions: make(map[string]*Solution),
	}
}

func templateName(id string) string {
	return "templates/" + id
}

func solutionName(templateID, solutionID string) string {
	return fmt.Sprintf("templates/%s/solutions/%s", templateID, solutionID)
}

// CreateTemplate stores a parsed template. An empty id is replaced by a
// generated one.
func (s *Store) CreateTemplate(id, sourceCode, description string, parsed *template.Template) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.templates[id]; exists {
		return nil, fmt.Errorf("template '%s' %w", id, ErrAlreadyExists)
	}

	s.revCounter++
	now := time.Now()
	t := &Template{
		Name:        templateName(id),
		ID:          id,
		Title:       parsed.Title,
		Description: description,
		State:       TemplateActive,
		RevisionID:  fmt.Sprintf("%06d-000", s.revCounter),
		CreateTime:  now,
		UpdateTime:  now,
		SourceCode:  sourceCode,
		Parsed:      parsed,
	}
	s.templates[id] = t
	return copyTemplate(t), nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template '%s' %w", id, ErrNotFound)
	}
	return copyTemplate(t), nil
}

// ListTemplates returns all templates, oldest first.
func (s *Store) ListTemplates() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		result = append(result, copyTemplate(t))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreateTime.Equal(result[j].CreateTime) {
			return result[i].CreateTime.Before(result[j].CreateTime)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// UpdateTemplate replaces a template's source. A nil parsed template keeps
// the current source and only updates the description.
func (s *Store) UpdateTemplate(id, sourceCode, description string, parsed *template.Template) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template '%s' %w", id, ErrNotFound)
	}

	s.revCounter++
	if parsed != nil {
		t.SourceCode = sourceCode
		t.Parsed = parsed
		t.Title = parsed.Title
	}
	if description != "" {
		t.Description = description
	}
	t.RevisionID = fmt.Sprintf("%06d-000", s.revCounter)
	t.UpdateTime = time.Now()

	return copyTemplate(t), nil
}

// DeleteTemplate removes a template and its solutions.
func (s *Store) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("template '%s' %w", id, ErrNotFound)
	}
	delete(s.templates, id)
	for name, sol := range s.solutions {
		if sol.TemplateID == id {
			delete(s.solutions, name)
		}
	}
	return nil
}

// CreateSolution opens a solution for the current revision of a template.
func (s *Store) CreateSolution(templateID string) (*Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("template '%s' %w", templateID, ErrNotFound)
	}
	return copySolution(s.openSolution(t)), nil
}

// openSolution records an active solution of t's current revision. The
// caller holds s.mu.
func (s *Store) openSolution(t *Template) *Solution {
	id := uuid.NewString()
	sol := &Solution{
		Name:               solutionName(t.ID, id),
		ID:                 id,
		TemplateID:         t.ID,
		State:              SolutionActive,
		StartTime:          time.Now(),
		TemplateRevisionID: t.RevisionID,
	}
	s.solutions[sol.Name] = sol
	return sol
}

// SolveTemplate solves the current revision of a template and records the
// outcome as a new solution. A failed solve is reported on the returned
// solution, not as an error.
func (s *Store) SolveTemplate(templateID string) (*Solution, error) {
	// The parsed definition and the revision recorded on the solution are
	// taken under one lock so a concurrent update cannot split them.
	s.mu.Lock()
	t, ok := s.templates[templateID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("template '%s' %w", templateID, ErrNotFound)
	}
	parsed := t.Parsed
	if parsed == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("template '%s' has no parsed definition", templateID)
	}
	sol := s.openSolution(t)
	s.mu.Unlock()

	symbols, solveErr := template.Solve(parsed)
	var err error
	if solveErr != nil {
		err = s.FailSolution(sol.Name, symbols, solveErr)
	} else {
		err = s.CompleteSolution(sol.Name, symbols)
	}
	if err != nil {
		return nil, err
	}
	return s.GetSolution(templateID, sol.ID)
}

// GetSolution retrieves a solution by template and solution ID.
func (s *Store) GetSolution(templateID, solutionID string) (*Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := solutionName(templateID, solutionID)
	sol, ok := s.solutions[name]
	if !ok {
		return nil, fmt.Errorf("solution '%s' %w", name, ErrNotFound)
	}
	return copySolution(sol), nil
}

// ListSolutions returns the solutions of a template, oldest first.
func (s *Store) ListSolutions(templateID string) []*Solution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Solution
	for _, sol := range s.solutions {
		if sol.TemplateID == templateID {
			result = append(result, copySolution(sol))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// LatestSolution returns the most recently started solution of a template.
func (s *Store) LatestSolution(templateID string) (*Solution, bool) {
	list := s.ListSolutions(templateID)
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

// CompleteSolution marks a solution as succeeded with its symbol values.
func (s *Store) CompleteSolution(name string, symbols *template.SymbolTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol, err := s.activeSolution(name)
	if err != nil {
		return err
	}
	sol.State = SolutionSucceeded
	sol.EndTime = time.Now()
	sol.Symbols = symbols.Clone()
	return nil
}

// FailSolution marks a solution as failed. The symbols solved before the
// failure are kept when given.
func (s *Store) FailSolution(name string, symbols *template.SymbolTable, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol, lookupErr := s.activeSolution(name)
	if lookupErr != nil {
		return lookupErr
	}
	sol.State = SolutionFailed
	sol.EndTime = time.Now()
	if symbols != nil {
		sol.Symbols = symbols.Clone()
	}
	sol.Error = NewSolutionError(err)
	return nil
}

func (s *Store) activeSolution(name string) (*Solution, error) {
	sol, ok := s.solutions[name]
	if !ok {
		return nil, fmt.Errorf("solution '%s' %w", name, ErrNotFound)
	}
	if sol.State != SolutionActive {
		return nil, fmt.Errorf("solution '%s' %w (state: %s)", name, ErrNotActive, sol.State)
	}
	return sol, nil
}

func copyTemplate(t *Template) *Template {
	c := *t
	return &c
}

func copySolution(sol *Solution) *Solution {
	c := *sol
	if sol.Error != nil {
		e := *sol.Error
		c.Error = &e
	}
	return &c
}
