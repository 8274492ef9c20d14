// Package api implements the REST API for evaluating formulas and managing
// and solving calculation templates.
package api

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/enjicalc/calc-engine/pkg/formula"
	"github.com/enjicalc/calc-engine/pkg/project"
	"github.com/enjicalc/calc-engine/pkg/store"
	"github.com/enjicalc/calc-engine/pkg/template"
)

// Server is the calc-engine API server.
type Server struct {
	app   *fiber.App
	store *store.Store
}

// New creates a new API server.
func New(s *store.Store) *Server {
	srv := &Server{store: s}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Formulas
	app.Post("/v1/evaluate", srv.evaluate)
	app.Get("/v1/functions", srv.listFunctions)

	// Templates
	app.Post("/v1/templates", srv.createTemplate)
	app.Get("/v1/templates", srv.listTemplates)
	app.Get("/v1/templates/:template", srv.getTemplate)
	app.Patch("/v1/templates/:template", srv.updateTemplate)
	app.Delete("/v1/templates/:template", srv.deleteTemplate)
	app.Get("/v1/templates/:template/project", srv.exportProject)

	// Solutions
	app.Post("/v1/templates/:template/solutions", srv.createSolution)
	app.Get("/v1/templates/:template/solutions", srv.listSolutions)
	app.Get("/v1/templates/:template/solutions/:solution", srv.getSolution)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// errorResponse writes the JSON error envelope.
func errorResponse(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

// storeError maps store errors to HTTP errors.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResponse(c, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorResponse(c, 409, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, store.ErrNotActive):
		return errorResponse(c, 400, "FAILED_PRECONDITION", err.Error())
	default:
		return errorResponse(c, 500, "INTERNAL", err.Error())
	}
}

// formulaError writes a formula error with its kind and position.
func formulaError(c *fiber.Ctx, err error) error {
	var syntaxErr *formula.SyntaxError
	var runtimeErr *formula.RuntimeError
	switch {
	case errors.As(err, &syntaxErr):
		return c.Status(400).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    400,
				"message": err.Error(),
				"status":  "INVALID_ARGUMENT",
				"kind":    "syntax",
				"line":    syntaxErr.Line,
				"column":  syntaxErr.Column,
			},
		})
	case errors.As(err, &runtimeErr):
		return c.Status(400).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    400,
				"message": err.Error(),
				"status":  "FAILED_PRECONDITION",
				"kind":    "runtime",
			},
		})
	default:
		return errorResponse(c, 500, "INTERNAL", err.Error())
	}
}

// --- Formula Handlers ---

type evaluateRequest struct {
	Formula   string                 `json:"formula"`
	Variables map[string]interface{} `json:"variables"`
}

func (s *Server) evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	v, err := formula.Evaluate(req.Formula, formula.Values(req.Variables))
	if err != nil {
		return formulaError(c, err)
	}

	return c.JSON(fiber.Map{
		"value":   jsonNumber(v),
		"display": strconv.FormatFloat(v, 'g', -1, 64),
	})
}

func (s *Server) listFunctions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"functions": formula.FunctionNames(),
		"constants": formula.ConstantNames(),
	})
}

// --- Template Handlers ---

type templateRequest struct {
	SourceContents string `json:"sourceContents"`
	Description    string `json:"description"`
}

var validTemplateID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func (s *Server) createTemplate(c *fiber.Ctx) error {
	templateID := c.Query("templateId")
	if templateID != "" && (!validTemplateID.MatchString(templateID) || len(templateID) > 128) {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid templateId %q", templateID))
	}

	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.SourceContents == "" {
		return errorResponse(c, 400, "INVALID_ARGUMENT", "sourceContents is required")
	}

	parsed, err := template.Parse([]byte(req.SourceContents))
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid template definition: %v", err))
	}

	t, err := s.store.CreateTemplate(templateID, req.SourceContents, req.Description, parsed)
	if err != nil {
		return storeError(c, err)
	}
	log.Info().Str("template", t.ID).Str("revision", t.RevisionID).Msg("template created")
	return c.JSON(templateToJSON(t))
}

func (s *Server) getTemplate(c *fiber.Ctx) error {
	t, err := s.store.GetTemplate(c.Params("template"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(templateToJSON(t))
}

func (s *Server) listTemplates(c *fiber.Ctx) error {
	templates := s.store.ListTemplates()
	items := make([]fiber.Map, len(templates))
	for i, t := range templates {
		items[i] = templateToJSON(t)
	}
	return c.JSON(fiber.Map{"templates": items})
}

func (s *Server) updateTemplate(c *fiber.Ctx) error {
	id := c.Params("template")

	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	var parsed *template.Template
	if req.SourceContents != "" {
		var err error
		parsed, err = template.Parse([]byte(req.SourceContents))
		if err != nil {
			return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid template definition: %v", err))
		}
	}

	t, err := s.store.UpdateTemplate(id, req.SourceContents, req.Description, parsed)
	if err != nil {
		return storeError(c, err)
	}
	log.Info().Str("template", t.ID).Str("revision", t.RevisionID).Msg("template updated")
	return c.JSON(templateToJSON(t))
}

func (s *Server) deleteTemplate(c *fiber.Ctx) error {
	id := c.Params("template")
	if err := s.store.DeleteTemplate(id); err != nil {
		return storeError(c, err)
	}
	log.Info().Str("template", id).Msg("template deleted")
	return c.JSON(fiber.Map{"name": "templates/" + id, "deleted": true})
}

func (s *Server) exportProject(c *fiber.Ctx) error {
	t, err := s.store.GetTemplate(c.Params("template"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"project": project.FromTemplate(t.Parsed).ImportDocument()})
}

// --- Solution Handlers ---

func (s *Server) createSolution(c *fiber.Ctx) error {
	sol, err := s.store.SolveTemplate(c.Params("template"))
	if err != nil {
		return storeError(c, err)
	}
	logSolution(sol)
	return c.JSON(solutionToJSON(sol))
}

func logSolution(sol *store.Solution) {
	if sol.Error != nil {
		log.Warn().Str("solution", sol.Name).Str("error", sol.Error.Payload).Msg("solve failed")
		return
	}
	log.Info().Str("solution", sol.Name).Int("symbols", sol.Symbols.Len()).Msg("solve succeeded")
}

func (s *Server) getSolution(c *fiber.Ctx) error {
	sol, err := s.store.GetSolution(c.Params("template"), c.Params("solution"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(solutionToJSON(sol))
}

func (s *Server) listSolutions(c *fiber.Ctx) error {
	id := c.Params("template")
	if _, err := s.store.GetTemplate(id); err != nil {
		return storeError(c, err)
	}

	solutions := s.store.ListSolutions(id)
	items := make([]fiber.Map, len(solutions))
	for i, sol := range solutions {
		items[i] = solutionToJSON(sol)
	}
	return c.JSON(fiber.Map{"solutions": items})
}

// --- Directory Loading ---

// LoadDir loads all .yaml, .yml and .json templates from dir and deploys
// them. The file name (sans extension, lowercased) becomes the template ID.
// Files that do not parse are skipped with a warning.
func (s *Server) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading templates directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		if strings.HasSuffix(name, "_evaluated.json") {
			continue
		}

		base := strings.TrimSuffix(name, ext)
		templateID := strings.ToLower(base)
		if templateID != base {
			log.Warn().Str("file", name).Str("template", templateID).Msg("lowercased template ID")
		}
		if !validTemplateID.MatchString(templateID) || len(templateID) > 128 {
			log.Warn().Str("file", name).Str("template", templateID).Msg("skipping file with invalid template ID")
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("could not read template")
			continue
		}

		parsed, err := template.Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("could not parse template")
			continue
		}

		if _, err := s.store.CreateTemplate(templateID, string(data), "", parsed); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("could not deploy template")
			continue
		}
		loaded++
		log.Info().Str("template", templateID).Str("file", name).Msg("loaded template")
	}

	log.Info().Int("count", loaded).Str("dir", dir).Msg("templates loaded")
	return loaded, nil
}

// --- Helpers ---

// jsonNumber returns v, or its text when JSON cannot carry it.
func jsonNumber(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

func templateToJSON(t *store.Template) fiber.Map {
	result := fiber.Map{
		"name":           t.Name,
		"id":             t.ID,
		"title":          t.Title,
		"description":    t.Description,
		"state":          t.State,
		"revisionId":     t.RevisionID,
		"createTime":     t.CreateTime.Format(time.RFC3339),
		"updateTime":     t.UpdateTime.Format(time.RFC3339),
		"sourceContents": t.SourceCode,
	}
	if t.Parsed != nil {
		result["components"] = len(t.Parsed.Components)
		result["sections"] = len(t.Parsed.Sections)
	}
	return result
}

func symbolsToJSON(symbols *template.SymbolTable) []fiber.Map {
	items := make([]fiber.Map, 0, symbols.Len())
	for _, sym := range symbols.Symbols() {
		items = append(items, fiber.Map{
			"alias": sym.Alias,
			"value": jsonNumber(sym.Value),
		})
	}
	return items
}

func solutionToJSON(sol *store.Solution) fiber.Map {
	result := fiber.Map{
		"name":               sol.Name,
		"id":                 sol.ID,
		"state":              sol.State,
		"startTime":          sol.StartTime.Format(time.RFC3339),
		"templateRevisionId": sol.TemplateRevisionID,
	}
	if sol.Symbols != nil {
		result["symbols"] = symbolsToJSON(sol.Symbols)
	}
	if sol.Error != nil {
		result["error"] = sol.Error
	}
	if !sol.EndTime.IsZero() {
		result["endTime"] = sol.EndTime.Format(time.RFC3339)
	}
	return result
}
