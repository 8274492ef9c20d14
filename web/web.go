// Package web provides the embedded web UI for the calc engine.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/enjicalc/calc-engine/pkg/store"
	calctemplate "github.com/enjicalc/calc-engine/pkg/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New creates a new web UI handler.
func New(s *store.Store) *Handler {
	return &Handler{
		store: s,
		funcMap: template.FuncMap{
			"timeAgo":     timeAgo,
			"formatTime":  formatTime,
			"duration":    duration,
			"stateClass":  stateClass,
			"stateIcon":   stateIcon,
			"truncate":    truncate,
			"solutionID":  solutionID,
			"formatValue": formatValue,
			"countLines":  countLines,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, status int, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout on its own so the "content"
	// blocks of different pages never collide.
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	pd := pageData{
		NavActive: navActive,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Status(status).Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/templates/:id", h.templateDetail)
	app.Get("/ui/solutions/:template/:solution", h.solutionDetail)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Templates      []*templateView
	RecentSolves   []*store.Solution
	SucceededCount int
	FailedCount    int
}

type templateView struct {
	*store.Template
	ComponentCount int
	SolutionCount  int
	Latest         *store.Solution
}

type componentRow struct {
	calctemplate.Component
	Value    string
	HasValue bool
}

type sectionView struct {
	Name      string
	Variables []string
}

type templateDetailContent struct {
	Template   *store.Template
	Components []componentRow
	Sections   []sectionView
	Solutions  []*store.Solution
	Latest     *store.Solution
}

type symbolRow struct {
	Alias string
	Value string
	Unit  string
}

type solutionDetailContent struct {
	Solution *store.Solution
	Title    string
	Symbols  []symbolRow
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	templates := h.store.ListTemplates()
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].UpdateTime.After(templates[j].UpdateTime)
	})

	var views []*templateView
	var all []*store.Solution
	var succeeded, failed int

	for _, t := range templates {
		sols := h.store.ListSolutions(t.ID)
		v := &templateView{Template: t, SolutionCount: len(sols)}
		if t.Parsed != nil {
			v.ComponentCount = len(t.Parsed.Components)
		}
		if latest, ok := h.store.LatestSolution(t.ID); ok {
			v.Latest = latest
		}
		views = append(views, v)

		for _, sol := range sols {
			all = append(all, sol)
			switch sol.State {
			case store.SolutionSucceeded:
				succeeded++
			case store.SolutionFailed:
				failed++
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})
	recent := all
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return h.render(c, 200, "dashboard.html", "dashboard", dashboardContent{
		Templates:      views,
		RecentSolves:   recent,
		SucceededCount: succeeded,
		FailedCount:    failed,
	})
}

func (h *Handler) templateDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	t, err := h.store.GetTemplate(id)
	if err != nil {
		return h.render(c, 404, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Template '%s' not found", id),
		})
	}

	sols := h.store.ListSolutions(id)
	sort.Slice(sols, func(i, j int) bool {
		return sols[i].StartTime.After(sols[j].StartTime)
	})

	latest, _ := h.store.LatestSolution(id)

	content := templateDetailContent{
		Template:  t,
		Solutions: sols,
		Latest:    latest,
	}
	if t.Parsed != nil {
		for _, comp := range t.Parsed.Components {
			row := componentRow{Component: comp}
			if latest != nil && latest.Symbols != nil {
				if v, ok := latest.Symbols.Get(comp.Alias); ok {
					row.Value = formatValue(v)
					row.HasValue = true
				}
			}
			content.Components = append(content.Components, row)
		}
		for _, sec := range t.Parsed.Sections {
			content.Sections = append(content.Sections, sectionView{Name: sec.Name, Variables: sec.Variables})
		}
	}

	return h.render(c, 200, "template_detail.html", "templates", content)
}

func (h *Handler) solutionDetail(c *fiber.Ctx) error {
	tmplID := c.Params("template")
	solID := c.Params("solution")

	sol, err := h.store.GetSolution(tmplID, solID)
	if err != nil {
		return h.render(c, 404, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Solution '%s' not found", solID),
		})
	}

	content := solutionDetailContent{Solution: sol, Title: tmplID}
	var parsed *calctemplate.Template
	if t, err := h.store.GetTemplate(tmplID); err == nil {
		content.Title = t.Title
		parsed = t.Parsed
	}
	if sol.Symbols != nil {
		for _, sym := range sol.Symbols.Symbols() {
			row := symbolRow{Alias: sym.Alias, Value: formatValue(sym.Value)}
			if parsed != nil {
				if comp, ok := parsed.Component(sym.Alias); ok {
					row.Unit = comp.Unit
				}
			}
			content.Symbols = append(content.Symbols, row)
		}
	}

	return h.render(c, 200, "solution_detail.html", "templates", content)
}

// --- Template Helpers ---

func solutionID(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		if p == "solutions" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return name
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 12, 64)
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return "running"
	}
	d := end.Sub(start)
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stateClass(state store.SolutionState) string {
	switch state {
	case store.SolutionActive:
		return "state-active"
	case store.SolutionSucceeded:
		return "state-succeeded"
	case store.SolutionFailed:
		return "state-failed"
	default:
		return ""
	}
}

func stateIcon(state store.SolutionState) template.HTML {
	switch state {
	case store.SolutionActive:
		return "&#9654;"
	case store.SolutionSucceeded:
		return "&#10003;"
	case store.SolutionFailed:
		return "&#10007;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
