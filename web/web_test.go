package web

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/enjicalc/calc-engine/pkg/store"
	calctemplate "github.com/enjicalc/calc-engine/pkg/template"
)

const columnSource = `{
  "title": "Axial column",
  "calc-components": [
    {"variable-name": "b", "alias": "b", "constant-formula": 300, "unit": "mm", "description": "Width", "comment": ""},
    {"variable-name": "h", "alias": "h", "constant-formula": 500, "unit": "mm", "description": "Depth", "comment": ""},
    {"variable-name": "A_{c}", "alias": "A_c", "constant-formula": "b * h", "unit": "mm2", "description": "Gross area", "comment": ""}
  ],
  "sections": [{"section-name": "Geometry", "variables": ["b", "h", "A_c"]}]
}`

func setupTestApp(t *testing.T) (*fiber.App, *store.Store) {
	t.Helper()
	s := store.New()
	h := New(s)
	app := fiber.New()
	h.Register(app)
	return app, s
}

func addColumn(t *testing.T, s *store.Store) *store.Template {
	t.Helper()
	parsed, err := calctemplate.Parse([]byte(columnSource))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tmpl, err := s.CreateTemplate("column", columnSource, "Rectangular column check", parsed)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tmpl
}

func solve(t *testing.T, s *store.Store, tmpl *store.Template) *store.Solution {
	t.Helper()
	sol, err := s.CreateSolution(tmpl.ID)
	if err != nil {
		t.Fatalf("create solution: %v", err)
	}
	symbols, err := calctemplate.Solve(tmpl.Parsed)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if err := s.CompleteSolution(sol.Name, symbols); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return sol
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestDashboardEmpty(t *testing.T) {
	app, _ := setupTestApp(t)

	code, html := get(t, app, "/ui")
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, html)
	}
	if !strings.Contains(html, "Dashboard") {
		t.Error("expected Dashboard in response")
	}
	if !strings.Contains(html, "Calc Engine") {
		t.Error("expected brand in response")
	}
	if !strings.Contains(html, "No templates loaded") {
		t.Error("expected empty state message")
	}
}

func TestDashboardWithData(t *testing.T) {
	app, s := setupTestApp(t)
	tmpl := addColumn(t, s)
	sol := solve(t, s, tmpl)

	code, html := get(t, app, "/ui")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(html, "Axial column") {
		t.Error("expected template title in response")
	}
	if !strings.Contains(html, "/ui/solutions/column/"+sol.ID) {
		t.Error("expected link to the solution")
	}
	if !strings.Contains(html, "SUCCEEDED") {
		t.Error("expected solution state in response")
	}
}

func TestTemplateDetail(t *testing.T) {
	app, s := setupTestApp(t)
	tmpl := addColumn(t, s)

	code, html := get(t, app, "/ui/templates/column")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	for _, want := range []string{"Rectangular column check", "b * h", "Geometry", "Gross area", "not been solved"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in response", want)
		}
	}

	solve(t, s, tmpl)
	_, html = get(t, app, "/ui/templates/column")
	if !strings.Contains(html, "150000") {
		t.Error("expected solved value of A_c in response")
	}
}

func TestSolutionDetail(t *testing.T) {
	app, s := setupTestApp(t)
	tmpl := addColumn(t, s)
	sol := solve(t, s, tmpl)

	code, html := get(t, app, "/ui/solutions/column/"+sol.ID)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	for _, want := range []string{"Axial column", "A_c", "150000", "mm2"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in response", want)
		}
	}
}

func TestFailedSolutionDetail(t *testing.T) {
	app, s := setupTestApp(t)
	tmpl := addColumn(t, s)

	sol, err := s.CreateSolution(tmpl.ID)
	if err != nil {
		t.Fatalf("create solution: %v", err)
	}
	_, solveErr := calctemplate.Solve(&calctemplate.Template{
		Components: []calctemplate.Component{{Alias: "x", ConstantFormula: calctemplate.TextFormula("1 / 0")}},
	})
	if err := s.FailSolution(sol.Name, nil, solveErr); err != nil {
		t.Fatalf("fail: %v", err)
	}

	_, html := get(t, app, "/ui/solutions/column/"+sol.ID)
	if !strings.Contains(html, "runtime error") || !strings.Contains(html, "float division by zero") {
		t.Error("expected failure details in response")
	}
}

func TestNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	for _, path := range []string{"/ui/templates/nonexistent", "/ui/solutions/column/nope"} {
		code, html := get(t, app, path)
		if code != 404 {
			t.Errorf("%s: expected 404, got %d", path, code)
		}
		if !strings.Contains(html, "Not found") {
			t.Errorf("%s: expected not found message", path)
		}
	}
}

func TestRootRedirect(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302 redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/ui" {
		t.Fatalf("expected redirect to /ui, got %s", loc)
	}
}

func TestFormatValue(t *testing.T) {
	tests := map[float64]string{
		150000:    "150000",
		0.4:       "0.4",
		1.0 / 3.0: "0.333333333333",
		1e21:      "1e+21",
	}
	for v, want := range tests {
		if got := formatValue(v); got != want {
			t.Errorf("formatValue(%v) = %q, want %q", v, got, want)
		}
	}
}
