package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

// Smoke tests for the server-rendered UI at /ui.

// uiURL builds a URL for the web UI.
func uiURL(path string) string {
	return strings.TrimRight(testServer, "/") + "/ui" + path
}

func getPage(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("HTTP error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK && !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("expected text/html content type, got %s", resp.Header.Get("Content-Type"))
	}
	return resp.StatusCode, string(body)
}

func TestWebUI_DashboardLoads(t *testing.T) {
	code, html := getPage(t, uiURL(""))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(html, "<html") {
		t.Error("response does not contain <html tag")
	}
}

func TestWebUI_TemplateAndSolutionPages(t *testing.T) {
	id := uniqueID("ui")
	createTemplate(t, id, templateSource("UI smoke", "x", 3, "y", "x * x"))
	sol := solveTemplate(t, id)

	code, html := getPage(t, uiURL("/templates/"+id))
	if code != http.StatusOK {
		t.Fatalf("template page: expected 200, got %d", code)
	}
	if !strings.Contains(html, "UI smoke") || !strings.Contains(html, "x * x") {
		t.Error("template page is missing the title or a formula")
	}

	code, html = getPage(t, uiURL("/solutions/"+id+"/"+sol["id"].(string)))
	if code != http.StatusOK {
		t.Fatalf("solution page: expected 200, got %d", code)
	}
	if !strings.Contains(html, "SUCCEEDED") {
		t.Error("solution page is missing the state")
	}
}

func TestWebUI_NotFound(t *testing.T) {
	code, _ := getPage(t, uiURL("/templates/"+uniqueID("nope")))
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}
