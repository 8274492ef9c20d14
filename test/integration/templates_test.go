package integration

import (
	"net/http"
	"testing"
)

func TestTemplates_CRUD(t *testing.T) {
	id := uniqueID("crud")
	created := createTemplate(t, id, templateSource("Plate", "t", 20, "b", 1000, "A", "t * b"))
	if created["name"] != "templates/"+id || created["title"] != "Plate" {
		t.Fatalf("unexpected template: %v", created)
	}

	code, body := doJSON(t, "GET", apiURL("templates/"+id), nil)
	if code != http.StatusOK || body["revisionId"] != created["revisionId"] {
		t.Fatalf("get: %d %v", code, body)
	}

	code, body = doJSON(t, "PATCH", apiURL("templates/"+id), map[string]interface{}{
		"sourceContents": templateSource("Plate v2", "t", 25),
	})
	if code != http.StatusOK || body["title"] != "Plate v2" {
		t.Fatalf("update: %d %v", code, body)
	}
	if body["revisionId"] == created["revisionId"] {
		t.Error("expected a new revision after a source update")
	}

	code, _ = doJSON(t, "DELETE", apiURL("templates/"+id), nil)
	if code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	code, body = doJSON(t, "GET", apiURL("templates/"+id), nil)
	if code != http.StatusNotFound || errorField(body, "status") != "NOT_FOUND" {
		t.Errorf("get after delete: %d %v", code, body)
	}
}

func TestTemplates_RejectsBadStructure(t *testing.T) {
	tests := map[string]string{
		"missing sections":    `{"title": "x", "calc-components": []}`,
		"components not list": `{"title": "x", "calc-components": {}, "sections": []}`,
		"component keys":      `{"title": "x", "calc-components": [{"alias": "a"}], "sections": []}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			code, body := doJSON(t, "POST", apiURL("templates")+"?templateId="+uniqueID("bad"), map[string]interface{}{
				"sourceContents": src,
			})
			if code != http.StatusBadRequest || errorField(body, "status") != "INVALID_ARGUMENT" {
				t.Errorf("expected 400 INVALID_ARGUMENT, got %d %v", code, body)
			}
		})
	}
}

func TestSolutions_Succeeded(t *testing.T) {
	id := uniqueID("solve")
	createTemplate(t, id, templateSource("Concrete",
		"f_ck", 30,
		"gamma_c", 1.5,
		"alpha_cc", "1",
		"f_cd", "alpha_cc * f_ck / gamma_c",
		"ok", "f_cd >= 20 ? 1 : 0",
	))

	sol := solveTemplate(t, id)
	if sol["state"] != "SUCCEEDED" {
		t.Fatalf("expected SUCCEEDED, got %v", sol)
	}
	if v := symbolValue(t, sol, "f_cd"); v != 20 {
		t.Errorf("f_cd = %v, want 20", v)
	}
	if v := symbolValue(t, sol, "ok"); v != 1 {
		t.Errorf("ok = %v, want 1", v)
	}

	code, body := doJSON(t, "GET", apiURL("templates/"+id+"/solutions/"+sol["id"].(string)), nil)
	if code != http.StatusOK || body["state"] != "SUCCEEDED" {
		t.Errorf("get solution: %d %v", code, body)
	}
}

func TestSolutions_FailedKeepsPartialSymbols(t *testing.T) {
	id := uniqueID("fail")
	createTemplate(t, id, templateSource("Broken", "a", 2, "b", "a * 3", "c", "b / (a - 2)"))

	sol := solveTemplate(t, id)
	if sol["state"] != "FAILED" {
		t.Fatalf("expected FAILED, got %v", sol)
	}
	solErr, _ := sol["error"].(map[string]interface{})
	if solErr["alias"] != "c" || solErr["kind"] != "runtime" {
		t.Errorf("error = %v", solErr)
	}
	if v := symbolValue(t, sol, "b"); v != 6 {
		t.Errorf("b = %v, want 6", v)
	}
}

func TestSolutions_ForwardReferenceIsSyntaxError(t *testing.T) {
	id := uniqueID("forward")
	createTemplate(t, id, templateSource("Forward", "a", "b + 1", "b", 1))

	sol := solveTemplate(t, id)
	solErr, _ := sol["error"].(map[string]interface{})
	if sol["state"] != "FAILED" || solErr["kind"] != "syntax" || solErr["column"] != float64(1) {
		t.Errorf("unexpected solution: %v", sol)
	}
}

func TestProjectExport(t *testing.T) {
	id := uniqueID("export")
	createTemplate(t, id, templateSource("Export", "x", 1, "y", "x + 1"))

	code, body := doJSON(t, "GET", apiURL("templates/"+id+"/project"), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	doc, _ := body["project"].(map[string]interface{})
	symbols, _ := doc["symbols"].([]interface{})
	if doc["title"] != "Export" || len(symbols) != 2 {
		t.Fatalf("document = %v", doc)
	}
	second, _ := symbols[1].(map[string]interface{})
	if second["value"] != "x + 1" || second["varname"] != "y" {
		t.Errorf("symbol = %v", second)
	}
}
