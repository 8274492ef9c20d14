package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultEndpoint is the GraphQL endpoint used when none is configured.
const DefaultEndpoint = "https://app.silael.com/api/graphql"

// MaxResponseSize bounds a GraphQL reply (2 MB).
const MaxResponseSize = 2 * 1024 * 1024

// DefaultTimeout applies to each GraphQL request.
const DefaultTimeout = 30 * time.Second

const (
	mutationCreateProject = `mutation { activeResult: createProject { id version title } }`

	mutationUpdateProject = `mutation($projectId: ID!, $version: Int!, $project: ProjectInput!) {
  activeResult: updateProject(id: $projectId, version: $version, project: $project) { id version title }
}`

	mutationCreateSymbol = `mutation($projectId: ID!, $symbol: SymbolInput!) {
  activeResult: createSymbol(projectId: $projectId, symbol: $symbol) { id version }
}`

	mutationCreateSymbolAlias = `mutation($symbolId: ID!, $symbolAlias: SymbolAliasInput!) {
  activeResult: createSymbolAlias(symbolId: $symbolId, symbolAlias: $symbolAlias) { id version value }
}`
)

// QueryError reports a GraphQL reply without an activeResult.
type QueryError struct {
	Operation string
	Reply     string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Reply)
}

// Result is the activeResult of a mutation: its id and version, plus any
// other selected fields.
type Result struct {
	ID      string
	Version int64
	Fields  map[string]interface{}
}

// Importer creates projects through the GraphQL API.
type Importer struct {
	Endpoint string
	Cookie   string // sent verbatim as the Cookie header, e.g. "JSESSIONID=..."
	Client   *http.Client
}

// NewImporter returns an importer for endpoint, or DefaultEndpoint when
// endpoint is empty.
func NewImporter(endpoint, cookie string) *Importer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Importer{
		Endpoint: endpoint,
		Cookie:   cookie,
		Client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// Import creates a project, sets its title and creates one symbol with an
// alias per component. It returns the new project ID.
func (im *Importer) Import(ctx context.Context, p *Project) (string, error) {
	created, err := im.run(ctx, "createProject", mutationCreateProject, nil)
	if err != nil {
		return "", err
	}
	log.Info().Str("project", created.ID).Msg("created project")

	updated, err := im.run(ctx, "updateProject", mutationUpdateProject, map[string]interface{}{
		"projectId": created.ID,
		"version":   created.Version,
		"project":   map[string]interface{}{"title": p.Title},
	})
	if err != nil {
		return "", err
	}
	if title, _ := updated.Fields["title"].(string); title != p.Title {
		return "", fmt.Errorf("updateProject: title check failed: got %q, want %q", title, p.Title)
	}
	log.Info().Str("project", updated.ID).Msg("updated project")

	for _, c := range p.Components {
		symbol, err := im.run(ctx, "createSymbol", mutationCreateSymbol, map[string]interface{}{
			"projectId": updated.ID,
			"symbol": map[string]interface{}{
				"glyph":       c.VariableName,
				"value":       c.ConstantFormula.Literal(),
				"unit":        c.Unit,
				"description": c.Description,
				"comment":     c.Comment,
			},
		})
		if err != nil {
			return "", fmt.Errorf("symbol %s: %w", c.Alias, err)
		}
		log.Debug().Str("symbol", symbol.ID).Str("alias", c.Alias).Msg("created symbol")

		alias, err := im.run(ctx, "createSymbolAlias", mutationCreateSymbolAlias, map[string]interface{}{
			"symbolId":    symbol.ID,
			"symbolAlias": map[string]interface{}{"value": c.Alias},
		})
		if err != nil {
			return "", fmt.Errorf("symbol %s: %w", c.Alias, err)
		}
		log.Debug().Str("symbol", symbol.ID).Interface("alias", alias.Fields["value"]).Msg("created symbol alias")
	}

	log.Info().Str("project", updated.ID).Int("symbols", len(p.Components)).Msg("project imported")
	return updated.ID, nil
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlReply struct {
	Data struct {
		ActiveResult map[string]interface{} `json:"activeResult"`
	} `json:"data"`
}

// run posts one mutation and extracts its activeResult.
func (im *Importer) run(ctx context.Context, op, query string, variables map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, im.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if im.Cookie != "" {
		req.Header.Set("Cookie", im.Cookie)
	}

	client := im.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if len(raw) > MaxResponseSize {
		return nil, fmt.Errorf("%s: response size exceeds %d bytes", op, MaxResponseSize)
	}

	var reply graphqlReply
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Data.ActiveResult == nil {
		return nil, &QueryError{Operation: op, Reply: string(raw)}
	}

	fields := reply.Data.ActiveResult
	res := &Result{Fields: make(map[string]interface{})}
	switch id := fields["id"].(type) {
	case string:
		res.ID = id
	case float64:
		res.ID = fmt.Sprintf("%.0f", id)
	default:
		return nil, &QueryError{Operation: op, Reply: string(raw)}
	}
	version, ok := fields["version"].(float64)
	if !ok {
		return nil, &QueryError{Operation: op, Reply: string(raw)}
	}
	res.Version = int64(version)

	for k, v := range fields {
		if k != "id" && k != "version" {
			res.Fields[k] = v
		}
	}
	return res, nil
}
