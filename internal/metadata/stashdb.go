package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scenarr/scenarr/internal/db"
)

// StashDBClient handles communication with a stash-box GraphQL endpoint
type StashDBClient struct {
	baseURL     string
	apiKey      string
	perPage     int
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
}

// NewStashDBClient creates a new stash-box client
func NewStashDBClient(baseURL, apiKey string, requestsPerSecond float64, perPage int, logger zerolog.Logger) *StashDBClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if perPage <= 0 {
		perPage = 40
	}
	return &StashDBClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		perPage: perPage,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:      logger.With().Str("component", "stashdb").Logger(),
	}
}

// graphQLRequest represents a GraphQL request
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLResponse represents a GraphQL response
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

type stashScene struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Studio      *struct {
		Name string `json:"name"`
	} `json:"studio"`
	Performers []struct {
		As        string `json:"as"`
		Performer struct {
			Name string `json:"name"`
		} `json:"performer"`
	} `json:"performers"`
}

const sceneFields = `
	id
	title
	release_date
	studio { name }
	performers { as performer { name } }
`

// execute sends a GraphQL query and returns the response
func (c *StashDBClient) execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	jsonBody, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Scenarr/1.0")
	if c.apiKey != "" {
		req.Header.Set("ApiKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("authentication failed - check API key")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

// SceneByID fetches a single scene.
func (c *StashDBClient) SceneByID(ctx context.Context, id string) (Scene, error) {
	query := `query FindScene($id: ID!) { findScene(id: $id) {` + sceneFields + `} }`
	data, err := c.execute(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		return Scene{}, err
	}

	var result struct {
		FindScene *stashScene `json:"findScene"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Scene{}, fmt.Errorf("failed to parse scene: %w", err)
	}
	if result.FindScene == nil {
		return Scene{}, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	return result.FindScene.toScene(), nil
}

// ScenesForEntity lists scenes for a performer or studio, newest first.
// Pages start at 1.
func (c *StashDBClient) ScenesForEntity(ctx context.Context, kind db.SubscriptionKind, id string, page int) ([]Scene, Pagination, error) {
	if page < 1 {
		page = 1
	}
	input := map[string]interface{}{
		"page":      page,
		"per_page":  c.perPage,
		"sort":      "DATE",
		"direction": "DESC",
	}
	switch kind {
	case db.KindPerformer:
		input["performers"] = map[string]interface{}{"value": []string{id}, "modifier": "INCLUDES"}
	case db.KindStudio:
		input["studios"] = map[string]interface{}{"value": []string{id}, "modifier": "INCLUDES"}
	case db.KindScene:
		scene, err := c.SceneByID(ctx, id)
		if err != nil {
			return nil, Pagination{}, err
		}
		return []Scene{scene}, Pagination{Page: 1, PerPage: 1, Total: 1}, nil
	default:
		return nil, Pagination{}, fmt.Errorf("unsupported entity kind %q", kind)
	}

	query := `query QueryScenes($input: SceneQueryInput!) { queryScenes(input: $input) { count scenes {` + sceneFields + `} } }`
	data, err := c.execute(ctx, query, map[string]interface{}{"input": input})
	if err != nil {
		return nil, Pagination{}, err
	}

	var result struct {
		QueryScenes struct {
			Count  int          `json:"count"`
			Scenes []stashScene `json:"scenes"`
		} `json:"queryScenes"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to parse scenes: %w", err)
	}
	if result.QueryScenes.Count == 0 && page == 1 {
		return nil, Pagination{}, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	scenes := make([]Scene, 0, len(result.QueryScenes.Scenes))
	for _, s := range result.QueryScenes.Scenes {
		scenes = append(scenes, s.toScene())
	}
	c.logger.Debug().Str("kind", string(kind)).Str("id", id).Int("page", page).Int("scenes", len(scenes)).Msg("fetched entity scenes")
	return scenes, Pagination{Page: page, PerPage: c.perPage, Total: result.QueryScenes.Count}, nil
}

// Test checks that the endpoint answers and the key is accepted.
func (c *StashDBClient) Test(ctx context.Context) error {
	_, err := c.execute(ctx, `query Test { me { name } }`, nil)
	return err
}

func (s stashScene) toScene() Scene {
	scene := Scene{
		ID:    s.ID,
		Title: strings.TrimSpace(s.Title),
	}
	if s.Studio != nil {
		scene.Studio = s.Studio.Name
	}
	for _, p := range s.Performers {
		name := p.Performer.Name
		if p.As != "" {
			name = p.As
		}
		if name != "" {
			scene.Performers = append(scene.Performers, name)
		}
	}
	if d, err := time.Parse(time.DateOnly, s.ReleaseDate); err == nil {
		scene.ReleaseDate = &d
	}
	return scene
}
