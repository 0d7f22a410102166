package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPReranker talks to a text-embeddings-inference style /rerank endpoint
// serving a cross-encoder.
type HTTPReranker struct {
	baseURL    string
	modelID    string
	httpClient *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewHTTPLoader returns a Loader that checks the inference server's /info endpoint.
func NewHTTPLoader(baseURL, expectedModel string, timeout time.Duration) Loader {
	return func(ctx context.Context) (Model, error) {
		r := &HTTPReranker{
			baseURL:    strings.TrimRight(baseURL, "/"),
			httpClient: &http.Client{Timeout: timeout},
		}
		if err := r.info(ctx, expectedModel); err != nil {
			return nil, err
		}
		return r, nil
	}
}

func (r *HTTPReranker) info(ctx context.Context, expectedModel string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/info", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server info: status %d", resp.StatusCode)
	}

	var info struct {
		ModelID string `json:"model_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("failed to parse model info: %w", err)
	}
	if expectedModel != "" && info.ModelID != expectedModel {
		return fmt.Errorf("model server serves %q, want %q", info.ModelID, expectedModel)
	}
	r.modelID = info.ModelID
	return nil
}

// Predict groups pairs by query, one /rerank call per distinct query, and
// returns logits in input order.
func (r *HTTPReranker) Predict(ctx context.Context, pairs []Pair) ([]float64, error) {
	out := make([]float64, len(pairs))
	order := make([]string, 0)
	groups := make(map[string][]int)
	for i, p := range pairs {
		if _, ok := groups[p.Query]; !ok {
			order = append(order, p.Query)
		}
		groups[p.Query] = append(groups[p.Query], i)
	}

	for _, query := range order {
		indexes := groups[query]
		texts := make([]string, len(indexes))
		for k, idx := range indexes {
			texts[k] = pairs[idx].Candidate
		}
		hits, err := r.rerank(ctx, query, texts)
		if err != nil {
			return nil, err
		}
		if len(hits) != len(texts) {
			return nil, fmt.Errorf("rerank returned %d scores for %d texts", len(hits), len(texts))
		}
		for _, hit := range hits {
			if hit.Index < 0 || hit.Index >= len(indexes) {
				return nil, fmt.Errorf("rerank returned out of range index %d", hit.Index)
			}
			out[indexes[hit.Index]] = hit.Score
		}
	}
	return out, nil
}

func (r *HTTPReranker) rerank(ctx context.Context, query string, texts []string) ([]rerankHit, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}
	return hits, nil
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
