// Package rerank wraps an external cross-encoder model that scores
// (query, document) pairs jointly. It is batched, optional, and
// deterministic for a fixed model and batch, following the teacher's
// HTTP client construction for its LLM router (timeout, JSON body, single
// synchronous call per batch).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Reranker scores a query against a batch of documents.
type Reranker interface {
	// Score returns one score per document, in [0,1], same order as docs.
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// Client is an HTTP-backed cross-encoder reranker.
type Client struct {
	baseURL    string
	apiKey     string
	batchSize  int
	httpClient *http.Client
}

// Config configures a reranker client.
type Config struct {
	BaseURL   string
	APIKey    string
	BatchSize int
	Timeout   time.Duration
}

// New constructs a reranker client.
func New(cfg Config) *Client {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		batchSize:  batch,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score batches docs into chunks of the client's configured batch size and
// scores each batch independently, preserving input order.
func (c *Client) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	out := make([]float64, 0, len(docs))
	for start := 0; start < len(docs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		scores, err := c.scoreBatch(ctx, query, docs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, scores...)
	}
	return out, nil
}

func (c *Client) scoreBatch(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: unexpected status %d", resp.StatusCode)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(parsed.Scores) != len(docs) {
		return nil, fmt.Errorf("rerank: expected %d scores, got %d", len(docs), len(parsed.Scores))
	}
	return parsed.Scores, nil
}
