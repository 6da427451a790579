// Package denseindex is a thin client over an external KNN vector store,
// keyed by chunk ID with the full chunk payload returned alongside each
// hit. The wire shape and retry-free single-call pattern are grounded on
// the teacher's vector-search HTTP client.
package denseindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/embed"
	"github.com/rs/zerolog"
)

// Hit is one scored candidate returned by the vector store.
type Hit struct {
	ChunkID string
	Score   float64
	Chunk   domain.Chunk
}

// Client wraps the knn_search(vector, k, with_payload=true) interface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	encoder    embed.Encoder
	log        zerolog.Logger
}

// Config configures a dense index client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New constructs a dense index client bound to an embedding encoder.
func New(cfg Config, encoder embed.Encoder, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		encoder:    encoder,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type searchRequest struct {
	Vector      []float64 `json:"vector"`
	K           int       `json:"k"`
	WithPayload bool      `json:"with_payload"`
}

type searchResultItem struct {
	ID      string       `json:"id"`
	Score   float64      `json:"score"`
	Payload domain.Chunk `json:"payload"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

// Search encodes the query and requests the top-m nearest chunks with full
// payload. Score is a cosine similarity in [0,1].
func (c *Client) Search(ctx context.Context, query string, m int) ([]Hit, error) {
	vec, err := c.encoder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("denseindex: encode query: %w", err)
	}

	body, err := json.Marshal(searchRequest{Vector: vec, K: m, WithPayload: true})
	if err != nil {
		return nil, fmt.Errorf("denseindex: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("denseindex: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("denseindex: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("denseindex: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("denseindex: decode response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, Hit{ChunkID: r.ID, Score: r.Score, Chunk: r.Payload})
	}

	c.log.Debug().Str("query", query).Int("hits", len(hits)).Msg("dense search complete")
	return hits, nil
}
