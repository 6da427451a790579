package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreSingleBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		for i := range scores {
			scores[i] = 0.5
		}
		json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, BatchSize: 10})
	scores, err := client.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, scores)
}

func TestScoreMultipleBatches(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, BatchSize: 2})
	_, err := client.Score(context.Background(), "q", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestScoreMismatchedLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.1}})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.Score(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}
