package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipassist/ipassist-core/internal/domain"
)

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		json.NewEncoder(w).Encode(chatResponse{
			Text: "the answer",
			Raw:  map[string]any{"finish_reason": "stop"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", MaxRetries: 1})
	resp, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, nil, 512, "")
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, "stop", resp.Raw["finish_reason"])
}

func TestGenerateRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Text: "ok after retry"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", MaxRetries: 2})
	resp, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, nil, 512, "")
	require.NoError(t, err)
	assert.Equal(t, "ok after retry", resp.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateFailsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", MaxRetries: 1})
	_, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, nil, 512, "")
	assert.Error(t, err)
}

func TestGenerateNonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", MaxRetries: 3})
	_, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, nil, 512, "")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateWithTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "lookup_cpt", req.Tools[0].Name)
		json.NewEncoder(w).Encode(chatResponse{
			ToolCalls: []ToolCall{{Name: "lookup_cpt", Arguments: map[string]any{"code": "31622"}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model"})
	tools := []ToolDefinition{{Name: "lookup_cpt", Description: "look up a CPT code", Parameters: map[string]any{"type": "object"}}}
	resp, err := c.Generate(context.Background(), []domain.Message{{Role: "user", Content: "what is 31622"}}, tools, 256, "")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "31622", resp.ToolCalls[0].Arguments["code"])
}
