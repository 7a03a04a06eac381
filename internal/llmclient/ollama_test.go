package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

func TestOllamaClientGenerateReturnsResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		require.Equal(t, "llama3", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaGenerateResp{Response: "generated text", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	out, err := c.Generate(context.Background(), "prompt text", adapter.GenerateParams{})
	require.NoError(t, err)
	require.Equal(t, "generated text", out)
}

func TestOllamaClientNonOKStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	_, err := c.Generate(context.Background(), "prompt", adapter.GenerateParams{})
	require.Equal(t, apierr.Transient, apierr.ClassOf(err))
}

func TestOllamaClientRequestParamsOverrideModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "mistral", req.Model)
		require.Equal(t, []string{"STOP"}, req.Options.Stop)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResp{Response: "ok"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	_, err := c.Generate(context.Background(), "prompt", adapter.GenerateParams{Model: "mistral", Stop: []string{"STOP"}})
	require.NoError(t, err)
}
