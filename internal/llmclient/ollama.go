package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

// OllamaClient calls a local or self-hosted Ollama server's
// /api/generate endpoint with a plain baseURL+http.Client.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient builds an OllamaClient targeting baseURL (e.g.
// http://localhost:11434) with a default model.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{baseURL: baseURL, model: model, client: &http.Client{}}
}

type ollamaGenerateReq struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate calls Ollama's non-streaming generate endpoint.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, params adapter.GenerateParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.model
	}

	reqBody := ollamaGenerateReq{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: options{
			Temperature: params.Temperature,
			NumPredict:  params.MaxTokens,
			Stop:        params.Stop,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.Transient, "call ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apierr.Wrap(apierr.Transient, "ollama returned non-200 status", nil)
	}

	var parsed ollamaGenerateResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apierr.Wrap(apierr.Internal, "decode ollama response", err)
	}
	return parsed.Response, nil
}
