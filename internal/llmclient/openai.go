// Package llmclient provides adapter.LLMClient implementations.
// OpenAIClient is adapted from the teacher's llm.OpenAIClient,
// dropping its SSE/StreamCompletion plumbing for a single blocking
// chat-completions call since streaming output is out of scope here.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey string
	client *http.Client
}

// NewOpenAIClient builds an OpenAIClient.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the
// model's full response text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params adapter.GenerateParams) (string, error) {
	model := params.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	})
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "build chat request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.Transient, "call openai", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.Wrap(apierr.Transient, "read openai response", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := apierr.Transient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = apierr.Permanent
		}
		return "", apierr.Wrap(kind, fmt.Sprintf("openai returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", apierr.Wrap(apierr.Internal, "parse openai response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apierr.Wrap(apierr.Transient, "openai returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
