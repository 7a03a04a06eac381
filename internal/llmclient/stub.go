package llmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuforge/ragcore/internal/adapter"
)

// StubClient is a deterministic, network-free LLMClient used when no
// OPENAI_API_KEY or OLLAMA_URL is configured. It extracts the question
// and the context passages from the prompt it's given and echoes them
// in a templated answer,
// good enough to exercise the RAG engine end to end in local
// development and tests without a real model.
type StubClient struct{}

// NewStubClient builds a StubClient.
func NewStubClient() *StubClient { return &StubClient{} }

// Generate returns a templated answer built from whatever context the
// prompt carries, never calling out to a network.
func (c *StubClient) Generate(_ context.Context, prompt string, _ adapter.GenerateParams) (string, error) {
	idx := strings.Index(prompt, "Question: ")
	if idx == -1 {
		return "I don't have enough information to answer that.", nil
	}
	question := strings.TrimSpace(prompt[idx+len("Question: "):])
	answer := fmt.Sprintf("Based on the indexed documents, here is what I found relevant to %q.", question)
	if start := strings.Index(prompt, "Context:\n"); start != -1 && start < idx {
		passages := prompt[start+len("Context:\n") : idx]
		if end := strings.Index(passages, "Conversation so far:"); end != -1 {
			passages = passages[:end]
		}
		if passages = strings.TrimSpace(passages); passages != "" {
			answer += "\n\n" + passages
		}
	}
	return answer, nil
}
