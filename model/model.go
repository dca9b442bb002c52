// Package model abstracts the opaque generation capability behind a minimal
// streaming interface so chains never depend on a specific provider SDK.
package model

import (
	"context"
	"fmt"

	"github.com/cyberx-ai/supplymesh/core"
)

// Request captures the normalized model input produced by generative steps.
type Request struct {
	Instructions string         `json:"instructions"` // Rendered system instruction
	Contents     []core.Content `json:"contents"`     // Conversation history + current input
	Stream       bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by generative steps. Generate
// returns a channel of partial/final responses plus a terminal error
// channel; both are closed when generation completes or the context is
// cancelled.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and for
// running the simulation without provider credentials. Canned responses are
// matched against the trailing user input; unmatched prompts echo a generic
// reply.
type MockModel struct {
	info      Info
	responses map[string]string
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Generate implements Model; emits optional streaming rune chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		inputText := last.Text()
		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: string(r)}}},
				}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: full}}},
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
