package adapter

import (
	"context"
	"errors"
)

// ErrTransient marks provider failures worth retrying elsewhere or later
// (rate limiting, capacity, upstream 5xx).
var ErrTransient = errors.New("transient provider error")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant"
	Content string `json:"content"`
}

// Usage for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Source is a web reference the model grounded its answer on.
type Source struct {
	Type  string // "url"
	URL   string
	Title string
}

type CompletionRequest struct {
	Model           string
	System          string
	Messages        []Message
	WebSearch       bool
	MaxOutputTokens int
}

type Completion struct {
	Text     string
	Sources  []Source
	Usage    Usage
	Provider string
	Model    string
}

// AIServiceAdapter is the port for LLM completions.
type AIServiceAdapter interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)

	// CountTokens returns prompt tokens for the provided messages
	// (best-effort when the provider has no exact counter).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
}
