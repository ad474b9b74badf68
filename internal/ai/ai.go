package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is the provider-agnostic chat message shape used across the
// orchestration pipeline.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries one completion call's inputs.
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature float32
	MaxTokens   int
}

// Gateway is the boundary to the generation backend. Implementations
// return plain errors; the orchestration core decides how failures map
// to user-visible sentinel replies.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}
