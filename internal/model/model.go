// Package model abstracts the language-model provider consumed by the
// tool-use loop. Provider selection and fallback across multiple
// configured providers is the caller's concern.
package model

import "context"

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider sends a conversation and gets text back.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	IsAvailable(ctx context.Context) bool
}
