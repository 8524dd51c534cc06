package ai

import (
	"context"
	"errors"
)

// ErrCredentialMissing is returned by Provider.Open when neither the process
// configuration nor the caller supplied an API key.
var ErrCredentialMissing = errors.New("llm credential missing")

// Conversation is one stateful chat session with the hosted model. The remote
// side keeps its own turn history across Send calls.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

// Provider opens conversations against one LLM vendor.
type Provider interface {
	Name() string
	// HasCredential reports whether a process-wide key is configured.
	HasCredential() bool
	// Open starts a conversation. An empty apiKey falls back to the configured key.
	Open(ctx context.Context, apiKey string) (Conversation, error)
}

// ConversationFunc adapts a function to Conversation.
type ConversationFunc func(ctx context.Context, text string) (string, error)

// Send calls f.
func (f ConversationFunc) Send(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
