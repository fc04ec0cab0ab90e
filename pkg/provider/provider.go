// Package provider declares the LLM transport boundary. Concrete providers
// (Anthropic, OpenAI, local models, ...) live outside this module; the
// runtime core only depends on this interface.
package provider

import (
	"context"

	"github.com/haasonsaas/loom/pkg/models"
)

// Client is satisfied by any chat-completion transport. Messages conform to
// the chat-completion shape: roles system|user|assistant|tool; tool messages
// carry ToolCallID and Name; assistant messages may carry ToolCalls.
type Client interface {
	Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition, model string, maxTokens int, temperature float64) (models.LLMResponse, error)
}
