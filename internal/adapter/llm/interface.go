// Package llm provides an abstraction for OpenAI-compatible chat completion APIs.
package llm

import "context"

// LLMClient defines the interface for LLM API operations.
type LLMClient interface {
	// CreateChatCompletion sends a chat completion request (non-streaming).
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)

// Complete sends a single user prompt with an optional system prompt and
// returns the first choice's content.
func Complete(ctx context.Context, client LLMClient, model, system, prompt string) (string, error) {
	var messages []ChatMessage
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	resp, err := client.CreateChatCompletion(ctx, &ChatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
