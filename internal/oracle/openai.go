package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIModel     = openai.GPT4oMini
	cerebrasBaseURL = "https://api.cerebras.ai/v1"
	cerebrasModel   = "llama-3.3-70b"
)

// OpenAIClient judges through an OpenAI-compatible chat completions API.
// Cerebras speaks the same protocol and is served by this client with a
// different base URL.
type OpenAIClient struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  openAIModel,
		name:   ProviderOpenAI,
	}
}

func NewCerebrasClient(apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = cerebrasBaseURL
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  cerebrasModel,
		name:   ProviderCerebras,
	}
}

func (c *OpenAIClient) Judge(ctx context.Context, req domain.JudgeRequest) (*domain.Judgment, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderRequest(req)},
		},
		MaxTokens:   maxTokens(req),
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.name)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	return NewJudgment(text), nil
}
