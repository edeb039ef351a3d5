package generator

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	deepSeekBaseURL      = "https://api.deepseek.com"
	defaultOpenAIModel   = "chatgpt-4o-latest"
	defaultDeepSeekModel = "deepseek-chat"
)

// OpenAI generates text through an OpenAI-compatible chat completion API.
// DeepSeek uses the same client with a different base URL.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAI creates a provider for api.openai.com, or for baseURL when set.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), defaultModel: defaultOpenAIModel}
}

// NewDeepSeek creates a provider for the DeepSeek API.
func NewDeepSeek(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = deepSeekBaseURL
	}
	p := NewOpenAI(apiKey, baseURL)
	p.defaultModel = defaultDeepSeekModel
	return p
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
