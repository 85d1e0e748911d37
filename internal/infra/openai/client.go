// Package openai adapts OpenAI chat models to the enrichment oracle interfaces.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dvloznov/receipt-ledger/internal/enrich"
)

// DefaultModelName is used when Config.Model is empty.
const DefaultModelName = openai.GPT4oMini

// Config holds the model settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements enrich.Classifier and enrich.Summarizer.
type Client struct {
	client chatCompleter
	cfg    Config
}

var (
	_ enrich.Classifier = (*Client)(nil)
	_ enrich.Summarizer = (*Client)(nil)
)

// NewClient creates an OpenAI-backed oracle.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	return &Client{client: openai.NewClient(cfg.APIKey), cfg: cfg}, nil
}

// Model implements enrich.Classifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Classify implements enrich.Classifier. The response is forced to a JSON object.
func (c *Client) Classify(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enrich.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: enrich.BuildClassifyPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("Classify: %w", err)
	}
	return content, nil
}

// Summarize implements enrich.Summarizer.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("Summarize: %w", err)
	}
	return content, nil
}

// complete fills in model settings and returns the first choice's content,
// or an empty string when there is none.
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req.Model = c.cfg.Model
	req.Temperature = c.cfg.Temperature
	req.MaxTokens = c.cfg.MaxTokens

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
