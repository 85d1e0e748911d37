package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
)

type mockCompleter struct {
	CreateFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return m.CreateFunc(ctx, req)
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestClassify_RequestsJSONObject(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := &Client{
		cfg: Config{Model: "gpt-test", Temperature: 0.1, MaxTokens: 800},
		client: &mockCompleter{CreateFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			got = req
			return reply(`{"items":[]}`), nil
		}},
	}

	raw, err := c.Classify(context.Background(), enrich.ClassifyRequest{
		Store:      "SHOP",
		Items:      []domain.ParsedLineItem{{Name: "Soap", Price: 3}},
		Categories: domain.CategoryNames(),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, raw)

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "- Soap: $3.00")
}

func TestComplete_NoChoicesIsEmpty(t *testing.T) {
	c := &Client{
		cfg: Config{Model: DefaultModelName},
		client: &mockCompleter{CreateFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, nil
		}},
	}

	text, err := c.Summarize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestComplete_Error(t *testing.T) {
	boom := errors.New("rate limited")
	c := &Client{
		cfg: Config{Model: DefaultModelName},
		client: &mockCompleter{CreateFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, boom
		}},
	}

	_, err := c.Classify(context.Background(), enrich.ClassifyRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModelName, c.Model())
}
