// Package genai adapts Gemini models to the enrichment oracle interfaces.
package genai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/receipt-ledger/internal/enrich"
)

// DefaultModelName is used when Config.Model is empty.
const DefaultModelName = "gemini-2.5-flash"

const recognizePrompt = "You are reading a photo of a shopping receipt.\n" +
	"Transcribe every line of printed text exactly as it appears, top to bottom.\n" +
	"Keep prices on the same line as their item. Return plain text only, no commentary.\n"

// Config holds the model settings shared by every Gemini adapter.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Client talks to Gemini and implements enrich.Classifier,
// enrich.TextRecognizer and enrich.Summarizer.
type Client struct {
	cfg      Config
	generate generateFunc
}

var (
	_ enrich.Classifier     = (*Client)(nil)
	_ enrich.TextRecognizer = (*Client)(nil)
	_ enrich.Summarizer     = (*Client)(nil)
)

// NewClient creates a GenAI client. Without an API key the SDK falls back
// to its environment configuration.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}

	clientCfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.APIKey != "" {
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{cfg: cfg, generate: client.Models.GenerateContent}, nil
}

// Model implements enrich.Classifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Classify implements enrich.Classifier.
func (c *Client) Classify(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
	prompt := enrich.SystemPrompt + "\n\n" + enrich.BuildClassifyPrompt(req)
	text, err := c.generateText(ctx, []*genai.Part{{Text: prompt}})
	if err != nil {
		return "", fmt.Errorf("Classify: %w", err)
	}
	return text, nil
}

// RecognizeText implements enrich.TextRecognizer.
func (c *Client) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("RecognizeText: empty image")
	}
	text, err := c.generateText(ctx, []*genai.Part{
		{Text: recognizePrompt},
		{
			InlineData: &genai.Blob{
				MIMEType: mimeType,
				Data:     image,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("RecognizeText: %w", err)
	}
	return text, nil
}

// Summarize implements enrich.Summarizer.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	text, err := c.generateText(ctx, []*genai.Part{{Text: prompt}})
	if err != nil {
		return "", fmt.Errorf("Summarize: %w", err)
	}
	return text, nil
}

func (c *Client) generateText(ctx context.Context, parts []*genai.Part) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	genCfg := &genai.GenerateContentConfig{}
	if c.cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = c.cfg.MaxTokens
	}

	resp, err := c.generate(ctx, c.cfg.Model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
