// Package openai generates replies through the Chat Completions API. The same
// generator serves hosted OpenAI and local OpenAI-compatible servers such as
// llama.cpp or vLLM, selected by base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

const (
	// DefaultModel is used for hosted OpenAI.
	DefaultModel = "gpt-4o-mini"

	// DefaultLocalBaseURL is llama.cpp's server default.
	DefaultLocalBaseURL = "http://localhost:8080/v1"

	// DefaultLocalModel is the model name local servers are usually started with.
	DefaultLocalModel = "qwen2.5-1.5b-instruct"

	Source      = "Cloud Brain (OpenAI)"
	LocalSource = "Local Brain (Qwen)"
)

// Config holds configuration for the generator.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Local marks an OpenAI-compatible local server. No API key is required
	// and replies are labeled LocalSource.
	Local bool

	Logger *slog.Logger
}

// Generator implements llm.Generator with openai-go.
type Generator struct {
	client openai.Client
	model  string
	source string
	params llm.Params
	logger *slog.Logger
}

func New(cfg Config) (*Generator, error) {
	g := &Generator{
		model:  cfg.Model,
		source: Source,
		params: llm.DefaultParams(),
		logger: cfg.Logger,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	apiKey := cfg.APIKey
	baseURL := cfg.BaseURL
	if cfg.Local {
		g.source = LocalSource
		if apiKey == "" {
			apiKey = "local"
		}
		if baseURL == "" {
			baseURL = DefaultLocalBaseURL
		}
		if g.model == "" {
			g.model = DefaultLocalModel
		}
	}
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if g.model == "" {
		g.model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	g.client = openai.NewClient(opts...)
	return g, nil
}

func (g *Generator) Source() string {
	return g.source
}

// Probe lists models to confirm the server is reachable and the key accepted.
func (g *Generator) Probe(ctx context.Context) error {
	if _, err := g.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai probe: %w", err)
	}
	return nil
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    msgs,
		Temperature: openai.Float(g.params.Temperature),
		TopP:        openai.Float(g.params.TopP),
		MaxTokens:   openai.Int(int64(g.params.MaxTokens)),
	}
	// Hosted OpenAI accepts at most four stop sequences.
	stops := g.params.Stop
	if g.source == Source && len(stops) > 4 {
		stops = stops[:4]
	}
	params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stops}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %s returned status %d: %v", llm.ErrProviderRejected, g.source, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%s request: %w", g.source, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", llm.ErrProviderRejected, g.source)
	}

	text := llm.FirstLine(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty reply", llm.ErrProviderRejected, g.source)
	}

	g.logger.Debug("openai generate",
		"model", g.model,
		"source", g.source,
		"finish_reason", resp.Choices[0].FinishReason,
		"elapsed", time.Since(start),
	)
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
