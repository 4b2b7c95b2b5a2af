// Package anthropic generates replies with Claude through the Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

const (
	DefaultModel = string(anthropic.ModelClaude3_5HaikuLatest)

	Source = "Cloud Brain (Claude)"

	// maxStopSequences bounds the custom stop list sent per request.
	maxStopSequences = 8
)

// Config holds configuration for the Anthropic generator.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint; used by tests and gateways.
	BaseURL string

	Model  string
	Logger *slog.Logger
}

// Generator implements llm.Generator with anthropic-sdk-go.
type Generator struct {
	client anthropic.Client
	model  string
	params llm.Params
	stops  []string
	logger *slog.Logger
}

func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The chain owns retries and fallback.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	g := &Generator{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		params: llm.DefaultParams(),
		logger: cfg.Logger,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.stops = StopSequences(g.params.Stop)
	return g, nil
}

// StopSequences drops whitespace-only entries, which the Messages API
// refuses, and caps the list.
func StopSequences(stops []string) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxStopSequences {
			break
		}
	}
	return out
}

func (g *Generator) Source() string {
	return Source
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.params.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
		Temperature:   anthropic.Float(g.params.Temperature),
		TopP:          anthropic.Float(g.params.TopP),
		StopSequences: g.stops,
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	start := time.Now()
	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: anthropic returned status %d: %v", llm.ErrProviderRejected, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	text := llm.FirstLine(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: anthropic returned an empty reply", llm.ErrProviderRejected)
	}

	g.logger.Debug("anthropic generate", "model", g.model, "stop_reason", msg.StopReason, "elapsed", time.Since(start))
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
