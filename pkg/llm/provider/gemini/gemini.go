// Package gemini generates replies with Google's Gemini models through genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

const (
	DefaultModel = "gemini-2.5-flash"

	Source = "Cloud Brain (Gemini)"
)

// Config holds configuration for the Gemini generator.
type Config struct {
	APIKey string

	// BaseURL overrides the Gemini endpoint; used by tests.
	BaseURL string

	Model  string
	Logger *slog.Logger
}

// Generator implements llm.Generator with Models.GenerateContent.
type Generator struct {
	client *genai.Client
	model  string
	params llm.Params
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	g := &Generator{
		client: client,
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
	return g, nil
}

func (g *Generator) Source() string {
	return Source
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	temperature := float32(g.params.Temperature)
	topP := float32(g.params.TopP)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		MaxOutputTokens: int32(g.params.MaxTokens),
		StopSequences:   g.params.Stop,
	}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(p.User, genai.RoleUser)},
		config,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: gemini returned status %d: %s", llm.ErrProviderRejected, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("gemini request: %w", err)
	}

	text := llm.FirstLine(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned an empty reply", llm.ErrProviderRejected)
	}

	g.logger.Debug("gemini generate", "model", g.model, "elapsed", time.Since(start))
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
