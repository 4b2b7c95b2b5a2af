// Package ollama generates replies through Ollama's native /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is a small instruct model that handles Thai.
	DefaultModel = "qwen2.5:1.5b"

	// RepeatPenalty keeps small models from looping.
	RepeatPenalty = 1.3

	Source = "Local Brain (Ollama)"
)

// Config holds configuration for the Ollama generator.
type Config struct {
	BaseURL   string
	Model     string
	KeepAlive string
	Logger    *slog.Logger
}

// Generator implements llm.Generator against a local Ollama server.
type Generator struct {
	baseURL    string
	model      string
	keepAlive  string
	params     llm.Params
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config) *Generator {
	g := &Generator{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		keepAlive:  cfg.KeepAlive,
		params:     llm.DefaultParams(),
		httpClient: &http.Client{},
		logger:     cfg.Logger,
	}
	if g.baseURL == "" {
		g.baseURL = DefaultBaseURL
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.params.RepeatPenalty = RepeatPenalty
	return g
}

func (g *Generator) Source() string {
	return Source
}

// Probe checks that the server answers and has the configured model pulled.
func (g *Generator) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama probe returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decoding ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == g.model || strings.TrimSuffix(m.Name, ":latest") == g.model {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q is not pulled", g.model)
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	stream := false
	msgs := p.Messages()
	body := chatRequest{
		Model:     g.model,
		Messages:  make([]chatMessage, 0, len(msgs)),
		Stream:    &stream,
		KeepAlive: g.keepAlive,
		Options: &optionsRecord{
			Temperature:   &g.params.Temperature,
			TopP:          &g.params.TopP,
			NumPredict:    &g.params.MaxTokens,
			RepeatPenalty: &g.params.RepeatPenalty,
			Stop:          g.params.Stop,
		},
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: ollama returned status %d: %s", llm.ErrProviderRejected, resp.StatusCode, string(raw))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding ollama response: %v", llm.ErrProviderRejected, err)
	}

	text := llm.FirstLine(out.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: ollama returned an empty reply", llm.ErrProviderRejected)
	}

	g.logger.Debug("ollama generate", "model", g.model, "eval_count", out.EvalCount, "elapsed", time.Since(start))
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
