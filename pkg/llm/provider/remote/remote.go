// Package remote forwards a turn to a self-hosted "brain" service that builds
// its own prompt: POST {url}/chat {message, context, persona} -> {reply}.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

const Source = "Cloud Brain (ThaiLLM)"

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
	Persona string `json:"persona"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Generator implements llm.Generator against a remote brain endpoint.
type Generator struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(url string, logger *slog.Logger) (*Generator, error) {
	if !strings.HasPrefix(url, "http") {
		return nil, fmt.Errorf("remote endpoint %q is not an http URL", url)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

func (g *Generator) Source() string {
	return Source
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	if p.Utterance == "" {
		return "", errors.New("remote generation needs the raw utterance")
	}
	payload, err := json.Marshal(chatRequest{
		Message: p.Utterance,
		Context: p.Context,
		Persona: p.Persona,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling remote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating remote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending remote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: remote returned status %d: %s", llm.ErrProviderRejected, resp.StatusCode, string(raw))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding remote response: %v", llm.ErrProviderRejected, err)
	}

	text := strings.TrimSpace(out.Reply)
	if text == "" {
		return "", fmt.Errorf("%w: remote returned an empty reply", llm.ErrProviderRejected)
	}

	g.logger.Debug("remote generate", "url", g.url, "elapsed", time.Since(start))
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
