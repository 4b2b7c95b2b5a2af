// Package provider builds llm.Generator instances from configuration. The set
// of provider kinds is closed.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nontawat9304/mali-chat/pkg/llm"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/anthropic"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/gemini"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/ollama"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/openai"
	"github.com/nontawat9304/mali-chat/pkg/llm/provider/remote"
)

// Kind names a provider implementation.
type Kind string

// Supported provider kinds
const (
	Remote    Kind = "remote"
	Anthropic Kind = "anthropic"
	OpenAI    Kind = "openai"
	Gemini    Kind = "gemini"
	Local     Kind = "local"
	Ollama    Kind = "ollama"
)

// DefaultTimeout bounds one attempt against a ladder rung.
const DefaultTimeout = 30 * time.Second

// SupportedKinds returns the list of all supported provider kinds.
func SupportedKinds() []Kind {
	return []Kind{Remote, Anthropic, OpenAI, Gemini, Local, Ollama}
}

// ParseKind validates a configured kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range SupportedKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider kind: %q (supported: %v)", s, SupportedKinds())
}

// Config describes one rung of the generation ladder. It is loaded once at start.
type Config struct {
	Kind    Kind
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds one attempt. Zero means DefaultTimeout.
	Timeout time.Duration
}

// AttemptTimeout returns the configured timeout or DefaultTimeout.
func (c Config) AttemptTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Prober is implemented by generators that can check reachability at start.
type Prober interface {
	Probe(ctx context.Context) error
}

// New creates the generator for cfg.Kind.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (llm.Generator, error) {
	switch cfg.Kind {
	case Remote:
		return remote.New(cfg.BaseURL, logger)
	case Anthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		})
	case OpenAI, Local:
		return openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Local:   cfg.Kind == Local,
			Logger:  logger,
		})
	case Gemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		})
	case Ollama:
		return ollama.New(ollama.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q (supported: %v)", cfg.Kind, SupportedKinds())
	}
}
