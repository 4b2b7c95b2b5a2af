// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nontawat9304/mali-chat/pkg/embeddings"
	"github.com/nontawat9304/mali-chat/pkg/embeddings/cache"
	"github.com/nontawat9304/mali-chat/pkg/embeddings/gemini"
	"github.com/nontawat9304/mali-chat/pkg/embeddings/ollama"
)

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   uint

	// CacheSize enables a ristretto cache in front of the embedder.
	CacheSize int

	Logger *slog.Logger
}

func NewEmbedder(ctx context.Context, o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var (
		e   embeddings.Embedder
		err error
	)

	switch o.ProviderType {
	case ProviderOllama:
		e, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:   o.TargetURL,
			Model:     o.Model,
			KeepAlive: "10m",
			Logger:    o.Logger,
		})
	case ProviderGemini:
		e, err = gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
			APIKey:     o.APIKey,
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	return cache.New(e, o.CacheSize)
}
