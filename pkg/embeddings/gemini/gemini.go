// Package gemini embeds text with Google's Gemini embedding models.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/nontawat9304/mali-chat/pkg/embeddings"
	"github.com/nontawat9304/mali-chat/pkg/vector"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "gemini-embedding-001"

// Embedder wraps the genai Models.EmbedContent call.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions *int32
}

// EmbedderConfig holds configuration for the Gemini embedder.
type EmbedderConfig struct {
	APIKey string

	// BaseURL overrides the Gemini endpoint; used by tests.
	BaseURL string

	Model string

	// Dimensions asks the model for truncated output vectors; 0 keeps the
	// model default.
	Dimensions uint
}

// NewEmbedder creates a Gemini embedder.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	e := &Embedder{client: client, model: model}
	if cfg.Dimensions > 0 {
		d := int32(cfg.Dimensions)
		e.dimensions = &d
	}
	return e, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: e.dimensions,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed: %v", vector.ErrEmbedding, err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}
	return result.Embeddings[0].Values, nil
}

// Close is a no-op; the genai client holds no closable resources.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
