// Package biz implements the chatbot-flow domain logic: embedding,
// retrieval, prompt assembly, and conversation orchestration.
package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/metrics"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

const (
	// MaxEmbedInputRunes is the deterministic truncation point applied to
	// every text before it is sent to the embedding provider. Counting
	// runes keeps the cut off multi-byte boundaries.
	MaxEmbedInputRunes = 8000

	// EmbeddingDimension is the expected vector size. A provider response
	// with any other dimension is rejected rather than stored.
	EmbeddingDimension = 1536
)

// TruncateForEmbedding cuts text at MaxEmbedInputRunes on a rune boundary.
// Same input always yields the same cut.
func TruncateForEmbedding(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxEmbedInputRunes {
		return text
	}
	return string(runes[:MaxEmbedInputRunes])
}

// Embedder wraps an embedding provider with truncation, caching, and
// dimension validation. Every failure path returns ErrEmbeddingProvider;
// a zero vector is never substituted for a real one.
type Embedder struct {
	provider  llm.EmbeddingProvider
	cache     *EmbeddingCache
	dimension int
}

// NewEmbedder creates an Embedder. cache may be nil.
func NewEmbedder(provider llm.EmbeddingProvider, cache *EmbeddingCache) *Embedder {
	return &Embedder{
		provider:  provider,
		cache:     cache,
		dimension: EmbeddingDimension,
	}
}

// Embed returns the embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	truncated := TruncateForEmbedding(text)

	if embedding, ok := e.cache.Get(ctx, truncated); ok {
		metrics.Get().RecordEmbedding(true, nil)
		return embedding, nil
	}

	embedding, err := e.provider.EmbedSingle(ctx, truncated)
	if err != nil {
		metrics.Get().RecordEmbedding(false, err)
		return nil, errors.ErrEmbeddingProvider.WithCause(err)
	}
	if len(embedding) != e.dimension {
		metrics.Get().RecordEmbedding(false, errors.ErrEmbeddingProvider)
		logger.Errorf("embedding provider %s returned %d dimensions, want %d",
			e.provider.Name(), len(embedding), e.dimension)
		return nil, errors.ErrEmbeddingProvider.WithMessage(
			"embedding has %d dimensions, want %d", len(embedding), e.dimension)
	}

	e.cache.Set(ctx, truncated, embedding)
	metrics.Get().RecordEmbedding(false, nil)
	return embedding, nil
}
