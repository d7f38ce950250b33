package biz

import (
	"context"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/metrics"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
)

// Retrieval defaults.
const (
	DefaultMatchCount     = 5
	DefaultMatchThreshold = 0.3
)

// Retriever finds instructions semantically similar to a query.
type Retriever struct {
	embedder     *Embedder
	index        store.VectorIndex
	instructions store.InstructionStore
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder *Embedder, index store.VectorIndex, instructions store.InstructionStore) *Retriever {
	return &Retriever{
		embedder:     embedder,
		index:        index,
		instructions: instructions,
	}
}

// Retrieve embeds the query and returns up to matchCount instructions whose
// similarity strictly exceeds matchThreshold, best first. An empty result is
// a nil error; only embedding or store failures are errors.
func (r *Retriever) Retrieve(ctx context.Context, query string, matchCount int, matchThreshold float32) ([]model.InstructionMatch, error) {
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		metrics.Get().RecordRetrieval(err)
		return nil, err
	}

	hits, err := r.index.Search(ctx, embedding, matchCount)
	if err != nil {
		metrics.Get().RecordRetrieval(err)
		return nil, err
	}

	// Threshold is strict: a hit exactly at it is excluded. Hits ranked
	// below matchCount can only have lower similarity, so filtering after
	// the topK cut changes nothing.
	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Similarity > matchThreshold {
			filtered = append(filtered, hit)
		}
	}
	if len(filtered) == 0 {
		metrics.Get().RecordRetrieval(nil)
		return []model.InstructionMatch{}, nil
	}

	ids := make([]string, len(filtered))
	for i, hit := range filtered {
		ids[i] = hit.ID
	}
	instructions, err := r.instructions.GetByIDs(ctx, ids)
	if err != nil {
		metrics.Get().RecordRetrieval(err)
		return nil, err
	}
	byID := make(map[string]*model.Instruction, len(instructions))
	for _, instruction := range instructions {
		byID[instruction.ID] = instruction
	}

	matches := make([]model.InstructionMatch, 0, len(filtered))
	for _, hit := range filtered {
		instruction, ok := byID[hit.ID]
		if !ok {
			// Deleted between index lookup and load.
			continue
		}
		matches = append(matches, model.InstructionMatch{
			Instruction: instruction,
			Similarity:  hit.Similarity,
		})
	}

	metrics.Get().RecordRetrieval(nil)
	return matches, nil
}
