package store

import (
	"context"
	"math"
	"sort"
)

// VectorMatch is one similarity hit from a vector index.
type VectorMatch struct {
	ID         string
	Similarity float32
}

// DefaultSearchLimit bounds a Search call when the caller passes no topK.
// ANN backends cannot return unbounded result sets, so both implementations
// normalize to this.
const DefaultSearchLimit = 100

// VectorIndex answers nearest-neighbor queries over instruction embeddings.
// The brute-force implementation reads straight from the relational store;
// the milvus implementation keeps an ANN collection in sync.
type VectorIndex interface {
	// Search returns up to topK matches ordered by similarity descending,
	// ties broken by id ascending. topK <= 0 falls back to
	// DefaultSearchLimit.
	Search(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error)

	// Sync records an instruction's current embedding, or its removal when
	// the embedding was cleared.
	Sync(ctx context.Context, id string, embedding []float32) error

	// Remove drops an instruction from the index.
	Remove(ctx context.Context, id string) error
}

// bruteForceIndex scans all retrievable instructions per query. Fine for the
// instruction-store sizes this service sees; swap in milvus past that.
type bruteForceIndex struct {
	instructions InstructionStore
}

// NewBruteForceIndex builds a VectorIndex over the relational store.
func NewBruteForceIndex(instructions InstructionStore) VectorIndex {
	return &bruteForceIndex{instructions: instructions}
}

func (idx *bruteForceIndex) Search(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error) {
	if topK <= 0 {
		topK = DefaultSearchLimit
	}

	instructions, err := idx.instructions.ListRetrievable(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(instructions))
	for _, instruction := range instructions {
		matches = append(matches, VectorMatch{
			ID:         instruction.ID,
			Similarity: CosineSimilarity(embedding, instruction.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Sync is a no-op: queries always see the relational store's current state.
func (idx *bruteForceIndex) Sync(ctx context.Context, id string, embedding []float32) error {
	return nil
}

// Remove is a no-op for the same reason as Sync.
func (idx *bruteForceIndex) Remove(ctx context.Context, id string) error {
	return nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched dimensions or a zero-magnitude vector yield 0, never an error,
// so malformed stored embeddings silently fall below any threshold.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
