package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbt-web-support/chatbot-flow/internal/model"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Malformed vectors fall below any threshold instead of erroring.
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func seedRetrievable(t *testing.T, s InstructionStore, id string, embedding model.Vector) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &model.Instruction{
		ID: id, Title: id, Content: id, IsActive: true, Embedding: embedding,
	}))
}

func TestBruteForceIndexSearch(t *testing.T) {
	ctx := context.Background()
	instructions := setupTestFactory(t).Instructions()
	idx := NewBruteForceIndex(instructions)

	seedRetrievable(t, instructions, "ins-far", model.Vector{0, 1})
	seedRetrievable(t, instructions, "ins-near", model.Vector{1, 0})
	seedRetrievable(t, instructions, "ins-mid", model.Vector{1, 1})

	matches, err := idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "ins-near", matches[0].ID)
	assert.Equal(t, "ins-mid", matches[1].ID)
	assert.Equal(t, "ins-far", matches[2].ID)

	matches, err = idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "ins-near", matches[0].ID)
}

func TestBruteForceIndexTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	instructions := setupTestFactory(t).Instructions()
	idx := NewBruteForceIndex(instructions)

	// Identical vectors, so similarity ties; id ascending decides.
	seedRetrievable(t, instructions, "ins-b", model.Vector{1, 0})
	seedRetrievable(t, instructions, "ins-a", model.Vector{1, 0})

	matches, err := idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "ins-a", matches[0].ID)
	assert.Equal(t, "ins-b", matches[1].ID)
}

func TestBruteForceIndexDefaultLimit(t *testing.T) {
	ctx := context.Background()
	instructions := setupTestFactory(t).Instructions()
	idx := NewBruteForceIndex(instructions)

	for i := 0; i <= DefaultSearchLimit; i++ {
		seedRetrievable(t, instructions, fmt.Sprintf("ins-%03d", i), model.Vector{1, 0})
	}

	matches, err := idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, matches, DefaultSearchLimit)
}

func TestBruteForceIndexEmptyStore(t *testing.T) {
	ctx := context.Background()
	instructions := setupTestFactory(t).Instructions()
	idx := NewBruteForceIndex(instructions)

	matches, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Sync and Remove are no-ops; queries read the relational store directly.
	assert.NoError(t, idx.Sync(ctx, "x", []float32{1}))
	assert.NoError(t, idx.Remove(ctx, "x"))
}
