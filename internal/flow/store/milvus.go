package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// MilvusConfig configures the ANN-backed vector index.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// MilvusIndex is the ANN VectorIndex. It mirrors embedding writes into a
// Milvus collection keyed by instruction id and serves Search from it; the
// relational store stays the source of truth for instruction content.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
}

// NewMilvusIndex connects to Milvus and ensures the collection exists.
func NewMilvusIndex(ctx context.Context, cfg *MilvusConfig) (*MilvusIndex, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	idx := &MilvusIndex{client: c, collection: cfg.Collection}
	if err := idx.ensureCollection(ctx, cfg.Dimension); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return idx, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(m.collection).
		WithDescription("instruction embeddings")
	schema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(26).
			WithIsPrimaryKey(true),
	)
	schema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimension)),
	)

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	vecIdx := index.NewIvfFlatIndex(entity.COSINE, 128)
	createTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(m.collection, "embedding", vecIdx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Search runs an ANN query. COSINE metric makes scores directly comparable
// with the brute-force index.
func (m *MilvusIndex) Search(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error) {
	if topK <= 0 {
		topK = DefaultSearchLimit
	}

	vectors := []entity.Vector{entity.FloatVector(embedding)}
	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(m.collection, topK, vectors).
		WithANNSField("embedding").
		WithSearchParam("nprobe", "16"))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	if len(results) == 0 {
		return []VectorMatch{}, nil
	}

	matches := make([]VectorMatch, 0, results[0].ResultCount)
	idCol, ok := results[0].IDs.(*column.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", results[0].IDs)
	}
	for i := 0; i < results[0].ResultCount; i++ {
		matches = append(matches, VectorMatch{
			ID:         idCol.Data()[i],
			Similarity: results[0].Scores[i],
		})
	}

	// Milvus orders by score only; re-sort so equal scores break by id.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

// Sync upserts an embedding, or removes the entry when it was cleared.
func (m *MilvusIndex) Sync(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return m.Remove(ctx, id)
	}

	cols := []column.Column{
		column.NewColumnVarChar("id", []string{id}),
		column.NewColumnFloatVector("embedding", len(embedding), [][]float32{embedding}),
	}
	if _, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection, cols...)); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

// Remove deletes an instruction's entry.
func (m *MilvusIndex) Remove(ctx context.Context, id string) error {
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.collection).
		WithStringIDs("id", []string{id})); err != nil {
		return fmt.Errorf("failed to delete from milvus: %w", err)
	}
	return nil
}

// Close closes the Milvus connection.
func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

var _ VectorIndex = (*MilvusIndex)(nil)
