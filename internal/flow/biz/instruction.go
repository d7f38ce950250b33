package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
)

// InstructionService manages the retrievable knowledge base. Creation and
// content changes embed synchronously so an instruction is never active
// with a stale vector.
type InstructionService struct {
	instructions store.InstructionStore
	embedder     *Embedder
	index        store.VectorIndex
	retriever    *Retriever
}

// NewInstructionService creates an InstructionService.
func NewInstructionService(instructions store.InstructionStore, embedder *Embedder, index store.VectorIndex, retriever *Retriever) *InstructionService {
	return &InstructionService{
		instructions: instructions,
		embedder:     embedder,
		index:        index,
		retriever:    retriever,
	}
}

// CreateInstructionRequest carries the fields for a new instruction.
type CreateInstructionRequest struct {
	Title              string        `json:"title" binding:"required"`
	Content            string        `json:"content" binding:"required"`
	ContentType        string        `json:"content_type"`
	ExtractionMetadata model.JSONMap `json:"extraction_metadata"`
}

// UpdateInstructionRequest carries a partial instruction update. Nil fields
// stay untouched.
type UpdateInstructionRequest struct {
	Title    *string        `json:"title"`
	Content  *string        `json:"content"`
	IsActive *bool          `json:"is_active"`
	Metadata *model.JSONMap `json:"extraction_metadata"`
}

// embedText is what retrieval vectors are computed from.
func embedText(title, content string) string {
	return title + "\n\n" + content
}

// Create stores a new instruction with a freshly computed embedding.
func (s *InstructionService) Create(ctx context.Context, req *CreateInstructionRequest) (*model.Instruction, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = model.ContentTypeManual
	}
	switch contentType {
	case model.ContentTypeDocument, model.ContentTypeURL, model.ContentTypeManual:
	default:
		return nil, errors.ErrInvalidRequest.WithMessage("unknown content type %q", contentType)
	}

	embedding, err := s.embedder.Embed(ctx, embedText(req.Title, req.Content))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	instruction := &model.Instruction{
		Title:              req.Title,
		Content:            req.Content,
		ContentType:        contentType,
		Embedding:          embedding,
		EmbeddingUpdatedAt: &now,
		IsActive:           true,
		ExtractionMetadata: req.ExtractionMetadata,
	}
	if err := s.instructions.Create(ctx, instruction); err != nil {
		return nil, err
	}
	if err := s.index.Sync(ctx, instruction.ID, embedding); err != nil {
		logger.Warnw("failed to sync instruction into vector index",
			"instruction_id", instruction.ID, "error", err.Error())
	}
	return instruction, nil
}

// Update applies a partial update. Title or content changes recompute the
// embedding before anything is written.
func (s *InstructionService) Update(ctx context.Context, id string, req *UpdateInstructionRequest) (*model.Instruction, error) {
	instruction, err := s.instructions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	contentChanged := false
	if req.Title != nil && *req.Title != instruction.Title {
		instruction.Title = *req.Title
		contentChanged = true
	}
	if req.Content != nil && *req.Content != instruction.Content {
		instruction.Content = *req.Content
		contentChanged = true
	}
	if req.IsActive != nil {
		instruction.IsActive = *req.IsActive
	}
	if req.Metadata != nil {
		instruction.ExtractionMetadata = *req.Metadata
	}

	if contentChanged {
		embedding, err := s.embedder.Embed(ctx, embedText(instruction.Title, instruction.Content))
		if err != nil {
			return nil, err
		}
		now := time.Now()
		instruction.Embedding = embedding
		instruction.EmbeddingUpdatedAt = &now
	}

	if err := s.instructions.Update(ctx, instruction); err != nil {
		return nil, err
	}
	if contentChanged {
		if err := s.index.Sync(ctx, instruction.ID, instruction.Embedding); err != nil {
			logger.Warnw("failed to sync instruction into vector index",
				"instruction_id", instruction.ID, "error", err.Error())
		}
	}
	return instruction, nil
}

// Get loads one instruction.
func (s *InstructionService) Get(ctx context.Context, id string) (*model.Instruction, error) {
	return s.instructions.Get(ctx, id)
}

// List pages through active instructions.
func (s *InstructionService) List(ctx context.Context, opts store.ListOptions) ([]*model.Instruction, int64, error) {
	return s.instructions.List(ctx, opts)
}

// SoftDelete deactivates an instruction and drops it from the index.
func (s *InstructionService) SoftDelete(ctx context.Context, id string) error {
	if err := s.instructions.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.index.Remove(ctx, id); err != nil {
		logger.Warnw("failed to remove instruction from vector index",
			"instruction_id", id, "error", err.Error())
	}
	return nil
}

// RegenerateMissing backfills embeddings for active instructions that lost
// theirs. Per-instruction failures are logged and skipped so one bad row
// cannot block the rest of the backfill.
func (s *InstructionService) RegenerateMissing(ctx context.Context) (regenerated, failed int, err error) {
	missing, err := s.instructions.ListMissingEmbedding(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, instruction := range missing {
		embedding, embedErr := s.embedder.Embed(ctx, embedText(instruction.Title, instruction.Content))
		if embedErr != nil {
			logger.Warnw("failed to regenerate embedding",
				"instruction_id", instruction.ID, "error", embedErr.Error())
			failed++
			continue
		}
		now := time.Now()
		instruction.Embedding = embedding
		instruction.EmbeddingUpdatedAt = &now
		if updateErr := s.instructions.Update(ctx, instruction); updateErr != nil {
			logger.Warnw("failed to store regenerated embedding",
				"instruction_id", instruction.ID, "error", updateErr.Error())
			failed++
			continue
		}
		if syncErr := s.index.Sync(ctx, instruction.ID, embedding); syncErr != nil {
			logger.Warnw("failed to sync regenerated embedding into vector index",
				"instruction_id", instruction.ID, "error", syncErr.Error())
		}
		regenerated++
	}
	return regenerated, failed, nil
}

// Search is the admin-facing retrieval probe.
func (s *InstructionService) Search(ctx context.Context, query string, matchCount int, matchThreshold float32) ([]model.InstructionMatch, error) {
	if query == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("query is required")
	}
	return s.retriever.Retrieve(ctx, query, matchCount, matchThreshold)
}
