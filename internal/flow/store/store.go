// Package store provides persistence for the chatbot-flow service.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/wbt-web-support/chatbot-flow/internal/model"
)

// ListOptions is the common pagination shape.
type ListOptions struct {
	Page     int
	PageSize int
}

// Offset returns the SQL offset for the options.
func (o ListOptions) Offset() int {
	page := o.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * o.Limit()
}

// Limit returns the SQL limit for the options.
func (o ListOptions) Limit() int {
	if o.PageSize < 1 {
		return 20
	}
	return o.PageSize
}

// InstructionStore persists instructions.
type InstructionStore interface {
	Create(ctx context.Context, instruction *model.Instruction) error
	Update(ctx context.Context, instruction *model.Instruction) error
	Get(ctx context.Context, id string) (*model.Instruction, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.Instruction, error)
	List(ctx context.Context, opts ListOptions) ([]*model.Instruction, int64, error)

	// ListRetrievable returns active instructions with a stored embedding,
	// ordered by id.
	ListRetrievable(ctx context.Context) ([]*model.Instruction, error)

	// ListMissingEmbedding returns active instructions whose embedding is
	// absent, ordered by id.
	ListMissingEmbedding(ctx context.Context) ([]*model.Instruction, error)

	// SoftDelete clears IsActive, keeping the row.
	SoftDelete(ctx context.Context, id string) error
}

// ChatbotStore persists chatbots.
type ChatbotStore interface {
	Create(ctx context.Context, chatbot *model.Chatbot) error
	Update(ctx context.Context, chatbot *model.Chatbot) error
	Get(ctx context.Context, id string) (*model.Chatbot, error)
	List(ctx context.Context, opts ListOptions) ([]*model.Chatbot, int64, error)
}

// NodeStore persists flow nodes.
type NodeStore interface {
	// ListByChatbot returns the chatbot's nodes ordered by OrderIndex, then
	// creation order.
	ListByChatbot(ctx context.Context, chatbotID string) ([]*model.FlowNode, error)

	// ReplaceForChatbot swaps the chatbot's node set atomically.
	ReplaceForChatbot(ctx context.Context, chatbotID string, nodes []*model.FlowNode) error
}

// SessionStore persists chat sessions.
type SessionStore interface {
	Create(ctx context.Context, session *model.ChatSession) error
	Get(ctx context.Context, id string) (*model.ChatSession, error)
	Update(ctx context.Context, session *model.ChatSession) error
	Delete(ctx context.Context, id string) error
	ListByChatbotAndUser(ctx context.Context, chatbotID, userID string) ([]*model.ChatSession, error)
}

// DataFilter scopes a data source fetch.
type DataFilter struct {
	UserID          string
	TeamID          string
	IncludeArchived bool
}

// DataStore reads data source records for data_access nodes.
type DataStore interface {
	Create(ctx context.Context, record *model.DataRecord) error

	// Fetch returns the source's records matching the filter, newest first.
	// Empty UserID/TeamID fields do not constrain the query.
	Fetch(ctx context.Context, source string, filter DataFilter) ([]*model.DataRecord, error)

	// Count returns how many records the source holds.
	Count(ctx context.Context, source string) (int64, error)
}

// Factory aggregates all stores over one database handle.
type Factory interface {
	Instructions() InstructionStore
	Chatbots() ChatbotStore
	Nodes() NodeStore
	Sessions() SessionStore
	Data() DataStore

	DB() *gorm.DB
	Close() error
}
