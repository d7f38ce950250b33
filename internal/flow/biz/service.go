package biz

import (
	"github.com/panjf2000/ants/v2"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

// Service bundles the domain components the handlers work against.
type Service struct {
	Embedder     *Embedder
	Retriever    *Retriever
	Assembler    *Assembler
	Conversation *Conversation
	Sessions     *SessionService
	Instructions *InstructionService

	Store store.Factory
}

// ServiceConfig tunes the service components.
type ServiceConfig struct {
	// PromptBudget caps assembled prompt length in characters.
	PromptBudget int
}

// NewService wires the domain layer together.
func NewService(
	factory store.Factory,
	index store.VectorIndex,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *EmbeddingCache,
	pool *ants.Pool,
	config *ServiceConfig,
) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	embedder := NewEmbedder(embedProvider, cache)
	retriever := NewRetriever(embedder, index, factory.Instructions())
	assembler := NewAssembler(factory, pool, config.PromptBudget)

	return &Service{
		Embedder:     embedder,
		Retriever:    retriever,
		Assembler:    assembler,
		Conversation: NewConversation(assembler, chatProvider),
		Sessions:     NewSessionService(factory.Sessions()),
		Instructions: NewInstructionService(factory.Instructions(), embedder, index, retriever),
		Store:        factory,
	}
}
