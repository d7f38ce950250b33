package biz

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

func newTestFactory(t *testing.T) store.Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	return store.NewFactory(db)
}

// testVec builds a full-dimension vector living in the x/y plane, so tests
// can reason about cosine similarity in two dimensions.
func testVec(x, y float32) []float32 {
	v := make([]float32, EmbeddingDimension)
	v[0], v[1] = x, y
	return v
}

type mockEmbeddingProvider struct {
	mu     sync.Mutex
	vec    []float32
	err    error
	errFor map[string]error
	calls  int
	last   string
}

func (m *mockEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = text
	if err, ok := m.errFor[text]; ok {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbeddingProvider) Name() string { return "mock-embed" }

func (m *mockEmbeddingProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEmbeddingProvider) lastInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type mockChatProvider struct {
	lastReq *llm.GenerateRequest
	resp    *llm.GenerateResponse
	err     error
}

func (m *mockChatProvider) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockChatProvider) Name() string { return "mock-chat" }
