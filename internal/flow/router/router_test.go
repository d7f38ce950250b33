package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/handler"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

const testSecret = "router-test-secret"

type mockEmbed struct{}

func (mockEmbed) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, biz.EmbeddingDimension)
	v[0] = 1
	return v, nil
}

func (m mockEmbed) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = m.EmbedSingle(ctx, texts[i])
	}
	return out, nil
}

func (mockEmbed) Name() string { return "mock-embed" }

type mockChat struct {
	resp *llm.GenerateResponse
	err  error
}

func (m *mockChat) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (*mockChat) Name() string { return "mock-chat" }

type env struct {
	engine  *gin.Engine
	factory store.Factory
	chat    *mockChat
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	factory := store.NewFactory(db)

	chat := &mockChat{resp: &llm.GenerateResponse{
		Candidates: []llm.Candidate{{Parts: []llm.Part{
			{Text: "thinking about it", Thought: true},
			{Text: "the answer"},
		}}},
		Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	}}

	service := biz.NewService(factory, store.NewBruteForceIndex(factory.Instructions()),
		mockEmbed{}, chat, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	Register(engine, handler.New(service), testSecret)
	return &env{engine: engine, factory: factory, chat: chat}
}

func (e *env) seedChatbot(t *testing.T, active bool) *model.Chatbot {
	t.Helper()
	ctx := context.Background()
	chatbot := &model.Chatbot{Name: "bot", IsActive: true}
	require.NoError(t, e.factory.Chatbots().Create(ctx, chatbot))
	if !active {
		chatbot.IsActive = false
		require.NoError(t, e.factory.Chatbots().Update(ctx, chatbot))
	}
	return chatbot
}

func mintToken(t *testing.T, subject, role, teamID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	if teamID != "" {
		claims["team_id"] = teamID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthzIsOpen(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestV1RequiresAuth(t *testing.T) {
	e := newEnv(t)
	w, resp := e.do(t, http.MethodGet, "/v1/instructions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errors.ErrUnauthorized.Code, resp.Code)
}

func TestAdminSurfaceRequiresRole(t *testing.T) {
	e := newEnv(t)
	member := mintToken(t, "u-1", "member", "")

	w, resp := e.do(t, http.MethodGet, "/v1/instructions", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.ErrForbidden.Code, resp.Code)
}

func TestAdminChat(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, false) // admins may test inactive chatbots
	admin := mintToken(t, "admin-1", "super_admin", "")

	w, resp := e.do(t, http.MethodPost, "/v1/chat", admin, gin.H{
		"chatbot_id": chatbot.ID,
		"message":    "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reply biz.Reply
	require.NoError(t, json.Unmarshal(resp.Data, &reply))
	assert.Equal(t, "the answer", reply.Text)
	assert.Empty(t, reply.ThoughtSummary) // hidden unless requested

	w, resp = e.do(t, http.MethodPost, "/v1/chat", admin, gin.H{
		"chatbot_id":       chatbot.ID,
		"message":          "hello",
		"include_thoughts": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &reply))
	assert.Equal(t, "thinking about it", reply.ThoughtSummary)
}

func TestAdminChatMissingBody(t *testing.T) {
	e := newEnv(t)
	admin := mintToken(t, "admin-1", "super_admin", "")

	w, resp := e.do(t, http.MethodPost, "/v1/chat", admin, gin.H{"message": "no chatbot id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrInvalidRequest.Code, resp.Code)
}

func TestUserChat(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, true)
	user := mintToken(t, "u-1", "member", "t-1")

	w, resp := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/chat", user, gin.H{
		"message": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reply biz.Reply
	require.NoError(t, json.Unmarshal(resp.Data, &reply))
	assert.Equal(t, "the answer", reply.Text)
}

func TestUserChatInactiveChatbot(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, false)
	user := mintToken(t, "u-1", "member", "")

	w, resp := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/chat", user, gin.H{
		"message": "hello",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.ErrChatbotInactive.Code, resp.Code)
}

func TestUserChatUpstreamFailureMapsToGateway(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, true)
	user := mintToken(t, "u-1", "member", "")

	_, created := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/sessions", user, gin.H{})
	var session model.ChatSession
	require.NoError(t, json.Unmarshal(created.Data, &session))

	e.chat.err = errors.ErrUpstreamTimeout
	w, resp := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/chat", user, gin.H{
		"message":    "hello",
		"session_id": session.ID,
	})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, errors.ErrUpstreamTimeout.Code, resp.Code)

	e.chat.err = nil
	e.chat.resp = &llm.GenerateResponse{}
	w, resp = e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/chat", user, gin.H{
		"message":    "hello",
		"session_id": session.ID,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, errors.ErrUpstreamEmpty.Code, resp.Code)

	// Failed turns leave the transcript alone.
	w, resp = e.do(t, http.MethodGet, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Empty(t, session.Messages)
}

func TestUserChatAppendsToSession(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, true)
	user := mintToken(t, "u-1", "member", "")

	w, resp := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/sessions", user, gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	var session model.ChatSession
	require.NoError(t, json.Unmarshal(resp.Data, &session))

	w, _ = e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/chat", user, gin.H{
		"message":    "hello",
		"session_id": session.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, http.MethodGet, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "hello", session.Messages[0].Content)
	assert.Equal(t, "the answer", session.Messages[1].Content)
}

func TestSessionOwnershipOverHTTP(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, true)
	owner := mintToken(t, "u-1", "member", "")
	other := mintToken(t, "u-2", "member", "")

	_, resp := e.do(t, http.MethodPost, "/v1/chatbots/"+chatbot.ID+"/sessions", owner, gin.H{
		"title": "mine",
	})
	var session model.ChatSession
	require.NoError(t, json.Unmarshal(resp.Data, &session))

	w, resp := e.do(t, http.MethodGet, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.ErrNotSessionOwner.Code, resp.Code)

	w, _ = e.do(t, http.MethodDelete, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = e.do(t, http.MethodPatch, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, owner, gin.H{
		"title": "renamed",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Equal(t, "renamed", session.Title)

	w, _ = e.do(t, http.MethodDelete, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, http.MethodGet, "/v1/chatbots/"+chatbot.ID+"/sessions/"+session.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrSessionNotFound.Code, resp.Code)
}

func TestInstructionLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	admin := mintToken(t, "admin-1", "super_admin", "")

	w, resp := e.do(t, http.MethodPost, "/v1/instructions", admin, gin.H{
		"title":   "Refunds",
		"content": "Refunds take 5 business days.",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var instruction model.Instruction
	require.NoError(t, json.Unmarshal(resp.Data, &instruction))
	require.NotEmpty(t, instruction.ID)

	w, resp = e.do(t, http.MethodPost, "/v1/instructions/search", admin, gin.H{
		"query": "refund timing",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var matches []model.InstructionMatch
	require.NoError(t, json.Unmarshal(resp.Data, &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, instruction.ID, matches[0].Instruction.ID)

	w, _ = e.do(t, http.MethodDelete, "/v1/instructions/"+instruction.ID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Soft-deleted instructions no longer surface in retrieval.
	w, resp = e.do(t, http.MethodPost, "/v1/instructions/search", admin, gin.H{
		"query": "refund timing",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &matches))
	assert.Empty(t, matches)

	w, resp = e.do(t, http.MethodGet, "/v1/instructions/nope", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrInstructionNotFound.Code, resp.Code)
}

func TestNodesOverHTTP(t *testing.T) {
	e := newEnv(t)
	chatbot := e.seedChatbot(t, true)
	admin := mintToken(t, "admin-1", "super_admin", "")

	// Writes reject malformed nodes outright.
	w, resp := e.do(t, http.MethodPut, "/v1/chatbots/"+chatbot.ID+"/nodes", admin, gin.H{
		"nodes": []gin.H{
			{"node_type": "data_access", "settings": gin.H{"data_source": "payroll"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrNodeConfig.Code, resp.Code)

	w, _ = e.do(t, http.MethodPut, "/v1/chatbots/"+chatbot.ID+"/nodes", admin, gin.H{
		"nodes": []gin.H{
			{"node_type": "instructions", "settings": gin.H{"content": "be nice", "priority": 1}, "order_index": 0},
			{"node_type": "web_search", "order_index": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, http.MethodGet, "/v1/chatbots/"+chatbot.ID+"/nodes", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []handler.NodeView
	require.NoError(t, json.Unmarshal(resp.Data, &views))
	require.Len(t, views, 2)
	assert.True(t, views[0].Valid)
	assert.Equal(t, "instructions", views[0].NodeType)

	w, resp = e.do(t, http.MethodGet, "/v1/chatbots/nope/nodes", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrChatbotNotFound.Code, resp.Code)
}

func TestStatsOverHTTP(t *testing.T) {
	e := newEnv(t)
	admin := mintToken(t, "admin-1", "super_admin", "")

	w, resp := e.do(t, http.MethodGet, "/v1/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Contains(t, stats, "chat")
	assert.Contains(t, stats, "retrieval")
	assert.Contains(t, stats, "data_sources")
}
