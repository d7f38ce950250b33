package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

func testProvider(serverURL, chatModel string) *Provider {
	return NewProviderWithConfig(&Config{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		EmbedModel: "text-embedding-004",
		ChatModel:  chatModel,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	assert.ErrorIs(t, err, flowerrors.ErrProviderCredentials)

	p, err := NewProvider(map[string]any{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
}

func TestGenerateContentRequestShape(t *testing.T) {
	var captured chatRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"hi"}],"role":"model"},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	resp, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Contents: []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{{Text: "system prompt"}}},
			{Role: llm.RoleModel, Parts: []llm.Part{{Text: "ack"}}},
			{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hello"}}},
		},
		Temperature:     0.4,
		MaxOutputTokens: 2048,
		DisableThinking: true,
		EnableWebSearch: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)

	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", path)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	assert.Equal(t, "hello", captured.Contents[2].Parts[0].Text)

	require.NotNil(t, captured.GenerationConfig)
	assert.InDelta(t, 0.4, captured.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, 2048, captured.GenerationConfig.MaxOutputTokens)

	// 2.5 models support thinking, so disabling sends an explicit zero budget.
	require.NotNil(t, captured.GenerationConfig.ThinkingConfig)
	assert.Equal(t, 0, captured.GenerationConfig.ThinkingConfig.ThinkingBudget)
	assert.False(t, captured.GenerationConfig.ThinkingConfig.IncludeThoughts)

	require.Len(t, captured.Tools, 1)
	_, ok := captured.Tools[0]["google_search"]
	assert.True(t, ok)
}

func TestGenerateContentNoThinkingConfigForOlderModels(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-1.5-flash")
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Contents:        []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
		DisableThinking: true,
	})
	require.NoError(t, err)

	require.NotNil(t, captured.GenerationConfig)
	assert.Nil(t, captured.GenerationConfig.ThinkingConfig)
	assert.Empty(t, captured.Tools)
}

func TestGenerateContentParsesThoughtParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"candidates":[{"content":{"parts":[
				{"text":"reasoning...","thought":true},
				{"text":"Hello!"}
			],"role":"model"},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4,"totalTokenCount":16}
		}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	resp, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Contents: []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 1)
	parts := resp.Candidates[0].Parts
	require.Len(t, parts, 2)
	assert.True(t, parts[0].Thought)
	assert.Equal(t, "reasoning...", parts[0].Text)
	assert.False(t, parts[1].Thought)
	assert.Equal(t, "Hello!", parts[1].Text)

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)
}

func TestGenerateContentAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"key invalid"}}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Contents: []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
	})
	assert.ErrorIs(t, err, flowerrors.ErrProviderCredentials)
}

func TestGenerateContentServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	_, err := p.GenerateContent(context.Background(), &llm.GenerateRequest{
		Contents: []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
	})
	assert.ErrorIs(t, err, flowerrors.ErrUpstreamUnreachable)
}

func TestGenerateContentTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p := NewProviderWithConfig(&Config{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		ChatModel: "gemini-2.5-flash",
		Timeout:   50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.GenerateContent(ctx, &llm.GenerateRequest{
		Contents: []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
	})
	assert.ErrorIs(t, err, flowerrors.ErrUpstreamTimeout)
}

func TestEmbedBatch(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	embeddings, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", path)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, embeddings[0])
	assert.Equal(t, []float32{0.3, 0.4}, embeddings[1])
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[{"values":[0.1]}]}`)
	}))
	defer server.Close()

	p := testProvider(server.URL, "gemini-2.5-flash")
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedEmptyInput(t *testing.T) {
	p := testProvider("http://unused", "gemini-2.5-flash")
	embeddings, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}
