// Package gemini provides the Google Gemini provider implementation.
// It speaks the generativelanguage REST API directly so the request can
// carry thinkingConfig and the google_search tool, and so response parts
// keep their thought flag.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
	"github.com/wbt-web-support/chatbot-flow/pkg/utils/httpclient"
	"github.com/wbt-web-support/chatbot-flow/pkg/utils/json"

	flowerrors "github.com/wbt-web-support/chatbot-flow/pkg/errors"
)

const ProviderName = "gemini"

func init() {
	llm.RegisterChatProvider(ProviderName, newChatProvider)
	llm.RegisterEmbeddingProvider(ProviderName, newEmbeddingProvider)
}

// Config holds Gemini provider configuration.
type Config struct {
	// BaseURL is the API base address.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey is the Google AI API key.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel is the model used for embeddings.
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel is the model used for generation.
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry count for 5xx and transport failures.
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		EmbedModel: "text-embedding-004",
		ChatModel:  "gemini-2.5-flash",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider implements llm.ChatProvider and llm.EmbeddingProvider.
type Provider struct {
	config *Config
	client *httpclient.Client
}

func newChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	return NewProvider(configMap)
}

func newEmbeddingProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	return NewProvider(configMap)
}

// NewProvider creates a Gemini provider from a config map.
func NewProvider(configMap map[string]any) (*Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v > 0 {
		cfg.MaxRetries = v
	}

	if cfg.APIKey == "" {
		return nil, flowerrors.ErrProviderCredentials.WithMessage(
			"gemini: api_key is required; set chat.api-key or the GEMINI_API_KEY environment variable")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig creates a Gemini provider from structured config.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embedContentRequest struct {
	Model   string       `json:"model"`
	Content embedContent `json:"content"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed generates embeddings for multiple texts via batchEmbedContents.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requests := make([]embedContentRequest, len(texts))
	for i, text := range texts {
		requests[i] = embedContentRequest{
			Model: fmt.Sprintf("models/%s", p.config.EmbedModel),
			Content: embedContent{
				Parts: []embedPart{{Text: text}},
			},
		}
	}

	body, err := json.Marshal(embedRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s",
		p.config.BaseURL, p.config.EmbedModel, p.config.APIKey)

	respBody, err := p.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var embedResp embedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Embeddings))
	}

	embeddings := make([][]float32, len(embedResp.Embeddings))
	for i, emb := range embedResp.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Contents         []chatContent     `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []map[string]any  `json:"tools,omitempty"`
}

type chatContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []chatPart `json:"parts"`
}

type chatPart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type generationConfig struct {
	Temperature     float64         `json:"temperature,omitempty"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type chatResponse struct {
	Candidates []struct {
		Content struct {
			Parts []chatPart `json:"parts"`
			Role  string     `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// supportsThinking reports whether the configured model has an
// extended-reasoning mode that must be explicitly disabled.
func (p *Provider) supportsThinking() bool {
	return strings.Contains(p.config.ChatModel, "2.5") || strings.Contains(p.config.ChatModel, "-3-")
}

// GenerateContent runs one generation call against generateContent.
func (p *Provider) GenerateContent(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	contents := make([]chatContent, 0, len(req.Contents))
	for _, c := range req.Contents {
		parts := make([]chatPart, 0, len(c.Parts))
		for _, part := range c.Parts {
			parts = append(parts, chatPart{Text: part.Text})
		}
		contents = append(contents, chatContent{Role: string(c.Role), Parts: parts})
	}

	genCfg := &generationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.DisableThinking && p.supportsThinking() {
		genCfg.ThinkingConfig = &thinkingConfig{ThinkingBudget: 0, IncludeThoughts: false}
	}

	apiReq := chatRequest{
		Contents:         contents,
		GenerationConfig: genCfg,
	}
	if req.EnableWebSearch {
		// Gemini 2.5+ requires the google_search tool, not the legacy
		// google_search_retrieval.
		apiReq.Tools = []map[string]any{{"google_search": map[string]any{}}}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.config.BaseURL, p.config.ChatModel, p.config.APIKey)

	respBody, err := p.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &llm.GenerateResponse{
		Usage: &llm.TokenUsage{
			PromptTokens:     chatResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: chatResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      chatResp.UsageMetadata.TotalTokenCount,
		},
	}
	for _, cand := range chatResp.Candidates {
		parts := make([]llm.Part, 0, len(cand.Content.Parts))
		for _, part := range cand.Content.Parts {
			parts = append(parts, llm.Part{Text: part.Text, Thought: part.Thought})
		}
		out.Candidates = append(out.Candidates, llm.Candidate{
			Parts:        parts,
			FinishReason: cand.FinishReason,
		})
	}
	return out, nil
}

// post executes a POST and classifies failures into the service's upstream
// errnos so callers can map them to 502/504 without string checks. Retry on
// 5xx and transport errors happens inside the shared client.
func (p *Provider) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.DoRequest(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, flowerrors.ErrUpstreamUnreachable.WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, flowerrors.ErrProviderCredentials.WithMessage(
			"model provider rejected the API key (status %d)", resp.StatusCode)
	default:
		// 4xx other than auth: not retryable, body kept for the log line.
		return nil, fmt.Errorf("model provider returned status %d: %s", resp.StatusCode, truncateForLog(respBody))
	}
}

func classifyTransportErr(err error) error {
	if httpclient.IsTimeout(err) {
		return flowerrors.ErrUpstreamTimeout.WithCause(err)
	}
	if errors.Is(err, httpclient.ErrServerStatus) {
		return flowerrors.ErrUpstreamUnreachable.WithMessage(
			"model provider kept failing: %v", err)
	}
	return flowerrors.ErrUpstreamUnreachable.WithCause(err)
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
