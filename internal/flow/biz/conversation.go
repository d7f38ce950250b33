package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/metrics"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"
)

// Generation parameters for chat turns.
const (
	chatTemperature     = 0.4
	chatMaxOutputTokens = 2048

	// maxHistoryTurns bounds how much transcript reaches the model.
	maxHistoryTurns = 30

	// ackTurnText is the synthetic model turn that pins the assembled
	// prompt at the top of the conversation.
	ackTurnText = "I understand and will follow these instructions."
)

// CallerContext distinguishes who is driving a chat turn. The variant
// decides whether a web_search flow node may auto-enable web search and
// whether an inactive chatbot is reachable.
type CallerContext interface {
	// UserContext resolves the identity data-access scopes run against.
	UserContext() *model.UserContext

	// allowConfigWebSearch reports whether a web_search node alone may
	// turn web search on for this caller.
	allowConfigWebSearch() bool

	// requireActiveChatbot reports whether an inactive chatbot must be
	// rejected for this caller.
	requireActiveChatbot() bool
}

// AdminTest is a super-admin exercising a chatbot from the admin surface,
// optionally impersonating a user and team.
type AdminTest struct {
	UserID string
	TeamID string
}

func (c AdminTest) UserContext() *model.UserContext {
	if c.UserID == "" && c.TeamID == "" {
		return nil
	}
	return &model.UserContext{UserID: c.UserID, TeamID: c.TeamID}
}

func (AdminTest) allowConfigWebSearch() bool { return true }
func (AdminTest) requireActiveChatbot() bool { return false }

// EndUser is an authenticated user talking to a published chatbot. Web
// search needs their explicit per-turn opt-in.
type EndUser struct {
	SessionUserID string
	TeamID        string
}

func (c EndUser) UserContext() *model.UserContext {
	return &model.UserContext{UserID: c.SessionUserID, TeamID: c.TeamID}
}

func (EndUser) allowConfigWebSearch() bool { return false }
func (EndUser) requireActiveChatbot() bool { return true }

// Reply is one model answer, with reasoning separated from the text shown
// to the user.
type Reply struct {
	Text           string `json:"reply"`
	ThoughtSummary string `json:"thought_summary,omitempty"`
}

// Conversation drives one chat turn end to end: assemble the prompt, build
// the model contents, call the provider, and split the answer.
type Conversation struct {
	assembler *Assembler
	provider  llm.ChatProvider
}

// NewConversation creates a Conversation.
func NewConversation(assembler *Assembler, provider llm.ChatProvider) *Conversation {
	return &Conversation{assembler: assembler, provider: provider}
}

// Converse runs one turn. history is the prior transcript as the client
// stores it; useWebSearch is the caller's explicit opt-in.
func (c *Conversation) Converse(ctx context.Context, caller CallerContext, chatbotID, message string, history []model.Message, useWebSearch bool) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("message is required")
	}

	assembled, err := c.assembler.Assemble(ctx, chatbotID, caller.UserContext())
	if err != nil {
		metrics.Get().RecordChatTurn(0, 0, err)
		return nil, err
	}

	if caller.requireActiveChatbot() && !assembled.Chatbot.IsActive {
		return nil, errors.ErrChatbotInactive
	}

	contents := buildContents(assembled.Prompt, history, message)
	enableWebSearch := useWebSearch || (assembled.WebSearchRequested && caller.allowConfigWebSearch())

	resp, err := c.provider.GenerateContent(ctx, &llm.GenerateRequest{
		Contents:        contents,
		Temperature:     chatTemperature,
		MaxOutputTokens: chatMaxOutputTokens,
		DisableThinking: true,
		EnableWebSearch: enableWebSearch,
	})
	if err != nil {
		metrics.Get().RecordChatTurn(0, 0, err)
		logger.Errorw("model call failed",
			"chatbot_id", chatbotID, "provider", c.provider.Name(), "error", err.Error())
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		metrics.Get().RecordChatTurn(0, 0, errors.ErrUpstreamEmpty)
		return nil, errors.ErrUpstreamEmpty
	}

	reply := splitCandidate(resp.Candidates[0])

	promptTokens, candidateTokens := 0, 0
	if resp.Usage != nil {
		promptTokens = resp.Usage.PromptTokens
		candidateTokens = resp.Usage.CompletionTokens
	}
	metrics.Get().RecordChatTurn(promptTokens, candidateTokens, nil)

	return reply, nil
}

// buildContents lays out the model input: the assembled prompt as a user
// turn, a synthetic acknowledgment, the trailing history window, then the
// new message.
func buildContents(prompt string, history []model.Message, message string) []llm.Content {
	contents := make([]llm.Content, 0, len(history)+3)
	contents = append(contents,
		llm.Content{Role: llm.RoleUser, Parts: []llm.Part{{Text: prompt}}},
		llm.Content{Role: llm.RoleModel, Parts: []llm.Part{{Text: ackTurnText}}},
	)

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		var role llm.Role
		switch turn.Role {
		case "user":
			role = llm.RoleUser
		case "assistant", "model":
			role = llm.RoleModel
		default:
			continue
		}
		contents = append(contents, llm.Content{Role: role, Parts: []llm.Part{{Text: turn.Content}}})
	}

	return append(contents, llm.Content{Role: llm.RoleUser, Parts: []llm.Part{{Text: message}}})
}

// splitCandidate separates thought-flagged parts from the visible reply.
func splitCandidate(candidate llm.Candidate) *Reply {
	var replyParts, thoughtParts []string
	for _, part := range candidate.Parts {
		if part.Text == "" {
			continue
		}
		if part.Thought {
			thoughtParts = append(thoughtParts, part.Text)
		} else {
			replyParts = append(replyParts, part.Text)
		}
	}
	return &Reply{
		Text:           strings.TrimSpace(strings.Join(replyParts, "")),
		ThoughtSummary: strings.TrimSpace(strings.Join(thoughtParts, "")),
	}
}
