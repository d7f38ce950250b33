package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/metrics"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
)

// SessionService manages owner-scoped chat sessions. Persistence is
// last-write-wins; there is no concurrency token.
type SessionService struct {
	sessions store.SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions store.SessionStore) *SessionService {
	return &SessionService{sessions: sessions}
}

// Create starts a session for userID.
func (s *SessionService) Create(ctx context.Context, userID, chatbotID, title string, messages model.MessageList) (*model.ChatSession, error) {
	session := &model.ChatSession{
		UserID:    userID,
		ChatbotID: chatbotID,
		Title:     title,
		Messages:  messages,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads a session, rejecting callers who do not own it.
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*model.ChatSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, errors.ErrNotSessionOwner
	}
	return session, nil
}

// Update overwrites the session's title and/or messages. Nil messages and
// empty title leave the respective field untouched.
func (s *SessionService) Update(ctx context.Context, sessionID, userID, title string, messages model.MessageList) (*model.ChatSession, error) {
	session, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if title != "" {
		session.Title = title
	}
	if messages != nil {
		session.Messages = messages
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session the caller owns.
func (s *SessionService) Delete(ctx context.Context, sessionID, userID string) error {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}

// List returns the caller's sessions for a chatbot, most recently updated
// first.
func (s *SessionService) List(ctx context.Context, chatbotID, userID string) ([]*model.ChatSession, error) {
	return s.sessions.ListByChatbotAndUser(ctx, chatbotID, userID)
}

// AppendTurn records a completed chat turn on the session. Best effort:
// failures are logged and counted, never surfaced, because the reply has
// already been produced.
func (s *SessionService) AppendTurn(ctx context.Context, sessionID, userID, userMessage, reply string) {
	err := s.appendTurn(ctx, sessionID, userID, userMessage, reply)
	metrics.Get().RecordSessionAppend(err)
	if err != nil {
		logger.Warnw("failed to append turn to session",
			"session_id", sessionID, "error", err.Error())
	}
}

func (s *SessionService) appendTurn(ctx context.Context, sessionID, userID, userMessage, reply string) error {
	session, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	session.Messages = append(session.Messages,
		model.Message{Role: "user", Content: userMessage},
		model.Message{Role: "assistant", Content: reply},
	)
	return s.sessions.Update(ctx, session)
}
