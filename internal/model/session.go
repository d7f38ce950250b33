package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// DefaultSessionTitle is assigned when a session is created without one.
const DefaultSessionTitle = "New Chat"

// ChatSession is one user's conversation with a chatbot. Messages hold the
// whole transcript; writes are last-write-wins.
type ChatSession struct {
	ID        string      `json:"id" gorm:"primaryKey;type:varchar(26)"`
	UserID    string      `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ChatbotID string      `json:"chatbot_id" gorm:"type:varchar(26);index;not null"`
	Title     string      `json:"title" gorm:"type:varchar(255)"`
	Messages  MessageList `json:"messages" gorm:"type:text"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChatSession.
func (ChatSession) TableName() string {
	return "flow_chat_sessions"
}

// BeforeCreate assigns a ULID primary key and the default title.
func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	if s.Title == "" {
		s.Title = DefaultSessionTitle
	}
	return nil
}
