package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// DefaultBasePrompt is used when a chatbot has no base prompts configured.
const DefaultBasePrompt = "You are a helpful AI assistant."

// Chatbot is one configured assistant. Its flow nodes define what context
// gets assembled into the system prompt for each turn.
type Chatbot struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	BasePrompts BasePromptList `json:"base_prompts,omitempty" gorm:"type:text"`
	ModelName   string         `json:"model_name" gorm:"type:varchar(128)"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Chatbot.
func (Chatbot) TableName() string {
	return "flow_chatbots"
}

// BeforeCreate assigns a ULID primary key.
func (c *Chatbot) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	return nil
}

// BasePromptText joins the configured base prompts, falling back to
// DefaultBasePrompt when none have content.
func (c *Chatbot) BasePromptText() string {
	var out string
	for _, p := range c.BasePrompts {
		if p.Content == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p.Content
	}
	if out == "" {
		return DefaultBasePrompt
	}
	return out
}
