// Package model provides data models for the chatbot-flow service.
package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/wbt-web-support/chatbot-flow/pkg/utils/json"
)

// Vector is an embedding stored as a JSON array in a text column. Storing
// JSON keeps the schema portable between postgres and the sqlite test
// database; similarity runs in the service, not in SQL.
type Vector []float32

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("cannot scan %T into Vector", value)
	}
}

// JSONMap is a free-form JSON object column.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
}

// BasePrompt is one entry of a chatbot's base prompt list.
type BasePrompt struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// BasePromptList is a JSON array column of base prompts.
type BasePromptList []BasePrompt

// Value implements driver.Valuer.
func (l BasePromptList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *BasePromptList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, l)
	case string:
		return json.Unmarshal([]byte(data), l)
	default:
		return fmt.Errorf("cannot scan %T into BasePromptList", value)
	}
}

// Message is one conversation turn as stored and as accepted on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageList is a JSON array column of messages.
type MessageList []Message

// Value implements driver.Valuer.
func (l MessageList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *MessageList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, l)
	case string:
		return json.Unmarshal([]byte(data), l)
	default:
		return fmt.Errorf("cannot scan %T into MessageList", value)
	}
}

// UserContext carries the end-user identity the assembler resolves
// data-access scopes against. Transient, never persisted.
type UserContext struct {
	UserID string
	TeamID string
}
