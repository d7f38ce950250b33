package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Instruction content types.
const (
	ContentTypeDocument = "document"
	ContentTypeURL      = "url"
	ContentTypeManual   = "manual"
)

// Instruction is one retrievable knowledge entry. The embedding is nullable:
// content edits clear it until it is regenerated, and retrieval only
// considers rows where it is present.
type Instruction struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Title              string     `json:"title" gorm:"type:varchar(255);not null"`
	Content            string     `json:"content" gorm:"type:text;not null"`
	ContentType        string     `json:"content_type" gorm:"type:varchar(32);default:'manual'"`
	Embedding          Vector     `json:"-" gorm:"type:text"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
	IsActive           bool       `json:"is_active" gorm:"default:true;index"`
	ExtractionMetadata JSONMap    `json:"extraction_metadata,omitempty" gorm:"type:text"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Instruction.
func (Instruction) TableName() string {
	return "flow_instructions"
}

// BeforeCreate assigns a ULID primary key. ULIDs sort by creation time,
// which retrieval relies on for deterministic tie-breaking.
func (i *Instruction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = ulid.Make().String()
	}
	return nil
}

// HasEmbedding reports whether the instruction is retrievable.
func (i *Instruction) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// InstructionMatch pairs an instruction with its similarity to a query.
type InstructionMatch struct {
	Instruction *Instruction `json:"instruction"`
	Similarity  float32      `json:"similarity"`
}
