package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// DataRecord is one row of a data source exposed to data_access nodes. All
// recognized sources share this table, discriminated by Source; Payload
// holds the source-specific fields the assembler renders.
type DataRecord struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Source    string    `json:"source" gorm:"type:varchar(64);index;not null"`
	UserID    string    `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	TeamID    string    `json:"team_id,omitempty" gorm:"type:varchar(64);index"`
	Archived  bool      `json:"archived" gorm:"default:false"`
	Payload   JSONMap   `json:"payload" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for DataRecord.
func (DataRecord) TableName() string {
	return "flow_data_records"
}

// BeforeCreate assigns a ULID primary key.
func (r *DataRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	return nil
}
