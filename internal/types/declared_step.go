package types

import (
	"time"

	"github.com/google/uuid"
)

// DeclaredStep is a medical test the examiner verbally declared.
// Append-only: corrections are new records, never in-place edits.
type DeclaredStep struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID    `gorm:"type:uuid;not null;index" json:"session_id"`
	Session   *ExamSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`

	TimestampSec float64 `gorm:"column:timestamp_sec;not null" json:"timestamp_sec"`
	Label        string  `gorm:"column:label;not null" json:"label"`
	SourceText   string  `gorm:"column:source_text" json:"source_text"`
	Confidence   float64 `gorm:"column:confidence;not null" json:"confidence"`
	ClipURI      string  `gorm:"column:clip_uri" json:"clip_uri"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DeclaredStep) TableName() string { return "declared_step" }
