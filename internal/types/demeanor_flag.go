package types

import (
	"time"

	"github.com/google/uuid"
)

// DemeanorFlag is a timestamped tone/behavior finding for the examiner.
// Append-only.
type DemeanorFlag struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID    `gorm:"type:uuid;not null;index" json:"session_id"`
	Session   *ExamSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`

	TimestampSec float64 `gorm:"column:timestamp_sec;not null" json:"timestamp_sec"`
	FlagType     string  `gorm:"column:flag_type;not null" json:"flag_type"`
	Severity     string  `gorm:"column:severity;not null" json:"severity"`
	Excerpt      string  `gorm:"column:excerpt" json:"excerpt"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DemeanorFlag) TableName() string { return "demeanor_flag" }

const (
	FlagNegativeTone = "negative_tone"
	FlagInterruption = "interruption"
	FlagDismissive   = "dismissive"
	FlagAggressive   = "aggressive"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)
