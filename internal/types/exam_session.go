package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExamSession is the root record for one CME recording under analysis.
// Pipeline stage and status are only ever mutated through the session
// state machine; Version is the optimistic-concurrency guard for those
// writes.
type ExamSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExaminerName string    `gorm:"column:examiner_name;not null" json:"examiner_name"`
	PatientRef   string    `gorm:"column:patient_ref;not null" json:"patient_ref"`
	CaseRef      string    `gorm:"column:case_ref" json:"case_ref"`
	ExamDate     time.Time `gorm:"column:exam_date" json:"exam_date"`

	MediaURI         string  `gorm:"column:media_uri" json:"media_uri"`
	MediaDurationSec float64 `gorm:"column:media_duration_sec" json:"media_duration_sec"`

	Stage         string `gorm:"column:stage;not null" json:"stage"`
	Status        string `gorm:"column:status;not null" json:"status"`
	FailureReason string `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	Version       int    `gorm:"column:version;not null" json:"version"`

	// Summary is populated during report compilation: declared/observed
	// counts, discrepancy list, flag totals.
	Summary datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ExamSession) TableName() string { return "exam_session" }

const (
	SessionStatusActive    = "active"
	SessionStatusError     = "error"
	SessionStatusCompleted = "completed"
)
