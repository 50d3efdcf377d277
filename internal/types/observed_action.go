package types

import (
	"time"

	"github.com/google/uuid"
)

// ObservedAction is the vision-derived verdict for one DeclaredStep.
// At most one per step (unique index), append-only.
type ObservedAction struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	DeclaredStepID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"declared_step_id"`
	DeclaredStep   *DeclaredStep `gorm:"constraint:OnDelete:CASCADE;foreignKey:DeclaredStepID;references:ID" json:"declared_step,omitempty"`
	SessionID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"session_id"`

	MotionPresent   string  `gorm:"column:motion_present;not null" json:"motion_present"`
	PoseMatch       string  `gorm:"column:pose_match;not null" json:"pose_match"`
	MotionScore     float64 `gorm:"column:motion_score" json:"motion_score"`
	PoseScore       float64 `gorm:"column:pose_score" json:"pose_score"`
	ConfidenceScore float64 `gorm:"column:confidence_score;not null" json:"confidence_score"`

	// Set when no clip or analysis could be produced; the record then
	// carries the zero-evidence verdict rather than being absent.
	UnavailabilityReason string `gorm:"column:unavailability_reason" json:"unavailability_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ObservedAction) TableName() string { return "observed_action" }

const (
	MotionPerformed   = "performed"
	MotionBrief       = "brief"
	MotionNotObserved = "not_observed"

	PoseFullMatch    = "full_match"
	PosePartialMatch = "partial"
	PoseNoMatch      = "no_match"
)
