package pipeline

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// Summary is the roll-up stored on the session at report time.
type Summary struct {
	DeclaredSteps    int            `json:"declared_steps"`
	ObservedActions  int            `json:"observed_actions"`
	Discrepancies    int            `json:"discrepancies"`
	VideoUnavailable int            `json:"video_unavailable"`
	MeanConfidence   float64        `json:"mean_confidence"`
	StepsByLabel     map[string]int `json:"steps_by_label"`
	DemeanorFlags    int            `json:"demeanor_flags"`
	FlagsByType      map[string]int `json:"flags_by_type"`
	FlagsBySeverity  map[string]int `json:"flags_by_severity"`
}

// BuildSummary compiles the report roll-up from persisted pipeline
// output.
func BuildSummary(steps []*types.DeclaredStep, actions []*types.ObservedAction, flags []*types.DemeanorFlag) Summary {
	s := Summary{
		DeclaredSteps:   len(steps),
		ObservedActions: len(actions),
		DemeanorFlags:   len(flags),
		StepsByLabel:    map[string]int{},
		FlagsByType:     map[string]int{},
		FlagsBySeverity: map[string]int{},
	}
	for _, st := range steps {
		s.StepsByLabel[st.Label]++
	}
	var confSum float64
	for _, a := range actions {
		confSum += a.ConfidenceScore
		if IsDiscrepancy(a) {
			s.Discrepancies++
		}
		if a.UnavailabilityReason != "" {
			s.VideoUnavailable++
		}
	}
	if len(actions) > 0 {
		s.MeanConfidence = confSum / float64(len(actions))
	}
	for _, f := range flags {
		s.FlagsByType[f.FlagType]++
		s.FlagsBySeverity[f.Severity]++
	}
	return s
}

// MarshalSummary renders a summary for the session's JSONB column.
func MarshalSummary(s Summary) (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
