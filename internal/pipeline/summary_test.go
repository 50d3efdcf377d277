package pipeline

import (
	"math"
	"testing"

	"github.com/yungbote/cme-analysis-backend/internal/types"
)

func TestBuildSummary(t *testing.T) {
	steps := []*types.DeclaredStep{
		{Label: LabelGait},
		{Label: LabelGait},
		{Label: LabelPalpation},
	}
	actions := []*types.ObservedAction{
		{MotionPresent: types.MotionPerformed, PoseMatch: types.PoseFullMatch, ConfidenceScore: 0.9},
		{MotionPresent: types.MotionNotObserved, PoseMatch: types.PoseNoMatch, ConfidenceScore: 0.1},
		{MotionPresent: types.MotionNotObserved, PoseMatch: types.PoseNoMatch, ConfidenceScore: 0, UnavailabilityReason: "window out of bounds"},
	}
	flags := []*types.DemeanorFlag{
		{FlagType: types.FlagInterruption, Severity: types.SeverityLow},
		{FlagType: types.FlagInterruption, Severity: types.SeverityMedium},
		{FlagType: types.FlagNegativeTone, Severity: types.SeverityHigh},
	}

	s := BuildSummary(steps, actions, flags)
	if s.DeclaredSteps != 3 || s.ObservedActions != 3 || s.DemeanorFlags != 3 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.Discrepancies != 2 {
		t.Fatalf("discrepancies = %d, want 2", s.Discrepancies)
	}
	if s.VideoUnavailable != 1 {
		t.Fatalf("video unavailable = %d, want 1", s.VideoUnavailable)
	}
	if s.StepsByLabel[LabelGait] != 2 || s.StepsByLabel[LabelPalpation] != 1 {
		t.Fatalf("unexpected label counts %+v", s.StepsByLabel)
	}
	if s.FlagsByType[types.FlagInterruption] != 2 || s.FlagsBySeverity[types.SeverityHigh] != 1 {
		t.Fatalf("unexpected flag counts %+v / %+v", s.FlagsByType, s.FlagsBySeverity)
	}
	if math.Abs(s.MeanConfidence-(1.0/3.0)) > 1e-9 {
		t.Fatalf("mean confidence = %f", s.MeanConfidence)
	}
}

func TestBuildSummaryEmpty(t *testing.T) {
	s := BuildSummary(nil, nil, nil)
	if s.MeanConfidence != 0 || s.DeclaredSteps != 0 {
		t.Fatalf("unexpected empty summary %+v", s)
	}
	if _, err := MarshalSummary(s); err != nil {
		t.Fatalf("MarshalSummary: %v", err)
	}
}
