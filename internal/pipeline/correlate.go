package pipeline

import "github.com/yungbote/cme-analysis-backend/internal/types"

// ActionScores are the raw video analysis outputs for one clip, both
// in [0, 1].
type ActionScores struct {
	MotionScore float64
	PoseScore   float64
}

// Verdict is the correlation outcome for one declared step.
type Verdict struct {
	MotionPresent   string
	PoseMatch       string
	ConfidenceScore float64
}

// Correlate maps raw scores to categorical outcomes. Cutoffs are
// inclusive lower bounds, so a score exactly at a threshold takes the
// higher category.
func Correlate(scores ActionScores, cfg Config) Verdict {
	v := Verdict{
		MotionPresent: types.MotionNotObserved,
		PoseMatch:     types.PoseNoMatch,
	}
	switch {
	case scores.MotionScore >= cfg.MotionPerformedMin:
		v.MotionPresent = types.MotionPerformed
	case scores.MotionScore >= cfg.MotionBriefMin:
		v.MotionPresent = types.MotionBrief
	}
	switch {
	case scores.PoseScore >= cfg.PoseFullMatchMin:
		v.PoseMatch = types.PoseFullMatch
	case scores.PoseScore >= cfg.PosePartialMin:
		v.PoseMatch = types.PosePartialMatch
	}
	v.ConfidenceScore = clamp01(0.5*scores.MotionScore + 0.5*scores.PoseScore)
	return v
}

// Unavailable is the placeholder verdict recorded when no video could
// be analyzed for a step.
func Unavailable() Verdict {
	return Verdict{
		MotionPresent:   types.MotionNotObserved,
		PoseMatch:       types.PoseNoMatch,
		ConfidenceScore: 0,
	}
}

// IsDiscrepancy reports whether an observed action contradicts its
// declared step: nothing was seen at all.
func IsDiscrepancy(a *types.ObservedAction) bool {
	return a.MotionPresent == types.MotionNotObserved && a.PoseMatch == types.PoseNoMatch
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
