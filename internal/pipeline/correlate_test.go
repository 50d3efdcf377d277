package pipeline

import (
	"math"
	"testing"

	"github.com/yungbote/cme-analysis-backend/internal/types"
)

func TestCorrelateThresholdsAreInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name       string
		scores     ActionScores
		wantMotion string
		wantPose   string
	}{
		{"motion at performed cutoff", ActionScores{MotionScore: 0.6, PoseScore: 0}, types.MotionPerformed, types.PoseNoMatch},
		{"motion at brief cutoff", ActionScores{MotionScore: 0.2, PoseScore: 0}, types.MotionBrief, types.PoseNoMatch},
		{"motion just below brief", ActionScores{MotionScore: 0.19, PoseScore: 0}, types.MotionNotObserved, types.PoseNoMatch},
		{"pose at full cutoff", ActionScores{MotionScore: 0, PoseScore: 0.75}, types.MotionNotObserved, types.PoseFullMatch},
		{"pose at partial cutoff", ActionScores{MotionScore: 0, PoseScore: 0.4}, types.MotionNotObserved, types.PosePartialMatch},
		{"pose just below partial", ActionScores{MotionScore: 0, PoseScore: 0.39}, types.MotionNotObserved, types.PoseNoMatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Correlate(tc.scores, cfg)
			if v.MotionPresent != tc.wantMotion {
				t.Fatalf("motion = %q, want %q", v.MotionPresent, tc.wantMotion)
			}
			if v.PoseMatch != tc.wantPose {
				t.Fatalf("pose = %q, want %q", v.PoseMatch, tc.wantPose)
			}
		})
	}
}

func TestCorrelateConfidenceIsMeanOfScores(t *testing.T) {
	v := Correlate(ActionScores{MotionScore: 0.8, PoseScore: 0.6}, DefaultConfig())
	if math.Abs(v.ConfidenceScore-0.7) > 1e-9 {
		t.Fatalf("confidence = %f, want 0.7", v.ConfidenceScore)
	}
}

func TestCorrelateConfidenceClamped(t *testing.T) {
	v := Correlate(ActionScores{MotionScore: 1.4, PoseScore: 1.2}, DefaultConfig())
	if v.ConfidenceScore != 1.0 {
		t.Fatalf("confidence = %f, want clamp to 1", v.ConfidenceScore)
	}
	v = Correlate(ActionScores{MotionScore: -0.5, PoseScore: -0.1}, DefaultConfig())
	if v.ConfidenceScore != 0 {
		t.Fatalf("confidence = %f, want clamp to 0", v.ConfidenceScore)
	}
}

func TestIsDiscrepancy(t *testing.T) {
	a := &types.ObservedAction{MotionPresent: types.MotionNotObserved, PoseMatch: types.PoseNoMatch}
	if !IsDiscrepancy(a) {
		t.Fatalf("not_observed + no_match must be a discrepancy")
	}
	a = &types.ObservedAction{MotionPresent: types.MotionBrief, PoseMatch: types.PoseNoMatch}
	if IsDiscrepancy(a) {
		t.Fatalf("brief motion is not a discrepancy")
	}
}

func TestClipWindowClampsToMediaBounds(t *testing.T) {
	cfg := DefaultConfig()

	start, end, ok := ClipWindow(30, 600, cfg)
	if !ok || start != 28 || end != 38 {
		t.Fatalf("got [%.1f, %.1f] ok=%v, want [28, 38]", start, end, ok)
	}

	start, end, ok = ClipWindow(1, 600, cfg)
	if !ok || start != 0 || end != 9 {
		t.Fatalf("got [%.1f, %.1f] ok=%v, want [0, 9]", start, end, ok)
	}

	start, end, ok = ClipWindow(597, 600, cfg)
	if !ok || start != 595 || end != 600 {
		t.Fatalf("got [%.1f, %.1f] ok=%v, want [595, 600]", start, end, ok)
	}
}

func TestClipWindowUnusable(t *testing.T) {
	cfg := DefaultConfig()
	if _, _, ok := ClipWindow(30, 0, cfg); ok {
		t.Fatalf("zero-duration media must be unusable")
	}
	if _, _, ok := ClipWindow(700, 600, cfg); ok {
		t.Fatalf("window entirely past media end must be unusable")
	}
}
