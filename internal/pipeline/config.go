package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/utils"
)

// Config carries every analysis tunable. The numeric defaults come from
// product documentation, not a formal spec, so all of them are
// overridable through the environment and none are treated as law.
type Config struct {
	// Transcript normalization.
	MergeGapSec         float64
	OverlapToleranceSec float64
	ExaminerSpeakerTag  int
	PatientSpeakerTag   int

	// Test-intent detection.
	IntentConfidenceThreshold float64
	DedupWindowSec            float64

	// Clip windows around a declared test.
	PreRollSec  float64
	PostRollSec float64

	// Action correlation cutoffs (inclusive lower bounds).
	MotionPerformedMin float64
	MotionBriefMin     float64
	PoseFullMatchMin   float64
	PosePartialMin     float64

	// Demeanor analysis. Sentiment scores are in [-1, 1].
	NegativeSentimentBelow  float64
	SentimentHighBelow      float64
	SentimentMediumBelow    float64
	InterruptionMaxGapSec   float64
	InterruptionStrict      bool
	SeverityWindowSec       float64
	InterruptionHighCount   int
	InterruptionMediumCount int

	DismissivePatterns []string
	AggressivePatterns []string
}

func DefaultConfig() Config {
	return Config{
		MergeGapSec:         0.3,
		OverlapToleranceSec: 0.25,
		ExaminerSpeakerTag:  1,
		PatientSpeakerTag:   2,

		IntentConfidenceThreshold: 0.6,
		DedupWindowSec:            5.0,

		PreRollSec:  2.0,
		PostRollSec: 8.0,

		MotionPerformedMin: 0.6,
		MotionBriefMin:     0.2,
		PoseFullMatchMin:   0.75,
		PosePartialMin:     0.4,

		NegativeSentimentBelow:  -0.4,
		SentimentHighBelow:      -0.75,
		SentimentMediumBelow:    -0.55,
		InterruptionMaxGapSec:   0.2,
		InterruptionStrict:      false,
		SeverityWindowSec:       60.0,
		InterruptionHighCount:   3,
		InterruptionMediumCount: 2,

		DismissivePatterns: defaultDismissivePatterns,
		AggressivePatterns: defaultAggressivePatterns,
	}
}

var defaultDismissivePatterns = []string{
	`(?:doesn't|does\s+not)\s+matter`,
	`not\s+important`,
	`(?:don't|do\s+not)\s+care\s+about`,
	`that's\s+(?:irrelevant|not\s+relevant)`,
}

var defaultAggressivePatterns = []string{
	`stop\s+(?:talking|speaking)`,
	`let\s+me\s+(?:speak|talk)`,
	`don't\s+(?:interrupt|talk)`,
	`be\s+quiet`,
	`shut\s+up`,
}

// patternsFile is the optional YAML override for the lexical pattern
// lists, pointed to by CME_PATTERNS_FILE.
type patternsFile struct {
	Dismissive []string `yaml:"dismissive"`
	Aggressive []string `yaml:"aggressive"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()

	cfg.MergeGapSec = utils.GetEnvAsFloat("CME_MERGE_GAP_SEC", cfg.MergeGapSec, log)
	cfg.ExaminerSpeakerTag = utils.GetEnvAsInt("CME_EXAMINER_SPEAKER_TAG", cfg.ExaminerSpeakerTag, log)
	cfg.PatientSpeakerTag = utils.GetEnvAsInt("CME_PATIENT_SPEAKER_TAG", cfg.PatientSpeakerTag, log)
	cfg.IntentConfidenceThreshold = utils.GetEnvAsFloat("CME_INTENT_CONFIDENCE_THRESHOLD", cfg.IntentConfidenceThreshold, log)
	cfg.DedupWindowSec = utils.GetEnvAsFloat("CME_DEDUP_WINDOW_SEC", cfg.DedupWindowSec, log)
	cfg.PreRollSec = utils.GetEnvAsFloat("CME_CLIP_PRE_ROLL_SEC", cfg.PreRollSec, log)
	cfg.PostRollSec = utils.GetEnvAsFloat("CME_CLIP_POST_ROLL_SEC", cfg.PostRollSec, log)
	cfg.NegativeSentimentBelow = utils.GetEnvAsFloat("CME_NEGATIVE_SENTIMENT_BELOW", cfg.NegativeSentimentBelow, log)
	cfg.InterruptionMaxGapSec = utils.GetEnvAsFloat("CME_INTERRUPTION_MAX_GAP_SEC", cfg.InterruptionMaxGapSec, log)
	cfg.InterruptionStrict = utils.GetEnv("CME_INTERRUPTION_STRICT", "false", log) == "true"
	cfg.SeverityWindowSec = utils.GetEnvAsFloat("CME_SEVERITY_WINDOW_SEC", cfg.SeverityWindowSec, log)

	path := utils.GetEnv("CME_PATTERNS_FILE", "", log)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read patterns file %q: %w", path, err)
	}
	var pf patternsFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return cfg, fmt.Errorf("parse patterns file %q: %w", path, err)
	}
	if len(pf.Dismissive) > 0 {
		cfg.DismissivePatterns = pf.Dismissive
	}
	if len(pf.Aggressive) > 0 {
		cfg.AggressivePatterns = pf.Aggressive
	}
	return cfg, nil
}
