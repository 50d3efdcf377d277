package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// SentimentScorer rates the tone of a single utterance in [-1, 1],
// negative values meaning negative tone.
type SentimentScorer interface {
	ClassifySentiment(ctx context.Context, text string) (float64, error)
}

// Flag is one demeanor finding before persistence.
type Flag struct {
	TimestampSec float64
	FlagType     string
	Severity     string
	Excerpt      string
}

// AnalyzeDemeanor scans examiner behavior across the whole transcript:
// sentiment on each examiner utterance, interruption timing against
// patient speech, and dismissive/aggressive phrasing. Interruption
// severity escalates with how many interruptions cluster inside
// cfg.SeverityWindowSec. Output is ordered by timestamp.
func AnalyzeDemeanor(ctx context.Context, utterances []Utterance, scorer SentimentScorer, cfg Config) ([]Flag, error) {
	dismissive, err := compilePatterns(cfg.DismissivePatterns)
	if err != nil {
		return nil, fmt.Errorf("dismissive patterns: %w", err)
	}
	aggressive, err := compilePatterns(cfg.AggressivePatterns)
	if err != nil {
		return nil, fmt.Errorf("aggressive patterns: %w", err)
	}

	var flags []Flag
	var interruptionTimes []float64

	for i, u := range utterances {
		if u.Role != RoleExaminer {
			continue
		}

		score, err := scorer.ClassifySentiment(ctx, u.Text)
		if err != nil {
			return nil, fmt.Errorf("score utterance at %.2fs: %w", u.StartSec, err)
		}
		if score < cfg.NegativeSentimentBelow {
			flags = append(flags, Flag{
				TimestampSec: u.StartSec,
				FlagType:     types.FlagNegativeTone,
				Severity:     sentimentSeverity(score, cfg),
				Excerpt:      excerpt(u.Text),
			})
		}

		if i > 0 && isInterruption(utterances[i-1], u, cfg) {
			interruptionTimes = append(interruptionTimes, u.StartSec)
			flags = append(flags, Flag{
				TimestampSec: u.StartSec,
				FlagType:     types.FlagInterruption,
				Severity:     interruptionSeverity(interruptionTimes, u.StartSec, cfg),
				Excerpt:      excerpt(u.Text),
			})
		}

		lower := strings.ToLower(u.Text)
		if matchesAny(aggressive, lower) {
			flags = append(flags, Flag{
				TimestampSec: u.StartSec,
				FlagType:     types.FlagAggressive,
				Severity:     types.SeverityHigh,
				Excerpt:      excerpt(u.Text),
			})
		} else if matchesAny(dismissive, lower) {
			flags = append(flags, Flag{
				TimestampSec: u.StartSec,
				FlagType:     types.FlagDismissive,
				Severity:     types.SeverityMedium,
				Excerpt:      excerpt(u.Text),
			})
		}
	}

	sort.SliceStable(flags, func(i, j int) bool { return flags[i].TimestampSec < flags[j].TimestampSec })
	return flags, nil
}

// isInterruption reports whether examiner speech cut off the patient:
// the examiner starts within cfg.InterruptionMaxGapSec of the patient's
// end (or overlaps it). Strict mode additionally requires the patient
// utterance to look truncated, i.e. not ending in sentence punctuation.
func isInterruption(prev, cur Utterance, cfg Config) bool {
	if prev.Role != RolePatient {
		return false
	}
	// Offsets arrive as float seconds, so a gap computed from values
	// like 12.2-12.0 lands a hair under the configured threshold; the
	// epsilon keeps the boundary case out.
	if cur.StartSec-prev.EndSec >= cfg.InterruptionMaxGapSec-gapEpsilon {
		return false
	}
	if cfg.InterruptionStrict {
		t := strings.TrimSpace(prev.Text)
		if strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?") || strings.HasSuffix(t, "!") {
			return false
		}
	}
	return true
}

func sentimentSeverity(score float64, cfg Config) string {
	switch {
	case score <= cfg.SentimentHighBelow:
		return types.SeverityHigh
	case score <= cfg.SentimentMediumBelow:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// interruptionSeverity counts interruptions inside the trailing
// severity window, the current one included.
func interruptionSeverity(times []float64, now float64, cfg Config) string {
	n := 0
	for _, t := range times {
		if now-t <= cfg.SeverityWindowSec {
			n++
		}
	}
	switch {
	case n >= cfg.InterruptionHighCount:
		return types.SeverityHigh
	case n >= cfg.InterruptionMediumCount:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

const gapEpsilon = 1e-9

const maxExcerptLen = 240

// excerpt truncates on a rune boundary so multi-byte text is never cut
// mid-sequence.
func excerpt(text string) string {
	if len(text) <= maxExcerptLen {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxExcerptLen {
		return text
	}
	return string(runes[:maxExcerptLen]) + "…"
}
