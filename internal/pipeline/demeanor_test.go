package pipeline

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/cme-analysis-backend/internal/types"
)

type fakeScorer struct {
	byText map[string]float64
}

func (f *fakeScorer) ClassifySentiment(_ context.Context, text string) (float64, error) {
	if s, ok := f.byText[text]; ok {
		return s, nil
	}
	return 0.1, nil
}

func neutralScorer() *fakeScorer { return &fakeScorer{byText: map[string]float64{}} }

func flagsOfType(flags []Flag, flagType string) []Flag {
	var out []Flag
	for _, f := range flags {
		if f.FlagType == flagType {
			out = append(out, f)
		}
	}
	return out
}

func TestAnalyzeDemeanorNegativeTone(t *testing.T) {
	sc := &fakeScorer{byText: map[string]float64{
		"that is ridiculous": -0.8,
		"mildly annoyed":     -0.45,
		"fine":               0.2,
	}}
	utts := []Utterance{
		examinerUtt("that is ridiculous", 10),
		examinerUtt("mildly annoyed", 100),
		examinerUtt("fine", 200),
	}
	flags, err := AnalyzeDemeanor(context.Background(), utts, sc, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	neg := flagsOfType(flags, types.FlagNegativeTone)
	if len(neg) != 2 {
		t.Fatalf("expected 2 negative_tone flags, got %d", len(neg))
	}
	if neg[0].Severity != types.SeverityHigh {
		t.Fatalf("score -0.8 should be high severity, got %q", neg[0].Severity)
	}
	if neg[1].Severity != types.SeverityLow {
		t.Fatalf("score -0.45 should be low severity, got %q", neg[1].Severity)
	}
}

func TestAnalyzeDemeanorInterruptionTiming(t *testing.T) {
	utts := []Utterance{
		{Role: RolePatient, Text: "my back hurts when I", StartSec: 48.0, EndSec: 50.0},
		{Role: RoleExaminer, Text: "okay next test", StartSec: 50.10, EndSec: 51.0},
		{Role: RolePatient, Text: "it also hurts at night.", StartSec: 60.0, EndSec: 62.0},
		{Role: RoleExaminer, Text: "noted", StartSec: 62.5, EndSec: 63.0},
	}
	flags, err := AnalyzeDemeanor(context.Background(), utts, neutralScorer(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	ints := flagsOfType(flags, types.FlagInterruption)
	if len(ints) != 1 {
		t.Fatalf("expected 1 interruption, got %d", len(ints))
	}
	if ints[0].TimestampSec != 50.10 {
		t.Fatalf("interruption anchored at %.2f, want examiner start 50.10", ints[0].TimestampSec)
	}
	if ints[0].Severity != types.SeverityLow {
		t.Fatalf("single interruption should be low severity, got %q", ints[0].Severity)
	}
}

func TestAnalyzeDemeanorGapAtThresholdIsNotInterruption(t *testing.T) {
	utts := []Utterance{
		{Role: RolePatient, Text: "talking", StartSec: 10, EndSec: 12},
		{Role: RoleExaminer, Text: "reply", StartSec: 12.2, EndSec: 13},
	}
	flags, err := AnalyzeDemeanor(context.Background(), utts, neutralScorer(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	if len(flagsOfType(flags, types.FlagInterruption)) != 0 {
		t.Fatalf("gap equal to the threshold must not flag")
	}
}

func TestAnalyzeDemeanorInterruptionSeverityWindow(t *testing.T) {
	mk := func(pStart, eStart float64) []Utterance {
		return []Utterance{
			{Role: RolePatient, Text: "speaking", StartSec: pStart, EndSec: eStart - 0.05},
			{Role: RoleExaminer, Text: "cut off", StartSec: eStart, EndSec: eStart + 1},
		}
	}
	var utts []Utterance
	utts = append(utts, mk(10, 12)...)
	utts = append(utts, mk(30, 32)...)
	utts = append(utts, mk(50, 52)...)
	flags, err := AnalyzeDemeanor(context.Background(), utts, neutralScorer(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	ints := flagsOfType(flags, types.FlagInterruption)
	if len(ints) != 3 {
		t.Fatalf("expected 3 interruptions, got %d", len(ints))
	}
	if ints[0].Severity != types.SeverityLow || ints[1].Severity != types.SeverityMedium || ints[2].Severity != types.SeverityHigh {
		t.Fatalf("expected low/medium/high escalation, got %q/%q/%q", ints[0].Severity, ints[1].Severity, ints[2].Severity)
	}
}

func TestAnalyzeDemeanorStrictModeRequiresTruncation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterruptionStrict = true
	utts := []Utterance{
		{Role: RolePatient, Text: "that is all I have to say.", StartSec: 10, EndSec: 12},
		{Role: RoleExaminer, Text: "moving on", StartSec: 12.05, EndSec: 13},
	}
	flags, err := AnalyzeDemeanor(context.Background(), utts, neutralScorer(), cfg)
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	if len(flagsOfType(flags, types.FlagInterruption)) != 0 {
		t.Fatalf("completed sentence must not flag in strict mode")
	}
}

func TestExcerptTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := excerpt(long)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt produced invalid UTF-8: %q", got[:12])
	}
	if n := utf8.RuneCountInString(got); n != maxExcerptLen+1 {
		t.Fatalf("excerpt rune count = %d, want %d plus ellipsis", n, maxExcerptLen)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated excerpt should end with an ellipsis")
	}
	if short := excerpt("short"); short != "short" {
		t.Fatalf("short text must pass through, got %q", short)
	}
}

func TestAnalyzeDemeanorLexicalPatterns(t *testing.T) {
	utts := []Utterance{
		examinerUtt("that's not important right now", 10),
		examinerUtt("please stop talking and listen", 40),
	}
	flags, err := AnalyzeDemeanor(context.Background(), utts, neutralScorer(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeDemeanor: %v", err)
	}
	dis := flagsOfType(flags, types.FlagDismissive)
	agg := flagsOfType(flags, types.FlagAggressive)
	if len(dis) != 1 || dis[0].Severity != types.SeverityMedium {
		t.Fatalf("expected one medium dismissive flag, got %+v", dis)
	}
	if len(agg) != 1 || agg[0].Severity != types.SeverityHigh {
		t.Fatalf("expected one high aggressive flag, got %+v", agg)
	}
}
