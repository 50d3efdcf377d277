package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// IntentCandidate is a single classification result for one utterance.
type IntentCandidate struct {
	Label      string
	Confidence float64
}

// IntentClassifier maps an examiner utterance to a test label with a
// confidence in [0, 1]. Implementations live in the services package.
type IntentClassifier interface {
	ClassifyTestIntent(ctx context.Context, text string) (IntentCandidate, error)
}

// Declaration is a detected test announcement, anchored at the start of
// the utterance that declared it.
type Declaration struct {
	TimestampSec float64
	Label        string
	SourceText   string
	Confidence   float64
}

// DetectDeclaredSteps runs the classifier over every examiner utterance
// and keeps candidates at or above the confidence threshold. Repeated
// declarations of the same test within cfg.DedupWindowSec collapse to
// the single highest-confidence occurrence.
func DetectDeclaredSteps(ctx context.Context, utterances []Utterance, classifier IntentClassifier, cfg Config) ([]Declaration, error) {
	var decls []Declaration
	for _, u := range utterances {
		if u.Role != RoleExaminer {
			continue
		}
		cand, err := classifier.ClassifyTestIntent(ctx, u.Text)
		if err != nil {
			return nil, fmt.Errorf("classify utterance at %.2fs: %w", u.StartSec, err)
		}
		if cand.Confidence < cfg.IntentConfidenceThreshold {
			continue
		}
		label := cand.Label
		if !KnownLabel(label) {
			label = LabelOther
		}
		decls = append(decls, Declaration{
			TimestampSec: u.StartSec,
			Label:        label,
			SourceText:   u.Text,
			Confidence:   cand.Confidence,
		})
	}
	return dedupDeclarations(decls, cfg.DedupWindowSec), nil
}

// dedupDeclarations clusters same-label declarations whose gap to the
// previous member is within windowSec, keeping the highest-confidence
// member of each cluster. Ties keep the earliest occurrence. Input is
// already ordered by timestamp because utterances are.
func dedupDeclarations(decls []Declaration, windowSec float64) []Declaration {
	var out []Declaration
	// Index of the current cluster representative per label, plus the
	// timestamp of the last member seen for that label.
	type cluster struct {
		repIdx  int
		lastSec float64
	}
	open := map[string]*cluster{}
	for _, d := range decls {
		c, ok := open[d.Label]
		if ok && d.TimestampSec-c.lastSec <= windowSec {
			c.lastSec = d.TimestampSec
			if d.Confidence > out[c.repIdx].Confidence {
				out[c.repIdx] = d
			}
			continue
		}
		out = append(out, d)
		open[d.Label] = &cluster{repIdx: len(out) - 1, lastSec: d.TimestampSec}
	}
	// Replacing a representative can leave entries slightly out of order
	// relative to other labels.
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampSec < out[j].TimestampSec })
	return out
}
