package services

import (
	"context"
	"strings"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
)

// NewSentimentScorer returns the demeanor sentiment scorer. With a
// client it asks the model and falls back to a small indicator lexicon
// on permanent failures; without one it is lexicon-only.
func NewSentimentScorer(client OpenAIClient, log *logger.Logger) pipeline.SentimentScorer {
	return &sentimentScorer{
		client: client,
		log:    log.With("service", "SentimentScorer"),
	}
}

type sentimentScorer struct {
	client OpenAIClient
	log    *logger.Logger
}

var sentimentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score": map[string]any{
			"type":    "number",
			"minimum": -1,
			"maximum": 1,
		},
	},
	"required":             []string{"score"},
	"additionalProperties": false,
}

const sentimentSystemPrompt = `You rate the tone of a single utterance spoken by a medical examiner toward a patient. Return a score from -1 (hostile, contemptuous, dismissive) through 0 (neutral, clinical) to 1 (warm, supportive). Clinical instructions are neutral even when blunt.`

func (s *sentimentScorer) ClassifySentiment(ctx context.Context, text string) (float64, error) {
	if s.client == nil {
		return lexiconSentiment(text), nil
	}
	obj, err := s.client.GenerateJSON(ctx, sentimentSystemPrompt, text, "examiner_tone", sentimentSchema)
	if err != nil {
		if cmerr.IsRetryable(err) {
			return 0, err
		}
		s.log.Warn("model sentiment failed, using lexicon fallback", "error", err)
		return lexiconSentiment(text), nil
	}
	score, _ := obj["score"].(float64)
	if score < -1 {
		score = -1
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// Strongly negative phrases an examiner should not be using. Each hit
// pushes the score further down; a single hit already crosses the
// default flag threshold.
var negativeIndicators = []string{
	"ridiculous", "nonsense", "exaggerating", "faking", "making it up",
	"wasting my time", "stop complaining", "nothing wrong with you",
	"supposedly", "so-called", "whatever you say",
}

func lexiconSentiment(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, ind := range negativeIndicators {
		if strings.Contains(lower, ind) {
			score -= 0.5
		}
	}
	if score < -1 {
		score = -1
	}
	return score
}
