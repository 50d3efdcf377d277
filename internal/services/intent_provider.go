package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
)

// NewIntentClassifier returns the test-intent classifier. With a
// client it asks the model first and falls back to lexical scoring on
// permanent failures; without one it is lexical-only. Transient model
// errors propagate so the stage retry can handle them.
func NewIntentClassifier(client OpenAIClient, log *logger.Logger) pipeline.IntentClassifier {
	return &intentClassifier{
		client:  client,
		lexical: newLexicalIntentScorer(),
		log:     log.With("service", "IntentClassifier"),
	}
}

type intentClassifier struct {
	client  OpenAIClient
	lexical *lexicalIntentScorer
	log     *logger.Logger
}

var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"label": map[string]any{
			"type": "string",
			"enum": pipeline.Labels(),
		},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	},
	"required":             []string{"label", "confidence"},
	"additionalProperties": false,
}

const intentSystemPrompt = `You classify a single utterance spoken by a medical examiner during a compulsory medical examination. Decide whether the utterance announces a physical or cognitive test about to be performed, and which test. If no test is being announced, answer label "other" with confidence 0.`

func (c *intentClassifier) ClassifyTestIntent(ctx context.Context, text string) (pipeline.IntentCandidate, error) {
	if c.client == nil {
		return c.lexical.score(text), nil
	}

	obj, err := c.client.GenerateJSON(ctx, intentSystemPrompt, text, "test_intent", intentSchema)
	if err != nil {
		if cmerr.IsRetryable(err) {
			return pipeline.IntentCandidate{}, err
		}
		c.log.Warn("model classification failed, using lexical fallback", "error", err)
		return c.lexical.score(text), nil
	}

	label, _ := obj["label"].(string)
	conf, _ := obj["confidence"].(float64)
	if label == "" {
		return c.lexical.score(text), nil
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return pipeline.IntentCandidate{Label: label, Confidence: conf}, nil
}

// Lexical scoring weights. A keyword hit alone is weak evidence; a
// phrase pattern is strong; an announcement preamble tips borderline
// matches over the detection threshold.
const (
	keywordWeight     = 0.3
	patternWeight     = 0.7
	declarationWeight = 0.2
)

type labelLexicon struct {
	label    string
	keywords []string
	patterns []*regexp.Regexp
}

type lexicalIntentScorer struct {
	lexicons    []labelLexicon
	declaration *regexp.Regexp
}

func newLexicalIntentScorer() *lexicalIntentScorer {
	mk := func(label string, keywords []string, patterns ...string) labelLexicon {
		res := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			res = append(res, regexp.MustCompile(p))
		}
		return labelLexicon{label: label, keywords: keywords, patterns: res}
	}
	return &lexicalIntentScorer{
		declaration: regexp.MustCompile(`(?:i'?m going to|i will|i'?d like to|let'?s|now i|next we|i want you to|can you|could you|go ahead and)`),
		lexicons: []labelLexicon{
			mk(pipeline.LabelLumbarROM,
				[]string{"lumbar", "lower back", "flexion", "extension"},
				`bend (?:forward|backward|over|down)`, `touch your toes`, `lumbar (?:flexion|extension|range)`, `range of motion.*(?:back|spine)`),
			mk(pipeline.LabelStraightLegRaise,
				[]string{"straight leg", "leg raise"},
				`raise your (?:left |right )?leg`, `straight[- ]leg raise`, `lift your leg`),
			mk(pipeline.LabelCervicalROM,
				[]string{"cervical", "neck"},
				`turn your head`, `look (?:up|down|over your shoulder)`, `chin to (?:your )?chest`, `cervical (?:rotation|flexion|range)`),
			mk(pipeline.LabelGait,
				[]string{"gait", "walk"},
				`walk (?:across|over|for me|down the hall)`, `heel[- ]to[- ]toe`, `walk on your (?:heels|toes)`),
			mk(pipeline.LabelNeuroReflex,
				[]string{"reflex", "reflexes", "sensation", "numbness"},
				`check your reflexes`, `tap (?:on )?your (?:knee|elbow|ankle)`, `push against my hand`, `squeeze my (?:hand|fingers)`, `can you feel (?:this|that)`),
			mk(pipeline.LabelPalpation,
				[]string{"palpate", "tender", "tenderness"},
				`press (?:on|along|down on) your`, `does (?:this|it) hurt when i (?:press|push|touch)`, `point to where it hurts`),
			mk(pipeline.LabelWaddell,
				[]string{"axial", "distraction"},
				`press (?:down )?on (?:the top of )?your head`, `rotate (?:your )?(?:hips|shoulders) together`),
			mk(pipeline.LabelOrthopedic,
				[]string{"spurling", "faber", "patrick", "compression"},
				`(?:spurling|faber|patrick)(?:'s)? (?:test|maneuver)`, `compression test`),
			mk(pipeline.LabelCognitive,
				[]string{"remember", "concentration"},
				`remember these (?:\w+ )?words`, `count backwards?`, `spell \w+ backwards?`, `what (?:day|year|month) is it`),
		},
	}
}

func (s *lexicalIntentScorer) score(text string) pipeline.IntentCandidate {
	lower := strings.ToLower(text)
	best := pipeline.IntentCandidate{Label: pipeline.LabelOther, Confidence: 0}

	declared := s.declaration.MatchString(lower)
	for _, lex := range s.lexicons {
		var score float64
		for _, kw := range lex.keywords {
			if strings.Contains(lower, kw) {
				score += keywordWeight
				break
			}
		}
		for _, re := range lex.patterns {
			if re.MatchString(lower) {
				score += patternWeight
				break
			}
		}
		if score > 0 && declared {
			score += declarationWeight
		}
		if score > 1 {
			score = 1
		}
		if score > best.Confidence {
			best = pipeline.IntentCandidate{Label: lex.label, Confidence: score}
		}
	}
	return best
}
