package pipeline

import (
	"fmt"
	"strings"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
)

// Speaker roles in a normalized transcript.
const (
	RoleExaminer = "examiner"
	RolePatient  = "patient"
	RoleOther    = "other"
)

// RawSegment is one diarized segment as produced by the transcription
// provider: a numeric speaker tag plus word-aligned offsets in seconds.
type RawSegment struct {
	SpeakerTag int
	Text       string
	StartSec   float64
	EndSec     float64
}

// Utterance is a merged, role-labeled unit of speech.
type Utterance struct {
	Role     string
	Text     string
	StartSec float64
	EndSec   float64
}

func roleForTag(tag int, cfg Config) string {
	switch tag {
	case cfg.ExaminerSpeakerTag:
		return RoleExaminer
	case cfg.PatientSpeakerTag:
		return RolePatient
	default:
		return RoleOther
	}
}

// Normalize converts raw diarized segments into ordered utterances.
// Consecutive segments from the same speaker are merged when the gap
// between them is below cfg.MergeGapSec. Segments that are unordered or
// overlap a prior segment by more than cfg.OverlapToleranceSec make the
// transcript unusable and fail with MalformedTranscriptError.
func Normalize(segments []RawSegment, cfg Config) ([]Utterance, error) {
	var prev *RawSegment
	for i := range segments {
		s := &segments[i]
		if s.StartSec < 0 || s.EndSec < s.StartSec {
			return nil, &cmerr.MalformedTranscriptError{
				Reason: fmt.Sprintf("segment %d has invalid offsets [%.3f, %.3f]", i, s.StartSec, s.EndSec),
			}
		}
		if prev != nil {
			if s.StartSec < prev.StartSec {
				return nil, &cmerr.MalformedTranscriptError{
					Reason: fmt.Sprintf("segment %d starts at %.3f before segment %d at %.3f", i, s.StartSec, i-1, prev.StartSec),
				}
			}
			if prev.EndSec-s.StartSec > cfg.OverlapToleranceSec {
				return nil, &cmerr.MalformedTranscriptError{
					Reason: fmt.Sprintf("segment %d overlaps previous by %.3fs", i, prev.EndSec-s.StartSec),
				}
			}
		}
		prev = s
	}

	var out []Utterance
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		role := roleForTag(s.SpeakerTag, cfg)
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Role == role && s.StartSec-last.EndSec < cfg.MergeGapSec {
				last.Text = last.Text + " " + text
				if s.EndSec > last.EndSec {
					last.EndSec = s.EndSec
				}
				continue
			}
		}
		out = append(out, Utterance{
			Role:     role,
			Text:     text,
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
		})
	}
	return out, nil
}
