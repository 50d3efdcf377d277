package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
	"github.com/yungbote/cme-analysis-backend/internal/utils"
)

// TranscriberService produces diarized, word-aligned segments for a
// session recording stored in GCS. It satisfies the pipeline runner's
// Transcriber dependency.
type TranscriberService interface {
	Transcribe(ctx context.Context, mediaURI string) ([]pipeline.RawSegment, error)
	Close() error
}

type gcpTranscriber struct {
	log    *logger.Logger
	client *speech.Client

	languageCode string
	minSpeakers  int
	maxSpeakers  int
}

func NewTranscriberService(log *logger.Logger) (TranscriberService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "TranscriberService")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()
	opts := []option.ClientOption{}
	if creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &gcpTranscriber{
		log:          slog,
		client:       c,
		languageCode: utils.GetEnv("SPEECH_LANGUAGE_CODE", "en-US", slog),
		minSpeakers:  utils.GetEnvAsInt("SPEECH_MIN_SPEAKERS", 2, slog),
		maxSpeakers:  utils.GetEnvAsInt("SPEECH_MAX_SPEAKERS", 2, slog),
	}, nil
}

func (s *gcpTranscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *gcpTranscriber) Transcribe(ctx context.Context, mediaURI string) ([]pipeline.RawSegment, error) {
	if !strings.HasPrefix(mediaURI, "gs://") {
		return nil, cmerr.Permanent("transcribe", fmt.Errorf("media URI must be gs://..., got %q", mediaURI))
	}

	// Long audio; the long-running operation can take a while.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.languageCode,
			Model:                      "video",
			UseEnhanced:                true,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          int32(s.minSpeakers),
				MaxSpeakerCount:          int32(s.maxSpeakers),
			},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: mediaURI},
		},
	}

	op, err := s.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, classifyGRPC("speech longrunningrecognize", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, classifyGRPC("speech wait", err)
	}

	segs := groupWordsBySpeaker(resp)
	s.log.Info("transcription complete", "media_uri", mediaURI, "segments", len(segs))
	return segs, nil
}

type recWord struct {
	word  string
	start float64
	end   float64
	spk   int
}

// groupWordsBySpeaker flattens the response into diarized segments by
// grouping contiguous words with the same speaker tag. The final
// result entry carries the authoritative speaker tags, so only its
// words are used when it is present.
func groupWordsBySpeaker(resp *speechpb.LongRunningRecognizeResponse) []pipeline.RawSegment {
	if resp == nil || len(resp.Results) == 0 {
		return nil
	}

	var words []recWord
	collect := func(alt *speechpb.SpeechRecognitionAlternative) {
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			words = append(words, recWord{
				word:  w.Word,
				start: durToSec(w.StartTime),
				end:   durToSec(w.EndTime),
				spk:   int(w.SpeakerTag),
			})
		}
	}

	last := resp.Results[len(resp.Results)-1]
	if len(last.Alternatives) > 0 && last.Alternatives[0] != nil && len(last.Alternatives[0].Words) > 0 && last.Alternatives[0].Words[0].SpeakerTag != 0 {
		collect(last.Alternatives[0])
	} else {
		for _, r := range resp.Results {
			if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
				continue
			}
			collect(r.Alternatives[0])
		}
	}
	if len(words) == 0 {
		return nil
	}

	var segs []pipeline.RawSegment
	cur := pipeline.RawSegment{
		SpeakerTag: words[0].spk,
		StartSec:   words[0].start,
		EndSec:     words[0].end,
	}
	var buf strings.Builder
	flush := func() {
		cur.Text = strings.TrimSpace(buf.String())
		if cur.Text != "" {
			segs = append(segs, cur)
		}
		buf.Reset()
	}
	for _, w := range words {
		if w.spk != cur.SpeakerTag && buf.Len() > 0 {
			flush()
			cur = pipeline.RawSegment{SpeakerTag: w.spk, StartSec: w.start, EndSec: w.end}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.word)
		if w.end > cur.EndSec {
			cur.EndSec = w.end
		}
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
