package services

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/api/option"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
)

// ActionAnalyzerService scores a clip for motion activity and pose
// match against a declared test label. It satisfies the pipeline
// runner's ActionAnalyzer dependency.
type ActionAnalyzerService interface {
	AnalyzeAction(ctx context.Context, clipURI string, label string) (pipeline.ActionScores, error)
	Close() error
}

type gcpActionAnalyzer struct {
	log    *logger.Logger
	client *videointelligence.Client
}

func NewActionAnalyzerService(log *logger.Logger) (ActionAnalyzerService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "ActionAnalyzerService")

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
	c, err := videointelligence.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &gcpActionAnalyzer{log: slog, client: c}, nil
}

func (s *gcpActionAnalyzer) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *gcpActionAnalyzer) AnalyzeAction(ctx context.Context, clipURI string, label string) (pipeline.ActionScores, error) {
	var zero pipeline.ActionScores
	if !strings.HasPrefix(clipURI, "gs://") {
		return zero, cmerr.Permanent("analyze_action", fmt.Errorf("clip URI must be gs://..., got %q", clipURI))
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	op, err := s.client.AnnotateVideo(ctx, &vipb.AnnotateVideoRequest{
		InputUri: clipURI,
		Features: []vipb.Feature{vipb.Feature_PERSON_DETECTION},
		VideoContext: &vipb.VideoContext{
			PersonDetectionConfig: &vipb.PersonDetectionConfig{
				IncludeBoundingBoxes: true,
				IncludePoseLandmarks: true,
			},
		},
	})
	if err != nil {
		return zero, classifyGRPC("videointelligence annotate", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return zero, classifyGRPC("videointelligence wait", err)
	}
	if len(resp.AnnotationResults) == 0 {
		return zero, nil
	}

	scores := scorePersonTracks(resp.AnnotationResults[0], label)
	s.log.Debug("clip scored", "clip_uri", clipURI, "label", label,
		"motion", scores.MotionScore, "pose", scores.PoseScore)
	return scores, nil
}

// Landmarks the pose check cares about per test label. Labels with no
// entry fall back to whole-body coverage.
var poseLandmarksByLabel = map[string][]string{
	pipeline.LabelLumbarROM:        {"left_hip", "right_hip", "left_shoulder", "right_shoulder"},
	pipeline.LabelStraightLegRaise: {"left_hip", "right_hip", "left_knee", "right_knee", "left_ankle", "right_ankle"},
	pipeline.LabelCervicalROM:      {"nose", "left_ear", "right_ear", "left_shoulder", "right_shoulder"},
	pipeline.LabelGait:             {"left_knee", "right_knee", "left_ankle", "right_ankle"},
	pipeline.LabelNeuroReflex:      {"left_knee", "right_knee", "left_elbow", "right_elbow"},
}

// scorePersonTracks derives the two raw scores from person detection.
// Motion combines how much of the clip a person is tracked with how
// much the bounding box actually moves. Pose is the detection rate of
// the landmarks relevant to the declared test.
func scorePersonTracks(res *vipb.VideoAnnotationResults, label string) pipeline.ActionScores {
	var out pipeline.ActionScores
	if res == nil || len(res.PersonDetectionAnnotations) == 0 {
		return out
	}

	clipDur := segmentSeconds(res.Segment)

	var trackedSec float64
	var displacement float64
	var boxSamples int
	wanted := poseLandmarksByLabel[label]
	var landmarkHits, landmarkWanted int

	for _, ann := range res.PersonDetectionAnnotations {
		for _, track := range ann.Tracks {
			trackedSec += segmentSeconds(track.Segment)
			var prevCX, prevCY float64
			havePrev := false
			for _, obj := range track.TimestampedObjects {
				if box := obj.NormalizedBoundingBox; box != nil {
					cx := float64(box.Left+box.Right) / 2
					cy := float64(box.Top+box.Bottom) / 2
					if havePrev {
						displacement += math.Hypot(cx-prevCX, cy-prevCY)
						boxSamples++
					}
					prevCX, prevCY = cx, cy
					havePrev = true
				}
				if len(obj.Landmarks) == 0 {
					continue
				}
				if len(wanted) == 0 {
					landmarkWanted += len(obj.Landmarks)
					landmarkHits += len(obj.Landmarks)
					continue
				}
				present := map[string]bool{}
				for _, lm := range obj.Landmarks {
					present[strings.ToLower(lm.Name)] = true
				}
				for _, name := range wanted {
					landmarkWanted++
					if present[name] {
						landmarkHits++
					}
				}
			}
		}
	}

	coverage := 0.0
	if clipDur > 0 {
		coverage = clamp01(trackedSec / clipDur)
	} else if trackedSec > 0 {
		coverage = 1
	}
	movement := 0.0
	if boxSamples > 0 {
		// Mean per-sample center shift; 2.5% of the frame per sample is
		// already vigorous movement.
		movement = clamp01((displacement / float64(boxSamples)) / 0.025)
	}
	out.MotionScore = clamp01(coverage * movement)

	if landmarkWanted > 0 {
		out.PoseScore = clamp01(float64(landmarkHits) / float64(landmarkWanted))
	}
	return out
}

func segmentSeconds(seg *vipb.VideoSegment) float64 {
	if seg == nil || seg.StartTimeOffset == nil || seg.EndTimeOffset == nil {
		return 0
	}
	return seg.EndTimeOffset.AsDuration().Seconds() - seg.StartTimeOffset.AsDuration().Seconds()
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
