package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
	"github.com/yungbote/cme-analysis-backend/internal/repos"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// Transcriber produces diarized segments for a session recording.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURI string) ([]pipeline.RawSegment, error)
}

// ClipExtractor cuts [startSec, endSec] out of the session media and
// returns the stored clip URI. A missing or unreadable source returns
// an error wrapping cmerr.ErrNotFound.
type ClipExtractor interface {
	ExtractClip(ctx context.Context, mediaURI string, startSec, endSec float64) (string, error)
}

// ActionAnalyzer scores a clip for motion activity and pose match
// against the declared test label.
type ActionAnalyzer interface {
	AnalyzeAction(ctx context.Context, clipURI string, label string) (pipeline.ActionScores, error)
}

// EventPublisher mirrors stage transitions onto the realtime bus.
type EventPublisher interface {
	PublishStage(ctx context.Context, sessionID uuid.UUID, stage string)
}

// Runner drives a session through the full analysis pipeline: a linear
// prefix (transcribe, detect tests), a concurrent middle (video chain
// alongside demeanor analysis), and a linear suffix (compile report).
type Runner interface {
	Run(ctx context.Context, sessionID uuid.UUID) error
}

type runner struct {
	sessions repos.ExamSessionRepo
	steps    repos.DeclaredStepRepo
	actions  repos.ObservedActionRepo
	flags    repos.DemeanorFlagRepo

	machine     Machine
	transcriber Transcriber
	classifier  pipeline.IntentClassifier
	scorer      pipeline.SentimentScorer
	clips       ClipExtractor
	analyzer    ActionAnalyzer
	events      EventPublisher

	cfg              pipeline.Config
	retry            RetryPolicy
	maxParallelClips int
	log              *logger.Logger
}

type RunnerDeps struct {
	Sessions repos.ExamSessionRepo
	Steps    repos.DeclaredStepRepo
	Actions  repos.ObservedActionRepo
	Flags    repos.DemeanorFlagRepo

	Machine     Machine
	Transcriber Transcriber
	Classifier  pipeline.IntentClassifier
	Scorer      pipeline.SentimentScorer
	Clips       ClipExtractor
	Analyzer    ActionAnalyzer
	Events      EventPublisher

	Config           pipeline.Config
	Retry            RetryPolicy
	MaxParallelClips int
}

func NewRunner(d RunnerDeps, log *logger.Logger) Runner {
	if d.MaxParallelClips <= 0 {
		d.MaxParallelClips = 4
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = DefaultRetryPolicy()
	}
	return &runner{
		sessions:         d.Sessions,
		steps:            d.Steps,
		actions:          d.Actions,
		flags:            d.Flags,
		machine:          d.Machine,
		transcriber:      d.Transcriber,
		classifier:       d.Classifier,
		scorer:           d.Scorer,
		clips:            d.Clips,
		analyzer:         d.Analyzer,
		events:           d.Events,
		cfg:              d.Config,
		retry:            d.Retry,
		maxParallelClips: d.MaxParallelClips,
		log:              log.With("service", "pipeline_runner"),
	}
}

func (r *runner) Run(ctx context.Context, sessionID uuid.UUID) error {
	log := r.log.With("session_id", sessionID)

	sess, err := r.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if Terminal(sess.Stage) {
		return &cmerr.PreconditionError{Op: "run", Reason: fmt.Sprintf("session already %s", sess.Stage)}
	}
	if rank, _ := StageRank(sess.Stage); rank < 1 || sess.MediaURI == "" {
		return &cmerr.PreconditionError{Op: "run", Reason: "no recording registered for session"}
	}

	if err := r.run(ctx, sess, log); err != nil {
		// Cancellation is the caller's doing, not a pipeline failure.
		if errors.Is(err, context.Canceled) {
			return err
		}
		if _, ferr := r.machine.Fail(ctx, sessionID, err.Error()); ferr != nil {
			log.Error("failed to mark session errored", "error", ferr)
		}
		r.publish(ctx, sessionID, StageError)
		return err
	}
	return nil
}

func (r *runner) run(ctx context.Context, sess *types.ExamSession, log *logger.Logger) error {
	sessionID := sess.ID

	if err := r.advance(ctx, sessionID, StageTranscribing); err != nil {
		return err
	}

	var segments []pipeline.RawSegment
	err := Retry(ctx, log, "transcribe", r.retry, func(ctx context.Context) error {
		var terr error
		segments, terr = r.transcriber.Transcribe(ctx, sess.MediaURI)
		return terr
	})
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	utterances, err := pipeline.Normalize(segments, r.cfg)
	if err != nil {
		return fmt.Errorf("normalize transcript: %w", err)
	}
	log.Info("transcript normalized", "segments", len(segments), "utterances", len(utterances))

	if err := r.advance(ctx, sessionID, StageDetectingTests); err != nil {
		return err
	}
	decls, err := pipeline.DetectDeclaredSteps(ctx, utterances, r.classifier, r.cfg)
	if err != nil {
		return fmt.Errorf("detect tests: %w", err)
	}
	steps := make([]*types.DeclaredStep, 0, len(decls))
	for _, d := range decls {
		steps = append(steps, &types.DeclaredStep{
			SessionID:    sessionID,
			TimestampSec: d.TimestampSec,
			Label:        d.Label,
			SourceText:   d.SourceText,
			Confidence:   d.Confidence,
		})
	}
	if len(steps) > 0 {
		if _, err := r.steps.Create(ctx, nil, steps); err != nil {
			return fmt.Errorf("persist declared steps: %w", err)
		}
	}
	log.Info("tests detected", "declared_steps", len(steps))

	// Video chain and demeanor analysis share nothing but the session
	// row, which the version guard protects.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.runVideoChain(gctx, sess, steps, log) })
	g.Go(func() error { return r.runDemeanor(gctx, sessionID, utterances, log) })
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.advance(ctx, sessionID, StageCompilingReport); err != nil {
		return err
	}
	if err := r.compileReport(ctx, sessionID); err != nil {
		return fmt.Errorf("compile report: %w", err)
	}
	if err := r.advance(ctx, sessionID, StageCompleted); err != nil {
		return err
	}
	log.Info("pipeline completed")
	return nil
}

// runVideoChain extracts a clip per declared step and scores it. A step
// whose clip cannot be produced or analyzed gets a placeholder action
// with the reason instead of failing the whole session.
func (r *runner) runVideoChain(ctx context.Context, sess *types.ExamSession, steps []*types.DeclaredStep, log *logger.Logger) error {
	sessionID := sess.ID
	if len(steps) == 0 {
		if err := r.advance(ctx, sessionID, StageSegmentingVideo); err != nil {
			return err
		}
		return r.advance(ctx, sessionID, StageAnalyzingActions)
	}

	if err := r.advance(ctx, sessionID, StageSegmentingVideo); err != nil {
		return err
	}

	actions := make([]*types.ObservedAction, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallelClips)
	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			action, err := r.processStep(gctx, sess, step, log)
			if err != nil {
				return err
			}
			actions[i] = action
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.advance(ctx, sessionID, StageAnalyzingActions); err != nil {
		return err
	}
	_, err := r.actions.Create(ctx, nil, actions)
	return err
}

func (r *runner) processStep(ctx context.Context, sess *types.ExamSession, step *types.DeclaredStep, log *logger.Logger) (*types.ObservedAction, error) {
	placeholder := func(reason string) *types.ObservedAction {
		v := pipeline.Unavailable()
		return &types.ObservedAction{
			DeclaredStepID:       step.ID,
			SessionID:            sess.ID,
			MotionPresent:        v.MotionPresent,
			PoseMatch:            v.PoseMatch,
			MotionScore:          0,
			PoseScore:            0,
			ConfidenceScore:      v.ConfidenceScore,
			UnavailabilityReason: reason,
		}
	}

	startSec, endSec, ok := pipeline.ClipWindow(step.TimestampSec, sess.MediaDurationSec, r.cfg)
	if !ok {
		log.Warn("clip window unusable", "step_id", step.ID, "timestamp", step.TimestampSec)
		return placeholder("clip window outside media bounds"), nil
	}

	var clipURI string
	err := Retry(ctx, log, "extract_clip", r.retry, func(ctx context.Context) error {
		var cerr error
		clipURI, cerr = r.clips.ExtractClip(ctx, sess.MediaURI, startSec, endSec)
		return cerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("clip extraction failed", "step_id", step.ID, "error", err)
		return placeholder(fmt.Sprintf("clip extraction failed: %v", err)), nil
	}
	if err := r.steps.SetClipURI(ctx, nil, step.ID, clipURI); err != nil {
		return nil, err
	}

	var scores pipeline.ActionScores
	err = Retry(ctx, log, "analyze_action", r.retry, func(ctx context.Context) error {
		var aerr error
		scores, aerr = r.analyzer.AnalyzeAction(ctx, clipURI, step.Label)
		return aerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("action analysis failed", "step_id", step.ID, "error", err)
		return placeholder(fmt.Sprintf("action analysis failed: %v", err)), nil
	}

	v := pipeline.Correlate(scores, r.cfg)
	return &types.ObservedAction{
		DeclaredStepID:  step.ID,
		SessionID:       sess.ID,
		MotionPresent:   v.MotionPresent,
		PoseMatch:       v.PoseMatch,
		MotionScore:     scores.MotionScore,
		PoseScore:       scores.PoseScore,
		ConfidenceScore: v.ConfidenceScore,
	}, nil
}

func (r *runner) runDemeanor(ctx context.Context, sessionID uuid.UUID, utterances []pipeline.Utterance, log *logger.Logger) error {
	if err := r.advance(ctx, sessionID, StageAnalyzingDemeanor); err != nil {
		return err
	}
	var found []pipeline.Flag
	err := Retry(ctx, log, "analyze_demeanor", r.retry, func(ctx context.Context) error {
		var derr error
		found, derr = pipeline.AnalyzeDemeanor(ctx, utterances, r.scorer, r.cfg)
		return derr
	})
	if err != nil {
		return fmt.Errorf("demeanor analysis: %w", err)
	}
	if len(found) == 0 {
		log.Info("no demeanor flags")
		return nil
	}
	rows := make([]*types.DemeanorFlag, 0, len(found))
	for _, f := range found {
		rows = append(rows, &types.DemeanorFlag{
			SessionID:    sessionID,
			TimestampSec: f.TimestampSec,
			FlagType:     f.FlagType,
			Severity:     f.Severity,
			Excerpt:      f.Excerpt,
		})
	}
	log.Info("demeanor flags recorded", "count", len(rows))
	_, err = r.flags.Create(ctx, nil, rows)
	return err
}

func (r *runner) compileReport(ctx context.Context, sessionID uuid.UUID) error {
	steps, err := r.steps.ListBySession(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	actions, err := r.actions.ListBySession(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	flags, err := r.flags.ListBySession(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	raw, err := pipeline.MarshalSummary(pipeline.BuildSummary(steps, actions, flags))
	if err != nil {
		return err
	}
	_, err = r.machine.SetSummary(ctx, sessionID, raw)
	return err
}

func (r *runner) advance(ctx context.Context, sessionID uuid.UUID, target string) error {
	if _, err := r.machine.Advance(ctx, sessionID, target); err != nil {
		return fmt.Errorf("advance to %s: %w", target, err)
	}
	r.publish(ctx, sessionID, target)
	return nil
}

func (r *runner) publish(ctx context.Context, sessionID uuid.UUID, stage string) {
	if r.events == nil {
		return
	}
	r.events.PublishStage(ctx, sessionID, stage)
}
