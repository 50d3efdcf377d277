package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/orchestrator"
	"github.com/yungbote/cme-analysis-backend/internal/repos"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// SessionService is the outward face of the pipeline: session
// lifecycle, media registration, processing kickoff, and result reads.
type SessionService interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*types.ExamSession, error)
	RegisterMedia(ctx context.Context, sessionID uuid.UUID, mediaURI string) (*types.ExamSession, error)
	TriggerProcessing(ctx context.Context, sessionID uuid.UUID) error
	GetSession(ctx context.Context, sessionID uuid.UUID) (*types.ExamSession, error)
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*types.DeclaredStep, error)
	ListActions(ctx context.Context, sessionID uuid.UUID) ([]*types.ObservedAction, error)
	ListFlags(ctx context.Context, sessionID uuid.UUID) ([]*types.DemeanorFlag, error)
}

type CreateSessionInput struct {
	ExaminerName string
	PatientRef   string
	CaseRef      string
	ExamDate     time.Time
}

type sessionService struct {
	log      *logger.Logger
	sessions repos.ExamSessionRepo
	steps    repos.DeclaredStepRepo
	actions  repos.ObservedActionRepo
	flags    repos.DemeanorFlagRepo
	clips    ClipService
	runner   orchestrator.Runner

	runTimeout time.Duration

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func NewSessionService(
	sessions repos.ExamSessionRepo,
	steps repos.DeclaredStepRepo,
	actions repos.ObservedActionRepo,
	flags repos.DemeanorFlagRepo,
	clips ClipService,
	runner orchestrator.Runner,
	log *logger.Logger,
) SessionService {
	return &sessionService{
		log:        log.With("service", "SessionService"),
		sessions:   sessions,
		steps:      steps,
		actions:    actions,
		flags:      flags,
		clips:      clips,
		runner:     runner,
		runTimeout: 2 * time.Hour,
		running:    map[uuid.UUID]struct{}{},
	}
}

func (s *sessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*types.ExamSession, error) {
	if strings.TrimSpace(in.ExaminerName) == "" {
		return nil, &cmerr.PreconditionError{Op: "create_session", Reason: "examiner_name required"}
	}
	if strings.TrimSpace(in.PatientRef) == "" {
		return nil, &cmerr.PreconditionError{Op: "create_session", Reason: "patient_ref required"}
	}
	examDate := in.ExamDate
	if examDate.IsZero() {
		examDate = time.Now().UTC()
	}
	sess := &types.ExamSession{
		ExaminerName: strings.TrimSpace(in.ExaminerName),
		PatientRef:   strings.TrimSpace(in.PatientRef),
		CaseRef:      strings.TrimSpace(in.CaseRef),
		ExamDate:     examDate,
		Stage:        orchestrator.StageCreated,
		Status:       types.SessionStatusActive,
		Version:      1,
	}
	created, err := s.sessions.Create(ctx, nil, sess)
	if err != nil {
		return nil, err
	}
	s.log.Info("session created", "session_id", created.ID, "case_ref", created.CaseRef)
	return created, nil
}

// RegisterMedia attaches the uploaded recording to the session, probes
// its duration, and moves the session to recording_uploaded. Allowed
// again before processing starts so a botched upload can be replaced.
func (s *sessionService) RegisterMedia(ctx context.Context, sessionID uuid.UUID, mediaURI string) (*types.ExamSession, error) {
	if !strings.HasPrefix(mediaURI, "gs://") {
		return nil, &cmerr.PreconditionError{Op: "register_media", Reason: "media_uri must be a gs:// URI"}
	}
	sess, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Stage != orchestrator.StageCreated && sess.Stage != orchestrator.StageRecordingUploaded {
		return nil, &cmerr.PreconditionError{
			Op:     "register_media",
			Reason: fmt.Sprintf("session is %s, media can no longer be replaced", sess.Stage),
		}
	}

	duration, err := s.clips.ProbeMediaDuration(ctx, mediaURI)
	if err != nil {
		return nil, fmt.Errorf("probe media duration: %w", err)
	}

	err = s.sessions.UpdateGuarded(ctx, nil, sessionID, sess.Version, map[string]interface{}{
		"media_uri":          mediaURI,
		"media_duration_sec": duration,
		"stage":              orchestrator.StageRecordingUploaded,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("media registered", "session_id", sessionID, "duration_sec", duration)
	return s.sessions.GetByID(ctx, nil, sessionID)
}

// TriggerProcessing kicks the pipeline off in the background and
// returns immediately. Triggering is idempotent: a second trigger
// while a run is in flight succeeds without starting another run.
func (s *sessionService) TriggerProcessing(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if orchestrator.Terminal(sess.Stage) {
		return &cmerr.PreconditionError{Op: "trigger_processing", Reason: fmt.Sprintf("session already %s", sess.Stage)}
	}
	if sess.Stage != orchestrator.StageRecordingUploaded {
		return &cmerr.PreconditionError{Op: "trigger_processing", Reason: fmt.Sprintf("session is %s, expected recording_uploaded", sess.Stage)}
	}

	s.mu.Lock()
	if _, busy := s.running[sessionID]; busy {
		s.mu.Unlock()
		s.log.Info("processing already in progress", "session_id", sessionID)
		return nil
	}
	s.running[sessionID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, sessionID)
			s.mu.Unlock()
		}()
		// Detached from the request context; the run outlives it.
		runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		if err := s.runner.Run(runCtx, sessionID); err != nil {
			s.log.Error("pipeline run failed", "session_id", sessionID, "error", err)
		}
	}()
	return nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*types.ExamSession, error) {
	return s.sessions.GetByID(ctx, nil, sessionID)
}

func (s *sessionService) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*types.DeclaredStep, error) {
	if _, err := s.sessions.GetByID(ctx, nil, sessionID); err != nil {
		return nil, err
	}
	return s.steps.ListBySession(ctx, nil, sessionID)
}

func (s *sessionService) ListActions(ctx context.Context, sessionID uuid.UUID) ([]*types.ObservedAction, error) {
	if _, err := s.sessions.GetByID(ctx, nil, sessionID); err != nil {
		return nil, err
	}
	return s.actions.ListBySession(ctx, nil, sessionID)
}

func (s *sessionService) ListFlags(ctx context.Context, sessionID uuid.UUID) ([]*types.DemeanorFlag, error) {
	if _, err := s.sessions.GetByID(ctx, nil, sessionID); err != nil {
		return nil, err
	}
	return s.flags.ListBySession(ctx, nil, sessionID)
}
