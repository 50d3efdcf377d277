package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/orchestrator"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*types.ExamSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[uuid.UUID]*types.ExamSession{}}
}

func (f *fakeSessionStore) Create(_ context.Context, _ *gorm.DB, s *types.ExamSession) (*types.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return s, nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, cmerr.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) UpdateGuarded(_ context.Context, _ *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Version != expectedVersion {
		return &cmerr.ConcurrencyConflict{SessionID: id.String(), ExpectedVersion: expectedVersion}
	}
	if v, ok := updates["media_uri"]; ok {
		s.MediaURI = v.(string)
	}
	if v, ok := updates["media_duration_sec"]; ok {
		s.MediaDurationSec = v.(float64)
	}
	if v, ok := updates["stage"]; ok {
		s.Stage = v.(string)
	}
	s.Version = expectedVersion + 1
	return nil
}

// blockingRunner counts runs and holds each one open until released.
type blockingRunner struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, _ uuid.UUID) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type fixedDurationClips struct {
	duration float64
}

func (c *fixedDurationClips) ExtractClip(_ context.Context, _ string, _, _ float64) (string, error) {
	return "", nil
}

func (c *fixedDurationClips) ProbeMediaDuration(_ context.Context, _ string) (float64, error) {
	return c.duration, nil
}

func seedUploadedSession(t *testing.T, store *fakeSessionStore) uuid.UUID {
	t.Helper()
	s, err := store.Create(context.Background(), nil, &types.ExamSession{
		ExaminerName: "Dr. Reyes",
		PatientRef:   "patient-001",
		Stage:        orchestrator.StageRecordingUploaded,
		Status:       types.SessionStatusActive,
		MediaURI:     "gs://bucket/session.mp4",
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s.ID
}

func newSessionServiceFixture(t *testing.T, store *fakeSessionStore, runner orchestrator.Runner) SessionService {
	t.Helper()
	return NewSessionService(store, nil, nil, nil, &fixedDurationClips{duration: 600}, runner, testLog(t))
}

func TestTriggerProcessingDuplicateIsNoOp(t *testing.T) {
	store := newFakeSessionStore()
	id := seedUploadedSession(t, store)
	runner := &blockingRunner{release: make(chan struct{})}
	svc := newSessionServiceFixture(t, store, runner)

	if err := svc.TriggerProcessing(context.Background(), id); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	// Wait for the detached run to start before re-triggering.
	deadline := time.Now().Add(time.Second)
	for runner.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := svc.TriggerProcessing(context.Background(), id); err != nil {
		t.Fatalf("duplicate trigger must be a no-op, got %v", err)
	}
	if runner.count() != 1 {
		t.Fatalf("duplicate trigger started a second run, runs = %d", runner.count())
	}
	close(runner.release)
}

func TestTriggerProcessingStagePreconditions(t *testing.T) {
	store := newFakeSessionStore()
	runner := &blockingRunner{release: make(chan struct{})}
	svc := newSessionServiceFixture(t, store, runner)

	created, _ := store.Create(context.Background(), nil, &types.ExamSession{
		Stage:  orchestrator.StageCreated,
		Status: types.SessionStatusActive,
	})
	err := svc.TriggerProcessing(context.Background(), created.ID)
	if _, ok := err.(*cmerr.PreconditionError); !ok {
		t.Fatalf("trigger without media should be a precondition error, got %v", err)
	}

	done, _ := store.Create(context.Background(), nil, &types.ExamSession{
		Stage:  orchestrator.StageCompleted,
		Status: types.SessionStatusCompleted,
	})
	err = svc.TriggerProcessing(context.Background(), done.ID)
	if _, ok := err.(*cmerr.PreconditionError); !ok {
		t.Fatalf("trigger on completed session should be a precondition error, got %v", err)
	}
	if runner.count() != 0 {
		t.Fatalf("no run should have started, runs = %d", runner.count())
	}
}
