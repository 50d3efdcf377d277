package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.ExamSession{},
		&types.DeclaredStep{},
		&types.ObservedAction{},
		&types.DemeanorFlag{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func seedSession(t *testing.T, repo ExamSessionRepo) *types.ExamSession {
	t.Helper()
	sess, err := repo.Create(context.Background(), nil, &types.ExamSession{
		ExaminerName:     "Dr. Reyes",
		PatientRef:       "patient-001",
		CaseRef:          "case-123",
		ExamDate:         time.Now().UTC(),
		Stage:            "created",
		Status:           types.SessionStatusActive,
		MediaDurationSec: 600,
		Version:          1,
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func TestExamSessionCreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewExamSessionRepo(db, testLog(t))

	sess := seedSession(t, repo)
	if sess.ID == uuid.Nil {
		t.Fatalf("id not assigned")
	}

	got, err := repo.GetByID(context.Background(), nil, sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ExaminerName != "Dr. Reyes" || got.Version != 1 {
		t.Fatalf("unexpected row %+v", got)
	}
	if got.ExamDate.IsZero() {
		t.Fatalf("exam date not persisted as a timestamp")
	}

	if _, err := repo.GetByID(context.Background(), nil, uuid.New()); !errors.Is(err, cmerr.ErrNotFound) {
		t.Fatalf("missing session should be ErrNotFound, got %v", err)
	}
}

func TestExamSessionUpdateGuarded(t *testing.T) {
	db := testDB(t)
	repo := NewExamSessionRepo(db, testLog(t))
	sess := seedSession(t, repo)

	err := repo.UpdateGuarded(context.Background(), nil, sess.ID, 1, map[string]interface{}{
		"stage": "transcribing",
	})
	if err != nil {
		t.Fatalf("UpdateGuarded: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), nil, sess.ID)
	if got.Stage != "transcribing" || got.Version != 2 {
		t.Fatalf("unexpected row after guarded update: %+v", got)
	}

	// Stale version must conflict, not silently overwrite.
	err = repo.UpdateGuarded(context.Background(), nil, sess.ID, 1, map[string]interface{}{
		"stage": "detecting_tests",
	})
	var conflict *cmerr.ConcurrencyConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflict, got %v", err)
	}
	got, _ = repo.GetByID(context.Background(), nil, sess.ID)
	if got.Stage != "transcribing" {
		t.Fatalf("stale write went through: %+v", got)
	}
}

func TestDeclaredStepCreateAndList(t *testing.T) {
	db := testDB(t)
	sessions := NewExamSessionRepo(db, testLog(t))
	steps := NewDeclaredStepRepo(db, testLog(t))
	sess := seedSession(t, sessions)

	created, err := steps.Create(context.Background(), nil, []*types.DeclaredStep{
		{SessionID: sess.ID, TimestampSec: 120, Label: "gait", SourceText: "walk for me", Confidence: 0.8},
		{SessionID: sess.ID, TimestampSec: 30, Label: "lumbar_rom", SourceText: "bend forward", Confidence: 0.9},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, s := range created {
		if s.ID == uuid.Nil {
			t.Fatalf("step id not assigned")
		}
	}

	out, err := steps.ListBySession(context.Background(), nil, sess.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(out) != 2 || out[0].TimestampSec != 30 || out[1].TimestampSec != 120 {
		t.Fatalf("list not ordered by timestamp: %+v", out)
	}
}

func TestDeclaredStepSetClipURIWriteOnce(t *testing.T) {
	db := testDB(t)
	sessions := NewExamSessionRepo(db, testLog(t))
	steps := NewDeclaredStepRepo(db, testLog(t))
	sess := seedSession(t, sessions)

	created, err := steps.Create(context.Background(), nil, []*types.DeclaredStep{
		{SessionID: sess.ID, TimestampSec: 30, Label: "gait", Confidence: 0.8},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stepID := created[0].ID

	if err := steps.SetClipURI(context.Background(), nil, stepID, "gs://b/clip1.mp4"); err != nil {
		t.Fatalf("SetClipURI: %v", err)
	}
	// Second write must not overwrite.
	if err := steps.SetClipURI(context.Background(), nil, stepID, "gs://b/clip2.mp4"); err != nil {
		t.Fatalf("SetClipURI second: %v", err)
	}
	out, _ := steps.ListBySession(context.Background(), nil, sess.ID)
	if out[0].ClipURI != "gs://b/clip1.mp4" {
		t.Fatalf("clip URI overwritten: %q", out[0].ClipURI)
	}
}

func TestObservedActionRepo(t *testing.T) {
	db := testDB(t)
	sessions := NewExamSessionRepo(db, testLog(t))
	steps := NewDeclaredStepRepo(db, testLog(t))
	actions := NewObservedActionRepo(db, testLog(t))
	sess := seedSession(t, sessions)

	createdSteps, err := steps.Create(context.Background(), nil, []*types.DeclaredStep{
		{SessionID: sess.ID, TimestampSec: 30, Label: "gait", Confidence: 0.8},
	})
	if err != nil {
		t.Fatalf("steps.Create: %v", err)
	}
	stepID := createdSteps[0].ID

	_, err = actions.Create(context.Background(), nil, []*types.ObservedAction{{
		DeclaredStepID:  stepID,
		SessionID:       sess.ID,
		MotionPresent:   types.MotionPerformed,
		PoseMatch:       types.PosePartialMatch,
		MotionScore:     0.7,
		PoseScore:       0.5,
		ConfidenceScore: 0.6,
	}})
	if err != nil {
		t.Fatalf("actions.Create: %v", err)
	}

	got, err := actions.GetByDeclaredStep(context.Background(), nil, stepID)
	if err != nil {
		t.Fatalf("GetByDeclaredStep: %v", err)
	}
	if got == nil || got.MotionPresent != types.MotionPerformed {
		t.Fatalf("unexpected action %+v", got)
	}

	none, err := actions.GetByDeclaredStep(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("GetByDeclaredStep missing: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for missing step, got %+v", none)
	}
}

func TestDemeanorFlagRepo(t *testing.T) {
	db := testDB(t)
	sessions := NewExamSessionRepo(db, testLog(t))
	flags := NewDemeanorFlagRepo(db, testLog(t))
	sess := seedSession(t, sessions)

	_, err := flags.Create(context.Background(), nil, []*types.DemeanorFlag{
		{SessionID: sess.ID, TimestampSec: 200, FlagType: types.FlagInterruption, Severity: types.SeverityLow, Excerpt: "b"},
		{SessionID: sess.ID, TimestampSec: 50, FlagType: types.FlagNegativeTone, Severity: types.SeverityHigh, Excerpt: "a"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	out, err := flags.ListBySession(context.Background(), nil, sess.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(out) != 2 || out[0].TimestampSec != 50 {
		t.Fatalf("list not ordered: %+v", out)
	}
}
