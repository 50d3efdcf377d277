package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/repos"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// Machine applies stage transitions to a session under optimistic
// concurrency. Concurrent pipeline branches race on the same row, so
// every write is version-guarded and conflicts are resolved by
// re-reading: if another writer already moved the session at or past
// the target, the call is a successful no-op.
type Machine interface {
	Advance(ctx context.Context, sessionID uuid.UUID, target string) (*types.ExamSession, error)
	Fail(ctx context.Context, sessionID uuid.UUID, reason string) (*types.ExamSession, error)
	SetSummary(ctx context.Context, sessionID uuid.UUID, summary []byte) (*types.ExamSession, error)
}

type machine struct {
	sessions repos.ExamSessionRepo
	log      *logger.Logger
}

// How many conflict-and-reread rounds before giving up. Conflicts come
// from a handful of sibling goroutines, so contention is shallow.
const maxConflictRetries = 5

func NewMachine(sessions repos.ExamSessionRepo, log *logger.Logger) Machine {
	return &machine{sessions: sessions, log: log.With("service", "state_machine")}
}

func (m *machine) Advance(ctx context.Context, sessionID uuid.UUID, target string) (*types.ExamSession, error) {
	targetRank, ok := StageRank(target)
	if !ok {
		return nil, &cmerr.PreconditionError{Op: "advance", Reason: fmt.Sprintf("unknown stage %q", target)}
	}

	var conflict *cmerr.ConcurrencyConflict
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		sess, err := m.sessions.GetByID(ctx, nil, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Stage == StageError {
			return nil, &cmerr.PreconditionError{Op: "advance", Reason: "session is in error state"}
		}
		curRank, ok := StageRank(sess.Stage)
		if !ok {
			return nil, &cmerr.DataIntegrityError{Op: "advance", Err: fmt.Errorf("session has unknown stage %q", sess.Stage)}
		}
		if curRank >= targetRank {
			return sess, nil
		}

		updates := map[string]interface{}{"stage": target}
		if target == StageCompleted {
			updates["status"] = types.SessionStatusCompleted
		}
		err = m.sessions.UpdateGuarded(ctx, nil, sessionID, sess.Version, updates)
		if err == nil {
			m.log.Info("session advanced", "session_id", sessionID, "from", sess.Stage, "to", target)
			return m.sessions.GetByID(ctx, nil, sessionID)
		}
		if !errors.As(err, &conflict) {
			return nil, err
		}
		m.log.Debug("version conflict on advance, re-reading", "session_id", sessionID, "target", target)
	}
	return nil, conflict
}

func (m *machine) Fail(ctx context.Context, sessionID uuid.UUID, reason string) (*types.ExamSession, error) {
	var conflict *cmerr.ConcurrencyConflict
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		sess, err := m.sessions.GetByID(ctx, nil, sessionID)
		if err != nil {
			return nil, err
		}
		if Terminal(sess.Stage) {
			return sess, nil
		}
		updates := map[string]interface{}{
			"stage":          StageError,
			"status":         types.SessionStatusError,
			"failure_reason": reason,
		}
		err = m.sessions.UpdateGuarded(ctx, nil, sessionID, sess.Version, updates)
		if err == nil {
			m.log.Warn("session failed", "session_id", sessionID, "reason", reason)
			return m.sessions.GetByID(ctx, nil, sessionID)
		}
		if !errors.As(err, &conflict) {
			return nil, err
		}
	}
	return nil, conflict
}

// SetSummary writes the compiled report roll-up. The session must not
// have errored out in the meantime.
func (m *machine) SetSummary(ctx context.Context, sessionID uuid.UUID, summary []byte) (*types.ExamSession, error) {
	var conflict *cmerr.ConcurrencyConflict
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		sess, err := m.sessions.GetByID(ctx, nil, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Stage == StageError {
			return nil, &cmerr.PreconditionError{Op: "set_summary", Reason: "session is in error state"}
		}
		err = m.sessions.UpdateGuarded(ctx, nil, sessionID, sess.Version, map[string]interface{}{"summary": summary})
		if err == nil {
			return m.sessions.GetByID(ctx, nil, sessionID)
		}
		if !errors.As(err, &conflict) {
			return nil, err
		}
	}
	return nil, conflict
}
