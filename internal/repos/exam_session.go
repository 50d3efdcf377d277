package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

type ExamSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.ExamSession) (*types.ExamSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExamSession, error)
	// UpdateGuarded applies updates only when the persisted version still
	// matches expectedVersion, incrementing it in the same statement. A
	// zero-row update means a concurrent writer won; callers re-read and
	// retry.
	UpdateGuarded(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error
}

type examSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExamSessionRepo(db *gorm.DB, baseLog *logger.Logger) ExamSessionRepo {
	return &examSessionRepo{
		db:  db,
		log: baseLog.With("repo", "ExamSessionRepo"),
	}
}

func (r *examSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.ExamSession) (*types.ExamSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if session == nil {
		return nil, cmerr.ErrInvalidArgument
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *examSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExamSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, cmerr.ErrInvalidArgument
	}
	var session types.ExamSession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cmerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *examSessionRepo) UpdateGuarded(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return cmerr.ErrInvalidArgument
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = expectedVersion + 1
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.ExamSession{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &cmerr.ConcurrencyConflict{SessionID: id.String(), ExpectedVersion: expectedVersion}
	}
	return nil
}
