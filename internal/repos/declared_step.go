package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// DeclaredStepRepo is append-only: no update or delete methods exist on
// purpose. ClipURI is written once by the segment extractor before the
// step row is created, never afterward.
type DeclaredStepRepo interface {
	Create(ctx context.Context, tx *gorm.DB, steps []*types.DeclaredStep) ([]*types.DeclaredStep, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DeclaredStep, error)
	SetClipURI(ctx context.Context, tx *gorm.DB, stepID uuid.UUID, clipURI string) error
}

type declaredStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeclaredStepRepo(db *gorm.DB, baseLog *logger.Logger) DeclaredStepRepo {
	return &declaredStepRepo{
		db:  db,
		log: baseLog.With("repo", "DeclaredStepRepo"),
	}
}

func (r *declaredStepRepo) Create(ctx context.Context, tx *gorm.DB, steps []*types.DeclaredStep) ([]*types.DeclaredStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(steps) == 0 {
		return []*types.DeclaredStep{}, nil
	}
	now := time.Now()
	for _, s := range steps {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	}
	if err := transaction.WithContext(ctx).Create(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *declaredStepRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DeclaredStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DeclaredStep
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp_sec ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *declaredStepRepo) SetClipURI(ctx context.Context, tx *gorm.DB, stepID uuid.UUID, clipURI string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if stepID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.DeclaredStep{}).
		Where("id = ? AND (clip_uri IS NULL OR clip_uri = '')", stepID).
		Update("clip_uri", clipURI).Error
}
