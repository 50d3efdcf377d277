package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// ObservedActionRepo is append-only.
type ObservedActionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, actions []*types.ObservedAction) ([]*types.ObservedAction, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.ObservedAction, error)
	GetByDeclaredStep(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*types.ObservedAction, error)
}

type observedActionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObservedActionRepo(db *gorm.DB, baseLog *logger.Logger) ObservedActionRepo {
	return &observedActionRepo{
		db:  db,
		log: baseLog.With("repo", "ObservedActionRepo"),
	}
}

func (r *observedActionRepo) Create(ctx context.Context, tx *gorm.DB, actions []*types.ObservedAction) ([]*types.ObservedAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(actions) == 0 {
		return []*types.ObservedAction{}, nil
	}
	now := time.Now()
	for _, a := range actions {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
	}
	if err := transaction.WithContext(ctx).Create(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *observedActionRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.ObservedAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ObservedAction
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *observedActionRepo) GetByDeclaredStep(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*types.ObservedAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if stepID == uuid.Nil {
		return nil, nil
	}
	var action types.ObservedAction
	err := transaction.WithContext(ctx).
		Where("declared_step_id = ?", stepID).
		Limit(1).
		Find(&action).Error
	if err != nil {
		return nil, err
	}
	if action.ID == uuid.Nil {
		return nil, nil
	}
	return &action, nil
}
