package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/types"
)

// DemeanorFlagRepo is append-only.
type DemeanorFlagRepo interface {
	Create(ctx context.Context, tx *gorm.DB, flags []*types.DemeanorFlag) ([]*types.DemeanorFlag, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DemeanorFlag, error)
}

type demeanorFlagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDemeanorFlagRepo(db *gorm.DB, baseLog *logger.Logger) DemeanorFlagRepo {
	return &demeanorFlagRepo{
		db:  db,
		log: baseLog.With("repo", "DemeanorFlagRepo"),
	}
}

func (r *demeanorFlagRepo) Create(ctx context.Context, tx *gorm.DB, flags []*types.DemeanorFlag) ([]*types.DemeanorFlag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(flags) == 0 {
		return []*types.DemeanorFlag{}, nil
	}
	now := time.Now()
	for _, f := range flags {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
	}
	if err := transaction.WithContext(ctx).Create(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

func (r *demeanorFlagRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.DemeanorFlag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DemeanorFlag
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
