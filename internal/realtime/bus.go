package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
)

// StageEvent is broadcast whenever a session moves to a new pipeline
// stage, so dashboards can follow processing without polling.
type StageEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Stage     string    `json:"stage"`
	At        time.Time `json:"at"`
}

// Bus fans stage events out over redis pub/sub. Consumers subscribe
// to the channel directly; this side only publishes.
type Bus interface {
	PublishStage(ctx context.Context, sessionID uuid.UUID, stage string)
	Close() error
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "cme_pipeline"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

// PublishStage is best-effort: a lost event only degrades liveness of
// dashboards, never the pipeline itself.
func (b *redisBus) PublishStage(ctx context.Context, sessionID uuid.UUID, stage string) {
	if b == nil || b.rdb == nil {
		return
	}
	raw, err := json.Marshal(StageEvent{SessionID: sessionID, Stage: stage, At: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("failed to publish stage event", "session_id", sessionID, "stage", stage, "error", err)
	}
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
