package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// IdempotencyCleaner prunes processed idempotency keys past retention.
type IdempotencyCleaner struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleaner constructs an IdempotencyCleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retain := time.Duration(payload.RetainHours) * time.Hour
	if retain <= 0 {
		retain = 7 * 24 * time.Hour
	}
	if err := c.store.Cleanup(ctx, retain); err != nil {
		return err
	}
	c.logger.Info("idempotency cleanup finished", slog.Duration("retention", retain))
	return nil
}
