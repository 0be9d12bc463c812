package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/pkg/config"
	"github.com/marinedata/edna-platform/pkg/kafka"
	"github.com/marinedata/edna-platform/pkg/resilience"
)

// CacheInvalidator drops cached identification results after an index swap.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// NewReloadConsumer returns a consumer of the reference-updated topic that
// rebuilds the engine's index (with retry) and then invalidates the result
// cache. Rebuild failures leave the previous index serving.
func NewReloadConsumer(cfg config.KafkaConfig, eng *identify.Engine, cache CacheInvalidator) *kafka.Consumer {
	logger := slog.Default().With("component", "reference-reload")

	handler := func(ctx context.Context, key []byte, value []byte) error {
		var update ReferenceUpdate
		if err := json.Unmarshal(value, &update); err != nil {
			logger.Warn("ignoring malformed reference-updated message", "error", err)
			return nil
		}
		logger.Info("reference update received",
			"source", update.Source,
			"sequences", update.Sequences,
			"updated_at", update.UpdatedAt,
		)

		err := resilience.Retry(ctx, "reference-rebuild", resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
		}, func() error {
			return eng.Rebuild(ctx)
		})
		if err != nil {
			logger.Error("index rebuild failed, keeping previous index", "error", err)
			return err
		}

		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				// Stale entries age out via TTL and are keyed by build
				// ID, so this is not fatal.
				logger.Warn("cache invalidation failed", "error", err)
			}
		}
		return nil
	}

	return kafka.NewConsumer(cfg, cfg.Topics.ReferenceUpdated, handler)
}
