package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-pool/internal/observability"
)

type purger interface {
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

// Janitor removes notifications past their retention window. Mongo already
// does this with TTL indexes; the other backends rely on the janitor.
type Janitor struct {
	store    purger
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewJanitor(store purger, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: store, interval: interval, logger: logger, now: time.Now}
}

// Start purges once, then on every tick until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("notification janitor started", "interval", j.interval)
	j.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("notification janitor stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("notification purge failed", "error", err)
	}
}

func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.store.PurgeExpiredNotifications(ctx, j.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.NotificationsPurged.Add(float64(n))
		j.logger.Info("expired notifications purged", "count", n)
	}
	return n, nil
}
