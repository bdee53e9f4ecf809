package idempotency

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type expirer interface {
	DeleteExpired(ctx context.Context, db storage.DBTX, retention time.Duration) (int64, error)
}

// Janitor deletes saved responses older than the retention window. A key
// whose record was swept behaves as unused again.
type Janitor struct {
	db        storage.DBTX
	repo      expirer
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
}

// NewJanitor creates a Janitor.
func NewJanitor(db storage.DBTX, repo expirer, retention, interval time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		db:        db,
		repo:      repo,
		retention: retention,
		interval:  interval,
		log:       log,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.log.Error().Err(err).Msg("idempotency sweep failed")
			}
		}
	}
}

// Sweep deletes expired records once and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.repo.DeleteExpired(ctx, j.db, j.retention)
	if err != nil {
		return 0, err
	}
	metrics.IdempotencyRecordsSweptTotal.Add(float64(n))
	if n > 0 {
		j.log.Info().Int64("deleted", n).Dur("retention", j.retention).Msg("expired idempotency records swept")
	}
	return n, nil
}
