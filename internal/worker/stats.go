package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type queueStatter interface {
	Stats(ctx context.Context, db storage.DBTX, issueID *uuid.UUID) (storage.QueueStats, error)
}

// StatsRefresher periodically copies queue depth and pool usage into the
// Prometheus gauges.
type StatsRefresher struct {
	pool     *pgxpool.Pool
	db       storage.DBTX
	repo     queueStatter
	interval time.Duration
	log      zerolog.Logger
}

// NewStatsRefresher creates a StatsRefresher. pool may be nil, in which case
// only the queue gauges are updated.
func NewStatsRefresher(pool *pgxpool.Pool, db storage.DBTX, repo queueStatter, interval time.Duration, log zerolog.Logger) *StatsRefresher {
	return &StatsRefresher{
		pool:     pool,
		db:       db,
		repo:     repo,
		interval: interval,
		log:      log,
	}
}

// Run refreshes the gauges immediately and then on every tick until ctx is
// cancelled.
func (s *StatsRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh updates the gauges once.
func (s *StatsRefresher) Refresh(ctx context.Context) {
	stats, err := s.repo.Stats(ctx, s.db, nil)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("failed to read queue stats")
		}
		return
	}
	metrics.QueueDepth.WithLabelValues("pending").Set(float64(stats.Pending))
	metrics.QueueDepth.WithLabelValues("retrying").Set(float64(stats.Retrying))
	metrics.QueueDepth.WithLabelValues("disabled").Set(float64(stats.Disabled))

	if s.pool != nil {
		st := s.pool.Stat()
		metrics.DBConnectionsActive.Set(float64(st.AcquiredConns()))
		metrics.DBConnectionsIdle.Set(float64(st.IdleConns()))
	}
}
