package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pool runs several delivery loops over one Worker. Loops share nothing but
// the connection pool; the row locks keep them from sending twice.
type Pool struct {
	worker          *Worker
	concurrency     int
	shutdownTimeout time.Duration
	log             zerolog.Logger
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewPool creates a Pool of concurrency loops.
func NewPool(w *Worker, concurrency int, shutdownTimeout time.Duration, log zerolog.Logger) *Pool {
	return &Pool{
		worker:          w,
		concurrency:     concurrency,
		shutdownTimeout: shutdownTimeout,
		log:             log,
	}
}

// Start launches the configured number of loops.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.concurrency {
		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			p.worker.Run(ctx, name)
		}(fmt.Sprintf("worker-%d", i))
	}

	p.log.Info().Int("concurrency", p.concurrency).Msg("worker pool started")
}

// Stop cancels every loop and waits up to the shutdown timeout for in-flight
// units of work to finish. Unfinished tasks stay in the queue.
func (p *Pool) Stop(ctx context.Context) {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped gracefully")
	case <-timer.C:
		p.log.Warn().Msg("worker pool shutdown timed out")
	case <-ctx.Done():
		p.log.Warn().Msg("worker pool shutdown interrupted")
	}
}
