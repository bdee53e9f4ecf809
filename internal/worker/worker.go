package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// Outcome is the result of one outer iteration of the delivery loop.
type Outcome int

const (
	// OutcomeNothingFound means no eligible task exists; the loop idles.
	OutcomeNothingFound Outcome = iota
	// OutcomeCompleted means an issue was drained; the loop polls again at once.
	OutcomeCompleted
	// OutcomeError means a transport or database failure; the loop backs off briefly.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNothingFound:
		return "nothing_found"
	case OutcomeCompleted:
		return "completed"
	default:
		return "error"
	}
}

// Transactor opens units of work.
type Transactor interface {
	Begin(ctx context.Context, iso pgx.TxIsoLevel) (storage.Tx, error)
}

type taskQueue interface {
	AcquireNext(ctx context.Context, db storage.DBTX) (uuid.UUID, bool, error)
	AcquireNextForIssue(ctx context.Context, db storage.DBTX, issueID uuid.UUID) (*storage.DeliveryTask, error)
	ScheduleRetry(ctx context.Context, db storage.DBTX, task *storage.DeliveryTask, delay time.Duration) error
	Disable(ctx context.Context, db storage.DBTX, task *storage.DeliveryTask) error
	Finalize(ctx context.Context, db storage.DBTX, task *storage.DeliveryTask) error
}

type contentSource interface {
	GetContent(ctx context.Context, db storage.DBTX, issueID uuid.UUID) (*storage.NewsletterContent, error)
}

// errDeliveryFailed wraps a transport error after the task has been
// rescheduled or disabled; it ends the current issue pass.
var errDeliveryFailed = errors.New("delivery failed")

// Worker drains the delivery queue. A single Worker may back several loops;
// each loop opens its own units of work.
type Worker struct {
	db     Transactor
	queue  taskQueue
	issues contentSource
	sender provider.Provider
	retry  *queue.RetryStrategy
	wake   *queue.Wakeup
	from   string
	config queue.Config
	log    zerolog.Logger
}

// NewWorker creates a Worker. wake may be nil, in which case idle loops only
// poll on the IdleWait timer.
func NewWorker(
	db Transactor,
	tasks taskQueue,
	issues contentSource,
	sender provider.Provider,
	retry *queue.RetryStrategy,
	wake *queue.Wakeup,
	from string,
	cfg queue.Config,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		db:     db,
		queue:  tasks,
		issues: issues,
		sender: sender,
		retry:  retry,
		wake:   wake,
		from:   from,
		config: cfg,
		log:    log,
	}
}

// Run executes the delivery loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, name string) {
	loop := *w
	loop.log = w.log.With().Str("worker", name).Logger()
	loop.log.Info().Msg("worker started")

	for {
		if ctx.Err() != nil {
			loop.log.Info().Msg("worker stopping")
			return
		}

		var wakeC <-chan struct{}
		if loop.wake != nil {
			wakeC = loop.wake.C()
		}

		outcome, err := loop.TryExecute(ctx)
		if ctx.Err() != nil {
			loop.log.Info().Msg("worker stopping")
			return
		}
		metrics.WorkerIterationsTotal.WithLabelValues(outcome.String()).Inc()

		switch outcome {
		case OutcomeCompleted:
			continue
		case OutcomeNothingFound:
			loop.sleep(ctx, loop.config.IdleWait, wakeC)
		case OutcomeError:
			loop.log.Error().Err(err).Msg("delivery iteration failed")
			loop.sleep(ctx, loop.config.ErrorWait, nil)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration, wakeC <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wakeC:
		metrics.WorkerWakeupsTotal.Inc()
	}
}

// TryExecute runs one outer iteration: pick an issue with eligible work, then
// deliver its tasks one unit of work at a time until the issue is drained or
// a send fails.
func (w *Worker) TryExecute(ctx context.Context) (Outcome, error) {
	content, err := w.pickIssue(ctx)
	if err != nil {
		return OutcomeError, err
	}
	if content == nil {
		return OutcomeNothingFound, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return OutcomeError, err
		}
		drained, err := w.deliverNext(ctx, content)
		if err != nil {
			return OutcomeError, err
		}
		if drained {
			return OutcomeCompleted, nil
		}
	}
}

// pickIssue finds an issue with eligible work and loads its content. The
// lock taken by AcquireNext is released on return so the per-task units of
// work can claim that row.
func (w *Worker) pickIssue(ctx context.Context) (*storage.NewsletterContent, error) {
	tx, err := w.db.Begin(ctx, pgx.ReadCommitted)
	if err != nil {
		return nil, err
	}
	defer rollback(ctx, tx)

	issueID, ok, err := w.queue.AcquireNext(ctx, tx)
	if err != nil || !ok {
		return nil, err
	}

	content, err := w.issues.GetContent(ctx, tx, issueID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.log.Error().Stringer("issue_id", issueID).Msg("queued tasks reference a missing newsletter issue")
		}
		return nil, fmt.Errorf("load issue %s: %w", issueID, err)
	}
	return content, nil
}

// deliverNext resolves exactly one task of the issue and commits the result.
// drained is true when the issue has no more eligible, unlocked tasks.
func (w *Worker) deliverNext(ctx context.Context, content *storage.NewsletterContent) (drained bool, err error) {
	tx, err := w.db.Begin(ctx, pgx.ReadCommitted)
	if err != nil {
		return false, err
	}
	defer rollback(ctx, tx)

	task, err := w.queue.AcquireNextForIssue(ctx, tx, content.IssueID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return true, nil
	}

	log := w.log.With().
		Stringer("issue_id", task.IssueID).
		Str("subscriber", task.SubscriberEmail).
		Int("n_retries", task.NRetries).
		Logger()

	if err := ValidateRecipient(task.SubscriberEmail); err != nil {
		log.Warn().Err(err).Msg("skipping invalid subscriber address, disabling task")
		if err := w.queue.Disable(ctx, tx, task); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		metrics.DeliveryTasksTotal.WithLabelValues("disabled").Inc()
		return false, nil
	}

	sendErr := w.send(ctx, content, task)
	if sendErr == nil {
		if err := w.queue.Finalize(ctx, tx, task); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		metrics.DeliveryTasksTotal.WithLabelValues("sent").Inc()
		log.Debug().Msg("newsletter delivered")
		return false, nil
	}

	// Shutting down: leave the task untouched so it stays eligible.
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	outcome := "retried"
	if w.retry.ShouldRetry(task.NRetries) {
		delay := w.retry.NextBackoff(task.NRetries)
		if err := w.queue.ScheduleRetry(ctx, tx, task, delay); err != nil {
			return false, err
		}
		log.Error().Err(sendErr).Dur("retry_in", delay).Msg("newsletter send failed, retry scheduled")
	} else {
		outcome = "disabled"
		if err := w.queue.Disable(ctx, tx, task); err != nil {
			return false, err
		}
		log.Error().Err(sendErr).Int("max_retries", w.retry.MaxRetries).Msg("newsletter send failed, retry budget spent, task disabled")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	metrics.DeliveryTasksTotal.WithLabelValues(outcome).Inc()

	return false, fmt.Errorf("%w for %s: %w", errDeliveryFailed, task.SubscriberEmail, sendErr)
}

func (w *Worker) send(ctx context.Context, content *storage.NewsletterContent, task *storage.DeliveryTask) error {
	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	defer cancel()

	name := w.sender.GetName()
	start := time.Now()
	_, err := w.sender.Send(sendCtx, &provider.Message{
		ID:       task.IssueID.String() + "/" + task.SubscriberEmail,
		From:     w.from,
		To:       task.SubscriberEmail,
		Subject:  content.Title,
		TextBody: content.TextContent,
		HTMLBody: content.HTMLContent,
		Headers: map[string]string{
			"X-Newsletter-Issue": task.IssueID.String(),
		},
	})
	metrics.DeliverySendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeliverySendFailuresTotal.WithLabelValues(name, provider.Class(err)).Inc()
	}
	return err
}

// rollback ends a unit of work that was not committed. It must run even when
// ctx is already cancelled.
func rollback(ctx context.Context, tx storage.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}
