package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DeliveryTask is one (issue, subscriber) pair of pending work.
type DeliveryTask struct {
	IssueID         uuid.UUID
	SubscriberEmail string
	NRetries        int
	ExecuteAfter    time.Time
	Enabled         bool
}

// EnqueueStatus tells whether Enqueue inserted any rows.
type EnqueueStatus int

const (
	// EnqueueUnchanged means there were no confirmed subscribers.
	EnqueueUnchanged EnqueueStatus = iota
	// EnqueueEnqueued means at least one task was inserted.
	EnqueueEnqueued
)

func (s EnqueueStatus) String() string {
	if s == EnqueueEnqueued {
		return "enqueued"
	}
	return "unchanged"
}

// EnqueueResult reports the outcome of Enqueue.
type EnqueueResult struct {
	Status EnqueueStatus
	Tasks  int64
}

// QueueStats summarises the queue rows for one issue.
type QueueStats struct {
	Pending  int64
	Retrying int64
	Disabled int64
}

// QueueRepository persists delivery tasks in issue_delivery_queue.
// Every method runs inside the unit of work passed by the caller.
type QueueRepository struct{}

// NewQueueRepository returns a QueueRepository.
func NewQueueRepository() *QueueRepository {
	return &QueueRepository{}
}

const enqueueTasks = `
INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
SELECT $1, email
FROM subscriptions
WHERE status = 'confirmed'`

// Enqueue creates one task per currently confirmed subscriber. Zero
// subscribers is reported as EnqueueUnchanged, not as an error.
func (r *QueueRepository) Enqueue(ctx context.Context, db DBTX, issueID uuid.UUID) (EnqueueResult, error) {
	tag, err := db.Exec(ctx, enqueueTasks, issueID)
	if err != nil {
		return EnqueueResult{}, unexpected("enqueue delivery tasks", err)
	}
	n := tag.RowsAffected()
	if n == 0 {
		return EnqueueResult{Status: EnqueueUnchanged}, nil
	}
	return EnqueueResult{Status: EnqueueEnqueued, Tasks: n}, nil
}

const acquireNext = `
SELECT newsletter_issue_id
FROM issue_delivery_queue
WHERE enabled AND execute_after <= now()
ORDER BY execute_after, newsletter_issue_id, subscriber_email
FOR UPDATE SKIP LOCKED
LIMIT 1`

// AcquireNext locks one eligible task and returns its issue id. ok is false
// when nothing is eligible or every eligible row is locked by someone else.
func (r *QueueRepository) AcquireNext(ctx context.Context, db DBTX) (issueID uuid.UUID, ok bool, err error) {
	err = db.QueryRow(ctx, acquireNext).Scan(&issueID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, unexpected("acquire next task", err)
	}
	return issueID, true, nil
}

const acquireNextForIssue = `
SELECT newsletter_issue_id, subscriber_email, n_retries, execute_after, enabled
FROM issue_delivery_queue
WHERE newsletter_issue_id = $1 AND enabled AND execute_after <= now()
ORDER BY execute_after, subscriber_email
FOR UPDATE SKIP LOCKED
LIMIT 1`

// AcquireNextForIssue locks the next eligible task of one issue. It returns
// nil when the issue has no more eligible, unlocked tasks.
func (r *QueueRepository) AcquireNextForIssue(ctx context.Context, db DBTX, issueID uuid.UUID) (*DeliveryTask, error) {
	var t DeliveryTask
	err := db.QueryRow(ctx, acquireNextForIssue, issueID).Scan(
		&t.IssueID, &t.SubscriberEmail, &t.NRetries, &t.ExecuteAfter, &t.Enabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unexpected("acquire next task for issue", err)
	}
	return &t, nil
}

const scheduleRetry = `
UPDATE issue_delivery_queue
SET n_retries = n_retries + 1,
    execute_after = now() + make_interval(secs => $3)
WHERE newsletter_issue_id = $1 AND subscriber_email = $2`

// ScheduleRetry bumps n_retries and pushes execute_after to now()+delay.
// The task was only eligible because execute_after <= now(), so a positive
// delay always moves execute_after strictly forward.
func (r *QueueRepository) ScheduleRetry(ctx context.Context, db DBTX, task *DeliveryTask, delay time.Duration) error {
	if delay <= 0 {
		return fmt.Errorf("schedule retry: delay must be positive, got %s", delay)
	}
	tag, err := db.Exec(ctx, scheduleRetry, task.IssueID, task.SubscriberEmail, delay.Seconds())
	if err != nil {
		return unexpected("schedule retry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule retry %s/%s: %w", task.IssueID, task.SubscriberEmail, ErrNotFound)
	}
	return nil
}

const disableTask = `
UPDATE issue_delivery_queue
SET enabled = FALSE
WHERE newsletter_issue_id = $1 AND subscriber_email = $2`

// Disable quarantines a task. The row stays for audit and is never acquired again.
func (r *QueueRepository) Disable(ctx context.Context, db DBTX, task *DeliveryTask) error {
	tag, err := db.Exec(ctx, disableTask, task.IssueID, task.SubscriberEmail)
	if err != nil {
		return unexpected("disable task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disable %s/%s: %w", task.IssueID, task.SubscriberEmail, ErrNotFound)
	}
	return nil
}

const finalizeTask = `
DELETE FROM issue_delivery_queue
WHERE newsletter_issue_id = $1 AND subscriber_email = $2`

// Finalize removes a delivered task.
func (r *QueueRepository) Finalize(ctx context.Context, db DBTX, task *DeliveryTask) error {
	tag, err := db.Exec(ctx, finalizeTask, task.IssueID, task.SubscriberEmail)
	if err != nil {
		return unexpected("finalize task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize %s/%s: %w", task.IssueID, task.SubscriberEmail, ErrNotFound)
	}
	return nil
}

const listDisabled = `
SELECT newsletter_issue_id, subscriber_email, n_retries, execute_after, enabled
FROM issue_delivery_queue
WHERE newsletter_issue_id = $1 AND NOT enabled
ORDER BY subscriber_email`

// ListDisabled returns the quarantined tasks of an issue.
func (r *QueueRepository) ListDisabled(ctx context.Context, db DBTX, issueID uuid.UUID) ([]DeliveryTask, error) {
	rows, err := db.Query(ctx, listDisabled, issueID)
	if err != nil {
		return nil, unexpected("list disabled tasks", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeliveryTask, error) {
		var t DeliveryTask
		err := row.Scan(&t.IssueID, &t.SubscriberEmail, &t.NRetries, &t.ExecuteAfter, &t.Enabled)
		return t, err
	})
	if err != nil {
		return nil, unexpected("scan disabled tasks", err)
	}
	return tasks, nil
}

const reenableTasks = `
UPDATE issue_delivery_queue
SET enabled = TRUE, n_retries = 0, execute_after = now()
WHERE newsletter_issue_id = $1
  AND NOT enabled
  AND (cardinality($2::text[]) = 0 OR subscriber_email = ANY($2::text[]))`

// Reenable puts disabled tasks back in rotation with a fresh retry budget.
// An empty emails slice re-enables every disabled task of the issue.
func (r *QueueRepository) Reenable(ctx context.Context, db DBTX, issueID uuid.UUID, emails []string) (int64, error) {
	if emails == nil {
		emails = []string{}
	}
	tag, err := db.Exec(ctx, reenableTasks, issueID, emails)
	if err != nil {
		return 0, unexpected("re-enable tasks", err)
	}
	return tag.RowsAffected(), nil
}

const queueStats = `
SELECT
    count(*) FILTER (WHERE enabled),
    count(*) FILTER (WHERE enabled AND n_retries > 0),
    count(*) FILTER (WHERE NOT enabled)
FROM issue_delivery_queue
WHERE $1::uuid IS NULL OR newsletter_issue_id = $1`

// Stats counts queue rows for one issue, or for the whole queue when
// issueID is nil.
func (r *QueueRepository) Stats(ctx context.Context, db DBTX, issueID *uuid.UUID) (QueueStats, error) {
	var s QueueStats
	if err := db.QueryRow(ctx, queueStats, issueID).Scan(&s.Pending, &s.Retrying, &s.Disabled); err != nil {
		return QueueStats{}, unexpected("queue stats", err)
	}
	return s, nil
}
