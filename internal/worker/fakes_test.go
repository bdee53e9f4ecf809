package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

type taskKey struct {
	issue uuid.UUID
	email string
}

type memRow struct {
	task   storage.DeliveryTask
	locked *memTx
}

// memQueue is an in-memory stand-in for issue_delivery_queue. Row locks and
// SKIP LOCKED are emulated per memTx; writes become visible on Commit.
type memQueue struct {
	mu     sync.Mutex
	rows   map[taskKey]*memRow
	issues map[uuid.UUID]*storage.NewsletterContent
}

func newMemQueue() *memQueue {
	return &memQueue{
		rows:   make(map[taskKey]*memRow),
		issues: make(map[uuid.UUID]*storage.NewsletterContent),
	}
}

func (q *memQueue) publish(title string, emails ...string) uuid.UUID {
	id := uuid.New()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.issues[id] = &storage.NewsletterContent{
		IssueID:     id,
		Title:       title,
		TextContent: "text of " + title,
		HTMLContent: "<p>" + title + "</p>",
		PublishedAt: time.Now(),
	}
	for _, e := range emails {
		q.rows[taskKey{id, e}] = &memRow{task: storage.DeliveryTask{
			IssueID:         id,
			SubscriberEmail: e,
			ExecuteAfter:    time.Now().Add(-time.Second),
			Enabled:         true,
		}}
	}
	return id
}

func (q *memQueue) row(issue uuid.UUID, email string) (storage.DeliveryTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.rows[taskKey{issue, email}]
	if !ok {
		return storage.DeliveryTask{}, false
	}
	return r.task, true
}

func (q *memQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rows)
}

func (q *memQueue) Begin(_ context.Context, _ pgx.TxIsoLevel) (storage.Tx, error) {
	return &memTx{q: q}, nil
}

// eligible returns unlocked, enabled, due rows in queue order.
func (q *memQueue) eligible(filter func(storage.DeliveryTask) bool) []*memRow {
	now := time.Now()
	var out []*memRow
	for _, r := range q.rows {
		if r.locked != nil || !r.task.Enabled || r.task.ExecuteAfter.After(now) {
			continue
		}
		if filter != nil && !filter(r.task) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].task, out[j].task
		if !a.ExecuteAfter.Equal(b.ExecuteAfter) {
			return a.ExecuteAfter.Before(b.ExecuteAfter)
		}
		return a.SubscriberEmail < b.SubscriberEmail
	})
	return out
}

func (q *memQueue) AcquireNext(_ context.Context, db storage.DBTX) (uuid.UUID, bool, error) {
	tx := db.(*memTx)
	q.mu.Lock()
	defer q.mu.Unlock()
	rows := q.eligible(nil)
	if len(rows) == 0 {
		return uuid.Nil, false, nil
	}
	tx.lock(rows[0])
	return rows[0].task.IssueID, true, nil
}

func (q *memQueue) AcquireNextForIssue(_ context.Context, db storage.DBTX, issueID uuid.UUID) (*storage.DeliveryTask, error) {
	tx := db.(*memTx)
	q.mu.Lock()
	defer q.mu.Unlock()
	rows := q.eligible(func(t storage.DeliveryTask) bool { return t.IssueID == issueID })
	if len(rows) == 0 {
		return nil, nil
	}
	tx.lock(rows[0])
	t := rows[0].task
	return &t, nil
}

func (q *memQueue) ScheduleRetry(_ context.Context, db storage.DBTX, task *storage.DeliveryTask, delay time.Duration) error {
	key := taskKey{task.IssueID, task.SubscriberEmail}
	db.(*memTx).ops = append(db.(*memTx).ops, func() {
		r := q.rows[key]
		r.task.NRetries++
		r.task.ExecuteAfter = time.Now().Add(delay)
	})
	return nil
}

func (q *memQueue) Disable(_ context.Context, db storage.DBTX, task *storage.DeliveryTask) error {
	key := taskKey{task.IssueID, task.SubscriberEmail}
	db.(*memTx).ops = append(db.(*memTx).ops, func() { q.rows[key].task.Enabled = false })
	return nil
}

func (q *memQueue) Finalize(_ context.Context, db storage.DBTX, task *storage.DeliveryTask) error {
	key := taskKey{task.IssueID, task.SubscriberEmail}
	db.(*memTx).ops = append(db.(*memTx).ops, func() { delete(q.rows, key) })
	return nil
}

func (q *memQueue) GetContent(_ context.Context, _ storage.DBTX, issueID uuid.UUID) (*storage.NewsletterContent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.issues[issueID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (q *memQueue) Stats(_ context.Context, _ storage.DBTX, _ *uuid.UUID) (storage.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s storage.QueueStats
	for _, r := range q.rows {
		switch {
		case !r.task.Enabled:
			s.Disabled++
		case r.task.NRetries > 0:
			s.Pending++
			s.Retrying++
		default:
			s.Pending++
		}
	}
	return s, nil
}

// memTx is a unit of work on memQueue.
type memTx struct {
	q      *memQueue
	held   []*memRow
	ops    []func()
	closed bool
}

// lock must be called with q.mu held.
func (tx *memTx) lock(r *memRow) {
	r.locked = tx
	tx.held = append(tx.held, r)
}

func (tx *memTx) release() {
	for _, r := range tx.held {
		if r.locked == tx {
			r.locked = nil
		}
	}
	tx.held = nil
	tx.closed = true
}

func (tx *memTx) Commit(_ context.Context) error {
	tx.q.mu.Lock()
	defer tx.q.mu.Unlock()
	if tx.closed {
		return errors.New("commit on closed unit of work")
	}
	for _, op := range tx.ops {
		op()
	}
	tx.release()
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	tx.q.mu.Lock()
	defer tx.q.mu.Unlock()
	if !tx.closed {
		tx.release()
	}
	return nil
}

func (tx *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (tx *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (tx *memTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

// recordingProvider records sends and fails for addresses in failFor.
type recordingProvider struct {
	mu      sync.Mutex
	sent    []*provider.Message
	failFor map[string]error
	delay   time.Duration
}

func (p *recordingProvider) Send(ctx context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[msg.To]; ok {
		return nil, err
	}
	p.sent = append(p.sent, msg)
	return &provider.DeliveryResult{ProviderMessageID: msg.ID, Status: provider.StatusSent, Timestamp: time.Now()}, nil
}

func (p *recordingProvider) GetName() string                   { return "recording" }
func (p *recordingProvider) HealthCheck(_ context.Context) error { return nil }

func (p *recordingProvider) recipients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.To)
	}
	return out
}
