// Package newsletter publishes issues: it stores the content, enqueues one
// delivery task per confirmed subscriber and caches the response under the
// caller's idempotency key, all in one unit of work.
package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/idempotency"
	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// ErrInvalidIssue is returned when a publish request is missing content.
var ErrInvalidIssue = errors.New("invalid newsletter issue")

// ValidationError lists the issue fields that were blank. It matches
// ErrInvalidIssue with errors.Is.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrInvalidIssue, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidIssue }

// Issue is the content of a publish request.
type Issue struct {
	Title       string `json:"title"`
	TextContent string `json:"text_content"`
	HTMLContent string `json:"html_content"`
}

// Validate checks that every part of the issue is present.
func (i Issue) Validate() error {
	var missing []string
	if strings.TrimSpace(i.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(i.TextContent) == "" {
		missing = append(missing, "text_content")
	}
	if strings.TrimSpace(i.HTMLContent) == "" {
		missing = append(missing, "html_content")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// PublishResponse is the JSON body returned for an accepted publish.
type PublishResponse struct {
	IssueID uuid.UUID `json:"issue_id"`
	Status  string    `json:"status"`
	Tasks   int64     `json:"tasks"`
}

// Result of a Publish call.
type Result struct {
	Response *storage.SavedResponse
	// Replayed is true when the response was read back from an earlier
	// request with the same key.
	Replayed bool
}

// Transactor opens units of work.
type Transactor interface {
	Begin(ctx context.Context, iso pgx.TxIsoLevel) (storage.Tx, error)
}

type issueWriter interface {
	InsertIssue(ctx context.Context, db storage.DBTX, title, textContent, htmlContent string) (uuid.UUID, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, db storage.DBTX, issueID uuid.UUID) (storage.EnqueueResult, error)
}

type responseStore interface {
	GetSavedResponse(ctx context.Context, db storage.DBTX, userID uuid.UUID, key string) (*storage.SavedResponse, error)
	SaveResponse(ctx context.Context, db storage.DBTX, userID uuid.UUID, key string, resp *storage.SavedResponse) error
}

// Publisher orchestrates the publish unit of work.
type Publisher struct {
	db        Transactor
	issues    issueWriter
	queue     enqueuer
	responses responseStore
	notifier  queue.Notifier
	log       zerolog.Logger
}

// NewPublisher creates a Publisher. A nil notifier disables wake-ups.
func NewPublisher(db Transactor, issues issueWriter, q enqueuer, responses responseStore, notifier queue.Notifier, log zerolog.Logger) *Publisher {
	if notifier == nil {
		notifier = queue.NopNotifier{}
	}
	return &Publisher{
		db:        db,
		issues:    issues,
		queue:     q,
		responses: responses,
		notifier:  notifier,
		log:       log,
	}
}

// Publish stores and enqueues issue unless key was already used by userID,
// in which case the saved response is returned untouched. The issue is
// validated only for first-time keys.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, key idempotency.Key, issue Issue) (*Result, error) {
	tx, err := p.db.Begin(ctx, pgx.ReadCommitted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	saved, err := p.responses.GetSavedResponse(ctx, tx, userID, key.String())
	if err != nil {
		return nil, err
	}
	if saved != nil {
		metrics.PublishRequestsTotal.WithLabelValues("replayed").Inc()
		return &Result{Response: saved, Replayed: true}, nil
	}

	if err := issue.Validate(); err != nil {
		return nil, err
	}

	issueID, err := p.issues.InsertIssue(ctx, tx, issue.Title, issue.TextContent, issue.HTMLContent)
	if err != nil {
		return nil, err
	}
	enqueued, err := p.queue.Enqueue(ctx, tx, issueID)
	if err != nil {
		return nil, err
	}

	resp, err := buildResponse(issueID, enqueued)
	if err != nil {
		return nil, err
	}

	if err := p.responses.SaveResponse(ctx, tx, userID, key.String(), resp); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent request with the same key committed first.
			_ = tx.Rollback(ctx)
			return p.replayCommitted(ctx, userID, key)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	status := statusFor(enqueued)
	metrics.PublishRequestsTotal.WithLabelValues(status).Inc()
	p.log.Info().
		Stringer("issue_id", issueID).
		Stringer("user_id", userID).
		Str("status", status).
		Int64("tasks", enqueued.Tasks).
		Msg("newsletter issue published")

	if enqueued.Status == storage.EnqueueEnqueued {
		if err := p.notifier.Notify(ctx, issueID); err != nil {
			p.log.Warn().Err(err).Stringer("issue_id", issueID).Msg("failed to notify workers")
		}
	}

	return &Result{Response: resp}, nil
}

// Saved returns the response stored for key by userID, or nil when the key
// has not been used.
func (p *Publisher) Saved(ctx context.Context, userID uuid.UUID, key idempotency.Key) (*storage.SavedResponse, error) {
	tx, err := p.db.Begin(ctx, pgx.ReadCommitted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	return p.responses.GetSavedResponse(ctx, tx, userID, key.String())
}

func (p *Publisher) replayCommitted(ctx context.Context, userID uuid.UUID, key idempotency.Key) (*Result, error) {
	saved, err := p.Saved(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("response for key %q vanished after conflict: %w", key, storage.ErrNotFound)
	}
	metrics.PublishRequestsTotal.WithLabelValues("conflict_replayed").Inc()
	return &Result{Response: saved, Replayed: true}, nil
}

func statusFor(r storage.EnqueueResult) string {
	if r.Status == storage.EnqueueEnqueued {
		return "enqueued"
	}
	return "no_subscribers"
}

func buildResponse(issueID uuid.UUID, r storage.EnqueueResult) (*storage.SavedResponse, error) {
	body, err := json.Marshal(PublishResponse{
		IssueID: issueID,
		Status:  statusFor(r),
		Tasks:   r.Tasks,
	})
	if err != nil {
		return nil, fmt.Errorf("encode publish response: %w", err)
	}

	rec := idempotency.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusAccepted)
	_, _ = rec.Write(body)
	return rec.Response(), nil
}
