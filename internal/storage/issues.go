package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NewsletterContent is the immutable body of a published issue.
type NewsletterContent struct {
	IssueID     uuid.UUID
	Title       string
	TextContent string
	HTMLContent string
	PublishedAt time.Time
}

// IssueRepository reads and writes newsletter_issues.
type IssueRepository struct{}

// NewIssueRepository returns an IssueRepository.
func NewIssueRepository() *IssueRepository {
	return &IssueRepository{}
}

const insertIssue = `
INSERT INTO newsletter_issues (newsletter_issue_id, title, text_content, html_content, published_at)
VALUES ($1, $2, $3, $4, now())`

// InsertIssue stores a new issue and returns its generated id.
func (r *IssueRepository) InsertIssue(ctx context.Context, db DBTX, title, textContent, htmlContent string) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := db.Exec(ctx, insertIssue, id, title, textContent, htmlContent); err != nil {
		return uuid.Nil, unexpected("insert newsletter issue", err)
	}
	return id, nil
}

const getContent = `
SELECT newsletter_issue_id, title, text_content, html_content, published_at
FROM newsletter_issues
WHERE newsletter_issue_id = $1`

// GetContent loads an issue. It returns ErrNotFound when the id is unknown.
func (r *IssueRepository) GetContent(ctx context.Context, db DBTX, issueID uuid.UUID) (*NewsletterContent, error) {
	var c NewsletterContent
	err := db.QueryRow(ctx, getContent, issueID).Scan(
		&c.IssueID, &c.Title, &c.TextContent, &c.HTMLContent, &c.PublishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unexpected("get newsletter content", err)
	}
	return &c, nil
}
