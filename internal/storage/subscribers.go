package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// SubscriberRepository exposes the confirmed-subscriber snapshot used by
// enqueue. Sign-up and confirmation live outside this service.
type SubscriberRepository struct{}

// NewSubscriberRepository returns a SubscriberRepository.
func NewSubscriberRepository() *SubscriberRepository {
	return &SubscriberRepository{}
}

const confirmedEmails = `
SELECT email FROM subscriptions WHERE status = 'confirmed' ORDER BY email`

// ConfirmedEmails lists the addresses that Enqueue would snapshot right now.
func (r *SubscriberRepository) ConfirmedEmails(ctx context.Context, db DBTX) ([]string, error) {
	rows, err := db.Query(ctx, confirmedEmails)
	if err != nil {
		return nil, unexpected("list confirmed subscribers", err)
	}
	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unexpected("scan confirmed subscribers", err)
	}
	return emails, nil
}
