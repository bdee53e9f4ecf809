package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HeaderPair is one response header in its original order. Value is raw
// bytes so non-UTF-8 header values survive the JSONB round trip.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// SavedResponse is the HTTP response cached under an idempotency key.
type SavedResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
	CreatedAt  time.Time
}

// IdempotencyRepository stores publish responses keyed by (user_id, key).
type IdempotencyRepository struct{}

// NewIdempotencyRepository returns an IdempotencyRepository.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{}
}

const getSavedResponse = `
SELECT response_status_code, response_headers, response_body, created_at
FROM idempotency
WHERE user_id = $1 AND idempotency_key = $2`

// GetSavedResponse returns the cached response, or nil when the key is unused.
func (r *IdempotencyRepository) GetSavedResponse(ctx context.Context, db DBTX, userID uuid.UUID, key string) (*SavedResponse, error) {
	var (
		resp    SavedResponse
		status  int16
		headers []byte
	)
	err := db.QueryRow(ctx, getSavedResponse, userID, key).Scan(&status, &headers, &resp.Body, &resp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unexpected("get saved response", err)
	}
	if err := json.Unmarshal(headers, &resp.Headers); err != nil {
		return nil, unexpected("decode saved response headers", err)
	}
	resp.StatusCode = int(status)
	return &resp, nil
}

const saveResponse = `
INSERT INTO idempotency (user_id, idempotency_key, response_status_code, response_headers, response_body, created_at)
VALUES ($1, $2, $3, $4, $5, now())`

// SaveResponse inserts the response inside the caller's unit of work. A
// second save for the same key fails with ErrConflict and never overwrites.
func (r *IdempotencyRepository) SaveResponse(ctx context.Context, db DBTX, userID uuid.UUID, key string, resp *SavedResponse) error {
	headers := resp.Headers
	if headers == nil {
		headers = []HeaderPair{}
	}
	encoded, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("encode response headers: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}

	_, err = db.Exec(ctx, saveResponse, userID, key, int16(resp.StatusCode), encoded, body)
	if isUniqueViolation(err) {
		return fmt.Errorf("save response for key %q: %w", key, ErrConflict)
	}
	if err != nil {
		return unexpected("save response", err)
	}
	return nil
}

const deleteExpiredResponses = `
DELETE FROM idempotency
WHERE created_at < now() - make_interval(secs => $1)`

// DeleteExpired removes responses older than the retention window and
// returns how many were deleted.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, db DBTX, retention time.Duration) (int64, error) {
	tag, err := db.Exec(ctx, deleteExpiredResponses, retention.Seconds())
	if err != nil {
		return 0, unexpected("delete expired responses", err)
	}
	return tag.RowsAffected(), nil
}
