package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter-dispatch/internal/auth"
	"github.com/sungwon/newsletter-dispatch/internal/idempotency"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// IdempotencyKeyHeader carries the caller-chosen key for a publish request.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxPublishBody = 4 << 20

type publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, key idempotency.Key, issue newsletter.Issue) (*newsletter.Result, error)
	Saved(ctx context.Context, userID uuid.UUID, key idempotency.Key) (*storage.SavedResponse, error)
}

// PublishNewsletterHandler handles POST /api/v1/newsletters.
// The response of the first request for a key is replayed verbatim for
// every later request with the same key, even when the retried body does
// not decode.
func PublishNewsletterHandler(pub publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		key, err := idempotency.ParseKey(r.Header.Get(IdempotencyKeyHeader))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		var issue newsletter.Issue
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&issue); err != nil {
			saved, lookupErr := pub.Saved(r.Context(), userID, key)
			if lookupErr != nil {
				log.Error().Err(lookupErr).
					Stringer("user_id", userID).
					Str("idempotency_key", key.String()).
					Msg("idempotency lookup failed")
				respondError(w, http.StatusInternalServerError, "publish failed")
				return
			}
			if saved == nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			metrics.PublishRequestsTotal.WithLabelValues("replayed").Inc()
			if err := idempotency.Replay(w, saved); err != nil {
				log.Warn().Err(err).Msg("write publish response")
			}
			return
		}

		result, err := pub.Publish(r.Context(), userID, key, issue)
		if err != nil {
			var invalid *newsletter.ValidationError
			if errors.As(err, &invalid) {
				respondValidationErrors(w, invalid.Missing)
				return
			}
			metrics.PublishRequestsTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).
				Stringer("user_id", userID).
				Str("idempotency_key", key.String()).
				Msg("publish newsletter failed")
			respondError(w, http.StatusInternalServerError, "publish failed")
			return
		}

		if result.Replayed {
			log.Debug().
				Stringer("user_id", userID).
				Str("idempotency_key", key.String()).
				Msg("replaying saved publish response")
		}
		if err := idempotency.Replay(w, result.Response); err != nil {
			log.Warn().Err(err).Msg("write publish response")
		}
	}
}
