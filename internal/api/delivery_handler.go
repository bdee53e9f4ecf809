package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

const maxRequeueBody = 1 << 20

type deliveryStore interface {
	Stats(ctx context.Context, db storage.DBTX, issueID *uuid.UUID) (storage.QueueStats, error)
	ListDisabled(ctx context.Context, db storage.DBTX, issueID uuid.UUID) ([]storage.DeliveryTask, error)
	Reenable(ctx context.Context, db storage.DBTX, issueID uuid.UUID, emails []string) (int64, error)
}

// deliveryStatusResponse is the JSON response for GET /api/v1/newsletters/{id}/delivery.
type deliveryStatusResponse struct {
	IssueID             uuid.UUID `json:"issue_id"`
	Pending             int64     `json:"pending"`
	Retrying            int64     `json:"retrying"`
	Disabled            int64     `json:"disabled"`
	DisabledSubscribers []string  `json:"disabled_subscribers"`
}

// requeueRequest is the JSON body for POST /api/v1/newsletters/{id}/requeue.
// An empty list re-enables every disabled task of the issue.
type requeueRequest struct {
	SubscriberEmails []string `json:"subscriber_emails"`
}

type requeueResponse struct {
	IssueID  uuid.UUID `json:"issue_id"`
	Requeued int64     `json:"requeued"`
}

func issueIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// DeliveryStatusHandler handles GET /api/v1/newsletters/{id}/delivery.
func DeliveryStatusHandler(db storage.DBTX, q deliveryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		issueID, ok := issueIDParam(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid newsletter id")
			return
		}

		stats, err := q.Stats(r.Context(), db, &issueID)
		if err != nil {
			log.Error().Err(err).Stringer("issue_id", issueID).Msg("queue stats failed")
			respondError(w, http.StatusInternalServerError, "failed to load delivery status")
			return
		}
		disabled, err := q.ListDisabled(r.Context(), db, issueID)
		if err != nil {
			log.Error().Err(err).Stringer("issue_id", issueID).Msg("list disabled tasks failed")
			respondError(w, http.StatusInternalServerError, "failed to load delivery status")
			return
		}

		emails := make([]string, 0, len(disabled))
		for _, t := range disabled {
			emails = append(emails, t.SubscriberEmail)
		}
		respondJSON(w, http.StatusOK, deliveryStatusResponse{
			IssueID:             issueID,
			Pending:             stats.Pending,
			Retrying:            stats.Retrying,
			Disabled:            stats.Disabled,
			DisabledSubscribers: emails,
		})
	}
}

// RequeueHandler handles POST /api/v1/newsletters/{id}/requeue.
// Re-enabled tasks get a fresh retry budget and become eligible immediately.
func RequeueHandler(db storage.DBTX, q deliveryStore, notifier queue.Notifier) http.HandlerFunc {
	if notifier == nil {
		notifier = queue.NopNotifier{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		issueID, ok := issueIDParam(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid newsletter id")
			return
		}

		var req requeueRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequeueBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		n, err := q.Reenable(r.Context(), db, issueID, req.SubscriberEmails)
		if err != nil {
			log.Error().Err(err).Stringer("issue_id", issueID).Msg("requeue failed")
			respondError(w, http.StatusInternalServerError, "requeue failed")
			return
		}

		log.Info().
			Stringer("issue_id", issueID).
			Int64("requeued", n).
			Int("requested", len(req.SubscriberEmails)).
			Msg("disabled tasks requeued")

		if n > 0 {
			if err := notifier.Notify(r.Context(), issueID); err != nil {
				log.Warn().Err(err).Stringer("issue_id", issueID).Msg("failed to notify workers")
			}
		}

		respondJSON(w, http.StatusOK, requeueResponse{IssueID: issueID, Requeued: n})
	}
}
