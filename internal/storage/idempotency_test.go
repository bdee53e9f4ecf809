//go:build integration

package storage_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

func TestSaveResponse_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := storage.NewIdempotencyRepository()
	userID := uuid.New()

	want := &storage.SavedResponse{
		StatusCode: 202,
		Headers: []storage.HeaderPair{
			{Name: "Content-Type", Value: []byte("application/json")},
			{Name: "X-Raw", Value: []byte{0xff, 0x00, 0x7f}},
		},
		Body: []byte(`{"issue_id":"x"}`),
	}
	if err := repo.SaveResponse(ctx, db.Pool, userID, "key-1", want); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	got, err := repo.GetSavedResponse(ctx, db.Pool, userID, "key-1")
	if err != nil {
		t.Fatalf("GetSavedResponse failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected saved response, got nil")
	}
	if got.StatusCode != 202 {
		t.Errorf("expected status 202, got %d", got.StatusCode)
	}
	if !bytes.Equal(got.Body, want.Body) {
		t.Errorf("expected body %q, got %q", want.Body, got.Body)
	}
	if len(got.Headers) != 2 || got.Headers[0].Name != "Content-Type" || !bytes.Equal(got.Headers[1].Value, []byte{0xff, 0x00, 0x7f}) {
		t.Errorf("headers not preserved in order: %+v", got.Headers)
	}
}

func TestGetSavedResponse_Miss(t *testing.T) {
	db := setupTestDB(t)

	got, err := storage.NewIdempotencyRepository().GetSavedResponse(context.Background(), db.Pool, uuid.New(), "unused")
	if err != nil {
		t.Fatalf("expected no error on miss, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestSaveResponse_DuplicateIsConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := storage.NewIdempotencyRepository()
	userID := uuid.New()

	first := &storage.SavedResponse{StatusCode: 202, Body: []byte("first")}
	if err := repo.SaveResponse(ctx, db.Pool, userID, "dup", first); err != nil {
		t.Fatalf("first SaveResponse failed: %v", err)
	}

	err := repo.SaveResponse(ctx, db.Pool, userID, "dup", &storage.SavedResponse{StatusCode: 500, Body: []byte("second")})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := repo.GetSavedResponse(ctx, db.Pool, userID, "dup")
	if err != nil {
		t.Fatalf("GetSavedResponse failed: %v", err)
	}
	if string(got.Body) != "first" {
		t.Errorf("expected original response kept, got %q", got.Body)
	}

	// Same key under another user is independent.
	if err := repo.SaveResponse(ctx, db.Pool, uuid.New(), "dup", first); err != nil {
		t.Errorf("expected key scoped per user, got %v", err)
	}
}

func TestSaveResponse_ConcurrentWriterBlocksThenConflicts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := storage.NewIdempotencyRepository()
	userID := uuid.New()

	tx1, err := db.Begin(ctx, "")
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	defer tx1.Rollback(ctx)
	if err := repo.SaveResponse(ctx, tx1, userID, "race", &storage.SavedResponse{StatusCode: 202, Body: []byte("winner")}); err != nil {
		t.Fatalf("tx1 SaveResponse failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		tx2, err := db.Begin(ctx, "")
		if err != nil {
			done <- err
			return
		}
		defer tx2.Rollback(ctx)
		done <- repo.SaveResponse(ctx, tx2, userID, "race", &storage.SavedResponse{StatusCode: 202, Body: []byte("loser")})
	}()

	select {
	case err := <-done:
		t.Fatalf("second writer returned before first committed: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("commit tx1: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("expected ErrConflict for second writer, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second writer never returned")
	}
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := storage.NewIdempotencyRepository()
	userID := uuid.New()

	for _, key := range []string{"old", "new"} {
		if err := repo.SaveResponse(ctx, db.Pool, userID, key, &storage.SavedResponse{StatusCode: 202}); err != nil {
			t.Fatalf("SaveResponse %s failed: %v", key, err)
		}
	}
	if _, err := db.Pool.Exec(ctx,
		`UPDATE idempotency SET created_at = now() - interval '10 days' WHERE idempotency_key = 'old'`); err != nil {
		t.Fatalf("age record: %v", err)
	}

	n, err := repo.DeleteExpired(ctx, db.Pool, 72*time.Hour)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired record deleted, got %d", n)
	}
	if got, _ := repo.GetSavedResponse(ctx, db.Pool, userID, "new"); got == nil {
		t.Error("expected fresh record to survive the sweep")
	}
}
