//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter-dispatch/internal/pgtest"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

var (
	pg       *pgtest.Postgres
	sharedDB *storage.DB
)

// TestMain sets up a shared PostgreSQL container for all integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	pg, err = pgtest.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}
	sharedDB = pg.DB

	code := m.Run()

	if err := pg.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

// setupTestDB returns the shared DB with every table truncated.
func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	if err := pg.Truncate(context.Background()); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return sharedDB
}

func addSubscriber(t *testing.T, email, status string) {
	t.Helper()
	if err := pg.AddSubscriber(context.Background(), email, status); err != nil {
		t.Fatalf("insert subscriber %s: %v", email, err)
	}
}

// publishIssue inserts an issue and enqueues it in one committed unit of work.
func publishIssue(t *testing.T) (uuid.UUID, storage.EnqueueResult) {
	t.Helper()
	ctx := context.Background()

	tx, err := sharedDB.Begin(ctx, "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	id, err := storage.NewIssueRepository().InsertIssue(ctx, tx, "Weekly", "plain body", "<p>html body</p>")
	if err != nil {
		t.Fatalf("InsertIssue failed: %v", err)
	}
	res, err := storage.NewQueueRepository().Enqueue(ctx, tx, id)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id, res
}

func countQueueRows(t *testing.T, issueID uuid.UUID) int {
	t.Helper()
	var n int
	err := sharedDB.Pool.QueryRow(context.Background(),
		`SELECT count(*) FROM issue_delivery_queue WHERE newsletter_issue_id = $1`, issueID).Scan(&n)
	if err != nil {
		t.Fatalf("count queue rows: %v", err)
	}
	return n
}
