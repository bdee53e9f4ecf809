package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// DisabledTask is one quarantined delivery as recorded in an export.
type DisabledTask struct {
	SubscriberEmail string    `json:"subscriber_email"`
	NRetries        int       `json:"n_retries"`
	ExecuteAfter    time.Time `json:"execute_after"`
}

// Snapshot is the set of disabled tasks seen by one export run.
type Snapshot struct {
	ExportedAt time.Time      `json:"exported_at"`
	Tasks      []DisabledTask `json:"tasks"`
}

// Document is the archived history of an issue's disabled tasks. Each
// export appends a snapshot, so requeued and re-disabled tasks stay traceable.
type Document struct {
	IssueID   uuid.UUID  `json:"issue_id"`
	Snapshots []Snapshot `json:"snapshots"`
}

type disabledLister interface {
	ListDisabled(ctx context.Context, db storage.DBTX, issueID uuid.UUID) ([]storage.DeliveryTask, error)
}

// Exporter writes disabled-task snapshots to a Store.
type Exporter struct {
	store Store
	db    storage.DBTX
	tasks disabledLister
	log   zerolog.Logger
	now   func() time.Time
}

// NewExporter creates an Exporter reading through db.
func NewExporter(store Store, db storage.DBTX, tasks disabledLister, log zerolog.Logger) *Exporter {
	return &Exporter{store: store, db: db, tasks: tasks, log: log, now: time.Now}
}

// Key returns the archive key holding the export document of an issue.
func Key(issueID uuid.UUID) string {
	return "disabled/" + issueID.String() + ".json"
}

// Export appends the current disabled tasks of issueID to its document and
// returns how many tasks the new snapshot holds. Nothing is written when
// the issue has no disabled tasks.
func (e *Exporter) Export(ctx context.Context, issueID uuid.UUID) (int, error) {
	tasks, err := e.tasks.ListDisabled(ctx, e.db, issueID)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	doc, err := e.Load(ctx, issueID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if doc == nil {
		doc = &Document{IssueID: issueID}
	}

	snap := Snapshot{ExportedAt: e.now().UTC(), Tasks: make([]DisabledTask, 0, len(tasks))}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, DisabledTask{
			SubscriberEmail: t.SubscriberEmail,
			NRetries:        t.NRetries,
			ExecuteAfter:    t.ExecuteAfter.UTC(),
		})
	}
	doc.Snapshots = append(doc.Snapshots, snap)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("archive: encode export: %w", err)
	}
	if err := e.store.Put(ctx, Key(issueID), data); err != nil {
		return 0, err
	}

	e.log.Info().
		Stringer("issue_id", issueID).
		Int("tasks", len(snap.Tasks)).
		Int("snapshots", len(doc.Snapshots)).
		Msg("disabled tasks exported")
	return len(snap.Tasks), nil
}

// Load reads the export document of an issue.
func (e *Exporter) Load(ctx context.Context, issueID uuid.UUID) (*Document, error) {
	data, err := e.store.Get(ctx, Key(issueID))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("archive: decode export %s: %w", Key(issueID), err)
	}
	return &doc, nil
}
