// Package history persists runs, sent-link history and weekly digest
// snapshots behind a backend-neutral Store interface.
package history

import (
	"context"
	"time"

	"github.com/sells-group/weekly-intel/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	ClientID string         `json:"client_id,omitempty"`
	State    model.RunState `json:"state,omitempty"`
	Week     string         `json:"week,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the weekly pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, clientID, week string, dryRun bool) (*model.Run, error)
	UpdateRunState(ctx context.Context, runID string, state model.RunState, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Link history. AppendEntries is idempotent: re-sending the same
	// (client, domain, path) pair is a no-op, so a retried persist stage
	// cannot double-record.
	AppendEntries(ctx context.Context, entries []model.HistoryEntry) error
	RecentKeys(ctx context.Context, clientID string, since time.Time) (map[string]time.Time, error)

	// Digest snapshots, keyed (client, ISO week). Saving twice in the same
	// week overwrites, keeping reruns idempotent.
	SaveDigest(ctx context.Context, digest *model.DigestPayload) error
	GetDigest(ctx context.Context, clientID, week string) (*model.DigestPayload, error)
	ListDigests(ctx context.Context, clientID string, limit int) ([]model.DigestPayload, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// EntryKey joins domain and path into the history lookup key used by
// RecentKeys and the dedupe stage.
func EntryKey(domain, path string) string {
	return domain + path
}
