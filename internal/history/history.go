package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sotehus/sotehus-core/internal/telemetry"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// schema creates the samples table on first use.
const schema = `
CREATE TABLE IF NOT EXISTS samples (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    kind        TEXT    NOT NULL,
    value       REAL    NOT NULL,
    observed_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_kind_observed
    ON samples (kind, observed_at DESC);
`

// Entry is one persisted telemetry sample.
type Entry struct {
	ID         int64          `json:"id"`
	Kind       telemetry.Kind `json:"kind"`
	Value      float64        `json:"value"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Repository persists a rolling window of telemetry samples in SQLite.
//
// The repository is a convenience for the local API: recent samples are
// queryable without a round-trip to InfluxDB, and survive sink outages.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a sample history repository and ensures the
// backing schema exists.
//
// Parameters:
//   - ctx: Context for the schema setup
//   - db: Open SQLite connection
//
// Returns:
//   - *Repository: Repository ready for use
//   - error: If schema creation fails
func NewRepository(ctx context.Context, db *sql.DB) (*Repository, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating samples schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Record inserts one sample.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - kind: Telemetry kind the sample belongs to
//   - value: The reading
//   - observedAt: When the reading was taken
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Record(ctx context.Context, kind telemetry.Kind, value float64, observedAt time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown telemetry kind %q", kind)
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO samples (kind, value, observed_at) VALUES (?, ?, ?)",
		kind.String(),
		value,
		observedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}

	return nil
}

// RecordSnapshot inserts every sample in the snapshot.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - snap: Latest sample per kind
//
// Returns:
//   - error: The first insert error encountered, nil on success
func (r *Repository) RecordSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	for kind, sample := range snap {
		if err := r.Record(ctx, kind, sample.Value, sample.ObservedAt); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns the newest samples for a kind, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - kind: Telemetry kind to query
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []Entry: Samples ordered by observed_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Repository) Recent(ctx context.Context, kind telemetry.Kind, limit int) ([]Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown telemetry kind %q", kind)
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, value, observed_at
		 FROM samples
		 WHERE kind = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		kind.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var kindText string
		var observedAt string

		if err := rows.Scan(&entry.ID, &kindText, &entry.Value, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}

		entry.Kind = telemetry.Kind(kindText)

		timestamp, err := time.Parse(time.RFC3339, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at: %w", err)
		}
		entry.ObservedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}

	return entries, nil
}

// Prune deletes samples older than the given retention window.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window (samples older than now-olderThan go)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM samples WHERE observed_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting samples: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
