package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/weekly-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL,
	week       TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'resolving',
	dry_run    INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS link_history (
	client_id TEXT NOT NULL,
	domain    TEXT NOT NULL,
	path      TEXT NOT NULL,
	section   TEXT NOT NULL,
	seen_at   DATETIME NOT NULL,
	PRIMARY KEY (client_id, domain, path)
);

CREATE TABLE IF NOT EXISTS digests (
	client_id    TEXT NOT NULL,
	week         TEXT NOT NULL,
	payload      TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	PRIMARY KEY (client_id, week)
);

CREATE INDEX IF NOT EXISTS idx_runs_client_id ON runs(client_id);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_link_history_seen ON link_history(client_id, seen_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, clientID, week string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, client_id, week, state, dry_run, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, clientID, week, string(model.RunStateResolving), boolToInt(dryRun), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for client %s", clientID)
	}

	return &model.Run{
		ID:        id,
		ClientID:  clientID,
		State:     model.RunStateResolving,
		Week:      week,
		DryRun:    dryRun,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID string, state model.RunState, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(state), nullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run state %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, week, state, dry_run, error, started_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, client_id, week, state, dry_run, error, started_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Week != "" {
		query += ` AND week = ?`
		args = append(args, filter.Week)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AppendEntries(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin history tx")
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO link_history (client_id, domain, path, section, seen_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (client_id, domain, path) DO NOTHING`,
			e.ClientID, e.Domain, e.Path, string(e.Section), e.SeenAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert history %s%s", e.Domain, e.Path)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit history tx")
}

func (s *SQLiteStore) RecentKeys(ctx context.Context, clientID string, since time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, path, seen_at FROM link_history WHERE client_id = ? AND seen_at >= ?`,
		clientID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent keys")
	}
	defer rows.Close()

	keys := make(map[string]time.Time)
	for rows.Next() {
		var domain, path string
		var seenAt time.Time
		if err := rows.Scan(&domain, &path, &seenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history row")
		}
		keys[EntryKey(domain, path)] = seenAt
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: recent keys iterate")
}

func (s *SQLiteStore) SaveDigest(ctx context.Context, digest *model.DigestPayload) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal digest")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO digests (client_id, week, payload, generated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (client_id, week) DO UPDATE SET payload = excluded.payload, generated_at = excluded.generated_at`,
		digest.ClientID, digest.Week, string(payload), digest.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save digest %s/%s", digest.ClientID, digest.Week)
}

func (s *SQLiteStore) GetDigest(ctx context.Context, clientID, week string) (*model.DigestPayload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM digests WHERE client_id = ? AND week = ?`,
		clientID, week,
	)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get digest")
	}

	var d model.DigestPayload
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal digest")
	}
	return &d, nil
}

func (s *SQLiteStore) ListDigests(ctx context.Context, clientID string, limit int) ([]model.DigestPayload, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM digests WHERE client_id = ? ORDER BY week DESC LIMIT ?`,
		clientID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list digests")
	}
	defer rows.Close()

	var digests []model.DigestPayload
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan digest row")
		}
		var d model.DigestPayload
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal digest")
		}
		digests = append(digests, d)
	}
	return digests, eris.Wrap(rows.Err(), "sqlite: list digests iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var dryRun int
	var runErr sql.NullString

	err := row.Scan(&r.ID, &r.ClientID, &r.Week, &r.State, &dryRun, &runErr, &r.StartedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.DryRun = dryRun != 0
	if runErr.Valid {
		r.Error = runErr.String
	}
	return &r, nil
}
