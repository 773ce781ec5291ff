package history

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/weekly-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. It is satisfied
// by both *pgxpool.Pool and pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id  TEXT NOT NULL,
	week       TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'resolving',
	dry_run    BOOLEAN NOT NULL DEFAULT false,
	error      TEXT,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS link_history (
	client_id TEXT NOT NULL,
	domain    TEXT NOT NULL,
	path      TEXT NOT NULL,
	section   TEXT NOT NULL,
	seen_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (client_id, domain, path)
);

CREATE TABLE IF NOT EXISTS digests (
	client_id    TEXT NOT NULL,
	week         TEXT NOT NULL,
	payload      JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (client_id, week)
);

CREATE INDEX IF NOT EXISTS idx_runs_client_id ON runs(client_id);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_link_history_seen ON link_history(client_id, seen_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, clientID, week string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, client_id, week, state, dry_run, started_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, clientID, week, string(model.RunStateResolving), dryRun, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for client %s", clientID)
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

func (s *PostgresStore) UpdateRunState(ctx context.Context, runID string, state model.RunState, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(state), nullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run state %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, client_id, week, state, dry_run, error, started_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, client_id, week, state, dry_run, error, started_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += ` AND client_id = $` + strconv.Itoa(len(args))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = $` + strconv.Itoa(len(args))
	}
	if filter.Week != "" {
		args = append(args, filter.Week)
		query += ` AND week = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AppendEntries(ctx context.Context, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin history tx")
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO link_history (client_id, domain, path, section, seen_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (client_id, domain, path) DO NOTHING`,
			e.ClientID, e.Domain, e.Path, string(e.Section), e.SeenAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert history %s%s", e.Domain, e.Path)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit history tx")
}

func (s *PostgresStore) RecentKeys(ctx context.Context, clientID string, since time.Time) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, path, seen_at FROM link_history WHERE client_id = $1 AND seen_at >= $2`,
		clientID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent keys")
	}
	defer rows.Close()

	keys := make(map[string]time.Time)
	for rows.Next() {
		var domain, path string
		var seenAt time.Time
		if err := rows.Scan(&domain, &path, &seenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history row")
		}
		keys[EntryKey(domain, path)] = seenAt
	}
	return keys, eris.Wrap(rows.Err(), "postgres: recent keys iterate")
}

func (s *PostgresStore) SaveDigest(ctx context.Context, digest *model.DigestPayload) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal digest")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO digests (client_id, week, payload, generated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id, week) DO UPDATE SET payload = excluded.payload, generated_at = excluded.generated_at`,
		digest.ClientID, digest.Week, payload, digest.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save digest %s/%s", digest.ClientID, digest.Week)
}

func (s *PostgresStore) GetDigest(ctx context.Context, clientID, week string) (*model.DigestPayload, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload FROM digests WHERE client_id = $1 AND week = $2`,
		clientID, week,
	)

	var payload []byte
	err := row.Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get digest")
	}

	var d model.DigestPayload
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal digest")
	}
	return &d, nil
}

func (s *PostgresStore) ListDigests(ctx context.Context, clientID string, limit int) ([]model.DigestPayload, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM digests WHERE client_id = $1 ORDER BY week DESC LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list digests")
	}
	defer rows.Close()

	var digests []model.DigestPayload
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan digest row")
		}
		var d model.DigestPayload
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal digest")
		}
		digests = append(digests, d)
	}
	return digests, eris.Wrap(rows.Err(), "postgres: list digests iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var runErr *string

	err := row.Scan(&r.ID, &r.ClientID, &r.Week, &r.State, &r.DryRun, &runErr, &r.StartedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if runErr != nil {
		r.Error = *runErr
	}
	return &r, nil
}
