package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	targetColumns  = `id, address, canonical_address, host, name, environment, created_at, updated_at`
	outcomeColumns = `id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at`
	archiveColumns = `id, source_id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at, archived_at`
)

// Schema creates every table idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS targets (
	id                BIGSERIAL PRIMARY KEY,
	address           TEXT NOT NULL,
	canonical_address TEXT NOT NULL UNIQUE,
	host              TEXT NOT NULL,
	name              TEXT NOT NULL,
	environment       TEXT NOT NULL DEFAULT 'testing' CHECK (environment IN ('testing', 'production')),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_targets_environment ON targets (environment);

CREATE TABLE IF NOT EXISTS outcomes (
	id            BIGSERIAL PRIMARY KEY,
	target_id     BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	status_code   BIGINT,
	status_text   TEXT,
	response_time BIGINT NOT NULL,
	is_up         BOOLEAN NOT NULL,
	location      TEXT,
	error_message TEXT,
	source        TEXT NOT NULL DEFAULT 'server',
	checked_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_target_checked_at ON outcomes (target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_outcomes_checked_at ON outcomes (checked_at);

CREATE TABLE IF NOT EXISTS archived_outcomes (
	id            BIGSERIAL PRIMARY KEY,
	source_id     BIGINT NOT NULL UNIQUE,
	target_id     BIGINT NOT NULL,
	status_code   BIGINT,
	status_text   TEXT,
	response_time BIGINT NOT NULL,
	is_up         BOOLEAN NOT NULL,
	location      TEXT,
	error_message TEXT,
	source        TEXT NOT NULL DEFAULT 'server',
	checked_at    TIMESTAMPTZ NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_outcomes_target_checked_at ON archived_outcomes (target_id, checked_at);
ALTER TABLE archived_outcomes DROP CONSTRAINT IF EXISTS archived_outcomes_target_id_fkey;

CREATE TABLE IF NOT EXISTS admin_users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore implements the storage.Storer interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ storage.Storer = (*PostgresStore)(nil)

// New creates a connection pool and creates the schema if needed.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	// Simple protocol keeps the store usable behind transaction poolers.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func scanTarget(row pgx.Row) (models.Target, error) {
	var (
		t   models.Target
		env string
	)
	if err := row.Scan(&t.ID, &t.Address, &t.CanonicalAddress, &t.Host, &t.Name, &env, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.Environment = models.Environment(env)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func scanOutcome(row pgx.Row) (models.Outcome, error) {
	var (
		o      models.Outcome
		source string
	)
	if err := row.Scan(&o.ID, &o.TargetID, &o.StatusCode, &o.StatusText, &o.ResponseTimeMS, &o.IsUp,
		&o.Location, &o.ErrorMessage, &source, &o.CheckedAt); err != nil {
		return o, err
	}
	o.Source = models.Source(source)
	o.CheckedAt = o.CheckedAt.UTC()
	return o, nil
}

func scanArchiveEntry(row pgx.Row) (models.ArchiveEntry, error) {
	var (
		e      models.ArchiveEntry
		source string
	)
	if err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.StatusCode, &e.StatusText, &e.ResponseTimeMS, &e.IsUp,
		&e.Location, &e.ErrorMessage, &source, &e.CheckedAt, &e.ArchivedAt); err != nil {
		return e, err
	}
	e.Source = models.Source(source)
	e.CheckedAt = e.CheckedAt.UTC()
	e.ArchivedAt = e.ArchivedAt.UTC()
	return e, nil
}

func (s *PostgresStore) queryTargets(ctx context.Context, query string, args ...any) ([]models.Target, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	targets := []models.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *PostgresStore) queryOutcomes(ctx context.Context, query string, args ...any) ([]models.Outcome, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []models.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CreateTarget implements the Storer interface.
func (s *PostgresStore) CreateTarget(ctx context.Context, target *models.Target) error {
	query := `
INSERT INTO targets (address, canonical_address, host, name, environment, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := s.db.QueryRow(ctx, query, target.Address, target.CanonicalAddress, target.Host, target.Name,
		string(target.Environment), target.CreatedAt.UTC(), target.UpdatedAt.UTC()).Scan(&target.ID)
	if pgCode(err) == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	target.CreatedAt = target.CreatedAt.UTC()
	target.UpdatedAt = target.UpdatedAt.UTC()
	return nil
}

// UpdateTarget implements the Storer interface.
func (s *PostgresStore) UpdateTarget(ctx context.Context, target *models.Target) error {
	query := `
UPDATE targets SET address = $1, canonical_address = $2, host = $3, name = $4, environment = $5, updated_at = $6
WHERE id = $7`
	tag, err := s.db.Exec(ctx, query, target.Address, target.CanonicalAddress, target.Host, target.Name,
		string(target.Environment), target.UpdatedAt.UTC(), target.ID)
	if pgCode(err) == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteTarget implements the Storer interface. Outcomes go with the target
// through ON DELETE CASCADE; archive rows stay.
func (s *PostgresStore) DeleteTarget(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetTargetByID implements the Storer interface.
func (s *PostgresStore) GetTargetByID(ctx context.Context, id int64) (*models.Target, error) {
	t, err := scanTarget(s.db.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target by id: %w", err)
	}
	return &t, nil
}

// ListTargets implements the Storer interface.
func (s *PostgresStore) ListTargets(ctx context.Context, params storage.ListTargetsParams) ([]models.Target, error) {
	if params.Environment != "" {
		return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE environment = $1 ORDER BY created_at DESC, id DESC`,
			string(params.Environment))
	}
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY created_at DESC, id DESC`)
}

// GetAllTargets implements the Storer interface.
func (s *PostgresStore) GetAllTargets(ctx context.Context) ([]models.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY id`)
}

// CreateOutcome implements the Storer interface.
func (s *PostgresStore) CreateOutcome(ctx context.Context, outcome *models.Outcome) error {
	if err := storage.PrepareOutcome(outcome); err != nil {
		return err
	}
	query := `
INSERT INTO outcomes (target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := s.db.QueryRow(ctx, query, outcome.TargetID, outcome.StatusCode, outcome.StatusText, outcome.ResponseTimeMS,
		outcome.IsUp, outcome.Location, outcome.ErrorMessage, string(outcome.Source), outcome.CheckedAt).Scan(&outcome.ID)
	if pgCode(err) == foreignKeyViolation {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create outcome: %w", err)
	}
	return nil
}

// LatestOutcome implements the Storer interface.
func (s *PostgresStore) LatestOutcome(ctx context.Context, targetID int64) (*models.Outcome, error) {
	o, err := scanOutcome(s.db.QueryRow(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE target_id = $1
ORDER BY checked_at DESC, id DESC LIMIT 1`, targetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest outcome: %w", err)
	}
	return &o, nil
}

// ListOutcomes implements the Storer interface.
func (s *PostgresStore) ListOutcomes(ctx context.Context, params storage.ListOutcomesParams) ([]models.Outcome, error) {
	var qb strings.Builder
	args := []any{params.TargetID}
	qb.WriteString(`SELECT ` + outcomeColumns + ` FROM outcomes WHERE target_id = $1`)
	if !params.Since.IsZero() {
		args = append(args, params.Since.UTC())
		fmt.Fprintf(&qb, ` AND checked_at >= $%d`, len(args))
	}
	qb.WriteString(` ORDER BY checked_at DESC, id DESC`)
	if params.Limit > 0 {
		args = append(args, params.Limit)
		fmt.Fprintf(&qb, ` LIMIT $%d`, len(args))
	}
	return s.queryOutcomes(ctx, qb.String(), args...)
}

// CountOutcomes implements the Storer interface.
func (s *PostgresStore) CountOutcomes(ctx context.Context, targetID int64, since time.Time) (storage.OutcomeCounts, error) {
	var counts storage.OutcomeCounts
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_up) FROM outcomes WHERE target_id = $1 AND checked_at >= $2`
	if err := s.db.QueryRow(ctx, query, targetID, since.UTC()).Scan(&counts.Total, &counts.Up); err != nil {
		return counts, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return counts, nil
}

// ListOutcomesBefore implements the Storer interface.
func (s *PostgresStore) ListOutcomesBefore(ctx context.Context, horizon time.Time) ([]models.Outcome, error) {
	return s.queryOutcomes(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE checked_at < $1 ORDER BY checked_at, id`,
		horizon.UTC())
}

// CountOutcomesBefore implements the Storer interface.
func (s *PostgresStore) CountOutcomesBefore(ctx context.Context, horizon time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM outcomes WHERE checked_at < $1`, horizon.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return n, nil
}

// DeleteOutcome implements the Storer interface.
func (s *PostgresStore) DeleteOutcome(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM outcomes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertArchiveEntry(ctx context.Context, db querier, entry *models.ArchiveEntry) error {
	query := `
INSERT INTO archived_outcomes (source_id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	err := db.QueryRow(ctx, query, entry.SourceID, entry.TargetID, entry.StatusCode, entry.StatusText,
		entry.ResponseTimeMS, entry.IsUp, entry.Location, entry.ErrorMessage, string(entry.Source),
		entry.CheckedAt.UTC(), entry.ArchivedAt.UTC()).Scan(&entry.ID)
	if pgCode(err) == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert archive entry: %w", err)
	}
	entry.CheckedAt = entry.CheckedAt.UTC()
	entry.ArchivedAt = entry.ArchivedAt.UTC()
	return nil
}

// InsertArchiveEntry implements the Storer interface.
func (s *PostgresStore) InsertArchiveEntry(ctx context.Context, entry *models.ArchiveEntry) error {
	return insertArchiveEntry(ctx, s.db, entry)
}

// ArchiveOutcome implements the Storer interface.
func (s *PostgresStore) ArchiveOutcome(ctx context.Context, entry *models.ArchiveEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM outcomes WHERE id = $1`, entry.SourceID)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	if err := insertArchiveEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListArchiveEntries implements the Storer interface.
func (s *PostgresStore) ListArchiveEntries(ctx context.Context, targetID int64) ([]models.ArchiveEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+archiveColumns+` FROM archived_outcomes WHERE target_id = $1
ORDER BY checked_at, id`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	entries := []models.ArchiveEntry{}
	for rows.Next() {
		e, err := scanArchiveEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountArchiveEntries implements the Storer interface.
func (s *PostgresStore) CountArchiveEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM archived_outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archive: %w", err)
	}
	return n, nil
}

// GetAdminByUsername implements the Storer interface.
func (s *PostgresStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var a models.AdminUser
	err := s.db.QueryRow(ctx, `SELECT id, username, password_hash, created_at FROM admin_users WHERE username = $1`,
		username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// CreateAdmin implements the Storer interface.
func (s *PostgresStore) CreateAdmin(ctx context.Context, admin *models.AdminUser) error {
	err := s.db.QueryRow(ctx, `INSERT INTO admin_users (username, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id`,
		admin.Username, admin.PasswordHash, admin.CreatedAt.UTC()).Scan(&admin.ID)
	if pgCode(err) == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	admin.CreatedAt = admin.CreatedAt.UTC()
	return nil
}
