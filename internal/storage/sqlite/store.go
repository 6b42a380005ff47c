package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

const (
	targetColumns  = `id, address, canonical_address, host, name, environment, created_at, updated_at`
	outcomeColumns = `id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at`
	archiveColumns = `id, source_id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at, archived_at`
)

// SQLiteStore implements the storage.Storer interface for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.Storer = (*SQLiteStore)(nil)

// New opens the database file and creates the schema if needed.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// One connection keeps pragmas in effect and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (models.Target, error) {
	var (
		t                    models.Target
		env                  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Address, &t.CanonicalAddress, &t.Host, &t.Name, &env, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	t.Environment = models.Environment(env)
	var err error
	if t.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return t, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = storage.ParseTime(updatedAt); err != nil {
		return t, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

func scanOutcome(row rowScanner) (models.Outcome, error) {
	var (
		o         models.Outcome
		source    string
		checkedAt string
	)
	if err := row.Scan(&o.ID, &o.TargetID, &o.StatusCode, &o.StatusText, &o.ResponseTimeMS, &o.IsUp,
		&o.Location, &o.ErrorMessage, &source, &checkedAt); err != nil {
		return o, err
	}
	o.Source = models.Source(source)
	var err error
	if o.CheckedAt, err = storage.ParseTime(checkedAt); err != nil {
		return o, fmt.Errorf("parse checked_at: %w", err)
	}
	return o, nil
}

func scanArchiveEntry(row rowScanner) (models.ArchiveEntry, error) {
	var (
		e                     models.ArchiveEntry
		source                string
		checkedAt, archivedAt string
	)
	if err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.StatusCode, &e.StatusText, &e.ResponseTimeMS, &e.IsUp,
		&e.Location, &e.ErrorMessage, &source, &checkedAt, &archivedAt); err != nil {
		return e, err
	}
	e.Source = models.Source(source)
	var err error
	if e.CheckedAt, err = storage.ParseTime(checkedAt); err != nil {
		return e, fmt.Errorf("parse checked_at: %w", err)
	}
	if e.ArchivedAt, err = storage.ParseTime(archivedAt); err != nil {
		return e, fmt.Errorf("parse archived_at: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) queryTargets(ctx context.Context, query string, args ...any) ([]models.Target, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) queryOutcomes(ctx context.Context, query string, args ...any) ([]models.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

// CreateTarget inserts a target and fills in its id.
func (s *SQLiteStore) CreateTarget(ctx context.Context, target *models.Target) error {
	query := `
INSERT INTO targets (address, canonical_address, host, name, environment, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, target.Address, target.CanonicalAddress, target.Host, target.Name,
		string(target.Environment), storage.FormatTime(target.CreatedAt), storage.FormatTime(target.UpdatedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read target id: %w", err)
	}
	target.ID = id
	target.CreatedAt = target.CreatedAt.UTC()
	target.UpdatedAt = target.UpdatedAt.UTC()
	return nil
}

// UpdateTarget rewrites the mutable fields of a target.
func (s *SQLiteStore) UpdateTarget(ctx context.Context, target *models.Target) error {
	query := `
UPDATE targets SET address = ?, canonical_address = ?, host = ?, name = ?, environment = ?, updated_at = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, target.Address, target.CanonicalAddress, target.Host, target.Name,
		string(target.Environment), storage.FormatTime(target.UpdatedAt), target.ID)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteTarget removes a target together with its timeline. Archived
// entries are kept.
func (s *SQLiteStore) DeleteTarget(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outcomes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTargetByID retrieves a single target by its unique ID.
func (s *SQLiteStore) GetTargetByID(ctx context.Context, id int64) (*models.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target by id: %w", err)
	}
	return &t, nil
}

// ListTargets returns the newest targets first, optionally by environment.
func (s *SQLiteStore) ListTargets(ctx context.Context, params storage.ListTargetsParams) ([]models.Target, error) {
	if params.Environment != "" {
		return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE environment = ? ORDER BY created_at DESC, id DESC`,
			string(params.Environment))
	}
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY created_at DESC, id DESC`)
}

// GetAllTargets returns every target in id order.
func (s *SQLiteStore) GetAllTargets(ctx context.Context) ([]models.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY id`)
}

// CreateOutcome appends a validated outcome to the timeline.
func (s *SQLiteStore) CreateOutcome(ctx context.Context, outcome *models.Outcome) error {
	if err := storage.PrepareOutcome(outcome); err != nil {
		return err
	}
	query := `
INSERT INTO outcomes (target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, outcome.TargetID, outcome.StatusCode, outcome.StatusText, outcome.ResponseTimeMS,
		outcome.IsUp, outcome.Location, outcome.ErrorMessage, string(outcome.Source), storage.FormatTime(outcome.CheckedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to create outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outcome id: %w", err)
	}
	outcome.ID = id
	return nil
}

// LatestOutcome returns the most recent outcome of a target.
func (s *SQLiteStore) LatestOutcome(ctx context.Context, targetID int64) (*models.Outcome, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE target_id = ?
ORDER BY checked_at DESC, id DESC LIMIT 1`, targetID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest outcome: %w", err)
	}
	return &o, nil
}

// ListOutcomes returns outcomes with checked_at >= Since, newest first.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, params storage.ListOutcomesParams) ([]models.Outcome, error) {
	var (
		args []any
		qb   strings.Builder
	)
	qb.WriteString(`SELECT ` + outcomeColumns + ` FROM outcomes WHERE target_id = ?`)
	args = append(args, params.TargetID)
	if !params.Since.IsZero() {
		qb.WriteString(` AND checked_at >= ?`)
		args = append(args, storage.FormatTime(params.Since))
	}
	qb.WriteString(` ORDER BY checked_at DESC, id DESC`)
	if params.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, params.Limit)
	}
	return s.queryOutcomes(ctx, qb.String(), args...)
}

// CountOutcomes counts outcomes with checked_at >= since.
func (s *SQLiteStore) CountOutcomes(ctx context.Context, targetID int64, since time.Time) (storage.OutcomeCounts, error) {
	var counts storage.OutcomeCounts
	query := `SELECT COUNT(*), COALESCE(SUM(is_up), 0) FROM outcomes WHERE target_id = ? AND checked_at >= ?`
	if err := s.db.QueryRowContext(ctx, query, targetID, storage.FormatTime(since)).Scan(&counts.Total, &counts.Up); err != nil {
		return counts, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return counts, nil
}

// ListOutcomesBefore returns outcomes strictly older than horizon, oldest first.
func (s *SQLiteStore) ListOutcomesBefore(ctx context.Context, horizon time.Time) ([]models.Outcome, error) {
	return s.queryOutcomes(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE checked_at < ? ORDER BY checked_at, id`,
		storage.FormatTime(horizon))
}

// CountOutcomesBefore counts outcomes strictly older than horizon.
func (s *SQLiteStore) CountOutcomesBefore(ctx context.Context, horizon time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outcomes WHERE checked_at < ?`,
		storage.FormatTime(horizon)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return n, nil
}

// DeleteOutcome removes one outcome.
func (s *SQLiteStore) DeleteOutcome(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertArchiveEntry(ctx context.Context, db execer, entry *models.ArchiveEntry) error {
	query := `
INSERT INTO archived_outcomes (source_id, target_id, status_code, status_text, response_time, is_up, location, error_message, source, checked_at, archived_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, query, entry.SourceID, entry.TargetID, entry.StatusCode, entry.StatusText,
		entry.ResponseTimeMS, entry.IsUp, entry.Location, entry.ErrorMessage, string(entry.Source),
		storage.FormatTime(entry.CheckedAt), storage.FormatTime(entry.ArchivedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert archive entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read archive entry id: %w", err)
	}
	entry.ID = id
	entry.CheckedAt = entry.CheckedAt.UTC()
	entry.ArchivedAt = entry.ArchivedAt.UTC()
	return nil
}

// InsertArchiveEntry writes an archive row without touching the timeline.
func (s *SQLiteStore) InsertArchiveEntry(ctx context.Context, entry *models.ArchiveEntry) error {
	return insertArchiveEntry(ctx, s.db, entry)
}

// ArchiveOutcome moves one outcome into the archive in a single transaction.
func (s *SQLiteStore) ArchiveOutcome(ctx context.Context, entry *models.ArchiveEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE id = ?`, entry.SourceID)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if err := insertArchiveEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListArchiveEntries returns a target's archive, oldest first.
func (s *SQLiteStore) ListArchiveEntries(ctx context.Context, targetID int64) ([]models.ArchiveEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+archiveColumns+` FROM archived_outcomes WHERE target_id = ?
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

// CountArchiveEntries counts every archived outcome.
func (s *SQLiteStore) CountArchiveEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archive: %w", err)
	}
	return n, nil
}

// GetAdminByUsername looks up an operator account.
func (s *SQLiteStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var (
		a         models.AdminUser
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM admin_users WHERE username = ?`,
		username).Scan(&a.ID, &a.Username, &a.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	if a.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &a, nil
}

// CreateAdmin inserts an operator account.
func (s *SQLiteStore) CreateAdmin(ctx context.Context, admin *models.AdminUser) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO admin_users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		admin.Username, admin.PasswordHash, storage.FormatTime(admin.CreatedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read admin id: %w", err)
	}
	admin.ID = id
	admin.CreatedAt = admin.CreatedAt.UTC()
	return nil
}
