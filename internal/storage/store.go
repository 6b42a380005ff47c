package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptimewatch/internal/models"
)

var (
	// ErrDuplicateKey is returned when attempting to create a duplicate resource
	ErrDuplicateKey = errors.New("duplicate")
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidOutcome is returned when an outcome breaks the consistency rules
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// TimestampLayout is the fixed-width UTC layout used where timestamps are
// stored as text, so that lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ListTargetsParams filters target listings.
type ListTargetsParams struct {
	Environment models.Environment
}

// ListOutcomesParams selects outcomes of one target. A zero Since returns the
// whole timeline, a zero Limit returns every row.
type ListOutcomesParams struct {
	TargetID int64
	Since    time.Time
	Limit    int
}

// OutcomeCounts summarises a window of the timeline.
type OutcomeCounts struct {
	Total int64
	Up    int64
}

// TargetStore manages monitored targets.
type TargetStore interface {
	CreateTarget(ctx context.Context, target *models.Target) error
	UpdateTarget(ctx context.Context, target *models.Target) error
	DeleteTarget(ctx context.Context, id int64) error
	GetTargetByID(ctx context.Context, id int64) (*models.Target, error)
	ListTargets(ctx context.Context, params ListTargetsParams) ([]models.Target, error)
	GetAllTargets(ctx context.Context) ([]models.Target, error)
}

// TimelineStore is the append-only history of outcomes.
type TimelineStore interface {
	CreateOutcome(ctx context.Context, outcome *models.Outcome) error
	LatestOutcome(ctx context.Context, targetID int64) (*models.Outcome, error)
	ListOutcomes(ctx context.Context, params ListOutcomesParams) ([]models.Outcome, error)
	CountOutcomes(ctx context.Context, targetID int64, since time.Time) (OutcomeCounts, error)
	ListOutcomesBefore(ctx context.Context, horizon time.Time) ([]models.Outcome, error)
	CountOutcomesBefore(ctx context.Context, horizon time.Time) (int64, error)
	DeleteOutcome(ctx context.Context, id int64) error
}

// ArchiveStore holds retired outcomes.
type ArchiveStore interface {
	InsertArchiveEntry(ctx context.Context, entry *models.ArchiveEntry) error
	// ArchiveOutcome copies the outcome named by entry.SourceID into the
	// archive and removes it from the timeline as one unit. It returns
	// ErrNotFound when the outcome is already gone.
	ArchiveOutcome(ctx context.Context, entry *models.ArchiveEntry) error
	ListArchiveEntries(ctx context.Context, targetID int64) ([]models.ArchiveEntry, error)
	CountArchiveEntries(ctx context.Context) (int64, error)
}

// AdminStore holds operator accounts.
type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	CreateAdmin(ctx context.Context, admin *models.AdminUser) error
}

// Storer defines the interface for all storage operations.
type Storer interface {
	TargetStore
	TimelineStore
	ArchiveStore
	AdminStore
	Close() error
}

// PrepareOutcome validates an outcome and normalises its timestamp to UTC
// before insertion.
func PrepareOutcome(o *models.Outcome) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOutcome, err)
	}
	o.CheckedAt = o.CheckedAt.UTC()
	return nil
}

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime parses a TimestampLayout value.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
