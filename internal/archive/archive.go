// Package archive moves outcomes past the retention horizon out of the
// timeline and renders the archive as text.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// RetentionHorizon is how long outcomes stay in the live timeline.
const RetentionHorizon = 7 * 24 * time.Hour

// Store is the storage the archiver needs.
type Store interface {
	GetAllTargets(ctx context.Context) ([]models.Target, error)
	ListOutcomesBefore(ctx context.Context, horizon time.Time) ([]models.Outcome, error)
	CountOutcomesBefore(ctx context.Context, horizon time.Time) (int64, error)
	ArchiveOutcome(ctx context.Context, entry *models.ArchiveEntry) error
	ListArchiveEntries(ctx context.Context, targetID int64) ([]models.ArchiveEntry, error)
	CountArchiveEntries(ctx context.Context) (int64, error)
}

// Archiver runs retention passes and exports.
type Archiver struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// WithLocation sets the time zone used to render export timestamps.
func WithLocation(loc *time.Location) Option {
	return func(a *Archiver) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// New creates an Archiver.
func New(store Store, opts ...Option) *Archiver {
	a := &Archiver{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Horizon returns the instant before which outcomes are due for archival.
func (a *Archiver) Horizon() time.Time {
	return a.now().Add(-RetentionHorizon)
}

// ArchiveOldEntries moves every outcome strictly older than the horizon into
// the archive, oldest first. Each row is copied and removed as one unit; rows
// taken by a concurrent pass are skipped.
func (a *Archiver) ArchiveOldEntries(ctx context.Context) (models.ArchiveResult, error) {
	var result models.ArchiveResult

	now := a.now()
	horizon := now.Add(-RetentionHorizon)
	due, err := a.store.ListOutcomesBefore(ctx, horizon)
	if err != nil {
		return result, fmt.Errorf("list outcomes due for archival: %w", err)
	}

	skipped := 0
	for _, o := range due {
		entry := models.NewArchiveEntry(o, now)
		err := a.store.ArchiveOutcome(ctx, &entry)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDuplicateKey) {
			skipped++
			continue
		}
		if err != nil {
			log.Error().Err(err).Int64("outcome_id", o.ID).Int("archived", result.Archived).Msg("Archival aborted")
			return result, fmt.Errorf("archive outcome %d: %w", o.ID, err)
		}
		result.Archived++
		result.Deleted++
	}

	log.Info().
		Time("horizon", horizon).
		Int("archived", result.Archived).
		Int("skipped", skipped).
		Msg("Archival pass finished")
	return result, nil
}

// Status reports the archive backlog.
func (a *Archiver) Status(ctx context.Context) (models.ArchiveStatus, error) {
	var status models.ArchiveStatus

	due, err := a.store.CountOutcomesBefore(ctx, a.Horizon())
	if err != nil {
		return status, fmt.Errorf("count outcomes due: %w", err)
	}
	total, err := a.store.CountArchiveEntries(ctx)
	if err != nil {
		return status, fmt.Errorf("count archive: %w", err)
	}
	status.RecordsToArchive = due
	status.TotalArchived = total
	return status, nil
}

// IsScheduledTime reports whether now falls within window of hour:minute
// on the wall clock of loc.
func IsScheduledTime(now time.Time, loc *time.Location, hour, minute int, window time.Duration) bool {
	local := now.In(loc)
	for _, dayOffset := range []int{-1, 0, 1} {
		scheduled := time.Date(local.Year(), local.Month(), local.Day()+dayOffset, hour, minute, 0, 0, loc)
		diff := local.Sub(scheduled)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true
		}
	}
	return false
}
