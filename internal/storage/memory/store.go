// Package memory is a process-local implementation of storage.Storer.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// Store keeps everything in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	targets  map[int64]models.Target
	outcomes map[int64]models.Outcome
	archive  map[int64]models.ArchiveEntry
	admins   map[string]models.AdminUser

	nextTargetID  int64
	nextOutcomeID int64
	nextArchiveID int64
	nextAdminID   int64
}

var _ storage.Storer = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		targets:  make(map[int64]models.Target),
		outcomes: make(map[int64]models.Outcome),
		archive:  make(map[int64]models.ArchiveEntry),
		admins:   make(map[string]models.AdminUser),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) canonicalTaken(canonical string, except int64) bool {
	for id, t := range s.targets {
		if id != except && t.CanonicalAddress == canonical {
			return true
		}
	}
	return false
}

func (s *Store) CreateTarget(_ context.Context, target *models.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.canonicalTaken(target.CanonicalAddress, 0) {
		return storage.ErrDuplicateKey
	}
	s.nextTargetID++
	target.ID = s.nextTargetID
	target.CreatedAt = target.CreatedAt.UTC()
	target.UpdatedAt = target.UpdatedAt.UTC()
	s.targets[target.ID] = *target
	return nil
}

func (s *Store) UpdateTarget(_ context.Context, target *models.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.targets[target.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if s.canonicalTaken(target.CanonicalAddress, target.ID) {
		return storage.ErrDuplicateKey
	}
	target.CreatedAt = existing.CreatedAt
	target.UpdatedAt = target.UpdatedAt.UTC()
	s.targets[target.ID] = *target
	return nil
}

// DeleteTarget removes the target with its timeline. Archived entries stay.
func (s *Store) DeleteTarget(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.targets, id)
	for oid, o := range s.outcomes {
		if o.TargetID == id {
			delete(s.outcomes, oid)
		}
	}
	return nil
}

func (s *Store) GetTargetByID(_ context.Context, id int64) (*models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

// ListTargets returns the newest targets first.
func (s *Store) ListTargets(_ context.Context, params storage.ListTargetsParams) ([]models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if params.Environment != "" && t.Environment != params.Environment {
			continue
		}
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].CreatedAt.Equal(targets[j].CreatedAt) {
			return targets[i].ID > targets[j].ID
		}
		return targets[i].CreatedAt.After(targets[j].CreatedAt)
	})
	return targets, nil
}

// GetAllTargets returns every target in id order.
func (s *Store) GetAllTargets(_ context.Context) ([]models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return targets, nil
}

func (s *Store) CreateOutcome(_ context.Context, outcome *models.Outcome) error {
	if err := storage.PrepareOutcome(outcome); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[outcome.TargetID]; !ok {
		return storage.ErrNotFound
	}
	s.nextOutcomeID++
	outcome.ID = s.nextOutcomeID
	stored := *outcome
	stored.NeedsAlternateCheck = false
	s.outcomes[outcome.ID] = stored
	return nil
}

// newestFirst orders outcomes by checked_at then id, descending.
func newestFirst(out []models.Outcome) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
}

func (s *Store) LatestOutcome(ctx context.Context, targetID int64) (*models.Outcome, error) {
	list, err := s.ListOutcomes(ctx, storage.ListOutcomesParams{TargetID: targetID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	return &list[0], nil
}

// ListOutcomes returns outcomes with checked_at >= Since, newest first.
func (s *Store) ListOutcomes(_ context.Context, params storage.ListOutcomesParams) ([]models.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Outcome
	for _, o := range s.outcomes {
		if o.TargetID != params.TargetID {
			continue
		}
		if !params.Since.IsZero() && o.CheckedAt.Before(params.Since) {
			continue
		}
		out = append(out, o)
	}
	newestFirst(out)
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) CountOutcomes(_ context.Context, targetID int64, since time.Time) (storage.OutcomeCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts storage.OutcomeCounts
	for _, o := range s.outcomes {
		if o.TargetID != targetID || (!since.IsZero() && o.CheckedAt.Before(since)) {
			continue
		}
		counts.Total++
		if o.IsUp {
			counts.Up++
		}
	}
	return counts, nil
}

// ListOutcomesBefore returns outcomes strictly older than horizon, oldest first.
func (s *Store) ListOutcomesBefore(_ context.Context, horizon time.Time) ([]models.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Outcome
	for _, o := range s.outcomes {
		if o.CheckedAt.Before(horizon) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CheckedAt.Before(out[j].CheckedAt)
	})
	return out, nil
}

func (s *Store) CountOutcomesBefore(_ context.Context, horizon time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, o := range s.outcomes {
		if o.CheckedAt.Before(horizon) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteOutcome(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outcomes[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.outcomes, id)
	return nil
}

func (s *Store) insertArchiveLocked(entry *models.ArchiveEntry) error {
	for _, e := range s.archive {
		if e.SourceID == entry.SourceID {
			return storage.ErrDuplicateKey
		}
	}
	s.nextArchiveID++
	entry.ID = s.nextArchiveID
	entry.CheckedAt = entry.CheckedAt.UTC()
	entry.ArchivedAt = entry.ArchivedAt.UTC()
	s.archive[entry.ID] = *entry
	return nil
}

func (s *Store) InsertArchiveEntry(_ context.Context, entry *models.ArchiveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertArchiveLocked(entry)
}

func (s *Store) ArchiveOutcome(_ context.Context, entry *models.ArchiveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outcomes[entry.SourceID]; !ok {
		return storage.ErrNotFound
	}
	if err := s.insertArchiveLocked(entry); err != nil {
		return err
	}
	delete(s.outcomes, entry.SourceID)
	return nil
}

// ListArchiveEntries returns a target's archive, oldest first.
func (s *Store) ListArchiveEntries(_ context.Context, targetID int64) ([]models.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ArchiveEntry
	for _, e := range s.archive {
		if e.TargetID == targetID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CheckedAt.Before(out[j].CheckedAt)
	})
	return out, nil
}

func (s *Store) CountArchiveEntries(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.archive)), nil
}

func (s *Store) GetAdminByUsername(_ context.Context, username string) (*models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admins[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (s *Store) CreateAdmin(_ context.Context, admin *models.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := admin.Username
	if _, ok := s.admins[key]; ok {
		return storage.ErrDuplicateKey
	}
	s.nextAdminID++
	admin.ID = s.nextAdminID
	admin.CreatedAt = admin.CreatedAt.UTC()
	s.admins[key] = *admin
	return nil
}
