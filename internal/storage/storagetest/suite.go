// Package storagetest holds a behavioural test suite shared by every
// storage.Storer implementation.
package storagetest

import (
	"context"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

// StoreSuite exercises a storage.Storer. Implementations embed it and set
// NewStore, which must return an empty store.
type StoreSuite struct {
	suite.Suite
	NewStore func() storage.Storer

	Store storage.Storer
	ctx   context.Context
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.Store = s.NewStore()
	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)
}

func (s *StoreSuite) TearDownTest() {
	if s.Store != nil {
		s.Store.Close()
	}
}

func (s *StoreSuite) target(address string, env models.Environment, createdAt time.Time) *models.Target {
	t := &models.Target{
		Address:          address,
		CanonicalAddress: address,
		Host:             "example.com",
		Name:             address,
		Environment:      env,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	s.Require().NoError(s.Store.CreateTarget(s.ctx, t))
	s.Require().NotZero(t.ID)
	return t
}

func (s *StoreSuite) upOutcome(targetID int64, at time.Time) *models.Outcome {
	o := &models.Outcome{
		TargetID:       targetID,
		StatusCode:     null.IntFrom(200),
		StatusText:     null.StringFrom("200 OK"),
		ResponseTimeMS: 12,
		IsUp:           true,
		Source:         models.SourceServer,
		CheckedAt:      at,
	}
	s.Require().NoError(s.Store.CreateOutcome(s.ctx, o))
	return o
}

func (s *StoreSuite) downOutcome(targetID int64, at time.Time) *models.Outcome {
	o := &models.Outcome{
		TargetID:       targetID,
		ResponseTimeMS: 10000,
		ErrorMessage:   null.StringFrom("timeout: context deadline exceeded"),
		Source:         models.SourceServer,
		CheckedAt:      at,
	}
	s.Require().NoError(s.Store.CreateOutcome(s.ctx, o))
	return o
}

func (s *StoreSuite) TestTargetLifecycle() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)

	got, err := s.Store.GetTargetByID(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(t.Address, got.Address)
	s.Equal(t.CanonicalAddress, got.CanonicalAddress)
	s.Equal(models.EnvironmentTesting, got.Environment)
	s.True(s.now.Equal(got.CreatedAt))

	got.Name = "Renamed"
	got.Environment = models.EnvironmentProduction
	got.UpdatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.Store.UpdateTarget(s.ctx, got))

	reloaded, err := s.Store.GetTargetByID(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", reloaded.Name)
	s.Equal(models.EnvironmentProduction, reloaded.Environment)
	s.True(s.now.Add(time.Hour).Equal(reloaded.UpdatedAt))

	_, err = s.Store.GetTargetByID(s.ctx, t.ID+1000)
	s.ErrorIs(err, storage.ErrNotFound)

	missing := *reloaded
	missing.ID = t.ID + 1000
	s.ErrorIs(s.Store.UpdateTarget(s.ctx, &missing), storage.ErrNotFound)
	s.ErrorIs(s.Store.DeleteTarget(s.ctx, t.ID+1000), storage.ErrNotFound)
}

func (s *StoreSuite) TestDuplicateCanonicalAddress() {
	first := s.target("https://a.example.com", models.EnvironmentTesting, s.now)

	dup := &models.Target{
		Address:          "HTTPS://A.EXAMPLE.COM/",
		CanonicalAddress: first.CanonicalAddress,
		Host:             "a.example.com",
		Name:             "dup",
		Environment:      models.EnvironmentTesting,
		CreatedAt:        s.now,
		UpdatedAt:        s.now,
	}
	s.ErrorIs(s.Store.CreateTarget(s.ctx, dup), storage.ErrDuplicateKey)

	second := s.target("https://b.example.com", models.EnvironmentTesting, s.now)
	second.CanonicalAddress = first.CanonicalAddress
	s.ErrorIs(s.Store.UpdateTarget(s.ctx, second), storage.ErrDuplicateKey)
}

func (s *StoreSuite) TestListTargets() {
	a := s.target("https://a.example.com", models.EnvironmentTesting, s.now)
	b := s.target("https://b.example.com", models.EnvironmentProduction, s.now.Add(time.Minute))
	c := s.target("https://c.example.com", models.EnvironmentProduction, s.now.Add(2*time.Minute))

	all, err := s.Store.ListTargets(s.ctx, storage.ListTargetsParams{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	prod, err := s.Store.ListTargets(s.ctx, storage.ListTargetsParams{Environment: models.EnvironmentProduction})
	s.Require().NoError(err)
	s.Len(prod, 2)

	sweepOrder, err := s.Store.GetAllTargets(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{a.ID, b.ID, c.ID}, []int64{sweepOrder[0].ID, sweepOrder[1].ID, sweepOrder[2].ID})
}

func (s *StoreSuite) TestCreateOutcomeValidates() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)

	bad := &models.Outcome{
		TargetID:     t.ID,
		StatusCode:   null.IntFrom(500),
		IsUp:         true,
		ErrorMessage: null.StringFrom("boom"),
		Source:       models.SourceServer,
		CheckedAt:    s.now,
	}
	err := s.Store.CreateOutcome(s.ctx, bad)
	s.ErrorIs(err, storage.ErrInvalidOutcome)
	s.ErrorIs(err, models.ErrValidation)

	orphan := &models.Outcome{
		TargetID:   t.ID + 1000,
		StatusCode: null.IntFrom(200),
		IsUp:       true,
		Source:     models.SourceServer,
		CheckedAt:  s.now,
	}
	s.ErrorIs(s.Store.CreateOutcome(s.ctx, orphan), storage.ErrNotFound)

	counts, err := s.Store.CountOutcomes(s.ctx, t.ID, time.Time{})
	s.Require().NoError(err)
	s.Zero(counts.Total)
}

func (s *StoreSuite) TestTimelineQueries() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)

	_, err := s.Store.LatestOutcome(s.ctx, t.ID)
	s.ErrorIs(err, storage.ErrNotFound)

	old := s.upOutcome(t.ID, s.now.Add(-48*time.Hour))
	mid := s.downOutcome(t.ID, s.now.Add(-time.Hour))
	latest := s.upOutcome(t.ID, s.now)

	got, err := s.Store.LatestOutcome(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(latest.ID, got.ID)

	window, err := s.Store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: t.ID, Since: s.now.Add(-time.Hour)})
	s.Require().NoError(err)
	s.Require().Len(window, 2)
	s.Equal(latest.ID, window[0].ID)
	s.Equal(mid.ID, window[1].ID)

	s.False(window[1].StatusCode.Valid)
	s.False(window[1].StatusText.Valid)
	s.Equal("timeout: context deadline exceeded", window[1].ErrorMessage.String)
	s.False(window[1].IsUp)
	s.Equal(models.SourceServer, window[1].Source)

	limited, err := s.Store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: t.ID, Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal(latest.ID, limited[0].ID)

	counts, err := s.Store.CountOutcomes(s.ctx, t.ID, s.now.Add(-72*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(3), counts.Total)
	s.Equal(int64(2), counts.Up)

	s.Require().NoError(s.Store.DeleteOutcome(s.ctx, old.ID))
	s.ErrorIs(s.Store.DeleteOutcome(s.ctx, old.ID), storage.ErrNotFound)
}

func (s *StoreSuite) TestOutcomesBeforeIsStrict() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)
	horizon := s.now.Add(-7 * 24 * time.Hour)

	older := s.upOutcome(t.ID, horizon.Add(-time.Millisecond))
	oldest := s.upOutcome(t.ID, horizon.Add(-time.Hour))
	s.upOutcome(t.ID, horizon)
	s.upOutcome(t.ID, horizon.Add(time.Second))

	due, err := s.Store.ListOutcomesBefore(s.ctx, horizon)
	s.Require().NoError(err)
	s.Require().Len(due, 2)
	s.Equal(oldest.ID, due[0].ID)
	s.Equal(older.ID, due[1].ID)

	n, err := s.Store.CountOutcomesBefore(s.ctx, horizon)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}

func (s *StoreSuite) TestArchiveOutcomeMovesExactlyOnce() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)
	o := s.downOutcome(t.ID, s.now.Add(-8*24*time.Hour))

	entry := models.NewArchiveEntry(*o, s.now)
	s.Require().NoError(s.Store.ArchiveOutcome(s.ctx, &entry))
	s.NotZero(entry.ID)

	again := models.NewArchiveEntry(*o, s.now)
	s.ErrorIs(s.Store.ArchiveOutcome(s.ctx, &again), storage.ErrNotFound)

	n, err := s.Store.CountOutcomesBefore(s.ctx, s.now)
	s.Require().NoError(err)
	s.Zero(n)

	total, err := s.Store.CountArchiveEntries(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), total)

	entries, err := s.Store.ListArchiveEntries(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(o.ID, entries[0].SourceID)
	s.Equal(o.ErrorMessage, entries[0].ErrorMessage)
	s.False(entries[0].StatusCode.Valid)
	s.True(o.CheckedAt.Equal(entries[0].CheckedAt))
	s.True(s.now.Equal(entries[0].ArchivedAt))
}

func (s *StoreSuite) TestInsertArchiveEntryRejectsDuplicateSource() {
	t := s.target("https://a.example.com", models.EnvironmentTesting, s.now)
	o := s.upOutcome(t.ID, s.now.Add(-8*24*time.Hour))

	first := models.NewArchiveEntry(*o, s.now)
	s.Require().NoError(s.Store.InsertArchiveEntry(s.ctx, &first))
	second := models.NewArchiveEntry(*o, s.now)
	s.ErrorIs(s.Store.InsertArchiveEntry(s.ctx, &second), storage.ErrDuplicateKey)
}

func (s *StoreSuite) TestDeleteTargetKeepsArchive() {
	keep := s.target("https://keep.example.com", models.EnvironmentTesting, s.now)
	drop := s.target("https://drop.example.com", models.EnvironmentTesting, s.now)

	s.upOutcome(keep.ID, s.now)
	s.upOutcome(drop.ID, s.now)
	archived := s.upOutcome(drop.ID, s.now.Add(-10*24*time.Hour))
	entry := models.NewArchiveEntry(*archived, s.now)
	s.Require().NoError(s.Store.ArchiveOutcome(s.ctx, &entry))

	s.Require().NoError(s.Store.DeleteTarget(s.ctx, drop.ID))

	_, err := s.Store.GetTargetByID(s.ctx, drop.ID)
	s.ErrorIs(err, storage.ErrNotFound)

	counts, err := s.Store.CountOutcomes(s.ctx, drop.ID, time.Time{})
	s.Require().NoError(err)
	s.Zero(counts.Total)

	entries, err := s.Store.ListArchiveEntries(s.ctx, drop.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(archived.ID, entries[0].SourceID)

	total, err := s.Store.CountArchiveEntries(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), total)

	kept, err := s.Store.CountOutcomes(s.ctx, keep.ID, time.Time{})
	s.Require().NoError(err)
	s.Equal(int64(1), kept.Total)
}

func (s *StoreSuite) TestAdmins() {
	_, err := s.Store.GetAdminByUsername(s.ctx, "admin")
	s.ErrorIs(err, storage.ErrNotFound)

	admin := &models.AdminUser{Username: "admin", PasswordHash: "$2a$10$hash", CreatedAt: s.now}
	s.Require().NoError(s.Store.CreateAdmin(s.ctx, admin))
	s.NotZero(admin.ID)

	got, err := s.Store.GetAdminByUsername(s.ctx, "admin")
	s.Require().NoError(err)
	s.Equal("$2a$10$hash", got.PasswordHash)

	s.ErrorIs(s.Store.CreateAdmin(s.ctx, &models.AdminUser{Username: "admin", PasswordHash: "x", CreatedAt: s.now}),
		storage.ErrDuplicateKey)
}
