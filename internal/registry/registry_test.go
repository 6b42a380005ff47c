package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/config"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/memory"
)

type fakeSweeper struct {
	calls    []int64
	canceled int
	err      error
}

func (f *fakeSweeper) SweepOne(ctx context.Context, id int64) (models.SweepResult, error) {
	f.calls = append(f.calls, id)
	if ctx.Err() != nil {
		f.canceled++
	}
	if f.err != nil {
		return models.SweepResult{}, f.err
	}
	return models.SweepResult{TargetID: id, Recorded: true}, nil
}

type RegistryTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	sweeper *fakeSweeper
	reg     *Registry
	now     time.Time
}

func (s *RegistryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.sweeper = &fakeSweeper{}
	s.now = time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)
	s.reg = New(s.store, s.sweeper)
	s.reg.now = func() time.Time { return s.now }
}

func (s *RegistryTestSuite) create(addr, name, env string) *models.Target {
	t, _, err := s.reg.Create(s.ctx, TargetInput{Address: addr, Name: name, Environment: env})
	s.Require().NoError(err)
	return t
}

func (s *RegistryTestSuite) record(targetID int64, at time.Time, up bool) {
	o := &models.Outcome{TargetID: targetID, Source: models.SourceServer, CheckedAt: at, ResponseTimeMS: 10}
	if up {
		o.StatusCode = null.IntFrom(200)
		o.IsUp = true
	} else {
		o.StatusCode = null.IntFrom(500)
	}
	s.Require().NoError(s.store.CreateOutcome(s.ctx, o))
}

func (s *RegistryTestSuite) TestInitialCheckIgnoresCallerCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	target, result, err := s.reg.Create(ctx, TargetInput{Address: "https://example.com", Name: "Example"})
	s.Require().NoError(err)
	s.Require().NotNil(result)
	s.True(result.Recorded)
	s.Equal([]int64{target.ID}, s.sweeper.calls)
	s.Zero(s.sweeper.canceled)
}

func (s *RegistryTestSuite) TestCreateChecksImmediately() {
	target, result, err := s.reg.Create(s.ctx, TargetInput{URL: "https://Example.com/", Name: " Example ", Environment: "production"})
	s.Require().NoError(err)
	s.Equal("https://Example.com/", target.Address)
	s.Equal("Example", target.Name)
	s.Equal(models.EnvironmentProduction, target.Environment)
	s.Equal(s.now, target.CreatedAt)
	s.Require().NotNil(result)
	s.True(result.Recorded)
	s.Equal([]int64{target.ID}, s.sweeper.calls)
}

func (s *RegistryTestSuite) TestCreateSurvivesFailedCheck() {
	s.sweeper.err = errors.New("storage unavailable")
	target, result, err := s.reg.Create(s.ctx, TargetInput{Address: "https://example.com", Name: "Example"})
	s.Require().NoError(err)
	s.Require().NotNil(result)
	s.Equal("storage unavailable", result.Error)

	_, err = s.store.GetTargetByID(s.ctx, target.ID)
	s.NoError(err)
}

func (s *RegistryTestSuite) TestCreateValidation() {
	cases := []TargetInput{
		{Address: "", Name: "x"},
		{Address: "not a url", Name: "x"},
		{Address: "ftp://example.com", Name: "x"},
		{Address: "/relative", Name: "x"},
		{Address: "https://example.com", Name: "  "},
		{Address: "https://example.com", Name: "x", Environment: "staging"},
	}
	for _, in := range cases {
		_, _, err := s.reg.Create(s.ctx, in)
		s.ErrorIs(err, models.ErrValidation, "%+v", in)
	}
	s.Empty(s.sweeper.calls)
}

func (s *RegistryTestSuite) TestCreateRejectsEquivalentAddress() {
	s.create("https://example.com/status", "a", "")
	_, _, err := s.reg.Create(s.ctx, TargetInput{Address: "HTTPS://EXAMPLE.COM:443/status/#top", Name: "b"})
	s.ErrorIs(err, storage.ErrDuplicateKey)
}

func (s *RegistryTestSuite) TestUpdateKeepsOmittedFields() {
	target := s.create("https://example.com", "Example", "production")
	s.now = s.now.Add(time.Hour)

	updated, err := s.reg.Update(s.ctx, target.ID, TargetInput{Name: "Renamed"})
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)
	s.Equal("https://example.com", updated.Address)
	s.Equal(models.EnvironmentProduction, updated.Environment)
	s.Equal(s.now, updated.UpdatedAt)

	_, err = s.reg.Update(s.ctx, target.ID, TargetInput{Address: "mailto:x@example.com"})
	s.ErrorIs(err, models.ErrValidation)

	_, err = s.reg.Update(s.ctx, 999, TargetInput{Name: "x"})
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *RegistryTestSuite) TestDeleteCascades() {
	target := s.create("https://example.com", "Example", "")
	s.record(target.ID, s.now, true)

	s.Require().NoError(s.reg.Delete(s.ctx, target.ID))
	_, err := s.reg.Get(s.ctx, target.ID)
	s.ErrorIs(err, storage.ErrNotFound)
	s.ErrorIs(s.reg.Delete(s.ctx, target.ID), storage.ErrNotFound)
}

func (s *RegistryTestSuite) TestGetComposesStatus() {
	target := s.create("https://example.com", "Example", "")
	s.record(target.ID, s.now.Add(-8*24*time.Hour), false)
	s.record(target.ID, s.now.Add(-3*time.Hour), true)
	s.record(target.ID, s.now.Add(-2*time.Hour), false)
	s.record(target.ID, s.now.Add(-time.Hour), true)
	s.record(target.ID, s.now.Add(-30*time.Minute), true)

	status, err := s.reg.Get(s.ctx, target.ID)
	s.Require().NoError(err)
	s.Require().NotNil(status.Latest)
	s.Equal(s.now.Add(-30*time.Minute), status.Latest.CheckedAt)
	s.InDelta(75.0, status.Uptime, 0.001)
	s.Len(status.History, 4)
	s.True(status.History[0].CheckedAt.After(status.History[1].CheckedAt))
}

func (s *RegistryTestSuite) TestStatusWithoutOutcomes() {
	target := s.create("https://example.com", "Example", "")

	status, err := s.reg.Get(s.ctx, target.ID)
	s.Require().NoError(err)
	s.Nil(status.Latest)
	s.Equal(0.0, status.Uptime)
	s.NotNil(status.History)
	s.Empty(status.History)
}

func (s *RegistryTestSuite) TestListFiltersByEnvironment() {
	s.create("https://a.example.com", "A", "testing")
	s.now = s.now.Add(time.Minute)
	s.create("https://b.example.com", "B", "production")
	s.now = s.now.Add(time.Minute)
	s.create("https://c.example.com", "C", "production")

	all, err := s.reg.List(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("C", all[0].Name)

	prod, err := s.reg.List(s.ctx, "production")
	s.Require().NoError(err)
	s.Len(prod, 2)

	_, err = s.reg.List(s.ctx, "staging")
	s.ErrorIs(err, models.ErrValidation)
}

func (s *RegistryTestSuite) TestSeedSkipsExisting() {
	s.create("https://example.com", "Example", "")
	seeds := []config.SeedTarget{
		{Name: "Example again", Address: "https://EXAMPLE.com/"},
		{Name: "Docs", Address: "https://docs.example.com", Environment: "production"},
	}

	created, err := s.reg.Seed(s.ctx, seeds)
	s.Require().NoError(err)
	s.Equal(1, created)

	created, err = s.reg.Seed(s.ctx, seeds)
	s.Require().NoError(err)
	s.Equal(0, created)

	_, err = s.reg.Seed(s.ctx, []config.SeedTarget{{Name: "bad", Address: "nope"}})
	s.ErrorIs(err, models.ErrValidation)

	// Seeding does not check targets.
	s.Len(s.sweeper.calls, 1)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
