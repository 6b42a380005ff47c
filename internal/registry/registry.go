// Package registry manages monitored targets and composes their status views.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"uptimewatch/internal/config"
	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/urlutil"
)

const (
	// StatusWindow is the history window of status views.
	StatusWindow = 7 * 24 * time.Hour

	maxAddressLength = 2048
	maxNameLength    = 200
)

// Store is the storage the registry needs.
type Store interface {
	storage.TargetStore
	storage.TimelineStore
}

// Sweeper checks a single target right after it is registered.
type Sweeper interface {
	SweepOne(ctx context.Context, targetID int64) (models.SweepResult, error)
}

// TargetInput is the user-supplied part of a target.
type TargetInput struct {
	Address     string `json:"address"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

func (in TargetInput) address() string {
	if strings.TrimSpace(in.Address) != "" {
		return in.Address
	}
	return in.URL
}

// Registry owns target lifecycle operations.
type Registry struct {
	store   Store
	sweeper Sweeper
	now     func() time.Time
}

// New creates a Registry. sweeper may be nil, in which case new targets are
// not checked on creation.
func New(store Store, sweeper Sweeper) *Registry {
	return &Registry{store: store, sweeper: sweeper, now: time.Now}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

func parseAddress(raw string) (urlutil.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return urlutil.Address{}, validationError("address is required")
	}
	if len(raw) > maxAddressLength {
		return urlutil.Address{}, validationError("address is longer than %d characters", maxAddressLength)
	}
	addr, err := urlutil.Parse(raw)
	if err != nil {
		return urlutil.Address{}, validationError("address must be an absolute http or https URL")
	}
	return addr, nil
}

func parseName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validationError("name is required")
	}
	if len(name) > maxNameLength {
		return "", validationError("name is longer than %d characters", maxNameLength)
	}
	return name, nil
}

func (r *Registry) build(in TargetInput) (*models.Target, error) {
	addr, err := parseAddress(in.address())
	if err != nil {
		return nil, err
	}
	name, err := parseName(in.Name)
	if err != nil {
		return nil, err
	}
	env, err := models.ParseEnvironment(in.Environment)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	return &models.Target{
		Address:          addr.Raw,
		CanonicalAddress: addr.Canonical,
		Host:             addr.Host,
		Name:             name,
		Environment:      env,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Create registers a target and checks it once. A failing first check does
// not undo the registration; it is reported in the returned result.
func (r *Registry) Create(ctx context.Context, in TargetInput) (*models.Target, *models.SweepResult, error) {
	target, err := r.build(in)
	if err != nil {
		return nil, nil, err
	}
	if err := r.store.CreateTarget(ctx, target); err != nil {
		return nil, nil, err
	}
	log.Info().Int64("target_id", target.ID).Str("address", target.Address).Msg("Target registered")

	if r.sweeper == nil {
		return target, nil, nil
	}
	result, err := r.sweeper.SweepOne(context.WithoutCancel(ctx), target.ID)
	if err != nil {
		log.Warn().Err(err).Int64("target_id", target.ID).Msg("Initial check failed")
		result = models.SweepResult{TargetID: target.ID, Address: target.Address, Error: err.Error()}
	}
	return target, &result, nil
}

// Update replaces the fields present in the input. Empty fields keep their
// current value.
func (r *Registry) Update(ctx context.Context, id int64, in TargetInput) (*models.Target, error) {
	target, err := r.store.GetTargetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw := in.address(); strings.TrimSpace(raw) != "" {
		addr, err := parseAddress(raw)
		if err != nil {
			return nil, err
		}
		target.Address = addr.Raw
		target.CanonicalAddress = addr.Canonical
		target.Host = addr.Host
	}
	if in.Name != "" {
		name, err := parseName(in.Name)
		if err != nil {
			return nil, err
		}
		target.Name = name
	}
	if in.Environment != "" {
		env, err := models.ParseEnvironment(in.Environment)
		if err != nil {
			return nil, err
		}
		target.Environment = env
	}
	target.UpdatedAt = r.now().UTC()

	if err := r.store.UpdateTarget(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Delete removes a target together with its timeline.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.store.DeleteTarget(ctx, id); err != nil {
		return err
	}
	log.Info().Int64("target_id", id).Msg("Target deleted")
	return nil
}

// Get returns a target with its latest outcome, uptime and history over the
// status window.
func (r *Registry) Get(ctx context.Context, id int64) (*models.TargetStatus, error) {
	target, err := r.store.GetTargetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := r.status(ctx, *target)
	if err != nil {
		return nil, err
	}
	history, err := r.store.ListOutcomes(ctx, storage.ListOutcomesParams{
		TargetID: id,
		Since:    r.now().Add(-StatusWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	status.History = history
	if status.History == nil {
		status.History = []models.Outcome{}
	}
	return status, nil
}

// List returns the status of every target, newest target first. An empty
// environment lists all of them.
func (r *Registry) List(ctx context.Context, environment string) ([]models.TargetStatus, error) {
	params := storage.ListTargetsParams{}
	if environment != "" {
		env, err := models.ParseEnvironment(environment)
		if err != nil {
			return nil, err
		}
		params.Environment = env
	}

	targets, err := r.store.ListTargets(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.TargetStatus, 0, len(targets))
	for _, t := range targets {
		status, err := r.status(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, *status)
	}
	return out, nil
}

func (r *Registry) status(ctx context.Context, t models.Target) (*models.TargetStatus, error) {
	status := &models.TargetStatus{Target: t}

	latest, err := r.store.LatestOutcome(ctx, t.ID)
	switch {
	case err == nil:
		status.Latest = latest
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load latest outcome of target %d: %w", t.ID, err)
	}

	counts, err := r.store.CountOutcomes(ctx, t.ID, r.now().Add(-StatusWindow))
	if err != nil {
		return nil, fmt.Errorf("count outcomes of target %d: %w", t.ID, err)
	}
	status.Uptime = models.UptimePercentage(counts.Up, counts.Total)
	return status, nil
}

// Seed registers targets from a seed file. Targets that already exist are
// skipped; seeded targets are not checked until the next sweep.
func (r *Registry) Seed(ctx context.Context, seeds []config.SeedTarget) (int, error) {
	created := 0
	for _, seed := range seeds {
		target, err := r.build(TargetInput{Address: seed.Address, Name: seed.Name, Environment: seed.Environment})
		if err != nil {
			return created, fmt.Errorf("seed target %q: %w", seed.Address, err)
		}
		err = r.store.CreateTarget(ctx, target)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed target %q: %w", seed.Address, err)
		}
		created++
	}
	if created > 0 {
		log.Info().Int("created", created).Int("total", len(seeds)).Msg("Seeded targets")
	}
	return created, nil
}
