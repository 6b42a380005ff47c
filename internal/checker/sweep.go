// Package checker runs sweeps over the registered targets and reconciles
// server probes with alternate vantage point checks.
package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v5"

	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/probe"
	"uptimewatch/internal/storage"
)

// Sweeper probes targets and gates each outcome through the Coordinator.
type Sweeper struct {
	targets storage.TargetStore
	prober  probe.Prober
	gate    *Coordinator
	pool    *WorkerPool
}

// NewSweeper creates a Sweeper. A nil pool means one worker.
func NewSweeper(targets storage.TargetStore, prober probe.Prober, gate *Coordinator, pool *WorkerPool) *Sweeper {
	if pool == nil {
		pool = NewWorkerPool(1)
	}
	return &Sweeper{targets: targets, prober: prober, gate: gate, pool: pool}
}

// SweepOne checks a single target. Errors are returned only when the target
// cannot be loaded; probe and persistence failures are part of the result.
func (s *Sweeper) SweepOne(ctx context.Context, targetID int64) (models.SweepResult, error) {
	target, err := s.targets.GetTargetByID(ctx, targetID)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("load target %d: %w", targetID, err)
	}
	return s.Check(ctx, *target), nil
}

// SweepAll checks every target, one result per target in id order. A failure
// on one target never prevents the others from being checked.
func (s *Sweeper) SweepAll(ctx context.Context) ([]models.SweepResult, error) {
	targets, err := s.targets.GetAllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	started := time.Now()
	results := s.pool.Run(ctx, targets, s.Check)

	var up, down, alternate, failed int
	for _, r := range results {
		switch {
		case r.Error != "":
			failed++
		case r.AlternateCheck != nil:
			alternate++
		case r.Outcome != nil && r.Outcome.IsUp:
			up++
		default:
			down++
		}
	}
	log.Info().
		Int("targets", len(targets)).
		Int("up", up).
		Int("down", down).
		Int("alternate", alternate).
		Int("failed", failed).
		Dur("took", time.Since(started)).
		Msg("Sweep finished")
	return results, nil
}

// Check probes target and gates the outcome.
func (s *Sweeper) Check(ctx context.Context, target models.Target) models.SweepResult {
	outcome := s.safeProbe(ctx, target)
	return s.gate.Gate(ctx, target, outcome)
}

// safeProbe contains a panicking prober to the target being checked.
func (s *Sweeper) safeProbe(ctx context.Context, target models.Target) (out models.Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("target_id", target.ID).Interface("panic", r).Msg("Probe panicked")
			out = models.Outcome{
				TargetID:       target.ID,
				ResponseTimeMS: time.Since(started).Milliseconds(),
				ErrorMessage:   null.StringFrom(fmt.Sprintf("internal: %v", r)),
				Source:         models.SourceServer,
				CheckedAt:      started.UTC(),
			}
		}
	}()
	return s.prober.Probe(ctx, target)
}
