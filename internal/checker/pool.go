package checker

import (
	"context"
	"sync"

	"uptimewatch/internal/models"
)

// CheckFunc checks one target.
type CheckFunc func(ctx context.Context, target models.Target) models.SweepResult

// WorkerPool runs checks for a batch of targets and returns the results in
// the order the targets were given. With one worker the batch is visited
// strictly sequentially.
type WorkerPool struct {
	workers     int
	hostLimiter *HostLimiter
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers:     workers,
		hostLimiter: NewHostLimiter(),
	}
}

// Workers reports the pool size.
func (p *WorkerPool) Workers() int { return p.workers }

type job struct {
	index  int
	target models.Target
}

// Run checks every target. Targets not reached before ctx is done get a
// result carrying the context error.
func (p *WorkerPool) Run(ctx context.Context, targets []models.Target, check CheckFunc) []models.SweepResult {
	results := make([]models.SweepResult, len(targets))
	if p.workers == 1 || len(targets) < 2 {
		for i, t := range targets {
			results[i] = p.perform(ctx, t, check)
		}
		return results
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	workers := min(p.workers, len(targets))
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = p.perform(ctx, j.target, check)
			}
		}()
	}
	for i, t := range targets {
		jobs <- job{index: i, target: t}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (p *WorkerPool) perform(ctx context.Context, target models.Target, check CheckFunc) models.SweepResult {
	if err := ctx.Err(); err != nil {
		return models.SweepResult{TargetID: target.ID, Address: target.Address, Error: err.Error()}
	}
	if p.workers > 1 {
		if err := p.hostLimiter.Acquire(ctx, target.Host); err != nil {
			return models.SweepResult{TargetID: target.ID, Address: target.Address, Error: err.Error()}
		}
		defer p.hostLimiter.Release(target.Host)
	}
	return check(ctx, target)
}
