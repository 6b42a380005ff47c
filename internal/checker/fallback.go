package checker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/urlutil"
)

const (
	DefaultCheckTTL         = 15 * time.Minute
	DefaultAlternateTimeout = 8 * time.Second

	defaultAlternateFailure = "alternate probe failed"
	maxViaLength            = 32
)

// ErrUnknownCheck is returned for an alternate result whose check id was
// never issued, has expired or was already used.
var ErrUnknownCheck = errors.New("unknown or expired alternate check")

type pendingCheck struct {
	targetID  int64
	expiresAt time.Time
}

// Coordinator decides whether a server outcome is written or handed to a
// client for an alternate probe, and records the alternate results.
type Coordinator struct {
	targets  storage.TargetStore
	timeline storage.TimelineStore

	ttl              time.Duration
	alternateTimeout time.Duration
	now              func() time.Time

	mu      sync.Mutex
	pending map[string]pendingCheck
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCheckTTL sets how long an issued alternate check stays redeemable.
func WithCheckTTL(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithAlternateTimeout sets the timeout handed to the client in a plan.
func WithAlternateTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.alternateTimeout = d
		}
	}
}

// WithCoordinatorClock overrides time.Now.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(targets storage.TargetStore, timeline storage.TimelineStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		targets:          targets,
		timeline:         timeline,
		ttl:              DefaultCheckTTL,
		alternateTimeout: DefaultAlternateTimeout,
		now:              time.Now,
		pending:          make(map[string]pendingCheck),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Gate persists outcome unless it asks for an alternate check, in which case
// nothing is written and the result carries a probe plan instead.
func (c *Coordinator) Gate(ctx context.Context, target models.Target, outcome models.Outcome) models.SweepResult {
	result := models.SweepResult{TargetID: target.ID, Address: target.Address}

	if outcome.NeedsAlternateCheck {
		plan, err := c.plan(target)
		if err == nil {
			result.Outcome = &outcome
			result.NeedsAlternateCheck = true
			result.AlternateCheck = plan
			log.Info().
				Int64("target_id", target.ID).
				Str("check_id", plan.CheckID).
				Str("reason", outcome.ErrorMessage.String).
				Msg("Server probe inconclusive, alternate check requested")
			return result
		}
		log.Warn().Err(err).Int64("target_id", target.ID).Msg("Cannot build alternate probe plan, recording server outcome")
	}

	if err := c.timeline.CreateOutcome(ctx, &outcome); err != nil {
		log.Error().Err(err).Int64("target_id", target.ID).Msg("Failed to record outcome")
		result.Outcome = &outcome
		result.Error = fmt.Sprintf("record outcome: %v", err)
		return result
	}
	result.Outcome = &outcome
	result.Recorded = true
	return result
}

func (c *Coordinator) plan(target models.Target) (*models.AlternateProbePlan, error) {
	address := target.Address
	if address == "" {
		address = target.CanonicalAddress
	}
	now := c.now()

	image, err := urlutil.ImageProbeURL(address)
	if err != nil {
		return nil, err
	}
	if image, err = urlutil.CacheBust(image, now); err != nil {
		return nil, err
	}
	frame, err := urlutil.CacheBust(address, now)
	if err != nil {
		return nil, err
	}

	plan := &models.AlternateProbePlan{
		CheckID:   uuid.NewString(),
		TargetID:  target.ID,
		ImageURL:  image,
		FrameURL:  frame,
		TimeoutMS: c.alternateTimeout.Milliseconds(),
		ExpiresAt: now.Add(c.ttl).UTC(),
	}

	c.mu.Lock()
	c.pruneLocked(now)
	c.pending[plan.CheckID] = pendingCheck{targetID: target.ID, expiresAt: plan.ExpiresAt}
	c.mu.Unlock()
	return plan, nil
}

// RecordAlternate validates an alternate probe result and appends it to the
// timeline. A check id, when given, is redeemed exactly once.
func (c *Coordinator) RecordAlternate(ctx context.Context, res models.AlternateCheckResult) (*models.Outcome, error) {
	if res.TargetID <= 0 {
		return nil, fmt.Errorf("%w: targetId is required", models.ErrValidation)
	}
	if _, err := c.targets.GetTargetByID(ctx, res.TargetID); err != nil {
		return nil, err
	}

	now := c.now()
	outcome, err := normalizeAlternate(res, now)
	if err != nil {
		return nil, err
	}

	if res.CheckID != "" {
		if err := c.claim(res.CheckID, res.TargetID, now); err != nil {
			return nil, err
		}
	}

	if err := c.timeline.CreateOutcome(ctx, &outcome); err != nil {
		if res.CheckID != "" {
			c.restore(res.CheckID, res.TargetID, now)
		}
		return nil, fmt.Errorf("record alternate outcome: %w", err)
	}

	log.Info().
		Int64("target_id", res.TargetID).
		Str("check_id", res.CheckID).
		Bool("is_up", outcome.IsUp).
		Msg("Alternate check recorded")
	return &outcome, nil
}

// Pending reports the number of unexpired alternate checks.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	return len(c.pending)
}

func (c *Coordinator) claim(checkID string, targetID int64, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[checkID]
	if !ok || !now.Before(p.expiresAt) || p.targetID != targetID {
		return ErrUnknownCheck
	}
	delete(c.pending, checkID)
	return nil
}

func (c *Coordinator) restore(checkID string, targetID int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[checkID] = pendingCheck{targetID: targetID, expiresAt: now.Add(c.ttl)}
}

func (c *Coordinator) pruneLocked(now time.Time) {
	for id, p := range c.pending {
		if !now.Before(p.expiresAt) {
			delete(c.pending, id)
		}
	}
}

// normalizeAlternate turns a client report into a consistent outcome.
func normalizeAlternate(res models.AlternateCheckResult, now time.Time) (models.Outcome, error) {
	out := models.Outcome{
		TargetID:  res.TargetID,
		Source:    models.SourceAlternate,
		CheckedAt: now.UTC(),
		IsUp:      res.IsUp,
	}

	if res.ResponseTime.Valid {
		if res.ResponseTime.Int64 < 0 {
			return out, fmt.Errorf("%w: responseTime must not be negative", models.ErrValidation)
		}
		out.ResponseTimeMS = res.ResponseTime.Int64
	}

	message := strings.TrimSpace(res.ErrorMessage.String)
	hasMessage := res.ErrorMessage.Valid && message != ""
	suffix := "(alternate)"
	if via := sanitizeVia(res.Via); via != "" {
		suffix = "(alternate: " + via + ")"
	}

	switch {
	case res.IsUp && hasMessage:
		return out, fmt.Errorf("%w: an up result cannot carry an error message", models.ErrValidation)
	case res.StatusCode.Valid && hasMessage:
		return out, fmt.Errorf("%w: a result with a status code cannot carry an error message", models.ErrValidation)
	case res.StatusCode.Valid:
		code := int(res.StatusCode.Int64)
		if code < 100 || code > 599 {
			return out, fmt.Errorf("%w: statusCode %d out of range", models.ErrValidation, code)
		}
		if models.IsUpStatus(code) != res.IsUp {
			return out, fmt.Errorf("%w: isUp=%t contradicts statusCode %d", models.ErrValidation, res.IsUp, code)
		}
		out.StatusCode = null.IntFrom(int64(code))
		out.StatusText = null.StringFrom(strings.TrimSpace(http.StatusText(code) + " " + suffix))
	case res.IsUp:
		out.StatusCode = null.IntFrom(http.StatusOK)
		out.StatusText = null.StringFrom("OK " + suffix)
	case hasMessage:
		out.ErrorMessage = null.StringFrom(message)
	default:
		out.ErrorMessage = null.StringFrom(defaultAlternateFailure)
	}

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func sanitizeVia(via string) string {
	via = strings.TrimSpace(via)
	var b strings.Builder
	for _, r := range via {
		if r == '-' || r == '_' || r == '/' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= maxViaLength {
			break
		}
	}
	return b.String()
}
