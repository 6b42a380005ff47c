package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks input that failed domain validation.
var ErrValidation = errors.New("validation failed")

// Environment tags a target as a testing or production endpoint.
type Environment string

const (
	EnvironmentTesting    Environment = "testing"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment maps an input string to an Environment. The empty string
// selects testing; anything else outside the two known values is rejected.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvironmentTesting:
		return EnvironmentTesting, nil
	case EnvironmentProduction:
		return EnvironmentProduction, nil
	}
	return "", fmt.Errorf("%w: environment must be %q or %q, got %q", ErrValidation, EnvironmentTesting, EnvironmentProduction, s)
}

// Target represents an address to be monitored.
type Target struct {
	ID               int64       `json:"id"`
	Address          string      `json:"address"`
	CanonicalAddress string      `json:"-"` // uniqueness key
	Host             string      `json:"-"` // per-host limiter key
	Name             string      `json:"name"`
	Environment      Environment `json:"environment"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TargetStatus is a target together with its current state and recent history.
type TargetStatus struct {
	Target
	Latest  *Outcome  `json:"latest"`
	Uptime  float64   `json:"uptime_percentage"`
	History []Outcome `json:"history,omitempty"`
}

// AdminUser is an operator allowed to manage targets.
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
