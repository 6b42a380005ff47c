package models

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guregu/null/v5"
)

// Source records which vantage point produced an outcome.
type Source string

const (
	SourceServer    Source = "server"
	SourceAlternate Source = "alternate"
)

// Outcome is the immutable result of one check of one target.
type Outcome struct {
	ID             int64       `json:"id"`
	TargetID       int64       `json:"target_id"`
	StatusCode     null.Int    `json:"status_code"`
	StatusText     null.String `json:"status_text"`
	ResponseTimeMS int64       `json:"response_time"`
	IsUp           bool        `json:"is_up"`
	Location       null.String `json:"location"`
	ErrorMessage   null.String `json:"error_message"`
	Source         Source      `json:"source"`
	CheckedAt      time.Time   `json:"checked_at"`

	// NeedsAlternateCheck is set by the probe engine and never stored.
	NeedsAlternateCheck bool `json:"-"`
}

// IsUpStatus reports whether a status code counts as the target being up.
func IsUpStatus(code int) bool {
	return code >= 200 && code < 400
}

// IsRedirectStatus reports whether a status code is a redirect.
func IsRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// IsRedirect is derived from the status code.
func (o Outcome) IsRedirect() bool {
	return o.StatusCode.Valid && IsRedirectStatus(int(o.StatusCode.Int64))
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(struct {
		plain
		IsRedirect bool `json:"is_redirect"`
	}{plain(o), o.IsRedirect()})
}

// Validate checks the consistency rules every stored outcome must satisfy.
func (o Outcome) Validate() error {
	if o.TargetID <= 0 {
		return fmt.Errorf("%w: outcome has no target", ErrValidation)
	}
	if o.Source != SourceServer && o.Source != SourceAlternate {
		return fmt.Errorf("%w: unknown outcome source %q", ErrValidation, o.Source)
	}
	if o.CheckedAt.IsZero() {
		return fmt.Errorf("%w: outcome has no check time", ErrValidation)
	}
	if o.ResponseTimeMS < 0 {
		return fmt.Errorf("%w: negative response time", ErrValidation)
	}
	if o.StatusCode.Valid {
		code := int(o.StatusCode.Int64)
		if code < 100 || code > 999 {
			return fmt.Errorf("%w: status code %d is not a three-digit code", ErrValidation, code)
		}
		if o.IsUp != IsUpStatus(code) {
			return fmt.Errorf("%w: is_up=%t contradicts status code %d", ErrValidation, o.IsUp, code)
		}
		if o.ErrorMessage.Valid {
			return fmt.Errorf("%w: error message set together with status code %d", ErrValidation, code)
		}
		return nil
	}
	if o.IsUp {
		return fmt.Errorf("%w: outcome is up without a status code", ErrValidation)
	}
	if !o.ErrorMessage.Valid || o.ErrorMessage.String == "" {
		return fmt.Errorf("%w: failed outcome needs an error message", ErrValidation)
	}
	return nil
}

// UptimePercentage returns up/total as a percentage, or 0 for an empty window.
func UptimePercentage(up, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(up) / float64(total) * 100
}
