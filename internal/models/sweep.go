package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// AlternateProbePlan tells a client how to re-check a target from its own
// network position.
type AlternateProbePlan struct {
	CheckID   string    `json:"check_id"`
	TargetID  int64     `json:"target_id"`
	ImageURL  string    `json:"image_url"`
	FrameURL  string    `json:"frame_url"`
	TimeoutMS int64     `json:"timeout_ms"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SweepResult reports what happened to one target during a sweep.
type SweepResult struct {
	TargetID            int64               `json:"target_id"`
	Address             string              `json:"address"`
	Outcome             *Outcome            `json:"outcome,omitempty"`
	Recorded            bool                `json:"recorded"`
	NeedsAlternateCheck bool                `json:"needs_alternate_check"`
	AlternateCheck      *AlternateProbePlan `json:"alternate_check,omitempty"`
	Error               string              `json:"error,omitempty"`
}

// AlternateCheckResult is submitted by a client after an alternate probe.
type AlternateCheckResult struct {
	TargetID     int64       `json:"targetId"`
	CheckID      string      `json:"checkId,omitempty"`
	IsUp         bool        `json:"isUp"`
	ResponseTime null.Int    `json:"responseTime"`
	StatusCode   null.Int    `json:"statusCode"`
	ErrorMessage null.String `json:"errorMessage"`
	Via          string      `json:"via,omitempty"`
}

// SweepSummary aggregates the results of a sweep.
type SweepSummary struct {
	Checked          int           `json:"checked"`
	Failed           int           `json:"failed"`
	PendingAlternate int           `json:"pending_alternate"`
	Results          []SweepResult `json:"results"`
}

// Summarize counts failures and pending alternate checks.
func Summarize(results []SweepResult) SweepSummary {
	s := SweepSummary{Checked: len(results), Results: results}
	if s.Results == nil {
		s.Results = []SweepResult{}
	}
	for _, r := range results {
		if r.Error != "" {
			s.Failed++
		}
		if r.AlternateCheck != nil {
			s.PendingAlternate++
		}
	}
	return s
}

// CronReport is the outcome of one clock-driven run: a sweep and, inside
// the archive window, an archival pass.
type CronReport struct {
	Success          bool           `json:"success"`
	Sweep            *SweepSummary  `json:"sweep,omitempty"`
	SweepError       string         `json:"sweep_error,omitempty"`
	ArchiveScheduled bool           `json:"archive_scheduled"`
	Archive          *ArchiveResult `json:"archive,omitempty"`
	ArchiveError     string         `json:"archive_error,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	LocalTime        string         `json:"local_time"`
}
