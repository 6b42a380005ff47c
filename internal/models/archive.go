package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// ArchiveEntry is a retired outcome kept for export.
type ArchiveEntry struct {
	ID             int64       `json:"id"`
	SourceID       int64       `json:"source_id"`
	TargetID       int64       `json:"target_id"`
	StatusCode     null.Int    `json:"status_code"`
	StatusText     null.String `json:"status_text"`
	ResponseTimeMS int64       `json:"response_time"`
	IsUp           bool        `json:"is_up"`
	Location       null.String `json:"location"`
	ErrorMessage   null.String `json:"error_message"`
	Source         Source      `json:"source"`
	CheckedAt      time.Time   `json:"checked_at"`
	ArchivedAt     time.Time   `json:"archived_at"`
}

// NewArchiveEntry copies an outcome into an archive entry.
func NewArchiveEntry(o Outcome, archivedAt time.Time) ArchiveEntry {
	return ArchiveEntry{
		SourceID:       o.ID,
		TargetID:       o.TargetID,
		StatusCode:     o.StatusCode,
		StatusText:     o.StatusText,
		ResponseTimeMS: o.ResponseTimeMS,
		IsUp:           o.IsUp,
		Location:       o.Location,
		ErrorMessage:   o.ErrorMessage,
		Source:         o.Source,
		CheckedAt:      o.CheckedAt,
		ArchivedAt:     archivedAt,
	}
}

// ArchiveResult counts the work done by one archival run.
type ArchiveResult struct {
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}

// ArchiveStatus describes the archive backlog.
type ArchiveStatus struct {
	RecordsToArchive int64 `json:"records_to_archive"`
	TotalArchived    int64 `json:"total_archived"`
}
