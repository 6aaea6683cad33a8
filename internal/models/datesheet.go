package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DatesheetStatus tracks whether a stored datesheet may still change.
type DatesheetStatus string

const (
	DatesheetStatusDraft     DatesheetStatus = "draft"
	DatesheetStatusPublished DatesheetStatus = "published"
)

// Datesheet is a persisted, versioned exam timetable. Classes holds the ordered
// column names and Input the backlog table it was generated from.
type Datesheet struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Version       int             `db:"version" json:"version"`
	Status        DatesheetStatus `db:"status" json:"status"`
	StartDate     time.Time       `db:"start_date" json:"start_date"`
	Classes       types.JSONText  `db:"classes" json:"classes"`
	Input         types.JSONText  `db:"input" json:"input"`
	DaysAttempted int             `db:"days_attempted" json:"days_attempted"`
	CreatedBy     *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	PublishedAt   *time.Time      `db:"published_at" json:"published_at,omitempty"`
}

// DatesheetRow is one exam day of a stored datesheet. Cells is a JSON array
// aligned with the parent's Classes.
type DatesheetRow struct {
	DatesheetID string         `db:"datesheet_id" json:"datesheet_id"`
	Position    int            `db:"position" json:"position"`
	ExamDate    time.Time      `db:"exam_date" json:"exam_date"`
	Weekday     string         `db:"weekday" json:"weekday"`
	Cells       types.JSONText `db:"cells" json:"cells"`
}

// DatesheetFilter narrows list queries.
type DatesheetFilter struct {
	Title    string
	Status   DatesheetStatus
	Page     int
	PageSize int
}
