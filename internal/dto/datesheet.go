package dto

import (
	"time"

	"github.com/noah-isme/datesheet-api/internal/models"
)

// ClassSubjects is one row of the subject table. An empty Subjects list is
// allowed and yields a class that is finished from the first day.
type ClassSubjects struct {
	Class    string   `json:"class" validate:"required,max=64"`
	Subjects []string `json:"subjects" validate:"max=64,dive,required,max=64"`
}

// GenerateDatesheetRequest asks the engine for a datesheet proposal.
type GenerateDatesheetRequest struct {
	Classes           []ClassSubjects `json:"classes" validate:"required,min=1,max=64,dive"`
	StartDate         string          `json:"startDate" validate:"required"`
	Holidays          []string        `json:"holidays" validate:"max=366"`
	UseStoredHolidays bool            `json:"useStoredHolidays"`
	MaxDays           int             `json:"maxDays" validate:"omitempty,min=1,max=3650"`
	Recency           string          `json:"recency" validate:"omitempty,oneof=per_class daily"`
	SyncCohorts       []string        `json:"syncCohorts" validate:"omitempty,dive,required"`
}

// DatesheetRowView is one rendered exam day.
type DatesheetRowView struct {
	Date    string   `json:"date"`
	Weekday string   `json:"weekday"`
	Cells   []string `json:"cells"`
}

// SkippedDateView explains why a calendar day was not used.
type SkippedDateView struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// GenerateDatesheetResponse carries the proposal. Status is completed,
// stalled or day_cap_exceeded; the latter two still include the rows built.
type GenerateDatesheetResponse struct {
	ProposalID    string              `json:"proposalId"`
	Status        string              `json:"status"`
	Classes       []string            `json:"classes"`
	Rows          []DatesheetRowView  `json:"rows"`
	Skipped       []SkippedDateView   `json:"skipped,omitempty"`
	Remaining     map[string][]string `json:"remaining,omitempty"`
	DaysAttempted int                 `json:"daysAttempted"`
	Assignments   int                 `json:"assignments"`
	StalledOn     string              `json:"stalledOn,omitempty"`
	Cached        bool                `json:"cached"`
	ExpiresAt     time.Time           `json:"expiresAt"`
}

// SaveDatesheetRequest persists a completed proposal under a title.
type SaveDatesheetRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Title      string `json:"title" validate:"required,max=200"`
	CreatedBy  string `json:"-"`
}

// DatesheetQuery filters stored datesheets.
type DatesheetQuery struct {
	Title    string `form:"title" json:"title"`
	Status   string `form:"status" json:"status" validate:"omitempty,oneof=draft published"`
	Page     int    `form:"page" json:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=100"`
}

// DatesheetDetail is a stored datesheet with its rows.
type DatesheetDetail struct {
	Datesheet *models.Datesheet  `json:"datesheet"`
	Rows      []DatesheetRowView `json:"rows"`
}

// SubjectTableResponse is the editable subject table.
type SubjectTableResponse struct {
	Classes []ClassSubjects `json:"classes"`
}

// VariantSpec describes one alternative run inside a batch.
type VariantSpec struct {
	Label     string   `json:"label" validate:"omitempty,max=64"`
	StartDate string   `json:"startDate" validate:"required"`
	Holidays  []string `json:"holidays" validate:"max=366"`
}

// GenerateVariantsRequest runs the same subject table under several calendars.
type GenerateVariantsRequest struct {
	Classes           []ClassSubjects `json:"classes" validate:"required,min=1,max=64,dive"`
	Variants          []VariantSpec   `json:"variants" validate:"required,min=1,dive"`
	UseStoredHolidays bool            `json:"useStoredHolidays"`
	MaxDays           int             `json:"maxDays" validate:"omitempty,min=1,max=3650"`
	Recency           string          `json:"recency" validate:"omitempty,oneof=per_class daily"`
}

// VariantBatchStatus values.
const (
	VariantBatchRunning  = "running"
	VariantBatchFinished = "finished"
)

// VariantResult is the outcome of one variant.
type VariantResult struct {
	Label      string                     `json:"label"`
	StartDate  string                     `json:"startDate"`
	Status     string                     `json:"status"`
	Error      string                     `json:"error,omitempty"`
	Rows       int                        `json:"rows"`
	LastDate   string                     `json:"lastDate,omitempty"`
	Proposal   *GenerateDatesheetResponse `json:"proposal,omitempty"`
	FinishedAt *time.Time                 `json:"finishedAt,omitempty"`
}

// VariantBatchResponse reports batch progress.
type VariantBatchResponse struct {
	BatchID   string          `json:"batchId"`
	Status    string          `json:"status"`
	Total     int             `json:"total"`
	Finished  int             `json:"finished"`
	Results   []VariantResult `json:"results"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ExportDatesheetRequest selects the rendered file format.
type ExportDatesheetRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse points to a rendered file.
type ExportResponse struct {
	Format    string    `json:"format"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
