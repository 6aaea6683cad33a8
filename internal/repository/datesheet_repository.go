package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/datesheet-api/internal/models"
)

const datesheetColumns = "id, title, version, status, start_date, classes, input, days_attempted, created_by, created_at, updated_at, published_at"

// DatesheetRepository persists versioned datesheets and their rows.
type DatesheetRepository struct {
	db *sqlx.DB
}

// NewDatesheetRepository constructs repository.
func NewDatesheetRepository(db *sqlx.DB) *DatesheetRepository {
	return &DatesheetRepository{db: db}
}

func (r *DatesheetRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a datesheet assigning the next version for its title.
func (r *DatesheetRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, sheet *models.Datesheet) error {
	if sheet == nil {
		return fmt.Errorf("datesheet payload is nil")
	}
	if strings.TrimSpace(sheet.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if sheet.ID == "" {
		sheet.ID = uuid.NewString()
	}
	if sheet.Status == "" {
		sheet.Status = models.DatesheetStatusDraft
	}
	if len(sheet.Classes) == 0 {
		sheet.Classes = types.JSONText(`[]`)
	}
	if len(sheet.Input) == 0 {
		sheet.Input = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if sheet.CreatedAt.IsZero() {
		sheet.CreatedAt = now
	}
	sheet.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM datesheets WHERE title = $1`
	if err := sqlx.GetContext(ctx, target, &sheet.Version, nextVersionQuery, sheet.Title); err != nil {
		return fmt.Errorf("compute next datesheet version: %w", err)
	}

	const insertQuery = `
INSERT INTO datesheets (id, title, version, status, start_date, classes, input, days_attempted, created_by, created_at, updated_at, published_at)
VALUES (:id, :title, :version, :status, :start_date, :classes, :input, :days_attempted, :created_by, :created_at, :updated_at, :published_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, sheet); err != nil {
		return fmt.Errorf("insert datesheet: %w", err)
	}
	return nil
}

// InsertRows stores the exam days of a datesheet.
func (r *DatesheetRepository) InsertRows(ctx context.Context, exec sqlx.ExtContext, rows []models.DatesheetRow) error {
	if len(rows) == 0 {
		return nil
	}
	target := r.exec(exec)

	const query = `
INSERT INTO datesheet_rows (datesheet_id, position, exam_date, weekday, cells)
VALUES (:datesheet_id, :position, :exam_date, :weekday, :cells)`

	for i := range rows {
		if _, err := sqlx.NamedExecContext(ctx, target, query, &rows[i]); err != nil {
			return fmt.Errorf("insert datesheet row %d: %w", rows[i].Position, err)
		}
	}
	return nil
}

// List returns one page of datesheets, newest first, and the total match count.
func (r *DatesheetRepository) List(ctx context.Context, filter models.DatesheetFilter) ([]models.Datesheet, int, error) {
	base := "FROM datesheets WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Title != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Title)+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC, version DESC LIMIT %d OFFSET %d", datesheetColumns, base, size, offset)
	var sheets []models.Datesheet
	if err := r.db.SelectContext(ctx, &sheets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list datesheets: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count datesheets: %w", err)
	}
	return sheets, total, nil
}

// FindByID loads a datesheet header by its identifier.
func (r *DatesheetRepository) FindByID(ctx context.Context, id string) (*models.Datesheet, error) {
	query := "SELECT " + datesheetColumns + " FROM datesheets WHERE id = $1"
	var sheet models.Datesheet
	if err := r.db.GetContext(ctx, &sheet, query, id); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// ListRows returns the rows of a datesheet in date order.
func (r *DatesheetRepository) ListRows(ctx context.Context, datesheetID string) ([]models.DatesheetRow, error) {
	const query = `SELECT datesheet_id, position, exam_date, weekday, cells
FROM datesheet_rows WHERE datesheet_id = $1 ORDER BY position ASC`
	var rows []models.DatesheetRow
	if err := r.db.SelectContext(ctx, &rows, query, datesheetID); err != nil {
		return nil, fmt.Errorf("list datesheet rows: %w", err)
	}
	return rows, nil
}

// Delete removes a datesheet; its rows cascade.
func (r *DatesheetRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM datesheets WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete datesheet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("datesheet rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves a datesheet to status, stamping published_at when publishing.
func (r *DatesheetRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.DatesheetStatus) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var publishedAt *time.Time
	if status == models.DatesheetStatusPublished {
		publishedAt = &now
	}

	const query = `UPDATE datesheets SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4`
	result, err := target.ExecContext(ctx, query, status, publishedAt, now, id)
	if err != nil {
		return fmt.Errorf("update datesheet status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("datesheet status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
