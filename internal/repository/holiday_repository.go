package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/datesheet-api/internal/models"
)

// HolidayRepository stores named closures that the calendar must skip.
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository constructs repository.
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// List returns every holiday ordered by start date.
func (r *HolidayRepository) List(ctx context.Context) ([]models.Holiday, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM holidays ORDER BY start_date ASC, name ASC`
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}

// ListBetween returns holidays overlapping the inclusive [from, to] window.
func (r *HolidayRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Holiday, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM holidays
WHERE start_date <= $2 AND end_date >= $1 ORDER BY start_date ASC`
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query, from, to); err != nil {
		return nil, fmt.Errorf("list holidays between: %w", err)
	}
	return holidays, nil
}

// FindByID fetches a holiday by ID.
func (r *HolidayRepository) FindByID(ctx context.Context, id string) (*models.Holiday, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM holidays WHERE id = $1`
	var holiday models.Holiday
	if err := r.db.GetContext(ctx, &holiday, query, id); err != nil {
		return nil, err
	}
	return &holiday, nil
}

// Create inserts a holiday.
func (r *HolidayRepository) Create(ctx context.Context, holiday *models.Holiday) error {
	if holiday.ID == "" {
		holiday.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	holiday.CreatedAt = now
	holiday.UpdatedAt = now

	const query = `INSERT INTO holidays (id, name, start_date, end_date, created_at, updated_at)
VALUES (:id, :name, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, holiday); err != nil {
		return fmt.Errorf("create holiday: %w", err)
	}
	return nil
}

// Update overwrites name and range of an existing holiday.
func (r *HolidayRepository) Update(ctx context.Context, holiday *models.Holiday) error {
	holiday.UpdatedAt = time.Now().UTC()
	const query = `UPDATE holidays SET name = :name, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, holiday)
	if err != nil {
		return fmt.Errorf("update holiday: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("holiday rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a holiday.
func (r *HolidayRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("holiday rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
