package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datesheet-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDatesheetRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM datesheets WHERE title = $1")).
		WithArgs("Midterms").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO datesheets")).
		WithArgs(sqlmock.AnyArg(), "Midterms", 3, string(models.DatesheetStatusDraft), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 12, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sheet := &models.Datesheet{
		Title:         "Midterms",
		StartDate:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Classes:       types.JSONText(`["6","7"]`),
		DaysAttempted: 12,
	}
	require.NoError(t, repo.CreateVersioned(context.Background(), nil, sheet))
	assert.Equal(t, 3, sheet.Version)
	assert.NotEmpty(t, sheet.ID)
	assert.Equal(t, models.DatesheetStatusDraft, sheet.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatesheetRepositoryCreateVersionedRequiresTitle(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	assert.Error(t, repo.CreateVersioned(context.Background(), nil, &models.Datesheet{Title: "  "}))
	assert.Error(t, repo.CreateVersioned(context.Background(), nil, nil))
}

func TestDatesheetRepositoryInsertRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO datesheet_rows")).
			WithArgs("ds-1", i, sqlmock.AnyArg(), "Monday", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	rows := []models.DatesheetRow{
		{DatesheetID: "ds-1", Position: 0, ExamDate: time.Now(), Weekday: "Monday", Cells: types.JSONText(`["maths"]`)},
		{DatesheetID: "ds-1", Position: 1, ExamDate: time.Now(), Weekday: "Monday", Cells: types.JSONText(`["-"]`)},
	}
	require.NoError(t, repo.InsertRows(context.Background(), nil, rows))
	require.NoError(t, repo.InsertRows(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatesheetRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "version", "status", "start_date", "classes", "input", "days_attempted", "created_by", "created_at", "updated_at", "published_at"}).
		AddRow("ds-1", "Midterms", 1, "draft", time.Now(), []byte(`["6"]`), []byte(`{}`), 4, nil, time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + datesheetColumns + " FROM datesheets WHERE 1=1 AND LOWER(title) LIKE $1 AND status = $2 ORDER BY created_at DESC, version DESC LIMIT 10 OFFSET 10")).
		WithArgs("%mid%", models.DatesheetStatusDraft).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM datesheets WHERE 1=1 AND LOWER(title) LIKE $1 AND status = $2")).
		WithArgs("%mid%", models.DatesheetStatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	list, total, err := repo.List(context.Background(), models.DatesheetFilter{Title: "Mid", Status: models.DatesheetStatusDraft, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Midterms", list[0].Title)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatesheetRepositoryListRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT datesheet_id, position, exam_date, weekday, cells FROM datesheet_rows WHERE datesheet_id = $1 ORDER BY position ASC")).
		WithArgs("ds-1").
		WillReturnRows(sqlmock.NewRows([]string{"datesheet_id", "position", "exam_date", "weekday", "cells"}).
			AddRow("ds-1", 0, time.Now(), "Monday", []byte(`["maths"]`)))

	rows, err := repo.ListRows(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Monday", rows[0].Weekday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatesheetRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM datesheets WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatesheetRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatesheetRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE datesheets SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4")).
		WithArgs(models.DatesheetStatusPublished, sqlmock.AnyArg(), sqlmock.AnyArg(), "ds-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), nil, "ds-1", models.DatesheetStatusPublished))
	assert.NoError(t, mock.ExpectationsWereMet())
}
