package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/models"
	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
)

type datesheetRepoStub struct {
	created   []*models.Datesheet
	rows      []models.DatesheetRow
	sheets    map[string]*models.Datesheet
	stored    map[string][]models.DatesheetRow
	deleted   []string
	published []string
	createErr error
}

func newDatesheetRepoStub() *datesheetRepoStub {
	return &datesheetRepoStub{sheets: map[string]*models.Datesheet{}, stored: map[string][]models.DatesheetRow{}}
}

func (r *datesheetRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, sheet *models.Datesheet) error {
	if r.createErr != nil {
		return r.createErr
	}
	sheet.ID = "ds-1"
	sheet.Version = len(r.created) + 1
	r.created = append(r.created, sheet)
	return nil
}

func (r *datesheetRepoStub) InsertRows(ctx context.Context, exec sqlx.ExtContext, rows []models.DatesheetRow) error {
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *datesheetRepoStub) List(ctx context.Context, filter models.DatesheetFilter) ([]models.Datesheet, int, error) {
	out := make([]models.Datesheet, 0, len(r.sheets))
	for _, sheet := range r.sheets {
		out = append(out, *sheet)
	}
	return out, len(out), nil
}

func (r *datesheetRepoStub) FindByID(ctx context.Context, id string) (*models.Datesheet, error) {
	sheet, ok := r.sheets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *sheet
	return &copied, nil
}

func (r *datesheetRepoStub) ListRows(ctx context.Context, datesheetID string) ([]models.DatesheetRow, error) {
	return r.stored[datesheetID], nil
}

func (r *datesheetRepoStub) Delete(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *datesheetRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.DatesheetStatus) error {
	r.published = append(r.published, id)
	return nil
}

type holidayCalendarStub struct {
	dates []time.Time
	from  time.Time
	to    time.Time
}

func (h *holidayCalendarStub) DatesBetween(ctx context.Context, from, to time.Time) (datesheet.HolidaySet, error) {
	h.from, h.to = from, to
	return datesheet.NewHolidaySet(h.dates...), nil
}

type memoryCache struct {
	items map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

type runRecorderStub struct {
	statuses []string
}

func (r *runRecorderStub) ObserveRun(status string, daysAttempted int, duration time.Duration) {
	r.statuses = append(r.statuses, status)
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type datesheetServiceFixture struct {
	svc      *DatesheetService
	repo     *datesheetRepoStub
	holidays *holidayCalendarStub
	cache    *memoryCache
	metrics  *runRecorderStub
	mock     sqlmock.Sqlmock
}

func newDatesheetServiceFixture(t *testing.T, cfg DatesheetConfig) *datesheetServiceFixture {
	t.Helper()
	repo := newDatesheetRepoStub()
	holidays := &holidayCalendarStub{}
	cache := &memoryCache{items: map[string][]byte{}}
	metrics := &runRecorderStub{}
	tx, mock := newTxProviderMock(t)
	svc := NewDatesheetService(repo, holidays, tx, cache, metrics, nil, nil, cfg)
	return &datesheetServiceFixture{svc: svc, repo: repo, holidays: holidays, cache: cache, metrics: metrics, mock: mock}
}

func simpleGenerateRequest() dto.GenerateDatesheetRequest {
	return dto.GenerateDatesheetRequest{
		Classes: []dto.ClassSubjects{
			{Class: "6", Subjects: []string{"maths", "english"}},
			{Class: " 11 Science ", Subjects: []string{"physics"}},
			{Class: "11 commerce", Subjects: []string{"physics", "economics"}},
		},
		StartDate: "2024-01-01",
	}
}

func TestDatesheetServiceGenerateCompleted(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})

	resp, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)

	assert.Equal(t, "completed", resp.Status)
	assert.NotEmpty(t, resp.ProposalID)
	assert.False(t, resp.Cached)
	assert.Equal(t, []string{"6", "11 science", "11 commerce"}, resp.Classes)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "01-01-2024", resp.Rows[0].Date)
	assert.Equal(t, "Monday", resp.Rows[0].Weekday)
	assert.Equal(t, []string{"maths", "physics", "physics"}, resp.Rows[0].Cells)
	assert.Equal(t, []string{"english", "-", "economics"}, resp.Rows[1].Cells)
	assert.Equal(t, []string{"completed"}, f.metrics.statuses)
}

func TestDatesheetServiceGenerateServesRepeatsFromCache(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})

	first, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)
	second, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Len(t, f.metrics.statuses, 1)
	assert.Len(t, f.cache.items, 1)
	for key := range f.cache.items {
		assert.True(t, strings.HasPrefix(key, generateCachePrefix))
	}
}

func TestDatesheetServiceGenerateStalledReturnsPartialResult(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	req := dto.GenerateDatesheetRequest{
		Classes:   []dto.ClassSubjects{{Class: "6", Subjects: []string{"maths", "maths"}}},
		StartDate: "01-01-2024",
	}

	resp, err := f.svc.Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrScheduleStalled))
	require.NotNil(t, resp)
	assert.Equal(t, "stalled", resp.Status)
	assert.Len(t, resp.Rows, 1)
	assert.Equal(t, map[string][]string{"6": {"maths"}}, resp.Remaining)
	assert.Equal(t, "02-01-2024", resp.StalledOn)
}

func TestDatesheetServiceGenerateDayCap(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{MaxDays: 1})
	req := dto.GenerateDatesheetRequest{
		Classes:   []dto.ClassSubjects{{Class: "6", Subjects: []string{"maths", "english"}}},
		StartDate: "2024-01-01",
	}

	resp, err := f.svc.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrDayCapExceeded))
	require.NotNil(t, resp)
	assert.Equal(t, "day_cap_exceeded", resp.Status)
	assert.Equal(t, 1, resp.DaysAttempted)
}

func TestDatesheetServiceGenerateMergesStoredHolidays(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{MaxDays: 30})
	f.holidays.dates = []time.Time{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
	req := simpleGenerateRequest()
	req.UseStoredHolidays = true
	req.Holidays = []string{"2024-01-02"}

	resp, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "03-01-2024", resp.Rows[0].Date)
	assert.Equal(t, time.Date(2024, time.January, 30, 0, 0, 0, 0, time.UTC), f.holidays.to)
	require.Len(t, resp.Skipped, 2)
	assert.Equal(t, string(datesheet.BlockHoliday), resp.Skipped[0].Reason)
}

func TestDatesheetServiceGenerateValidation(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})

	_, err := f.svc.Generate(context.Background(), dto.GenerateDatesheetRequest{StartDate: "2024-01-01"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req := simpleGenerateRequest()
	req.StartDate = "someday"
	_, err = f.svc.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = simpleGenerateRequest()
	req.Recency = "weekly"
	_, err = f.svc.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = simpleGenerateRequest()
	req.Classes = append(req.Classes, dto.ClassSubjects{Class: "6 ", Subjects: []string{"art"}})
	_, err = f.svc.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidInput))
	assert.ErrorIs(t, err, datesheet.ErrDuplicateClass)
	assert.Empty(t, f.metrics.statuses)
}

func TestDatesheetServiceSave(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	resp, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	record, err := f.svc.Save(context.Background(), dto.SaveDatesheetRequest{ProposalID: resp.ProposalID, Title: " Term 1 ", CreatedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "ds-1", record.ID)
	assert.Equal(t, "Term 1", record.Title)
	assert.Equal(t, models.DatesheetStatusDraft, record.Status)
	assert.JSONEq(t, `["6","11 science","11 commerce"]`, string(record.Classes))
	require.NotNil(t, record.CreatedBy)
	assert.Equal(t, "admin", *record.CreatedBy)

	require.Len(t, f.repo.rows, 2)
	assert.Equal(t, "ds-1", f.repo.rows[1].DatesheetID)
	assert.Equal(t, 1, f.repo.rows[1].Position)
	assert.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), f.repo.rows[1].ExamDate)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	_, err = f.svc.Save(context.Background(), dto.SaveDatesheetRequest{ProposalID: resp.ProposalID, Title: "again"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDatesheetServiceSaveRollsBackOnFailure(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	resp, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)
	f.repo.createErr = errors.New("boom")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err = f.svc.Save(context.Background(), dto.SaveDatesheetRequest{ProposalID: resp.ProposalID, Title: "Term 1"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDatesheetServiceSaveRejectsIncompleteProposal(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	resp, err := f.svc.Generate(context.Background(), dto.GenerateDatesheetRequest{
		Classes:   []dto.ClassSubjects{{Class: "6", Subjects: []string{"maths", "maths"}}},
		StartDate: "2024-01-01",
	})
	require.Error(t, err)

	_, err = f.svc.Save(context.Background(), dto.SaveDatesheetRequest{ProposalID: resp.ProposalID, Title: "Term 1"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestDatesheetServiceProposalExpires(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{ProposalTTL: time.Millisecond})
	resp, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = f.svc.Save(context.Background(), dto.SaveDatesheetRequest{ProposalID: resp.ProposalID, Title: "late"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDatesheetServiceDropsExpiredProposals(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{ProposalTTL: time.Millisecond})
	for i := 0; i < 50; i++ {
		_, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
		require.NoError(t, err)
	}
	assert.Greater(t, f.svc.store.Len(), 0)

	time.Sleep(10 * time.Millisecond)
	resp, err := f.svc.Generate(context.Background(), simpleGenerateRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, f.svc.store.Len())
	_, ok := f.svc.store.Get(resp.ProposalID)
	assert.True(t, ok)
}

func storedSheet(status models.DatesheetStatus) *models.Datesheet {
	return &models.Datesheet{
		ID:            "ds-1",
		Title:         "Term 1",
		Version:       2,
		Status:        status,
		StartDate:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Classes:       types.JSONText(`["6","7"]`),
		DaysAttempted: 2,
	}
}

func TestDatesheetServiceGetAndLoadResult(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	f.repo.sheets["ds-1"] = storedSheet(models.DatesheetStatusDraft)
	f.repo.stored["ds-1"] = []models.DatesheetRow{
		{DatesheetID: "ds-1", Position: 0, ExamDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), Weekday: "Monday", Cells: types.JSONText(`["maths","-"]`)},
		{DatesheetID: "ds-1", Position: 1, ExamDate: time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), Weekday: "Tuesday", Cells: types.JSONText(`["english","art"]`)},
	}

	detail, err := f.svc.Get(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, detail.Rows, 2)
	assert.Equal(t, "02-01-2024", detail.Rows[1].Date)

	_, res, err := f.svc.LoadResult(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, []datesheet.ClassID{"6", "7"}, res.Classes)
	assert.Equal(t, 3, res.Assignments)
	assert.Equal(t, []string{"maths", "english"}, res.Assigned("6"))

	_, err = f.svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDatesheetServicePublishAndDelete(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	f.repo.sheets["ds-1"] = storedSheet(models.DatesheetStatusDraft)
	f.repo.sheets["ds-2"] = storedSheet(models.DatesheetStatusPublished)

	sheet, err := f.svc.Publish(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, models.DatesheetStatusPublished, sheet.Status)
	assert.NotNil(t, sheet.PublishedAt)
	assert.Equal(t, []string{"ds-1"}, f.repo.published)

	_, err = f.svc.Publish(context.Background(), "ds-2")
	assert.True(t, errors.Is(err, appErrors.ErrPublished))

	err = f.svc.Delete(context.Background(), "ds-2")
	assert.True(t, errors.Is(err, appErrors.ErrPublished))
	assert.Empty(t, f.repo.deleted)

	require.NoError(t, f.svc.Delete(context.Background(), "ds-1"))
	assert.Equal(t, []string{"ds-1"}, f.repo.deleted)
}

func TestDatesheetServiceListDefaultsPagination(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})
	f.repo.sheets["ds-1"] = storedSheet(models.DatesheetStatusDraft)

	sheets, pagination, err := f.svc.List(context.Background(), dto.DatesheetQuery{})
	require.NoError(t, err)
	assert.Len(t, sheets, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)

	_, _, err = f.svc.List(context.Background(), dto.DatesheetQuery{Status: "archived"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDatesheetServiceTemplateAndImport(t *testing.T) {
	f := newDatesheetServiceFixture(t, DatesheetConfig{})

	template := f.svc.Template()
	assert.Len(t, template.Classes, 11)
	assert.Equal(t, "6", template.Classes[0].Class)

	table, err := f.svc.Import(strings.NewReader("Class,Subject 1,Subject 2\n9,maths,-\n10,eng,sci\n"))
	require.NoError(t, err)
	assert.Equal(t, []dto.ClassSubjects{
		{Class: "9", Subjects: []string{"maths"}},
		{Class: "10", Subjects: []string{"eng", "sci"}},
	}, table.Classes)

	_, err = f.svc.Import(strings.NewReader("Class,Subject 1\n"))
	assert.True(t, errors.Is(err, appErrors.ErrInvalidInput))
}
