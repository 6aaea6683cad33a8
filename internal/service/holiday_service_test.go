package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/models"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
)

type holidayRepoStub struct {
	items      []models.Holiday
	created    []*models.Holiday
	updateErr  error
	betweenArg [2]time.Time
}

func (r *holidayRepoStub) List(ctx context.Context) ([]models.Holiday, error) {
	return r.items, nil
}

func (r *holidayRepoStub) ListBetween(ctx context.Context, from, to time.Time) ([]models.Holiday, error) {
	r.betweenArg = [2]time.Time{from, to}
	return r.items, nil
}

func (r *holidayRepoStub) FindByID(ctx context.Context, id string) (*models.Holiday, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *holidayRepoStub) Create(ctx context.Context, holiday *models.Holiday) error {
	holiday.ID = "h-new"
	r.created = append(r.created, holiday)
	return nil
}

func (r *holidayRepoStub) Update(ctx context.Context, holiday *models.Holiday) error {
	return r.updateErr
}

func (r *holidayRepoStub) Delete(ctx context.Context, id string) error {
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHolidayServiceCreate(t *testing.T) {
	repo := &holidayRepoStub{}
	svc := NewHolidayService(repo, nil, nil)

	holiday, err := svc.Create(context.Background(), dto.HolidayRequest{Name: " Diwali ", StartDate: "31-10-2024"})
	require.NoError(t, err)
	assert.Equal(t, "h-new", holiday.ID)
	assert.Equal(t, "Diwali", holiday.Name)
	assert.Equal(t, date(2024, time.October, 31), holiday.StartDate)
	assert.Equal(t, holiday.StartDate, holiday.EndDate)
}

func TestHolidayServiceCreateValidation(t *testing.T) {
	svc := NewHolidayService(&holidayRepoStub{}, nil, nil)

	_, err := svc.Create(context.Background(), dto.HolidayRequest{StartDate: "2024-10-31"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.HolidayRequest{Name: "x", StartDate: "2024-10-31", EndDate: "2024-10-30"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.HolidayRequest{Name: "x", StartDate: "tomorrow"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestHolidayServiceUpdateAndDeleteNotFound(t *testing.T) {
	repo := &holidayRepoStub{updateErr: sql.ErrNoRows}
	svc := NewHolidayService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "missing", dto.HolidayRequest{Name: "x", StartDate: "2024-10-31"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	err = svc.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestHolidayServiceDatesBetweenClipsRanges(t *testing.T) {
	repo := &holidayRepoStub{items: []models.Holiday{
		{ID: "h-1", Name: "Winter break", StartDate: date(2023, time.December, 30), EndDate: date(2024, time.January, 2)},
		{ID: "h-2", Name: "Republic Day", StartDate: date(2024, time.January, 26), EndDate: date(2024, time.January, 26)},
	}}
	svc := NewHolidayService(repo, nil, nil)

	set, err := svc.DatesBetween(context.Background(), date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.January, 1), date(2024, time.January, 2), date(2024, time.January, 26)}, set.Dates())
	assert.False(t, set.Contains(date(2023, time.December, 31)))
}

func TestHolidayServiceListUsesWindow(t *testing.T) {
	repo := &holidayRepoStub{}
	svc := NewHolidayService(repo, nil, nil)

	_, err := svc.List(context.Background(), dto.HolidayQuery{From: "2024-01-01", To: "2024-02-01"})
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 1), repo.betweenArg[1])

	_, err = svc.List(context.Background(), dto.HolidayQuery{From: "2024-01-01"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
