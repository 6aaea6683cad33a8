package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/models"
	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
)

type holidayRepository interface {
	List(ctx context.Context) ([]models.Holiday, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]models.Holiday, error)
	FindByID(ctx context.Context, id string) (*models.Holiday, error)
	Create(ctx context.Context, holiday *models.Holiday) error
	Update(ctx context.Context, holiday *models.Holiday) error
	Delete(ctx context.Context, id string) error
}

// HolidayService manages stored holidays and expands them for the engine.
type HolidayService struct {
	repo      holidayRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHolidayService constructs the service.
func NewHolidayService(repo holidayRepository, validate *validator.Validate, logger *zap.Logger) *HolidayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayService{repo: repo, validator: validate, logger: logger}
}

// List returns every holiday, or those overlapping the query window when both ends are set.
func (s *HolidayService) List(ctx context.Context, query dto.HolidayQuery) ([]models.Holiday, error) {
	if query.From == "" && query.To == "" {
		holidays, err := s.repo.List(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holidays")
		}
		return holidays, nil
	}
	from, to, err := parseRange(query.From, query.To)
	if err != nil {
		return nil, err
	}
	holidays, err := s.repo.ListBetween(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holidays")
	}
	return holidays, nil
}

// Get returns one holiday.
func (s *HolidayService) Get(ctx context.Context, id string) (*models.Holiday, error) {
	holiday, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holiday")
	}
	return holiday, nil
}

// Create stores a new holiday.
func (s *HolidayService) Create(ctx context.Context, req dto.HolidayRequest) (*models.Holiday, error) {
	holiday, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, holiday); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create holiday")
	}
	s.logger.Info("holiday created", zap.String("id", holiday.ID), zap.String("name", holiday.Name))
	return holiday, nil
}

// Update replaces name and range of an existing holiday.
func (s *HolidayService) Update(ctx context.Context, id string, req dto.HolidayRequest) (*models.Holiday, error) {
	holiday, err := s.build(req)
	if err != nil {
		return nil, err
	}
	holiday.ID = id
	if err := s.repo.Update(ctx, holiday); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update holiday")
	}
	return holiday, nil
}

// Delete removes a holiday.
func (s *HolidayService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete holiday")
	}
	return nil
}

// DatesBetween expands stored holidays overlapping [from, to] into single dates.
// Dates outside the window are dropped.
func (s *HolidayService) DatesBetween(ctx context.Context, from, to time.Time) (datesheet.HolidaySet, error) {
	from, to = datesheet.DateOf(from), datesheet.DateOf(to)
	holidays, err := s.repo.ListBetween(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holidays")
	}
	set := datesheet.NewHolidaySet()
	for _, h := range holidays {
		start, end := datesheet.DateOf(h.StartDate), datesheet.DateOf(h.EndDate)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		set.AddRange(start, end)
	}
	return set, nil
}

func (s *HolidayService) build(req dto.HolidayRequest) (*models.Holiday, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid holiday payload")
	}
	end := req.EndDate
	if end == "" {
		end = req.StartDate
	}
	start, finish, err := parseRange(req.StartDate, end)
	if err != nil {
		return nil, err
	}
	return &models.Holiday{Name: strings.TrimSpace(req.Name), StartDate: start, EndDate: finish}, nil
}

func parseRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	from, err := datesheet.ParseDate(rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start date: "+rawFrom)
	}
	to, err := datesheet.ParseDate(rawTo)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end date: "+rawTo)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end date is before start date")
	}
	return from, to, nil
}
