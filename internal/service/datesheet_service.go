package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/models"
	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
)

const generateCachePrefix = "datesheet:generate:"

type datesheetRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, sheet *models.Datesheet) error
	InsertRows(ctx context.Context, exec sqlx.ExtContext, rows []models.DatesheetRow) error
	List(ctx context.Context, filter models.DatesheetFilter) ([]models.Datesheet, int, error)
	FindByID(ctx context.Context, id string) (*models.Datesheet, error)
	ListRows(ctx context.Context, datesheetID string) ([]models.DatesheetRow, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.DatesheetStatus) error
}

type holidayCalendar interface {
	DatesBetween(ctx context.Context, from, to time.Time) (datesheet.HolidaySet, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type runRecorder interface {
	ObserveRun(status string, daysAttempted int, duration time.Duration)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DatesheetConfig holds engine defaults applied when a request leaves them out.
type DatesheetConfig struct {
	MaxDays     int
	Recency     datesheet.RecencyScope
	SyncCohorts []string
	DateFormat  string
	ProposalTTL time.Duration
	CacheTTL    time.Duration
}

// DatesheetService runs the scheduling engine and persists accepted proposals.
type DatesheetService struct {
	repo      datesheetRepository
	holidays  holidayCalendar
	tx        txProvider
	cache     resultCache
	metrics   runRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DatesheetConfig
	store     *proposalStore
}

// NewDatesheetService wires datesheet dependencies. holidays, cache and metrics may be nil.
func NewDatesheetService(
	repo datesheetRepository,
	holidays holidayCalendar,
	tx txProvider,
	cache resultCache,
	metrics runRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg DatesheetConfig,
) *DatesheetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = datesheet.DefaultMaxDays
	}
	if cfg.Recency == "" {
		cfg.Recency = datesheet.RecencyPerClass
	}
	if cfg.SyncCohorts == nil {
		cfg.SyncCohorts = datesheet.DefaultSyncCohorts
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = datesheet.DefaultDateFormat
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &DatesheetService{
		repo:      repo,
		holidays:  holidays,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newProposalStore(cfg.ProposalTTL),
	}
}

// generationInput is the normalised request. Its JSON form keys the result cache
// and is stored alongside saved datesheets.
type generationInput struct {
	Classes     []datesheet.ClassBacklog `json:"classes"`
	StartDate   string                   `json:"startDate"`
	Holidays    []string                 `json:"holidays,omitempty"`
	MaxDays     int                      `json:"maxDays"`
	Recency     string                   `json:"recency"`
	SyncCohorts []string                 `json:"syncCohorts"`
}

// generationSnapshot is what the cache holds for one input.
type generationSnapshot struct {
	View  dto.GenerateDatesheetResponse `json:"view"`
	Dates []time.Time                   `json:"dates"`
}

type datesheetProposal struct {
	ID          string
	Snapshot    generationSnapshot
	Input       generationInput
	StartDate   time.Time
	RequestedAt time.Time
}

// Generate runs the engine for req and stores the outcome as a proposal. A
// stalled or day-capped run returns the partial proposal together with a
// SCHEDULE_STALLED or DAY_CAP_EXCEEDED error.
func (s *DatesheetService) Generate(ctx context.Context, req dto.GenerateDatesheetRequest) (*dto.GenerateDatesheetResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid datesheet generation payload")
	}

	in, opts, normalised, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	key, err := cacheKey(normalised)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash datesheet input")
	}

	var snapshot generationSnapshot
	cached := false
	if s.cache != nil {
		cached, _ = s.cache.Get(ctx, key, &snapshot)
	}
	if !cached {
		snapshot, err = s.run(in, opts)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, snapshot, s.cfg.CacheTTL)
		}
	}

	proposal := datesheetProposal{
		ID:          uuid.NewString(),
		Snapshot:    snapshot,
		Input:       normalised,
		StartDate:   in.StartDate,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	view := snapshot.View
	view.ProposalID = proposal.ID
	view.Cached = cached
	view.ExpiresAt = proposal.RequestedAt.Add(s.cfg.ProposalTTL)

	if err := statusError(view); err != nil {
		return &view, err
	}
	return &view, nil
}

// Save persists a completed proposal as a new draft version of req.Title.
func (s *DatesheetService) Save(ctx context.Context, req dto.SaveDatesheetRequest) (*models.Datesheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save datesheet payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if proposal.Snapshot.View.Status != string(datesheet.StatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only completed datesheets can be saved")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	classesJSON, err := json.Marshal(proposal.Snapshot.View.Classes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode datesheet classes")
	}
	inputJSON, err := json.Marshal(proposal.Input)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode datesheet input")
	}

	record := &models.Datesheet{
		Title:         strings.TrimSpace(req.Title),
		Status:        models.DatesheetStatusDraft,
		StartDate:     proposal.StartDate,
		Classes:       types.JSONText(classesJSON),
		Input:         types.JSONText(inputJSON),
		DaysAttempted: proposal.Snapshot.View.DaysAttempted,
	}
	if req.CreatedBy != "" {
		createdBy := req.CreatedBy
		record.CreatedBy = &createdBy
	}

	rows := make([]models.DatesheetRow, 0, len(proposal.Snapshot.View.Rows))
	for i, row := range proposal.Snapshot.View.Rows {
		cells, marshalErr := json.Marshal(row.Cells)
		if marshalErr != nil {
			return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode datesheet row")
		}
		rows = append(rows, models.DatesheetRow{
			Position: i,
			ExamDate: proposal.Snapshot.Dates[i],
			Weekday:  row.Weekday,
			Cells:    types.JSONText(cells),
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.CreateVersioned(ctx, tx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create datesheet")
	}
	for i := range rows {
		rows[i].DatesheetID = record.ID
	}
	if err = s.repo.InsertRows(ctx, tx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist datesheet rows")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit datesheet transaction")
	}

	s.store.Delete(req.ProposalID)
	s.logger.Info("datesheet saved",
		zap.String("id", record.ID),
		zap.String("title", record.Title),
		zap.Int("version", record.Version),
		zap.Int("rows", len(rows)),
	)
	return record, nil
}

// List returns stored datesheets with pagination metadata.
func (s *DatesheetService) List(ctx context.Context, query dto.DatesheetQuery) ([]models.Datesheet, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid datesheet query")
	}
	filter := models.DatesheetFilter{
		Title:    strings.TrimSpace(query.Title),
		Status:   models.DatesheetStatus(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	sheets, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list datesheets")
	}
	return sheets, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a stored datesheet with its rows.
func (s *DatesheetService) Get(ctx context.Context, id string) (*dto.DatesheetDetail, error) {
	sheet, rows, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	views := make([]dto.DatesheetRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, dto.DatesheetRowView{Date: row.Label, Weekday: row.Weekday, Cells: row.Cells})
	}
	return &dto.DatesheetDetail{Datesheet: sheet, Rows: views}, nil
}

// LoadResult rebuilds the engine result of a stored datesheet for rendering.
func (s *DatesheetService) LoadResult(ctx context.Context, id string) (*models.Datesheet, *datesheet.Result, error) {
	sheet, rows, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var classes []datesheet.ClassID
	if err := json.Unmarshal(sheet.Classes, &classes); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored datesheet classes are corrupt")
	}
	assignments := 0
	for _, row := range rows {
		assignments += len(lo.Without(row.Cells, datesheet.Placeholder))
	}
	return sheet, &datesheet.Result{
		Status:        datesheet.StatusCompleted,
		Classes:       classes,
		Rows:          rows,
		DaysAttempted: sheet.DaysAttempted,
		Assignments:   assignments,
	}, nil
}

// Delete removes a draft datesheet. Published datesheets are immutable.
func (s *DatesheetService) Delete(ctx context.Context, id string) error {
	sheet, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if sheet.Status == models.DatesheetStatusPublished {
		return appErrors.Clone(appErrors.ErrPublished, "published datesheets cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "datesheet not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete datesheet")
	}
	return nil
}

// Publish marks a draft as published.
func (s *DatesheetService) Publish(ctx context.Context, id string) (*models.Datesheet, error) {
	sheet, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if sheet.Status == models.DatesheetStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPublished, "")
	}
	if err := s.repo.UpdateStatus(ctx, nil, id, models.DatesheetStatusPublished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "datesheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish datesheet")
	}
	now := time.Now().UTC()
	sheet.Status = models.DatesheetStatusPublished
	sheet.PublishedAt = &now
	sheet.UpdatedAt = now
	s.logger.Info("datesheet published", zap.String("id", id), zap.String("title", sheet.Title), zap.Int("version", sheet.Version))
	return sheet, nil
}

// Template returns the starter subject table.
func (s *DatesheetService) Template() dto.SubjectTableResponse {
	return tableResponse(datesheet.DefaultTable())
}

// Import parses an uploaded subject table in CSV form.
func (s *DatesheetService) Import(r io.Reader) (*dto.SubjectTableResponse, error) {
	classes, err := datesheet.ReadTableCSV(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, err.Error())
	}
	resp := tableResponse(classes)
	return &resp, nil
}

func (s *DatesheetService) prepare(ctx context.Context, req dto.GenerateDatesheetRequest) (datesheet.Input, datesheet.Options, generationInput, error) {
	var (
		in   datesheet.Input
		opts datesheet.Options
		norm generationInput
	)

	start, err := datesheet.ParseDate(req.StartDate)
	if err != nil {
		return in, opts, norm, appErrors.Clone(appErrors.ErrValidation, "invalid startDate: "+req.StartDate)
	}

	maxDays := req.MaxDays
	if maxDays <= 0 {
		maxDays = s.cfg.MaxDays
	}
	recency := s.cfg.Recency
	if req.Recency != "" {
		if recency, err = datesheet.ParseRecencyScope(req.Recency); err != nil {
			return in, opts, norm, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}
	cohorts := s.cfg.SyncCohorts
	if len(req.SyncCohorts) > 0 {
		cohorts = lo.Map(req.SyncCohorts, func(c string, _ int) string { return strings.TrimSpace(c) })
	}

	holidays := datesheet.NewHolidaySet()
	for _, raw := range req.Holidays {
		d, parseErr := datesheet.ParseDate(raw)
		if parseErr != nil {
			return in, opts, norm, appErrors.Clone(appErrors.ErrValidation, "invalid holiday: "+raw)
		}
		holidays.Add(d)
	}
	if req.UseStoredHolidays && s.holidays != nil {
		stored, loadErr := s.holidays.DatesBetween(ctx, start, start.AddDate(0, 0, maxDays-1))
		if loadErr != nil {
			return in, opts, norm, loadErr
		}
		holidays.Merge(stored)
	}

	classes := make([]datesheet.ClassBacklog, 0, len(req.Classes))
	for _, c := range req.Classes {
		subjects := lo.Map(c.Subjects, func(subject string, _ int) string { return strings.TrimSpace(subject) })
		classes = append(classes, datesheet.ClassBacklog{Class: datesheet.NormalizeClassID(c.Class), Subjects: subjects})
	}

	registry, err := datesheet.PrefixRegistry(cohorts, datesheet.ClassIDs(classes))
	if err != nil {
		return in, opts, norm, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, err.Error())
	}

	in = datesheet.Input{Classes: classes, StartDate: start, Holidays: holidays}
	opts = datesheet.Options{
		MaxDays:    maxDays,
		Recency:    recency,
		Registry:   registry,
		DateFormat: s.cfg.DateFormat,
	}
	norm = generationInput{
		Classes:     classes,
		StartDate:   start.Format("2006-01-02"),
		Holidays:    lo.Map(holidays.Dates(), func(d time.Time, _ int) string { return d.Format("2006-01-02") }),
		MaxDays:     maxDays,
		Recency:     string(recency),
		SyncCohorts: cohorts,
	}
	return in, opts, norm, nil
}

func (s *DatesheetService) run(in datesheet.Input, opts datesheet.Options) (generationSnapshot, error) {
	started := time.Now()
	res, err := datesheet.NewEngine(opts).Run(in)
	if err != nil {
		return generationSnapshot{}, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, err.Error())
	}
	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveRun(string(res.Status), res.DaysAttempted, elapsed)
	}
	s.logger.Info("datesheet generated",
		zap.String("status", string(res.Status)),
		zap.Int("classes", len(res.Classes)),
		zap.Int("rows", len(res.Rows)),
		zap.Int("days_attempted", res.DaysAttempted),
		zap.Int("assignments", res.Assignments),
		zap.Duration("elapsed", elapsed),
	)
	return snapshotFromResult(res, opts.DateFormat), nil
}

func (s *DatesheetService) find(ctx context.Context, id string) (*models.Datesheet, error) {
	sheet, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "datesheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load datesheet")
	}
	return sheet, nil
}

func (s *DatesheetService) load(ctx context.Context, id string) (*models.Datesheet, []datesheet.Row, error) {
	sheet, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.repo.ListRows(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load datesheet rows")
	}
	rows := make([]datesheet.Row, 0, len(stored))
	for _, row := range stored {
		var cells []string
		if err := json.Unmarshal(row.Cells, &cells); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored datesheet row is corrupt")
		}
		date := datesheet.DateOf(row.ExamDate)
		rows = append(rows, datesheet.Row{
			Date:    date,
			Label:   date.Format(s.cfg.DateFormat),
			Weekday: row.Weekday,
			Cells:   cells,
		})
	}
	return sheet, rows, nil
}

func snapshotFromResult(res *datesheet.Result, dateFormat string) generationSnapshot {
	view := dto.GenerateDatesheetResponse{
		Status:        string(res.Status),
		Classes:       lo.Map(res.Classes, func(c datesheet.ClassID, _ int) string { return string(c) }),
		Rows:          make([]dto.DatesheetRowView, 0, len(res.Rows)),
		DaysAttempted: res.DaysAttempted,
		Assignments:   res.Assignments,
	}
	dates := make([]time.Time, 0, len(res.Rows))
	for _, row := range res.Rows {
		view.Rows = append(view.Rows, dto.DatesheetRowView{
			Date:    row.Label,
			Weekday: row.Weekday,
			Cells:   append([]string(nil), row.Cells...),
		})
		dates = append(dates, row.Date)
	}
	for _, skipped := range res.Skipped {
		view.Skipped = append(view.Skipped, dto.SkippedDateView{
			Date:   skipped.Date.Format(dateFormat),
			Reason: string(skipped.Reason),
		})
	}
	if len(res.Remaining) > 0 {
		view.Remaining = make(map[string][]string, len(res.Remaining))
		for class, subjects := range res.Remaining {
			view.Remaining[string(class)] = append([]string(nil), subjects...)
		}
	}
	if res.StalledOn != nil {
		view.StalledOn = res.StalledOn.Format(dateFormat)
	}
	return generationSnapshot{View: view, Dates: dates}
}

func statusError(view dto.GenerateDatesheetResponse) error {
	switch datesheet.Status(view.Status) {
	case datesheet.StatusStalled:
		return appErrors.Clone(appErrors.ErrScheduleStalled,
			fmt.Sprintf("no exam could be placed on %s; %d classes unfinished", view.StalledOn, len(view.Remaining)))
	case datesheet.StatusDayCapExceeded:
		return appErrors.Clone(appErrors.ErrDayCapExceeded,
			fmt.Sprintf("stopped after %d days with %d classes unfinished", view.DaysAttempted, len(view.Remaining)))
	default:
		return nil
	}
}

func cacheKey(in generationInput) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return generateCachePrefix + hex.EncodeToString(sum[:]), nil
}

func tableResponse(classes []datesheet.ClassBacklog) dto.SubjectTableResponse {
	return dto.SubjectTableResponse{
		Classes: lo.Map(classes, func(c datesheet.ClassBacklog, _ int) dto.ClassSubjects {
			return dto.ClassSubjects{Class: string(c.Class), Subjects: append([]string{}, c.Subjects...)}
		}),
	}
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]datesheetProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]datesheetProposal),
	}
}

// Save stores proposal and drops every entry older than the TTL.
func (s *proposalStore) Save(proposal datesheetProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.ttl)
	for id, held := range s.items {
		if held.RequestedAt.Before(cutoff) {
			delete(s.items, id)
		}
	}
	s.items[proposal.ID] = proposal
}

func (s *proposalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *proposalStore) Get(id string) (datesheetProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return datesheetProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return datesheetProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
