package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/internal/dto"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/jobs"
)

const variantJobType = "datesheet.variant"

type datesheetGenerator interface {
	Generate(ctx context.Context, req dto.GenerateDatesheetRequest) (*dto.GenerateDatesheetResponse, error)
}

type variantRecorder interface {
	ObserveVariantJob(outcome string)
}

// VariantConfig sizes the variant worker pool.
type VariantConfig struct {
	Workers     int
	Retries     int
	RetryDelay  time.Duration
	MaxPerBatch int
	BatchTTL    time.Duration
}

// VariantService runs one subject table under several calendars in parallel.
// Every variant is an independent engine run on its own copy of the input.
type VariantService struct {
	generator datesheetGenerator
	metrics   variantRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       VariantConfig
	queue     *jobs.Queue

	mu      sync.RWMutex
	batches map[string]*variantBatch
}

type variantBatch struct {
	id        string
	createdAt time.Time
	results   []dto.VariantResult
	finished  int
}

type variantJob struct {
	BatchID string
	Index   int
	Request dto.GenerateDatesheetRequest
}

// NewVariantService builds the service and its queue. Call Start before Submit.
func NewVariantService(generator datesheetGenerator, metrics variantRecorder, validate *validator.Validate, logger *zap.Logger, cfg VariantConfig) *VariantService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPerBatch <= 0 {
		cfg.MaxPerBatch = 10
	}
	if cfg.BatchTTL <= 0 {
		cfg.BatchTTL = time.Hour
	}
	s := &VariantService{
		generator: generator,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		batches:   make(map[string]*variantBatch),
	}
	s.queue = jobs.NewQueue("datesheet-variants", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		OnFailure:  s.fail,
		Logger:     logger,
	})
	return s
}

// Start launches the workers.
func (s *VariantService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *VariantService) Stop() {
	s.queue.Stop()
}

// Submit queues one job per variant and returns the new batch.
func (s *VariantService) Submit(ctx context.Context, req dto.GenerateVariantsRequest) (*dto.VariantBatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid variants payload")
	}
	if len(req.Variants) > s.cfg.MaxPerBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d variants per batch", s.cfg.MaxPerBatch))
	}
	s.prune()

	batch := &variantBatch{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		results:   make([]dto.VariantResult, len(req.Variants)),
	}
	for i, variant := range req.Variants {
		label := variant.Label
		if label == "" {
			label = fmt.Sprintf("variant-%d", i+1)
		}
		batch.results[i] = dto.VariantResult{Label: label, StartDate: variant.StartDate, Status: "pending"}
	}
	s.mu.Lock()
	s.batches[batch.id] = batch
	s.mu.Unlock()

	for i, variant := range req.Variants {
		job := jobs.Job{
			ID:   fmt.Sprintf("%s-%d", batch.id, i),
			Type: variantJobType,
			Payload: variantJob{
				BatchID: batch.id,
				Index:   i,
				Request: variantRequest(req, variant),
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.record(batch.id, i, nil, err)
		}
	}

	s.logger.Info("variant batch submitted", zap.String("batch_id", batch.id), zap.Int("variants", len(req.Variants)))
	return s.Get(ctx, batch.id)
}

// Get reports progress of a batch.
func (s *VariantService) Get(ctx context.Context, id string) (*dto.VariantBatchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "variant batch not found or expired")
	}
	status := dto.VariantBatchRunning
	if batch.finished == len(batch.results) {
		status = dto.VariantBatchFinished
	}
	return &dto.VariantBatchResponse{
		BatchID:   batch.id,
		Status:    status,
		Total:     len(batch.results),
		Finished:  batch.finished,
		Results:   append([]dto.VariantResult(nil), batch.results...),
		CreatedAt: batch.createdAt,
	}, nil
}

func (s *VariantService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(variantJob)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	resp, err := s.generator.Generate(ctx, payload.Request)
	if resp == nil && errors.Is(err, appErrors.ErrInternal) {
		return err
	}
	s.record(payload.BatchID, payload.Index, resp, err)
	return nil
}

func (s *VariantService) fail(job jobs.Job, err error) {
	payload, ok := job.Payload.(variantJob)
	if !ok {
		s.logger.Warn("dropping failed job with unknown payload", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	s.record(payload.BatchID, payload.Index, nil, err)
}

func (s *VariantService) record(batchID string, index int, resp *dto.GenerateDatesheetResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok || index < 0 || index >= len(batch.results) {
		return
	}
	result := &batch.results[index]
	if result.FinishedAt != nil {
		return
	}
	now := time.Now().UTC()
	result.FinishedAt = &now
	batch.finished++

	outcome := "failed"
	if resp != nil {
		outcome = resp.Status
		result.Status = resp.Status
		result.Rows = len(resp.Rows)
		if len(resp.Rows) > 0 {
			result.LastDate = resp.Rows[len(resp.Rows)-1].Date
		}
		result.Proposal = resp
	} else {
		result.Status = "failed"
	}
	if err != nil {
		result.Error = err.Error()
	}
	if s.metrics != nil {
		s.metrics.ObserveVariantJob(outcome)
	}
}

func (s *VariantService) prune() {
	cutoff := time.Now().Add(-s.cfg.BatchTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, batch := range s.batches {
		if batch.createdAt.Before(cutoff) {
			delete(s.batches, id)
		}
	}
}

func variantRequest(req dto.GenerateVariantsRequest, variant dto.VariantSpec) dto.GenerateDatesheetRequest {
	classes := make([]dto.ClassSubjects, len(req.Classes))
	for i, c := range req.Classes {
		classes[i] = dto.ClassSubjects{Class: c.Class, Subjects: append([]string(nil), c.Subjects...)}
	}
	return dto.GenerateDatesheetRequest{
		Classes:           classes,
		StartDate:         variant.StartDate,
		Holidays:          append([]string(nil), variant.Holidays...),
		UseStoredHolidays: req.UseStoredHolidays,
		MaxDays:           req.MaxDays,
		Recency:           req.Recency,
	}
}
