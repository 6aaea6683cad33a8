package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/models"
	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/export"
	"github.com/noah-isme/datesheet-api/pkg/storage"
)

type datesheetLoader interface {
	LoadResult(ctx context.Context, id string) (*models.Datesheet, *datesheet.Result, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is a resolved download link.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders stored datesheets and hands out signed download links.
type ExportService struct {
	datesheets datesheetLoader
	storage    fileStorage
	renderers  map[string]datasetRenderer
	signer     *storage.SignedURLSigner
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(datesheets datesheetLoader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	renderers := map[string]datasetRenderer{}
	for _, r := range []datasetRenderer{export.NewCSVExporter(), export.NewPDFExporter()} {
		renderers[r.Extension()] = r
	}
	return &ExportService{
		datesheets: datesheets,
		storage:    files,
		renderers:  renderers,
		signer:     signer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Export renders datesheet id in the requested format and returns a signed link.
func (s *ExportService) Export(ctx context.Context, id string, req dto.ExportDatesheetRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	renderer, ok := s.renderers[req.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported format "+req.Format)
	}

	sheet, res, err := s.datesheets.LoadResult(ctx, id)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (v%d)", sheet.Title, sheet.Version)
	payload, err := renderer.Render(export.FromSchedule(title, res))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render datesheet")
	}

	filename := fmt.Sprintf("datesheet_%s_v%d_%s.%s",
		sanitizeFilename(sheet.Title), sheet.Version, time.Now().UTC().Format("20060102_150405"), renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(sheet.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("datesheet exported", zap.String("id", sheet.ID), zap.String("format", req.Format), zap.String("path", relPath))
	return &dto.ExportResponse{
		Format:    req.Format,
		Token:     token,
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a download token to the stored file.
func (s *ExportService) Open(token string) (*ExportDownload, error) {
	download, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(download.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := "application/octet-stream"
	if r, ok := s.renderers[strings.TrimPrefix(path.Ext(download.Path), ".")]; ok {
		contentType = r.ContentType()
	}
	return &ExportDownload{
		File:        file,
		Filename:    path.Base(download.Path),
		ContentType: contentType,
		ExpiresAt:   download.ExpiresAt,
	}, nil
}

// Cleanup removes files older than ttl, defaulting to the configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup purges expired exports every interval until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Cleanup(0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
