package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/service"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, id string, req dto.ExportDatesheetRequest) (*dto.ExportResponse, error)
	Open(token string) (*service.ExportDownload, error)
}

// ExportHandler renders datesheets to files and serves signed downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Export godoc
// @Summary Export a stored datesheet as CSV or PDF
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Datesheet ID"
// @Param payload body dto.ExportDatesheetRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /datesheets/{id}/export [post]
func (h *ExportHandler) Export(c *gin.Context) {
	var req dto.ExportDatesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	result, err := h.service.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an exported datesheet
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}
