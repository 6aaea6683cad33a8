package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/datesheet-api/internal/dto"
	"github.com/noah-isme/datesheet-api/internal/middleware"
	"github.com/noah-isme/datesheet-api/internal/models"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/response"
)

const maxImportBytes = 1 << 20

type datesheetService interface {
	Generate(ctx context.Context, req dto.GenerateDatesheetRequest) (*dto.GenerateDatesheetResponse, error)
	Save(ctx context.Context, req dto.SaveDatesheetRequest) (*models.Datesheet, error)
	List(ctx context.Context, query dto.DatesheetQuery) ([]models.Datesheet, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.DatesheetDetail, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*models.Datesheet, error)
	Template() dto.SubjectTableResponse
	Import(r io.Reader) (*dto.SubjectTableResponse, error)
}

// DatesheetHandler exposes datesheet generation and storage endpoints.
type DatesheetHandler struct {
	service datesheetService
}

// NewDatesheetHandler constructs the handler.
func NewDatesheetHandler(svc datesheetService) *DatesheetHandler {
	return &DatesheetHandler{service: svc}
}

// Template godoc
// @Summary Starter subject table
// @Tags Datesheets
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /datesheets/template [get]
func (h *DatesheetHandler) Template(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Template(), nil)
}

// Import godoc
// @Summary Parse an uploaded subject table CSV
// @Tags Datesheets
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Subject table CSV"
// @Success 200 {object} response.Envelope
// @Router /datesheets/import [post]
func (h *DatesheetHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file upload required"))
		return
	}
	if header.Size > maxImportBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subject table exceeds 1MB"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	table, err := h.service.Import(file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, table, nil)
}

// Generate godoc
// @Summary Generate a datesheet proposal
// @Description Stalled or day-capped runs respond with 422 and still carry the partial proposal in data.
// @Tags Datesheets
// @Accept json
// @Produce json
// @Param payload body dto.GenerateDatesheetRequest true "Generate datesheet payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /datesheets/generate [post]
func (h *DatesheetHandler) Generate(c *gin.Context) {
	var req dto.GenerateDatesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if result != nil {
		middleware.SetCacheHit(c, result.Cached)
	}
	if err != nil {
		if result != nil {
			response.Partial(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Save godoc
// @Summary Save a completed proposal as a draft datesheet
// @Tags Datesheets
// @Accept json
// @Produce json
// @Param payload body dto.SaveDatesheetRequest true "Save datesheet payload"
// @Success 201 {object} response.Envelope
// @Router /datesheets [post]
func (h *DatesheetHandler) Save(c *gin.Context) {
	var req dto.SaveDatesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	req.CreatedBy = actorFromContext(c)
	sheet, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sheet)
}

// List godoc
// @Summary List stored datesheets
// @Tags Datesheets
// @Produce json
// @Param title query string false "Title contains"
// @Param status query string false "draft or published"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /datesheets [get]
func (h *DatesheetHandler) List(c *gin.Context) {
	var query dto.DatesheetQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a stored datesheet with its rows
// @Tags Datesheets
// @Produce json
// @Param id path string true "Datesheet ID"
// @Success 200 {object} response.Envelope
// @Router /datesheets/{id} [get]
func (h *DatesheetHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Publish godoc
// @Summary Publish a draft datesheet
// @Tags Datesheets
// @Produce json
// @Param id path string true "Datesheet ID"
// @Success 200 {object} response.Envelope
// @Router /datesheets/{id}/publish [post]
func (h *DatesheetHandler) Publish(c *gin.Context) {
	sheet, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Delete godoc
// @Summary Delete a draft datesheet
// @Tags Datesheets
// @Param id path string true "Datesheet ID"
// @Success 204
// @Router /datesheets/{id} [delete]
func (h *DatesheetHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
