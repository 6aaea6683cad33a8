package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/datesheet-api/internal/dto"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/response"
)

type variantService interface {
	Submit(ctx context.Context, req dto.GenerateVariantsRequest) (*dto.VariantBatchResponse, error)
	Get(ctx context.Context, id string) (*dto.VariantBatchResponse, error)
}

// VariantHandler exposes batch generation of alternative datesheets.
type VariantHandler struct {
	service variantService
}

// NewVariantHandler constructs the handler.
func NewVariantHandler(svc variantService) *VariantHandler {
	return &VariantHandler{service: svc}
}

// Submit godoc
// @Summary Queue several datesheet variants
// @Tags Datesheets
// @Accept json
// @Produce json
// @Param payload body dto.GenerateVariantsRequest true "Variant batch payload"
// @Success 202 {object} response.Envelope
// @Router /datesheets/variants [post]
func (h *VariantHandler) Submit(c *gin.Context) {
	var req dto.GenerateVariantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid variants payload"))
		return
	}
	batch, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, batch, nil)
}

// Get godoc
// @Summary Variant batch progress and results
// @Tags Datesheets
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /datesheets/variants/{id} [get]
func (h *VariantHandler) Get(c *gin.Context) {
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}
