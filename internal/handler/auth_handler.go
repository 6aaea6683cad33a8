package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/datesheet-api/internal/models"
	appErrors "github.com/noah-isme/datesheet-api/pkg/errors"
	"github.com/noah-isme/datesheet-api/pkg/response"
)

type tokenIssuer interface {
	Issue(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error)
}

// AuthHandler issues administrator access tokens.
type AuthHandler struct {
	service tokenIssuer
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc tokenIssuer) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Token godoc
// @Summary Exchange administrator credentials for an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}
	token, err := h.service.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}
