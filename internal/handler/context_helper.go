package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/datesheet-api/internal/middleware"
)

func actorFromContext(c *gin.Context) string {
	claims, ok := middleware.CurrentClaims(c)
	if !ok || claims == nil {
		return ""
	}
	return claims.Username
}
