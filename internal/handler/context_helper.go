package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/rollcall-dev/rollcall-api/internal/middleware"
	"github.com/rollcall-dev/rollcall-api/internal/models"
)

// currentClaims extracts the validated JWT claims placed by the auth
// middleware. Returns nil when the route was not protected.
func currentClaims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
