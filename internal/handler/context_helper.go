package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/aims-enrollment-api/internal/middleware"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/response"
)

// claimsFromContext returns the caller's claims or writes 401 and returns nil.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// ownsOrAdmin reports whether the caller is an admin or is the user identified by id.
func ownsOrAdmin(claims *models.JWTClaims, id string) bool {
	return claims.Role == models.RoleAdmin || claims.UserID == id
}
