package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/response"
)

// RequireRoles admits only callers holding one of the roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return requireAccess("", roles)
}

// RequireSelfOrRoles admits callers whose user id equals the named path parameter, plus the listed roles.
func RequireSelfOrRoles(param string, roles ...models.UserRole) gin.HandlerFunc {
	return requireAccess(param, roles)
}

func requireAccess(selfParam string, roles []models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		if selfParam != "" {
			if target := c.Param(selfParam); target != "" && target == claims.UserID {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
		c.Abort()
	}
}
