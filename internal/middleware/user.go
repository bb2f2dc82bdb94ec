package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
)

const (
	// ContextKeyUser is the Gin context key for the resolved internal user.
	ContextKeyUser = "user"
)

// AttachUser resolves the participant identity to an internal user record,
// creating it on first sight. Must run after RequireParticipantJWT.
func AttachUser(userService *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
			return
		}

		user, err := userService.EnsureUser(c.Request.Context(), identity.Subject, identity.Name)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// GetUser retrieves the internal user from the Gin context.
func GetUser(c *gin.Context) *model.User {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, ok := val.(*model.User)
	if !ok {
		return nil
	}
	return user
}
