package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
)

const (
	// ContextKeyIdentity is the Gin context key for participant identity claims.
	ContextKeyIdentity = "identity"
	// ContextKeyOperator is the Gin context key for operator claims.
	ContextKeyOperator = "operator"
)

// RequireParticipantJWT validates a participant JWT issued by the identity
// provider from the Authorization header.
func RequireParticipantJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateParticipantToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyIdentity, claims)
		c.Next()
	}
}

// RequireOperatorJWT validates a locally issued operator JWT from the
// Authorization header.
func RequireOperatorJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateOperatorToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != service.TokenTypeOperator {
			response.AbortFail(c, http.StatusForbidden, response.ErrOperatorAccessOnly)
			return
		}

		c.Set(ContextKeyOperator, claims)
		c.Next()
	}
}

// RequireOperatorWSAuth validates an operator JWT from the query param
// ?token=... Used for WebSocket upgrade requests, where browsers cannot
// set an Authorization header.
func RequireOperatorWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateOperatorToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyOperator, claims)
		c.Next()
	}
}

// GetIdentity retrieves the participant identity claims from the Gin context.
func GetIdentity(c *gin.Context) *service.IdentityClaims {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.IdentityClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetOperator retrieves the operator claims from the Gin context.
func GetOperator(c *gin.Context) *service.OperatorClaims {
	val, exists := c.Get(ContextKeyOperator)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], nil
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers
	if token := c.Query("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("authorization header or token query required")
}
