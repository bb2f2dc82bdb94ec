package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukbelajar/tryout-backend/internal/middleware"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/repository"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
	"github.com/yukbelajar/tryout-backend/internal/validator"
)

// AuthHandler handles operator authentication. Participants never log in
// here: their tokens come from the external identity provider.
type AuthHandler struct {
	authService  *service.AuthService
	operatorRepo *repository.OperatorRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, operatorRepo *repository.OperatorRepository) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		operatorRepo: operatorRepo,
	}
}

// Login godoc
// POST /api/v1/auth/operator/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.OperatorLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	operator, err := h.operatorRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// Same response as a wrong password, no account enumeration.
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(operator.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateOperatorToken(operator.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":    token,
		"operator": operator,
	})
}

// Me godoc
// GET /api/v1/auth/operator/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetOperator(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	operator, err := h.operatorRepo.GetByID(c.Request.Context(), claims.OperatorID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"operator": operator})
}
