package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yukbelajar/tryout-backend/internal/middleware"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
)

// PortalHandler handles participant-facing endpoints (lobby, joining,
// fetching the paper).
type PortalHandler struct {
	attemptService *service.AttemptService
	tryoutService  *service.TryoutService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	attemptService *service.AttemptService,
	tryoutService *service.TryoutService,
) *PortalHandler {
	return &PortalHandler{
		attemptService: attemptService,
		tryoutService:  tryoutService,
	}
}

// GetLobby godoc
// GET /api/v1/tryouts
// Returns published tryouts with the participant's attempt status overlaid.
func (h *PortalHandler) GetLobby(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return
	}

	lobby, err := h.attemptService.GetLobby(c.Request.Context(), user.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if lobby == nil {
		lobby = []service.LobbyTryout{}
	}

	response.Success(c, http.StatusOK, gin.H{"tryouts": lobby})
}

// Join godoc
// POST /api/v1/tryouts/:tryout_id/join
// Creates an attempt inside the tryout window (idempotent).
func (h *PortalHandler) Join(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return
	}

	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.Join(c.Request.Context(), tryoutID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTryoutNotAvailable):
			response.Fail(c, http.StatusBadRequest, response.ErrTryoutNotAvailable)
		case errors.Is(err, service.ErrTryoutClosed):
			response.Fail(c, http.StatusBadRequest, response.ErrTryoutClosed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetPaper godoc
// GET /api/v1/tryouts/:tryout_id/paper
// Returns the tryout payload from Redis (bypasses PostgreSQL).
// SECURITY: Requires an attempt on this tryout — prevents IDOR.
func (h *PortalHandler) GetPaper(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return
	}

	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// SECURITY: participants can only download papers they have joined.
	if _, err := h.attemptService.GetForTryout(c.Request.Context(), tryoutID, user.ID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	paper, err := h.tryoutService.GetPaper(c.Request.Context(), tryoutID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrTryoutNotPublished)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// GetMyAttempt godoc
// GET /api/v1/tryouts/:tryout_id/attempt
// Returns the participant's attempt on the tryout, including the final score
// once it has been persisted.
func (h *PortalHandler) GetMyAttempt(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return
	}

	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.GetForTryout(c.Request.Context(), tryoutID, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
