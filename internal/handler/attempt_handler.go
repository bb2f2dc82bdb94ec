package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/middleware"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
	"github.com/yukbelajar/tryout-backend/internal/validator"
)

// AttemptHandler handles attempt-scoped endpoints: state recovery, event
// batches, subtest bridging and definitive submission.
type AttemptHandler struct {
	attemptService *service.AttemptService
	cfg            *config.Config
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, cfg *config.Config) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		cfg:            cfg,
	}
}

// resolveAttempt parses :attempt_id and verifies ownership + liveness.
// Writes the error response itself; callers bail out on nil.
func (h *AttemptHandler) resolveAttempt(c *gin.Context) *model.Attempt {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return nil
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil
	}

	attempt, err := h.attemptService.VerifyActive(c.Request.Context(), attemptID, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptFinished) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
			return nil
		}
		response.Fail(c, http.StatusForbidden, response.ErrNoActiveAttempt)
		return nil
	}
	return attempt
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id/state
// Covers page reload: applied answers, flags and remaining time.
func (h *AttemptHandler) GetState(c *gin.Context) {
	attempt := h.resolveAttempt(c)
	if attempt == nil {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), attempt)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// PushEvents godoc
// POST /api/v1/attempts/:attempt_id/events
// Applies a batch of answer/flag events. Returns the accepted event ids;
// the client marks those as sent and stops replaying them.
func (h *AttemptHandler) PushEvents(c *gin.Context) {
	attempt := h.resolveAttempt(c)
	if attempt == nil {
		return
	}

	var req model.PushEventsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if len(req.Events) > h.cfg.EventBatchMax {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrBatchTooLarge)
		return
	}

	accepted, err := h.attemptService.PushEvents(c.Request.Context(), attempt, req.Events)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.PushEventsResponse{AcceptedIDs: accepted})
}

// Advance godoc
// POST /api/v1/attempts/:attempt_id/advance
// Moves the attempt to the next subtest and restarts the subtest clock.
func (h *AttemptHandler) Advance(c *gin.Context) {
	attempt := h.resolveAttempt(c)
	if attempt == nil {
		return
	}

	attempt, err := h.attemptService.Advance(c.Request.Context(), attempt)
	if err != nil {
		if errors.Is(err, service.ErrNoFurtherSubtest) {
			response.Fail(c, http.StatusBadRequest, response.ErrNoFurtherSubtest)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Grades the attempt and finishes it. A repeat submit is a 409, never a
// silent regrade.
func (h *AttemptHandler) Submit(c *gin.Context) {
	attempt := h.resolveAttempt(c)
	if attempt == nil {
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attempt)
	if err != nil {
		if errors.Is(err, service.ErrAttemptFinished) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}
