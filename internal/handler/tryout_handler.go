package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
	"github.com/yukbelajar/tryout-backend/internal/validator"
)

// TryoutHandler handles the operator console: tryout CRUD, publishing and
// results.
type TryoutHandler struct {
	tryoutService  *service.TryoutService
	attemptService *service.AttemptService
}

// NewTryoutHandler creates a new TryoutHandler.
func NewTryoutHandler(tryoutService *service.TryoutService, attemptService *service.AttemptService) *TryoutHandler {
	return &TryoutHandler{
		tryoutService:  tryoutService,
		attemptService: attemptService,
	}
}

// List godoc
// GET /api/v1/operator/tryouts?page=1&per_page=10
func (h *TryoutHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	tryouts, pagination, err := h.tryoutService.List(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tryouts": tryouts}, pagination)
}

// Get godoc
// GET /api/v1/operator/tryouts/:tryout_id
func (h *TryoutHandler) Get(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	tryout, err := h.tryoutService.GetByID(c.Request.Context(), tryoutID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	subtests, err := h.tryoutService.ListSubtests(c.Request.Context(), tryoutID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tryout":   tryout,
		"subtests": subtests,
	})
}

// Create godoc
// POST /api/v1/operator/tryouts
func (h *TryoutHandler) Create(c *gin.Context) {
	var req model.CreateTryoutRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	tryout := &model.Tryout{
		Title:       req.Title,
		Description: req.Description,
		OpensAt:     req.OpensAt,
		ClosesAt:    req.ClosesAt,
	}
	if err := h.tryoutService.Create(c.Request.Context(), tryout); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"tryout": tryout})
}

// Update godoc
// PUT /api/v1/operator/tryouts/:tryout_id
func (h *TryoutHandler) Update(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateTryoutRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	existing, err := h.tryoutService.GetByID(c.Request.Context(), tryoutID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Title != "" {
		existing.Title = req.Title
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.OpensAt != nil {
		existing.OpensAt = req.OpensAt
	}
	if req.ClosesAt != nil {
		existing.ClosesAt = req.ClosesAt
	}

	if err := h.tryoutService.Update(c.Request.Context(), existing); err != nil {
		if errors.Is(err, service.ErrTryoutNotDraft) {
			response.Fail(c, http.StatusConflict, response.ErrTryoutNotDraft)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tryout": existing})
}

// Delete godoc
// DELETE /api/v1/operator/tryouts/:tryout_id
func (h *TryoutHandler) Delete(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.tryoutService.Delete(c.Request.Context(), tryoutID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrTryoutNotDraft):
			response.Fail(c, http.StatusConflict, response.ErrTryoutNotDraft)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// AddSubtest godoc
// POST /api/v1/operator/tryouts/:tryout_id/subtests
func (h *TryoutHandler) AddSubtest(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateSubtestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub := &model.Subtest{
		TryoutID:        tryoutID,
		Name:            req.Name,
		OrderNum:        req.OrderNum,
		DurationSeconds: req.DurationSeconds,
	}
	if err := h.tryoutService.AddSubtest(c.Request.Context(), sub); err != nil {
		if errors.Is(err, service.ErrTryoutNotDraft) {
			response.Fail(c, http.StatusConflict, response.ErrTryoutNotDraft)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"subtest": sub})
}

// AddQuestion godoc
// POST /api/v1/operator/subtests/:subtest_id/questions
func (h *TryoutHandler) AddQuestion(c *gin.Context) {
	subtestID, err := uuid.Parse(c.Param("subtest_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := &model.Question{
		SubtestID:     subtestID,
		QuestionText:  req.QuestionText,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		OrderNum:      req.OrderNum,
	}
	if err := h.tryoutService.AddQuestion(c.Request.Context(), q); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// Publish godoc
// POST /api/v1/operator/tryouts/:tryout_id/publish
// Warms the Redis paper + answer-key caches, then flips the status.
func (h *TryoutHandler) Publish(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.tryoutService.Publish(c.Request.Context(), tryoutID); err != nil {
		switch {
		case errors.Is(err, service.ErrTryoutNotDraft):
			response.Fail(c, http.StatusConflict, response.ErrTryoutNotDraft)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"published": true})
}

// RefreshCache godoc
// POST /api/v1/operator/tryouts/:tryout_id/refresh-cache
// Re-warms the Redis caches after question corrections on a published tryout.
func (h *TryoutHandler) RefreshCache(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.tryoutService.RefreshCache(c.Request.Context(), tryoutID); err != nil {
		if errors.Is(err, service.ErrTryoutNotPublished) {
			response.Fail(c, http.StatusConflict, response.ErrTryoutNotPublished)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"refreshed": true})
}

// Results godoc
// GET /api/v1/operator/tryouts/:tryout_id/results?page=1&per_page=25
func (h *TryoutHandler) Results(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	results, total, err := h.attemptService.GetResults(c.Request.Context(), tryoutID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"results": results,
		"total":   total,
	})
}
