package handlers

import (
	"context"
	"net/http"
	"strconv"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/gin-gonic/gin"
)

// QuestionHandler exposes the moderation workflow over HTTP. It translates
// request payloads into ModerationService intents and typed errors into
// status codes; all business rules live in the service layer.
type QuestionHandler struct {
	moderationService services.ModerationServiceInterface
	cfg               *config.Config
	logger            *observability.Logger
}

// NewQuestionHandler creates a new QuestionHandler instance
func NewQuestionHandler(moderationService services.ModerationServiceInterface, cfg *config.Config, logger *observability.Logger) *QuestionHandler {
	return &QuestionHandler{
		moderationService: moderationService,
		cfg:               cfg,
		logger:            logger,
	}
}

// questionIDParam parses the :id path parameter
func questionIDParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, contextutils.ErrInvalidFormat
	}
	return id, nil
}

// CreateQuestion handles POST /questions - author a new draft question
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	question, err := h.moderationService.CreateQuestion(c.Request.Context(), actorID, &req)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating question", err, map[string]interface{}{"actor_id": actorID})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// GetQuestion handles GET /questions/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	question, err := h.moderationService.GetQuestion(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// UpdateQuestion handles PUT /questions/:id - edit content without touching
// status
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	question, err := h.moderationService.UpdateQuestion(c.Request.Context(), id, actorID, &req)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error updating question", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// SubmitForReview handles POST /questions/:id/submit
func (h *QuestionHandler) SubmitForReview(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	// Body is optional; an empty submit uses no explicit reviewer.
	var req models.SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleAppError(c, contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityWarn,
				"Invalid request data",
				"",
				err,
			))
			return
		}
	}

	question, err := h.moderationService.SubmitForReview(c.Request.Context(), id, actorID, req.ReviewerID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error submitting question for review", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// Review handles POST /questions/:id/review - approve, request changes, or
// reject a pending question
func (h *QuestionHandler) Review(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	question, err := h.moderationService.Review(c.Request.Context(), id, actorID, req.Action, req.Feedback)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error recording review decision", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
			"action":      string(req.Action),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// FileFlag handles POST /questions/:id/flags
func (h *QuestionHandler) FileFlag(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	flag, err := h.moderationService.FileFlag(c.Request.Context(), id, actorID, req.Type, req.Description)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error filing flag", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
			"flag_type":   string(req.Type),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flag)
}

// ListFlags handles GET /questions/:id/flags - open flags, oldest first
func (h *QuestionHandler) ListFlags(c *gin.Context) {
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	flags, err := h.moderationService.ListOpenFlags(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

// ResolveFlags handles POST /questions/:id/flags/resolve. An empty flag_ids
// list resolves every open flag in one atomic unit.
func (h *QuestionHandler) ResolveFlags(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.ResolveFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	question, err := h.moderationService.ResolveFlags(c.Request.Context(), id, actorID, req.FlagIDs, req.ResolutionType, req.Notes)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error resolving flags", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// ListReviews handles GET /questions/:id/reviews - the audit trail
func (h *QuestionHandler) ListReviews(c *gin.Context) {
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	reviews, err := h.moderationService.ListReviews(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// Archive handles POST /questions/:id/archive (admin only, terminal)
func (h *QuestionHandler) Archive(c *gin.Context) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	id, err := questionIDParam(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	question, err := h.moderationService.Archive(c.Request.Context(), id, actorID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error archiving question", err, map[string]interface{}{
			"question_id": id,
			"actor_id":    actorID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// BatchSubmitForReview handles POST /questions/batch/submit
func (h *QuestionHandler) BatchSubmitForReview(c *gin.Context) {
	h.runBatch(c, h.moderationService.BatchSubmitForReview)
}

// BatchApprove handles POST /questions/batch/approve
func (h *QuestionHandler) BatchApprove(c *gin.Context) {
	h.runBatch(c, h.moderationService.BatchApprove)
}

// runBatch parses the shared batch payload and reports the per-id outcome.
// Partial success is a 200: the body says which ids failed and why.
func (h *QuestionHandler) runBatch(c *gin.Context, op func(ctx context.Context, ids []int, actorID int) (*models.BatchResult, error)) {
	actorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	result, err := op(c.Request.Context(), req.QuestionIDs, actorID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error running batch operation", err, map[string]interface{}{
			"actor_id": actorID,
			"count":    len(req.QuestionIDs),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
