package handlers

import (
	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/gin-gonic/gin"
)

// QueueHandler serves the review queue and the creator dashboard. Both are
// read-only projections; nothing here mutates question state.
type QueueHandler struct {
	queue  services.ReviewQueueCoordinatorInterface
	cfg    *config.Config
	logger *observability.Logger
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(queue services.ReviewQueueCoordinatorInterface, cfg *config.Config, logger *observability.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// ReviewQueue handles GET /queue - the calling reviewer's prioritized queue.
// Flagged items outrank pending reviews; ties break oldest first.
func (h *QueueHandler) ReviewQueue(c *gin.Context) {
	reviewerID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	items, err := h.queue.ListForReviewer(c.Request.Context(), reviewerID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error listing review queue", err, map[string]interface{}{"reviewer_id": reviewerID})
		HandleAppError(c, err)
		return
	}

	h.writeQueuePage(c, items)
}

// CreatorDashboard handles GET /queue/mine - the calling creator's own
// questions awaiting action (drafts sent back, flagged items they authored)
func (h *QueueHandler) CreatorDashboard(c *gin.Context) {
	creatorID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	items, err := h.queue.ListForCreator(c.Request.Context(), creatorID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error listing creator dashboard", err, map[string]interface{}{"creator_id": creatorID})
		HandleAppError(c, err)
		return
	}

	h.writeQueuePage(c, items)
}

// writeQueuePage slices the projection to the requested page. The projection
// is already ordered, so pagination is a plain window over it.
func (h *QueueHandler) writeQueuePage(c *gin.Context, items []models.QueueItem) {
	page, size := ParsePagination(c, 1, h.cfg.QueuePageSize(), config.MaxQueuePageSize)

	total := len(items)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	WritePaginated(c, "items", items[start:end], gin.H{
		"page":      page,
		"page_size": size,
	}, gin.H{"total": total})
}
