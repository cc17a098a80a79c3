package services

import (
	"context"

	"questionbank/internal/models"
	"questionbank/internal/observability"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReviewQueueCoordinatorInterface shapes the read-side work lists for
// reviewers and creators.
type ReviewQueueCoordinatorInterface interface {
	ListForReviewer(ctx context.Context, reviewerID int) ([]models.QueueItem, error)
	ListForCreator(ctx context.Context, creatorID int) ([]models.QueueItem, error)
}

// ReviewQueueCoordinator produces the ordered, de-duplicated list of items
// needing an actor's attention. The queue does not lock anything: two
// reviewers may see the same flagged item, and whoever acts second gets
// STALE_STATE from the conditional write, not a corrupted state.
type ReviewQueueCoordinator struct {
	store  QuestionStoreInterface
	logger *observability.Logger
}

// Ensure ReviewQueueCoordinator implements the interface
var _ ReviewQueueCoordinatorInterface = (*ReviewQueueCoordinator)(nil)

// NewReviewQueueCoordinator creates a new ReviewQueueCoordinator instance
func NewReviewQueueCoordinator(store QuestionStoreInterface, logger *observability.Logger) *ReviewQueueCoordinator {
	return &ReviewQueueCoordinator{
		store:  store,
		logger: logger,
	}
}

// ListForReviewer returns the reviewer's pending assignments merged with all
// flagged questions, priority descending, oldest first within equal priority.
func (c *ReviewQueueCoordinator) ListForReviewer(ctx context.Context, reviewerID int) (result0 []models.QueueItem, err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "queue_list_for_reviewer", observability.AttributeUserID(reviewerID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	items, err := c.store.ListForReviewer(ctx, reviewerID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "Reviewer queue built", map[string]interface{}{
		"reviewer_id": reviewerID,
		"items":       len(items),
	})
	return items, nil
}

// ListForCreator returns the creator's own questions grouped by status for
// the self-service dashboard.
func (c *ReviewQueueCoordinator) ListForCreator(ctx context.Context, creatorID int) (result0 []models.QueueItem, err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "queue_list_for_creator", observability.AttributeUserID(creatorID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return c.store.ListForCreator(ctx, creatorID)
}
