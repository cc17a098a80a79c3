package services

import (
	"context"
	"database/sql"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/serviceinterfaces"
	contextutils "questionbank/internal/utils"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ModerationServiceInterface defines the façade for the moderation workflow.
// Every mutating operation wraps permission check, precondition check, atomic
// transition, and audit write; expected business failures come back as typed
// errors, never panics.
type ModerationServiceInterface interface {
	CreateQuestion(ctx context.Context, actorID int, req *models.CreateQuestionRequest) (*models.Question, error)
	UpdateQuestion(ctx context.Context, questionID, actorID int, req *models.UpdateQuestionRequest) (*models.Question, error)
	GetQuestion(ctx context.Context, questionID int) (*models.Question, error)
	SubmitForReview(ctx context.Context, questionID, actorID int, reviewerID *int) (*models.Question, error)
	Review(ctx context.Context, questionID, actorID int, action models.ReviewAction, feedback string) (*models.Question, error)
	FileFlag(ctx context.Context, questionID, actorID int, flagType models.FlagType, description string) (*models.Flag, error)
	ResolveFlags(ctx context.Context, questionID, actorID int, flagIDs []int, resolutionType models.ResolutionType, notes string) (*models.Question, error)
	Archive(ctx context.Context, questionID, actorID int) (*models.Question, error)
	BatchSubmitForReview(ctx context.Context, questionIDs []int, actorID int) (*models.BatchResult, error)
	BatchApprove(ctx context.Context, questionIDs []int, actorID int) (*models.BatchResult, error)
	ListReviews(ctx context.Context, questionID int) ([]models.Review, error)
	ListOpenFlags(ctx context.Context, questionID int) ([]models.Flag, error)
}

// ModerationService coordinates the question moderation workflow: lifecycle
// transitions, flag bookkeeping, and the audit trail.
type ModerationService struct {
	store     QuestionStoreInterface
	users     UserServiceInterface
	flags     FlagTrackerInterface
	lifecycle *QuestionLifecycle
	notifier  serviceinterfaces.Notifier
	cfg       *config.Config
	logger    *observability.Logger
}

// Ensure ModerationService implements the interface
var _ ModerationServiceInterface = (*ModerationService)(nil)

// NewModerationService creates a new ModerationService instance
func NewModerationService(
	store QuestionStoreInterface,
	users UserServiceInterface,
	flags FlagTrackerInterface,
	notifier serviceinterfaces.Notifier,
	cfg *config.Config,
	logger *observability.Logger,
) *ModerationService {
	if logger == nil {
		logger = observability.NewLogger(nil)
	}
	return &ModerationService{
		store:     store,
		users:     users,
		flags:     flags,
		lifecycle: NewQuestionLifecycle(),
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// resolveActor loads the acting user so role checks can run against a live
// record rather than a caller-supplied claim.
func (s *ModerationService) resolveActor(ctx context.Context, actorID int) (*models.User, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to resolve actor %d", actorID)
	}
	if actor == nil {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "actor %d not found", actorID)
	}
	return actor, nil
}

// notifyTransition invokes the notification hook without blocking the
// transition. Delivery failures are logged, never surfaced to the caller.
func (s *ModerationService) notifyTransition(questionID int, from, to models.QuestionStatus, actorID int) {
	if s.notifier == nil || !s.notifier.IsEnabled() {
		return
	}
	event := &models.TransitionEvent{
		QuestionID: questionID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
	}
	go func() {
		ctx := context.Background()
		if err := s.notifier.NotifyTransition(ctx, event); err != nil {
			s.logger.Warn(ctx, "Transition notification failed", map[string]interface{}{
				"question_id": questionID,
				"to_status":   string(to),
				"error":       err.Error(),
			})
		}
	}()
}

// CreateQuestion creates a new question in draft owned by the actor.
func (s *ModerationService) CreateQuestion(ctx context.Context, actorID int, req *models.CreateQuestionRequest) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "CreateQuestion",
		observability.AttributeUserID(actorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, err = s.resolveActor(ctx, actorID); err != nil {
		return nil, err
	}
	if req.Difficulty != "" && !req.Difficulty.Valid() {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid difficulty: %s", req.Difficulty)
	}

	question := &models.Question{
		Title:         req.Title,
		Stem:          req.Stem,
		TeachingPoint: req.TeachingPoint,
		Difficulty:    req.Difficulty,
		Status:        models.QuestionStatusDraft,
		CreatedBy:     actorID,
	}
	for i, opt := range req.Options {
		question.Options = append(question.Options, models.QuestionOption{
			Text:       opt.Text,
			IsCorrect:  opt.IsCorrect,
			OrderIndex: i,
		})
	}

	if err = s.store.CreateQuestion(ctx, question); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Question created", map[string]interface{}{
		"question_id": question.ID,
		"created_by":  actorID,
	})
	return question, nil
}

// UpdateQuestion edits a question's content. Only the creator or an admin may
// edit; archived questions reject all edits. Edits never change status, even
// on approved questions, where a patch version bump records the touch.
func (s *ModerationService) UpdateQuestion(ctx context.Context, questionID, actorID int, req *models.UpdateQuestionRequest) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "UpdateQuestion",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.CreatedBy != actorID && actor.Role != models.RoleAdmin {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "user %d cannot edit question %d", actorID, questionID)
	}

	return s.store.UpdateQuestionContent(ctx, questionID, req)
}

// GetQuestion fetches a question with its options.
func (s *ModerationService) GetQuestion(ctx context.Context, questionID int) (*models.Question, error) {
	return s.store.GetQuestion(ctx, questionID)
}

// SubmitForReview moves a draft question into pending_review. The actor must
// be the creator (or an admin), the question must pass the completeness
// check, and the status write is conditional on the question still being in
// draft at commit time.
func (s *ModerationService) SubmitForReview(ctx context.Context, questionID, actorID int, reviewerID *int) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "SubmitForReview",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.CreatedBy != actorID && actor.Role != models.RoleAdmin {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "user %d cannot submit question %d", actorID, questionID)
	}

	next, err := s.lifecycle.Next(question.Status, EventSubmitForReview)
	if err != nil {
		return nil, err
	}
	if err = s.lifecycle.CheckCompleteness(question); err != nil {
		return nil, err
	}

	var assigned sql.NullInt64
	if reviewerID != nil {
		reviewer, rerr := s.users.GetUserByID(ctx, *reviewerID)
		if rerr != nil {
			return nil, contextutils.WrapErrorf(rerr, "failed to resolve reviewer %d", *reviewerID)
		}
		if !reviewer.Role.CanReview() {
			return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "user %d cannot be assigned as reviewer", *reviewerID)
		}
		assigned = sql.NullInt64{Int64: int64(*reviewerID), Valid: true}
	}

	if err = s.store.CompareAndSetStatusWithReviewer(ctx, questionID, question.Status, next, assigned); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Question submitted for review", map[string]interface{}{
		"question_id": questionID,
		"actor_id":    actorID,
		"reviewer_id": reviewerID,
	})
	s.notifyTransition(questionID, question.Status, next, actorID)
	return s.store.GetQuestion(ctx, questionID)
}

// Review applies a review decision to a question in pending_review. The CAS
// status write and the audit Review row commit in one transaction, so a
// successful decision always leaves exactly one Review behind and a failed
// one leaves none.
func (s *ModerationService) Review(ctx context.Context, questionID, actorID int, action models.ReviewAction, feedback string) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "Review",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
		observability.AttributeReviewAction(action),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanReview() {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "user %d lacks review permission", actorID)
	}
	if !action.Valid() {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid review action: %s", action)
	}
	if action.RequiresFeedback() && feedback == "" {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrValidationFailed, "action %s requires feedback", action)
	}

	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if action == models.ReviewActionApprove && question.CreatedBy == actorID {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "user %d cannot approve their own question", actorID)
	}

	event, err := s.lifecycle.EventForReviewAction(action)
	if err != nil {
		return nil, err
	}
	next, err := s.lifecycle.Next(question.Status, event)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		QuestionID: questionID,
		ReviewerID: actorID,
		Action:     action,
	}
	if feedback != "" {
		review.Feedback = sql.NullString{String: feedback, Valid: true}
	}

	if err = s.store.CompareAndSetStatusWithReview(ctx, questionID, question.Status, next, review); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Review recorded", map[string]interface{}{
		"question_id": questionID,
		"reviewer_id": actorID,
		"action":      string(action),
		"to_status":   string(next),
	})
	s.notifyTransition(questionID, question.Status, next, actorID)
	return s.store.GetQuestion(ctx, questionID)
}

// FileFlag records a quality flag against an approved or flagged question.
// Any known user may flag; one open flag per user per question.
func (s *ModerationService) FileFlag(ctx context.Context, questionID, actorID int, flagType models.FlagType, description string) (result0 *models.Flag, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "FileFlag",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
		observability.AttributeFlagType(flagType),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, err = s.resolveActor(ctx, actorID); err != nil {
		return nil, err
	}

	flag, flipped, err := s.flags.FileFlag(ctx, questionID, actorID, flagType, description)
	if err != nil {
		return nil, err
	}

	// The store transaction decides whether this flag performed the
	// approved -> flagged flip; a reload could miss it when another flag
	// lands first.
	if flipped {
		s.notifyTransition(questionID, models.QuestionStatusApproved, models.QuestionStatusFlagged, actorID)
	}
	return flag, nil
}

// ResolveFlags closes the given open flags on a flagged question. An empty
// flagIDs slice means "all currently open flags". The close and the status
// flip (back to approved only when the open count reaches zero) commit
// atomically, so an observer never sees a half-resolved question.
func (s *ModerationService) ResolveFlags(ctx context.Context, questionID, actorID int, flagIDs []int, resolutionType models.ResolutionType, notes string) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "ResolveFlags",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var flipped bool
	if len(flagIDs) == 0 {
		_, flipped, err = s.flags.ResolveAllOpenFlags(ctx, questionID, actor, resolutionType, notes)
	} else {
		open, lerr := s.store.ListOpenFlags(ctx, questionID)
		if lerr != nil {
			return nil, lerr
		}
		if len(flagIDs) == len(open) && coversAllFlags(flagIDs, open) {
			_, flipped, err = s.flags.ResolveAllOpenFlags(ctx, questionID, actor, resolutionType, notes)
		} else {
			_, flipped, err = s.flags.ResolveFlags(ctx, questionID, actor, flagIDs, resolutionType, notes)
		}
	}
	if err != nil {
		return nil, err
	}

	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	// Notify from the transaction's own flip report; checking the reloaded
	// status instead would double-notify under racing resolutions.
	if flipped {
		s.notifyTransition(questionID, models.QuestionStatusFlagged, models.QuestionStatusApproved, actorID)
	}
	s.logger.Info(ctx, "Flags resolved", map[string]interface{}{
		"question_id": questionID,
		"actor_id":    actorID,
		"status":      string(question.Status),
	})
	return question, nil
}

// coversAllFlags reports whether ids contains every open flag's id.
func coversAllFlags(ids []int, open []models.Flag) bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, f := range open {
		if !set[f.ID] {
			return false
		}
	}
	return true
}

// Archive moves a question into the terminal archived state. Admin only;
// legal from any non-archived state.
func (s *ModerationService) Archive(ctx context.Context, questionID, actorID int) (result0 *models.Question, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "Archive",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(actorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrForbidden, "user %d cannot archive questions", actorID)
	}

	question, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	next, err := s.lifecycle.Next(question.Status, EventArchive)
	if err != nil {
		return nil, err
	}
	if err = s.store.CompareAndSetStatus(ctx, questionID, question.Status, next); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Question archived", map[string]interface{}{
		"question_id": questionID,
		"actor_id":    actorID,
	})
	s.notifyTransition(questionID, question.Status, next, actorID)
	return s.store.GetQuestion(ctx, questionID)
}

// runBatch applies op to each id independently. One bad id never aborts the
// rest, and succeeded ids stay committed whatever happens later in the list.
func (s *ModerationService) runBatch(ctx context.Context, questionIDs []int, op func(ctx context.Context, id int) error) (*models.BatchResult, error) {
	if len(questionIDs) == 0 {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "no question ids provided")
	}
	if max := s.cfg.MaxBatchSize(); len(questionIDs) > max {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "batch size %d exceeds limit %d", len(questionIDs), max)
	}

	result := &models.BatchResult{}
	for _, id := range questionIDs {
		if err := op(ctx, id); err != nil {
			result.Failed = append(result.Failed, models.BatchFailure{
				QuestionID: id,
				Code:       string(contextutils.GetErrorCode(err)),
				Message:    err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// BatchSubmitForReview submits each question independently and reports
// per-id outcomes.
func (s *ModerationService) BatchSubmitForReview(ctx context.Context, questionIDs []int, actorID int) (result0 *models.BatchResult, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "BatchSubmitForReview",
		observability.AttributeUserID(actorID),
		observability.AttributeLimit(len(questionIDs)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result, err := s.runBatch(ctx, questionIDs, func(ctx context.Context, id int) error {
		_, serr := s.SubmitForReview(ctx, id, actorID, nil)
		return serr
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Batch submit completed", map[string]interface{}{
		"actor_id":  actorID,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// BatchApprove approves each question independently and reports per-id
// outcomes.
func (s *ModerationService) BatchApprove(ctx context.Context, questionIDs []int, actorID int) (result0 *models.BatchResult, err error) {
	ctx, span := observability.TraceModerationFunction(ctx, "BatchApprove",
		observability.AttributeUserID(actorID),
		observability.AttributeLimit(len(questionIDs)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result, err := s.runBatch(ctx, questionIDs, func(ctx context.Context, id int) error {
		_, rerr := s.Review(ctx, id, actorID, models.ReviewActionApprove, "")
		return rerr
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Batch approve completed", map[string]interface{}{
		"actor_id":  actorID,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// ListReviews returns the audit trail of review decisions for a question.
func (s *ModerationService) ListReviews(ctx context.Context, questionID int) ([]models.Review, error) {
	return s.store.ListReviews(ctx, questionID)
}

// ListOpenFlags returns the open flags on a question, oldest first.
func (s *ModerationService) ListOpenFlags(ctx context.Context, questionID int) ([]models.Flag, error) {
	return s.store.ListOpenFlags(ctx, questionID)
}
