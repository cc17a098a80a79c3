package services

import (
	"context"

	"questionbank/internal/models"
	"questionbank/internal/observability"
	contextutils "questionbank/internal/utils"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FlagTrackerInterface manages the many-flags-to-one-question relationship
// and drives the flagged⇄approved flips. Each method's bool return reports
// whether the operation flipped the question's status, as decided inside
// the store transaction.
type FlagTrackerInterface interface {
	FileFlag(ctx context.Context, questionID, userID int, flagType models.FlagType, description string) (*models.Flag, bool, error)
	ResolveFlag(ctx context.Context, flagID int, actor *models.User, resolutionType models.ResolutionType, notes string) (*models.Flag, bool, error)
	ResolveFlags(ctx context.Context, questionID int, actor *models.User, flagIDs []int, resolutionType models.ResolutionType, notes string) ([]models.Flag, bool, error)
	ResolveAllOpenFlags(ctx context.Context, questionID int, actor *models.User, resolutionType models.ResolutionType, notes string) ([]models.Flag, bool, error)
}

// FlagTracker maintains openFlagCount as a derivative of the flag set. All
// counter arithmetic and status flips happen inside the store's transactions;
// the tracker validates input and permissions and picks the right primitive.
type FlagTracker struct {
	store  QuestionStoreInterface
	logger *observability.Logger
}

// Ensure FlagTracker implements the FlagTrackerInterface
var _ FlagTrackerInterface = (*FlagTracker)(nil)

// NewFlagTracker creates a new FlagTracker instance
func NewFlagTracker(store QuestionStoreInterface, logger *observability.Logger) *FlagTracker {
	return &FlagTracker{
		store:  store,
		logger: logger,
	}
}

// validateResolution enforces the resolution rules shared by every resolve
// path: a recognized resolution type, and notes when the problem is marked
// fixed.
func validateResolution(resolutionType models.ResolutionType, notes string) error {
	if !resolutionType.Valid() {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown resolution type %q", resolutionType)
	}
	if resolutionType == models.ResolutionTypeFixed && notes == "" {
		return contextutils.WrapError(contextutils.ErrValidationFailed, "resolution notes are required when a flag is resolved as fixed")
	}
	return nil
}

// FileFlag records a user report against a published question. Any
// authenticated user may flag; the store rejects duplicates and questions
// outside approved/flagged.
func (t *FlagTracker) FileFlag(ctx context.Context, questionID, userID int, flagType models.FlagType, description string) (result0 *models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "file_flag",
		observability.AttributeQuestionID(questionID), observability.AttributeUserID(userID), observability.AttributeFlagType(flagType))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !flagType.Valid() {
		return nil, false, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown flag type %q", flagType)
	}

	flag, flipped, err := t.store.InsertFlag(ctx, questionID, userID, flagType, description)
	if err != nil {
		return nil, false, err
	}

	t.logger.Info(ctx, "Flag filed", map[string]interface{}{
		"question_id": questionID,
		"flag_id":     flag.ID,
		"flag_type":   string(flagType),
	})
	return flag, flipped, nil
}

// ResolveFlag closes one flag. Only when it is the last open flag does the
// question flip back to approved; the store decides that inside the same
// transaction that closes the flag.
func (t *FlagTracker) ResolveFlag(ctx context.Context, flagID int, actor *models.User, resolutionType models.ResolutionType, notes string) (result0 *models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "resolve_flag",
		observability.AttributeFlagID(flagID), observability.AttributeUserID(actor.ID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !actor.Role.CanReview() {
		return nil, false, contextutils.WrapError(contextutils.ErrForbidden, "only reviewers and admins can resolve flags")
	}
	if err := validateResolution(resolutionType, notes); err != nil {
		return nil, false, err
	}

	flag, err := t.store.GetFlag(ctx, flagID)
	if err != nil {
		return nil, false, err
	}
	if flag.Status != models.FlagStatusOpen {
		return nil, false, contextutils.WrapErrorf(contextutils.ErrFlagNotFound, "flag %d is already closed", flagID)
	}

	closed, flipped, err := t.store.CloseFlags(ctx, flag.QuestionID, []int{flagID}, actor.ID, resolutionType, notes)
	if err != nil {
		return nil, false, err
	}
	return &closed[0], flipped, nil
}

// ResolveFlags closes a subset of a question's open flags with one
// resolution. When the subset covers every open flag it takes the batch
// path, so the question performs exactly one flip to approved.
func (t *FlagTracker) ResolveFlags(ctx context.Context, questionID int, actor *models.User, flagIDs []int, resolutionType models.ResolutionType, notes string) (result0 []models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "resolve_flags",
		observability.AttributeQuestionID(questionID), observability.AttributeUserID(actor.ID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !actor.Role.CanReview() {
		return nil, false, contextutils.WrapError(contextutils.ErrForbidden, "only reviewers and admins can resolve flags")
	}
	if err := validateResolution(resolutionType, notes); err != nil {
		return nil, false, err
	}
	if len(flagIDs) == 0 {
		return nil, false, contextutils.WrapError(contextutils.ErrInvalidInput, "no flag ids given")
	}

	return t.store.CloseFlags(ctx, questionID, flagIDs, actor.ID, resolutionType, notes)
}

// ResolveAllOpenFlags closes every open flag on the question with the same
// resolution. Equivalent to resolving them one at a time, except the status
// flips to approved exactly once with no intermediate transitions.
func (t *FlagTracker) ResolveAllOpenFlags(ctx context.Context, questionID int, actor *models.User, resolutionType models.ResolutionType, notes string) (result0 []models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "resolve_all_open_flags",
		observability.AttributeQuestionID(questionID), observability.AttributeUserID(actor.ID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !actor.Role.CanReview() {
		return nil, false, contextutils.WrapError(contextutils.ErrForbidden, "only reviewers and admins can resolve flags")
	}
	if err := validateResolution(resolutionType, notes); err != nil {
		return nil, false, err
	}

	open, err := t.store.ListOpenFlags(ctx, questionID)
	if err != nil {
		return nil, false, err
	}
	if len(open) == 0 {
		return nil, false, contextutils.WrapErrorf(contextutils.ErrFlagNotFound, "question %d has no open flags", questionID)
	}

	flagIDs := make([]int, len(open))
	for i, f := range open {
		flagIDs[i] = f.ID
	}
	return t.store.CloseFlags(ctx, questionID, flagIDs, actor.ID, resolutionType, notes)
}
