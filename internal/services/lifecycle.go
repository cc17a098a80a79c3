package services

import (
	"strings"

	"questionbank/internal/models"
	contextutils "questionbank/internal/utils"
)

// LifecycleEvent names a workflow intent that moves a question between statuses
type LifecycleEvent string

const (
	// EventSubmitForReview moves a complete draft into the review queue
	EventSubmitForReview LifecycleEvent = "submit_for_review"
	// EventApprove publishes a pending question
	EventApprove LifecycleEvent = "approve"
	// EventRequestChanges returns a pending question to its creator for edits
	EventRequestChanges LifecycleEvent = "request_changes"
	// EventReject returns a pending question to its creator as not acceptable
	EventReject LifecycleEvent = "reject"
	// EventFlag records a user report against a published question
	EventFlag LifecycleEvent = "flag"
	// EventResolveLastFlag closes the last remaining open flag
	EventResolveLastFlag LifecycleEvent = "resolve_last_flag"
	// EventResolveFlag closes one open flag while others remain
	EventResolveFlag LifecycleEvent = "resolve_flag"
	// EventArchive retires a question permanently
	EventArchive LifecycleEvent = "archive"
)

// transition is one row of the state machine table
type transition struct {
	from  models.QuestionStatus
	event LifecycleEvent
	to    models.QuestionStatus
}

// transitionTable is the single source of truth for which transitions are
// legal. Every mutating operation computes its target status here; nothing
// else in the codebase decides a status change.
var transitionTable = []transition{
	{models.QuestionStatusDraft, EventSubmitForReview, models.QuestionStatusPendingReview},
	{models.QuestionStatusPendingReview, EventApprove, models.QuestionStatusApproved},
	{models.QuestionStatusPendingReview, EventRequestChanges, models.QuestionStatusDraft},
	{models.QuestionStatusPendingReview, EventReject, models.QuestionStatusDraft},
	{models.QuestionStatusApproved, EventFlag, models.QuestionStatusFlagged},
	{models.QuestionStatusFlagged, EventFlag, models.QuestionStatusFlagged},
	{models.QuestionStatusFlagged, EventResolveLastFlag, models.QuestionStatusApproved},
	{models.QuestionStatusFlagged, EventResolveFlag, models.QuestionStatusFlagged},
	{models.QuestionStatusDraft, EventArchive, models.QuestionStatusArchived},
	{models.QuestionStatusPendingReview, EventArchive, models.QuestionStatusArchived},
	{models.QuestionStatusApproved, EventArchive, models.QuestionStatusArchived},
	{models.QuestionStatusFlagged, EventArchive, models.QuestionStatusArchived},
}

// QuestionLifecycle owns the finite state machine for a question's
// publication status. It is pure: it computes target states and checks
// preconditions but never touches storage.
type QuestionLifecycle struct{}

// NewQuestionLifecycle creates a new QuestionLifecycle instance
func NewQuestionLifecycle() *QuestionLifecycle {
	return &QuestionLifecycle{}
}

// Next returns the status a question in `from` moves to when `event` is
// applied. Returns ErrInvalidState if the transition is not in the table.
func (l *QuestionLifecycle) Next(from models.QuestionStatus, event LifecycleEvent) (result0 models.QuestionStatus, err error) {
	for _, t := range transitionTable {
		if t.from == from && t.event == event {
			return t.to, nil
		}
	}
	return "", contextutils.WrapErrorf(contextutils.ErrInvalidState, "event %s is not legal from status %s", event, from)
}

// CanTransition reports whether the event is legal from the given status
func (l *QuestionLifecycle) CanTransition(from models.QuestionStatus, event LifecycleEvent) bool {
	_, err := l.Next(from, event)
	return err == nil
}

// EventForReviewAction maps a reviewer decision to its lifecycle event.
// reject and request_changes produce the same transition but stay distinct
// actions in the audit trail.
func (l *QuestionLifecycle) EventForReviewAction(action models.ReviewAction) (result0 LifecycleEvent, err error) {
	switch action {
	case models.ReviewActionApprove:
		return EventApprove, nil
	case models.ReviewActionRequestChanges:
		return EventRequestChanges, nil
	case models.ReviewActionReject:
		return EventReject, nil
	}
	return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown review action %q", action)
}

// CheckCompleteness verifies a question is ready for review: non-empty stem,
// at least two options, exactly one correct option, and a teaching point.
func (l *QuestionLifecycle) CheckCompleteness(q *models.Question) (err error) {
	if q == nil {
		return contextutils.ErrQuestionNotFound
	}
	if strings.TrimSpace(q.Stem) == "" {
		return contextutils.WrapError(contextutils.ErrIncompleteContent, "question stem is empty")
	}
	if len(q.Options) < 2 {
		return contextutils.WrapErrorf(contextutils.ErrIncompleteContent, "question has %d options, at least 2 required", len(q.Options))
	}
	correct := 0
	for _, opt := range q.Options {
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return contextutils.WrapErrorf(contextutils.ErrIncompleteContent, "question has %d correct options, exactly 1 required", correct)
	}
	if strings.TrimSpace(q.TeachingPoint) == "" {
		return contextutils.WrapError(contextutils.ErrIncompleteContent, "teaching point is missing")
	}
	return nil
}
