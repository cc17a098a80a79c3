// Package models defines data structures used throughout the question bank application.
package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Role represents a user's role in the moderation workflow
type Role string

const (
	// RoleCreator grants access to authoring and submitting questions
	RoleCreator Role = "creator"
	// RoleReviewer grants access to the review queue and moderation decisions
	RoleReviewer Role = "reviewer"
	// RoleAdmin grants full access, including archival and user administration
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a recognized role
func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// CanReview reports whether the role is allowed to make review decisions
// and resolve flags
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// User represents a user in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	Role         Role           `json:"role" yaml:"role"`
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullString and sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int        `json:"id"`
		Username   string     `json:"username"`
		Email      *string    `json:"email"`
		Role       Role       `json:"role"`
		LastActive *time.Time `json:"last_active"`
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
	}{
		ID:         u.ID,
		Username:   u.Username,
		Email:      nullStringToPointer(u.Email),
		Role:       u.Role,
		LastActive: nullTimeToPointer(u.LastActive),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullIntToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// QuestionStatus represents a question's position in the moderation lifecycle
type QuestionStatus string

const (
	// QuestionStatusDraft is for questions being authored, not yet submitted
	QuestionStatusDraft QuestionStatus = "draft"
	// QuestionStatusPendingReview is for questions submitted and awaiting a reviewer
	QuestionStatusPendingReview QuestionStatus = "pending_review"
	// QuestionStatusApproved is for questions visible to end users
	QuestionStatusApproved QuestionStatus = "approved"
	// QuestionStatusFlagged is for approved questions with at least one open flag
	QuestionStatusFlagged QuestionStatus = "flagged"
	// QuestionStatusArchived is for questions permanently retired from circulation
	QuestionStatusArchived QuestionStatus = "archived"
)

// Valid reports whether s is a recognized lifecycle status
func (s QuestionStatus) Valid() bool {
	switch s {
	case QuestionStatusDraft, QuestionStatusPendingReview, QuestionStatusApproved,
		QuestionStatusFlagged, QuestionStatusArchived:
		return true
	}
	return false
}

// IsTerminal reports whether no transitions leave this status
func (s QuestionStatus) IsTerminal() bool {
	return s == QuestionStatusArchived
}

// Difficulty represents a question's difficulty rating
type Difficulty string

const (
	// DifficultyEasy is for introductory questions
	DifficultyEasy Difficulty = "easy"
	// DifficultyMedium is for questions requiring applied understanding
	DifficultyMedium Difficulty = "medium"
	// DifficultyHard is for questions requiring synthesis across topics
	DifficultyHard Difficulty = "hard"
)

// Valid reports whether d is a recognized difficulty
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionOption represents one answer choice attached to a question
type QuestionOption struct {
	ID         int    `json:"id" yaml:"id"`
	QuestionID int    `json:"question_id" yaml:"question_id"`
	Text       string `json:"text" yaml:"text"`
	IsCorrect  bool   `json:"is_correct" yaml:"is_correct"`
	OrderIndex int    `json:"order_index" yaml:"order_index"`
}

// Question represents a question in the content bank
type Question struct {
	ID            int              `json:"id" yaml:"id"`
	Title         string           `json:"title" yaml:"title"`
	Stem          string           `json:"stem" yaml:"stem"`
	TeachingPoint string           `json:"teaching_point" yaml:"teaching_point"`
	Difficulty    Difficulty       `json:"difficulty" yaml:"difficulty"`
	Options       []QuestionOption `json:"options,omitempty" yaml:"options,omitempty"`
	Status        QuestionStatus   `json:"status" yaml:"status"`
	CreatedBy     int              `json:"created_by" yaml:"created_by"`
	ReviewerID    sql.NullInt64    `json:"reviewer_id" yaml:"reviewer_id"`
	VersionMajor  int              `json:"version_major" yaml:"version_major"`
	VersionMinor  int              `json:"version_minor" yaml:"version_minor"`
	VersionPatch  int              `json:"version_patch" yaml:"version_patch"`
	OpenFlagCount int              `json:"open_flag_count" yaml:"open_flag_count"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"updated_at"`
}

// Version returns the question's semantic version string
func (q *Question) Version() string {
	return fmt.Sprintf("%d.%d.%d", q.VersionMajor, q.VersionMinor, q.VersionPatch)
}

// MarshalJSON customizes JSON marshaling for Question to handle sql.NullInt64 properly
func (q Question) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID            int              `json:"id"`
		Title         string           `json:"title"`
		Stem          string           `json:"stem"`
		TeachingPoint string           `json:"teaching_point"`
		Difficulty    Difficulty       `json:"difficulty"`
		Options       []QuestionOption `json:"options,omitempty"`
		Status        QuestionStatus   `json:"status"`
		CreatedBy     int              `json:"created_by"`
		ReviewerID    *int64           `json:"reviewer_id"`
		Version       string           `json:"version"`
		OpenFlagCount int              `json:"open_flag_count"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}{
		ID:            q.ID,
		Title:         q.Title,
		Stem:          q.Stem,
		TeachingPoint: q.TeachingPoint,
		Difficulty:    q.Difficulty,
		Options:       q.Options,
		Status:        q.Status,
		CreatedBy:     q.CreatedBy,
		ReviewerID:    nullIntToPointer(q.ReviewerID),
		Version:       q.Version(),
		OpenFlagCount: q.OpenFlagCount,
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
	})
}

// ReviewAction represents the decision recorded by a reviewer
type ReviewAction string

const (
	// ReviewActionApprove records a reviewer approving a pending question
	ReviewActionApprove ReviewAction = "approve"
	// ReviewActionRequestChanges records a reviewer sending a pending question back for edits
	ReviewActionRequestChanges ReviewAction = "request_changes"
	// ReviewActionReject records a reviewer rejecting a pending question
	ReviewActionReject ReviewAction = "reject"
)

// Valid reports whether a is a recognized review action
func (a ReviewAction) Valid() bool {
	switch a {
	case ReviewActionApprove, ReviewActionRequestChanges, ReviewActionReject:
		return true
	}
	return false
}

// RequiresFeedback reports whether the action must carry a non-empty feedback string.
// Both rejection paths land the question back in draft, so the creator needs to know why.
func (a ReviewAction) RequiresFeedback() bool {
	return a == ReviewActionRequestChanges || a == ReviewActionReject
}

// Review represents one reviewer decision event. Append-only; never mutated
// or deleted once created.
type Review struct {
	ID         int            `json:"id" yaml:"id"`
	QuestionID int            `json:"question_id" yaml:"question_id"`
	ReviewerID int            `json:"reviewer_id" yaml:"reviewer_id"`
	Action     ReviewAction   `json:"action" yaml:"action"`
	Feedback   sql.NullString `json:"feedback" yaml:"feedback"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Review to handle sql.NullString properly
func (r Review) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int          `json:"id"`
		QuestionID int          `json:"question_id"`
		ReviewerID int          `json:"reviewer_id"`
		Action     ReviewAction `json:"action"`
		Feedback   *string      `json:"feedback"`
		CreatedAt  time.Time    `json:"created_at"`
	}{
		ID:         r.ID,
		QuestionID: r.QuestionID,
		ReviewerID: r.ReviewerID,
		Action:     r.Action,
		Feedback:   nullStringToPointer(r.Feedback),
		CreatedAt:  r.CreatedAt,
	})
}

// FlagType categorizes the problem a flag reports
type FlagType string

// Flag types accepted from end users
const (
	// FlagTypeFactualError reports incorrect content or a wrong answer key
	FlagTypeFactualError FlagType = "factual_error"
	// FlagTypeTypo reports spelling or grammar problems
	FlagTypeTypo FlagType = "typo"
	// FlagTypeUnclearQuestion reports ambiguous or confusing wording
	FlagTypeUnclearQuestion FlagType = "unclear_question"
	// FlagTypeOutdatedContent reports content no longer accurate
	FlagTypeOutdatedContent FlagType = "outdated_content"
	// FlagTypeImageIssue reports a broken or wrong supporting image
	FlagTypeImageIssue FlagType = "image_issue"
	// FlagTypeOther covers anything the other types do not
	FlagTypeOther FlagType = "other"
)

// Valid reports whether t is a recognized flag type
func (t FlagType) Valid() bool {
	switch t {
	case FlagTypeFactualError, FlagTypeTypo, FlagTypeUnclearQuestion,
		FlagTypeOutdatedContent, FlagTypeImageIssue, FlagTypeOther:
		return true
	}
	return false
}

// FlagStatus represents the lifecycle of a single flag
type FlagStatus string

const (
	// FlagStatusOpen is for flags awaiting reviewer attention
	FlagStatusOpen FlagStatus = "open"
	// FlagStatusClosed is for flags that received an explicit resolution
	FlagStatusClosed FlagStatus = "closed"
)

// ResolutionType records how a closed flag was settled
type ResolutionType string

const (
	// ResolutionTypeFixed means the reported problem was corrected
	ResolutionTypeFixed ResolutionType = "fixed"
	// ResolutionTypeDismissed means the flag was closed without a content change
	ResolutionTypeDismissed ResolutionType = "dismissed"
)

// Valid reports whether rt is a recognized resolution type
func (rt ResolutionType) Valid() bool {
	switch rt {
	case ResolutionTypeFixed, ResolutionTypeDismissed:
		return true
	}
	return false
}

// Flag represents one reported issue against a published question.
// Flags are never deleted; they close only via an explicit resolution.
type Flag struct {
	ID              int            `json:"id" yaml:"id"`
	QuestionID      int            `json:"question_id" yaml:"question_id"`
	FlaggedBy       int            `json:"flagged_by" yaml:"flagged_by"`
	Type            FlagType       `json:"type" yaml:"type"`
	Description     sql.NullString `json:"description" yaml:"description"`
	Status          FlagStatus     `json:"status" yaml:"status"`
	ResolutionType  ResolutionType `json:"resolution_type,omitempty" yaml:"resolution_type,omitempty"`
	ResolutionNotes sql.NullString `json:"resolution_notes" yaml:"resolution_notes"`
	ResolvedBy      sql.NullInt64  `json:"resolved_by" yaml:"resolved_by"`
	ResolvedAt      sql.NullTime   `json:"resolved_at" yaml:"resolved_at"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Flag to handle sql.Null types properly
func (f Flag) MarshalJSON() (result0 []byte, err error) {
	var resolutionType *ResolutionType
	if f.ResolutionType != "" {
		resolutionType = &f.ResolutionType
	}
	return json.Marshal(&struct {
		ID              int             `json:"id"`
		QuestionID      int             `json:"question_id"`
		FlaggedBy       int             `json:"flagged_by"`
		Type            FlagType        `json:"type"`
		Description     *string         `json:"description"`
		Status          FlagStatus      `json:"status"`
		ResolutionType  *ResolutionType `json:"resolution_type"`
		ResolutionNotes *string         `json:"resolution_notes"`
		ResolvedBy      *int64          `json:"resolved_by"`
		ResolvedAt      *time.Time      `json:"resolved_at"`
		CreatedAt       time.Time       `json:"created_at"`
	}{
		ID:              f.ID,
		QuestionID:      f.QuestionID,
		FlaggedBy:       f.FlaggedBy,
		Type:            f.Type,
		Description:     nullStringToPointer(f.Description),
		Status:          f.Status,
		ResolutionType:  resolutionType,
		ResolutionNotes: nullStringToPointer(f.ResolutionNotes),
		ResolvedBy:      nullIntToPointer(f.ResolvedBy),
		ResolvedAt:      nullTimeToPointer(f.ResolvedAt),
		CreatedAt:       f.CreatedAt,
	})
}

// QueueItem represents one entry in the review queue projection.
// The queue is a prioritized hint, not a reservation; the question's live
// status is re-checked when a reviewer acts on it.
type QueueItem struct {
	QuestionID    int            `json:"question_id" yaml:"question_id"`
	Title         string         `json:"title" yaml:"title"`
	Status        QuestionStatus `json:"status" yaml:"status"`
	PriorityScore float64        `json:"priority_score" yaml:"priority_score"`
	OpenFlagCount int            `json:"open_flag_count" yaml:"open_flag_count"`
	ReviewerID    sql.NullInt64  `json:"reviewer_id" yaml:"reviewer_id"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for QueueItem to handle sql.NullInt64 properly
func (qi QueueItem) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		QuestionID    int            `json:"question_id"`
		Title         string         `json:"title"`
		Status        QuestionStatus `json:"status"`
		PriorityScore float64        `json:"priority_score"`
		OpenFlagCount int            `json:"open_flag_count"`
		ReviewerID    *int64         `json:"reviewer_id"`
		CreatedAt     time.Time      `json:"created_at"`
	}{
		QuestionID:    qi.QuestionID,
		Title:         qi.Title,
		Status:        qi.Status,
		PriorityScore: qi.PriorityScore,
		OpenFlagCount: qi.OpenFlagCount,
		ReviewerID:    nullIntToPointer(qi.ReviewerID),
		CreatedAt:     qi.CreatedAt,
	})
}

// TransitionEvent is the payload handed to the notification hook after a
// status transition commits
type TransitionEvent struct {
	QuestionID int            `json:"question_id"`
	FromStatus QuestionStatus `json:"from_status"`
	ToStatus   QuestionStatus `json:"to_status"`
	ActorID    int            `json:"actor_id"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// BatchFailure describes why one question in a batch operation was skipped
type BatchFailure struct {
	QuestionID int    `json:"question_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// BatchResult reports per-question outcomes of a batch moderation operation.
// A failure on one question never rolls back the others.
type BatchResult struct {
	Succeeded []int          `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// OptionInput represents one answer choice in a create/update payload
type OptionInput struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// CreateQuestionRequest represents a creator's request to author a new question
type CreateQuestionRequest struct {
	Title         string        `json:"title" binding:"required"`
	Stem          string        `json:"stem"`
	TeachingPoint string        `json:"teaching_point"`
	Difficulty    Difficulty    `json:"difficulty" binding:"required"`
	Options       []OptionInput `json:"options"`
}

// UpdateQuestionRequest represents a content edit to an existing question
type UpdateQuestionRequest struct {
	Title         *string       `json:"title,omitempty"`
	Stem          *string       `json:"stem,omitempty"`
	TeachingPoint *string       `json:"teaching_point,omitempty"`
	Difficulty    *Difficulty   `json:"difficulty,omitempty"`
	Options       []OptionInput `json:"options,omitempty"`
}

// SubmitRequest represents a creator submitting a draft for review
type SubmitRequest struct {
	ReviewerID *int `json:"reviewer_id,omitempty"`
}

// ReviewRequest represents a reviewer's decision payload
type ReviewRequest struct {
	Action   ReviewAction `json:"action" binding:"required"`
	Feedback string       `json:"feedback"`
}

// FlagRequest represents a user reporting a problem with a question
type FlagRequest struct {
	Type        FlagType `json:"type" binding:"required"`
	Description string   `json:"description"`
}

// ResolveFlagsRequest represents a reviewer resolving open flags on a question
type ResolveFlagsRequest struct {
	FlagIDs        []int          `json:"flag_ids"`
	ResolutionType ResolutionType `json:"resolution_type" binding:"required"`
	Notes          string         `json:"notes"`
}

// BatchRequest represents a batch moderation operation over multiple questions
type BatchRequest struct {
	QuestionIDs []int `json:"question_ids" binding:"required"`
}
