package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_MarshalJSON(t *testing.T) {
	createdAt := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		user     User
		expected string
	}{
		{
			name: "user with all fields set",
			user: User{
				ID:         1,
				Username:   "reviewer1",
				Email:      sql.NullString{String: "reviewer1@example.com", Valid: true},
				Role:       RoleReviewer,
				LastActive: sql.NullTime{Time: createdAt, Valid: true},
				CreatedAt:  createdAt,
				UpdatedAt:  createdAt,
			},
			expected: `{"id":1,"username":"reviewer1","email":"reviewer1@example.com","role":"reviewer","last_active":"2025-01-15T10:30:00Z","created_at":"2025-01-15T10:30:00Z","updated_at":"2025-01-15T10:30:00Z"}`,
		},
		{
			name: "user with null fields",
			user: User{
				ID:        2,
				Username:  "creator1",
				Role:      RoleCreator,
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
			},
			expected: `{"id":2,"username":"creator1","email":null,"role":"creator","last_active":null,"created_at":"2025-01-15T10:30:00Z","updated_at":"2025-01-15T10:30:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.user)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestUser_MarshalJSON_OmitsPasswordHash(t *testing.T) {
	user := User{
		ID:           1,
		Username:     "admin",
		Role:         RoleAdmin,
		PasswordHash: sql.NullString{String: "$2a$10$secret", Valid: true},
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "password")
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role  Role
		valid bool
	}{
		{RoleCreator, true},
		{RoleReviewer, true},
		{RoleAdmin, true},
		{Role("superuser"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.role.Valid())
		})
	}
}

func TestRole_CanReview(t *testing.T) {
	assert.False(t, RoleCreator.CanReview())
	assert.True(t, RoleReviewer.CanReview())
	assert.True(t, RoleAdmin.CanReview())
}

func TestQuestionStatus_Valid(t *testing.T) {
	tests := []struct {
		status QuestionStatus
		valid  bool
	}{
		{QuestionStatusDraft, true},
		{QuestionStatusPendingReview, true},
		{QuestionStatusApproved, true},
		{QuestionStatusFlagged, true},
		{QuestionStatusArchived, true},
		{QuestionStatus("published"), false},
		{QuestionStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
		})
	}
}

func TestQuestionStatus_IsTerminal(t *testing.T) {
	assert.True(t, QuestionStatusArchived.IsTerminal())
	assert.False(t, QuestionStatusDraft.IsTerminal())
	assert.False(t, QuestionStatusPendingReview.IsTerminal())
	assert.False(t, QuestionStatusApproved.IsTerminal())
	assert.False(t, QuestionStatusFlagged.IsTerminal())
}

func TestDifficulty_Valid(t *testing.T) {
	assert.True(t, DifficultyEasy.Valid())
	assert.True(t, DifficultyMedium.Valid())
	assert.True(t, DifficultyHard.Valid())
	assert.False(t, Difficulty("extreme").Valid())
}

func TestQuestion_Version(t *testing.T) {
	q := &Question{VersionMajor: 1, VersionMinor: 2, VersionPatch: 3}
	assert.Equal(t, "1.2.3", q.Version())

	q = &Question{}
	assert.Equal(t, "0.0.0", q.Version())
}

func TestQuestion_MarshalJSON(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := Question{
		ID:            7,
		Title:         "Cardiac output",
		Stem:          "Which of the following determines cardiac output?",
		TeachingPoint: "CO = HR x SV",
		Difficulty:    DifficultyMedium,
		Status:        QuestionStatusPendingReview,
		CreatedBy:     3,
		ReviewerID:    sql.NullInt64{Int64: 11, Valid: true},
		VersionMajor:  1,
		OpenFlagCount: 0,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, "pending_review", decoded["status"])
	assert.Equal(t, "1.0.0", decoded["version"])
	assert.Equal(t, float64(11), decoded["reviewer_id"])
}

func TestQuestion_MarshalJSON_NullReviewer(t *testing.T) {
	q := Question{ID: 1, Status: QuestionStatusDraft}

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["reviewer_id"])
}

func TestReviewAction_Valid(t *testing.T) {
	assert.True(t, ReviewActionApprove.Valid())
	assert.True(t, ReviewActionRequestChanges.Valid())
	assert.True(t, ReviewActionReject.Valid())
	assert.False(t, ReviewAction("publish").Valid())
}

func TestReviewAction_RequiresFeedback(t *testing.T) {
	assert.False(t, ReviewActionApprove.RequiresFeedback())
	assert.True(t, ReviewActionRequestChanges.RequiresFeedback())
	assert.True(t, ReviewActionReject.RequiresFeedback())
}

func TestReview_MarshalJSON(t *testing.T) {
	createdAt := time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC)
	review := Review{
		ID:         5,
		QuestionID: 7,
		ReviewerID: 11,
		Action:     ReviewActionRequestChanges,
		Feedback:   sql.NullString{String: "Option B is also defensible", Valid: true},
		CreatedAt:  createdAt,
	}

	data, err := json.Marshal(review)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"question_id":7,"reviewer_id":11,"action":"request_changes","feedback":"Option B is also defensible","created_at":"2025-03-02T14:00:00Z"}`, string(data))
}

func TestFlagType_Valid(t *testing.T) {
	validTypes := []FlagType{
		FlagTypeFactualError,
		FlagTypeTypo,
		FlagTypeUnclearQuestion,
		FlagTypeOutdatedContent,
		FlagTypeImageIssue,
		FlagTypeOther,
	}
	for _, ft := range validTypes {
		assert.True(t, ft.Valid(), "expected %s to be valid", ft)
	}
	assert.False(t, FlagType("spam").Valid())
	assert.False(t, FlagType("").Valid())
}

func TestResolutionType_Valid(t *testing.T) {
	assert.True(t, ResolutionTypeFixed.Valid())
	assert.True(t, ResolutionTypeDismissed.Valid())
	assert.False(t, ResolutionType("ignored").Valid())
}

func TestFlag_MarshalJSON_OpenFlag(t *testing.T) {
	createdAt := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	flag := Flag{
		ID:          1,
		QuestionID:  7,
		FlaggedBy:   42,
		Type:        FlagTypeFactualError,
		Description: sql.NullString{String: "wrong citation", Valid: true},
		Status:      FlagStatusOpen,
		CreatedAt:   createdAt,
	}

	data, err := json.Marshal(flag)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "open", decoded["status"])
	assert.Equal(t, "wrong citation", decoded["description"])
	assert.Nil(t, decoded["resolution_type"])
	assert.Nil(t, decoded["resolved_by"])
	assert.Nil(t, decoded["resolved_at"])
}

func TestFlag_MarshalJSON_ClosedFlag(t *testing.T) {
	createdAt := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	resolvedAt := createdAt.Add(2 * time.Hour)
	flag := Flag{
		ID:              1,
		QuestionID:      7,
		FlaggedBy:       42,
		Type:            FlagTypeTypo,
		Status:          FlagStatusClosed,
		ResolutionType:  ResolutionTypeFixed,
		ResolutionNotes: sql.NullString{String: "corrected spelling", Valid: true},
		ResolvedBy:      sql.NullInt64{Int64: 11, Valid: true},
		ResolvedAt:      sql.NullTime{Time: resolvedAt, Valid: true},
		CreatedAt:       createdAt,
	}

	data, err := json.Marshal(flag)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "closed", decoded["status"])
	assert.Equal(t, "fixed", decoded["resolution_type"])
	assert.Equal(t, "corrected spelling", decoded["resolution_notes"])
	assert.Equal(t, float64(11), decoded["resolved_by"])
}

func TestQueueItem_MarshalJSON(t *testing.T) {
	createdAt := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	item := QueueItem{
		QuestionID:    7,
		Title:         "Cardiac output",
		Status:        QuestionStatusFlagged,
		PriorityScore: 120,
		OpenFlagCount: 2,
		CreatedAt:     createdAt,
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "flagged", decoded["status"])
	assert.Equal(t, float64(120), decoded["priority_score"])
	assert.Nil(t, decoded["reviewer_id"])
}
