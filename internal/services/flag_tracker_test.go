package services

import (
	"context"
	"testing"

	"questionbank/internal/models"
	"questionbank/internal/observability"
	contextutils "questionbank/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlagTracker(t *testing.T) (*FlagTracker, *fakeQuestionStore) {
	t.Helper()
	store := newFakeQuestionStore()
	return NewFlagTracker(store, observability.NewLogger(nil)), store
}

func seedApprovedQuestion(t *testing.T, store *fakeQuestionStore) *models.Question {
	t.Helper()
	return seedQuestion(t, store, models.QuestionStatusApproved, testCreator.ID)
}

func TestFlagTracker_FileFlag(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	flag, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeFactualError, "wrong citation")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusOpen, flag.Status)
	assert.Equal(t, models.FlagTypeFactualError, flag.Type)
	assert.Equal(t, "wrong citation", flag.Description.String)

	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusFlagged, current.Status)
	assert.Equal(t, 1, current.OpenFlagCount)
}

func TestFlagTracker_FileFlag_InvalidType(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	q := seedApprovedQuestion(t, store)

	_, _, err := tracker.FileFlag(context.Background(), q.ID, testUserX.ID, models.FlagType("spam"), "")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))
}

func TestFlagTracker_CounterMatchesOpenFlags(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	flaggers := []int{testUserX.ID, testUserY.ID, testReviewer.ID}
	for _, userID := range flaggers {
		_, _, err := tracker.FileFlag(ctx, q.ID, userID, models.FlagTypeTypo, "")
		require.NoError(t, err)

		current, err := store.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		open, err := store.ListOpenFlags(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, len(open), current.OpenFlagCount)
	}

	open, err := store.ListOpenFlags(ctx, q.ID)
	require.NoError(t, err)
	for _, f := range open {
		_, _, err = tracker.ResolveFlag(ctx, f.ID, testAdmin, models.ResolutionTypeDismissed, "")
		require.NoError(t, err)

		current, err := store.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		remaining, err := store.ListOpenFlags(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, len(remaining), current.OpenFlagCount)
	}
}

func TestFlagTracker_DuplicateFlagLeavesCounterUnchanged(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	_, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)

	_, _, err = tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeFactualError, "second complaint")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeDuplicateFlag, contextutils.GetErrorCode(err))

	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.OpenFlagCount)
}

func TestFlagTracker_ResolveFlag_LastFlagFlipsToApproved(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	flag, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)

	resolved, _, err := tracker.ResolveFlag(ctx, flag.ID, testReviewer, models.ResolutionTypeFixed, "fixed the typo")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusClosed, resolved.Status)
	assert.Equal(t, models.ResolutionTypeFixed, resolved.ResolutionType)
	assert.Equal(t, "fixed the typo", resolved.ResolutionNotes.String)
	require.True(t, resolved.ResolvedBy.Valid)
	assert.Equal(t, int64(testReviewer.ID), resolved.ResolvedBy.Int64)

	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusApproved, current.Status)
	assert.Equal(t, 0, current.OpenFlagCount)
}

func TestFlagTracker_ResolveFlag_NotLastStaysFlagged(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	flagX, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)
	_, _, err = tracker.FileFlag(ctx, q.ID, testUserY.ID, models.FlagTypeFactualError, "bad dosage")
	require.NoError(t, err)

	_, _, err = tracker.ResolveFlag(ctx, flagX.ID, testReviewer, models.ResolutionTypeDismissed, "")
	require.NoError(t, err)

	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusFlagged, current.Status)
	assert.Equal(t, 1, current.OpenFlagCount)
}

func TestFlagTracker_ResolveFlag_Errors(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)
	flag, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)

	t.Run("creator cannot resolve", func(t *testing.T) {
		_, _, err := tracker.ResolveFlag(ctx, flag.ID, testCreator, models.ResolutionTypeDismissed, "")
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeForbidden, contextutils.GetErrorCode(err))
	})

	t.Run("fixed without notes", func(t *testing.T) {
		_, _, err := tracker.ResolveFlag(ctx, flag.ID, testReviewer, models.ResolutionTypeFixed, "")
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeValidationFailed, contextutils.GetErrorCode(err))
	})

	t.Run("invalid resolution type", func(t *testing.T) {
		_, _, err := tracker.ResolveFlag(ctx, flag.ID, testReviewer, models.ResolutionType("ignored"), "")
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, _, err := tracker.ResolveFlag(ctx, 9999, testReviewer, models.ResolutionTypeDismissed, "")
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeFlagNotFound, contextutils.GetErrorCode(err))
	})

	t.Run("already closed flag", func(t *testing.T) {
		_, _, err := tracker.ResolveFlag(ctx, flag.ID, testReviewer, models.ResolutionTypeDismissed, "")
		require.NoError(t, err)

		_, _, err = tracker.ResolveFlag(ctx, flag.ID, testReviewer, models.ResolutionTypeDismissed, "")
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeFlagNotFound, contextutils.GetErrorCode(err))
	})
}

func TestFlagTracker_ResolveAllOpenFlags_SingleFlip(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	for _, userID := range []int{testUserX.ID, testUserY.ID, testReviewer.ID} {
		_, _, err := tracker.FileFlag(ctx, q.ID, userID, models.FlagTypeUnclearQuestion, "")
		require.NoError(t, err)
	}

	closed, _, err := tracker.ResolveAllOpenFlags(ctx, q.ID, testAdmin, models.ResolutionTypeDismissed, "")
	require.NoError(t, err)
	assert.Len(t, closed, 3)

	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionStatusApproved, current.Status)
	assert.Equal(t, 0, current.OpenFlagCount)
}

func TestFlagTracker_ResolveAllOpenFlags_NoneOpen(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	q := seedApprovedQuestion(t, store)

	_, _, err := tracker.ResolveAllOpenFlags(context.Background(), q.ID, testAdmin, models.ResolutionTypeDismissed, "")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeFlagNotFound, contextutils.GetErrorCode(err))
}

func TestFlagTracker_ResolveFlags_StaleWrite(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)
	flag, _, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)

	store.failNextWrite(q.ID)
	_, _, err = tracker.ResolveFlags(ctx, q.ID, testReviewer, []int{flag.ID}, models.ResolutionTypeDismissed, "")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeStaleState, contextutils.GetErrorCode(err))

	// Nothing moved; the retry lands.
	current, err := store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.OpenFlagCount)

	_, _, err = tracker.ResolveFlags(ctx, q.ID, testReviewer, []int{flag.ID}, models.ResolutionTypeDismissed, "")
	require.NoError(t, err)
}

func TestFlagTracker_FlipReports(t *testing.T) {
	tracker, store := newTestFlagTracker(t)
	ctx := context.Background()
	q := seedApprovedQuestion(t, store)

	flagX, flipped, err := tracker.FileFlag(ctx, q.ID, testUserX.ID, models.FlagTypeTypo, "")
	require.NoError(t, err)
	assert.True(t, flipped, "first flag performs the approved->flagged flip")

	flagY, flipped, err := tracker.FileFlag(ctx, q.ID, testUserY.ID, models.FlagTypeFactualError, "")
	require.NoError(t, err)
	assert.False(t, flipped, "question was already flagged")

	_, flipped, err = tracker.ResolveFlag(ctx, flagX.ID, testReviewer, models.ResolutionTypeDismissed, "")
	require.NoError(t, err)
	assert.False(t, flipped, "one open flag remains")

	_, flipped, err = tracker.ResolveFlag(ctx, flagY.ID, testReviewer, models.ResolutionTypeDismissed, "")
	require.NoError(t, err)
	assert.True(t, flipped, "draining the last open flag flips back to approved")
}
