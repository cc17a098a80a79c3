package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"questionbank/internal/config"
	"questionbank/internal/models"
	contextutils "questionbank/internal/utils"
)

// fakeQuestionStore is an in-memory QuestionStoreInterface with the same
// conditional-write semantics as the Postgres store. staleNext injects a
// one-shot stale failure for a question id, simulating a concurrent writer
// landing between read and write.
type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[int]*models.Question
	flags     map[int]*models.Flag
	reviews   []models.Review
	staleNext map[int]bool

	nextQuestionID int
	nextFlagID     int
	nextReviewID   int
}

var _ QuestionStoreInterface = (*fakeQuestionStore)(nil)

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{
		questions:      make(map[int]*models.Question),
		flags:          make(map[int]*models.Flag),
		staleNext:      make(map[int]bool),
		nextQuestionID: 1,
		nextFlagID:     1,
		nextReviewID:   1,
	}
}

// failNextWrite makes the next conditional write on questionID fail stale,
// as if another actor committed first.
func (f *fakeQuestionStore) failNextWrite(questionID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleNext[questionID] = true
}

func cloneQuestion(q *models.Question) *models.Question {
	out := *q
	out.Options = append([]models.QuestionOption(nil), q.Options...)
	return &out
}

func cloneFlag(fl *models.Flag) *models.Flag {
	out := *fl
	return &out
}

func (f *fakeQuestionStore) CreateQuestion(_ context.Context, question *models.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	question.ID = f.nextQuestionID
	f.nextQuestionID++
	if question.Status == "" {
		question.Status = models.QuestionStatusDraft
	}
	if question.Difficulty == "" {
		question.Difficulty = models.DifficultyMedium
	}
	if question.VersionMajor == 0 {
		question.VersionMajor = 1
	}
	now := time.Now()
	question.CreatedAt = now
	question.UpdatedAt = now
	for i := range question.Options {
		question.Options[i].ID = question.ID*100 + i
		question.Options[i].QuestionID = question.ID
		question.Options[i].OrderIndex = i
	}
	f.questions[question.ID] = cloneQuestion(question)
	return nil
}

func (f *fakeQuestionStore) GetQuestion(_ context.Context, id int) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.questions[id]
	if !ok {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrQuestionNotFound, "question %d not found", id)
	}
	return cloneQuestion(q), nil
}

func (f *fakeQuestionStore) UpdateQuestionContent(_ context.Context, id int, req *models.UpdateQuestionRequest) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.questions[id]
	if !ok {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrQuestionNotFound, "question %d not found", id)
	}
	if q.Status == models.QuestionStatusArchived {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidState, "question %d is archived", id)
	}
	if f.staleNext[id] {
		delete(f.staleNext, id)
		return nil, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d modified concurrently", id)
	}
	if req.Title != nil {
		q.Title = *req.Title
	}
	if req.Stem != nil {
		q.Stem = *req.Stem
	}
	if req.TeachingPoint != nil {
		q.TeachingPoint = *req.TeachingPoint
	}
	if req.Difficulty != nil {
		q.Difficulty = *req.Difficulty
	}
	if req.Options != nil {
		q.Options = nil
		for i, opt := range req.Options {
			q.Options = append(q.Options, models.QuestionOption{
				ID:         id*100 + i,
				QuestionID: id,
				Text:       opt.Text,
				IsCorrect:  opt.IsCorrect,
				OrderIndex: i,
			})
		}
	}
	q.VersionPatch++
	q.UpdatedAt = time.Now()
	return cloneQuestion(q), nil
}

// checkCAS applies the stale-injection and expected-status condition shared
// by all conditional writes. Caller holds the lock.
func (f *fakeQuestionStore) checkCAS(id int, expected models.QuestionStatus) (*models.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrQuestionNotFound, "question %d not found", id)
	}
	if f.staleNext[id] {
		delete(f.staleNext, id)
		return nil, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d modified concurrently", id)
	}
	if q.Status != expected {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d is %s, expected %s", id, q.Status, expected)
	}
	return q, nil
}

func (f *fakeQuestionStore) CompareAndSetStatus(_ context.Context, id int, expected, next models.QuestionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, err := f.checkCAS(id, expected)
	if err != nil {
		return err
	}
	q.Status = next
	q.UpdatedAt = time.Now()
	return nil
}

func (f *fakeQuestionStore) CompareAndSetStatusWithReviewer(_ context.Context, id int, expected, next models.QuestionStatus, reviewerID sql.NullInt64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, err := f.checkCAS(id, expected)
	if err != nil {
		return err
	}
	q.Status = next
	q.ReviewerID = reviewerID
	q.UpdatedAt = time.Now()
	return nil
}

func (f *fakeQuestionStore) CompareAndSetStatusWithReview(_ context.Context, id int, expected, next models.QuestionStatus, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, err := f.checkCAS(id, expected)
	if err != nil {
		return err
	}
	q.Status = next
	q.ReviewerID = sql.NullInt64{}
	q.UpdatedAt = time.Now()

	review.ID = f.nextReviewID
	f.nextReviewID++
	review.CreatedAt = time.Now()
	f.reviews = append(f.reviews, *review)
	return nil
}

func (f *fakeQuestionStore) InsertFlag(_ context.Context, questionID, userID int, flagType models.FlagType, description string) (*models.Flag, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.questions[questionID]
	if !ok {
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrQuestionNotFound, "question %d not found", questionID)
	}
	if q.Status != models.QuestionStatusApproved && q.Status != models.QuestionStatusFlagged {
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrInvalidState, "question %d is %s, cannot be flagged", questionID, q.Status)
	}
	for _, fl := range f.flags {
		if fl.QuestionID == questionID && fl.FlaggedBy == userID && fl.Status == models.FlagStatusOpen {
			return nil, false, contextutils.ErrorWithContextf(contextutils.ErrDuplicateFlag, "user %d already holds an open flag on question %d", userID, questionID)
		}
	}
	if f.staleNext[questionID] {
		delete(f.staleNext, questionID)
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d modified concurrently", questionID)
	}

	flag := &models.Flag{
		ID:         f.nextFlagID,
		QuestionID: questionID,
		FlaggedBy:  userID,
		Type:       flagType,
		Status:     models.FlagStatusOpen,
		CreatedAt:  time.Now(),
	}
	if description != "" {
		flag.Description = sql.NullString{String: description, Valid: true}
	}
	f.nextFlagID++
	f.flags[flag.ID] = flag

	flipped := q.Status == models.QuestionStatusApproved
	q.OpenFlagCount++
	q.Status = models.QuestionStatusFlagged
	q.UpdatedAt = time.Now()
	return cloneFlag(flag), flipped, nil
}

func (f *fakeQuestionStore) CloseFlags(_ context.Context, questionID int, flagIDs []int, actorID int, resolution models.ResolutionType, notes string) ([]models.Flag, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.questions[questionID]
	if !ok {
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrQuestionNotFound, "question %d not found", questionID)
	}

	var toClose []*models.Flag
	for _, id := range flagIDs {
		fl, ok := f.flags[id]
		if !ok || fl.QuestionID != questionID || fl.Status != models.FlagStatusOpen {
			return nil, false, contextutils.ErrorWithContextf(contextutils.ErrFlagNotFound, "flag %d is not an open flag on question %d", id, questionID)
		}
		toClose = append(toClose, fl)
	}

	if f.staleNext[questionID] {
		delete(f.staleNext, questionID)
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d modified concurrently", questionID)
	}
	if q.Status != models.QuestionStatusFlagged {
		return nil, false, contextutils.ErrorWithContextf(contextutils.ErrStaleState, "question %d is %s, expected flagged", questionID, q.Status)
	}

	now := time.Now()
	var closed []models.Flag
	for _, fl := range toClose {
		fl.Status = models.FlagStatusClosed
		fl.ResolutionType = resolution
		if notes != "" {
			fl.ResolutionNotes = sql.NullString{String: notes, Valid: true}
		}
		fl.ResolvedBy = sql.NullInt64{Int64: int64(actorID), Valid: true}
		fl.ResolvedAt = sql.NullTime{Time: now, Valid: true}
		closed = append(closed, *fl)
	}

	q.OpenFlagCount -= len(closed)
	flipped := q.OpenFlagCount == 0
	if flipped {
		q.Status = models.QuestionStatusApproved
	}
	q.UpdatedAt = now
	return closed, flipped, nil
}

func (f *fakeQuestionStore) GetFlag(_ context.Context, flagID int) (*models.Flag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.flags[flagID]
	if !ok {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrFlagNotFound, "flag %d not found", flagID)
	}
	return cloneFlag(fl), nil
}

func (f *fakeQuestionStore) ListOpenFlags(_ context.Context, questionID int) ([]models.Flag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var open []models.Flag
	for _, fl := range f.flags {
		if fl.QuestionID == questionID && fl.Status == models.FlagStatusOpen {
			open = append(open, *fl)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, nil
}

func (f *fakeQuestionStore) ListReviews(_ context.Context, questionID int) ([]models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reviews []models.Review
	for _, r := range f.reviews {
		if r.QuestionID == questionID {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}

func (f *fakeQuestionStore) ListByStatus(_ context.Context, status models.QuestionStatus) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Question
	for _, q := range f.questions {
		if q.Status == status {
			out = append(out, *cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeQuestionStore) ListForReviewer(_ context.Context, reviewerID int) ([]models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var items []models.QueueItem
	for _, q := range f.questions {
		switch {
		case q.Status == models.QuestionStatusPendingReview && q.ReviewerID.Valid && int(q.ReviewerID.Int64) == reviewerID:
			items = append(items, queueItemFor(q, 0))
		case q.Status == models.QuestionStatusFlagged:
			score := config.DefaultFlaggedPriorityBoost + float64(q.OpenFlagCount)*config.DefaultOpenFlagWeight
			items = append(items, queueItemFor(q, score))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PriorityScore != items[j].PriorityScore {
			return items[i].PriorityScore > items[j].PriorityScore
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (f *fakeQuestionStore) ListForCreator(_ context.Context, creatorID int) ([]models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var items []models.QueueItem
	for _, q := range f.questions {
		if q.CreatedBy == creatorID {
			items = append(items, queueItemFor(q, 0))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Status != items[j].Status {
			return items[i].Status < items[j].Status
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (f *fakeQuestionStore) DB() *sql.DB {
	return nil
}

func queueItemFor(q *models.Question, score float64) models.QueueItem {
	return models.QueueItem{
		QuestionID:    q.ID,
		Title:         q.Title,
		Status:        q.Status,
		PriorityScore: score,
		OpenFlagCount: q.OpenFlagCount,
		ReviewerID:    q.ReviewerID,
		CreatedAt:     q.CreatedAt,
	}
}

// fakeUserService serves a fixed set of users for permission checks.
type fakeUserService struct {
	UserServiceInterface
	users map[int]*models.User
}

func newFakeUserService(users ...*models.User) *fakeUserService {
	m := make(map[int]*models.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserService{users: m}
}

func (f *fakeUserService) GetUserByID(_ context.Context, id int) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copy := *u
	return &copy, nil
}

// recordingNotifier captures transition events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.TransitionEvent
}

func (n *recordingNotifier) IsEnabled() bool { return true }

func (n *recordingNotifier) NotifyTransition(_ context.Context, event *models.TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
	return nil
}

func (n *recordingNotifier) Events() []models.TransitionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.TransitionEvent(nil), n.events...)
}
