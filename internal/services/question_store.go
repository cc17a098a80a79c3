// Package services provides business logic services for the question bank application.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	contextutils "questionbank/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QuestionStoreInterface defines the repository contract for question,
// review, and flag records. All conditional writes are atomic: a status
// update conditioned on an expected status either commits the full effect
// or leaves the row untouched and reports STALE_STATE.
type QuestionStoreInterface interface {
	CreateQuestion(ctx context.Context, question *models.Question) error
	GetQuestion(ctx context.Context, id int) (*models.Question, error)
	UpdateQuestionContent(ctx context.Context, id int, req *models.UpdateQuestionRequest) (*models.Question, error)
	CompareAndSetStatus(ctx context.Context, id int, expected, next models.QuestionStatus) error
	CompareAndSetStatusWithReviewer(ctx context.Context, id int, expected, next models.QuestionStatus, reviewerID sql.NullInt64) error
	CompareAndSetStatusWithReview(ctx context.Context, id int, expected, next models.QuestionStatus, review *models.Review) error
	InsertFlag(ctx context.Context, questionID, userID int, flagType models.FlagType, description string) (*models.Flag, bool, error)
	CloseFlags(ctx context.Context, questionID int, flagIDs []int, actorID int, resolution models.ResolutionType, notes string) ([]models.Flag, bool, error)
	GetFlag(ctx context.Context, flagID int) (*models.Flag, error)
	ListOpenFlags(ctx context.Context, questionID int) ([]models.Flag, error)
	ListReviews(ctx context.Context, questionID int) ([]models.Review, error)
	ListByStatus(ctx context.Context, status models.QuestionStatus) ([]models.Question, error)
	ListForReviewer(ctx context.Context, reviewerID int) ([]models.QueueItem, error)
	ListForCreator(ctx context.Context, creatorID int) ([]models.QueueItem, error)
	DB() *sql.DB
}

// QuestionStore is the Postgres-backed repository for the moderation workflow.
type QuestionStore struct {
	db     *sql.DB
	logger *observability.Logger
	cfg    *config.Config
}

// Ensure QuestionStore implements the QuestionStoreInterface
var _ QuestionStoreInterface = (*QuestionStore)(nil)

// NewQuestionStore creates a new QuestionStore instance
func NewQuestionStore(db *sql.DB, cfg *config.Config, logger *observability.Logger) *QuestionStore {
	return &QuestionStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// Shared query constants to eliminate duplication
const (
	// questionSelectFields contains all question fields for SELECT queries
	questionSelectFields = `id, title, stem, teaching_point, difficulty, status, created_by, reviewer_id, version_major, version_minor, version_patch, open_flag_count, created_at, updated_at`

	// flagSelectFields contains all flag fields for SELECT queries
	flagSelectFields = `id, question_id, flagged_by, flag_type, description, status, resolution_type, resolution_notes, resolved_by, resolved_at, created_at`
)

// DB returns the underlying database connection
func (s *QuestionStore) DB() *sql.DB {
	return s.db
}

func (s *QuestionStore) scanQuestionFromRow(row *sql.Row) (result0 *models.Question, err error) {
	question := &models.Question{}
	err = row.Scan(
		&question.ID,
		&question.Title,
		&question.Stem,
		&question.TeachingPoint,
		&question.Difficulty,
		&question.Status,
		&question.CreatedBy,
		&question.ReviewerID,
		&question.VersionMajor,
		&question.VersionMinor,
		&question.VersionPatch,
		&question.OpenFlagCount,
		&question.CreatedAt,
		&question.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return question, nil
}

func (s *QuestionStore) scanQuestionFromRows(rows *sql.Rows) (result0 *models.Question, err error) {
	question := &models.Question{}
	err = rows.Scan(
		&question.ID,
		&question.Title,
		&question.Stem,
		&question.TeachingPoint,
		&question.Difficulty,
		&question.Status,
		&question.CreatedBy,
		&question.ReviewerID,
		&question.VersionMajor,
		&question.VersionMinor,
		&question.VersionPatch,
		&question.OpenFlagCount,
		&question.CreatedAt,
		&question.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return question, nil
}

func (s *QuestionStore) scanFlagFromRows(rows *sql.Rows) (result0 *models.Flag, err error) {
	flag := &models.Flag{}
	var resolutionType sql.NullString
	err = rows.Scan(
		&flag.ID,
		&flag.QuestionID,
		&flag.FlaggedBy,
		&flag.Type,
		&flag.Description,
		&flag.Status,
		&resolutionType,
		&flag.ResolutionNotes,
		&flag.ResolvedBy,
		&flag.ResolvedAt,
		&flag.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolutionType.Valid {
		flag.ResolutionType = models.ResolutionType(resolutionType.String)
	}
	return flag, nil
}

// loadOptions attaches the question's answer options, ordered by their index
func (s *QuestionStore) loadOptions(ctx context.Context, question *models.Question) error {
	query := `SELECT id, question_id, text, is_correct, order_index FROM question_options WHERE question_id = $1 ORDER BY order_index`
	rows, err := s.db.QueryContext(ctx, query, question.ID)
	if err != nil {
		return contextutils.WrapError(err, "failed to query question options")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": err.Error()})
		}
	}()

	var options []models.QuestionOption
	for rows.Next() {
		var opt models.QuestionOption
		if err := rows.Scan(&opt.ID, &opt.QuestionID, &opt.Text, &opt.IsCorrect, &opt.OrderIndex); err != nil {
			return contextutils.WrapError(err, "failed to scan question option")
		}
		options = append(options, opt)
	}
	question.Options = options
	return rows.Err()
}

// CreateQuestion inserts a new question in draft status along with its options
func (s *QuestionStore) CreateQuestion(ctx context.Context, question *models.Question) (err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "create_question", observability.AttributeUserID(question.CreatedBy))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if question.Status == "" {
		question.Status = models.QuestionStatusDraft
	}
	if question.Status != models.QuestionStatusDraft {
		return contextutils.WrapErrorf(contextutils.ErrInvalidState, "questions are created in draft, not %s", question.Status)
	}
	if question.Difficulty == "" {
		question.Difficulty = models.DifficultyMedium
	}
	if !question.Difficulty.Valid() {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown difficulty %q", question.Difficulty)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
			}
		}
	}()

	query := `
		INSERT INTO questions (title, stem, teaching_point, difficulty, status, created_by, version_major, version_minor, version_patch)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	if question.VersionMajor == 0 && question.VersionMinor == 0 && question.VersionPatch == 0 {
		question.VersionMajor = 1
	}
	err = tx.QueryRowContext(ctx, query,
		question.Title,
		question.Stem,
		question.TeachingPoint,
		question.Difficulty,
		question.Status,
		question.CreatedBy,
		question.VersionMajor,
		question.VersionMinor,
		question.VersionPatch,
	).Scan(&question.ID, &question.CreatedAt, &question.UpdatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert question")
	}

	for i := range question.Options {
		opt := &question.Options[i]
		opt.QuestionID = question.ID
		opt.OrderIndex = i
		err = tx.QueryRowContext(ctx,
			`INSERT INTO question_options (question_id, text, is_correct, order_index) VALUES ($1, $2, $3, $4) RETURNING id`,
			opt.QuestionID, opt.Text, opt.IsCorrect, opt.OrderIndex,
		).Scan(&opt.ID)
		if err != nil {
			return contextutils.WrapError(err, "failed to insert question option")
		}
	}

	err = tx.Commit()
	if err != nil {
		return contextutils.WrapError(err, "failed to commit transaction")
	}
	return nil
}

// GetQuestion retrieves a question by its ID, including its options
func (s *QuestionStore) GetQuestion(ctx context.Context, id int) (result0 *models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "get_question", observability.AttributeQuestionID(id))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := fmt.Sprintf("SELECT %s FROM questions WHERE id = $1", questionSelectFields)
	question, err := s.scanQuestionFromRow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrQuestionNotFound
		}
		return nil, contextutils.WrapError(err, "failed to get question")
	}

	if err := s.loadOptions(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// UpdateQuestionContent applies a content edit and bumps the patch version.
// The question's status is untouched: editing an approved question does not
// revert it. Archived questions cannot be edited.
func (s *QuestionStore) UpdateQuestionContent(ctx context.Context, id int, req *models.UpdateQuestionRequest) (result0 *models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "update_question_content", observability.AttributeQuestionID(id))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.Difficulty != nil && !req.Difficulty.Valid() {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown difficulty %q", *req.Difficulty)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
			}
		}
	}()

	var status models.QuestionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM questions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrQuestionNotFound
		}
		return nil, contextutils.WrapError(err, "failed to read question status")
	}
	if status.IsTerminal() {
		return nil, contextutils.WrapError(contextutils.ErrInvalidState, "archived questions cannot be edited")
	}

	// The write re-validates the status read above, so an archive committed
	// by a concurrent actor in between makes this a zero-row update.
	query := `
		UPDATE questions
		SET title = COALESCE($2, title),
		    stem = COALESCE($3, stem),
		    teaching_point = COALESCE($4, teaching_point),
		    difficulty = COALESCE($5, difficulty),
		    version_patch = version_patch + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status <> $6
	`
	var difficulty *string
	if req.Difficulty != nil {
		d := string(*req.Difficulty)
		difficulty = &d
	}
	result, err := tx.ExecContext(ctx, query, id, req.Title, req.Stem, req.TeachingPoint, difficulty, models.QuestionStatusArchived)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update question content")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, contextutils.WrapError(err, "failed to check question existence")
		}
		if !exists {
			return nil, contextutils.ErrQuestionNotFound
		}
		return nil, contextutils.ErrStaleState
	}

	if req.Options != nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, id)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to clear question options")
		}
		for i, opt := range req.Options {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO question_options (question_id, text, is_correct, order_index) VALUES ($1, $2, $3, $4)`,
				id, opt.Text, opt.IsCorrect, i,
			)
			if err != nil {
				return nil, contextutils.WrapError(err, "failed to insert question option")
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to commit transaction")
	}

	return s.GetQuestion(ctx, id)
}

// casUpdate runs a conditional status update and translates a zero-row result
// into QUESTION_NOT_FOUND or STALE_STATE.
func (s *QuestionStore) casUpdate(ctx context.Context, q queryExecer, query string, id int, expected models.QuestionStatus, args ...interface{}) error {
	allArgs := append([]interface{}{id, expected}, args...)
	result, err := q.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return contextutils.WrapError(err, "failed to update question status")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return contextutils.WrapError(err, "failed to check question existence")
		}
		if !exists {
			return contextutils.ErrQuestionNotFound
		}
		return contextutils.ErrStaleState
	}
	return nil
}

// queryExecer is satisfied by both *sql.DB and *sql.Tx
type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CompareAndSetStatus atomically moves the question from expected to next.
// Fails with STALE_STATE if another actor changed the status first.
func (s *QuestionStore) CompareAndSetStatus(ctx context.Context, id int, expected, next models.QuestionStatus) (err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "compare_and_set_status",
		observability.AttributeQuestionID(id), observability.AttributeStatus(next))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `UPDATE questions SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	return s.casUpdate(ctx, s.db, query, id, expected, next)
}

// CompareAndSetStatusWithReviewer is the submit path: the CAS also records
// the assigned reviewer (possibly none yet).
func (s *QuestionStore) CompareAndSetStatusWithReviewer(ctx context.Context, id int, expected, next models.QuestionStatus, reviewerID sql.NullInt64) (err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "compare_and_set_status_with_reviewer",
		observability.AttributeQuestionID(id), observability.AttributeStatus(next))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `UPDATE questions SET status = $3, reviewer_id = $4, updated_at = NOW() WHERE id = $1 AND status = $2`
	return s.casUpdate(ctx, s.db, query, id, expected, next, reviewerID)
}

// CompareAndSetStatusWithReview performs the CAS and appends the Review
// record in one transaction, so a successful decision always leaves exactly
// one audit row and a failed CAS leaves none. Leaving pending_review clears
// the reviewer assignment.
func (s *QuestionStore) CompareAndSetStatusWithReview(ctx context.Context, id int, expected, next models.QuestionStatus, review *models.Review) (err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "compare_and_set_status_with_review",
		observability.AttributeQuestionID(id), observability.AttributeStatus(next), observability.AttributeReviewAction(review.Action))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
			}
		}
	}()

	query := `UPDATE questions SET status = $3, reviewer_id = NULL, updated_at = NOW() WHERE id = $1 AND status = $2`
	err = s.casUpdate(ctx, tx, query, id, expected, next)
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO question_reviews (question_id, reviewer_id, action, feedback) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		review.QuestionID, review.ReviewerID, review.Action, review.Feedback,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert review")
	}

	err = tx.Commit()
	if err != nil {
		return contextutils.WrapError(err, "failed to commit transaction")
	}
	return nil
}

// InsertFlag files a flag against a published question. The insert, the
// counter bump, and the approved→flagged flip happen in one transaction;
// the partial unique index on open flags rejects a duplicate from the same
// user even under concurrent inserts. The second return value reports
// whether this flag caused the approved→flagged flip.
func (s *QuestionStore) InsertFlag(ctx context.Context, questionID, userID int, flagType models.FlagType, description string) (result0 *models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "insert_flag",
		observability.AttributeQuestionID(questionID), observability.AttributeUserID(userID), observability.AttributeFlagType(flagType))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
			}
		}
	}()

	var status models.QuestionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM questions WHERE id = $1`, questionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, contextutils.ErrQuestionNotFound
		}
		return nil, false, contextutils.WrapError(err, "failed to read question status")
	}
	if status != models.QuestionStatusApproved && status != models.QuestionStatusFlagged {
		return nil, false, contextutils.WrapErrorf(contextutils.ErrInvalidState, "only approved or flagged questions can be flagged, status is %s", status)
	}

	flag := &models.Flag{
		QuestionID: questionID,
		FlaggedBy:  userID,
		Type:       flagType,
		Status:     models.FlagStatusOpen,
	}
	if description != "" {
		flag.Description = sql.NullString{String: description, Valid: true}
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO question_flags (question_id, flagged_by, flag_type, description) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		questionID, userID, flagType, flag.Description,
	).Scan(&flag.ID, &flag.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, false, contextutils.ErrDuplicateFlag
		}
		return nil, false, contextutils.WrapError(err, "failed to insert flag")
	}

	// Counter bump and maybe-flip in one conditional write. The status
	// condition re-validates the read above against concurrent transitions.
	query := `
		UPDATE questions
		SET open_flag_count = open_flag_count + 1, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	err = s.casUpdate(ctx, tx, query, questionID, status, models.QuestionStatusFlagged)
	if err != nil {
		return nil, false, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to commit transaction")
	}
	// The conditional update re-validated the status read, so the flip
	// happened exactly when the question was approved going in.
	return flag, status == models.QuestionStatusApproved, nil
}

// CloseFlags closes the given open flags with one resolution, decrements the
// counter, and flips the question back to approved only when no open flags
// remain — all in a single transaction, so an observer never sees a partial
// close or an intermediate flip. The second return value reports whether
// this close flipped the question back to approved.
func (s *QuestionStore) CloseFlags(ctx context.Context, questionID int, flagIDs []int, actorID int, resolution models.ResolutionType, notes string) (result0 []models.Flag, result1 bool, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "close_flags",
		observability.AttributeQuestionID(questionID), observability.AttributeUserID(actorID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(flagIDs) == 0 {
		return nil, false, contextutils.WrapError(contextutils.ErrInvalidInput, "no flag ids given")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rollbackErr.Error()})
			}
		}
	}()

	var notesArg sql.NullString
	if notes != "" {
		notesArg = sql.NullString{String: notes, Valid: true}
	}
	closeQuery := fmt.Sprintf(`
		UPDATE question_flags
		SET status = $1, resolution_type = $2, resolution_notes = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = ANY($5) AND question_id = $6 AND status = $7
		RETURNING %s
	`, flagSelectFields)
	rows, err := tx.QueryContext(ctx, closeQuery,
		models.FlagStatusClosed, resolution, notesArg, actorID, pq.Array(flagIDs), questionID, models.FlagStatusOpen)
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to close flags")
	}

	var closed []models.Flag
	for rows.Next() {
		flag, scanErr := s.scanFlagFromRows(rows)
		if scanErr != nil {
			if closeErr := rows.Close(); closeErr != nil {
				s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
			}
			err = contextutils.WrapError(scanErr, "failed to scan closed flag")
			return nil, false, err
		}
		closed = append(closed, *flag)
	}
	if closeErr := rows.Close(); closeErr != nil {
		s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
	}
	if err = rows.Err(); err != nil {
		return nil, false, contextutils.WrapError(err, "failed to iterate closed flags")
	}

	if len(closed) != len(flagIDs) {
		err = contextutils.WrapErrorf(contextutils.ErrFlagNotFound, "%d of %d flags were not open flags of question %d", len(flagIDs)-len(closed), len(flagIDs), questionID)
		return nil, false, err
	}

	// Single conditional write decides the flip: back to approved only when
	// this close drains the counter. Conditioning on flagged re-validates
	// against concurrent resolutions and archives.
	flipQuery := `
		UPDATE questions
		SET open_flag_count = open_flag_count - $3,
		    status = CASE WHEN open_flag_count - $3 = 0 THEN 'approved' ELSE 'flagged' END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	err = s.casUpdate(ctx, tx, flipQuery, questionID, models.QuestionStatusFlagged, len(closed))
	if err != nil {
		return nil, false, err
	}

	// Read back inside the transaction so the flip report cannot be
	// confused by a flag filed between commit and a later reload.
	var status models.QuestionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM questions WHERE id = $1`, questionID).Scan(&status)
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to read question status")
	}

	err = tx.Commit()
	if err != nil {
		return nil, false, contextutils.WrapError(err, "failed to commit transaction")
	}
	return closed, status == models.QuestionStatusApproved, nil
}

// GetFlag retrieves a single flag by ID
func (s *QuestionStore) GetFlag(ctx context.Context, flagID int) (result0 *models.Flag, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "get_flag", observability.AttributeFlagID(flagID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := fmt.Sprintf("SELECT %s FROM question_flags WHERE id = $1", flagSelectFields)
	rows, err := s.db.QueryContext(ctx, query, flagID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query flag")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, contextutils.WrapError(err, "failed to query flag")
		}
		return nil, contextutils.ErrFlagNotFound
	}
	return s.scanFlagFromRows(rows)
}

// ListOpenFlags returns the open flags of a question, oldest first
func (s *QuestionStore) ListOpenFlags(ctx context.Context, questionID int) (result0 []models.Flag, err error) {
	ctx, span := observability.TraceFlagFunction(ctx, "list_open_flags", observability.AttributeQuestionID(questionID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := fmt.Sprintf("SELECT %s FROM question_flags WHERE question_id = $1 AND status = $2 ORDER BY created_at ASC", flagSelectFields)
	rows, err := s.db.QueryContext(ctx, query, questionID, models.FlagStatusOpen)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query open flags")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var flags []models.Flag
	for rows.Next() {
		flag, scanErr := s.scanFlagFromRows(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan flag")
		}
		flags = append(flags, *flag)
	}
	return flags, rows.Err()
}

// ListReviews returns the append-only review history of a question, oldest first
func (s *QuestionStore) ListReviews(ctx context.Context, questionID int) (result0 []models.Review, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "list_reviews", observability.AttributeQuestionID(questionID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `SELECT id, question_id, reviewer_id, action, feedback, created_at FROM question_reviews WHERE question_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query reviews")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		if err := rows.Scan(&review.ID, &review.QuestionID, &review.ReviewerID, &review.Action, &review.Feedback, &review.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan review")
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// ListByStatus returns all questions in the given status, oldest first
func (s *QuestionStore) ListByStatus(ctx context.Context, status models.QuestionStatus) (result0 []models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "list_by_status", observability.AttributeStatus(status))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := fmt.Sprintf("SELECT %s FROM questions WHERE status = $1 ORDER BY created_at ASC", questionSelectFields)
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query questions by status")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var questions []models.Question
	for rows.Next() {
		question, scanErr := s.scanQuestionFromRows(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan question")
		}
		questions = append(questions, *question)
	}
	return questions, rows.Err()
}

// ListForReviewer produces the reviewer's work queue: their assigned
// pending_review questions plus every flagged question, ranked by priority.
// Flagged items outrank fresh submissions, and more open flags mean a
// higher rank.
func (s *QuestionStore) ListForReviewer(ctx context.Context, reviewerID int) (result0 []models.QueueItem, err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "list_for_reviewer", observability.AttributeUserID(reviewerID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	boost := config.DefaultFlaggedPriorityBoost
	weight := config.DefaultOpenFlagWeight
	if s.cfg.Moderation.FlaggedPriorityBoost > 0 {
		boost = s.cfg.Moderation.FlaggedPriorityBoost
	}
	if s.cfg.Moderation.OpenFlagWeight > 0 {
		weight = s.cfg.Moderation.OpenFlagWeight
	}

	query := `
		SELECT id, title, status,
		       CASE WHEN status = 'flagged' THEN $1 + open_flag_count * $2 ELSE 0 END AS priority_score,
		       open_flag_count, reviewer_id, created_at
		FROM questions
		WHERE (status = 'pending_review' AND reviewer_id = $3)
		   OR status = 'flagged'
		ORDER BY priority_score DESC, created_at ASC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, boost, weight, reviewerID, s.cfg.QueuePageSize())
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query reviewer queue")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	return s.scanQueueItems(rows)
}

// ListForCreator returns the creator's own questions as queue items grouped
// by status. Read-only, no priority weighting.
func (s *QuestionStore) ListForCreator(ctx context.Context, creatorID int) (result0 []models.QueueItem, err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "list_for_creator", observability.AttributeUserID(creatorID))
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := `
		SELECT id, title, status, 0 AS priority_score, open_flag_count, reviewer_id, created_at
		FROM questions
		WHERE created_by = $1
		ORDER BY status, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, creatorID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query creator questions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	return s.scanQueueItems(rows)
}

func (s *QuestionStore) scanQueueItems(rows *sql.Rows) (result0 []models.QueueItem, err error) {
	var items []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		if err := rows.Scan(&item.QuestionID, &item.Title, &item.Status, &item.PriorityScore, &item.OpenFlagCount, &item.ReviewerID, &item.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan queue item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
