package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	contextutils "questionbank/internal/utils"

	"github.com/lib/pq"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	CreateUserWithPassword(ctx context.Context, username, email, password string, role models.Role) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	UpdateUserRole(ctx context.Context, userID int, role models.Role) error
	UpdateLastActive(ctx context.Context, userID int) error
	GetAllUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, userID int) error
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
	GetDB() *sql.DB
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// Ensure UserService implements the interface
var _ UserServiceInterface = (*UserService)(nil)

// Shared query constants to eliminate duplication
const (
	// userSelectFields contains all user fields for SELECT queries
	userSelectFields = `id, username, email, password_hash, role, last_active, created_at, updated_at`

	// userSelectFieldsNoPassword contains user fields excluding password_hash for GetAllUsers
	userSelectFieldsNoPassword = `id, username, email, role, last_active, created_at, updated_at`
)

// scanUserFromRow scans a database row into a models.User struct
func (s *UserService) scanUserFromRow(row *sql.Row) (result0 *models.User, err error) {
	user := &models.User{}
	err = row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.LastActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// scanUserFromRowsNoPassword scans a database rows into a models.User struct (without password_hash)
func (s *UserService) scanUserFromRowsNoPassword(rows *sql.Rows) (result0 *models.User, err error) {
	user := &models.User{}
	err = rows.Scan(
		&user.ID, &user.Username, &user.Email, &user.Role,
		&user.LastActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (result0 *models.User, err error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var user *models.User
	user, err = s.scanUserFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found is not an error here
		}
		return nil, err
	}
	return user, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateUserWithPassword creates a new user with password authentication
func (s *UserService) CreateUserWithPassword(ctx context.Context, username, email, password string, role models.Role) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user_with_password", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	// Validate username is not empty
	if username == "" || len(strings.TrimSpace(username)) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "username cannot be empty")
	}
	if !role.Valid() {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid role: %s", role)
	}

	// Hash the password using bcrypt
	var hashedPassword []byte
	hashedPassword, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var emailValue sql.NullString
	if email != "" {
		emailValue = sql.NullString{String: email, Valid: true}
	}

	query := `INSERT INTO users (username, email, password_hash, role, last_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	now := time.Now()
	var id int
	err = s.db.QueryRowContext(ctx, query, username, emailValue, string(hashedPassword), string(role), now, now, now).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.ErrRecordExists
		}
		return nil, err
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, "user was created but could not be retrieved from database")
	}

	return user, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)
	// Get user by username
	var user *models.User
	user, err = s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user not found")
	}

	// Check if password hash exists
	if !user.PasswordHash.Valid {
		return nil, errors.New("user has no password set")
	}

	// Compare provided password with stored hash
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password))
	if err != nil {
		return nil, errors.New("invalid password")
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", attribute.Int("user.id", id))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields)
	var user *models.User
	user, err = s.getUserByQuery(ctx, query, id)
	if err != nil {
		s.logger.Error(ctx, "Database error retrieving user", err, map[string]interface{}{"user_id": id})
		return nil, err
	}
	if user == nil {
		s.logger.Debug(ctx, "User not found in database", map[string]interface{}{"user_id": id})
		return nil, nil
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, username)
}

// UpdateUserPassword updates a user's password hash
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	if newPassword == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "password cannot be empty")
	}

	var hashedPassword []byte
	hashedPassword, err = bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	var result sql.Result
	result, err = s.db.ExecContext(ctx, query, string(hashedPassword), time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check update result")
	}
	if rows == 0 {
		return contextutils.ErrRecordNotFound
	}
	return nil
}

// UpdateUserRole changes a user's role
func (s *UserService) UpdateUserRole(ctx context.Context, userID int, role models.Role) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_role", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	if !role.Valid() {
		return contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid role: %s", role)
	}

	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	var result sql.Result
	result, err = s.db.ExecContext(ctx, query, string(role), time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update role")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check update result")
	}
	if rows == 0 {
		return contextutils.ErrRecordNotFound
	}
	return nil
}

// UpdateLastActive updates the user's last active timestamp
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	query := `UPDATE users SET last_active = $1 WHERE id = $2`
	_, err = s.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}

// GetAllUsers retrieves all users without password hashes
func (s *UserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_users")
	defer observability.FinishSpan(span, &err)

	query := fmt.Sprintf("SELECT %s FROM users ORDER BY username", userSelectFieldsNoPassword)
	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	var users []models.User
	for rows.Next() {
		var user *models.User
		user, err = s.scanUserFromRowsNoPassword(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate users")
	}
	return users, nil
}

// DeleteUser removes a user. Questions they authored survive; the foreign key
// restricts deletion while any remain, matching the no-physical-delete rule
// on questions.
func (s *UserService) DeleteUser(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	var result sql.Result
	result, err = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check delete result")
	}
	if rows == 0 {
		return contextutils.ErrRecordNotFound
	}

	s.logger.Info(ctx, "User deleted", map[string]interface{}{"user_id": userID})
	return nil
}

// EnsureAdminUserExists creates the admin user if missing, or resets its
// password and role to match the configured credentials.
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("user.username", adminUsername))
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" || adminPassword == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "admin username and password must be set")
	}

	var existing *models.User
	existing, err = s.GetUserByUsername(ctx, adminUsername)
	if err != nil {
		return contextutils.WrapError(err, "failed to look up admin user")
	}

	if existing == nil {
		_, err = s.CreateUserWithPassword(ctx, adminUsername, "", adminPassword, models.RoleAdmin)
		if err != nil {
			return contextutils.WrapError(err, "failed to create admin user")
		}
		s.logger.Info(ctx, "Admin user created", map[string]interface{}{"username": adminUsername})
		return nil
	}

	// Keep the stored credentials in sync with configuration so a rotated
	// password takes effect on restart.
	if err = s.UpdateUserPassword(ctx, existing.ID, adminPassword); err != nil {
		return contextutils.WrapError(err, "failed to update admin password")
	}
	if existing.Role != models.RoleAdmin {
		if err = s.UpdateUserRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return contextutils.WrapError(err, "failed to update admin role")
		}
	}
	return nil
}

// GetDB returns the underlying database connection
func (s *UserService) GetDB() *sql.DB {
	return s.db
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique constraint
// violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL error code 23505 is for unique constraint violations
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return true
		}
	}

	return false
}
