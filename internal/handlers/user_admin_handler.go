package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserAdminHandler handles user management operations
type UserAdminHandler struct {
	userService services.UserServiceInterface
	cfg         *config.Config
	logger      *observability.Logger
}

// NewUserAdminHandler creates a new UserAdminHandler instance
func NewUserAdminHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *UserAdminHandler {
	return &UserAdminHandler{
		userService: userService,
		cfg:         cfg,
		logger:      logger,
	}
}

// UserCreateRequest represents an admin's request to create a new user
type UserCreateRequest struct {
	Username string      `json:"username" binding:"required"`
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role"`
}

// RoleUpdateRequest represents an admin's request to change a user's role
type RoleUpdateRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// PasswordResetRequest represents an admin's request to reset a user's password
type PasswordResetRequest struct {
	Password string `json:"password" binding:"required"`
}

// ProfileResponse represents user profile data
type ProfileResponse struct {
	ID         int         `json:"id"`
	Username   string      `json:"username"`
	Email      *string     `json:"email"`
	Role       models.Role `json:"role"`
	LastActive *time.Time  `json:"last_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (h *UserAdminHandler) convertUserToProfileResponse(user *models.User) ProfileResponse {
	return ProfileResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      nullStringToPointer(user.Email),
		Role:       user.Role,
		LastActive: nullTimeToPointer(user.LastActive),
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// GetAllUsers handles GET /userz - list all users (admin only)
func (h *UserAdminHandler) GetAllUsers(c *gin.Context) {
	users, err := h.userService.GetAllUsers(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving users", err, nil)
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve users"))
		return
	}

	var userResponses []ProfileResponse
	for i := range users {
		userResponses = append(userResponses, h.convertUserToProfileResponse(&users[i]))
	}

	c.JSON(http.StatusOK, gin.H{"users": userResponses})
}

// GetUser handles GET /userz/:id - get a single user (admin only)
func (h *UserAdminHandler) GetUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": h.convertUserToProfileResponse(user)})
}

// CreateUser handles POST /userz - create a new user (admin only)
func (h *UserAdminHandler) CreateUser(c *gin.Context) {
	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleCreator
	}
	if !role.Valid() {
		HandleAppError(c, contextutils.ErrInvalidInput)
		return
	}

	if !contextutils.IsValidEmail(req.Email) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	user, err := h.userService.CreateUserWithPassword(c.Request.Context(), req.Username, strings.ToLower(req.Email), req.Password, role)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating user", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": h.convertUserToProfileResponse(user)})
}

// UpdateUserRole handles PUT /userz/:id/role - change a user's role (admin only)
func (h *UserAdminHandler) UpdateUserRole(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	if !req.Role.Valid() {
		HandleAppError(c, contextutils.ErrInvalidInput)
		return
	}

	if err := h.userService.UpdateUserRole(c.Request.Context(), userID, req.Role); err != nil {
		h.logger.Error(c.Request.Context(), "Error updating user role", err, map[string]interface{}{"user_id": userID, "role": string(req.Role)})
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": h.convertUserToProfileResponse(user)})
}

// ResetUserPassword handles POST /userz/:id/password - reset a password (admin only)
func (h *UserAdminHandler) ResetUserPassword(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if err := h.userService.UpdateUserPassword(c.Request.Context(), userID, req.Password); err != nil {
		h.logger.Error(c.Request.Context(), "Error resetting user password", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password updated",
	})
}

// DeleteUser handles DELETE /userz/:id - delete a user (admin only).
// Deleting your own account is rejected.
func (h *UserAdminHandler) DeleteUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	actorID, err := GetCurrentUserID(c)
	if err == nil && actorID == userID {
		HandleAppError(c, contextutils.ErrForbidden)
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), userID); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted",
	})
}

// nullStringToPointer converts sql.NullString to *string
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// nullTimeToPointer converts sql.NullTime to *time.Time
func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}
