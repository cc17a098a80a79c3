package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"questionbank/internal/config"
	"questionbank/internal/middleware"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService services.UserServiceInterface
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		config:      cfg,
		logger:      logger,
	}
}

// LoginRequest is the payload for username/password login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignupRequest is the payload for account registration
type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Login handles user login requests
func (h *AuthHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req LoginRequest
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

	span.SetAttributes(
		attribute.String("auth.username", req.Username),
		attribute.Bool("auth.password_provided", req.Password != ""),
	)

	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Authentication failed for user", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	if user == nil {
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.username", user.Username),
		attribute.String("user.role", string(user.Role)),
	)

	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		// Log error but don't fail login
		h.logger.Warn(c.Request.Context(), "Failed to update last active for user", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
	}

	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)

	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"error": err.Error()})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"user":    user,
	})
}

// Logout handles user logout requests
func (h *AuthHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	username := session.Get(middleware.UsernameKey)

	if userID != nil {
		if id, ok := userID.(int); ok {
			span.SetAttributes(attribute.Int("user.id", id))
		}
	}
	if username != nil {
		if name, ok := username.(string); ok {
			span.SetAttributes(attribute.String("user.username", name))
		}
	}

	session.Clear()

	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logout successful",
	})
}

// Status returns the current authentication status
func (h *AuthHandler) Status(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "status")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)

	if userID == nil {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"user":          nil,
		})
		return
	}

	id, ok := userID.(int)
	if !ok {
		// Session stores numbers as float64 after some serializations
		if f, isFloat := userID.(float64); isFloat {
			id = int(f)
		} else {
			span.SetAttributes(attribute.Bool("auth.authenticated", false))
			c.JSON(http.StatusOK, gin.H{
				"authenticated": false,
				"user":          nil,
			})
			return
		}
	}

	span.SetAttributes(
		attribute.Bool("auth.authenticated", true),
		attribute.Int("user.id", id),
	)

	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error getting user by ID", err, map[string]interface{}{"user_id": id})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if user == nil {
		// User not found, clear session
		session.Clear()
		if err := session.Save(); err != nil {
			h.logger.Error(c.Request.Context(), "Error saving session", err, map[string]interface{}{"error": err.Error()})
		}
		span.SetAttributes(attribute.Bool("auth.user_found", false))
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"user":          nil,
		})
		return
	}

	span.SetAttributes(
		attribute.Bool("auth.user_found", true),
		attribute.String("user.username", user.Username),
		attribute.String("user.role", string(user.Role)),
	)

	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		h.logger.Error(c.Request.Context(), "Error updating last active", err, map[string]interface{}{"user_id": user.ID})
		// Don't fail the request for this error
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
	})
}

// Check is a lightweight auth-check endpoint intended for reverse proxy auth_request.
// It requires authentication via middleware and returns 204 when authenticated.
// Unauthenticated requests are rejected by the RequireAuth middleware with 401.
func (h *AuthHandler) Check(c *gin.Context) {
	// If we reached here, authentication succeeded in middleware
	c.Status(http.StatusNoContent)
}

// Signup handles user registration requests. New accounts always start with
// the creator role; reviewer and admin roles are granted by an admin.
func (h *AuthHandler) Signup(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "signup")
	defer observability.FinishSpan(span, nil)

	if h.config != nil && h.config.IsSignupDisabled() {
		span.SetAttributes(attribute.Bool("auth.signups_disabled", true))
		HandleAppError(c, contextutils.ErrForbidden)
		return
	}

	span.SetAttributes(attribute.Bool("auth.signups_disabled", false))

	var req SignupRequest
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

	span.SetAttributes(
		attribute.String("signup.username", req.Username),
		attribute.Bool("signup.password_provided", req.Password != ""),
		attribute.Bool("signup.email_provided", req.Email != ""),
	)

	// Validate username format (3-50 characters, alphanumeric + underscore)
	if len(req.Username) < 3 || len(req.Username) > 50 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if !usernameRegex.MatchString(req.Username) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	// Validate password (minimum 8 characters)
	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if !contextutils.IsValidEmail(req.Email) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	email := strings.ToLower(req.Email)

	h.logger.Info(c.Request.Context(), "Attempting signup for user", map[string]interface{}{"username": req.Username, "email": email})

	// Check if username already exists
	existingUser, err := h.userService.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking username uniqueness", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if existingUser != nil {
		span.SetAttributes(attribute.Bool("signup.username_exists", true))
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	user, err := h.userService.CreateUserWithPassword(c.Request.Context(), req.Username, email, req.Password, models.RoleCreator)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating user", err, map[string]interface{}{"username": req.Username, "email": email})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.username", user.Username),
		attribute.String("user.email", email),
	)

	h.logger.Info(c.Request.Context(), "Successfully created user", map[string]interface{}{"username": req.Username, "user_id": user.ID})

	// Return success response (no session created, no auto-login)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Account created successfully. Please log in.",
	})
}

// SignupStatus returns whether signups are enabled or disabled
func (h *AuthHandler) SignupStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "signup_status")
	defer observability.FinishSpan(span, nil)

	signupsDisabled := false
	if h.config != nil {
		signupsDisabled = h.config.IsSignupDisabled()
	}

	span.SetAttributes(
		attribute.Bool("auth.signups_disabled", signupsDisabled),
		attribute.Bool("auth.config_available", h.config != nil),
	)

	c.JSON(http.StatusOK, gin.H{
		"signups_disabled": signupsDisabled,
	})
}
