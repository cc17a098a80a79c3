// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"

	"questionbank/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
)

// userResolver is the slice of the user service the middleware needs.
type userResolver interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// sessionUser extracts and validates the session identity. Returns false
// after writing the 401 response when the session is absent or malformed.
func sessionUser(c *gin.Context) (userID int, username string, ok bool) {
	unauthorized := func() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
			"code":  "UNAUTHORIZED",
		})
		c.Abort()
	}

	session := sessions.Default(c)
	rawID := session.Get(UserIDKey)
	if rawID == nil {
		unauthorized()
		return 0, "", false
	}

	userID, idOK := rawID.(int)
	if !idOK {
		// JSON numbers are often stored as float64
		if idFloat, floatOK := rawID.(float64); floatOK {
			userID = int(idFloat)
		} else {
			unauthorized()
			return 0, "", false
		}
	}

	rawName := session.Get(UsernameKey)
	if rawName == nil {
		unauthorized()
		return 0, "", false
	}
	username, nameOK := rawName.(string)
	if !nameOK || username == "" {
		unauthorized()
		return 0, "", false
	}

	return userID, username, true
}

// RequireAuth returns a middleware that requires authentication
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, username, ok := sessionUser(c)
		if !ok {
			return
		}

		// Store user info in context for handlers to use
		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)

		c.Next()
	}
}

// RequireRole returns a middleware that requires authentication and one of
// the given roles. The role check runs against the stored user record, not a
// session claim, so a role change takes effect on the next request.
func RequireRole(userService userResolver, roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		userID, username, ok := sessionUser(c)
		if !ok {
			return
		}

		user, err := userService.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check user role",
				"code":  "INTERNAL_ERROR",
			})
			c.Abort()
			return
		}
		if user == nil || !allowed[user.Role] {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role",
				"code":  "FORBIDDEN",
			})
			c.Abort()
			return
		}

		// Store user info in context for handlers to use
		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)

		c.Next()
	}
}

// RequireAdmin returns a middleware that requires authentication and the
// admin role
func RequireAdmin(userService userResolver) gin.HandlerFunc {
	return RequireRole(userService, models.RoleAdmin)
}

// RequireReviewer returns a middleware that admits reviewers and admins
func RequireReviewer(userService userResolver) gin.HandlerFunc {
	return RequireRole(userService, models.RoleReviewer, models.RoleAdmin)
}
