package handlers

import (
	"fmt"
	"net/http"

	contextutils "questionbank/internal/utils"

	"github.com/gin-gonic/gin"
)

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	// Map HTTP status code to appropriate error code
	var errorCode contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest:
		errorCode = contextutils.ErrorCodeInvalidInput
		severity = contextutils.SeverityWarn
	case http.StatusUnauthorized:
		errorCode = contextutils.ErrorCodeUnauthorized
		severity = contextutils.SeverityWarn
	case http.StatusForbidden:
		errorCode = contextutils.ErrorCodeForbidden
		severity = contextutils.SeverityWarn
	case http.StatusNotFound:
		errorCode = contextutils.ErrorCodeRecordNotFound
		severity = contextutils.SeverityInfo
	case http.StatusConflict:
		errorCode = contextutils.ErrorCodeRecordExists
		severity = contextutils.SeverityInfo
	case http.StatusServiceUnavailable:
		errorCode = contextutils.ErrorCodeServiceUnavailable
		severity = contextutils.SeverityError
	default:
		errorCode = contextutils.ErrorCodeInternalError
		severity = contextutils.SeverityError
	}

	// Create an AppError with appropriate code
	appErr := contextutils.NewAppError(
		errorCode,
		severity,
		message,
		details,
	)

	// Send response with the original status code
	c.JSON(statusCode, appErr.ToJSON())
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	// Map error codes to HTTP status codes
	statusCode := mapErrorCodeToHTTPStatus(err.Code)

	// Convert error to JSON structure
	errorJSON := err.ToJSON()

	// Add retryable information so callers can tell a lost race (retry the
	// read-then-write) from a request that needs different input
	errorJSON["retryable"] = contextutils.IsRetryable(err)

	c.JSON(statusCode, errorJSON)
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)

	StandardizeAppError(c, appErr)
}

// HandleAppError handles any AppError and sends appropriate HTTP response
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if contextutils.AsError(err, &appErr) {
		StandardizeAppError(c, appErr)
		return
	}
	// Fallback for non-AppError types
	StandardizeHTTPError(c, http.StatusInternalServerError, "Internal server error", err.Error())
}

// mapErrorCodeToHTTPStatus maps AppError codes to appropriate HTTP status codes
func mapErrorCodeToHTTPStatus(code contextutils.ErrorCode) int {
	switch code {
	// 4xx Client Errors
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeMissingRequired,
		contextutils.ErrorCodeInvalidFormat, contextutils.ErrorCodeValidationFailed,
		contextutils.ErrorCodeIncompleteContent:
		return http.StatusBadRequest

	case contextutils.ErrorCodeUnauthorized, contextutils.ErrorCodeSessionExpired,
		contextutils.ErrorCodeInvalidCredentials:
		return http.StatusUnauthorized

	case contextutils.ErrorCodeForbidden:
		return http.StatusForbidden

	case contextutils.ErrorCodeRecordNotFound, contextutils.ErrorCodeQuestionNotFound,
		contextutils.ErrorCodeFlagNotFound:
		return http.StatusNotFound

	// State conflicts: an illegal transition, a lost optimistic-concurrency
	// race, or a duplicate open flag
	case contextutils.ErrorCodeRecordExists, contextutils.ErrorCodeDuplicateFlag,
		contextutils.ErrorCodeInvalidState, contextutils.ErrorCodeStaleState:
		return http.StatusConflict

	case contextutils.ErrorCodeTimeout:
		return http.StatusRequestTimeout

	// 5xx Server Errors
	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeDatabaseConnection:
		return http.StatusServiceUnavailable

	case contextutils.ErrorCodeInternalError, contextutils.ErrorCodeDatabaseQuery,
		contextutils.ErrorCodeDatabaseTransaction, contextutils.ErrorCodeForeignKeyViolation:
		return http.StatusInternalServerError

	// Default to internal server error for unknown codes
	default:
		return http.StatusInternalServerError
	}
}
