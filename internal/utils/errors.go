// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the question bank application.
package contextutils

import (
	"context"
	"fmt"
	"strings"
)

// ErrorCode represents a standardized error code for API responses
type ErrorCode string

const (
	// Database error codes

	// ErrorCodeDatabaseConnection indicates a database connection error
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a database query error
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeDatabaseTransaction indicates a database transaction error
	ErrorCodeDatabaseTransaction ErrorCode = "DATABASE_TRANSACTION_ERROR"
	// ErrorCodeRecordNotFound indicates that a requested record was not found
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	// ErrorCodeRecordExists indicates that a record already exists (duplicate key)
	ErrorCodeRecordExists ErrorCode = "RECORD_ALREADY_EXISTS"
	// ErrorCodeForeignKeyViolation indicates a foreign key constraint violation
	ErrorCodeForeignKeyViolation ErrorCode = "FOREIGN_KEY_VIOLATION"

	// Validation error codes

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingRequired indicates that a required field is missing
	ErrorCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	// ErrorCodeInvalidFormat indicates that the input format is invalid
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodeValidationFailed indicates that validation has failed
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Authentication error codes

	// ErrorCodeUnauthorized indicates that the user is not authorized
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden indicates that the user is forbidden from accessing the resource
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeInvalidCredentials indicates that the provided credentials are invalid
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	// ErrorCodeSessionExpired indicates that the user session has expired
	ErrorCodeSessionExpired ErrorCode = "SESSION_EXPIRED"

	// Service error codes

	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"

	// Moderation error codes

	// ErrorCodeQuestionNotFound indicates that the requested question was not found
	ErrorCodeQuestionNotFound ErrorCode = "QUESTION_NOT_FOUND"
	// ErrorCodeInvalidState indicates that an operation is not allowed from the
	// question's current lifecycle status
	ErrorCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrorCodeStaleState indicates that the question's status changed between
	// read and write; the operation may be retried after a fresh read
	ErrorCodeStaleState ErrorCode = "STALE_STATE"
	// ErrorCodeDuplicateFlag indicates that the user already has an open flag on the question
	ErrorCodeDuplicateFlag ErrorCode = "DUPLICATE_FLAG"
	// ErrorCodeFlagNotFound indicates that the requested flag was not found
	ErrorCodeFlagNotFound ErrorCode = "FLAG_NOT_FOUND"
	// ErrorCodeIncompleteContent indicates that a question is missing required
	// content fields for the attempted transition
	ErrorCodeIncompleteContent ErrorCode = "INCOMPLETE_CONTENT"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

// Error types for consistent error handling with associated codes and severity
var (
	// Database errors
	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrDatabaseTransaction = &AppError{
		Code:     ErrorCodeDatabaseTransaction,
		Severity: SeverityError,
		Message:  "Database transaction failed",
	}

	ErrRecordNotFound = &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  "Record not found",
	}

	ErrRecordExists = &AppError{
		Code:     ErrorCodeRecordExists,
		Severity: SeverityInfo,
		Message:  "Record already exists",
	}

	ErrForeignKeyViolation = &AppError{
		Code:     ErrorCodeForeignKeyViolation,
		Severity: SeverityError,
		Message:  "Foreign key constraint violation",
	}

	// Validation errors
	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}

	ErrMissingRequired = &AppError{
		Code:     ErrorCodeMissingRequired,
		Severity: SeverityWarn,
		Message:  "Missing required field",
	}

	ErrInvalidFormat = &AppError{
		Code:     ErrorCodeInvalidFormat,
		Severity: SeverityWarn,
		Message:  "Invalid format",
	}

	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	// Authentication errors
	ErrUnauthorized = &AppError{
		Code:     ErrorCodeUnauthorized,
		Severity: SeverityWarn,
		Message:  "Unauthorized",
	}

	ErrForbidden = &AppError{
		Code:     ErrorCodeForbidden,
		Severity: SeverityWarn,
		Message:  "Forbidden",
	}

	ErrInvalidCredentials = &AppError{
		Code:     ErrorCodeInvalidCredentials,
		Severity: SeverityWarn,
		Message:  "Invalid credentials",
	}

	ErrSessionExpired = &AppError{
		Code:     ErrorCodeSessionExpired,
		Severity: SeverityInfo,
		Message:  "Session expired",
	}

	// Service errors
	ErrServiceUnavailable = &AppError{
		Code:     ErrorCodeServiceUnavailable,
		Severity: SeverityError,
		Message:  "Service unavailable",
	}

	ErrTimeout = &AppError{
		Code:     ErrorCodeTimeout,
		Severity: SeverityWarn,
		Message:  "Request timeout",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}

	// Moderation errors
	ErrQuestionNotFound = &AppError{
		Code:     ErrorCodeQuestionNotFound,
		Severity: SeverityInfo,
		Message:  "Question not found",
	}

	ErrInvalidState = &AppError{
		Code:     ErrorCodeInvalidState,
		Severity: SeverityWarn,
		Message:  "Operation not allowed from current question status",
	}

	ErrStaleState = &AppError{
		Code:     ErrorCodeStaleState,
		Severity: SeverityInfo,
		Message:  "Question status changed concurrently",
	}

	ErrDuplicateFlag = &AppError{
		Code:     ErrorCodeDuplicateFlag,
		Severity: SeverityInfo,
		Message:  "User already has an open flag on this question",
	}

	ErrFlagNotFound = &AppError{
		Code:     ErrorCodeFlagNotFound,
		Severity: SeverityInfo,
		Message:  "Flag not found",
	}

	ErrIncompleteContent = &AppError{
		Code:     ErrorCodeIncompleteContent,
		Severity: SeverityWarn,
		Message:  "Question content is incomplete",
	}
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, wrap it with additional details
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    appErr,
		}
	}

	// For regular errors, create a generic internal error wrapper
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	// Handle %w verb for error wrapping by using fmt.Errorf
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)

		if appErr, ok := err.(*AppError); ok {
			return &AppError{
				Code:     appErr.Code,
				Severity: appErr.Severity,
				Message:  wrappedErr.Error(),
				Details:  appErr.Error(),
				Cause:    wrappedErr,
			}
		}

		return &AppError{
			Code:     ErrorCodeInternalError,
			Severity: SeverityError,
			Message:  wrappedErr.Error(),
			Details:  err.Error(),
			Cause:    wrappedErr,
		}
	}

	// If it's already an AppError, wrap it with additional details
	if appErr, ok := err.(*AppError); ok {
		context := fmt.Sprintf(format, args...)
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    appErr,
		}
	}

	// For regular errors, create a generic internal error wrapper
	context := fmt.Sprintf(format, args...)
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// ErrorWithContextf creates a new AppError of the same kind as base with a
// formatted message. The base's code and severity carry over, so callers get
// a typed error without repeating the taxonomy.
func ErrorWithContextf(base *AppError, format string, args ...interface{}) error {
	return &AppError{
		Code:     base.Code,
		Severity: base.Severity,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error matches a specific AppError type
func IsError(err error, target *AppError) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == target.Code
	}
	return false
}

// AsError attempts to convert an error to an AppError
func AsError(err error, target **AppError) bool {
	if appErr, ok := err.(*AppError); ok {
		*target = appErr
		return true
	}
	return false
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// GetErrorSeverity returns the severity level from an error if it's an AppError, otherwise returns error
func GetErrorSeverity(err error) SeverityLevel {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Severity
	}
	return SeverityError
}

// IsRetryable determines if an error should be retried based on its type and severity.
// Stale-state conflicts are retryable after a fresh read; everything else in the
// moderation taxonomy is not.
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		switch appErr.Code {
		case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection, ErrorCodeStaleState:
			return appErr.Severity != SeverityFatal
		}
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     string(e.Code),
		"message":  e.Message,
		"severity": string(e.Severity),
		"error":    e.Message, // Include error field for backward compatibility
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	result["retryable"] = IsRetryable(e)

	if e.Cause != nil {
		// Only surface the cause for server-side failures
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey is used to store user ID in context for audit attribution
	UserIDKey ContextKey = "userID"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(UserIDKey).(int); ok {
		return userID
	}
	return 0 // Default fallback
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
