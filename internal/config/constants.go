package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	ServerShutdownTimeout = 30 * time.Second
	TestTimeout           = 100 * time.Millisecond

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Moderation defaults
const (
	// DefaultQueuePageSize is the review queue page size when not configured
	DefaultQueuePageSize = 50
	// MaxQueuePageSize caps the page size a client may request
	MaxQueuePageSize = 200
	// DefaultMaxBatchSize caps batch moderation operations when not configured
	DefaultMaxBatchSize = 100
	// DefaultFlaggedPriorityBoost puts flagged questions ahead of fresh submissions
	DefaultFlaggedPriorityBoost = 100.0
	// DefaultOpenFlagWeight is the per-open-flag priority contribution
	DefaultOpenFlagWeight = 10.0
)

// Session configuration constants
const (
	// Session settings
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	// Session name
	SessionName = "questionbank-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self' blob: data:;"
)
