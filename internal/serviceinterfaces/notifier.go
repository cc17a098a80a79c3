// Package serviceinterfaces defines service interfaces for dependency injection and testing.
package serviceinterfaces

import (
	"context"

	"questionbank/internal/models"
)

// Notifier is the hook invoked after a status transition commits. Callers
// fire it in a goroutine; a notification failure never affects the
// transition that triggered it.
type Notifier interface {
	// NotifyTransition delivers a notification for a committed transition
	NotifyTransition(ctx context.Context, event *models.TransitionEvent) error

	// IsEnabled returns whether notification delivery is configured
	IsEnabled() bool
}
