// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"questionbank/internal/config"
	"questionbank/internal/database"
	"questionbank/internal/observability"
	"questionbank/internal/serviceinterfaces"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetQuestionStore() (services.QuestionStoreInterface, error)
	GetFlagTracker() (services.FlagTrackerInterface, error)
	GetModerationService() (services.ModerationServiceInterface, error)
	GetReviewQueueCoordinator() (services.ReviewQueueCoordinatorInterface, error)
	GetNotifier() (serviceinterfaces.Notifier, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Initialize database
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	// Initialize core services
	sc.initializeServices(ctx)

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf(contextutils.ErrInternalError, "service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf(contextutils.ErrInternalError, "service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetQuestionStore returns the question store
func (sc *ServiceContainer) GetQuestionStore() (services.QuestionStoreInterface, error) {
	return GetServiceAs[services.QuestionStoreInterface](sc, "question_store")
}

// GetFlagTracker returns the flag tracker
func (sc *ServiceContainer) GetFlagTracker() (services.FlagTrackerInterface, error) {
	return GetServiceAs[services.FlagTrackerInterface](sc, "flag_tracker")
}

// GetModerationService returns the moderation service
func (sc *ServiceContainer) GetModerationService() (services.ModerationServiceInterface, error) {
	return GetServiceAs[services.ModerationServiceInterface](sc, "moderation")
}

// GetReviewQueueCoordinator returns the review queue coordinator
func (sc *ServiceContainer) GetReviewQueueCoordinator() (services.ReviewQueueCoordinatorInterface, error) {
	return GetServiceAs[services.ReviewQueueCoordinatorInterface](sc, "review_queue")
}

// GetNotifier returns the transition notifier
func (sc *ServiceContainer) GetNotifier() (serviceinterfaces.Notifier, error) {
	return GetServiceAs[serviceinterfaces.Notifier](sc, "notifier")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errs []error

	// Shutdown services in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err, nil)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return contextutils.ErrorWithContextf(contextutils.ErrInternalError, "shutdown errors: %v", errs)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) {
	// Core services that don't depend on other services
	userService := services.NewUserServiceWithLogger(sc.db, sc.cfg, sc.logger)
	sc.services["user"] = userService

	// Question store owns all question, flag, and review persistence
	questionStore := services.NewQuestionStore(sc.db, sc.cfg, sc.logger)
	sc.services["question_store"] = questionStore

	// Flag tracker depends on the question store
	flagTracker := services.NewFlagTracker(questionStore, sc.logger)
	sc.services["flag_tracker"] = flagTracker

	// Review queue is a read-only projection over the store
	reviewQueue := services.NewReviewQueueCoordinator(questionStore, sc.logger)
	sc.services["review_queue"] = reviewQueue

	// Transition notifier: email when SMTP is configured, log-only otherwise
	var notifier serviceinterfaces.Notifier
	emailNotifier := services.NewEmailNotifier(sc.cfg, sc.logger, sc.db)
	if emailNotifier.IsEnabled() {
		notifier = emailNotifier
	} else {
		notifier = services.NewLogNotifier(sc.logger)
	}
	sc.services["notifier"] = notifier

	// Moderation service is the workflow façade over everything above
	moderationService := services.NewModerationService(questionStore, userService, flagTracker, notifier, sc.cfg, sc.logger)
	sc.services["moderation"] = moderationService
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword)
}
