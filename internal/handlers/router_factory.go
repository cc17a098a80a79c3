package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"questionbank/internal/config"
	"questionbank/internal/middleware"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	"questionbank/internal/version"
)

// NewRouter creates a new router with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	userService services.UserServiceInterface,
	moderationService services.ModerationServiceInterface,
	queueCoordinator services.ReviewQueueCoordinatorInterface,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())

	// Add HTTP request logging middleware using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		fields := map[string]interface{}{
			"http.method":      method,
			"http.path":        path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   clientIP,
			"http.user_agent":  c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		if statusCode >= 400 {
			if c.Writer.Size() > 0 {
				fields["http.response_size"] = c.Writer.Size()
			}
			if statusCode >= 500 {
				fields["http.error_type"] = "server_error"
			} else {
				fields["http.error_type"] = "client_error"
			}
		}

		// Use appropriate log level based on status code
		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "backend"})
	})

	// Add OpenTelemetry middleware for HTTP tracing and context propagation with automatic error attributes
	router.Use(observability.GinMiddlewareWithErrorHandling("questionbank-backend"))

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure, // Set to true in production with HTTPS
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	authHandler := NewAuthHandler(userService, cfg, logger)
	questionHandler := NewQuestionHandler(moderationService, cfg, logger)
	queueHandler := NewQueueHandler(queueCoordinator, cfg, logger)
	userAdminHandler := NewUserAdminHandler(userService, cfg, logger)

	// V1 routes
	v1 := router.Group("/v1")
	{
		// Version endpoint (no auth)
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/status", authHandler.Status)
			auth.GET("/check", middleware.RequireAuth(), authHandler.Check)
			auth.POST("/signup", authHandler.Signup)
			auth.GET("/signup/status", authHandler.SignupStatus)
		}

		questions := v1.Group("/questions")
		questions.Use(middleware.RequireAuth())
		{
			questions.POST("", questionHandler.CreateQuestion)
			questions.GET("/:id", questionHandler.GetQuestion)
			questions.PUT("/:id", questionHandler.UpdateQuestion)
			questions.POST("/:id/submit", questionHandler.SubmitForReview)
			questions.POST("/:id/flags", questionHandler.FileFlag)
			questions.GET("/:id/flags", questionHandler.ListFlags)
			questions.GET("/:id/reviews", questionHandler.ListReviews)

			// Review decisions and flag resolution require the reviewer role.
			// Role is checked against the live user record, not the session.
			questions.POST("/:id/review", middleware.RequireReviewer(userService), questionHandler.Review)
			questions.POST("/:id/flags/resolve", middleware.RequireReviewer(userService), questionHandler.ResolveFlags)

			questions.POST("/:id/archive", middleware.RequireAdmin(userService), questionHandler.Archive)

			questions.POST("/batch/submit", questionHandler.BatchSubmitForReview)
			questions.POST("/batch/approve", middleware.RequireReviewer(userService), questionHandler.BatchApprove)
		}

		queue := v1.Group("/queue")
		queue.Use(middleware.RequireAuth())
		{
			queue.GET("", middleware.RequireReviewer(userService), queueHandler.ReviewQueue)
			queue.GET("/mine", queueHandler.CreatorDashboard)
		}

		// Admin endpoints
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin(userService))
		{
			admin.GET("/userz", userAdminHandler.GetAllUsers)
			admin.GET("/userz/:id", userAdminHandler.GetUser)
			admin.POST("/userz", userAdminHandler.CreateUser)
			admin.PUT("/userz/:id/role", userAdminHandler.UpdateUserRole)
			admin.POST("/userz/:id/reset-password", userAdminHandler.ResetUserPassword)
			admin.DELETE("/userz/:id", userAdminHandler.DeleteUser)
		}
	}

	// Automatic route listing at root path
	routeListing := NewRouteListingHandler("Question Bank Backend")
	routeListing.CollectRoutes(router)

	// Root path shows all available routes
	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
		} else {
			routeListing.GetRouteListingPage(c)
		}
	})

	return router
}
