package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sjperalta/schoolfees-api/docs" // Swagger docs
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/handlers"
	"github.com/sjperalta/schoolfees-api/internal/jobs"
	"github.com/sjperalta/schoolfees-api/internal/metrics"
	"github.com/sjperalta/schoolfees-api/internal/middleware"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/services"
	"github.com/sjperalta/schoolfees-api/internal/storage"
	"github.com/sjperalta/schoolfees-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title School Fees API
// @version 1.0
// @description REST API for school fee structures, student fee assignments, fee collection and staff wallets
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Money is rendered as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.EnableEmailNotifications && (cfg.ResendAPIKey == "" || cfg.FromEmail == "") {
		logger.Warn("Email notifications enabled but RESEND_API_KEY or FROM_EMAIL not set; parents will only get in-app notifications")
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	// Initialize storage for rendered receipts
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage", "path", cfg.StoragePath)

	metrics.Register(prometheus.DefaultRegisterer)

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, database.NewTransactor(db), worker, store, cfg)

	// Schedule recurring jobs
	svcs.Job.StartSchedules(cfg.OverdueCheckInterval)

	// Initialize handlers
	h := handlers.NewHandlers(svcs, sqlDB)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Drain in-flight notifications and sweeps
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if err := sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	router.Use(metrics.Middleware())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Resource not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "message": "Method not allowed"})
	})

	// Redirect root to swagger
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	h.Register(router.Group("/api/v1"), cfg.JWTSecret)

	return router
}
