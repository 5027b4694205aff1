package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promptlens/internal/config"
	"promptlens/internal/database"
	"promptlens/internal/handlers"
	"promptlens/internal/jobs"
	"promptlens/internal/logging"
	"promptlens/internal/middleware"
	"promptlens/internal/services"
	"promptlens/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PromptLens Analytics Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Initialize MongoDB
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize database indexes: %v", err)
	}
	log.Println("✅ MongoDB connected and indexes ensured")

	// Initialize Redis (optional - cross-instance field discovery cache)
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (field cache is in-process only)", err)
			redisService = nil
		}
	} else {
		log.Println("⚠️ REDIS_URL not set, field cache is in-process only")
	}
	if redisService != nil {
		defer redisService.Close()
	}

	// Initialize Prometheus metrics
	metrics := services.InitMetrics()

	// Initialize services
	materializer := services.NewSessionLengthMaterializer(mongoDB)
	metadataService := services.NewMetadataService(mongoDB, materializer, redisService, metrics)
	taskService := services.NewTaskService(mongoDB, metrics)
	apiKeyService := services.NewAPIKeyService(mongoDB)
	exportService := services.NewExportService()
	log.Println("✅ Services initialized")

	// Dashboard JWT verification (tokens are issued by the identity service)
	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET environment variable is required")
	}
	jwtAuth, err := auth.NewDashboardJWTAuth(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
	}
	log.Println("✅ Dashboard JWT verification enabled")

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "PromptLens v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second, // aggregation pipelines and exports can run long
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024, // 10MB, generous for batched task payloads
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("promptlens")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Ingest=%d/min, Analytics=%d/min, Export=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.IngestMax,
		rateLimitConfig.AnalyticsMax,
		rateLimitConfig.ExportMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-API-Key",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Global API rate limiter - first line of DDoS defense
	app.Use("/v1", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	taskHandler := handlers.NewTaskHandler(taskService)
	analyticsHandler := handlers.NewAnalyticsHandler(metadataService, exportService)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService)

	// Public routes
	app.Get("/health", healthHandler.Handle)

	// Ingestion routes: API key auth, project scope comes from the key.
	// Middleware is attached per route so it never leaks onto the dashboard
	// routes sharing the /v1 prefix.
	apiKeyAuth := middleware.APIKeyMiddleware(apiKeyService)
	perKeyLimiter := middleware.RateLimitByAPIKey(redisService, 1200, 20000)
	ingestLimiter := middleware.IngestRateLimiter(rateLimitConfig)
	ingestChain := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{apiKeyAuth, perKeyLimiter, ingestLimiter, h}
	}
	app.Post("/v1/tasks", ingestChain(taskHandler.CreateTask)...)
	app.Post("/v1/sessions", ingestChain(taskHandler.CreateSession)...)
	app.Post("/v1/events", ingestChain(taskHandler.RecordEvent)...)
	app.Patch("/v1/tasks/:id/flag", ingestChain(taskHandler.FlagTask)...)

	// Analytics routes: dashboard JWT or a key scoped to the same project
	projects := app.Group("/v1/projects/:projectID",
		middleware.APIKeyOrJWTMiddleware(apiKeyService, jwtAuth.Middleware()),
		middleware.RequireProjectMatch("projectID"),
		auth.RequireProjectAccess("projectID"),
		middleware.AnalyticsRateLimiter(rateLimitConfig),
	)
	projects.Post("/metadata/breakdown", analyticsHandler.Breakdown)
	projects.Get("/metadata/breakdown/export", middleware.ExportRateLimiter(rateLimitConfig), analyticsHandler.BreakdownExport)
	projects.Get("/metadata/fields", analyticsHandler.MetadataFields)
	projects.Get("/metadata/:field/count", analyticsHandler.Count)
	projects.Get("/metadata/:field/average", analyticsHandler.Average)
	projects.Get("/metadata/:field/threshold", analyticsHandler.Threshold)
	projects.Get("/users", analyticsHandler.Users)

	// Key management is dashboard-only
	projects.Post("/keys", apiKeyHandler.Create)
	projects.Post("/keys/:id/revoke", apiKeyHandler.Revoke)

	// Background jobs
	var jobScheduler *jobs.JobScheduler
	if cfg.RefreshEnabled {
		jobScheduler = jobs.NewJobScheduler()
		refreshJob := jobs.NewSessionLengthRefreshJob(taskService, materializer, jobScheduler.Logger())
		jobScheduler.RegisterEvery(cfg.RefreshInterval, refreshJob)
		jobScheduler.Start()
		log.Printf("🕐 Background jobs: session length refresh (every %s)", cfg.RefreshInterval)
	} else {
		log.Println("⚠️ Session length refresh job disabled")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if jobScheduler != nil {
			jobScheduler.Stop()
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
