package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/auth"
	"github.com/classlens-inc/classlens-engine/pkg/config"
	"github.com/classlens-inc/classlens-engine/pkg/crypto"
	"github.com/classlens-inc/classlens-engine/pkg/database"
	"github.com/classlens-inc/classlens-engine/pkg/handlers"
	"github.com/classlens-inc/classlens-engine/pkg/logging"
	"github.com/classlens-inc/classlens-engine/pkg/mcp"
	"github.com/classlens-inc/classlens-engine/pkg/mcp/tools"
	"github.com/classlens-inc/classlens-engine/pkg/middleware"
	"github.com/classlens-inc/classlens-engine/pkg/ocr"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
	"github.com/classlens-inc/classlens-engine/pkg/retry"
	"github.com/classlens-inc/classlens-engine/pkg/secrets"
	"github.com/classlens-inc/classlens-engine/pkg/services"
	"github.com/classlens-inc/classlens-engine/pkg/vision"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis", cfg.Redis.Host),
		zap.String("vision_provider", cfg.Vision.Provider))

	if cfg.CredentialsKey == "" {
		logger.Fatal("CREDENTIALS_KEY is required (generate with: openssl rand -base64 32)")
	}
	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryptor", zap.Error(err))
	}

	ctx := context.Background()

	// The database can come up after us; retry before giving up.
	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Fatal("Redis is required (attendance record store)")
	}
	defer func() { _ = redisClient.Close() }()

	// Repositories
	rosterRepo := repositories.NewRosterRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	attendanceStore := repositories.NewAttendanceStore(redisClient)

	// Services
	secretStore := secrets.NewStore(credentialRepo, encryptor, logger)
	ocrEngine, err := ocr.NewEngine(cfg.Recognition.OCRLanguage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OCR engine", zap.Error(err))
	}
	defer func() { _ = ocrEngine.Close() }()

	visionFactory := vision.NewFactory(&cfg.Vision, secretStore, logger)
	reconcileService := services.NewReconcileService(attendanceStore, cfg.Recognition.RetentionDays, logger)
	recognitionService := services.NewRecognitionService(
		rosterRepo, ocrEngine, visionFactory, reconcileService,
		&cfg.Recognition, &cfg.Vision, logger)

	// Auth
	jwksClient, err := auth.NewJWKSClient(ctx, &cfg.Auth)
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	requireAuth := auth.RequireAuth(jwksClient, cfg.Auth.EnableVerification, logger)

	// HTTP API
	api := http.NewServeMux()
	handlers.NewAttendanceHandler(recognitionService, reconcileService, logger).RegisterRoutes(api)
	handlers.NewStudentsHandler(rosterRepo, logger).RegisterRoutes(api)
	handlers.NewCredentialsHandler(secretStore, logger).RegisterRoutes(api)

	// MCP (read-only attendance tools)
	mcpServer := mcp.NewServer("classlens-engine", cfg.Version, logger)
	tools.RegisterAttendanceTools(mcpServer.MCP(), &tools.AttendanceToolDeps{
		RosterRepo: rosterRepo,
		Reconcile:  reconcileService,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	mux.Handle("/api/", requireAuth(api))
	mux.Handle("/mcp", requireAuth(mcpServer.NewStreamableHTTPServer()))

	// Serve static UI files from ui/dist
	mux.Handle("/", http.FileServer(http.Dir("./ui/dist")))

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting classlens-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// newLogger builds the process logger: JSON in production, console
// elsewhere.
func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// runMigrations opens a short-lived database/sql connection for the
// migration runner; the pgx pool stays untouched.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
