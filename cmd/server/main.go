package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/lecturebox/internal/config"
	"github.com/maneesh/lecturebox/internal/handlers"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/metrics"
	"github.com/maneesh/lecturebox/internal/server"
	"github.com/maneesh/lecturebox/internal/share"
	"github.com/maneesh/lecturebox/internal/storage"
	"github.com/maneesh/lecturebox/internal/tracing"
	"github.com/maneesh/lecturebox/internal/upload"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	mode := "development"
	if cfg.IsProduction() {
		mode = "production"
	}
	log, err := logger.New(mode, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting service", "service", cfg.ServiceName, "port", cfg.ServicePort, "env", cfg.Environment)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.OTelEndpoint, cfg.Environment, log)
	if err != nil {
		log.Fatal("failed to initialize tracer", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("error shutting down tracer", "error", err)
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	// Initialize object storage client
	log.Info("connecting to object storage", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	objectStore, err := storage.NewMinioClient(startCtx, storage.ObjectStoreOptions{
		Endpoint:   cfg.S3Endpoint,
		Region:     cfg.S3Region,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		BucketName: cfg.S3Bucket,
		UseSSL:     cfg.S3UseSSL,
	})
	if err != nil {
		log.Fatal("failed to initialize object storage client", "error", err)
	}
	if !objectStore.Configured() {
		log.Warn("no bucket configured, uploads will fail")
	}

	// Initialize database pool
	log.Info("connecting to database", "driver", cfg.DBDriver, "host", cfg.DBHost, "name", cfg.DBName)
	db, err := storage.NewDatabase(startCtx, storage.DatabaseOptions{
		Driver:         cfg.DBDriver,
		DSN:            cfg.GetDSN(),
		MaxConns:       cfg.DBMaxConns,
		IdleTimeout:    cfg.DBIdleTimeout,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		log.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(startCtx); err != nil {
			log.Fatal("failed to migrate database", "error", err)
		}
		log.Info("database schema applied")
	}

	if err := metrics.RegisterDBStats(db.DB(), cfg.DBName); err != nil {
		log.Warn("failed to register pool metrics", "error", err)
	}

	// Redis is optional: without it lectures are not cached and sharing is off
	var (
		lectureCache handlers.LectureCache
		cachePinger  handlers.Pinger
		shareHandler *handlers.ShareHandler
	)
	redisClient, err := storage.NewRedisClient(startCtx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn("redis unavailable, caching and share links disabled", "addr", cfg.GetRedisAddr(), "error", err)
	} else {
		defer redisClient.Close()
		lectureCache = redisClient
		cachePinger = redisClient
		shareService := share.NewService(db, redisClient, objectStore, cfg.ShareLinkExpiry, log)
		shareHandler = handlers.NewShareHandler(shareService, cfg.PublicBaseURL, log)
	}

	uploadService := upload.NewService(objectStore, db, upload.Options{
		MaxFileSize: cfg.MaxFileSize,
		MaxFiles:    cfg.MaxFilesPerUpload,
	}, log)

	router := server.NewRouter(server.RouterConfig{
		LectureHandler:  handlers.NewLectureHandler(db, lectureCache, log),
		MaterialHandler: handlers.NewMaterialHandler(db, uploadService, lectureCache, cfg.MaxFileSize, cfg.MaxFilesPerUpload, log),
		ShareHandler:    shareHandler,
		HealthHandler:   handlers.NewHealthHandler(db, cachePinger, cfg.S3Configured(), log),
		AllowedOrigins:  cfg.AllowedOrigins,
		Logger:          log,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
