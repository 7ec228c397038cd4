package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/reefwatch/internal/config"
	"github.com/dj-oyu/reefwatch/internal/coral"
	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/storage"
)

func main() {
	// Missing .env is fine: the environment and defaults still apply.
	_ = config.Load()

	cfg := coral.DefaultConfig()
	s3cfg := storage.S3ConfigFromEnv()

	var (
		logLevel string
		logColor bool
		logFile  string
	)

	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.ModelURL, "model", cfg.ModelURL, "Model server predict URL")
	flag.DurationVar(&cfg.ModelTimeout, "model-timeout", cfg.ModelTimeout, "Model request timeout")
	flag.StringVar(&cfg.UploadDir, "upload-dir", cfg.UploadDir, "Directory for uploaded images (local storage)")
	flag.IntVar(&cfg.MaxUploadMB, "max-upload-mb", cfg.MaxUploadMB, "Maximum upload size in MB")
	flag.StringVar(&cfg.Storage, "storage", cfg.Storage, "Upload storage: local or s3")
	flag.StringVar(&s3cfg.Bucket, "bucket", s3cfg.Bucket, "S3 bucket (storage=s3)")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the prediction cache (empty disables)")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Prediction cache TTL")
	flag.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Upload requests per minute per IP (0 disables)")
	flag.StringVar(&logLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", config.GetEnvBool("LOG_COLOR", true), "Enable colored log output")
	flag.StringVar(&logFile, "log-file", config.GetEnv("LOG_FILE", ""), "Also write logs to this rotated file")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, logger.Output(logFile), logColor)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	var store storage.Store
	switch cfg.Storage {
	case "s3":
		store, err = storage.NewS3Store(s3cfg)
	default:
		store, err = storage.NewLocalStore(cfg.UploadDir, "/static/uploads/")
	}
	if err != nil {
		log.Fatalf("Storage: %v", err)
	}

	var cache coral.Cache = coral.NopCache{}
	if cfg.RedisAddr != "" {
		rc := coral.NewRedisCache(coral.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		cache = rc
	}

	m := metrics.New()
	service := coral.NewService(coral.NewRemoteClassifier(cfg.ModelURL, cfg.ModelTimeout), cache, m)
	server := coral.NewServer(cfg, service, store, m)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger("HTTP", logger.WARN),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Main", "coralclassify listening on %s (model: %s, storage: %s)", cfg.Addr, cfg.ModelURL, cfg.Storage)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	case err := <-serveErr:
		logger.Error("Main", "HTTP server error: %v", err)
		exitCode = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}
	cancel()

	if c, ok := cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Main", "Close cache: %v", err)
		}
	}
	logger.Info("Main", "Server stopped")
	os.Exit(exitCode)
}
