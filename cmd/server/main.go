// Cloudstore Server
//
// Features:
// - Per-user file and directory tree over a flat object store
// - Multipart uploads, zip downloads, move and search
// - JWT sessions with revocation (PostgreSQL)
// - Prometheus metrics & structured logging (zap)
// - Per-user rate limiting
// - Storage backends: S3, local disk, memory
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/api"
	"github.com/fruitsalade/cloudstore/internal/auth"
	"github.com/fruitsalade/cloudstore/internal/config"
	"github.com/fruitsalade/cloudstore/internal/database"
	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/metrics"
	"github.com/fruitsalade/cloudstore/internal/quota"
	"github.com/fruitsalade/cloudstore/internal/resource"
	"github.com/fruitsalade/cloudstore/internal/storage/factory"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Cloudstore server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := database.MigrateUp(db); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	// Initialize storage
	backend, err := factory.NewBackend(ctx, cfg)
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	logging.Info("storage backend ready", zap.String("type", backend.Type()))

	authHandler := auth.New(db, cfg.JWTSecret, cfg.TokenTTL)
	resources := resource.NewService(vfs.New(backend), vfs.NewResolver(cfg.RootDirTemplate), auth.Identity{})
	rateLimiter := quota.NewRateLimiter(cfg.RequestsPerMinute)

	srv := api.NewServer(resources, authHandler, rateLimiter, cfg.MaxUploadSize)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("http shutdown incomplete", zap.Error(err))
		}
		metricsServer.Close()
	}()

	// Periodic cleanup of idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rateLimiter.Cleanup(24 * time.Hour); n > 0 {
					logging.Debug("rate limiter buckets evicted", zap.Int("count", n))
				}
			}
		}
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
}
