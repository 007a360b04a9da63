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

	"subpromo/internal/cache"
	"subpromo/internal/catalog"
	"subpromo/internal/config"
	"subpromo/internal/database"
	"subpromo/internal/handler"
	"subpromo/internal/promo"
	"subpromo/internal/repository"
	"subpromo/internal/router"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting promo code API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if err := database.ApplyRedemptionLimit(ctx, pool, cfg.Promo.MaxUsesPerUser, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Cache. Redis being down at start only degrades reads.
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable at startup, serving without cache until it recovers")
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, logger)
	invalidator := cache.NewInvalidator(redisCache, cfg.Cache, logger)

	// Repositories
	promoRepo := repository.NewPromoCodeRepository(pool, cfg.Promo.RedeemMaxRetries, logger)
	planRepo := repository.NewPlanRepository(pool, logger)

	// Promo engine
	pipelineConfig := promo.DefaultPipelineConfig()
	pipelineConfig.MaxUsesPerUser = cfg.Promo.MaxUsesPerUser
	pipeline := promo.NewPipeline(pipelineConfig, logger)

	coordinator := promo.NewCoordinator(
		promoRepo,
		planRepo,
		redisCache,
		invalidator,
		pipeline,
		promo.NewCoordinatorConfig(cfg.Cache, cfg.Promo),
		logger,
	)

	// Catalog import
	importer := newImporter(ctx, cfg.Catalog, promoRepo, invalidator, logger)
	if cfg.Catalog.ImportOnStart && len(cfg.Catalog.Files) > 0 {
		report, err := importer.Import(ctx, cfg.Catalog.Files...)
		if err != nil {
			return fmt.Errorf("failed to import promo catalog: %w", err)
		}
		logger.Info().
			Int("imported", report.Imported).
			Int("rejected", report.Rejected).
			Msg("promo catalog imported at startup")
	}

	// HTTP handlers
	promoHandler := handler.NewPromoHandler(coordinator, logger)
	adminHandler := handler.NewAdminHandler(invalidator, importer, logger)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"postgres": handler.PingFunc(pool.Ping),
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, logger)

	mux := router.New(promoHandler, adminHandler, healthHandler, cfg.Auth.APIKey, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// newImporter builds the catalog importer, reading from S3 first when enabled
// and from the local file system otherwise.
func newImporter(ctx context.Context, cfg config.CatalogConfig, store repository.PromoCodeStore, invalidator catalog.Invalidator, logger zerolog.Logger) *catalog.Importer {
	fileLoader := catalog.NewFileLoader(logger)

	var s3Loader catalog.Loader
	if cfg.S3.Enabled {
		l, err := catalog.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			s3Loader = l
		}
	} else {
		logger.Info().Msg("using local file system for catalog files (S3 disabled)")
	}

	loader := catalog.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled, logger)
	return catalog.NewImporter(loader, store, invalidator, catalog.ImporterConfig{}, logger)
}
