package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/riftline/rift-rewind/internal/api"
	"github.com/riftline/rift-rewind/internal/api/handlers"
	"github.com/riftline/rift-rewind/internal/api/middleware"
	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/riftline/rift-rewind/internal/rewind"
	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/riftline/rift-rewind/internal/services"
	"github.com/riftline/rift-rewind/internal/usage"
	"github.com/riftline/rift-rewind/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logrus.StandardLogger()

	if len(cfg.RiotAPIKeys) == 0 {
		logrus.Fatal("RIOT_API_KEYS must contain at least one key")
	}

	// Cache: disk tier plus a fast tier (Redis when configured, in-process otherwise)
	diskTier, err := cache.NewDiskTier(cfg.CacheDir, logger)
	if err != nil {
		logrus.Fatalf("Failed to open disk cache: %v", err)
	}
	var fastTier cache.FastTier
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		fastTier = cache.NewRedisTier(redisClient, logger)
		logrus.Info("Using Redis fast cache tier")
	} else {
		fastTier = cache.NewMemoryTier(cfg.CacheMemoryCapacity)
	}
	layered := cache.NewLayered(fastTier, diskTier, logger)

	// Usage monitor, wired to the cache's hit callback
	monitor := usage.NewMonitor(cfg.RequestsPerMinute, cfg.UsageAlertPercent, cfg.UsageStatsPath, cfg.UsagePersistEvery, logger)
	layered.OnHit(func(tier string) {
		monitor.Record("", "cache:"+tier, 0, true, 0)
	})

	// Riot API consumption core
	keyring := riot.NewKeyring(cfg.RiotAPIKeys, cfg.KeyErrorThreshold, cfg.KeyCooldown, logger)
	resolver := riot.NewResolver(cfg.DefaultPlatform, cfg.DefaultRegion)
	scheduler := riot.NewScheduler(riot.SchedulerConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
		RequestTimeout:    cfg.RequestTimeout,
		RetryAfterDefault: cfg.RetryAfterDefault,
		BreakerThreshold:  cfg.CircuitBreakerThreshold,
	}, resolver, keyring, monitor, logger)
	scheduler.Start()
	defer scheduler.Stop()

	riotClient := riot.NewClient(scheduler, layered, logger)

	// Season aggregator
	queue := 0
	if cfg.RankedQueueOnly {
		queue = 420 // ranked solo
	}
	aggregator := rewind.NewAggregator(riotClient, rewind.AggregatorConfig{
		PageSize:        cfg.MatchPageSize,
		OutOfWindowStop: cfg.OutOfWindowStop,
		Queue:           queue,
	}, logger)

	// Background housekeeping
	if cfg.EnableMaintenanceJobs {
		maintenance := services.NewMaintenanceService(layered, monitor, logger)
		if err := maintenance.Start(); err != nil {
			logrus.Errorf("Failed to start maintenance service: %v", err)
		}
		defer maintenance.Stop()
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, aggregator, monitor, keyring, layered, cfg, logger)

	// Setup server. Rewind runs can take minutes on a cold cache, hence the
	// long write timeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
