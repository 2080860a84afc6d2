package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	httphandlers "livecast/internal/handlers/http"
	"livecast/internal/infrastructure/chat"
	"livecast/internal/infrastructure/messaging"
	"livecast/internal/infrastructure/middleware"
	"livecast/internal/infrastructure/monitoring"
	"livecast/internal/infrastructure/plans"
	"livecast/internal/infrastructure/recording"
	memoryrepo "livecast/internal/infrastructure/repositories/memory"
	redisrepo "livecast/internal/infrastructure/repositories/redis"
	"livecast/pkg/config"
	"livecast/pkg/logger"
	"livecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/livecast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livecast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repositories
	var (
		streamRepo   ports.StreamRepository
		sessionCache ports.SessionCache
		redisClient  *goredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		streamRepo = redisrepo.NewRedisStreamRepository(redisClient)
		sessionCache = redisrepo.NewRedisSessionCache(redisClient)
	} else {
		streamRepo = memoryrepo.NewMemoryStreamRepository()
		sessionCache = memoryrepo.NewMemorySessionCache()
		log.Warn("redis disabled, using in-memory repositories")
	}

	// Initialize plan service with configured overrides
	planOverrides := make(map[domain.UserID]plans.Limits, len(cfg.Plans.Overrides))
	for _, o := range cfg.Plans.Overrides {
		planOverrides[domain.UserID(o.UserID)] = plans.Limits{
			Premium:              o.Premium,
			MaxConcurrentStreams: o.MaxConcurrentStreams,
			MaxConcurrentViewers: o.MaxConcurrentViewers,
		}
	}
	planService := plans.NewStaticPlanService(plans.Limits{
		Premium:              cfg.Plans.DefaultPremium,
		MaxConcurrentStreams: cfg.Plans.DefaultMaxConcurrentStreams,
		MaxConcurrentViewers: cfg.Plans.DefaultMaxConcurrentViewers,
	}, planOverrides)

	// Initialize vendor backends
	recordingBackend := recording.NewHTTPClient(cfg.Recording.BaseURL, cfg.Recording.APIKey, cfg.Recording.Timeout)
	messagingBackend := messaging.NewHTTPClient(cfg.Messaging.BaseURL, cfg.Messaging.APIKey, cfg.Messaging.Timeout)

	// Initialize services
	metricsService := services.NewMetricsService(prometheus.DefaultRegisterer)
	tokenService := services.NewTokenService(cfg.RTC.AppID, cfg.RTC.RTCSecret, cfg.RTC.RTMSecret)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	guard := services.NewConcurrencyGuard(streamRepo, planService)
	recordingController := services.NewRecordingController(recordingBackend, log)
	notifier := services.NewStreamNotifier()
	lifecycleService := services.NewLifecycleService(
		streamRepo,
		sessionCache,
		planService,
		guard,
		tokenService,
		recordingController,
		metricsService,
		notifier,
		log,
		services.LifecycleConfig{
			TokenTTL:      cfg.RTC.TokenTTL,
			SessionTTL:    cfg.Sessions.TTL,
			ChannelPrefix: cfg.RTC.ChannelPrefix,
		},
	)

	// Start the viewer count reconciler
	reconciler := services.NewReconciler(lifecycleService, streamRepo, metricsService, cfg.Sessions.ReconcileInterval, log)
	reconciler.Start(context.Background())

	// Initialize health checks
	healthChecker := monitoring.NewHealthChecker()
	if redisClient != nil {
		healthChecker.AddCheck("redis", func(ctx context.Context) (bool, error) {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return false, err
			}
			return true, nil
		}, 2*time.Second)
	}

	// Initialize HTTP handlers
	streamHandler := httphandlers.NewStreamHandler(lifecycleService)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Setup stream routes with authentication. The rate limiter sits
	// behind auth so limits key on the account, not the address.
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	streamHandler.SetupRoutes(api)

	// Websocket chat relay; rooms tear down when their stream ends.
	if cfg.Chat.Enabled {
		chatGateway := chat.NewGateway(lifecycleService, messagingBackend, authService, cfg.Chat.MaxMessageBytes, log)
		notifier.OnEnded(chatGateway.CloseRoom)
		router.GET("/ws/chat/:id", chatGateway.HandleWS)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint backed by dependency checks
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		if status.Status != "healthy" {
			c.JSON(503, status)
			return
		}
		c.JSON(200, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Livecast API server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Livecast API server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	reconciler.Stop()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if redisClient != nil {
		if err := redisrepo.CloseRedisClient(redisClient); err != nil {
			log.Errorw("Error closing redis client", "error", err)
		}
	}

	log.Info("Livecast API server stopped")
}
