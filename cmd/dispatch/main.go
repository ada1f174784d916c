package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richxcame/roadside-dispatch/internal/dispatch"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/matching"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/clock"
	"github.com/richxcame/roadside-dispatch/pkg/common"
	"github.com/richxcame/roadside-dispatch/pkg/config"
	"github.com/richxcame/roadside-dispatch/pkg/database"
	"github.com/richxcame/roadside-dispatch/pkg/errors"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/richxcame/roadside-dispatch/pkg/jwtkeys"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"github.com/richxcame/roadside-dispatch/pkg/middleware"
	"github.com/richxcame/roadside-dispatch/pkg/ratelimit"
	redisclient "github.com/richxcame/roadside-dispatch/pkg/redis"
	"github.com/richxcame/roadside-dispatch/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName = "dispatch-service"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	defer cfg.Close()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting dispatch service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	sentryConfig := errors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	sentryConfig.Release = version
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	tracerEnabled := os.Getenv("OTEL_ENABLED") == "true"
	if tracerEnabled {
		tracerCfg := tracing.Config{
			ServiceName:    os.Getenv("OTEL_SERVICE_NAME"),
			ServiceVersion: os.Getenv("OTEL_SERVICE_VERSION"),
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:        true,
		}
		tp, err := tracing.InitTracer(tracerCfg, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	db, err := database.NewPostgresPool(&cfg.Database, cfg.Timeout.DatabaseQueryTimeout)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()

	busCfg := eventbus.DefaultConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		busCfg.URL = url
	}
	bus, err := eventbus.New(busCfg)
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()

	incidentStore := incidents.NewStore(db)
	offerStore := offers.NewStore(db)
	vendorDir := vendors.NewDirectory(db)
	geoIndex := vendors.NewGeoIndex(redisClient.Client)
	matcher := matching.NewMatcher(geoIndex, vendorDir)
	configProvider := matchconfig.NewProvider(db, redisClient)
	systemClock := clock.Real{}

	engine := dispatch.NewEngine(incidentStore, vendorDir, offerStore, matcher, configProvider, bus, systemClock)

	if err := bus.Subscribe(rootCtx, eventbus.SubjectIncidentCreated, "dispatch-engine", func(ctx context.Context, event *eventbus.Event) error {
		var data eventbus.IncidentCreatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			logger.Error("failed to decode incident created event", zap.String("event_id", event.ID), zap.Error(err))
			return err
		}
		return engine.Dispatch(ctx, data.IncidentID)
	}); err != nil {
		logger.Fatal("Failed to subscribe to incident created events", zap.Error(err))
	}

	sweeper := offers.NewSweeper(offerStore, bus, systemClock)
	go sweeper.Start(rootCtx)
	defer sweeper.Stop()

	arrivalMonitor := dispatch.NewArrivalMonitor(engine, incidentStore, vendorDir)
	go arrivalMonitor.Start(rootCtx)
	defer arrivalMonitor.Stop()

	handler := dispatch.NewHandler(engine, incidentStore, bus)

	limiter := ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)

	jwtProvider, err := jwtkeys.NewManagerFromConfig(rootCtx, cfg.JWT, true)
	if err != nil {
		logger.Fatal("Failed to initialize JWT key manager", zap.Error(err))
	}
	jwtProvider.StartAutoRefresh(rootCtx, time.Duration(cfg.JWT.RefreshMinutes)*time.Minute)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(cfg.Timeout.DefaultRequestTimeoutDuration()))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.SanitizeRequest())
	router.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	if tracerEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/health/live", common.LivenessProbe(serviceName, version))

	healthChecks := map[string]func() error{
		"database": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		},
		"redis": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Client.Ping(ctx).Err()
		},
	}
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, healthChecks))

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, jwtProvider)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dispatch service...")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
