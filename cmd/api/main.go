// Package main is the entry point for the dashboard API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vitalpath/pulseboard/internal/api"
	"github.com/vitalpath/pulseboard/internal/auth"
	"github.com/vitalpath/pulseboard/internal/cache"
	"github.com/vitalpath/pulseboard/internal/config"
	"github.com/vitalpath/pulseboard/internal/dashboard"
	"github.com/vitalpath/pulseboard/internal/db"
	"github.com/vitalpath/pulseboard/internal/health"
	"github.com/vitalpath/pulseboard/internal/middleware"
	"github.com/vitalpath/pulseboard/internal/tracing"
)

const (
	serviceName  = "pulseboard-api"
	storeTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env vars take precedence)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Pulseboard Dashboard API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	summaryAttrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		summaryAttrs = append(summaryAttrs, k, v)
	}
	logger.Info("configuration loaded", summaryAttrs...)

	// Tracing is opt-in via OTEL env vars; disabled it is a no-op provider.
	samplingRate := 1.0
	if v := os.Getenv("OTEL_SAMPLING_RATE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			samplingRate = parsed
		}
	}
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      os.Getenv("OTEL_TRACING_ENABLED") == "true",
		Environment:  cfg.Env,
		ExporterType: os.Getenv("OTEL_EXPORTER_TYPE"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplingRate: samplingRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()

	client, err := db.Connect(connectCtx, cfg.MongoURI)
	if err != nil {
		logger.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(client); err != nil {
			logger.Error("failed to disconnect from MongoDB", "error", err)
		}
	}()
	store := dashboard.NewMongoStore(client.Database(cfg.MongoDatabase), storeTimeout)

	// The legacy migrated assessment store is optional; without it the
	// assessment merge runs on the live collections only.
	var legacyStore dashboard.Store
	var legacyChecker api.HealthChecker
	if cfg.LegacyMongoURI != "" {
		legacyClient, err := db.Connect(connectCtx, cfg.LegacyMongoURI)
		if err != nil {
			logger.Error("failed to connect to legacy MongoDB", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := db.Disconnect(legacyClient); err != nil {
				logger.Error("failed to disconnect from legacy MongoDB", "error", err)
			}
		}()
		legacyStore = dashboard.NewMongoStore(legacyClient.Database(cfg.LegacyMongoDatabase), storeTimeout)
		legacyChecker = health.NewMongoChecker(legacyClient)
		logger.Info("legacy assessment store enabled", "database", cfg.LegacyMongoDatabase)
	}

	// Redis backs both the aggregation cache and the rate limiter when
	// configured; otherwise both fall back to in-process state.
	var dashCache cache.Cache
	var rateStore middleware.RateLimitStore
	var cacheChecker api.HealthChecker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
		dashCache = cache.NewRedis(redisClient)
		rateStore = middleware.NewRedisRateLimitStore(redisClient).Store()
		cacheChecker = health.NewRedisChecker(redisClient)
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	} else {
		dashCache = cache.NewMemory()
		rateStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("redis not configured, using in-process cache and rate limiting")
	}

	httpMetrics := middleware.NewMetrics()
	dashMetrics := dashboard.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	if err := dashMetrics.Register(registry); err != nil {
		logger.Error("failed to register dashboard metrics", "error", err)
		os.Exit(1)
	}

	svc, err := dashboard.NewService(dashboard.Config{
		Store:   store,
		Legacy:  legacyStore,
		Cache:   dashCache,
		Metrics: dashMetrics,
		Offsets: dashboard.StaticOffsets{
			MinutesSpent:  cfg.MinutesSpentOffset,
			ScreeningTool: cfg.ScreeningToolOffset,
			Chatbot:       cfg.ChatbotOffset,
		},
		Timezone: cfg.DashboardTimezone,
		CacheTTL: time.Duration(cfg.CacheTTLMinutes) * time.Minute,
	})
	if err != nil {
		logger.Error("failed to create dashboard service", "error", err)
		os.Exit(1)
	}

	// Secret rotation: tokens signed with the previous secret stay valid
	// during a rollover window.
	var jwtService *auth.JWTService
	if prev := os.Getenv("JWT_SECRET_PREVIOUS"); prev != "" {
		jwtService = auth.NewJWTServiceWithRotation(cfg.JWTSecret, prev)
	} else {
		jwtService = auth.NewJWTService(cfg.JWTSecret)
	}

	// One origin allowlist covers both the CORS layer and the WebSocket
	// upgrade check.
	corsOrigins := []string{}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}

	dashHandlers := api.NewDashboardHandlers(svc)
	liveHandlers := api.NewLiveHandlers(svc, 0, corsOrigins)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:     health.NewMongoChecker(client),
		LegacyChecker: legacyChecker,
		CacheChecker:  cacheChecker,
	})

	authMW := middleware.Auth(jwtService)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// All dashboard routes require a bearer token.
	dashboardRoutes := map[string]http.HandlerFunc{
		"GET /dashboard/get-admin-panel-dashboard":    dashHandlers.AdminPanelDashboard,
		"GET /dashboard/get-Map-count":                dashHandlers.MapCount,
		"GET /dashboard/get-cadre-wise-count":         dashHandlers.CadreWiseCount,
		"GET /dashboard/get-module-usage-count":       dashHandlers.ModuleUsageCount,
		"GET /dashboard/get-leaderboard-count":        dashHandlers.LeaderboardCount,
		"GET /dashboard/get-subscriber-count":         dashHandlers.SubscriberCount,
		"GET /dashboard/get-visitor-count":            dashHandlers.VisitorCount,
		"GET /dashboard/get-assessment-count":         dashHandlers.AssessmentCount,
		"GET /dashboard/get-total-minute-spent-count": dashHandlers.TotalMinuteSpent,
		"GET /dashboard/get-screening-tool-count":     dashHandlers.ScreeningToolCount,
		"GET /dashboard/get-chat-bot-count":           dashHandlers.ChatbotCount,
		"GET /dashboard/get-query-count":              dashHandlers.QueryCount,
		"GET /dashboard/get-manage-tb-count":          dashHandlers.ManageTBCount,
		"GET /dashboard/get-chatbot-question-count":   dashHandlers.ChatbotQuestionCount,
		"GET /dashboard/get-app-opened-count/{type}":  dashHandlers.AppOpenedCount,
		"GET /dashboard/live":                         liveHandlers.Live,
	}
	for pattern, handlerFunc := range dashboardRoutes {
		mux.Handle(pattern, authMW(handlerFunc))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			api.WriteError(w, r, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		api.WriteSuccess(w, r, "pulseboard-api", map[string]string{"service": serviceName})
	})

	rateLimit := middleware.DefaultDashboardLimit()
	if cfg.RateLimitPerMinute > 0 {
		rateLimit = middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			WindowDuration:    time.Minute,
		}
	}

	// Middleware order matters: the request ID must exist before logging,
	// and rate limiting runs before logging so blocked requests still log
	// with their error code.
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   corsOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RateLimiter(rateStore, rateLimit, middleware.AdminKeyFunc(), httpMetrics)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	if cfg.Env != "production" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
