package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/services"
	"vistahub/internal/infrastructure/eventhub"
	"vistahub/internal/infrastructure/middleware"
	"vistahub/internal/infrastructure/monitoring"
	"vistahub/internal/infrastructure/signaling"
	"vistahub/pkg/config"
	"vistahub/pkg/logger"
	"vistahub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main wires the Session Registry, Signal Router, Event Hub, and
// signaling.Server into one process and serves the three WebSocket
// upgrade routes (broadcaster/viewer/admin) plus health and metrics
// endpoints over HTTP.
//
// Grounded on the teacher's cmd/ingest/main.go: same config-path probing,
// zap logger construction, graceful-shutdown signal handling, and Gin
// middleware stack, rewired from the teacher's stream/auth HTTP API to
// this repository's three signaling upgrade routes.
func main() {
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	staleTTLSeconds := flag.Int("stale-ttl-seconds", 0, "viewer roster stale-record TTL in seconds (overrides config)")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *port > 0 {
		cfg.Hub.Address = portAddress(*port)
	}
	if *staleTTLSeconds > 0 {
		cfg.Registry.StaleTTL = time.Duration(*staleTTLSeconds) * time.Second
	}

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		os.Exit(2)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.DefaultConfig())
	if err != nil {
		log.Warnw("tracing disabled: failed to initialize tracer provider", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	onFatal := func(reason string) {
		log.Errorw("registry observed a state its invariants say cannot happen", "reason", reason)
		os.Exit(3)
	}

	hub := eventhub.NewHub(cfg.Registry.RegionCoalesceWindow, log)
	defer hub.Close()

	signalingServer := signaling.NewServer(hub, log)
	registry := services.NewRegistry(signalingServer.RosterObserver(), cfg.Registry.StaleTTL, onFatal, log)
	defer registry.Close()
	router := services.NewRouter(registry, signalingServer, log)
	signalingServer.BindRegistry(registry)
	signalingServer.BindRouter(router)

	collector := monitoring.NewPrometheusCollector()
	signalingServer.BindMetrics(collector)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddRegistryCheck(registry, 30*time.Second, 2*time.Second)
	healthChecker.AddBroadcasterPresenceCheck(registry, 30*time.Second, 2*time.Second)

	livenessChecker := monitoring.NewHealthChecker()
	livenessChecker.AddRegistryCheck(registry, 30*time.Second, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Logger())
	ginRouter.Use(middleware.RecoveryMiddleware(log))
	ginRouter.Use(middleware.ErrorHandlerMiddleware(log))
	ginRouter.Use(middleware.TracingMiddleware())
	ginRouter.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	ginRouter.GET("/ws/broadcaster", func(c *gin.Context) {
		signalingServer.HandleWebSocket(c.Writer, c.Request, domain.RoleBroadcaster)
	})
	ginRouter.GET("/ws/viewer", func(c *gin.Context) {
		signalingServer.HandleWebSocket(c.Writer, c.Request, domain.RoleViewer)
	})
	ginRouter.GET("/ws/admin", func(c *gin.Context) {
		signalingServer.HandleWebSocket(c.Writer, c.Request, domain.RoleAdmin)
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		status := livenessChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	ginRouter.GET("/ready", func(c *gin.Context) {
		if !healthChecker.IsReady(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Monitoring.PrometheusEnabled {
		ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Hub.Address,
		Handler:      ginRouter,
		ReadTimeout:  cfg.Hub.ReadTimeout,
		WriteTimeout: cfg.Hub.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting hub", "address", cfg.Hub.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("hub server failed", "error", err)
		os.Exit(2)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Hub.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	log.Info("hub stopped")
}

func loadConfig(explicitPath string) *config.Config {
	candidates := []string{explicitPath}
	if explicitPath == "" {
		candidates = []string{"configs/config.yaml", "./configs/config.yaml", "/root/configs/config.yaml", "config.yaml"}
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if cfg, err := config.Load(path); err == nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

func portAddress(port int) string {
	return ":" + strconv.Itoa(port)
}
