package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/infrastructure/broadcaster"
	"vistahub/internal/infrastructure/monitoring"
	"vistahub/internal/infrastructure/webrtc"
	"vistahub/pkg/config"
	"vistahub/pkg/logger"

	"github.com/gin-gonic/gin"
	pionwebrtc "github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main wires a synthetic source, a per-viewer peer connection factory,
// and a HubClient/Coordinator/Reconnector triple into one broadcaster
// process that dials a hub's /ws/broadcaster endpoint and serves every
// viewer the hub assigns it.
//
// Grounded on the teacher's cmd/ingest/main.go for the process shell
// (config loading, zap logger, graceful shutdown, Gin metrics server)
// and on sfu.go for the WebRTC side, rewired from "accept mesh peers"
// to "dial one hub and serve its viewer roster".
func main() {
	hubURL := flag.String("hub-url", "ws://localhost:3000/ws/broadcaster", "WebSocket URL of the hub's broadcaster endpoint")
	metricsAddr := flag.String("metrics-address", ":9090", "address to serve /metrics on")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		os.Exit(2)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	geometry := domain.Geometry{Width: cfg.Source.Width, Height: cfg.Source.Height}
	source := webrtc.NewSyntheticSource(geometry, cfg.Source.FPS)
	defer source.Close()

	pcFactory := webrtc.NewPeerConnectionFactory(pcFactoryConfig(cfg))

	collector := monitoring.NewPrometheusCollector()

	hubClient := broadcaster.NewHubClient(*hubURL, geometry, nil, log)
	coordinator := broadcaster.NewCoordinator(source, pcFactory, hubClient, collector, log)
	hubClient.SetDispatcher(coordinator)
	defer coordinator.Close()

	reconnector := broadcaster.NewReconnector(hubClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	go reconnector.Run(ctx, connected)

	select {
	case <-connected:
		log.Infow("connected to hub", "url", *hubURL)
	case <-time.After(30 * time.Second):
		log.Warnw("still trying to reach hub after 30s", "url", *hubURL)
	}

	gin.SetMode(gin.ReleaseMode)
	ginRouter := gin.New()
	ginRouter.Use(gin.Logger())
	ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
	ginRouter.GET("/health", func(c *gin.Context) {
		if !hubClient.Connected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "connected"})
	})

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: ginRouter}
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("serving broadcaster metrics", "address", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("broadcaster metrics server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	cancel()
	hubClient.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info("broadcaster stopped")
}

func pcFactoryConfig(cfg *config.Config) webrtc.Config {
	iceServers := make([]pionwebrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, pionwebrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	wcfg := webrtc.Config{ICEServers: iceServers}
	wcfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	wcfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	return wcfg
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
