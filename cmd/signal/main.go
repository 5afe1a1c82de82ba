package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/internal/core/services"
	httphandlers "github.com/MeNameek/camerasystem/internal/handlers/http"
	"github.com/MeNameek/camerasystem/internal/infrastructure/distributed"
	"github.com/MeNameek/camerasystem/internal/infrastructure/middleware"
	"github.com/MeNameek/camerasystem/internal/infrastructure/monitoring"
	"github.com/MeNameek/camerasystem/internal/infrastructure/repositories"
	signalinfra "github.com/MeNameek/camerasystem/internal/infrastructure/signal"
	"github.com/MeNameek/camerasystem/pkg/config"
	"github.com/MeNameek/camerasystem/pkg/logger"
	"github.com/MeNameek/camerasystem/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// First existing file wins; with none, defaults plus env overrides apply.
	configPath := "configs/config.yaml"
	for _, path := range []string{
		os.Getenv("CAMERASYSTEM_CONFIG"),
		"configs/config.yaml",
		"/etc/camerasystem/config.yaml",
		"config.yaml",
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			configPath = path
			break
		}
	}

	cfg, cfgErr := config.Load(configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if cfgErr != nil {
		log.Fatalw("invalid configuration", "path", configPath, "error", cfgErr)
	}
	log.Infow("configuration loaded", "path", configPath)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.NewString()
	repoFactory := repositories.NewRepositoryFactory(cfg, instanceID, log)
	mirror := repoFactory.CreatePresenceMirror()

	wsServer := signalinfra.NewWebSocketServer(signalOptions(cfg), log)
	registry := services.NewRoomRegistry()

	relayOpts := services.RelayOptions{
		Codes:          services.NewRoomCodeGenerator(cfg.Rooms.CodeLength, cfg.Rooms.CodeAlphabet),
		Mirror:         mirror,
		ReservationTTL: cfg.Rooms.CodeReservationTTL,
		Logger:         log,
	}

	// Rooms on other instances are only known through the event bus.
	var directory ports.RoomDirectory
	if bus := repoFactory.CreateEventBus(); bus != nil {
		remote := distributed.NewRoomDirectory(distributed.DefaultDirectoryTTL, log)
		directory = remote
		relayOpts.Directory = remote
		relayOpts.Sinks = append(relayOpts.Sinks, bus)

		go func() {
			err := bus.Subscribe(ctx, remote.Apply)
			if err != nil && ctx.Err() == nil {
				log.Errorw("membership subscription stopped", "error", err)
			}
		}()
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := remote.Prune(); n > 0 {
						log.Infow("pruned stale remote rooms", "count", n)
					}
				}
			}
		}()
	}

	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
		relayOpts.Metrics = collector
		wsServer.SetMetrics(collector)
		go collector.Run(ctx, cfg.Monitoring.MetricsInterval, registry.Stats)
	}

	relay := services.NewMessageRelay(registry, wsServer, relayOpts)
	wsServer.SetRelay(relay)
	go relay.Run(ctx)

	healthChecker := monitoring.NewHealthChecker()
	if repoFactory.UsesRedis() {
		healthChecker.AddCheck(monitoring.HealthCheck{
			Name:  "redis",
			Check: repoFactory.HealthCheck,
		})
	}
	healthChecker.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(logger.NewContextLogger(log)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	router.GET(cfg.Signal.Path,
		middleware.NewWebSocketRateLimitMiddleware(cfg),
		gin.WrapF(wsServer.HandleWebSocket),
	)

	httphandlers.NewRoomHandler(relay, registry, directory, mirror, wsServer.ConnectionCount, log).SetupRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.LastStatus()
		c.JSON(http.StatusOK, gin.H{
			"status":      status.Status,
			"timestamp":   status.Timestamp,
			"uptime":      time.Since(startTime).String(),
			"instance_id": instanceID,
			"checks":      status.Checks,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status == monitoring.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// WriteTimeout is left unset: it would cut long-lived websocket
	// connections. The signaling server applies its own write deadlines.
	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling relay",
			"address", cfg.Server.Address,
			"path", cfg.Signal.Path,
			"instance_id", instanceID,
			"redis", repoFactory.UsesRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Hijacked websocket connections are not tracked by the http.Server.
	wsServer.Close()
	cancel()

	if err := mirror.Close(); err != nil {
		log.Errorw("error closing presence mirror", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}

	log.Info("signaling relay stopped")
}

func signalOptions(cfg *config.Config) signalinfra.Options {
	opts := signalinfra.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendQueueSize:  cfg.Signal.SendQueueSize,
		MaxMessageSize: cfg.Signal.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		opts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		opts.Burst = cfg.RateLimiting.WebSocket.Burst
		opts.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return opts
}
