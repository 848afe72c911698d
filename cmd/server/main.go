package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/api/rest"
	"github.com/baluhost/balupi/internal/api/websocket"
	"github.com/baluhost/balupi/internal/auth"
	"github.com/baluhost/balupi/internal/config"
	"github.com/baluhost/balupi/internal/handshake"
	"github.com/baluhost/balupi/internal/heartbeat"
	"github.com/baluhost/balupi/internal/inbox"
	"github.com/baluhost/balupi/internal/lifecycle"
	"github.com/baluhost/balupi/internal/naming"
	"github.com/baluhost/balupi/internal/power"
	"github.com/baluhost/balupi/internal/probe"
	"github.com/baluhost/balupi/internal/wake"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	configPath := os.Getenv("BALUPI_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	logger.Info("Config loaded successfully", zap.String("path", configPath))

	store, err := lifecycle.OpenStore(cfg.Storage.StatePath)
	if err != nil {
		logger.Fatal("Failed to open state store", zap.Error(err))
	}
	defer store.Close()

	// External collaborators.
	namer := naming.NewClient(
		logger,
		cfg.Naming.PiholeURL,
		cfg.Naming.GetPiholePassword(),
		cfg.Naming.Hostname,
		[]string{cfg.Host.IP, cfg.Sentinel.IP},
	)

	signaller, err := wake.NewSignaller(cfg.Host.MACAddress, cfg.Wake.BroadcastAddr, cfg.Wake.Port)
	if err != nil {
		logger.Fatal("Failed to configure wake signaller", zap.Error(err))
	}

	handshakeSecret := cfg.Handshake.GetHandshakeSecret()
	if handshakeSecret == "" {
		logger.Fatal("Handshake secret not configured",
			zap.String("env", cfg.Handshake.SecretEnv))
	}

	transport := inbox.NewHTTPTransport(cfg.Host.InboxURL, handshakeSecret, cfg.Inbox.TransferTimeout)
	relocator := inbox.NewRelocator(logger, cfg.Inbox.Dir, transport)
	snapshots := handshake.NewSnapshots(cfg.Storage.SnapshotDir)

	orchestrator, err := lifecycle.NewOrchestrator(
		logger, store, namer, signaller, relocator, snapshots,
		cfg.Host.IP, cfg.Sentinel.IP,
	)
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}

	// Signals feeding the heartbeat.
	prober := probe.New(cfg.Host.HealthURL, cfg.Heartbeat.ProbeTimeout)
	sampler := power.NewSampler(logger, cfg.Power.SampleURL, cfg.Power.SampleInterval, cfg.Power.StaleAfter)

	monitor := heartbeat.NewMonitor(logger, prober, sampler, orchestrator, heartbeat.Config{
		Interval:         cfg.Heartbeat.Interval,
		FastInterval:     cfg.Heartbeat.FastInterval,
		FailureThreshold: cfg.Heartbeat.FailureThreshold,
	})

	sequencer := wake.NewSequencer(logger, prober, orchestrator, monitor,
		cfg.Heartbeat.FastInterval, cfg.Wake.MaxAttempts)

	// Dashboard surface.
	jwtHandler := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.TokenTTL)
	authService := auth.NewService(logger, jwtHandler, cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash)

	wsHub := websocket.NewHub(logger, authService)
	go wsHub.Run()

	orchestrator.Subscribe(func(prev, next lifecycle.State) {
		wsHub.Broadcast(websocket.NewLifecycleStateMessage(string(next), string(prev)))
	})
	monitor.SetPublisher(func(v heartbeat.Verdict) {
		wsHub.Broadcast(websocket.NewHeartbeatMessage(v))
	})

	verifier := handshake.NewVerifier(handshakeSecret, cfg.Handshake.ReplayWindow, cfg.Handshake.ClockSkew)

	server := rest.NewServer(cfg, logger, orchestrator, verifier, snapshots,
		relocator, sequencer, authService, wsHub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sampler.Run(ctx)
	go monitor.Run(ctx)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start REST server", zap.Error(err))
	}

	logger.Info("BaluPi sentinel started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.String("hostname", cfg.Naming.Hostname),
		zap.String("host_ip", cfg.Host.IP))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("BaluPi sentinel stopped")
}
