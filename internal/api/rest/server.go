package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/api/websocket"
	"github.com/baluhost/balupi/internal/auth"
	"github.com/baluhost/balupi/internal/config"
	"github.com/baluhost/balupi/internal/handshake"
	"github.com/baluhost/balupi/internal/inbox"
	"github.com/baluhost/balupi/internal/lifecycle"
	"github.com/baluhost/balupi/internal/wake"
)

// Server exposes the sentinel's HTTP surface: the authenticated handshake
// endpoints for the host, the read-only status surface for the dashboard
// and the manual wake entry point.
type Server struct {
	router       *gin.Engine
	logger       *zap.Logger
	server       *http.Server
	orchestrator *lifecycle.Orchestrator
	verifier     *handshake.Verifier
	snapshots    *handshake.Snapshots
	relocator    *inbox.Relocator
	sequencer    *wake.Sequencer
	authService  *auth.Service
	wsHub        *websocket.Hub
	// shutdownGrace is the window between acknowledging going-offline and
	// finalizing the offline state; coming-online within it aborts.
	shutdownGrace time.Duration
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	orchestrator *lifecycle.Orchestrator,
	verifier *handshake.Verifier,
	snapshots *handshake.Snapshots,
	relocator *inbox.Relocator,
	sequencer *wake.Sequencer,
	authService *auth.Service,
	wsHub *websocket.Hub,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:        gin.New(),
		logger:        logger,
		orchestrator:  orchestrator,
		verifier:      verifier,
		snapshots:     snapshots,
		relocator:     relocator,
		sequencer:     sequencer,
		authService:   authService,
		wsHub:         wsHub,
		shutdownGrace: cfg.Wake.ShutdownGrace,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// The manual wake entry point blocks for up to the full attempt
		// budget, so the write timeout must cover it.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		v1.POST("/auth/login", s.login)

		// ==================== HANDSHAKE (HMAC PROOF) ====================
		hs := v1.Group("/handshake")
		hs.Use(s.ProofMiddleware())
		{
			hs.POST("/host-going-offline", s.hostGoingOffline)
			hs.POST("/host-coming-online", s.hostComingOnline)
		}

		// ==================== READ-ONLY STATUS (BEARER) ====================
		status := v1.Group("/handshake")
		status.Use(s.authService.Middleware())
		{
			status.GET("/status", s.handshakeStatus)
			status.GET("/snapshot", s.latestSnapshot)
		}

		// ==================== HOST CONTROL (BEARER) ====================
		host := v1.Group("/host")
		host.Use(s.authService.Middleware())
		{
			host.POST("/wake", s.wakeHost)
		}

		// ==================== WEBSOCKET (AUTH VIA FIRST MESSAGE) ====================
		v1.GET("/ws/live", s.wsLiveConnection)
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
