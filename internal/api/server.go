package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/database"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/events"
)

// EngineAPI defines what the server needs from the running engine
type EngineAPI interface {
	Thresholds() *engine.ThresholdController
	Status() map[string]interface{}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  []string
	ProductionMode  bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server represents the operator HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	engineAPI      EngineAPI
	decisions      *database.DecisionRepository // Nil when journaling is disabled
	thresholdState *database.RedisThresholdStateRepository
	eventBus       *events.EventBus
	wsHub          *WSHub
	logger         zerolog.Logger
}

// NewServer creates a new API server. decisions may be nil when the decision
// journal is disabled; the decision endpoints then return 503.
func NewServer(
	config ServerConfig,
	engineAPI EngineAPI,
	decisions *database.DecisionRepository,
	thresholdState *database.RedisThresholdStateRepository,
	eventBus *events.EventBus,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:         router,
		config:         config,
		engineAPI:      engineAPI,
		decisions:      decisions,
		thresholdState: thresholdState,
		eventBus:       eventBus,
		logger:         logger.With().Str("component", "APIServer").Logger(),
	}

	server.setupRoutes()

	// WebSocket hub for real-time event broadcasting
	server.wsHub = InitWebSocket(eventBus, server.logger)

	return server
}

// setupRoutes registers all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/thresholds", s.handleGetThresholds)
		api.POST("/thresholds/:class/reset", s.handleResetThreshold)
		api.GET("/decisions/recent", s.handleRecentDecisions)
		api.GET("/decisions/stats", s.handleDecisionStats)
		api.GET("/decisions/instrument/:instrument", s.handleInstrumentDecisions)
	}
}

// Start runs the HTTP server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		s.logger.Info().Msg("API server stopped")
		return nil
	}
}

// ParseOrigins splits a comma-separated origin list from configuration
func ParseOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:5173"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
