// Package server provides the HTTP server for the results bridge.
package server

import (
	"context"

	"cosmossdk.io/log"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ChapmaBeerbohm/crypticscore/bridge/handlers"
)

const (
	DefaultHTTPAddr = ":8090"
)

// Config holds server configuration
type Config struct {
	HTTPAddr  string
	JWTSecret []byte
}

// Server represents the HTTP server
type Server struct {
	config    *Config
	echo      *echo.Echo
	campaigns *handlers.CampaignHandlers
	health    *handlers.HealthChecker
	logger    log.Logger
}

// NewServer creates a server with its middleware and routes installed.
func NewServer(config *Config, campaigns *handlers.CampaignHandlers, health *handlers.HealthChecker, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		config:    config,
		echo:      e,
		campaigns: campaigns,
		health:    health,
		logger:    logger.With("module", "bridge-server"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Echo returns the underlying Echo instance for testing
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := s.config.HTTPAddr
	if addr == "" {
		addr = DefaultHTTPAddr
	}
	s.logger.Info("Starting HTTP server", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// setupMiddleware configures Echo middleware
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Public endpoints
	s.echo.GET("/health", s.health.HealthCheckHandler)
	s.echo.GET("/ready", s.health.ReadinessHandler)

	s.echo.GET("/campaigns", s.campaigns.ListHandler)
	s.echo.GET("/campaigns/:id", s.campaigns.GetHandler)
	s.echo.GET("/campaigns/:id/summary", s.campaigns.SummaryHandler)

	jwtConfig := echojwt.Config{
		SigningKey:    s.config.JWTSecret,
		SigningMethod: "HS256",
		NewClaimsFunc: handlers.NewClaims,
	}

	// Decryption spends the bridge account's credential, so it needs a token.
	s.echo.POST("/campaigns/:id/decrypt", s.campaigns.DecryptHandler, echojwt.WithConfig(jwtConfig))
}
