package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/api/handlers"
	"github.com/AmitAK1/missing-object-surveillance/internal/api/middleware"
	"github.com/AmitAK1/missing-object-surveillance/internal/config"
)

// Dependencies are the services the HTTP surface reads from. History and
// Stream may be nil, in which case their routes are not registered.
type Dependencies struct {
	Worker  handlers.SessionController
	History handlers.AlertHistory
	Stream  http.Handler
	Probes  map[string]handlers.Probe
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	alertsHandler  *handlers.AlertsHandler
	systemHandler  *handlers.SystemHandler
	stream         http.Handler
}

func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:         cfg,
		router:         gin.New(),
		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, deps.Probes),
		sessionHandler: handlers.NewSessionHandler(deps.Worker, cfg.SetupTimeout),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID),
		stream:         deps.Stream,
	}
	if deps.History != nil {
		s.alertsHandler = handlers.NewAlertsHandler(deps.History)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("🚀 Starting surveillance worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("🛑 Stopping surveillance worker API...")
	return s.server.Shutdown(ctx)
}
