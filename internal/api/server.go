package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/jobs"
	"github.com/scenarr/scenarr/internal/metrics"
	"github.com/scenarr/scenarr/internal/queue"
	"github.com/scenarr/scenarr/internal/realtime"
	"github.com/scenarr/scenarr/internal/scheduler"
	"github.com/scenarr/scenarr/internal/subscriptions"
)

// SceneSearcher runs the scene-targeted acquisition path.
type SceneSearcher interface {
	SearchScene(ctx context.Context, sceneID string, dryRun bool) (jobs.SceneResult, error)
}

// TaskRunner exposes the scheduler to the API.
type TaskRunner interface {
	GetTasks() []scheduler.TaskInfo
	RunNow(name string) error
}

// Options configures the API server.
type Options struct {
	ListenAddr string
	APIKey     string
	Version    string
}

// Server represents the API server
type Server struct {
	opts      Options
	echo      *echo.Echo
	queue     *queue.Store
	subs      *subscriptions.Store
	scenes    SceneSearcher
	tasks     TaskRunner
	wsHub     *realtime.Hub
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new API server instance
func NewServer(opts Options, store *queue.Store, subs *subscriptions.Store, scenes SceneSearcher, tasks TaskRunner, hub *realtime.Hub, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		opts:      opts,
		echo:      e,
		queue:     store,
		subs:      subs,
		scenes:    scenes,
		tasks:     tasks,
		wsHub:     hub,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check (public)
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	protected := s.echo.Group("")
	if s.opts.APIKey != "" {
		protected.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-Api-Key,query:apikey",
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) == 1, nil
			},
		}))
	}

	if s.wsHub != nil {
		protected.GET("/ws", s.wsHub.WebSocketHandler)
	}

	api := protected.Group("/api/v1")

	// Queue endpoints
	api.GET("/queue", s.getQueue)
	api.GET("/queue/:id", s.getQueueItem)

	// Scene search
	api.POST("/scenes/:id/search", s.searchScene)

	// Subscription endpoints
	api.GET("/subscriptions", s.getSubscriptions)
	api.POST("/subscriptions", s.addSubscription)
	api.DELETE("/subscriptions/:id", s.removeSubscription)

	// System endpoints
	api.GET("/system/status", s.getSystemStatus)
	api.GET("/system/tasks", s.getSystemTasks)
	api.POST("/system/tasks/:name/run", s.runSystemTask)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins listening for requests and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("api listening")
		errCh <- s.echo.Start(s.opts.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// healthCheck returns server health status
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.opts.Version,
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
