// Package api exposes live sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/otherjamesbrown/penf-live/pkg/buildinfo"
	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// DefaultServiceName names the service in traces and /version.
const DefaultServiceName = "penf-live"

// HealthFunc reports the state of the item mirror database.
type HealthFunc func(ctx context.Context) *db.HealthStatus

// Config wires the API to its collaborators. Manager is required.
type Config struct {
	ServiceName string
	Manager     *live.Manager

	// Matcher serves stateless detection. Defaults to the built-in rules.
	Matcher *phrases.Matcher

	// Gatherer backs /metrics. Defaults to the Prometheus default registry.
	Gatherer prometheus.Gatherer

	// Health, when set, is included in /healthz.
	Health HealthFunc

	// Tracing enables the otelgin middleware.
	Tracing bool

	Logger logging.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	serviceName string
	manager     *live.Manager
	matcher     *phrases.Matcher
	health      HealthFunc
	logger      logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer creates the handler set.
func NewServer(cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Matcher == nil {
		cfg.Matcher = phrases.MustNewMatcher()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Server{
		serviceName: cfg.ServiceName,
		manager:     cfg.Manager,
		matcher:     cfg.Matcher,
		health:      cfg.Health,
		logger:      cfg.Logger.With(logging.F("component", "api")),
		done:        make(chan struct{}),
	}
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg Config) (*gin.Engine, *Server) {
	srv := NewServer(cfg)
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.Tracing {
		router.Use(otelgin.Middleware(srv.serviceName))
	}
	router.Use(Recovery(srv.logger))
	router.Use(RequestID())
	router.Use(Logger(srv.logger))

	router.GET("/healthz", srv.Healthz)
	router.GET("/version", buildinfo.Handler(srv.serviceName))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.POST("/detect", srv.Detect)

		sessions := v1.Group("/sessions")
		sessions.POST("", srv.CreateSession)
		sessions.GET("", srv.ListSessions)
		sessions.DELETE("/:id", srv.CloseSession)
		sessions.POST("/:id/segments", srv.IngestSegment)
		sessions.GET("/:id/status", srv.SessionStatus)
		sessions.GET("/:id/events", srv.StreamEvents)
		sessions.POST("/:id/flush", srv.FlushSession)
		sessions.POST("/:id/reset", srv.ResetSession)

		sessions.GET("/:id/items", srv.ListItems)
		sessions.GET("/:id/items/grouped", srv.GroupedItems)
		sessions.GET("/:id/items/:itemID", srv.GetItem)
		sessions.PATCH("/:id/items/:itemID", srv.UpdateItem)
		sessions.DELETE("/:id/items/:itemID", srv.RemoveItem)
		sessions.POST("/:id/items/:itemID/confirm", srv.ConfirmItem)
		sessions.POST("/:id/items/:itemID/dismiss", srv.DismissItem)
		sessions.POST("/:id/items/:itemID/retry", srv.RetryItem)
	}

	return router, srv
}

// Shutdown ends open event streams. Call it before http.Server.Shutdown.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Healthz reports liveness and, when configured, database health.
func (s *Server) Healthz(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"sessions": len(s.manager.List()),
	}
	if s.health == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	hs := s.health(c.Request.Context())
	body["database"] = hs
	if !hs.Healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// session resolves the :id path parameter, writing the error response when
// the session does not exist.
func (s *Server) session(c *gin.Context) (*live.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return sess, true
}
