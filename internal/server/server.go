// Package server exposes the query surface over HTTP as JSON.
package server

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"goride/internal/locator"
	"goride/internal/metrics"
	"goride/internal/planner"
	"goride/internal/storage"
)

type Server struct {
	app     *fiber.App
	store   *storage.Store
	locator *locator.Locator
	planner *planner.Planner
	metrics *metrics.Collector
	logger  *slog.Logger
	search  planner.Options
}

func New(store *storage.Store, loc *locator.Locator, pl *planner.Planner, collector *metrics.Collector, logger *slog.Logger, search planner.Options) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "goride",
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          30 * time.Second,
		}),
		store:   store,
		locator: loc,
		planner: pl,
		metrics: collector,
		logger:  logger,
		search:  search,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(s.requestLogger)

	s.app.Get("/health", s.handleHealth)

	v1 := s.app.Group("/v1")
	v1.Get("/plan", s.handlePlan)
	v1.Get("/stops/nearby", s.handleNearbyStops)
	v1.Get("/stops/:id/departures", s.handleDepartures)
	v1.Get("/stops/:id", s.handleStop)

	if s.metrics != nil {
		promHandler := fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			promHandler(c.Context())
			return nil
		})
	}
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	route := c.Route().Path
	s.logger.Info("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start).Round(time.Microsecond))
	if s.metrics != nil {
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	return err
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
