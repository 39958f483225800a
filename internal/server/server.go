// Package server exposes the sandbox pipeline over HTTP.
package server

import (
	"net/http"
	"time"

	"execbox/internal/sandbox"
	"execbox/internal/server/controller"
	"execbox/internal/server/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string                     `yaml:"addr"`
	ReadTimeout  time.Duration              `yaml:"readTimeout"`
	WriteTimeout time.Duration              `yaml:"writeTimeout"`
	IdleTimeout  time.Duration              `yaml:"idleTimeout"`
	MaxBodyBytes int64                      `yaml:"maxBodyBytes"`
	RateLimit    middleware.RateLimitConfig `yaml:"rateLimit"`
}

// NewHandler builds the router. gatherer may be nil, which disables /metrics.
func NewHandler(cfg Config, service sandbox.Service, gatherer prometheus.Gatherer) http.Handler {
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimit))
	runController := controller.NewRunController(service, cfg.MaxBodyBytes)
	api.POST("/run", runController.Run)

	return router
}

// New builds the HTTP server around NewHandler.
func New(cfg Config, service sandbox.Service, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(cfg, service, gatherer),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
