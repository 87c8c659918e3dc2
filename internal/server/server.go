package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SolveWise/server/internal/core"
	"github.com/SolveWise/server/internal/solver/graph"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Config configures the HTTP surface.
type Config struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
	// MaxBodyBytes bounds POST bodies; base64 photos make up most of it.
	MaxBodyBytes int64            `envconfig:"HTTP_MAX_BODY_BYTES" default:"20971520"`
	Environment  core.Environment `ignored:"true"`
	// DefaultAPIKey is used when a request carries no X-Gemini-Api-Key.
	DefaultAPIKey string `ignored:"true"`
}

// HttpServer wraps the gin engine with graceful shutdown.
type HttpServer struct {
	cfg    Config
	engine *gin.Engine
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg Config, runner graph.Runner, history model.HistoryRepository) *HttpServer {
	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	h := &handlers{runner: runner, history: history}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		keyed := api.Group("", apiKeyMiddleware(cfg.DefaultAPIKey))
		keyed.POST("/solve", bodyLimit(cfg.MaxBodyBytes), h.solve)
		keyed.POST("/chart", bodyLimit(cfg.MaxBodyBytes), h.chart)
		keyed.GET("/models/current", h.currentModel)

		// history is scoped to the caller's key
		keyed.GET("/history", h.listHistory)
		keyed.GET("/history/:id", h.getHistory)
		keyed.DELETE("/history/:id", h.deleteHistory)
	}

	return &HttpServer{cfg: cfg, engine: engine}
}

// Handler exposes the engine, mainly for tests.
func (s *HttpServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("SolveWise HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logx.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
