package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"identity-sweeper/internal/config"
	"identity-sweeper/internal/db"
	"identity-sweeper/internal/redis"
	"identity-sweeper/internal/sweep"
)

type Server struct {
	log     *slog.Logger
	cfg     config.Config
	db      *db.DB // nil in rest mode
	redis   *redis.Client
	sweeper *sweep.Sweeper
	runner  *sweep.Runner
	history *sweep.History
	router  *gin.Engine
}

func NewServer(log *slog.Logger, cfg config.Config, dbConn *db.DB, redisClient *redis.Client, sweeper *sweep.Sweeper, runner *sweep.Runner, history *sweep.History) *Server {
	s := &Server{
		log:     log,
		cfg:     cfg,
		db:      dbConn,
		redis:   redisClient,
		sweeper: sweeper,
		runner:  runner,
		history: history,
		router:  gin.New(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/sweep/last", s.lastRun)

		admin := v1.Group("/admin")
		admin.Use(s.adminAuthMiddleware())
		{
			admin.GET("/sweep/preview", s.previewSweep)
			admin.POST("/sweep", s.triggerSweep)
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
