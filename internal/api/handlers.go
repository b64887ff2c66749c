package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"identity-sweeper/internal/sweep"
)

// a sweep walks every active account in the backend, give it room
const sweepRequestTimeout = 15 * time.Minute

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	status := http.StatusOK
	resp := gin.H{"status": "healthy"}

	if err := s.redis.Ping(ctx); err != nil {
		resp["redis"] = "unreachable"
		resp["status"] = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp["redis"] = "connected"
	}

	if s.db != nil {
		if err := s.db.Pool.Ping(ctx); err != nil {
			resp["database"] = "unreachable"
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp["database"] = "connected"
		}
	}

	c.JSON(status, resp)
}

// lastRun serves the most recent completed run. The shared redis slot wins
// so a run finished by the worker process is visible here too; in-memory
// history is the fallback.
func (s *Server) lastRun(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, sweep.LastReportKey); err == nil && cached != "" {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	if report := s.history.Last(); report != nil {
		c.JSON(http.StatusOK, report)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error": gin.H{
			"code":    "no_runs",
			"message": "no sweep has completed yet",
		},
	})
}

func (s *Server) previewSweep(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sweepRequestTimeout)
	defer cancel()

	report, err := s.sweeper.Preview(ctx)
	if err != nil {
		s.log.Error("sweep_preview_failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{
				"code":    "backend_error",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) triggerSweep(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sweepRequestTimeout)
	defer cancel()

	report, err := s.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, sweep.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "sweep_in_progress",
					"message": "a sweep is already running",
				},
			})
			return
		}
		s.log.Error("sweep_trigger_failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{
				"code":    "backend_error",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
