package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krai-project/krai/pkg/database"
	"github.com/krai-project/krai/pkg/version"
)

// handleHealth handles GET /health: liveness plus DB, object-store, and
// AI-service reachability (SPEC_FULL.md section 6, adapted from the
// teacher's healthHandler in pkg/api/server.go and cmd/tarsy/main.go's own
// /health wiring).
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
		Checks:  make(map[string]string),
	}

	dbHealth, err := database.Health(ctx, s.pool)
	resp.Database = dbHealth
	if err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = err.Error()
	}

	if s.objectStore != nil {
		if err := s.objectStore.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.ObjectStore = "unhealthy"
			resp.Checks["object_store"] = err.Error()
		} else {
			resp.ObjectStore = "healthy"
		}
	}

	if s.aiService != nil {
		if err := s.aiService.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.AIService = "unhealthy"
			resp.Checks["ai_service"] = err.Error()
		} else {
			resp.AIService = "healthy"
		}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
