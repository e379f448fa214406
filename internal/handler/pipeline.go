package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerPipelineRun godoc
// @Summary      Trigger one ingestion cycle manually
// @Description  Runs a full ingestion cycle across all adapters and returns per-asset failure details. Returns 409 when a cycle is already running.
// @Tags         pipeline
// @Produce      json
// @Success      200  {object}  domain.CycleResult
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/pipeline/run [post]
func (h *Handler) TriggerPipelineRun(c *gin.Context) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion pipeline unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-pipeline-run")
	defer span.End()

	result := h.pipeline.TriggerCycle(ctx)
	if result.AlreadyRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "ingestion cycle already running"})
		return
	}
	c.JSON(http.StatusOK, result)
}
