package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerRiskScoring godoc
// @Summary      Recompute risk scores for all assets
// @Description  Runs one scoring pass over persisted metric history and returns the scored assets
// @Tags         risk
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/risk/score [post]
func (h *Handler) TriggerRiskScoring(c *gin.Context) {
	if h.scorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk scoring unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-risk-scoring")
	defer span.End()

	scores, err := h.scorer.ScoreAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scored": len(scores), "scores": scores})
}

// ListRiskScores godoc
// @Summary      Latest persisted risk score per asset
// @Tags         risk
// @Produce      json
// @Success      200  {array}   domain.RiskScore
// @Failure      500  {object}  map[string]string
// @Router       /api/risk/scores [get]
func (h *Handler) ListRiskScores(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-risk-scores")
	defer span.End()

	scores, err := h.store.LatestRiskScores(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scores)
}
