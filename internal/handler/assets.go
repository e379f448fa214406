package handler

import (
	"net/http"
	"strconv"
	"time"

	"riskpulse/internal/domain"

	"github.com/gin-gonic/gin"
)

// ListAssets godoc
// @Summary      List all known assets
// @Tags         assets
// @Produce      json
// @Success      200  {array}   domain.AssetSnapshot
// @Failure      500  {object}  map[string]string
// @Router       /api/assets [get]
func (h *Handler) ListAssets(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-assets")
	defer span.End()

	assets, err := h.store.ListAssets(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assets)
}

// GetAssetSnapshot godoc
// @Summary      Get one asset's snapshot
// @Description  Served from cache when fresh, falling back to the store
// @Tags         assets
// @Produce      json
// @Param        id  path  string  true  "Asset ID"
// @Success      200  {object}  domain.AssetSnapshot
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/assets/{id}/snapshot [get]
func (h *Handler) GetAssetSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-asset-snapshot")
	defer span.End()

	assetID := c.Param("id")
	snap, err := h.pipeline.GetCachedAssetSnapshot(ctx, assetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown asset " + assetID})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetAssetMetrics godoc
// @Summary      Get metric history for one asset
// @Tags         assets
// @Produce      json
// @Param        id     path   string  true   "Asset ID"
// @Param        type   query  string  false  "Metric type"  default(price_usd)
// @Param        hours  query  int     false  "Lookback window in hours"  default(24)
// @Success      200  {array}   domain.MetricPoint
// @Failure      500  {object}  map[string]string
// @Router       /api/assets/{id}/metrics [get]
func (h *Handler) GetAssetMetrics(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-asset-metrics")
	defer span.End()

	metricType := domain.MetricType(c.DefaultQuery("type", string(domain.MetricPriceUSD)))
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}

	to := time.Now().UTC()
	points, err := h.store.QueryMetricHistory(ctx, c.Param("id"), metricType, to.Add(-time.Duration(hours)*time.Hour), to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if points == nil {
		points = []domain.MetricPoint{}
	}
	c.JSON(http.StatusOK, points)
}
