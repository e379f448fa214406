package handler

import (
	"context"

	"riskpulse/internal/domain"
	"riskpulse/internal/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PipelineTrigger is the orchestrator surface the API layer needs.
type PipelineTrigger interface {
	TriggerCycle(ctx context.Context) domain.CycleResult
	GetCachedAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error)
}

// RiskScorer recomputes risk scores on demand.
type RiskScorer interface {
	ScoreAll(ctx context.Context) (map[string]float64, error)
}

type Handler struct {
	tracer   trace.Tracer
	pipeline PipelineTrigger
	scorer   RiskScorer
	store    store.AssetStore
}

func New(tracer trace.Tracer, pipeline PipelineTrigger, scorer RiskScorer, assetStore store.AssetStore) *Handler {
	return &Handler{
		tracer:   tracer,
		pipeline: pipeline,
		scorer:   scorer,
		store:    assetStore,
	}
}

// RegisterRoutes wires the API surface. Health stays unauthenticated; the
// /api group is guarded by APIKeyAuth when apiKey is set.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.POST("/pipeline/run", h.TriggerPipelineRun)
	api.GET("/assets", h.ListAssets)
	api.GET("/assets/:id/snapshot", h.GetAssetSnapshot)
	api.GET("/assets/:id/metrics", h.GetAssetMetrics)
	api.POST("/risk/score", h.TriggerRiskScoring)
	api.GET("/risk/scores", h.ListRiskScores)
}
