package store

import (
	"context"
	"time"

	"riskpulse/internal/domain"
)

// AssetStore is the durable upsert target for assets, metrics, and risk
// scores. All writes are idempotent: snapshots merge by ID, metric points
// merge by (asset, type, timestamp), risk scores replace by asset.
type AssetStore interface {
	UpsertAssetSnapshot(ctx context.Context, snapshot domain.AssetSnapshot) error
	UpsertMetricPoint(ctx context.Context, point domain.MetricPoint) error
	UpsertMetricPoints(ctx context.Context, points []domain.MetricPoint) error
	QueryMetricHistory(ctx context.Context, assetID string, metricType domain.MetricType, from, to time.Time) ([]domain.MetricPoint, error)
	ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error)
	GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error)
	UpsertRiskScore(ctx context.Context, score domain.RiskScore) error
	LatestRiskScores(ctx context.Context) ([]domain.RiskScore, error)
}
