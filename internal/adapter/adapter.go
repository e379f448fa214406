package adapter

import (
	"context"
	"time"

	"riskpulse/internal/domain"
)

// SourceAdapter translates one upstream provider's data into the canonical
// model. Provider-specific request/response shapes stay fully inside the
// adapter; only canonical records cross this boundary.
//
// GetAssetSnapshot fails with domain.ErrUnsupportedAsset for assets outside
// the adapter's catalog and with a transient error once the rate limiter's
// retry budget is exhausted. GetAssetMetrics returns an empty slice, not an
// error, when the provider has no data in range.
type SourceAdapter interface {
	Name() string
	Supports(assetID string) bool
	GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error)
	GetAssetMetrics(ctx context.Context, assetID string, from, to time.Time) ([]domain.MetricPoint, error)
	ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error)
}

// Registry maps asset IDs to the adapter that owns them. It is resolved once
// at startup from the registered adapters, in registration order: the first
// adapter claiming an asset wins, so fixed-catalog adapters register before
// the large-catalog catch-all.
type Registry struct {
	adapters []SourceAdapter
}

func NewRegistry(adapters ...SourceAdapter) *Registry {
	return &Registry{adapters: adapters}
}

// Resolve returns the adapter owning assetID, if any.
func (r *Registry) Resolve(assetID string) (SourceAdapter, bool) {
	for _, a := range r.adapters {
		if a.Supports(assetID) {
			return a, true
		}
	}
	return nil, false
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []SourceAdapter {
	return r.adapters
}
