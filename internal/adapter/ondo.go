package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"riskpulse/internal/cache"
	"riskpulse/internal/domain"
	"riskpulse/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

// ondoAsset is the static metadata for one Ondo product. Yield is a flat
// 7-day APY on the 0-100 percent scale.
// TODO: source the APY from DefiLlama's yields API instead of this table.
type ondoAsset struct {
	ticker      string
	name        string
	description string
	sector      domain.Sector
	riskTier    domain.RiskTier
	apy         float64
}

var ondoCatalog = map[string]ondoAsset{
	"ousd": {
		ticker:      "OUSD",
		name:        "Ondo USD Yield",
		description: "Tokenized cash equivalent backed by short-term US Treasuries",
		sector:      domain.SectorTokenizedRWA,
		riskTier:    domain.TierYieldPlus,
		apy:         4.25,
	},
	"ohmydai": {
		ticker:      "OHMDAI",
		name:        "Ondo DAI Yield",
		description: "Tokenized DAI yield product backed by real-world assets",
		sector:      domain.SectorTokenizedRWA,
		riskTier:    domain.TierMarketBeta,
		apy:         5.1,
	},
	"ousg": {
		ticker:      "OUSG",
		name:        "Ondo Short-Term US Government Bond",
		description: "Tokenized short-term US Treasury bond fund",
		sector:      domain.SectorTokenizedRWA,
		riskTier:    domain.TierYieldPlus,
		apy:         4.8,
	},
}

// Ondo is a fixed-catalog adapter for Ondo Finance tokenized RWA products.
// Price history comes from CoinGecko under the same asset IDs.
type Ondo struct {
	client *apiClient
	tracer trace.Tracer
}

func NewOndo(tracer trace.Tracer, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration) *Ondo {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Ondo{
		client: newAPIClient("ondo", coingeckoBaseURL, limiter, store, cacheTTL),
		tracer: tracer,
	}
}

func (a *Ondo) Name() string { return "ondo" }

func (a *Ondo) Supports(assetID string) bool {
	_, ok := ondoCatalog[assetID]
	return ok
}

func (a *Ondo) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	snapshots := make([]domain.AssetSnapshot, 0, len(ondoCatalog))
	for assetID := range ondoCatalog {
		snap, err := a.GetAssetSnapshot(ctx, assetID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (a *Ondo) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	_, span := a.tracer.Start(ctx, "ondo.get-asset-snapshot")
	defer span.End()

	meta, ok := ondoCatalog[assetID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	return &domain.AssetSnapshot{
		ID:          assetID,
		Ticker:      meta.ticker,
		Name:        meta.name,
		Sector:      meta.sector,
		RiskTier:    meta.riskTier,
		LogoURL:     "https://assets.coingecko.com/coins/images/15681/large/ondo.png",
		Website:     "https://ondo.finance",
		Description: meta.description,
		IsActive:    true,
	}, nil
}

// GetAssetMetrics returns CoinGecko price and volume history for the range
// plus one current yield observation.
func (a *Ondo) GetAssetMetrics(ctx context.Context, assetID string, from, to time.Time) ([]domain.MetricPoint, error) {
	ctx, span := a.tracer.Start(ctx, "ondo.get-asset-metrics")
	defer span.End()

	meta, ok := ondoCatalog[assetID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	var raw struct {
		Prices       [][]float64 `json:"prices"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	params := map[string]string{
		"vs_currency": "usd",
		"from":        strconv.FormatInt(from.UTC().Unix(), 10),
		"to":          strconv.FormatInt(to.UTC().Unix(), 10),
	}
	if err := a.client.getJSON(ctx, "coins/"+assetID+"/market_chart/range", params, &raw); err != nil {
		return nil, fmt.Errorf("get metrics for %s: %w", assetID, err)
	}

	var points []domain.MetricPoint
	points = appendSeries(points, assetID, domain.MetricPriceUSD, raw.Prices)
	points = appendSeries(points, assetID, domain.MetricVolume24h, raw.TotalVolumes)
	points = append(points, domain.MetricPoint{
		AssetID:    assetID,
		MetricType: domain.MetricYield7dAPY,
		Value:      meta.apy,
		Timestamp:  time.Now().UTC().Truncate(time.Minute),
	})
	return points, nil
}
