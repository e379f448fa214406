package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"riskpulse/internal/cache"
	"riskpulse/internal/domain"
	"riskpulse/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const hyperliquidBaseURL = "https://api.hyperliquid.xyz"

// The exchange lists many more coins; these majors are tracked unless the
// deployment configures its own list.
var defaultHyperliquidCoins = []string{"BTC", "ETH", "SOL"}

// Hyperliquid adapts the perp exchange's REST info endpoint. All queries are
// POSTs against a single URL discriminated by a "type" field; numeric values
// arrive as JSON strings. Funding rates are converted from the exchange's
// fractional form to the 0-100 percent scale.
type Hyperliquid struct {
	client *apiClient
	tracer trace.Tracer

	// catalog maps canonical asset IDs (hl-btc) to perp coin symbols (BTC).
	catalog map[string]string
}

func NewHyperliquid(tracer trace.Tracer, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration, coins ...string) *Hyperliquid {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if len(coins) == 0 {
		coins = defaultHyperliquidCoins
	}
	catalog := make(map[string]string, len(coins))
	for _, coin := range coins {
		coin = strings.ToUpper(strings.TrimSpace(coin))
		if coin == "" {
			continue
		}
		catalog["hl-"+strings.ToLower(coin)] = coin
	}
	return &Hyperliquid{
		client:  newAPIClient("hyperliquid", hyperliquidBaseURL, limiter, store, cacheTTL),
		tracer:  tracer,
		catalog: catalog,
	}
}

func (a *Hyperliquid) Name() string { return "hyperliquid" }

func (a *Hyperliquid) Supports(assetID string) bool {
	_, ok := a.catalog[assetID]
	return ok
}

func (a *Hyperliquid) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	snapshots := make([]domain.AssetSnapshot, 0, len(a.catalog))
	for assetID := range a.catalog {
		snap, err := a.GetAssetSnapshot(ctx, assetID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (a *Hyperliquid) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	_, span := a.tracer.Start(ctx, "hyperliquid.get-asset-snapshot")
	defer span.End()

	coin, ok := a.catalog[assetID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	return &domain.AssetSnapshot{
		ID:          assetID,
		Ticker:      coin + "-USD",
		Name:        coin + " Perpetual (Hyperliquid)",
		Sector:      domain.SectorDerivatives,
		RiskTier:    domain.TierTacticalEdge,
		Website:     "https://hyperliquid.xyz",
		Description: fmt.Sprintf("%s perpetual futures contract on the Hyperliquid exchange", coin),
		IsActive:    true,
	}, nil
}

type hlInfoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

type hlMid struct {
	Coin string `json:"coin"`
	Mid  string `json:"mid"`
}

type hlAssetCtx struct {
	Name    string `json:"name"`
	Funding struct {
		PrevFundingRate string `json:"prevFundingRate"`
	} `json:"funding"`
}

type hlFundingEntry struct {
	Time        int64  `json:"time"`
	FundingRate string `json:"fundingRate"`
}

// GetAssetMetrics returns funding-rate history in range plus current price
// and funding observations.
func (a *Hyperliquid) GetAssetMetrics(ctx context.Context, assetID string, from, to time.Time) ([]domain.MetricPoint, error) {
	ctx, span := a.tracer.Start(ctx, "hyperliquid.get-asset-metrics")
	defer span.End()

	coin, ok := a.catalog[assetID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	var points []domain.MetricPoint

	history, err := a.fundingHistory(ctx, coin)
	if err != nil {
		return nil, fmt.Errorf("funding history for %s: %w", assetID, err)
	}
	for _, entry := range history {
		ts := time.UnixMilli(entry.Time).UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		rate, err := strconv.ParseFloat(entry.FundingRate, 64)
		if err != nil {
			continue
		}
		points = append(points, domain.MetricPoint{
			AssetID:    assetID,
			MetricType: domain.MetricFundingRate,
			Value:      rate * 100,
			Timestamp:  ts,
		})
	}

	now := time.Now().UTC().Truncate(time.Minute)

	if price, ok, err := a.currentMid(ctx, coin); err != nil {
		return nil, fmt.Errorf("mid price for %s: %w", assetID, err)
	} else if ok {
		points = append(points, domain.MetricPoint{
			AssetID:    assetID,
			MetricType: domain.MetricPriceUSD,
			Value:      price,
			Timestamp:  now,
		})
	}

	if rate, ok, err := a.currentFunding(ctx, coin); err != nil {
		return nil, fmt.Errorf("funding rate for %s: %w", assetID, err)
	} else if ok {
		points = append(points, domain.MetricPoint{
			AssetID:    assetID,
			MetricType: domain.MetricFundingRate,
			Value:      rate,
			Timestamp:  now,
		})
	}

	return points, nil
}

func (a *Hyperliquid) fundingHistory(ctx context.Context, coin string) ([]hlFundingEntry, error) {
	var entries []hlFundingEntry
	err := a.client.postJSON(ctx, "info", hlInfoRequest{Type: "fundingHistory", Coin: coin}, &entries)
	return entries, err
}

func (a *Hyperliquid) currentMid(ctx context.Context, coin string) (float64, bool, error) {
	var mids []hlMid
	if err := a.client.postJSON(ctx, "info", hlInfoRequest{Type: "allMids"}, &mids); err != nil {
		return 0, false, err
	}
	for _, mid := range mids {
		if mid.Coin != coin {
			continue
		}
		price, err := strconv.ParseFloat(mid.Mid, 64)
		if err != nil {
			return 0, false, nil
		}
		return price, true, nil
	}
	return 0, false, nil
}

// currentFunding reads prevFundingRate from the asset contexts and converts
// it to percent.
func (a *Hyperliquid) currentFunding(ctx context.Context, coin string) (float64, bool, error) {
	var meta struct {
		AssetCtxs []hlAssetCtx `json:"assetCtxs"`
	}
	if err := a.client.postJSON(ctx, "info", hlInfoRequest{Type: "metaAndAssetCtxs"}, &meta); err != nil {
		return 0, false, err
	}
	for _, asset := range meta.AssetCtxs {
		if asset.Name != coin {
			continue
		}
		rate, err := strconv.ParseFloat(asset.Funding.PrevFundingRate, 64)
		if err != nil {
			return 0, false, nil
		}
		return rate * 100, true, nil
	}
	return 0, false, nil
}
