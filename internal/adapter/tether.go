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

const (
	tetherAssetID = "usdt"
	tetherCoinID  = "tether"
	tetherBaseURL = "https://api.tether.to"
)

// Tether is a fixed-catalog adapter for the USDT stablecoin. Market data
// comes from the public CoinGecko coin record, the circulating supply from
// Tether's own market endpoint when it answers.
type Tether struct {
	market *apiClient
	supply *apiClient
	tracer trace.Tracer
}

func NewTether(tracer trace.Tracer, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration) *Tether {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Tether{
		market: newAPIClient("tether", coingeckoBaseURL, limiter, store, cacheTTL),
		supply: newAPIClient("tether", tetherBaseURL, limiter, store, cacheTTL),
		tracer: tracer,
	}
}

func (a *Tether) Name() string { return "tether" }

func (a *Tether) Supports(assetID string) bool { return assetID == tetherAssetID }

func (a *Tether) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	snap, err := a.GetAssetSnapshot(ctx, tetherAssetID)
	if err != nil {
		return nil, err
	}
	return []domain.AssetSnapshot{*snap}, nil
}

func (a *Tether) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	_, span := a.tracer.Start(ctx, "tether.get-asset-snapshot")
	defer span.End()

	if assetID != tetherAssetID {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	return &domain.AssetSnapshot{
		ID:          tetherAssetID,
		Ticker:      "USDT",
		Name:        "Tether",
		Sector:      domain.SectorStablecoin,
		RiskTier:    domain.TierCashCore,
		LogoURL:     "https://cryptologos.cc/logos/tether-usdt-logo.png",
		Website:     "https://tether.to/",
		Description: "Tether (USDT) is a stablecoin pegged to the US Dollar.",
		IsActive:    true,
	}, nil
}

type tetherMarketData struct {
	MarketData struct {
		CurrentPrice struct {
			USD *float64 `json:"usd"`
		} `json:"current_price"`
		MarketCap struct {
			USD *float64 `json:"usd"`
		} `json:"market_cap"`
		TotalVolume struct {
			USD *float64 `json:"usd"`
		} `json:"total_volume"`
		CirculatingSupply *float64 `json:"circulating_supply"`
	} `json:"market_data"`
}

// GetAssetMetrics returns the current observation set for USDT. Absent
// upstream fields produce no point; zero is a valid price for some assets
// and must not stand in for unknown.
func (a *Tether) GetAssetMetrics(ctx context.Context, assetID string, from, to time.Time) ([]domain.MetricPoint, error) {
	ctx, span := a.tracer.Start(ctx, "tether.get-asset-metrics")
	defer span.End()

	if assetID != tetherAssetID {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	var data tetherMarketData
	params := map[string]string{"localization": "false", "tickers": "false"}
	if err := a.market.getJSON(ctx, "coins/"+tetherCoinID, params, &data); err != nil {
		return nil, fmt.Errorf("fetch tether market data: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Minute)
	var points []domain.MetricPoint
	appendIfPresent := func(metricType domain.MetricType, value *float64) {
		if value == nil {
			return
		}
		points = append(points, domain.MetricPoint{
			AssetID:    tetherAssetID,
			MetricType: metricType,
			Value:      *value,
			Timestamp:  now,
		})
	}
	appendIfPresent(domain.MetricPriceUSD, data.MarketData.CurrentPrice.USD)
	appendIfPresent(domain.MetricMarketCap, data.MarketData.MarketCap.USD)
	appendIfPresent(domain.MetricVolume24h, data.MarketData.TotalVolume.USD)

	supply := data.MarketData.CirculatingSupply
	if fresh, err := a.fetchSupply(ctx); err == nil && fresh != nil {
		supply = fresh
	}
	appendIfPresent(domain.MetricCirculatingSupply, supply)

	return points, nil
}

// fetchSupply reads Tether's own market endpoint. Best effort: the CoinGecko
// supply figure stands in when it fails.
func (a *Tether) fetchSupply(ctx context.Context) (*float64, error) {
	var rows []struct {
		Symbol string `json:"symbol"`
		Supply string `json:"total_liability"`
	}
	if err := a.supply.getJSON(ctx, "v1/market/current", nil, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Symbol != "USDt" && row.Symbol != "USDT" {
			continue
		}
		value, err := strconv.ParseFloat(row.Supply, 64)
		if err != nil {
			return nil, err
		}
		return &value, nil
	}
	return nil, nil
}
