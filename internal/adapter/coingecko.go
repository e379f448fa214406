package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"riskpulse/internal/cache"
	"riskpulse/internal/domain"
	"riskpulse/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko is the large-catalog adapter: it owns every asset its paginated
// market listing returns. Catalog membership is learned from ListAssets and
// kept for Supports lookups.
type CoinGecko struct {
	client      *apiClient
	tracer      trace.Tracer
	pageSize    int
	assetsLimit int

	mu      sync.RWMutex
	catalog map[string]struct{}
}

type CoinGeckoConfig struct {
	APIKey      string
	PageSize    int
	AssetsLimit int
	CacheTTL    time.Duration
}

func NewCoinGecko(tracer trace.Tracer, limiter *ratelimit.Limiter, store cache.Store, cfg CoinGeckoConfig) *CoinGecko {
	if cfg.PageSize <= 0 || cfg.PageSize > 250 {
		cfg.PageSize = 100
	}
	if cfg.AssetsLimit <= 0 {
		cfg.AssetsLimit = 250
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 90 * time.Second
	}

	client := newAPIClient("coingecko", coingeckoBaseURL, limiter, store, cfg.CacheTTL)
	if cfg.APIKey != "" {
		client.headers = map[string]string{"x-cg-demo-api-key": cfg.APIKey}
	}

	return &CoinGecko{
		client:      client,
		tracer:      tracer,
		pageSize:    cfg.PageSize,
		assetsLimit: cfg.AssetsLimit,
		catalog:     make(map[string]struct{}),
	}
}

func (a *CoinGecko) Name() string { return "coingecko" }

func (a *CoinGecko) Supports(assetID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.catalog[assetID]
	return ok
}

type cgMarketRow struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
	TotalVolume  *float64 `json:"total_volume"`
}

// ListAssets paginates the market listing up to the configured asset limit
// and returns the aggregate.
func (a *CoinGecko) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	ctx, span := a.tracer.Start(ctx, "coingecko.list-assets")
	defer span.End()

	var snapshots []domain.AssetSnapshot
	for page := 1; len(snapshots) < a.assetsLimit; page++ {
		var rows []cgMarketRow
		params := map[string]string{
			"vs_currency": "usd",
			"order":       "market_cap_desc",
			"per_page":    strconv.Itoa(a.pageSize),
			"page":        strconv.Itoa(page),
		}
		if err := a.client.getJSON(ctx, "coins/markets", params, &rows); err != nil {
			return nil, fmt.Errorf("list assets page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			snapshots = append(snapshots, domain.AssetSnapshot{
				ID:       row.ID,
				Ticker:   strings.ToUpper(row.Symbol),
				Name:     row.Name,
				Sector:   domain.SectorNativeCrypto,
				RiskTier: domain.TierMarketBeta,
				LogoURL:  row.Image,
				IsActive: true,
			})
			if len(snapshots) >= a.assetsLimit {
				break
			}
		}
		if len(rows) < a.pageSize {
			break
		}
	}

	a.mu.Lock()
	for _, snap := range snapshots {
		a.catalog[snap.ID] = struct{}{}
	}
	a.mu.Unlock()

	return snapshots, nil
}

type cgCoinDetail struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Categories  []string `json:"categories"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
	Image struct {
		Large string `json:"large"`
	} `json:"image"`
}

// GetAssetSnapshot fetches the full coin record for one asset. Assets the
// listing never returned are rejected without a network call.
func (a *CoinGecko) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	ctx, span := a.tracer.Start(ctx, "coingecko.get-asset-snapshot")
	defer span.End()

	if !a.Supports(assetID) {
		return nil, fmt.Errorf("%s: %w", assetID, domain.ErrUnsupportedAsset)
	}

	var detail cgCoinDetail
	params := map[string]string{
		"localization":   "false",
		"tickers":        "false",
		"market_data":    "false",
		"community_data": "false",
		"developer_data": "false",
	}
	if err := a.client.getJSON(ctx, "coins/"+assetID, params, &detail); err != nil {
		return nil, fmt.Errorf("get snapshot for %s: %w", assetID, err)
	}

	website := ""
	if len(detail.Links.Homepage) > 0 {
		website = detail.Links.Homepage[0]
	}
	sector, tier := classifyCategories(detail.Categories)

	return &domain.AssetSnapshot{
		ID:          detail.ID,
		Ticker:      strings.ToUpper(detail.Symbol),
		Name:        detail.Name,
		Sector:      sector,
		RiskTier:    tier,
		LogoURL:     detail.Image.Large,
		Website:     website,
		Description: firstSentence(detail.Description.En),
		IsActive:    true,
	}, nil
}

// GetAssetMetrics fetches price, volume, and market cap series for the range
// from the market_chart endpoint. An empty range yields an empty slice.
func (a *CoinGecko) GetAssetMetrics(ctx context.Context, assetID string, from, to time.Time) ([]domain.MetricPoint, error) {
	ctx, span := a.tracer.Start(ctx, "coingecko.get-asset-metrics")
	defer span.End()

	var raw struct {
		Prices       [][]float64 `json:"prices"`
		MarketCaps   [][]float64 `json:"market_caps"`
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
	points = appendSeries(points, assetID, domain.MetricMarketCap, raw.MarketCaps)
	points = appendSeries(points, assetID, domain.MetricVolume24h, raw.TotalVolumes)
	return points, nil
}

// appendSeries converts [ms, value] pairs into metric points. Short rows are
// skipped rather than zero-filled: an absent value is unknown, not zero.
func appendSeries(points []domain.MetricPoint, assetID string, metricType domain.MetricType, series [][]float64) []domain.MetricPoint {
	for _, pair := range series {
		if len(pair) < 2 {
			continue
		}
		points = append(points, domain.MetricPoint{
			AssetID:    assetID,
			MetricType: metricType,
			Value:      pair[1],
			Timestamp:  time.UnixMilli(int64(pair[0])).UTC(),
		})
	}
	return points
}

func classifyCategories(categories []string) (domain.Sector, domain.RiskTier) {
	for _, c := range categories {
		switch strings.ToLower(c) {
		case "stablecoins", "usd stablecoin":
			return domain.SectorStablecoin, domain.TierCashCore
		case "tokenized treasury bonds", "real world assets (rwa)":
			return domain.SectorTokenizedRWA, domain.TierYieldPlus
		case "yield farming", "liquid staking tokens":
			return domain.SectorYieldProtocol, domain.TierTacticalEdge
		}
	}
	return domain.SectorNativeCrypto, domain.TierMarketBeta
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, ". "); idx > 0 {
		return text[:idx+1]
	}
	const max = 280
	if len(text) > max {
		return text[:max]
	}
	return text
}
