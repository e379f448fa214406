package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"riskpulse/internal/domain"
	"riskpulse/internal/store"

	"go.opentelemetry.io/otel/trace"
)

func TestCompositeConstantSeriesBestCase(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100, 100}
	volumes := []float64{2e9, 2e9, 2e9, 2e9, 2e9, 2e9, 2e9}

	score := Composite(prices, volumes, domain.TierCashCore)
	if score != 1.0 {
		t.Fatalf("constant series with deep volume and tier 1 must score exactly 1.0, got %v", score)
	}
}

func TestCompositeInsufficientHistoryReturnsBase(t *testing.T) {
	prices := []float64{100, 101, 99, 100, 102, 98}
	for tier := domain.TierCashCore; tier <= domain.TierMoonShot; tier++ {
		if got := Composite(prices, nil, tier); got != float64(tier) {
			t.Fatalf("tier %d with %d points should return base %v, got %v", tier, len(prices), float64(tier), got)
		}
	}
}

func TestCompositeClampedToScale(t *testing.T) {
	// Wildly volatile series with a deep drawdown and no volume data.
	prices := []float64{100, 200, 50, 300, 10, 400, 5}
	score := Composite(prices, nil, domain.TierMoonShot)
	if score < 1.0 || score > 5.0 {
		t.Fatalf("composite must stay in [1, 5], got %v", score)
	}
}

func TestVolatilityScoreBreakpoints(t *testing.T) {
	cases := []struct {
		annualized float64
		want       float64
	}{
		{0.004, 1.0},
		{0.01, 2.0},
		{0.03, 2.5},
		{0.07, 3.0},
		{0.15, 4.0},
		{0.5, 5.0},
	}
	for _, tc := range cases {
		if got := scoreBelow(tc.annualized, volatilityBreakpoints); got != tc.want {
			t.Errorf("volatility %v: got %v, want %v", tc.annualized, got, tc.want)
		}
	}
}

func TestDrawdownScore(t *testing.T) {
	// Peak 200, trough 150: 25% drawdown maps to the top bucket.
	prices := []float64{100, 200, 150, 160, 170, 180, 190}
	if got := drawdownScore(prices); got != 5.0 {
		t.Fatalf("25%% drawdown should score 5.0, got %v", got)
	}

	flat := []float64{100, 100, 100}
	if got := drawdownScore(flat); got != 1.0 {
		t.Fatalf("flat series should score 1.0, got %v", got)
	}
}

func TestLiquidityScore(t *testing.T) {
	cases := []struct {
		volumes []float64
		want    float64
	}{
		{nil, liquidityDefaultScore},
		{[]float64{2e9}, 1.0},
		{[]float64{5e8}, 2.0},
		{[]float64{5e7}, 3.0},
		{[]float64{5e6}, 4.0},
		{[]float64{5e5}, 5.0},
	}
	for _, tc := range cases {
		if got := liquidityScore(tc.volumes); got != tc.want {
			t.Errorf("volumes %v: got %v, want %v", tc.volumes, got, tc.want)
		}
	}
}

// failingHistoryStore breaks metric reads for one asset to prove scoring
// isolates per-asset failures.
type failingHistoryStore struct {
	store.AssetStore
	brokenAssetID string
}

func (s *failingHistoryStore) QueryMetricHistory(ctx context.Context, assetID string, metricType domain.MetricType, from, to time.Time) ([]domain.MetricPoint, error) {
	if assetID == s.brokenAssetID {
		return nil, errors.New("history unavailable")
	}
	return s.AssetStore.QueryMetricHistory(ctx, assetID, metricType, from, to)
}

func TestScoreAllIsolatesPerAssetFailures(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	_ = mem.UpsertAssetSnapshot(ctx, domain.AssetSnapshot{ID: "usdt", Ticker: "USDT", RiskTier: domain.TierCashCore, IsActive: true})
	_ = mem.UpsertAssetSnapshot(ctx, domain.AssetSnapshot{ID: "broken", Ticker: "BRK", RiskTier: domain.TierMarketBeta, IsActive: true})

	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < 10; i++ {
		_ = mem.UpsertMetricPoint(ctx, domain.MetricPoint{
			AssetID:    "usdt",
			MetricType: domain.MetricPriceUSD,
			Value:      1.0,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		})
		_ = mem.UpsertMetricPoint(ctx, domain.MetricPoint{
			AssetID:    "usdt",
			MetricType: domain.MetricVolume24h,
			Value:      4e10,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		})
	}

	engine := NewEngine(trace.NewNoopTracerProvider().Tracer("test"), &failingHistoryStore{AssetStore: mem, brokenAssetID: "broken"}, 90)
	scores, err := engine.ScoreAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected only the healthy asset scored, got %v", scores)
	}
	if scores["usdt"] != 1.0 {
		t.Fatalf("stable asset with deep volume should score 1.0, got %v", scores["usdt"])
	}

	persisted, _ := mem.LatestRiskScores(ctx)
	if len(persisted) != 1 || persisted[0].AssetID != "usdt" {
		t.Fatalf("only the healthy asset's score should persist, got %+v", persisted)
	}
}

func TestScoreAssetWithoutHistoryReturnsSeedTier(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	asset := domain.AssetSnapshot{ID: "ousg", Ticker: "OUSG", RiskTier: domain.TierYieldPlus, IsActive: true}
	_ = mem.UpsertAssetSnapshot(ctx, asset)

	engine := NewEngine(trace.NewNoopTracerProvider().Tracer("test"), mem, 90)
	score, err := engine.ScoreAsset(ctx, asset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 2.0 {
		t.Fatalf("no history should yield the seed tier, got %v", score)
	}
}
