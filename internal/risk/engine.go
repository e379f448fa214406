package risk

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"riskpulse/internal/domain"
	"riskpulse/internal/store"

	"go.opentelemetry.io/otel/trace"
)

// minPricePoints is the smallest history that supports a composite score.
// Below it the seed tier is returned unchanged rather than a spuriously
// precise number.
const minPricePoints = 7

// Component weights of the composite score.
const (
	weightVolatility = 0.4
	weightDrawdown   = 0.3
	weightLiquidity  = 0.2
	weightBase       = 0.1
)

// liquidityDefaultScore applies when an asset has no volume history at all.
const liquidityDefaultScore = 4.0

// breakpoint maps a threshold to a component score. The tables below are
// product constants, not statistically derived.
type breakpoint struct {
	threshold float64
	score     float64
}

// Annualized volatility thresholds, ascending: the first row whose threshold
// exceeds the value wins.
var volatilityBreakpoints = []breakpoint{
	{0.005, 1.0},
	{0.02, 2.0},
	{0.05, 2.5},
	{0.10, 3.0},
	{0.20, 4.0},
}

// Maximum drawdown thresholds, ascending.
var drawdownBreakpoints = []breakpoint{
	{0.001, 1.0},
	{0.01, 2.0},
	{0.03, 2.5},
	{0.10, 3.0},
	{0.20, 4.0},
}

// Mean 24h volume thresholds, descending: more volume means less risk.
var liquidityBreakpoints = []breakpoint{
	{1_000_000_000, 1.0},
	{100_000_000, 2.0},
	{10_000_000, 3.0},
	{1_000_000, 4.0},
}

const breakpointFallbackScore = 5.0

func scoreBelow(value float64, table []breakpoint) float64 {
	for _, bp := range table {
		if value < bp.threshold {
			return bp.score
		}
	}
	return breakpointFallbackScore
}

func scoreAbove(value float64, table []breakpoint) float64 {
	for _, bp := range table {
		if value > bp.threshold {
			return bp.score
		}
	}
	return breakpointFallbackScore
}

// Engine converts metric history into one bounded risk number per asset.
// Scores are recomputed wholesale each run and always replace the prior
// value.
type Engine struct {
	tracer   trace.Tracer
	store    store.AssetStore
	lookback time.Duration
}

func NewEngine(tracer trace.Tracer, assetStore store.AssetStore, lookbackDays int) *Engine {
	if lookbackDays <= 0 {
		lookbackDays = 90
	}
	return &Engine{
		tracer:   tracer,
		store:    assetStore,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
	}
}

// ScoreAll recomputes and persists risk scores for every stored asset.
// Assets are scored independently: one asset's missing or corrupt history is
// logged and skipped, never fatal for the rest. The returned map holds the
// successfully scored assets.
func (e *Engine) ScoreAll(ctx context.Context) (map[string]float64, error) {
	ctx, span := e.tracer.Start(ctx, "risk.score-all")
	defer span.End()

	assets, err := e.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets for scoring: %w", err)
	}

	now := time.Now().UTC()
	scores := make(map[string]float64, len(assets))
	for _, asset := range assets {
		if ctx.Err() != nil {
			return scores, ctx.Err()
		}
		score, err := e.ScoreAsset(ctx, asset)
		if err != nil {
			log.Printf("risk: scoring %s failed: %v", asset.ID, err)
			continue
		}
		if err := e.store.UpsertRiskScore(ctx, domain.RiskScore{AssetID: asset.ID, Score: score, ComputedAt: now}); err != nil {
			log.Printf("risk: persisting score for %s failed: %v", asset.ID, err)
			continue
		}
		scores[asset.ID] = score
	}
	log.Printf("risk: scored %d/%d assets", len(scores), len(assets))
	return scores, nil
}

// ScoreAsset computes the composite score for one asset from its price and
// volume history over the lookback window.
func (e *Engine) ScoreAsset(ctx context.Context, asset domain.AssetSnapshot) (float64, error) {
	ctx, span := e.tracer.Start(ctx, "risk.score-asset")
	defer span.End()

	to := time.Now().UTC()
	from := to.Add(-e.lookback)

	priceHistory, err := e.store.QueryMetricHistory(ctx, asset.ID, domain.MetricPriceUSD, from, to)
	if err != nil {
		return 0, fmt.Errorf("price history for %s: %w", asset.ID, err)
	}
	volumeHistory, err := e.store.QueryMetricHistory(ctx, asset.ID, domain.MetricVolume24h, from, to)
	if err != nil {
		return 0, fmt.Errorf("volume history for %s: %w", asset.ID, err)
	}

	prices := values(priceHistory)
	volumes := values(volumeHistory)
	return Composite(prices, volumes, asset.RiskTier), nil
}

// Composite is the scoring function proper, separated from storage so the
// algorithm is testable on bare series. Prices must be ordered by timestamp
// ascending.
func Composite(prices, volumes []float64, seedTier domain.RiskTier) float64 {
	base := baseScore(seedTier)
	if len(prices) < minPricePoints {
		return base
	}

	composite := weightVolatility*volatilityScore(prices) +
		weightDrawdown*drawdownScore(prices) +
		weightLiquidity*liquidityScore(volumes) +
		weightBase*base

	return clamp(composite, 1.0, 5.0)
}

func baseScore(tier domain.RiskTier) float64 {
	if !tier.IsValid() {
		return 3.0
	}
	return float64(tier)
}

// volatilityScore annualizes the sample standard deviation of simple returns
// and maps it through the breakpoint table.
func volatilityScore(prices []float64) float64 {
	returns := simpleReturns(prices)
	if len(returns) < 2 {
		return 1.0
	}
	annualized := stddev(returns) * math.Sqrt(365)
	return scoreBelow(annualized, volatilityBreakpoints)
}

// drawdownScore maps the maximum peak-to-trough decline of the series.
func drawdownScore(prices []float64) float64 {
	if len(prices) < 2 {
		return 1.0
	}
	runningMax := prices[0]
	maxDrawdown := 0.0
	for _, price := range prices {
		if price > runningMax {
			runningMax = price
		}
		if runningMax > 0 {
			if dd := (runningMax - price) / runningMax; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return scoreBelow(maxDrawdown, drawdownBreakpoints)
}

// liquidityScore maps mean 24h volume, inverted. No volume data at all gets
// the conservative default rather than the worst score.
func liquidityScore(volumes []float64) float64 {
	if len(volumes) == 0 {
		return liquidityDefaultScore
	}
	sum := 0.0
	for _, v := range volumes {
		sum += v
	}
	return scoreAbove(sum/float64(len(volumes)), liquidityBreakpoints)
}

func simpleReturns(prices []float64) []float64 {
	var returns []float64
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns
}

func stddev(samples []float64) float64 {
	n := float64(len(samples))
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= n

	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= n - 1
	return math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func values(points []domain.MetricPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Value)
	}
	return out
}
