package store

import (
	"context"
	"testing"
	"time"

	"riskpulse/internal/domain"
)

func TestMetricUpsertIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	point := domain.MetricPoint{AssetID: "bitcoin", MetricType: domain.MetricPriceUSD, Value: 97000, Timestamp: ts}
	if err := s.UpsertMetricPoint(ctx, point); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.UpsertMetricPoint(ctx, point); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MetricCount() != 1 {
		t.Fatalf("duplicate upsert should leave one row, got %d", s.MetricCount())
	}

	// Last writer wins on the same key.
	point.Value = 98000
	_ = s.UpsertMetricPoint(ctx, point)
	history, err := s.QueryMetricHistory(ctx, "bitcoin", domain.MetricPriceUSD, ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].Value != 98000 {
		t.Fatalf("expected single updated row, got %+v", history)
	}
}

func TestQueryMetricHistoryOrderedAndBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = s.UpsertMetricPoint(ctx, domain.MetricPoint{
			AssetID:    "bitcoin",
			MetricType: domain.MetricPriceUSD,
			Value:      float64(100 + i),
			Timestamp:  base.AddDate(0, 0, i),
		})
	}

	history, err := s.QueryMetricHistory(ctx, "bitcoin", domain.MetricPriceUSD, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 points in range, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatal("history should be ordered by timestamp ascending")
		}
	}
}

func TestSnapshotUpsertOverwritesMutableFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.UpsertAssetSnapshot(ctx, domain.AssetSnapshot{ID: "usdt", Ticker: "USDT", Name: "Tether", RiskTier: domain.TierCashCore, IsActive: true})
	_ = s.UpsertAssetSnapshot(ctx, domain.AssetSnapshot{ID: "usdt", Ticker: "USDT", Name: "Tether USD", RiskTier: domain.TierCashCore, IsActive: false})

	snap, err := s.GetAssetSnapshot(ctx, "usdt")
	if err != nil || snap == nil {
		t.Fatalf("expected snapshot, err=%v", err)
	}
	if snap.Name != "Tether USD" || snap.IsActive {
		t.Fatalf("upsert should overwrite mutable fields, got %+v", snap)
	}

	assets, _ := s.ListAssets(ctx)
	if len(assets) != 1 {
		t.Fatalf("upsert should not duplicate rows, got %d", len(assets))
	}
}

func TestRiskScoreReplacesPrior(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.UpsertRiskScore(ctx, domain.RiskScore{AssetID: "bitcoin", Score: 4.2, ComputedAt: time.Now()})
	_ = s.UpsertRiskScore(ctx, domain.RiskScore{AssetID: "bitcoin", Score: 3.8, ComputedAt: time.Now()})

	scores, err := s.LatestRiskScores(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 1 || scores[0].Score != 3.8 {
		t.Fatalf("expected single replaced score, got %+v", scores)
	}
}
