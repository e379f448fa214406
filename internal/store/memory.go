package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"riskpulse/internal/domain"
)

type metricKey struct {
	assetID    string
	metricType domain.MetricType
	ts         time.Time
}

// MemoryStore is an in-process AssetStore with the same upsert semantics as
// the Postgres implementation. It backs local runs without a database and
// the package tests.
type MemoryStore struct {
	mu      sync.RWMutex
	assets  map[string]domain.AssetSnapshot
	metrics map[metricKey]float64
	scores  map[string]domain.RiskScore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]domain.AssetSnapshot),
		metrics: make(map[metricKey]float64),
		scores:  make(map[string]domain.RiskScore),
	}
}

func (s *MemoryStore) UpsertAssetSnapshot(ctx context.Context, snapshot domain.AssetSnapshot) error {
	s.mu.Lock()
	s.assets[snapshot.ID] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpsertMetricPoint(ctx context.Context, point domain.MetricPoint) error {
	s.mu.Lock()
	s.metrics[metricKey{point.AssetID, point.MetricType, point.Timestamp.UTC()}] = point.Value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpsertMetricPoints(ctx context.Context, points []domain.MetricPoint) error {
	for _, point := range points {
		if err := s.UpsertMetricPoint(ctx, point); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) QueryMetricHistory(ctx context.Context, assetID string, metricType domain.MetricType, from, to time.Time) ([]domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []domain.MetricPoint
	for key, value := range s.metrics {
		if key.assetID != assetID || key.metricType != metricType {
			continue
		}
		if key.ts.Before(from) || key.ts.After(to) {
			continue
		}
		points = append(points, domain.MetricPoint{
			AssetID:    key.assetID,
			MetricType: key.metricType,
			Value:      value,
			Timestamp:  key.ts,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

func (s *MemoryStore) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]domain.AssetSnapshot, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (s *MemoryStore) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.assets[assetID]; ok {
		copy := a
		return &copy, nil
	}
	return nil, nil
}

func (s *MemoryStore) UpsertRiskScore(ctx context.Context, score domain.RiskScore) error {
	s.mu.Lock()
	s.scores[score.AssetID] = score
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestRiskScores(ctx context.Context) ([]domain.RiskScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]domain.RiskScore, 0, len(s.scores))
	for _, rs := range s.scores {
		scores = append(scores, rs)
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].AssetID < scores[j].AssetID })
	return scores, nil
}

// MetricCount reports the number of stored metric rows; the idempotence
// tests use it to assert duplicate upserts do not add rows.
func (s *MemoryStore) MetricCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}
