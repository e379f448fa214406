package store

import (
	"context"
	"fmt"
	"time"

	"riskpulse/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createTables = `
CREATE TABLE IF NOT EXISTS assets (
    id          TEXT PRIMARY KEY,
    ticker      TEXT        NOT NULL,
    name        TEXT        NOT NULL,
    sector      TEXT        NOT NULL,
    risk_tier   SMALLINT    NOT NULL,
    logo_url    TEXT,
    website     TEXT,
    description TEXT,
    is_active   BOOLEAN     NOT NULL DEFAULT TRUE,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS asset_metrics (
    asset_id    TEXT        NOT NULL REFERENCES assets(id),
    metric_type TEXT        NOT NULL,
    value       DOUBLE PRECISION NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (asset_id, metric_type, ts)
);

CREATE INDEX IF NOT EXISTS idx_asset_metrics_series
    ON asset_metrics (asset_id, metric_type, ts DESC);

CREATE TABLE IF NOT EXISTS risk_scores (
    asset_id    TEXT PRIMARY KEY REFERENCES assets(id),
    score       DOUBLE PRECISION NOT NULL,
    computed_at TIMESTAMPTZ NOT NULL
);
`

// PgxPool is the slice of the pgx pool API the store uses; tests swap in a
// fake.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements AssetStore on a pgx pool.
type PostgresStore struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPostgresStore(pool PgxPool, tracer trace.Tracer) *PostgresStore {
	return &PostgresStore{pool: pool, tracer: tracer}
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "asset-store.run-migrations")
	defer span.End()

	_, err := s.pool.Exec(ctx, createTables)
	return err
}

func (s *PostgresStore) UpsertAssetSnapshot(ctx context.Context, snapshot domain.AssetSnapshot) error {
	_, span := s.tracer.Start(ctx, "asset-store.upsert-snapshot")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (id, ticker, name, sector, risk_tier, logo_url, website, description, is_active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		     ticker = EXCLUDED.ticker,
		     name = EXCLUDED.name,
		     sector = EXCLUDED.sector,
		     risk_tier = EXCLUDED.risk_tier,
		     logo_url = EXCLUDED.logo_url,
		     website = EXCLUDED.website,
		     description = EXCLUDED.description,
		     is_active = EXCLUDED.is_active,
		     updated_at = NOW()`,
		snapshot.ID, snapshot.Ticker, snapshot.Name, string(snapshot.Sector), int(snapshot.RiskTier),
		snapshot.LogoURL, snapshot.Website, snapshot.Description, snapshot.IsActive,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "upsert-snapshot", Err: err}
	}
	return nil
}

const upsertMetricSQL = `INSERT INTO asset_metrics (asset_id, metric_type, value, ts)
 VALUES ($1, $2, $3, $4)
 ON CONFLICT (asset_id, metric_type, ts) DO UPDATE SET value = EXCLUDED.value`

func (s *PostgresStore) UpsertMetricPoint(ctx context.Context, point domain.MetricPoint) error {
	_, span := s.tracer.Start(ctx, "asset-store.upsert-metric")
	defer span.End()

	_, err := s.pool.Exec(ctx, upsertMetricSQL,
		point.AssetID, string(point.MetricType), point.Value, point.Timestamp.UTC())
	if err != nil {
		return &domain.PersistenceError{Op: "upsert-metric", Err: err}
	}
	return nil
}

func (s *PostgresStore) UpsertMetricPoints(ctx context.Context, points []domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	_, span := s.tracer.Start(ctx, "asset-store.upsert-metrics")
	defer span.End()

	batch := &pgx.Batch{}
	for _, point := range points {
		batch.Queue(upsertMetricSQL,
			point.AssetID, string(point.MetricType), point.Value, point.Timestamp.UTC())
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return &domain.PersistenceError{Op: "upsert-metrics", Err: err}
		}
	}
	return nil
}

func (s *PostgresStore) QueryMetricHistory(ctx context.Context, assetID string, metricType domain.MetricType, from, to time.Time) ([]domain.MetricPoint, error) {
	_, span := s.tracer.Start(ctx, "asset-store.query-metric-history")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, metric_type, value, ts
		 FROM asset_metrics
		 WHERE asset_id = $1 AND metric_type = $2 AND ts >= $3 AND ts <= $4
		 ORDER BY ts ASC`,
		assetID, string(metricType), from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query metric history: %w", err)
	}
	defer rows.Close()

	var points []domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.AssetID, &p.MetricType, &p.Value, &p.Timestamp); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]domain.AssetSnapshot, error) {
	_, span := s.tracer.Start(ctx, "asset-store.list-assets")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, ticker, name, sector, risk_tier, COALESCE(logo_url, ''), COALESCE(website, ''), COALESCE(description, ''), is_active
		 FROM assets ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.AssetSnapshot
	for rows.Next() {
		var a domain.AssetSnapshot
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Name, &a.Sector, &a.RiskTier, &a.LogoURL, &a.Website, &a.Description, &a.IsActive); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) GetAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	_, span := s.tracer.Start(ctx, "asset-store.get-snapshot")
	defer span.End()

	var a domain.AssetSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, ticker, name, sector, risk_tier, COALESCE(logo_url, ''), COALESCE(website, ''), COALESCE(description, ''), is_active
		 FROM assets WHERE id = $1`, assetID,
	).Scan(&a.ID, &a.Ticker, &a.Name, &a.Sector, &a.RiskTier, &a.LogoURL, &a.Website, &a.Description, &a.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset snapshot: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) UpsertRiskScore(ctx context.Context, score domain.RiskScore) error {
	_, span := s.tracer.Start(ctx, "asset-store.upsert-risk-score")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO risk_scores (asset_id, score, computed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (asset_id) DO UPDATE SET score = EXCLUDED.score, computed_at = EXCLUDED.computed_at`,
		score.AssetID, score.Score, score.ComputedAt.UTC(),
	)
	if err != nil {
		return &domain.PersistenceError{Op: "upsert-risk-score", Err: err}
	}
	return nil
}

func (s *PostgresStore) LatestRiskScores(ctx context.Context) ([]domain.RiskScore, error) {
	_, span := s.tracer.Start(ctx, "asset-store.latest-risk-scores")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT asset_id, score, computed_at FROM risk_scores ORDER BY asset_id`)
	if err != nil {
		return nil, fmt.Errorf("latest risk scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.RiskScore
	for rows.Next() {
		var rs domain.RiskScore
		if err := rows.Scan(&rs.AssetID, &rs.Score, &rs.ComputedAt); err != nil {
			return nil, err
		}
		scores = append(scores, rs)
	}
	return scores, rows.Err()
}
