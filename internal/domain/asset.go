package domain

import "time"

// Sector classifies an asset by the market segment it belongs to.
type Sector string

const (
	SectorNativeCrypto  Sector = "native_crypto"
	SectorStablecoin    Sector = "stablecoin"
	SectorTokenizedRWA  Sector = "tokenized_rwa"
	SectorDerivatives   Sector = "derivatives"
	SectorYieldProtocol Sector = "yield_protocol"
	SectorOther         Sector = "other"
)

// RiskTier is the seed risk classification of an asset, 1 (cash-like)
// through 5 (speculative). It feeds the base component of the composite
// risk score.
type RiskTier int

const (
	TierCashCore     RiskTier = 1
	TierYieldPlus    RiskTier = 2
	TierMarketBeta   RiskTier = 3
	TierTacticalEdge RiskTier = 4
	TierMoonShot     RiskTier = 5
)

func (t RiskTier) IsValid() bool {
	return t >= TierCashCore && t <= TierMoonShot
}

// AssetSnapshot is the canonical, provider-independent description of one
// asset at ingestion time. Snapshots are merged into the asset store by ID:
// created if absent, mutable fields overwritten if present. The pipeline
// never deletes a snapshot; deactivation flips IsActive.
type AssetSnapshot struct {
	ID          string   `json:"id"`
	Ticker      string   `json:"ticker"`
	Name        string   `json:"name"`
	Sector      Sector   `json:"sector"`
	RiskTier    RiskTier `json:"risk_tier"`
	LogoURL     string   `json:"logo_url,omitempty"`
	Website     string   `json:"website,omitempty"`
	Description string   `json:"description,omitempty"`
	IsActive    bool     `json:"is_active"`
}

// MetricType identifies one observed series. The set is open: adapters may
// emit types beyond the named constants.
type MetricType string

const (
	MetricPriceUSD          MetricType = "price_usd"
	MetricVolume24h         MetricType = "volume_24h"
	MetricMarketCap         MetricType = "market_cap"
	MetricCirculatingSupply MetricType = "circulating_supply"
	MetricYield7dAPY        MetricType = "yield_7d_apy"
	MetricFundingRate       MetricType = "funding_rate"
)

// MetricPoint is one observation of one metric for one asset. Points are
// immutable once written; uniqueness is (AssetID, MetricType, Timestamp) and
// a duplicate write for the same key updates the value in place, keeping the
// series idempotent under retries. Percentage-valued metrics are stored on
// the 0-100 scale; adapters normalize at the boundary. Timestamps are UTC.
type MetricPoint struct {
	AssetID    string     `json:"asset_id"`
	MetricType MetricType `json:"metric_type"`
	Value      float64    `json:"value"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RiskScore is the composite risk value derived from an asset's metric
// history plus its seed tier. It is recomputed wholesale on each scoring run
// and always replaces the prior value for the asset.
type RiskScore struct {
	AssetID    string    `json:"asset_id"`
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}

// CycleFailure records one (adapter, asset) pair that failed during an
// ingestion cycle.
type CycleFailure struct {
	Adapter string `json:"adapter"`
	AssetID string `json:"asset_id,omitempty"`
	Error   string `json:"error"`
}

// CycleResult summarizes one ingestion cycle. A cycle never raises; callers
// needing cycle-level fatality inspect the failure list.
type CycleResult struct {
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	AssetsPersisted int            `json:"assets_persisted"`
	MetricsWritten  int            `json:"metrics_written"`
	Failures        []CycleFailure `json:"failures,omitempty"`
	AlreadyRunning  bool           `json:"already_running,omitempty"`
}

// Success reports whether the cycle completed with zero failures.
func (r CycleResult) Success() bool {
	return !r.AlreadyRunning && len(r.Failures) == 0
}
