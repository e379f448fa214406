package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"riskpulse/internal/adapter"
	"riskpulse/internal/cache"
	"riskpulse/internal/domain"
	"riskpulse/internal/store"

	"go.opentelemetry.io/otel/trace"
)

const snapshotCacheTTL = 10 * time.Minute

// Config bounds one ingestion cycle.
type Config struct {
	// MetricLookback is the history window requested from each adapter.
	MetricLookback time.Duration
	// AdapterConcurrency bounds concurrent per-asset fetches within one
	// adapter, so a large catalog cannot flood its upstream beyond the
	// rate limiter's queue.
	AdapterConcurrency int
}

func (c Config) withDefaults() Config {
	if c.MetricLookback <= 0 {
		c.MetricLookback = 24 * time.Hour
	}
	if c.AdapterConcurrency <= 0 {
		c.AdapterConcurrency = 4
	}
	return c
}

// Orchestrator runs full ingestion cycles across all registered adapters.
// Cycles are single-flight: a trigger while one is running reports
// AlreadyRunning instead of interleaving writes.
type Orchestrator struct {
	tracer   trace.Tracer
	registry *adapter.Registry
	store    store.AssetStore
	cache    cache.Store
	cfg      Config

	running atomic.Bool
}

func NewOrchestrator(tracer trace.Tracer, registry *adapter.Registry, assetStore store.AssetStore, cacheStore cache.Store, cfg Config) *Orchestrator {
	return &Orchestrator{
		tracer:   tracer,
		registry: registry,
		store:    assetStore,
		cache:    cacheStore,
		cfg:      cfg.withDefaults(),
	}
}

// cycleState accumulates results across the adapter goroutines.
type cycleState struct {
	mu       sync.Mutex
	failures []domain.CycleFailure

	assetsPersisted atomic.Int64
	metricsWritten  atomic.Int64
}

func (s *cycleState) fail(adapterName, assetID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, domain.CycleFailure{Adapter: adapterName, AssetID: assetID, Error: err.Error()})
	log.Printf("ingest: %s/%s failed: %v", adapterName, assetID, err)
}

// TriggerCycle runs one ingestion cycle. It always returns a result, never
// an error: per-asset and per-adapter failures are collected in the result,
// and a concurrent trigger returns immediately with AlreadyRunning set.
func (o *Orchestrator) TriggerCycle(ctx context.Context) domain.CycleResult {
	if !o.running.CompareAndSwap(false, true) {
		return domain.CycleResult{AlreadyRunning: true}
	}
	defer o.running.Store(false)

	ctx, span := o.tracer.Start(ctx, "ingest.trigger-cycle")
	defer span.End()

	started := time.Now().UTC()
	state := &cycleState{}

	var wg sync.WaitGroup
	for _, a := range o.registry.All() {
		wg.Add(1)
		go func(a adapter.SourceAdapter) {
			defer wg.Done()
			o.runAdapter(ctx, a, state)
		}(a)
	}
	wg.Wait()

	result := domain.CycleResult{
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
		AssetsPersisted: int(state.assetsPersisted.Load()),
		MetricsWritten:  int(state.metricsWritten.Load()),
		Failures:        state.failures,
	}
	log.Printf("ingest: cycle finished in %s: %d assets, %d metrics, %d failures",
		result.FinishedAt.Sub(result.StartedAt), result.AssetsPersisted, result.MetricsWritten, len(result.Failures))
	return result
}

// runAdapter ingests one adapter's whole catalog. Listing failure is fatal
// for this adapter only; per-asset failures are recorded and the rest of the
// catalog proceeds.
func (o *Orchestrator) runAdapter(ctx context.Context, a adapter.SourceAdapter, state *cycleState) {
	ctx, span := o.tracer.Start(ctx, "ingest.run-adapter")
	defer span.End()

	snapshots, err := a.ListAssets(ctx)
	if err != nil {
		state.fail(a.Name(), "", err)
		return
	}

	sem := make(chan struct{}, o.cfg.AdapterConcurrency)
	var wg sync.WaitGroup
	for _, snap := range snapshots {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(snap domain.AssetSnapshot) {
			defer wg.Done()
			defer func() { <-sem }()
			o.ingestAsset(ctx, a, snap, state)
		}(snap)
	}
	wg.Wait()
}

// ingestAsset persists one asset's snapshot and then its metrics. The
// snapshot commits first so every metric row references an existing asset.
func (o *Orchestrator) ingestAsset(ctx context.Context, a adapter.SourceAdapter, snap domain.AssetSnapshot, state *cycleState) {
	if ctx.Err() != nil {
		state.fail(a.Name(), snap.ID, ctx.Err())
		return
	}

	if err := o.persistWithRetry(ctx, func(ctx context.Context) error {
		return o.store.UpsertAssetSnapshot(ctx, snap)
	}); err != nil {
		state.fail(a.Name(), snap.ID, err)
		return
	}
	state.assetsPersisted.Add(1)
	o.cacheSnapshot(ctx, snap)

	to := time.Now().UTC()
	points, err := a.GetAssetMetrics(ctx, snap.ID, to.Add(-o.cfg.MetricLookback), to)
	if err != nil {
		state.fail(a.Name(), snap.ID, err)
		return
	}
	if len(points) == 0 {
		return
	}

	if err := o.persistWithRetry(ctx, func(ctx context.Context) error {
		return o.store.UpsertMetricPoints(ctx, points)
	}); err != nil {
		state.fail(a.Name(), snap.ID, err)
		return
	}
	state.metricsWritten.Add(int64(len(points)))
}

// persistWithRetry retries a store write once after a short backoff. Only
// persistence errors are retried; anything else surfaces immediately.
func (o *Orchestrator) persistWithRetry(ctx context.Context, write func(ctx context.Context) error) error {
	err := write(ctx)
	var pe *domain.PersistenceError
	if err == nil || !errors.As(err, &pe) {
		return err
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return write(ctx)
}

func snapshotCacheKey(assetID string) string {
	return cache.Key("ingest", "snapshot", map[string]string{"asset_id": assetID})
}

func (o *Orchestrator) cacheSnapshot(ctx context.Context, snap domain.AssetSnapshot) {
	if o.cache == nil {
		return
	}
	encoded, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, snapshotCacheKey(snap.ID), encoded, snapshotCacheTTL); err != nil {
		log.Printf("ingest: caching snapshot %s failed: %v", snap.ID, err)
	}
}

// GetCachedAssetSnapshot is the read-through convenience for the API layer:
// cache first, store on miss, nil when the asset is unknown. Cache failures
// degrade to a store read.
func (o *Orchestrator) GetCachedAssetSnapshot(ctx context.Context, assetID string) (*domain.AssetSnapshot, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.get-cached-asset-snapshot")
	defer span.End()

	if o.cache != nil {
		if encoded, ok, err := o.cache.Get(ctx, snapshotCacheKey(assetID)); err == nil && ok {
			var snap domain.AssetSnapshot
			if err := json.Unmarshal(encoded, &snap); err == nil {
				return &snap, nil
			}
		}
	}

	snap, err := o.store.GetAssetSnapshot(ctx, assetID)
	if err != nil || snap == nil {
		return snap, err
	}
	o.cacheSnapshot(ctx, *snap)
	return snap, nil
}
