package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"riskpulse/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

// IngestionTrigger is the orchestrator surface the scheduler drives.
type IngestionTrigger interface {
	TriggerCycle(ctx context.Context) domain.CycleResult
}

// RiskScorer recomputes risk scores for all stored assets.
type RiskScorer interface {
	ScoreAll(ctx context.Context) (map[string]float64, error)
}

// Scheduler runs the ingestion cycle on a fixed interval and the risk
// scoring pass every six hours. Both also run once at startup so a fresh
// deployment does not sit empty until the first tick.
type Scheduler struct {
	tracer  trace.Tracer
	ingest  IngestionTrigger
	scorer  RiskScorer
	cron    *cron.Cron
	baseCtx context.Context

	ingestEvery time.Duration
}

func NewScheduler(tracer trace.Tracer, baseCtx context.Context, ingest IngestionTrigger, scorer RiskScorer, ingestIntervalSecs int) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	interval := time.Duration(ingestIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		tracer:      tracer,
		ingest:      ingest,
		scorer:      scorer,
		cron:        cron.New(),
		baseCtx:     baseCtx,
		ingestEvery: interval,
	}
}

// Start registers the jobs and starts the cron loop. Blocks only for the
// initial runs; the cron itself runs on its own goroutines.
func (s *Scheduler) Start() error {
	ingestSpec := fmt.Sprintf("@every %s", s.ingestEvery)
	if _, err := s.cron.AddFunc(ingestSpec, func() { s.runIngestion(s.baseCtx) }); err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 6h", func() { s.runScoring(s.baseCtx) }); err != nil {
		return fmt.Errorf("schedule risk scoring: %w", err)
	}

	go func() {
		s.runIngestion(s.baseCtx)
		s.runScoring(s.baseCtx)
	}()

	s.cron.Start()
	log.Printf("scheduler started: ingestion %s, risk scoring every 6h", ingestSpec)
	return nil
}

// Stop halts the cron loop and waits for any running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("scheduler stopped")
}

func (s *Scheduler) runIngestion(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "job.ingestion-cycle")
	defer span.End()

	result := s.ingest.TriggerCycle(ctx)
	if result.AlreadyRunning {
		log.Println("scheduler: ingestion cycle still running, skipping tick")
		return
	}
	if !result.Success() {
		log.Printf("scheduler: ingestion cycle finished with %d failures", len(result.Failures))
	}
}

func (s *Scheduler) runScoring(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "job.risk-scoring")
	defer span.End()

	if _, err := s.scorer.ScoreAll(ctx); err != nil {
		log.Printf("scheduler: risk scoring failed: %v", err)
	}
}
