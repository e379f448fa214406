package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"riskpulse/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type fakeTrigger struct {
	calls  atomic.Int32
	result domain.CycleResult
	done   chan struct{}
}

func (f *fakeTrigger) TriggerCycle(ctx context.Context) domain.CycleResult {
	f.calls.Add(1)
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return f.result
}

type fakeScorer struct {
	calls atomic.Int32
	done  chan struct{}
}

func (f *fakeScorer) ScoreAll(ctx context.Context) (map[string]float64, error) {
	f.calls.Add(1)
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return map[string]float64{}, nil
}

func TestSchedulerRunsBothJobsAtStartup(t *testing.T) {
	trigger := &fakeTrigger{done: make(chan struct{}, 1)}
	scorer := &fakeScorer{done: make(chan struct{}, 1)}
	s := NewScheduler(trace.NewNoopTracerProvider().Tracer("test"), context.Background(), trigger, scorer, 300)

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	for _, ch := range []chan struct{}{trigger.done, scorer.done} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("initial run did not happen")
		}
	}
}

func TestRunIngestionSkipsOnCancelledContext(t *testing.T) {
	trigger := &fakeTrigger{}
	s := NewScheduler(trace.NewNoopTracerProvider().Tracer("test"), context.Background(), trigger, &fakeScorer{}, 300)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runIngestion(ctx)
	if trigger.calls.Load() != 0 {
		t.Fatal("cancelled context should suppress the cycle")
	}
}

func TestRunIngestionToleratesOverlap(t *testing.T) {
	trigger := &fakeTrigger{result: domain.CycleResult{AlreadyRunning: true}}
	s := NewScheduler(trace.NewNoopTracerProvider().Tracer("test"), context.Background(), trigger, &fakeScorer{}, 300)

	s.runIngestion(context.Background())
	s.runIngestion(context.Background())
	if trigger.calls.Load() != 2 {
		t.Fatalf("each tick should still ask the orchestrator, got %d calls", trigger.calls.Load())
	}
}
