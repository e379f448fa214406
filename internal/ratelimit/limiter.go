package ratelimit

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"riskpulse/internal/domain"
)

// ServiceConfig bounds outbound traffic for one upstream service.
type ServiceConfig struct {
	CallsPerInterval int
	Interval         time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Jitter           float64
	RequestTimeout   time.Duration
}

// DefaultConfig is the conservative fallback applied to services that were
// never configured: 60 calls/minute, 5 retries.
func DefaultConfig() ServiceConfig {
	return ServiceConfig{
		CallsPerInterval: 60,
		Interval:         time.Minute,
		MaxRetries:       5,
		BaseDelay:        time.Second,
		MaxDelay:         60 * time.Second,
		Jitter:           0.25,
		RequestTimeout:   30 * time.Second,
	}
}

type serviceState struct {
	mu           sync.Mutex
	cfg          ServiceConfig
	lastDispatch time.Time
}

func (s *serviceState) spacing() time.Duration {
	if s.cfg.CallsPerInterval <= 0 {
		return 0
	}
	return s.cfg.Interval / time.Duration(s.cfg.CallsPerInterval)
}

// Limiter gates outbound request rate per upstream service and retries
// transient failures with exponential backoff and jitter. Dispatch-time
// decisions are serialized per service name, so concurrent callers sharing a
// service cannot violate the spacing invariant.
type Limiter struct {
	mu       sync.Mutex
	services map[string]*serviceState
	sleep    func(ctx context.Context, d time.Duration) error
}

func New() *Limiter {
	return &Limiter{
		services: make(map[string]*serviceState),
		sleep:    sleepCtx,
	}
}

// Configure sets the rate limit for a service, replacing any prior
// configuration. Zero fields fall back to the defaults.
func (l *Limiter) Configure(service string, cfg ServiceConfig) {
	def := DefaultConfig()
	if cfg.CallsPerInterval <= 0 {
		cfg.CallsPerInterval = def.CallsPerInterval
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = def.Jitter
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.services[service] = &serviceState{cfg: cfg}
	log.Printf("rate limit configured for %s: %d calls per %s", service, cfg.CallsPerInterval, cfg.Interval)
}

func (l *Limiter) state(service string) *serviceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.services[service]
	if !ok {
		st = &serviceState{cfg: DefaultConfig()}
		l.services[service] = st
	}
	return st
}

// Wait blocks until a dispatch slot is available for the service, then
// records the dispatch time. The spacing applies from the first call after
// configuration onward.
func (l *Limiter) Wait(ctx context.Context, service string) error {
	st := l.state(service)

	st.mu.Lock()
	defer st.mu.Unlock()

	spacing := st.spacing()
	elapsed := time.Since(st.lastDispatch)
	if wait := spacing - elapsed; wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	st.lastDispatch = time.Now()
	return nil
}

// Execute runs fn under the service's rate gate, retrying transient failures
// with exponential backoff plus jitter. Each attempt runs under the
// configured per-request timeout; a timeout counts as a retryable failure.
// After the retry budget is exhausted the final error is returned.
func (l *Limiter) Execute(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	st := l.state(service)
	st.mu.Lock()
	cfg := st.cfg
	st.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := l.Wait(ctx, service); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := retryDelay(cfg, attempt)
		if hint, ok := domain.RetryAfterHint(err); ok {
			delay = hint
		}
		log.Printf("%s request failed (attempt %d/%d), retrying in %s: %v", service, attempt+1, cfg.MaxRetries, delay.Round(time.Millisecond), err)
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}

	log.Printf("%s request failed after %d retries: %v", service, cfg.MaxRetries, lastErr)
	return lastErr
}

// retryDelay computes min(maxDelay, baseDelay*2^attempt) perturbed by a
// uniform draw in ±jitter*delay, floored at 100ms.
func retryDelay(cfg ServiceConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	jitter := delay * cfg.Jitter
	delay += (rand.Float64()*2 - 1) * jitter
	if floor := float64(100 * time.Millisecond); delay < floor {
		delay = floor
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
