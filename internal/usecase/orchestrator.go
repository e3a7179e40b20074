package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/pricescout/backend/internal/domain"
)

// Default orchestrator settings
const (
	defaultAttemptTimeout     = 10 * time.Second
	defaultRetryBackoff       = 300 * time.Millisecond
	defaultBreakerMaxFailures = 5
	defaultBreakerCooldown    = 60 * time.Second
	defaultBreakerInterval    = 5 * time.Minute
)

// Attempt outcomes reported to metrics
const (
	outcomeSuccess     = "success"
	outcomeEmpty       = "empty"
	outcomeTimeout     = "timeout"
	outcomeBlocked     = "blocked"
	outcomeRateLimited = "rate_limited"
	outcomeFailure     = "failure"
)

// OrchestratorConfig holds configuration for the fallback orchestrator
type OrchestratorConfig struct {
	AttemptTimeout time.Duration
	// MaxRetries is the number of extra attempts per provider after a failure.
	MaxRetries   int
	RetryBackoff time.Duration

	// Failure budget: consecutive hard errors before a provider is skipped for Cooldown.
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
	BreakerInterval    time.Duration
}

// ProviderStats describes one provider for monitoring
type ProviderStats struct {
	Name                string     `json:"name"`
	Position            int        `json:"position"`
	BreakerState        string     `json:"breakerState"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	TransientFailures   int64      `json:"transientFailures"`
	Successes           int64      `json:"successes"`
	Rate                RateStatus `json:"rate"`
	RateStatusAvailable bool       `json:"rateStatusAvailable"`
}

// providerEntry bundles a provider with its failure budget and counters
type providerEntry struct {
	provider  domain.SearchProvider
	breaker   *gobreaker.CircuitBreaker[*domain.ProviderResult]
	failures  atomic.Int64
	successes atomic.Int64
}

// FallbackOrchestrator drives providers in priority order until one returns
// usable candidates. The first usable result wins and later providers are
// never invoked.
type FallbackOrchestrator struct {
	entries map[string]*providerEntry
	order   []string
	limiter *RateLimiter
	metrics domain.Metrics
	config  OrchestratorConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewFallbackOrchestrator creates an orchestrator. Every name in order must
// belong to a registered provider.
func NewFallbackOrchestrator(
	providers []domain.SearchProvider,
	order []string,
	limiter *RateLimiter,
	metrics domain.Metrics,
	config OrchestratorConfig,
) (*FallbackOrchestrator, error) {
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaultAttemptTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	if config.BreakerMaxFailures == 0 {
		config.BreakerMaxFailures = defaultBreakerMaxFailures
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = defaultBreakerCooldown
	}
	if config.BreakerInterval <= 0 {
		config.BreakerInterval = defaultBreakerInterval
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}

	o := &FallbackOrchestrator{
		entries: make(map[string]*providerEntry, len(providers)),
		limiter: limiter,
		metrics: metrics,
		config:  config,
		sleep:   sleepContext,
	}
	for _, p := range providers {
		o.entries[p.Name()] = &providerEntry{
			provider: p,
			breaker:  newProviderBreaker(p.Name(), config),
		}
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: empty provider order", domain.ErrInvalidRequest)
	}
	if err := o.ValidateOrder(order); err != nil {
		return nil, err
	}
	o.order = append([]string(nil), order...)
	return o, nil
}

// newProviderBreaker builds the failure budget of one provider. Empty results
// move the orchestrator on but do not count against the provider.
func newProviderBreaker(name string, config OrchestratorConfig) *gobreaker.CircuitBreaker[*domain.ProviderResult] {
	maxFailures := config.BreakerMaxFailures
	return gobreaker.NewCircuitBreaker[*domain.ProviderResult](gobreaker.Settings{
		Name:        "provider:" + name,
		MaxRequests: 1, // one trial request while half-open
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return !domain.IsHardProviderError(err)
		},
	})
}

// Order returns the configured provider priority order
func (o *FallbackOrchestrator) Order() []string {
	return append([]string(nil), o.order...)
}

// ValidateOrder checks that every name is a registered provider
func (o *FallbackOrchestrator) ValidateOrder(order []string) error {
	for _, name := range order {
		if _, ok := o.entries[name]; !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
		}
	}
	return nil
}

// Fetch runs query through the providers in order (the configured order
// when order is empty). It returns ErrProvidersExhausted when every
// provider was skipped or failed.
func (o *FallbackOrchestrator) Fetch(
	ctx context.Context,
	query string,
	queryType domain.QueryType,
	order []string,
) (*domain.ProviderResult, error) {
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}
	if len(order) == 0 {
		order = o.order
	} else if err := o.ValidateOrder(order); err != nil {
		return nil, err
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, done := o.tryProvider(ctx, o.entries[name], query, queryType)
		if done {
			return result, nil
		}
	}

	log.Info().Str("query", query).Strs("order", order).Msg("all search providers exhausted")
	return nil, domain.ErrProvidersExhausted
}

// tryProvider runs one provider with its bounded retries. It reports true
// when the provider produced a usable result.
func (o *FallbackOrchestrator) tryProvider(
	ctx context.Context,
	entry *providerEntry,
	query string,
	queryType domain.QueryType,
) (*domain.ProviderResult, bool) {
	name := entry.provider.Name()

	for attempt := 1; attempt <= 1+o.config.MaxRetries; attempt++ {
		eligible, err := o.limiter.TryAcquire(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("rate usage unavailable, trying provider anyway")
			eligible = true
		}
		if !eligible {
			log.Debug().Str("provider", name).Msg("provider rate limited locally, skipping")
			o.metrics.ProviderSkipped(name, "rate_limited")
			return nil, false
		}

		start := time.Now()
		result, err := entry.breaker.Execute(func() (*domain.ProviderResult, error) {
			return o.attempt(ctx, entry.provider, query, queryType)
		})
		duration := time.Since(start)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Debug().Str("provider", name).Msg("provider circuit open, skipping")
			o.metrics.ProviderSkipped(name, "circuit_open")
			return nil, false
		}

		outcome := classifyOutcome(err)
		o.metrics.ProviderAttempt(name, outcome, duration)

		if err == nil {
			entry.successes.Add(1)
			result.Provider = name
			result.Attempt = attempt
			result.Duration = duration
			log.Info().
				Str("provider", name).
				Int("attempt", attempt).
				Int("candidates", len(result.Candidates)).
				Dur("duration", duration).
				Msg("provider returned results")
			return result, true
		}

		entry.failures.Add(1)
		log.Warn().
			Err(err).
			Str("provider", name).
			Int("attempt", attempt).
			Str("outcome", outcome).
			Dur("duration", duration).
			Msg("provider attempt failed")

		if attempt <= o.config.MaxRetries {
			if err := o.sleep(ctx, jitter(o.config.RetryBackoff)); err != nil {
				return nil, false
			}
		}
	}
	return nil, false
}

// attempt issues one request under its own deadline and counts it against the rate window
func (o *FallbackOrchestrator) attempt(
	ctx context.Context,
	provider domain.SearchProvider,
	query string,
	queryType domain.QueryType,
) (*domain.ProviderResult, error) {
	if err := o.limiter.RecordUse(ctx, provider.Name()); err != nil {
		log.Warn().Err(err).Str("provider", provider.Name()).Msg("failed to record provider use")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.config.AttemptTimeout)
	defer cancel()

	result, err := provider.Attempt(attemptCtx, query, queryType)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrProviderTimeout) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
		}
		return nil, err
	}
	if !result.Usable() {
		return nil, domain.ErrEmptyResult
	}
	return result, nil
}

// Stats returns the monitoring view of every provider in priority order
func (o *FallbackOrchestrator) Stats(ctx context.Context) []ProviderStats {
	stats := make([]ProviderStats, 0, len(o.entries))
	position := make(map[string]int, len(o.order))
	for i, name := range o.order {
		position[name] = i + 1
	}

	names := append([]string(nil), o.order...)
	for name := range o.entries {
		if _, ok := position[name]; !ok {
			names = append(names, name)
		}
	}

	for _, name := range names {
		entry := o.entries[name]
		s := ProviderStats{
			Name:                name,
			Position:            position[name],
			BreakerState:        entry.breaker.State().String(),
			ConsecutiveFailures: entry.breaker.Counts().ConsecutiveFailures,
			TransientFailures:   entry.failures.Load(),
			Successes:           entry.successes.Load(),
		}
		if rate, err := o.limiter.Status(ctx, name); err == nil {
			s.Rate = rate
			s.RateStatusAvailable = true
		}
		stats = append(stats, s)
	}
	return stats
}

func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, domain.ErrEmptyResult):
		return outcomeEmpty
	case errors.Is(err, domain.ErrProviderTimeout):
		return outcomeTimeout
	case errors.Is(err, domain.ErrProviderBlocked):
		return outcomeBlocked
	case errors.Is(err, domain.ErrProviderRateLimited):
		return outcomeRateLimited
	default:
		return outcomeFailure
	}
}

// jitter returns a duration uniformly spread over [d/2, 3d/2)
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
