package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUnsupportedQueryType is returned for a query type other than web, shopping or image
	ErrUnsupportedQueryType = errors.New("unsupported query type")

	// ErrUnknownProvider is returned when a provider name is not registered
	ErrUnknownProvider = errors.New("unknown search provider")

	// ErrProviderTimeout is returned when a provider attempt exceeds its deadline
	ErrProviderTimeout = errors.New("search provider timed out")

	// ErrProviderBlocked is returned when a provider answers with a block or captcha page
	ErrProviderBlocked = errors.New("search provider blocked the request")

	// ErrProviderRateLimited is returned when a provider answers 429
	ErrProviderRateLimited = errors.New("search provider rate limited the request")

	// ErrProviderFailure is returned for any other provider error
	ErrProviderFailure = errors.New("search provider request failed")

	// ErrEmptyResult is returned when a provider answers well-formed but without candidates
	ErrEmptyResult = errors.New("search provider returned no results")

	// ErrProvidersExhausted is returned when every provider was skipped or failed
	ErrProvidersExhausted = errors.New("all search providers exhausted")

	// ErrRateLimited is returned when the local rate limiter refuses a provider
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCircuitOpen is returned when a provider is temporarily deprioritized after repeated failures
	ErrCircuitOpen = errors.New("provider circuit open")

	// ErrMalformedPrice is returned when a price string cannot be parsed
	ErrMalformedPrice = errors.New("malformed price")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrInvalidTTL is returned when a cache write has a non-positive TTL
	ErrInvalidTTL = errors.New("cache ttl must be positive")

	// ErrRateStoreUnavailable is returned when rate usage records cannot be read or written
	ErrRateStoreUnavailable = errors.New("rate usage store unavailable")

	// ErrPageDisallowed is returned when robots.txt forbids fetching a page
	ErrPageDisallowed = errors.New("page disallowed by robots.txt")
)

// IsHardProviderError reports whether err counts toward a provider's failure budget.
// Empty results move the orchestrator on but are not hard errors.
func IsHardProviderError(err error) bool {
	return err != nil && !errors.Is(err, ErrEmptyResult)
}
