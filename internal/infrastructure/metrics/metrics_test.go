package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/backend/internal/domain"
)

func scrape(t *testing.T, m *PrometheusMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusMetrics_Exposition(t *testing.T) {
	m := NewMetrics()

	m.ProviderAttempt("google", "success", 250*time.Millisecond)
	m.ProviderAttempt("google", "blocked", time.Second)
	m.ProviderSkipped("bing", "rate_limited")
	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.ObservationsExtracted(domain.StrategyPattern, 3)
	m.ObservationsExtracted(domain.StrategyStructured, 0)
	m.SearchCompleted("live", false)
	m.HTTPRequest(http.MethodGet, "/api/v1/search", http.StatusOK, 40*time.Millisecond)

	body := scrape(t, m)

	assert.Contains(t, body, `pricescout_provider_attempts_total{outcome="success",provider="google"} 1`)
	assert.Contains(t, body, `pricescout_provider_attempts_total{outcome="blocked",provider="google"} 1`)
	assert.Contains(t, body, `pricescout_provider_attempt_duration_seconds_count{provider="google"} 2`)
	assert.Contains(t, body, `pricescout_provider_skipped_total{provider="bing",reason="rate_limited"} 1`)
	assert.Contains(t, body, `pricescout_cache_lookups_total{outcome="hit"} 2`)
	assert.Contains(t, body, `pricescout_observations_extracted_total{strategy="pattern"} 3`)
	assert.NotContains(t, body, `strategy="structured"`)
	assert.Contains(t, body, `pricescout_searches_total{exhausted="false",source="live"} 1`)
	assert.Contains(t, body, `pricescout_http_requests_total{method="GET",route="/api/v1/search",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheusMetrics_IndependentRegistries(t *testing.T) {
	first := NewMetrics()
	second := NewMetrics()

	first.CacheLookup("miss")

	assert.Contains(t, scrape(t, first), `pricescout_cache_lookups_total{outcome="miss"} 1`)
	assert.NotContains(t, scrape(t, second), `pricescout_cache_lookups_total{outcome="miss"}`)
}
