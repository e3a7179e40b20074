package usecase

import (
	"time"

	"github.com/pricescout/backend/internal/domain"
)

// NopMetrics discards all pipeline events
type NopMetrics struct{}

func (NopMetrics) ProviderAttempt(string, string, time.Duration) {}
func (NopMetrics) ProviderSkipped(string, string) {}
func (NopMetrics) CacheLookup(string) {}
func (NopMetrics) ObservationsExtracted(domain.Strategy, int) {}
func (NopMetrics) SearchCompleted(string, bool) {}

var _ domain.Metrics = NopMetrics{}
