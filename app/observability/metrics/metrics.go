package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	TurnsTotal          metric.Int64Counter
	TurnDurationSeconds metric.Float64Histogram
	ModelFailuresTotal  metric.Int64Counter
	DbQueryErrorsTotal  metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("InsuranceAssistant")
		var err error
		m := &AppMetrics{}

		m.TurnsTotal, err = meter.Int64Counter(
			"assistant_turns_total",
			metric.WithDescription("Total number of assistant turns completed, by mode and outcome"),
			metric.WithUnit("{turn}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create assistant_turns_total: %v", err)
		}

		m.TurnDurationSeconds, err = meter.Float64Histogram(
			"assistant_turn_duration_seconds",
			metric.WithDescription("End-to-end duration of assistant turns in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create assistant_turn_duration_seconds: %v", err)
		}

		m.ModelFailuresTotal, err = meter.Int64Counter(
			"model_failures_total",
			metric.WithDescription("Total number of upstream model calls that failed and were degraded to the fallback text"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create model_failures_total: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
