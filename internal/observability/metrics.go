package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for traidetrain.
type Metrics struct {
	// --- Trade engine ---
	TradesExecuted   *prometheus.CounterVec
	TradesRejected   *prometheus.CounterVec
	TradeApplyDur    *prometheus.HistogramVec
	DepositsTotal    prometheus.Counter
	ReportsBuilt     prometheus.Counter
	ReportSymbolSkip prometheus.Counter

	// --- Market data ---
	QuoteFetches    *prometheus.CounterVec
	QuoteFetchDur   *prometheus.HistogramVec
	RateRefreshes   *prometheus.CounterVec
	RateCacheAge    prometheus.Gauge
	FXFailOpenTotal prometheus.Counter

	// --- Store ---
	StoreLockWaitDur prometheus.Histogram
	StoreErrors      *prometheus.CounterVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// --- Events ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	applyBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	fetchBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

	return &Metrics{
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_trades_executed_total",
			Help: "Trades applied to the ledger",
		}, []string{"action"}),

		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_trades_rejected_total",
			Help: "Trades rejected before apply",
		}, []string{"action", "reason"}),

		TradeApplyDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traide_trade_apply_duration_seconds",
			Help:    "Time inside the account lock for a trade",
			Buckets: applyBuckets,
		}, []string{"action"}),

		DepositsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traide_deposits_total",
			Help: "Deposits applied",
		}),

		ReportsBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traide_reports_built_total",
			Help: "Portfolio reports built",
		}),

		ReportSymbolSkip: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traide_report_symbols_skipped_total",
			Help: "Holdings skipped in reports due to quote failures",
		}),

		QuoteFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_quote_fetches_total",
			Help: "Upstream quote fetches",
		}, []string{"provider", "status"}),

		QuoteFetchDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traide_quote_fetch_duration_seconds",
			Help:    "Upstream quote fetch latency",
			Buckets: fetchBuckets,
		}, []string{"provider"}),

		RateRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_rate_refreshes_total",
			Help: "Exchange-rate snapshot refreshes",
		}, []string{"status"}),

		RateCacheAge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "traide_rate_cache_age_seconds",
			Help: "Age of the cached rate snapshot",
		}),

		FXFailOpenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traide_fx_failopen_total",
			Help: "Conversions that fell back to a 1:1 rate",
		}),

		StoreLockWaitDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "traide_store_lock_wait_seconds",
			Help:    "Time waiting for the per-account lock",
			Buckets: applyBuckets,
		}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_store_errors_total",
			Help: "Ledger store failures",
		}, []string{"op"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traide_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"route"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traide_events_published_total",
			Help: "Outbound events published to NATS",
		}, []string{"event_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traide_publish_errors_total",
			Help: "Outbound publish failures (non-fatal)",
		}),
	}
}
