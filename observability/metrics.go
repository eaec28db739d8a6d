package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	platformMetricsOnce sync.Once
	platformRegistry    *PlatformMetrics

	workerMetricsOnce sync.Once
	workerRegistry    *WorkerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record API module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "portfolium",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// PlatformMetrics tracks calls executed by the in-process ledger.
type PlatformMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	reverts *prometheus.CounterVec
	commits prometheus.Counter
	height  prometheus.Gauge
}

// Platform returns the singleton metrics registry for the ledger.
func Platform() *PlatformMetrics {
	platformMetricsOnce.Do(func() {
		platformRegistry = &PlatformMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "platform",
				Name:      "calls_total",
				Help:      "Count of executed calls segmented by module and outcome.",
			}, []string{"module", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "portfolium",
				Subsystem: "platform",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for executed calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module"}),
			reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "platform",
				Name:      "reverts_total",
				Help:      "Count of reverted calls segmented by module and error code.",
			}, []string{"module", "code"}),
			commits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "platform",
				Name:      "commits_total",
				Help:      "Count of state commits.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "portfolium",
				Subsystem: "platform",
				Name:      "height",
				Help:      "Number of commits applied to the state.",
			}),
		}
		prometheus.MustRegister(
			platformRegistry.calls,
			platformRegistry.latency,
			platformRegistry.reverts,
			platformRegistry.commits,
			platformRegistry.height,
		)
	})
	return platformRegistry
}

// ObserveCall records one executed call. code is empty for successful calls.
func (m *PlatformMetrics) ObserveCall(module, code string, d time.Duration) {
	if m == nil {
		return
	}
	module = labelModule(module)
	if code == "" {
		m.calls.WithLabelValues(module, "success").Inc()
	} else {
		m.calls.WithLabelValues(module, "reverted").Inc()
		m.reverts.WithLabelValues(module, code).Inc()
	}
	m.latency.WithLabelValues(module).Observe(d.Seconds())
}

// RecordCommit records a state commit at the given height.
func (m *PlatformMetrics) RecordCommit(height uint64) {
	if m == nil {
		return
	}
	m.commits.Inc()
	m.height.Set(float64(height))
}

// WorkerMetrics tracks the off-chain fund worker.
type WorkerMetrics struct {
	ticks        *prometheus.CounterVec
	tickLatency  *prometheus.HistogramVec
	prices       *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	transactions *prometheus.CounterVec
	gasFallbacks *prometheus.CounterVec
	orders       *prometheus.CounterVec
}

// Worker returns the singleton metrics registry for the fund worker.
func Worker() *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerRegistry = &WorkerMetrics{
			ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "ticks_total",
				Help:      "Count of task ticks segmented by task and outcome.",
			}, []string{"task", "outcome"}),
			tickLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "tick_duration_seconds",
				Help:      "Latency distribution for task ticks.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"task"}),
			prices: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "prices_pushed_total",
				Help:      "Count of prices pushed to the oracle segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "last_price_wei",
				Help:      "Last price pushed for an asset, in wei.",
			}, []string{"asset"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "transactions_total",
				Help:      "Count of application-key transactions segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			gasFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "gas_estimate_fallbacks_total",
				Help:      "Count of transactions sent with the default gas limit after estimation failed.",
			}, []string{"method"}),
			orders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "worker",
				Name:      "orders_completed_total",
				Help:      "Count of synthetic orders completed segmented by side and outcome.",
			}, []string{"side", "outcome"}),
		}
		prometheus.MustRegister(
			workerRegistry.ticks,
			workerRegistry.tickLatency,
			workerRegistry.prices,
			workerRegistry.lastPrice,
			workerRegistry.transactions,
			workerRegistry.gasFallbacks,
			workerRegistry.orders,
		)
	})
	return workerRegistry
}

// ObserveTick records one task tick.
func (m *WorkerMetrics) ObserveTick(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(task, outcome(err)).Inc()
	m.tickLatency.WithLabelValues(task).Observe(d.Seconds())
}

// RecordPrice records a price push attempt.
func (m *WorkerMetrics) RecordPrice(asset string, price *big.Int, err error) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.prices.WithLabelValues(label, outcome(err)).Inc()
	if err == nil {
		m.lastPrice.WithLabelValues(label).Set(bigToFloat(price))
	}
}

// RecordTransaction records an application-key transaction.
func (m *WorkerMetrics) RecordTransaction(method string, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(method, outcome(err)).Inc()
}

// RecordGasFallback records a send that used the default gas limit.
func (m *WorkerMetrics) RecordGasFallback(method string) {
	if m == nil {
		return
	}
	m.gasFallbacks.WithLabelValues(method).Inc()
}

// RecordOrder records a synthetic order completion attempt.
func (m *WorkerMetrics) RecordOrder(side string, err error) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func labelModule(module string) string {
	trimmed := strings.TrimSpace(strings.ToLower(module))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
