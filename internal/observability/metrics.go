package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerDriftCounter    *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	payoutCounter         *prometheus.CounterVec
	oracleFallbackCounter *prometheus.CounterVec
	notifyDropCounter     *prometheus.CounterVec
	concurrencyRetries    prometheus.Counter
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Balances that disagree with the sum of their completed transactions",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		payoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "investment_payouts_total",
			Help: "Payout scheduler outcomes per investment",
		}, []string{"result"})

		oracleFallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_oracle_fallbacks_total",
			Help: "Upstream oracle failures served from cache or zero",
		}, []string{"kind"})

		notifyDropCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications dropped or rejected by the sink",
		}, []string{"reason"})

		concurrencyRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_concurrency_retries_total",
			Help: "Ledger operations retried after a stale balance version",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerDriftCounter,
			idempotencyCounter,
			payoutCounter,
			oracleFallbackCounter,
			notifyDropCounter,
			concurrencyRetries,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerDrift(currency string) {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

// AddPayoutResults records one scheduler pass: paid, skipped and failed investments.
func AddPayoutResults(paid, skipped, failed int) {
	if payoutCounter == nil {
		return
	}
	payoutCounter.WithLabelValues("paid").Add(float64(paid))
	payoutCounter.WithLabelValues("skipped").Add(float64(skipped))
	payoutCounter.WithLabelValues("failed").Add(float64(failed))
}

func IncrementOracleFallback(kind string) {
	if oracleFallbackCounter == nil {
		return
	}
	oracleFallbackCounter.WithLabelValues(kind).Inc()
}

func IncrementNotifyFailure(reason string) {
	if notifyDropCounter == nil {
		return
	}
	notifyDropCounter.WithLabelValues(reason).Inc()
}

func IncrementConcurrencyRetry() {
	if concurrencyRetries == nil {
		return
	}
	concurrencyRetries.Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
