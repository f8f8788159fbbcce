package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "settlement_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	sales = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement_layer",
			Subsystem: "market",
			Name:      "sales_total",
			Help:      "Total number of purchase settlements.",
		},
		[]string{"currency", "outcome"},
	)

	saleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement_layer",
			Subsystem: "market",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of purchase settlements.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"outcome"},
	)

	stakeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement_layer",
			Subsystem: "staking",
			Name:      "operations_total",
			Help:      "Total number of stake, unstake, and claim operations.",
		},
		[]string{"operation", "outcome"},
	)

	feeNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement_layer",
			Subsystem: "staking",
			Name:      "fee_notifications_total",
			Help:      "Total number of fee accruals routed to reward pools.",
		},
		[]string{"currency"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sales,
		saleDuration,
		stakeOps,
		feeNotifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSale records one purchase settlement attempt.
func RecordSale(currency string, duration time.Duration, success bool) {
	if currency == "" {
		currency = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	outcome := "failed"
	if success {
		outcome = "settled"
	}
	sales.WithLabelValues(currency, outcome).Inc()
	saleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStakeOperation records one staking operation.
func RecordStakeOperation(operation string, success bool) {
	outcome := "failed"
	if success {
		outcome = "ok"
	}
	stakeOps.WithLabelValues(operation, outcome).Inc()
}

// RecordFeeNotification records one fee accrual.
func RecordFeeNotification(currency string) {
	if currency == "" {
		currency = "unknown"
	}
	feeNotifications.WithLabelValues(currency).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "collections":
		if len(parts) == 1 {
			return "/collections"
		}
		if len(parts) == 2 {
			return "/collections/:collection"
		}
		return "/collections/:collection/" + parts[2]
	case "pools":
		if len(parts) == 1 {
			return "/pools"
		}
		if len(parts) == 2 {
			return "/pools/:pool"
		}
		return "/pools/:pool/" + parts[2]
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/:account/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
