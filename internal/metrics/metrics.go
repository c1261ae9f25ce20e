// Package metrics provides Prometheus instrumentation for the transaction engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts processed records by type and outcome
	// ("applied" or "dropped"). Dropped records are invisible to callers,
	// so this counter is the only external trace they leave.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_transactions_total",
		Help: "Total transaction records processed",
	}, []string{"type", "outcome"})

	// DropsTotal breaks dropped records down by rejection reason.
	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_drops_total",
		Help: "Transaction records dropped, by reason",
	}, []string{"reason"})

	// ApplyDuration tracks per-record apply latency by transaction type.
	ApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txengine_apply_duration_seconds",
		Help:    "Engine apply latency in seconds",
		Buckets: []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3},
	}, []string{"type"})

	// AccountsKnown tracks the number of accounts the engine has created.
	AccountsKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_accounts_known",
		Help: "Number of client accounts known to the engine",
	})

	// AccountsLocked tracks accounts frozen by a chargeback.
	AccountsLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_accounts_locked",
		Help: "Number of locked client accounts",
	})

	// DisputesOpen tracks deposits currently under dispute.
	DisputesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_disputes_open",
		Help: "Number of deposits currently disputed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
