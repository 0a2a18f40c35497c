package http

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	tokensIssuedTotal  *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
)

// RegisterMetrics initializes the Prometheus collectors and returns the
// handler for /metrics. Safe to call more than once.
func RegisterMetrics(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight requests by method and path",
		}, []string{"method", "path"})

		tokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_tokens_issued_total",
			Help: "Access tokens issued by grant type",
		}, []string{"grant_type"})

		verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_verifications_total",
			Help: "Token verifications by outcome",
		}, []string{"outcome"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			tokensIssuedTotal, verificationsTotal,
		} {
			if err := registerCollector(reg, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}
	return promhttp.Handler(), nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// WithMetrics instruments requests with counters, latency and in-flight
// gauges. No-op when RegisterMetrics has not run.
func WithMetrics(next http.Handler) http.Handler {
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		path := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, path).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, path).Dec()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// normalizePath collapses id-bearing segments so the path label stays
// low-cardinality.
func normalizePath(p string) string {
	switch {
	case strings.HasPrefix(p, "/v1/client/"):
		return "/v1/client/{client_id}"
	case strings.HasPrefix(p, "/v1/client-tokens/"):
		return "/v1/client-tokens/{client_id}"
	}
	return p
}

func countIssued(grantType string) {
	if tokensIssuedTotal != nil {
		tokensIssuedTotal.WithLabelValues(grantType).Inc()
	}
}

func countVerification(outcome string) {
	if verificationsTotal != nil {
		verificationsTotal.WithLabelValues(outcome).Inc()
	}
}
