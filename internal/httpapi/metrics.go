package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "residencyd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "residencyd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "residencyd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight)
}

var (
	cacheHandles = prometheus.NewDesc(
		"residencyd_cache_handles",
		"Number of active handles in the residency cache",
		nil, nil,
	)
	cacheLoadedBytes = prometheus.NewDesc(
		"residencyd_cache_loaded_bytes",
		"Bytes currently resident across active handles",
		nil, nil,
	)
	cacheQuarantine = prometheus.NewDesc(
		"residencyd_cache_quarantined",
		"Number of quarantined handles awaiting resurrection or disposal",
		nil, nil,
	)
)

// cacheCollector pulls point-in-time cache stats on every scrape.
type cacheCollector struct {
	svc Service
}

func (cc cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheHandles
	ch <- cacheLoadedBytes
	ch <- cacheQuarantine
}

func (cc cacheCollector) Collect(ch chan<- prometheus.Metric) {
	st := cc.svc.Stats()
	ch <- prometheus.MustNewConstMetric(cacheHandles, prometheus.GaugeValue, float64(st.TotalHandles))
	ch <- prometheus.MustNewConstMetric(cacheLoadedBytes, prometheus.GaugeValue, float64(st.TotalLoadedBytes))
	ch <- prometheus.MustNewConstMetric(cacheQuarantine, prometheus.GaugeValue, float64(cc.svc.Status().QuarantineCount))
}

var registerOnce sync.Once

// registerCacheMetrics installs the scrape-time collector for the first
// service wired into a mux. Subsequent muxes (tests) reuse the first.
func registerCacheMetrics(svc Service) {
	registerOnce.Do(func() {
		prometheus.MustRegister(cacheCollector{svc: svc})
	})
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
