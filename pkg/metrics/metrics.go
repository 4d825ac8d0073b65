package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/authgrid/authgrid/internal/common/config"
)

type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	grantCnt        *prometheus.CounterVec
	tokensIssuedCnt *prometheus.CounterVec
	revokedCnt      prometheus.Counter
	introspectCnt   *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	// Register basic HTTP metrics
	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	grantCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "grants_total"}, []string{"grant_type", "outcome"})
	tokensIssuedCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "tokens_issued_total"}, []string{"grant_type"})
	revokedCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "tokens_revoked_total"})
	introspectCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "introspections_total"}, []string{"active"})
	r.MustRegister(grantCnt, tokensIssuedCnt, revokedCnt, introspectCnt)

	return &Metrics{
		registry:        r,
		namespace:       ns,
		httpReqCnt:      httpReqCnt,
		httpDur:         httpDur,
		httpInfl:        httpInfl,
		grantCnt:        grantCnt,
		tokensIssuedCnt: tokensIssuedCnt,
		revokedCnt:      revokedCnt,
		introspectCnt:   introspectCnt,
	}
}

// GrantResult records a token endpoint outcome. outcome is "success" or
// the OAuth2 error code.
func (m *Metrics) GrantResult(grantType, outcome string) {
	m.grantCnt.WithLabelValues(grantType, outcome).Inc()
	if outcome == "success" {
		m.tokensIssuedCnt.WithLabelValues(grantType).Inc()
	}
}

func (m *Metrics) TokenRevoked() {
	m.revokedCnt.Inc()
}

func (m *Metrics) Introspection(active bool) {
	m.introspectCnt.WithLabelValues(strconv.FormatBool(active)).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatus(code int) string { return strconv.Itoa(code) }
