// Adapted from https://github.com/zsais/go-gin-prometheus/blob/master/middleware.go, didn't need all the bells
// and whistles, all props goes to @zsais. Route labels use gin's own route
// template (c.FullPath()) instead of a manual param-substring replace, and
// metric names carry the s3_read_proxy_ prefix used across pkg/metrics so
// generic HTTP metrics and the domain gauges in domain_metrics.go share one
// namespace.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var reqCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "s3_read_proxy_http_requests_total",
	Help: "How many HTTP requests processed, partitioned by status code, method and route.",
}, []string{"code", "method", "route", "host"})

var reqDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "s3_read_proxy_http_request_duration_seconds",
	Help: "The HTTP request latencies in seconds, partitioned by status code, method and route.",
}, []string{"code", "method", "route"})

var respSize = prometheus.NewSummary(prometheus.SummaryOpts{
	Name: "s3_read_proxy_http_response_size_bytes",
	Help: "The HTTP response sizes in bytes.",
})

var reqSize = prometheus.NewSummary(prometheus.SummaryOpts{
	Name: "s3_read_proxy_http_request_size_bytes",
	Help: "The HTTP request sizes in bytes.",
})

// routeTemplate returns the matched route pattern (e.g. "/:account/:repo/*key")
// rather than the literal request path, so per-object-key cardinality never
// leaks into a label value.
func routeTemplate(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

func PromReqMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqSz := float64(computeApproximateRequestSize(c.Request))

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := float64(time.Since(start)) / float64(time.Second)
		resSz := float64(c.Writer.Size())

		route := routeTemplate(c)
		reqDur.WithLabelValues(status, c.Request.Method, route).Observe(elapsed)
		reqCount.WithLabelValues(status, c.Request.Method, route, c.Request.Host).Inc()
		reqSize.Observe(reqSz)
		respSize.Observe(resSz)
	}
}

func computeApproximateRequestSize(r *http.Request) int {
	s := 0
	if r.URL != nil {
		s = len(r.URL.Path)
	}

	s += len(r.Method)
	s += len(r.Proto)
	for name, values := range r.Header {
		s += len(name)
		for _, value := range values {
			s += len(value)
		}
	}
	s += len(r.Host)

	// N.B. r.Form and r.MultipartForm are assumed to be included in r.URL.

	if r.ContentLength != -1 {
		s += int(r.ContentLength)
	}
	return s
}
