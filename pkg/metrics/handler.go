// Package metrics carries the s3_read_proxy_ Prometheus namespace: generic
// HTTP metrics in request_metrics.go and the resolver/cache/backend counters
// and histograms in domain_metrics.go, served off a dedicated listener so scraping never
// shares a port with the object traffic in pkg/web.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server runs the /metrics endpoint on its own listener until it exits with
// an error; call it in a goroutine, as GetRouter does.
func Server(listenAddr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", listenAddr).Msg("serving s3-read-proxy metrics")
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}
