// Package metrics defines the Prometheus metrics exported by graphrelay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokenAcquisitions counts tokens handed out, by auth mode and source
	// ("cache", "exchange", "refresh").
	TokenAcquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphrelay_token_acquisitions_total",
		Help: "Total number of bearer tokens resolved, by auth mode and source",
	}, []string{"mode", "source"})
	// TokenFailures counts failed resolutions by auth mode and error kind.
	TokenFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphrelay_token_failures_total",
		Help: "Total number of failed bearer token resolutions, by auth mode and error kind",
	}, []string{"mode", "kind"})
	// DeviceLogins counts completed device logins by outcome.
	DeviceLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphrelay_device_logins_total",
		Help: "Total number of device logins, by outcome",
	}, []string{"outcome"})
	// SessionWrites counts writes of the persisted session state.
	SessionWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphrelay_session_writes_total",
		Help: "Total number of session state writes, by backend",
	}, []string{"backend"})
	// RelayRequests counts remote API calls by method and status code.
	RelayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphrelay_relay_requests_total",
		Help: "Total number of relayed remote API calls, by method and status code",
	}, []string{"method", "code"})
	// RelayLatency observes remote API call latency.
	RelayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphrelay_relay_request_duration_seconds",
		Help:    "Latency of relayed remote API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(TokenAcquisitions)
	prometheus.MustRegister(TokenFailures)
	prometheus.MustRegister(DeviceLogins)
	prometheus.MustRegister(SessionWrites)
	prometheus.MustRegister(RelayRequests)
	prometheus.MustRegister(RelayLatency)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
