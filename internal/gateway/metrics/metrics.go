// Package metrics defines the gateway's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "craftconnect"

type Metrics struct {
	registry *prometheus.Registry

	TokensIssued     *prometheus.CounterVec // by reason: login, refresh
	RefreshFailures  *prometheus.CounterVec // by reason
	AuthRejections   *prometheus.CounterVec // by reason: missing, invalid
	RateLimited      *prometheus.CounterVec // by profile
	EventsFailed     prometheus.Counter
	PaymentChecks    *prometheus.CounterVec // by result
	RevocationsSwept prometheus.Counter
}

// New builds a private registry with the Go and process collectors plus the
// gateway's own counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_issued_total",
			Help: "Token pairs minted.",
		}, []string{"reason"}),
		RefreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refresh_failures_total",
			Help: "Refresh attempts that did not produce a pair.",
		}, []string{"reason"}),
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_rejections_total",
			Help: "Requests rejected by the authenticator.",
		}, []string{"reason"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Requests rejected by a rate limit profile.",
		}, []string{"profile"}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_events_failed_total",
			Help: "Session events that could not be published.",
		}),
		PaymentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_verifications_total",
			Help: "Payment signature checks.",
		}, []string{"result"}),
		RevocationsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "revocations_swept_total",
			Help: "Expired revocation entries removed by housekeeping.",
		}),
	}

	reg.MustRegister(
		m.TokensIssued,
		m.RefreshFailures,
		m.AuthRejections,
		m.RateLimited,
		m.EventsFailed,
		m.PaymentChecks,
		m.RevocationsSwept,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RateLimitHook counts a rejection under its profile name.
func (m *Metrics) RateLimitHook(profile string, _ *http.Request) {
	m.RateLimited.WithLabelValues(profile).Inc()
}

// AuthRejectHook counts a rejected request under its reason.
func (m *Metrics) AuthRejectHook(reason string, _ *http.Request) {
	m.AuthRejections.WithLabelValues(reason).Inc()
}
