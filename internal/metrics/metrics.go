// Package metrics exposes Prometheus collectors for the event pipeline, the
// dispatcher, the token manager, and the pollers.
//
// Collectors are registered on a private registry rather than the global
// default so tests and multiple engines in one process do not collide.
// Every Observe method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "area"

// Event outcomes recorded by ObserveEvent.
const (
	OutcomeDispatched = "dispatched"
	OutcomeNoMatch    = "no_match"
	OutcomeDuplicate  = "duplicate"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	reactions        *prometheus.CounterVec
	reactionDuration *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
	pollCycles       *prometheus.CounterVec
	rateLimited      prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events handled, by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reaction invocations, by reaction and result.",
		}, []string{"reaction", "result"}),
		reactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaction_duration_seconds",
			Help:      "Reaction invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"reaction"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "OAuth token refresh attempts, by provider and result.",
		}, []string{"provider", "result"}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poller cycles, by service and result.",
		}, []string{"service", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Inbound requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		m.events,
		m.reactions,
		m.reactionDuration,
		m.tokenRefreshes,
		m.pollCycles,
		m.rateLimited,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent counts one handled event.
func (m *Metrics) ObserveEvent(trigger, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(trigger, outcome).Inc()
}

// ObserveReaction counts one reaction invocation and its latency.
func (m *Metrics) ObserveReaction(reaction string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reactions.WithLabelValues(reaction, result(err)).Inc()
	m.reactionDuration.WithLabelValues(reaction).Observe(elapsed.Seconds())
}

// ObserveRefresh counts one token refresh attempt.
func (m *Metrics) ObserveRefresh(provider string, err error) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(provider, result(err)).Inc()
}

// ObservePoll counts one poller cycle.
func (m *Metrics) ObservePoll(service string, err error) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(service, result(err)).Inc()
}

// ObserveRateLimited counts one rejected request.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
