// Package metrics records connection, routing and animation metrics with
// Prometheus. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the agent's Prometheus collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	connectAttempts  *prometheus.CounterVec
	retriesScheduled prometheus.Counter
	exhausted        prometheus.Counter
	backendConnected prometheus.Gauge
	messagesRouted   *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	outbound         *prometheus.CounterVec
	animations       *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry so
// multiple agents in one process (tests) do not collide.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		connectAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperfy_agent_connect_attempts_total",
				Help: "Backend channel open attempts by result",
			},
			[]string{"result"},
		),
		retriesScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "hyperfy_agent_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a channel loss",
		}),
		exhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "hyperfy_agent_reconnect_exhausted_total",
			Help: "Times the agent gave up reconnecting",
		}),
		backendConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "hyperfy_agent_backend_connected",
			Help: "1 while the backend handshake is complete",
		}),
		messagesRouted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperfy_agent_messages_routed_total",
				Help: "Inbound backend messages dispatched by type",
			},
			[]string{"type"},
		),
		messagesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperfy_agent_messages_dropped_total",
				Help: "Inbound backend messages dropped by reason",
			},
			[]string{"reason"},
		),
		outbound: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperfy_agent_outbound_messages_total",
				Help: "Outbound frames by type and result",
			},
			[]string{"type", "result"},
		),
		animations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperfy_agent_animation_transitions_total",
				Help: "Animation transitions by target animation",
			},
			[]string{"animation"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) ConnectAttempt(result string) {
	if r == nil {
		return
	}
	r.connectAttempts.WithLabelValues(result).Inc()
}

func (r *Recorder) RetryScheduled() {
	if r == nil {
		return
	}
	r.retriesScheduled.Inc()
}

func (r *Recorder) Exhausted() {
	if r == nil {
		return
	}
	r.exhausted.Inc()
}

func (r *Recorder) BackendConnected(up bool) {
	if r == nil {
		return
	}
	if up {
		r.backendConnected.Set(1)
	} else {
		r.backendConnected.Set(0)
	}
}

func (r *Recorder) MessageRouted(frameType string) {
	if r == nil {
		return
	}
	r.messagesRouted.WithLabelValues(frameType).Inc()
}

func (r *Recorder) MessageDropped(reason string) {
	if r == nil {
		return
	}
	r.messagesDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) Outbound(frameType, result string) {
	if r == nil {
		return
	}
	r.outbound.WithLabelValues(frameType, result).Inc()
}

func (r *Recorder) AnimationTransition(name string) {
	if r == nil {
		return
	}
	r.animations.WithLabelValues(name).Inc()
}
