// Package metrics exposes Prometheus collectors for agents, executors and isolate hosts.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Executor metrics
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errand_calls_total",
			Help: "Total number of calls dispatched through an agent",
		},
		[]string{"backend", "op"},
	)

	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errand_replies_total",
			Help: "Total number of resolved calls",
		},
		[]string{"backend", "kind"},
	)

	pendingRemoteCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "errand_pending_remote_calls",
			Help: "Number of remote calls waiting for a reply",
		},
	)

	agentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errand_agent_failures_total",
			Help: "Total number of failed agents",
		},
		[]string{"backend"},
	)

	// Protocol metrics
	protocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errand_protocol_errors_total",
			Help: "Total number of messages rejected as protocol violations",
		},
		[]string{"component"},
	)

	// Isolate metrics
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "errand_dispatch_duration_seconds",
			Help:    "Duration of operations invoked by isolate dispatchers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "kind"},
	)

	activeDispatchers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "errand_active_dispatchers",
			Help: "Number of dispatchers served by isolate hosts",
		},
	)

	initOnce sync.Once
)

// Register registers the collectors with the default Prometheus registry.
func Register() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			callsTotal,
			repliesTotal,
			pendingRemoteCalls,
			agentFailuresTotal,
			protocolErrorsTotal,
			dispatchDuration,
			activeDispatchers,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCall(backend, op string) {
	callsTotal.WithLabelValues(backend, op).Inc()
}

func RecordReply(backend, kind string) {
	repliesTotal.WithLabelValues(backend, kind).Inc()
}

func AddPendingRemoteCalls(delta int) {
	pendingRemoteCalls.Add(float64(delta))
}

func RecordAgentFailure(backend string) {
	agentFailuresTotal.WithLabelValues(backend).Inc()
}

func RecordProtocolError(component string) {
	protocolErrorsTotal.WithLabelValues(component).Inc()
}

func RecordDispatch(op, kind string, duration time.Duration) {
	dispatchDuration.WithLabelValues(op, kind).Observe(duration.Seconds())
}

func AddActiveDispatchers(delta int) {
	activeDispatchers.Add(float64(delta))
}
