package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatflow"

// Metrics records session and interpreter activity as Prometheus series.
// It is both an EventSink and a source of LifecycleHooks.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	Messages        *prometheus.CounterVec
	Faults          *prometheus.CounterVec
	NodeVisits      *prometheus.CounterVec
	APICalls        *prometheus.CounterVec
	APIDuration     *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of chat sessions started",
		}, []string{"flow_id"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of chat sessions ended, by terminal status",
		}, []string{"flow_id", "status"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Length of ended chat sessions",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}, []string{"status"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_messages_total",
			Help:      "Total number of bot messages appended to transcripts",
		}, []string{"flow_id"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_faults_total",
			Help:      "Total number of sessions terminated by an execution fault",
		}, []string{"flow_id"}),
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node executions",
		}, []string{"node_type"}),
		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Total number of outbound api node calls",
		}, []string{"method", "code"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_call_duration_seconds",
			Help:      "Duration of outbound api node calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.SessionsEnded,
		m.SessionDuration,
		m.Messages,
		m.Faults,
		m.NodeVisits,
		m.APICalls,
		m.APIDuration,
	)
	return m
}

// Registry exposes the private registry, e.g. to register extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Emit(_ context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventSessionStarted:
		m.SessionsStarted.WithLabelValues(ev.FlowID).Inc()
	case domain.EventBotMessage:
		m.Messages.WithLabelValues(ev.FlowID).Inc()
	case domain.EventError:
		m.Faults.WithLabelValues(ev.FlowID).Inc()
	case domain.EventSessionEnded:
		m.SessionsEnded.WithLabelValues(ev.FlowID, string(ev.Status)).Inc()
		m.SessionDuration.WithLabelValues(string(ev.Status)).Observe(float64(ev.Duration))
	}
}

// Hooks returns lifecycle hooks feeding the node and API collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnAPIReturn: func(_ context.Context, e *domain.APIEvent) {
			code := "error"
			if e.StatusCode > 0 {
				code = strconv.Itoa(e.StatusCode)
			}
			m.APICalls.WithLabelValues(e.Method, code).Inc()
			m.APIDuration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
		},
	}
}
