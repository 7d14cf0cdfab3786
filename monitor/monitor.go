// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	GamesFinished     *prometheus.CounterVec
	RejectedActions   *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of open rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages by event",
		}, []string{"event"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Inbound message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by mode",
		}, []string{"mode"}),
		RejectedActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_actions_total",
			Help:      "Rejected player actions by error kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.OnlineConnections,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.GamesFinished,
		m.RejectedActions,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

// NewMonitor builds a monitor on its own registry, so several can coexist in
// one process.
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}, func() float64 {
			return time.Since(m.startTime).Seconds()
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) IncOnlineConnections() {
	m.metrics.OnlineConnections.Inc()
}

func (m *Monitor) DecOnlineConnections() {
	m.metrics.OnlineConnections.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(event string) {
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncGamesFinished(solo bool) {
	mode := "multiplayer"
	if solo {
		mode = "solo"
	}
	m.metrics.GamesFinished.WithLabelValues(mode).Inc()
}

func (m *Monitor) IncRejectedActions(kind string) {
	m.metrics.RejectedActions.WithLabelValues(kind).Inc()
}
