package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bitmex_realtime"

// Connection implements connection.Metrics on its own registry.
type Connection struct {
	registry *prometheus.Registry

	connects      *prometheus.CounterVec
	disconnects   prometheus.Counter
	reconnects    prometheus.Counter
	sends         *prometheus.CounterVec
	errors        prometheus.Counter
	messages      prometheus.Counter
	drops         prometheus.Counter
	subscriptions prometheus.Gauge
}

// NewConnection creates and registers the connection collectors, plus the Go
// runtime and process collectors.
func NewConnection() *Connection {
	c := &Connection{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Open attempts by outcome (ok, failed).",
		}, []string{"status"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Established connections that closed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect cycles started by the supervisor.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Outbound frames by op and status.",
		}, []string{"op", "status"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_errors_total",
			Help:      "Error events reported by the socket.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound frames received.",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound frames dropped because the buffer was full.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Symbols currently tracked for replay.",
		}),
	}

	c.registry.MustRegister(
		c.connects,
		c.disconnects,
		c.reconnects,
		c.sends,
		c.errors,
		c.messages,
		c.drops,
		c.subscriptions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Connection) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Connection) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// connection.Metrics

func (c *Connection) IncConnect(status string) { c.connects.WithLabelValues(status).Inc() }
func (c *Connection) IncDisconnect() { c.disconnects.Inc() }
func (c *Connection) IncSend(op, status string) { c.sends.WithLabelValues(op, status).Inc() }
func (c *Connection) IncError() { c.errors.Inc() }
func (c *Connection) IncMessage() { c.messages.Inc() }
func (c *Connection) IncDrop() { c.drops.Inc() }
func (c *Connection) IncReconnect() { c.reconnects.Inc() }
func (c *Connection) SetSubscriptions(n int) { c.subscriptions.Set(float64(n)) }
