// Package prometheus provides a Prometheus-backed implementation of
// metrics.Collector.
package prometheus

import (
	"strconv"
	"time"

	"github.com/netfsd/netfsd/pkg/netfs/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is the Prometheus-backed implementation of metrics.Collector.
// Every method is safe to call on a nil *Collector.
type Collector struct {
	activeConnections  prometheus.Gauge
	acceptedTotal      prometheus.Counter
	closedTotal        *prometheus.CounterVec
	commandsTotal      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	bytesTransferred   *prometheus.CounterVec
	activeSubscriptions prometheus.Gauge
	queueDepth         prometheus.Histogram
}

// New registers the netfs metric series on reg and returns a Collector.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "netfs_active_connections",
			Help: "Current number of open connections.",
		}),
		acceptedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "netfs_connections_accepted_total",
			Help: "Total number of accepted connections.",
		}),
		closedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "netfs_connections_closed_total",
			Help: "Total number of closed connections by reason.",
		}, []string{"reason"}),
		commandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "netfs_commands_total",
			Help: "Total number of completed wire commands by command, protocol, and status.",
		}, []string{"command", "protocol", "status"}),
		commandDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "netfs_command_duration_milliseconds",
			Help: "Duration of completed wire commands in milliseconds.",
			Buckets: []float64{
				0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000,
			},
		}, []string{"command", "protocol"}),
		bytesTransferred: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "netfs_bytes_transferred_total",
			Help: "Total bytes transferred between backends and connections.",
		}, []string{"protocol", "direction"}),
		activeSubscriptions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "netfs_active_subscriptions",
			Help: "Current number of live notification subscriptions.",
		}),
		queueDepth: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "netfs_notification_queue_depth",
			Help: "Depth of a connection's outbound notification queue at enqueue time.",
			Buckets: []float64{
				0, 1, 2, 4, 8, 16, 32, 64, 128,
			},
		}),
	}
}

var _ metrics.Collector = (*Collector)(nil)

func (c *Collector) SetActiveConnections(count int) {
	if c == nil {
		return
	}
	c.activeConnections.Set(float64(count))
}

func (c *Collector) RecordConnectionAccepted() {
	if c == nil {
		return
	}
	c.acceptedTotal.Inc()
}

func (c *Collector) RecordConnectionClosed(reason string) {
	if c == nil {
		return
	}
	c.closedTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordCommand(command, protocol string, duration time.Duration, statusCode int) {
	if c == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	c.commandsTotal.WithLabelValues(command, protocol, status).Inc()
	c.commandDuration.WithLabelValues(command, protocol).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (c *Collector) RecordBytesTransferred(protocol, direction string, bytes uint64) {
	if c == nil {
		return
	}
	c.bytesTransferred.WithLabelValues(protocol, direction).Add(float64(bytes))
}

func (c *Collector) SetActiveSubscriptions(count int) {
	if c == nil {
		return
	}
	c.activeSubscriptions.Set(float64(count))
}

func (c *Collector) ObserveQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.queueDepth.Observe(float64(depth))
}
