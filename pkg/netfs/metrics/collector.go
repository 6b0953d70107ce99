// Package metrics defines the observability surface for the netfs server.
package metrics

import "time"

// Collector is the metrics surface for the netfs server and its backends.
//
// Every implementation method must be safe to call on a nil receiver.
// Callers in this module check for a nil Collector interface before
// calling it, so passing nil disables metrics collection:
//
//	var c *prometheus.Collector // nil pointer, metrics disabled
//	var m metrics.Collector = c
//	m.RecordConnectionAccepted() // no-op
//
//	m = prometheus.New(reg) // metrics enabled
type Collector interface {
	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter,
	// tagged with the reason ("client", "error", "shutdown").
	RecordConnectionClosed(reason string)

	// RecordCommand records a completed wire command with its name,
	// backend protocol, duration, and outcome.
	RecordCommand(command string, protocol string, duration time.Duration, statusCode int)

	// RecordBytesTransferred records bytes read from or written to a backend.
	RecordBytesTransferred(protocol string, direction string, bytes uint64)

	// SetActiveSubscriptions updates the number of live notification
	// subscriptions held by the broker.
	SetActiveSubscriptions(count int)

	// ObserveQueueDepth records the depth of a connection's outbound
	// notification queue at the moment a notification was enqueued.
	ObserveQueueDepth(depth int)
}
