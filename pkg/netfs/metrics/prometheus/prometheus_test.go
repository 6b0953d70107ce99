package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCollectorRecordsActiveConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetActiveConnections(3)

	if got := gaugeValue(t, c.activeConnections); got != 3 {
		t.Fatalf("active connections = %v, want 3", got)
	}
}

func TestCollectorRecordsAcceptedAndClosed(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordConnectionAccepted()
	c.RecordConnectionAccepted()
	c.RecordConnectionClosed("client")

	if got := counterValue(t, c.acceptedTotal); got != 2 {
		t.Fatalf("accepted total = %v, want 2", got)
	}
}

func TestCollectorRecordsCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordCommand("READ_FILE", "home", 2*time.Millisecond, 0)

	got, err := c.commandsTotal.GetMetricWithLabelValues("READ_FILE", "home", "0")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues() error = %v", err)
	}
	if v := counterValue(t, got); v != 1 {
		t.Fatalf("command count = %v, want 1", v)
	}
}

func TestCollectorRecordsBytesTransferred(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordBytesTransferred("home", "read", 4096)

	got, err := c.bytesTransferred.GetMetricWithLabelValues("home", "read")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues() error = %v", err)
	}
	if v := counterValue(t, got); v != 4096 {
		t.Fatalf("bytes transferred = %v, want 4096", v)
	}
}

func TestCollectorNilReceiverDoesNotPanic(t *testing.T) {
	var c *Collector

	c.SetActiveConnections(1)
	c.RecordConnectionAccepted()
	c.RecordConnectionClosed("client")
	c.RecordCommand("READ_FILE", "home", time.Millisecond, 0)
	c.RecordBytesTransferred("home", "read", 10)
	c.SetActiveSubscriptions(1)
	c.ObserveQueueDepth(2)
}
