package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for NetFS spans.
const (
	AttrConnID     = "netfs.conn_id"
	AttrRemoteAddr = "netfs.remote_addr"
	AttrCommand    = "netfs.command"
	AttrProtocol   = "netfs.protocol" // backend protocol selected by NOTIFICATION
	AttrPath       = "netfs.path"
	AttrHandle     = "netfs.handle" // subscription handle
	AttrOffset     = "netfs.offset"
	AttrCount      = "netfs.count"
	AttrSize       = "netfs.size"
	AttrBytes      = "netfs.bytes"
	AttrDirection  = "netfs.direction" // read, write
	AttrStatus     = "netfs.status"
	AttrQueueDepth = "netfs.queue_depth"

	AttrBucket = "storage.bucket"
	AttrRegion = "storage.region"
	AttrKey    = "storage.key"
)

// Span names for NetFS request processing.
const (
	SpanConnAccept  = "netfs.conn.accept"
	SpanConnClose   = "netfs.conn.close"
	SpanCmdOpenFile = "netfs.OPEN_FILE"
	SpanCmdReadFile = "netfs.READ_FILE"
	SpanCmdWriteFile = "netfs.WRITE_FILE"
	SpanCmdStat     = "netfs.STAT"
	SpanCmdList     = "netfs.LIST"
	SpanCmdWalk     = "netfs.WALK"
	SpanCmdNotify   = "netfs.NOTIFICATION"

	SpanBackendRead  = "backend.read"
	SpanBackendWrite = "backend.write"
	SpanBackendStat  = "backend.stat"
	SpanBrokerDispatch = "broker.dispatch"
)

// ClientIP returns an attribute for client IP address (used before a
// full RemoteAddr is resolved, e.g. during accept).
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrRemoteAddr, ip)
}

// ConnID returns an attribute for the per-connection correlation id.
func ConnID(id string) attribute.KeyValue {
	return attribute.String(AttrConnID, id)
}

// Command returns an attribute for the in-flight wire command name.
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// Protocol returns an attribute for the backend protocol name.
func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

// Path returns an attribute for a filesystem path.
func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

// Handle returns an attribute for a subscription handle.
func Handle(h int64) attribute.KeyValue {
	return attribute.Int64(AttrHandle, h)
}

// Offset returns an attribute for an I/O offset.
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Count returns an attribute for a requested byte count.
func Count(count uint32) attribute.KeyValue {
	return attribute.Int64(AttrCount, int64(count))
}

// Size returns an attribute for a file size.
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// Bytes returns an attribute for actual bytes transferred.
func Bytes(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, int64(n))
}

// Direction returns an attribute for transfer direction ("read"/"write").
func Direction(dir string) attribute.KeyValue {
	return attribute.String(AttrDirection, dir)
}

// Status returns an attribute for the reply status code.
func Status(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// QueueDepth returns an attribute for an outbound notification queue depth.
func QueueDepth(depth int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, depth)
}

// Bucket returns an attribute for an S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// Region returns an attribute for a cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StorageKey returns an attribute for an S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// StartCommandSpan starts a span for a fully-received wire command.
func StartCommandSpan(ctx context.Context, connID, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		ConnID(connID),
		Command(command),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "netfs."+command, trace.WithAttributes(allAttrs...))
}

// StartBackendSpan starts a span for a backend operation (localfs, s3).
func StartBackendSpan(ctx context.Context, protocol, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Protocol(protocol),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "backend."+operation, trace.WithAttributes(allAttrs...))
}

// StartBrokerSpan starts a span for a notification broker dispatch.
func StartBrokerSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanBrokerDispatch, trace.WithAttributes(attrs...))
}
