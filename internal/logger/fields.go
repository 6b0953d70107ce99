package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so aggregation and
// querying stay stable regardless of which component emitted the record.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection & protocol
	KeyConnID     = "conn_id"
	KeyRemoteAddr = "remote_addr"
	KeyProtocol   = "protocol"
	KeyCommand    = "command"

	// Filesystem operations
	KeyPath      = "path"
	KeyType      = "type"
	KeySize      = "size"
	KeyBytes     = "bytes"
	KeyDirection = "direction"

	// Notifications
	KeyHandle = "handle"
	KeyKind   = "kind"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyQueueDepth = "queue_depth"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// ConnID returns a slog.Attr for the per-connection correlation id.
func ConnID(id string) slog.Attr { return slog.String(KeyConnID, id) }

// RemoteAddr returns a slog.Attr for the client address.
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }

// Protocol returns a slog.Attr for the backend protocol name.
func Protocol(name string) slog.Attr { return slog.String(KeyProtocol, name) }

// Command returns a slog.Attr for the wire command name.
func Command(name string) slog.Attr { return slog.String(KeyCommand, name) }

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Handle returns a slog.Attr for a subscription handle.
func Handle(h int64) slog.Attr { return slog.Int64(KeyHandle, h) }

// Err returns a slog.Attr for an error value, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMsAttr formats a float64 millisecond duration for logging.
func DurationMsAttr(ms float64) slog.Attr {
	return slog.String(KeyDurationMs, fmt.Sprintf("%.3f", ms))
}
