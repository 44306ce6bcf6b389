package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds call-scoped logging context for a single Remote Client
// request or Target Orchestrator operation.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Packet    string    // Wire packet name (qRegisterInfo, vCont, Z0, ...)
	TargetID  string    // Target identifier
	ProcessID uint64    // Protocol PID of the inferior
	ThreadID  uint64    // Protocol TID, when the log line is thread-scoped
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a target.
func NewLogContext(targetID string) *LogContext {
	return &LogContext{
		TargetID:  targetID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Packet:    lc.Packet,
		TargetID:  lc.TargetID,
		ProcessID: lc.ProcessID,
		ThreadID:  lc.ThreadID,
		StartTime: lc.StartTime,
	}
}

// WithPacket returns a copy with the wire packet name set.
func (lc *LogContext) WithPacket(packet string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Packet = packet
	}
	return clone
}

// WithThread returns a copy scoped to a particular thread.
func (lc *LogContext) WithThread(pid, tid uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ProcessID = pid
		clone.ThreadID = tid
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
