package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Wire Protocol
	// ========================================================================
	KeyPacket     = "packet"      // Outbound/inbound packet payload (truncated)
	KeyCommand    = "command"     // Command name: qSupported, vCont, Z0, ...
	KeyChecksum   = "checksum"    // Computed packet checksum
	KeyAckByte    = "ack"         // Ack byte sent/received: +, -
	KeyNotifySeq  = "notify_seq"  // vStopped drain sequence number
	KeyCapability = "capability"  // Capability probe name
	KeyCapState   = "cap_state"   // unknown | supported | unsupported

	// ========================================================================
	// Target / Process / Thread
	// ========================================================================
	KeyTargetID   = "target_id"
	KeyProcessID  = "pid"
	KeyThreadID   = "tid"
	KeyProcState  = "process_state"
	KeyStopReason = "stop_reason"
	KeyStopID     = "stop_id"
	KeySignal     = "signal"

	// ========================================================================
	// Memory & Registers
	// ========================================================================
	KeyAddress     = "address"
	KeyByteCount   = "byte_count"
	KeyRegister    = "register"
	KeyRegisterSet = "register_set"

	// ========================================================================
	// Breakpoints & Watchpoints
	// ========================================================================
	KeyBreakpointID = "breakpoint_id"
	KeyLocationID   = "location_id"
	KeySiteID       = "site_id"
	KeySiteKind     = "site_kind" // software | hardware | external
	KeyWatchpointID = "watchpoint_id"

	// ========================================================================
	// Modules
	// ========================================================================
	KeyModulePath = "module_path"
	KeyModuleUUID = "module_uuid"
	KeySection    = "section"
	KeyLoadAddr   = "load_address"

	// ========================================================================
	// Transport & Connection
	// ========================================================================
	KeyConnectionID = "connection_id"
	KeyTransportURL = "transport_url"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeyOperation  = "operation"
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Packet returns a slog.Attr for a raw packet payload.
func Packet(p string) slog.Attr {
	return slog.String(KeyPacket, p)
}

// Command returns a slog.Attr for a wire command name.
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// Capability returns a slog.Attr pair describing a capability probe result.
func Capability(name, state string) []slog.Attr {
	return []slog.Attr{slog.String(KeyCapability, name), slog.String(KeyCapState, state)}
}

// TargetID returns a slog.Attr for the owning Target.
func TargetID(id string) slog.Attr {
	return slog.String(KeyTargetID, id)
}

// ProcessID returns a slog.Attr for the protocol PID.
func ProcessID(pid uint64) slog.Attr {
	return slog.Uint64(KeyProcessID, pid)
}

// ThreadID returns a slog.Attr for the protocol TID.
func ThreadID(tid uint64) slog.Attr {
	return slog.Uint64(KeyThreadID, tid)
}

// ProcessState returns a slog.Attr for the Process state machine value.
func ProcessState(state string) slog.Attr {
	return slog.String(KeyProcState, state)
}

// StopReason returns a slog.Attr for a parsed stop reason.
func StopReason(reason string) slog.Attr {
	return slog.String(KeyStopReason, reason)
}

// StopID returns a slog.Attr for a monotonic stop counter.
func StopID(id uint64) slog.Attr {
	return slog.Uint64(KeyStopID, id)
}

// Signal returns a slog.Attr for a signal number.
func Signal(sig int) slog.Attr {
	return slog.Int(KeySignal, sig)
}

// Address returns a slog.Attr for a memory address, formatted as hex.
func Address(addr uint64) slog.Attr {
	return slog.String(KeyAddress, "0x"+fmtHex(addr))
}

// ByteCount returns a slog.Attr for a byte count.
func ByteCount(n int) slog.Attr {
	return slog.Int(KeyByteCount, n)
}

// Register returns a slog.Attr for a register name.
func Register(name string) slog.Attr {
	return slog.String(KeyRegister, name)
}

// BreakpointID returns a slog.Attr for a breakpoint's user id.
func BreakpointID(id uint32) slog.Attr {
	return slog.Any(KeyBreakpointID, id)
}

// LocationID returns a slog.Attr for a breakpoint location id.
func LocationID(id uint32) slog.Attr {
	return slog.Any(KeyLocationID, id)
}

// SiteID returns a slog.Attr for an installed site id.
func SiteID(id uint32) slog.Attr {
	return slog.Any(KeySiteID, id)
}

// SiteKind returns a slog.Attr describing a site's install kind.
func SiteKind(kind string) slog.Attr {
	return slog.String(KeySiteKind, kind)
}

// WatchpointID returns a slog.Attr for a watchpoint's user id.
func WatchpointID(id uint32) slog.Attr {
	return slog.Any(KeyWatchpointID, id)
}

// ModulePath returns a slog.Attr for a module's file path.
func ModulePath(p string) slog.Attr {
	return slog.String(KeyModulePath, p)
}

// ModuleUUID returns a slog.Attr for a module's UUID.
func ModuleUUID(uuid string) slog.Attr {
	return slog.String(KeyModuleUUID, uuid)
}

// Section returns a slog.Attr for a section name.
func Section(name string) slog.Attr {
	return slog.String(KeySection, name)
}

// LoadAddr returns a slog.Attr for a section load address.
func LoadAddr(addr uint64) slog.Attr {
	return slog.String(KeyLoadAddr, "0x"+fmtHex(addr))
}

// ConnectionID returns a slog.Attr for a transport connection identifier.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// TransportURL returns a slog.Attr for a transport connect URL.
func TransportURL(url string) slog.Attr {
	return slog.String(KeyTransportURL, url)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func fmtHex(v uint64) string {
	const hexdigits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
