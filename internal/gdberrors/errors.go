// Package gdberrors defines the error taxonomy shared by every layer of the
// remote-process control core: transport, protocol, process state, and
// breakpoint/watchpoint/memory domain failures.
//
// This is a leaf package with no internal dependencies, so it can be
// imported by internal/gdbproto, internal/breakpoint, and pkg/target without
// creating import cycles.
package gdberrors

import "fmt"

// Code classifies an error into one of the taxonomy buckets from the
// error-handling design: Transport, Protocol, State, Domain, Cancelled.
type Code int

const (
	// CodeUnknown is the zero value; CodeOf returns it for an error that
	// carries no Code.
	CodeUnknown Code = iota

	// Transport errors.
	CodeConnectFailed
	CodeEOF
	CodeIOError
	CodeTimedOut
	CodeInterrupted

	// Protocol errors.
	CodeUnsupported
	CodeStubError
	CodeMalformed
	CodeUnexpectedReplyKind

	// State errors.
	CodeWrongProcessState
	CodeInvalidHandle
	CodeInvalidAddress
	CodeUnsupportedFeature

	// Domain errors.
	CodeBreakpointInstallFailed
	CodeHardwareExhausted
	CodeSizeUnsupported
	CodePermissionDenied
	CodeWatchpointInstallFailed
	CodeAllocateFailed
	CodeMemoryReadWriteFailed
	CodeInvalidTarget
	CodeInvalidProcess
	CodeInvalidThread
	CodeInvalidFrame

	// Cancelled.
	CodeCancelled
)

func (c Code) String() string {
	switch c {
	case CodeConnectFailed:
		return "connect_failed"
	case CodeEOF:
		return "eof"
	case CodeIOError:
		return "io_error"
	case CodeTimedOut:
		return "timed_out"
	case CodeInterrupted:
		return "interrupted"
	case CodeUnsupported:
		return "unsupported"
	case CodeStubError:
		return "stub_error"
	case CodeMalformed:
		return "malformed"
	case CodeUnexpectedReplyKind:
		return "unexpected_reply_kind"
	case CodeWrongProcessState:
		return "wrong_process_state"
	case CodeInvalidHandle:
		return "invalid_handle"
	case CodeInvalidAddress:
		return "invalid_address"
	case CodeUnsupportedFeature:
		return "unsupported_feature"
	case CodeBreakpointInstallFailed:
		return "breakpoint_install_failed"
	case CodeHardwareExhausted:
		return "hardware_exhausted"
	case CodeSizeUnsupported:
		return "size_unsupported"
	case CodePermissionDenied:
		return "permission_denied"
	case CodeWatchpointInstallFailed:
		return "watchpoint_install_failed"
	case CodeAllocateFailed:
		return "allocate_failed"
	case CodeMemoryReadWriteFailed:
		return "memory_read_write_failed"
	case CodeInvalidTarget:
		return "invalid_target"
	case CodeInvalidProcess:
		return "invalid_process"
	case CodeInvalidThread:
		return "invalid_thread"
	case CodeInvalidFrame:
		return "invalid_frame"
	case CodeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by every package in this
// module. It wraps an optional cause and carries a human-readable message
// suitable for direct display, matching the "structured result containing a
// status and diagnostic stream" requirement.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, gdberrors.New(CodeEOF, "")) to match by code alone.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == e.Code
}

// New constructs an *Error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, else
// returns CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return CodeUnknown
	}
	return e.Code
}

// Sentinels usable with errors.Is for the most common taxonomy members.
var (
	ErrTimedOut    = New(CodeTimedOut, "operation timed out")
	ErrEOF         = New(CodeEOF, "connection closed")
	ErrUnsupported = New(CodeUnsupported, "not supported by stub")
	ErrCancelled   = New(CodeCancelled, "operation cancelled")
)
