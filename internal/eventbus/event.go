// Package eventbus implements the Event Bus: broadcasters, listeners,
// and a broadcaster manager that lets a single listener subscribe to an
// event-kind spec matched across many broadcasters, with single-consumer,
// backpressure-free queue semantics per listener.
package eventbus

// Bits is the 32-bit event-kind mask. A listener subscribes to a mask and
// receives events whose Bits AND-intersect it.
type Bits uint32

// Target and Process broadcaster bits.
const (
	BitBreakpointChanged Bits = 1 << iota
	BitModulesLoaded
	BitModulesUnloaded
	BitSymbolsLoaded
	BitWatchpointChanged

	BitProcessStateChanged
	BitProcessInterrupt
	BitProcessStdoutAvailable
	BitProcessStderrAvailable
	BitProcessProfileData
)

// Event is the opaque payload a Broadcaster emits. Source identifies which
// broadcaster emitted it, for predicate matching in BroadcasterManager.
type Event struct {
	Bits    Bits
	Source  *Broadcaster
	Payload any
}
