package client

import (
	"context"
	"strings"
	"sync"

	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
)

// CapState is the three-state memoization required for every capability
// probe: Unknown until first probed, then pinned to Supported or
// Unsupported for the connection lifetime (it never reverts once known).
type CapState int

const (
	CapUnknown CapState = iota
	CapSupported
	CapUnsupported
)

func (s CapState) String() string {
	switch s {
	case CapSupported:
		return "supported"
	case CapUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

type capabilitySet struct {
	mu     sync.Mutex
	states map[string]CapState
	values map[string]string // e.g. "PacketSize" -> "4000" from qSupported
}

func newCapabilitySet() *capabilitySet {
	return &capabilitySet{
		states: make(map[string]CapState),
		values: make(map[string]string),
	}
}

func (c *capabilitySet) get(name string) CapState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[name]
}

func (c *capabilitySet) set(name string, state CapState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Monotonicity: once known, never revert to Unknown, and never flip
	// Supported<->Unsupported within a connection.
	if c.states[name] != CapUnknown {
		return
	}
	c.states[name] = state
}

func (c *capabilitySet) setValue(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
	if c.states[name] == CapUnknown {
		c.states[name] = CapSupported
	}
}

func (c *capabilitySet) value(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name]
	return v, ok
}

// Capability returns the memoized state of a named capability (e.g.
// "qXfer:libraries-svr4:read", "vCont", "QNonStop"). CapUnknown means it
// has never been probed on this connection.
func (c *Client) Capability(name string) CapState { return c.caps.get(name) }

// CapabilityValue returns a capability's associated value (e.g.
// PacketSize) if qSupported reported one.
func (c *Client) CapabilityValue(name string) (string, bool) { return c.caps.value(name) }

// requestedFeatures is the fixed set of features advertised in qSupported:
// a static feature list rather than an incrementally negotiated one.
var requestedFeatures = []string{
	"xmlRegisters=i386,arm,mips",
	"multiprocess+",
	"qXfer:features:read+",
	"qXfer:libraries:read+",
	"qXfer:libraries-svr4:read+",
	"QStartNoAckMode+",
	"QThreadSuffixSupported+",
	"QListThreadsInResponse+",
	"qMemoryRegionInfo+",
	"jThreadsInfo+",
}

// ProbeSupported sends "qSupported:<features>" and parses the reply's
// semicolon-separated "name[+-?]" / "name=value" tokens into the full
// capability map, not just a single boolean.
func (c *Client) ProbeSupported(ctx context.Context) error {
	req := "qSupported:" + strings.Join(requestedFeatures, ";")
	reply, err := c.Send(ctx, []byte(req), Options{})
	if err != nil {
		return err
	}
	if reply.Kind != packet.KindNormal {
		return nil
	}
	for _, tok := range strings.Split(string(reply.Payload), ";") {
		if tok == "" {
			continue
		}
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			name, val := tok[:eq], tok[eq+1:]
			c.caps.setValue(name, val)
			c.metrics.CapabilityProbed(name, CapSupported.String())
			continue
		}
		last := tok[len(tok)-1]
		name := tok[:len(tok)-1]
		switch last {
		case '+':
			c.caps.set(name, CapSupported)
			c.metrics.CapabilityProbed(name, CapSupported.String())
		case '-':
			c.caps.set(name, CapUnsupported)
			c.metrics.CapabilityProbed(name, CapUnsupported.String())
		case '?':
			// Stub supports the feature but wants us to query further;
			// treat as supported for presence purposes.
			c.caps.set(name, CapSupported)
			c.metrics.CapabilityProbed(name, CapSupported.String())
		default:
			// No suffix: bare feature name, e.g. from a non-conforming
			// stub. Treat as supported.
			c.caps.set(tok, CapSupported)
		}
	}
	return nil
}

// VContActions is the set of per-thread resume actions a "vCont?" probe
// reported as supported.
type VContActions struct {
	Continue         bool // c
	ContinueSignal   bool // C
	Step             bool // s
	StepSignal       bool // S
	Stop             bool // t (non-stop mode only)
}

// ProbeVCont sends "vCont?" and parses the reply's "vCont;c;C;s;S;t" action
// list.
func (c *Client) ProbeVCont(ctx context.Context) (VContActions, error) {
	var actions VContActions
	reply, err := c.Send(ctx, []byte("vCont?"), Options{})
	if err != nil {
		return actions, err
	}
	if reply.Kind != packet.KindNormal {
		c.caps.set("vCont", CapUnsupported)
		return actions, nil
	}
	body := strings.TrimPrefix(string(reply.Payload), "vCont")
	for _, tok := range strings.Split(body, ";") {
		switch tok {
		case "c":
			actions.Continue = true
		case "C":
			actions.ContinueSignal = true
		case "s":
			actions.Step = true
		case "S":
			actions.StepSignal = true
		case "t":
			actions.Stop = true
		}
	}
	c.caps.set("vCont", CapSupported)
	return actions, nil
}

// NegotiateNoAck sends "QStartNoAckMode" and, on "OK", disables the
// ack/nak handshake for the rest of the connection: subsequent packets
// omit +/- bytes entirely.
func (c *Client) NegotiateNoAck(ctx context.Context) error {
	reply, err := c.Send(ctx, []byte("QStartNoAckMode"), Options{})
	if err != nil {
		return err
	}
	if reply.OK() {
		c.ackMode.Store(false)
		c.caps.set("QStartNoAckMode", CapSupported)
	} else {
		c.caps.set("QStartNoAckMode", CapUnsupported)
	}
	return nil
}

// MaxMemorySize derives the memory read/write size ceiling:
// min(stub_max_payload, 128 KiB) when known, else a conservative
// 512-byte default.
func (c *Client) MaxMemorySize() int {
	const (
		hardCeiling  = 128 * 1024
		conservative = 512
	)
	if v, ok := c.CapabilityValue("PacketSize"); ok {
		if n, ok := parseHexSize(v); ok {
			if n > hardCeiling {
				return hardCeiling
			}
			if n > 0 {
				return n
			}
		}
	}
	return conservative
}

func parseHexSize(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		var d int
		switch {
		case r >= '0' && r <= '9':
			d = int(r - '0')
		case r >= 'a' && r <= 'f':
			d = int(r-'a') + 10
		case r >= 'A' && r <= 'F':
			d = int(r-'A') + 10
		default:
			return 0, false
		}
		n = n*16 + d
	}
	return n, true
}
