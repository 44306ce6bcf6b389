package stopreply

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// MIPSFamily identifies architectures whose watchpoint hit-address
// translation matches against the reported hit address before
// falling back to the requested watch address.
func MIPSFamily(arch string) bool {
	a := strings.ToLower(arch)
	return strings.HasPrefix(a, "mips")
}

// Parse dispatches a raw stop-reply payload (with its leading kind byte
// still attached) into a StopEvent. arch drives the watchpoint
// hit-address-matching rule; pass "" when the target architecture is not
// yet known (matching falls back to the requested address). lastResume
// resolves a thread's last resume directive for the bare-SIGTRAP
// trace-vs-signal rule; nil is safe and always reports signal.
func Parse(payload []byte, arch string, lastResume ResumeLookup) (*StopEvent, error) {
	if len(payload) == 0 {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "empty stop-reply payload")
	}
	switch payload[0] {
	case 'T', 'S':
		return parseThreadStop(payload, arch, lastResume)
	case 'W':
		return parseExit(payload, false)
	case 'X':
		return parseExit(payload, true)
	case 'O':
		return &StopEvent{Kind: KindOutput, Output: decodeHexOutput(payload[1:])}, nil
	default:
		return nil, gdberrors.New(gdberrors.CodeUnexpectedReplyKind, "unrecognised stop-reply kind %q", payload[0])
	}
}

func parseExit(payload []byte, signalled bool) (*StopEvent, error) {
	if len(payload) < 3 {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "truncated W/X reply")
	}
	n, err := strconv.ParseUint(string(payload[1:3]), 16, 8)
	if err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse exit code/signal")
	}
	ev := &StopEvent{}
	if signalled {
		ev.Kind = KindTerminated
		ev.ExitSignal = byte(n)
	} else {
		ev.Kind = KindExited
		ev.ExitCode = byte(n)
	}
	if rest := payload[3:]; len(rest) > 0 {
		ev.ExitDesc = string(rest)
	}
	return ev, nil
}

func decodeHexOutput(hex []byte) []byte {
	out := make([]byte, 0, len(hex)/2)
	for i := 0; i+1 < len(hex); i += 2 {
		n, err := strconv.ParseUint(string(hex[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(n))
	}
	return out
}

// parseThreadStop implements the "T"/"S" grammar: a two-hex-digit signal
// number (for S, nothing more follows), optionally followed by
// "key:value;" pairs for T.
func parseThreadStop(payload []byte, arch string, lastResume ResumeLookup) (*StopEvent, error) {
	if len(payload) < 3 {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "truncated T/S reply")
	}
	sig, err := strconv.ParseUint(string(payload[1:3]), 16, 8)
	if err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse stop signal")
	}

	ts := ThreadStop{
		Signal:             int(sig),
		ExpeditedRegisters: make(map[int][]byte),
	}
	ev := &StopEvent{
		Kind:        KindThreadStop,
		ThreadPCs:   make(map[uint64]uint64),
		MemoryFills: make(map[uint64][]byte),
	}

	if payload[0] == 'S' {
		translateReason(&ts, arch, lastResume)
		ev.Threads = []ThreadStop{ts}
		return ev, nil
	}

	for _, field := range splitFields(payload[3:]) {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		if err := applyField(&ts, ev, key, val); err != nil {
			return nil, err
		}
	}

	translateReason(&ts, arch, lastResume)
	ev.Threads = []ThreadStop{ts}
	return ev, nil
}

// splitFields splits "a:1;b:2;" into ["a:1", "b:2"], tolerating a missing
// trailing separator.
func splitFields(b []byte) []string {
	s := string(b)
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyField(ts *ThreadStop, ev *StopEvent, key, val string) error {
	switch key {
	case "thread":
		tid, err := parseTID(val)
		if err != nil {
			return err
		}
		ts.TID = tid
	case "threads":
		for _, tok := range strings.Split(val, ",") {
			if tok == "" {
				continue
			}
			tid, err := parseTID(tok)
			if err != nil {
				return err
			}
			ev.AllTIDs = append(ev.AllTIDs, tid)
		}
	case "thread-pcs":
		pcs := strings.Split(val, ",")
		for i, tok := range pcs {
			if tok == "" || i >= len(ev.AllTIDs) {
				continue
			}
			pc, err := strconv.ParseUint(tok, 16, 64)
			if err != nil {
				return gdberrors.Wrap(gdberrors.CodeMalformed, err, "thread-pcs")
			}
			ev.ThreadPCs[ev.AllTIDs[i]] = pc
		}
	case "core":
		n, err := strconv.Atoi(val)
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMalformed, err, "core")
		}
		ts.Core, ts.HasCore = n, true
	case "name":
		ts.Name = val
	case "hexname":
		ts.Name = string(decodeHexOutput([]byte(val)))
	case "reason":
		ts.Description = val
	case "description":
		if ts.Description == "" {
			ts.Description = val
		}
	case "qaddr", "dispatch_queue_t":
		n, err := strconv.ParseUint(val, 16, 64)
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMalformed, err, key)
		}
		ts.DispatchQAddr, ts.HasDispatchQAddr = n, true
	case "qname":
		ensureQueue(ts).Name = string(decodeHexOutput([]byte(val)))
	case "qkind":
		q := ensureQueue(ts)
		if val == "serial" {
			q.Kind = QueueSerial
		} else if val == "concurrent" {
			q.Kind = QueueConcurrent
		}
	case "qserialnum":
		n, err := strconv.ParseUint(val, 16, 64)
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMalformed, err, "qserialnum")
		}
		ensureQueue(ts).SerialNum = n
	case "watch", "rwatch", "awatch":
		addr, err := strconv.ParseUint(val, 16, 64)
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMalformed, err, key)
		}
		if key == "awatch" && ts.HasWatch {
			// MIPS reports both the requested "watch:" address and the
			// natural-alignment-rounded "awatch:" hit address for the same
			// stop; keep the requested address in WatchAddr and stash the
			// hit address separately so translateReason can prefer it on
			// MIPS regardless of key order.
			ts.HitAddr, ts.HasHitAddr = addr, true
			break
		}
		if ts.HasWatch && ts.WatchKind == WatchAccess && !ts.HasHitAddr {
			// An "awatch:" that arrived before this "watch:"/"rwatch:" was
			// the hit address; keep it before WatchAddr is overwritten.
			ts.HitAddr, ts.HasHitAddr = ts.WatchAddr, true
		}
		ts.WatchAddr, ts.HasWatch = addr, true
		switch key {
		case "watch":
			ts.WatchKind = WatchWrite
		case "rwatch":
			ts.WatchKind = WatchRead
		case "awatch":
			ts.WatchKind = WatchAccess
		}
	case "library":
		ev.Library = true
	case "memory":
		return applyMemoryFill(ev, val)
	case "metype":
		n, err := strconv.ParseUint(val, 16, 64)
		if err != nil {
			return gdberrors.Wrap(gdberrors.CodeMalformed, err, "metype")
		}
		ts.ExcType = n
	case "medata":
		for _, tok := range strings.Split(val, ",") {
			if tok == "" {
				continue
			}
			n, err := strconv.ParseUint(tok, 16, 64)
			if err != nil {
				return gdberrors.Wrap(gdberrors.CodeMalformed, err, "medata")
			}
			ts.ExcData = append(ts.ExcData, n)
		}
	case "jstopinfo":
		// JSON-encoded expansion of the same stop information; the hex
		// key/value fields already sent alongside take precedence, so the
		// raw payload is kept on Description only when nothing else set it.
		if ts.Description == "" {
			ts.Description = string(decodeHexOutput([]byte(val)))
		}
	default:
		if n, err := strconv.Atoi(key); err == nil {
			raw, derr := decodeRegisterHex(val)
			if derr != nil {
				return derr
			}
			ts.ExpeditedRegisters[n] = raw
			if pc, ok := registerLooksLikePC(n, raw); ok {
				ts.PC, ts.HasPC = pc, true
			}
		}
	}
	return nil
}

func ensureQueue(ts *ThreadStop) *QueueInfo {
	if ts.Queue == nil {
		ts.Queue = &QueueInfo{}
	}
	return ts.Queue
}

func parseTID(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "p")
	if i := strings.Index(s, "."); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse thread id %q", s)
	}
	return n, nil
}

// applyMemoryFill parses the value of a "memory:" field, "<addr>=<hex>" or
// "<addr>:<hex>", into ev.MemoryFills.
func applyMemoryFill(ev *StopEvent, val string) error {
	sep := strings.IndexAny(val, "=:")
	if sep < 0 {
		return gdberrors.New(gdberrors.CodeMalformed, "memory fill %q has no data", val)
	}
	addr, err := strconv.ParseUint(val[:sep], 16, 64)
	if err != nil {
		return gdberrors.Wrap(gdberrors.CodeMalformed, err, "memory fill address")
	}
	raw, err := decodeRegisterHex(val[sep+1:])
	if err != nil {
		return err
	}
	ev.MemoryFills[addr] = raw
	return nil
}

func decodeRegisterHex(hex string) ([]byte, error) {
	if len(hex)%2 != 0 {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "odd-length hex value %q", hex)
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(out); i++ {
		n, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "hex byte")
		}
		out[i] = byte(n)
	}
	return out, nil
}

// registerLooksLikePC is a conservative best-effort hint only; the
// authoritative PC comes from the register-info generic-pc mapping in
// internal/regsinfo, applied by the caller once per-thread registers are
// known. Without that context the parser cannot know which expedited
// register number is "pc", so this always reports false; kept as the seam
// future callers with register-info context can use.
func registerLooksLikePC(_ int, _ []byte) (uint64, bool) {
	return 0, false
}

// translateReason applies the stop-reason translation rules: a "reason:"
// key takes precedence when recognised (the breakpoint/trace cases are
// provisional — the caller re-validates them against the Breakpoint
// Manager's installed sites once the thread's PC is known), watchpoint keys
// win next, a Mach exception ("metype") comes after, and a bare SIGTRAP with
// no other signal is promoted to a trace stop only if the thread's last
// resume directive was a single-step; any other signal, bare or not, stays
// a plain signal.
func translateReason(ts *ThreadStop, arch string, lastResume ResumeLookup) {
	switch ts.Description {
	case "breakpoint":
		ts.Reason = ReasonBreakpoint
		return
	case "trace":
		ts.Reason = ReasonTrace
		return
	case "watchpoint":
		ts.Reason = ReasonWatchpoint
		return
	case "exception":
		ts.Reason = ReasonException
		return
	case "exec":
		ts.Reason = ReasonExec
		return
	}

	if ts.HasWatch {
		ts.Reason = ReasonWatchpoint
		if MIPSFamily(arch) && ts.HasHitAddr {
			// MIPS reports the actual hit address separately from the
			// requested watch address; prefer it for site matching.
			ts.WatchAddr = ts.HitAddr
		}
		return
	}

	if ts.ExcType != 0 {
		ts.Reason = ReasonException
		return
	}

	const sigTrap = 5
	if ts.Signal == sigTrap && lastResume != nil && lastResume.WasStepping(ts.TID) {
		ts.Reason = ReasonTrace
		return
	}

	ts.Reason = ReasonSignal
}

// jThreadInfo is one entry of a "jThreadsInfo" JSON reply: the stub's
// single-round-trip alternative to a per-thread qThreadStopInfo request.
type jThreadInfo struct {
	TID        uint64            `json:"tid"`
	Signal     int               `json:"signal"`
	Reason     string            `json:"reason"`
	Name       string            `json:"name"`
	Core       *int              `json:"core"`
	Watchpoint string            `json:"watchpoint"`
	Registers  map[string]string `json:"registers"`
	Memory     []struct {
		Address uint64 `json:"address"`
		Bytes   string `json:"bytes"`
	} `json:"memory"`
}

// ParseThreadsInfo parses a "jThreadsInfo" JSON reply — either a JSON
// object keyed by thread id or a bare JSON array of the same per-thread
// objects — into the same StopEvent shape Parse produces for a "T" reply,
// one ThreadStop per entry. Callers use this in place of issuing a
// qThreadStopInfo request per thread when the stub advertises the
// capability.
func ParseThreadsInfo(doc []byte, arch string, lastResume ResumeLookup) (*StopEvent, error) {
	entries, err := decodeThreadsInfo(doc)
	if err != nil {
		return nil, err
	}

	ev := &StopEvent{
		Kind:        KindThreadStop,
		ThreadPCs:   make(map[uint64]uint64),
		MemoryFills: make(map[uint64][]byte),
	}

	for _, e := range entries {
		ts := ThreadStop{
			TID:                e.TID,
			Signal:             e.Signal,
			Name:               e.Name,
			Description:        e.Reason,
			ExpeditedRegisters: make(map[int][]byte),
		}
		if e.Core != nil {
			ts.Core, ts.HasCore = *e.Core, true
		}
		if e.Watchpoint != "" {
			if addr, err := strconv.ParseUint(e.Watchpoint, 16, 64); err == nil {
				ts.WatchAddr, ts.HasWatch, ts.WatchKind = addr, true, WatchWrite
			}
		}
		for numStr, hexVal := range e.Registers {
			num, err := strconv.Atoi(numStr)
			if err != nil {
				continue
			}
			raw, err := decodeRegisterHex(hexVal)
			if err != nil {
				return nil, err
			}
			ts.ExpeditedRegisters[num] = raw
			if pc, ok := registerLooksLikePC(num, raw); ok {
				ts.PC, ts.HasPC = pc, true
			}
		}
		for _, m := range e.Memory {
			raw, err := decodeRegisterHex(m.Bytes)
			if err != nil {
				return nil, err
			}
			ev.MemoryFills[m.Address] = raw
		}

		translateReason(&ts, arch, lastResume)
		ev.Threads = append(ev.Threads, ts)
		ev.AllTIDs = append(ev.AllTIDs, e.TID)
		if ts.HasPC {
			ev.ThreadPCs[e.TID] = ts.PC
		}
	}

	return ev, nil
}

// decodeThreadsInfo accepts either of the two shapes stubs actually send
// for jThreadsInfo: an object keyed by thread id (the common case, id
// carried both as the key and often again in "tid"), or a bare array.
func decodeThreadsInfo(doc []byte) ([]jThreadInfo, error) {
	var byID map[string]jThreadInfo
	if err := json.Unmarshal(doc, &byID); err == nil && len(byID) > 0 {
		out := make([]jThreadInfo, 0, len(byID))
		for key, e := range byID {
			if e.TID == 0 {
				if tid, err := strconv.ParseUint(key, 0, 64); err == nil {
					e.TID = tid
				}
			}
			out = append(out, e)
		}
		return out, nil
	}

	var arr []jThreadInfo
	if err := json.Unmarshal(doc, &arr); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse jThreadsInfo")
	}
	return arr, nil
}
