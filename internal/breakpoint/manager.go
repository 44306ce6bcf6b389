package breakpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
)

// Stub is the narrow slice of the Remote Client the Manager needs: issuing
// requests and reading memoized capability state. Kept as an interface so
// tests can substitute a scripted stub without a real transport.
type Stub interface {
	Send(ctx context.Context, payload []byte, opts client.Options) (packet.Packet, error)
	Capability(name string) client.CapState
}

// MemoryAccess is the seam pkg/target implements to let the Manager read
// and patch process memory for the software-breakpoint-by-memory-write
// fallback.
type MemoryAccess interface {
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
	WriteMemory(ctx context.Context, addr uint64, data []byte) error
}

// Metrics is the narrow instrumentation seam; a nil Metrics becomes a
// no-op, matching the Remote Client's convention.
type Metrics interface {
	SiteInstalled(kind string)
	SiteRemoved(kind string)
	SiteInstallFailed(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SiteInstalled(string)      {}
func (noopMetrics) SiteRemoved(string)        {}
func (noopMetrics) SiteInstallFailed(string)  {}

// Manager is the Breakpoint/Watchpoint Manager.
type Manager struct {
	mu sync.Mutex

	stub    Stub
	mem     MemoryAccess
	metrics Metrics
	arch    string

	processAlive bool

	sites map[uint64]*Site // keyed by load address

	user     map[uuid.UUID]*Breakpoint
	internal map[uuid.UUID]*Breakpoint

	watchpoints map[uuid.UUID]*Watchpoint

	// watchBaseline holds the last-known memory value at each installed
	// watchpoint's address, used to populate OldValue/NewValue on a
	// reported hit without requiring the stub to send them itself (the
	// wire protocol only reports the hit address).
	watchBaseline map[uuid.UUID][]byte

	// softwareUnsupported/hardwareUnsupported cache the "not supported by
	// this stub" discovery from a single failed Z0/Z1 probe for the
	// lifetime of the Manager, matching the codec-level capability
	// monotonicity the Remote Client already applies to qSupported tokens.
	softwareUnsupported bool
	hardwareUnsupported bool
}

// NewManager constructs a Manager bound to stub and mem for architecture
// arch (used to pick the memory-write fallback trap opcode).
func NewManager(stub Stub, mem MemoryAccess, arch string, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		stub:        stub,
		mem:         mem,
		metrics:     metrics,
		arch:        arch,
		sites:       make(map[uint64]*Site),
		user:        make(map[uuid.UUID]*Breakpoint),
		internal:    make(map[uuid.UUID]*Breakpoint),
		watchpoints:   make(map[uuid.UUID]*Watchpoint),
		watchBaseline: make(map[uuid.UUID][]byte),
	}
}

// SetProcessAlive toggles whether newly resolved locations are eligible
// for immediate site installation.
func (m *Manager) SetProcessAlive(alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processAlive = alive
}

// CreateBreakpoint registers a new abstract Breakpoint specification. It
// does not resolve against any module until OnModuleAdded is called with a
// module the Filter matches — callers that already know the current
// module set should call OnModuleAdded once per existing module right
// after creating the breakpoint.
func (m *Manager) CreateBreakpoint(filter Filter, resolver Resolver, opts Options, internal bool) *Breakpoint {
	bp := &Breakpoint{
		ID:       uuid.New(),
		Internal: internal,
		Filter:   filter,
		Resolver: resolver,
		Options:  opts,
		Enabled:  true,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if internal {
		m.internal[bp.ID] = bp
	} else {
		m.user[bp.ID] = bp
	}
	return bp
}

// ListUserBreakpoints returns every user-created breakpoint.
func (m *Manager) ListUserBreakpoints() []*Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Breakpoint, 0, len(m.user))
	for _, bp := range m.user {
		out = append(out, bp)
	}
	return out
}

// ListInternalBreakpoints returns every internally created breakpoint
// (e.g. stop hooks, one-shot step-over traps).
func (m *Manager) ListInternalBreakpoints() []*Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Breakpoint, 0, len(m.internal))
	for _, bp := range m.internal {
		out = append(out, bp)
	}
	return out
}

// RemoveBreakpoint uninstalls every site the breakpoint owns and forgets
// it.
func (m *Manager) RemoveBreakpoint(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	bp, ok := m.user[id]
	if !ok {
		bp, ok = m.internal[id]
	}
	m.mu.Unlock()
	if !ok {
		return gdberrors.New(gdberrors.CodeInvalidHandle, "unknown breakpoint %s", id)
	}
	for _, loc := range bp.Locations {
		if loc.Site != nil {
			if err := m.releaseSite(ctx, loc); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	delete(m.user, id)
	delete(m.internal, id)
	m.mu.Unlock()
	return nil
}

// OnModuleAdded runs every breakpoint's resolver against mod and installs
// sites for any new location while the process is alive.
func (m *Manager) OnModuleAdded(ctx context.Context, mod ModuleRef, lookup SymbolLookup, resolve LoadAddressResolver) error {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	alive := m.processAlive
	m.mu.Unlock()

	for _, bp := range bps {
		if !bp.Filter.Matches(mod) {
			continue
		}
		candidates, err := bp.Resolver.Resolve(mod, lookup)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			loc := &BreakpointLocation{
				ID:          uuid.New(),
				ModuleUUID:  mod.UUID(),
				FileAddress: c.FileAddress,
				Enabled:     true,
			}
			if resolve != nil {
				if la, ok := resolve.ResolveLoadAddress(mod.UUID(), c.FileAddress); ok {
					loc.LoadAddress, loc.HasLoadAddress = la, true
				}
			}
			bp.Locations = append(bp.Locations, loc)
			if alive && loc.HasLoadAddress {
				if err := m.installLocationSite(ctx, bp, loc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Manager) allBreakpointsLocked() []*Breakpoint {
	out := make([]*Breakpoint, 0, len(m.user)+len(m.internal))
	for _, bp := range m.user {
		out = append(out, bp)
	}
	for _, bp := range m.internal {
		out = append(out, bp)
	}
	return out
}

// OnModuleRemoved invalidates and uninstalls sites for every location tied
// to mod.
func (m *Manager) OnModuleRemoved(ctx context.Context, mod ModuleRef) error {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	m.mu.Unlock()

	for _, bp := range bps {
		kept := bp.Locations[:0:0]
		for _, loc := range bp.Locations {
			if loc.ModuleUUID != mod.UUID() {
				kept = append(kept, loc)
				continue
			}
			if loc.Site != nil {
				if err := m.releaseSite(ctx, loc); err != nil {
					return err
				}
			}
		}
		bp.Locations = kept
	}
	return nil
}

// OnModuleReplaced migrates locations from oldMod to newMod where the
// file address can be re-resolved to a load address; locations that
// cannot be re-resolved are still moved to newMod, but without a load
// address or an installed site.
func (m *Manager) OnModuleReplaced(ctx context.Context, oldMod, newMod ModuleRef, resolve LoadAddressResolver) error {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	m.mu.Unlock()

	for _, bp := range bps {
		for _, loc := range bp.Locations {
			if loc.ModuleUUID != oldMod.UUID() {
				continue
			}
			if loc.Site != nil {
				if err := m.releaseSite(ctx, loc); err != nil {
					return err
				}
			}
			loc.ModuleUUID = newMod.UUID()
			loc.HasLoadAddress = false
			if resolve != nil {
				if la, ok := resolve.ResolveLoadAddress(newMod.UUID(), loc.FileAddress); ok {
					loc.LoadAddress, loc.HasLoadAddress = la, true
				}
			}
			if loc.HasLoadAddress && m.processAliveSnapshot() {
				if err := m.installLocationSite(ctx, bp, loc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Manager) processAliveSnapshot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processAlive
}

// OnExec drops every installed site — the address space is unrecognizable
// after an exec — and clears every Breakpoint's Locations, leaving the
// Breakpoints themselves registered for the caller to re-resolve against
// the freshly loaded module set via OnModuleAdded.
func (m *Manager) OnExec(ctx context.Context) error {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	m.mu.Unlock()

	for _, bp := range bps {
		for _, loc := range bp.Locations {
			if loc.Site != nil {
				if err := m.releaseSite(ctx, loc); err != nil {
					return err
				}
			}
		}
		bp.Locations = nil
	}
	return nil
}

// OnProcessExit drops every installed site but keeps the Breakpoints and
// their Locations (minus load-address info) so they reinstall on the next
// launch/attach.
func (m *Manager) OnProcessExit(ctx context.Context) error {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	m.processAlive = false
	m.mu.Unlock()

	for _, bp := range bps {
		for _, loc := range bp.Locations {
			if loc.Site != nil {
				if err := m.releaseSite(ctx, loc); err != nil {
					return err
				}
			}
			loc.HasLoadAddress = false
		}
	}
	return nil
}

func (m *Manager) installLocationSite(ctx context.Context, bp *Breakpoint, loc *BreakpointLocation) error {
	site, err := m.installSite(ctx, loc.LoadAddress, trapSize(m.arch), bp.Options.HardwareRequired)
	if err != nil {
		return err
	}
	loc.Site = site
	return nil
}

// installSite implements the site-install pipeline: intern by address,
// else try software (Z0), else hardware (Z1), else a raw memory write of
// the architecture's trap opcode.
func (m *Manager) installSite(ctx context.Context, addr uint64, size int, hardwareRequired bool) (*Site, error) {
	m.mu.Lock()
	if site, ok := m.sites[addr]; ok {
		site.RefCount++
		m.mu.Unlock()
		return site, nil
	}
	softUnsupported := m.softwareUnsupported
	hardUnsupported := m.hardwareUnsupported
	m.mu.Unlock()

	if !hardwareRequired && !softUnsupported {
		ok, err := m.sendZ(ctx, '0', addr, size)
		if err != nil {
			return nil, err
		}
		if ok {
			return m.internSite(addr, size, SiteSoftware), nil
		}
		m.mu.Lock()
		m.softwareUnsupported = true
		m.mu.Unlock()
	}

	if !hardUnsupported {
		ok, err := m.sendZ(ctx, '1', addr, size)
		if err != nil {
			return nil, err
		}
		if ok {
			return m.internSite(addr, size, SiteHardware), nil
		}
		m.mu.Lock()
		m.hardwareUnsupported = true
		m.mu.Unlock()
	}

	if hardwareRequired {
		m.metrics.SiteInstallFailed("hardware_unavailable")
		return nil, gdberrors.New(gdberrors.CodeHardwareExhausted, "no hardware breakpoint slot available for 0x%x", addr)
	}

	return m.installByMemoryWrite(ctx, addr, size)
}

// sendZ issues "Z<kind>,<addr>,<size>" and classifies the reply: OK means
// installed, Unsupported returns false with no error (the caller decides
// whether to cache that), anything else is an error.
func (m *Manager) sendZ(ctx context.Context, kind byte, addr uint64, size int) (bool, error) {
	req := fmt.Sprintf("Z%c,%x,%x", kind, addr, size)
	reply, err := m.stub.Send(ctx, []byte(req), client.Options{})
	if err != nil {
		return false, err
	}
	switch reply.Kind {
	case packet.KindOK:
		return true, nil
	case packet.KindNormal:
		return false, gdberrors.New(gdberrors.CodeBreakpointInstallFailed, "stub rejected Z%c at 0x%x: unexpected reply", kind, addr)
	case packet.KindUnsupported:
		return false, nil
	case packet.KindError:
		return false, gdberrors.New(gdberrors.CodeBreakpointInstallFailed, "stub error on Z%c at 0x%x: %s", kind, addr, packet.FormatError(reply))
	default:
		return false, gdberrors.New(gdberrors.CodeUnexpectedReplyKind, "unexpected reply to Z%c", kind)
	}
}

func (m *Manager) internSite(addr uint64, size int, kind SiteKind) *Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	site := &Site{Address: addr, Size: size, Kind: kind, Enabled: true, RefCount: 1}
	m.sites[addr] = site
	m.metrics.SiteInstalled(kind.String())
	return site
}

// installByMemoryWrite is the last-resort software fallback: read the
// original bytes at addr, write the architecture's trap opcode, and
// remember the original bytes for restore on removal.
func (m *Manager) installByMemoryWrite(ctx context.Context, addr uint64, size int) (*Site, error) {
	opcode := trapOpcode(m.arch)
	if len(opcode) == 0 {
		return nil, gdberrors.New(gdberrors.CodeBreakpointInstallFailed, "no trap opcode known for arch %q", m.arch)
	}
	if err := m.regionPermissionCheck(ctx, addr); err != nil {
		m.metrics.SiteInstallFailed("permission_denied")
		return nil, err
	}
	original, err := m.mem.ReadMemory(ctx, addr, len(opcode))
	if err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeBreakpointInstallFailed, err, "read original bytes at 0x%x", addr)
	}
	if err := m.mem.WriteMemory(ctx, addr, opcode); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeBreakpointInstallFailed, err, "write trap opcode at 0x%x", addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	site := &Site{Address: addr, Size: size, Kind: SiteSoftware, Enabled: true, RefCount: 1, OriginalBytes: original}
	m.sites[addr] = site
	m.metrics.SiteInstalled("software_memory_write")
	return site, nil
}

// regionPermissionCheck queries "qMemoryRegionInfo" for addr when the stub
// advertises the capability, and fails fast with a permission error if the
// region is reported as not writable — avoiding a raw memory-write attempt
// the stub would otherwise reject with a generic, harder-to-diagnose error.
// A stub that doesn't support the query, or that returns no permissions
// field, is not second-guessed.
func (m *Manager) regionPermissionCheck(ctx context.Context, addr uint64) error {
	if m.stub.Capability("qMemoryRegionInfo") != client.CapSupported {
		return nil
	}
	reply, err := m.stub.Send(ctx, []byte(fmt.Sprintf("qMemoryRegionInfo:%x", addr)), client.Options{})
	if err != nil {
		return err
	}
	if reply.Kind != packet.KindNormal {
		return nil
	}
	perms, ok := parseMemoryRegionPermissions(reply.Payload)
	if !ok {
		return nil
	}
	if !strings.Contains(perms, "w") {
		return gdberrors.New(gdberrors.CodePermissionDenied, "memory region at 0x%x is not writable (permissions=%q)", addr, perms)
	}
	return nil
}

// parseMemoryRegionPermissions extracts the "permissions" field from a
// qMemoryRegionInfo reply's "key:value;" pairs (e.g. "start:...;size:...;
// permissions:rx;").
func parseMemoryRegionPermissions(payload []byte) (string, bool) {
	for _, field := range strings.Split(string(payload), ";") {
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, ":")
		if ok && key == "permissions" {
			return val, true
		}
	}
	return "", false
}

// releaseSite decrements the site's refcount, removing it (reversing the
// installation kind used) once it reaches zero.
func (m *Manager) releaseSite(ctx context.Context, loc *BreakpointLocation) error {
	site := loc.Site
	loc.Site = nil
	if site == nil {
		return nil
	}

	m.mu.Lock()
	site.RefCount--
	remaining := site.RefCount
	if remaining <= 0 {
		delete(m.sites, site.Address)
	}
	m.mu.Unlock()

	if remaining > 0 {
		return nil
	}

	switch site.Kind {
	case SiteSoftware:
		if site.OriginalBytes != nil {
			if err := m.mem.WriteMemory(ctx, site.Address, site.OriginalBytes); err != nil {
				return gdberrors.Wrap(gdberrors.CodeBreakpointInstallFailed, err, "restore original bytes at 0x%x", site.Address)
			}
			m.metrics.SiteRemoved("software_memory_write")
			return nil
		}
		if _, err := m.sendZRemove(ctx, '0', site.Address, site.Size); err != nil {
			return err
		}
		m.metrics.SiteRemoved("software")
	case SiteHardware:
		if _, err := m.sendZRemove(ctx, '1', site.Address, site.Size); err != nil {
			return err
		}
		m.metrics.SiteRemoved("hardware")
	}
	return nil
}

func (m *Manager) sendZRemove(ctx context.Context, kind byte, addr uint64, size int) (bool, error) {
	req := fmt.Sprintf("z%c,%x,%x", kind, addr, size)
	reply, err := m.stub.Send(ctx, []byte(req), client.Options{})
	if err != nil {
		return false, err
	}
	if reply.Kind == packet.KindOK {
		return true, nil
	}
	return false, gdberrors.New(gdberrors.CodeBreakpointInstallFailed, "stub rejected z%c removal at 0x%x", kind, addr)
}

// LoadAddressResolver maps a module's file address to its current load
// address. pkg/target's module list implements this.
type LoadAddressResolver interface {
	ResolveLoadAddress(moduleUUID string, fileAddr uint64) (uint64, bool)
}

// zKindFor maps an AccessKind to its Z-packet kind digit ('2' write,
// '3' read, '4' access).
func zKindFor(k AccessKind) byte {
	switch k {
	case AccessRead:
		return '3'
	case AccessReadWrite:
		return '4'
	default:
		return '2'
	}
}

// SetWatchpoint installs a hardware watchpoint by issuing Z2/Z3/Z4 directly;
// no capability query is made first, and an Unsupported reply is reported
// as a watchpoint-install failure for that size.
func (m *Manager) SetWatchpoint(ctx context.Context, addr uint64, size int, access AccessKind) (*Watchpoint, error) {
	kind := zKindFor(access)
	ok, err := m.sendZ(ctx, kind, addr, size)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gdberrors.New(gdberrors.CodeWatchpointInstallFailed, "stub does not support watchpoint size %d at 0x%x", size, addr)
	}
	wp := &Watchpoint{ID: uuid.New(), Address: addr, Size: size, Access: access, Enabled: true}
	m.mu.Lock()
	m.watchpoints[wp.ID] = wp
	m.mu.Unlock()

	// Best-effort baseline for OldValue/NewValue on the first hit; a read
	// failure here doesn't fail the install, it just leaves OldValue empty
	// on whatever hit comes first.
	if baseline, err := m.mem.ReadMemory(ctx, addr, size); err == nil {
		m.mu.Lock()
		m.watchBaseline[wp.ID] = baseline
		m.mu.Unlock()
	}

	return wp, nil
}

// RemoveWatchpoint uninstalls wp via the matching 'z' packet.
func (m *Manager) RemoveWatchpoint(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	wp, ok := m.watchpoints[id]
	m.mu.Unlock()
	if !ok {
		return gdberrors.New(gdberrors.CodeInvalidHandle, "unknown watchpoint %s", id)
	}
	if _, err := m.sendZRemove(ctx, zKindFor(wp.Access), wp.Address, wp.Size); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.watchpoints, id)
	delete(m.watchBaseline, id)
	m.mu.Unlock()
	return nil
}

// WatchpointAt returns the installed watchpoint at addr, mapping a reported
// watch-hit address back to the specific watchpoint id that owns it.
func (m *Manager) WatchpointAt(addr uint64) (*Watchpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wp := range m.watchpoints {
		if wp.Address == addr {
			return wp, true
		}
	}
	return nil, false
}

// RecordWatchHit looks up the watchpoint installed at addr, increments its
// hit count, and captures the before/after memory value across the hit.
// Reports false if no watchpoint is installed at addr.
func (m *Manager) RecordWatchHit(ctx context.Context, addr uint64) (*Watchpoint, bool) {
	wp, ok := m.WatchpointAt(addr)
	if !ok {
		return nil, false
	}

	m.mu.Lock()
	wp.HitCount++
	old := m.watchBaseline[wp.ID]
	m.mu.Unlock()

	newVal, err := m.mem.ReadMemory(ctx, wp.Address, wp.Size)
	if err != nil {
		return wp, true
	}

	m.mu.Lock()
	wp.OldValue = old
	wp.NewValue = newVal
	m.watchBaseline[wp.ID] = newVal
	m.mu.Unlock()

	return wp, true
}

// SiteAt reports whether a breakpoint site is installed at addr.
func (m *Manager) SiteAt(addr uint64) (*Site, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[addr]
	return site, ok
}

// BreakpointAt returns the breakpoint owning an installed site at addr.
func (m *Manager) BreakpointAt(addr uint64) (*Breakpoint, bool) {
	m.mu.Lock()
	bps := m.allBreakpointsLocked()
	m.mu.Unlock()
	for _, bp := range bps {
		for _, loc := range bp.Locations {
			if loc.Site != nil && loc.HasLoadAddress && loc.LoadAddress == addr {
				return bp, true
			}
		}
	}
	return nil, false
}

// RecordBreakpointHit reports a breakpoint stop at addr for tid: if no site
// is installed at addr, or the owning breakpoint's ThreadFilter names a
// different thread, the hit is not valid for this thread and ok is false so
// the caller can suppress it instead of misreporting it as a breakpoint
// hit. Otherwise the breakpoint's HitCount is incremented and it is
// returned.
func (m *Manager) RecordBreakpointHit(addr uint64, tid uint64) (*Breakpoint, bool) {
	bp, ok := m.BreakpointAt(addr)
	if !ok {
		return nil, false
	}
	if bp.Options.ThreadFilter != nil && *bp.Options.ThreadFilter != tid {
		return nil, false
	}
	m.mu.Lock()
	bp.HitCount++
	m.mu.Unlock()
	return bp, true
}

// ListWatchpoints returns every installed watchpoint.
func (m *Manager) ListWatchpoints() []*Watchpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Watchpoint, 0, len(m.watchpoints))
	for _, wp := range m.watchpoints {
		out = append(out, wp)
	}
	return out
}

// trapSize returns the breakpoint instruction size for arch, used as the
// Z-packet size argument; it is the byte length of trapOpcode(arch).
func trapSize(arch string) int {
	return len(trapOpcode(arch))
}

// trapOpcode returns the architecture's software breakpoint trap
// instruction bytes, used by the memory-write fallback.
func trapOpcode(arch string) []byte {
	switch {
	case hasPrefixFold(arch, "x86_64"), hasPrefixFold(arch, "amd64"), hasPrefixFold(arch, "i386"), hasPrefixFold(arch, "x86"):
		return []byte{0xCC} // INT3
	case hasPrefixFold(arch, "thumb"):
		return []byte{0x00, 0xBE} // BKPT #0 (Thumb)
	case hasPrefixFold(arch, "arm"):
		return []byte{0x70, 0x00, 0x20, 0xE1} // BKPT #0 (ARM, little-endian)
	case hasPrefixFold(arch, "mips"):
		return []byte{0x0D, 0x00, 0x00, 0x00} // BREAK
	default:
		return nil
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
