package modules

import (
	"context"

	"github.com/mark-grimes/gdbremote-core/internal/breakpoint"
	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
)

// BreakpointManager is the narrow slice of internal/breakpoint.Manager the
// module list needs in order to trigger reconciliation, kept as an
// interface to avoid a hard dependency edge in tests.
type BreakpointManager interface {
	OnModuleAdded(ctx context.Context, mod breakpoint.ModuleRef, lookup breakpoint.SymbolLookup, resolve breakpoint.LoadAddressResolver) error
	OnModuleRemoved(ctx context.Context, mod breakpoint.ModuleRef) error
	OnModuleReplaced(ctx context.Context, oldMod, newMod breakpoint.ModuleRef, resolve breakpoint.LoadAddressResolver) error
}

// resolverAdapter exposes LoadMap's forward load-address lookup under the
// exact method name internal/breakpoint.LoadAddressResolver requires,
// without colliding with LoadMap's own (differently-signed)
// ResolveLoadAddress method.
type resolverAdapter struct{ lm *LoadMap }

func (r resolverAdapter) ResolveLoadAddress(moduleUUID string, fileAddr uint64) (uint64, bool) {
	return r.lm.ResolveLoadAddressForBreakpoint(moduleUUID, fileAddr)
}

// Manager ties the LoadMap to stub discovery and the Breakpoint Manager /
// Event Bus reconciliation side effects.
type Manager struct {
	LoadMap *LoadMap

	bp       BreakpointManager
	bus      *eventbus.Broadcaster
	busMgr   *eventbus.BroadcasterManager
	resolver resolverAdapter
}

// NewManager constructs a Manager. bp and bus may be nil in tests that only
// exercise the LoadMap directly.
func NewManager(bp BreakpointManager, bus *eventbus.Broadcaster, busMgr *eventbus.BroadcasterManager) *Manager {
	lm := NewLoadMap()
	return &Manager{
		LoadMap:  lm,
		bp:       bp,
		bus:      bus,
		busMgr:   busMgr,
		resolver: resolverAdapter{lm: lm},
	}
}

// Reconcile applies a freshly discovered module set from source against
// the existing module list: modules absent from discovered are removed,
// modules present but unseen are added, modules whose build UUID changed
// are treated as replaced. It assigns load addresses and notifies the
// Breakpoint Manager module by module (added and replaced modules first,
// then removed ones), then snapshots the load map at stopID and, if any
// module was added or replaced, emits modules-loaded on the Event Bus.
func (m *Manager) Reconcile(ctx context.Context, stopID uint64, discovered []DiscoveredModule) error {
	existingByPath := make(map[string]*Module)
	for _, mod := range m.LoadMap.Modules() {
		existingByPath[mod.Path] = mod
	}

	seen := make(map[string]bool, len(discovered))
	var added, replaced []*Module

	for _, d := range discovered {
		seen[d.Path] = true
		old, existed := existingByPath[d.Path]

		if existed && (old.UUIDStr == "" || d.UUIDStr == "" || old.UUIDStr == d.UUIDStr) {
			old.LoadBias, old.HasLoadBias = d.LoadBias, true
			for _, sl := range d.SectionLoads {
				m.LoadMap.SetSectionLoad(old, sl.Name, sl.Addr)
			}
			continue
		}

		mod := NewModule(d.Path, d.UUIDStr, nil)
		mod.LoadBias, mod.HasLoadBias = d.LoadBias, true
		m.LoadMap.AddModule(mod)
		for _, sl := range d.SectionLoads {
			m.LoadMap.SetSectionLoad(mod, sl.Name, sl.Addr)
		}

		if existed {
			if m.bp != nil {
				if err := m.bp.OnModuleReplaced(ctx, old, mod, m.resolver); err != nil {
					return err
				}
			}
			m.LoadMap.RemoveModule(old)
			replaced = append(replaced, mod)
		} else {
			if m.bp != nil {
				if err := m.bp.OnModuleAdded(ctx, mod, nil, m.resolver); err != nil {
					return err
				}
			}
			added = append(added, mod)
		}
	}

	for path, old := range existingByPath {
		if seen[path] {
			continue
		}
		if m.bp != nil {
			if err := m.bp.OnModuleRemoved(ctx, old); err != nil {
				return err
			}
		}
		m.LoadMap.RemoveModule(old)
	}

	m.LoadMap.Snapshot(stopID)

	if m.bus != nil && m.busMgr != nil && (len(added) > 0 || len(replaced) > 0) {
		m.bus.Broadcast(m.busMgr, eventbus.BitModulesLoaded, added)
	}

	return nil
}

// ReconcileExec drops every module (the address space is unrecognizable
// after exec) and lets the next discovery round rebuild the list from
// scratch.
func (m *Manager) ReconcileExec(ctx context.Context) error {
	for _, mod := range m.LoadMap.Modules() {
		if m.bp != nil {
			if err := m.bp.OnModuleRemoved(ctx, mod); err != nil {
				return err
			}
		}
		m.LoadMap.RemoveModule(mod)
	}
	return nil
}
