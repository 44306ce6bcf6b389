package modules

import (
	"sync"

	"github.com/mark-grimes/gdbremote-core/internal/logger"
)

// sectionKey identifies one section within one module.
type sectionKey struct {
	moduleID string
	section  string
}

type loadEntry struct {
	key      sectionKey
	addr     uint64
	size     uint64
	loaded   bool
}

// LoadMap is the section→load-address mapping: a current view plus a
// historic view indexed by stop id.
type LoadMap struct {
	mu sync.RWMutex

	modules map[string]*Module // by internal UUID

	current map[sectionKey]loadEntry
	history map[uint64]map[sectionKey]loadEntry
}

// NewLoadMap returns an empty LoadMap.
func NewLoadMap() *LoadMap {
	return &LoadMap{
		modules: make(map[string]*Module),
		current: make(map[sectionKey]loadEntry),
		history: make(map[uint64]map[sectionKey]loadEntry),
	}
}

// AddModule registers mod (or replaces an existing entry with the same
// internal id) in the module list without affecting load state.
func (lm *LoadMap) AddModule(mod *Module) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.modules[mod.UUID()] = mod
}

// RemoveModule drops mod from the list and unloads all its sections from
// the current view.
func (lm *LoadMap) RemoveModule(mod *Module) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.modules, mod.UUID())
	for k, e := range lm.current {
		if k.moduleID == mod.UUID() {
			e.loaded = false
			lm.current[k] = e
		}
	}
}

// Modules returns every registered module.
func (lm *LoadMap) Modules() []*Module {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	out := make([]*Module, 0, len(lm.modules))
	for _, m := range lm.modules {
		out = append(out, m)
	}
	return out
}

// ByPath returns the first registered module with the given path.
func (lm *LoadMap) ByPath(path string) (*Module, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	for _, m := range lm.modules {
		if m.Path == path {
			return m, true
		}
	}
	return nil, false
}

// SetSectionLoad records section's current load address, warning (via the
// ambient logger, not failing) if it conflicts with an already-loaded
// mapping for the same section at a different address.
func (lm *LoadMap) SetSectionLoad(mod *Module, sectionName string, loadAddr uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	k := sectionKey{moduleID: mod.UUID(), section: sectionName}
	if existing, ok := lm.current[k]; ok && existing.loaded && existing.addr != loadAddr {
		logger.Warnf("conflicting reload of section %s in %s: 0x%x -> 0x%x", sectionName, mod.Path, existing.addr, loadAddr)
	}
	sec, _ := mod.SectionByName(sectionName)
	lm.current[k] = loadEntry{key: k, addr: loadAddr, size: sec.Size, loaded: true}
}

// SetSectionUnloaded marks section as unloaded. addr, if non-nil, is
// recorded as the last known load address for historic lookups; when nil
// the previously recorded address (if any) is kept.
func (lm *LoadMap) SetSectionUnloaded(mod *Module, sectionName string, addr *uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	k := sectionKey{moduleID: mod.UUID(), section: sectionName}
	e := lm.current[k]
	e.key = k
	if addr != nil {
		e.addr = *addr
	}
	e.loaded = false
	lm.current[k] = e
}

// UnloadModuleSections marks every section of mod as unloaded in one pass.
func (lm *LoadMap) UnloadModuleSections(mod *Module) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, sec := range mod.Sections {
		k := sectionKey{moduleID: mod.UUID(), section: sec.Name}
		e := lm.current[k]
		e.key = k
		e.loaded = false
		lm.current[k] = e
	}
}

// Snapshot captures the current view into the historic view at stopID,
// overwriting any prior snapshot for that id.
func (lm *LoadMap) Snapshot(stopID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	cp := make(map[sectionKey]loadEntry, len(lm.current))
	for k, v := range lm.current {
		cp[k] = v
	}
	lm.history[stopID] = cp
}

// Resolved is a successful address-to-section lookup.
type Resolved struct {
	Module  *Module
	Section Section
	Offset  uint64
}

// ResolveLoadAddress finds which loaded section contains addr in the
// current view.
func (lm *LoadMap) ResolveLoadAddress(addr uint64) (Resolved, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.resolveIn(lm.current, addr)
}

// ResolveLoadAddressAt finds which loaded section contained addr at the
// stop identified by stopID, using the historic view.
func (lm *LoadMap) ResolveLoadAddressAt(stopID uint64, addr uint64) (Resolved, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	snap, ok := lm.history[stopID]
	if !ok {
		return Resolved{}, false
	}
	return lm.resolveIn(snap, addr)
}

func (lm *LoadMap) resolveIn(view map[sectionKey]loadEntry, addr uint64) (Resolved, bool) {
	for k, e := range view {
		if !e.loaded {
			continue
		}
		if addr < e.addr || (e.size > 0 && addr >= e.addr+e.size) {
			continue
		}
		mod, ok := lm.modules[k.moduleID]
		if !ok {
			continue
		}
		sec, _ := mod.SectionByName(k.section)
		return Resolved{Module: mod, Section: sec, Offset: addr - e.addr}, true
	}
	return Resolved{}, false
}

// ResolveLoadAddressForBreakpoint is the forward mapping from a module's
// file address to its current load address, using either the module's
// single LoadBias or an explicit per-section current entry. resolverAdapter
// in manager.go exposes it as internal/breakpoint.LoadAddressResolver.
func (lm *LoadMap) ResolveLoadAddressForBreakpoint(moduleUUID string, fileAddr uint64) (uint64, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	mod, ok := lm.modules[moduleUUID]
	if !ok {
		return 0, false
	}
	if mod.HasLoadBias {
		return fileAddr + mod.LoadBias, true
	}
	for k, e := range lm.current {
		if k.moduleID != moduleUUID || !e.loaded {
			continue
		}
		sec, ok := mod.SectionByName(k.section)
		if !ok {
			continue
		}
		if fileAddr >= sec.FileAddress && fileAddr < sec.FileAddress+sec.Size {
			return e.addr + (fileAddr - sec.FileAddress), true
		}
	}
	return 0, false
}
