// Package modules implements the Module List & Section Load History:
// per-process module/section bookkeeping with a current and a historic
// (stop_id-indexed) load-address view, plus the three stub discovery
// strategies that populate it.
package modules

import "github.com/google/uuid"

// Section is one named region of a module's file image (text, data, bss,
// ...).
type Section struct {
	Name        string
	FileAddress uint64
	Size        uint64
}

// Module is one loaded shared object / executable image.
type Module struct {
	id   uuid.UUID
	Path string
	UUIDStr string // the platform-reported build UUID/build-id, when known

	Sections []Section

	// LoadBias is the offset added to a section's FileAddress to produce
	// its load address, when the discovery source reports a single bias
	// rather than per-section absolute addresses.
	LoadBias    uint64
	HasLoadBias bool
}

// NewModule constructs a Module with a fresh internal identity.
func NewModule(path, uuidStr string, sections []Section) *Module {
	return &Module{id: uuid.New(), Path: path, UUIDStr: uuidStr, Sections: sections}
}

// UUID satisfies breakpoint.ModuleRef, returning the internal identity
// (stable across reload/replace) rather than UUIDStr (the platform build
// id, which may be empty or shared across modules the stub mis-reports).
func (m *Module) UUID() string { return m.id.String() }

// Name satisfies breakpoint.ModuleRef.
func (m *Module) Name() string { return m.Path }

// SectionByName looks up a section by name.
func (m *Module) SectionByName(name string) (Section, bool) {
	for _, s := range m.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}
