// Package breakpoint implements the Breakpoint/Watchpoint Manager:
// Filter+Resolver breakpoint resolution, site interning with software→
// hardware→memory-write fallback, and watchpoint install/remove, kept
// synchronized across module load/unload/exec/process-exit events.
package breakpoint

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ModuleRef is the narrow view of a loaded module the Manager needs. The
// full Module type lives in internal/modules; this interface is the
// seam that keeps this package free of that import, matching the
// "handle/index tables for entities published to outside callers" design
// note.
type ModuleRef interface {
	UUID() string
	Name() string
}

// NameKind masks which kinds of function names a FunctionNameResolver
// matches against: full, base, method, selector.
type NameKind int

const (
	NameFull NameKind = 1 << iota
	NameBase
	NameMethod
	NameSelector
)

// InlinePolicy controls whether a file/line resolver expands into inlined
// call sites.
type InlinePolicy int

const (
	InlineIgnore InlinePolicy = iota
	InlineExpand
)

// SymbolLookup is the seam a Resolver uses to turn a name/file-line/regex
// specification into file addresses within a module. Symbol-table/DWARF
// parsing itself is explicitly out of scope for this core; callers supply
// an implementation (or leave it nil, in which case non-address resolvers
// report no locations rather than failing).
type SymbolLookup interface {
	FunctionAddresses(mod ModuleRef, name string, mask NameKind) ([]uint64, error)
	FileLineAddresses(mod ModuleRef, file string, line int, policy InlinePolicy) ([]uint64, error)
	MatchFunctionRegex(mod ModuleRef, re *regexp.Regexp) ([]uint64, error)
	MatchSourceRegex(mod ModuleRef, re *regexp.Regexp) ([]uint64, error)
}

// Filter selects which modules a Breakpoint's Resolver is run against.
// An empty NameGlobs matches every module.
type Filter struct {
	NameGlobs []string
}

// Matches reports whether mod passes the filter.
func (f Filter) Matches(mod ModuleRef) bool {
	if len(f.NameGlobs) == 0 {
		return true
	}
	for _, g := range f.NameGlobs {
		if ok, _ := matchGlob(g, mod.Name()); ok {
			return true
		}
	}
	return false
}

// matchGlob supports '*' wildcards only, sufficient for module-name
// filtering without pulling in a path-globbing dependency.
func matchGlob(pattern, name string) (bool, error) {
	if pattern == "*" || pattern == name {
		return true, nil
	}
	re, err := regexp.Compile("^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$")
	if err != nil {
		return false, err
	}
	return re.MatchString(name), nil
}

// Candidate is one resolved file address within a module, before load-bias
// is applied.
type Candidate struct {
	FileAddress uint64
	Function    string
	File        string
	Line        int
}

// Resolver visits a single module (already passed through a Filter) and
// returns the Candidates a Breakpoint should materialize into Locations.
type Resolver interface {
	Resolve(mod ModuleRef, lookup SymbolLookup) ([]Candidate, error)
}

// AddressResolver resolves to one or more fixed file addresses directly,
// independent of any symbol table.
type AddressResolver struct {
	Addresses []uint64
}

func (r AddressResolver) Resolve(ModuleRef, SymbolLookup) ([]Candidate, error) {
	out := make([]Candidate, 0, len(r.Addresses))
	for _, a := range r.Addresses {
		out = append(out, Candidate{FileAddress: a})
	}
	return out, nil
}

// FunctionNameResolver resolves by exact or masked function name.
type FunctionNameResolver struct {
	Name string
	Mask NameKind
}

func (r FunctionNameResolver) Resolve(mod ModuleRef, lookup SymbolLookup) ([]Candidate, error) {
	if lookup == nil {
		return nil, nil
	}
	addrs, err := lookup.FunctionAddresses(mod, r.Name, r.Mask)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Candidate{FileAddress: a, Function: r.Name})
	}
	return out, nil
}

// FileLineResolver resolves by source file and line number.
type FileLineResolver struct {
	File   string
	Line   int
	Inline InlinePolicy
}

func (r FileLineResolver) Resolve(mod ModuleRef, lookup SymbolLookup) ([]Candidate, error) {
	if lookup == nil {
		return nil, nil
	}
	addrs, err := lookup.FileLineAddresses(mod, r.File, r.Line, r.Inline)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Candidate{FileAddress: a, File: r.File, Line: r.Line})
	}
	return out, nil
}

// FunctionRegexResolver resolves every function whose name matches Regex.
type FunctionRegexResolver struct {
	Regex *regexp.Regexp
}

func (r FunctionRegexResolver) Resolve(mod ModuleRef, lookup SymbolLookup) ([]Candidate, error) {
	if lookup == nil {
		return nil, nil
	}
	addrs, err := lookup.MatchFunctionRegex(mod, r.Regex)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Candidate{FileAddress: a})
	}
	return out, nil
}

// SourceRegexResolver resolves every line whose source text matches Regex.
type SourceRegexResolver struct {
	Regex *regexp.Regexp
}

func (r SourceRegexResolver) Resolve(mod ModuleRef, lookup SymbolLookup) ([]Candidate, error) {
	if lookup == nil {
		return nil, nil
	}
	addrs, err := lookup.MatchSourceRegex(mod, r.Regex)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Candidate{FileAddress: a})
	}
	return out, nil
}

// ExceptionKind names a language-level exception/throw/catch stopping
// point.
type ExceptionKind int

const (
	ExceptionThrow ExceptionKind = iota
	ExceptionCatch
)

// ExceptionResolver resolves to the target's language-runtime exception
// breakpoint location(s); this depends on a runtime-specific lookup the
// caller supplies via Language, since different language runtimes expose
// this differently (and implementing each runtime's convention is out of
// scope for this core).
type ExceptionResolver struct {
	Language string
	Kind     ExceptionKind
	Lookup   func(mod ModuleRef, language string, kind ExceptionKind) ([]uint64, error)
}

func (r ExceptionResolver) Resolve(mod ModuleRef, _ SymbolLookup) ([]Candidate, error) {
	if r.Lookup == nil {
		return nil, nil
	}
	addrs, err := r.Lookup(mod, r.Language, r.Kind)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Candidate{FileAddress: a})
	}
	return out, nil
}

// SiteKind is how a BreakpointSite is actually implemented.
type SiteKind int

const (
	SiteNone SiteKind = iota
	SiteSoftware
	SiteHardware
	SiteExternal
)

func (k SiteKind) String() string {
	switch k {
	case SiteSoftware:
		return "software"
	case SiteHardware:
		return "hardware"
	case SiteExternal:
		return "external"
	default:
		return "none"
	}
}

// Site is an installed trap at a concrete load address, interned by
// address and refcounted across every BreakpointLocation that shares it.
type Site struct {
	Address  uint64
	Size     int
	Kind     SiteKind
	Enabled  bool
	RefCount int

	// OriginalBytes holds the bytes overwritten by a memory-write fallback
	// trap opcode, restored on removal.
	OriginalBytes []byte
}

// BreakpointLocation is one resolved Candidate materialized against a
// specific module, tracking its own install state independent of sibling
// locations on the same Breakpoint.
type BreakpointLocation struct {
	ID          uuid.UUID
	ModuleUUID  string
	FileAddress uint64

	LoadAddress    uint64
	HasLoadAddress bool

	Site    *Site
	Enabled bool
}

// Options bundles the per-breakpoint behavior flags from the abstract
// specification.
type Options struct {
	Condition              string
	ThreadFilter           *uint64
	IgnoreCount            uint32
	HardwareRequired       bool
	SkipPrologue           bool
	ResolveIndirectSymbols bool
	MoveToNearestCode      bool
}

// Breakpoint is an abstract specification (Filter + Resolver + Options)
// plus the set of BreakpointLocations it has resolved to so far.
type Breakpoint struct {
	ID       uuid.UUID
	Internal bool

	Filter   Filter
	Resolver Resolver
	Options  Options

	Locations []*BreakpointLocation

	Enabled  bool
	HitCount uint64
}

// Handle derives a stable 64-bit handle from ID, with the top bit set for
// internal breakpoints so callers can distinguish internal from
// user-visible IDs by inspection without a side table.
func (b *Breakpoint) Handle() uint64 {
	raw := b.ID
	h := uint64(raw[0])<<56 | uint64(raw[1])<<48 | uint64(raw[2])<<40 | uint64(raw[3])<<32 |
		uint64(raw[4])<<24 | uint64(raw[5])<<16 | uint64(raw[6])<<8 | uint64(raw[7])
	const internalBit = uint64(1) << 63
	if b.Internal {
		return h | internalBit
	}
	return h &^ internalBit
}

// AccessKind is a Watchpoint's trigger condition.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessReadWrite
)

// Watchpoint is a hardware-only load-address + size + access-kind stopping
// point.
type Watchpoint struct {
	ID      uuid.UUID
	Address uint64
	Size    int
	Access  AccessKind

	Enabled     bool
	IgnoreCount uint32
	Condition   string
	HitCount    uint64

	OldValue []byte
	NewValue []byte
}
