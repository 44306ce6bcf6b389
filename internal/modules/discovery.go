package modules

import (
	"encoding/json"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// DiscoverySource identifies which stub mechanism produced a Snapshot of
// the loaded-module set.
type DiscoverySource int

const (
	SourceLibrariesSVR4 DiscoverySource = iota
	SourceLibrariesGeneric
	SourceAppleStructured
)

// DiscoveredModule is one module as reported by a discovery source, before
// reconciliation against the existing module list.
type DiscoveredModule struct {
	Path     string
	UUIDStr  string
	LoadBias uint64

	// SectionLoads holds explicit per-section load addresses, only
	// populated by the generic qXfer:libraries:read schema (the svr4 and
	// Apple sources report a single LoadBias instead).
	SectionLoads []SectionLoad
}

// SectionLoad is one section's explicit load address, as reported by the
// generic qXfer:libraries:read schema.
type SectionLoad struct {
	Name string
	Addr uint64
}

type svr4Doc struct {
	XMLName xml.Name    `xml:"library-list-svr4"`
	Libs    []svr4Entry `xml:"library"`
}

type svr4Entry struct {
	Name string `xml:"name,attr"`
	LAddr string `xml:"l_addr,attr"`
	LLD   string `xml:"l_ld,attr"`
}

// ParseLibrariesSVR4 parses a qXfer:libraries-svr4:read document: the ELF
// dynamic loader's per-library link map, reporting a single load bias
// (`l_addr`) per library.
func ParseLibrariesSVR4(doc []byte) ([]DiscoveredModule, error) {
	var d svr4Doc
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse libraries-svr4")
	}
	out := make([]DiscoveredModule, 0, len(d.Libs))
	for _, e := range d.Libs {
		bias, _ := strconv.ParseUint(strings.TrimPrefix(e.LAddr, "0x"), 16, 64)
		out = append(out, DiscoveredModule{Path: e.Name, LoadBias: bias})
	}
	return out, nil
}

type librariesDoc struct {
	XMLName xml.Name        `xml:"library-list"`
	Libs    []librariesEntry `xml:"library"`
}

type librariesEntry struct {
	Name     string             `xml:"name,attr"`
	Sections []librariesSection `xml:"section"`
}

type librariesSection struct {
	Name    string `xml:"name,attr"`
	Address string `xml:"address,attr"`
}

// ParseLibrariesGeneric parses a qXfer:libraries:read document: the
// generic schema with an explicit load address per section rather than a
// single bias.
func ParseLibrariesGeneric(doc []byte) ([]DiscoveredModule, error) {
	var d librariesDoc
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse libraries")
	}
	out := make([]DiscoveredModule, 0, len(d.Libs))
	for _, e := range d.Libs {
		dm := DiscoveredModule{Path: e.Name}
		for i, s := range e.Sections {
			addr, _ := strconv.ParseUint(strings.TrimPrefix(s.Address, "0x"), 16, 64)
			name := s.Name
			if name == "" {
				name = "section" + strconv.Itoa(i)
			}
			dm.SectionLoads = append(dm.SectionLoads, SectionLoad{Name: name, Addr: addr})
		}
		out = append(out, dm)
	}
	return out, nil
}

type appleLibrariesReply struct {
	Images []appleImage `json:"images"`
}

type appleImage struct {
	PathName  string `json:"pathname"`
	UUID      string `json:"uuid"`
	LoadAddr  uint64 `json:"load_address"`
	MachHdr   uint64 `json:"mach_header"`
}

// ParseAppleStructured parses a jGetLoadedDynamicLibrariesInfos JSON
// response, the structured enumeration used on Apple platforms.
func ParseAppleStructured(doc []byte) ([]DiscoveredModule, error) {
	var reply appleLibrariesReply
	if err := json.Unmarshal(doc, &reply); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse jGetLoadedDynamicLibrariesInfos")
	}
	out := make([]DiscoveredModule, 0, len(reply.Images))
	for _, img := range reply.Images {
		addr := img.LoadAddr
		if addr == 0 {
			addr = img.MachHdr
		}
		out = append(out, DiscoveredModule{Path: img.PathName, UUIDStr: img.UUID, LoadBias: addr})
	}
	return out, nil
}
