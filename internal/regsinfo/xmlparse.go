package regsinfo

import (
	"encoding/xml"
	"strings"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// targetXML mirrors the subset of GDB's target-description schema the core
// consumes: <feature> blocks containing <reg> elements.
type targetXML struct {
	XMLName  xml.Name  `xml:"target"`
	Features []feature `xml:"feature"`
}

type feature struct {
	Name string    `xml:"name,attr"`
	Regs []regElem `xml:"reg"`
}

type regElem struct {
	Name           string `xml:"name,attr"`
	AltName        string `xml:"altname,attr"`
	BitSize        int    `xml:"bitsize,attr"`
	Offset         int    `xml:"offset,attr"`
	Encoding       string `xml:"encoding,attr"`
	Format         string `xml:"format,attr"`
	Group          string `xml:"group,attr"`
	RegNum         *int   `xml:"regnum,attr"`
	EHFrameRegNum  *int   `xml:"ehframe_regnum,attr"`
	DWARFRegNum    *int   `xml:"dwarf_regnum,attr"`
	Generic        string `xml:"generic,attr"`
	ValueRegs      string `xml:"value_regnums,attr"`
	InvalidateRegs string `xml:"invalidate_regnums,attr"`
}

// BuildFromTargetXML assembles an Info from a qXfer:features:read:target.xml
// document (strategy 2).
func BuildFromTargetXML(arch string, doc []byte) (*Info, error) {
	var t targetXML
	if err := xml.Unmarshal(doc, &t); err != nil {
		return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "parse target.xml")
	}

	b := newBuilder(arch)
	setID := 0
	for _, f := range t.Features {
		for _, re := range f.Regs {
			r := &Register{
				Name:     re.Name,
				AltName:  re.AltName,
				ByteSize: uint32(re.BitSize) / 8,
				Offset:   uint32(re.Offset),
				Encoding: Encoding(strings.ToLower(re.Encoding)),
				Format:   Format(strings.ToLower(re.Format)),
				SetID:    setID,
				Numbers:  make(map[NumberingKind]int32),
			}
			if r.Name == "" {
				return nil, gdberrors.New(gdberrors.CodeMalformed, "target.xml reg missing name")
			}
			if re.EHFrameRegNum != nil {
				r.Numbers[NumberingEHFrame] = int32(*re.EHFrameRegNum)
			}
			if re.DWARFRegNum != nil {
				r.Numbers[NumberingDWARF] = int32(*re.DWARFRegNum)
			}
			if re.Generic != "" {
				r.Numbers[NumberingGeneric] = int32(genericRegisterID(re.Generic))
			}
			if re.ValueRegs != "" {
				r.ValueRegs = splitNumList(re.ValueRegs)
			}
			if re.InvalidateRegs != "" {
				r.InvalidateRegs = splitNumList(re.InvalidateRegs)
			}
			b.add(r)
		}
		setID++
	}
	return b.finalize(DefaultABITable(arch)), nil
}

func splitNumList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TargetDefinitionPlugin is strategy 1: an opaque external script that
// supplies the host arch, breakpoint-pc-offset, and a register table
// directly, bypassing wire probing entirely. The plugin format itself is
// external-tooling concern;
// this interface is the narrow seam the core calls into.
type TargetDefinitionPlugin interface {
	HostArch() string
	BreakpointPCOffset() int64
	Registers() []*Register
}

// BuildFromPlugin assembles an Info directly from a loaded
// TargetDefinitionPlugin (strategy 1, tried first).
func BuildFromPlugin(p TargetDefinitionPlugin) *Info {
	b := newBuilder(p.HostArch())
	for _, r := range p.Registers() {
		b.add(r)
	}
	return b.finalize(DefaultABITable(p.HostArch()))
}

// Build tries, in order: an external TargetDefinitionPlugin (used whenever
// non-nil), a target.xml document (used if it parses to at least one
// register), then per-register qRegisterInfo probing (its result is
// returned as is, even with no registers). With none of these it returns
// an Info finalized from no discovered registers.
func Build(arch string, plugin TargetDefinitionPlugin, targetXMLDoc []byte, probe func(n int) (map[string]string, bool, error)) (*Info, error) {
	if plugin != nil {
		return BuildFromPlugin(plugin), nil
	}
	if len(targetXMLDoc) > 0 {
		info, err := BuildFromTargetXML(arch, targetXMLDoc)
		if err == nil && info.Count() > 0 {
			return info, nil
		}
	}
	if probe != nil {
		return BuildFromProbes(arch, probe)
	}
	b := newBuilder(arch)
	return b.finalize(DefaultABITable(arch)), nil
}
