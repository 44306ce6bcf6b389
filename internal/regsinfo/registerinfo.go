// Package regsinfo builds the Dynamic Register Info: a per-process
// register set assembled from protocol probes or target-description XML,
// augmented from a static per-architecture ABI table, and frozen once
// finalized.
package regsinfo

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mark-grimes/gdbremote-core/internal/gdberrors"
)

// Encoding is a register's value encoding, as reported by qRegisterInfo or
// target.xml.
type Encoding string

const (
	EncodingUint      Encoding = "uint"
	EncodingSint      Encoding = "sint"
	EncodingIEEE754   Encoding = "ieee754"
	EncodingVector    Encoding = "vector"
)

// Format is a register's preferred display format.
type Format string

const (
	FormatHex     Format = "hex"
	FormatDecimal Format = "decimal"
	FormatBinary  Format = "binary"
	FormatVector  Format = "vector-uint8"
)

// NumberingKind enumerates the numbering spaces a register can be known by.
type NumberingKind int

const (
	NumberingEHFrame NumberingKind = iota
	NumberingDWARF
	NumberingGeneric
	NumberingProcessPlugin
	NumberingNative
)

// Register describes one machine register as understood by the core.
type Register struct {
	Name    string
	AltName string

	ByteSize uint32
	Offset   uint32
	Encoding Encoding
	Format   Format
	SetID    int

	// Numbers maps each numbering kind to its register number, when known.
	Numbers map[NumberingKind]int32

	// ValueRegs names the wider register(s) that hold this composite
	// register's value (e.g. "eax" is a ValueReg of "al").
	ValueRegs []string

	// InvalidateRegs names registers whose cached values become stale when
	// this register is written.
	InvalidateRegs []string
}

// RegisterSet groups related registers (e.g. "General Purpose Registers").
type RegisterSet struct {
	ID        int
	Name      string
	Registers []string // register names, in set order
}

// Info is the finalized, immutable-once-built register catalogue for one
// process architecture.
type Info struct {
	Arch  string
	byName map[string]*Register
	order  []string
	sets   []RegisterSet
	frozen bool
}

func newInfo(arch string) *Info {
	return &Info{Arch: arch, byName: make(map[string]*Register)}
}

// ByName looks up a register by its primary name.
func (i *Info) ByName(name string) (*Register, bool) {
	r, ok := i.byName[name]
	return r, ok
}

// ByNumber looks up a register by numbering kind and number.
func (i *Info) ByNumber(kind NumberingKind, num int32) (*Register, bool) {
	for _, name := range i.order {
		r := i.byName[name]
		if n, ok := r.Numbers[kind]; ok && n == num {
			return r, true
		}
	}
	return nil, false
}

// All returns every register in catalogue order.
func (i *Info) All() []*Register {
	out := make([]*Register, 0, len(i.order))
	for _, name := range i.order {
		out = append(out, i.byName[name])
	}
	return out
}

// Sets returns the finalized register sets.
func (i *Info) Sets() []RegisterSet { return i.sets }

// Count returns the number of registers discovered.
func (i *Info) Count() int { return len(i.order) }

// builder accumulates registers from whichever strategy succeeds before
// finalization applies ABI augmentation and freezes the result.
type builder struct {
	info *Info
}

func newBuilder(arch string) *builder { return &builder{info: newInfo(arch)} }

func (b *builder) add(r *Register) {
	if r.Numbers == nil {
		r.Numbers = make(map[NumberingKind]int32)
	}
	if _, exists := b.info.byName[r.Name]; !exists {
		b.info.order = append(b.info.order, r.Name)
	}
	b.info.byName[r.Name] = r
}

// finalize runs ABI augmentation, the ARM/Thumb hardcoded fallback (if
// nothing was discovered), sorts into register sets, and sets the
// result's frozen flag (no method of this package checks the flag).
func (b *builder) finalize(abi ABITable) *Info {
	if len(b.info.order) == 0 && isARMFamily(b.info.Arch) {
		for _, r := range armThumbFallback() {
			b.add(r)
		}
	}

	for _, name := range b.info.order {
		r := b.info.byName[name]
		abi.Augment(r)
	}

	b.info.sets = groupIntoSets(b.info.byName, b.info.order)
	b.info.frozen = true
	return b.info
}

func groupIntoSets(byName map[string]*Register, order []string) []RegisterSet {
	bySetID := make(map[int][]string)
	for _, name := range order {
		r := byName[name]
		bySetID[r.SetID] = append(bySetID[r.SetID], name)
	}
	ids := make([]int, 0, len(bySetID))
	for id := range bySetID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	sets := make([]RegisterSet, 0, len(ids))
	for _, id := range ids {
		name := "Set " + strconv.Itoa(id)
		if id == 0 {
			name = "General Purpose Registers"
		}
		sets = append(sets, RegisterSet{ID: id, Name: name, Registers: bySetID[id]})
	}
	return sets
}

func isARMFamily(arch string) bool {
	a := strings.ToLower(arch)
	return strings.HasPrefix(a, "arm") || strings.HasPrefix(a, "thumb")
}

// armThumbFallback is the hardcoded minimal register set installed when no
// registers were discovered on an ARM/Thumb target.
func armThumbFallback() []*Register {
	mk := func(name string, num int32) *Register {
		return &Register{
			Name:     name,
			ByteSize: 4,
			Encoding: EncodingUint,
			Format:   FormatHex,
			Numbers: map[NumberingKind]int32{
				NumberingGeneric: num,
				NumberingDWARF:   num,
			},
		}
	}
	regs := make([]*Register, 0, 17)
	for n := 0; n < 13; n++ {
		regs = append(regs, mk("r"+strconv.Itoa(n), int32(n)))
	}
	regs = append(regs, mk("sp", 13), mk("lr", 14), mk("pc", 15), mk("cpsr", 16))
	return regs
}

// BuildFromProbes assembles an Info from sequential qRegisterInfo<n>
// responses (strategy 3), stopping at the first unsupported reply.
func BuildFromProbes(arch string, probe func(n int) (map[string]string, bool, error)) (*Info, error) {
	b := newBuilder(arch)
	for n := 0; ; n++ {
		kv, ok, err := probe(n)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		r, err := registerFromKV(kv)
		if err != nil {
			return nil, err
		}
		b.add(r)
	}
	return b.finalize(DefaultABITable(arch)), nil
}

func registerFromKV(kv map[string]string) (*Register, error) {
	r := &Register{Numbers: make(map[NumberingKind]int32)}
	for k, v := range kv {
		switch k {
		case "name":
			r.Name = v
		case "alt-name":
			r.AltName = v
		case "bitsize":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "bitsize")
			}
			r.ByteSize = uint32(n) / 8
		case "offset":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, gdberrors.Wrap(gdberrors.CodeMalformed, err, "offset")
			}
			r.Offset = uint32(n)
		case "encoding":
			r.Encoding = Encoding(v)
		case "format":
			r.Format = Format(v)
		case "set":
			n, err := strconv.Atoi(v)
			if err == nil {
				r.SetID = n
			}
		case "eh_frame":
			setNumber(r, NumberingEHFrame, v)
		case "dwarf":
			setNumber(r, NumberingDWARF, v)
		case "generic":
			setGenericNumber(r, v)
		case "value-regs":
			r.ValueRegs = strings.Split(v, ",")
		case "invalidate-regs":
			r.InvalidateRegs = strings.Split(v, ",")
		}
	}
	if r.Name == "" {
		return nil, gdberrors.New(gdberrors.CodeMalformed, "qRegisterInfo reply missing name")
	}
	return r, nil
}

func setNumber(r *Register, kind NumberingKind, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		r.Numbers[kind] = int32(n)
	}
}

func setGenericNumber(r *Register, v string) {
	// Generic registers are named (pc, sp, fp, ra, flags, arg1..argN)
	// rather than numbered on the wire; store a stable synthetic id for
	// ByNumber lookups: the name's position in genericNames (-1 if absent).
	r.Numbers[NumberingGeneric] = int32(genericRegisterID(v))
}

var genericNames = []string{"pc", "sp", "fp", "ra", "flags", "arg1", "arg2", "arg3", "arg4", "arg5", "arg6", "arg7", "arg8"}

func genericRegisterID(name string) int {
	for i, n := range genericNames {
		if n == name {
			return i
		}
	}
	return -1
}
