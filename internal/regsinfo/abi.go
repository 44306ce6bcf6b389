package regsinfo

import "strings"

// ABITable fills in numbering-kind gaps left by whichever discovery
// strategy ran, keyed by register name. It represents "the architecture's
// ABI table" from as static data, not a plugin — per-architecture ABI
// *plugins* are explicitly out of scope.
type ABITable struct {
	arch    string
	ehFrame map[string]int32
	dwarf   map[string]int32
	generic map[string]int32
}

// Augment fills any numbering kind r is missing from the table, leaving
// entries r already has (e.g. from target.xml) untouched.
func (t ABITable) Augment(r *Register) {
	if _, ok := r.Numbers[NumberingEHFrame]; !ok {
		if n, ok := t.ehFrame[r.Name]; ok {
			r.Numbers[NumberingEHFrame] = n
		}
	}
	if _, ok := r.Numbers[NumberingDWARF]; !ok {
		if n, ok := t.dwarf[r.Name]; ok {
			r.Numbers[NumberingDWARF] = n
		}
	}
	if _, ok := r.Numbers[NumberingGeneric]; !ok {
		if n, ok := t.generic[r.Name]; ok {
			r.Numbers[NumberingGeneric] = n
		}
	}
}

// DefaultABITable returns a minimal, built-in ABI table for well-known
// architecture families. Unknown architectures get an empty table (no
// augmentation, registers keep whatever numbering the discovery strategy
// found).
func DefaultABITable(arch string) ABITable {
	a := strings.ToLower(arch)
	switch {
	case strings.HasPrefix(a, "x86_64") || strings.HasPrefix(a, "amd64"):
		return ABITable{
			arch: arch,
			dwarf: map[string]int32{
				"rax": 0, "rdx": 1, "rcx": 2, "rbx": 3, "rsi": 4, "rdi": 5,
				"rbp": 6, "rsp": 7, "rip": 16,
			},
			ehFrame: map[string]int32{
				"rax": 0, "rdx": 1, "rcx": 2, "rbx": 3, "rsi": 4, "rdi": 5,
				"rbp": 6, "rsp": 7, "rip": 16,
			},
			generic: map[string]int32{
				"rip": int32(genericRegisterID("pc")),
				"rsp": int32(genericRegisterID("sp")),
				"rbp": int32(genericRegisterID("fp")),
			},
		}
	case strings.HasPrefix(a, "arm") || strings.HasPrefix(a, "thumb"):
		return ABITable{
			arch: arch,
			generic: map[string]int32{
				"pc": int32(genericRegisterID("pc")),
				"sp": int32(genericRegisterID("sp")),
				"lr": int32(genericRegisterID("ra")),
			},
		}
	default:
		return ABITable{arch: arch}
	}
}
