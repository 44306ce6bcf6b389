package modules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/modules"
)

func TestLoadMap_ResolveLoadAddressCurrent(t *testing.T) {
	lm := modules.NewLoadMap()
	mod := modules.NewModule("/bin/a.out", "uuid-1", []modules.Section{
		{Name: ".text", FileAddress: 0x1000, Size: 0x500},
	})
	lm.AddModule(mod)
	lm.SetSectionLoad(mod, ".text", 0x400000)

	resolved, ok := lm.ResolveLoadAddress(0x400010)
	require.True(t, ok)
	assert.Equal(t, ".text", resolved.Section.Name)
	assert.EqualValues(t, 0x10, resolved.Offset)
	assert.Same(t, mod, resolved.Module)
}

func TestLoadMap_ResolveLoadAddressOutsideRangeFails(t *testing.T) {
	lm := modules.NewLoadMap()
	mod := modules.NewModule("/bin/a.out", "", []modules.Section{
		{Name: ".text", FileAddress: 0, Size: 0x100},
	})
	lm.AddModule(mod)
	lm.SetSectionLoad(mod, ".text", 0x1000)

	_, ok := lm.ResolveLoadAddress(0x5000)
	assert.False(t, ok)
}

func TestLoadMap_HistoricView(t *testing.T) {
	lm := modules.NewLoadMap()
	mod := modules.NewModule("/lib/libfoo.so", "", []modules.Section{
		{Name: ".text", FileAddress: 0, Size: 0x100},
	})
	lm.AddModule(mod)
	lm.SetSectionLoad(mod, ".text", 0x7f0000)
	lm.Snapshot(1)

	lm.SetSectionUnloaded(mod, ".text", nil)
	lm.Snapshot(2)

	_, okNow := lm.ResolveLoadAddress(0x7f0010)
	assert.False(t, okNow)

	resolved, okThen := lm.ResolveLoadAddressAt(1, 0x7f0010)
	require.True(t, okThen)
	assert.EqualValues(t, 0x10, resolved.Offset)
}

func TestLoadMap_UnloadModuleSections(t *testing.T) {
	lm := modules.NewLoadMap()
	mod := modules.NewModule("/lib/libbar.so", "", []modules.Section{
		{Name: ".text", FileAddress: 0, Size: 0x100},
		{Name: ".data", FileAddress: 0x100, Size: 0x40},
	})
	lm.AddModule(mod)
	lm.SetSectionLoad(mod, ".text", 0x1000)
	lm.SetSectionLoad(mod, ".data", 0x1100)

	lm.UnloadModuleSections(mod)
	_, ok := lm.ResolveLoadAddress(0x1000)
	assert.False(t, ok)
}

func TestLoadMap_ForwardResolveViaLoadBias(t *testing.T) {
	lm := modules.NewLoadMap()
	mod := modules.NewModule("/lib/libbaz.so", "", nil)
	mod.LoadBias, mod.HasLoadBias = 0x7fff0000, true
	lm.AddModule(mod)

	addr, ok := lm.ResolveLoadAddressForBreakpoint(mod.UUID(), 0x20)
	require.True(t, ok)
	assert.EqualValues(t, 0x7fff0020, addr)
}
