package modules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/breakpoint"
	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/modules"
)

type fakeBPManager struct {
	added, removed, replaced int
}

func (f *fakeBPManager) OnModuleAdded(context.Context, breakpoint.ModuleRef, breakpoint.SymbolLookup, breakpoint.LoadAddressResolver) error {
	f.added++
	return nil
}

func (f *fakeBPManager) OnModuleRemoved(context.Context, breakpoint.ModuleRef) error {
	f.removed++
	return nil
}

func (f *fakeBPManager) OnModuleReplaced(context.Context, breakpoint.ModuleRef, breakpoint.ModuleRef, breakpoint.LoadAddressResolver) error {
	f.replaced++
	return nil
}

func TestManager_ReconcileAddsNewModules(t *testing.T) {
	bp := &fakeBPManager{}
	m := modules.NewManager(bp, nil, nil)

	err := m.Reconcile(context.Background(), 1, []modules.DiscoveredModule{
		{Path: "/bin/a.out", LoadBias: 0x400000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bp.added)
	assert.Len(t, m.LoadMap.Modules(), 1)
}

func TestManager_ReconcileRemovesVanishedModules(t *testing.T) {
	bp := &fakeBPManager{}
	m := modules.NewManager(bp, nil, nil)

	require.NoError(t, m.Reconcile(context.Background(), 1, []modules.DiscoveredModule{
		{Path: "/lib/libfoo.so"},
	}))
	require.NoError(t, m.Reconcile(context.Background(), 2, nil))

	assert.Equal(t, 1, bp.removed)
	assert.Empty(t, m.LoadMap.Modules())
}

func TestManager_ReconcileEmitsModulesLoadedEvent(t *testing.T) {
	busMgr := eventbus.NewBroadcasterManager()
	bcast := eventbus.NewBroadcaster("modules")
	listener := eventbus.NewListener("test")
	busMgr.Subscribe(bcast, listener, eventbus.BitModulesLoaded)

	m := modules.NewManager(nil, bcast, busMgr)
	require.NoError(t, m.Reconcile(context.Background(), 1, []modules.DiscoveredModule{
		{Path: "/bin/a.out"},
	}))

	evt, ok := listener.NextEvent(0)
	require.True(t, ok)
	assert.Equal(t, eventbus.BitModulesLoaded, evt.Bits)
}
