package stopreply_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
)

func TestParse_SimpleStopReply(t *testing.T) {
	ev, err := stopreply.Parse([]byte("S05"), "x86_64", nil)
	require.NoError(t, err)
	require.Len(t, ev.Threads, 1)
	assert.Equal(t, 5, ev.Threads[0].Signal)
	assert.Equal(t, stopreply.ReasonSignal, ev.Threads[0].Reason)
}

type fakeResumeLookup map[uint64]bool

func (f fakeResumeLookup) WasStepping(tid uint64) bool { return f[tid] }

func TestParse_BareSigTrapPromotedToTraceOnlyWhenStepping(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;"), "x86_64", fakeResumeLookup{1: true})
	require.NoError(t, err)
	assert.Equal(t, stopreply.ReasonTrace, ev.Threads[0].Reason)

	ev, err = stopreply.Parse([]byte("T05thread:1;"), "x86_64", fakeResumeLookup{1: false})
	require.NoError(t, err)
	assert.Equal(t, stopreply.ReasonSignal, ev.Threads[0].Reason)
}

func TestParse_ThreadStopWithReasonAndThreadID(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1a2b;reason:breakpoint;"), "x86_64", nil)
	require.NoError(t, err)
	require.Len(t, ev.Threads, 1)
	ts := ev.Threads[0]
	assert.EqualValues(t, 0x1a2b, ts.TID)
	assert.Equal(t, stopreply.ReasonBreakpoint, ts.Reason)
}

func TestParse_ThreadsAndThreadPCs(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;threads:1,2;thread-pcs:400000,400010;"), "x86_64", nil)
	require.NoError(t, err)
	require.Len(t, ev.AllTIDs, 2)
	assert.EqualValues(t, 0x400000, ev.ThreadPCs[1])
	assert.EqualValues(t, 0x400010, ev.ThreadPCs[2])
}

func TestParse_WatchpointKeys(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;watch:7fff1000;"), "x86_64", nil)
	require.NoError(t, err)
	ts := ev.Threads[0]
	assert.Equal(t, stopreply.ReasonWatchpoint, ts.Reason)
	assert.Equal(t, stopreply.WatchWrite, ts.WatchKind)
	assert.EqualValues(t, 0x7fff1000, ts.WatchAddr)
}

func TestParse_ExpeditedRegistersAndMemoryFill(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;00:0010203040506070;memory:1000:deadbeef;"), "x86_64", nil)
	require.NoError(t, err)
	ts := ev.Threads[0]
	require.Contains(t, ts.ExpeditedRegisters, 0)
	assert.Equal(t, []byte{0x00, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}, ts.ExpeditedRegisters[0])
	require.Contains(t, ev.MemoryFills, uint64(0x1000))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ev.MemoryFills[0x1000])
}

func TestParse_LibraryKeySetsFlag(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;library:;"), "x86_64", nil)
	require.NoError(t, err)
	assert.True(t, ev.Library)
}

func TestParse_ExecReason(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;reason:exec;"), "x86_64", nil)
	require.NoError(t, err)
	assert.Equal(t, stopreply.ReasonExec, ev.Threads[0].Reason)
}

func TestParse_NonTrapSignalStaysSignal(t *testing.T) {
	ev, err := stopreply.Parse([]byte("S0b"), "x86_64", nil) // SIGSEGV
	require.NoError(t, err)
	assert.Equal(t, stopreply.ReasonSignal, ev.Threads[0].Reason)
}

func TestParse_MachException(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;metype:1;medata:0,7fff1000;"), "x86_64", nil)
	require.NoError(t, err)
	ts := ev.Threads[0]
	assert.Equal(t, stopreply.ReasonException, ts.Reason)
	assert.EqualValues(t, 1, ts.ExcType)
	require.Len(t, ts.ExcData, 2)
}

func TestParse_ExitedAndTerminated(t *testing.T) {
	ev, err := stopreply.Parse([]byte("W00"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, stopreply.KindExited, ev.Kind)
	assert.EqualValues(t, 0, ev.ExitCode)

	ev, err = stopreply.Parse([]byte("X0b"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, stopreply.KindTerminated, ev.Kind)
	assert.EqualValues(t, 0x0b, ev.ExitSignal)
}

func TestParse_OutputPacket(t *testing.T) {
	ev, err := stopreply.Parse([]byte("O68656c6c6f"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, stopreply.KindOutput, ev.Kind)
	assert.Equal(t, "hello", string(ev.Output))
}

func TestParse_UnrecognisedKind(t *testing.T) {
	_, err := stopreply.Parse([]byte("Z05"), "", nil)
	assert.Error(t, err)
}

func TestParse_QueueInfo(t *testing.T) {
	ev, err := stopreply.Parse([]byte("T05thread:1;qname:6d61696e;qkind:serial;qserialnum:1;"), "x86_64", nil)
	require.NoError(t, err)
	q := ev.Threads[0].Queue
	require.NotNil(t, q)
	assert.Equal(t, "main", q.Name)
	assert.Equal(t, stopreply.QueueSerial, q.Kind)
}

func TestParseThreadsInfo_ObjectByID(t *testing.T) {
	doc := []byte(`{
		"1": {"tid": 1, "signal": 5, "reason": "breakpoint", "registers": {"0": "0010203040506070"}},
		"2": {"tid": 2, "signal": 0, "reason": "none"}
	}`)
	ev, err := stopreply.ParseThreadsInfo(doc, "x86_64", nil)
	require.NoError(t, err)
	require.Len(t, ev.Threads, 2)
	require.Len(t, ev.AllTIDs, 2)

	byTID := make(map[uint64]stopreply.ThreadStop, len(ev.Threads))
	for _, ts := range ev.Threads {
		byTID[ts.TID] = ts
	}
	require.Contains(t, byTID, uint64(1))
	assert.Equal(t, stopreply.ReasonBreakpoint, byTID[1].Reason)
	assert.Contains(t, byTID[1].ExpeditedRegisters, 0)
}

func TestParseThreadsInfo_BareArray(t *testing.T) {
	doc := []byte(`[{"tid": 7, "signal": 5, "reason": "watchpoint"}]`)
	ev, err := stopreply.ParseThreadsInfo(doc, "x86_64", nil)
	require.NoError(t, err)
	require.Len(t, ev.Threads, 1)
	assert.EqualValues(t, 7, ev.Threads[0].TID)
	assert.Equal(t, stopreply.ReasonWatchpoint, ev.Threads[0].Reason)
}
