package client_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gclient "github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/packet"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/transport"
)

// scriptedStub wires a Pipe's OnWrite hook to answer every outbound
// command frame with a canned reply, imitating a real stub closely enough
// to exercise the Remote Client end-to-end.
func scriptedStub(t *testing.T, replies map[string][]byte) *transport.Pipe {
	t.Helper()
	p := transport.NewPipe()
	p.OnWrite = func(p *transport.Pipe, data []byte) {
		if len(data) == 1 && (data[0] == '+' || data[0] == '-') {
			return
		}
		payload, err := packet.DecodeFrame(data)
		if err != nil {
			return
		}
		cmd := string(payload)
		for prefix, reply := range replies {
			if strings.HasPrefix(cmd, prefix) {
				p.Feed([]byte{'+'})
				p.Feed(packet.Encode(reply))
				return
			}
		}
	}
	return p
}

func TestClient_SendReceivesOK(t *testing.T) {
	p := scriptedStub(t, map[string][]byte{"QStartNoAckMode": []byte("OK")})
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	err := c.NegotiateNoAck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gclient.CapSupported, c.Capability("QStartNoAckMode"))
}

func TestClient_ProbeSupportedParsesTokens(t *testing.T) {
	p := scriptedStub(t, map[string][]byte{
		"qSupported": []byte("PacketSize=4000;qXfer:features:read+;multiprocess-"),
	})
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	require.NoError(t, c.ProbeSupported(context.Background()))
	assert.Equal(t, gclient.CapSupported, c.Capability("qXfer:features:read"))
	assert.Equal(t, gclient.CapUnsupported, c.Capability("multiprocess"))
	v, ok := c.CapabilityValue("PacketSize")
	require.True(t, ok)
	assert.Equal(t, "4000", v)
	assert.Equal(t, 0x4000, c.MaxMemorySize())
}

func TestClient_CapabilityMonotonicity(t *testing.T) {
	p := scriptedStub(t, nil)
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	assert.Equal(t, gclient.CapUnknown, c.Capability("vCont"))

	restore := c.ScopedTimeout(20 * time.Millisecond)
	defer restore()
	_, _ = c.ProbeVCont(context.Background()) // stub doesn't answer -> times out, capability stays unknown
	assert.Equal(t, gclient.CapUnknown, c.Capability("vCont"))
}

func TestClient_MaxMemorySizeDefaults(t *testing.T) {
	p := scriptedStub(t, nil)
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))
	assert.Equal(t, 512, c.MaxMemorySize())
}

func TestClient_ScopedTimeoutRestores(t *testing.T) {
	p := scriptedStub(t, nil)
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	orig := c.DefaultTimeout()
	restore := c.ScopedTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.DefaultTimeout())
	restore()
	assert.Equal(t, orig, c.DefaultTimeout())
}

func TestClient_SendThenWaitConcat(t *testing.T) {
	p := transport.NewPipe()
	calls := 0
	p.OnWrite = func(p *transport.Pipe, data []byte) {
		if len(data) == 1 {
			return
		}
		calls++
		p.Feed([]byte{'+'})
		if calls == 1 {
			p.Feed(packet.Encode([]byte("mfirst-chunk-")))
		} else {
			p.Feed(packet.Encode([]byte("lsecond")))
		}
	}
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	out, err := c.SendThenWaitConcat(context.Background(), func(offset int) []byte {
		return []byte("qXfer:features:read:target.xml:0,1000")
	})
	require.NoError(t, err)
	assert.Equal(t, "first-chunk-second", string(out))
}

func TestClient_DeadAfterEOF(t *testing.T) {
	p := transport.NewPipe()
	c := gclient.New(p, nil)
	require.NoError(t, c.Connect(context.Background(), ""))
	p.CloseWithEOF()

	// Give the reader goroutine a moment to observe the closed pipe.
	time.Sleep(20 * time.Millisecond)
	_, err := c.Send(context.Background(), []byte("qHostInfo"), gclient.Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, c.IsDead())
}
