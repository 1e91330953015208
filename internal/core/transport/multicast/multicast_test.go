package multicast

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

func newTransport(t *testing.T, cfg Config) *Transport {
	t.Helper()
	tr := New(cfg, wire.NewCodec(wire.NewCatalog()))
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func heartbeatFrame(t *testing.T, tr *Transport) []byte {
	m := types.NewMessage(wire.KindHeartbeat, nil)
	m.Header.Src = 0x4D15
	frame, err := tr.Codec().Encode(m)
	require.NoError(t, err)
	return frame
}

// TestTransport_Receive 测试组播端口上的接收
func TestTransport_Receive(t *testing.T) {
	tr := newTransport(t, Config{Group: "224.0.75.69", Ports: []int{0}, EnableMulticast: true})
	require.NotZero(t, tr.Port())

	got := make(chan types.MessageInfo, 1)
	tr.Subscribe(func(_ *types.Message, i types.MessageInfo) { got <- i })

	c, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tr.Port()})
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write(heartbeatFrame(t, tr))
	require.NoError(t, err)

	select {
	case info := <-got:
		assert.Equal(t, "127.0.0.1", info.SrcIP)
		assert.NotEqual(t, types.TransportUnknown, info.Transport)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到数据报")
	}
}

// TestTransport_MulticastLoopback 测试组播回环
//
// 依赖主机存在可用的组播路由，否则跳过。
func TestTransport_MulticastLoopback(t *testing.T) {
	tr := newTransport(t, Config{Group: "224.0.75.69", Ports: []int{0}, EnableMulticast: true})
	tr.cfg.Ports = []int{tr.Port()}

	got := make(chan types.MessageInfo, 4)
	tr.Subscribe(func(_ *types.Message, i types.MessageInfo) { got <- i })

	if !tr.SendMulticast(heartbeatFrame(t, tr)) {
		t.Skip("主机无组播路由")
	}

	select {
	case info := <-got:
		assert.Equal(t, types.TransportMulticast, info.Transport)
	case <-time.After(2 * time.Second):
		t.Skip("组播回环不可用")
	}
}

// TestTransport_Disabled 测试关闭的发送方式
func TestTransport_Disabled(t *testing.T) {
	tr := newTransport(t, Config{Group: "224.0.75.69", Ports: []int{0}})
	assert.False(t, tr.MulticastEnabled())
	assert.False(t, tr.BroadcastEnabled())
	assert.False(t, tr.SendMulticast([]byte{1}))
	assert.False(t, tr.SendBroadcast([]byte{1}))
}

// TestTransport_Close 测试关闭
func TestTransport_Close(t *testing.T) {
	tr := newTransport(t, Config{Group: "224.0.75.69", Ports: []int{0}, EnableMulticast: true, EnableBroadcast: true})
	require.True(t, tr.Bound())
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, tr.Bound())
	assert.False(t, tr.SendMulticast([]byte{1}))
	assert.False(t, tr.SendTo("127.0.0.1", 9, []byte{1}))
}

// TestTransport_InvalidGroup 测试非法组地址
func TestTransport_InvalidGroup(t *testing.T) {
	tr := New(Config{Group: "nope", Ports: []int{0}, EnableMulticast: true}, wire.NewCodec(wire.NewCatalog()))
	assert.Error(t, tr.Start(context.Background()))
	assert.False(t, tr.Bound())
}
