package tcp

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

type result struct {
	outcome types.Outcome
	err     error
}

func newTransport(t *testing.T, clk clock.Clock) *Transport {
	t.Helper()
	tr := New(Config{Host: "127.0.0.1", DialTimeout: time.Second, IdleTimeout: time.Minute}, wire.NewCodec(wire.NewCatalog()), clk)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func frame(t *testing.T, tr *Transport, src types.PeerID) []byte {
	m := types.NewMessage(wire.KindHeartbeat, []byte("payload"))
	m.Header.Src = src
	f, err := tr.Codec().Encode(m)
	require.NoError(t, err)
	return f
}

func waitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("等待发送结果超时")
		return result{}
	}
}

// TestTransport_SendReceive 测试收发与连接复用
func TestTransport_SendReceive(t *testing.T) {
	a, b := newTransport(t, nil), newTransport(t, nil)

	got := make(chan *types.Message, 4)
	infos := make(chan types.MessageInfo, 4)
	b.Subscribe(func(m *types.Message, i types.MessageInfo) {
		got <- m
		infos <- i
	})

	done := make(chan result, 2)
	cb := func(o types.Outcome, err error) { done <- result{o, err} }

	require.True(t, a.Send("127.0.0.1", b.Port(), frame(t, a, 0x4001), cb))
	require.True(t, a.Send("127.0.0.1", b.Port(), frame(t, a, 0x4002), cb))

	assert.Equal(t, types.OutcomeSuccess, waitResult(t, done).outcome)
	assert.Equal(t, types.OutcomeSuccess, waitResult(t, done).outcome)

	for _, want := range []types.PeerID{0x4001, 0x4002} {
		select {
		case m := <-got:
			assert.Equal(t, want, m.Header.Src, "同一连接上保持顺序")
			i := <-infos
			assert.Equal(t, types.TransportTCP, i.Transport)
			assert.Equal(t, "127.0.0.1", i.SrcIP)
		case <-time.After(3 * time.Second):
			t.Fatal("未收到消息")
		}
	}

	assert.Equal(t, 1, a.Stats().Outbound, "两次发送复用同一连接")
	require.Eventually(t, func() bool { return b.Stats().Inbound == 1 }, time.Second, 10*time.Millisecond)

	t.Log("✅ TCP 收发测试通过")
}

// TestTransport_Unreachable 测试拨号被拒绝
func TestTransport_Unreachable(t *testing.T) {
	a := newTransport(t, nil)

	// 占用再释放一个端口，确保无人监听
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	done := make(chan result, 1)
	require.True(t, a.Send("127.0.0.1", port, frame(t, a, 0x4001), func(o types.Outcome, err error) {
		done <- result{o, err}
	}))

	r := waitResult(t, done)
	assert.Equal(t, types.OutcomeUnreachable, r.outcome)
	assert.Error(t, r.err)
	require.Eventually(t, func() bool { return a.Stats().Outbound == 0 }, time.Second, 10*time.Millisecond)
}

// TestTransport_Malformed 测试失步连接被断开
func TestTransport_Malformed(t *testing.T) {
	b := newTransport(t, nil)

	nc, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(b.Port())))
	require.NoError(t, err)
	defer nc.Close()

	_, err = nc.Write(make([]byte, 32))
	require.NoError(t, err)

	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = nc.Read(make([]byte, 1))
	assert.Error(t, err, "对端应关闭连接")
	require.Eventually(t, func() bool { return b.Stats().Inbound == 0 }, time.Second, 10*time.Millisecond)
}

// TestTransport_IdleReaper 测试空闲回收
func TestTransport_IdleReaper(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	a := newTransport(t, clk)
	b := newTransport(t, nil)

	done := make(chan result, 1)
	require.True(t, a.Send("127.0.0.1", b.Port(), frame(t, a, 0x4001), func(o types.Outcome, err error) {
		done <- result{o, err}
	}))
	require.Equal(t, types.OutcomeSuccess, waitResult(t, done).outcome)

	assert.Equal(t, 0, a.reapIdle(), "尚未空闲")
	assert.Equal(t, 0, a.Stats().Idle)

	clk.Add(31 * time.Second)
	assert.Equal(t, 1, a.Stats().Idle)

	// 回收协程也可能在同一时刻执行，只检查最终状态
	clk.Add(30 * time.Second)
	a.reapIdle()
	require.Eventually(t, func() bool { return a.Stats().Open() == 0 }, time.Second, 10*time.Millisecond)
}

// TestTransport_NotStarted 测试未启动
func TestTransport_NotStarted(t *testing.T) {
	tr := New(Config{}, wire.NewCodec(wire.NewCatalog()), nil)
	assert.False(t, tr.Bound())
	assert.False(t, tr.Send("127.0.0.1", 6002, []byte{1}, nil))
	assert.NoError(t, tr.Close())
}

// TestTransport_CloseFailsQueued 测试关闭时排空队列
func TestTransport_CloseFailsQueued(t *testing.T) {
	a := newTransport(t, nil)

	// 不可路由地址，拨号会阻塞到超时
	done := make(chan result, 1)
	ok := a.Send("10.255.255.1", 6002, frame(t, a, 0x4001), func(o types.Outcome, err error) {
		done <- result{o, err}
	})
	require.True(t, ok)

	require.NoError(t, a.Close())
	r := waitResult(t, done)
	assert.NotEqual(t, types.OutcomeSuccess, r.outcome)
	assert.False(t, a.Send("127.0.0.1", 6002, []byte{1}, nil))
}
