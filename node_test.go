package imcmsg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

const testKind = "Abort"

func newLoopbackNode(t *testing.T, id PeerID, opts ...Option) *Node {
	t.Helper()
	base := []Option{
		WithPreset(PresetLoopback),
		WithLocalID(id),
		WithName("test-" + id.String()),
		WithMessageKind(testKind, 550),
	}
	n, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func startNode(t *testing.T, n *Node) {
	t.Helper()
	require.NoError(t, n.Start(context.Background()))
}

// ============================================================================
//                              两节点收发
// ============================================================================

func TestNode_LoopbackSend(t *testing.T) {
	b := newLoopbackNode(t, 0x2001)
	startNode(t, b)
	ports := b.TransportPorts()
	require.NotZero(t, ports[types.TransportUDP])

	sub, err := b.SubscribeUnrouted()
	require.NoError(t, err)
	defer sub.Close()

	a := newLoopbackNode(t, 0x4001, WithKnownPeer(config.KnownPeer{
		ID:      0x2001,
		Name:    "vehicle-b",
		Kind:    types.KindVehicle,
		Host:    "127.0.0.1",
		UDPPort: ports[types.TransportUDP],
	}))
	startNode(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := a.SendBlocking(ctx, NewMessage(testKind, []byte("stop")), 0x2001)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	assert.Equal(t, types.TransportUDP, res.Transport)

	// B 从未收到 A 的 Announce，消息进入未路由总线
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.Out():
			evt := e.(EvtUnroutedMessage)
			if evt.Message.Kind != testKind {
				continue
			}
			assert.Equal(t, PeerID(0x4001), evt.Message.Header.Src)
			assert.Equal(t, PeerID(0x2001), evt.Message.Header.Dst)
			assert.Equal(t, []byte("stop"), evt.Message.Payload)
			assert.Equal(t, "127.0.0.1", evt.Info.SrcIP)
			t.Log("✅ 两节点回环收发测试通过")
			return
		case <-timeout:
			t.Fatal("B 未收到消息")
		}
	}
}

func TestNode_StaticPeerRecord(t *testing.T) {
	a := newLoopbackNode(t, 0x4001, WithKnownPeer(config.KnownPeer{
		ID:      0x2002,
		Name:    "vehicle-c",
		Kind:    types.KindVehicle,
		Host:    "127.0.0.1",
		UDPPort: 1,
	}))
	startNode(t, a)

	_, ok := a.LookupPeer(0x2002)
	assert.False(t, ok, "静态系统在首次发送前不建记录")

	a.Send(NewMessage(testKind, nil), 0x2002)
	rec, ok := a.LookupPeer(0x2002)
	require.True(t, ok)
	assert.True(t, rec.Static)
	assert.Equal(t, "vehicle-c", rec.Name)

	first, ok := a.FirstKnown()
	require.True(t, ok)
	assert.Equal(t, PeerID(0x2002), first)
	assert.Empty(t, a.Consoles())

	t.Log("✅ 静态系统记录测试通过")
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestNode_Lifecycle(t *testing.T) {
	n := newLoopbackNode(t, 0x4001)
	assert.Equal(t, StateIdle, n.State())
	assert.ErrorIs(t, n.Stop(context.Background()), ErrNotStarted)

	startNode(t, n)
	assert.True(t, n.Running())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, n.Stop(context.Background()))
	assert.Equal(t, StateStopped, n.State())
	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)
	assert.ErrorIs(t, n.Stop(context.Background()), ErrNodeClosed)
	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())

	t.Log("✅ 生命周期测试通过")
}

func TestNode_SendBeforeStart(t *testing.T) {
	n := newLoopbackNode(t, 0x4001)

	got := make(chan Result, 1)
	ok := n.SendWithListener(NewMessage(testKind, nil), 0x2001, func(r Result) { got <- r })
	assert.False(t, ok)

	select {
	case r := <-got:
		assert.Equal(t, types.OutcomeError, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("未收到投递结果")
	}

	t.Log("✅ 启动前发送测试通过")
}

func TestNode_StopFailsPending(t *testing.T) {
	n := newLoopbackNode(t, 0x4001)
	startNode(t, n)

	f := n.SendReliably(NewMessage(testKind, nil), 0x2001)
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnreachable, res.Outcome, "未知系统")

	require.NoError(t, n.Stop(context.Background()))
	assert.Zero(t, n.Diagnostics().PendingDeliveries)

	t.Log("✅ 停止结束在途投递测试通过")
}

// ============================================================================
//                              选项与预设
// ============================================================================

func TestOptions_Invalid(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"保留 ID", WithLocalID(NullID)},
		{"空系统名", WithName("")},
		{"端口越界", WithUDPPort(70000)},
		{"空预设", WithPreset(nil)},
		{"空配置", WithConfig(nil)},
		{"非正公告周期", WithAnnounceInterval(0)},
		{"空消息类型", WithMessageKind("", 1)},
		{"静态系统用保留 ID", WithKnownPeer(config.KnownPeer{ID: BroadcastID})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(context.Background(), tc.opt)
			assert.Error(t, err)
		})
	}
	t.Log("✅ 无效选项测试通过")
}

func TestOptions_Overrides(t *testing.T) {
	n := newLoopbackNode(t, 0x4002,
		WithKind(types.KindVehicle),
		WithTransportPreference("tcp", "udp"),
		WithAnnounceInterval(3*time.Second),
		WithService("imc+udp://10.0.0.1:6001/"),
	)
	cfg := n.Config()
	assert.Equal(t, PeerID(0x4002), n.ID())
	assert.Equal(t, types.KindVehicle, cfg.Identity.Kind)
	assert.Equal(t, []string{"tcp", "udp"}, cfg.Transport.Preference)
	assert.Equal(t, 3*time.Second, cfg.Announce.MulticastInterval.Duration())
	assert.Contains(t, cfg.Announce.ExtraServices, "imc+udp://10.0.0.1:6001/")
	assert.Zero(t, cfg.Transport.UDPPort)
	assert.False(t, cfg.Transport.EnableMulticast)

	t.Log("✅ 选项覆盖测试通过")
}

func TestOptions_ConfigFile(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Identity.LocalID = 0x4010
	cfg.Identity.Name = "from-file"
	data, err := cfg.ToYAML()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	n, err := New(context.Background(), WithConfigFile(path), WithPreset(PresetLoopback))
	require.NoError(t, err)
	assert.Equal(t, PeerID(0x4010), n.ID())
	assert.Equal(t, "from-file", n.Name())

	_, err = New(context.Background(), WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	t.Log("✅ 配置文件测试通过")
}

func TestPresets(t *testing.T) {
	for _, p := range AvailablePresets() {
		cfg, err := ConfigForPreset(p.Name)
		require.NoError(t, err, p.Name)
		assert.NoError(t, cfg.Validate(), p.Name)
	}

	cfg, err := ConfigForPreset(PresetNameVehicle)
	require.NoError(t, err)
	assert.Equal(t, types.KindVehicle, cfg.Identity.Kind)

	_, err = ConfigForPreset("mobile")
	assert.ErrorIs(t, err, ErrUnknownPreset)

	t.Log("✅ 预设测试通过")
}

// ============================================================================
//                              观察接口
// ============================================================================

func TestNode_Observe(t *testing.T) {
	n := newLoopbackNode(t, 0x4001)
	startNode(t, n)

	h, err := n.RegisterEntity("Autopilot")
	require.NoError(t, err)
	assert.NotEqual(t, types.DefaultEntity, h.ID)
	_, err = n.RegisterEntity("Autopilot")
	assert.Error(t, err, "重复名称")

	reg, err := n.AddListener(func(*Message, MessageInfo) {}, NullID, KindFilter(testKind))
	require.NoError(t, err)
	n.RemoveListener(reg)
	n.RemoveListener(nil)

	require.NoError(t, n.OnPeerDiscovered(func(EvtPeerDiscovered) {}))
	require.NoError(t, n.OnIDConflict(func(EvtIDConflict) {}))
	_, active := n.IDConflict()
	assert.False(t, active)

	assert.Empty(t, n.ActivePeers(0))
	assert.NotNil(t, n.PrometheusRegistry())
	assert.NotEmpty(t, n.UID())

	d := n.Diagnostics()
	assert.Equal(t, "running", d.State)
	assert.Contains(t, d.Ports, "udp")
	assert.Contains(t, d.Ports, "tcp")
	require.NotNil(t, d.TCP)
	assert.Nil(t, d.Conflict)

	mfs, err := n.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	t.Log("✅ 观察接口测试通过")
}
