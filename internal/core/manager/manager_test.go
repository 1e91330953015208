package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/fragment"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type frameRec struct {
	host  string
	port  int
	frame []byte
	done  transport.DoneFunc
}

// fakeUnicast 记录发送的单播传输
//
// async 为 true 时不调用 done，由测试直接调用记录下的 done。
type fakeUnicast struct {
	kind     types.TransportKind
	port     int
	failBind bool
	async    bool
	// subscribed 在 Subscribe 返回前调用，模拟订阅瞬间到达的帧
	subscribed func()

	transport.Handlers

	mu     sync.Mutex
	bound  bool
	refuse bool
	closed bool
	frames []frameRec
}

func (u *fakeUnicast) Kind() types.TransportKind { return u.kind }

func (u *fakeUnicast) Start(context.Context) error {
	if u.failBind {
		return errors.New("address in use")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bound = true
	return nil
}

func (u *fakeUnicast) Port() int { return u.port }

func (u *fakeUnicast) Bound() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bound
}

func (u *fakeUnicast) Subscribe(h transport.Handler) func() {
	remove := u.Add(h)
	if u.subscribed != nil {
		u.subscribed()
	}
	return remove
}

func (u *fakeUnicast) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.bound = false
	return nil
}

func (u *fakeUnicast) Send(host string, port int, frame []byte, done transport.DoneFunc) bool {
	u.mu.Lock()
	if u.refuse || !u.bound {
		u.mu.Unlock()
		return false
	}
	u.frames = append(u.frames, frameRec{host: host, port: port, frame: frame, done: done})
	async := u.async
	u.mu.Unlock()

	if !async && done != nil {
		done(types.OutcomeSuccess, nil)
	}
	return true
}

func (u *fakeUnicast) sent() []frameRec {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]frameRec(nil), u.frames...)
}

func (u *fakeUnicast) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

func (u *fakeUnicast) setRefuse(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refuse = v
}

// fakeGroup 记录组播与广播
type fakeGroup struct {
	ports []int

	transport.Handlers

	mu         sync.Mutex
	bound      bool
	multicasts [][]byte
	broadcasts [][]byte
	direct     []frameRec
}

func (g *fakeGroup) Kind() types.TransportKind { return types.TransportMulticast }

func (g *fakeGroup) Start(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bound = true
	return nil
}

func (g *fakeGroup) Port() int { return g.ports[0] }

func (g *fakeGroup) Bound() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bound
}

func (g *fakeGroup) Subscribe(h transport.Handler) func() { return g.Add(h) }

func (g *fakeGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bound = false
	return nil
}

func (g *fakeGroup) SendMulticast(frame []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.multicasts = append(g.multicasts, frame)
	return true
}

func (g *fakeGroup) SendBroadcast(frame []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, frame)
	return true
}

func (g *fakeGroup) SendTo(host string, port int, frame []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.direct = append(g.direct, frameRec{host: host, port: port, frame: frame})
	return true
}

func (g *fakeGroup) Ports() []int           { return g.ports }
func (g *fakeGroup) MulticastEnabled() bool { return true }
func (g *fakeGroup) BroadcastEnabled() bool { return true }

func (g *fakeGroup) counts() (multicast, broadcast, direct int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.multicasts), len(g.broadcasts), len(g.direct)
}

type fixture struct {
	cfg     *config.Config
	codec   *wire.Codec
	reg     *registry.Registry
	router  *router.Router
	tracker *delivery.Tracker
	clk     *clock.Mock
	udp     *fakeUnicast
	tcp     *fakeUnicast
	group   *fakeGroup
	m       *Manager
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	f := &fixture{
		cfg:   config.NewConfig(),
		codec: wire.NewCodec(wire.NewCatalog()),
		clk:   clock.NewMock(),
		udp:   &fakeUnicast{kind: types.TransportUDP, port: 6001},
		tcp:   &fakeUnicast{kind: types.TransportTCP, port: 6001, async: true},
		group: &fakeGroup{ports: []int{30100, 30101}},
	}
	f.clk.Set(time.Unix(1700000000, 0))
	if mutate != nil {
		mutate(f.cfg)
	}

	bus := eventbus.NewBus()
	f.reg = registry.New(registry.Options{}, f.clk)
	local := announce.NewLocal(f.cfg.Identity, nil)
	h, err := announce.NewHandler(f.cfg, local, f.reg, nil, bus, f.clk)
	require.NoError(t, err)

	f.router, err = router.New(router.Deps{
		Config: f.cfg, Registry: f.reg, Codec: f.codec, Announce: h, Bus: bus, Clock: f.clk,
	})
	require.NoError(t, err)
	f.tracker = delivery.NewTracker(f.clk)

	f.m, err = New(Deps{
		Config:   f.cfg,
		Codec:    f.codec,
		Registry: f.reg,
		Router:   f.router,
		Announce: h,
		Local:    local,
		Tracker:  f.tracker,
		Entities: entity.NewRegistry(),
		Bus:      bus,
		Clock:    f.clk,
		Unicast:  []transport.Unicast{f.udp, f.tcp},
		Group:    f.group,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		f.m.Stop()
		f.router.Close()
		h.Close()
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.m.Start(context.Background()))
}

func (f *fixture) peer(t *testing.T, id types.PeerID, fields registry.Fields) {
	t.Helper()
	_, _, err := f.reg.Upsert(id, fields)
	require.NoError(t, err)
}

func udpPeer(host string, port int) registry.Fields {
	return registry.Fields{
		UDPHost: registry.Ptr(host), UDPPort: registry.Ptr(port), UDPActive: registry.Ptr(true),
	}
}

func dualPeer(host string, port int) registry.Fields {
	f := udpPeer(host, port)
	f.TCPHost, f.TCPPort, f.TCPActive = registry.Ptr(host), registry.Ptr(port), registry.Ptr(true)
	return f
}

func tcpPeer(host string, port int) registry.Fields {
	return registry.Fields{
		TCPHost: registry.Ptr(host), TCPPort: registry.Ptr(port), TCPActive: registry.Ptr(true),
		UDPActive: registry.Ptr(false),
	}
}

type results struct {
	mu  sync.Mutex
	all []delivery.Result
}

func (r *results) listen(res delivery.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, res)
}

func (r *results) list() []delivery.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Result(nil), r.all...)
}

func heartbeat() *types.Message {
	return types.NewMessage(wire.KindHeartbeat, nil)
}

// ============================================================================
//                              生命周期
// ============================================================================

// TestStart 测试启动与停止
func TestStart(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.m.Running())

	f.start(t)
	assert.True(t, f.m.Running())
	assert.Equal(t, map[types.TransportKind]int{
		types.TransportUDP:       6001,
		types.TransportTCP:       6001,
		types.TransportMulticast: 30100,
	}, f.m.TransportPorts())

	// 启动时立即发出一次组播公告
	require.Eventually(t, func() bool {
		mc, _, _ := f.group.counts()
		return mc == 1
	}, time.Second, 5*time.Millisecond)

	// 重复启动无副作用
	require.NoError(t, f.m.Start(context.Background()))

	require.NoError(t, f.m.Stop())
	assert.False(t, f.m.Running())
	assert.True(t, f.udp.isClosed())
	assert.True(t, f.tcp.isClosed())

	t.Log("✅ Start/Stop 测试通过")
}

// TestStart_BindFailure 单个传输绑定失败不影响启动
func TestStart_BindFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.udp.failBind = true
	f.start(t)

	f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
	f.m.Send(heartbeat(), 0x4D15)
	assert.Empty(t, f.udp.sent())
	assert.Len(t, f.tcp.sent(), 1, "未绑定的 UDP 不在候选中")

	t.Log("✅ 绑定失败测试通过")
}

// TestStart_NothingBound 全部传输失败时启动报错
func TestStart_NothingBound(t *testing.T) {
	f := newFixture(t, nil)
	f.m.all = []transport.Transport{f.udp}
	f.udp.failBind = true

	err := f.m.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoTransport)
	assert.False(t, f.m.Running())
}

// TestInbound 入站帧经路由器进入系统通道
func TestInbound(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))

	got := make(chan *types.Message, 1)
	reg, err := f.m.AddListener(func(msg *types.Message, _ types.MessageInfo) { got <- msg }, 0x4D15, nil)
	require.NoError(t, err)

	msg := heartbeat()
	msg.Header.Src = 0x4D15
	f.udp.Dispatch(msg, types.MessageInfo{SrcIP: "10.0.0.5", SrcPort: 6002, Transport: types.TransportUDP})

	select {
	case m := <-got:
		assert.Equal(t, types.PeerID(0x4D15), m.Header.Src)
	case <-time.After(2 * time.Second):
		t.Fatal("监听器未收到消息")
	}

	f.m.RemoveListener(reg)
	f.m.RemoveListener(nil)
}

// ============================================================================
//                              发送路径
// ============================================================================

// TestSend_Scenario 单播 UDP 得到 success，组播得到 uncertain
func TestSend_Scenario(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.10.1", 6002))

	var r results
	require.True(t, f.m.SendWithListener(heartbeat(), 0x4D15, r.listen))

	require.Len(t, r.list(), 1)
	res := r.list()[0]
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	assert.Equal(t, types.TransportUDP, res.Transport)
	assert.NoError(t, res.Err)

	frames := f.udp.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "10.0.10.1", frames[0].host)
	assert.Equal(t, 6002, frames[0].port)

	decoded, err := f.codec.Decode(frames[0].frame)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Identity.LocalID, decoded.Header.Src)
	assert.Equal(t, types.PeerID(0x4D15), decoded.Header.Dst)
	assert.Equal(t, f.clk.Now().Unix(), decoded.Time().Unix())

	require.True(t, f.m.SendWithListener(heartbeat(), 0x4D15, r.listen, WithMulticast()))
	require.Len(t, r.list(), 2)
	assert.Equal(t, types.OutcomeUncertain, r.list()[1].Outcome)
	assert.Equal(t, types.TransportMulticast, r.list()[1].Transport)
	assert.Len(t, f.udp.sent(), 1, "组播不走单播")

	ch := f.router.Channel(0x4D15).Counters
	assert.Equal(t, uint64(1), ch.ToSend.Total())
	assert.Equal(t, uint64(1), ch.Sent.Total())

	t.Log("✅ 0x4D15 场景测试通过")
}

// TestSend_Stamping 调用方的消息不被修改，目标只在未设置时填写
func TestSend_Stamping(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.10.1", 6002))

	h, err := f.m.RegisterEntity("Autonomy")
	require.NoError(t, err)

	msg := heartbeat()
	msg.Header.Src = 0x1234
	msg.Header.Dst = 0x2222
	require.True(t, f.m.Send(msg, 0x4D15, FromEntity(h)))

	assert.Equal(t, types.PeerID(0x1234), msg.Header.Src)

	decoded, err := f.codec.Decode(f.udp.sent()[0].frame)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Identity.LocalID, decoded.Header.Src)
	assert.Equal(t, types.PeerID(0x2222), decoded.Header.Dst)
	assert.Equal(t, h.ID, decoded.Header.SrcEntity)

	// 已设置的源实体不覆盖
	msg = heartbeat()
	msg.Header.SrcEntity = 7
	require.True(t, f.m.Send(msg, 0x4D15, FromEntity(h)))
	decoded, err = f.codec.Decode(f.udp.sent()[1].frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), decoded.Header.SrcEntity)
}

// TestSend_TCPOnly 只公布 TCP 的系统从不尝试 UDP
func TestSend_TCPOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D20, tcpPeer("10.0.0.9", 6003))

	fut := f.m.SendReliably(heartbeat(), 0x4D20)
	assert.Empty(t, f.udp.sent())
	frames := f.tcp.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "10.0.0.9", frames[0].host)

	frames[0].done(types.OutcomeSuccess, nil)
	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	assert.Equal(t, types.TransportTCP, res.Transport)

	// 迟到的结果被忽略
	frames[0].done(types.OutcomeError, errors.New("late"))
	assert.Equal(t, types.OutcomeSuccess, fut.Pending().Outcome())

	t.Log("✅ 仅 TCP 测试通过")
}

// TestSend_Timeout TCP 在截止时间前没有结果
func TestSend_Timeout(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D20, tcpPeer("10.0.0.9", 6003))

	fut := f.m.SendReliably(heartbeat(), 0x4D20)
	f.clk.Add(f.cfg.Delivery.ReliableTimeout.Duration())

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTimeout, res.Outcome)

	var r results
	f.m.SendWithListener(heartbeat(), 0x4D20, r.listen, WithTimeout(time.Second))
	f.clk.Add(time.Second)
	require.Eventually(t, func() bool { return len(r.list()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.OutcomeTimeout, r.list()[0].Outcome)
}

// TestSend_Preference 偏好顺序与显式传输
func TestSend_Preference(t *testing.T) {
	t.Run("默认 UDP 优先", func(t *testing.T) {
		f := newFixture(t, nil)
		f.start(t)
		f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
		f.m.Send(heartbeat(), 0x4D15)
		assert.Len(t, f.udp.sent(), 1)
		assert.Empty(t, f.tcp.sent())
	})

	t.Run("配置 TCP 优先", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.Transport = cfg.Transport.WithPreference("tcp", "udp")
		})
		f.start(t)
		f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
		f.m.Send(heartbeat(), 0x4D15)
		assert.Empty(t, f.udp.sent())
		assert.Len(t, f.tcp.sent(), 1)
	})

	t.Run("显式 TCP", func(t *testing.T) {
		f := newFixture(t, nil)
		f.start(t)
		f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
		f.m.Send(heartbeat(), 0x4D15, Via(types.TransportTCP))
		assert.Empty(t, f.udp.sent())
		assert.Len(t, f.tcp.sent(), 1)
	})

	t.Run("显式 TCP 但对方只有 UDP", func(t *testing.T) {
		f := newFixture(t, nil)
		f.start(t)
		f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))
		f.m.Send(heartbeat(), 0x4D15, Via(types.TransportTCP))
		assert.Len(t, f.udp.sent(), 1)
		assert.Empty(t, f.tcp.sent())
	})

	t.Run("UDP 拒绝后换 TCP", func(t *testing.T) {
		f := newFixture(t, nil)
		f.start(t)
		f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
		f.udp.setRefuse(true)

		var r results
		require.True(t, f.m.SendWithListener(heartbeat(), 0x4D15, r.listen))
		require.Len(t, f.tcp.sent(), 1)
		f.tcp.sent()[0].done(types.OutcomeSuccess, nil)
		require.Len(t, r.list(), 1)
		assert.Equal(t, types.TransportTCP, r.list()[0].Transport)
	})

	t.Run("全部拒绝", func(t *testing.T) {
		f := newFixture(t, nil)
		f.start(t)
		f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))
		f.udp.setRefuse(true)

		var r results
		assert.False(t, f.m.SendWithListener(heartbeat(), 0x4D15, r.listen))
		require.Len(t, r.list(), 1)
		assert.Equal(t, types.OutcomeError, r.list()[0].Outcome)
		assert.ErrorIs(t, r.list()[0].Err, ErrSendFailed)
	})
}

// TestSend_Failures 同步失败
func TestSend_Failures(t *testing.T) {
	cases := []struct {
		name    string
		running bool
		dst     types.PeerID
		fields  *registry.Fields
		outcome types.Outcome
		err     error
	}{
		{name: "未启动", running: false, dst: 0x4D15, fields: ptrFields(udpPeer("10.0.0.5", 6002)), outcome: types.OutcomeError, err: ErrNotRunning},
		{name: "空目标", running: true, dst: types.NullID, outcome: types.OutcomeError, err: ErrNoDestination},
		{name: "未知系统", running: true, dst: 0x4D99, outcome: types.OutcomeUnreachable, err: ErrUnknownPeer},
		{name: "无地址", running: true, dst: 0x4D15, fields: &registry.Fields{Name: registry.Ptr("mute")}, outcome: types.OutcomeUnreachable, err: ErrNoTransport},
		{name: "授权关闭", running: true, dst: 0x4D15, fields: withAuthority(udpPeer("10.0.0.5", 6002), types.AuthorityOff), outcome: types.OutcomeError, err: ErrAuthorityOff},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tc.running {
				f.start(t)
			}
			if tc.fields != nil {
				f.peer(t, tc.dst, *tc.fields)
			}

			var r results
			assert.False(t, f.m.SendWithListener(heartbeat(), tc.dst, r.listen))
			require.Len(t, r.list(), 1)
			assert.Equal(t, tc.outcome, r.list()[0].Outcome)
			assert.ErrorIs(t, r.list()[0].Err, tc.err)
			assert.Empty(t, f.udp.sent(), "同步失败不做 I/O")
			assert.Empty(t, f.tcp.sent())
			assert.Equal(t, 0, f.tracker.Len())
		})
	}
}

func ptrFields(f registry.Fields) *registry.Fields { return &f }

func withAuthority(f registry.Fields, a types.Authority) *registry.Fields {
	f.Authority = registry.Ptr(a)
	return &f
}

// TestSend_StaticPeer 静态配置的系统按需建立记录
func TestSend_StaticPeer(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.KnownPeers = []config.KnownPeer{
			{ID: 0x4D16, Name: "lauv-noptilus-1", Kind: types.KindVehicle, Host: "10.0.10.2", UDPPort: 6002},
		}
	})
	f.start(t)

	require.True(t, f.m.Send(heartbeat(), 0x4D16))
	rec, ok := f.m.LookupPeer(0x4D16)
	require.True(t, ok)
	assert.Equal(t, "lauv-noptilus-1", rec.Name)
	assert.True(t, rec.Static)

	frames := f.udp.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "10.0.10.2", frames[0].host)
}

// TestSend_Fragments 超过数据报上限的消息拆片发送，可被重组
func TestSend_Fragments(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Transport.MaxDatagramSize = 128
	})
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	var r results
	require.True(t, f.m.SendWithListener(types.NewMessage(wire.KindHeartbeat, payload), 0x4D15, r.listen))
	require.Len(t, r.list(), 1)
	assert.Equal(t, types.OutcomeSuccess, r.list()[0].Outcome)

	frames := f.udp.sent()
	require.Greater(t, len(frames), 1)

	reasm := fragment.New(fragment.Config{}, f.codec.Decode)
	var whole *types.Message
	for _, fr := range frames {
		assert.LessOrEqual(t, len(fr.frame), 128)
		pm, err := f.codec.Decode(fr.frame)
		require.NoError(t, err)
		require.Equal(t, wire.KindMessagePart, pm.Kind)
		part, err := wire.UnmarshalMessagePart(pm.Payload)
		require.NoError(t, err)
		if out, err := reasm.Offer(pm.Header.Src, part); err == nil && out != nil {
			whole = out
		}
	}
	require.NotNil(t, whole)
	assert.Equal(t, payload, whole.Payload)
	assert.Equal(t, types.PeerID(0x4D15), whole.Header.Dst)

	t.Log("✅ 分片发送测试通过")
}

// TestSend_Only 指定传输失败时不改走其他传输
func TestSend_Only(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
	f.udp.setRefuse(true)

	var got results
	assert.False(t, f.m.SendWithListener(heartbeat(), 0x4D15, got.listen, Only(types.TransportUDP)))
	assert.Empty(t, f.tcp.sent(), "UDP 被拒后不改走 TCP")
	require.Len(t, got.list(), 1)
	assert.NotEqual(t, types.OutcomeSuccess, got.list()[0].Outcome)

	// Via 只调整顺序，仍会回退
	assert.True(t, f.m.Send(heartbeat(), 0x4D15, Via(types.TransportUDP)))
	assert.Len(t, f.tcp.sent(), 1)

	// 对端没有该传输时不可达
	f.peer(t, 0x4D20, tcpPeer("10.0.0.9", 6003))
	assert.False(t, f.m.SendOnly(heartbeat(), 0x4D20, types.TransportUDP))
	assert.Len(t, f.tcp.sent(), 1)

	t.Log("✅ 独占传输测试通过")
}

// TestSendBlocking 测试阻塞发送
func TestSendBlocking(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))
	f.peer(t, 0x4D20, tcpPeer("10.0.0.9", 6003))

	res, err := f.m.SendBlocking(context.Background(), heartbeat(), 0x4D15)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = f.m.SendBlocking(ctx, heartbeat(), 0x4D20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Equal(t, 0, f.tracker.Len(), "放弃的投递被注销")

	// 调用方截止时间到期，结果为 timeout
	dctx, dcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer dcancel()
	res, err = f.m.SendBlocking(dctx, heartbeat(), 0x4D20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.OutcomeTimeout, res.Outcome)
	assert.Equal(t, types.TransportTCP, res.Transport)
	assert.Equal(t, 0, f.tracker.Len())
}

// TestStop_FailsPending 停止时在途投递以 error 结束
func TestStop_FailsPending(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D20, tcpPeer("10.0.0.9", 6003))

	fut := f.m.SendReliably(heartbeat(), 0x4D20)
	require.NoError(t, f.m.Stop())

	res, err := fut.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeError, res.Outcome)
}

// TestBroadcastToConsoles 只发给控制台
func TestBroadcastToConsoles(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	console := udpPeer("10.0.0.2", 6001)
	console.Kind = registry.Ptr(types.KindConsole)
	f.peer(t, 0x4002, console)
	console.UDPHost = registry.Ptr("10.0.0.3")
	f.peer(t, 0x4003, console)
	f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))

	assert.Equal(t, 2, f.m.BroadcastToConsoles(heartbeat()))

	var dsts []types.PeerID
	for _, fr := range f.udp.sent() {
		m, err := f.codec.Decode(fr.frame)
		require.NoError(t, err)
		dsts = append(dsts, m.Header.Dst)
	}
	assert.ElementsMatch(t, []types.PeerID{0x4002, 0x4003}, dsts)
}

// ============================================================================
//                              实体与发现
// ============================================================================

// TestEntityQuery 收到实体列表查询时回复本机实体
func TestEntityQuery(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.peer(t, 0x4D15, udpPeer("10.0.0.5", 6002))

	_, err := f.m.RegisterEntity("Daemon")
	require.NoError(t, err)
	_, err = f.m.RegisterEntity("Navigation")
	require.NoError(t, err)

	query := announce.EntityQuery()
	query.Header.Src = 0x4D15
	f.router.Route(query, types.MessageInfo{SrcIP: "10.0.0.5", SrcPort: 6002, Transport: types.TransportUDP})

	frames := f.udp.sent()
	require.Len(t, frames, 1)
	m, err := f.codec.Decode(frames[0].frame)
	require.NoError(t, err)
	require.Equal(t, wire.KindEntityList, m.Kind)

	el, err := wire.UnmarshalEntityList(m.Payload)
	require.NoError(t, err)
	assert.Equal(t, wire.EntityListReport, el.Op)
	assert.Equal(t, map[string]uint8{"Daemon": 1, "Navigation": 2}, el.List)

	t.Log("✅ 实体查询应答测试通过")
}

// TestDiscovery 新系统的 Announce 触发实体查询
func TestDiscovery(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	ann := &wire.Announce{
		SysName:  "lauv-xplore-1",
		SysType:  "UUV",
		Services: announce.ServiceURI(announce.SchemeUDP, "10.0.10.1", 6002),
	}
	msg := types.NewMessage(wire.KindAnnounce, ann.Marshal())
	msg.Header.Src = 0x4D15
	msg.Header.Dst = types.AnnounceID
	f.router.Route(msg, types.MessageInfo{SrcIP: "10.0.10.1", SrcPort: 30100, Transport: types.TransportMulticast})

	rec, ok := f.m.LookupPeer(0x4D15)
	require.True(t, ok)
	assert.Equal(t, "lauv-xplore-1", rec.Name)
	assert.Len(t, f.m.Peers(), 1)

	frames := f.udp.sent()
	require.Len(t, frames, 1)
	q, err := f.codec.Decode(frames[0].frame)
	require.NoError(t, err)
	assert.Equal(t, wire.KindEntityList, q.Kind)
	assert.Equal(t, "10.0.10.1", frames[0].host)
}

// TestDiscovery_DuringStart 订阅传输时到达的 Announce 同样触发实体查询
func TestDiscovery_DuringStart(t *testing.T) {
	f := newFixture(t, nil)

	ann := &wire.Announce{
		SysName:  "lauv-noptilus-1",
		SysType:  "UUV",
		Services: announce.ServiceURI(announce.SchemeUDP, "10.0.10.2", 6002),
	}
	msg := types.NewMessage(wire.KindAnnounce, ann.Marshal())
	msg.Header.Src = 0x4D16
	msg.Header.Dst = types.AnnounceID

	var routed bool
	f.udp.subscribed = func() {
		assert.True(t, f.m.Running(), "订阅时已处于运行状态")
		routed = f.router.Route(msg, types.MessageInfo{SrcIP: "10.0.10.2", SrcPort: 30100, Transport: types.TransportMulticast})
	}
	f.start(t)
	require.True(t, routed)

	frames := f.udp.sent()
	require.Len(t, frames, 1)
	q, err := f.codec.Decode(frames[0].frame)
	require.NoError(t, err)
	assert.Equal(t, wire.KindEntityList, q.Kind)
	assert.Equal(t, "10.0.10.2", frames[0].host)

	t.Log("✅ 启动期间发现测试通过")
}

// TestOutbox 周期任务的发送出口
func TestOutbox(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	require.True(t, f.m.AnnounceTo("10.0.0.7", f.m.local.Message()))
	_, _, direct := f.group.counts()
	assert.Equal(t, 2, direct, "每个组播端口一份")

	require.True(t, f.m.Broadcast(f.m.local.Message()))
	_, bc, _ := f.group.counts()
	assert.Equal(t, 1, bc)

	f.group.mu.Lock()
	frame := f.group.broadcasts[0]
	f.group.mu.Unlock()
	m, err := f.codec.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, types.AnnounceID, m.Header.Dst)
	assert.Equal(t, f.cfg.Identity.LocalID, m.Header.Src)

	f.peer(t, 0x4D15, dualPeer("10.0.0.5", 6002))
	require.True(t, f.m.SendVia(heartbeat(), 0x4D15, types.TransportTCP))
	assert.Len(t, f.tcp.sent(), 1)

	f.m.StopBroadcasting()
	require.NoError(t, f.m.Stop())
	assert.False(t, f.m.AnnounceTo("10.0.0.7", f.m.local.Message()))
}

// TestLocalServices 公告中的服务来自已绑定的传输
func TestLocalServices(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.m.RegisterService("dune://0.0.0.0/version/2024.01/")

	services := f.m.local.Services()
	assert.Contains(t, services, "dune://0.0.0.0/version/2024.01/")
	assert.NotEmpty(t, announce.Endpoints(services, announce.SchemeUDP))
	assert.NotEmpty(t, announce.Endpoints(services, announce.SchemeTCP))
	assert.Equal(t, f.m.UID(), announce.UIDFromServices(services))
}

// TestSubscribeUnrouted 未知来源的消息进入总线
func TestSubscribeUnrouted(t *testing.T) {
	f := newFixture(t, nil)
	sub, err := f.m.SubscribeUnrouted()
	require.NoError(t, err)
	defer sub.Close()

	msg := heartbeat()
	msg.Header.Src = 0x7777
	f.router.Route(msg, types.MessageInfo{SrcIP: "10.9.9.9", SrcPort: 1})

	select {
	case evt := <-sub.Out():
		assert.Equal(t, types.PeerID(0x7777), evt.(types.EvtUnroutedMessage).Message.Header.Src)
	case <-time.After(time.Second):
		t.Fatal("未收到未路由消息")
	}

	_, conflict := f.m.IDConflict()
	assert.False(t, conflict)
}
