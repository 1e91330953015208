package manager

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/transport/multicast"
	"github.com/dep2p/go-imcmsg/internal/core/transport/tcp"
	"github.com/dep2p/go-imcmsg/internal/core/transport/udp"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/manager")

// Group 组播/广播出口
type Group interface {
	transport.Transport

	SendMulticast(frame []byte) bool
	SendBroadcast(frame []byte) bool
	SendTo(host string, port int, frame []byte) bool
	Ports() []int
	MulticastEnabled() bool
	BroadcastEnabled() bool
}

var _ Group = (*multicast.Transport)(nil)

// Deps 管理器依赖
type Deps struct {
	Config   *config.Config
	Codec    *wire.Codec
	Registry *registry.Registry
	Router   *router.Router
	Announce *announce.Handler
	Local    *announce.Local
	Tracker  *delivery.Tracker
	Entities *entity.Registry

	// Global 全局待发/已发计数器，可为空
	Global *metrics.Counters
	// Prometheus 非空且启用导出时注册采集器
	Prometheus *prometheus.Registry

	Bus   *eventbus.Bus
	Clock clock.Clock

	// Unicast 与 Group 为空时按配置创建
	Unicast []transport.Unicast
	Group   Group
}

// Manager 消息管理器
type Manager struct {
	cfg   *config.Config
	codec *wire.Codec
	clk   clock.Clock

	reg      *registry.Registry
	router   *router.Router
	ann      *announce.Handler
	local    *announce.Local
	tracker  *delivery.Tracker
	entities *entity.Registry
	bus      *eventbus.Bus

	global    *metrics.Counters
	collector *metrics.Collector

	unicast map[types.TransportKind]transport.Unicast
	group   Group
	all     []transport.Transport

	broadcaster *announce.Broadcaster

	fragGroup atomic.Uint32

	mu      sync.Mutex
	running atomic.Bool
	unsubs  []func()
}

// New 创建管理器，Start 之前不占用任何端口
func New(d Deps) (*Manager, error) {
	if d.Config == nil || d.Codec == nil || d.Registry == nil || d.Router == nil ||
		d.Announce == nil || d.Local == nil || d.Tracker == nil {
		return nil, fmt.Errorf("manager: missing dependency")
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	ents := d.Entities
	if ents == nil {
		ents = entity.NewRegistry()
	}
	global := d.Global
	if global == nil {
		global = metrics.NewCounters(d.Config.Metrics.DecayWindow.Duration(), clk)
	}

	m := &Manager{
		cfg:      d.Config,
		codec:    d.Codec,
		clk:      clk,
		reg:      d.Registry,
		router:   d.Router,
		ann:      d.Announce,
		local:    d.Local,
		tracker:  d.Tracker,
		entities: ents,
		bus:      d.Bus,
		global:   global,
		unicast:  make(map[types.TransportKind]transport.Unicast),
	}
	// 重启后的分组号不与对端仍缓存的旧分组重合
	m.fragGroup.Store(rand.Uint32())

	unicast := d.Unicast
	if unicast == nil {
		unicast = m.defaultUnicast()
	}
	for _, u := range unicast {
		m.unicast[u.Kind()] = u
		m.all = append(m.all, u)
	}

	m.group = d.Group
	if m.group == nil && (d.Config.Transport.EnableMulticast || d.Config.Transport.EnableBroadcast) {
		tc := d.Config.Transport
		m.group = multicast.New(multicast.Config{
			Group:           tc.MulticastAddress,
			Ports:           tc.MulticastPorts,
			EnableMulticast: tc.EnableMulticast,
			EnableBroadcast: tc.EnableBroadcast,
		}, d.Codec)
	}
	if m.group != nil {
		m.all = append(m.all, m.group)
	}

	m.collector = metrics.NewCollector(d.Router, global)
	if d.Prometheus != nil && d.Config.Metrics.EnablePrometheus {
		if err := d.Prometheus.Register(m.collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	m.hookDrops()

	m.broadcaster = announce.NewBroadcaster(d.Config.Announce, d.Local, d.Registry, m, clk)
	return m, nil
}

func (m *Manager) defaultUnicast() []transport.Unicast {
	tc := m.cfg.Transport
	var out []transport.Unicast
	if tc.EnableUDP {
		out = append(out, udp.New(udp.Config{Port: tc.UDPPort, Retries: tc.BindRetries}, m.codec))
	}
	if tc.EnableTCP {
		out = append(out, tcp.New(tcp.Config{
			Port:        tc.TCPPort,
			Retries:     tc.BindRetries,
			DialTimeout: tc.TCP.DialTimeout.Duration(),
			IdleTimeout: tc.TCP.IdleTimeout.Duration(),
			WriteQueue:  tc.TCP.WriteQueue,
		}, m.codec, m.clk))
	}
	return out
}

// Start 绑定传输并启动周期任务
//
// 单个传输绑定失败只记录日志；没有任何传输绑定成功时返回错误。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return nil
	}

	// 入站处理依赖的回调须在订阅传输之前就位
	m.local.SetTransportServices(m.transportServices)
	m.router.OnEntityQuery(m.answerEntityQuery)
	m.router.OnDrop(m.collector.ObserveDrop)
	m.ann.SetQuerier(func(dst types.PeerID) {
		m.Send(announce.EntityQuery(), dst)
	})
	m.tracker.SetObserver(func(r delivery.Result) {
		m.collector.ObserveOutcome(r.Outcome.String(), r.Transport.String())
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range m.all {
		t := t
		g.Go(func() error {
			if err := t.Start(gctx); err != nil {
				log.Warn("传输启动失败", "transport", t.Kind().String(), "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var bound []transport.Transport
	for _, t := range m.all {
		if t.Bound() {
			bound = append(bound, t)
		}
	}
	if len(bound) == 0 {
		return ErrNoTransport
	}

	m.running.Store(true)
	for _, t := range bound {
		m.unsubs = append(m.unsubs, t.Subscribe(m.router.Inbound))
		log.Info("传输已绑定", "transport", t.Kind().String(), "port", t.Port())
	}
	m.broadcaster.StartBroadcasting(0)

	log.Info("消息管理器已启动", "id", m.local.ID().String(), "uid", m.local.UID())
	return nil
}

// hookDrops 将具体传输的解码丢弃计入采集器
func (m *Manager) hookDrops() {
	for _, t := range m.all {
		switch v := t.(type) {
		case *udp.Transport:
			v.OnDrop = m.collector.ObserveDrop
		case *tcp.Transport:
			v.OnDrop = m.collector.ObserveDrop
		case *multicast.Transport:
			v.OnDrop = m.collector.ObserveDrop
		}
	}
}

// Stop 停止周期任务并关闭全部传输
//
// 仍在途的发送以 Error 结束。
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return nil
	}
	m.running.Store(false)
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	m.broadcaster.StopBroadcasting()
	for _, u := range unsubs {
		u()
	}

	var err error
	for _, t := range m.all {
		err = multierr.Append(err, t.Close())
	}
	m.tracker.Close()

	log.Info("消息管理器已停止", "id", m.local.ID().String())
	return err
}

// Running 是否已启动
func (m *Manager) Running() bool {
	return m.running.Load()
}

// StartBroadcasting 重启周期任务，interval 大于 0 时覆盖组播公告周期
func (m *Manager) StartBroadcasting(interval time.Duration) {
	m.broadcaster.StartBroadcasting(interval)
}

// StopBroadcasting 停止周期任务，收发不受影响
func (m *Manager) StopBroadcasting() {
	m.broadcaster.StopBroadcasting()
}

// transportServices 当前绑定端口对应的服务 URI
func (m *Manager) transportServices() []string {
	udpPort, tcpPort := 0, 0
	if u, ok := m.unicast[types.TransportUDP]; ok && u.Bound() {
		udpPort = u.Port()
	}
	if t, ok := m.unicast[types.TransportTCP]; ok && t.Bound() {
		tcpPort = t.Port()
	}
	return announce.TransportServices(transport.LocalIPv4(), udpPort, tcpPort)
}

// answerEntityQuery 回复本机实体列表
func (m *Manager) answerEntityQuery(src types.PeerID) {
	list := &wire.EntityList{Op: wire.EntityListReport, List: m.entities.List()}
	m.Send(types.NewMessage(wire.KindEntityList, list.Marshal()), src)
}

// ============================================================================
//                              查询
// ============================================================================

// LocalID 本机标识
func (m *Manager) LocalID() types.PeerID { return m.local.ID() }

// UID 本进程实例 UID
func (m *Manager) UID() string { return m.local.UID() }

// LookupPeer 查找系统记录
func (m *Manager) LookupPeer(id types.PeerID) (registry.Record, bool) {
	return m.reg.Lookup(id)
}

// Peers 全部已知系统
func (m *Manager) Peers() []registry.Record {
	return m.reg.Peers(nil)
}

// IDConflict 当前 ID 冲突状态
func (m *Manager) IDConflict() (registry.Conflict, bool) {
	return m.reg.Conflict()
}

// RegisterEntity 注册本机实体
func (m *Manager) RegisterEntity(name string) (entity.Handle, error) {
	return m.entities.Register(name)
}

// RegisterService 追加公布的服务 URI，下一次 Announce 生效
func (m *Manager) RegisterService(uri string) {
	m.local.AddService(uri)
}

// SetLocation 设置 Announce 中公布的位置
func (m *Manager) SetLocation(loc types.Location) {
	m.local.SetLocation(loc)
}

// AddListener 监听来自 peer 的消息；peer 为 NullID 时监听全部已路由消息
func (m *Manager) AddListener(fn router.Listener, peer types.PeerID, filter router.Filter) (*router.Registration, error) {
	return m.router.AddListener(fn, peer, filter)
}

// RemoveListener 取消监听
func (m *Manager) RemoveListener(r *router.Registration) {
	if r != nil {
		r.Remove()
	}
}

// SubscribeUnrouted 订阅无法归属的入站消息
func (m *Manager) SubscribeUnrouted() (*eventbus.Subscription, error) {
	if m.bus == nil {
		return nil, fmt.Errorf("manager: no event bus")
	}
	return m.bus.Subscribe(new(types.EvtUnroutedMessage), eventbus.BufSize(m.cfg.Router.BusBuffer))
}

// TransportPorts 已绑定传输的端口
func (m *Manager) TransportPorts() map[types.TransportKind]int {
	out := make(map[types.TransportKind]int)
	for _, t := range m.all {
		if t.Bound() {
			out[t.Kind()] = t.Port()
		}
	}
	return out
}

// Collector Prometheus 采集器
func (m *Manager) Collector() *metrics.Collector { return m.collector }

// Global 全局待发/已发计数器
func (m *Manager) Global() *metrics.Counters { return m.global }

// TCPStats TCP 连接统计，未启用 TCP 时第二个返回值为 false
func (m *Manager) TCPStats() (tcp.Stats, bool) {
	t, ok := m.unicast[types.TransportTCP].(*tcp.Transport)
	if !ok {
		return tcp.Stats{}, false
	}
	return t.Stats(), true
}

// PendingDeliveries 在途投递数
func (m *Manager) PendingDeliveries() int { return m.tracker.Len() }
