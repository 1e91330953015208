package imcmsg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/manager"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
)

var log = logger.Logger("imcmsg")

// 启停超时
const (
	initializeTimeout = 30 * time.Second
	stopTimeout       = 10 * time.Second
)

// Node IMC 消息节点
//
// Node 是用户使用 imcmsg 的主入口，聚合了传输、发现、路由与投递跟踪。
//
//	node, err := imcmsg.New(ctx,
//	    imcmsg.WithPreset(imcmsg.PresetConsole),
//	    imcmsg.WithLocalID(0x4001),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	node.Send(imcmsg.NewMessage("Heartbeat", nil), 0x2001)
type Node struct {
	cfg *config.Config
	app *fx.App
	clk clock.Clock

	// 由 fx 注入
	mgr     *manager.Manager
	router  *router.Router
	reg     *registry.Registry
	catalog *wire.Catalog
	bus     *eventbus.Bus
	prom    *prometheus.Registry

	mu    sync.RWMutex
	state NodeState

	// 回调订阅，停止时关闭
	subsMu sync.Mutex
	subs   []*eventbus.Subscription
}

// New 创建节点，不绑定任何端口
func New(_ context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if o.logLevel != nil {
		logger.SetAllLevels(*o.logLevel)
	}

	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}

	clk := o.clk
	if clk == nil {
		clk = clock.New()
	}

	node := &Node{cfg: cfg, clk: clk}
	node.app = buildFxApp(o, cfg, node)
	if err := node.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	log.Debug("节点已创建", "id", cfg.Identity.LocalID.String(), "name", cfg.Identity.Name)
	return node, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 本机系统标识
func (n *Node) ID() PeerID {
	return n.mgr.LocalID()
}

// UID 本进程实例 UID，每次启动都不同
func (n *Node) UID() string {
	return n.mgr.UID()
}

// Name 本机系统名
func (n *Node) Name() string {
	return n.cfg.Identity.Name
}

// Config 生效配置的副本
func (n *Node) Config() *config.Config {
	return n.cfg.Clone()
}

// State 当前状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// TransportPorts 已绑定传输的端口
func (n *Node) TransportPorts() map[TransportKind]int {
	return n.mgr.TransportPorts()
}

// RegisterMessageKind 登记应用消息类型
//
// 应在 Start 之前调用；运行中登记的类型只影响之后收到的帧。
func (n *Node) RegisterMessageKind(name string, id uint16) error {
	return n.catalog.Register(name, id)
}
