package imcmsg

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// errNoBus 未装配事件总线
var errNoBus = errors.New("event bus not available")

// ════════════════════════════════════════════════════════════════════════════
//                              入站监听
// ════════════════════════════════════════════════════════════════════════════

// AddListener 监听来自 peer 的消息
//
// peer 为 NullID 时监听全部已路由消息。filter 为 nil 表示接收所有类型。
//
//	reg, _ := node.AddListener(func(msg *imcmsg.Message, info imcmsg.MessageInfo) {
//	    fmt.Println(msg.Kind, info.SrcIP)
//	}, 0x2001, imcmsg.KindFilter("EstimatedState"))
//	defer node.RemoveListener(reg)
func (n *Node) AddListener(fn Listener, peer PeerID, filter Filter) (*Registration, error) {
	return n.mgr.AddListener(fn, peer, filter)
}

// RemoveListener 取消监听，nil 安全
func (n *Node) RemoveListener(reg *Registration) {
	n.mgr.RemoveListener(reg)
}

// SubscribeUnrouted 订阅无法归属到任何系统的入站消息
//
// 通道元素为 EvtUnroutedMessage。
func (n *Node) SubscribeUnrouted() (*Subscription, error) {
	return n.mgr.SubscribeUnrouted()
}

// ════════════════════════════════════════════════════════════════════════════
//                              系统目录
// ════════════════════════════════════════════════════════════════════════════

// LookupPeer 查找系统记录快照
func (n *Node) LookupPeer(id PeerID) (PeerRecord, bool) {
	return n.mgr.LookupPeer(id)
}

// Peers 全部已知系统
func (n *Node) Peers() []PeerRecord {
	return n.mgr.Peers()
}

// ActivePeers 在 within 内收到过消息的系统；within 为 0 时取配置的非活跃阈值
func (n *Node) ActivePeers(within time.Duration) []PeerRecord {
	if within <= 0 {
		within = n.cfg.Announce.InactiveAfter.Duration()
	}
	now := n.clk.Now()
	return n.reg.Peers(func(r registry.Record) bool {
		return r.Active(now, within)
	})
}

// Consoles 已知的控制台
func (n *Node) Consoles() []PeerRecord {
	return n.reg.Peers(func(r registry.Record) bool {
		return r.Kind == types.KindConsole
	})
}

// FirstKnown 最早加入目录的系统
func (n *Node) FirstKnown() (PeerID, bool) {
	return n.reg.FirstKnown()
}

// IDConflict 本机 ID 冲突状态；第二个返回值为 true 表示冲突仍在持续
func (n *Node) IDConflict() (Conflict, bool) {
	return n.mgr.IDConflict()
}

// ════════════════════════════════════════════════════════════════════════════
//                              本机公告
// ════════════════════════════════════════════════════════════════════════════

// RegisterEntity 注册本机实体，名称不能重复
func (n *Node) RegisterEntity(name string) (EntityHandle, error) {
	return n.mgr.RegisterEntity(name)
}

// RegisterService 追加公布的服务 URI，下一次 Announce 生效
func (n *Node) RegisterService(uri string) {
	n.mgr.RegisterService(uri)
}

// SetLocation 设置 Announce 中公布的位置
func (n *Node) SetLocation(loc Location) {
	n.mgr.SetLocation(loc)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// SubscribePeers 订阅首次发现系统事件，元素为 EvtPeerDiscovered
func (n *Node) SubscribePeers() (*Subscription, error) {
	return n.subscribe(new(types.EvtPeerDiscovered))
}

// SubscribeConflicts 订阅本机 ID 冲突事件，元素为 EvtIDConflict
func (n *Node) SubscribeConflicts() (*Subscription, error) {
	return n.subscribe(new(types.EvtIDConflict))
}

func (n *Node) subscribe(evtType interface{}) (*Subscription, error) {
	if n.bus == nil {
		return nil, errNoBus
	}
	return n.bus.Subscribe(evtType, eventbus.BufSize(n.cfg.Router.BusBuffer))
}

// OnPeerDiscovered 注册发现回调
//
// 回调在独立 goroutine 中依次执行，节点停止后不再调用。
//
//	node.OnPeerDiscovered(func(evt imcmsg.EvtPeerDiscovered) {
//	    fmt.Printf("发现系统: %s (%s)\n", evt.Name, evt.ID)
//	})
func (n *Node) OnPeerDiscovered(handler func(evt EvtPeerDiscovered)) error {
	sub, err := n.SubscribePeers()
	if err != nil {
		return err
	}
	n.track(sub)
	go func() {
		for e := range sub.Out() {
			if evt, ok := e.(types.EvtPeerDiscovered); ok {
				handler(evt)
			}
		}
	}()
	return nil
}

// OnIDConflict 注册 ID 冲突回调，语义同 OnPeerDiscovered
func (n *Node) OnIDConflict(handler func(evt EvtIDConflict)) error {
	sub, err := n.SubscribeConflicts()
	if err != nil {
		return err
	}
	n.track(sub)
	go func() {
		for e := range sub.Out() {
			if evt, ok := e.(types.EvtIDConflict); ok {
				handler(evt)
			}
		}
	}()
	return nil
}

func (n *Node) track(sub *eventbus.Subscription) {
	n.subsMu.Lock()
	n.subs = append(n.subs, sub)
	n.subsMu.Unlock()
}

// closeCallbacks 关闭所有回调订阅
func (n *Node) closeCallbacks() {
	n.subsMu.Lock()
	subs := n.subs
	n.subs = nil
	n.subsMu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标
// ════════════════════════════════════════════════════════════════════════════

// PrometheusRegistry 节点独立的 Prometheus 注册表
//
//	http.Handle("/metrics", promhttp.HandlerFor(node.PrometheusRegistry(), promhttp.HandlerOpts{}))
func (n *Node) PrometheusRegistry() *prometheus.Registry {
	return n.prom
}
