package router

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/fragment"
	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/core/workerpool"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/router")

// Deps 路由器依赖
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry
	Codec    *wire.Codec
	Announce *announce.Handler
	Bus      *eventbus.Bus
	Clock    clock.Clock

	// Resolvers 为空时使用 DefaultResolvers
	Resolvers []Resolver
}

// Router 入站分派器
type Router struct {
	localID types.PeerID
	cfg     *config.Config
	reg     *registry.Registry
	ann     *announce.Handler
	reasm   *fragment.Reassembler
	clk     clock.Clock

	resolvers []Resolver
	pool      *workerpool.Pool

	unrouted *eventbus.Emitter

	mu       sync.RWMutex
	channels map[types.PeerID]*CommChannel
	global   listeners

	hooksMu       sync.RWMutex
	onEntityQuery func(src types.PeerID)
	onDrop        func(reason string)

	dropNotes rate.Sometimes
}

// New 创建路由器
func New(d Deps) (*Router, error) {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Resolvers == nil {
		d.Resolvers = DefaultResolvers(d.Config, d.Registry)
	}

	r := &Router{
		localID:   d.Config.Identity.LocalID,
		cfg:       d.Config,
		reg:       d.Registry,
		ann:       d.Announce,
		clk:       d.Clock,
		resolvers: d.Resolvers,
		channels:  make(map[types.PeerID]*CommChannel),
		dropNotes: rate.Sometimes{Interval: 10 * time.Second},
		reasm: fragment.New(fragment.Config{
			TTL:       d.Config.Fragment.TTL.Duration(),
			MaxGroups: d.Config.Fragment.MaxGroups,
		}, d.Codec.Decode),
	}

	if d.Bus != nil {
		e, err := d.Bus.Emitter(new(types.EvtUnroutedMessage))
		if err != nil {
			return nil, err
		}
		r.unrouted = e
	}

	r.pool = workerpool.New("inbound", d.Config.Router.Workers, d.Config.Router.QueueSize)
	r.pool.OnDrop = func(string) { r.drop("queue_full") }
	return r, nil
}

// OnEntityQuery 设置实体列表查询的处理函数
func (r *Router) OnEntityQuery(fn func(src types.PeerID)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onEntityQuery = fn
}

// OnDrop 设置入站丢弃的通知函数
func (r *Router) OnDrop(fn func(reason string)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onDrop = fn
}

func (r *Router) drop(reason string) {
	r.hooksMu.RLock()
	fn := r.onDrop
	r.hooksMu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

// Inbound 传输层入站回调，按来源地址排队后执行 Route
func (r *Router) Inbound(msg *types.Message, info types.MessageInfo) {
	if _, err := r.pool.Submit(info.Addr(), func() { r.Route(msg, info) }); err != nil {
		r.drop("closed")
	}
}

// Route 分派一条消息，返回是否交给了某个系统通道
func (r *Router) Route(msg *types.Message, info types.MessageInfo) bool {
	src := msg.Header.Src

	if src == r.localID {
		if msg.Kind == wire.KindAnnounce {
			if r.ann != nil {
				r.ann.HandleSelf(msg, info)
			}
			return false
		}
		r.publish(msg, info)
		return false
	}

	if msg.Kind == wire.KindMessagePart {
		whole, ok := r.reassemble(msg)
		if !ok {
			return false
		}
		msg = whole
		src = msg.Header.Src
	}

	if msg.Kind == wire.KindAnnounce && src.IsValidSource() && r.ann != nil {
		if _, err := r.ann.HandleInbound(msg, info); err != nil {
			r.dropNotes.Do(func() {
				log.Debug("Announce 处理失败", "src", src.String(), "from", info.Addr(), "err", err)
			})
		}
	}

	id, via, ok := r.resolve(msg, info)
	if !ok {
		r.publish(msg, info)
		return false
	}
	if via != "known" {
		log.Debug("消息经解析链归属", "src", src.String(), "to", id.String(), "resolver", via)
	}

	r.updateRegistry(id, msg, info)
	r.deliver(id, msg, info)
	return true
}

func (r *Router) resolve(msg *types.Message, info types.MessageInfo) (types.PeerID, string, bool) {
	for _, res := range r.resolvers {
		if id, ok := res.Resolve(msg, info); ok {
			return id, res.Name(), true
		}
	}
	return types.NullID, "", false
}

func (r *Router) reassemble(msg *types.Message) (*types.Message, bool) {
	part, err := wire.UnmarshalMessagePart(msg.Payload)
	if err != nil {
		r.drop("malformed_part")
		return nil, false
	}
	whole, err := r.reasm.Offer(msg.Header.Src, part)
	if err != nil {
		r.drop("reassembly")
		r.dropNotes.Do(func() {
			log.Debug("分片重组失败", "src", msg.Header.Src.String(), "err", err)
		})
		return nil, false
	}
	return whole, whole != nil
}

// updateRegistry 处理会改变目录的控制消息
func (r *Router) updateRegistry(id types.PeerID, msg *types.Message, info types.MessageInfo) {
	if !info.ReceivedAt.IsZero() {
		r.reg.Touch(id, info.ReceivedAt)
	}

	switch msg.Kind {
	case wire.KindEntityList:
		el, err := wire.UnmarshalEntityList(msg.Payload)
		if err != nil {
			return
		}
		switch el.Op {
		case wire.EntityListQuery:
			r.hooksMu.RLock()
			fn := r.onEntityQuery
			r.hooksMu.RUnlock()
			if fn != nil {
				fn(id)
			}
		case wire.EntityListReport:
			entities := make(map[uint8]string, len(el.List))
			for name, eid := range el.List {
				entities[eid] = name
			}
			r.reg.SetEntities(id, entities)
		}
	case wire.KindEntityInfo:
		if ei, err := wire.UnmarshalEntityInfo(msg.Payload); err == nil {
			r.reg.SetEntity(id, ei.ID, ei.Label)
		}
	}
}

func (r *Router) deliver(id types.PeerID, msg *types.Message, info types.MessageInfo) {
	ch := r.Channel(id)
	ch.Deliver(msg, info)
	r.global.dispatch(msg, info)
}

func (r *Router) publish(msg *types.Message, info types.MessageInfo) {
	if r.unrouted == nil {
		return
	}
	if err := r.unrouted.Emit(types.EvtUnroutedMessage{Message: msg, Info: info}); err != nil {
		log.Debug("发布未路由消息失败", "err", err)
	}
}

// ============================================================================
//                              通道与监听
// ============================================================================

// Channel 返回系统通道，不存在则创建
func (r *Router) Channel(id types.PeerID) *CommChannel {
	r.mu.RLock()
	ch, ok := r.channels[id]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		return ch
	}
	ch = newChannel(id, metrics.NewCounters(r.cfg.Metrics.DecayWindow.Duration(), r.clk))
	r.channels[id] = ch
	return ch
}

// Channels 所有通道
func (r *Router) Channels() []*CommChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CommChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// AddListener 注册监听
//
// peer 为 NullID 时接收所有交给系统通道的消息。
func (r *Router) AddListener(fn Listener, peer types.PeerID, filter Filter) (*Registration, error) {
	if fn == nil {
		return nil, ErrNilListener
	}
	if peer == types.NullID {
		return &Registration{owner: &r.global, id: r.global.add(fn, filter)}, nil
	}
	if !peer.IsValidSource() {
		return nil, ErrUnknownPeer
	}
	return r.Channel(peer).AddListener(fn, filter), nil
}

// PeerStats 实现 metrics.Source
func (r *Router) PeerStats() []metrics.PeerStats {
	chs := r.Channels()
	out := make([]metrics.PeerStats, 0, len(chs))
	for _, ch := range chs {
		rec, _ := r.reg.Lookup(ch.ID())
		out = append(out, metrics.PeerStats{
			Peer:     ch.ID().String(),
			Name:     rec.Name,
			Received: ch.Counters.Received.Snapshot(),
			ToSend:   ch.Counters.ToSend.Snapshot(),
			Sent:     ch.Counters.Sent.Snapshot(),
		})
	}
	return out
}

// PoolStats 入站工作池统计
func (r *Router) PoolStats() workerpool.Stats {
	return r.pool.Stats()
}

// PendingFragments 未完成的分片组数
func (r *Router) PendingFragments() int {
	return r.reasm.Pending()
}

// Close 等待已排队的消息处理完毕
func (r *Router) Close() error {
	err := r.pool.Close()
	if r.unrouted != nil {
		r.unrouted.Close()
	}
	return err
}
