package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-imcmsg/internal/util/logger"
)

var log = logger.Logger("core/eventbus")

var (
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrNonPointerType 必须传入指针，例如 new(Evt)
	ErrNonPointerType = errors.New("event type must be a pointer")
	// ErrEmitterClosed 发射器已关闭
	ErrEmitterClosed = errors.New("emitter is closed")
)

// ============================================================================
// Bus
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu    sync.Mutex
	nodes map[reflect.Type]*node
}

// node 单个事件类型的订阅者集合
type node struct {
	mu        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription
	emitters  atomic.Int32
	keepLast  bool
	last      interface{}
	dropped   atomic.Int64
	dropNotes rate.Sometimes
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

func elemType(evtType interface{}) (reflect.Type, error) {
	if evtType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(evtType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// Subscribe 订阅 evtType 所指向类型的事件
func (b *Bus) Subscribe(evtType interface{}, opts ...SubOpt) (*Subscription, error) {
	typ, err := elemType(evtType)
	if err != nil {
		return nil, err
	}

	s := subSettings{buffer: 16}
	for _, opt := range opts {
		opt(&s)
	}

	sub := &Subscription{bus: b, typ: typ, out: make(chan interface{}, s.buffer)}
	b.withNode(typ, func(n *node) {
		n.sinks = append(n.sinks, sub)
		if n.keepLast && n.last != nil {
			sub.out <- n.last
		}
	})
	return sub, nil
}

// Emitter 获取 evtType 的发射器
func (b *Bus) Emitter(evtType interface{}, opts ...EmitterOpt) (*Emitter, error) {
	typ, err := elemType(evtType)
	if err != nil {
		return nil, err
	}

	var s emitterSettings
	for _, opt := range opts {
		opt(&s)
	}

	var n *node
	b.withNode(typ, func(nd *node) {
		n = nd
		n.emitters.Add(1)
		n.keepLast = n.keepLast || s.stateful
	})
	return &Emitter{bus: b, node: n}, nil
}

// withNode 在持有节点锁的情况下执行 cb，节点不存在则创建
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) {
	b.mu.Lock()
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ, dropNotes: rate.Sometimes{Interval: 10 * time.Second}}
		b.nodes[typ] = n
	}
	n.mu.Lock()
	b.mu.Unlock()

	defer n.mu.Unlock()
	cb(n)
}

// dropIfUnused 没有订阅者也没有发射器时删除节点
func (b *Bus) dropIfUnused(typ reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[typ]
	if !ok {
		return
	}
	n.mu.Lock()
	unused := len(n.sinks) == 0 && n.emitters.Load() == 0 && !n.keepLast
	n.mu.Unlock()
	if unused {
		delete(b.nodes, typ)
	}
}

func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return
	}
	n.mu.Lock()
	b.mu.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	n.mu.Unlock()

	b.dropIfUnused(sub.typ)
}

func (n *node) emit(evt interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.keepLast {
		n.last = evt
	}

	for _, sub := range n.sinks {
		select {
		case sub.out <- evt:
		default:
			total := n.dropped.Add(1)
			n.dropNotes.Do(func() {
				log.Warn("订阅者过慢，事件被丢弃", "type", n.typ.String(), "dropped", total)
			})
		}
	}
}

// Dropped 某类型累计丢弃的事件数
func (b *Bus) Dropped(evtType interface{}) int64 {
	typ, err := elemType(evtType)
	if err != nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.nodes[typ]; ok {
		return n.dropped.Load()
	}
	return 0
}
