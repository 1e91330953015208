package router

import (
	"sync"

	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Listener 消息回调，在工作池协程中调用
type Listener func(msg *types.Message, info types.MessageInfo)

// Filter 返回 false 的消息不交给监听器，nil 表示全部接收
type Filter func(msg *types.Message) bool

// KindFilter 只接收指定类型
func KindFilter(kinds ...string) Filter {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(msg *types.Message) bool {
		_, ok := set[msg.Kind]
		return ok
	}
}

type listenerEntry struct {
	id     uint64
	fn     Listener
	filter Filter
}

// listeners 写时复制的监听表
type listeners struct {
	mu   sync.Mutex
	next uint64
	list []listenerEntry
}

func (l *listeners) add(fn Listener, filter Filter) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	list := make([]listenerEntry, len(l.list), len(l.list)+1)
	copy(list, l.list)
	l.list = append(list, listenerEntry{id: l.next, fn: fn, filter: filter})
	return l.next
}

func (l *listeners) remove(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.list {
		if e.id == id {
			list := make([]listenerEntry, 0, len(l.list)-1)
			list = append(list, l.list[:i]...)
			l.list = append(list, l.list[i+1:]...)
			return true
		}
	}
	return false
}

func (l *listeners) snapshot() []listenerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list
}

func (l *listeners) dispatch(msg *types.Message, info types.MessageInfo) int {
	n := 0
	for _, e := range l.snapshot() {
		if e.filter != nil && !e.filter(msg) {
			continue
		}
		e.fn(msg, info)
		n++
	}
	return n
}

// Registration 监听注册，Remove 可重复调用
type Registration struct {
	owner *listeners
	id    uint64
	once  sync.Once
}

// Remove 注销监听
func (r *Registration) Remove() {
	if r == nil {
		return
	}
	r.once.Do(func() { r.owner.remove(r.id) })
}

// ============================================================================
//                              CommChannel
// ============================================================================

// CommChannel 单个系统的消息通道与频率计数器
type CommChannel struct {
	id        types.PeerID
	listeners listeners

	// Counters 收到 / 待发 / 已发
	Counters *metrics.Counters
}

func newChannel(id types.PeerID, counters *metrics.Counters) *CommChannel {
	return &CommChannel{id: id, Counters: counters}
}

// ID 系统标识
func (c *CommChannel) ID() types.PeerID { return c.id }

// AddListener 注册监听
func (c *CommChannel) AddListener(fn Listener, filter Filter) *Registration {
	return &Registration{owner: &c.listeners, id: c.listeners.add(fn, filter)}
}

// Listeners 当前监听数
func (c *CommChannel) Listeners() int {
	return len(c.listeners.snapshot())
}

// Deliver 计数并交给匹配的监听器，返回调用的监听器数
func (c *CommChannel) Deliver(msg *types.Message, info types.MessageInfo) int {
	c.Counters.Received.MarkNow()
	return c.listeners.dispatch(msg, info)
}
