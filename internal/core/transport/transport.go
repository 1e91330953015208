package transport

import (
	"context"
	"sync"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Handler 入站消息回调，在传输的接收协程中调用，不得阻塞
type Handler func(msg *types.Message, info types.MessageInfo)

// DoneFunc 出站帧的结果回调，最多调用一次
type DoneFunc func(outcome types.Outcome, err error)

// Transport 所有传输的公共接口
type Transport interface {
	Kind() types.TransportKind

	// Start 绑定端口并启动接收循环
	Start(ctx context.Context) error

	// Port 实际绑定的端口，未绑定时为 0
	Port() int

	// Bound 是否已成功绑定
	Bound() bool

	// Subscribe 注册入站回调，返回取消函数
	Subscribe(h Handler) (unsubscribe func())

	Close() error
}

// Unicast 可向单一地址发送的传输
//
// Send 返回 true 表示帧已交给网络（或已入队），结果通过 done 报告。
type Unicast interface {
	Transport
	Send(host string, port int, frame []byte, done DoneFunc) bool
}

// ============================================================================
// Handlers - 回调列表
// ============================================================================

// Handlers 写时复制的回调列表
type Handlers struct {
	mu   sync.Mutex
	next uint64
	list []handlerEntry
}

type handlerEntry struct {
	id uint64
	h  Handler
}

// Add 注册回调
func (hs *Handlers) Add(h Handler) func() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.next++
	id := hs.next
	list := make([]handlerEntry, len(hs.list), len(hs.list)+1)
	copy(list, hs.list)
	hs.list = append(list, handlerEntry{id: id, h: h})

	return func() { hs.remove(id) }
}

func (hs *Handlers) remove(id uint64) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	list := make([]handlerEntry, 0, len(hs.list))
	for _, e := range hs.list {
		if e.id != id {
			list = append(list, e)
		}
	}
	hs.list = list
}

// Dispatch 依次调用所有回调
func (hs *Handlers) Dispatch(msg *types.Message, info types.MessageInfo) {
	hs.mu.Lock()
	list := hs.list
	hs.mu.Unlock()

	for _, e := range list {
		e.h(msg, info)
	}
}

// Len 回调数量
func (hs *Handlers) Len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.list)
}
