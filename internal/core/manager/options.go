package manager

import (
	"time"

	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

type sendOptions struct {
	multicast bool
	broadcast bool
	via       types.TransportKind
	only      bool
	entity    *entity.Handle
	timeout   time.Duration
	listener  delivery.Listener
}

// SendOption 发送选项
type SendOption func(o *sendOptions)

// WithMulticast 经组播发送
func WithMulticast() SendOption {
	return func(o *sendOptions) { o.multicast = true }
}

// WithBroadcast 经广播发送
func WithBroadcast() SendOption {
	return func(o *sendOptions) { o.broadcast = true }
}

// Via 优先使用指定传输
//
// 组播与广播等同于 WithMulticast / WithBroadcast。
func Via(k types.TransportKind) SendOption {
	return func(o *sendOptions) {
		switch k {
		case types.TransportMulticast:
			o.multicast = true
		case types.TransportBroadcast:
			o.broadcast = true
		default:
			o.via = k
		}
	}
}

// Only 只经指定的单播传输发送，失败时不尝试其他传输
func Only(k types.TransportKind) SendOption {
	return func(o *sendOptions) {
		o.via = k
		o.only = true
	}
}

// FromEntity 源实体未设置时使用该实体
func FromEntity(h entity.Handle) SendOption {
	return func(o *sendOptions) { o.entity = &h }
}

// WithTimeout 覆盖默认截止时间
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = d }
}

func applyOptions(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
