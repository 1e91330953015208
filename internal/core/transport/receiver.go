package transport

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/transport")

// Receiver 解码入站帧并分发给订阅者
//
// 各传输嵌入 Receiver；解码失败的帧只计数与限流记录，不会分发。
type Receiver struct {
	Handlers

	kind  types.TransportKind
	codec *wire.Codec

	dropped  atomic.Uint64
	dropNote rate.Sometimes

	// OnDrop 丢弃时调用，可为空
	OnDrop func(reason string)
}

// NewReceiver 创建 Receiver
func NewReceiver(kind types.TransportKind, codec *wire.Codec) *Receiver {
	return &Receiver{
		kind:     kind,
		codec:    codec,
		dropNote: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Deliver 解码并分发一帧，返回是否分发
//
// info.Transport 未设置时填入本传输的类型。
func (r *Receiver) Deliver(frame []byte, info types.MessageInfo) bool {
	msg, err := r.codec.Decode(frame)
	if err != nil {
		total := r.dropped.Add(1)
		r.dropNote.Do(func() {
			log.Debug("丢弃无法解码的帧",
				"transport", r.kind.String(),
				"from", info.Addr(),
				"size", len(frame),
				"dropped", total,
				"err", err)
		})
		if r.OnDrop != nil {
			r.OnDrop("malformed")
		}
		return false
	}

	if info.Transport == types.TransportUnknown {
		info.Transport = r.kind
	}
	r.Dispatch(msg, info)
	return true
}

// Dropped 累计丢弃数
func (r *Receiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Codec 使用的编解码器
func (r *Receiver) Codec() *wire.Codec {
	return r.codec
}
