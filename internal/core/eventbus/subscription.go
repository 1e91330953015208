package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Subscription 一个订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
}

// Out 事件通道，Close 后被关闭
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		// 移除后不会再有发送，可以安全关闭
		s.bus.removeSub(s)
		close(s.out)
	})
	return nil
}

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	closed    atomic.Bool
	closeOnce sync.Once
}

// Emit 发射事件，永不阻塞
func (e *Emitter) Emit(evt interface{}) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	e.node.emit(evt)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.emitters.Add(-1) == 0 {
			e.bus.dropIfUnused(e.node.typ)
		}
	})
	return nil
}
