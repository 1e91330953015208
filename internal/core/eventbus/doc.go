// Package eventbus 实现进程内事件总线
//
// 按事件的具体类型分发：
//
//	sub, _ := bus.Subscribe(new(types.EvtUnroutedMessage), eventbus.BufSize(64))
//	defer sub.Close()
//	for evt := range sub.Out() {
//	    e := evt.(types.EvtUnroutedMessage)
//	}
//
//	em, _ := bus.Emitter(new(types.EvtUnroutedMessage))
//	em.Emit(types.EvtUnroutedMessage{...})
//
// 订阅缓冲满时事件被丢弃，发射方永不阻塞；丢弃告警经过限流。
// Stateful 发射器会记住最后一个事件，新订阅者立即收到它。
package eventbus
