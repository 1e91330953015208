package imcmsg

import (
	"context"
	"time"
)

// ════════════════════════════════════════════════════════════════════════════
//                              发送
// ════════════════════════════════════════════════════════════════════════════

// Send 发出即忘，返回消息是否已交给某个传输
//
// 消息在发送前被复制，调用方持有的 msg 不会被修改。
//
//	ok := node.Send(imcmsg.NewMessage("Abort", nil), 0x2001)
//	node.Send(msg, imcmsg.NullID, imcmsg.WithMulticast())
func (n *Node) Send(msg *Message, dst PeerID, opts ...SendOption) bool {
	return n.mgr.Send(msg, dst, opts...)
}

// SendWithListener 发送并在得到终态结果时回调 listener
//
// 每次发送 listener 恰好被调用一次，包括同步失败。
func (n *Node) SendWithListener(msg *Message, dst PeerID, listener DeliveryListener, opts ...SendOption) bool {
	return n.mgr.SendWithListener(msg, dst, listener, opts...)
}

// SendReliably 发送并返回 Future
//
//	f := node.SendReliably(msg, 0x2001)
//	res, err := f.Wait(ctx)
func (n *Node) SendReliably(msg *Message, dst PeerID, opts ...SendOption) *Future {
	return n.mgr.SendReliably(msg, dst, opts...)
}

// SendBlocking 发送并等待结果，ctx 结束时返回 ctx 的错误
func (n *Node) SendBlocking(ctx context.Context, msg *Message, dst PeerID, opts ...SendOption) (Result, error) {
	return n.mgr.SendBlocking(ctx, msg, dst, opts...)
}

// BroadcastToConsoles 向所有已知控制台各发送一份，返回交出的份数
func (n *Node) BroadcastToConsoles(msg *Message, opts ...SendOption) int {
	return n.mgr.BroadcastToConsoles(msg, opts...)
}

// StartBroadcasting 以 interval 重新开始周期组播公告，0 表示配置值
func (n *Node) StartBroadcasting(interval time.Duration) {
	n.mgr.StartBroadcasting(interval)
}

// StopBroadcasting 停止所有周期公告与心跳
func (n *Node) StopBroadcasting() {
	n.mgr.StopBroadcasting()
}
