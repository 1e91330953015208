package types

import "time"

// ============================================================================
//                              总线事件
// ============================================================================

// EvtUnroutedMessage 无法归属到任何系统的入站消息，
// 以及本机 ID 发出的非 Announce 消息
type EvtUnroutedMessage struct {
	Message *Message
	Info    MessageInfo
}

// EvtPeerDiscovered 首次收到某系统的 Announce
type EvtPeerDiscovered struct {
	ID   PeerID
	Name string
	Kind PeerKind
}

// EvtPeerUpdated 已知系统的记录被 Announce 或实体列表更新
type EvtPeerUpdated struct {
	ID PeerID
}

// EvtIDConflict 有其他进程以本机 ID 发出 Announce
type EvtIDConflict struct {
	// SameHost 冲突方位于本机
	SameHost bool
	RemoteIP string
	At       time.Time
}
