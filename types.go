package imcmsg

import (
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/manager"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 正在绑定传输
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 正在关闭
	StateStopping

	// StateStopped 已停止，不能再启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// PeerID 系统标识
	PeerID = types.PeerID
	// Message 一条带类型的消息
	Message = types.Message
	// Header 消息头
	Header = types.Header
	// MessageInfo 接收元数据
	MessageInfo = types.MessageInfo
	// Outcome 投递结果
	Outcome = types.Outcome
	// TransportKind 传输类型
	TransportKind = types.TransportKind
	// Location 位置
	Location = types.Location

	// PeerRecord 系统记录快照
	PeerRecord = registry.Record
	// Conflict ID 冲突状态
	Conflict = registry.Conflict

	// Result 投递结果
	Result = delivery.Result
	// Future 可等待的投递结果
	Future = delivery.Future
	// DeliveryListener 投递结果回调
	DeliveryListener = delivery.Listener

	// Listener 入站消息回调
	Listener = router.Listener
	// Filter 入站消息过滤
	Filter = router.Filter
	// Registration 监听注册，Remove 取消
	Registration = router.Registration

	// EntityHandle 本机实体
	EntityHandle = entity.Handle

	// SendOption 发送选项
	SendOption = manager.SendOption

	// Subscription 事件订阅，Out 返回事件通道
	Subscription = eventbus.Subscription

	// EvtUnroutedMessage 无法归属的入站消息
	EvtUnroutedMessage = types.EvtUnroutedMessage
	// EvtPeerDiscovered 首次发现系统
	EvtPeerDiscovered = types.EvtPeerDiscovered
	// EvtPeerUpdated 系统记录更新
	EvtPeerUpdated = types.EvtPeerUpdated
	// EvtIDConflict 本机 ID 冲突
	EvtIDConflict = types.EvtIDConflict
)

// 保留标识
const (
	NullID      = types.NullID
	AnnounceID  = types.AnnounceID
	BroadcastID = types.BroadcastID
)

// 发送选项
var (
	// WithMulticast 经组播发送
	WithMulticast = manager.WithMulticast
	// WithBroadcast 经广播发送
	WithBroadcast = manager.WithBroadcast
	// Via 优先使用指定传输
	Via = manager.Via
	// Only 只经指定传输
	Only = manager.Only
	// FromEntity 指定源实体
	FromEntity = manager.FromEntity
	// WithTimeout 覆盖截止时间
	WithTimeout = manager.WithTimeout
)

// NewMessage 创建目的地与实体均未设置的消息
func NewMessage(kind string, payload []byte) *Message {
	return types.NewMessage(kind, payload)
}

// KindFilter 只接收指定类型的过滤器
func KindFilter(kinds ...string) Filter {
	return router.KindFilter(kinds...)
}
