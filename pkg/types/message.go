package types

import (
	"fmt"
	"time"
)

// ============================================================================
//                              Message - 消息
// ============================================================================

// Header 消息头
//
// Src 与 Timestamp 由管理器在发送前盖章，调用方设置的值会被覆盖。
type Header struct {
	Src       PeerID
	SrcEntity uint8
	Dst       PeerID
	DstEntity uint8

	// Timestamp 秒，Unix 纪元起的浮点数
	Timestamp float64
}

// DefaultEntity 未指定实体
const DefaultEntity uint8 = 0xFF

// Message 一条带类型的消息
//
// Payload 的内容由 Kind 决定，对核心不透明。
type Message struct {
	Header  Header
	Kind    string
	Payload []byte
}

// NewMessage 创建目的地与实体均未设置的消息
func NewMessage(kind string, payload []byte) *Message {
	return &Message{
		Header: Header{
			Src:       NullID,
			SrcEntity: DefaultEntity,
			Dst:       NullID,
			DstEntity: DefaultEntity,
		},
		Kind:    kind,
		Payload: payload,
	}
}

// Clone 深拷贝
func (m *Message) Clone() *Message {
	c := *m
	if m.Payload != nil {
		c.Payload = append([]byte(nil), m.Payload...)
	}
	return &c
}

// Time 消息头时间戳
func (m *Message) Time() time.Time {
	sec := int64(m.Header.Timestamp)
	nsec := int64((m.Header.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Stamp 设置时间戳
func (m *Message) Stamp(t time.Time) {
	m.Header.Timestamp = float64(t.UnixNano()) / 1e9
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[%s->%s %dB]", m.Kind, m.Header.Src, m.Header.Dst, len(m.Payload))
}

// ============================================================================
//                              TransportKind - 传输类型
// ============================================================================

// TransportKind 传输类型
type TransportKind int

const (
	// TransportUnknown 未知
	TransportUnknown TransportKind = iota
	// TransportUDP UDP 单播
	TransportUDP
	// TransportMulticast UDP 组播
	TransportMulticast
	// TransportBroadcast UDP 广播
	TransportBroadcast
	// TransportTCP TCP
	TransportTCP
)

func (k TransportKind) String() string {
	switch k {
	case TransportUDP:
		return "udp"
	case TransportMulticast:
		return "multicast"
	case TransportBroadcast:
		return "broadcast"
	case TransportTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// ParseTransportKind 解析 "udp"、"tcp"、"multicast"、"broadcast"
func ParseTransportKind(s string) (TransportKind, bool) {
	for k := TransportUDP; k <= TransportTCP; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return TransportUnknown, false
}

// MessageInfo 接收元数据，由传输层附加到每一帧
type MessageInfo struct {
	SrcIP      string
	SrcPort    int
	ReceivedAt time.Time
	Transport  TransportKind
}

// Addr 返回 ip:port
func (i MessageInfo) Addr() string {
	return fmt.Sprintf("%s:%d", i.SrcIP, i.SrcPort)
}
