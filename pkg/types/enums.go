package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              PeerKind - 系统类型
// ============================================================================

// PeerKind 系统类型
type PeerKind int

const (
	// KindOther 其他/未知
	KindOther PeerKind = iota
	// KindVehicle 载具
	KindVehicle
	// KindConsole 控制台
	KindConsole
)

func (k PeerKind) String() string {
	switch k {
	case KindVehicle:
		return "vehicle"
	case KindConsole:
		return "console"
	default:
		return "other"
	}
}

// ParsePeerKind 解析系统类型
//
// 除 vehicle/console 外还接受 Announce 中常见的载具子类型
// (uuv, usv, uav, ugv, auv, rov)，统一归为 vehicle。
func ParsePeerKind(s string) (PeerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vehicle", "uuv", "usv", "uav", "ugv", "auv", "rov":
		return KindVehicle, nil
	case "console", "ccu":
		return KindConsole, nil
	case "other", "", "unknown", "staticsensor", "mobilesensor", "wsn":
		return KindOther, nil
	}
	return KindOther, fmt.Errorf("%w: %q", ErrUnknownPeerKind, s)
}

// MarshalText 实现 encoding.TextMarshaler
func (k PeerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *PeerKind) UnmarshalText(text []byte) error {
	v, err := ParsePeerKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ============================================================================
//                              Authority - 控制权限
// ============================================================================

// Authority 本地对远端系统的控制权限
//
// AuthorityOff 禁止一切发送；AuthorityMonitor 及以上会收到心跳。
type Authority int

const (
	// AuthorityNone 未声明，允许发送，不发心跳
	AuthorityNone Authority = iota
	// AuthorityOff 禁止发送
	AuthorityOff
	// AuthorityMonitor 监视
	AuthorityMonitor
	// AuthorityFull 完全控制
	AuthorityFull
)

func (a Authority) String() string {
	switch a {
	case AuthorityOff:
		return "off"
	case AuthorityMonitor:
		return "monitor"
	case AuthorityFull:
		return "full"
	default:
		return "none"
	}
}

// WantsHeartbeat 是否需要周期性心跳
func (a Authority) WantsHeartbeat() bool {
	return a >= AuthorityMonitor
}

// MarshalText 实现 encoding.TextMarshaler
func (a Authority) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Authority) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none", "":
		*a = AuthorityNone
	case "off":
		*a = AuthorityOff
	case "monitor":
		*a = AuthorityMonitor
	case "full", "on":
		*a = AuthorityFull
	default:
		return fmt.Errorf("unknown authority %q", text)
	}
	return nil
}

// ============================================================================
//                              Outcome - 投递结果
// ============================================================================

// Outcome 一次发送的最终结果
type Outcome int

const (
	// OutcomePending 尚未确定
	OutcomePending Outcome = iota
	// OutcomeSuccess 已确认送达（UDP 单播为交付到网络）
	OutcomeSuccess
	// OutcomeError 发送失败
	OutcomeError
	// OutcomeTimeout 截止时间内无结果
	OutcomeTimeout
	// OutcomeUnreachable 没有可用传输
	OutcomeUnreachable
	// OutcomeUncertain 组播/广播，无法确认
	OutcomeUncertain
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeUncertain:
		return "uncertain"
	}
	return "unknown"
}

// IsTerminal 是否为最终结果
func (o Outcome) IsTerminal() bool {
	return o != OutcomePending
}

// Delivered 成功或不确定（已交付到网络）
func (o Outcome) Delivered() bool {
	return o == OutcomeSuccess || o == OutcomeUncertain
}
