package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
//                              PeerID - 系统标识
// ============================================================================

// PeerID 16 位系统标识
//
// 三个哨兵值不代表任何具体系统，不能作为有效的消息来源。
type PeerID uint16

const (
	// AnnounceID 发现通道使用的目的地址
	AnnounceID PeerID = 0x0000

	// BroadcastID 广播目的地址
	BroadcastID PeerID = 0xFFFE

	// NullID 未知/未设置
	NullID PeerID = 0xFFFF
)

// IsSentinel 是否为哨兵值
func (id PeerID) IsSentinel() bool {
	return id == AnnounceID || id == BroadcastID || id == NullID
}

// IsValidSource 能否作为消息来源
func (id PeerID) IsValidSource() bool {
	return !id.IsSentinel()
}

// String 返回 0x 前缀的四位十六进制表示，例如 0x4D15
func (id PeerID) String() string {
	return fmt.Sprintf("0x%04X", uint16(id))
}

// ParsePeerID 解析 "0x4D15"、"4D15h" 或十进制 "19733"
func ParsePeerID(s string) (PeerID, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasSuffix(s, "h"), strings.HasSuffix(s, "H"):
		s, base = s[:len(s)-1], 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return NullID, fmt.Errorf("%w: %q", ErrInvalidPeerID, s)
	}
	return PeerID(v), nil
}

// MarshalText 实现 encoding.TextMarshaler，配置文件中以十六进制出现
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *PeerID) UnmarshalText(text []byte) error {
	v, err := ParsePeerID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
