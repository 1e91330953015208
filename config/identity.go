package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

// IdentityConfig 本机身份
type IdentityConfig struct {
	// LocalID 本机系统标识
	LocalID types.PeerID `json:"local_id" yaml:"local_id"`

	// Name 在 Announce 中公布的系统名
	Name string `json:"name" yaml:"name"`

	// Kind 在 Announce 中公布的系统类型
	Kind types.PeerKind `json:"kind" yaml:"kind"`

	// Owner Announce 中的 owner 字段
	Owner types.PeerID `json:"owner" yaml:"owner"`
}

// DefaultIdentityConfig 默认身份：控制台 0x4001
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		LocalID: 0x4001,
		Name:    "imcmsg-console",
		Kind:    types.KindConsole,
		Owner:   types.NullID,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if !c.LocalID.IsValidSource() {
		return fmt.Errorf("local id %s: %w", c.LocalID, ErrReservedID)
	}
	if c.Name == "" {
		return errors.New("system name must not be empty")
	}
	return nil
}
