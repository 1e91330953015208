package config

import (
	"errors"
	"time"
)

// DeliveryConfig 投递跟踪
type DeliveryConfig struct {
	// DefaultTimeout 普通发送的截止时间
	DefaultTimeout Duration `json:"default_timeout" yaml:"default_timeout"`

	// ReliableTimeout SendReliably / SendBlocking 的截止时间
	ReliableTimeout Duration `json:"reliable_timeout" yaml:"reliable_timeout"`
}

// DefaultDeliveryConfig 返回默认投递配置
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		DefaultTimeout:  Duration(10 * time.Second),
		ReliableTimeout: Duration(20 * time.Second),
	}
}

// Validate 验证投递配置
func (c DeliveryConfig) Validate() error {
	if c.DefaultTimeout <= 0 || c.ReliableTimeout <= 0 {
		return errors.New("delivery timeouts must be positive")
	}
	return nil
}
