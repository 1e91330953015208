package config

import (
	"errors"
	"time"
)

// FragmentConfig 分片重组
type FragmentConfig struct {
	// TTL 未完成分组自最后一个分片起的保留时长
	TTL Duration `json:"ttl" yaml:"ttl"`

	// MaxGroups 同时保留的未完成分组上限，超出按 LRU 淘汰
	MaxGroups int `json:"max_groups" yaml:"max_groups"`
}

// DefaultFragmentConfig 返回默认分片配置
func DefaultFragmentConfig() FragmentConfig {
	return FragmentConfig{
		TTL:       Duration(30 * time.Second),
		MaxGroups: 1024,
	}
}

// Validate 验证分片配置
func (c FragmentConfig) Validate() error {
	if c.TTL <= 0 {
		return errors.New("fragment ttl must be positive")
	}
	if c.MaxGroups <= 0 {
		return errors.New("fragment max groups must be positive")
	}
	return nil
}
