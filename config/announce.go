package config

import (
	"errors"
	"time"
)

// AnnounceConfig 发现协议配置
//
// 周期为 0 表示关闭对应的定时任务。
type AnnounceConfig struct {
	MulticastInterval Duration `json:"multicast_interval" yaml:"multicast_interval"`
	BroadcastInterval Duration `json:"broadcast_interval" yaml:"broadcast_interval"`

	// UnicastToInactive 向已知但不活跃的系统单播 Announce
	UnicastToInactive bool     `json:"unicast_to_inactive" yaml:"unicast_to_inactive"`
	UnicastInterval   Duration `json:"unicast_interval" yaml:"unicast_interval"`

	// InactiveAfter 超过该时长未收到任何消息视为不活跃
	InactiveAfter Duration `json:"inactive_after" yaml:"inactive_after"`

	EntityQueryInterval Duration `json:"entity_query_interval" yaml:"entity_query_interval"`
	HeartbeatInterval   Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// ProbeTimeout 可达性探测上限
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout"`
	// ProbeCacheTTL 探测结果缓存时长
	ProbeCacheTTL Duration `json:"probe_cache_ttl" yaml:"probe_cache_ttl"`

	// DefaultUDPPort Announce 未给出 UDP 端口时的猜测值
	DefaultUDPPort int `json:"default_udp_port" yaml:"default_udp_port"`

	// ExtraServices 附加公布的服务 URI
	ExtraServices []string `json:"extra_services,omitempty" yaml:"extra_services,omitempty"`
}

// DefaultAnnounceConfig 返回默认发现配置
func DefaultAnnounceConfig() AnnounceConfig {
	return AnnounceConfig{
		MulticastInterval:   Duration(10 * time.Second),
		BroadcastInterval:   Duration(7 * time.Second),
		UnicastToInactive:   false,
		UnicastInterval:     Duration(10 * time.Second),
		InactiveAfter:       Duration(20 * time.Second),
		EntityQueryInterval: Duration(30 * time.Second),
		HeartbeatInterval:   Duration(time.Second),
		ProbeTimeout:        Duration(10 * time.Millisecond),
		ProbeCacheTTL:       Duration(30 * time.Second),
		DefaultUDPPort:      6002,
	}
}

// Validate 验证发现配置
func (c AnnounceConfig) Validate() error {
	for _, d := range []Duration{
		c.MulticastInterval, c.BroadcastInterval, c.UnicastInterval,
		c.EntityQueryInterval, c.HeartbeatInterval,
	} {
		if d < 0 {
			return errors.New("announce intervals must not be negative")
		}
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	if c.ProbeCacheTTL <= 0 {
		return errors.New("probe cache ttl must be positive")
	}
	if c.DefaultUDPPort <= 0 || c.DefaultUDPPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}
