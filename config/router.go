package config

import "errors"

// RouterConfig 路由与入站调度
type RouterConfig struct {
	// RedirectToFirst 无法解析的消息转给任意一个已知系统
	RedirectToFirst bool `json:"redirect_to_first" yaml:"redirect_to_first"`

	// FilterByPort IP 索引同时匹配源端口
	FilterByPort bool `json:"filter_by_port" yaml:"filter_by_port"`

	// Workers 入站分片数，同一来源地址总落在同一分片
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize 每个分片的队列长度，满则丢弃
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// BusBuffer 未路由消息订阅的缓冲
	BusBuffer int `json:"bus_buffer" yaml:"bus_buffer"`
}

// DefaultRouterConfig 返回默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Workers:   4,
		QueueSize: 1024,
		BusBuffer: 64,
	}
}

// Validate 验证路由配置
func (c RouterConfig) Validate() error {
	if c.Workers <= 0 {
		return errors.New("router workers must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("router queue size must be positive")
	}
	if c.BusBuffer <= 0 {
		return errors.New("bus buffer must be positive")
	}
	return nil
}
