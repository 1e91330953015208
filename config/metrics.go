package config

import (
	"errors"
	"time"
)

// MetricsConfig 频率统计与导出
type MetricsConfig struct {
	// DecayWindow 频率指数衰减时间常数
	DecayWindow Duration `json:"decay_window" yaml:"decay_window"`

	// EnablePrometheus 注册 Prometheus 采集器
	EnablePrometheus bool `json:"enable_prometheus" yaml:"enable_prometheus"`
}

// DefaultMetricsConfig 返回默认统计配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		DecayWindow:      Duration(5 * time.Second),
		EnablePrometheus: true,
	}
}

// Validate 验证统计配置
func (c MetricsConfig) Validate() error {
	if c.DecayWindow <= 0 {
		return errors.New("decay window must be positive")
	}
	return nil
}
