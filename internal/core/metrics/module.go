package metrics

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
)

// Params 依赖
type Params struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// Result 输出
type Result struct {
	fx.Out

	Global   *Counters
	Registry *prometheus.Registry
}

// Module 提供全局计数器与 Prometheus 注册表
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(Provide),
	)
}

// Provide 创建全局计数器与独立的注册表
//
// 不使用 prometheus 默认注册表，同一进程可运行多个节点。
func Provide(p Params) Result {
	return Result{
		Global:   NewCounters(p.Config.Metrics.DecayWindow.Duration(), p.Clock),
		Registry: prometheus.NewRegistry(),
	}
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "metrics"
	// Description 模块描述
	Description = "消息频率统计与 Prometheus 导出"
)
