package eventbus

import (
	"go.uber.org/fx"
)

// Module 提供进程内事件总线
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(NewBus),
	)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "eventbus"
	// Description 模块描述
	Description = "按类型分发的进程内事件总线"
)
