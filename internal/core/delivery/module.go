package delivery

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
)

// Params 依赖
type Params struct {
	fx.In

	Clock clock.Clock `optional:"true"`
}

// Module 提供投递跟踪器，停止时结束所有在途投递
func Module() fx.Option {
	return fx.Module("delivery",
		fx.Provide(func(lc fx.Lifecycle, p Params) *Tracker {
			t := NewTracker(p.Clock)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					t.Close()
					return nil
				},
			})
			return t
		}),
	)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "delivery"
	// Description 模块描述
	Description = "出站消息投递结果跟踪"
)
