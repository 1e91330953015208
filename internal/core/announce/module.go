package announce

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
)

// Params 依赖
type Params struct {
	fx.In

	Config   *config.Config
	Registry *registry.Registry
	Bus      *eventbus.Bus `optional:"true"`
	Clock    clock.Clock   `optional:"true"`
	Prober   Prober        `optional:"true"`
}

// Module 提供本机公告与 Announce 处理器
//
// Broadcaster 依赖发送出口，由 manager 创建。
func Module() fx.Option {
	return fx.Module("announce",
		fx.Provide(ProvideLocal),
		fx.Provide(ProvideHandler),
	)
}

// ProvideLocal 由身份配置创建本机公告
func ProvideLocal(cfg *config.Config) *Local {
	return NewLocal(cfg.Identity, cfg.Announce.ExtraServices)
}

// ProvideHandler 创建处理器并在停止时关闭其事件发布器
func ProvideHandler(lc fx.Lifecycle, p Params, local *Local) (*Handler, error) {
	prober := p.Prober
	if prober == nil {
		prober = NewProber(p.Config.Announce.ProbeTimeout.Duration(), p.Config.Announce.ProbeCacheTTL.Duration(), nil)
	}

	h, err := NewHandler(p.Config, local, p.Registry, prober, p.Bus, p.Clock)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return h.Close()
		},
	})
	return h, nil
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "announce"
	// Description 模块描述
	Description = "Announce 发现、地址选择与周期公告"
)
