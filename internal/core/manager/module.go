package manager

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
)

// Params 依赖
type Params struct {
	fx.In

	Config   *config.Config
	Codec    *wire.Codec
	Registry *registry.Registry
	Router   *router.Router
	Announce *announce.Handler
	Local    *announce.Local
	Tracker  *delivery.Tracker
	Entities *entity.Registry `optional:"true"`

	Global     *metrics.Counters    `optional:"true"`
	Prometheus *prometheus.Registry `optional:"true"`

	Bus   *eventbus.Bus `optional:"true"`
	Clock clock.Clock   `optional:"true"`
}

// Module 提供消息管理器，随 fx 生命周期启停
func Module() fx.Option {
	return fx.Module("manager",
		fx.Provide(Provide),
	)
}

// Provide 创建管理器并挂接生命周期
func Provide(lc fx.Lifecycle, p Params) (*Manager, error) {
	m, err := New(Deps{
		Config:     p.Config,
		Codec:      p.Codec,
		Registry:   p.Registry,
		Router:     p.Router,
		Announce:   p.Announce,
		Local:      p.Local,
		Tracker:    p.Tracker,
		Entities:   p.Entities,
		Global:     p.Global,
		Prometheus: p.Prometheus,
		Bus:        p.Bus,
		Clock:      p.Clock,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: m.Start,
		OnStop: func(context.Context) error {
			return m.Stop()
		},
	})
	return m, nil
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "manager"
	// Description 模块描述
	Description = "传输生命周期、发送路径与发现的组合入口"
)
