package router

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
)

// Params 依赖
type Params struct {
	fx.In

	Config   *config.Config
	Registry *registry.Registry
	Codec    *wire.Codec
	Announce *announce.Handler
	Bus      *eventbus.Bus `optional:"true"`
	Clock    clock.Clock   `optional:"true"`
}

// Module 提供路由器
func Module() fx.Option {
	return fx.Module("router",
		fx.Provide(Provide),
	)
}

// Provide 创建路由器，停止时排空入站队列
func Provide(lc fx.Lifecycle, p Params) (*Router, error) {
	r, err := New(Deps{
		Config:   p.Config,
		Registry: p.Registry,
		Codec:    p.Codec,
		Announce: p.Announce,
		Bus:      p.Bus,
		Clock:    p.Clock,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.Close()
		},
	})
	return r, nil
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "router"
	// Description 模块描述
	Description = "入站消息解析链、系统通道与监听"
)
