package imcmsg

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/announce"
	"github.com/dep2p/go-imcmsg/internal/core/delivery"
	"github.com/dep2p/go-imcmsg/internal/core/entity"
	"github.com/dep2p/go-imcmsg/internal/core/eventbus"
	"github.com/dep2p/go-imcmsg/internal/core/manager"
	"github.com/dep2p/go-imcmsg/internal/core/metrics"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/internal/core/router"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. wire, eventbus, metrics, registry
//  2. announce → router → delivery → entity
//  3. manager（持有传输，OnStart 绑定端口）
func buildFxApp(o *options, cfg *config.Config, node *Node) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),

		wire.Module(),
		eventbus.Module(),
		metrics.Module(),
		registry.Module(),
		announce.Module(),
		router.Module(),
		delivery.Module(),
		entity.Module(),
		manager.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 可替换组件
	// ════════════════════════════════════════════════════════════════════════
	if o.clk != nil {
		clk := o.clk
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if o.prober != nil {
		p := o.prober
		modules = append(modules, fx.Provide(func() announce.Prober { return p }))
	}

	// 应用消息类型须在第一个入站帧之前登记
	if len(o.kinds) > 0 {
		kinds := o.kinds
		modules = append(modules, fx.Invoke(func(c *wire.Catalog) error {
			for _, k := range kinds {
				if err := c.Register(k.name, k.id); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Manager  *manager.Manager
	Router   *router.Router
	Registry *registry.Registry
	Catalog  *wire.Catalog

	Bus        *eventbus.Bus        `optional:"true"`
	Prometheus *prometheus.Registry `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) func(nodeInjectParams) {
	return func(p nodeInjectParams) {
		node.mgr = p.Manager
		node.router = p.Router
		node.reg = p.Registry
		node.catalog = p.Catalog
		node.bus = p.Bus
		node.prom = p.Prometheus
	}
}
