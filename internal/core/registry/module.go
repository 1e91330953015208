package registry

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
)

// Params 依赖
type Params struct {
	fx.In

	Config *config.Config
	Clock  clock.Clock `optional:"true"`
}

// Module 提供系统目录
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(Provide),
	)
}

// Provide 按配置创建目录
func Provide(p Params) *Registry {
	return New(Options{FilterByPort: p.Config.Router.FilterByPort}, p.Clock)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "registry"
	// Description 模块描述
	Description = "已知系统目录、地址索引与 ID 冲突检测"
)
