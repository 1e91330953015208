package entity

import "go.uber.org/fx"

// Module 提供本机实体注册表
func Module() fx.Option {
	return fx.Module("entity",
		fx.Provide(NewRegistry),
	)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "entity"
	// Description 模块描述
	Description = "本机实体注册"
)
