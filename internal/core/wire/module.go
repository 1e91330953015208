package wire

import "go.uber.org/fx"

// Module 提供类型目录与编解码器
//
// 应用自定义的消息类型在 Start 之前通过 Catalog.Register 登记。
func Module() fx.Option {
	return fx.Module("wire",
		fx.Provide(NewCatalog),
		fx.Provide(NewCodec),
	)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "wire"
	// Description 模块描述
	Description = "IMC 帧编解码与控制消息负载"
)
