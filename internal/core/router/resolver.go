package router

import (
	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/internal/core/registry"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Resolver 为入站消息找到所属系统
type Resolver interface {
	Name() string
	Resolve(msg *types.Message, info types.MessageInfo) (types.PeerID, bool)
}

// KnownResolver 来源 ID 已在目录中
type KnownResolver struct {
	Registry *registry.Registry
}

func (KnownResolver) Name() string { return "known" }

func (r KnownResolver) Resolve(msg *types.Message, _ types.MessageInfo) (types.PeerID, bool) {
	src := msg.Header.Src
	return src, src.IsValidSource() && r.Registry.Contains(src)
}

// StaticResolver 来源 ID 在静态配置中，按需建立记录
type StaticResolver struct {
	Registry *registry.Registry
	Config   *config.Config
}

func (StaticResolver) Name() string { return "static" }

func (r StaticResolver) Resolve(msg *types.Message, _ types.MessageInfo) (types.PeerID, bool) {
	src := msg.Header.Src
	if !src.IsValidSource() {
		return types.NullID, false
	}
	kp, ok := r.Config.KnownPeer(src)
	if !ok {
		return types.NullID, false
	}
	if _, created, err := r.Registry.Upsert(src, registry.FieldsFromKnown(kp)); err != nil {
		return types.NullID, false
	} else if created {
		log.Info("按静态配置建立系统记录", "id", src.String(), "name", kp.Name)
	}
	return src, true
}

// AddrResolver 按来源地址查找
type AddrResolver struct {
	Registry *registry.Registry
}

func (AddrResolver) Name() string { return "addr" }

func (r AddrResolver) Resolve(_ *types.Message, info types.MessageInfo) (types.PeerID, bool) {
	if info.SrcIP == "" {
		return types.NullID, false
	}
	return r.Registry.LookupByAddr(info.SrcIP, info.SrcPort)
}

// FirstKnownResolver 转给任意一个已知系统
type FirstKnownResolver struct {
	Registry *registry.Registry
}

func (FirstKnownResolver) Name() string { return "first-known" }

func (r FirstKnownResolver) Resolve(*types.Message, types.MessageInfo) (types.PeerID, bool) {
	return r.Registry.FirstKnown()
}

// DefaultResolvers 按配置构造解析链
func DefaultResolvers(cfg *config.Config, reg *registry.Registry) []Resolver {
	rs := []Resolver{
		KnownResolver{Registry: reg},
		StaticResolver{Registry: reg, Config: cfg},
		AddrResolver{Registry: reg},
	}
	if cfg.Router.RedirectToFirst {
		rs = append(rs, FirstKnownResolver{Registry: reg})
	}
	return rs
}
