// Package config 提供 imcmsg 的统一配置
//
// 主 Config 聚合各子配置，每个子配置在独立文件中定义，
// 各自提供 DefaultXConfig() 与 Validate()。
//
//	cfg := config.NewConfig()
//	cfg.Identity.LocalID = 0x4001
//	cfg.Transport.UDPPort = 6001
//
//	// 从文件加载（.json / .yaml / .yml）
//	cfg, err := config.Load("node.yaml")
package config

import (
	"fmt"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

// KnownPeer 静态配置的系统
//
// 路由时即使从未收到其 Announce，也会按需为其建立记录。
type KnownPeer struct {
	ID   types.PeerID   `json:"id" yaml:"id"`
	Name string         `json:"name" yaml:"name"`
	Kind types.PeerKind `json:"kind" yaml:"kind"`

	// Host 为空时只建立记录，不可发送
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	UDPPort int    `json:"udp_port,omitempty" yaml:"udp_port,omitempty"`
	TCPPort int    `json:"tcp_port,omitempty" yaml:"tcp_port,omitempty"`

	Authority types.Authority `json:"authority,omitempty" yaml:"authority,omitempty"`
}

// Validate 验证静态系统
func (p KnownPeer) Validate() error {
	if !p.ID.IsValidSource() {
		return fmt.Errorf("known peer %q: %w", p.Name, ErrReservedID)
	}
	if p.UDPPort < 0 || p.UDPPort > 65535 || p.TCPPort < 0 || p.TCPPort > 65535 {
		return fmt.Errorf("known peer %s: %w", p.ID, ErrInvalidPort)
	}
	return nil
}

// Config 完整配置
type Config struct {
	Identity  IdentityConfig  `json:"identity" yaml:"identity"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Announce  AnnounceConfig  `json:"announce" yaml:"announce"`
	Router    RouterConfig    `json:"router" yaml:"router"`
	Delivery  DeliveryConfig  `json:"delivery" yaml:"delivery"`
	Fragment  FragmentConfig  `json:"fragment" yaml:"fragment"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`

	KnownPeers []KnownPeer `json:"known_peers,omitempty" yaml:"known_peers,omitempty"`
}

// NewConfig 返回全部使用默认值的配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Announce:  DefaultAnnounceConfig(),
		Router:    DefaultRouterConfig(),
		Delivery:  DefaultDeliveryConfig(),
		Fragment:  DefaultFragmentConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 依次验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	for _, v := range []interface{ Validate() error }{
		c.Identity, c.Transport, c.Announce, c.Router, c.Delivery, c.Fragment, c.Metrics,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[types.PeerID]struct{}, len(c.KnownPeers))
	for _, p := range c.KnownPeers {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.ID == c.Identity.LocalID {
			return fmt.Errorf("known peer %s: %w", p.ID, ErrLocalIDReused)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("known peer %s: %w", p.ID, ErrDuplicatePeer)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// KnownPeer 按 ID 查找静态系统
func (c *Config) KnownPeer(id types.PeerID) (KnownPeer, bool) {
	for _, p := range c.KnownPeers {
		if p.ID == id {
			return p, true
		}
	}
	return KnownPeer{}, false
}

// Clone 深拷贝
func (c *Config) Clone() *Config {
	out := *c
	out.Transport.MulticastPorts = append([]int(nil), c.Transport.MulticastPorts...)
	out.Transport.Preference = append([]string(nil), c.Transport.Preference...)
	out.Announce.ExtraServices = append([]string(nil), c.Announce.ExtraServices...)
	out.KnownPeers = append([]KnownPeer(nil), c.KnownPeers...)
	return &out
}
