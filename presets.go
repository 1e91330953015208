package imcmsg

import (
	"fmt"
	"time"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设名称
// ════════════════════════════════════════════════════════════════════════════

const (
	// PresetNameConsole 控制台
	PresetNameConsole = "console"

	// PresetNameVehicle 载具
	PresetNameVehicle = "vehicle"

	// PresetNameLoopback 本机测试
	PresetNameLoopback = "loopback"
)

// Preset 预设配置
//
// 预设只修改与场景相关的字段，其余沿用基础配置。
type Preset struct {
	// Name 预设名称
	Name string

	// Description 预设描述
	Description string

	apply func(*config.Config)
}

// Apply 将预设应用到 cfg
func (p *Preset) Apply(cfg *config.Config) {
	if p == nil || p.apply == nil {
		return
	}
	p.apply(cfg)
}

// PresetConsole 控制台：同时启用全部传输，主动向非活跃系统单播公告
var PresetConsole = &Preset{
	Name:        PresetNameConsole,
	Description: "控制台，全部传输开启，主动发现",
	apply: func(cfg *config.Config) {
		cfg.Identity.Kind = types.KindConsole
		cfg.Transport.EnableUDP = true
		cfg.Transport.EnableTCP = true
		cfg.Transport.EnableMulticast = true
		cfg.Transport.EnableBroadcast = true
		cfg.Announce.UnicastToInactive = true
	},
}

// PresetVehicle 载具：不主动单播公告，优先 UDP
var PresetVehicle = &Preset{
	Name:        PresetNameVehicle,
	Description: "载具，UDP 优先，被动发现",
	apply: func(cfg *config.Config) {
		cfg.Identity.Kind = types.KindVehicle
		cfg.Transport.Preference = []string{"udp", "tcp"}
		cfg.Announce.UnicastToInactive = false
	},
}

// PresetLoopback 本机测试：端口由系统分配，关闭组播与广播
var PresetLoopback = &Preset{
	Name:        PresetNameLoopback,
	Description: "本机测试，随机端口，无组播",
	apply: func(cfg *config.Config) {
		cfg.Transport.UDPPort = 0
		cfg.Transport.TCPPort = 0
		cfg.Transport.EnableMulticast = false
		cfg.Transport.EnableBroadcast = false
		cfg.Transport.BindRetries = 0
		cfg.Announce.UnicastToInactive = false
		cfg.Delivery.DefaultTimeout = config.Duration(2 * time.Second)
		cfg.Delivery.ReliableTimeout = config.Duration(5 * time.Second)
	},
}

// AvailablePresets 返回所有可用预设
func AvailablePresets() []*Preset {
	return []*Preset{PresetConsole, PresetVehicle, PresetLoopback}
}

// PresetByName 按名称查找预设
func PresetByName(name string) (*Preset, error) {
	for _, p := range AvailablePresets() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// ConfigForPreset 返回应用了预设的默认配置
//
//	cfg, err := imcmsg.ConfigForPreset("vehicle")
func ConfigForPreset(name string) (*config.Config, error) {
	p, err := PresetByName(name)
	if err != nil {
		return nil, err
	}
	cfg := config.NewConfig()
	p.Apply(cfg)
	return cfg, nil
}
