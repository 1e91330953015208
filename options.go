package imcmsg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-imcmsg/config"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// Prober 主机可达性探测
//
// 未设置时使用 ICMP/TCP echo 探测。
type Prober interface {
	Reachable(host string) bool
}

type messageKind struct {
	name string
	id   uint16
}

// options 内部选项结构
type options struct {
	// 基础配置，按 file > config > preset 的顺序取第一个
	configFile string
	config     *config.Config
	preset     *Preset

	// 身份
	localID *types.PeerID
	name    string
	kind    *types.PeerKind

	// 传输
	udpPort    *int
	tcpPort    *int
	multicast  *bool
	broadcast  *bool
	preference []string

	// 发现
	announceInterval *time.Duration
	services         []string

	knownPeers []config.KnownPeer
	kinds      []messageKind

	// 日志级别，nil 表示沿用环境变量
	logLevel *slog.Level

	clk    clock.Clock
	prober Prober

	// 用户扩展
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{}
}

// toConfig 合成最终配置
func (o *options) toConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case o.configFile != "":
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case o.config != nil:
		cfg = o.config.Clone()
	default:
		cfg = config.NewConfig()
	}

	if o.preset != nil {
		o.preset.Apply(cfg)
	}

	// 覆盖: 身份
	if o.localID != nil {
		cfg.Identity.LocalID = *o.localID
	}
	if o.name != "" {
		cfg.Identity.Name = o.name
	}
	if o.kind != nil {
		cfg.Identity.Kind = *o.kind
	}

	// 覆盖: 传输
	if o.udpPort != nil {
		cfg.Transport.UDPPort = *o.udpPort
	}
	if o.tcpPort != nil {
		cfg.Transport.TCPPort = *o.tcpPort
	}
	if o.multicast != nil {
		cfg.Transport.EnableMulticast = *o.multicast
	}
	if o.broadcast != nil {
		cfg.Transport.EnableBroadcast = *o.broadcast
	}
	if len(o.preference) > 0 {
		cfg.Transport.Preference = o.preference
	}

	// 覆盖: 发现
	if o.announceInterval != nil {
		cfg.Announce.MulticastInterval = config.Duration(*o.announceInterval)
	}
	cfg.Announce.ExtraServices = append(cfg.Announce.ExtraServices, o.services...)
	cfg.KnownPeers = append(cfg.KnownPeers, o.knownPeers...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ============================================================================
//                              基础配置
// ============================================================================

// WithConfig 以 cfg 为基础配置，cfg 会被复制
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("配置不能为空")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("配置文件路径不能为空")
		}
		o.configFile = path
		return nil
	}
}

// WithPreset 在基础配置之上应用预设
func WithPreset(preset *Preset) Option {
	return func(o *options) error {
		if preset == nil {
			return fmt.Errorf("预设不能为空")
		}
		o.preset = preset
		return nil
	}
}

// ============================================================================
//                              身份选项
// ============================================================================

// WithLocalID 设置本机系统标识
func WithLocalID(id PeerID) Option {
	return func(o *options) error {
		if !id.IsValidSource() {
			return fmt.Errorf("本机标识 %s 为保留值", id)
		}
		o.localID = &id
		return nil
	}
}

// WithName 设置 Announce 中公布的系统名
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("系统名不能为空")
		}
		o.name = name
		return nil
	}
}

// WithKind 设置系统类型
func WithKind(kind types.PeerKind) Option {
	return func(o *options) error {
		o.kind = &kind
		return nil
	}
}

// ============================================================================
//                              传输选项
// ============================================================================

// WithUDPPort 设置 UDP 端口，0 表示由系统分配
func WithUDPPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("无效端口 %d", port)
		}
		o.udpPort = &port
		return nil
	}
}

// WithTCPPort 设置 TCP 端口，0 表示由系统分配
func WithTCPPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("无效端口 %d", port)
		}
		o.tcpPort = &port
		return nil
	}
}

// WithMulticastDiscovery 开关组播与广播
func WithMulticastDiscovery(multicast, broadcast bool) Option {
	return func(o *options) error {
		o.multicast = &multicast
		o.broadcast = &broadcast
		return nil
	}
}

// WithTransportPreference 设置单播传输的尝试顺序
//
//	imcmsg.New(ctx, imcmsg.WithTransportPreference("tcp", "udp"))
func WithTransportPreference(kinds ...string) Option {
	return func(o *options) error {
		if len(kinds) == 0 {
			return fmt.Errorf("传输顺序不能为空")
		}
		o.preference = kinds
		return nil
	}
}

// ============================================================================
//                              发现选项
// ============================================================================

// WithAnnounceInterval 设置组播公告周期
func WithAnnounceInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("公告周期必须为正")
		}
		o.announceInterval = &d
		return nil
	}
}

// WithService 追加公布的服务 URI
func WithService(uri string) Option {
	return func(o *options) error {
		o.services = append(o.services, uri)
		return nil
	}
}

// WithKnownPeer 追加静态系统
func WithKnownPeer(p config.KnownPeer) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.knownPeers = append(o.knownPeers, p)
		return nil
	}
}

// WithProber 替换可达性探测
func WithProber(p Prober) Option {
	return func(o *options) error {
		o.prober = p
		return nil
	}
}

// ============================================================================
//                              其他选项
// ============================================================================

// WithMessageKind 登记应用消息类型
func WithMessageKind(name string, id uint16) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("消息类型名不能为空")
		}
		o.kinds = append(o.kinds, messageKind{name: name, id: id})
		return nil
	}
}

// WithLogLevel 设置全部子系统的日志级别
func WithLogLevel(level slog.Level) Option {
	return func(o *options) error {
		o.logLevel = &level
		return nil
	}
}

// WithClock 替换时钟，用于测试
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clk = clk
		return nil
	}
}

// WithFxOption 追加 fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
