package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-imcmsg/pkg/types"
)

// TransportConfig 传输层配置
//
//   - UDP: 单播，默认首选
//   - TCP: 面向连接，可靠投递
//   - Multicast/Broadcast: 发现与群发
type TransportConfig struct {
	EnableUDP bool `json:"enable_udp" yaml:"enable_udp"`
	UDPPort   int  `json:"udp_port" yaml:"udp_port"`

	EnableTCP bool      `json:"enable_tcp" yaml:"enable_tcp"`
	TCPPort   int       `json:"tcp_port" yaml:"tcp_port"`
	TCP       TCPConfig `json:"tcp" yaml:"tcp"`

	EnableMulticast  bool   `json:"enable_multicast" yaml:"enable_multicast"`
	EnableBroadcast  bool   `json:"enable_broadcast" yaml:"enable_broadcast"`
	MulticastAddress string `json:"multicast_address" yaml:"multicast_address"`
	MulticastPorts   []int  `json:"multicast_ports" yaml:"multicast_ports"`

	// BindRetries 配置端口被占用时向后尝试的端口数
	BindRetries int `json:"bind_retries" yaml:"bind_retries"`

	// Preference 单播传输的默认尝试顺序
	Preference []string `json:"preference" yaml:"preference"`

	// MaxDatagramSize 超过此大小的 UDP 消息拆分为 MessagePart
	MaxDatagramSize int `json:"max_datagram_size" yaml:"max_datagram_size"`
}

// TCPConfig TCP 参数
type TCPConfig struct {
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// IdleTimeout 空闲超过该时长的连接被回收
	IdleTimeout Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// WriteQueue 每条连接待写帧上限
	WriteQueue int `json:"write_queue" yaml:"write_queue"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		EnableUDP: true,
		UDPPort:   6001,

		EnableTCP: true,
		TCPPort:   6001,
		TCP: TCPConfig{
			DialTimeout: Duration(3 * time.Second),
			IdleTimeout: Duration(60 * time.Second),
			WriteQueue:  64,
		},

		EnableMulticast:  true,
		EnableBroadcast:  true,
		MulticastAddress: "224.0.75.69",
		MulticastPorts:   []int{30100, 30101, 30102, 30103, 30104},

		BindRetries: 9,

		Preference: []string{"udp", "tcp"},

		// 以太网 MTU 下的安全值
		MaxDatagramSize: 1400,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableUDP && !c.EnableTCP && !c.EnableMulticast && !c.EnableBroadcast {
		return ErrNoTransport
	}

	for _, p := range []int{c.UDPPort, c.TCPPort} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, p)
		}
	}

	if c.EnableMulticast || c.EnableBroadcast {
		if len(c.MulticastPorts) == 0 {
			return errors.New("multicast ports must not be empty")
		}
		for _, p := range c.MulticastPorts {
			if p <= 0 || p > 65535 {
				return fmt.Errorf("%w: %d", ErrInvalidPort, p)
			}
		}
	}
	if c.EnableMulticast {
		ip := net.ParseIP(c.MulticastAddress)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			return fmt.Errorf("invalid multicast address %q", c.MulticastAddress)
		}
	}

	if c.BindRetries < 0 {
		return errors.New("bind retries must not be negative")
	}

	for _, name := range c.Preference {
		k, ok := types.ParseTransportKind(name)
		if !ok || (k != types.TransportUDP && k != types.TransportTCP) {
			return fmt.Errorf("%w: %q", ErrUnknownTransport, name)
		}
	}

	if c.EnableTCP {
		if c.TCP.DialTimeout <= 0 {
			return errors.New("TCP dial timeout must be positive")
		}
		if c.TCP.IdleTimeout <= 0 {
			return errors.New("TCP idle timeout must be positive")
		}
		if c.TCP.WriteQueue <= 0 {
			return errors.New("TCP write queue must be positive")
		}
	}

	if c.MaxDatagramSize < 64 || c.MaxDatagramSize > 65000 {
		return errors.New("max datagram size must be within [64, 65000]")
	}
	return nil
}

// PreferenceKinds 将 Preference 转为 TransportKind 列表，忽略未知项
func (c TransportConfig) PreferenceKinds() []types.TransportKind {
	out := make([]types.TransportKind, 0, len(c.Preference))
	for _, name := range c.Preference {
		if k, ok := types.ParseTransportKind(name); ok {
			out = append(out, k)
		}
	}
	return out
}

// WithUDPPort 设置 UDP 端口
func (c TransportConfig) WithUDPPort(port int) TransportConfig {
	c.UDPPort = port
	return c
}

// WithTCPPort 设置 TCP 端口
func (c TransportConfig) WithTCPPort(port int) TransportConfig {
	c.TCPPort = port
	return c
}

// WithPreference 设置单播传输顺序
func (c TransportConfig) WithPreference(kinds ...string) TransportConfig {
	c.Preference = kinds
	return c
}
