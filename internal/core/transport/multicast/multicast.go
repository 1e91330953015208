// Package multicast 实现 UDP 组播与广播传输
//
// 组播与广播共用一个绑定在候选端口上的套接字。该套接字设置了端口复用，
// 同一主机上的多个进程可以同时监听同一组播端口。
package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/transport/multicast")

const maxDatagram = 65535

// Config 组播配置
type Config struct {
	Group string
	Ports []int

	EnableMulticast bool
	EnableBroadcast bool
}

// Transport 组播/广播传输
type Transport struct {
	*transport.Receiver

	cfg   Config
	group net.IP

	mu     sync.Mutex
	pc     net.PacketConn
	p      *ipv4.PacketConn
	ifaces []net.Interface
	port   atomic.Int32

	wg sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New 创建组播传输
func New(cfg Config, codec *wire.Codec) *Transport {
	return &Transport{
		Receiver: transport.NewReceiver(types.TransportMulticast, codec),
		cfg:      cfg,
		group:    net.ParseIP(cfg.Group).To4(),
	}
}

// Kind 实现 transport.Transport
func (t *Transport) Kind() types.TransportKind { return types.TransportMulticast }

// Start 依次尝试候选端口，加入组播组并启动接收循环
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pc != nil {
		return nil
	}
	if t.cfg.EnableMulticast && t.group == nil {
		return fmt.Errorf("invalid multicast group %q", t.cfg.Group)
	}

	lc := net.ListenConfig{Control: transport.SharedPortControl}
	port, err := transport.BindFirst(t.cfg.Ports, func(p int) error {
		pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", p))
		if err != nil {
			return err
		}
		t.pc = pc
		return nil
	})
	if err != nil {
		return err
	}
	if port == 0 {
		port = t.pc.LocalAddr().(*net.UDPAddr).Port
	}
	t.port.Store(int32(port))

	t.p = ipv4.NewPacketConn(t.pc)
	if err := t.p.SetControlMessage(ipv4.FlagDst, true); err != nil {
		log.Debug("平台不支持目的地址控制消息", "err", err)
	}

	if t.cfg.EnableMulticast {
		t.joinGroup()
	}

	t.wg.Add(1)
	go t.readLoop(t.p)

	log.Info("组播传输已绑定",
		"group", t.cfg.Group,
		"port", port,
		"interfaces", len(t.ifaces),
		"broadcast", t.cfg.EnableBroadcast)
	return nil
}

// joinGroup 在每个支持组播的接口上加入组
func (t *Transport) joinGroup() {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warn("枚举网络接口失败", "err", err)
	}

	gaddr := &net.UDPAddr{IP: t.group}
	for i := range ifaces {
		ifi := ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := t.p.JoinGroup(&ifi, gaddr); err != nil {
			log.Debug("加入组播组失败", "iface", ifi.Name, "err", err)
			continue
		}
		t.ifaces = append(t.ifaces, ifi)
	}

	if len(t.ifaces) == 0 {
		if err := t.p.JoinGroup(nil, gaddr); err != nil {
			log.Warn("无法加入组播组，仅能发送", "group", t.cfg.Group, "err", err)
		}
	}

	if err := t.p.SetMulticastLoopback(true); err != nil {
		log.Debug("设置组播回环失败", "err", err)
	}
}

func (t *Transport) readLoop(p *ipv4.PacketConn) {
	defer t.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, cm, from, err := p.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debug("读取失败", "err", err)
			continue
		}
		udpFrom, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}

		kind := types.TransportMulticast
		if cm != nil && cm.Dst != nil && !cm.Dst.IsMulticast() {
			kind = types.TransportBroadcast
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.Deliver(frame, types.MessageInfo{
			SrcIP:      udpFrom.IP.String(),
			SrcPort:    udpFrom.Port,
			ReceivedAt: time.Now(),
			Transport:  kind,
		})
	}
}

// SendMulticast 向组播组的每个候选端口发送，经由每个已加入的接口
//
// 任一次写入成功即返回 true。
func (t *Transport) SendMulticast(frame []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil || !t.cfg.EnableMulticast {
		return false
	}

	sent := false
	for _, port := range t.cfg.Ports {
		dst := &net.UDPAddr{IP: t.group, Port: port}
		if len(t.ifaces) == 0 {
			sent = t.write(frame, dst) || sent
			continue
		}
		for i := range t.ifaces {
			if err := t.p.SetMulticastInterface(&t.ifaces[i]); err != nil {
				continue
			}
			sent = t.write(frame, dst) || sent
		}
	}
	return sent
}

// SendBroadcast 向每个接口的广播地址的每个候选端口发送
func (t *Transport) SendBroadcast(frame []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil || !t.cfg.EnableBroadcast {
		return false
	}

	addrs := transport.BroadcastAddrs()
	if len(addrs) == 0 {
		addrs = []net.IP{net.IPv4bcast}
	}

	sent := false
	for _, ip := range addrs {
		for _, port := range t.cfg.Ports {
			sent = t.write(frame, &net.UDPAddr{IP: ip, Port: port}) || sent
		}
	}
	return sent
}

// SendTo 向组播端口上的单一地址发送，用于对不活跃系统单播 Announce
func (t *Transport) SendTo(host string, port int, frame []byte) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil {
		return false
	}
	return t.write(frame, &net.UDPAddr{IP: ip, Port: port})
}

func (t *Transport) write(frame []byte, dst *net.UDPAddr) bool {
	if _, err := t.p.WriteTo(frame, nil, dst); err != nil {
		log.Debug("发送失败", "to", dst.String(), "err", err)
		return false
	}
	return true
}

// Ports 候选端口列表
func (t *Transport) Ports() []int {
	return append([]int(nil), t.cfg.Ports...)
}

// Port 实际绑定的端口
func (t *Transport) Port() int { return int(t.port.Load()) }

// Bound 是否已绑定
func (t *Transport) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pc != nil
}

// MulticastEnabled 组播是否可用
func (t *Transport) MulticastEnabled() bool {
	return t.Bound() && t.cfg.EnableMulticast
}

// BroadcastEnabled 广播是否可用
func (t *Transport) BroadcastEnabled() bool {
	return t.Bound() && t.cfg.EnableBroadcast
}

// Subscribe 实现 transport.Transport
func (t *Transport) Subscribe(h transport.Handler) func() {
	return t.Add(h)
}

// Close 离开组播组并关闭套接字
func (t *Transport) Close() error {
	t.mu.Lock()
	pc, p := t.pc, t.p
	ifaces := t.ifaces
	t.pc, t.p, t.ifaces = nil, nil, nil
	t.mu.Unlock()

	if pc == nil {
		return nil
	}
	for i := range ifaces {
		_ = p.LeaveGroup(&ifaces[i], &net.UDPAddr{IP: t.group})
	}
	err := pc.Close()
	t.wg.Wait()
	t.port.Store(0)
	return err
}
