// Package udp 实现 UDP 单播传输
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-imcmsg/internal/core/transport"
	"github.com/dep2p/go-imcmsg/internal/core/wire"
	"github.com/dep2p/go-imcmsg/internal/util/logger"
	"github.com/dep2p/go-imcmsg/pkg/types"
)

var log = logger.Logger("core/transport/udp")

// maxDatagram 接收缓冲大小
const maxDatagram = 65535

// Config UDP 配置
type Config struct {
	// Host 绑定地址，空为全部接口
	Host    string
	Port    int
	Retries int
}

// Transport UDP 单播传输
type Transport struct {
	*transport.Receiver

	cfg  Config
	conn *net.UDPConn
	port atomic.Int32

	wg      sync.WaitGroup
	closeMu sync.Mutex
}

var _ transport.Unicast = (*Transport)(nil)

// New 创建 UDP 传输，Start 之前不占用端口
func New(cfg Config, codec *wire.Codec) *Transport {
	return &Transport{
		Receiver: transport.NewReceiver(types.TransportUDP, codec),
		cfg:      cfg,
	}
}

// Kind 实现 transport.Transport
func (t *Transport) Kind() types.TransportKind { return types.TransportUDP }

// Start 绑定端口并启动接收循环
func (t *Transport) Start(_ context.Context) error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.conn != nil {
		return nil
	}

	ip := net.IPv4zero
	if t.cfg.Host != "" {
		ip = net.ParseIP(t.cfg.Host)
	}

	port, err := transport.BindWithRetry(t.cfg.Port, t.cfg.Retries, func(p int) error {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: p})
		if err != nil {
			return err
		}
		t.conn = c
		return nil
	})
	if err != nil {
		return err
	}
	if port == 0 {
		port = t.conn.LocalAddr().(*net.UDPAddr).Port
	}
	if port != t.cfg.Port && t.cfg.Port != 0 {
		log.Warn("配置端口被占用，使用后续端口", "configured", t.cfg.Port, "bound", port)
	}
	t.port.Store(int32(port))

	t.wg.Add(1)
	go t.readLoop(t.conn)

	log.Info("UDP 传输已绑定", "port", port)
	return nil
}

func (t *Transport) readLoop(conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debug("读取失败", "err", err)
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.Deliver(frame, types.MessageInfo{
			SrcIP:      from.IP.String(),
			SrcPort:    from.Port,
			ReceivedAt: time.Now(),
		})
	}
}

// Send 发送一个数据报；写入成功即视为送达
func (t *Transport) Send(host string, port int, frame []byte, done transport.DoneFunc) bool {
	t.closeMu.Lock()
	conn := t.conn
	t.closeMu.Unlock()
	if conn == nil {
		return false
	}

	addr, err := resolve(host, port)
	if err != nil {
		log.Debug("地址无效", "host", host, "port", port, "err", err)
		return false
	}

	if _, err := conn.WriteToUDP(frame, addr); err != nil {
		log.Debug("发送失败", "to", addr.String(), "err", err)
		return false
	}

	if done != nil {
		done(types.OutcomeSuccess, nil)
	}
	return true
}

// Port 实际绑定的端口
func (t *Transport) Port() int { return int(t.port.Load()) }

// Bound 是否已绑定
func (t *Transport) Bound() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.conn != nil
}

// Subscribe 实现 transport.Transport
func (t *Transport) Subscribe(h transport.Handler) func() {
	return t.Add(h)
}

// Close 关闭套接字并等待接收循环退出
func (t *Transport) Close() error {
	t.closeMu.Lock()
	conn := t.conn
	t.conn = nil
	t.closeMu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	t.wg.Wait()
	t.port.Store(0)
	return err
}

func resolve(host string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(host, fmt.Sprint(port)))
}
